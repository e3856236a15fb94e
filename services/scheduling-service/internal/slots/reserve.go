package slots

import (
	"fmt"
	"slices"
)

type ReserveOptions struct {
	// AllowOverwrite re-books slots already held by another appointment instead of failing
	// with ErrConflict, and skips the coverage check.
	AllowOverwrite bool
}

// Reserve books every slot of sel that intersects w and tags it with appointmentID. It
// returns a new slice; rows is never modified, so a rejected reservation leaves no trace.
func Reserve(rows []Slot, sel Selector, w Window, appointmentID string, opts ReserveOptions) ([]Slot, error) {
	if appointmentID == "" {
		return nil, ErrMissingAppointmentID
	}
	if w.End <= w.Start {
		return nil, fmt.Errorf("%w: %s", ErrInvalidWindow, w)
	}

	var hit []int
	for i, r := range rows {
		if sel.Matches(r) && w.overlaps(r) {
			hit = append(hit, i)
		}
	}
	if len(hit) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrWindowNotCovered, w)
	}

	if !opts.AllowOverwrite {
		covered := make([]Slot, 0, len(hit))
		for _, i := range hit {
			r := rows[i]
			if !r.Available() && r.AppointmentRef != appointmentID {
				return nil, fmt.Errorf("%w: %s-%s held by %q", ErrConflict, r.Start, r.End, r.AppointmentRef)
			}
			covered = append(covered, r)
		}
		sortByStart(covered)
		if !contiguous(covered) || covered[0].Start > w.Start || covered[len(covered)-1].End < w.End {
			return nil, fmt.Errorf("%w: %s", ErrWindowNotCovered, w)
		}
	}

	out := slices.Clone(rows)
	for _, i := range hit {
		out[i].Status = StatusBooked
		out[i].AppointmentRef = appointmentID
	}
	return out, nil
}

// Release frees every slot of sel held by appointmentID.
func Release(rows []Slot, sel Selector, appointmentID string) []Slot {
	out := slices.Clone(rows)
	for i := range out {
		if sel.Matches(out[i]) && appointmentID != "" && out[i].AppointmentRef == appointmentID {
			out[i].Status = StatusAvailable
			out[i].AppointmentRef = ""
		}
	}
	return out
}
