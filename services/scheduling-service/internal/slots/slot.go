package slots

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"
)

type Status string

const (
	StatusAvailable Status = "available"
	StatusBooked    Status = "booked"
)

// ParseStatus accepts any casing. Unknown values are treated as booked so that a
// malformed row is never offered to a patient.
func ParseStatus(s string) Status {
	if strings.EqualFold(strings.TrimSpace(s), string(StatusAvailable)) {
		return StatusAvailable
	}
	return StatusBooked
}

type Slot struct {
	DoctorID       string `json:"doctor_id"`
	Doctor         string `json:"doctor"`
	Location       string `json:"location"`
	Date           string `json:"date"`
	Start          Clock  `json:"start_time"`
	End            Clock  `json:"end_time"`
	Status         Status `json:"status"`
	AppointmentRef string `json:"appointment_ref,omitempty"`
}

func (s Slot) Minutes() int { return s.End.Sub(s.Start) }

func (s Slot) Available() bool { return s.Status == StatusAvailable }

// Selector addresses one partition: a doctor's day at a location. Doctor matches either
// the doctor id or the display name.
type Selector struct {
	Doctor   string `json:"doctor" validate:"required"`
	Location string `json:"location" validate:"required"`
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
}

func (sel Selector) Validate() error {
	if sel.Doctor == "" || sel.Location == "" || sel.Date == "" {
		return ErrInvalidSelector
	}
	if _, err := time.Parse(time.DateOnly, sel.Date); err != nil {
		return fmt.Errorf("%w: bad date %q", ErrInvalidSelector, sel.Date)
	}
	return nil
}

// Key is the partition key used for locks and versions.
func (sel Selector) Key() string {
	return sel.Doctor + "|" + sel.Location + "|" + sel.Date
}

// Canonical returns sel with Doctor set to the doctor id of the first matching row, so a
// doctor named by id or by display name yields one Key. Rows without an id leave sel as is.
func Canonical(sel Selector, rows []Slot) Selector {
	for _, r := range rows {
		if r.DoctorID != "" && sel.Matches(r) {
			sel.Doctor = r.DoctorID
			return sel
		}
	}
	return sel
}

func (sel Selector) Matches(s Slot) bool {
	if s.Location != sel.Location || s.Date != sel.Date {
		return false
	}
	return s.Doctor == sel.Doctor || (s.DoctorID != "" && s.DoctorID == sel.Doctor)
}

type Window struct {
	Start Clock `json:"start_time"`
	End   Clock `json:"end_time"`
}

func (w Window) Minutes() int { return w.End.Sub(w.Start) }

func (w Window) String() string { return w.Start.String() + "-" + w.End.String() }

// overlaps reports whether the half-open intervals [s.Start,s.End) and [w.Start,w.End) intersect.
func (w Window) overlaps(s Slot) bool {
	return !(s.End <= w.Start || s.Start >= w.End)
}

// Filter returns the rows of sel in chronological order.
func Filter(rows []Slot, sel Selector) []Slot {
	var out []Slot
	for _, r := range rows {
		if sel.Matches(r) {
			out = append(out, r)
		}
	}
	sortByStart(out)
	return out
}

// Granularity is the shortest positive slot length among the rows of sel, or 0 when there
// are none.
func Granularity(rows []Slot, sel Selector) int {
	g := 0
	for _, r := range rows {
		if !sel.Matches(r) {
			continue
		}
		if m := r.Minutes(); m > 0 && (g == 0 || m < g) {
			g = m
		}
	}
	return g
}

func sortByStart(rows []Slot) {
	slices.SortStableFunc(rows, func(a, b Slot) int {
		if c := cmp.Compare(a.Start, b.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.End, b.End)
	})
}
