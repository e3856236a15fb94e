package slots

import "fmt"

// MaxCandidates caps the number of windows Search returns.
const MaxCandidates = 10

// Search returns up to MaxCandidates windows of exactly duration minutes, each covered by
// contiguous available slots of sel, earliest start first.
//
// An empty result is a normal outcome; the caller decides whether to retry with a shorter
// duration. A duration that is not a whole number of slots is rejected with
// ErrUnsupportedDuration.
func Search(rows []Slot, sel Selector, duration int) ([]Window, error) {
	if duration <= 0 {
		return nil, nil
	}
	g := Granularity(rows, sel)
	if g == 0 {
		return nil, nil
	}
	if duration%g != 0 {
		return nil, fmt.Errorf("%w: %d minutes with %d-minute slots", ErrUnsupportedDuration, duration, g)
	}
	block := duration / g

	var free []Slot
	for _, r := range rows {
		if sel.Matches(r) && r.Available() {
			free = append(free, r)
		}
	}
	sortByStart(free)
	if block > len(free) {
		return nil, nil
	}

	var out []Window
	for i := 0; i+block <= len(free) && len(out) < MaxCandidates; i++ {
		run := free[i : i+block]
		if !contiguous(run) {
			continue
		}
		w := Window{Start: run[0].Start, End: run[block-1].End}
		if w.Minutes() != duration {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}

func contiguous(run []Slot) bool {
	for k := 0; k < len(run); k++ {
		if run[k].End <= run[k].Start {
			return false
		}
		if k+1 < len(run) && run[k].End != run[k+1].Start {
			return false
		}
	}
	return true
}
