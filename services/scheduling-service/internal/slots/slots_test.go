package slots

import (
	"errors"
	"reflect"
	"testing"
)

var sel = Selector{Doctor: "Dr. Chen", Location: "Downtown", Date: "2025-09-01"}

// day builds n contiguous 15-minute available slots starting at from.
func day(from string, n int) []Slot {
	start := MustClock(from)
	rows := make([]Slot, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, Slot{
			DoctorID: "D001",
			Doctor:   sel.Doctor,
			Location: sel.Location,
			Date:     sel.Date,
			Start:    start.Add(15 * i),
			End:      start.Add(15 * (i + 1)),
			Status:   StatusAvailable,
		})
	}
	return rows
}

func book(rows []Slot, at string, ref string) {
	c := MustClock(at)
	for i := range rows {
		if rows[i].Start == c {
			rows[i].Status = StatusBooked
			rows[i].AppointmentRef = ref
		}
	}
}

func win(a, b string) Window { return Window{Start: MustClock(a), End: MustClock(b)} }

func TestParseClock(t *testing.T) {
	cases := map[string]Clock{"09:00": 540, "9:05": 545, "24:00": EndOfDay, "00:00": Midnight}
	for in, want := range cases {
		got, err := ParseClock(in)
		if err != nil || got != want {
			t.Fatalf("ParseClock(%q) = %d, %v; want %d", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "9", "9:5", "25:00", "10:60", "ab:cd", "-1:00"} {
		if _, err := ParseClock(bad); !errors.Is(err, ErrInvalidClock) {
			t.Fatalf("ParseClock(%q) expected ErrInvalidClock, got %v", bad, err)
		}
	}
	if MustClock("9:00").String() != "09:00" {
		t.Fatalf("expected zero padded output")
	}
}

func TestClockOrderingIsNumeric(t *testing.T) {
	// "9:00" < "10:00" fails as a string comparison.
	if !(MustClock("9:00") < MustClock("10:00")) {
		t.Fatal("expected 9:00 before 10:00")
	}
}

func TestSearch_PartitionCorrectness(t *testing.T) {
	rows := day("10:00", 12)
	for k := 1; k <= 12; k++ {
		got, err := Search(rows, sel, 15*k)
		if err != nil {
			t.Fatalf("k=%d: %v", k, err)
		}
		want := 12 - k + 1
		if want > MaxCandidates {
			want = MaxCandidates
		}
		if len(got) != want {
			t.Fatalf("k=%d: expected %d windows, got %d", k, want, len(got))
		}
		for i, w := range got {
			if w.Start != MustClock("10:00").Add(15*i) || w.Minutes() != 15*k {
				t.Fatalf("k=%d: window %d = %s", k, i, w)
			}
		}
	}
}

func TestSearch_GapBreaksContiguity(t *testing.T) {
	rows := day("10:00", 12)
	book(rows, "11:00", "X")

	got, err := Search(rows, sel, 60)
	if err != nil {
		t.Fatal(err)
	}
	for _, w := range got {
		if w.Start <= MustClock("11:00") && w.End > MustClock("11:00") {
			t.Fatalf("window %s spans booked 11:00 slot", w)
		}
	}
	if len(got) == 0 || got[0] != win("10:00", "11:00") {
		t.Fatalf("expected 10:00-11:00 first (ends at the gap), got %v", got)
	}
	if !containsWindow(got, win("11:15", "12:15")) {
		t.Fatalf("expected 11:15-12:15 to remain valid, got %v", got)
	}
}

func TestSearch_PrebookedSlotInsideWindow(t *testing.T) {
	rows := day("10:00", 12)
	book(rows, "10:45", "X")

	got, err := Search(rows, sel, 60)
	if err != nil {
		t.Fatal(err)
	}
	if containsWindow(got, win("10:00", "11:00")) {
		t.Fatalf("10:00-11:00 must not be offered, got %v", got)
	}
	if got[0] != win("11:00", "12:00") {
		t.Fatalf("expected 11:00-12:00 first, got %v", got)
	}
}

func TestSearch_IdempotentAndRanked(t *testing.T) {
	rows := day("14:00", 12)
	// Shuffle input order; Search sorts internally.
	rows[0], rows[7] = rows[7], rows[0]
	rows[3], rows[11] = rows[11], rows[3]

	a, err := Search(rows, sel, 30)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := Search(rows, sel, 30)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("search not idempotent: %v vs %v", a, b)
	}
	for i := 1; i < len(a); i++ {
		if a[i-1].Start >= a[i].Start {
			t.Fatalf("not ascending at %d: %v", i, a)
		}
	}
}

func TestSearch_FallbackScenario(t *testing.T) {
	rows := day("10:00", 12)
	// Leave only 30-minute runs free.
	for _, at := range []string{"10:30", "10:45", "11:30", "11:45", "12:30", "12:45"} {
		book(rows, at, "X")
	}
	got, err := Search(rows, sel, 60)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected no 60-minute windows, got %v, %v", got, err)
	}
	got, err = Search(rows, sel, 30)
	if err != nil || len(got) == 0 {
		t.Fatalf("expected 30-minute windows, got %v, %v", got, err)
	}
}

func TestSearch_EdgeCases(t *testing.T) {
	rows := day("10:00", 4)

	if got, err := Search(nil, sel, 30); err != nil || got != nil {
		t.Fatalf("no rows: %v, %v", got, err)
	}
	if got, err := Search(rows, sel, 0); err != nil || got != nil {
		t.Fatalf("zero duration: %v, %v", got, err)
	}
	if got, err := Search(rows, sel, 120); err != nil || got != nil {
		t.Fatalf("block larger than day: %v, %v", got, err)
	}
	if _, err := Search(rows, sel, 40); !errors.Is(err, ErrUnsupportedDuration) {
		t.Fatalf("expected ErrUnsupportedDuration, got %v", err)
	}
	other := sel
	other.Date = "2025-09-02"
	if got, _ := Search(rows, other, 30); len(got) != 0 {
		t.Fatalf("other date must not match, got %v", got)
	}

	full := day("10:00", 4)
	for i := range full {
		full[i].Status = StatusBooked
	}
	if got, _ := Search(full, sel, 15); len(got) != 0 {
		t.Fatalf("fully booked day, got %v", got)
	}
}

func TestSearch_GranularityFromData(t *testing.T) {
	rows := []Slot{
		{Doctor: sel.Doctor, Location: sel.Location, Date: sel.Date, Start: MustClock("09:00"), End: MustClock("09:20"), Status: StatusAvailable},
		{Doctor: sel.Doctor, Location: sel.Location, Date: sel.Date, Start: MustClock("09:20"), End: MustClock("09:40"), Status: StatusAvailable},
		{Doctor: sel.Doctor, Location: sel.Location, Date: sel.Date, Start: MustClock("09:40"), End: MustClock("10:00"), Status: StatusAvailable},
	}
	if g := Granularity(rows, sel); g != 20 {
		t.Fatalf("expected granularity 20, got %d", g)
	}
	got, err := Search(rows, sel, 40)
	if err != nil || len(got) != 2 {
		t.Fatalf("expected 2 forty-minute windows, got %v, %v", got, err)
	}
	if _, err := Search(rows, sel, 30); !errors.Is(err, ErrUnsupportedDuration) {
		t.Fatalf("expected ErrUnsupportedDuration, got %v", err)
	}
}

func TestSearch_MalformedRowsDegrade(t *testing.T) {
	rows := day("10:00", 4)
	// Overlap: 10:10-10:25 sits across two rows.
	rows = append(rows, Slot{Doctor: sel.Doctor, Location: sel.Location, Date: sel.Date, Start: MustClock("10:10"), End: MustClock("10:25"), Status: StatusAvailable})
	got, err := Search(rows, sel, 30)
	if err != nil {
		t.Fatal(err)
	}
	for _, w := range got {
		if w.Minutes() != 30 {
			t.Fatalf("wrong-length window %s", w)
		}
	}
}

func TestReserve_ScenarioThenSearch(t *testing.T) {
	rows := day("10:00", 12)
	got, _ := Search(rows, sel, 60)
	if got[0] != win("10:00", "11:00") {
		t.Fatalf("first candidate = %s", got[0])
	}

	booked, err := Reserve(rows, sel, got[0], "A1", ReserveOptions{})
	if err != nil {
		t.Fatal(err)
	}
	after, _ := Search(booked, sel, 60)
	for _, w := range after {
		if w.Start < MustClock("11:00") {
			t.Fatalf("window %s overlaps reservation", w)
		}
	}
	if after[0].Start != MustClock("11:00") {
		t.Fatalf("expected next candidate at 11:00, got %s", after[0])
	}
}

func TestReserve_NoPartialReservation(t *testing.T) {
	rows := day("10:00", 12)
	w := win("10:30", "11:15")
	out, err := Reserve(rows, sel, w, "A7", ReserveOptions{})
	if err != nil {
		t.Fatal(err)
	}
	for i, r := range out {
		inside := !(r.End <= w.Start || r.Start >= w.End)
		if inside && (r.Status != StatusBooked || r.AppointmentRef != "A7") {
			t.Fatalf("row %d %s-%s not booked", i, r.Start, r.End)
		}
		if !inside && r != rows[i] {
			t.Fatalf("row %d outside window changed", i)
		}
	}
	for _, r := range rows {
		if !r.Available() {
			t.Fatal("input slice mutated")
		}
	}
}

func TestReserve_ConflictLeavesRowsUntouched(t *testing.T) {
	rows := day("10:00", 12)
	book(rows, "10:30", "A0")

	_, err := Reserve(rows, sel, win("10:00", "11:00"), "A1", ReserveOptions{})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if rows[0].Available() != true || rows[2].AppointmentRef != "A0" {
		t.Fatal("rows changed after conflict")
	}
}

func TestReserve_OverwriteFlag(t *testing.T) {
	rows := day("10:00", 12)
	book(rows, "10:30", "A0")

	out, err := Reserve(rows, sel, win("10:00", "11:00"), "A1", ReserveOptions{AllowOverwrite: true})
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range out[:4] {
		if r.AppointmentRef != "A1" || r.Status != StatusBooked {
			t.Fatalf("expected overwrite, got %+v", r)
		}
	}
}

func TestReserve_Validation(t *testing.T) {
	rows := day("10:00", 4)
	if _, err := Reserve(rows, sel, win("10:00", "10:30"), "", ReserveOptions{}); !errors.Is(err, ErrMissingAppointmentID) {
		t.Fatalf("expected ErrMissingAppointmentID, got %v", err)
	}
	if _, err := Reserve(rows, sel, win("10:30", "10:30"), "A1", ReserveOptions{}); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
	if _, err := Reserve(rows, sel, win("15:00", "15:30"), "A1", ReserveOptions{}); !errors.Is(err, ErrWindowNotCovered) {
		t.Fatalf("expected ErrWindowNotCovered, got %v", err)
	}
	if _, err := Reserve(rows, sel, win("10:45", "11:15"), "A1", ReserveOptions{}); !errors.Is(err, ErrWindowNotCovered) {
		t.Fatalf("expected ErrWindowNotCovered past the end of the day, got %v", err)
	}
}

func TestReserve_SameAppointmentIsIdempotent(t *testing.T) {
	rows := day("10:00", 4)
	once, err := Reserve(rows, sel, win("10:00", "10:30"), "A1", ReserveOptions{})
	if err != nil {
		t.Fatal(err)
	}
	twice, err := Reserve(once, sel, win("10:00", "10:30"), "A1", ReserveOptions{})
	if err != nil {
		t.Fatalf("re-reserving for the same appointment: %v", err)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Fatal("second reserve changed rows")
	}
}

func TestRelease(t *testing.T) {
	rows := day("10:00", 4)
	booked, _ := Reserve(rows, sel, win("10:00", "10:30"), "A1", ReserveOptions{})
	if !reflect.DeepEqual(Release(booked, sel, "A1"), rows) {
		t.Fatal("release should restore availability")
	}
}

func TestSelector(t *testing.T) {
	if err := (Selector{Doctor: "D001", Location: "Downtown", Date: "2025-13-01"}).Validate(); !errors.Is(err, ErrInvalidSelector) {
		t.Fatalf("expected ErrInvalidSelector, got %v", err)
	}
	byID := Selector{Doctor: "D001", Location: sel.Location, Date: sel.Date}
	if !byID.Matches(day("10:00", 1)[0]) {
		t.Fatal("selector by doctor id should match")
	}
	if sel.Key() != "Dr. Chen|Downtown|2025-09-01" {
		t.Fatalf("unexpected key %q", sel.Key())
	}
}

func TestCanonicalSelector(t *testing.T) {
	rows := day("10:00", 2)
	byName := Canonical(sel, rows)
	byID := Canonical(Selector{Doctor: "D001", Location: sel.Location, Date: sel.Date}, rows)
	if byName.Key() != byID.Key() || byName.Doctor != "D001" {
		t.Fatalf("aliases should share a key, got %q and %q", byName.Key(), byID.Key())
	}

	noID := day("10:00", 1)
	noID[0].DoctorID = ""
	if got := Canonical(sel, noID); got != sel {
		t.Fatalf("rows without an id should leave the selector alone, got %+v", got)
	}
	if got := Canonical(Selector{Doctor: "Dr. Nobody", Location: sel.Location, Date: sel.Date}, rows); got.Doctor != "Dr. Nobody" {
		t.Fatalf("unknown doctor should stay unresolved, got %+v", got)
	}
}

func containsWindow(ws []Window, w Window) bool {
	for _, x := range ws {
		if x == w {
			return true
		}
	}
	return false
}
