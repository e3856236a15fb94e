package seed

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/slots"
)

func TestScheduleShape(t *testing.T) {
	start := time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC)
	rows := Schedule(start)

	// 12 slots per session, two sessions per day.
	if want := len(Doctors) * Days * 24; len(rows) != want {
		t.Fatalf("expected %d slots, got %d", want, len(rows))
	}
	first := rows[0]
	if first.DoctorID != "D001" || first.Date != "2025-09-10" || first.Start.String() != "10:00" || first.End.String() != "10:15" {
		t.Fatalf("unexpected first slot: %+v", first)
	}
	for _, r := range rows {
		if !r.Available() {
			t.Fatalf("seeded slot not available: %+v", r)
		}
		if r.Start >= slots.MustClock("13:00") && r.Start < slots.MustClock("14:00") {
			t.Fatalf("slot inside lunch break: %+v", r)
		}
		if r.End > slots.MustClock("17:00") {
			t.Fatalf("slot after closing: %+v", r)
		}
	}
	last := rows[len(rows)-1]
	if last.DoctorID != "D003" || last.Date != "2025-10-09" || last.Start.String() != "16:45" {
		t.Fatalf("unexpected last slot: %+v", last)
	}
}

func TestSearchOnSeededDay(t *testing.T) {
	rows := Schedule(time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC))
	sel := slots.Selector{Doctor: "Dr. Meera Shah", Location: "Koramangala", Date: "2025-09-10"}

	windows, err := slots.Search(rows, sel, 60)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(windows) != slots.MaxCandidates {
		t.Fatalf("expected %d windows, got %d", slots.MaxCandidates, len(windows))
	}
	if windows[0].String() != "10:00-11:00" || windows[8].String() != "12:00-13:00" || windows[9].String() != "14:00-15:00" {
		t.Fatalf("unexpected windows %v", windows)
	}
}

func TestPatientListDeterministic(t *testing.T) {
	today := time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC)
	a := PatientList(DefaultSeed, today)
	b := PatientList(DefaultSeed, today)
	if len(a) != Patients {
		t.Fatalf("expected %d patients, got %d", Patients, len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("patient %d differs between runs: %+v vs %+v", i, a[i], b[i])
		}
	}
	if a[0].ID != "P001" || a[49].ID != "P050" {
		t.Fatalf("unexpected ids %s..%s", a[0].ID, a[49].ID)
	}
	for _, p := range a {
		if len(p.Phone) != 10 || p.Phone[0] != '9' {
			t.Fatalf("bad phone %q", p.Phone)
		}
		if len(p.Insurance.MemberID) != 10 || len(p.Insurance.GroupID) != 6 {
			t.Fatalf("bad insurance ids %+v", p.Insurance)
		}
		if p.Returning != (p.LastVisitDate != "") {
			t.Fatalf("returning flag out of sync: %+v", p)
		}
		if _, err := time.Parse(time.DateOnly, p.DOB); err != nil {
			t.Fatalf("bad dob %q", p.DOB)
		}
	}
}
