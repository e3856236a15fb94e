// Package seed generates the demo clinic dataset: three doctors with a month of 15-minute
// slots and fifty patients. Output is deterministic for a given seed and start date.
package seed

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/slots"
)

const DefaultSeed = 42

type Doctor struct {
	ID        string
	Name      string
	Specialty string
	Location  string
}

var Doctors = []Doctor{
	{ID: "D001", Name: "Dr. Meera Shah", Specialty: "Cardiology", Location: "Koramangala"},
	{ID: "D002", Name: "Dr. Arjun Patel", Specialty: "General Medicine", Location: "Indiranagar"},
	{ID: "D003", Name: "Dr. Priya Rao", Specialty: "Dermatology", Location: "Whitefield"},
}

var (
	firstNames = []string{"Aarav", "Vivaan", "Aditya", "Vihaan", "Arjun", "Sai", "Reyansh", "Muhammad", "Ishaan", "Kabir",
		"Anaya", "Aadhya", "Aarohi", "Diya", "Myra", "Aanya", "Anika", "Navya", "Sara", "Pari"}
	lastNames = []string{"Sharma", "Verma", "Patel", "Mehta", "Reddy", "Gupta", "Singh", "Nair", "Iyer", "Dutta", "Ghosh", "Khan", "Kapoor"}
	insurers  = []string{"Aetna", "Cigna", "United Healthcare", "Blue Cross", "Care Health", "Niva Bupa", "HDFC Ergo"}
	locations = []string{"Koramangala", "Indiranagar", "Whitefield"}
	domains   = []string{"example.com", "mail.com", "inbox.com"}
)

// Clinic sessions, half-open.
var sessions = [][2]string{{"10:00", "13:00"}, {"14:00", "17:00"}}

const (
	SlotMinutes = 15
	Days        = 30
	Patients    = 50
)

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Schedule returns every doctor's slots for Days consecutive days starting at start,
// all available.
func Schedule(start time.Time) []slots.Slot {
	var out []slots.Slot
	for _, d := range Doctors {
		for i := 0; i < Days; i++ {
			date := start.AddDate(0, 0, i).Format(time.DateOnly)
			for _, s := range sessions {
				from, to := slots.MustClock(s[0]), slots.MustClock(s[1])
				for t := from; t < to; t = t.Add(SlotMinutes) {
					out = append(out, slots.Slot{
						DoctorID: d.ID,
						Doctor:   d.Name,
						Location: d.Location,
						Date:     date,
						Start:    t,
						End:      t.Add(SlotMinutes),
						Status:   slots.StatusAvailable,
					})
				}
			}
		}
	}
	return out
}

// PatientList draws Patients records from rng. Roughly two thirds are returning patients
// with a last visit between one month and two years before today.
func PatientList(seed int64, today time.Time) []model.Patient {
	rng := rand.New(rand.NewSource(seed))
	out := make([]model.Patient, 0, Patients)
	for i := 1; i <= Patients; i++ {
		first := pick(rng, firstNames)
		last := pick(rng, lastNames)
		dob := time.Date(1955+rng.Intn(2010-1955+1), time.Month(1+rng.Intn(12)), 1+rng.Intn(28), 0, 0, 0, 0, time.UTC)
		p := model.Patient{
			ID:              fmt.Sprintf("P%03d", i),
			FirstName:       first,
			LastName:        last,
			DOB:             dob.Format(time.DateOnly),
			Email:           strings.ToLower(first) + "." + strings.ToLower(last) + "@" + pick(rng, domains),
			Phone:           "9" + digits(rng, 9),
			PreferredDoctor: Doctors[rng.Intn(len(Doctors))].Name,
			Location:        pick(rng, locations),
		}
		p.Insurance = model.Insurance{
			Carrier:  pick(rng, insurers),
			MemberID: token(rng, 10),
			GroupID:  token(rng, 6),
		}
		if rng.Float64() < 0.65 {
			p.LastVisitDate = today.AddDate(0, 0, -(30 + rng.Intn(730-30+1))).Format(time.DateOnly)
			p.Returning = true
		}
		out = append(out, p)
	}
	return out
}

func pick(rng *rand.Rand, from []string) string {
	return from[rng.Intn(len(from))]
}

func digits(rng *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('0' + rng.Intn(10))
	}
	return string(b)
}

func token(rng *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = idAlphabet[rng.Intn(len(idAlphabet))]
	}
	return string(b)
}
