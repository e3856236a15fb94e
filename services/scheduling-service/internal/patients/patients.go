package patients

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
)

var ErrInvalidLookup = errors.New("name and date of birth are required")

// Repository finds registered patients.
type Repository interface {
	All(ctx context.Context) ([]model.Patient, error)
}

type LookupRequest struct {
	FullName string
	DOB      string
	Doctor   string
	Location string
}

// Lookup matches the first and last name tokens case-insensitively plus the exact date of
// birth. A miss yields a transient new-patient record that is never written back.
func Lookup(ctx context.Context, repo Repository, req LookupRequest, now time.Time) (model.Patient, bool, error) {
	tokens := strings.Fields(req.FullName)
	dob := strings.TrimSpace(req.DOB)
	if len(tokens) == 0 || dob == "" {
		return model.Patient{}, false, ErrInvalidLookup
	}
	if _, err := time.Parse(time.DateOnly, dob); err != nil {
		return model.Patient{}, false, fmt.Errorf("%w: bad dob %q", ErrInvalidLookup, dob)
	}
	first := strings.ToLower(tokens[0])
	last := strings.ToLower(tokens[len(tokens)-1])

	all, err := repo.All(ctx)
	if err != nil {
		return model.Patient{}, false, fmt.Errorf("load patients: %w", err)
	}
	for _, p := range all {
		if strings.ToLower(p.FirstName) == first && strings.ToLower(p.LastName) == last && p.DOB == dob {
			return p, true, nil
		}
	}

	return model.Patient{
		ID:              fmt.Sprintf("TMP-%d", now.Unix()),
		FirstName:       titleCase(first),
		LastName:        titleCase(last),
		DOB:             dob,
		PreferredDoctor: req.Doctor,
		Location:        req.Location,
		Returning:       false,
	}, false, nil
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

type MemoryRepository struct {
	patients []model.Patient
}

func NewMemoryRepository(patients ...model.Patient) *MemoryRepository {
	return &MemoryRepository{patients: patients}
}

func (r *MemoryRepository) All(context.Context) ([]model.Patient, error) {
	return r.patients, nil
}
