package patients

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
)

var Header = []string{
	"patient_id", "first_name", "last_name", "dob", "email", "phone", "preferred_doctor", "location",
	"insurance_carrier", "insurance_member_id", "insurance_group_id", "last_visit_date", "is_returning",
}

// CSVRepository reads patients.csv on every lookup.
type CSVRepository struct {
	path string
}

func NewCSVRepository(path string) *CSVRepository {
	return &CSVRepository{path: path}
}

func (r *CSVRepository) All(context.Context) ([]model.Patient, error) {
	f, err := os.Open(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

func Read(r io.Reader) ([]model.Patient, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read patients header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}

	var out []model.Patient
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read patients: %w", err)
		}
		get := func(col string) string {
			if i, ok := idx[col]; ok && i < len(rec) {
				return rec[i]
			}
			return ""
		}
		out = append(out, model.Patient{
			ID:              get("patient_id"),
			FirstName:       get("first_name"),
			LastName:        get("last_name"),
			DOB:             get("dob"),
			Email:           get("email"),
			Phone:           get("phone"),
			PreferredDoctor: get("preferred_doctor"),
			Location:        get("location"),
			Insurance: model.Insurance{
				Carrier:  get("insurance_carrier"),
				MemberID: get("insurance_member_id"),
				GroupID:  get("insurance_group_id"),
			},
			LastVisitDate: get("last_visit_date"),
			Returning:     get("is_returning") == "Y",
		})
	}
}

func Write(w io.Writer, patients []model.Patient) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, p := range patients {
		returning := "N"
		if p.Returning {
			returning = "Y"
		}
		if err := cw.Write([]string{
			p.ID, p.FirstName, p.LastName, p.DOB, p.Email, p.Phone, p.PreferredDoctor, p.Location,
			p.Insurance.Carrier, p.Insurance.MemberID, p.Insurance.GroupID, p.LastVisitDate, returning,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
