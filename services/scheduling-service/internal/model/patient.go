package model

import "strings"

type Patient struct {
	ID              string    `json:"patient_id"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	DOB             string    `json:"dob"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone"`
	PreferredDoctor string    `json:"preferred_doctor"`
	Location        string    `json:"location"`
	Insurance       Insurance `json:"insurance"`
	LastVisitDate   string    `json:"last_visit_date,omitempty"`
	Returning       bool      `json:"is_returning"`
}

func (p Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}
