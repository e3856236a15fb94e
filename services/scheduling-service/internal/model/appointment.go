package model

import (
	"time"

	"github.com/md-rashed-zaman/clinicsched/libs/events"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/slots"
)

const (
	StatusReserved  = "reserved"
	StatusConfirmed = "confirmed"
)

type Insurance struct {
	Carrier  string `json:"carrier"`
	MemberID string `json:"member_id"`
	GroupID  string `json:"group_id"`
}

type Appointment struct {
	ID          string      `json:"appointment_id"`
	PatientID   string      `json:"patient_id"`
	PatientName string      `json:"patient_name"`
	Email       string      `json:"email,omitempty"`
	Phone       string      `json:"phone,omitempty"`
	Doctor      string      `json:"doctor"`
	Location    string      `json:"location"`
	Date        string      `json:"date"`
	StartTime   slots.Clock `json:"start_time"`
	EndTime     slots.Clock `json:"end_time"`
	Duration    int         `json:"duration_minutes"`
	Insurance   Insurance   `json:"insurance"`
	Status      string      `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	ConfirmedAt *time.Time  `json:"confirmed_at,omitempty"`
}

func (a Appointment) Selector() slots.Selector {
	return slots.Selector{Doctor: a.Doctor, Location: a.Location, Date: a.Date}
}

// StartsAt is the appointment start as a wall-clock time in loc.
func (a Appointment) StartsAt(loc *time.Location) (time.Time, error) {
	day, err := time.ParseInLocation(time.DateOnly, a.Date, loc)
	if err != nil {
		return time.Time{}, err
	}
	return day.Add(time.Duration(a.StartTime) * time.Minute), nil
}

func (a Appointment) Event() events.Appointment {
	return events.Appointment{
		AppointmentID: a.ID,
		PatientID:     a.PatientID,
		PatientName:   a.PatientName,
		Email:         a.Email,
		Phone:         a.Phone,
		Doctor:        a.Doctor,
		Location:      a.Location,
		Date:          a.Date,
		StartTime:     a.StartTime.String(),
		EndTime:       a.EndTime.String(),
		Duration:      a.Duration,
	}
}

type Reminder struct {
	AppointmentID string    `json:"appointment_id"`
	Sequence      int       `json:"sequence"`
	SendAt        time.Time `json:"send_at"`
	Channel       string    `json:"channel"`
	Message       string    `json:"message"`
}
