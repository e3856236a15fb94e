// Package messages renders the patient-facing texts.
package messages

import (
	"fmt"

	"github.com/md-rashed-zaman/clinicsched/libs/events"
)

const (
	KindConfirmation = "confirmation"
	KindForms        = "forms"
	KindReminder     = "reminder"
)

type Email struct {
	Subject string
	Body    string
}

func Confirmation(a events.Appointment) Email {
	return Email{
		Subject: "Appointment Confirmation — " + a.AppointmentID,
		Body: fmt.Sprintf("Dear %s,\n\nYour appointment is confirmed with %s at %s on %s from %s to %s.\n\nThank you.",
			a.PatientName, a.Doctor, a.Location, a.Date, a.StartTime, a.EndTime),
	}
}

func ConfirmationSMS(a events.Appointment) string {
	return fmt.Sprintf("Appt %s on %s %s confirmed.", a.AppointmentID, a.Date, a.StartTime)
}

func Forms(attached bool) Email {
	if !attached {
		return Email{Subject: "Patient Intake Forms", Body: "No forms attached (placeholder)."}
	}
	return Email{Subject: "Patient Intake Forms", Body: "Please fill the attached forms."}
}

func Reminder(appointmentID, message string) Email {
	return Email{Subject: "Reminder — " + appointmentID, Body: message}
}
