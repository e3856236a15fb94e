package messages

import (
	"testing"

	"github.com/md-rashed-zaman/clinicsched/libs/events"
)

func TestConfirmation(t *testing.T) {
	a := events.Appointment{
		AppointmentID: "A1B2C3D4E5F", PatientName: "Sara Iyer", Doctor: "Dr. Meera Shah",
		Location: "Koramangala", Date: "2025-09-10", StartTime: "10:00", EndTime: "10:30",
	}
	got := Confirmation(a)
	if got.Subject != "Appointment Confirmation — A1B2C3D4E5F" {
		t.Fatalf("subject = %q", got.Subject)
	}
	want := "Dear Sara Iyer,\n\nYour appointment is confirmed with Dr. Meera Shah at Koramangala on 2025-09-10 from 10:00 to 10:30.\n\nThank you."
	if got.Body != want {
		t.Fatalf("body = %q", got.Body)
	}
	if sms := ConfirmationSMS(a); sms != "Appt A1B2C3D4E5F on 2025-09-10 10:00 confirmed." {
		t.Fatalf("sms = %q", sms)
	}
}

func TestFormsAndReminder(t *testing.T) {
	if Forms(false).Body != "No forms attached (placeholder)." {
		t.Fatal("placeholder body expected")
	}
	if Forms(true).Body != "Please fill the attached forms." {
		t.Fatal("attached body expected")
	}
	r := Reminder("A1", "Reminder: Upcoming visit.")
	if r.Subject != "Reminder — A1" || r.Body != "Reminder: Upcoming visit." {
		t.Fatalf("reminder = %+v", r)
	}
}
