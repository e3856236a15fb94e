// Package events holds the Kafka topics and payloads exchanged between clinicsched services.
// Topic names equal the outbox event type.
package events

const (
	TopicAppointmentReserved  = "scheduling.appointment.reserved.v1"
	TopicAppointmentConfirmed = "scheduling.appointment.confirmed.v1"
	TopicFormsRequested       = "scheduling.forms.requested.v1"
	TopicReminderRequested    = "scheduling.reminder.requested.v1"
	TopicReminderDue          = "scheduler.reminder.due.v1"
	TopicReminderDLQ          = "scheduler.reminder.dlq.v1"
	TopicNotificationSent     = "notification.sent.v1"
	TopicNotificationFailed   = "notification.failed.v1"

	AggregateAppointment  = "appointment"
	AggregateReminder     = "reminder"
	AggregateNotification = "notification"
)

// Appointment is the appointment snapshot embedded in scheduling events.
type Appointment struct {
	AppointmentID string `json:"appointment_id"`
	PatientID     string `json:"patient_id"`
	PatientName   string `json:"patient_name"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Doctor        string `json:"doctor"`
	Location      string `json:"location"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Duration      int    `json:"duration_minutes"`
}

type AppointmentConfirmed struct {
	Appointment
	ConfirmedAt string `json:"confirmed_at"`
}

type FormsRequested struct {
	AppointmentID string `json:"appointment_id"`
	PatientName   string `json:"patient_name"`
	Email         string `json:"email"`
}

// ReminderRequested asks the scheduler to deliver Message at RemindAt (RFC3339).
type ReminderRequested struct {
	AppointmentID string `json:"appointment_id"`
	Sequence      int    `json:"sequence"`
	Channel       string `json:"channel"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	RemindAt      string `json:"remind_at"`
	Message       string `json:"message"`
}

type ReminderDue struct {
	JobID         string `json:"job_id"`
	AppointmentID string `json:"appointment_id"`
	Sequence      int    `json:"sequence"`
	Channel       string `json:"channel"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	RemindAt      string `json:"remind_at"`
	Message       string `json:"message"`
}

type ReminderDLQ struct {
	JobID         string `json:"job_id"`
	AppointmentID string `json:"appointment_id"`
	Attempts      int    `json:"attempts"`
	LastError     string `json:"last_error"`
}

type NotificationResult struct {
	NotificationID string `json:"notification_id"`
	AppointmentID  string `json:"appointment_id"`
	Kind           string `json:"kind"`
	Channel        string `json:"channel"`
	Recipient      string `json:"recipient"`
	Status         string `json:"status"`
	Error          string `json:"error,omitempty"`
}
