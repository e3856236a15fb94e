package booking

import (
	"time"

	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
)

// DurationPolicy picks the appointment length from the patient type.
type DurationPolicy struct {
	ReturningMinutes int
	NewMinutes       int
}

func DefaultDurationPolicy() DurationPolicy {
	return DurationPolicy{ReturningMinutes: 30, NewMinutes: 60}
}

func (p DurationPolicy) For(patient model.Patient) int {
	if patient.Returning {
		return p.ReturningMinutes
	}
	return p.NewMinutes
}

// Fallback is the shorter duration tried when no window of the requested length exists,
// or 0 when there is nothing shorter to try.
func (p DurationPolicy) Fallback(requested int) int {
	if p.ReturningMinutes > 0 && p.ReturningMinutes < requested {
		return p.ReturningMinutes
	}
	return 0
}

const (
	ReminderChannel = "email+sms"
	reminderText    = "Reminder: Upcoming visit."
	reminderActions = " Reply with (1) Filled forms? (2) Confirm visit? If cancel, share reason."
)

// DefaultReminderOffsets are the lead times before the visit, in send order.
var DefaultReminderOffsets = []time.Duration{72 * time.Hour, 48 * time.Hour, 24 * time.Hour}

// PlanReminders builds one reminder per offset. Every reminder after the first asks the
// patient to act on forms and attendance.
func PlanReminders(appt model.Appointment, startsAt time.Time, offsets []time.Duration) []model.Reminder {
	out := make([]model.Reminder, 0, len(offsets))
	for i, off := range offsets {
		msg := reminderText
		if i > 0 {
			msg += reminderActions
		}
		out = append(out, model.Reminder{
			AppointmentID: appt.ID,
			Sequence:      i + 1,
			SendAt:        startsAt.Add(-off),
			Channel:       ReminderChannel,
			Message:       msg,
		})
	}
	return out
}
