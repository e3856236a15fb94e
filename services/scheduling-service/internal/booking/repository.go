package booking

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
)

// Repository stores appointments and their planned reminders.
type Repository interface {
	Create(ctx context.Context, appt model.Appointment) error
	Get(ctx context.Context, id string) (model.Appointment, error)
	List(ctx context.Context, limit int) ([]model.Appointment, error)
	Confirm(ctx context.Context, id string, contact Contact, at time.Time) (model.Appointment, error)
	SaveReminders(ctx context.Context, reminders []model.Reminder) error
	Reminders(ctx context.Context) ([]model.Reminder, error)
}

// Contact overrides the email and phone recorded at booking when non-empty.
type Contact struct {
	Email string
	Phone string
}

type MemoryRepository struct {
	mu        sync.RWMutex
	appts     map[string]model.Appointment
	reminders map[string][]model.Reminder
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		appts:     make(map[string]model.Appointment),
		reminders: make(map[string][]model.Reminder),
	}
}

func (r *MemoryRepository) Create(_ context.Context, appt model.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.appts[appt.ID]; ok {
		return fmt.Errorf("%w: appointment %s exists", ErrInvalidInput, appt.ID)
	}
	r.appts[appt.ID] = appt
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (model.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	appt, ok := r.appts[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	return appt, nil
}

func (r *MemoryRepository) List(_ context.Context, limit int) ([]model.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Appointment, 0, len(r.appts))
	for _, a := range r.appts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) Confirm(_ context.Context, id string, contact Contact, at time.Time) (model.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	appt, ok := r.appts[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	if contact.Email != "" {
		appt.Email = contact.Email
	}
	if contact.Phone != "" {
		appt.Phone = contact.Phone
	}
	if appt.Status != model.StatusConfirmed {
		appt.Status = model.StatusConfirmed
		appt.ConfirmedAt = &at
	}
	r.appts[id] = appt
	return appt, nil
}

func (r *MemoryRepository) SaveReminders(_ context.Context, reminders []model.Reminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rem := range reminders {
		list := slices.DeleteFunc(r.reminders[rem.AppointmentID], func(x model.Reminder) bool {
			return x.Sequence == rem.Sequence
		})
		r.reminders[rem.AppointmentID] = append(list, rem)
	}
	return nil
}

func (r *MemoryRepository) Reminders(context.Context) ([]model.Reminder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.Reminder
	for _, list := range r.reminders {
		out = append(out, list...)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SendAt.Equal(out[j].SendAt) {
			return out[i].SendAt.Before(out[j].SendAt)
		}
		return out[i].AppointmentID < out[j].AppointmentID
	})
	return out, nil
}
