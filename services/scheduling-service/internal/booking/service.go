package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicsched/libs/events"
	"github.com/md-rashed-zaman/clinicsched/libs/outbox"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/allocator"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/metrics"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/patients"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/slots"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/store"
)

var (
	ErrNotFound     = errors.New("appointment not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrEmit         = errors.New("event emit failed")
)

type Config struct {
	Policy          DurationPolicy
	ReminderOffsets []time.Duration
	// Location is the clinic time zone that slot dates and times are expressed in.
	Location *time.Location
}

// Service is the booking workflow around the allocator: patient lookup, duration policy,
// reservation, confirmation, forms and reminders.
type Service struct {
	alloc    *allocator.Allocator
	patients patients.Repository
	repo     Repository
	emitter  Emitter
	metrics  *metrics.SchedulingMetrics
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
	newID    func() string
}

func NewService(alloc *allocator.Allocator, patientRepo patients.Repository, repo Repository, emitter Emitter, m *metrics.SchedulingMetrics, logger *slog.Logger, cfg Config) *Service {
	if cfg.Policy.ReturningMinutes <= 0 || cfg.Policy.NewMinutes <= 0 {
		cfg.Policy = DefaultDurationPolicy()
	}
	if len(cfg.ReminderOffsets) == 0 {
		cfg.ReminderOffsets = DefaultReminderOffsets
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Service{
		alloc:    alloc,
		patients: patientRepo,
		repo:     repo,
		emitter:  emitter,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		newID:    NewAppointmentID,
	}
}

// NewAppointmentID returns "A" followed by ten upper-case hex digits.
func NewAppointmentID() string {
	return "A" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

type LookupResult struct {
	Patient         model.Patient `json:"patient"`
	Found           bool          `json:"found"`
	DurationMinutes int           `json:"duration_minutes"`
}

func (s *Service) LookupPatient(ctx context.Context, req patients.LookupRequest) (LookupResult, error) {
	p, found, err := patients.Lookup(ctx, s.patients, req, s.now())
	if err != nil {
		if errors.Is(err, patients.ErrInvalidLookup) {
			return LookupResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return LookupResult{}, err
	}
	return LookupResult{Patient: p, Found: found, DurationMinutes: s.cfg.Policy.For(p)}, nil
}

type WindowsResult struct {
	allocator.SearchResult
	RequestedMinutes int  `json:"requested_minutes"`
	FellBack         bool `json:"fell_back"`
}

// FindWindows searches for duration-minute windows. With fallback set and nothing found it
// retries once with the policy's shorter duration.
func (s *Service) FindWindows(ctx context.Context, sel slots.Selector, duration int, fallback bool) (WindowsResult, error) {
	res, err := s.alloc.Search(ctx, sel, duration)
	if err != nil {
		return WindowsResult{}, err
	}
	out := WindowsResult{SearchResult: res, RequestedMinutes: duration}
	if len(res.Windows) > 0 || !fallback {
		return out, nil
	}
	shorter := s.cfg.Policy.Fallback(duration)
	if shorter == 0 {
		return out, nil
	}
	retry, err := s.alloc.Search(ctx, sel, shorter)
	if err != nil {
		return WindowsResult{}, err
	}
	s.metrics.ObserveFallback()
	s.logger.Info("no window of requested length, fell back",
		"partition", sel.Key(), "requested", duration, "fallback", shorter, "candidates", len(retry.Windows))
	return WindowsResult{SearchResult: retry, RequestedMinutes: duration, FellBack: true}, nil
}

type BookRequest struct {
	Selector  slots.Selector
	Window    slots.Window
	Patient   model.Patient
	Insurance model.Insurance
	Email     string
	Phone     string
	IfVersion string
}

// Book reserves the window and records the appointment. If the appointment cannot be
// recorded the slots are released again.
func (s *Service) Book(ctx context.Context, req BookRequest) (model.Appointment, error) {
	if req.Patient.ID == "" {
		return model.Appointment{}, fmt.Errorf("%w: patient_id is required", ErrInvalidInput)
	}
	id := s.newID()
	p, err := s.alloc.Reserve(ctx, allocator.ReserveRequest{
		Selector:      req.Selector,
		Window:        req.Window,
		AppointmentID: id,
		IfVersion:     req.IfVersion,
	})
	if err != nil {
		return model.Appointment{}, err
	}
	// The caller may name the doctor by id; the appointment keeps the display name.
	doctor := req.Selector.Doctor
	if len(p.Slots) > 0 {
		doctor = p.Slots[0].Doctor
	}

	insurance := req.Insurance
	if insurance == (model.Insurance{}) {
		insurance = req.Patient.Insurance
	}
	appt := model.Appointment{
		ID:          id,
		PatientID:   req.Patient.ID,
		PatientName: req.Patient.FullName(),
		Email:       firstNonEmpty(req.Email, req.Patient.Email),
		Phone:       firstNonEmpty(req.Phone, req.Patient.Phone),
		Doctor:      doctor,
		Location:    req.Selector.Location,
		Date:        req.Selector.Date,
		StartTime:   req.Window.Start,
		EndTime:     req.Window.End,
		Duration:    req.Window.Minutes(),
		Insurance:   insurance,
		Status:      model.StatusReserved,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.Create(ctx, appt); err != nil {
		_ = s.alloc.Release(context.WithoutCancel(ctx), req.Selector, id)
		return model.Appointment{}, fmt.Errorf("record appointment: %w", err)
	}

	evt, err := outbox.NewEvent(events.AggregateAppointment, id, events.TopicAppointmentReserved, appt.Event())
	if err == nil {
		err = s.emitter.Emit(ctx, evt)
	}
	if err != nil {
		// The booking stands; the reserved event is informational.
		s.logger.Warn("reserved event not emitted", "appointment_id", id, "err", err)
	}
	return appt, nil
}

func (s *Service) Get(ctx context.Context, id string) (model.Appointment, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, limit int) ([]model.Appointment, error) {
	return s.repo.List(ctx, limit)
}

func (s *Service) Directory(ctx context.Context) ([]store.Doctor, error) {
	return s.alloc.Directory(ctx)
}

// Confirm marks the appointment confirmed and requests the confirmation email and SMS.
func (s *Service) Confirm(ctx context.Context, id string, contact Contact) (model.Appointment, error) {
	appt, err := s.repo.Confirm(ctx, id, contact, s.now().UTC())
	if err != nil {
		return model.Appointment{}, err
	}
	evt, err := outbox.NewEvent(events.AggregateAppointment, id, events.TopicAppointmentConfirmed, events.AppointmentConfirmed{
		Appointment: appt.Event(),
		ConfirmedAt: appt.ConfirmedAt.Format(time.RFC3339),
	})
	if err != nil {
		return model.Appointment{}, err
	}
	if err := s.emitter.Emit(ctx, evt); err != nil {
		return model.Appointment{}, fmt.Errorf("%w: %v", ErrEmit, err)
	}
	return appt, nil
}

// RequestForms asks for the intake forms to be emailed to the patient.
func (s *Service) RequestForms(ctx context.Context, id string) (model.Appointment, error) {
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if appt.Email == "" {
		return model.Appointment{}, fmt.Errorf("%w: appointment %s has no email", ErrInvalidInput, id)
	}
	evt, err := outbox.NewEvent(events.AggregateAppointment, id, events.TopicFormsRequested, events.FormsRequested{
		AppointmentID: id,
		PatientName:   appt.PatientName,
		Email:         appt.Email,
	})
	if err != nil {
		return model.Appointment{}, err
	}
	if err := s.emitter.Emit(ctx, evt); err != nil {
		return model.Appointment{}, fmt.Errorf("%w: %v", ErrEmit, err)
	}
	return appt, nil
}

// ScheduleReminders plans the reminder series and hands each one to the scheduler.
// Scheduling again replaces the stored series.
func (s *Service) ScheduleReminders(ctx context.Context, id string) ([]model.Reminder, error) {
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	startsAt, err := appt.StartsAt(s.cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	reminders := PlanReminders(appt, startsAt, s.cfg.ReminderOffsets)
	if err := s.repo.SaveReminders(ctx, reminders); err != nil {
		return nil, fmt.Errorf("save reminders: %w", err)
	}

	evts := make([]outbox.Event, 0, len(reminders))
	for _, rem := range reminders {
		evt, err := outbox.NewEvent(events.AggregateReminder, appt.ID, events.TopicReminderRequested, events.ReminderRequested{
			AppointmentID: appt.ID,
			Sequence:      rem.Sequence,
			Channel:       rem.Channel,
			Email:         appt.Email,
			Phone:         appt.Phone,
			RemindAt:      rem.SendAt.UTC().Format(time.RFC3339),
			Message:       rem.Message,
		})
		if err != nil {
			return nil, err
		}
		evts = append(evts, evt)
	}
	if err := s.emitter.Emit(ctx, evts...); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmit, err)
	}
	return reminders, nil
}

// ReportData returns every appointment and planned reminder for the admin export.
func (s *Service) ReportData(ctx context.Context) ([]model.Appointment, []model.Reminder, error) {
	appts, err := s.repo.List(ctx, 0)
	if err != nil {
		return nil, nil, err
	}
	reminders, err := s.repo.Reminders(ctx)
	if err != nil {
		return nil, nil, err
	}
	return appts, reminders, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
