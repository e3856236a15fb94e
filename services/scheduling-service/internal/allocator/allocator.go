package allocator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	otelx "github.com/md-rashed-zaman/clinicsched/libs/otel"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/metrics"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/slots"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type Options struct {
	// AllowOverwrite reproduces the legacy behaviour of silently re-booking taken slots.
	AllowOverwrite bool
	LockTimeout    time.Duration
}

// Allocator runs search and reserve against a Store. Writers of one partition are serialized
// by the Locker and the save is still version-checked, so a writer that bypasses the lock
// cannot be clobbered either.
type Allocator struct {
	store   store.Store
	locker  store.Locker
	logger  *slog.Logger
	metrics *metrics.SchedulingMetrics
	opts    Options
}

func New(st store.Store, locker store.Locker, logger *slog.Logger, m *metrics.SchedulingMetrics, opts Options) *Allocator {
	if locker == nil {
		locker = store.NewLocalLocker()
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 3 * time.Second
	}
	return &Allocator{store: st, locker: locker, logger: logger, metrics: m, opts: opts}
}

type SearchResult struct {
	Selector    slots.Selector `json:"selector"`
	Duration    int            `json:"duration_minutes"`
	Granularity int            `json:"granularity_minutes"`
	Windows     []slots.Window `json:"windows"`
	Version     string         `json:"version"`
}

func (a *Allocator) Search(ctx context.Context, sel slots.Selector, duration int) (SearchResult, error) {
	ctx, span := otelx.Tracer("allocator").Start(ctx, "allocator.search")
	defer span.End()
	span.SetAttributes(attribute.String("slots.partition", sel.Key()), attribute.Int("slots.duration", duration))

	if err := sel.Validate(); err != nil {
		a.metrics.ObserveSearch("invalid")
		return SearchResult{}, err
	}
	p, err := a.store.Load(ctx, sel)
	if err != nil {
		a.metrics.ObserveSearch("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return SearchResult{}, fmt.Errorf("load partition: %w", err)
	}
	windows, err := slots.Search(p.Slots, sel, duration)
	if err != nil {
		a.metrics.ObserveSearch("invalid")
		return SearchResult{}, err
	}
	if len(windows) == 0 {
		a.metrics.ObserveSearch("empty")
	} else {
		a.metrics.ObserveSearch("found")
	}
	span.SetAttributes(attribute.Int("slots.candidates", len(windows)))

	return SearchResult{
		Selector:    sel,
		Duration:    duration,
		Granularity: slots.Granularity(p.Slots, sel),
		Windows:     windows,
		Version:     p.Version,
	}, nil
}

type ReserveRequest struct {
	Selector      slots.Selector
	Window        slots.Window
	AppointmentID string
	// IfVersion, when set, rejects the reservation unless the partition is still at the
	// version the caller searched against.
	IfVersion string
}

func (a *Allocator) Reserve(ctx context.Context, req ReserveRequest) (store.Partition, error) {
	ctx, span := otelx.Tracer("allocator").Start(ctx, "allocator.reserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("slots.partition", req.Selector.Key()),
		attribute.String("slots.window", req.Window.String()),
		attribute.String("appointment.id", req.AppointmentID),
	)

	start := time.Now()
	p, err := a.reserve(ctx, req)
	outcome := outcomeOf(err)
	a.metrics.ObserveReservation(outcome, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		a.logger.Warn("reservation rejected",
			"partition", req.Selector.Key(),
			"window", req.Window.String(),
			"appointment_id", req.AppointmentID,
			"outcome", outcome,
			"err", err,
		)
		return store.Partition{}, err
	}
	a.logger.Info("slots reserved",
		"partition", req.Selector.Key(),
		"window", req.Window.String(),
		"appointment_id", req.AppointmentID,
		"version", p.Version,
	)
	return p, nil
}

func (a *Allocator) reserve(ctx context.Context, req ReserveRequest) (store.Partition, error) {
	if err := req.Selector.Validate(); err != nil {
		return store.Partition{}, err
	}
	return a.withPartition(ctx, req.Selector, func(p store.Partition) ([]slots.Slot, error) {
		if req.IfVersion != "" && req.IfVersion != p.Version {
			return nil, fmt.Errorf("%w: searched at version %s, now %s", slots.ErrConflict, req.IfVersion, p.Version)
		}
		return slots.Reserve(p.Slots, req.Selector, req.Window, req.AppointmentID, slots.ReserveOptions{AllowOverwrite: a.opts.AllowOverwrite})
	})
}

// Release frees the slots held by appointmentID, used to compensate a reservation whose
// appointment could not be recorded.
func (a *Allocator) Release(ctx context.Context, sel slots.Selector, appointmentID string) error {
	_, err := a.withPartition(ctx, sel, func(p store.Partition) ([]slots.Slot, error) {
		return slots.Release(p.Slots, sel, appointmentID), nil
	})
	if err != nil {
		a.logger.Error("release failed", "partition", sel.Key(), "appointment_id", appointmentID, "err", err)
	}
	return err
}

func (a *Allocator) Directory(ctx context.Context) ([]store.Doctor, error) {
	return a.store.Directory(ctx)
}

// canonical resolves the doctor of sel to the id stored on its rows before the selector is
// used as a lock key.
func (a *Allocator) canonical(ctx context.Context, sel slots.Selector) (slots.Selector, error) {
	p, err := a.store.Load(ctx, sel)
	if err != nil {
		return sel, fmt.Errorf("load partition: %w", err)
	}
	return slots.Canonical(sel, p.Slots), nil
}

func (a *Allocator) withPartition(ctx context.Context, sel slots.Selector, mutate func(store.Partition) ([]slots.Slot, error)) (store.Partition, error) {
	sel, err := a.canonical(ctx, sel)
	if err != nil {
		return store.Partition{}, err
	}
	lockCtx, cancel := context.WithTimeout(ctx, a.opts.LockTimeout)
	defer cancel()
	unlock, err := a.locker.Lock(lockCtx, sel.Key())
	if err != nil {
		return store.Partition{}, err
	}
	defer unlock()

	p, err := a.store.Load(ctx, sel)
	if err != nil {
		return store.Partition{}, fmt.Errorf("load partition: %w", err)
	}
	rows, err := mutate(p)
	if err != nil {
		return store.Partition{}, err
	}
	p.Slots = rows
	saved, err := a.store.Save(ctx, p)
	if err != nil {
		if errors.Is(err, slots.ErrConflict) {
			return store.Partition{}, err
		}
		return store.Partition{}, fmt.Errorf("save partition: %w", err)
	}
	return saved, nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "booked"
	case errors.Is(err, slots.ErrConflict), errors.Is(err, store.ErrLockTimeout):
		return "conflict"
	case errors.Is(err, slots.ErrWindowNotCovered), errors.Is(err, slots.ErrInvalidWindow),
		errors.Is(err, slots.ErrMissingAppointmentID), errors.Is(err, slots.ErrInvalidSelector):
		return "invalid"
	default:
		return "error"
	}
}
