package jobs

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicsched/libs/events"
	otelx "github.com/md-rashed-zaman/clinicsched/libs/otel"
)

const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

// Job is one reminder waiting in scheduler_jobs for its send time.
type Job struct {
	ID             int64
	IdempotencyKey string
	AppointmentID  string
	Sequence       int
	Channel        string
	Email          string
	Phone          string
	Message        string
	RemindAt       time.Time
	Traceparent    string
	Tracestate     string
	Attempts       int
	MaxAttempts    int
	NextRunAt      time.Time
}

// KeyFor identifies a reminder by appointment, sequence and channel so a re-planned series
// overwrites the pending jobs instead of adding new ones.
func KeyFor(appointmentID string, sequence int, channel string) string {
	return strings.Join([]string{appointmentID, strconv.Itoa(sequence), channel}, "|")
}

func (j Job) Due() events.ReminderDue {
	return events.ReminderDue{
		JobID:         strconv.FormatInt(j.ID, 10),
		AppointmentID: j.AppointmentID,
		Sequence:      j.Sequence,
		Channel:       j.Channel,
		Email:         j.Email,
		Phone:         j.Phone,
		RemindAt:      j.RemindAt.UTC().Format(time.RFC3339),
		Message:       j.Message,
	}
}

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Insert stores job, or refreshes the pending job with the same idempotency key. Jobs
// already sent are left alone.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, job Job) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := tx.Exec(ctx, `
		INSERT INTO scheduler_jobs (idempotency_key, appointment_id, sequence, channel, email, phone, message, remind_at, next_run_at, max_attempts, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8, $9, $10, $11)
		ON CONFLICT (idempotency_key) DO UPDATE
		SET email = EXCLUDED.email,
		    phone = EXCLUDED.phone,
		    message = EXCLUDED.message,
		    remind_at = EXCLUDED.remind_at,
		    next_run_at = EXCLUDED.next_run_at,
		    attempts = 0,
		    updated_at = now()
		WHERE scheduler_jobs.status = 'pending'
	`, job.IdempotencyKey, job.AppointmentID, job.Sequence, job.Channel, job.Email, job.Phone, job.Message,
		job.RemindAt, job.MaxAttempts, traceparent, tracestate)
	return err
}

func (r *Repository) FetchDue(ctx context.Context, tx pgx.Tx, limit int) ([]Job, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, idempotency_key, appointment_id, sequence, channel, email, phone, message, remind_at, traceparent, tracestate, attempts, max_attempts, next_run_at
		FROM scheduler_jobs
		WHERE status = 'pending' AND next_run_at <= now()
		ORDER BY next_run_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.IdempotencyKey, &j.AppointmentID, &j.Sequence, &j.Channel, &j.Email, &j.Phone,
			&j.Message, &j.RemindAt, &j.Traceparent, &j.Tracestate, &j.Attempts, &j.MaxAttempts, &j.NextRunAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return jobs, nil
}

func (r *Repository) MarkProcessed(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE scheduler_jobs
		SET status = 'processed', updated_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}

func (r *Repository) MarkFailed(ctx context.Context, tx pgx.Tx, id int64, attempts int, maxAttempts int, nextRunAt time.Time, lastError string) error {
	status := StatusPending
	if attempts >= maxAttempts {
		status = StatusFailed
	}
	_, err := tx.Exec(ctx, `
		UPDATE scheduler_jobs
		SET attempts = $2,
		    status = $3,
		    next_run_at = $4,
		    last_error = $5,
		    updated_at = now()
		WHERE id = $1
	`, id, attempts, status, nextRunAt, lastError)
	return err
}
