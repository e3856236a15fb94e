package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicsched/libs/db"
	"github.com/md-rashed-zaman/clinicsched/libs/events"
	"github.com/md-rashed-zaman/clinicsched/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicsched/libs/otel"
	"github.com/md-rashed-zaman/clinicsched/libs/outbox"
	"github.com/segmentio/kafka-go"
)

var errNoRecipient = errors.New("reminder has neither email nor phone")

// Worker publishes due jobs straight to Kafka. Each job keeps a fixed event id, so a
// publish that succeeds but whose commit is lost is deduped by the consumer's inbox.
// Jobs that exhaust their attempts are dead-lettered through the outbox.
type Worker struct {
	pool       db.Querier
	repo       *Repository
	outbox     *outbox.Repository
	writer     outbox.MessageWriter
	logger     *slog.Logger
	metrics    *Metrics
	interval   time.Duration
	batchSize  int
	backoff    time.Duration
	maxBackoff time.Duration
	now        func() time.Time
}

type WorkerConfig struct {
	Interval   time.Duration
	BatchSize  int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

func NewWorker(pool db.Querier, repo *Repository, outboxRepo *outbox.Repository, writer outbox.MessageWriter, logger *slog.Logger, m *Metrics, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 1 * time.Minute
	}
	if cfg.MaxBackoff < cfg.Backoff {
		cfg.MaxBackoff = 30 * cfg.Backoff
	}
	return &Worker{
		pool:       pool,
		repo:       repo,
		outbox:     outboxRepo,
		writer:     writer,
		logger:     logger,
		metrics:    m,
		interval:   cfg.Interval,
		batchSize:  cfg.BatchSize,
		backoff:    cfg.Backoff,
		maxBackoff: cfg.MaxBackoff,
		now:        time.Now,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.ProcessBatch(ctx); err != nil {
				w.logger.Error("scheduler batch failed", "err", err)
			}
		}
	}
}

type failure struct {
	job Job
	err error
}

// ProcessBatch handles one batch of due jobs and returns how many were published.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	jobs, err := w.repo.FetchDue(ctx, tx, w.batchSize)
	if err != nil {
		return 0, err
	}
	if len(jobs) == 0 {
		return 0, tx.Commit(ctx)
	}

	var ids []int64
	var failed []failure
	for _, job := range jobs {
		jobCtx := otelx.ContextWithTraceContext(ctx, job.Traceparent, job.Tracestate)
		if err := w.dispatch(jobCtx, job); err != nil {
			failed = append(failed, failure{job: job, err: err})
			continue
		}
		ids = append(ids, job.ID)
	}

	if err := w.repo.MarkProcessed(ctx, tx, ids); err != nil {
		return 0, err
	}

	dead := 0
	for _, f := range failed {
		jobCtx := otelx.ContextWithTraceContext(ctx, f.job.Traceparent, f.job.Tracestate)
		attempts := f.job.Attempts + 1
		nextRunAt := w.now().UTC().Add(w.backoffFor(attempts))
		if err := w.repo.MarkFailed(ctx, tx, f.job.ID, attempts, f.job.MaxAttempts, nextRunAt, f.err.Error()); err != nil {
			return 0, err
		}
		w.logger.Warn("reminder dispatch failed",
			"job_id", f.job.ID, "appointment_id", f.job.AppointmentID, "attempts", attempts, "err", f.err)

		if attempts >= f.job.MaxAttempts {
			if err := w.enqueueDLQ(jobCtx, tx, f.job, attempts, f.err.Error()); err != nil {
				return 0, err
			}
			dead++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	w.metrics.observe(len(ids), len(failed), dead)
	return len(ids), nil
}

func (w *Worker) dispatch(ctx context.Context, job Job) error {
	if job.Email == "" && job.Phone == "" {
		return errNoRecipient
	}
	payload, err := json.Marshal(job.Due())
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Topic: events.TopicReminderDue,
		Key:   []byte(job.AppointmentID),
		Value: payload,
		Headers: kafkax.MetaHeaders(kafkax.EventMeta{
			EventID:   "scheduler_job:" + strconv.FormatInt(job.ID, 10),
			EventType: events.TopicReminderDue,
		}),
	}
	msg.Headers = kafkax.InjectTraceHeaders(ctx, msg.Headers)
	return w.writer.WriteMessages(ctx, msg)
}

// backoffFor doubles the base delay per attempt, capped at maxBackoff.
func (w *Worker) backoffFor(attempts int) time.Duration {
	d := w.backoff
	for i := 1; i < attempts && d < w.maxBackoff; i++ {
		d *= 2
	}
	return min(d, w.maxBackoff)
}

func (w *Worker) enqueueDLQ(ctx context.Context, tx pgx.Tx, job Job, attempts int, reason string) error {
	evt, err := outbox.NewEvent(events.AggregateReminder, job.AppointmentID, events.TopicReminderDLQ, events.ReminderDLQ{
		JobID:         strconv.FormatInt(job.ID, 10),
		AppointmentID: job.AppointmentID,
		Attempts:      attempts,
		LastError:     reason,
	})
	if err != nil {
		return err
	}
	return w.outbox.Insert(ctx, tx, evt)
}

// LogWriter stands in for Kafka when no brokers are configured.
type LogWriter struct {
	Logger *slog.Logger
}

func (l LogWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		l.Logger.Info("reminder due (kafka disabled)", "topic", m.Topic, "key", string(m.Key), "payload", string(m.Value))
	}
	return nil
}
