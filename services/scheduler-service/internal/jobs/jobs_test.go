package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicsched/libs/events"
	"github.com/md-rashed-zaman/clinicsched/libs/kafkax"
	"github.com/md-rashed-zaman/clinicsched/libs/outbox"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewJSONHandler(io.Discard, nil))

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

var jobColumns = []string{"id", "idempotency_key", "appointment_id", "sequence", "channel", "email", "phone", "message",
	"remind_at", "traceparent", "tracestate", "attempts", "max_attempts", "next_run_at"}

func dueRow(rows *pgxmock.Rows, attempts int) *pgxmock.Rows {
	at := time.Date(2025, 9, 7, 10, 0, 0, 0, time.UTC)
	return rows.AddRow(int64(1), "A1|1|email+sms", "A1", 1, "email+sms", "sara@example.com", "+15550100",
		"Reminder: Upcoming visit.", at, "", "", attempts, 3, at)
}

func TestRequestHandlerStoresJob(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO scheduler_jobs").
		WithArgs("A1|2|email+sms", "A1", 2, "email+sms", "sara@example.com", "", "Reminder", pgxmock.AnyArg(), 5, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	body, _ := json.Marshal(events.ReminderRequested{
		AppointmentID: "A1", Sequence: 2, Channel: "email+sms", Email: "sara@example.com",
		RemindAt: "2025-09-08T10:00:00Z", Message: "Reminder",
	})
	h := NewRequestHandler(mock, NewRepository(), discard, 0)
	require.NoError(t, h(context.Background(), kafka.Message{Topic: events.TopicReminderRequested, Value: body}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestHandlerDropsMalformed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	h := NewRequestHandler(mock, NewRepository(), discard, 3)
	require.NoError(t, h(context.Background(), kafka.Message{Value: []byte("{")}))

	noRecipient, _ := json.Marshal(events.ReminderRequested{AppointmentID: "A1", Channel: "email", RemindAt: "2025-09-08T10:00:00Z"})
	require.NoError(t, h(context.Background(), kafka.Message{Value: noRecipient}))

	badTime, _ := json.Marshal(events.ReminderRequested{AppointmentID: "A1", Channel: "email", Email: "x@y.z", RemindAt: "tomorrow"})
	require.NoError(t, h(context.Background(), kafka.Message{Value: badTime}))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkerPublishesDueJobs(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, idempotency_key").WithArgs(50).WillReturnRows(dueRow(mock.NewRows(jobColumns), 0))
	mock.ExpectExec("UPDATE scheduler_jobs").WithArgs([]int64{1}).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	writer := &fakeWriter{}
	reg := prometheus.NewRegistry()
	w := NewWorker(mock, NewRepository(), outbox.NewRepository(mock), writer, discard, NewMetrics(reg), WorkerConfig{})
	n, err := w.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, writer.msgs, 1)
	msg := writer.msgs[0]
	assert.Equal(t, events.TopicReminderDue, msg.Topic)
	assert.Equal(t, "scheduler_job:1", kafkax.HeaderValue(msg.Headers, kafkax.HeaderEventID))

	var due events.ReminderDue
	require.NoError(t, json.Unmarshal(msg.Value, &due))
	assert.Equal(t, "1", due.JobID)
	assert.Equal(t, "A1", due.AppointmentID)
	assert.Equal(t, "2025-09-07T10:00:00Z", due.RemindAt)
	assert.Equal(t, "+15550100", due.Phone)
}

func TestWorkerRetriesWithBackoff(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2025, 9, 7, 10, 1, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, idempotency_key").WithArgs(50).WillReturnRows(dueRow(mock.NewRows(jobColumns), 0))
	mock.ExpectExec("UPDATE scheduler_jobs").
		WithArgs(int64(1), 1, StatusPending, now.Add(time.Minute), "broker down").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	w := NewWorker(mock, NewRepository(), outbox.NewRepository(mock), &fakeWriter{err: errors.New("broker down")}, discard, nil, WorkerConfig{})
	w.now = func() time.Time { return now }
	n, err := w.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkerDeadLettersAfterMaxAttempts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, idempotency_key").WithArgs(50).WillReturnRows(dueRow(mock.NewRows(jobColumns), 2))
	mock.ExpectExec("UPDATE scheduler_jobs").
		WithArgs(int64(1), 3, StatusFailed, pgxmock.AnyArg(), "broker down").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs(events.AggregateReminder, "A1", events.TopicReminderDLQ, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	w := NewWorker(mock, NewRepository(), outbox.NewRepository(mock), &fakeWriter{err: errors.New("broker down")}, discard, nil, WorkerConfig{})
	_, err = w.ProcessBatch(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkerEmptyBatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, idempotency_key").WithArgs(10).WillReturnRows(mock.NewRows(jobColumns))
	mock.ExpectCommit()

	w := NewWorker(mock, NewRepository(), outbox.NewRepository(mock), &fakeWriter{}, discard, nil, WorkerConfig{BatchSize: 10})
	n, err := w.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBackoffFor(t *testing.T) {
	w := NewWorker(nil, nil, nil, nil, discard, nil, WorkerConfig{Backoff: time.Minute, MaxBackoff: 10 * time.Minute})
	assert.Equal(t, time.Minute, w.backoffFor(1))
	assert.Equal(t, 2*time.Minute, w.backoffFor(2))
	assert.Equal(t, 4*time.Minute, w.backoffFor(3))
	assert.Equal(t, 10*time.Minute, w.backoffFor(8))
}

func TestKeyFor(t *testing.T) {
	assert.Equal(t, "A1|3|email+sms", KeyFor("A1", 3, "email+sms"))
}
