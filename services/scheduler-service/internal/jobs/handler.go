package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicsched/libs/db"
	"github.com/md-rashed-zaman/clinicsched/libs/events"
	"github.com/md-rashed-zaman/clinicsched/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

// NewRequestHandler turns scheduling.reminder.requested events into pending jobs. Malformed
// events are logged and dropped so they do not block the partition.
func NewRequestHandler(pool db.Querier, repo *Repository, logger *slog.Logger, maxAttempts int) kafkax.Handler {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return func(ctx context.Context, msg kafka.Message) error {
		var req events.ReminderRequested
		if err := json.Unmarshal(msg.Value, &req); err != nil {
			logger.Error("invalid reminder request", "err", err)
			return nil
		}
		if req.AppointmentID == "" || req.Channel == "" || req.RemindAt == "" || (req.Email == "" && req.Phone == "") {
			logger.Error("missing reminder fields", "appointment_id", req.AppointmentID, "sequence", req.Sequence)
			return nil
		}
		remindAt, err := time.Parse(time.RFC3339, req.RemindAt)
		if err != nil {
			logger.Error("invalid remind_at", "err", err, "appointment_id", req.AppointmentID)
			return nil
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if err := repo.Insert(ctx, tx, Job{
			IdempotencyKey: KeyFor(req.AppointmentID, req.Sequence, req.Channel),
			AppointmentID:  req.AppointmentID,
			Sequence:       req.Sequence,
			Channel:        req.Channel,
			Email:          req.Email,
			Phone:          req.Phone,
			Message:        req.Message,
			RemindAt:       remindAt.UTC(),
			MaxAttempts:    maxAttempts,
		}); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}
}
