package booking

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicsched/libs/kafkax"
	"github.com/md-rashed-zaman/clinicsched/libs/outbox"
	"github.com/segmentio/kafka-go"
)

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, evts ...outbox.Event) error
}

// OutboxEmitter writes events to the transactional outbox drained by outbox.Publisher.
type OutboxEmitter struct {
	repo *outbox.Repository
}

func NewOutboxEmitter(repo *outbox.Repository) *OutboxEmitter {
	return &OutboxEmitter{repo: repo}
}

func (e *OutboxEmitter) Emit(ctx context.Context, evts ...outbox.Event) error {
	return e.repo.Enqueue(ctx, evts...)
}

// KafkaEmitter writes straight to Kafka, for deployments without Postgres.
type KafkaEmitter struct {
	writer outbox.MessageWriter
}

func NewKafkaEmitter(writer outbox.MessageWriter) *KafkaEmitter {
	return &KafkaEmitter{writer: writer}
}

func (e *KafkaEmitter) Emit(ctx context.Context, evts ...outbox.Event) error {
	msgs := make([]kafka.Message, 0, len(evts))
	for _, evt := range evts {
		headers := kafkax.MetaHeaders(kafkax.EventMeta{EventID: uuid.NewString(), EventType: evt.EventType})
		msgs = append(msgs, kafka.Message{
			Topic:   evt.EventType,
			Key:     []byte(evt.AggregateID),
			Value:   evt.Payload,
			Headers: kafkax.InjectTraceHeaders(ctx, headers),
		})
	}
	return e.writer.WriteMessages(ctx, msgs...)
}

// LogEmitter only logs; the demo mode with no broker configured.
type LogEmitter struct {
	logger *slog.Logger
}

func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	return &LogEmitter{logger: logger}
}

func (e *LogEmitter) Emit(ctx context.Context, evts ...outbox.Event) error {
	for _, evt := range evts {
		e.logger.InfoContext(ctx, "event emitted",
			"event_type", evt.EventType,
			"aggregate_id", evt.AggregateID,
			"payload", string(evt.Payload),
		)
	}
	return nil
}
