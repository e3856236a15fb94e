package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicsched/libs/db"
	"github.com/md-rashed-zaman/clinicsched/libs/events"
	"github.com/md-rashed-zaman/clinicsched/libs/kafkax"
	"github.com/md-rashed-zaman/clinicsched/libs/outbox"
	"github.com/md-rashed-zaman/clinicsched/services/notification-service/internal/email"
	"github.com/md-rashed-zaman/clinicsched/services/notification-service/internal/messagelog"
	"github.com/md-rashed-zaman/clinicsched/services/notification-service/internal/messages"
	"github.com/md-rashed-zaman/clinicsched/services/notification-service/internal/sms"
	"github.com/md-rashed-zaman/clinicsched/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

type Config struct {
	// FailSuffix simulates a provider failure for recipients ending with it (demo aid).
	FailSuffix string
}

type Service struct {
	pool       db.Querier
	store      *storage.Repository
	outbox     *outbox.Repository
	email      email.Sender
	sms        sms.Sender
	log        *messagelog.FileLog
	forms      FormsSource
	metrics    *Metrics
	logger     *slog.Logger
	failSuffix string
	newID      func() string
}

// New wires the notifier. A nil email sender means emails are only written to the message log.
func New(pool db.Querier, store *storage.Repository, outboxRepo *outbox.Repository, emailSender email.Sender, smsSender sms.Sender, log *messagelog.FileLog, forms FormsSource, m *Metrics, logger *slog.Logger, cfg Config) *Service {
	if smsSender == nil {
		smsSender = sms.NewLogSender()
	}
	if forms == nil {
		forms = DirForms{}
	}
	return &Service{
		pool:       pool,
		store:      store,
		outbox:     outboxRepo,
		email:      emailSender,
		sms:        smsSender,
		log:        log,
		forms:      forms,
		metrics:    m,
		logger:     logger,
		failSuffix: cfg.FailSuffix,
		newID:      uuid.NewString,
	}
}

// Handlers maps each consumed topic to its handler.
func (s *Service) Handlers() map[string]kafkax.Handler {
	return map[string]kafkax.Handler{
		events.TopicReminderDue:          s.HandleReminderDue,
		events.TopicAppointmentConfirmed: s.HandleConfirmed,
		events.TopicFormsRequested:       s.HandleFormsRequested,
	}
}

type delivery struct {
	appointmentID string
	kind          string
	channel       string
	to            string
	subject       string
	body          string
	attachments   []email.Attachment
}

func (s *Service) HandleConfirmed(ctx context.Context, msg kafka.Message) error {
	var evt events.AppointmentConfirmed
	if err := json.Unmarshal(msg.Value, &evt); err != nil || evt.AppointmentID == "" {
		s.logger.Error("invalid confirmation event", "err", err, "offset", msg.Offset)
		return nil
	}
	content := messages.Confirmation(evt.Appointment)
	return s.deliverAll(ctx,
		delivery{appointmentID: evt.AppointmentID, kind: messages.KindConfirmation, channel: ChannelEmail, to: evt.Email, subject: content.Subject, body: content.Body},
		delivery{appointmentID: evt.AppointmentID, kind: messages.KindConfirmation, channel: ChannelSMS, to: evt.Phone, subject: "SMS", body: messages.ConfirmationSMS(evt.Appointment)},
	)
}

func (s *Service) HandleFormsRequested(ctx context.Context, msg kafka.Message) error {
	var evt events.FormsRequested
	if err := json.Unmarshal(msg.Value, &evt); err != nil || evt.AppointmentID == "" {
		s.logger.Error("invalid forms event", "err", err, "offset", msg.Offset)
		return nil
	}
	forms, err := s.forms.Forms()
	if err != nil {
		return fmt.Errorf("load intake forms: %w", err)
	}
	content := messages.Forms(len(forms) > 0)
	return s.deliverAll(ctx, delivery{
		appointmentID: evt.AppointmentID, kind: messages.KindForms, channel: ChannelEmail, to: evt.Email,
		subject: content.Subject, body: content.Body, attachments: forms,
	})
}

// HandleReminderDue sends on every channel named in the reminder, e.g. "email+sms".
func (s *Service) HandleReminderDue(ctx context.Context, msg kafka.Message) error {
	var evt events.ReminderDue
	if err := json.Unmarshal(msg.Value, &evt); err != nil || evt.AppointmentID == "" {
		s.logger.Error("invalid reminder payload", "err", err, "offset", msg.Offset)
		return nil
	}
	if _, err := time.Parse(time.RFC3339, evt.RemindAt); err != nil {
		s.logger.Error("invalid remind_at", "err", err, "appointment_id", evt.AppointmentID)
		return nil
	}
	content := messages.Reminder(evt.AppointmentID, evt.Message)

	var ds []delivery
	for _, ch := range strings.Split(strings.ToLower(evt.Channel), "+") {
		switch strings.TrimSpace(ch) {
		case ChannelEmail:
			ds = append(ds, delivery{appointmentID: evt.AppointmentID, kind: messages.KindReminder, channel: ChannelEmail, to: evt.Email, subject: content.Subject, body: content.Body})
		case ChannelSMS:
			ds = append(ds, delivery{appointmentID: evt.AppointmentID, kind: messages.KindReminder, channel: ChannelSMS, to: evt.Phone, subject: "SMS", body: evt.Message})
		default:
			s.logger.Warn("unsupported channel", "channel", ch, "appointment_id", evt.AppointmentID)
		}
	}
	return s.deliverAll(ctx, ds...)
}

func (s *Service) deliverAll(ctx context.Context, ds ...delivery) error {
	var errs []error
	for _, d := range ds {
		if strings.TrimSpace(d.to) == "" {
			s.logger.Warn("no recipient, skipping", "appointment_id", d.appointmentID, "kind", d.kind, "channel", d.channel)
			continue
		}
		if err := s.deliver(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// deliver writes the message log, tries the provider and records the outcome together with
// its notification event.
func (s *Service) deliver(ctx context.Context, d delivery) error {
	names := make([]string, 0, len(d.attachments))
	for _, a := range d.attachments {
		names = append(names, a.Name)
	}
	logPath, err := s.log.Write(messagelog.Entry{Kind: d.channel, To: d.to, Subject: d.subject, Body: d.body, Attachments: names})
	if err != nil {
		s.logger.Error("message log write failed", "err", err, "appointment_id", d.appointmentID)
	}

	provider, sendErr := s.send(ctx, d)
	status := storage.StatusSent
	switch {
	case sendErr != nil:
		status = storage.StatusFailed
		s.logger.Error("notification send failed", "err", sendErr, "appointment_id", d.appointmentID, "channel", d.channel)
	case provider == "log":
		status = storage.StatusLogged
	}

	n := storage.Notification{
		ID:            s.newID(),
		AppointmentID: d.appointmentID,
		Kind:          d.kind,
		Channel:       d.channel,
		Recipient:     d.to,
		Subject:       d.subject,
		Provider:      provider,
		Status:        status,
		LogPath:       logPath,
	}
	if sendErr != nil {
		n.Error = sendErr.Error()
	}
	if err := s.record(ctx, n); err != nil {
		return err
	}
	s.metrics.observe(d.kind, d.channel, status)
	s.logger.Info("notification processed", "appointment_id", d.appointmentID, "kind", d.kind, "channel", d.channel, "status", status)
	return nil
}

func (s *Service) send(ctx context.Context, d delivery) (string, error) {
	if s.failSuffix != "" && strings.HasSuffix(d.to, s.failSuffix) {
		return "simulated", errors.New("simulated failure")
	}
	switch d.channel {
	case ChannelEmail:
		if s.email == nil {
			return "log", nil
		}
		return s.email.ProviderID(), s.email.Send(ctx, email.Message{To: d.to, Subject: d.subject, Body: d.body, Attachments: d.attachments})
	case ChannelSMS:
		return s.sms.ProviderID(), s.sms.Send(ctx, d.to, d.body)
	default:
		return "", fmt.Errorf("unsupported channel: %s", d.channel)
	}
}

func (s *Service) record(ctx context.Context, n storage.Notification) error {
	topic := events.TopicNotificationSent
	if n.Status == storage.StatusFailed {
		topic = events.TopicNotificationFailed
	}
	evt, err := outbox.NewEvent(events.AggregateNotification, n.AppointmentID, topic, events.NotificationResult{
		NotificationID: n.ID,
		AppointmentID:  n.AppointmentID,
		Kind:           n.Kind,
		Channel:        n.Channel,
		Recipient:      n.Recipient,
		Status:         n.Status,
		Error:          n.Error,
	})
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.store.Insert(ctx, tx, n); err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}
	if err := s.outbox.Insert(ctx, tx, evt); err != nil {
		return fmt.Errorf("enqueue %s: %w", topic, err)
	}
	return tx.Commit(ctx)
}
