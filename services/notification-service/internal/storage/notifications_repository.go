package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
)

const (
	StatusSent   = "sent"
	StatusLogged = "logged"
	StatusFailed = "failed"
)

type Notification struct {
	ID            string
	AppointmentID string
	Kind          string
	Channel       string
	Recipient     string
	Subject       string
	Provider      string
	Status        string
	Error         string
	LogPath       string
}

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Insert records n inside tx so it commits with the matching notification event.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, n Notification) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO notifications (id, appointment_id, kind, channel, recipient, subject, provider, status, error, log_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, n.ID, n.AppointmentID, n.Kind, n.Channel, n.Recipient, n.Subject, n.Provider, n.Status, n.Error, n.LogPath)
	return err
}
