package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicsched/libs/db"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/slots"
)

type PostgresRepository struct {
	pool db.Querier
}

func NewPostgresRepository(pool db.Querier) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const appointmentColumns = `id, patient_id, patient_name, email, phone, doctor, location, to_char(appt_date, 'YYYY-MM-DD'),
	start_minute, end_minute, duration_minutes, insurance_carrier, insurance_member_id, insurance_group_id,
	status, created_at, confirmed_at`

func (r *PostgresRepository) Create(ctx context.Context, appt model.Appointment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointments
			(id, patient_id, patient_name, email, phone, doctor, location, appt_date, start_minute, end_minute,
			 duration_minutes, insurance_carrier, insurance_member_id, insurance_group_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::date, $9, $10, $11, $12, $13, $14, $15, $16)
	`, appt.ID, appt.PatientID, appt.PatientName, appt.Email, appt.Phone, appt.Doctor, appt.Location, appt.Date,
		int(appt.StartTime), int(appt.EndTime), appt.Duration,
		appt.Insurance.Carrier, appt.Insurance.MemberID, appt.Insurance.GroupID, appt.Status, appt.CreatedAt)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: appointment %s exists", ErrInvalidInput, appt.ID)
	}
	return err
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	appt, err := scanAppointment(row)
	if db.IsNotFound(err) {
		return model.Appointment{}, ErrNotFound
	}
	return appt, err
}

func (r *PostgresRepository) List(ctx context.Context, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 10000
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		ORDER BY appt_date, start_minute, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, appt)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Confirm(ctx context.Context, id string, contact Contact, at time.Time) (model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET email = COALESCE(NULLIF($2, ''), email),
			phone = COALESCE(NULLIF($3, ''), phone),
			confirmed_at = COALESCE(confirmed_at, $4),
			status = 'confirmed'
		WHERE id = $1
		RETURNING `+appointmentColumns, id, contact.Email, contact.Phone, at)
	appt, err := scanAppointment(row)
	if db.IsNotFound(err) {
		return model.Appointment{}, ErrNotFound
	}
	return appt, err
}

func (r *PostgresRepository) SaveReminders(ctx context.Context, reminders []model.Reminder) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, rem := range reminders {
		_, err := tx.Exec(ctx, `
			INSERT INTO appointment_reminders (appointment_id, sequence, send_at, channel, message)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (appointment_id, sequence)
			DO UPDATE SET send_at = EXCLUDED.send_at, channel = EXCLUDED.channel, message = EXCLUDED.message
		`, rem.AppointmentID, rem.Sequence, rem.SendAt, rem.Channel, rem.Message)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *PostgresRepository) Reminders(ctx context.Context) ([]model.Reminder, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT appointment_id, sequence, send_at, channel, message
		FROM appointment_reminders
		ORDER BY send_at, appointment_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Reminder
	for rows.Next() {
		var rem model.Reminder
		if err := rows.Scan(&rem.AppointmentID, &rem.Sequence, &rem.SendAt, &rem.Channel, &rem.Message); err != nil {
			return nil, err
		}
		out = append(out, rem)
	}
	return out, rows.Err()
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		appt        model.Appointment
		start, end  int
		confirmedAt *time.Time
	)
	err := row.Scan(
		&appt.ID,
		&appt.PatientID,
		&appt.PatientName,
		&appt.Email,
		&appt.Phone,
		&appt.Doctor,
		&appt.Location,
		&appt.Date,
		&start,
		&end,
		&appt.Duration,
		&appt.Insurance.Carrier,
		&appt.Insurance.MemberID,
		&appt.Insurance.GroupID,
		&appt.Status,
		&appt.CreatedAt,
		&confirmedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.StartTime, appt.EndTime = slots.Clock(start), slots.Clock(end)
	appt.ConfirmedAt = confirmedAt
	return appt, nil
}
