package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicsched/libs/db"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/slots"
)

// PostgresStore keeps slots in schedule_slots and one version row per partition in
// schedule_partitions. Times are stored as minutes since midnight.
type PostgresStore struct {
	pool db.Querier
}

func NewPostgresStore(pool db.Querier) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Load(ctx context.Context, sel slots.Selector) (Partition, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT doctor_id, doctor, location, to_char(slot_date, 'YYYY-MM-DD'), start_minute, end_minute, status, COALESCE(appointment_id, '')
		FROM schedule_slots
		WHERE (doctor_id = $1 OR doctor = $1) AND location = $2 AND slot_date = $3::date
		ORDER BY start_minute, end_minute
	`, sel.Doctor, sel.Location, sel.Date)
	if err != nil {
		return Partition{}, fmt.Errorf("load slots: %w", err)
	}
	defer rows.Close()

	var out []slots.Slot
	for rows.Next() {
		var (
			r          slots.Slot
			start, end int
			status     string
		)
		if err := rows.Scan(&r.DoctorID, &r.Doctor, &r.Location, &r.Date, &start, &end, &status, &r.AppointmentRef); err != nil {
			return Partition{}, err
		}
		r.Start, r.End, r.Status = slots.Clock(start), slots.Clock(end), slots.ParseStatus(status)
		out = append(out, r)
	}
	if rows.Err() != nil {
		return Partition{}, rows.Err()
	}

	version := int64(0)
	if len(out) > 0 {
		err := s.pool.QueryRow(ctx, `
			SELECT version FROM schedule_partitions
			WHERE doctor_id = $1 AND location = $2 AND slot_date = $3::date
		`, out[0].DoctorID, sel.Location, sel.Date).Scan(&version)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return Partition{}, fmt.Errorf("load partition version: %w", err)
		}
	}
	return Partition{Selector: sel, Slots: out, Version: strconv.FormatInt(version, 10)}, nil
}

func (s *PostgresStore) Save(ctx context.Context, p Partition) (Partition, error) {
	rows := keepMatching(p.Selector, p.Slots)
	if len(rows) == 0 {
		return p, nil
	}
	expected, err := strconv.ParseInt(p.Version, 10, 64)
	if err != nil {
		return Partition{}, fmt.Errorf("%w: malformed version %q", slots.ErrConflict, p.Version)
	}
	doctorID := rows[0].DoctorID

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Partition{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	next, err := bumpVersion(ctx, tx, doctorID, p.Selector, expected)
	if err != nil {
		return Partition{}, err
	}

	for _, r := range rows {
		_, err := tx.Exec(ctx, `
			UPDATE schedule_slots
			SET status = $5, appointment_id = NULLIF($6, ''), updated_at = now()
			WHERE doctor_id = $1 AND location = $2 AND slot_date = $3::date AND start_minute = $4
		`, doctorID, p.Selector.Location, p.Selector.Date, int(r.Start), string(r.Status), r.AppointmentRef)
		if err != nil {
			return Partition{}, fmt.Errorf("update slot %s: %w", r.Start, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Partition{}, err
	}
	return Partition{Selector: p.Selector, Slots: slots.Filter(rows, p.Selector), Version: strconv.FormatInt(next, 10)}, nil
}

// bumpVersion increments the partition version iff it still equals expected. Version 0 means
// no row exists yet.
func bumpVersion(ctx context.Context, tx pgx.Tx, doctorID string, sel slots.Selector, expected int64) (int64, error) {
	var next int64
	var err error
	if expected == 0 {
		err = tx.QueryRow(ctx, `
			INSERT INTO schedule_partitions (doctor_id, location, slot_date, version)
			VALUES ($1, $2, $3::date, 1)
			ON CONFLICT DO NOTHING
			RETURNING version
		`, doctorID, sel.Location, sel.Date).Scan(&next)
	} else {
		err = tx.QueryRow(ctx, `
			UPDATE schedule_partitions
			SET version = version + 1
			WHERE doctor_id = $1 AND location = $2 AND slot_date = $3::date AND version = $4
			RETURNING version
		`, doctorID, sel.Location, sel.Date, expected).Scan(&next)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: partition %s moved past version %d", slots.ErrConflict, sel.Key(), expected)
	}
	if err != nil {
		return 0, fmt.Errorf("bump partition version: %w", err)
	}
	return next, nil
}

func (s *PostgresStore) Directory(ctx context.Context) ([]Doctor, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT doctor_id, doctor, location
		FROM schedule_slots
		ORDER BY doctor_id, location
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Doctor
	for rows.Next() {
		var d Doctor
		if err := rows.Scan(&d.ID, &d.Name, &d.Location); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Import upserts rows, used to load a seeded CSV schedule into Postgres.
func (s *PostgresStore) Import(ctx context.Context, rows []slots.Slot) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	n := 0
	for _, r := range rows {
		_, err := tx.Exec(ctx, `
			INSERT INTO schedule_slots (doctor_id, doctor, location, slot_date, start_minute, end_minute, status, appointment_id)
			VALUES ($1, $2, $3, $4::date, $5, $6, $7, NULLIF($8, ''))
			ON CONFLICT (doctor_id, location, slot_date, start_minute) DO NOTHING
		`, r.DoctorID, r.Doctor, r.Location, r.Date, int(r.Start), int(r.End), string(r.Status), r.AppointmentRef)
		if err != nil {
			return n, fmt.Errorf("import slot %s %s %s: %w", r.DoctorID, r.Date, r.Start, err)
		}
		n++
	}
	return n, tx.Commit(ctx)
}
