package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Repository persists attendance records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const recordColumns = `id, event_id, device_id, participant_key, direction,
	name, email, faculty, program, year_level, latitude, longitude, submitted_at`

func scanRecord(row interface{ Scan(...any) error }) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.EventID, &rec.DeviceID, &rec.Profile.ParticipantKey,
		&rec.Direction, &rec.Profile.Name, &rec.Profile.Email, &rec.Profile.Faculty,
		&rec.Profile.Program, &rec.Profile.YearLevel,
		&rec.Latitude, &rec.Longitude, &rec.SubmittedAt)
	return rec, err
}

// FindLatestCheckIn returns the most recent check-in for a device at an
// event, or nil when the device has none. Feeds check-out autofill.
func (r *Repository) FindLatestCheckIn(ctx context.Context, eventID, deviceID string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE event_id = $1 AND device_id = $2 AND direction = 'check-in'
		ORDER BY submitted_at DESC
		LIMIT 1
	`, eventID, deviceID)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find latest check-in: %w", err)
	}
	return &rec, nil
}

// SearchCheckInsByName returns check-in records whose name contains the given
// fragment, case-insensitively, for suggestion lists.
func (r *Repository) SearchCheckInsByName(ctx context.Context, eventID, name string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 3
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE event_id = $1 AND direction = 'check-in' AND name ILIKE '%' || $2 || '%'
		ORDER BY submitted_at DESC
		LIMIT $3
	`, eventID, name, limit)
	if err != nil {
		return nil, fmt.Errorf("search check-ins: %w", err)
	}
	defer rows.Close()

	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("search check-ins: %w", err)
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// FindCheckInConflict returns an existing check-in whose participant key OR
// device id matches: uniqueness for check-ins holds on the union of the two
// keys, not their conjunction.
func (r *Repository) FindCheckInConflict(ctx context.Context, eventID, participantKey, deviceID string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE event_id = $1 AND direction = 'check-in'
		  AND (participant_key = $2 OR device_id = $3)
		LIMIT 1
	`, eventID, participantKey, deviceID)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find check-in conflict: %w", err)
	}
	return &rec, nil
}

// FindCheckOut returns the existing check-out for a participant at an event,
// or nil. Check-out uniqueness keys on the participant only, so a participant
// may check out from a different device than they checked in from.
func (r *Repository) FindCheckOut(ctx context.Context, eventID, participantKey string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE event_id = $1 AND participant_key = $2 AND direction = 'check-out'
		LIMIT 1
	`, eventID, participantKey)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find check-out: %w", err)
	}
	return &rec, nil
}

// Insert writes a new record. A unique-constraint violation comes back as a
// DuplicateError rather than a store failure: the write-time constraint is
// the system-of-record guard against races the application-level existence
// check cannot close.
func (r *Repository) Insert(ctx context.Context, rec Record) (Record, error) {
	if rec.SubmittedAt.IsZero() {
		rec.SubmittedAt = time.Now().UTC()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records
			(id, event_id, device_id, participant_key, direction,
			 name, email, faculty, program, year_level, latitude, longitude, submitted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING submitted_at
	`, rec.ID, rec.EventID, rec.DeviceID, rec.Profile.ParticipantKey, rec.Direction,
		rec.Profile.Name, rec.Profile.Email, rec.Profile.Faculty, rec.Profile.Program,
		rec.Profile.YearLevel, rec.Latitude, rec.Longitude, rec.SubmittedAt)
	if err := row.Scan(&rec.SubmittedAt); err != nil {
		if dup := duplicateFromPgError(err, rec.Direction); dup != nil {
			return Record{}, dup
		}
		return Record{}, fmt.Errorf("insert attendance record: %w", err)
	}
	return rec, nil
}

func duplicateFromPgError(err error, dir Direction) *DuplicateError {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return nil
	}
	kind := KindParticipant
	if pgErr.ConstraintName == "attendance_checkin_device_idx" {
		kind = KindDevice
	}
	return &DuplicateError{Direction: dir, Kind: kind}
}

// List returns records for an event with optional direction filter, newest
// first. Serves the organizer dashboard, which only renders what this core
// has written.
func (r *Repository) List(ctx context.Context, eventID string, direction Direction, limit, offset int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + recordColumns + ` FROM attendance_records WHERE event_id = $1`
	args := []any{eventID}
	if direction != "" {
		query += fmt.Sprintf(" AND direction = $%d", len(args)+1)
		args = append(args, direction)
	}
	query += fmt.Sprintf(" ORDER BY submitted_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list records: %w", err)
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// UpsertDevice ensures a device record exists for the registration endpoint.
func (r *Repository) UpsertDevice(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return errors.New("device id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (device_id)
		VALUES ($1)
		ON CONFLICT (device_id) DO NOTHING
	`, deviceID)
	return err
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, deviceID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (device_id, token, expires_at)
		VALUES ($1, $2, $3)
	`, deviceID, token, expiresAt)
	return err
}
