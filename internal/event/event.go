// Package event resolves event identifiers and codes against the store.
package event

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"geolock/internal/geo"
)

// Status is the event lifecycle state. Attendance admission is only possible
// while the event is active.
type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

var (
	// ErrNotFound means the identifier or code resolves to no event.
	ErrNotFound = errors.New("event not found")
	// ErrNotActive means the event exists but its attendance window is closed.
	ErrNotActive = errors.New("attendance is closed")
)

// Event is organizer-owned metadata, read-only from the admission flow.
type Event struct {
	ID            string    `json:"id"`
	Code          string    `json:"code"`
	Title         string    `json:"title"`
	VenueAddress  string    `json:"venue_address"`
	ScheduledDate string    `json:"scheduled_date"`
	ScheduledTime string    `json:"scheduled_time"`
	Center        geo.Point `json:"center"`
	RadiusM       float64   `json:"radius_m"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// Repository reads events from Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const eventColumns = `id, event_code, title, venue_address, scheduled_date, scheduled_time,
	latitude, longitude, radius_m, status, created_at`

// Find resolves a canonical identifier or short code to an event. Codes match
// case-insensitively; canonical identifiers also match against the code column
// so a code that happens to look like an identifier still resolves.
func (r *Repository) Find(ctx context.Context, ref string, byID bool) (Event, error) {
	var row *sql.Row
	if byID {
		row = r.db.QueryRowContext(ctx, `
			SELECT `+eventColumns+`
			FROM events
			WHERE id = $1::uuid OR LOWER(event_code) = LOWER($1)
		`, ref)
	} else {
		row = r.db.QueryRowContext(ctx, `
			SELECT `+eventColumns+`
			FROM events
			WHERE LOWER(event_code) = LOWER($1)
		`, ref)
	}

	var evt Event
	err := row.Scan(&evt.ID, &evt.Code, &evt.Title, &evt.VenueAddress,
		&evt.ScheduledDate, &evt.ScheduledTime,
		&evt.Center.Lat, &evt.Center.Lng, &evt.RadiusM, &evt.Status, &evt.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Event{}, ErrNotFound
		}
		return Event{}, fmt.Errorf("find event: %w", err)
	}
	return evt, nil
}

// FindActive is Find plus the attendance-window check. A resolved event whose
// status is not active yields ErrNotActive before any geolocation work starts.
func (r *Repository) FindActive(ctx context.Context, ref string, byID bool) (Event, error) {
	evt, err := r.Find(ctx, ref, byID)
	if err != nil {
		return Event{}, err
	}
	if evt.Status != StatusActive {
		return Event{}, ErrNotActive
	}
	return evt, nil
}
