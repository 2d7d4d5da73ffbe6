package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"geolock/internal/geo"
)

// Store is the data-store contract the admission controller depends on.
// *Repository implements it.
type Store interface {
	FindLatestCheckIn(ctx context.Context, eventID, deviceID string) (*Record, error)
	SearchCheckInsByName(ctx context.Context, eventID, name string, limit int) ([]Record, error)
	FindCheckInConflict(ctx context.Context, eventID, participantKey, deviceID string) (*Record, error)
	FindCheckOut(ctx context.Context, eventID, participantKey string) (*Record, error)
	Insert(ctx context.Context, rec Record) (Record, error)
}

var _ Store = (*Repository)(nil)

const (
	// SuggestMinChars is the minimum name length before suggestions run.
	SuggestMinChars = 3
	// SuggestLimit caps the suggestion list.
	SuggestLimit = 3
)

// Submission is a completed form handed to the admission controller.
type Submission struct {
	EventID   string
	DeviceID  string
	Direction Direction
	Profile   Profile
	Position  geo.Point
}

// Service is the terminal, authoritative decision point for whether a
// completed form may be persisted as a record.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a service backed by a store.
func NewService(store Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Autofill finds the check-in a device made earlier at this event so the
// check-out form can be pre-populated and locked. A missing record is not an
// error; the form just stays editable.
func (s *Service) Autofill(ctx context.Context, eventID, deviceID string) (*Record, error) {
	rec, err := s.store.FindLatestCheckIn(ctx, eventID, deviceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return rec, nil
}

// Suggest searches check-in records by name fragment for the check-out form.
// Fragments shorter than SuggestMinChars yield nothing.
func (s *Service) Suggest(ctx context.Context, eventID, name string) ([]Record, error) {
	if len(name) < SuggestMinChars {
		return nil, nil
	}
	recs, err := s.store.SearchCheckInsByName(ctx, eventID, name, SuggestLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return recs, nil
}

// Submit enforces at-most-once semantics per (event, participant-or-device,
// direction) and writes the record. Exactly one record is written on success;
// none on any failure path. The existence check here is check-then-act; the
// store's unique indexes close the race at write time and surface through
// Insert as the same DuplicateError.
func (s *Service) Submit(ctx context.Context, sub Submission) (Record, error) {
	if verr := validate(sub); verr != nil {
		return Record{}, verr
	}

	switch sub.Direction {
	case CheckIn:
		existing, err := s.store.FindCheckInConflict(ctx, sub.EventID, sub.Profile.ParticipantKey, sub.DeviceID)
		if err != nil {
			return Record{}, fmt.Errorf("%w: %v", ErrStore, err)
		}
		if existing != nil {
			kind := KindParticipant
			if existing.Profile.ParticipantKey != sub.Profile.ParticipantKey {
				kind = KindDevice
			}
			return Record{}, &DuplicateError{Direction: CheckIn, Kind: kind}
		}
	case CheckOut:
		existing, err := s.store.FindCheckOut(ctx, sub.EventID, sub.Profile.ParticipantKey)
		if err != nil {
			return Record{}, fmt.Errorf("%w: %v", ErrStore, err)
		}
		if existing != nil {
			return Record{}, &DuplicateError{Direction: CheckOut, Kind: KindParticipant}
		}
	default:
		return Record{}, &ValidationError{Missing: []string{"direction"}}
	}

	rec := Record{
		ID:          uuid.NewString(),
		EventID:     sub.EventID,
		DeviceID:    sub.DeviceID,
		Direction:   sub.Direction,
		Profile:     sub.Profile,
		Latitude:    sub.Position.Lat,
		Longitude:   sub.Position.Lng,
		SubmittedAt: s.now(),
	}
	inserted, err := s.store.Insert(ctx, rec)
	if err != nil {
		var dup *DuplicateError
		if errors.As(err, &dup) {
			return Record{}, dup
		}
		return Record{}, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return inserted, nil
}

func validate(sub Submission) *ValidationError {
	var missing []string
	if sub.Profile.Name == "" {
		missing = append(missing, "name")
	}
	if sub.Profile.Email == "" {
		missing = append(missing, "email")
	}
	if sub.Profile.ParticipantKey == "" {
		missing = append(missing, "participant_key")
	}
	if sub.Profile.Faculty == "" {
		missing = append(missing, "faculty")
	}
	if sub.Profile.Program == "" {
		missing = append(missing, "program")
	}
	if sub.Profile.YearLevel == "" {
		missing = append(missing, "year_level")
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}
