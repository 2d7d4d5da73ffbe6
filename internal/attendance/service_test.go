package attendance

import (
	"context"
	"errors"
	"testing"

	"geolock/internal/geo"
)

// ---------- Fake store ----------

type fakeStore struct {
	records   []Record
	insertErr error
	queryErr  error
}

func (f *fakeStore) FindLatestCheckIn(_ context.Context, eventID, deviceID string) (*Record, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var latest *Record
	for i := range f.records {
		r := &f.records[i]
		if r.EventID == eventID && r.DeviceID == deviceID && r.Direction == CheckIn {
			if latest == nil || r.SubmittedAt.After(latest.SubmittedAt) {
				latest = r
			}
		}
	}
	return latest, nil
}

func (f *fakeStore) SearchCheckInsByName(_ context.Context, eventID, name string, limit int) ([]Record, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var res []Record
	for _, r := range f.records {
		if r.EventID == eventID && r.Direction == CheckIn && len(res) < limit {
			res = append(res, r)
		}
	}
	return res, nil
}

func (f *fakeStore) FindCheckInConflict(_ context.Context, eventID, participantKey, deviceID string) (*Record, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	for i := range f.records {
		r := &f.records[i]
		if r.EventID == eventID && r.Direction == CheckIn &&
			(r.Profile.ParticipantKey == participantKey || r.DeviceID == deviceID) {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) FindCheckOut(_ context.Context, eventID, participantKey string) (*Record, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	for i := range f.records {
		r := &f.records[i]
		if r.EventID == eventID && r.Direction == CheckOut && r.Profile.ParticipantKey == participantKey {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) Insert(_ context.Context, rec Record) (Record, error) {
	if f.insertErr != nil {
		return Record{}, f.insertErr
	}
	f.records = append(f.records, rec)
	return rec, nil
}

// ---------- Helpers ----------

func validSubmission(dir Direction) Submission {
	return Submission{
		EventID:   "e1",
		DeviceID:  "dev-1",
		Direction: dir,
		Profile: Profile{
			Name:           "Juan Dela Cruz",
			Email:          "juan@example.com",
			ParticipantKey: "20-1-0001",
			Faculty:        "Faculty of Computing",
			Program:        "Bachelor of Science in Computer Science",
			YearLevel:      "3rd Year",
		},
		Position: geo.Point{Lat: 10.0, Lng: 124.0},
	}
}

// ---------- Tests ----------

func TestSubmitCheckInWritesOnce(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store)

	rec, err := svc.Submit(context.Background(), validSubmission(CheckIn))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if rec.ID == "" || rec.SubmittedAt.IsZero() {
		t.Fatalf("record missing id/timestamp: %+v", rec)
	}
	if len(store.records) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(store.records))
	}
}

func TestSubmitDuplicateCheckInSameParticipant(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store)
	ctx := context.Background()

	if _, err := svc.Submit(ctx, validSubmission(CheckIn)); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	// Second attempt: same participant, different device.
	sub := validSubmission(CheckIn)
	sub.DeviceID = "dev-2"
	_, err := svc.Submit(ctx, sub)
	var dup *DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateError, got %v", err)
	}
	if dup.Kind != KindParticipant {
		t.Fatalf("expected participant collision, got %q", dup.Kind)
	}
	if len(store.records) != 1 {
		t.Fatalf("duplicate must not write: %d records", len(store.records))
	}
}

func TestSubmitDuplicateCheckInSameDevice(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store)
	ctx := context.Background()

	if _, err := svc.Submit(ctx, validSubmission(CheckIn)); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	// Same device, different participant key: still a duplicate, keyed on
	// the device side of the union.
	sub := validSubmission(CheckIn)
	sub.Profile.ParticipantKey = "20-1-0002"
	_, err := svc.Submit(ctx, sub)
	var dup *DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateError, got %v", err)
	}
	if dup.Kind != KindDevice {
		t.Fatalf("expected device collision, got %q", dup.Kind)
	}
}

func TestSubmitCheckOutWithoutPriorCheckIn(t *testing.T) {
	// Manually entered details on a new device: allowed as long as no
	// check-out exists for that participant.
	store := &fakeStore{}
	svc := NewService(store)

	if _, err := svc.Submit(context.Background(), validSubmission(CheckOut)); err != nil {
		t.Fatalf("check-out without prior check-in should succeed: %v", err)
	}
}

func TestSubmitDuplicateCheckOut(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store)
	ctx := context.Background()

	if _, err := svc.Submit(ctx, validSubmission(CheckOut)); err != nil {
		t.Fatalf("first check-out: %v", err)
	}

	// Different device, same participant key: check-out dedup keys on the
	// participant only.
	sub := validSubmission(CheckOut)
	sub.DeviceID = "dev-9"
	_, err := svc.Submit(ctx, sub)
	var dup *DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateError, got %v", err)
	}
}

func TestSubmitValidation(t *testing.T) {
	svc := NewService(&fakeStore{})

	sub := validSubmission(CheckIn)
	sub.Profile.Name = ""
	sub.Profile.Email = ""
	_, err := svc.Submit(context.Background(), sub)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Missing) != 2 {
		t.Fatalf("expected 2 missing fields, got %v", verr.Missing)
	}
}

func TestSubmitStoreFailure(t *testing.T) {
	store := &fakeStore{insertErr: errors.New("connection reset")}
	svc := NewService(store)

	_, err := svc.Submit(context.Background(), validSubmission(CheckIn))
	if !errors.Is(err, ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
	if len(store.records) != 0 {
		t.Fatal("failed submit must leave no records")
	}
}

func TestSubmitConstraintViolationIsDuplicate(t *testing.T) {
	// The write-time constraint closing the check-then-act race surfaces
	// as a duplicate, not a store failure.
	store := &fakeStore{insertErr: &DuplicateError{Direction: CheckIn, Kind: KindDevice}}
	svc := NewService(store)

	_, err := svc.Submit(context.Background(), validSubmission(CheckIn))
	var dup *DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateError from constraint violation, got %v", err)
	}
	if errors.Is(err, ErrStore) {
		t.Fatal("constraint violation must not be reported as a store failure")
	}
}

func TestAutofillMissingIsNotAnError(t *testing.T) {
	svc := NewService(&fakeStore{})
	rec, err := svc.Autofill(context.Background(), "e1", "dev-1")
	if err != nil {
		t.Fatalf("autofill: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected no record, got %+v", rec)
	}
}

func TestSuggestMinimumLength(t *testing.T) {
	store := &fakeStore{queryErr: errors.New("should not be called")}
	svc := NewService(store)

	recs, err := svc.Suggest(context.Background(), "e1", "Ju")
	if err != nil || recs != nil {
		t.Fatalf("short fragment must not query the store: %v, %v", recs, err)
	}
}
