// Package session owns one attendance attempt end to end: resolve the
// scanned code, look up the event, pass the geofence gate, autofill the
// check-out form, and hand the completed form to the admission controller.
// Steps run strictly in that order; no step starts before its predecessor
// resolves.
package session

import (
	"context"
	"errors"
	"sync"

	"geolock/internal/attendance"
	"geolock/internal/code"
	"geolock/internal/device"
	"geolock/internal/event"
	"geolock/internal/geo"
	"geolock/internal/geofence"
)

// Phase is the attempt's position in the flow.
type Phase int

const (
	Idle Phase = iota
	Resolving
	Locating
	Verified
	AwaitingForm
	Submitting
	Succeeded
	Errored
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Resolving:
		return "resolving"
	case Locating:
		return "locating"
	case Verified:
		return "verified"
	case AwaitingForm:
		return "awaiting_form"
	case Submitting:
		return "submitting"
	case Succeeded:
		return "succeeded"
	case Errored:
		return "errored"
	}
	return "unknown"
}

// FailureCode classifies terminal attempt failures.
type FailureCode string

const (
	FailNotFound            FailureCode = "not_found"
	FailNotActive           FailureCode = "not_active"
	FailLocationDenied      FailureCode = "location_denied"
	FailLocationUnavailable FailureCode = "location_unavailable"
	FailLocationTimeout     FailureCode = "location_timeout"
	FailOutOfRange          FailureCode = "out_of_range"
	FailDuplicate           FailureCode = "duplicate_submission"
	FailStore               FailureCode = "store_error"
)

// Failure is the single terminal error shape every failed attempt converges
// on. Recovery is always an explicit restart; nothing retries on its own.
type Failure struct {
	Code    FailureCode
	Message string
}

func (f *Failure) Error() string { return f.Message }

var (
	// ErrBadPhase means a method was called out of order.
	ErrBadPhase = errors.New("attempt is not in the right phase")
	// ErrSuperseded means the attempt was reset while an effect was in
	// flight; the stale result was discarded without touching state.
	ErrSuperseded = errors.New("attempt superseded")
)

// EventFinder resolves an identifier-or-code to an active event.
type EventFinder interface {
	FindActive(ctx context.Context, ref string, byID bool) (event.Event, error)
}

// LocationGate runs the proximity check. *geofence.Gate implements it.
type LocationGate interface {
	Check(ctx context.Context, center geo.Point, radiusM float64) geofence.Result
}

// Admitter is the admission controller surface. *attendance.Service
// implements it.
type Admitter interface {
	Autofill(ctx context.Context, eventID, deviceID string) (*attendance.Record, error)
	Suggest(ctx context.Context, eventID, name string) ([]attendance.Record, error)
	Submit(ctx context.Context, sub attendance.Submission) (attendance.Record, error)
}

// Deps wires an attempt's collaborators.
type Deps struct {
	Events  EventFinder
	Gate    LocationGate
	Admit   Admitter
	Devices device.Provider
}

// Attempt is the per-attempt session state. One attempt is exclusively owned
// by one flow; a new attempt means a new Attempt value or a Reset.
type Attempt struct {
	deps Deps

	mu        sync.Mutex
	seq       uint64
	phase     Phase
	direction attendance.Direction
	evt       event.Event
	gateRes   geofence.Result
	autofill  *attendance.Record
	locked    bool
	failure   *Failure
	record    attendance.Record
}

// New creates an idle attempt.
func New(deps Deps) *Attempt {
	return &Attempt{deps: deps}
}

// Phase reports the current phase.
func (a *Attempt) Phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

// Event returns the resolved event; valid once the attempt has passed lookup.
func (a *Attempt) Event() event.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.evt
}

// GateResult returns the geofence verdict, including measured distance.
func (a *Attempt) GateResult() geofence.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gateRes
}

// Autofill returns the pre-populated check-in record, if any, and whether the
// form is locked read-only because of it.
func (a *Attempt) Autofill() (*attendance.Record, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.autofill, a.locked
}

// Failure returns the terminal failure when the attempt is Errored.
func (a *Attempt) Failure() *Failure {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failure
}

// Record returns the persisted record once the attempt has Succeeded.
func (a *Attempt) Record() attendance.Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.record
}

// Reset abandons the attempt and returns to Idle. In-flight effects from the
// abandoned attempt are discarded when they land.
func (a *Attempt) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	a.phase = Idle
	a.direction = ""
	a.evt = event.Event{}
	a.gateRes = geofence.Result{}
	a.autofill = nil
	a.locked = false
	a.failure = nil
	a.record = attendance.Record{}
}

// begin transitions Idle to the given phase and returns the sequence number
// guarding this attempt's effects.
func (a *Attempt) begin(p Phase) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase != Idle {
		return 0, ErrBadPhase
	}
	a.phase = p
	return a.seq, nil
}

// apply runs fn under the lock unless the attempt has been reset since seq
// was taken, in which case the result is stale and dropped.
func (a *Attempt) apply(seq uint64, fn func()) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.seq != seq {
		return ErrSuperseded
	}
	fn()
	return nil
}

func (a *Attempt) fail(seq uint64, f *Failure) error {
	if err := a.apply(seq, func() {
		a.phase = Errored
		a.failure = f
	}); err != nil {
		return err
	}
	return f
}

// Start drives the attempt from a scanned or typed string through event
// lookup, the geofence gate, and check-out autofill, ending at AwaitingForm.
// The ambient direction is the user's current selection; a direction embedded
// in the input overrides it.
func (a *Attempt) Start(ctx context.Context, raw string, ambient attendance.Direction) error {
	seq, err := a.begin(Resolving)
	if err != nil {
		return err
	}

	res := code.Resolve(raw, ambient)
	if err := a.apply(seq, func() { a.direction = res.Direction }); err != nil {
		return err
	}

	evt, lookupErr := a.deps.Events.FindActive(ctx, res.Ref, res.ByID)
	if lookupErr != nil {
		return a.fail(seq, failureFromLookup(lookupErr))
	}
	if err := a.apply(seq, func() {
		a.evt = evt
		a.phase = Locating
	}); err != nil {
		return err
	}

	gateRes := a.deps.Gate.Check(ctx, evt.Center, evt.RadiusM)
	if gateRes.State != geofence.Verified {
		if err := a.apply(seq, func() { a.gateRes = gateRes }); err != nil {
			return err
		}
		return a.fail(seq, failureFromGate(gateRes))
	}
	if err := a.apply(seq, func() {
		a.gateRes = gateRes
		a.phase = Verified
	}); err != nil {
		return err
	}

	// Check-out pre-populates from this device's prior check-in and locks
	// the form so identity cannot be swapped between the two directions.
	// A missing record degrades to an empty, editable form.
	if res.Direction == attendance.CheckOut {
		tok, derr := a.deps.Devices.GetOrCreate(ctx)
		if derr != nil {
			return a.fail(seq, &Failure{Code: FailStore, Message: "System error. Please try again."})
		}
		rec, aerr := a.deps.Admit.Autofill(ctx, evt.ID, string(tok))
		if aerr != nil {
			return a.fail(seq, &Failure{Code: FailStore, Message: "System error. Please try again."})
		}
		if err := a.apply(seq, func() {
			a.autofill = rec
			a.locked = rec != nil
		}); err != nil {
			return err
		}
	}

	return a.apply(seq, func() { a.phase = AwaitingForm })
}

// Suggest searches prior check-ins by name for the check-out form. It only
// answers while the form is open, the direction is check-out, and no
// device-level autofill has already resolved the identity.
func (a *Attempt) Suggest(ctx context.Context, name string) ([]attendance.Record, error) {
	a.mu.Lock()
	if a.phase != AwaitingForm || a.direction != attendance.CheckOut || a.locked {
		a.mu.Unlock()
		return nil, nil
	}
	eventID := a.evt.ID
	a.mu.Unlock()

	return a.deps.Admit.Suggest(ctx, eventID, name)
}

// Submit hands the completed form to the admission controller. Validation
// problems return the attempt to AwaitingForm for local re-edit; duplicate
// and store failures are terminal for the attempt.
func (a *Attempt) Submit(ctx context.Context, profile attendance.Profile) (attendance.Record, error) {
	a.mu.Lock()
	if a.phase != AwaitingForm {
		a.mu.Unlock()
		return attendance.Record{}, ErrBadPhase
	}
	seq := a.seq
	a.phase = Submitting
	if a.locked && a.autofill != nil {
		// Locked forms submit the check-in identity verbatim.
		profile = a.autofill.Profile
	}
	sub := attendance.Submission{
		EventID:   a.evt.ID,
		Direction: a.direction,
		Profile:   profile,
		Position:  a.gateRes.Position.Point,
	}
	a.mu.Unlock()

	tok, err := a.deps.Devices.GetOrCreate(ctx)
	if err != nil {
		return attendance.Record{}, a.fail(seq, &Failure{Code: FailStore, Message: "System error. Please try again."})
	}
	sub.DeviceID = string(tok)

	rec, err := a.deps.Admit.Submit(ctx, sub)
	if err != nil {
		var verr *attendance.ValidationError
		if errors.As(err, &verr) {
			if aerr := a.apply(seq, func() { a.phase = AwaitingForm }); aerr != nil {
				return attendance.Record{}, aerr
			}
			return attendance.Record{}, verr
		}
		var dup *attendance.DuplicateError
		if errors.As(err, &dup) {
			return attendance.Record{}, a.fail(seq, &Failure{Code: FailDuplicate, Message: dup.Error()})
		}
		return attendance.Record{}, a.fail(seq, &Failure{Code: FailStore, Message: "Failed to save attendance. Please try again."})
	}

	if aerr := a.apply(seq, func() {
		a.phase = Succeeded
		a.record = rec
	}); aerr != nil {
		return attendance.Record{}, aerr
	}
	return rec, nil
}

func failureFromLookup(err error) *Failure {
	switch {
	case errors.Is(err, event.ErrNotFound):
		return &Failure{Code: FailNotFound, Message: "Event not found."}
	case errors.Is(err, event.ErrNotActive):
		return &Failure{Code: FailNotActive, Message: "Sorry, the event attendance is already closed or not yet started."}
	}
	return &Failure{Code: FailStore, Message: "System error. Please try again."}
}

func failureFromGate(res geofence.Result) *Failure {
	fc := FailOutOfRange
	switch res.Reason {
	case geofence.ReasonPermission:
		fc = FailLocationDenied
	case geofence.ReasonUnavailable:
		fc = FailLocationUnavailable
	case geofence.ReasonTimeout:
		fc = FailLocationTimeout
	}
	return &Failure{Code: fc, Message: res.Message}
}
