// Package geofence decides whether a device is close enough to an event
// venue to record attendance.
package geofence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"geolock/internal/geo"
)

// State tracks one proximity check. A check is single-shot: Denied is
// terminal for the attempt and the only recovery is restarting the flow.
type State int

const (
	Idle State = iota
	Locating
	Verified
	Denied
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Locating:
		return "locating"
	case Verified:
		return "verified"
	case Denied:
		return "denied"
	}
	return "unknown"
}

// Reason classifies a denial.
type Reason string

const (
	ReasonOutOfRange  Reason = "out_of_range"
	ReasonPermission  Reason = "permission_denied"
	ReasonUnavailable Reason = "unavailable"
	ReasonTimeout     Reason = "timeout"
)

// Position is a single device fix.
type Position struct {
	Point     geo.Point
	AccuracyM float64
}

// PositionError is returned by providers when the fix itself failed.
type PositionError struct {
	Reason Reason
	Err    error
}

func (e *PositionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("position fix failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("position fix failed (%s)", e.Reason)
}

func (e *PositionError) Unwrap() error { return e.Err }

// PositionProvider delivers one fresh high-accuracy fix. Cached positions are
// not acceptable; the provider must request a new fix each call.
type PositionProvider interface {
	CurrentPosition(ctx context.Context) (Position, error)
}

// PositionFunc adapts a function to PositionProvider.
type PositionFunc func(ctx context.Context) (Position, error)

func (f PositionFunc) CurrentPosition(ctx context.Context) (Position, error) { return f(ctx) }

// Result is the gate's verdict for one attempt.
type Result struct {
	State       State
	Position    Position
	DistanceM   float64
	HasDistance bool
	Reason      Reason
	Message     string
}

const (
	// DefaultSlackM absorbs consumer-GPS inaccuracy on top of the event radius.
	DefaultSlackM = 20.0
	// DefaultFixTimeout bounds the wait for a device fix.
	DefaultFixTimeout = 10 * time.Second
	// DefaultConfirmDelay holds the Verified state briefly so the user sees
	// positive confirmation before the flow advances.
	DefaultConfirmDelay = 2 * time.Second
)

// Options tune a Gate; zero values fall back to the defaults above. A
// negative ConfirmDelay disables the pause entirely.
type Options struct {
	SlackM       float64
	FixTimeout   time.Duration
	ConfirmDelay time.Duration
}

// Gate runs the Idle -> Locating -> Verified | Denied check.
type Gate struct {
	provider PositionProvider
	opts     Options

	mu    sync.Mutex
	state State
}

// NewGate creates a gate around a position provider.
func NewGate(provider PositionProvider, opts Options) *Gate {
	if opts.SlackM <= 0 {
		opts.SlackM = DefaultSlackM
	}
	if opts.FixTimeout <= 0 {
		opts.FixTimeout = DefaultFixTimeout
	}
	if opts.ConfirmDelay == 0 {
		opts.ConfirmDelay = DefaultConfirmDelay
	} else if opts.ConfirmDelay < 0 {
		opts.ConfirmDelay = 0
	}
	return &Gate{provider: provider, opts: opts, state: Idle}
}

// State reports the current phase of the check.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Gate) setState(s State) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
}

// Check requests one fix and decides admit/deny against the event geofence.
// On admission it waits the confirmation delay before returning so callers
// advance only after the pause. This is not continuous monitoring: a user
// admitted here is not re-checked if they leave the radius before submitting.
func (g *Gate) Check(ctx context.Context, center geo.Point, radiusM float64) Result {
	g.setState(Locating)

	fixCtx, cancel := context.WithTimeout(ctx, g.opts.FixTimeout)
	defer cancel()

	pos, err := g.provider.CurrentPosition(fixCtx)
	if err != nil {
		g.setState(Denied)
		return denialFromFixError(err)
	}

	res := Decide(pos, center, radiusM, g.opts.SlackM)
	g.setState(res.State)

	if res.State == Verified && g.opts.ConfirmDelay > 0 {
		t := time.NewTimer(g.opts.ConfirmDelay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
		}
	}
	return res
}

// Decide is the pure admit/deny rule: within radius + slack admits.
func Decide(pos Position, center geo.Point, radiusM, slackM float64) Result {
	dist := geo.Distance(pos.Point, center)
	if dist <= radiusM+slackM {
		return Result{
			State:       Verified,
			Position:    pos,
			DistanceM:   dist,
			HasDistance: true,
			Message:     fmt.Sprintf("You are within %.0fm of the event venue.", dist),
		}
	}
	return Result{
		State:       Denied,
		Position:    pos,
		DistanceM:   dist,
		HasDistance: true,
		Reason:      ReasonOutOfRange,
		Message:     fmt.Sprintf("You are ~%.0fm away. You must be within %.0fm to record attendance.", dist, radiusM),
	}
}

func denialFromFixError(err error) Result {
	var perr *PositionError
	if errors.As(err, &perr) {
		switch perr.Reason {
		case ReasonPermission:
			return Result{State: Denied, Reason: ReasonPermission,
				Message: "Location access denied. Please enable GPS."}
		case ReasonUnavailable:
			return Result{State: Denied, Reason: ReasonUnavailable,
				Message: "Geolocation is not available on this device."}
		case ReasonTimeout:
			return Result{State: Denied, Reason: ReasonTimeout,
				Message: "Timed out waiting for a location fix."}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Result{State: Denied, Reason: ReasonTimeout,
			Message: "Timed out waiting for a location fix."}
	}
	return Result{State: Denied, Reason: ReasonUnavailable,
		Message: "Could not determine your location."}
}
