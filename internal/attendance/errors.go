package attendance

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStore marks a connectivity or backend failure at a query or write. The
// attempt is recoverable only by restarting; nothing partial is kept.
var ErrStore = errors.New("attendance store failure")

// DuplicateKind says which key collided on a duplicate submission.
type DuplicateKind string

const (
	// KindParticipant: the participant key already has a record.
	KindParticipant DuplicateKind = "participant"
	// KindDevice: this device already has a record, regardless of who
	// claims to be holding it.
	KindDevice DuplicateKind = "device"
)

// DuplicateError is the admission conflict: a matching record already exists
// for this event and direction.
type DuplicateError struct {
	Direction Direction
	Kind      DuplicateKind
}

func (e *DuplicateError) Error() string {
	if e.Direction == CheckOut {
		return "You have already checked out."
	}
	if e.Kind == KindDevice {
		return "This device has already checked in."
	}
	return "You have already checked in."
}

// ValidationError lists required fields missing from a submission. It never
// reaches the store; the form is re-edited locally.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Missing, ", "))
}
