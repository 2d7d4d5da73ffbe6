// Package code turns a scanned or typed string into an event reference.
package code

import (
	"net/url"
	"strings"

	"github.com/google/uuid"

	"geolock/internal/attendance"
)

// attendPathSegment marks an attendance entry URL produced by the event
// management UI; the QR image encodes exactly such a URL.
const attendPathSegment = "/attend/"

// Resolution is the outcome of parsing one scanned/entered string.
type Resolution struct {
	// Ref is either a canonical event ID or a short event code; lookup
	// accepts both, so malformed input simply fails there as not-found.
	Ref string
	// ByID reports whether Ref matched the canonical identifier format.
	ByID bool
	// Direction is the extracted direction when the input carried one
	// explicitly, otherwise the ambient selection passed by the caller.
	Direction attendance.Direction
}

// Resolve parses raw input from a QR decode or manual entry. The ambient
// direction is the user's current check-in/check-out selection; it is only
// overridden when the input itself names a valid direction.
func Resolve(raw string, ambient attendance.Direction) Resolution {
	clean := strings.TrimSpace(raw)

	if idx := strings.Index(clean, attendPathSegment); idx >= 0 {
		rest := clean[idx+len(attendPathSegment):]
		dir := ambient

		ref := rest
		if q := strings.IndexByte(rest, '?'); q >= 0 {
			ref = rest[:q]
			if vals, err := url.ParseQuery(rest[q+1:]); err == nil {
				if d, ok := attendance.ParseDirection(vals.Get("type")); ok {
					dir = d
				}
			}
		}
		ref = strings.Trim(ref, "/")
		if slash := strings.IndexByte(ref, '/'); slash >= 0 {
			ref = ref[:slash]
		}
		return Resolution{Ref: ref, ByID: isCanonicalID(ref), Direction: dir}
	}

	if isCanonicalID(clean) {
		return Resolution{Ref: clean, ByID: true, Direction: ambient}
	}

	// Anything else is a short event code; pass it through untouched and
	// let event lookup decide whether it exists.
	return Resolution{Ref: clean, Direction: ambient}
}

func isCanonicalID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
