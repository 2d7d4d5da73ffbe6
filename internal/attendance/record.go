package attendance

import "time"

// Direction says which way an attendance submission goes.
type Direction string

const (
	CheckIn  Direction = "check-in"
	CheckOut Direction = "check-out"
)

// ParseDirection maps a wire value to a Direction.
func ParseDirection(s string) (Direction, bool) {
	switch Direction(s) {
	case CheckIn:
		return CheckIn, true
	case CheckOut:
		return CheckOut, true
	}
	return "", false
}

// Profile holds the participant details captured at submission time.
type Profile struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	ParticipantKey string `json:"participant_key"`
	Faculty        string `json:"faculty"`
	Program        string `json:"program"`
	YearLevel      string `json:"year_level"`
}

// Record is one persisted attendance submission. Records are written exactly
// once per admitted attempt and never mutated afterwards.
type Record struct {
	ID          string    `json:"id"`
	EventID     string    `json:"event_id"`
	DeviceID    string    `json:"device_id"`
	Direction   Direction `json:"direction"`
	Profile     Profile   `json:"profile"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	SubmittedAt time.Time `json:"submitted_at"`
}
