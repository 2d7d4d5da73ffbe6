package code

import (
	"testing"

	"geolock/internal/attendance"
)

const eventID = "5b7a2c40-9f13-4d6e-8a21-3c1f0e9d7b55"

func TestResolveAttendURLWithDirection(t *testing.T) {
	raw := "  https://geolock.app/attend/" + eventID + "?type=check-out  "
	res := Resolve(raw, attendance.CheckIn)
	if res.Ref != eventID {
		t.Fatalf("ref: got %q, want %q", res.Ref, eventID)
	}
	if !res.ByID {
		t.Fatal("expected canonical-ID resolution")
	}
	if res.Direction != attendance.CheckOut {
		t.Fatalf("direction: got %q, want check-out (explicit param wins)", res.Direction)
	}
}

func TestResolveAttendURLWithoutDirection(t *testing.T) {
	res := Resolve("https://geolock.app/attend/"+eventID, attendance.CheckOut)
	if res.Ref != eventID || !res.ByID {
		t.Fatalf("unexpected resolution: %+v", res)
	}
	if res.Direction != attendance.CheckOut {
		t.Fatalf("ambient direction should stand, got %q", res.Direction)
	}
}

func TestResolveAttendURLInvalidDirectionParam(t *testing.T) {
	res := Resolve("https://geolock.app/attend/"+eventID+"?type=sideways", attendance.CheckIn)
	if res.Direction != attendance.CheckIn {
		t.Fatalf("invalid type param must not override ambient, got %q", res.Direction)
	}
}

func TestResolveBareUUID(t *testing.T) {
	res := Resolve(eventID, attendance.CheckIn)
	if res.Ref != eventID || !res.ByID {
		t.Fatalf("unexpected resolution: %+v", res)
	}
}

func TestResolveShortCodePassthrough(t *testing.T) {
	res := Resolve("ABC123", attendance.CheckIn)
	if res.Ref != "ABC123" {
		t.Fatalf("short code must pass through unmodified, got %q", res.Ref)
	}
	if res.ByID {
		t.Fatal("short code must not be treated as a canonical ID")
	}
}

func TestResolveTrimsWhitespaceOnly(t *testing.T) {
	res := Resolve("  abc123\n", attendance.CheckIn)
	if res.Ref != "abc123" {
		t.Fatalf("got %q", res.Ref)
	}
}

func TestResolveMalformedURLStillYieldsRef(t *testing.T) {
	// Garbage embedded ids are not an error here; lookup reports not-found.
	res := Resolve("https://geolock.app/attend/not-a-real-id?type=check-in", attendance.CheckOut)
	if res.Ref != "not-a-real-id" {
		t.Fatalf("got %q", res.Ref)
	}
	if res.ByID {
		t.Fatal("non-canonical ref must not claim ByID")
	}
	if res.Direction != attendance.CheckIn {
		t.Fatalf("explicit direction should still apply, got %q", res.Direction)
	}
}
