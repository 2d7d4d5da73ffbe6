// Package scan runs the camera decode loop: poll frames from a source, try
// to decode each one, and stop on the first hit or on cancellation. The
// camera itself and the QR decoding are external collaborators supplied as a
// FrameSource and a DecodeFunc.
package scan

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Frame is one raw video frame handed to the decoder.
type Frame struct {
	Data   []byte
	Width  int
	Height int
}

// FrameSource delivers frames from an acquired camera stream. Close releases
// the underlying stream and must be safe to call exactly once.
type FrameSource interface {
	NextFrame(ctx context.Context) (Frame, error)
	Close() error
}

// DecodeFunc attempts to extract an encoded string from a frame.
type DecodeFunc func(Frame) (string, bool)

// ErrNoDecoder is returned when a scanner is built without a decode function.
var ErrNoDecoder = errors.New("scan: no decode function")

// DefaultInterval approximates display-refresh polling.
const DefaultInterval = 16 * time.Millisecond

// Scanner polls a frame source until a code is found or the context ends.
type Scanner struct {
	src      FrameSource
	decode   DecodeFunc
	interval time.Duration
}

// New creates a scanner. A non-positive interval falls back to the default.
func New(src FrameSource, decode DecodeFunc, interval time.Duration) *Scanner {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scanner{src: src, decode: decode, interval: interval}
}

// Run polls frames until one decodes, the context is cancelled, or the source
// fails. Found-code, cancellation, and teardown all converge here: the source
// is released on every exit path, exactly once.
func (s *Scanner) Run(ctx context.Context) (code string, err error) {
	defer func() {
		if cerr := s.src.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("release frame source: %w", cerr)
		}
	}()

	if s.decode == nil {
		return "", ErrNoDecoder
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		frame, ferr := s.src.NextFrame(ctx)
		if ferr != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("next frame: %w", ferr)
		}
		if decoded, ok := s.decode(frame); ok {
			return decoded, nil
		}
	}
}
