// Package timing provides the monotonic clock and bounded-buffer helpers
// shared across every adapter, following the teacher's preference for small,
// dependency-free leaf packages (cf. the original client/ordered_header.go,
// which is likewise a self-contained utility with no engine-level imports).
package timing

import "time"

// Start returns the current instant. Every duration measurement in the
// engine begins with Start and ends with ElapsedMicros so that all response
// times are computed from the same clock source.
func Start() time.Time {
	return time.Now()
}

// ElapsedMicros returns the number of microseconds elapsed since start. It
// relies on the monotonic reading embedded in time.Time by the runtime, so
// the result is immune to wall-clock adjustments (NTP step, DST, manual
// clock changes) even though Start uses time.Now.
func ElapsedMicros(start time.Time) uint64 {
	d := time.Since(start)
	if d < 0 {
		return 0
	}
	return uint64(d.Microseconds())
}

const (
	// MaxURLBytes bounds a request descriptor's URL field.
	MaxURLBytes = 2 * 1024
	// MaxHeaderBlockBytes bounds the newline-separated header blob.
	MaxHeaderBlockBytes = 8 * 1024
	// MaxBodyBytes bounds a captured request/response body.
	MaxBodyBytes = 64 * 1024
	// MaxProtocolBlobBytes bounds a protocol-specific payload.
	MaxProtocolBlobBytes = 32 * 1024
)

// TruncateBytes returns b trimmed to at most max bytes and whether
// truncation occurred. The caller is responsible for continuing to drain the
// underlying source so the connection remains reusable — TruncateBytes only
// deals with the buffer that is kept.
func TruncateBytes(b []byte, max int) ([]byte, bool) {
	if len(b) <= max {
		return b, false
	}
	out := make([]byte, max)
	copy(out, b[:max])
	return out, true
}

// TruncateText is TruncateBytes for strings, used for header blobs which are
// always text.
func TruncateText(s string, max int) (string, bool) {
	if len(s) <= max {
		return s, false
	}
	return s[:max], true
}
