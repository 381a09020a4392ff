package gpuwire

import "errors"

// Wire errors.
var (
	// ErrWireCorrupt is returned when a frame cannot be decoded: truncated
	// data, an unknown frame kind, a misaligned body size, or a payload
	// overrunning the stream. The protocol is not self-synchronizing, so
	// decode failures tear the wire down.
	ErrWireCorrupt = errors.New("gpuwire: corrupt wire stream")

	// ErrWireClosed is returned when operating on a wire endpoint after a
	// fatal error has torn it down. The original failure is retained and
	// reported by Err() on the endpoint.
	ErrWireClosed = errors.New("gpuwire: wire is closed")

	// ErrSerialReuse is returned when a map request serial collides with
	// one still outstanding for the same buffer. This implies 2^32 map
	// requests in flight on one buffer and is treated as wire-fatal.
	ErrSerialReuse = errors.New("gpuwire: map request serial reuse")

	// ErrHandleReuse names a handle id allocated while the previous object
	// at that slot has not been acknowledged as released. handle.Table
	// never reallocates a tombstoned slot, so no operation in this module
	// returns it.
	ErrHandleReuse = errors.New("gpuwire: handle id reuse before release ack")
)
