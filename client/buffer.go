package client

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/gpuwire"
)

// BufferState is the mapping state of a buffer proxy.
type BufferState int

const (
	// BufferUnmapped means no map request is outstanding or mapped.
	BufferUnmapped BufferState = iota
	// BufferMapping means a map request is in flight.
	BufferMapping
	// BufferMapped means a map request succeeded and has not been unmapped.
	BufferMapped
	// BufferError means server-side creation failed; map requests on the
	// buffer complete with MapError without crossing the wire.
	BufferError
)

// String returns the string representation of BufferState.
func (s BufferState) String() string {
	switch s {
	case BufferUnmapped:
		return "Unmapped"
	case BufferMapping:
		return "Mapping"
	case BufferMapped:
		return "Mapped"
	case BufferError:
		return "Error"
	default:
		return fmt.Sprintf("BufferState(%d)", int(s))
	}
}

// Buffer is the client proxy for a GPU buffer. All methods must be called
// on the client wire goroutine.
type Buffer struct {
	c     *Client
	id    uint64
	size  uint64
	usage gputypes.BufferUsage
	state BufferState

	// mode is the direction of the current mapping; valid while state is
	// BufferMapping or BufferMapped.
	mode mapMode

	// nextSerial allocates per-buffer request serials. It wraps modulo
	// 2^32; the registry rejects a collision with an outstanding slot.
	nextSerial uint32

	// activeSerial is the request that owns the state machine. Redundant
	// requests issued while one is outstanding get registry slots but do
	// not drive state transitions.
	activeSerial uint32

	// staging is the write-map staging region: zero-initialized on
	// successful write-map delivery, owned by the buffer until Unmap,
	// when its contents are sent ahead of the unmap command.
	staging []byte

	released  bool
	unmapping bool
}

// ID returns the buffer's wire handle.
func (b *Buffer) ID() uint64 { return b.id }

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 { return b.size }

// State returns the proxy's mapping state.
func (b *Buffer) State() BufferState { return b.state }

// MapReadAsync requests a read mapping of [offset, offset+size). cb is
// invoked exactly once with the result; on MapSuccess the data slice holds
// the buffer contents and is valid until the callback returns.
//
// Map failures are never reported synchronously: a request on an error or
// already-mapped buffer still allocates a registry slot and completes with
// MapError through the normal dispatch path.
func (b *Buffer) MapReadAsync(offset, size uint64, cb gpuwire.MapCallback, userdata uint64) {
	b.mapAsync(modeRead, offset, size, cb, userdata)
}

// MapWriteAsync requests a write mapping of [offset, offset+size). On
// MapSuccess the callback receives a zero-initialized staging region of
// length size, owned by the buffer until Unmap; bytes written into it are
// transferred to the server when Unmap is called.
func (b *Buffer) MapWriteAsync(offset, size uint64, cb gpuwire.MapCallback, userdata uint64) {
	b.mapAsync(modeWrite, offset, size, cb, userdata)
}

func (b *Buffer) mapAsync(mode mapMode, offset, size uint64, cb gpuwire.MapCallback, userdata uint64) {
	c := b.c
	if cb == nil {
		cb = func(gpuwire.MapStatus, []byte, uint64) {}
	}
	if c.err != nil {
		// The wire is gone; there will be no dispatch to complete this
		// through. Completing here is the only way to keep the
		// exactly-once guarantee.
		cb(gpuwire.MapUnknown, nil, userdata)
		return
	}

	serial := b.nextSerial
	b.nextSerial++
	pm := &pendingMap{
		key:      mapKey{id: b.id, serial: serial},
		offset:   offset,
		size:     size,
		mode:     mode,
		cb:       cb,
		userdata: userdata,
	}
	if err := c.registry.insert(pm); err != nil {
		c.fail(err)
		// fail drained only the slots already in the registry; this
		// request never got one, so it completes here.
		cb(gpuwire.MapUnknown, nil, userdata)
		return
	}

	kind := gpuwire.KindMapReadComplete
	if mode == modeWrite {
		kind = gpuwire.KindMapWriteComplete
	}
	switch {
	case b.released || b.state == BufferError:
		// Known-dead buffer: short-circuit without a wire frame. The
		// synthetic completion goes through the same delivery rule, so
		// a cancellation in between still wins.
		c.queueLocal(kind, b.id, serial, gpuwire.MapError)
	case b.state != BufferUnmapped:
		// Redundant request: send it anyway so the server's validation
		// produces the Error completion in order with everything else.
		b.encodeMap(mode, serial, offset, size)
	default:
		b.state = BufferMapping
		b.mode = mode
		b.activeSerial = serial
		b.encodeMap(mode, serial, offset, size)
	}
}

func (b *Buffer) encodeMap(mode mapMode, serial uint32, offset, size uint64) {
	if mode == modeWrite {
		b.c.enc.MapWriteAsync(b.id, serial, offset, size)
	} else {
		b.c.enc.MapReadAsync(b.id, serial, offset, size)
	}
	b.c.log.Debug("map async", "id", b.id, "serial", serial, "mode", mode, "offset", offset, "size", size)
}

// Unmap cancels any in-flight map request (synthesizing an Unknown callback
// before Unmap returns) and unmaps the buffer. For a mapped write buffer
// the staging region's final contents are sent ahead of the unmap command.
//
// Unmap on an error buffer is a local no-op: no frame is sent.
func (b *Buffer) Unmap() {
	c := b.c
	if b.unmapping {
		return
	}
	b.unmapping = true
	defer func() { b.unmapping = false }()

	for _, pm := range c.registry.cancelAllForBuffer(b.id) {
		pm.cb(gpuwire.MapUnknown, nil, pm.userdata)
	}
	if b.released || b.state == BufferError || c.err != nil {
		return
	}

	var payload []byte
	if b.state == BufferMapped && b.mode == modeWrite {
		payload = b.staging
	}
	b.staging = nil
	b.state = BufferUnmapped
	c.enc.Unmap(b.id, payload)
	c.log.Debug("unmap", "id", b.id, "payloadBytes", len(payload))
}

// Release drops the external reference to the buffer. Any in-flight map
// request completes with Unknown before Release returns; no callback for
// this buffer fires afterwards. The native resource is reclaimed by the
// server's fenced deleter once the GPU no longer references it.
func (b *Buffer) Release() {
	c := b.c
	if b.released {
		return
	}
	b.released = true

	for _, pm := range c.registry.cancelAllForBuffer(b.id) {
		pm.cb(gpuwire.MapUnknown, nil, pm.userdata)
	}
	b.staging = nil
	if c.err == nil {
		c.enc.ReleaseBuffer(b.id)
	}
	c.objects.Release(b.id)
	c.log.Debug("release buffer", "id", b.id)
}
