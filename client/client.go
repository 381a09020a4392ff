// Package client implements the client side of the gpuwire command wire:
// proxy objects that record GPU commands against handles, and the dispatch
// machinery that routes server completions back to user callbacks.
//
// A Client and everything reachable from it is confined to one goroutine,
// the client wire thread. User callbacks run on that goroutine: during
// DispatchCompletions, or during Unmap/Release when a cancellation is
// synthesized locally.
package client

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/gpuwire"
	"github.com/gogpu/gpuwire/internal/handle"
)

// completionEvent is one queued user-visible completion: either a frame
// received from the server or a locally synthesized result for a request
// that never crossed the wire.
type completionEvent struct {
	kind   gpuwire.FrameKind
	id     uint64
	serial uint32
	status gpuwire.MapStatus
	value  uint64 // fence completed value
	data   []byte // read-map success payload
}

// Client is the client endpoint of the wire. It owns the handle table, the
// map-request registry, the outbound command stream, and the inbound
// completion queue.
//
// Client is not safe for concurrent use.
type Client struct {
	enc      gpuwire.Encoder
	objects  handle.Table[any]
	registry mapRequestRegistry
	queue    []completionEvent
	device   *Device
	log      *slog.Logger
	err      error
}

// New creates a client endpoint.
func New() *Client {
	c := &Client{log: gpuwire.Logger()}
	c.device = &Device{c: c}
	c.device.queue = &Queue{c: c}
	return c
}

// Device returns the device proxy through which objects are created.
func (c *Client) Device() *Device { return c.device }

// Err returns the sticky wire error, or nil while the wire is healthy.
func (c *Client) Err() error { return c.err }

// TakeCommands returns the serialized commands recorded since the last
// call and resets the outbound stream. The embedder delivers the bytes to
// server.Server.HandleCommands.
func (c *Client) TakeCommands() []byte {
	return c.enc.Take()
}

// HandleCompletions consumes a completion stream produced by the server.
// Control frames (creation errors, release acks) are applied to proxy
// state immediately; callback-bearing completions are queued until
// DispatchCompletions. The client takes ownership of data; the caller must
// not reuse the backing array.
//
// A decode failure is fatal: the wire is torn down, every pending request
// is drained with an Unknown callback, and the error sticks.
func (c *Client) HandleCompletions(data []byte) error {
	if c.err != nil {
		return fmt.Errorf("%w: %w", gpuwire.ErrWireClosed, c.err)
	}
	dec := gpuwire.NewDecoder(data)
	for {
		f, ok, err := dec.Next()
		if err != nil {
			c.fail(err)
			return err
		}
		if !ok {
			return nil
		}
		if !f.Kind.IsCompletion() {
			err := fmt.Errorf("%w: command frame %s on the completion stream", gpuwire.ErrWireCorrupt, f.Kind)
			c.fail(err)
			return err
		}
		if f.Kind.IsControl() {
			c.applyControl(f)
			continue
		}
		ev := completionEvent{kind: f.Kind, id: f.ID, serial: f.Serial}
		switch f.Kind {
		case gpuwire.KindMapReadComplete:
			ev.status = f.Status()
			ev.data = f.Payload()
		case gpuwire.KindMapWriteComplete:
			ev.status = f.Status()
		case gpuwire.KindFenceCompletedValue:
			ev.value = f.ValueBody()
		}
		c.queue = append(c.queue, ev)
	}
}

// DispatchCompletions drains the inbound queue, invoking user callbacks.
// Completions for a buffer are delivered in the order the server produced
// them; across objects no order is guaranteed.
func (c *Client) DispatchCompletions() error {
	if c.err != nil {
		return fmt.Errorf("%w: %w", gpuwire.ErrWireClosed, c.err)
	}
	// Callbacks may queue further synthetic completions (e.g. mapping an
	// error buffer from inside a callback); an index loop picks them up
	// in the same drain.
	for i := 0; i < len(c.queue); i++ {
		if c.err != nil {
			return c.err
		}
		ev := c.queue[i]
		switch ev.kind {
		case gpuwire.KindMapReadComplete, gpuwire.KindMapWriteComplete:
			c.deliverMap(ev)
		case gpuwire.KindFenceCompletedValue:
			c.deliverFenceValue(ev)
		}
	}
	c.queue = nil
	return c.err
}

// queueLocal enqueues a locally synthesized map completion. It is drained
// by the next DispatchCompletions through the same delivery rule as wire
// completions.
func (c *Client) queueLocal(kind gpuwire.FrameKind, id uint64, serial uint32, status gpuwire.MapStatus) {
	c.queue = append(c.queue, completionEvent{kind: kind, id: id, serial: serial, status: status})
}

// applyControl mutates proxy state for a control frame. Control frames
// never carry callbacks, so applying them during HandleCompletions keeps
// all user code inside DispatchCompletions.
func (c *Client) applyControl(f gpuwire.Frame) {
	switch f.Kind {
	case gpuwire.KindBufferCreationError:
		if b, ok := c.buffer(f.ID); ok {
			b.state = BufferError
		} else {
			c.log.Warn("creation error for unknown buffer", "id", f.ID)
		}
	case gpuwire.KindShaderModuleCreationError:
		if m, ok := c.shader(f.ID); ok {
			m.creationFailed = true
		} else {
			c.log.Warn("creation error for unknown shader module", "id", f.ID)
		}
	case gpuwire.KindObjectReleaseAck:
		if !c.objects.Ack(f.ID) {
			c.log.Warn("release ack for non-tombstoned handle", "id", f.ID)
		}
	}
}

// deliverMap applies the delivery rule to one map completion:
//
//  1. Look up the slot by (id, serial); if absent, drop silently — the
//     request was cancelled and the cancellation already produced the
//     user-visible callback.
//  2. Remove the slot, update buffer state, then invoke the callback
//     exactly once. Because the slot is gone before the callback runs,
//     reentrant Unmap/Release cannot produce a second callback.
func (c *Client) deliverMap(ev completionEvent) {
	pm, ok := c.registry.take(ev.id, ev.serial)
	if !ok {
		c.log.Debug("dropping completion for cancelled request",
			"id", ev.id, "serial", ev.serial, "status", ev.status)
		return
	}

	b, live := c.buffer(ev.id)
	status := ev.status
	var data []byte
	if status == gpuwire.MapSuccess {
		switch pm.mode {
		case modeRead:
			data = ev.data
		case modeWrite:
			// The client owns a fresh zero-initialized staging region;
			// its final contents return to the server on Unmap.
			if live {
				b.staging = make([]byte, pm.size)
				data = b.staging
			}
		}
	}

	// State transitions happen before the callback so a reentrant Unmap
	// or Release observes the settled state.
	if live && b.state == BufferMapping && pm.key.serial == b.activeSerial {
		if status == gpuwire.MapSuccess {
			b.state = BufferMapped
			b.mode = pm.mode
		} else {
			b.state = BufferUnmapped
		}
	}

	pm.cb(status, data, pm.userdata)
}

// deliverFenceValue updates a fence's completed value and fires waiters
// that the new value satisfies.
func (c *Client) deliverFenceValue(ev completionEvent) {
	f, ok := c.fence(ev.id)
	if !ok {
		c.log.Debug("dropping fence update for released fence", "id", ev.id)
		return
	}
	f.advance(ev.value)
}

// fail tears the wire down: every pending map request and parked fence
// waiter drains with Unknown, queued completions are discarded, and the
// error sticks. No callback fires after fail returns.
func (c *Client) fail(err error) {
	if c.err != nil {
		return
	}
	c.err = err
	c.queue = nil
	c.log.Error("wire torn down", "err", err)

	for _, pm := range c.registry.drainAll() {
		pm.cb(gpuwire.MapUnknown, nil, pm.userdata)
	}
	c.objects.All(func(_ uint64, v any) {
		if f, ok := v.(*Fence); ok {
			f.drainUnknown()
		}
	})
}

// buffer resolves a live buffer proxy by id.
func (c *Client) buffer(id uint64) (*Buffer, bool) {
	v, ok := c.objects.Get(id)
	if !ok {
		return nil, false
	}
	b, ok := v.(*Buffer)
	return b, ok
}

// fence resolves a live fence proxy by id.
func (c *Client) fence(id uint64) (*Fence, bool) {
	v, ok := c.objects.Get(id)
	if !ok {
		return nil, false
	}
	f, ok := v.(*Fence)
	return f, ok
}

// shader resolves a live shader module proxy by id.
func (c *Client) shader(id uint64) (*ShaderModule, bool) {
	v, ok := c.objects.Get(id)
	if !ok {
		return nil, false
	}
	m, ok := v.(*ShaderModule)
	return m, ok
}
