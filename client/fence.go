package client

import (
	"sort"

	"github.com/gogpu/gpuwire"
)

// Fence is the client proxy for a timeline fence. The completed value is a
// client-side cache: it only advances when the server's completed-value
// frames are dispatched, so it can lag the last signaled value.
type Fence struct {
	c      *Client
	device *Device
	id     uint64

	completedValue uint64
	signaledValue  uint64

	// parked waiters, sorted by value ascending, ties in registration
	// order. Fired as the completed value advances past them.
	parked []fenceWaiter

	released bool
}

type fenceWaiter struct {
	value    uint64
	cb       gpuwire.FenceCallback
	userdata uint64
}

// ID returns the fence's wire handle.
func (f *Fence) ID() uint64 { return f.id }

// CompletedValue returns the last value the server has reported complete.
// It does not advance without a flush round-trip.
func (f *Fence) CompletedValue() uint64 { return f.completedValue }

// OnCompletion registers cb to fire once the fence's completed value
// reaches value. If it already has, cb fires immediately with
// FenceSuccess. Waiting on a value beyond the last signaled value is a
// validation error: the device error callback fires and cb completes
// immediately with FenceError.
//
// Waiters fire in order of increasing value; ties fire in registration
// order.
func (f *Fence) OnCompletion(value uint64, cb gpuwire.FenceCallback, userdata uint64) {
	if cb == nil {
		cb = func(gpuwire.FenceStatus, uint64) {}
	}
	if f.released || f.c.err != nil {
		cb(gpuwire.FenceUnknown, userdata)
		return
	}
	if value <= f.completedValue {
		cb(gpuwire.FenceSuccess, userdata)
		return
	}
	if value > f.signaledValue {
		f.device.emitError("fence completion value greater than last signaled value")
		cb(gpuwire.FenceError, userdata)
		return
	}

	f.parked = append(f.parked, fenceWaiter{value: value, cb: cb, userdata: userdata})
	sort.SliceStable(f.parked, func(i, j int) bool { return f.parked[i].value < f.parked[j].value })
}

// advance applies a completed-value frame: waiters satisfied by the new
// value fire in order.
func (f *Fence) advance(value uint64) {
	if value > f.completedValue {
		f.completedValue = value
	}
	for len(f.parked) > 0 && f.parked[0].value <= f.completedValue {
		w := f.parked[0]
		f.parked = f.parked[1:]
		w.cb(gpuwire.FenceSuccess, w.userdata)
	}
}

// drainUnknown fires every parked waiter with FenceUnknown. Used by
// Release and wire teardown.
func (f *Fence) drainUnknown() {
	parked := f.parked
	f.parked = nil
	for _, w := range parked {
		w.cb(gpuwire.FenceUnknown, w.userdata)
	}
}

// Release drops the fence. Parked waiters complete with FenceUnknown
// before Release returns; no callback for this fence fires afterwards.
func (f *Fence) Release() {
	c := f.c
	if f.released {
		return
	}
	f.released = true
	f.drainUnknown()
	if c.err == nil {
		c.enc.ReleaseFence(f.id)
	}
	c.objects.Release(f.id)
	c.log.Debug("release fence", "id", f.id)
}

// Queue is the client proxy for the device's command queue. Signal is its
// only wire operation; submission itself is a backend concern outside the
// wire contract.
type Queue struct {
	c *Client
}

// Signal asks the server to signal fence to value once prior GPU work
// completes. The value must be strictly greater than the last signaled
// value for the fence; violations fire the device error callback and send
// nothing.
func (q *Queue) Signal(fence *Fence, value uint64) {
	c := q.c
	if fence.released || c.err != nil {
		return
	}
	if value <= fence.signaledValue {
		c.device.emitError("fence signal value less than or equal to last signaled value")
		return
	}
	fence.signaledValue = value
	c.enc.SignalFence(fence.id, value)
	c.log.Debug("queue signal", "fence", fence.id, "value", value)
}
