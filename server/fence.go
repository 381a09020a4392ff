package server

import "github.com/gogpu/gpuwire"

// serverFence shims one wire fence onto its native handle. Signals run
// through the native fence; successful completions are reported back to
// the client as completed-value frames, in signal order.
type serverFence struct {
	s             *Server
	id            uint64
	gpu           GpuFence
	signaledValue uint64
}

func (f *serverFence) onSignal(value uint64) {
	// The client validates monotonicity before sending; a violation here
	// means a misbehaving client, not a protocol error.
	if value <= f.signaledValue {
		f.s.log.Warn("non-increasing fence signal", "id", f.id, "value", value, "signaled", f.signaledValue)
		return
	}
	f.signaledValue = value
	f.gpu.Signal(value, func(status gpuwire.FenceStatus) {
		if status != gpuwire.FenceSuccess {
			f.s.log.Warn("native fence signal failed", "id", f.id, "value", value, "status", status)
			return
		}
		f.s.enc.FenceCompletedValue(f.id, value)
	})
}

func (f *serverFence) onRelease() {
	f.s.deleter.deferAt(f.s.submittedFence+1, f.gpu.Destroy)
}
