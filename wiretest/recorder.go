package wiretest

import "github.com/gogpu/gpuwire"

// MapCall is one recorded map callback invocation.
type MapCall struct {
	Status   gpuwire.MapStatus
	Userdata uint64

	// Data is a copy of the callback data, safe to inspect after the
	// callback returned. Nil when the callback received nil.
	Data []byte

	// Live is the slice the callback actually received. For write maps
	// this is the staging region: writing through it before Unmap is how
	// a test updates the buffer.
	Live []byte
}

// MapRecorder records map callback invocations. Inject it through the
// MapCallback capability; there is no process-wide state.
type MapRecorder struct {
	Calls []MapCall

	// Hook, if set, runs inside the callback after recording. Reentrancy
	// tests use it to call Unmap/Release from callback context.
	Hook func(call MapCall)
}

// Callback returns the recording gpuwire.MapCallback.
func (r *MapRecorder) Callback() gpuwire.MapCallback {
	return func(status gpuwire.MapStatus, data []byte, userdata uint64) {
		call := MapCall{Status: status, Userdata: userdata, Live: data}
		if data != nil {
			call.Data = append([]byte(nil), data...)
		}
		r.Calls = append(r.Calls, call)
		if r.Hook != nil {
			r.Hook(call)
		}
	}
}

// FenceCall is one recorded fence callback invocation.
type FenceCall struct {
	Status   gpuwire.FenceStatus
	Userdata uint64
}

// FenceRecorder records fence completion callbacks.
type FenceRecorder struct {
	Calls []FenceCall
}

// Callback returns the recording gpuwire.FenceCallback.
func (r *FenceRecorder) Callback() gpuwire.FenceCallback {
	return func(status gpuwire.FenceStatus, userdata uint64) {
		r.Calls = append(r.Calls, FenceCall{Status: status, Userdata: userdata})
	}
}

// ErrorCall is one recorded device error callback invocation.
type ErrorCall struct {
	Msg      string
	Userdata uint64
}

// ErrorRecorder records device error callbacks.
type ErrorRecorder struct {
	Calls []ErrorCall
}

// Callback returns the recording gpuwire.ErrorCallback.
func (r *ErrorRecorder) Callback() gpuwire.ErrorCallback {
	return func(msg string, userdata uint64) {
		r.Calls = append(r.Calls, ErrorCall{Msg: msg, Userdata: userdata})
	}
}
