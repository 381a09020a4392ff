package gpuwire_test

import (
	"testing"

	"github.com/gogpu/gpuwire"
	"github.com/gogpu/gpuwire/client"
	"github.com/gogpu/gpuwire/wiretest"
)

// fenceFixture is the shared setup for fence tests: a fence created at
// value 1, already present on both sides.
type fenceFixture struct {
	gpu      *wiretest.FakeGpu
	pair     *wiretest.Pair
	fence    *client.Fence
	apiFence *wiretest.FakeFence
	queue    *client.Queue
	devErr   wiretest.ErrorRecorder
}

func newFenceFixture(t *testing.T) *fenceFixture {
	t.Helper()
	gpu := &wiretest.FakeGpu{}
	pair := wiretest.NewPair(gpu)
	dev := pair.Client.Device()

	f := &fenceFixture{gpu: gpu, pair: pair, queue: dev.Queue()}
	dev.SetErrorCallback(f.devErr.Callback(), 9157)

	f.fence = dev.CreateFence(1)
	pair.MustFlushClient(t)
	if len(gpu.Fences) != 1 {
		t.Fatalf("server created %d fences, want 1", len(gpu.Fences))
	}
	f.apiFence = gpu.Fences[0]
	return f
}

// Signaling a fence round-trips: the native fence signals and the client's
// completed value follows.
func TestQueueSignalSuccess(t *testing.T) {
	f := newFenceFixture(t)

	f.queue.Signal(f.fence, 2)
	f.queue.Signal(f.fence, 3)
	f.pair.MustRoundTrip(t)

	if f.apiFence.SignalCalls != 2 {
		t.Errorf("native signals = %d, want 2", f.apiFence.SignalCalls)
	}
	if f.apiFence.Value != 3 {
		t.Errorf("native fence value = %d, want 3", f.apiFence.Value)
	}
	if got := f.fence.CompletedValue(); got != 3 {
		t.Errorf("CompletedValue() = %d, want 3", got)
	}
}

// Without any flushes, strictly increasing signal values pass client-side
// validation.
func TestQueueSignalValidationSuccess(t *testing.T) {
	f := newFenceFixture(t)

	f.queue.Signal(f.fence, 2)
	f.queue.Signal(f.fence, 4)
	f.queue.Signal(f.fence, 5)

	if len(f.devErr.Calls) != 0 {
		t.Errorf("device error callback fired %d times, want 0", len(f.devErr.Calls))
	}
}

// Signaling a value at or below the last signaled value is a synchronous
// validation error; nothing is sent.
func TestQueueSignalValidationError(t *testing.T) {
	f := newFenceFixture(t)

	f.queue.Signal(f.fence, 0) // error: below initial value
	if len(f.devErr.Calls) != 1 {
		t.Fatalf("device error calls = %d, want 1", len(f.devErr.Calls))
	}
	if f.devErr.Calls[0].Userdata != 9157 {
		t.Errorf("error userdata = %d, want 9157", f.devErr.Calls[0].Userdata)
	}

	f.queue.Signal(f.fence, 1) // error: equal to initial value
	if len(f.devErr.Calls) != 2 {
		t.Fatalf("device error calls = %d, want 2", len(f.devErr.Calls))
	}

	f.queue.Signal(f.fence, 4) // success
	if len(f.devErr.Calls) != 2 {
		t.Fatalf("device error calls = %d after valid signal, want 2", len(f.devErr.Calls))
	}

	f.queue.Signal(f.fence, 3) // error: below last signaled
	if len(f.devErr.Calls) != 3 {
		t.Fatalf("device error calls = %d, want 3", len(f.devErr.Calls))
	}

	// None of the rejected signals reached the server.
	f.pair.MustRoundTrip(t)
	if f.apiFence.SignalCalls != 1 {
		t.Errorf("native signals = %d, want 1", f.apiFence.SignalCalls)
	}
}

// Completion callbacks for values the fence already passed fire
// immediately.
func TestOnCompletionImmediate(t *testing.T) {
	f := newFenceFixture(t)

	var rec wiretest.FenceRecorder
	f.fence.OnCompletion(0, rec.Callback(), 9847)
	f.fence.OnCompletion(1, rec.Callback(), 4347)

	if len(rec.Calls) != 2 {
		t.Fatalf("callbacks fired %d times, want 2", len(rec.Calls))
	}
	for i, want := range []uint64{9847, 4347} {
		if rec.Calls[i].Status != gpuwire.FenceSuccess || rec.Calls[i].Userdata != want {
			t.Errorf("call %d = %+v, want Success/%d", i, rec.Calls[i], want)
		}
	}
}

// Parked callbacks fire in order of increasing fence value; ties fire in
// registration order.
func TestOnCompletionMultiple(t *testing.T) {
	f := newFenceFixture(t)

	f.queue.Signal(f.fence, 3)
	f.queue.Signal(f.fence, 6)

	var rec wiretest.FenceRecorder
	// Registered in a non-monotonic order, with a duplicate value.
	f.fence.OnCompletion(6, rec.Callback(), 2134)
	f.fence.OnCompletion(2, rec.Callback(), 7134)
	f.fence.OnCompletion(3, rec.Callback(), 3144)
	f.fence.OnCompletion(2, rec.Callback(), 1130)

	f.pair.MustRoundTrip(t)

	want := []uint64{7134, 1130, 3144, 2134}
	if len(rec.Calls) != len(want) {
		t.Fatalf("callbacks fired %d times, want %d", len(rec.Calls), len(want))
	}
	for i, w := range want {
		if rec.Calls[i].Userdata != w || rec.Calls[i].Status != gpuwire.FenceSuccess {
			t.Errorf("call %d = %+v, want Success/%d", i, rec.Calls[i], w)
		}
	}
}

// Waiting on values at or below the last signaled value passes validation
// even before any flush.
func TestOnCompletionValidationSuccess(t *testing.T) {
	f := newFenceFixture(t)
	f.queue.Signal(f.fence, 4)

	var rec wiretest.FenceRecorder
	f.fence.OnCompletion(2, rec.Callback(), 0)
	f.fence.OnCompletion(3, rec.Callback(), 0)
	f.fence.OnCompletion(4, rec.Callback(), 0)

	if len(f.devErr.Calls) != 0 {
		t.Errorf("device error calls = %d, want 0", len(f.devErr.Calls))
	}
	if len(rec.Calls) != 0 {
		t.Errorf("callbacks fired %d times before flush, want 0", len(rec.Calls))
	}
}

// Waiting past the last signaled value is a validation error: the device
// error callback fires and the wait completes with FenceError.
func TestOnCompletionValidationError(t *testing.T) {
	f := newFenceFixture(t)

	var rec wiretest.FenceRecorder
	f.fence.OnCompletion(2, rec.Callback(), 3817)

	if len(rec.Calls) != 1 || rec.Calls[0].Status != gpuwire.FenceError || rec.Calls[0].Userdata != 3817 {
		t.Errorf("calls = %+v, want one FenceError/3817", rec.Calls)
	}
	if len(f.devErr.Calls) != 1 {
		t.Errorf("device error calls = %d, want 1", len(f.devErr.Calls))
	}
}

// The completed value starts at the fence's initial value.
func TestCompletedValueInitialization(t *testing.T) {
	f := newFenceFixture(t)
	if got := f.fence.CompletedValue(); got != 1 {
		t.Errorf("CompletedValue() = %d, want 1", got)
	}
}

// The completed value follows signals after a flush round-trip.
func TestCompletedValueUpdate(t *testing.T) {
	f := newFenceFixture(t)
	f.queue.Signal(f.fence, 3)
	f.pair.MustRoundTrip(t)
	if got := f.fence.CompletedValue(); got != 3 {
		t.Errorf("CompletedValue() = %d, want 3", got)
	}
}

// Without a flush, the completed value does not move.
func TestCompletedValueNoUpdate(t *testing.T) {
	f := newFenceFixture(t)
	f.queue.Signal(f.fence, 3)
	if got := f.fence.CompletedValue(); got != 1 {
		t.Errorf("CompletedValue() = %d without flush, want 1", got)
	}
}

// Releasing a fence with parked waiters completes them with FenceUnknown
// before Release returns, and no callback fires afterwards.
func TestReleaseBeforeOnCompletionEnd(t *testing.T) {
	f := newFenceFixture(t)
	f.queue.Signal(f.fence, 3)

	var rec wiretest.FenceRecorder
	f.fence.OnCompletion(2, rec.Callback(), 8616)

	f.fence.Release()
	if len(rec.Calls) != 1 || rec.Calls[0].Status != gpuwire.FenceUnknown || rec.Calls[0].Userdata != 8616 {
		t.Fatalf("calls = %+v, want one FenceUnknown/8616", rec.Calls)
	}

	// The completed-value frame for value 3 arrives anyway; it must be
	// dropped for the released fence.
	f.pair.MustRoundTrip(t)
	if len(rec.Calls) != 1 {
		t.Errorf("callbacks fired %d times, want 1", len(rec.Calls))
	}

	f.pair.MustFlushClient(t)
	if !f.apiFence.Destroyed {
		t.Error("native fence not reclaimed after release")
	}
}
