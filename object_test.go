package gpuwire_test

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpuwire"
	"github.com/gogpu/gpuwire/wiretest"
)

// minimalWGSL is a compute entry point small enough to translate anywhere.
const minimalWGSL = `
@compute @workgroup_size(1)
fn main() {
}
`

// Buffer descriptors cross the wire intact.
func TestCreateBufferDescriptorRoundTrip(t *testing.T) {
	gpu := &wiretest.FakeGpu{}
	pair := wiretest.NewPair(gpu)

	usage := gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst
	pair.Client.Device().CreateBuffer(gpuwire.BufferDescriptor{Size: 4096, Usage: usage})
	pair.MustFlushClient(t)

	if len(gpu.Buffers) != 1 {
		t.Fatalf("server created %d buffers, want 1", len(gpu.Buffers))
	}
	desc := gpu.Buffers[0].Desc
	if desc.Size != 4096 || desc.Usage != usage {
		t.Errorf("server descriptor = %+v", desc)
	}
}

// WGSL source crosses the wire and is compiled server-side into SPIR-V.
func TestShaderModuleRoundTrip(t *testing.T) {
	gpu := &wiretest.FakeGpu{}
	pair := wiretest.NewPair(gpu)

	module := pair.Client.Device().CreateShaderModule(minimalWGSL)
	pair.MustRoundTrip(t)

	if module.CreationFailed() {
		t.Fatal("module reports creation failure for valid source")
	}
	if len(gpu.Shaders) != 1 {
		t.Fatalf("server created %d shader modules, want 1", len(gpu.Shaders))
	}
	if len(gpu.Shaders[0].SPIRV) == 0 {
		t.Error("compiled SPIR-V is empty")
	}

	module.Release()
	pair.MustFlushClient(t)
	if !gpu.Shaders[0].Destroyed {
		t.Error("native module not reclaimed after release")
	}
}

// Invalid WGSL produces a creation error control frame; the proxy reports
// the failure after the flush round-trip.
func TestShaderModuleInvalidSource(t *testing.T) {
	gpu := &wiretest.FakeGpu{}
	pair := wiretest.NewPair(gpu)

	module := pair.Client.Device().CreateShaderModule("this is not wgsl {")
	pair.MustRoundTrip(t)

	if !module.CreationFailed() {
		t.Error("module does not report creation failure for invalid source")
	}
	if len(gpu.Shaders) != 0 {
		t.Errorf("server created %d shader modules from invalid source", len(gpu.Shaders))
	}
}

// A released handle is not reallocated until the server's ack
// round-trips, so an in-flight completion can never land on a new object
// at the same id.
func TestHandleNotReusedUntilAck(t *testing.T) {
	gpu := &wiretest.FakeGpu{}
	pair := wiretest.NewPair(gpu)
	dev := pair.Client.Device()

	desc := gpuwire.BufferDescriptor{Size: 16, Usage: gputypes.BufferUsageMapRead}

	first := dev.CreateBuffer(desc)
	firstID := first.ID()
	first.Release()

	// No flush yet: the slot is tombstoned, not free.
	second := dev.CreateBuffer(desc)
	if second.ID() == firstID {
		t.Fatalf("id %#x reused before release ack", firstID)
	}

	pair.MustFlushClient(t) // release ack applies

	third := dev.CreateBuffer(desc)
	if third.ID() == firstID || third.ID() == second.ID() {
		t.Errorf("recycled id %#x collides with a live or stale id", third.ID())
	}
}

// Release returns immediately; the native handle dies only when the
// deleter is ticked past its last-use fence.
func TestFencedDeleterReclaim(t *testing.T) {
	gpu := &wiretest.FakeGpu{}
	pair := wiretest.NewPair(gpu)

	buf := pair.Client.Device().CreateBuffer(gpuwire.BufferDescriptor{
		Size:  16,
		Usage: gputypes.BufferUsageMapRead,
	})
	pair.MustFlushClient(t)

	buf.Release()
	// Drive the server by hand to observe the deferred state.
	if err := pair.Server.HandleCommands(pair.Client.TakeCommands()); err != nil {
		t.Fatalf("HandleCommands: %v", err)
	}
	if gpu.Buffers[0].Destroyed {
		t.Fatal("native buffer destroyed before its fence completed")
	}
	if pair.Server.PendingReclaims() != 1 {
		t.Fatalf("PendingReclaims() = %d, want 1", pair.Server.PendingReclaims())
	}

	// A fence value below the last-use fence reclaims nothing.
	if n := pair.Server.ReclaimCompleted(pair.Server.LastSubmittedFence() - 1); n != 0 {
		t.Errorf("ReclaimCompleted(early) reclaimed %d resources", n)
	}
	if n := pair.Server.ReclaimCompleted(pair.Server.LastSubmittedFence()); n != 1 {
		t.Errorf("ReclaimCompleted reclaimed %d resources, want 1", n)
	}
	if !gpu.Buffers[0].Destroyed {
		t.Error("native buffer still alive after reclaim")
	}
}

// A corrupt command stream tears the server down and sticks.
func TestServerTeardownOnCorruptCommands(t *testing.T) {
	gpu := &wiretest.FakeGpu{}
	pair := wiretest.NewPair(gpu)

	pair.Client.Device().CreateBuffer(gpuwire.BufferDescriptor{
		Size:  16,
		Usage: gputypes.BufferUsageMapRead,
	})
	pair.MustFlushClient(t)

	err := pair.Server.HandleCommands([]byte{0xff, 0xee})
	if !errors.Is(err, gpuwire.ErrWireCorrupt) {
		t.Fatalf("HandleCommands err = %v, want ErrWireCorrupt", err)
	}
	if pair.Server.Err() == nil {
		t.Error("Err() is nil after teardown")
	}
	if !gpu.Buffers[0].Destroyed {
		t.Error("native resources not reclaimed on teardown")
	}
	if err := pair.Server.HandleCommands(nil); !errors.Is(err, gpuwire.ErrWireClosed) {
		t.Errorf("post-teardown HandleCommands err = %v, want ErrWireClosed", err)
	}
}

// Completion frames on the command stream are a protocol violation.
func TestServerRejectsCompletionFrames(t *testing.T) {
	gpu := &wiretest.FakeGpu{}
	pair := wiretest.NewPair(gpu)

	var enc gpuwire.Encoder
	enc.ObjectReleaseAck(1)
	err := pair.Server.HandleCommands(enc.Take())
	if !errors.Is(err, gpuwire.ErrWireCorrupt) {
		t.Errorf("HandleCommands err = %v, want ErrWireCorrupt", err)
	}
}
