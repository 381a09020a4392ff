package server

import "github.com/gogpu/gpuwire"

// Gpu is the native backend boundary. The server re-executes wire commands
// against it and never touches GPU state directly. halgpu provides the
// production implementation over gogpu/wgpu; tests substitute recording
// fakes.
type Gpu interface {
	// CreateBuffer creates a native buffer. An error marks the wire
	// object as failed; the client proxy transitions to its error state.
	CreateBuffer(desc gpuwire.BufferDescriptor) (GpuBuffer, error)

	// CreateFence creates a native timeline fence at initialValue.
	CreateFence(initialValue uint64) (GpuFence, error)

	// CreateShaderModule creates a native shader module from SPIR-V.
	CreateShaderModule(spirv []uint32) (GpuShaderModule, error)
}

// GpuBuffer is a native buffer handle.
//
// The async map calls invoke done exactly once when the native mapping
// settles; done may run synchronously inside the call. The server decides
// at that moment whether the completion is still wanted — a backend must
// not assume its completion produces a wire frame.
type GpuBuffer interface {
	// MapReadAsync maps [offset, offset+size) for reading. On
	// gpuwire.MapSuccess, data holds the mapped bytes and is valid until
	// done returns.
	MapReadAsync(offset, size uint64, done func(status gpuwire.MapStatus, data []byte))

	// MapWriteAsync maps [offset, offset+size) for writing. On
	// gpuwire.MapSuccess, region is the native mapped memory; bytes the
	// server copies into it before Unmap reach the buffer.
	MapWriteAsync(offset, size uint64, done func(status gpuwire.MapStatus, region []byte))

	// Unmap unmaps the buffer, flushing written bytes.
	Unmap()

	// Destroy releases the native handle. The server only calls this
	// through the fenced deleter, once the GPU no longer references the
	// buffer.
	Destroy()
}

// GpuFence is a native timeline fence handle.
type GpuFence interface {
	// Signal asks the GPU to signal the fence to value after prior work
	// completes, then invokes done exactly once.
	Signal(value uint64, done func(status gpuwire.FenceStatus))

	// Destroy releases the native handle (fenced-deleter rules apply).
	Destroy()
}

// GpuShaderModule is a native shader module handle.
type GpuShaderModule interface {
	Destroy()
}
