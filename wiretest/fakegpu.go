package wiretest

import (
	"github.com/gogpu/gpuwire"
	"github.com/gogpu/gpuwire/server"
)

// FakeGpu is an in-memory server.Gpu. Buffers are plain byte slices; maps
// complete synchronously. Configure failure injection through the error
// fields, which are read at command execution time (i.e. during
// FlushClient).
type FakeGpu struct {
	// CreateBufferErr fails buffer creation while set.
	CreateBufferErr error
	// CreateFenceErr fails fence creation while set.
	CreateFenceErr error
	// CreateShaderErr fails shader module creation while set.
	CreateShaderErr error

	// Created objects, in creation order.
	Buffers []*FakeBuffer
	Fences  []*FakeFence
	Shaders []*FakeShaderModule
}

var _ server.Gpu = (*FakeGpu)(nil)

// CreateBuffer creates a FakeBuffer backed by a zeroed byte slice.
func (g *FakeGpu) CreateBuffer(desc gpuwire.BufferDescriptor) (server.GpuBuffer, error) {
	if g.CreateBufferErr != nil {
		return nil, g.CreateBufferErr
	}
	b := &FakeBuffer{Desc: desc, Contents: make([]byte, desc.Size)}
	g.Buffers = append(g.Buffers, b)
	return b, nil
}

// CreateFence creates a FakeFence at initialValue.
func (g *FakeGpu) CreateFence(initialValue uint64) (server.GpuFence, error) {
	if g.CreateFenceErr != nil {
		return nil, g.CreateFenceErr
	}
	f := &FakeFence{Value: initialValue}
	g.Fences = append(g.Fences, f)
	return f, nil
}

// CreateShaderModule records the compiled SPIR-V.
func (g *FakeGpu) CreateShaderModule(spirv []uint32) (server.GpuShaderModule, error) {
	if g.CreateShaderErr != nil {
		return nil, g.CreateShaderErr
	}
	m := &FakeShaderModule{SPIRV: spirv}
	g.Shaders = append(g.Shaders, m)
	return m, nil
}

// FakeBuffer is a byte-slice-backed native buffer. Write-map regions alias
// Contents directly, so bytes the server copies in on unmap are
// immediately visible to the test.
type FakeBuffer struct {
	Desc     gpuwire.BufferDescriptor
	Contents []byte

	// ForceMapError fails the native map while set.
	ForceMapError bool

	MapReadCalls  int
	MapWriteCalls int
	UnmapCalls    int
	Destroyed     bool
}

func (b *FakeBuffer) MapReadAsync(offset, size uint64, done func(gpuwire.MapStatus, []byte)) {
	b.MapReadCalls++
	if b.ForceMapError {
		done(gpuwire.MapError, nil)
		return
	}
	done(gpuwire.MapSuccess, b.Contents[offset:offset+size])
}

func (b *FakeBuffer) MapWriteAsync(offset, size uint64, done func(gpuwire.MapStatus, []byte)) {
	b.MapWriteCalls++
	if b.ForceMapError {
		done(gpuwire.MapError, nil)
		return
	}
	done(gpuwire.MapSuccess, b.Contents[offset:offset+size])
}

func (b *FakeBuffer) Unmap() { b.UnmapCalls++ }

func (b *FakeBuffer) Destroy() { b.Destroyed = true }

// FakeFence signals synchronously.
type FakeFence struct {
	Value       uint64
	SignalCalls int
	Destroyed   bool

	// ForceSignalError fails signals while set.
	ForceSignalError bool
}

func (f *FakeFence) Signal(value uint64, done func(gpuwire.FenceStatus)) {
	f.SignalCalls++
	if f.ForceSignalError {
		done(gpuwire.FenceError)
		return
	}
	f.Value = value
	done(gpuwire.FenceSuccess)
}

func (f *FakeFence) Destroy() { f.Destroyed = true }

// FakeShaderModule records the SPIR-V it was created from.
type FakeShaderModule struct {
	SPIRV     []uint32
	Destroyed bool
}

func (m *FakeShaderModule) Destroy() { m.Destroyed = true }
