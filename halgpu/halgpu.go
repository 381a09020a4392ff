// Package halgpu implements the server.Gpu backend over gogpu/wgpu's
// hardware abstraction layer. It is the production backend: wire commands
// re-executed by server.Server land on a real hal.Device and hal.Queue.
//
// The HAL has no native async buffer mapping, so maps are emulated the way
// the rest of the GoGPU stack does readback and upload: read maps copy the
// range out with Queue.ReadBuffer and complete immediately; write maps hand
// out a scratch region that Unmap flushes with Queue.WriteBuffer.
package halgpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpuwire"
	"github.com/gogpu/gpuwire/server"
)

// Backend errors.
var (
	// ErrNilDevice is returned when constructing a backend without a device.
	ErrNilDevice = errors.New("halgpu: device and queue are required")

	// ErrNoHAL is returned when a device provider does not expose HAL types.
	ErrNoHAL = errors.New("halgpu: provider does not expose HAL types")
)

// fenceWaitTimeout bounds how long a fence signal may take before it is
// reported as failed (nanoseconds).
const fenceWaitTimeout = 5_000_000_000

// Gpu is a server.Gpu backed by a hal.Device and hal.Queue. It does not
// own the device or the queue; it destroys only the buffers, fences and
// shader modules it created.
type Gpu struct {
	device hal.Device
	queue  hal.Queue
}

// New creates a backend over an existing device and queue.
func New(device hal.Device, queue hal.Queue) (*Gpu, error) {
	if device == nil || queue == nil {
		return nil, ErrNilDevice
	}
	return &Gpu{device: device, queue: queue}, nil
}

// FromProvider creates a backend from a shared gpucontext device provider,
// the same device-sharing path the gg accelerator uses. The provider must
// expose HalDevice() any and HalQueue() any returning hal.Device and
// hal.Queue.
func FromProvider(provider gpucontext.DeviceProvider) (*Gpu, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHAL)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHAL)
	}
	return New(device, queue)
}

// CreateBuffer creates a native buffer for a wire descriptor.
func (g *Gpu) CreateBuffer(desc gpuwire.BufferDescriptor) (server.GpuBuffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("halgpu: buffer size is 0")
	}
	buf, err := g.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "wire_buffer",
		Size:  desc.Size,
		Usage: desc.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("halgpu: create buffer: %w", err)
	}
	return &halBuffer{g: g, buf: buf, size: desc.Size}, nil
}

// CreateFence creates a native timeline fence. HAL fences start at zero;
// a non-zero initial value is recorded as already signaled.
func (g *Gpu) CreateFence(initialValue uint64) (server.GpuFence, error) {
	fence, err := g.device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("halgpu: create fence: %w", err)
	}
	f := &halFence{g: g, fence: fence}
	if initialValue > 0 {
		if err := g.queue.Submit(nil, fence, initialValue); err != nil {
			g.device.DestroyFence(fence)
			return nil, fmt.Errorf("halgpu: seed fence value: %w", err)
		}
	}
	return f, nil
}

// CreateShaderModule creates a native shader module from SPIR-V produced
// by the server's WGSL translation.
func (g *Gpu) CreateShaderModule(spirv []uint32) (server.GpuShaderModule, error) {
	module, err := g.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "wire_shader",
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return nil, fmt.Errorf("halgpu: create shader module: %w", err)
	}
	return &halShaderModule{g: g, module: module}, nil
}

// halBuffer emulates async mapping over the HAL copy queue.
type halBuffer struct {
	g    *Gpu
	buf  hal.Buffer
	size uint64

	// write state between MapWriteAsync and Unmap
	writeRegion []byte
	writeOffset uint64
}

func (b *halBuffer) MapReadAsync(offset, size uint64, done func(gpuwire.MapStatus, []byte)) {
	data := make([]byte, size)
	if err := b.g.queue.ReadBuffer(b.buf, offset, data); err != nil {
		gpuwire.Logger().Warn("halgpu read map failed", "offset", offset, "size", size, "err", err)
		done(gpuwire.MapError, nil)
		return
	}
	done(gpuwire.MapSuccess, data)
}

func (b *halBuffer) MapWriteAsync(offset, size uint64, done func(gpuwire.MapStatus, []byte)) {
	b.writeRegion = make([]byte, size)
	b.writeOffset = offset
	done(gpuwire.MapSuccess, b.writeRegion)
}

func (b *halBuffer) Unmap() {
	if b.writeRegion != nil {
		b.g.queue.WriteBuffer(b.buf, b.writeOffset, b.writeRegion)
		b.writeRegion = nil
	}
}

func (b *halBuffer) Destroy() {
	b.writeRegion = nil
	b.g.device.DestroyBuffer(b.buf)
}

// halFence signals through an empty submission carrying the fence value,
// then waits for the device to report it, the same submit-and-wait shape
// the HAL adapters use for flushes.
type halFence struct {
	g     *Gpu
	fence hal.Fence
}

func (f *halFence) Signal(value uint64, done func(gpuwire.FenceStatus)) {
	if err := f.g.queue.Submit(nil, f.fence, value); err != nil {
		gpuwire.Logger().Warn("halgpu fence submit failed", "value", value, "err", err)
		done(gpuwire.FenceError)
		return
	}
	ok, err := f.g.device.Wait(f.fence, value, fenceWaitTimeout)
	if err != nil || !ok {
		gpuwire.Logger().Warn("halgpu fence wait failed", "value", value, "ok", ok, "err", err)
		done(gpuwire.FenceError)
		return
	}
	done(gpuwire.FenceSuccess)
}

func (f *halFence) Destroy() {
	f.g.device.DestroyFence(f.fence)
}

type halShaderModule struct {
	g      *Gpu
	module hal.ShaderModule
}

func (m *halShaderModule) Destroy() {
	m.g.device.DestroyShaderModule(m.module)
}
