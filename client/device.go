package client

import "github.com/gogpu/gpuwire"

// Device is the client proxy through which wire objects are created. There
// is one per Client.
type Device struct {
	c           *Client
	queue       *Queue
	errCb       gpuwire.ErrorCallback
	errUserdata uint64
}

// Queue returns the device's queue proxy.
func (d *Device) Queue() *Queue { return d.queue }

// SetErrorCallback installs the callback that receives client-side
// validation failures which have no request to complete. Pass nil to
// remove it.
func (d *Device) SetErrorCallback(cb gpuwire.ErrorCallback, userdata uint64) {
	d.errCb = cb
	d.errUserdata = userdata
}

// emitError reports a validation failure through the error callback, if one
// is installed. The callback runs synchronously inside the failing call.
func (d *Device) emitError(msg string) {
	d.c.log.Warn("validation error", "msg", msg)
	if d.errCb != nil {
		d.errCb(msg, d.errUserdata)
	}
}

// CreateBuffer allocates a buffer proxy and records the creation command.
// Creation itself cannot fail on the client; if the server fails to create
// the buffer, the proxy transitions to the error state and subsequent map
// requests on it complete with MapError.
func (d *Device) CreateBuffer(desc gpuwire.BufferDescriptor) *Buffer {
	b := &Buffer{
		c:     d.c,
		size:  desc.Size,
		usage: desc.Usage,
		state: BufferUnmapped,
	}
	b.id = d.c.objects.Alloc(b)
	d.c.enc.CreateBuffer(b.id, desc)
	d.c.log.Debug("create buffer", "id", b.id, "size", desc.Size)
	return b
}

// CreateFence allocates a fence proxy with the given initial value and
// records the creation command. The completed value starts at initialValue
// and only advances when completion frames arrive from the server.
func (d *Device) CreateFence(initialValue uint64) *Fence {
	f := &Fence{
		c:              d.c,
		device:         d,
		completedValue: initialValue,
		signaledValue:  initialValue,
	}
	f.id = d.c.objects.Alloc(f)
	d.c.enc.CreateFence(f.id, initialValue)
	d.c.log.Debug("create fence", "id", f.id, "initial", initialValue)
	return f
}

// CreateShaderModule allocates a shader module proxy and sends the WGSL
// source to the server for compilation. Compilation failure surfaces
// through ShaderModule.CreationFailed after the next flush round-trip.
func (d *Device) CreateShaderModule(wgsl string) *ShaderModule {
	m := &ShaderModule{c: d.c}
	m.id = d.c.objects.Alloc(m)
	d.c.enc.CreateShaderModule(m.id, wgsl)
	d.c.log.Debug("create shader module", "id", m.id, "sourceBytes", len(wgsl))
	return m
}
