package server

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/gpuwire"
)

type serverMapMode uint8

const (
	serverMapRead serverMapMode = iota
	serverMapWrite
)

// serverBuffer shims one wire buffer onto its native handle. It issues
// native async maps and decides, when the native completion arrives,
// whether the client still wants it: if an unmap command cleared the
// active request in between, the completion is dropped without a frame —
// the client already accounted for the request through its own
// cancellation.
type serverBuffer struct {
	s     *Server
	id    uint64
	gpu   GpuBuffer
	size  uint64
	usage gputypes.BufferUsage

	// At most one request is active against the native buffer. The
	// serial gates native completions: a completion whose serial no
	// longer matches is stale.
	hasActive    bool
	activeSerial uint32

	mapped     bool
	mappedMode serverMapMode

	// writeRegion is the native mapped region of an active write map;
	// the client's staging bytes land here on unmap.
	writeRegion []byte
}

// validateMap checks a map request against buffer state, range, and usage.
func (b *serverBuffer) validateMap(mode serverMapMode, offset, size uint64) bool {
	if b.mapped || b.hasActive {
		return false
	}
	if offset > b.size || size > b.size-offset {
		return false
	}
	if mode == serverMapRead && !b.usage.Contains(gputypes.BufferUsageMapRead) {
		return false
	}
	if mode == serverMapWrite && !b.usage.Contains(gputypes.BufferUsageMapWrite) {
		return false
	}
	return true
}

func (b *serverBuffer) onMapRead(serial uint32, offset, size uint64) {
	if !b.validateMap(serverMapRead, offset, size) {
		b.s.enc.MapReadComplete(b.id, serial, gpuwire.MapError, nil)
		return
	}
	b.hasActive = true
	b.activeSerial = serial
	b.gpu.MapReadAsync(offset, size, func(status gpuwire.MapStatus, data []byte) {
		if !b.hasActive || b.activeSerial != serial {
			b.s.log.Debug("dropping stale native read completion", "id", b.id, "serial", serial)
			return
		}
		b.hasActive = false
		if !status.IsWireable() {
			status = gpuwire.MapError
		}
		if status != gpuwire.MapSuccess {
			b.s.enc.MapReadComplete(b.id, serial, status, nil)
			return
		}
		b.mapped = true
		b.mappedMode = serverMapRead
		b.s.enc.MapReadComplete(b.id, serial, gpuwire.MapSuccess, data)
	})
}

func (b *serverBuffer) onMapWrite(serial uint32, offset, size uint64) {
	if !b.validateMap(serverMapWrite, offset, size) {
		b.s.enc.MapWriteComplete(b.id, serial, gpuwire.MapError)
		return
	}
	b.hasActive = true
	b.activeSerial = serial
	b.gpu.MapWriteAsync(offset, size, func(status gpuwire.MapStatus, region []byte) {
		if !b.hasActive || b.activeSerial != serial {
			b.s.log.Debug("dropping stale native write completion", "id", b.id, "serial", serial)
			return
		}
		b.hasActive = false
		if !status.IsWireable() {
			status = gpuwire.MapError
		}
		if status != gpuwire.MapSuccess {
			b.s.enc.MapWriteComplete(b.id, serial, status)
			return
		}
		b.mapped = true
		b.mappedMode = serverMapWrite
		b.writeRegion = region
		b.s.enc.MapWriteComplete(b.id, serial, gpuwire.MapSuccess)
	})
}

// onUnmap applies a client unmap. For write maps the payload — the staging
// region's final contents, sent on the wire just ahead of the unmap
// command — is copied into the native mapped region before unmapping. An
// unmap that arrives while a request is still active clears it, so the
// eventual native completion is dropped.
func (b *serverBuffer) onUnmap(payload []byte) {
	b.hasActive = false
	if !b.mapped {
		return
	}
	if b.mappedMode == serverMapWrite && b.writeRegion != nil {
		copy(b.writeRegion, payload)
	}
	b.gpu.Unmap()
	b.mapped = false
	b.writeRegion = nil
}

// onRelease retires the shim. The native handle survives until the GPU is
// known to no longer reference it: destruction is deferred to the current
// batch's fence.
func (b *serverBuffer) onRelease() {
	b.hasActive = false
	if b.mapped {
		b.gpu.Unmap()
		b.mapped = false
		b.writeRegion = nil
	}
	b.s.deleter.deferAt(b.s.submittedFence+1, b.gpu.Destroy)
}
