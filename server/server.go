// Package server implements the server side of the gpuwire command wire:
// it decodes command streams, re-executes them against a Gpu backend, and
// produces the completion stream that flows back to the client.
//
// A Server is confined to one goroutine, the server wire thread. Commands
// for the same object are executed in the order received; completions are
// appended to the outbound stream in production order.
package server

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/naga"

	"github.com/gogpu/gpuwire"
)

// Server is the server endpoint of the wire.
//
// Server is not safe for concurrent use.
type Server struct {
	gpu     Gpu
	enc     gpuwire.Encoder
	buffers map[uint64]*serverBuffer
	fences  map[uint64]*serverFence
	shaders map[uint64]GpuShaderModule
	deleter fencedDeleter
	log     *slog.Logger
	err     error

	// submittedFence advances once per HandleCommands batch. Resources
	// released during a batch are deferred to the batch's fence value and
	// reclaimed when the embedder reports that value complete.
	submittedFence uint64
}

// New creates a server endpoint executing against gpu.
func New(gpu Gpu) *Server {
	return &Server{
		gpu:     gpu,
		buffers: make(map[uint64]*serverBuffer),
		fences:  make(map[uint64]*serverFence),
		shaders: make(map[uint64]GpuShaderModule),
		log:     gpuwire.Logger(),
	}
}

// Err returns the sticky wire error, or nil while the wire is healthy.
func (s *Server) Err() error { return s.err }

// TakeCompletions returns the serialized completions produced since the
// last call and resets the outbound stream.
func (s *Server) TakeCompletions() []byte {
	return s.enc.Take()
}

// LastSubmittedFence returns the fence value of the most recently
// completed HandleCommands batch.
func (s *Server) LastSubmittedFence() uint64 { return s.submittedFence }

// ReclaimCompleted runs deferred native destructions whose last-use fence
// is at or below completed. The embedder calls this when the GPU signals.
func (s *Server) ReclaimCompleted(completed uint64) int {
	return s.deleter.tick(completed)
}

// PendingReclaims reports how many native destructions await their fence.
func (s *Server) PendingReclaims() int { return s.deleter.len() }

// HandleCommands decodes and executes a command stream in order. Unknown
// object ids are dropped silently (release commands are still
// acknowledged, and map requests still complete with an error so the
// client's callback fires). A decode failure is fatal and tears the wire
// down.
func (s *Server) HandleCommands(data []byte) error {
	if s.err != nil {
		return fmt.Errorf("%w: %w", gpuwire.ErrWireClosed, s.err)
	}
	dec := gpuwire.NewDecoder(data)
	for {
		f, ok, err := dec.Next()
		if err != nil {
			s.fail(err)
			return err
		}
		if !ok {
			break
		}
		if f.Kind.IsCompletion() {
			err := fmt.Errorf("%w: completion frame %s on the command stream", gpuwire.ErrWireCorrupt, f.Kind)
			s.fail(err)
			return err
		}
		s.dispatch(f)
	}
	s.submittedFence++
	return nil
}

func (s *Server) dispatch(f gpuwire.Frame) {
	switch f.Kind {
	case gpuwire.KindDeviceCreateBuffer:
		s.onCreateBuffer(f.ID, f.CreateBufferBody())

	case gpuwire.KindBufferMapReadAsync:
		offset, size := f.MapRangeBody()
		if b, ok := s.buffers[f.ID]; ok {
			b.onMapRead(f.Serial, offset, size)
		} else {
			// Map on an un-created buffer: validation error, but the
			// completion must still flow so the client callback fires.
			s.enc.MapReadComplete(f.ID, f.Serial, gpuwire.MapError, nil)
		}

	case gpuwire.KindBufferMapWriteAsync:
		offset, size := f.MapRangeBody()
		if b, ok := s.buffers[f.ID]; ok {
			b.onMapWrite(f.Serial, offset, size)
		} else {
			s.enc.MapWriteComplete(f.ID, f.Serial, gpuwire.MapError)
		}

	case gpuwire.KindBufferUnmap:
		if b, ok := s.buffers[f.ID]; ok {
			b.onUnmap(f.Payload())
		} else {
			s.log.Debug("unmap for unknown buffer", "id", f.ID)
		}

	case gpuwire.KindBufferRelease:
		if b, ok := s.buffers[f.ID]; ok {
			b.onRelease()
			delete(s.buffers, f.ID)
		}
		// Acknowledge even for unknown ids so the client can recycle the
		// handle slot: creation may have failed server-side.
		s.enc.ObjectReleaseAck(f.ID)

	case gpuwire.KindDeviceCreateFence:
		s.onCreateFence(f.ID, f.ValueBody())

	case gpuwire.KindQueueSignal:
		if fence, ok := s.fences[f.ID]; ok {
			fence.onSignal(f.ValueBody())
		} else {
			s.log.Debug("signal for unknown fence", "id", f.ID)
		}

	case gpuwire.KindFenceRelease:
		if fence, ok := s.fences[f.ID]; ok {
			fence.onRelease()
			delete(s.fences, f.ID)
		}
		s.enc.ObjectReleaseAck(f.ID)

	case gpuwire.KindDeviceCreateShaderModule:
		s.onCreateShaderModule(f.ID, f.ShaderSource())

	case gpuwire.KindShaderModuleRelease:
		if m, ok := s.shaders[f.ID]; ok {
			s.deleter.deferAt(s.submittedFence+1, m.Destroy)
			delete(s.shaders, f.ID)
		}
		s.enc.ObjectReleaseAck(f.ID)
	}
}

func (s *Server) onCreateBuffer(id uint64, desc gpuwire.BufferDescriptor) {
	gpuBuf, err := s.gpu.CreateBuffer(desc)
	if err != nil {
		s.log.Warn("buffer creation failed", "id", id, "size", desc.Size, "err", err)
		s.enc.BufferCreationError(id)
		return
	}
	s.buffers[id] = &serverBuffer{
		s:     s,
		id:    id,
		gpu:   gpuBuf,
		size:  desc.Size,
		usage: desc.Usage,
	}
}

func (s *Server) onCreateFence(id, initialValue uint64) {
	gpuFence, err := s.gpu.CreateFence(initialValue)
	if err != nil {
		// There is no fence creation error frame: the client proxy keeps
		// working locally, its completed value simply never advances.
		s.log.Warn("fence creation failed", "id", id, "err", err)
		return
	}
	s.fences[id] = &serverFence{
		s:             s,
		id:            id,
		gpu:           gpuFence,
		signaledValue: initialValue,
	}
}

// onCreateShaderModule compiles WGSL to SPIR-V and creates the native
// module. The translation step runs server-side so clients never need a
// shader compiler.
func (s *Server) onCreateShaderModule(id uint64, wgsl string) {
	spirvBytes, err := naga.Compile(wgsl)
	if err != nil {
		s.log.Warn("shader compilation failed", "id", id, "err", err)
		s.enc.ShaderModuleCreationError(id)
		return
	}
	spirv := make([]uint32, len(spirvBytes)/4)
	for i := range spirv {
		spirv[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	m, err := s.gpu.CreateShaderModule(spirv)
	if err != nil {
		s.log.Warn("shader module creation failed", "id", id, "err", err)
		s.enc.ShaderModuleCreationError(id)
		return
	}
	s.shaders[id] = m
}

// fail tears the wire down: the error sticks, live native objects are
// destroyed, and deferred reclaims drain immediately. GPU side effects of
// in-flight maps still settle inside the backend; their completions are
// dropped here.
func (s *Server) fail(err error) {
	if s.err != nil {
		return
	}
	s.err = err
	s.log.Error("wire torn down", "err", err)

	for id, b := range s.buffers {
		b.onRelease()
		delete(s.buffers, id)
	}
	for id, fence := range s.fences {
		fence.onRelease()
		delete(s.fences, id)
	}
	for id, m := range s.shaders {
		s.deleter.deferAt(s.submittedFence+1, m.Destroy)
		delete(s.shaders, id)
	}
	s.deleter.drainAll()
}
