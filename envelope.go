package gpuwire

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"
)

// Encoder serializes frames into a growable byte stream. The zero value is
// ready to use. Encoder is not safe for concurrent use; each wire endpoint
// owns one on its own goroutine.
type Encoder struct {
	buf []byte
}

// Len returns the number of encoded bytes not yet taken.
func (e *Encoder) Len() int { return len(e.buf) }

// Take returns the encoded stream and resets the encoder. The returned
// slice is owned by the caller.
func (e *Encoder) Take() []byte {
	out := e.buf
	e.buf = nil
	return out
}

// header appends a frame header plus a zeroed fixed body and returns the
// body slice for the caller to fill in.
func (e *Encoder) header(kind FrameKind, id uint64, serial uint32) []byte {
	bodySize := fixedBodySize(kind)
	off := len(e.buf)
	e.buf = append(e.buf, make([]byte, headerSize+bodySize)...)
	binary.LittleEndian.PutUint16(e.buf[off:], uint16(kind))
	binary.LittleEndian.PutUint16(e.buf[off+2:], uint16(bodySize))
	binary.LittleEndian.PutUint32(e.buf[off+4:], serial)
	binary.LittleEndian.PutUint64(e.buf[off+8:], id)
	return e.buf[off+headerSize:]
}

// payload appends a byte payload zero-padded to the frame alignment.
func (e *Encoder) payload(p []byte) {
	e.buf = append(e.buf, p...)
	if rem := len(p) % frameAlign; rem != 0 {
		e.buf = append(e.buf, make([]byte, frameAlign-rem)...)
	}
}

// Commands (client → server).

// CreateBuffer encodes a DeviceCreateBuffer command.
func (e *Encoder) CreateBuffer(id uint64, desc BufferDescriptor) {
	body := e.header(KindDeviceCreateBuffer, id, 0)
	binary.LittleEndian.PutUint64(body, desc.Size)
	binary.LittleEndian.PutUint32(body[8:], uint32(desc.Usage))
}

// MapReadAsync encodes a BufferMapReadAsync command.
func (e *Encoder) MapReadAsync(id uint64, serial uint32, offset, size uint64) {
	body := e.header(KindBufferMapReadAsync, id, serial)
	binary.LittleEndian.PutUint64(body, offset)
	binary.LittleEndian.PutUint64(body[8:], size)
}

// MapWriteAsync encodes a BufferMapWriteAsync command.
func (e *Encoder) MapWriteAsync(id uint64, serial uint32, offset, size uint64) {
	body := e.header(KindBufferMapWriteAsync, id, serial)
	binary.LittleEndian.PutUint64(body, offset)
	binary.LittleEndian.PutUint64(body[8:], size)
}

// Unmap encodes a BufferUnmap command. For write maps, data carries the
// staging region's final contents; for read maps it is nil.
func (e *Encoder) Unmap(id uint64, data []byte) {
	body := e.header(KindBufferUnmap, id, 0)
	binary.LittleEndian.PutUint64(body, uint64(len(data)))
	e.payload(data)
}

// ReleaseBuffer encodes a BufferRelease command.
func (e *Encoder) ReleaseBuffer(id uint64) {
	e.header(KindBufferRelease, id, 0)
}

// CreateFence encodes a DeviceCreateFence command.
func (e *Encoder) CreateFence(id, initialValue uint64) {
	body := e.header(KindDeviceCreateFence, id, 0)
	binary.LittleEndian.PutUint64(body, initialValue)
}

// ReleaseFence encodes a FenceRelease command.
func (e *Encoder) ReleaseFence(id uint64) {
	e.header(KindFenceRelease, id, 0)
}

// SignalFence encodes a QueueSignal command for the fence id.
func (e *Encoder) SignalFence(id, value uint64) {
	body := e.header(KindQueueSignal, id, 0)
	binary.LittleEndian.PutUint64(body, value)
}

// CreateShaderModule encodes a DeviceCreateShaderModule command carrying
// WGSL source text.
func (e *Encoder) CreateShaderModule(id uint64, wgsl string) {
	body := e.header(KindDeviceCreateShaderModule, id, 0)
	binary.LittleEndian.PutUint64(body, uint64(len(wgsl)))
	e.payload([]byte(wgsl))
}

// ReleaseShaderModule encodes a ShaderModuleRelease command.
func (e *Encoder) ReleaseShaderModule(id uint64) {
	e.header(KindShaderModuleRelease, id, 0)
}

// Completions (server → client).

// MapReadComplete encodes a read-map completion. data must be nil unless
// status is MapSuccess.
func (e *Encoder) MapReadComplete(id uint64, serial uint32, status MapStatus, data []byte) {
	if !status.IsWireable() {
		panic("gpuwire: " + status.String() + " is not a wire status")
	}
	body := e.header(KindMapReadComplete, id, serial)
	body[0] = byte(status)
	binary.LittleEndian.PutUint64(body[8:], uint64(len(data)))
	e.payload(data)
}

// MapWriteComplete encodes a write-map completion. The client allocates the
// staging region itself, so no bytes cross the wire.
func (e *Encoder) MapWriteComplete(id uint64, serial uint32, status MapStatus) {
	if !status.IsWireable() {
		panic("gpuwire: " + status.String() + " is not a wire status")
	}
	body := e.header(KindMapWriteComplete, id, serial)
	body[0] = byte(status)
}

// FenceCompletedValue encodes a fence completed-value update.
func (e *Encoder) FenceCompletedValue(id, value uint64) {
	body := e.header(KindFenceCompletedValue, id, 0)
	binary.LittleEndian.PutUint64(body, value)
}

// BufferCreationError encodes a control frame reporting that server-side
// creation of the buffer failed.
func (e *Encoder) BufferCreationError(id uint64) {
	e.header(KindBufferCreationError, id, 0)
}

// ShaderModuleCreationError encodes a control frame reporting that
// server-side shader compilation or module creation failed.
func (e *Encoder) ShaderModuleCreationError(id uint64) {
	e.header(KindShaderModuleCreationError, id, 0)
}

// ObjectReleaseAck encodes a control frame acknowledging a release command.
// Once the client applies it, the handle slot may be reused.
func (e *Encoder) ObjectReleaseAck(id uint64) {
	e.header(KindObjectReleaseAck, id, 0)
}

// Frame is one decoded frame. The body and payload slices alias the decoder
// input and are valid only until the input buffer is recycled by the caller.
type Frame struct {
	Kind   FrameKind
	ID     uint64
	Serial uint32

	body    []byte
	payload []byte
}

// CreateBufferBody decodes a DeviceCreateBuffer body.
func (f *Frame) CreateBufferBody() BufferDescriptor {
	return BufferDescriptor{
		Size:  binary.LittleEndian.Uint64(f.body),
		Usage: gputypes.BufferUsage(binary.LittleEndian.Uint32(f.body[8:])),
	}
}

// MapRangeBody decodes a BufferMapReadAsync / BufferMapWriteAsync body.
func (f *Frame) MapRangeBody() (offset, size uint64) {
	return binary.LittleEndian.Uint64(f.body), binary.LittleEndian.Uint64(f.body[8:])
}

// ValueBody decodes a single-u64 body (DeviceCreateFence initial value,
// QueueSignal value, FenceCompletedValue value).
func (f *Frame) ValueBody() uint64 {
	return binary.LittleEndian.Uint64(f.body)
}

// Payload returns the frame's byte payload (BufferUnmap staging contents,
// DeviceCreateShaderModule source, MapReadComplete data).
func (f *Frame) Payload() []byte { return f.payload }

// ShaderSource returns a DeviceCreateShaderModule payload as a string.
func (f *Frame) ShaderSource() string { return string(f.payload) }

// Status decodes the status byte of a MapReadComplete / MapWriteComplete
// body.
func (f *Frame) Status() MapStatus { return MapStatus(f.body[0]) }

// Decoder walks a byte stream of frames. Decode errors are fatal to the
// wire: once Next returns an error other than io.EOF semantics (done=false),
// the stream must be discarded.
type Decoder struct {
	data []byte
	off  int
}

// NewDecoder returns a decoder over data. The decoder does not copy; frames
// alias the input.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// Next decodes the next frame. It returns done=false with a nil error when
// the stream is exhausted.
func (d *Decoder) Next() (f Frame, done bool, err error) {
	if d.off == len(d.data) {
		return Frame{}, false, nil
	}
	if len(d.data)-d.off < headerSize {
		return Frame{}, false, fmt.Errorf("%w: truncated header (%d bytes left)", ErrWireCorrupt, len(d.data)-d.off)
	}
	h := d.data[d.off:]
	f.Kind = FrameKind(binary.LittleEndian.Uint16(h))
	bodySize := int(binary.LittleEndian.Uint16(h[2:]))
	f.Serial = binary.LittleEndian.Uint32(h[4:])
	f.ID = binary.LittleEndian.Uint64(h[8:])

	want := fixedBodySize(f.Kind)
	if want < 0 {
		return Frame{}, false, fmt.Errorf("%w: unknown frame kind 0x%04x", ErrWireCorrupt, uint16(f.Kind))
	}
	if bodySize != want || bodySize%frameAlign != 0 {
		return Frame{}, false, fmt.Errorf("%w: %s body size %d, want %d", ErrWireCorrupt, f.Kind, bodySize, want)
	}
	if len(d.data)-d.off < headerSize+bodySize {
		return Frame{}, false, fmt.Errorf("%w: truncated %s body", ErrWireCorrupt, f.Kind)
	}
	f.body = d.data[d.off+headerSize : d.off+headerSize+bodySize]
	d.off += headerSize + bodySize

	if hasPayload(f.Kind) {
		// The payload length is the last u64 of the fixed body for
		// BufferUnmap and DeviceCreateShaderModule, and the second u64
		// for MapReadComplete; in all three layouts it is body[len-8:].
		n := binary.LittleEndian.Uint64(f.body[len(f.body)-8:])
		if n > uint64(len(d.data)-d.off) {
			return Frame{}, false, fmt.Errorf("%w: %s payload of %d bytes overruns stream", ErrWireCorrupt, f.Kind, n)
		}
		f.payload = d.data[d.off : d.off+int(n)]
		padded := (int(n) + frameAlign - 1) &^ (frameAlign - 1)
		if padded > len(d.data)-d.off {
			return Frame{}, false, fmt.Errorf("%w: %s payload padding overruns stream", ErrWireCorrupt, f.Kind)
		}
		d.off += padded
	}
	return f, true, nil
}
