package gpuwire

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// FrameKind identifies a frame family on the wire. Command kinds flow
// client→server; completion kinds (high bit set) flow server→client.
type FrameKind uint16

// Command kinds.
const (
	KindInvalid                  FrameKind = 0x00
	KindDeviceCreateBuffer       FrameKind = 0x01
	KindBufferMapReadAsync       FrameKind = 0x02
	KindBufferMapWriteAsync      FrameKind = 0x03
	KindBufferUnmap              FrameKind = 0x04
	KindBufferRelease            FrameKind = 0x05
	KindDeviceCreateFence        FrameKind = 0x06
	KindFenceRelease             FrameKind = 0x07
	KindQueueSignal              FrameKind = 0x08
	KindDeviceCreateShaderModule FrameKind = 0x09
	KindShaderModuleRelease      FrameKind = 0x0A
)

// Completion kinds.
const (
	KindMapReadComplete           FrameKind = 0x8001
	KindMapWriteComplete          FrameKind = 0x8002
	KindFenceCompletedValue       FrameKind = 0x8003
	KindBufferCreationError       FrameKind = 0x8004
	KindShaderModuleCreationError FrameKind = 0x8005
	KindObjectReleaseAck          FrameKind = 0x8006
)

// IsCompletion reports whether the kind belongs to the server→client family.
func (k FrameKind) IsCompletion() bool { return k&0x8000 != 0 }

// IsControl reports whether the kind is a control completion: a frame that
// mutates client-side object state but never carries a user callback.
// Control frames are applied as soon as they are read off the wire; all
// other completions are queued until dispatch.
func (k FrameKind) IsControl() bool {
	switch k {
	case KindBufferCreationError, KindShaderModuleCreationError, KindObjectReleaseAck:
		return true
	}
	return false
}

// String returns the string representation of FrameKind.
func (k FrameKind) String() string {
	switch k {
	case KindDeviceCreateBuffer:
		return "DeviceCreateBuffer"
	case KindBufferMapReadAsync:
		return "BufferMapReadAsync"
	case KindBufferMapWriteAsync:
		return "BufferMapWriteAsync"
	case KindBufferUnmap:
		return "BufferUnmap"
	case KindBufferRelease:
		return "BufferRelease"
	case KindDeviceCreateFence:
		return "DeviceCreateFence"
	case KindFenceRelease:
		return "FenceRelease"
	case KindQueueSignal:
		return "QueueSignal"
	case KindDeviceCreateShaderModule:
		return "DeviceCreateShaderModule"
	case KindShaderModuleRelease:
		return "ShaderModuleRelease"
	case KindMapReadComplete:
		return "MapReadComplete"
	case KindMapWriteComplete:
		return "MapWriteComplete"
	case KindFenceCompletedValue:
		return "FenceCompletedValue"
	case KindBufferCreationError:
		return "BufferCreationError"
	case KindShaderModuleCreationError:
		return "ShaderModuleCreationError"
	case KindObjectReleaseAck:
		return "ObjectReleaseAck"
	default:
		return fmt.Sprintf("FrameKind(0x%04x)", uint16(k))
	}
}

// Wire layout constants. Every frame is a 16-byte header followed by a
// fixed-layout body whose length is a multiple of 8, followed — for kinds that
// carry one — by a byte payload zero-padded to the next 8-byte boundary.
// All integers are little-endian.
const (
	// headerSize is the size of the frame header:
	// kind u16, bodySize u16, serial u32, id u64.
	headerSize = 16

	// frameAlign is the alignment of bodies and payload padding.
	frameAlign = 8
)

// fixedBodySize returns the body size for a kind, or -1 if the kind is
// unknown. Kinds with a byte payload declare its length inside the body;
// the payload is not counted here.
func fixedBodySize(k FrameKind) int {
	switch k {
	case KindDeviceCreateBuffer:
		return 16 // size u64, usage u32, pad u32
	case KindBufferMapReadAsync, KindBufferMapWriteAsync:
		return 16 // offset u64, size u64
	case KindBufferUnmap:
		return 8 // payloadSize u64
	case KindBufferRelease, KindFenceRelease, KindShaderModuleRelease:
		return 0
	case KindDeviceCreateFence, KindQueueSignal:
		return 8 // value u64
	case KindDeviceCreateShaderModule:
		return 8 // payloadSize u64
	case KindMapReadComplete:
		return 16 // status u8, pad[7], payloadSize u64
	case KindMapWriteComplete:
		return 8 // status u8, pad[7]
	case KindFenceCompletedValue:
		return 8 // value u64
	case KindBufferCreationError, KindShaderModuleCreationError, KindObjectReleaseAck:
		return 0
	default:
		return -1
	}
}

// hasPayload reports whether the kind carries a variable byte payload after
// its fixed body.
func hasPayload(k FrameKind) bool {
	switch k {
	case KindBufferUnmap, KindDeviceCreateShaderModule, KindMapReadComplete:
		return true
	}
	return false
}

// BufferDescriptor describes a buffer to create across the wire.
type BufferDescriptor struct {
	// Size is the buffer size in bytes.
	Size uint64

	// Usage specifies how the buffer will be used. Map requests are
	// validated against it on the server: read maps require
	// gputypes.BufferUsageMapRead, write maps gputypes.BufferUsageMapWrite.
	Usage gputypes.BufferUsage
}

// MapCallback receives the result of a MapReadAsync or MapWriteAsync call.
// It is invoked exactly once per request, on the client wire goroutine.
//
// data is nil unless status is MapSuccess. For read maps the slice aliases
// decoder-owned memory and is valid only until the callback returns; copy it
// to retain it. For write maps the slice is the buffer's zero-initialized
// staging region and stays valid until Unmap.
type MapCallback func(status MapStatus, data []byte, userdata uint64)

// FenceCallback receives the result of a Fence.OnCompletion wait. It is
// invoked exactly once, on the client wire goroutine.
type FenceCallback func(status FenceStatus, userdata uint64)

// ErrorCallback receives client-side validation failures that have no
// request to complete (for example, signaling a fence with a non-increasing
// value). It runs synchronously inside the operation that failed.
type ErrorCallback func(msg string, userdata uint64)
