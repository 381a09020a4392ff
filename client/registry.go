package client

import (
	"fmt"
	"sort"

	"github.com/gogpu/gpuwire"
)

// mapMode distinguishes read and write map requests.
type mapMode uint8

const (
	modeRead mapMode = iota
	modeWrite
)

func (m mapMode) String() string {
	if m == modeWrite {
		return "Write"
	}
	return "Read"
}

// mapKey identifies a mapping attempt across the wire.
type mapKey struct {
	id     uint64
	serial uint32
}

// pendingMap is a registry slot: one outstanding map request awaiting its
// completion. Removing the slot before invoking the user callback is what
// makes reentrant Unmap/Release from inside the callback safe — the
// reentrant path finds no slot and synthesizes nothing.
type pendingMap struct {
	key      mapKey
	offset   uint64
	size     uint64
	mode     mapMode
	cb       gpuwire.MapCallback
	userdata uint64

	// seq orders slots for cancelAllForBuffer and drainAll.
	seq uint64
}

// mapRequestRegistry holds pending map requests keyed by (buffer id,
// request serial). Single-goroutine on the client wire thread; no locking.
type mapRequestRegistry struct {
	slots   map[mapKey]*pendingMap
	nextSeq uint64
}

// insert registers a slot. A key collision means 2^32 requests are
// outstanding on one buffer, which the wire treats as fatal.
func (r *mapRequestRegistry) insert(pm *pendingMap) error {
	if r.slots == nil {
		r.slots = make(map[mapKey]*pendingMap)
	}
	if _, exists := r.slots[pm.key]; exists {
		return fmt.Errorf("%w: buffer %#x serial %d", gpuwire.ErrSerialReuse, pm.key.id, pm.key.serial)
	}
	pm.seq = r.nextSeq
	r.nextSeq++
	r.slots[pm.key] = pm
	return nil
}

// take removes and returns the slot for (id, serial), if present.
func (r *mapRequestRegistry) take(id uint64, serial uint32) (*pendingMap, bool) {
	pm, ok := r.slots[mapKey{id, serial}]
	if ok {
		delete(r.slots, pm.key)
	}
	return pm, ok
}

// cancelAllForBuffer removes every slot for the buffer and returns them in
// registration order. The caller synthesizes an Unknown callback for each.
func (r *mapRequestRegistry) cancelAllForBuffer(id uint64) []*pendingMap {
	var out []*pendingMap
	for k, pm := range r.slots {
		if k.id == id {
			out = append(out, pm)
			delete(r.slots, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// drainAll removes every slot, in registration order. Used on wire teardown.
func (r *mapRequestRegistry) drainAll() []*pendingMap {
	var out []*pendingMap
	for k, pm := range r.slots {
		out = append(out, pm)
		delete(r.slots, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// len reports the number of outstanding slots.
func (r *mapRequestRegistry) len() int { return len(r.slots) }
