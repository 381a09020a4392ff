package server

// fencedDeleter defers native resource destruction until the GPU has
// signaled past the resource's last-use fence. Release commands return
// immediately; the deleter runs destructors when ticked.
type fencedDeleter struct {
	pending []deferredDelete
}

type deferredDelete struct {
	fence   uint64
	destroy func()
}

// deferAt queues destroy to run once the completed fence value reaches
// fence. Entries for the same fence run in defer order.
func (d *fencedDeleter) deferAt(fence uint64, destroy func()) {
	d.pending = append(d.pending, deferredDelete{fence: fence, destroy: destroy})
}

// tick runs every destructor whose fence value is at or below completed,
// in defer order, and returns how many ran. Fence values only grow, so
// the pending queue stays sorted by construction.
func (d *fencedDeleter) tick(completed uint64) int {
	n := 0
	for len(d.pending) > 0 && d.pending[0].fence <= completed {
		dd := d.pending[0]
		d.pending = d.pending[1:]
		dd.destroy()
		n++
	}
	return n
}

// drainAll runs every pending destructor regardless of fence state. Used
// on wire teardown.
func (d *fencedDeleter) drainAll() int {
	n := len(d.pending)
	for _, dd := range d.pending {
		dd.destroy()
	}
	d.pending = nil
	return n
}

// len reports the number of pending destructions.
func (d *fencedDeleter) len() int { return len(d.pending) }
