package server

import "testing"

func TestDeleterTickRunsInDeferOrder(t *testing.T) {
	var d fencedDeleter
	var ran []int
	d.deferAt(1, func() { ran = append(ran, 1) })
	d.deferAt(1, func() { ran = append(ran, 2) })
	d.deferAt(2, func() { ran = append(ran, 3) })

	if n := d.tick(0); n != 0 {
		t.Errorf("tick(0) ran %d destructors, want 0", n)
	}
	if n := d.tick(1); n != 2 {
		t.Errorf("tick(1) ran %d destructors, want 2", n)
	}
	if len(ran) != 2 || ran[0] != 1 || ran[1] != 2 {
		t.Errorf("ran = %v, want [1 2]", ran)
	}
	if n := d.tick(5); n != 1 {
		t.Errorf("tick(5) ran %d destructors, want 1", n)
	}
	if d.len() != 0 {
		t.Errorf("len = %d after full tick, want 0", d.len())
	}
}

func TestDeleterTickIsIdempotentPastCompletion(t *testing.T) {
	var d fencedDeleter
	runs := 0
	d.deferAt(3, func() { runs++ })

	d.tick(3)
	d.tick(3)
	d.tick(10)
	if runs != 1 {
		t.Errorf("destructor ran %d times, want 1", runs)
	}
}

func TestDeleterDrainAll(t *testing.T) {
	var d fencedDeleter
	var ran []int
	d.deferAt(7, func() { ran = append(ran, 1) })
	d.deferAt(9, func() { ran = append(ran, 2) })

	if n := d.drainAll(); n != 2 {
		t.Errorf("drainAll ran %d destructors, want 2", n)
	}
	if len(ran) != 2 || ran[0] != 1 || ran[1] != 2 {
		t.Errorf("ran = %v, want [1 2]", ran)
	}
	if d.len() != 0 {
		t.Errorf("len = %d after drain, want 0", d.len())
	}
}
