package channel

import "testing"

func TestDedupSuppressesConsecutiveRepeats(t *testing.T) {
	p := NewPipe(64)
	p.Emit([]byte("alpha"))
	p.Emit([]byte("alpha"))
	p.Emit([]byte("beta"))
	p.Emit([]byte("beta"))
	p.Emit([]byte("alpha"))

	d := NewDedup(p)

	frame, ok := d.Poll()
	if !ok || string(frame) != "alpha" {
		t.Fatalf("got %q, %v; want alpha, true", frame, ok)
	}

	frame, ok = d.Poll()
	if !ok || string(frame) != "beta" {
		t.Fatalf("got %q, %v; want beta, true", frame, ok)
	}

	// the last "alpha" follows "beta", not another "alpha", so it must still
	// come through: dedup only suppresses immediate repeats.
	frame, ok = d.Poll()
	if !ok || string(frame) != "alpha" {
		t.Fatalf("got %q, %v; want alpha, true", frame, ok)
	}

	_, ok = d.Poll()
	if ok {
		t.Fatalf("expected no more frames")
	}
}

func TestDedupPassesEmitThrough(t *testing.T) {
	p := NewPipe(64)
	d := NewDedup(p)
	if err := d.Emit([]byte("hello")); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	frame, ok := p.Poll()
	if !ok || string(frame) != "hello" {
		t.Fatalf("inner pipe did not receive emitted frame")
	}
}
