package channel

import "testing"

func TestPipeFIFOOrder(t *testing.T) {
	p := NewPipe(64)
	p.Emit([]byte("a"))
	p.Emit([]byte("b"))

	frame, ok := p.Poll()
	if !ok || string(frame) != "a" {
		t.Fatalf("got %q, %v; want a, true", frame, ok)
	}
	frame, ok = p.Poll()
	if !ok || string(frame) != "b" {
		t.Fatalf("got %q, %v; want b, true", frame, ok)
	}
	if _, ok := p.Poll(); ok {
		t.Fatalf("expected empty pipe")
	}
}

func TestPipeRejectsEmitAfterClose(t *testing.T) {
	p := NewPipe(64)
	p.Close()
	if err := p.Emit([]byte("x")); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestDuplicatingRepeatsEachFrameTwice(t *testing.T) {
	p := NewPipe(64)
	p.Emit([]byte("once"))
	d := NewDuplicating(p)

	first, ok := d.Poll()
	if !ok || string(first) != "once" {
		t.Fatalf("got %q, %v; want once, true", first, ok)
	}
	second, ok := d.Poll()
	if !ok || string(second) != "once" {
		t.Fatalf("got %q, %v; want once, true (duplicate)", second, ok)
	}
	if _, ok := d.Poll(); ok {
		t.Fatalf("expected no third delivery")
	}
}
