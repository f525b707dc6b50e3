package ids

import "testing"

func TestAllocLowStartsAtTwo(t *testing.T) {
	a := NewAllocator()
	id, err := a.Alloc(Low)
	if err != nil {
		t.Fatal(err)
	}
	if id != 2 {
		t.Fatalf("got %d, want 2", id)
	}
}

func TestAllocHighStartsAtBoundary(t *testing.T) {
	a := NewAllocator()
	id, err := a.Alloc(High)
	if err != nil {
		t.Fatal(err)
	}
	if id != ServerIDStart {
		t.Fatalf("got %#x, want %#x", id, ServerIDStart)
	}
}

func TestReleaseThenReallocReusesID(t *testing.T) {
	a := NewAllocator()
	first, _ := a.Alloc(Low)
	second, _ := a.Alloc(Low)
	a.Release(first)
	third, err := a.Alloc(Low)
	if err != nil {
		t.Fatal(err)
	}
	if third != first {
		t.Fatalf("expected freed id %d to be reused, got %d", first, third)
	}
	if second == third {
		t.Fatalf("second and third should differ")
	}
}

func TestRangeOf(t *testing.T) {
	if RangeOf(5) != Low {
		t.Fatal("expected low")
	}
	if RangeOf(ServerIDStart) != High {
		t.Fatal("expected high")
	}
}
