package arena

import (
	"errors"
	"sync"
	"testing"
)

func TestSharedArenaAllocAndRelease(t *testing.T) {
	a, err := NewSharedArena[int]()
	if err != nil {
		t.Fatal(err)
	}
	h, err := a.Alloc(5)
	if err != nil {
		t.Fatal(err)
	}
	if *h.Get() != 5 {
		t.Fatalf("got %d, want 5", *h.Get())
	}
	h.Release()
	if got := a.Stats().UsedSlots; got != 0 {
		t.Fatalf("UsedSlots after release = %d, want 0", got)
	}
}

func TestSharedArenaGrowsOnDemand(t *testing.T) {
	a, err := NewSharedArena[int](WithInitialPages(1))
	if err != nil {
		t.Fatal(err)
	}
	var handles []Handle[int]
	for i := 0; i < slotsPerPage+1; i++ {
		h, err := a.Alloc(i)
		if err != nil {
			t.Fatalf("alloc %d failed: %v", i, err)
		}
		handles = append(handles, h)
	}
	if got := a.Stats().Pages; got != 2 {
		t.Fatalf("Pages = %d, want 2 after exceeding one page's capacity", got)
	}
	for _, h := range handles {
		h.Release()
	}
}

func TestSharedArenaConcurrentAllocRelease(t *testing.T) {
	a, err := NewSharedArena[string]()
	if err != nil {
		t.Fatal(err)
	}
	const goroutines = 8
	const perGoroutine = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				h, err := a.Alloc("x")
				if err != nil {
					t.Error(err)
					return
				}
				h.Release()
			}
		}()
	}
	wg.Wait()

	if got := a.Stats().UsedSlots; got != 0 {
		t.Fatalf("UsedSlots after all goroutines finished = %d, want 0", got)
	}
}

func TestSharedArenaAllocWithPanicLeavesSlotReusable(t *testing.T) {
	a, err := NewSharedArena[int](WithInitialPages(1))
	if err != nil {
		t.Fatal(err)
	}

	func() {
		defer func() { recover() }()
		a.AllocWith(func(slot *int) { panic("boom") })
	}()

	if got := a.Stats().UsedSlots; got != 0 {
		t.Fatalf("UsedSlots after a panicking initializer = %d, want 0", got)
	}

	h, err := a.Alloc(9)
	if err != nil {
		t.Fatal(err)
	}
	if *h.Get() != 9 {
		t.Fatal("slot freed by a panicking initializer should be reusable")
	}
}

type panicOnDestroy struct{}

func (panicOnDestroy) Destroy() { panic("destroy boom") }

func TestSharedArenaDestroyerPanicStillFreesSlot(t *testing.T) {
	a, err := NewSharedArena[panicOnDestroy](WithInitialPages(1))
	if err != nil {
		t.Fatal(err)
	}
	h, err := a.Alloc(panicOnDestroy{})
	if err != nil {
		t.Fatal(err)
	}

	func() {
		defer func() { recover() }()
		h.Release()
	}()

	if got := a.Stats().UsedSlots; got != 0 {
		t.Fatalf("UsedSlots after a panicking Destroy = %d, want 0", got)
	}
	if _, err := a.Alloc(panicOnDestroy{}); err != nil {
		t.Fatalf("slot freed before a panicking Destroy ran should be reusable: %v", err)
	}
}

func TestSharedArenaAllocSharedCloneAndClose(t *testing.T) {
	a, err := NewSharedArena[int](WithInitialPages(1))
	if err != nil {
		t.Fatal(err)
	}
	h, err := a.AllocShared(100)
	if err != nil {
		t.Fatal(err)
	}

	clones := make([]SharedHandle[int], 5)
	for i := range clones {
		clones[i] = h.Clone()
	}

	a.Close()
	if _, err := a.Alloc(1); !errors.Is(err, ErrClosed) {
		t.Fatalf("Alloc after Close = %v, want ErrClosed", err)
	}

	for i := 0; i < 4; i++ {
		if *clones[i].Get() != 100 {
			t.Fatal("clone should still read the value after Close, before the last drop")
		}
		clones[i].Release()
	}
	h.Release()
	clones[4].Release()
}

func TestSharedArenaAllocMany(t *testing.T) {
	a, err := NewSharedArena[int]()
	if err != nil {
		t.Fatal(err)
	}
	values := []int{1, 2, 3, 4, 5}
	handles, err := a.AllocMany(values)
	if err != nil {
		t.Fatal(err)
	}
	if len(handles) != len(values) {
		t.Fatalf("AllocMany returned %d handles, want %d", len(handles), len(values))
	}
	for i, h := range handles {
		if *h.Get() != values[i] {
			t.Fatalf("handle %d = %d, want %d", i, *h.Get(), values[i])
		}
		h.Release()
	}
}

func TestSharedArenaAllocationFailureReturnsError(t *testing.T) {
	a, err := NewSharedArena[int](WithInitialPages(1))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < slotsPerPage; i++ {
		if _, err := a.Alloc(i); err != nil {
			t.Fatalf("filling the initial page: %v", err)
		}
	}
	a.newPage = func() *page[int] { return nil }

	if _, err := a.Alloc(1); !errors.Is(err, ErrAllocationFailure) {
		t.Fatalf("Alloc with a failing page constructor = %v, want ErrAllocationFailure", err)
	}
}
