package arena

import "testing"

func TestPageAcquireReleaseRoundTrip(t *testing.T) {
	p := newPage[int]()
	if p.isFull() {
		t.Fatal("fresh page reports full")
	}
	if p.usedCount() != 0 {
		t.Fatalf("fresh page usedCount = %d, want 0", p.usedCount())
	}

	idx, slot, ok := p.acquireFreeSlot()
	if !ok {
		t.Fatal("acquireFreeSlot failed on fresh page")
	}
	if idx != 0 {
		t.Fatalf("first acquired index = %d, want 0 (lowest free slot)", idx)
	}
	*slot = 42
	if p.usedCount() != 1 {
		t.Fatalf("usedCount after one acquire = %d, want 1", p.usedCount())
	}

	wasFull, becameEmpty := p.releaseSlot(idx)
	if wasFull {
		t.Error("releasing into a non-full page reported wasFull")
	}
	if !becameEmpty {
		t.Error("releasing the only live slot should report becameEmpty")
	}
	if p.usedCount() != 0 {
		t.Fatalf("usedCount after release = %d, want 0", p.usedCount())
	}
}

func TestPageFillToCapacity(t *testing.T) {
	p := newPage[int]()
	var indices []uint8
	for i := 0; i < slotsPerPage; i++ {
		idx, slot, ok := p.acquireFreeSlot()
		if !ok {
			t.Fatalf("acquireFreeSlot failed at slot %d", i)
		}
		*slot = i
		indices = append(indices, idx)
	}
	if !p.isFull() {
		t.Fatal("page with all 63 slots taken should report full")
	}
	if _, _, ok := p.acquireFreeSlot(); ok {
		t.Fatal("acquireFreeSlot should fail on a full page")
	}

	// lowest free slot first, so indices should be 0..62 in order.
	for i, idx := range indices {
		if int(idx) != i {
			t.Fatalf("indices[%d] = %d, want %d (lowest-free-first order)", i, idx, i)
		}
	}

	wasFull, _ := p.releaseSlot(indices[0])
	if !wasFull {
		t.Error("releasing a slot on a full page should report wasFull")
	}
	if p.isFull() {
		t.Error("page should no longer be full after a release")
	}

	idx, _, ok := p.acquireFreeSlot()
	if !ok || idx != indices[0] {
		t.Fatalf("reused slot index = %d, want %d (the just-freed one)", idx, indices[0])
	}
}

func TestPageDoubleReleasePanics(t *testing.T) {
	p := newPage[int]()
	idx, _, _ := p.acquireFreeSlot()
	p.releaseSlot(idx)

	defer func() {
		if recover() == nil {
			t.Fatal("double release should panic")
		}
	}()
	p.releaseSlot(idx)
}

func TestPageRetireBlocksAllocButNotRelease(t *testing.T) {
	p := newPage[int]()
	idx, _, ok := p.acquireFreeSlot()
	if !ok {
		t.Fatal("setup: acquire failed")
	}
	p.retire()
	if !p.unavailableForAlloc() {
		t.Fatal("retired page should be unavailable for allocation")
	}
	if _, _, ok := p.acquireFreeSlot(); ok {
		t.Fatal("retired page should not yield free slots")
	}
	// release still works normally after retire.
	p.releaseSlot(idx)
}

func TestPageVerifyRouteRejectsMismatchedIndex(t *testing.T) {
	a := newPage[int]()
	idxA, slotA, _ := a.acquireFreeSlot()

	defer func() {
		if recover() == nil {
			t.Fatal("verifyRoute should panic when idx doesn't match the pointer's real slot")
		}
	}()
	a.verifyRoute(idxA+1, slotA)
}
