package arena

import (
	"math/bits"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/cpu"
)

// slotsPerPage is the number of usable slots in a page. Bit 63 of the
// bitfield is reserved as a sentinel and never represents a slot.
const slotsPerPage = 63

// fullMask has bits 0..62 set: the bitfield value of a brand-new page, in
// which every data slot is free.
const fullMask = uint64(1)<<slotsPerPage - 1

// retiredBit is bit 63, the sentinel spec.md reserves for future use. This
// package uses it to mark a page that SharedArena has released its own
// reference to: once set, the page is treated as unavailable for new
// allocations (same as full) regardless of how many data bits are still
// set, so popOrRotate unlinks it from the free-list on the next pass.
const retiredBit = uint64(1) << 63

// slotHeader locates the page and index a slot belongs to. It lets a
// handle route its release back to the right bitfield bit without
// consulting any arena-side lookup structure, matching the routing
// contract of the page/slot layout this package implements.
type slotHeader[T any] struct {
	page  *page[T]
	index uint8

	// strong is the live reference count for SharedHandle/WeakHandle on
	// this slot. Only SharedArena ever increments it past the implicit
	// single owner; Arena's exclusive Handle leaves it untouched.
	strong atomic.Int32
}

// page is a heap-allocated block of slotsPerPage slots of T plus the
// bookkeeping needed to allocate and release them. It backs both
// SharedArena and Arena; the difference between those two variants is in
// how the bitfield and the free-list are mutated, not in the page layout
// itself. Pool uses the plain, non-atomic poolPage instead.
type page[T any] struct {
	_ cpu.CacheLinePad

	bitfield atomic.Uint64
	refs     atomic.Int32

	// next links pages on Arena's single-owner, non-atomic free-list.
	// SharedArena never touches this field; its free-list boxes pages in
	// a separate headNode instead, since a Treiber stack needs a tagged
	// pointer that an intrusive field can't provide without true ABA
	// protection.
	next *page[T]

	headers [slotsPerPage]slotHeader[T]
	slots   [slotsPerPage]T

	_ cpu.CacheLinePad
}

// newPage allocates and initializes a page with every slot marked free.
func newPage[T any]() *page[T] {
	p := &page[T]{}
	p.bitfield.Store(fullMask)
	p.refs.Store(1)
	for i := range p.headers {
		p.headers[i] = slotHeader[T]{page: p, index: uint8(i)}
	}
	return p
}

// acquireFreeSlot atomically clears the lowest set bit and returns its
// index and a pointer to the now-owned slot storage. It returns
// ok == false if the page has no free slots or has been retired.
func (p *page[T]) acquireFreeSlot() (index uint8, slot *T, ok bool) {
	for {
		cur := p.bitfield.Load()
		live := cur & fullMask
		if live == 0 || cur&retiredBit != 0 {
			return 0, nil, false
		}
		i := bits.TrailingZeros64(live)
		next := cur &^ (uint64(1) << i)
		if p.bitfield.CompareAndSwap(cur, next) {
			return uint8(i), &p.slots[i], true
		}
	}
}

// releaseSlot sets bit index in the bitfield and reports the page's
// transition: wasFull is true if the page had no free slots just before
// this release (so it must be re-linked onto the free-list), and
// becameEmpty is true if this release left the page with zero live slots.
func (p *page[T]) releaseSlot(index uint8) (wasFull, becameEmpty bool) {
	bit := uint64(1) << index
	for {
		cur := p.bitfield.Load()
		if cur&bit != 0 {
			panic(ErrDoubleRelease)
		}
		next := cur | bit
		if p.bitfield.CompareAndSwap(cur, next) {
			wasFull = cur&fullMask == 0
			becameEmpty = next&fullMask == fullMask
			return wasFull, becameEmpty
		}
	}
}

// isFull reports whether the page currently has zero free slots. It is a
// point-in-time snapshot; in the shared variant the result may already be
// stale by the time the caller acts on it.
func (p *page[T]) isFull() bool {
	return p.bitfield.Load()&fullMask == 0
}

// isEmpty reports whether the page currently has zero live slots.
func (p *page[T]) isEmpty() bool {
	return p.bitfield.Load()&fullMask == fullMask
}

// retire sets the sentinel bit, marking the page ineligible for further
// allocation. Idempotent.
func (p *page[T]) retire() {
	for {
		cur := p.bitfield.Load()
		if cur&retiredBit != 0 {
			return
		}
		if p.bitfield.CompareAndSwap(cur, cur|retiredBit) {
			return
		}
	}
}

// retired reports whether retire has been called on this page.
func (p *page[T]) retired() bool {
	return p.bitfield.Load()&retiredBit != 0
}

// unavailableForAlloc reports whether the page should be treated as full
// for free-list traversal purposes: either genuinely full, or retired.
func (p *page[T]) unavailableForAlloc() bool {
	v := p.bitfield.Load()
	return v&retiredBit != 0 || v&fullMask == 0
}

// usedCount returns the number of currently-occupied slots.
func (p *page[T]) usedCount() int {
	return slotsPerPage - bits.OnesCount64(p.bitfield.Load()&fullMask)
}

// checkOwnership panics with ErrForeignSlot if hdr doesn't describe a slot
// on this page, catching a handle routed to the wrong page's bitfield.
func (p *page[T]) checkOwnership(hdr *slotHeader[T]) {
	if hdr.page != p {
		panic(ErrForeignSlot)
	}
}

// slotIndexFromPointer recovers a slot's index from its address by
// subtracting the base address of the page's slot array and dividing by
// sizeof(T), rather than by subtracting a compile-time {header, slot}
// byte offset the way spec.md's layout note describes — Go's type
// system doesn't permit pointer arithmetic into a struct field the way
// that requires. The observable routing contract is the same: no
// arena-side lookup is consulted.
func (p *page[T]) slotIndexFromPointer(slot *T) uint8 {
	base := uintptr(unsafe.Pointer(&p.slots[0]))
	off := uintptr(unsafe.Pointer(slot)) - base
	return uint8(off / unsafe.Sizeof(p.slots[0]))
}

// verifyRoute is the always-on, O(1) misuse check spec.md's MisuseError
// tier calls for: it recomputes idx from slot's own address and
// cross-checks it against the page's header table, catching a release
// routed with a stale or foreign (page, index) pair before the bitfield
// is ever touched.
func (p *page[T]) verifyRoute(idx uint8, slot *T) {
	if p.slotIndexFromPointer(slot) != idx {
		panic(ErrForeignSlot)
	}
	p.checkOwnership(&p.headers[idx])
}

// retain increments the page's reference count. Only meaningful for
// SharedArena; Arena and Pool never call it past construction.
func (p *page[T]) retain() {
	p.refs.Add(1)
}

// release decrements the page's reference count and reports whether this
// was the final reference, i.e. the page's memory may now be dropped.
func (p *page[T]) release() bool {
	return p.refs.Add(-1) == 0
}
