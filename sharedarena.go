package arena

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// SharedArena is the multi-producer, multi-consumer pool variant: any
// goroutine may call Alloc, and any goroutine may drop a SharedHandle, all
// without external locking. Pages created by a SharedArena outlive the
// arena itself if handles into them are still alive when the arena is
// closed — the page's reference count resolves ownership as
// max(arena-holds-it, any-handle-holds-it).
type SharedArena[T any] struct {
	freeList sharedFreeList[T]

	pagesMu sync.Mutex
	pages   []*page[T]

	totalPages atomic.Int32
	closed     atomic.Bool

	cfg     config
	newPage func() *page[T]
}

// NewSharedArena constructs a SharedArena, pre-allocating
// cfg.initialPages (default 1) pages.
func NewSharedArena[T any](opts ...Option) (*SharedArena[T], error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	a := &SharedArena[T]{cfg: cfg, newPage: newPage[T]}
	if err := a.Grow(int(cfg.initialPages)); err != nil {
		return nil, err
	}
	return a, nil
}

// Grow pre-allocates extraPages additional pages and links them onto the
// free-list, ahead of any alloc that would otherwise need them.
func (a *SharedArena[T]) Grow(extraPages int) error {
	if a.closed.Load() {
		return ErrClosed
	}
	for i := 0; i < extraPages; i++ {
		p := a.newPage()
		if p == nil {
			a.cfg.logger.Warn("arena: page allocation failed", slog.Int("requested", extraPages), slog.Int("completed", i))
			return fmt.Errorf("%w: page %d of %d", ErrAllocationFailure, i+1, extraPages)
		}
		a.pagesMu.Lock()
		a.pages = append(a.pages, p)
		a.pagesMu.Unlock()
		a.totalPages.Add(1)
		a.cfg.logger.Debug("arena: page created", slog.Int("total_pages", int(a.totalPages.Load())))
		a.freeList.pushFront(p)
	}
	return nil
}

// acquire finds or creates a page with a free slot and claims one,
// returning the page (retained on behalf of the new handle), the slot's
// index, and a pointer to its storage.
func (a *SharedArena[T]) acquire() (*page[T], uint8, *T, error) {
	if a.closed.Load() {
		return nil, 0, nil, ErrClosed
	}
	for {
		p := a.freeList.popOrRotate()
		if p == nil {
			if err := a.Grow(1); err != nil {
				return nil, 0, nil, err
			}
			continue
		}
		idx, slot, ok := p.acquireFreeSlot()
		if !ok {
			continue
		}
		p.retain()
		return p, idx, slot, nil
	}
}

// reclaim flips the bit for idx back to free, re-lists p if it had been
// full, and drops the caller's reference, logging if that reference was
// the page's last.
func (a *SharedArena[T]) reclaim(p *page[T], idx uint8) {
	wasFull, becameEmpty := p.releaseSlot(idx)
	if wasFull {
		a.freeList.pushFront(p)
	}
	last := p.release()
	if becameEmpty && last {
		a.cfg.logger.Debug("arena: page reclaimed after last handle dropped")
	}
}

func (a *SharedArena[T]) releaseExclusive(p *page[T], idx uint8) func(*T) {
	return func(slot *T) {
		p.verifyRoute(idx, slot)
		defer func() {
			var zero T
			*slot = zero
			a.reclaim(p, idx)
		}()
		destroyIfNeeded(slot)
	}
}

// Alloc claims a slot and writes value into it, returning an exclusive
// Handle. Alloc never fails except when a new page is required and the
// system allocator refuses it.
func (a *SharedArena[T]) Alloc(value T) (Handle[T], error) {
	return a.AllocWith(func(slot *T) { *slot = value })
}

// AllocWith claims a slot and calls init to construct the value in place.
// If init panics, the slot is released before the panic propagates and no
// handle escapes.
func (a *SharedArena[T]) AllocWith(init func(*T)) (h Handle[T], err error) {
	p, idx, slot, aerr := a.acquire()
	if aerr != nil {
		return Handle[T]{}, aerr
	}
	release := a.releaseExclusive(p, idx)
	initialized := false
	defer func() {
		if !initialized {
			if r := recover(); r != nil {
				a.reclaim(p, idx)
				panic(r)
			}
		}
	}()
	init(slot)
	initialized = true
	return newHandle(slot, release), nil
}

// AllocInPlace is like AllocWith but documents, per the "trust the
// caller" contract of alloc_in_place, that init is responsible for fully
// initializing the slot; the library applies the same panic-safety as
// AllocWith.
func (a *SharedArena[T]) AllocInPlace(init func(*T)) (Handle[T], error) {
	return a.AllocWith(init)
}

// AllocShared is SharedArena's reference-counted allocation entry point.
func (a *SharedArena[T]) AllocShared(value T) (SharedHandle[T], error) {
	p, idx, slot, err := a.acquire()
	if err != nil {
		return SharedHandle[T]{}, err
	}
	*slot = value
	release := a.releaseExclusive(p, idx)
	return newSharedHandle(slot, &p.headers[idx].strong, release), nil
}

// AllocMany claims one slot per element of values, initializing each with
// its element. On partial
// failure it returns the handles obtained so far alongside the error.
func (a *SharedArena[T]) AllocMany(values []T) ([]Handle[T], error) {
	out := make([]Handle[T], 0, len(values))
	for _, v := range values {
		h, err := a.Alloc(v)
		if err != nil {
			return out, err
		}
		out = append(out, h)
	}
	return out, nil
}

// Close retires every page the arena currently holds a reference to: no
// further Alloc call succeeds, and each page's memory becomes collectible
// once its last outstanding handle drops. Existing handles remain safely
// dereferenceable after Close.
func (a *SharedArena[T]) Close() {
	if !a.closed.CompareAndSwap(false, true) {
		return
	}
	a.pagesMu.Lock()
	pages := a.pages
	a.pages = nil
	a.pagesMu.Unlock()
	for _, p := range pages {
		p.retire()
		if p.release() {
			a.cfg.logger.Debug("arena: page reclaimed on close")
		}
	}
}

// Stats sums the occupancy of every page the arena still holds (none after
// Close); consistent only quiescently.
func (a *SharedArena[T]) Stats() Stats {
	a.pagesMu.Lock()
	pages := append([]*page[T](nil), a.pages...)
	a.pagesMu.Unlock()

	used := 0
	for _, p := range pages {
		used += p.usedCount()
	}
	total := len(pages)
	return Stats{
		Pages:     total,
		FreeSlots: total*slotsPerPage - used,
		UsedSlots: used,
	}
}

// Len returns the number of currently-occupied slots.
func (a *SharedArena[T]) Len() int { return a.Stats().UsedSlots }

// Cap returns the total slot capacity currently reserved.
func (a *SharedArena[T]) Cap() int { return a.Stats().Cap() }
