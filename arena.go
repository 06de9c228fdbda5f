package arena

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Arena is the single-producer pool variant: only the goroutine that
// constructed it (or that it is subsequently handed to) may call Alloc,
// but any goroutine may drop a Handle obtained from it. Every page is
// owned exclusively by the Arena; dropping the Arena drops every page
// whether or not handles are still outstanding, so callers must not keep
// a Handle alive past the Arena's own lifetime.
type Arena[T any] struct {
	free arenaFreeList[T]

	totalPages atomic.Int32
	closed     atomic.Bool

	cfg     config
	newPage func() *page[T]
}

// NewArena constructs an Arena, pre-allocating cfg.initialPages pages.
func NewArena[T any](opts ...Option) (*Arena[T], error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	a := &Arena[T]{cfg: cfg, newPage: newPage[T], free: *newArenaFreeList[T]()}
	if err := a.Grow(int(cfg.initialPages)); err != nil {
		return nil, err
	}
	return a, nil
}

// Grow pre-allocates extraPages additional pages. Call only from the
// owner goroutine, like Alloc.
func (a *Arena[T]) Grow(extraPages int) error {
	if a.closed.Load() {
		return ErrClosed
	}
	for i := 0; i < extraPages; i++ {
		p := a.newPage()
		if p == nil {
			a.cfg.logger.Warn("arena: page allocation failed", slog.Int("requested", extraPages), slog.Int("completed", i))
			return fmt.Errorf("%w: page %d of %d", ErrAllocationFailure, i+1, extraPages)
		}
		a.totalPages.Add(1)
		a.cfg.logger.Debug("arena: page created", slog.Int("total_pages", int(a.totalPages.Load())))
		a.free.pushFront(p)
	}
	return nil
}

func (a *Arena[T]) acquire() (*page[T], uint8, *T, error) {
	if a.closed.Load() {
		return nil, 0, nil, ErrClosed
	}
	a.free.drainIncoming()
	for {
		p := a.free.popOrRotate()
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
		return p, idx, slot, nil
	}
}

// reclaim is called from release closures, possibly from goroutines other
// than the owner; it only ever touches the incoming queue, never the
// owner-only free-list head directly.
func (a *Arena[T]) reclaim(p *page[T], idx uint8) {
	wasFull, _ := p.releaseSlot(idx)
	if wasFull {
		a.free.incoming.push(p)
	}
}

func (a *Arena[T]) release(p *page[T], idx uint8) func(*T) {
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

// Alloc claims a slot and writes value into it. Call only from the owner
// goroutine.
func (a *Arena[T]) Alloc(value T) (Handle[T], error) {
	return a.AllocWith(func(slot *T) { *slot = value })
}

// AllocWith claims a slot and calls init to construct the value in
// place. If init panics, the slot is released before the panic
// propagates.
func (a *Arena[T]) AllocWith(init func(*T)) (Handle[T], error) {
	p, idx, slot, err := a.acquire()
	if err != nil {
		return Handle[T]{}, err
	}
	release := a.release(p, idx)
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

// AllocInPlace is like AllocWith; init is trusted to fully initialize the
// slot, and the same panic-safety applies.
func (a *Arena[T]) AllocInPlace(init func(*T)) (Handle[T], error) {
	return a.AllocWith(init)
}

// AllocMany claims n slots, initializing each with the corresponding
// value. On partial failure it returns the handles obtained so far
// alongside the error.
func (a *Arena[T]) AllocMany(values []T) ([]Handle[T], error) {
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

// Close marks the Arena unusable for further allocation. Outstanding
// handles remain valid for their usual lifetime (bounded by the Arena's
// own, per the single-owner contract), but Alloc and Grow return
// ErrClosed afterward.
func (a *Arena[T]) Close() {
	a.closed.Store(true)
}

// Stats walks the owner-only free-list plus the stored page count;
// consistent only when called from the owner goroutine with no Alloc in
// flight.
func (a *Arena[T]) Stats() Stats {
	a.free.drainIncoming()
	free := 0
	for p := a.free.head; p != nil; p = p.next {
		free += slotsPerPage - p.usedCount()
	}
	total := int(a.totalPages.Load())
	used := total*slotsPerPage - free
	return Stats{Pages: total, FreeSlots: free, UsedSlots: used}
}

// Len returns the number of currently-occupied slots.
func (a *Arena[T]) Len() int { return a.Stats().UsedSlots }

// Cap returns the total slot capacity currently reserved.
func (a *Arena[T]) Cap() int { return a.Stats().Cap() }
