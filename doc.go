// Package arena implements a concurrent, fixed-size object pool for a
// single statically-known type T. Storage is reserved in pages of 63
// slots; each page carries a 64-bit occupancy bitfield that a single
// bit-scan turns into the next free slot, amortizing the cost of the
// underlying system allocator across many Alloc calls.
//
// # Overview
//
// Three variants share the same page layout and differ only in how much
// synchronization their sharing discipline actually needs:
//
//   - SharedArena: any goroutine may Alloc, any goroutine may drop a
//     handle. Fully lock-free on both paths.
//   - Arena: a single goroutine calls Alloc, but any goroutine may drop
//     a handle. The bitfield is still atomic; the free-list is not.
//   - Pool: a single goroutine does everything. No atomics anywhere.
//
// Pick the least synchronized variant your sharing pattern allows —
// Pool is cheaper than Arena, and Arena is cheaper than SharedArena.
//
// # Basic Usage
//
//	p, err := arena.NewSharedArena[MyStruct]()
//	if err != nil {
//		log.Fatal(err)
//	}
//	h, err := p.Alloc(MyStruct{Field: 1})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer h.Release()
//	h.Get().Field = 2
//
// # Thread Safety
//
// SharedArena's Alloc, AllocWith, AllocShared, Grow, Stats, and every
// handle's Release/Clone/Upgrade are safe for concurrent use from any
// number of goroutines. Arena's Alloc, AllocWith, Grow, and Stats must
// only be called from its single owner goroutine; Release on a Handle it
// issued is safe from any goroutine. Pool is not safe for concurrent use
// at all — every method, including a Handle's Release, must run on the
// same goroutine that constructed the Pool.
//
// # Performance Characteristics
//
// Alloc is O(1) amortized: a single CAS-guarded bit scan on the hot
// path, with a system allocator call only when every existing page is
// full. Release is O(1): a single bit set plus, only when the page
// transitions from full to has-free, a free-list relink. Arena's Alloc
// relinks each page queued by a cross-goroutine release only after
// checking that it is not already on the free-list, an O(pages) walk per
// queued page. Stats walks the
// free-list and is O(pages), intended for diagnostics rather than the
// hot path.
package arena
