package arena

import "sync/atomic"

// incrementIfNonZero atomically adds 1 to *strong iff its current value is
// nonzero, returning whether it succeeded. This is WeakHandle.Upgrade's
// only primitive: a CAS loop rather than a plain Add so that a strong
// count which has already reached zero is never resurrected.
func incrementIfNonZero(strong *atomic.Int32) bool {
	for {
		cur := strong.Load()
		if cur == 0 {
			return false
		}
		if strong.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// Destroyer is implemented by values that need cleanup before their slot
// is reused. If *T satisfies Destroyer, Release and IntoInner call
// Destroy on the slot. Per this package's panic policy, the slot is zeroed
// and its bit marked free after Destroy returns or panics, so a panicking
// Destroy still leaves the slot reusable; the panic itself is never recovered and
// propagates out of Release/IntoInner to the caller.
type Destroyer interface {
	Destroy()
}

func destroyIfNeeded[T any](slot *T) {
	if d, ok := any(slot).(Destroyer); ok {
		d.Destroy()
	}
}

// Handle is the exclusive owning wrapper returned by Arena and Pool. It is
// not copyable in spirit (copying duplicates the pointer, not the
// ownership) — callers should treat it as moved once passed along, and
// must call Release exactly once.
type Handle[T any] struct {
	slot    *T
	release func(*T)
}

func newHandle[T any](slot *T, release func(*T)) Handle[T] {
	return Handle[T]{slot: slot, release: release}
}

// Get returns a pointer to the owned value for reading or writing.
// Calling Get after Release is a misuse error.
func (h *Handle[T]) Get() *T {
	return h.slot
}

// Valid reports whether the handle still owns a live slot.
func (h *Handle[T]) Valid() bool {
	return h.slot != nil
}

// Release destroys the contained value (if it implements Destroyer) and
// marks the slot free. A second Release on the same Handle does nothing;
// releasing the slot again through a copy of the Handle, while the slot is
// still free, panics with ErrDoubleRelease from the underlying page's
// bitfield check.
func (h *Handle[T]) Release() {
	if h.slot == nil {
		return
	}
	slot, release := h.slot, h.release
	h.slot, h.release = nil, nil
	release(slot)
}

// IntoInner copies the owned value out by value, releases the slot
// without invoking Destroy a second time on the copy, and leaves the
// handle empty. Destroy still runs on the original slot storage, exactly
// as it would for Release.
func (h *Handle[T]) IntoInner() T {
	v := *h.slot
	h.Release()
	return v
}

// SharedHandle is the reference-counted owning wrapper returned by
// SharedArena. Clone and drop are thread-safe; the slot's value is
// destroyed and its bit released only when the last SharedHandle (and
// every WeakHandle upgrade attempt thereafter fails) has dropped.
type SharedHandle[T any] struct {
	slot    *T
	strong  *atomic.Int32
	release func(*T)
}

func newSharedHandle[T any](slot *T, strong *atomic.Int32, release func(*T)) SharedHandle[T] {
	strong.Store(1)
	return SharedHandle[T]{slot: slot, strong: strong, release: release}
}

// Get returns a pointer to the shared value for reading.
func (h SharedHandle[T]) Get() *T {
	return h.slot
}

// Clone increments the strong count and returns a new handle referring to
// the same slot.
func (h SharedHandle[T]) Clone() SharedHandle[T] {
	h.strong.Add(1)
	return h
}

// Downgrade returns a WeakHandle that does not keep the value alive.
func (h SharedHandle[T]) Downgrade() WeakHandle[T] {
	return WeakHandle[T]{slot: h.slot, strong: h.strong, release: h.release}
}

// Release decrements the strong count; on the last drop it destroys the
// value and releases the slot back to the arena.
func (h *SharedHandle[T]) Release() {
	if h.slot == nil {
		return
	}
	slot, strong, release := h.slot, h.strong, h.release
	h.slot, h.strong, h.release = nil, nil, nil
	if strong.Add(-1) == 0 {
		release(slot)
	}
}

// WeakHandle does not keep the referenced value alive. Upgrade succeeds
// only if a strong reference is still live at the moment of the call.
type WeakHandle[T any] struct {
	slot    *T
	strong  *atomic.Int32
	release func(*T)
}

// Upgrade atomically increments the strong count iff it is currently
// nonzero, returning a usable SharedHandle on success.
func (w WeakHandle[T]) Upgrade() (SharedHandle[T], bool) {
	if !incrementIfNonZero(w.strong) {
		return SharedHandle[T]{}, false
	}
	return SharedHandle[T]{slot: w.slot, strong: w.strong, release: w.release}, true
}
