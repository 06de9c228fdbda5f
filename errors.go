package arena

import "errors"

// Sentinel errors returned by alloc and its variants. Compare with errors.Is.
var (
	// ErrAllocationFailure is returned when the system allocator could not
	// provide a new page. The arena is left exactly as it was before the
	// call: no partially-constructed page is retained.
	ErrAllocationFailure = errors.New("arena: allocation failure")

	// ErrDoubleRelease is raised (via panic) when a slot's bit is already
	// set at release time, i.e. the slot was released twice.
	ErrDoubleRelease = errors.New("arena: double release of slot")

	// ErrForeignSlot is raised (via panic) when a handle's page back
	// pointer does not match the page the slot header records, i.e. the
	// handle was routed to the wrong page.
	ErrForeignSlot = errors.New("arena: release routed to foreign page")

	// ErrClosed is returned by the Alloc family and Grow of a SharedArena,
	// Arena or Pool once Close has been called on it.
	ErrClosed = errors.New("arena: use of arena after Close")
)
