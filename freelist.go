package arena

import (
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
)

// headNode boxes one entry of SharedArena's free-list. push always
// allocates a fresh node, so a page that is popped (by becoming full and
// getting unlinked) and later re-pushed is never represented by the same
// *headNode value twice; a concurrent popper holding a stale head
// reference therefore always fails its CAS instead of corrupting the
// stack, which is the ABA mitigation this package substitutes for a
// packed tagged pointer.
type headNode[T any] struct {
	page *page[T]
	next *headNode[T]
}

// sharedFreeList is a lock-free Treiber stack of pages with at least one
// free slot, safe for concurrent push from any number of deallocating
// goroutines and concurrent pop/peek from any number of allocating ones.
type sharedFreeList[T any] struct {
	head atomic.Pointer[headNode[T]]
}

// pushFront links p onto the free-list. Used after a release promotes a
// page from full to has-free, and when a freshly-created page joins the
// list for the first time.
func (l *sharedFreeList[T]) pushFront(p *page[T]) {
	n := &headNode[T]{page: p}
	for {
		old := l.head.Load()
		n.next = old
		if l.head.CompareAndSwap(old, n) {
			return
		}
	}
}

// popOrRotate returns a page with at least one free slot, unlinking any
// fully-occupied pages it finds at the head along the way. It does not
// unlink the page it returns: the allocator takes a slot from it via
// acquireFreeSlot and leaves it on the list for the next caller, which is
// safe because the caller is about to hold an acquired slot (and thus an
// implicit reference) on that page.
func (l *sharedFreeList[T]) popOrRotate() *page[T] {
	for {
		old := l.head.Load()
		if old == nil {
			return nil
		}
		if old.page.unavailableForAlloc() {
			l.head.CompareAndSwap(old, old.next)
			continue
		}
		return old.page
	}
}

// arenaFreeList is Arena's single-owner, non-atomic free-list. Only the
// allocator thread ever reads or mutates head; deallocations from other
// threads go through incoming instead.
type arenaFreeList[T any] struct {
	head     *page[T]
	incoming incomingQueue[T]
}

func newArenaFreeList[T any]() *arenaFreeList[T] {
	return &arenaFreeList[T]{incoming: incomingQueue[T]{q: queue.New()}}
}

func (l *arenaFreeList[T]) pushFront(p *page[T]) {
	p.next = l.head
	l.head = p
}

// popOrRotate walks the owner's list, unlinking pages that became full
// since they were last examined, until it finds one with a free slot.
func (l *arenaFreeList[T]) popOrRotate() *page[T] {
	for l.head != nil {
		if !l.head.isFull() {
			return l.head
		}
		l.head = l.head.next
	}
	return nil
}

// drainIncoming merges every page queued by a non-owner thread's release
// back onto the owner-only list. The owner calls this at the start of
// every alloc before consulting its own head. A queued page that is still
// linked (it filled up without being rotated off the list) stays where it
// is, so no page is ever linked twice.
func (l *arenaFreeList[T]) drainIncoming() {
	for {
		p, ok := l.incoming.pop()
		if !ok {
			return
		}
		linked := false
		for q := l.head; q != nil; q = q.next {
			if q == p {
				linked = true
				break
			}
		}
		if !linked {
			l.pushFront(p)
		}
	}
}

// incomingQueue is the cross-thread MPSC staging list a non-owner
// deallocation enqueues onto instead of touching Arena's unsynchronized
// free-list directly.
type incomingQueue[T any] struct {
	mu sync.Mutex
	q  *queue.Queue
}

func (q *incomingQueue[T]) push(p *page[T]) {
	q.mu.Lock()
	q.q.Add(p)
	q.mu.Unlock()
}

func (q *incomingQueue[T]) pop() (*page[T], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.q.Length() == 0 {
		return nil, false
	}
	return q.q.Remove().(*page[T]), true
}
