package arena

// Stats is a point-in-time snapshot of an arena's occupancy. It is only
// guaranteed consistent when read quiescently, i.e. with no concurrent
// alloc/release in flight; under concurrent mutation the three fields may
// not reconcile to a single instant.
type Stats struct {
	Pages     int
	FreeSlots int
	UsedSlots int
}

// Cap returns the total slot capacity implied by the snapshot.
func (s Stats) Cap() int {
	return s.Pages * slotsPerPage
}
