// Package reclamation implements the region-based quiescent reclamation
// domain the transaction core coordinates with: a thread enters a
// region at transaction start and leaves it at transaction end, and
// memory freed while any region was open stays alive until every region
// that was already open at the time of the free has closed. Regions
// opened afterward never block it.
package reclamation

import (
	"sync"

	"github.com/google/uuid"
)

// Domain tracks open regions and defers garbage collected inside a
// region until it is safe to reclaim.
type Domain struct {
	mu      sync.Mutex
	open    map[uuid.UUID]struct{}
	garbage []*garbageEntry
}

type garbageEntry struct {
	waitingOn map[uuid.UUID]struct{}
	fn        func()
}

// NewDomain constructs an empty reclamation domain.
func NewDomain() *Domain {
	return &Domain{open: make(map[uuid.UUID]struct{})}
}

// Region is a handle on one open region; it must be closed exactly
// once, normally via a deferred Close() right after BeginRegion.
type Region struct {
	domain *Domain
	id     uuid.UUID
}

// BeginRegion pins every tuple that exists right now: none of it can be
// freed until this region closes.
func (d *Domain) BeginRegion() *Region {
	d.mu.Lock()
	defer d.mu.Unlock()
	r := &Region{domain: d, id: uuid.New()}
	d.open[r.id] = struct{}{}
	return r
}

// Close ends the region and runs any deferred free that was only
// waiting on this region (and regions already closed) to finish.
func (r *Region) Close() {
	d := r.domain
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.open, r.id)

	remaining := d.garbage[:0]
	for _, g := range d.garbage {
		delete(g.waitingOn, r.id)
		if len(g.waitingOn) == 0 {
			g.fn()
			continue
		}
		remaining = append(remaining, g)
	}
	d.garbage = remaining
}

// Defer schedules fn to run once every region open right now has
// closed. Used for superseded tuple payloads (on_dbtuple_spill) and
// index-entry physical removal (on_logical_delete).
func (d *Domain) Defer(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.open) == 0 {
		fn()
		return
	}
	waiting := make(map[uuid.UUID]struct{}, len(d.open))
	for id := range d.open {
		waiting[id] = struct{}{}
	}
	d.garbage = append(d.garbage, &garbageEntry{waitingOn: waiting, fn: fn})
}

// OpenRegions reports how many regions are currently open, for tests
// and observability.
func (d *Domain) OpenRegions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.open)
}

// PendingGarbage reports how many deferred frees have not yet run, for
// tests and observability.
func (d *Domain) PendingGarbage() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.garbage)
}
