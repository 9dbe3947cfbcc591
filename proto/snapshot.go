package proto

import "sync/atomic"

// SnapshotProtocol wraps an OCCProtocol with a consistent snapshot tid:
// the highest commit tid known to be finished. A read-only transaction
// (no write-set entries) can use this to commit without validating its
// read set at all, since every version it observed carries a tid at or
// below a point no concurrent writer can still be racing against
// (spec's read-only fast path, S6).
type SnapshotProtocol struct {
	*OCCProtocol
	snapshotTID uint64 // atomic
}

// NewSnapshotProtocol builds a SnapshotProtocol over occ, which
// continues to own commit-tid minting and reclamation scheduling.
func NewSnapshotProtocol(occ *OCCProtocol) *SnapshotProtocol {
	return &SnapshotProtocol{OCCProtocol: occ}
}

func (p *SnapshotProtocol) ConsistentSnapshotTID() (uint64, bool) {
	return atomic.LoadUint64(&p.snapshotTID), true
}

// OnTIDFinish advances the externally-visible snapshot once tid is
// known finished, in addition to the counter bookkeeping OCCProtocol
// already does.
func (p *SnapshotProtocol) OnTIDFinish(tid uint64) {
	p.OCCProtocol.OnTIDFinish(tid)
	for {
		cur := atomic.LoadUint64(&p.snapshotTID)
		if tid <= cur {
			return
		}
		if atomic.CompareAndSwapUint64(&p.snapshotTID, cur, tid) {
			return
		}
	}
}
