// Package proto provides concrete occtxn.Protocol implementations:
// OCCProtocol, the default commit-tid mint with no external visibility
// restriction, and SnapshotProtocol, which layers a consistent
// snapshot tid on top for a read-only commit fast path.
package proto

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/occdb/txncore/index"
	"github.com/occdb/txncore/reclamation"
	"github.com/occdb/txncore/tuple"
)

// OCCProtocol mints commit tids from a single monotonic counter, bumped
// to stay ahead of both its own last issue and every tid a committing
// transaction observed in its locked write set. It imposes no
// visibility restriction of its own: CanReadTID always allows, leaving
// recency entirely to the LATEST flag and the lock discipline.
type OCCProtocol struct {
	counter uint64 // atomic
	domain  *reclamation.Domain
	logger  *zap.SugaredLogger
}

// NewOCCProtocol builds a protocol that schedules superseded tuple
// chains and removed index entries for cleanup through domain. A nil
// logger defaults to a no-op.
func NewOCCProtocol(domain *reclamation.Domain, logger *zap.SugaredLogger) *OCCProtocol {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &OCCProtocol{domain: domain, logger: logger}
}

func (p *OCCProtocol) ConsistentSnapshotTID() (uint64, bool) { return 0, false }

func (p *OCCProtocol) CanReadTID(uint64) bool { return true }

// GenCommitTID returns a tid strictly greater than every tid observed
// in locked and strictly greater than any tid this protocol has issued
// before, so commit order is always consistent with a valid
// serialization order.
func (p *OCCProtocol) GenCommitTID(locked []*tuple.Tuple) uint64 {
	var maxObserved uint64
	for _, tp := range locked {
		if tid := tp.Version().TID(); tid > maxObserved {
			maxObserved = tid
		}
	}
	for {
		cur := atomic.LoadUint64(&p.counter)
		next := cur + 1
		if maxObserved >= next {
			next = maxObserved + 1
		}
		if atomic.CompareAndSwapUint64(&p.counter, cur, next) {
			return next
		}
	}
}

// OnTIDFinish advances the counter past tid if some other committer's
// tid generation raced ahead of it without this call observing it
// first (can happen when GenCommitTID's read and CAS straddle another
// goroutine's own GenCommitTID call).
func (p *OCCProtocol) OnTIDFinish(tid uint64) {
	for {
		cur := atomic.LoadUint64(&p.counter)
		if tid <= cur {
			return
		}
		if atomic.CompareAndSwapUint64(&p.counter, cur, tid) {
			return
		}
	}
}

// OnDBTupleSpill schedules the superseded tail (now reachable only via
// latest.Prev()) for logging once it's safe to have stopped being
// read; Go's GC does the actual freeing once nothing still references
// the chain.
func (p *OCCProtocol) OnDBTupleSpill(idx index.Index, key string, latest *tuple.Tuple) {
	p.domain.Defer(func() {
		p.logger.Debugw("tuple chain spilled", "key", key)
	})
}

// OnLogicalDelete schedules the tombstone's physical removal from idx,
// but only once no region open at delete time could still be reading
// it, and only if the key hasn't been resurrected in the meantime.
func (p *OCCProtocol) OnLogicalDelete(idx index.Index, key string, latest *tuple.Tuple) {
	p.domain.Defer(func() {
		if !latest.StableLatestValueIsNil() {
			return
		}
		if cur, ok := idx.Search(key); ok && cur == latest {
			idx.Remove(key)
			p.logger.Debugw("tombstone physically removed", "key", key)
		}
	})
}
