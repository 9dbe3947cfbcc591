package occtxn

import (
	"github.com/occdb/txncore/index"
	"github.com/occdb/txncore/tuple"
)

// Protocol is the concurrency-protocol capability set the transaction
// is parameterized by (spec §9): generating commit tids, answering
// snapshot/visibility questions, and being notified of tid completion
// and garbage for reclamation. Kept as an interface rather than
// inheritance so Txn stays protocol-agnostic.
type Protocol interface {
	// ConsistentSnapshotTID reports a tid such that every version with
	// tid <= it is visible to this transaction, if the protocol
	// supports one (false disables the read-only fast path).
	ConsistentSnapshotTID() (tid uint64, ok bool)

	// CanReadTID reports whether a tuple carrying tid is visible to
	// this transaction; used during Phase B's write-lock acquisition
	// to reject a tuple whose current version this transaction
	// shouldn't be building on.
	CanReadTID(tid uint64) bool

	// GenCommitTID mints a commit tid strictly greater than any tid
	// observed in the read or write sets, and any tid this protocol has
	// previously issued. locked is the sorted, already-locked write set.
	GenCommitTID(locked []*tuple.Tuple) uint64

	// OnTIDFinish is notified once a commit tid has been minted and the
	// transaction has reached a terminal state (committed or aborted).
	OnTIDFinish(tid uint64)

	// OnDBTupleSpill is notified when write_record_at had to allocate a
	// replacement tuple, so the superseded payload can be scheduled for
	// reclamation.
	OnDBTupleSpill(idx index.Index, key string, latest *tuple.Tuple)

	// OnLogicalDelete is notified when a write installs a tombstone, so
	// the index entry can eventually be physically removed.
	OnLogicalDelete(idx index.Index, key string, latest *tuple.Tuple)
}
