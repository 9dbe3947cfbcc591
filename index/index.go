// Package index specifies the ordered-index contract the transaction
// core invokes (search, insert_if_absent, insert, search_range_call)
// and ships one concrete implementation, BTreeIndex, over
// github.com/tidwall/btree so the core is runnable end to end.
//
// The underlying concurrent B-tree itself is treated as an external
// collaborator by the transaction core (spec §1): this package exists
// to give that collaborator a real body, not to re-specify it.
package index

import "github.com/occdb/txncore/tuple"

// NodeID identifies a leaf node (or, for BTreeIndex, the synthetic
// key-space segment standing in for one) whose version is observable
// for phantom detection under FlagLowLevelScan.
type NodeID = *int64

// Visitor is invoked once per key in ascending order during a range
// scan; returning false halts the scan early.
type Visitor func(key string, value *tuple.Tuple) bool

// InsertInfo reports the leaf node touched by a successful
// InsertIfAbsent and its version at the moment of insertion.
type InsertInfo struct {
	Node    NodeID
	Version uint64
}

// Index is the ordered map from byte-string key to the pointer of its
// latest tuple version, as required by the transaction core.
type Index interface {
	// Search returns the tuple currently mapped to key, if any.
	Search(key string) (*tuple.Tuple, bool)

	// InsertIfAbsent installs value at key iff no mapping exists yet.
	// On success it reports the node touched and its post-insert
	// version, for low-level-scan phantom bookkeeping.
	InsertIfAbsent(key string, value *tuple.Tuple) (InsertInfo, bool)

	// Insert unconditionally maps key to value, returning whatever was
	// previously mapped there (nil if the key was absent).
	Insert(key string, value *tuple.Tuple) (old *tuple.Tuple, existed bool)

	// Remove deletes the mapping for key, returning the previous value.
	Remove(key string) (old *tuple.Tuple, existed bool)

	// SearchRangeCall visits every key in [lo, hi) in ascending order;
	// hi == nil means unbounded above. Stops early if visit returns
	// false. onNode, if non-nil, is called for the nodes entered during
	// the scan (a node may be reported more than once; only the first
	// observation matters to the caller) for FlagLowLevelScan's phantom
	// bookkeeping.
	SearchRangeCall(lo string, hi *string, visit Visitor, onNode func(InsertInfo))

	// ExtractVersionNumber reads a node's current version number,
	// independent of any in-flight scan, used to re-validate a
	// previously observed node_scan entry at commit time.
	ExtractVersionNumber(node NodeID) uint64
}
