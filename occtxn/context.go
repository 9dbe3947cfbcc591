package occtxn

import (
	"github.com/occdb/txncore/index"
	"github.com/occdb/txncore/tuple"
)

// absentKind classifies why a key is recorded in the absent set.
type absentKind uint8

const (
	// absentRead means a local search missed and the index search also
	// missed; we'll re-check the index at validation time.
	absentRead absentKind = iota
	// absentWrite means this transaction is about to write the key and
	// found (via find_write_nodes) the tuple that must still show a
	// nil latest value at validation.
	absentWrite
	// absentInsert means this transaction inserted the key itself,
	// which already guarantees its prior absence.
	absentInsert
)

type absentEntry struct {
	kind  absentKind
	tuple *tuple.Tuple // set for absentWrite/absentInsert
}

type readEntry struct {
	tid       uint64
	holdsLock bool
}

type writeEntry struct {
	payload []byte // nil/empty means delete
	insert  bool
}

// txnContext is the per-index, per-transaction bookkeeping: spec §3's
// read_set, absent_set, write_set, node_scan, and absent_range_set.
type txnContext struct {
	readSet   smallMap[*tuple.Tuple, readEntry]
	absentSet smallMap[string, absentEntry]
	writeSet  smallMap[string, writeEntry]

	// Exactly one of the next two is used, gated by FlagLowLevelScan.
	nodeScan     smallMap[index.NodeID, uint64]
	absentRanges absentRangeSet
}

func newTxnContext() *txnContext {
	return &txnContext{}
}

// recordRead binds t to tid in the read set, first-read-wins.
func (c *txnContext) recordRead(t *tuple.Tuple, tid uint64) {
	c.readSet.SetIfAbsent(t, readEntry{tid: tid})
}

// recordAbsentRead records a local-lookup miss that also missed the
// index, unless the key is already tracked some other way.
func (c *txnContext) recordAbsentRead(key string) {
	if _, ok := c.absentSet.Get(key); ok {
		return
	}
	c.absentSet.Set(key, absentEntry{kind: absentRead})
}

// recordNodeScan keeps the first observed version for node, matching
// spec §4.4's "duplicates keep the first observation."
func (c *txnContext) recordNodeScan(node index.NodeID, version uint64) {
	c.nodeScan.SetIfAbsent(node, version)
}

func (c *txnContext) localWrite(key string, payload []byte, insert bool) {
	existing, ok := c.writeSet.Get(key)
	stickyInsert := insert || (ok && existing.insert)
	c.writeSet.Set(key, writeEntry{payload: payload, insert: stickyInsert})
}
