package occtxn

import (
	"unsafe"

	"github.com/occdb/txncore/index"
	"github.com/occdb/txncore/tuple"
)

// writeNode is one entry of the commit protocol's working set: a tuple
// this transaction is about to install a new version into, or one it
// freshly created via insert_if_absent.
type writeNode struct {
	idx     index.Index
	key     string
	tp      *tuple.Tuple
	created bool
	locked  bool
	payload []byte
}

// Commit runs the four-phase protocol (spec §4.5). On success it
// returns (true, nil). On abort it returns (false, *AbortError) unless
// throwOnAbort is true, in which case it panics with the *AbortError
// instead (an AbortInternal fault always panics, as *Fault, regardless
// of throwOnAbort).
func (t *Txn) Commit(throwOnAbort bool) (bool, error) {
	switch t.state {
	case Committed:
		return true, nil
	case Aborted:
		err := newAbortError(t.reason, nil)
		if throwOnAbort {
			panic(err)
		}
		return false, err
	}

	ok, err := t.doCommit()
	if ok {
		return true, nil
	}
	if f, isFault := err.(*Fault); isFault {
		panic(f)
	}
	if throwOnAbort {
		panic(err)
	}
	return false, err
}

func (t *Txn) doCommit() (bool, error) {
	_, hasSnap := t.snapshotTID()

	nodes, abortErr := t.findWriteNodes()
	if abortErr != nil {
		return t.doAbort(nodes, abortErr, 0, false)
	}

	if hasSnap && len(nodes) == 0 {
		// Read-only with a consistent snapshot: no locks, no writes,
		// nothing to validate against a moving target.
		return t.finishCommit(nodes, 0, false)
	}

	var commitTID uint64
	var mintedTID bool
	if len(nodes) > 0 {
		sortByIdentity(nodes)
		if abortErr := t.lockWriteNodes(nodes); abortErr != nil {
			return t.doAbort(nodes, abortErr, 0, false)
		}
		commitTID = t.protocol.GenCommitTID(tuplesOf(nodes))
		mintedTID = true
	}

	if abortErr := t.readValidation(); abortErr != nil {
		return t.doAbort(nodes, abortErr, commitTID, mintedTID)
	}

	if len(nodes) > 0 {
		t.writeRecords(nodes, commitTID)
	}

	return t.finishCommit(nodes, commitTID, mintedTID)
}

func (t *Txn) finishCommit(nodes []*writeNode, commitTID uint64, mintedTID bool) (bool, error) {
	t.state = Committed
	if mintedTID {
		t.protocol.OnTIDFinish(commitTID)
	}
	t.metrics.observeCommit()
	for _, c := range t.ctx {
		t.metrics.observeContext(c)
	}
	t.region.Close()
	return true, nil
}

func (t *Txn) doAbort(nodes []*writeNode, abortErr error, commitTID uint64, mintedTID bool) (bool, error) {
	for _, wn := range nodes {
		if wn.created {
			// Take back a tuple this commit inserted; DELETING makes any
			// writer that found it through search abort in Phase B.
			wn.tp.MarkDeleting()
			if cur, ok := wn.idx.Search(wn.key); ok && cur == wn.tp {
				wn.idx.Remove(wn.key)
			}
		}
		if wn.locked {
			wn.tp.Unlock()
		}
	}
	reason := AbortInternal
	if ae, ok := abortErr.(*AbortError); ok {
		reason = ae.Reason
	}
	t.state = Aborted
	t.reason = reason
	if mintedTID {
		t.protocol.OnTIDFinish(commitTID)
	}
	t.metrics.observeAbort(reason)
	t.region.Close()
	return false, abortErr
}

func tuplesOf(nodes []*writeNode) []*tuple.Tuple {
	out := make([]*tuple.Tuple, len(nodes))
	for i, n := range nodes {
		out[i] = n.tp
	}
	return out
}

func sortByIdentity(nodes []*writeNode) {
	// Every committer locks in the same global order regardless of
	// which thread it is, so two transactions competing for the same
	// tuples never deadlock (spec §5's no-deadlock guarantee).
	less := func(i, j int) bool {
		return uintptr(unsafe.Pointer(nodes[i].tp)) < uintptr(unsafe.Pointer(nodes[j].tp))
	}
	insertionSort(nodes, less)
}

func insertionSort(nodes []*writeNode, less func(i, j int) bool) {
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && less(j, j-1); j-- {
			nodes[j], nodes[j-1] = nodes[j-1], nodes[j]
		}
	}
}

// findWriteNodes is commit Phase A: resolve every write-set entry to a
// concrete tuple, via insert_if_absent or search as the insert hint and
// current index contents dictate (spec §4.5 Phase A).
func (t *Txn) findWriteNodes() ([]*writeNode, error) {
	var nodes []*writeNode
	for idx, c := range t.ctx {
		if c.writeSet.Empty() {
			continue
		}
		var abortErr error
		c.writeSet.Range(func(key string, we writeEntry) bool {
			wn, err := t.resolveWriteNode(idx, c, key, we)
			if err != nil {
				abortErr = err
				return false
			}
			nodes = append(nodes, wn)
			return true
		})
		if abortErr != nil {
			return nodes, abortErr
		}
	}
	return nodes, nil
}

const maxInsertAttempts = 4

func (t *Txn) resolveWriteNode(idx index.Index, c *txnContext, key string, we writeEntry) (*writeNode, error) {
	tryInsert := we.insert
	for attempt := 0; attempt < maxInsertAttempts; attempt++ {
		if !tryInsert {
			if tp, found := idx.Search(key); found {
				t.bindExistingTuple(c, tp, key)
				return &writeNode{idx: idx, key: key, tp: tp, payload: we.payload}, nil
			}
		}

		newTuple := tuple.AllocFirst(true, we.payload)
		newTuple.Lock(true)
		info, inserted := idx.InsertIfAbsent(key, newTuple)
		if !inserted {
			newTuple.Unlock()
			t.metrics.insertSlowPathHits.Inc()
			tryInsert = false
			continue
		}
		t.metrics.insertFastPathHits.Inc()

		if t.flags.has(FlagLowLevelScan) {
			if observed, ok := c.nodeScan.Get(info.Node); ok {
				// info.Version is the segment's version after this very
				// insert; if nothing else touched the segment since our
				// scan observed it, it must be exactly one past that
				// observation. Anything else (no bump, or more than one)
				// means another insert/delete interleaved.
				if info.Version != observed+1 {
					newTuple.MarkDeleting()
					idx.Remove(key)
					newTuple.Unlock()
					return nil, newAbortError(AbortWriteNodeInterference, nil)
				}
				c.nodeScan.Set(info.Node, info.Version)
			}
		}

		t.bindFreshTuple(c, newTuple, key)
		return &writeNode{idx: idx, key: key, tp: newTuple, created: true, locked: true, payload: we.payload}, nil
	}
	return nil, newFault("occtxn: insert_if_absent for key %q did not converge after %d attempts", key, maxInsertAttempts)
}

// bindExistingTuple updates any earlier read-set/absent-set entries for
// a tuple Phase A just resolved via search, so Phase C validates the
// right thing and Phase B knows it doesn't already hold the lock.
func (t *Txn) bindExistingTuple(c *txnContext, tp *tuple.Tuple, key string) {
	if re, ok := c.readSet.Get(tp); ok {
		re.holdsLock = true
		c.readSet.Set(tp, re)
	}
	if ae, ok := c.absentSet.Get(key); ok {
		ae.kind = absentWrite
		ae.tuple = tp
		c.absentSet.Set(key, ae)
	}
}

func (t *Txn) bindFreshTuple(c *txnContext, tp *tuple.Tuple, key string) {
	if re, ok := c.readSet.Get(tp); ok {
		re.holdsLock = true
		c.readSet.Set(tp, re)
	}
	if ae, ok := c.absentSet.Get(key); ok {
		ae.kind = absentInsert
		ae.tuple = tp
		c.absentSet.Set(key, ae)
	}
}

// lockWriteNodes is commit Phase B: acquire every write lock in sorted
// order, minting no commit tid here (the caller does that once every
// lock is confirmed held and valid).
func (t *Txn) lockWriteNodes(nodes []*writeNode) error {
	for _, wn := range nodes {
		if wn.locked {
			continue
		}
		w := wn.tp.Lock(true)
		wn.locked = true
		if w.Deleting() || !w.Latest() || !t.protocol.CanReadTID(w.TID()) {
			return newAbortError(AbortWriteNodeInterference, nil)
		}
	}
	return nil
}

// readValidation is commit Phase C: confirm every read, every proven
// absence, and every phantom-avoidance structure this transaction
// accumulated still holds.
func (t *Txn) readValidation() error {
	for idx, c := range t.ctx {
		if err := t.validateReadSet(c); err != nil {
			return err
		}
		if err := t.validateAbsentSet(idx, c); err != nil {
			return err
		}
		if err := t.validatePhantoms(idx, c); err != nil {
			return err
		}
	}
	return nil
}

func (t *Txn) validateReadSet(c *txnContext) error {
	var abortErr error
	c.readSet.Range(func(tp *tuple.Tuple, re readEntry) bool {
		var ok bool
		if re.holdsLock {
			ok = tp.IsLatestVersion(re.tid)
		} else {
			ok = tp.StableIsLatestVersion(re.tid)
		}
		if !ok {
			abortErr = newAbortError(AbortReadNodeInterference, nil)
			return false
		}
		return true
	})
	return abortErr
}

func (t *Txn) validateAbsentSet(idx index.Index, c *txnContext) error {
	var abortErr error
	c.absentSet.Range(func(key string, ae absentEntry) bool {
		switch ae.kind {
		case absentInsert:
			return true // we proved absence ourselves by inserting
		case absentWrite:
			if !ae.tuple.LatestValueIsNil() {
				abortErr = newAbortError(AbortReadAbsenceInterference, nil)
				return false
			}
		case absentRead:
			tp, found := idx.Search(key)
			if !found {
				return true
			}
			if !tp.StableLatestValueIsNil() {
				abortErr = newAbortError(AbortReadAbsenceInterference, nil)
				return false
			}
		}
		return true
	})
	return abortErr
}

func (t *Txn) validatePhantoms(idx index.Index, c *txnContext) error {
	if t.flags.has(FlagLowLevelScan) {
		var abortErr error
		c.nodeScan.Range(func(node index.NodeID, v uint64) bool {
			if idx.ExtractVersionNumber(node) != v {
				abortErr = newAbortError(AbortNodeScanReadVersionChanged, nil)
				return false
			}
			return true
		})
		return abortErr
	}

	for _, r := range c.absentRanges.Ranges() {
		var hiPtr *string
		if r.hasB {
			hiPtr = &r.b
		}
		failed := false
		idx.SearchRangeCall(r.a, hiPtr, func(key string, tp *tuple.Tuple) bool {
			if _, inWriteSet := c.writeSet.Get(key); inWriteSet {
				return true
			}
			// This tuple isn't one this transaction locked (those are
			// filtered out above), so its payload/size can be mid-write
			// under a concurrent committer's lock; only a stable read
			// counts as proof of absence (spec §4.2).
			if !tp.StableLatestValueIsNil() {
				failed = true
				return false
			}
			return true
		}, nil)
		if failed {
			return newAbortError(AbortWriteNodeInterference, nil)
		}
	}
	return nil
}

// writeRecords is commit Phase D: install every new version at
// commitTID and release each tuple's lock.
func (t *Txn) writeRecords(nodes []*writeNode, commitTID uint64) {
	for _, wn := range nodes {
		if wn.created {
			wn.tp.MarkModifying()
			wn.tp.SetCommitTID(commitTID)
			wn.tp.Unlock()
			continue
		}

		res := wn.tp.WriteRecordAt(commitTID, wn.payload)
		latest := wn.tp
		if res.Replacement != nil {
			latest = res.Replacement
			old, existed := wn.idx.Insert(wn.key, res.Replacement)
			if !existed || old != wn.tp {
				panic(newFault("occtxn: index entry for %q changed unexpectedly during spill", wn.key))
			}
		}
		if res.Spilled {
			t.protocol.OnDBTupleSpill(wn.idx, wn.key, latest)
		}
		if len(wn.payload) == 0 {
			t.protocol.OnLogicalDelete(wn.idx, wn.key, latest)
		}
		wn.tp.Unlock()
	}
}
