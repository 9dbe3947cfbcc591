package occtxn

import (
	"fmt"
	"runtime"

	"go.uber.org/zap"

	"github.com/occdb/txncore/index"
	"github.com/occdb/txncore/reclamation"
	"github.com/occdb/txncore/tuple"
)

// Txn is the transaction object: state, flags, abort reason, and the
// per-index contexts it has touched. A Txn is owned by exactly one
// goroutine from creation to commit/abort (spec §5).
type Txn struct {
	state  State
	flags  Flag
	reason AbortReason

	protocol Protocol
	domain   *reclamation.Domain
	region   *reclamation.Region
	metrics  *Metrics
	logger   *zap.SugaredLogger

	ctx        map[index.Index]*txnContext
	writeCount int
}

// New begins a transaction under protocol, pinning the reclamation
// domain's current region for the transaction's lifetime. Passing a nil
// logger or metrics is fine; both default to no-ops.
func New(protocol Protocol, domain *reclamation.Domain, metrics *Metrics, logger *zap.SugaredLogger, flags Flag) *Txn {
	if logger == nil {
		logger = nopLogger()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	t := &Txn{
		state:    Embryo,
		flags:    flags,
		protocol: protocol,
		domain:   domain,
		region:   domain.BeginRegion(),
		metrics:  metrics,
		logger:   logger,
		ctx:      make(map[index.Index]*txnContext),
	}
	runtime.SetFinalizer(t, func(t *Txn) {
		if t.state == Active || t.state == Embryo {
			t.logger.Warnw("transaction garbage collected without reaching a terminal state", "state", t.state)
		}
	})
	return t
}

// Flags reports the flags this transaction was created with.
func (t *Txn) Flags() Flag { return t.flags }

// State reports the transaction's current lifecycle state.
func (t *Txn) State() State { return t.state }

// Reason reports why the transaction aborted, or AbortNone.
func (t *Txn) Reason() AbortReason { return t.reason }

func (t *Txn) ensureActive() error {
	switch t.state {
	case Embryo:
		t.state = Active
		return nil
	case Active:
		return nil
	case Committed, Aborted:
		return ErrUnusable
	default:
		return newFault("occtxn: unknown transaction state %v", t.state)
	}
}

func (t *Txn) ctxFor(idx index.Index) *txnContext {
	c, ok := t.ctx[idx]
	if !ok {
		c = newTxnContext()
		t.ctx[idx] = c
	}
	return c
}

func (t *Txn) snapshotTID() (uint64, bool) {
	return t.protocol.ConsistentSnapshotTID()
}

// Get locates the value visible to this transaction for key in idx,
// per spec §4.2: write set, then absent set/absent ranges, then the
// index itself.
func (t *Txn) Get(idx index.Index, key string) ([]byte, bool, error) {
	if err := t.ensureActive(); err != nil {
		return nil, false, err
	}
	c := t.ctxFor(idx)
	t.metrics.localSearchLookups.Inc()

	if we, ok := c.writeSet.Get(key); ok {
		t.metrics.localWriteSetHits.Inc()
		if len(we.payload) == 0 {
			return nil, false, nil
		}
		return we.payload, true, nil
	}
	if _, ok := c.absentSet.Get(key); ok {
		t.metrics.localAbsentSetHits.Inc()
		return nil, false, nil
	}
	if !t.flags.has(FlagLowLevelScan) && c.absentRanges.keyInAbsentSet(key) {
		return nil, false, nil
	}

	tp, found := idx.Search(key)
	if !found {
		c.recordAbsentRead(key)
		return nil, false, nil
	}

	// Whether or not a consistent snapshot tid is available, the read
	// set entry binds this transaction to the version it observed;
	// unavailability (or a tid past the snapshot) just means the bet
	// isn't settled until commit-time validation (spec §4.2).
	c.recordRead(tp, tp.Version().TID())

	// This transaction holds no lock on tp, so only a stable read of
	// its payload is trustworthy; an unstable one (raced a concurrent
	// committer) is treated the same as "nothing to return here" —
	// commit-time validation against the read set above is what
	// actually decides this transaction's fate, not this value.
	payload, ok := tp.StablePayload()
	if !ok || len(payload) == 0 {
		return nil, false, nil
	}
	return payload, true, nil
}

// Put records an intent to write key with a new value. No tree
// mutation happens until Commit.
func (t *Txn) Put(idx index.Index, key string, value []byte) error {
	if err := t.ensureActive(); err != nil {
		return err
	}
	t.ctxFor(idx).localWrite(key, value, false)
	t.writeCount++
	return nil
}

// Insert is like Put but hints that Commit should try
// insert_if_absent(key) first, failing the transaction's write if the
// key turns out to already exist only via the usual OCC validation (the
// hint is an optimization, not a uniqueness constraint enforced here).
func (t *Txn) Insert(idx index.Index, key string, value []byte) error {
	if err := t.ensureActive(); err != nil {
		return err
	}
	t.ctxFor(idx).localWrite(key, value, true)
	t.writeCount++
	return nil
}

// Remove records an intent to delete key (a write of an empty payload).
func (t *Txn) Remove(idx index.Index, key string) error {
	if err := t.ensureActive(); err != nil {
		return err
	}
	t.ctxFor(idx).localWrite(key, nil, false)
	t.writeCount++
	return nil
}

// Scan visits keys in [lo, hi) in ascending order, recording phantom-
// avoidance bookkeeping per spec §4.4 depending on FlagLowLevelScan.
// visit returning false halts the scan early; it is never called for a
// key shadowed by this transaction's own absent set.
func (t *Txn) Scan(idx index.Index, lo string, hi *string, visit func(key string, value []byte) bool) error {
	if err := t.ensureActive(); err != nil {
		return err
	}
	c := t.ctxFor(idx)

	var onNode func(index.InsertInfo)
	if t.flags.has(FlagLowLevelScan) {
		onNode = func(info index.InsertInfo) {
			c.recordNodeScan(info.Node, info.Version)
		}
	}

	// Range-tracking mode records only the gaps between visited keys as
	// proven empty; gapLo is where the current gap starts.
	gapLo, stopped := lo, false
	idx.SearchRangeCall(lo, hi, func(key string, tp *tuple.Tuple) bool {
		if !t.flags.has(FlagLowLevelScan) {
			c.absentRanges.add(keyRange{a: gapLo, b: key, hasB: true})
			gapLo = key + "\x00"
		}
		if _, shadowed := c.absentSet.Get(key); shadowed {
			return true
		}
		c.recordRead(tp, tp.Version().TID())
		payload, ok := tp.StablePayload()
		if !ok || len(payload) == 0 {
			return true
		}
		stopped = !visit(key, payload)
		return !stopped
	}, onNode)
	if !t.flags.has(FlagLowLevelScan) && !stopped {
		c.absentRanges.add(keyRange{a: gapLo, b: derefOr(hi, ""), hasB: hi != nil})
	}
	return nil
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}

// Abort unconditionally transitions the transaction to Aborted,
// releasing any locks acquired so far (Commit is the only path that
// acquires locks, so a direct Abort call never holds any; it exists for
// explicit user cancellation before commit is attempted). Idempotent.
func (t *Txn) Abort(reason AbortReason) {
	switch t.state {
	case Aborted:
		return
	case Committed:
		return
	}
	t.state = Aborted
	t.reason = reason
	t.metrics.observeAbort(reason)
	t.region.Close()
}

// DebugString mirrors the source's dump_debug_info: a human-readable
// dump of every per-index set this transaction has accumulated.
func (t *Txn) DebugString() string {
	s := fmt.Sprintf("Transaction state=%s reason=%s\n", t.state, t.reason)
	for _, c := range t.ctx {
		s += fmt.Sprintf("  read_set size=%d absent_set size=%d write_set size=%d node_scan size=%d absent_ranges=%d\n",
			c.readSet.Len(), c.absentSet.Len(), c.writeSet.Len(), c.nodeScan.Len(), len(c.absentRanges.Ranges()))
	}
	return s
}
