package tuple

import (
	"runtime"
	"sync/atomic"
)

// inlineCapacity is the payload size a tuple can absorb in place before
// write_record_at has to spill to a fresh head (mirrors the source's
// small-record optimization: most OLTP updates don't grow the record).
const inlineCapacity = 512

// Tuple is a single version of a key's value. Versions are chained
// newest-first through prev; everything reachable via prev is immutable
// once it stops being the head.
type Tuple struct {
	version Word // atomically loaded/stored, low bit is the spinlock
	size    int  // 0 means logical tombstone
	payload []byte
	prev    *Tuple
}

func (t *Tuple) loadVersion() Word {
	return Word(atomic.LoadUint64((*uint64)(&t.version)))
}

func (t *Tuple) casVersion(old, new Word) bool {
	return atomic.CompareAndSwapUint64((*uint64)(&t.version), uint64(old), uint64(new))
}

func (t *Tuple) storeVersion(w Word) {
	atomic.StoreUint64((*uint64)(&t.version), uint64(w))
}

// AllocFirst allocates a brand-new head tuple for an insert path: LATEST
// set, tid left at zero until commit installs the real commit tid.
// allowOverwriteInPlace mirrors the source's is_mostly_append hint; it
// does not change allocation here (Go's GC makes the distinction moot)
// but is threaded through for call-site fidelity with the original
// tuning knob.
func AllocFirst(allowOverwriteInPlace bool, payload []byte) *Tuple {
	_ = allowOverwriteInPlace
	t := &Tuple{
		version: makeWord(0, true, false, false),
		size:    len(payload),
		payload: newPayloadBuf(payload),
	}
	return t
}

// newPayloadBuf copies payload into a buffer with headroom up to
// inlineCapacity, so later same-size-or-smaller rewrites through
// WriteRecordAt can reuse it instead of spilling to a new head.
func newPayloadBuf(payload []byte) []byte {
	capacity := inlineCapacity
	if len(payload) > capacity {
		capacity = len(payload)
	}
	buf := make([]byte, len(payload), capacity)
	copy(buf, payload)
	return buf
}

// Lock spins on the lock bit and returns the version word observed at
// the moment the lock was acquired (with the lock bit set). write is
// unused today (the source distinguishes read/write locks for a
// reader-biased variant we don't implement) but is kept for interface
// parity with callers that want to express intent.
func (t *Tuple) Lock(write bool) Word {
	_ = write
	spins := 0
	for {
		old := t.loadVersion()
		if old.Locked() {
			spins++
			if spins > 64 {
				runtime.Gosched()
				spins = 0
			}
			continue
		}
		locked := old.locked()
		if t.casVersion(old, locked) {
			return locked
		}
	}
}

// Unlock releases the spinlock bit. It does not touch the tid or any
// other flag: commit installs the new tid via WriteRecordAt (or
// directly, for a fresh insert) before ever calling Unlock, so there is
// nothing left to "bump" by the time we get here.
func (t *Tuple) Unlock() {
	for {
		old := t.loadVersion()
		if t.casVersion(old, old.unlocked()) {
			return
		}
	}
}

// MarkModifying sets the MODIFYING flag. Caller must hold the lock.
func (t *Tuple) MarkModifying() {
	t.storeVersion(t.loadVersion().withModifying(true))
}

// SetCommitTID installs commit_tid as this tuple's version, used on the
// fresh-insert path where the payload was already written at allocation
// and only the tid needs to move from zero to commit_tid. Caller must
// hold the lock.
func (t *Tuple) SetCommitTID(commitTID uint64) {
	t.storeVersion(t.loadVersion().withTID(commitTID))
}

// IsLatestVersion reports, under the caller's lock, whether LATEST is
// set and the tid equals t.
func (t *Tuple) IsLatestVersion(tid uint64) bool {
	w := t.loadVersion()
	return w.Latest() && w.TID() == tid
}

// StableIsLatestVersion is the seqlock-style equivalent of
// IsLatestVersion usable without holding the lock: a concurrent writer
// holding the lock makes the read unstable, which we treat as "not
// latest" (the caller will re-validate, or simply abort).
func (t *Tuple) StableIsLatestVersion(tid uint64) bool {
	v1 := t.loadVersion()
	if v1.Locked() {
		return false
	}
	if !v1.Latest() || v1.TID() != tid {
		return false
	}
	v2 := t.loadVersion()
	return v1 == v2
}

// LatestValueIsNil reports, under the caller's lock, whether the head
// payload is a tombstone.
func (t *Tuple) LatestValueIsNil() bool {
	return t.size == 0
}

// StableLatestValueIsNil is the lock-free counterpart, guarding against
// a concurrent writer by re-checking the version word around the read.
func (t *Tuple) StableLatestValueIsNil() bool {
	v1 := t.loadVersion()
	if v1.Locked() {
		return false
	}
	isNil := t.size == 0
	v2 := t.loadVersion()
	return v1 == v2 && isNil
}

// Version returns the current raw version word. Exposed for validation
// code that already distinguishes the locked/stable cases itself.
func (t *Tuple) Version() Word { return t.loadVersion() }

// IsLatest reports the tuple's own LATEST flag with no tid comparison.
func (t *Tuple) IsLatest() bool { return t.loadVersion().Latest() }

// Payload returns the current payload. Caller must hold the lock, or
// accept a torn read racing a concurrent writer (used only on paths
// that have already validated visibility some other way).
func (t *Tuple) Payload() []byte { return t.payload }

// StablePayload is the seqlock-style counterpart to Payload, for
// readers that don't hold the tuple's lock: it copies the payload and
// re-checks the version word around the read the same way
// StableLatestValueIsNil does. ok=false means a concurrent writer held
// the lock somewhere across the read and payload must not be trusted
// at all, not even as a stale-but-consistent snapshot (the bytes and
// the length they were copied at may not agree with each other).
func (t *Tuple) StablePayload() (payload []byte, ok bool) {
	v1 := t.loadVersion()
	if v1.Locked() {
		return nil, false
	}
	buf := make([]byte, len(t.payload))
	copy(buf, t.payload)
	v2 := t.loadVersion()
	if v1 != v2 {
		return nil, false
	}
	return buf, true
}

// Prev returns the immutable older version this tuple superseded, if
// any.
func (t *Tuple) Prev() *Tuple { return t.prev }

// WriteResult reports the outcome of WriteRecordAt.
type WriteResult struct {
	Spilled     bool
	Replacement *Tuple
}

// WriteRecordAt installs a new head value at commitTID. When the
// payload fits in the tuple's inline capacity it is overwritten in
// place. Otherwise a new head tuple is allocated, linked to the current
// one via prev, and returned as Replacement; Spilled signals that the
// superseded payload is now reachable only via prev and should be
// handed to the reclamation domain once no in-flight reader can still
// be validating it. Caller must hold the lock on the receiver.
func (t *Tuple) WriteRecordAt(commitTID uint64, payload []byte) WriteResult {
	if len(payload) <= inlineCapacity && len(payload) <= cap(t.payload) {
		t.payload = t.payload[:len(payload)]
		copy(t.payload, payload)
		t.size = len(payload)
		t.storeVersion(t.loadVersion().withTID(commitTID).withModifying(false))
		return WriteResult{}
	}

	// t itself becomes the superseded tail: any transaction that already
	// captured this *Tuple as a read-set identity must keep validating
	// against the very same object, now correctly reporting LATEST=false.
	t.storeVersion(t.loadVersion().withLatest(false))

	replacement := &Tuple{
		version: makeWord(commitTID, true, false, false),
		size:    len(payload),
		payload: newPayloadBuf(payload),
		prev:    t,
	}
	return WriteResult{Spilled: true, Replacement: replacement}
}

// MarkDeleting sets the DELETING flag, scheduling the tuple for
// physical removal from its index by the reclamation domain once safe.
// Caller must hold the lock.
func (t *Tuple) MarkDeleting() {
	t.storeVersion(t.loadVersion().withDeleting(true))
}
