package occtxn

import (
	"fmt"

	"github.com/pkg/errors"
)

// AbortReason taxonomizes why a transaction aborted.
type AbortReason uint8

const (
	// AbortNone is the zero value: the transaction has not aborted.
	AbortNone AbortReason = iota
	// AbortUserAbort is an explicit caller-requested abort.
	AbortUserAbort
	// AbortWriteNodeInterference covers a write target's tuple being
	// stolen or deleted between read and lock, a node-scan version
	// changing under FlagLowLevelScan during an insert, or an
	// absent-range validation finding an interfering key.
	AbortWriteNodeInterference
	// AbortReadNodeInterference means a read-set tuple is no longer
	// LATEST at the tid this transaction observed.
	AbortReadNodeInterference
	// AbortReadAbsenceInterference means an absent-set key now exists
	// with a non-nil value.
	AbortReadAbsenceInterference
	// AbortNodeScanReadVersionChanged means the FlagLowLevelScan
	// phantom check found a node's version no longer matches.
	AbortNodeScanReadVersionChanged
	// AbortInternal marks an invariant violation; always escalates to
	// a fault regardless of the caller's throwOnAbort preference.
	AbortInternal
)

func (r AbortReason) String() string {
	switch r {
	case AbortNone:
		return "NONE"
	case AbortUserAbort:
		return "USER_ABORT"
	case AbortWriteNodeInterference:
		return "WRITE_NODE_INTERFERENCE"
	case AbortReadNodeInterference:
		return "READ_NODE_INTERFERENCE"
	case AbortReadAbsenceInterference:
		return "READ_ABSENCE_INTERFERENCE"
	case AbortNodeScanReadVersionChanged:
		return "NODE_SCAN_READ_VERSION_CHANGED"
	case AbortInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

// AbortError reports why commit (or an explicit Abort call) failed.
// It is returned as a value by default; Commit only raises it as a
// panic when the caller passes throwOnAbort=true.
type AbortError struct {
	Reason AbortReason
	cause  error
}

func (e *AbortError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("transaction aborted: %s: %v", e.Reason, e.cause)
	}
	return fmt.Sprintf("transaction aborted: %s", e.Reason)
}

func (e *AbortError) Unwrap() error { return e.cause }

func newAbortError(reason AbortReason, cause error) *AbortError {
	return &AbortError{Reason: reason, cause: cause}
}

// ErrUnusable is returned by Get, Put, Insert, Remove and Scan on a
// transaction that has already committed or aborted. Commit does not
// return it: on a committed transaction it reports success, and on an
// aborted one it returns an *AbortError carrying the stored reason.
var ErrUnusable = errors.New("occtxn: transaction is unusable")

// Fault wraps an AbortInternal error, signaling a programming-invariant
// violation rather than an ordinary concurrency-control abort. Callers
// should treat a Fault as non-recoverable.
type Fault struct {
	err error
}

func (f *Fault) Error() string { return f.err.Error() }
func (f *Fault) Unwrap() error { return f.err }

func newFault(format string, args ...interface{}) *Fault {
	return &Fault{err: errors.Errorf(format, args...)}
}
