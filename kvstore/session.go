package kvstore

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/occdb/txncore/occtxn"
)

// Session pairs a Store with exactly one in-flight Txn, in the idiom
// of the teacher's Connection: begin/get/put/insert/remove/scan/
// commit/rollback are metadata-only operations on the transaction
// object until Commit actually runs the four-phase protocol.
type Session struct {
	store *Store
	txn   *occtxn.Txn
}

// Txn exposes the underlying transaction object for callers that need
// lower-level access (e.g. Scan's visitor callback style).
func (s *Session) Txn() *occtxn.Txn { return s.txn }

// Get returns the value visible to this session for key in the named
// index.
func (s *Session) Get(indexName, key string) ([]byte, bool, error) {
	idx := s.store.Index(indexName)
	return s.txn.Get(idx, key)
}

// Put records an intent to write key. No tree mutation happens until
// Commit.
func (s *Session) Put(indexName, key string, value []byte) error {
	idx := s.store.Index(indexName)
	return s.txn.Put(idx, key, value)
}

// Insert is like Put but hints that Commit should try
// insert_if_absent first.
func (s *Session) Insert(indexName, key string, value []byte) error {
	idx := s.store.Index(indexName)
	return s.txn.Insert(idx, key, value)
}

// Remove records an intent to delete key.
func (s *Session) Remove(indexName, key string) error {
	idx := s.store.Index(indexName)
	return s.txn.Remove(idx, key)
}

// Scan visits every key in [lo, hi) in ascending order, recording
// whatever phantom-avoidance bookkeeping this session's flags select.
func (s *Session) Scan(indexName, lo string, hi *string, visit func(key string, value []byte) bool) error {
	idx := s.store.Index(indexName)
	return s.txn.Scan(idx, lo, hi, visit)
}

// Commit runs the four-phase commit protocol and returns whether it
// succeeded; an ordinary abort never panics regardless of the session's
// flags (Session always calls the underlying Txn.Commit with
// throwOnAbort=false, surfacing the abort as a plain error instead). An
// AbortInternal fault still panics as *occtxn.Fault.
func (s *Session) Commit() (bool, error) {
	return s.txn.Commit(false)
}

// Rollback explicitly aborts the session's transaction without
// attempting to commit.
func (s *Session) Rollback() {
	s.txn.Abort(occtxn.AbortUserAbort)
}

// ExecCommand dispatches a single REPL-style command against this
// session, mirroring the teacher's Connection.ExecCommand, generalized
// from single-key-value commands to the full transaction surface.
func (s *Session) ExecCommand(command string, args []string) (string, error) {
	switch command {
	case "get":
		if len(args) != 2 {
			return "", errors.New("get requires <index> <key>")
		}
		v, found, err := s.Get(args[0], args[1])
		if err != nil {
			return "", err
		}
		if !found {
			return "", errors.New("key not found")
		}
		return string(v), nil

	case "put":
		if len(args) != 3 {
			return "", errors.New("put requires <index> <key> <value>")
		}
		return "", s.Put(args[0], args[1], []byte(args[2]))

	case "insert":
		if len(args) != 3 {
			return "", errors.New("insert requires <index> <key> <value>")
		}
		return "", s.Insert(args[0], args[1], []byte(args[2]))

	case "remove":
		if len(args) != 2 {
			return "", errors.New("remove requires <index> <key>")
		}
		return "", s.Remove(args[0], args[1])

	case "commit":
		ok, err := s.Commit()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("committed=%v", ok), nil

	case "rollback":
		s.Rollback()
		return "", nil

	default:
		return "", errors.Errorf("%v command unimplemented", command)
	}
}
