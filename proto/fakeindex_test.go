package proto

import (
	"github.com/occdb/txncore/index"
	"github.com/occdb/txncore/tuple"
)

// fakeIndex is a minimal index.Index for exercising protocol hooks
// without pulling in the concrete BTreeIndex.
type fakeIndex struct {
	m map[string]*tuple.Tuple
}

func newFakeIndex() *fakeIndex { return &fakeIndex{m: make(map[string]*tuple.Tuple)} }

func (f *fakeIndex) set(key string, tp *tuple.Tuple) { f.m[key] = tp }

func (f *fakeIndex) Search(key string) (*tuple.Tuple, bool) {
	tp, ok := f.m[key]
	return tp, ok
}

func (f *fakeIndex) InsertIfAbsent(key string, value *tuple.Tuple) (index.InsertInfo, bool) {
	if _, ok := f.m[key]; ok {
		return index.InsertInfo{}, false
	}
	f.m[key] = value
	return index.InsertInfo{}, true
}

func (f *fakeIndex) Insert(key string, value *tuple.Tuple) (*tuple.Tuple, bool) {
	old, existed := f.m[key]
	f.m[key] = value
	return old, existed
}

func (f *fakeIndex) Remove(key string) (*tuple.Tuple, bool) {
	old, existed := f.m[key]
	delete(f.m, key)
	return old, existed
}

func (f *fakeIndex) SearchRangeCall(lo string, hi *string, visit index.Visitor, onNode func(index.InsertInfo)) {
}

func (f *fakeIndex) ExtractVersionNumber(node index.NodeID) uint64 { return 0 }
