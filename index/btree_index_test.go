package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/occdb/txncore/tuple"
)

func TestInsertIfAbsentThenSearch(t *testing.T) {
	idx := NewBTreeIndex()
	tp := tuple.AllocFirst(true, []byte("v1"))

	info, ok := idx.InsertIfAbsent("a", tp)
	require.True(t, ok)
	assert.Equal(t, uint64(1), info.Version)

	_, ok = idx.InsertIfAbsent("a", tuple.AllocFirst(true, []byte("v2")))
	assert.False(t, ok, "second insert of the same key must fail")

	got, found := idx.Search("a")
	require.True(t, found)
	assert.Same(t, tp, got)
}

func TestInsertUpsertAndRemove(t *testing.T) {
	idx := NewBTreeIndex()
	tp1 := tuple.AllocFirst(true, []byte("v1"))
	tp2 := tuple.AllocFirst(true, []byte("v2"))

	old, existed := idx.Insert("k", tp1)
	assert.False(t, existed)
	assert.Nil(t, old)

	old, existed = idx.Insert("k", tp2)
	assert.True(t, existed)
	assert.Same(t, tp1, old)

	old, existed = idx.Remove("k")
	assert.True(t, existed)
	assert.Same(t, tp2, old)

	_, found := idx.Search("k")
	assert.False(t, found)
}

func TestSearchRangeCallBounds(t *testing.T) {
	idx := NewBTreeIndex()
	for _, k := range []string{"a", "b", "c", "d"} {
		idx.Insert(k, tuple.AllocFirst(true, []byte(k)))
	}

	var seen []string
	hi := "c"
	idx.SearchRangeCall("a", &hi, func(key string, _ *tuple.Tuple) bool {
		seen = append(seen, key)
		return true
	}, nil)
	assert.Equal(t, []string{"a", "b"}, seen)

	seen = nil
	idx.SearchRangeCall("c", nil, func(key string, _ *tuple.Tuple) bool {
		seen = append(seen, key)
		return true
	}, nil)
	assert.Equal(t, []string{"c", "d"}, seen)
}

func TestExtractVersionNumberReflectsMutation(t *testing.T) {
	idx := NewBTreeIndex()
	info, ok := idx.InsertIfAbsent("a", tuple.AllocFirst(true, []byte("v1")))
	require.True(t, ok)
	v1 := idx.ExtractVersionNumber(info.Node)

	idx.Remove("a")
	v2 := idx.ExtractVersionNumber(info.Node)
	assert.NotEqual(t, v1, v2)
}
