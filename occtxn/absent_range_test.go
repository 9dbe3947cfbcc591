package occtxn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddAbsentRangeDropsEmptyRange(t *testing.T) {
	var s absentRangeSet
	s.add(keyRange{a: "m", b: "m", hasB: true})
	assert.Empty(t, s.Ranges())
}

func TestAddAbsentRangeIdempotent(t *testing.T) {
	var s absentRangeSet
	s.add(keyRange{a: "a", b: "b", hasB: true})
	s.add(keyRange{a: "a", b: "b", hasB: true})
	assert.Equal(t, []keyRange{{a: "a", b: "b", hasB: true}}, s.Ranges())
}

func TestAddAbsentRangeContainedIsNoOp(t *testing.T) {
	var s absentRangeSet
	s.add(keyRange{a: "a", b: "z", hasB: true})
	s.add(keyRange{a: "c", b: "d", hasB: true})
	assert.Equal(t, []keyRange{{a: "a", b: "z", hasB: true}}, s.Ranges())
}

func TestAddAbsentRangeCoalescesAdjacentAndOverlapping(t *testing.T) {
	var s absentRangeSet
	s.add(keyRange{a: "0", b: "5", hasB: true})
	s.add(keyRange{a: "3", b: "8", hasB: true})
	assert.Equal(t, []keyRange{{a: "0", b: "8", hasB: true}}, s.Ranges())
}

func TestAddAbsentRangeLeftAdjacency(t *testing.T) {
	var s absentRangeSet
	s.add(keyRange{a: "a", b: "m", hasB: true})
	s.add(keyRange{a: "m", b: "z", hasB: true})
	assert.Equal(t, []keyRange{{a: "a", b: "z", hasB: true}}, s.Ranges())
}

func TestAddAbsentRangeOpenEndedSubsumesFromLeftKeyOnward(t *testing.T) {
	var s absentRangeSet
	s.add(keyRange{a: "a", b: "c", hasB: true})
	s.add(keyRange{a: "e", b: "g", hasB: true})
	s.add(keyRange{a: "b", hasB: false})

	got := s.Ranges()
	// [a,c) overlaps [b, inf) on [b,c), so it is absorbed and pulls the
	// lower bound down to "a"; [e,g) is inside [b, inf) and is absorbed.
	assert.Equal(t, []keyRange{
		{a: "a", hasB: false},
	}, got)
}

func TestAddAbsentRangeKeepsDisjointRangesSeparate(t *testing.T) {
	var s absentRangeSet
	s.add(keyRange{a: "a", b: "b", hasB: true})
	s.add(keyRange{a: "y", b: "z", hasB: true})
	assert.Equal(t, []keyRange{
		{a: "a", b: "b", hasB: true},
		{a: "y", b: "z", hasB: true},
	}, s.Ranges())
}

func TestKeyInAbsentSet(t *testing.T) {
	var s absentRangeSet
	s.add(keyRange{a: "b", b: "d", hasB: true})
	assert.False(t, s.keyInAbsentSet("a"))
	assert.True(t, s.keyInAbsentSet("b"))
	assert.True(t, s.keyInAbsentSet("c"))
	assert.False(t, s.keyInAbsentSet("d"))
}
