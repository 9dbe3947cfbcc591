package reclamation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeferRunsImmediatelyWithNoOpenRegions(t *testing.T) {
	d := NewDomain()
	ran := false
	d.Defer(func() { ran = true })
	assert.True(t, ran)
	assert.Equal(t, 0, d.PendingGarbage())
}

func TestDeferWaitsForOpenRegion(t *testing.T) {
	d := NewDomain()
	r := d.BeginRegion()

	ran := false
	d.Defer(func() { ran = true })
	assert.False(t, ran, "garbage filed while a region is open must wait")
	assert.Equal(t, 1, d.PendingGarbage())

	r.Close()
	assert.True(t, ran)
	assert.Equal(t, 0, d.PendingGarbage())
}

func TestDeferWaitsForOldestOfMultipleRegions(t *testing.T) {
	d := NewDomain()
	r1 := d.BeginRegion()
	r2 := d.BeginRegion()

	ran := false
	d.Defer(func() { ran = true })

	r2.Close()
	assert.False(t, ran, "r1 is still open and was open before the free")

	r1.Close()
	assert.True(t, ran)
}

func TestRegionOpenedAfterFreeDoesNotBlockIt(t *testing.T) {
	d := NewDomain()
	r1 := d.BeginRegion()

	ran := false
	d.Defer(func() { ran = true })
	assert.False(t, ran)

	r2 := d.BeginRegion()
	r1.Close()
	assert.True(t, ran, "the free was filed before r2 opened, so r2 should not block it")
	r2.Close()
}
