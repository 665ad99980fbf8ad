package cigarbuild

import (
	"testing"

	"github.com/biogo/lapels/cigar"
	"github.com/biogo/lapels/region"
	"github.com/stretchr/testify/assert"
)

func TestBuilderFillsGapBetweenRegions(t *testing.T) {
	b := NewBuilder()
	b.Append(region.Region{
		Op:    cigar.Match,
		Cigar: cigar.Cigar{{Op: cigar.Match, Len: 3}},
		Start: 0, End: 2, Pos: 0,
	})
	b.Append(region.Region{
		Op:    cigar.Match,
		Cigar: cigar.Cigar{{Op: cigar.Match, Len: 2}},
		Start: 6, End: 7, Pos: 6,
	})
	assert.Equal(t, cigar.Cigar{{cigar.Match, 3}, {cigar.Deletion, 3}, {cigar.Match, 2}}, b.Cigar())
}

func TestBuilderDoesNotFillAbuttingRegions(t *testing.T) {
	b := NewBuilder()
	b.Append(region.Region{Op: cigar.Match, Cigar: cigar.Cigar{{Op: cigar.Match, Len: 3}}, Start: 0, End: 2, Pos: 0})
	b.Append(region.Region{Op: cigar.Match, Cigar: cigar.Cigar{{Op: cigar.Match, Len: 2}}, Start: 3, End: 4, Pos: 3})
	assert.Equal(t, cigar.Cigar{{cigar.Match, 5}}, b.Cigar())
}

func TestBuilderInsertionCarriesThroughVerbatim(t *testing.T) {
	b := NewBuilder()
	b.Append(region.Region{Op: cigar.Insertion, Cigar: cigar.Cigar{{Op: cigar.Insertion, Len: 4}}, Start: 0, End: -1, Pos: -1})
	b.Append(region.Region{Op: cigar.Match, Cigar: cigar.Cigar{{Op: cigar.Match, Len: 2}}, Start: 0, End: 1, Pos: 0})
	assert.Equal(t, cigar.Cigar{{cigar.Insertion, 4}, {cigar.Match, 2}}, b.Cigar())
}

func TestBuildSequence(t *testing.T) {
	segs := []region.Region{
		{Op: cigar.Match, Cigar: cigar.Cigar{{Op: cigar.Match, Len: 7}}, Start: 2, End: 8, Pos: 2},
		{Op: cigar.Deletion, Cigar: cigar.Cigar{{Op: cigar.Deletion, Len: 10}}, Start: 9, End: 18, Pos: -1},
		{Op: cigar.Match, Cigar: cigar.Cigar{{Op: cigar.Match, Len: 3}}, Start: 19, End: 21, Pos: 19},
	}
	got := Build(segs)
	assert.Equal(t, cigar.Cigar{{cigar.Match, 7}, {cigar.Deletion, 10}, {cigar.Match, 3}}, got)
}

func TestNeedsMIDMFix(t *testing.T) {
	assert.True(t, needsMIDMFix(cigar.Cigar{{cigar.Match, 3}, {cigar.Insertion, 2}, {cigar.Deletion, 5}}))
	assert.False(t, needsMIDMFix(cigar.Cigar{{cigar.Match, 3}, {cigar.Deletion, 5}, {cigar.Insertion, 2}}))
	assert.False(t, needsMIDMFix(cigar.Cigar{{cigar.Match, 3}}))
}
