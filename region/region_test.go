package region

import (
	"testing"

	"github.com/biogo/lapels/cigar"
	"github.com/biogo/lapels/posmap"
	"github.com/biogo/lapels/sam"
	"github.com/biogo/lapels/variant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildInsertionScenario reproduces the variant table from spec.md §8's
// end-to-end scenario table: chromosome length 55, five deletions at
// 10-14, a 10-base insertion anchored at 14, ten deletions at 15-24, a
// 5-base insertion anchored at 34, and ten deletions at 35-44.
func buildInsertionScenario(t *testing.T) (*posmap.PosMap, *variant.Table) {
	t.Helper()
	var vs []variant.Variant
	for p := 10; p <= 14; p++ {
		vs = append(vs, variant.Variant{Kind: variant.Deletion, Chrom: "chr1", RefPos: p, Payload: "A"})
	}
	vs = append(vs, variant.Variant{Kind: variant.Insertion, Chrom: "chr1", RefPos: 14, Payload: "AAAAAAAAAA"})
	for p := 15; p <= 24; p++ {
		vs = append(vs, variant.Variant{Kind: variant.Deletion, Chrom: "chr1", RefPos: p, Payload: "A"})
	}
	vs = append(vs, variant.Variant{Kind: variant.Insertion, Chrom: "chr1", RefPos: 34, Payload: "AAAAA"})
	for p := 35; p <= 44; p++ {
		vs = append(vs, variant.Variant{Kind: variant.Deletion, Chrom: "chr1", RefPos: p, Payload: "A"})
	}
	table, err := variant.NewTable("chr1", vs)
	require.NoError(t, err)
	pm, err := posmap.Build("chr1", vs, 55)
	require.NoError(t, err)
	return pm, table
}

func scenarioRecord(t *testing.T, pos int, seqLen int) *sam.Record {
	t.Helper()
	rec, err := sam.NewRecord("r1", nil, nil, -1, -1, 0, 0, nil, make([]byte, seqLen), nil, nil)
	require.NoError(t, err)
	rec.Pos = pos
	return rec
}

// TestParseSegmentEntirelyInsideInsertion reproduces spec.md §8 Scenario 2: a
// 5M segment whose whole target span (12..16) falls inside the 10-base
// insertion anchored at reference 14, so it must translate to a pure
// insertion with no reference start, not a spurious trailing Match.
func TestParseSegmentEntirelyInsideInsertion(t *testing.T) {
	pm, table := buildInsertionScenario(t)
	rec := scenarioRecord(t, 12, 5)

	r, err := Parse(pm, table, "chr1", rec, cigar.Cigar{{cigar.Match, 5}}, cigar.Match, 12, 16)
	require.NoError(t, err)

	assert.Equal(t, cigar.Cigar{{cigar.Insertion, 5}}, r.Cigar)
	assert.Equal(t, -1, r.Pos)
	assert.Equal(t, 0, r.Subst)
	assert.Equal(t, 5, r.Insertions)
	assert.Equal(t, 0, r.Deletions)
}

// TestParseSegmentEndingAtInsertionBoundary reproduces the first unit of
// spec.md §8 Scenario 3: a 7M segment (target 13..19) whose end lands exactly
// on the last target base of the same insertion, translating entirely to
// insertion bases with no reference footprint.
func TestParseSegmentEndingAtInsertionBoundary(t *testing.T) {
	pm, table := buildInsertionScenario(t)
	rec := scenarioRecord(t, 13, 7)

	r, err := Parse(pm, table, "chr1", rec, cigar.Cigar{{cigar.Match, 7}}, cigar.Match, 13, 19)
	require.NoError(t, err)

	assert.Equal(t, cigar.Cigar{{cigar.Insertion, 7}}, r.Cigar)
	assert.Equal(t, -1, r.Pos)
	assert.Equal(t, 0, r.Subst)
	assert.Equal(t, 7, r.Insertions)
	assert.Equal(t, 0, r.Deletions)
}

func newRecord(t *testing.T, pos int, seq string) *sam.Record {
	t.Helper()
	ref, err := sam.NewReference("chr1", "", "", 1000, nil, nil)
	require.NoError(t, err)
	_, err = sam.NewHeader(nil, []*sam.Reference{ref})
	require.NoError(t, err)
	rec, err := sam.NewRecord("r1", ref, nil, pos, -1, 0, 0, nil, []byte(seq), nil, nil)
	require.NoError(t, err)
	return rec
}

func TestGetReadOffsetWithinFirstMatch(t *testing.T) {
	rec := newRecord(t, 10, "ACGTACGTAC")
	c := cigar.Cigar{{cigar.Match, 5}, {cigar.Deletion, 3}, {cigar.Match, 5}}
	off, err := GetReadOffset(rec, c, 14)
	require.NoError(t, err)
	assert.Equal(t, 4, off)
}

func TestGetReadOffsetAcrossDeletion(t *testing.T) {
	rec := newRecord(t, 10, "ACGTACGTAC")
	c := cigar.Cigar{{cigar.Match, 5}, {cigar.Deletion, 3}, {cigar.Match, 5}}
	off, err := GetReadOffset(rec, c, 18)
	require.NoError(t, err)
	assert.Equal(t, 5, off)
}

func TestGetReadOffsetInGap(t *testing.T) {
	rec := newRecord(t, 10, "ACGTACGTAC")
	c := cigar.Cigar{{cigar.Match, 5}, {cigar.Deletion, 3}, {cigar.Match, 5}}
	_, err := GetReadOffset(rec, c, 16)
	require.Error(t, err)
	_, ok := err.(*PositionInGapError)
	assert.True(t, ok)
}

func TestGetReadOffsetUnderflow(t *testing.T) {
	rec := newRecord(t, 10, "ACGTACGTAC")
	c := cigar.Cigar{{cigar.Match, 10}}
	_, err := GetReadOffset(rec, c, 9)
	require.Error(t, err)
	_, ok := err.(*PositionUnderflowError)
	assert.True(t, ok)
}

func TestGetReadOffsetOverflow(t *testing.T) {
	rec := newRecord(t, 10, "ACGTACGTAC")
	c := cigar.Cigar{{cigar.Match, 5}, {cigar.Deletion, 3}, {cigar.Match, 5}}
	_, err := GetReadOffset(rec, c, 25)
	require.Error(t, err)
	_, ok := err.(*PositionOverflowError)
	assert.True(t, ok)
}

func TestTargetSegments(t *testing.T) {
	rec, err := sam.NewRecord("r1", nil, nil, -1, -1, 0, 0, nil, []byte("ACGTACGTAC"), nil, nil)
	require.NoError(t, err)
	rec.Pos = 10
	c := cigar.Cigar{{cigar.Match, 5}, {cigar.Insertion, 2}, {cigar.Deletion, 3}, {cigar.Match, 5}}
	segs, err := TargetSegments(rec, c)
	require.NoError(t, err)
	require.Len(t, segs, 4)
	assert.Equal(t, TargetSegment{cigar.Match, 10, 14}, segs[0])
	assert.Equal(t, TargetSegment{cigar.Insertion, 15, 14}, segs[1])
	assert.Equal(t, TargetSegment{cigar.Deletion, 15, 17}, segs[2])
	assert.Equal(t, TargetSegment{cigar.Match, 18, 22}, segs[3])
}

func TestAdaptToGapDeletion(t *testing.T) {
	r := Region{
		Op:    cigar.Match,
		Cigar: cigar.Cigar{{cigar.Match, 3}, {cigar.Deletion, 1}, {cigar.Insertion, 2}},
		Start: 5, End: 9, Pos: 5,
	}
	got := AdaptToGap(r, cigar.Deletion)
	assert.Equal(t, cigar.Deletion, got.Op)
	assert.Equal(t, -1, got.Pos)
	assert.Equal(t, cigar.Cigar{{cigar.Deletion, 4}}, got.Cigar)
}

func TestAdaptToGapSkip(t *testing.T) {
	r := Region{
		Op:    cigar.Match,
		Cigar: cigar.Cigar{{cigar.Match, 3}, {cigar.Deletion, 1}},
		Start: 5, End: 9, Pos: 5,
	}
	got := AdaptToGap(r, cigar.Skip)
	assert.Equal(t, cigar.Cigar{{cigar.Skip, 4}}, got.Cigar)
}
