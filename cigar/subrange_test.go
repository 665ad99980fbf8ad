package cigar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubMidRangeSpansMatchAndDeletion(t *testing.T) {
	c := Cigar{{Match, 5}, {Deletion, 3}, {Match, 5}}
	got, err := Sub(c, 10, 12, 16)
	require.NoError(t, err)
	assert.Equal(t, Cigar{{Match, 3}, {Deletion, 2}}, got)
}

func TestSubLeftAnchoredInsertionIncluded(t *testing.T) {
	c := Cigar{{Insertion, 2}, {Match, 5}}
	got, err := Sub(c, 10, 10, 12)
	require.NoError(t, err)
	assert.Equal(t, Cigar{{Insertion, 2}, {Match, 3}}, got)
}

func TestSubInsertionNotAtStartExcluded(t *testing.T) {
	c := Cigar{{Match, 5}, {Insertion, 2}, {Match, 5}}
	got, err := Sub(c, 10, 12, 13)
	require.NoError(t, err)
	assert.Equal(t, Cigar{{Match, 2}}, got)
}

func TestSubUnboundedEndReturnsTail(t *testing.T) {
	c := Cigar{{Match, 5}, {Deletion, 3}, {Match, 5}}
	got, err := Sub(c, 10, 15, -1)
	require.NoError(t, err)
	assert.Equal(t, Cigar{{Deletion, 3}, {Match, 5}}, got)
}

func TestSubUnboundedStartReturnsHead(t *testing.T) {
	c := Cigar{{Match, 5}, {Deletion, 3}, {Match, 5}}
	got, err := Sub(c, 10, -1, 11)
	require.NoError(t, err)
	assert.Equal(t, Cigar{{Match, 2}}, got)
}

func TestSubStartUnderflowsFails(t *testing.T) {
	c := Cigar{{Match, 5}}
	_, err := Sub(c, 10, 5, 12)
	require.Error(t, err)
	oor, ok := err.(*OutOfRangeError)
	require.True(t, ok)
	assert.Equal(t, "start", oor.Kind)
	assert.Equal(t, "underflows", oor.Dir)
}

func TestSubEndOverflowsFails(t *testing.T) {
	c := Cigar{{Match, 5}}
	_, err := Sub(c, 10, 11, 20)
	require.Error(t, err)
	oor, ok := err.(*OutOfRangeError)
	require.True(t, ok)
	assert.Equal(t, "end", oor.Kind)
	assert.Equal(t, "overflows", oor.Dir)
}

func TestSubEmptyCigarReturnsEmpty(t *testing.T) {
	got, err := Sub(nil, 10, 10, 20)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReplaceSplicesRegionAndKeepsFlanks(t *testing.T) {
	c := Cigar{{Match, 5}, {Deletion, 3}, {Match, 5}}
	regions := []ReplaceRegion{
		{Cigar: Cigar{{Match, 1}, {Insertion, 2}}, Start: 15, End: 16},
	}
	got, err := Replace(c, 10, regions)
	require.NoError(t, err)
	assert.Equal(t, Cigar{{Match, 5}, {Match, 1}, {Insertion, 2}, {Deletion, 1}, {Match, 5}}, got)
}

func TestReplaceNoRegionsReturnsWholeCigar(t *testing.T) {
	c := Cigar{{Match, 5}, {Deletion, 3}, {Match, 5}}
	got, err := Replace(c, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}
