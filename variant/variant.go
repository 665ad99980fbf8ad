// Package variant holds the in-memory, position-sorted store of atomic
// variants (substitutions, insertions, deletions) that separate a
// pseudo-genome from the reference it was built from, for a single
// chromosome.
package variant

import (
	"sort"

	"github.com/pkg/errors"
)

// Kind is the type of an atomic variant.
type Kind byte

const (
	// Substitution carries a single substituted reference base.
	Substitution Kind = 's'
	// Insertion carries one or more bases inserted after RefPos.
	Insertion Kind = 'i'
	// Deletion marks a single deleted reference base. A multi-base
	// reference deletion is stored as a contiguous run of these.
	Deletion Kind = 'd'
)

func (k Kind) String() string {
	switch k {
	case Substitution:
		return "substitution"
	case Insertion:
		return "insertion"
	case Deletion:
		return "deletion"
	default:
		return "unknown"
	}
}

// Variant is one atomic variant at a single reference position.
//
// RefPos is 0-based. For an Insertion, RefPos is the preceding reference
// base; the insertion lies between RefPos and RefPos+1. A Substitution's
// Payload is "REF/ALT" (only the ALT half is used by the region parser,
// which already knows REF from the read); an Insertion's Payload is the
// inserted bases; a Deletion's Payload is the single deleted reference
// base.
type Variant struct {
	Kind    Kind
	Chrom   string
	RefPos  int
	Payload string
}

// Alt returns the substituted allele for a Substitution variant, i.e. the
// part of "REF/ALT" after the slash. It panics if v is not a Substitution.
func (v Variant) Alt() string {
	if v.Kind != Substitution {
		panic("variant: Alt called on non-substitution variant")
	}
	for i := len(v.Payload) - 1; i >= 0; i-- {
		if v.Payload[i] == '/' {
			return v.Payload[i+1:]
		}
	}
	return v.Payload
}

// MalformedError reports a structural problem with a variant stream: an
// unknown kind or positions that are not sorted ascending within a
// chromosome.
type MalformedError struct {
	Line   int
	Reason string
}

func (e *MalformedError) Error() string {
	return errors.Errorf("variant: malformed record at line %d: %s", e.Line, e.Reason).Error()
}

// Table is the indexed, position-sorted store of atomic variants for one
// chromosome. It supports range queries over RefPos via binary search and
// exposes the variants grouped by position in the order the position map
// and region parser need: substitution/match/deletion first, insertions
// after, in file order.
type Table struct {
	Chrom    string
	Variants []Variant
	// keys[i] == Variants[i].RefPos, kept parallel for binary search.
	keys []int
}

// NewTable builds a Table from a stream of variants pre-sorted by RefPos
// within chrom. It returns a MalformedError if the positions are not
// non-decreasing or a variant carries an unknown kind.
func NewTable(chrom string, vs []Variant) (*Table, error) {
	t := &Table{Chrom: chrom, Variants: vs, keys: make([]int, len(vs))}
	prev := -1
	for i, v := range vs {
		switch v.Kind {
		case Substitution, Insertion, Deletion:
		default:
			return nil, &MalformedError{i, "unknown variant kind"}
		}
		if v.RefPos < prev {
			return nil, &MalformedError{i, "positions not sorted"}
		}
		prev = v.RefPos
		t.keys[i] = v.RefPos
	}
	return t, nil
}

// Range returns the slice of variants whose RefPos falls in [lo, hi)
// (lo inclusive, hi exclusive): it runs from the first variant with
// RefPos >= lo up to, but not including, the first with RefPos > hi-1.
func (t *Table) Range(lo, hi int) []Variant {
	i := sort.SearchInts(t.keys, lo)
	j := upperBound(t.keys, hi-1)
	if i >= j {
		return nil
	}
	return t.Variants[i:j]
}

// upperBound returns the index of the first element strictly greater than
// v (sort.SearchInts finds the first element >= v, which is lower_bound).
func upperBound(keys []int, v int) int {
	return sort.Search(len(keys), func(i int) bool { return keys[i] > v })
}

// RangeClosed returns the variants whose RefPos falls in [lo, hi] inclusive,
// i.e. Range(lo, hi+1). This is the form the region parser actually wants:
// "variants in [ref_lo..=ref_hi]".
func (t *Table) RangeClosed(lo, hi int) []Variant {
	return t.Range(lo, hi+1)
}

// Group is all the variants sharing one RefPos, in the sub-segment order
// the position map and region parser require: at most one of
// {Substitution, Deletion} (Deletion overrides Substitution), followed by
// zero or more Insertions.
type Group struct {
	RefPos      int
	Subst       *Variant // nil if none
	Del         bool     // true if a deletion occupies this position
	Insertions  []Variant
}

// Groups partitions a (already range-selected, position-sorted) slice of
// variants into per-position Groups, applying the "del overrides subst"
// ordering rule from spec.md §3.
func Groups(vs []Variant) []Group {
	var groups []Group
	i := 0
	for i < len(vs) {
		pos := vs[i].RefPos
		var g Group
		g.RefPos = pos
		for i < len(vs) && vs[i].RefPos == pos {
			switch vs[i].Kind {
			case Substitution:
				if !g.Del {
					v := vs[i]
					g.Subst = &v
				}
			case Deletion:
				g.Del = true
				g.Subst = nil
			case Insertion:
				g.Insertions = append(g.Insertions, vs[i])
			}
			i++
		}
		groups = append(groups, g)
	}
	return groups
}
