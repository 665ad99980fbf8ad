// Package cigarbuild stitches the per-segment reference-coordinate Regions
// produced by package region back into one alignment-level CIGAR, and
// applies the MIDM heuristic fix-up described in spec.md §4.5.
package cigarbuild

import (
	"github.com/biogo/lapels/sam"
	"github.com/biogo/lapels/cigar"
	"github.com/biogo/lapels/region"
	"github.com/biogo/lapels/variant"
)

// Builder accumulates Regions into one CIGAR, filling the gap between
// consecutive non-insertion regions with a Deletion when their reference
// coordinates are not contiguous. Mirrors lapels' CigarBuilder.append.
type Builder struct {
	pend  int
	cigar cigar.Cigar
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{pend: -1}
}

// Append adds r's cigar fragment to the builder, inserting a gap-filling
// Deletion first if r does not abut the last-appended reference-consuming
// region.
func (b *Builder) Append(r region.Region) {
	if r.Op != cigar.Insertion {
		if b.pend >= 0 {
			delta := r.Start - 1 - b.pend
			if delta > 0 {
				b.cigar = append(b.cigar, cigar.Unit{Op: cigar.Deletion, Len: delta})
			}
		}
	}
	if r.End >= 0 {
		b.pend = r.End
	}
	b.cigar = append(b.cigar, r.Cigar...)
}

// Cigar returns the simplified, built-up CIGAR.
func (b *Builder) Cigar() cigar.Cigar {
	return cigar.Simplify(b.cigar)
}

// Build appends every Region in segs, in order, and returns the resulting
// simplified CIGAR. This is the sequential form lapels' annotator actually
// drives (CigarBuilder.build's idx1/idx2 interleaving logic is never
// invoked from the original's own execute() loop).
func Build(segs []region.Region) cigar.Cigar {
	b := NewBuilder()
	for _, r := range segs {
		b.Append(r)
	}
	return b.Cigar()
}

// needsMIDMFix reports whether c contains an Insertion unit immediately
// followed by a Deletion unit, the trigger condition lapels checks with the
// regex `.*\d*I,\d*D` against the built CIGAR string.
func needsMIDMFix(c cigar.Cigar) bool {
	for i := 0; i+1 < len(c); i++ {
		if c[i].Op == cigar.Insertion && c[i+1].Op == cigar.Deletion {
			return true
		}
	}
	return false
}

// FixAdjacentInsertionDeletion implements the MIDM post-fix: when the
// segment-built CIGAR juxtaposes an alignment-level insertion against a
// reference deletion, it tries to re-read the inserted bases as matching a
// run of reference-deleted bases immediately to one side, which produces a
// cleaner match+insertion split instead of the raw insertion+deletion pair.
// It tries a left anchor first (the inserted bases consumed front-to-back
// against the deletion run immediately following), then a right anchor
// (back-to-front against the run immediately preceding); if neither matches
// it leaves the segment unchanged.
//
// segs and tsegs are parallel, one entry per alignment-cigar unit; alnCigar
// is that same simplified alignment cigar, needed to locate read bases.
func FixAdjacentInsertionDeletion(
	segs []region.Region,
	tsegs []region.TargetSegment,
	rec *sam.Record,
	alnCigar cigar.Cigar,
	table *variant.Table,
) ([]region.Region, error) {
	built := Build(segs)
	if !needsMIDMFix(built) {
		return segs, nil
	}

	out := make([]region.Region, len(segs))
	copy(out, segs)

	readSeq := rec.Seq.Expand()
	n := len(out)

	for i := 0; i < n; i++ {
		if tsegs[i].Op != cigar.Insertion {
			continue
		}
		length := alnCigar[i].Len
		if length <= 0 {
			continue
		}

		offset, err := region.GetReadOffset(rec, alnCigar, tsegs[i].TargetHi)
		if err != nil {
			return nil, err
		}
		offset++
		if offset < 0 || offset+length > len(readSeq) {
			continue
		}
		ins := readSeq[offset : offset+length]

		loKey := -1
		if i > 0 {
			loKey = out[i-1].End
		} else if i < n-1 && out[i+1].Start >= length {
			loKey = out[i+1].Start - length
		}

		hiKey := -1
		if i < n-1 {
			hiKey = out[i+1].Start
		} else if i > 0 && out[i-1].End >= 0 {
			hiKey = out[i-1].End + length
		}

		variants := table.RangeClosed(loKey, hiKey)

		if fixed, ok := matchLeft(variants, ins, length); ok {
			out[i] = fixed
			continue
		}
		if fixed, ok := matchRight(variants, ins, length); ok {
			out[i] = fixed
		}
	}

	return out, nil
}

func matchLeft(variants []variant.Variant, ins []byte, length int) (region.Region, bool) {
	matchStart := -1
	pivot := 0
	matched := false
	for j, v := range variants {
		if v.Kind != variant.Deletion {
			continue
		}
		if matchStart == -1 {
			matchStart = v.RefPos
		}
		if pivot < length && ins[pivot] == v.Payload[0] {
			pivot++
		} else {
			break
		}
		if j == len(variants)-1 || pivot >= length {
			matched = true
			break
		}
	}
	if !matched {
		return region.Region{}, false
	}
	var c cigar.Cigar
	if pivot < length {
		c = cigar.Cigar{{Op: cigar.Match, Len: pivot}, {Op: cigar.Insertion, Len: length - pivot}}
	} else {
		c = cigar.Cigar{{Op: cigar.Match, Len: pivot}}
	}
	return region.Region{
		Op:    cigar.Match,
		Cigar: c,
		Start: matchStart,
		End:   matchStart + pivot - 1,
		Pos:   matchStart,
	}, true
}

func matchRight(variants []variant.Variant, ins []byte, length int) (region.Region, bool) {
	matchStart := -1
	pivot := length - 1
	matched := false
	for j := len(variants) - 1; j >= 0; j-- {
		v := variants[j]
		if v.Kind != variant.Deletion {
			continue
		}
		if pivot >= 0 && ins[pivot] == v.Payload[0] {
			matchStart = v.RefPos
			pivot--
		} else {
			break
		}
		if j == 0 || pivot < 0 {
			matched = true
			break
		}
	}
	if !matched {
		return region.Region{}, false
	}
	var c cigar.Cigar
	if pivot >= 0 {
		c = cigar.Cigar{{Op: cigar.Insertion, Len: pivot + 1}, {Op: cigar.Match, Len: length - 1 - pivot}}
	} else {
		c = cigar.Cigar{{Op: cigar.Match, Len: length - 1 - pivot}}
	}
	return region.Region{
		Op:    cigar.Match,
		Cigar: c,
		Start: matchStart,
		End:   matchStart + length - pivot - 2,
		Pos:   matchStart,
	}, true
}
