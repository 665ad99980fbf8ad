// Package posmap implements the bidirectional coordinate map between a
// reference chromosome and the pseudo (target) genome built from it, as
// described in spec.md §3 and §4.3.
//
// A negative coordinate is a signed anchor into a gap: when a deletion
// leaves no valid target position for a run of reference bases, the
// entry's target field carries -(tgtAnchor)+1; when an insertion leaves no
// valid reference position for a run of target bases, the entry's
// reference field carries -(refAnchor)+1. Callers read these back with
// Anchor, below.
package posmap

import (
	"sort"

	"github.com/biogo/lapels/variant"
	"github.com/pkg/errors"
)

// Entry is one bidirectional mapping segment, built by compressing runs of
// variant-table-derived breakpoints that share an offset.
type Entry struct {
	RefChrom string
	RefStart int // negative: anchor into an inserted target stretch
	TgtChrom string
	TgtStart int // negative: anchor into a deleted reference stretch
	Length   int
	Strand   byte // '+' or '-'; the builder in this package only emits '+'
}

// Anchor reports whether a coordinate returned by Map/ReverseMap falls
// inside a gap on the other side, and if so, the anchor position.
func Anchor(coord int) (pos int, isAnchor bool) {
	if coord < 0 {
		return -coord + 1, true
	}
	return coord, false
}

// BoundsError reports that a queried position lies outside the mapped
// chromosome, or underflows/overflows the map's covered span.
type BoundsError struct {
	Chrom string
	Pos   int
	Which string // "reference" or "target"
	Dir   string // "underflows" or "overflows"
}

func (e *BoundsError) Error() string {
	return errors.Errorf("posmap: %s position %d on %q %s", e.Which, e.Pos, e.Chrom, e.Dir).Error()
}

// ChromMismatchError reports a query against a chromosome this PosMap was
// not built for; the annotator treats this as a translocation.
type ChromMismatchError struct {
	Want, Got string
}

func (e *ChromMismatchError) Error() string {
	return errors.Errorf("posmap: chromosome mismatch: map is for %q, query was for %q", e.Want, e.Got).Error()
}

// PosMap is the read-only, per-chromosome position map. Build it once from
// a variant.Table and share it across all alignments on that chromosome.
type PosMap struct {
	chrom    string
	chromLen int

	// entries is the full compressed entry list, used only for
	// diagnostics/serialisation.
	entries []Entry

	// fwd and bwd are entries filtered to, respectively, non-negative
	// RefStart and non-negative TgtStart, each still in ascending order
	// by that coordinate (guaranteed by the monotonic way Build emits
	// them -- see Build).
	fwd []Entry
	bwd []Entry
}

// Build constructs a PosMap for chrom from variants (already range-
// restricted to that chromosome and sorted by RefPos) and the
// chromosome's reference length, following the five-step algorithm in
// spec.md §4.3.
func Build(chrom string, variants []variant.Variant, chromLen int) (*PosMap, error) {
	groups := variant.Groups(variants)

	var raw []Entry
	refPos, tgtPos := 0, 0
	for _, g := range groups {
		if g.RefPos < refPos {
			return nil, errors.Errorf("posmap: variant position %d out of order at ref %d", g.RefPos, refPos)
		}
		if g.RefPos > chromLen {
			return nil, errors.Errorf("posmap: variant position %d beyond chromosome length %d", g.RefPos, chromLen)
		}
		if refPos < g.RefPos {
			raw = append(raw, Entry{chrom, refPos, chrom, tgtPos, g.RefPos - refPos, '+'})
			tgtPos += g.RefPos - refPos
			refPos = g.RefPos
		}

		switch {
		case g.Del:
			raw = append(raw, Entry{chrom, refPos, chrom, -(tgtPos) + 1, 1, '+'})
			refPos++
		default: // match, or substitution (identical shape; kind only matters to the region parser)
			raw = append(raw, Entry{chrom, refPos, chrom, tgtPos, 1, '+'})
			refPos++
			tgtPos++
		}

		for _, ins := range g.Insertions {
			k := len(ins.Payload)
			raw = append(raw, Entry{chrom, -(refPos) + 1, chrom, tgtPos, k, '+'})
			tgtPos += k
		}
	}

	if refPos > chromLen {
		return nil, errors.Errorf("posmap: variant position %d out of reference boundary %d", refPos, chromLen)
	}
	if refPos < chromLen {
		raw = append(raw, Entry{chrom, refPos, chrom, tgtPos, chromLen - refPos, '+'})
	}
	if len(raw) == 0 {
		raw = append(raw, Entry{chrom, 0, chrom, 0, chromLen, '+'})
	}

	compressed := compress(raw)

	pm := &PosMap{chrom: chrom, chromLen: chromLen, entries: compressed}
	for _, e := range compressed {
		if e.RefStart >= 0 {
			pm.fwd = append(pm.fwd, e)
		}
		if e.TgtStart >= 0 {
			pm.bwd = append(pm.bwd, e)
		}
	}
	return pm, nil
}

// compress implements spec.md §4.3 step 4: fuse adjacent entries that
// share chroms and strand and either both have non-negative coordinates
// with equal ref-tgt offset, or both have the identical negative target
// (consecutive deletions anchored to the same position). Because entries
// are produced in strictly increasing coordinate order, equal offset
// between adjacent entries already implies contiguity.
func compress(entries []Entry) []Entry {
	if len(entries) == 0 {
		return entries
	}
	out := make([]Entry, 1, len(entries))
	out[0] = entries[0]
	for _, e := range entries[1:] {
		last := &out[len(out)-1]
		if mergeable(*last, e) {
			last.Length += e.Length
			continue
		}
		out = append(out, e)
	}
	return out
}

func mergeable(a, b Entry) bool {
	if a.RefChrom != b.RefChrom || a.TgtChrom != b.TgtChrom || a.Strand != b.Strand {
		return false
	}
	if a.RefStart >= 0 && b.RefStart >= 0 && a.TgtStart >= 0 && b.TgtStart >= 0 {
		return (a.RefStart - a.TgtStart) == (b.RefStart - b.TgtStart)
	}
	return a.TgtStart < 0 && a.TgtStart == b.TgtStart
}

// Forward maps a reference position to its target counterpart, or to a
// negative anchor (see Anchor) if refPos falls inside a reference-deleted
// block.
func (pm *PosMap) Forward(chrom string, refPos int) (int, error) {
	if chrom != pm.chrom {
		return 0, &ChromMismatchError{pm.chrom, chrom}
	}
	i := upperBoundEntry(pm.fwd, refPos, refStart) - 1
	if i < 0 {
		return 0, &BoundsError{chrom, refPos, "reference", "underflows"}
	}
	e := pm.fwd[i]
	if refPos >= e.RefStart+e.Length {
		return 0, &BoundsError{chrom, refPos, "reference", "overflows"}
	}
	if e.TgtStart < 0 {
		return e.TgtStart, nil
	}
	if e.Strand == '-' {
		s := e.TgtStart + e.RefStart + e.Length - 1
		return s - refPos, nil
	}
	return e.TgtStart + (refPos - e.RefStart), nil
}

// Reverse maps a target position to its reference counterpart, or to a
// negative anchor if tgtPos falls inside an inserted stretch.
func (pm *PosMap) Reverse(chrom string, tgtPos int) (int, error) {
	if chrom != pm.chrom {
		return 0, &ChromMismatchError{pm.chrom, chrom}
	}
	i := upperBoundEntry(pm.bwd, tgtPos, tgtStart) - 1
	if i < 0 {
		return 0, &BoundsError{chrom, tgtPos, "target", "underflows"}
	}
	e := pm.bwd[i]
	if tgtPos >= e.TgtStart+e.Length {
		return 0, &BoundsError{chrom, tgtPos, "target", "overflows"}
	}
	if e.RefStart < 0 {
		return e.RefStart, nil
	}
	if e.Strand == '-' {
		s := e.RefStart + e.TgtStart + e.Length - 1
		return s - tgtPos, nil
	}
	return e.RefStart + (tgtPos - e.TgtStart), nil
}

// upperBoundEntry returns the index of the first entry whose start, as
// given by start, is greater than pos. Callers pass pm.fwd with refStart
// and pm.bwd with tgtStart.
func upperBoundEntry(entries []Entry, pos int, start func(Entry) int) int {
	return sort.Search(len(entries), func(i int) bool {
		return start(entries[i]) > pos
	})
}

func refStart(e Entry) int { return e.RefStart }

func tgtStart(e Entry) int { return e.TgtStart }

// Len returns the chromosome length this PosMap was built for.
func (pm *PosMap) Len() int { return pm.chromLen }

// Chrom returns the chromosome this PosMap was built for.
func (pm *PosMap) Chrom() string { return pm.chrom }

// Entries returns the compressed entry list, for diagnostics.
func (pm *PosMap) Entries() []Entry { return pm.entries }
