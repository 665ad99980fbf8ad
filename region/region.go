// Package region implements the region parser: translating one segment of
// an alignment CIGAR, expressed in pseudo-genome (target) coordinates, into
// the equivalent reference-coordinate CIGAR fragment, per spec.md §4.4.
package region

import (
	"github.com/biogo/lapels/sam"
	"github.com/biogo/lapels/cigar"
	"github.com/biogo/lapels/posmap"
	"github.com/biogo/lapels/variant"
	"github.com/pkg/errors"
)

// Region is one alignment-CIGAR segment, translated to reference
// coordinates.
type Region struct {
	// Op is the alignment-level op this segment stems from: Match for an
	// M_1 segment, Deletion/Skip for a D_1/N_1 segment, Insertion for an
	// I_1 segment (never parsed, carried through verbatim).
	Op cigar.Op

	Cigar cigar.Cigar // the new cigar, in reference coordinates
	Start int         // reference position of the first M or D unit
	End   int         // reference position of the last M or D unit (inclusive); End < Start means empty
	Pos   int         // reference position of the first M unit, or -1 if none

	Subst, Insertions, Deletions int // variant counts contributed by this region
}

// PositionUnderflowError reports a read-offset query for a position before
// the read's alignment start.
type PositionUnderflowError struct {
	ReadName       string
	Pos, ReadStart int
}

func (e *PositionUnderflowError) Error() string {
	return errors.Errorf("region: position %d underflows read %q starting at %d", e.Pos, e.ReadName, e.ReadStart).Error()
}

// PositionOverflowError reports a read-offset query for a position past the
// end of the alignment's CIGAR footprint.
type PositionOverflowError struct {
	ReadName string
	Pos      int
}

func (e *PositionOverflowError) Error() string {
	return errors.Errorf("region: position %d overflows read %q", e.Pos, e.ReadName).Error()
}

// PositionInGapError reports a read-offset query landing inside a deletion
// or skip, where no read base exists.
type PositionInGapError struct {
	ReadName string
	Pos      int
}

func (e *PositionInGapError) Error() string {
	return errors.Errorf("region: position %d falls in a deletion or splice junction in read %q", e.Pos, e.ReadName).Error()
}

// CigarMismatchError reports that a read's CIGAR footprint does not agree
// with its declared sequence length.
type CigarMismatchError struct {
	ReadName string
	Cigar    string
	ReadLen  int
}

func (e *CigarMismatchError) Error() string {
	return errors.Errorf("region: cigar %q and length %d conflict in read %q", e.Cigar, e.ReadLen, e.ReadName).Error()
}

// UnsupportedError reports a region that cannot be expressed as a simple
// reference-coordinate remap: the target interval's bounds resolve to a
// different chromosome (translocation) or resolve out of order
// (duplication/inversion). Neither is representable by the atomic
// variant model this remapper supports.
type UnsupportedError struct {
	Reason string
}

func (e *UnsupportedError) Error() string {
	return errors.Errorf("region: unsupported rearrangement: %s", e.Reason).Error()
}

// GetReadOffset returns the offset into rec's query sequence of the read
// base aligned at target position pos, walking rec's (already-simplified)
// alignment cigar from rec.Pos. It mirrors lapels' getReadOffset.
func GetReadOffset(rec *sam.Record, c cigar.Cigar, pos int) (int, error) {
	readPos := rec.Pos
	readLen := rec.Seq.Length

	if pos < readPos {
		return 0, &PositionUnderflowError{rec.Name, pos, readPos}
	}

	offset := 0
	curPos := readPos
	for _, u := range c {
		switch u.Op {
		case cigar.Match:
			if pos < curPos+u.Len {
				ret := offset + pos - curPos
				if ret < readLen {
					return ret, nil
				}
				return 0, &CigarMismatchError{rec.Name, c.String(), readLen}
			}
			offset += u.Len
			curPos += u.Len
		case cigar.Insertion:
			offset += u.Len
		case cigar.Deletion, cigar.Skip:
			curPos += u.Len
		}

		if offset > readLen {
			return 0, &CigarMismatchError{rec.Name, c.String(), readLen}
		}
		if curPos > pos {
			return 0, &PositionInGapError{rec.Name, pos}
		}
	}
	return 0, &PositionOverflowError{rec.Name, pos}
}

// absCoord unwraps a posmap.Reverse result by plain absolute value: a
// negative coord flags that the queried target position falls inside a
// reference-insertion's target span, and the enclosing reference position
// is just |coord| (annotator5.py:159-160), unlike posmap.Anchor's +1 rule
// for unwrapping an fmap/tpos result.
func absCoord(coord int) int {
	if coord < 0 {
		return -coord
	}
	return coord
}

// Parse translates one target-coordinate segment [tstart, tend] (inclusive,
// target coordinates, from the op-th unit of rec's alignment cigar) into a
// Region expressed in reference coordinates. op is the alignment-level op
// the segment came from (Match, Deletion or Skip); it is never called for
// an Insertion segment, which passes through unparsed.
//
// rec's Seq is consulted to verify substitutions only when op is Match
// (spec.md §4.4: a substitution inside a D_1/N_1 segment is counted as a
// position translated, not verified against a read base, since there is no
// corresponding read base).
func Parse(pm *posmap.PosMap, table *variant.Table, chrom string, rec *sam.Record, alnCigar cigar.Cigar, op cigar.Op, tstart, tend int) (Region, error) {
	if tstart > tend {
		// Only possible for a zero-length M_1/D_1/N_1, which should not
		// be handed to Parse; callers filter these out beforehand.
		return Region{}, errors.Errorf("region: empty target interval [%d,%d]", tstart, tend)
	}

	rstartRaw, err := pm.Reverse(chrom, tstart)
	if err != nil {
		return Region{}, err
	}
	rendRaw, err := pm.Reverse(chrom, tend)
	if err != nil {
		return Region{}, err
	}
	// Unlike tpos below, rstart/rend unwrap with plain absolute value, not
	// posmap.Anchor's +1 formula: a negative Reverse result here just means
	// the target endpoint falls inside a reference-insertion's target span,
	// and the two anchor ref positions bounding that span are reached by
	// abs alone (annotator5.py's rstart/rend unwrap, as opposed to its
	// fmap/tpos unwrap immediately below, which does add the 1).
	rstart := absCoord(rstartRaw)
	rend := absCoord(rendRaw)
	if rstart > rend {
		return Region{}, &UnsupportedError{"reference interval runs backwards relative to target"}
	}

	nstart := rend + 1
	nend := -1
	npos := rend + 1
	var ncigar cigar.Cigar

	rpos := rstart
	tposRaw, err := pm.Forward(chrom, rstart)
	if err != nil {
		return Region{}, err
	}
	tpos, _ := posmap.Anchor(tposRaw)

	groups := variant.Groups(table.RangeClosed(rstart, rend))

	var nSubst, nIns, nDel int

	for gi := 0; gi <= len(groups); gi++ {
		if tpos > tend {
			break
		}
		if gi == len(groups) {
			break
		}
		g := groups[gi]
		if rpos > g.RefPos {
			return Region{}, errors.Errorf("region: variant position %d out of order at ref %d", g.RefPos, rpos)
		}
		if rpos < g.RefPos {
			if tpos >= tstart && tpos <= tend {
				ncigar = append(ncigar, cigar.Unit{Op: cigar.Match, Len: g.RefPos - rpos})
				if rpos < nstart {
					nstart = rpos
				}
				if g.RefPos-1 > nend {
					nend = g.RefPos - 1
				}
				if rpos < npos {
					npos = rpos
				}
			}
			tpos += g.RefPos - rpos
			rpos = g.RefPos
		}

		switch {
		case g.Del:
			if tpos > tstart && tpos <= tend {
				ncigar = append(ncigar, cigar.Unit{Op: cigar.Deletion, Len: 1})
				if rpos < nstart {
					nstart = rpos
				}
				if rpos > nend {
					nend = rpos
				}
			}
			rpos++
		default:
			if tpos >= tstart && tpos <= tend {
				ncigar = append(ncigar, cigar.Unit{Op: cigar.Match, Len: 1})
				if rpos < nstart {
					nstart = rpos
				}
				if rpos > nend {
					nend = rpos
				}
				if rpos < npos {
					npos = rpos
				}
				if g.Subst != nil && op == cigar.Match {
					off, err := GetReadOffset(rec, alnCigar, tpos)
					if err != nil {
						return Region{}, err
					}
					seq := rec.Seq.Expand()
					if off < len(seq) && string(seq[off]) == g.Subst.Alt() {
						nSubst++
					}
				}
			}
			rpos++
			tpos++
		}
		if tpos > tend {
			break
		}

		for _, ins := range g.Insertions {
			segLen := len(ins.Payload)
			tmax := tpos + segLen
			if tmax > tend+1 {
				tmax = tend + 1
			}
			if tpos > tstart {
				ncigar = append(ncigar, cigar.Unit{Op: cigar.Insertion, Len: tmax - tpos})
			} else if tmax > tstart {
				ncigar = append(ncigar, cigar.Unit{Op: cigar.Insertion, Len: tmax - tstart})
			}
			tpos = tmax
			if tpos > tend {
				break
			}
		}
	}

	if rpos > rend+1 {
		return Region{}, errors.Errorf("region: variant position %d out of boundary", rpos)
	}
	if rpos < rend+1 {
		ncigar = append(ncigar, cigar.Unit{Op: cigar.Match, Len: rend - rpos + 1})
		if rpos < npos {
			npos = rpos
		}
		if rpos < nstart {
			nstart = rpos
		}
		if rend > nend {
			nend = rend
		}
	}

	ncigar = cigar.Simplify(ncigar)
	for _, u := range ncigar {
		switch u.Op {
		case cigar.Insertion:
			nIns += u.Len
		case cigar.Deletion:
			nDel += u.Len
		}
	}

	if nstart > rend {
		nstart = rpos
		nend = rpos - 1
	}
	if npos > rend {
		npos = -1
	}

	return Region{
		Op:         op,
		Cigar:      ncigar,
		Start:      nstart,
		End:        nend,
		Pos:        npos,
		Subst:      nSubst,
		Insertions: nIns,
		Deletions:  nDel,
	}, nil
}

// TargetSegment is one unit of an alignment cigar expressed as a target-
// coordinate interval, produced by TargetSegments.
type TargetSegment struct {
	Op         cigar.Op
	TargetLo   int
	TargetHi   int // inclusive; TargetHi < TargetLo for an Insertion segment
}

// TargetSegments walks rec's alignment cigar (already simplified) starting
// at rec.Pos (a target-coordinate position) and returns one TargetSegment
// per cigar unit, mirroring lapels' getTargetRegions.
func TargetSegments(rec *sam.Record, c cigar.Cigar) ([]TargetSegment, error) {
	ret := make([]TargetSegment, 0, len(c))
	pos := rec.Pos
	for _, u := range c {
		switch u.Op {
		case cigar.Match:
			ret = append(ret, TargetSegment{u.Op, pos, pos + u.Len - 1})
			pos += u.Len
		case cigar.Insertion:
			ret = append(ret, TargetSegment{u.Op, pos, pos - 1})
		case cigar.Deletion, cigar.Skip:
			ret = append(ret, TargetSegment{u.Op, pos, pos + u.Len - 1})
			pos += u.Len
		}
	}
	if end, ok := recEnd(rec); ok && pos != end {
		return nil, errors.Errorf("region: cigar %s conflicts with read region %d-%d", c.String(), rec.Pos, end)
	}
	return ret, nil
}

// AdaptToGap reinterprets a Region parsed as if it were a match (op ==
// Match) into one anchored at an alignment-level Deletion or Skip: every
// inner Match unit becomes the outer op, every inner Deletion stays a
// Deletion unless the outer op is Skip (where a reference deletion inside a
// splice junction is itself a Skip), and every inner Insertion becomes a
// cigar.Ignore unit (it has no query bases to consume here and is dropped
// by Simplify). Variant counts are zeroed: a deletion/skip segment is not
// itself polymorphism relative to the read. Mirrors lapels regionutils.modifyRegion.
func AdaptToGap(r Region, outerOp cigar.Op) Region {
	out := make(cigar.Cigar, len(r.Cigar))
	for i, u := range r.Cigar {
		switch u.Op {
		case cigar.Match:
			out[i] = cigar.Unit{Op: outerOp, Len: u.Len}
		case cigar.Insertion:
			out[i] = cigar.Unit{Op: cigar.Ignore, Len: u.Len}
		case cigar.Deletion:
			if outerOp == cigar.Skip {
				out[i] = cigar.Unit{Op: cigar.Skip, Len: u.Len}
			} else {
				out[i] = cigar.Unit{Op: cigar.Deletion, Len: u.Len}
			}
		default:
			out[i] = u
		}
	}
	return Region{
		Op:    outerOp,
		Cigar: cigar.Simplify(out),
		Start: r.Start,
		End:   r.End,
		Pos:   -1,
	}
}

func recEnd(rec *sam.Record) (int, bool) {
	if rec.Ref == nil {
		return 0, false
	}
	return rec.End(), true
}
