// Package annotate implements the annotator driver: for one alignment
// against the pseudo-genome, decompose its CIGAR into segments, translate
// each through the region parser, rebuild and post-fix the reference CIGAR,
// and update the alignment's position, CIGAR and tags in place. See
// spec.md §4.6.
package annotate

import (
	"sort"

	"github.com/biogo/lapels/sam"
	"github.com/biogo/lapels/cigar"
	"github.com/biogo/lapels/cigarbuild"
	"github.com/biogo/lapels/posmap"
	"github.com/biogo/lapels/region"
	"github.com/biogo/lapels/variant"
)

// TagPrefixes names the three tags an annotated alignment is given,
// suffixed "0": <Subst>0, <Ins>0, <Del>0. A nil *TagPrefixes in Options
// disables tag annotation entirely.
type TagPrefixes struct {
	Subst, Ins, Del string
}

// Options configures a Driver.
type Options struct {
	TagPrefixes *TagPrefixes
	// Lenient controls what happens on a BoundsError: when true the
	// offending alignment is skipped; when false (the default) the run
	// aborts. All other per-alignment error kinds are always skipped,
	// per spec.md §7.
	Lenient bool
}

// Result is the outcome of annotating one alignment.
type Result struct {
	Cigar                        cigar.Cigar
	Pos                          int
	Subst, Insertions, Deletions int
}

// Driver annotates alignments against one chromosome's position map and
// variant table. A Driver is safe for concurrent use: PosMap and Table are
// read-only once built.
type Driver struct {
	Chrom  string
	PosMap *posmap.PosMap
	Table  *variant.Table
	Opts   Options
}

// NewDriver returns a Driver for chrom.
func NewDriver(chrom string, pm *posmap.PosMap, table *variant.Table, opts Options) *Driver {
	return &Driver{Chrom: chrom, PosMap: pm, Table: table, Opts: opts}
}

// Skip reports whether err, returned from Annotate, means "drop this
// alignment and continue" (true) as opposed to "abort the run" (false),
// applying the Driver's Lenient setting to BoundsError per spec.md §7.
func (d *Driver) Skip(err error) bool {
	switch err.(type) {
	case *posmap.BoundsError:
		return d.Opts.Lenient
	case *region.PositionInGapError, *region.CigarMismatchError, *region.UnsupportedError:
		return true
	case *variant.MalformedError:
		return false
	default:
		return false
	}
}

// Annotate translates rec's alignment against the pseudo-genome into a
// reference-coordinate Result. It does not mutate rec; call ApplyTags to
// write the result and updated tags back onto rec.
func (d *Driver) Annotate(rec *sam.Record) (Result, error) {
	alnCigar, err := cigar.FromSAM(rec.Cigar)
	if err != nil {
		return Result{}, err
	}
	alnCigar = cigar.Simplify(alnCigar)

	tsegs, err := region.TargetSegments(rec, alnCigar)
	if err != nil {
		return Result{}, err
	}

	segs := make([]region.Region, len(alnCigar))

	for i, u := range alnCigar {
		if u.Op != cigar.Match {
			continue
		}
		r, err := region.Parse(d.PosMap, d.Table, d.Chrom, rec, alnCigar, cigar.Match, tsegs[i].TargetLo, tsegs[i].TargetHi)
		if err != nil {
			return Result{}, err
		}
		segs[i] = r
	}

	n := len(alnCigar)
	for i, u := range alnCigar {
		switch u.Op {
		case cigar.Insertion:
			segs[i] = region.Region{Op: cigar.Insertion, Cigar: cigar.Cigar{{Op: cigar.Insertion, Len: u.Len}}, Start: 0, End: -1, Pos: -1}
		case cigar.Deletion, cigar.Skip:
			if i > 0 && i < n-1 && alnCigar[i-1].Op == cigar.Match && alnCigar[i+1].Op == cigar.Match {
				segs[i] = gapShortcut(u.Op, segs[i-1], segs[i+1])
				continue
			}
			r, err := region.Parse(d.PosMap, d.Table, d.Chrom, rec, alnCigar, u.Op, tsegs[i].TargetLo, tsegs[i].TargetHi)
			if err != nil {
				return Result{}, err
			}
			segs[i] = region.AdaptToGap(r, u.Op)
		}
	}

	fixed, err := cigarbuild.FixAdjacentInsertionDeletion(segs, tsegs, rec, alnCigar, d.Table)
	if err != nil {
		return Result{}, err
	}

	final := cigarbuild.Build(fixed)

	pos := -1
	var nSubst, nIns, nDel int
	for _, r := range fixed {
		if pos == -1 && r.Pos >= 0 {
			pos = r.Pos
		}
		nSubst += r.Subst
		nIns += r.Insertions
		nDel += r.Deletions
	}

	return Result{Cigar: final, Pos: pos, Subst: nSubst, Insertions: nIns, Deletions: nDel}, nil
}

// gapShortcut implements the bracketed-D/N shortcut in spec.md §4.4: when an
// alignment-level D or N sits directly between two already-parsed match
// segments, the reference gap between them is exactly the deletion/skip
// length (after accounting for reference deletions already folded into the
// neighbouring matches), with no variant counts contributed.
func gapShortcut(op cigar.Op, prev, next region.Region) region.Region {
	delta := next.Start - prev.End - 1
	var c cigar.Cigar
	if delta > 0 {
		c = cigar.Cigar{{Op: op, Len: delta}}
	}
	return region.Region{
		Op:    op,
		Cigar: c,
		Start: prev.End + 1,
		End:   next.Start - 1,
		Pos:   -1,
	}
}

// ApplyTags writes res onto rec: the new CIGAR and position, and (if
// opts.TagPrefixes is set) the variant-count tags, OC/OM provenance tags
// with the old NM tag removed, per spec.md §6.
func ApplyTags(rec *sam.Record, res Result, prefixes *TagPrefixes) error {
	samCigar, err := cigar.ToSAM(cigar.Simplify(res.Cigar))
	if err != nil {
		return err
	}
	originalCigar := rec.Cigar.String()

	rec.Cigar = samCigar
	rec.Pos = res.Pos

	if prefixes == nil {
		return nil
	}

	fields := make(map[string]sam.Aux, len(rec.AuxFields)+5)
	for _, a := range rec.AuxFields {
		fields[a.Tag().String()] = a
	}

	setInt := func(tag string, v int) error {
		a, err := sam.NewAux(sam.NewTag(tag), v)
		if err != nil {
			return err
		}
		fields[tag] = a
		return nil
	}
	if err := setInt(prefixes.Subst+"0", res.Subst); err != nil {
		return err
	}
	if err := setInt(prefixes.Ins+"0", res.Insertions); err != nil {
		return err
	}
	if err := setInt(prefixes.Del+"0", res.Deletions); err != nil {
		return err
	}

	oc, err := sam.NewAux(sam.NewTag("OC"), sam.Text(originalCigar))
	if err != nil {
		return err
	}
	fields["OC"] = oc

	if nm, ok := fields["NM"]; ok {
		om, err := sam.NewAux(sam.NewTag("OM"), nm.Value())
		if err != nil {
			return err
		}
		fields["OM"] = om
		delete(fields, "NM")
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(sam.AuxFields, 0, len(keys))
	for _, k := range keys {
		out = append(out, fields[k])
	}
	rec.AuxFields = out
	return nil
}

