// Package chromset resolves an alignment's reference name to the
// chromosome length and the variant-file name needed to build its position
// map, optionally through a name-alias table when the BAM, FASTA and MOD
// file disagree on naming convention (e.g. "chr1" vs "1"). Grounded on
// modtools/alias.py and modtools/utils.getOutChrom.
package chromset

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/biogo/lapels/fai"
	"github.com/pkg/errors"
)

// Aliases maps a name used by one file (a BAM reference name, say) to the
// name used by another (a MOD file's chromosome column).
type Aliases map[string]string

// ReadAliases parses a two-column, tab- or whitespace-separated alias
// table: "<bam-name> <variant-file-name>" per line. Blank lines and lines
// starting with '#' are ignored.
func ReadAliases(r io.Reader) (Aliases, error) {
	a := Aliases{}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || text[0] == '#' {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 2 {
			return nil, errors.Errorf("chromset: malformed alias line %d: %q", line, text)
		}
		a[fields[0]] = fields[1]
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "chromset: reading alias table")
	}
	return a, nil
}

// Resolve translates chrom (as named in an alignment's reference) to the
// name the variant file uses, via aliases if one is given, otherwise
// unchanged.
func (a Aliases) Resolve(chrom string) string {
	if a == nil {
		return chrom
	}
	if alt, ok := a[chrom]; ok {
		return alt
	}
	return chrom
}

// Set is a chromosome length lookup backed by a FASTA index (.fai), used to
// bound posmap.Build's trailing-match fill per spec.md §4.3.
type Set struct {
	idx     fai.Index
	aliases Aliases
}

// NewSet returns a Set backed by idx, resolving alignment chromosome names
// through aliases (which may be nil).
func NewSet(idx fai.Index, aliases Aliases) *Set {
	return &Set{idx: idx, aliases: aliases}
}

// Len returns the reference length of chrom (an alignment-side name,
// resolved through the Set's alias table before the fai lookup), and
// whether it was found.
func (s *Set) Len(chrom string) (int, bool) {
	rec, ok := s.idx[s.aliases.Resolve(chrom)]
	if !ok {
		return 0, false
	}
	return rec.Length, true
}

// Resolve exposes the Set's alias resolution directly, for callers that
// need the variant-file-side name without a length lookup.
func (s *Set) Resolve(chrom string) string {
	return s.aliases.Resolve(chrom)
}

// ParseChromLengths is a fallback for when no FASTA index is available:
// it parses a "<chrom>\t<length>" table, the shape of a SAM header's
// @SQ lines once split, into a fai.Index-compatible map.
func ParseChromLengths(r io.Reader) (fai.Index, error) {
	idx := fai.Index{}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || text[0] == '#' {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 2 {
			return nil, errors.Errorf("chromset: malformed length line %d: %q", line, text)
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, errors.Wrapf(err, "chromset: bad length on line %d", line)
		}
		idx[fields[0]] = fai.Record{Name: fields[0], Length: n}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "chromset: reading length table")
	}
	return idx, nil
}
