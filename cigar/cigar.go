// Package cigar implements the CIGAR representation used throughout the
// remapper: parsing, serialisation, simplification and the sub-range/splice
// operations the region parser and CIGAR builder need to compose two
// coordinate systems.
//
// The representation deliberately differs from sam.Cigar in one respect:
// Op may be negative. A negative op is a private sentinel meaning "ignore
// this unit" and is used by the region parser to mark scratch entries that
// Simplify should drop without them ever being serialised.
package cigar

import (
	"strconv"
	"strings"

	"github.com/biogo/lapels/sam"
	"github.com/pkg/errors"
)

// Op is a CIGAR operation type. Only the four operations the remapper
// needs to distinguish are represented; sam.Cigar's '=' and 'X' are folded
// into Match at the sam boundary (see FromSAM).
type Op int8

// The operation set used internally. Values match the ordering used by the
// original lapels cigarutils module (M=0, I=1, D=2, N=3) so that log output
// and test fixtures read the same way.
const (
	Match     Op = 0
	Insertion Op = 1
	Deletion  Op = 2
	Skip      Op = 3

	// Ignore is a sentinel op for scratch units that Simplify discards.
	// It is never written out by String.
	Ignore Op = -1
)

func (op Op) String() string {
	switch op {
	case Match:
		return "M"
	case Insertion:
		return "I"
	case Deletion:
		return "D"
	case Skip:
		return "N"
	case Ignore:
		return "?"
	default:
		return "?"
	}
}

// ConsumesRef reports whether units of this op advance a reference-coordinate
// cursor. Match, Deletion and Skip do; Insertion and Ignore do not.
func (op Op) ConsumesRef() bool {
	return op == Match || op == Deletion || op == Skip
}

// Unit is a single run-length-encoded CIGAR element.
type Unit struct {
	Op  Op
	Len int
}

// Cigar is an ordered sequence of CIGAR units.
type Cigar []Unit

// String renders the CIGAR the way lapels' cigarutils.toString does: a
// comma-separated list of "<len><op>" tokens, e.g. "7M,10D,3M". Units with
// non-positive length and Ignore units are skipped.
func (c Cigar) String() string {
	var b strings.Builder
	first := true
	for _, u := range c {
		if u.Len <= 0 || u.Op == Ignore {
			continue
		}
		if !first {
			b.WriteByte(',')
		}
		first = false
		b.WriteString(strconv.Itoa(u.Len))
		b.WriteString(u.Op.String())
	}
	return b.String()
}

// Parse parses a comma-separated CIGAR string produced by String.
func Parse(s string) (Cigar, error) {
	if s == "" {
		return nil, nil
	}
	toks := strings.Split(s, ",")
	c := make(Cigar, 0, len(toks))
	for _, tok := range toks {
		if tok == "" {
			return nil, errors.Errorf("cigar: empty token in %q", s)
		}
		opByte := tok[len(tok)-1]
		n, err := strconv.Atoi(tok[:len(tok)-1])
		if err != nil {
			return nil, errors.Wrapf(err, "cigar: bad length in token %q", tok)
		}
		if n <= 0 {
			return nil, errors.Errorf("cigar: non-positive length in token %q", tok)
		}
		var op Op
		switch opByte {
		case 'M':
			op = Match
		case 'I':
			op = Insertion
		case 'D':
			op = Deletion
		case 'N':
			op = Skip
		default:
			return nil, errors.Errorf("cigar: unknown op %q in token %q", opByte, tok)
		}
		c = append(c, Unit{op, n})
	}
	return c, nil
}

// Simplify drops non-positive-length and Ignore-op units, then fuses
// adjacent units of equal op.
func Simplify(c Cigar) Cigar {
	var ret Cigar
	for _, u := range c {
		if u.Len <= 0 || u.Op < 0 {
			continue
		}
		if n := len(ret); n > 0 && ret[n-1].Op == u.Op {
			ret[n-1].Len += u.Len
		} else {
			ret = append(ret, u)
		}
	}
	return ret
}

// RefLen returns the number of reference positions spanned by c (the sum of
// the lengths of its reference-consuming units).
func RefLen(c Cigar) int {
	n := 0
	for _, u := range c {
		if u.Op.ConsumesRef() {
			n += u.Len
		}
	}
	return n
}

// QueryLen returns the number of query (read) bases consumed by c (the sum
// of the lengths of its query-consuming units: Match and Insertion).
func QueryLen(c Cigar) int {
	n := 0
	for _, u := range c {
		if u.Op == Match || u.Op == Insertion {
			n += u.Len
		}
	}
	return n
}

// FromSAM converts a sam.Cigar into this package's representation, folding
// sam.CigarEqual and sam.CigarMismatch ('=', 'X') into Match per spec.md
// §4.1 ("Alignment op universe": input may contain = and X, treat them as M
// both for query-length counting and for emission).
func FromSAM(c sam.Cigar) (Cigar, error) {
	out := make(Cigar, 0, len(c))
	for _, co := range c {
		n := co.Len()
		if n <= 0 {
			continue
		}
		var op Op
		switch co.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			op = Match
		case sam.CigarInsertion:
			op = Insertion
		case sam.CigarDeletion:
			op = Deletion
		case sam.CigarSkipped:
			op = Skip
		default:
			return nil, errors.Errorf("cigar: unsupported sam cigar op %q", co.Type().String())
		}
		out = append(out, Unit{op, n})
	}
	return out, nil
}

// ToSAM converts c back into a sam.Cigar.
func ToSAM(c Cigar) (sam.Cigar, error) {
	out := make(sam.Cigar, 0, len(c))
	for _, u := range c {
		if u.Len <= 0 {
			continue
		}
		var t sam.CigarOpType
		switch u.Op {
		case Match:
			t = sam.CigarMatch
		case Insertion:
			t = sam.CigarInsertion
		case Deletion:
			t = sam.CigarDeletion
		case Skip:
			t = sam.CigarSkipped
		default:
			return nil, errors.Errorf("cigar: cannot convert op %v to sam", u.Op)
		}
		out = append(out, sam.NewCigarOp(t, u.Len))
	}
	return out, nil
}
