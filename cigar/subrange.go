package cigar

import "fmt"

// OutOfRangeError reports that a requested reference-position bound for
// Sub or Replace fell outside what the supplied CIGAR actually covers,
// either before its start (startPos) or past its reference span.
type OutOfRangeError struct {
	Pos  int
	Kind string // "start" or "end"
	Dir  string // "underflows" or "overflows"
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("cigar: %s position %d %s", e.Kind, e.Pos, e.Dir)
}

// Sub returns the sub-CIGAR covering reference positions [lo, hi] within c,
// whose first op aligns at startPos. lo or hi may be passed as -1 to leave
// that bound open (matching the original cigarutils.sub's start=None /
// end=None). Empty input yields empty output.
//
// An Insertion that immediately precedes the first Match at the requested
// start is included in the result: insertions anchored to the left
// boundary belong with that boundary.
func Sub(c Cigar, startPos, lo, hi int) (Cigar, error) {
	if len(c) == 0 {
		return nil, nil
	}
	hasLo := lo >= 0
	hasHi := hi >= 0

	if !hasLo && hasHi && hi == startPos-1 {
		return nil, nil
	}
	if hasLo && !hasHi && lo == startPos {
		return nil, nil
	}

	idx1, offset1 := 0, 0
	idx2, offset2 := len(c)-1, c[len(c)-1].Len-1
	pos := startPos
	var ibuffer Cigar

	if hasLo {
		if lo < pos {
			return nil, &OutOfRangeError{Pos: lo, Kind: "start", Dir: "underflows"}
		}
		for idx1 = 0; idx1 < len(c); idx1++ {
			u := c[idx1]
			if u.Op.ConsumesRef() {
				if lo < pos+u.Len {
					offset1 = lo - pos
					break
				}
				pos += u.Len
				ibuffer = nil
			} else if u.Op == Insertion {
				ibuffer = append(ibuffer, u)
			}
		}
		if hasHi && hi == pos-1 && lo == pos {
			return nil, nil
		}
		if idx1 >= len(c) {
			return nil, &OutOfRangeError{Pos: lo, Kind: "start", Dir: "overflows"}
		}
	}

	if hasHi {
		if hi < pos {
			return nil, &OutOfRangeError{Pos: hi, Kind: "end", Dir: "underflows"}
		}
		for idx2 = idx1; idx2 < len(c); idx2++ {
			u := c[idx2]
			if u.Op.ConsumesRef() {
				if hi < pos+u.Len {
					offset2 = hi - pos
					break
				}
				pos += u.Len
			}
		}
		if idx2 >= len(c) {
			return nil, &OutOfRangeError{Pos: hi, Kind: "end", Dir: "overflows"}
		}
	}

	var ret Cigar
	if len(ibuffer) > 0 && offset1 == 0 {
		ret = append(ret, ibuffer...)
	}
	if idx1 == idx2 {
		ret = append(ret, Unit{Op: c[idx1].Op, Len: offset2 - offset1 + 1})
	} else {
		ret = append(ret, Unit{Op: c[idx1].Op, Len: c[idx1].Len - offset1})
		ret = append(ret, c[idx1+1:idx2]...)
		ret = append(ret, Unit{Op: c[idx2].Op, Len: offset2 + 1})
	}
	return ret, nil
}

// ReplaceRegion is one sorted sub-range of a CIGAR to splice out and
// replace, as consumed by Replace: reference positions [Start, End]
// (inclusive) are cut from the source CIGAR and Cigar is spliced in
// their place.
type ReplaceRegion struct {
	Cigar Cigar
	Start int
	End   int
}

// Replace splices the replacement CIGAR of each region in regions into c in
// place of the reference range it names, using Sub to extract the
// preserved slices before, between, and after the regions. regions must be
// sorted by Start and must not overlap.
func Replace(c Cigar, startPos int, regions []ReplaceRegion) (Cigar, error) {
	var ret Cigar
	last := -1
	for _, r := range regions {
		piece, err := Sub(c, startPos, last, r.Start-1)
		if err != nil {
			return nil, err
		}
		ret = append(ret, piece...)
		ret = append(ret, r.Cigar...)
		last = r.End + 1
	}
	if tail, err := Sub(c, startPos, last, -1); err == nil {
		ret = append(ret, tail...)
	}
	return ret, nil
}
