// Package variantfile loads the MOD file format: a tab-separated,
// optionally gzip/BGZF-compressed table of atomic variants produced by
// modtools when it builds a pseudo-genome from a reference plus a variant
// call set. See spec.md §4.2 and §9.
//
// A MOD file begins with zero or more "#key=value" metadata lines, then one
// row per variant: <kind>\t<chrom>\t<refpos>\t<payload>, sorted by chrom
// then refpos. kind is one of 's' (substitution), 'i' (insertion) or 'd'
// (deletion), mirroring modtools' variants.py.
package variantfile

import (
	"bufio"
	"compress/gzip"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/biogo/lapels/variant"
	"github.com/pkg/errors"
)

// Metadata holds the "#key=value" header lines that precede a MOD file's
// variant rows: modtools writes "version", "date", "reference" and
// "sample" keys here, mirroring modtools/metadata.py.
type Metadata map[string]string

// File is a loaded MOD file: its header metadata and one variant.Table per
// chromosome it covers.
type File struct {
	Metadata Metadata
	Chroms   []string
	tables   map[string]*variant.Table
}

// Table returns the variant.Table for chrom, or nil if chrom was not
// present in the MOD file.
func (f *File) Table(chrom string) *variant.Table {
	return f.tables[chrom]
}

// Open reads and parses the MOD file at path. A gzip-compressed file
// (including a BGZF one, which stdlib gzip reads transparently as a
// sequence of concatenated members) is detected from its magic bytes and
// decompressed on the fly; a plain-text MOD file is read as-is.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "variantfile: opening %s", path)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads and parses a MOD file from r.
func Parse(r io.Reader) (*File, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, errors.Wrap(err, "variantfile: opening gzip stream")
		}
		defer gz.Close()
		return parseRows(gz)
	}
	return parseRows(br)
}

func parseRows(r io.Reader) (*File, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	header := Metadata{}
	var chromOrder []string
	byChrom := map[string][]variant.Variant{}

	line := 0
	inHeader := true
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r\n")
		if len(text) == 0 {
			continue
		}
		if inHeader && text[0] == '#' {
			kv := strings.SplitN(text[1:], "=", 2)
			if len(kv) != 2 {
				return nil, &variant.MalformedError{Line: line, Reason: "malformed header line"}
			}
			header[kv[0]] = kv[1]
			continue
		}
		inHeader = false

		cols := strings.Split(text, "\t")
		if len(cols) < 4 {
			return nil, &variant.MalformedError{Line: line, Reason: "expected 4 tab-separated columns"}
		}
		var kind variant.Kind
		switch cols[0] {
		case "s":
			kind = variant.Substitution
		case "i":
			kind = variant.Insertion
		case "d":
			kind = variant.Deletion
		default:
			return nil, &variant.MalformedError{Line: line, Reason: "unknown variant kind " + cols[0]}
		}
		chrom := cols[1]
		pos, err := strconv.Atoi(cols[2])
		if err != nil {
			return nil, &variant.MalformedError{Line: line, Reason: "non-integer position"}
		}
		v := variant.Variant{Kind: kind, Chrom: chrom, RefPos: pos, Payload: cols[3]}
		if _, ok := byChrom[chrom]; !ok {
			chromOrder = append(chromOrder, chrom)
		}
		byChrom[chrom] = append(byChrom[chrom], v)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "variantfile: scanning MOD file")
	}

	tables := make(map[string]*variant.Table, len(chromOrder))
	for _, chrom := range chromOrder {
		t, err := variant.NewTable(chrom, byChrom[chrom])
		if err != nil {
			return nil, err
		}
		tables[chrom] = t
	}

	return &File{Metadata: header, Chroms: chromOrder, tables: tables}, nil
}
