// Copyright ©2012 The bíogo.bam Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bgzf implements the BGZF blocked gzip format used by BAM, tabix
// and CSI: a stream of independently-decompressible gzip members, each
// carrying a standard "BC" extra subfield recording the compressed size of
// the member it belongs to. A position in a BGZF stream is addressed by an
// Offset, the file offset of the member's first byte paired with a byte
// offset into that member's decompressed data.
package bgzf

import (
	"compress/gzip"
	"errors"
	"io"
)

const (
	// BlockSize is the maximum amount of uncompressed data packed into a
	// single BGZF member by Writer.
	BlockSize = 0x0ff00

	// MaxBlockSize is the largest a compressed BGZF member is permitted
	// to be.
	MaxBlockSize = 0x10000
)

var bgzfExtraPrefix = []byte("BC\x02\x00")

var (
	ErrClosed        = errors.New("bgzf: write to closed writer")
	ErrBlockOverflow = errors.New("bgzf: block overflow")
	ErrNotASeeker    = errors.New("bgzf: not a seeker")
)

// Offset is a virtual file offset into a BGZF stream: the file offset of
// the start of a member, plus a byte offset into that member's decompressed
// data.
type Offset struct {
	File  int64
	Block uint16
}

// Chunk is a region of a BGZF stream delimited by two Offsets.
type Chunk struct {
	Begin Offset
	End   Offset
}

// vOffset linearises an Offset for comparison, matching htslib's virtual
// file offset packing.
func vOffset(o Offset) int64 {
	return o.File<<16 | int64(o.Block)
}

// Cache is a Block caching type, consulted by Reader before reading a new
// member from the underlying stream.
type Cache interface {
	// Get returns the cached decompressed member starting at base, and
	// whether it was present.
	Get(base int64) ([]byte, bool)

	// Put stores the decompressed member starting at base.
	Put(base int64, data []byte)
}

// countReader wraps an io.Reader, tracking the number of bytes read from
// it so Reader can recover file offsets without requiring r to implement
// io.Seeker.
type countReader struct {
	r io.Reader
	n int64
}

func (c *countReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// ReadByte makes countReader an io.ByteReader, so gzip consumes it directly
// instead of through a read-ahead buffer and stops at the end of a member.
func (c *countReader) ReadByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(c.r, b[:]); err != nil {
		return 0, err
	}
	c.n++
	return b[0], nil
}

// Reader reads a sequential or chunk-restricted BGZF stream.
type Reader struct {
	Header gzip.Header

	// Blocked, when true, stops Read from crossing a member boundary:
	// each call returns at most the bytes remaining in the current
	// decompressed member. Index construction relies on this to align
	// reads with member boundaries.
	Blocked bool

	src   io.Reader
	seek  io.Seeker
	cr    *countReader
	cache Cache

	base    int64 // file offset of the start of the current member
	data    []byte
	pos     int
	atEOF   bool

	chunk Chunk
	limit *Offset // if set, Read stops once the current offset reaches this

	err error
}

// NewReader returns a Reader reading from r. rd is a concurrency hint
// retained for API compatibility with the upstream package; this
// implementation decompresses members synchronously regardless of its
// value.
func NewReader(r io.Reader, rd int) (*Reader, error) {
	cr := &countReader{r: r}
	bg := &Reader{src: r, cr: cr}
	if s, ok := r.(io.Seeker); ok {
		bg.seek = s
	}
	if err := bg.readMember(); err != nil && err != io.EOF {
		return nil, err
	}
	return bg, nil
}

// SetCache sets the Cache used to avoid re-decompressing members that have
// already been visited, for example when seeking backward.
func (bg *Reader) SetCache(c Cache) {
	bg.cache = c
}

// readMember decompresses the next gzip member from the underlying stream
// into bg.data, recording its base file offset.
func (bg *Reader) readMember() error {
	base := bg.cr.n
	if bg.cache != nil {
		if data, ok := bg.cache.Get(base); ok {
			bg.base, bg.data, bg.pos = base, data, 0
			return nil
		}
	}

	gz, err := gzip.NewReader(bg.cr)
	if err != nil {
		if err == io.EOF {
			bg.atEOF = true
		}
		return err
	}
	gz.Multistream(false)
	bg.Header = gz.Header

	data, err := io.ReadAll(gz)
	if err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}

	bg.base, bg.data, bg.pos = base, data, 0
	if bg.cache != nil {
		bg.cache.Put(base, data)
	}
	return nil
}

func (bg *Reader) offset() Offset {
	return Offset{File: bg.base, Block: uint16(bg.pos)}
}

// Read implements io.Reader. It returns data from the current BGZF member,
// transparently advancing to subsequent members unless Blocked is set.
func (bg *Reader) Read(p []byte) (int, error) {
	if bg.err != nil {
		return 0, bg.err
	}
	var total int
	for len(p) > 0 {
		if bg.pos == len(bg.data) {
			if bg.Blocked && total > 0 {
				break
			}
			if err := bg.readMember(); err != nil {
				if err == io.EOF {
					if total > 0 {
						break
					}
					return 0, io.EOF
				}
				bg.err = err
				return total, err
			}
			if len(bg.data) == 0 {
				// Zero-length member, e.g. the standard BGZF EOF
				// marker: treat as end of stream.
				bg.atEOF = true
				if total > 0 {
					break
				}
				return 0, io.EOF
			}
		}
		if total == 0 {
			bg.chunk.Begin = bg.offset()
		}
		n := copy(p, bg.data[bg.pos:])
		bg.pos += n
		total += n
		p = p[n:]

		bg.chunk.End = bg.offset()
		if bg.limit != nil && vOffset(bg.chunk.End) >= vOffset(*bg.limit) {
			bg.limit = nil
			break
		}
		if bg.Blocked {
			break
		}
	}
	return total, nil
}

// LastChunk returns the Chunk spanning the bytes consumed by the most
// recent Read call, or the position set by the most recent Seek.
func (bg *Reader) LastChunk() Chunk {
	return bg.chunk
}

// BlockLen returns the length of the decompressed data in the member
// currently being read.
func (bg *Reader) BlockLen() int {
	return len(bg.data)
}

// Tx represents a read transaction: the span of stream consumed between a
// call to Begin and the subsequent call to End.
type Tx struct {
	r     *Reader
	begin Offset
}

// Begin marks the start of a read transaction.
func (bg *Reader) Begin() *Tx {
	return &Tx{r: bg, begin: bg.offset()}
}

// End closes the transaction, returning the Chunk of stream consumed since
// the matching Begin call.
func (tx *Tx) End() Chunk {
	return Chunk{Begin: tx.begin, End: tx.r.offset()}
}

// SetChunk restricts subsequent reads to end at c.End, seeking to c.Begin
// first. A nil c removes any restriction.
func (bg *Reader) SetChunk(c *Chunk) error {
	if c == nil {
		bg.limit = nil
		return nil
	}
	if err := bg.Seek(c.Begin); err != nil {
		return err
	}
	end := c.End
	bg.limit = &end
	return nil
}

// Seek moves the Reader to off, which must have been obtained from this
// Reader (via LastChunk, Begin or a prior index). The underlying reader
// must implement io.Seeker.
func (bg *Reader) Seek(off Offset) error {
	if bg.seek == nil {
		return ErrNotASeeker
	}
	if _, err := bg.seek.Seek(off.File, io.SeekStart); err != nil {
		bg.err = err
		return err
	}
	bg.cr.n = off.File
	bg.atEOF = false
	if err := bg.readMember(); err != nil && err != io.EOF {
		bg.err = err
		return err
	}
	if int(off.Block) > len(bg.data) {
		return errors.New("bgzf: block offset past end of member")
	}
	bg.pos = int(off.Block)
	bg.chunk = Chunk{Begin: off, End: off}
	return nil
}

// Close releases resources held by the Reader, closing the underlying
// stream if it implements io.Closer.
func (bg *Reader) Close() error {
	if c, ok := bg.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func init() {
	// Sanity check that the "BC" extra subfield marker used by
	// writeMember agrees with its 4-byte length.
	if len(bgzfExtraPrefix) != 4 {
		panic("bgzf: malformed extra subfield prefix")
	}
}
