// Copyright ©2012 The bíogo.bam Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bgzf

import (
	"bytes"
	"compress/gzip"
	"io"
)

// Writer writes a BGZF stream: uncompressed data is buffered up to
// BlockSize and flushed as one gzip member carrying a "BC" extra subfield
// recording the member's own compressed length, as required by the BGZF
// format.
type Writer struct {
	Header gzip.Header

	w     io.Writer
	level int

	block [BlockSize]byte
	next  int

	buf bytes.Buffer

	written bool
	closed  bool
	err     error
}

// NewWriter returns a Writer using the default compression level. wc is a
// concurrency hint retained for API compatibility; this implementation
// compresses members synchronously.
func NewWriter(w io.Writer, wc int) *Writer {
	bw, _ := NewWriterLevel(w, gzip.DefaultCompression, wc)
	return bw
}

// NewWriterLevel returns a Writer using the given compression level. wc is
// a concurrency hint retained for API compatibility; see NewWriter.
func NewWriterLevel(w io.Writer, level, wc int) (*Writer, error) {
	return &Writer{
		Header: gzip.Header{OS: 0xff},
		w:      w,
		level:  level,
	}, nil
}

// Write implements io.Writer, buffering p into the current member and
// flushing whenever the buffer reaches BlockSize.
func (bw *Writer) Write(p []byte) (int, error) {
	if bw.err != nil {
		return 0, bw.err
	}
	if bw.closed {
		return 0, ErrClosed
	}
	bw.written = false
	var n int
	for len(p) > 0 {
		if bw.next+len(p) > BlockSize {
			if err := bw.Flush(); err != nil {
				return n, err
			}
		}
		c := copy(bw.block[bw.next:], p)
		n += c
		bw.next += c
		p = p[c:]
	}
	return n, nil
}

// Flush writes any buffered data as a BGZF member, even if it is shorter
// than BlockSize.
func (bw *Writer) Flush() error {
	if bw.err != nil {
		return bw.err
	}
	if bw.closed {
		return nil
	}
	if bw.written && bw.next == 0 {
		return nil
	}
	bw.written = true
	return bw.writeMember()
}

func (bw *Writer) writeMember() error {
	bw.buf.Reset()
	gz, err := gzip.NewWriterLevel(&bw.buf, bw.level)
	if err != nil {
		bw.err = err
		return err
	}
	gz.Header = gzip.Header{
		Comment: bw.Header.Comment,
		Extra:   append(append([]byte{}, bgzfExtraPrefix...), 0, 0),
		ModTime: bw.Header.ModTime,
		Name:    bw.Header.Name,
		OS:      bw.Header.OS,
	}

	if _, err := gz.Write(bw.block[:bw.next]); err != nil {
		bw.err = err
		return err
	}
	if err := gz.Close(); err != nil {
		bw.err = err
		return err
	}
	bw.next = 0

	b := bw.buf.Bytes()
	i := bytes.Index(b, bgzfExtraPrefix)
	if i < 0 {
		bw.err = gzip.ErrHeader
		return bw.err
	}
	size := len(b) - 1
	if size >= MaxBlockSize {
		bw.err = ErrBlockOverflow
		return bw.err
	}
	b[i+4], b[i+5] = byte(size), byte(size>>8)

	if _, err := bw.w.Write(b); err != nil {
		bw.err = err
		return err
	}
	return nil
}

// Wait blocks until any in-flight compression has completed. This
// implementation compresses synchronously, so Wait only ever reports the
// last error recorded by Write, Flush or Close.
func (bw *Writer) Wait() error {
	return bw.err
}

// Close flushes any buffered data and closes the Writer. It does not close
// the underlying io.Writer.
func (bw *Writer) Close() error {
	if bw.err != nil {
		return bw.err
	}
	if bw.closed {
		return nil
	}
	bw.closed = true
	return bw.writeMember()
}
