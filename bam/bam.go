// Copyright ©2012 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bam implements BAM file format reading, writing and indexing.
// The BAM format is described in the SAM specification.
//
// http://samtools.github.io/hts-specs/SAMv1.pdf
package bam
