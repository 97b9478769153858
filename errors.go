// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gounzip

import (
	"errors"
	"fmt"
)

var (
	// ErrFormat is returned when the input is not a valid ZIP archive,
	// e.g. a required signature is missing or a record is malformed.
	ErrFormat = errors.New("zip: not a valid zip file")

	// ErrTruncated is returned when the input ends before a structural
	// requirement was met.
	ErrTruncated = errors.New("zip: unexpected end of data")

	// ErrLocalHeaderMismatch is returned when a local file header disagrees
	// with the central directory record for the same entry.
	ErrLocalHeaderMismatch = errors.New("zip: local header does not match central directory")

	// ErrSizeMismatch is returned when the observed compressed or
	// uncompressed size does not match the declared one.
	ErrSizeMismatch = errors.New("zip: size mismatch")

	// ErrChecksum is returned when the CRC32 of decompressed data does not
	// match the declared checksum. The concrete error is a *ChecksumError
	// carrying the decoded bytes.
	ErrChecksum = errors.New("zip: checksum error")

	// ErrAlgorithm is returned when a compression method is not supported.
	ErrAlgorithm = errors.New("zip: unsupported compression algorithm")

	// ErrFeature is returned when the archive uses a feature outside the
	// implemented set (multi-disk spanning, unsupported zip64 variants).
	ErrFeature = errors.New("zip: unsupported feature")

	// ErrEncryption is returned when an entry is encrypted.
	ErrEncryption = fmt.Errorf("%w: encryption", ErrFeature)

	// ErrHuffman is returned when code lengths cannot form a canonical
	// prefix code, or a decoded bit sequence has no assigned symbol.
	ErrHuffman = errors.New("huffman: malformed code")

	// ErrSymbolNotAssigned is returned when encoding a symbol that carries
	// no code. This indicates caller misuse, not bad input data.
	ErrSymbolNotAssigned = fmt.Errorf("%w: symbol not assigned", ErrHuffman)

	// ErrDeflate is returned when a DEFLATE stream is malformed: a reserved
	// block type, a bad stored-block length, a back-reference before the
	// start of output, or a bad run-length in a dynamic header.
	ErrDeflate = errors.New("deflate: corrupt stream")

	// ErrFileNotFound is returned when the requested file is not found in the archive.
	ErrFileNotFound = errors.New("zip: file not found")
)

// ChecksumError reports a CRC32 mismatch. The decompressed bytes are kept
// so callers can inspect or salvage the data.
type ChecksumError struct {
	Data []byte // decoded bytes that failed verification
	Got  uint32
	Want uint32
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("zip: checksum error: got %#08x, want %#08x", e.Got, e.Want)
}

// Is reports ErrChecksum so that errors.Is(err, ErrChecksum) matches.
func (e *ChecksumError) Is(target error) bool { return target == ErrChecksum }
