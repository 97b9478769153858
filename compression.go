// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gounzip

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz/lzma"
)

// CompressionMethod represents the compression algorithm used for a file in the ZIP archive
type CompressionMethod uint16

// Compression methods according to ZIP specification
const (
	Stored    CompressionMethod = 0  // No compression - file stored as-is
	Deflated  CompressionMethod = 8  // DEFLATE compression (most common)
	Deflate64 CompressionMethod = 9  // DEFLATE64(tm) enhanced compression
	BZIP2     CompressionMethod = 12 // BZIP2 compression (more efficient but slower compression)
	LZMA      CompressionMethod = 14 // LZMA compression (high compression ratio)
	ZStandard CompressionMethod = 93 // Zstandard compression (fastest decompression)
)

// Decompressor transforms compressed data back into raw data.
type Decompressor interface {
	// Decompress returns a stream of uncompressed data.
	Decompress(src io.Reader) (io.ReadCloser, error)
}

// SizedDecompressor is an optional extension for methods whose stream
// format needs the declared uncompressed size up front (ZIP-LZMA).
// When a registered Decompressor implements it, the sized form is
// preferred.
type SizedDecompressor interface {
	Decompressor
	DecompressSized(src io.Reader, uncompressedSize int64) (io.ReadCloser, error)
}

type decompressorsMap map[CompressionMethod]Decompressor

// StoredDecompressor implements the "Store" method (no compression)
type StoredDecompressor struct{}

func (sd *StoredDecompressor) Decompress(src io.Reader) (io.ReadCloser, error) {
	if rc, ok := src.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(src), nil
}

// DeflateDecompressor implements the "Deflate" method on top of Inflate.
// The archive's own entries are inflated directly off the shared bit
// cursor; this stream form exists for callers decompressing detached
// DEFLATE data and for registry overrides.
type DeflateDecompressor struct{}

func (dd *DeflateDecompressor) Decompress(src io.Reader) (io.ReadCloser, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	out, err := Inflate(NewBitReader(data))
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(out)), nil
}

// BZip2Decompressor implements the BZIP2 method (12).
type BZip2Decompressor struct{}

func (bd *BZip2Decompressor) Decompress(src io.Reader) (io.ReadCloser, error) {
	return bzip2.NewReader(src, nil)
}

// LZMADecompressor implements the LZMA method (14).
//
// ZIP frames LZMA as a 2-byte version, a 2-byte properties size and the
// raw properties, with no size field. The classic LZMA header wants the
// properties followed by a 64-bit uncompressed size, so the stream is
// re-framed before handing it to the decoder. Without a declared size
// the all-ones sentinel is used and the stream must carry an
// end-of-stream marker.
type LZMADecompressor struct{}

func (ld *LZMADecompressor) Decompress(src io.Reader) (io.ReadCloser, error) {
	return ld.DecompressSized(src, -1)
}

func (ld *LZMADecompressor) DecompressSized(src io.Reader, uncompressedSize int64) (io.ReadCloser, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(src, hdr[:]); err != nil {
		return nil, fmt.Errorf("read lzma header: %w", err)
	}
	propsSize := int(binary.LittleEndian.Uint16(hdr[2:4]))
	if propsSize != lzma.HeaderLen-8 {
		return nil, fmt.Errorf("%w: lzma properties size %d", ErrAlgorithm, propsSize)
	}

	classic := make([]byte, lzma.HeaderLen)
	if _, err := io.ReadFull(src, classic[:propsSize]); err != nil {
		return nil, fmt.Errorf("read lzma properties: %w", err)
	}

	size := ^uint64(0) // unknown, end-of-stream marker expected
	if uncompressedSize >= 0 {
		size = uint64(uncompressedSize)
	}
	binary.LittleEndian.PutUint64(classic[propsSize:], size)

	lr, err := lzma.NewReader(io.MultiReader(bytes.NewReader(classic), src))
	if err != nil {
		return nil, fmt.Errorf("lzma: %w", err)
	}
	return io.NopCloser(lr), nil
}

// ZstdDecompressor implements the Zstandard method (93).
type ZstdDecompressor struct{}

func (zd *ZstdDecompressor) Decompress(src io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(src)
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

// builtinDecompressors returns the default method registry.
func builtinDecompressors() decompressorsMap {
	return decompressorsMap{
		Stored:    new(StoredDecompressor),
		Deflated:  new(DeflateDecompressor),
		BZIP2:     new(BZip2Decompressor),
		LZMA:      new(LZMADecompressor),
		ZStandard: new(ZstdDecompressor),
	}
}
