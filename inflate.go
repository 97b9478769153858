// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gounzip

import (
	"fmt"
	"sync"
)

// DEFLATE alphabet limits from RFC 1951 sections 3.2.5 to 3.2.7.
const (
	maxNumLit      = 286
	maxNumDist     = 30
	numCLenCodes   = 19 // size of the code-length alphabet
	endBlockMarker = 256
)

// codeOrder is the permuted order in which code-length code lengths are
// transmitted in a dynamic block header (RFC 1951 section 3.2.7).
var codeOrder = [numCLenCodes]int{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}

// Length codes 257..285: base match length and extra bits (RFC 1951
// section 3.2.5).
var (
	lengthBase = [29]int{
		3, 4, 5, 6, 7, 8, 9, 10, 11, 13, 15, 17, 19, 23, 27, 31,
		35, 43, 51, 59, 67, 83, 99, 115, 131, 163, 195, 227, 258,
	}
	lengthExtra = [29]int{
		0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2,
		3, 3, 3, 3, 4, 4, 4, 4, 5, 5, 5, 5, 0,
	}
)

// Distance codes 0..29: base distance and extra bits.
var (
	distBase = [30]int{
		1, 2, 3, 4, 5, 7, 9, 13, 17, 25, 33, 49, 65, 97, 129, 193,
		257, 385, 513, 769, 1025, 1537, 2049, 3073, 4097, 6145,
		8193, 12289, 16385, 24577,
	}
	distExtra = [30]int{
		0, 0, 0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6,
		7, 7, 8, 8, 9, 9, 10, 10, 11, 11, 12, 12, 13, 13,
	}
)

// Fixed Huffman tables (RFC 1951 section 3.2.6), built on first use.
var (
	fixedOnce        sync.Once
	fixedLitDecoder  *HuffmanDecoder
	fixedDistDecoder *HuffmanDecoder
)

// fixedLitLengths returns the fixed literal/length code lengths:
// 0..143 at 8 bits, 144..255 at 9, 256..279 at 7, 280..287 at 8.
func fixedLitLengths() []int {
	lengths := make([]int, 288)
	for i := range lengths {
		switch {
		case i < 144:
			lengths[i] = 8
		case i < 256:
			lengths[i] = 9
		case i < 280:
			lengths[i] = 7
		default:
			lengths[i] = 8
		}
	}
	return lengths
}

// fixedDistLengths returns the fixed distance code lengths: 32 codes of
// 5 bits each. Codes 30 and 31 complete the tree but never occur in
// valid data.
func fixedDistLengths() []int {
	lengths := make([]int, 32)
	for i := range lengths {
		lengths[i] = 5
	}
	return lengths
}

func fixedHuffmanInit() {
	fixedOnce.Do(func() {
		var err error
		if fixedLitDecoder, err = NewHuffmanDecoder(fixedLitLengths()); err != nil {
			panic("gounzip: fixed literal table: " + err.Error())
		}
		if fixedDistDecoder, err = NewHuffmanDecoder(fixedDistLengths()); err != nil {
			panic("gounzip: fixed distance table: " + err.Error())
		}
	})
}

// Inflate decodes a complete DEFLATE stream from r and returns the
// uncompressed bytes. It consumes exactly the blocks up to and including
// the one with BFINAL set and leaves the cursor on the bit following the
// final block; callers needing byte alignment invoke AlignToByte.
func Inflate(r *BitReader) ([]byte, error) {
	fixedHuffmanInit()

	var out []byte
	for {
		bfinal, err := r.ReadBit()
		if err != nil {
			return nil, err
		}
		btype, err := r.ReadBits(2)
		if err != nil {
			return nil, err
		}

		switch btype {
		case 0:
			if out, err = inflateStored(r, out); err != nil {
				return nil, err
			}
		case 1:
			if out, err = inflateBlock(r, fixedLitDecoder, fixedDistDecoder, out); err != nil {
				return nil, err
			}
		case 2:
			lit, dist, err := readDynamicTables(r)
			if err != nil {
				return nil, err
			}
			if out, err = inflateBlock(r, lit, dist, out); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: reserved block type", ErrDeflate)
		}

		if bfinal == 1 {
			return out, nil
		}
	}
}

// inflateStored copies a stored block: align, LEN, NLEN, raw bytes.
func inflateStored(r *BitReader, out []byte) ([]byte, error) {
	r.AlignToByte()
	hdr, err := r.ReadAlignedBytes(4)
	if err != nil {
		return nil, err
	}
	length := int(hdr[0]) | int(hdr[1])<<8
	nlen := int(hdr[2]) | int(hdr[3])<<8
	if uint16(nlen) != ^uint16(length) {
		return nil, fmt.Errorf("%w: stored block length check failed", ErrDeflate)
	}
	data, err := r.ReadAlignedBytes(length)
	if err != nil {
		return nil, err
	}
	return append(out, data...), nil
}

// readDynamicTables decodes the dynamic block header into the
// literal/length and distance decoders (RFC 1951 section 3.2.7).
func readDynamicTables(r *BitReader) (lit, dist *HuffmanDecoder, err error) {
	hlit, err := r.ReadBits(5)
	if err != nil {
		return nil, nil, err
	}
	hdist, err := r.ReadBits(5)
	if err != nil {
		return nil, nil, err
	}
	hclen, err := r.ReadBits(4)
	if err != nil {
		return nil, nil, err
	}

	nlit := int(hlit) + 257
	ndist := int(hdist) + 1
	nclen := int(hclen) + 4
	if nlit > maxNumLit {
		return nil, nil, fmt.Errorf("%w: %d literal/length codes", ErrDeflate, nlit)
	}
	if ndist > maxNumDist {
		return nil, nil, fmt.Errorf("%w: %d distance codes", ErrDeflate, ndist)
	}

	clenLengths := make([]int, numCLenCodes)
	for i := 0; i < nclen; i++ {
		v, err := r.ReadBits(3)
		if err != nil {
			return nil, nil, err
		}
		clenLengths[codeOrder[i]] = int(v)
	}

	clenDecoder, err := NewHuffmanDecoder(clenLengths)
	if err != nil {
		return nil, nil, err
	}

	// HLIT+HDIST code lengths in one run, decoded with the code-length
	// alphabet and its run-length symbols 16, 17 and 18.
	lengths := make([]int, nlit+ndist)
	for i := 0; i < len(lengths); {
		sym, err := clenDecoder.Decode(r)
		if err != nil {
			return nil, nil, err
		}
		if sym < 16 {
			lengths[i] = sym
			i++
			continue
		}

		var repeat, value int
		switch sym {
		case 16:
			if i == 0 {
				return nil, nil, fmt.Errorf("%w: repeat with no previous length", ErrDeflate)
			}
			extra, err := r.ReadBits(2)
			if err != nil {
				return nil, nil, err
			}
			repeat = 3 + int(extra)
			value = lengths[i-1]
		case 17:
			extra, err := r.ReadBits(3)
			if err != nil {
				return nil, nil, err
			}
			repeat = 3 + int(extra)
		case 18:
			extra, err := r.ReadBits(7)
			if err != nil {
				return nil, nil, err
			}
			repeat = 11 + int(extra)
		default:
			return nil, nil, fmt.Errorf("%w: code-length symbol %d", ErrDeflate, sym)
		}

		if i+repeat > len(lengths) {
			return nil, nil, fmt.Errorf("%w: run-length past end of code lengths", ErrDeflate)
		}
		for j := 0; j < repeat; j++ {
			lengths[i] = value
			i++
		}
	}

	if lit, err = NewHuffmanDecoder(lengths[:nlit]); err != nil {
		return nil, nil, err
	}
	if dist, err = NewHuffmanDecoder(lengths[nlit:]); err != nil {
		return nil, nil, err
	}
	return lit, dist, nil
}

// inflateBlock decodes literal/length symbols until the end-of-block
// marker, resolving back-references against the output produced so far.
func inflateBlock(r *BitReader, lit, dist *HuffmanDecoder, out []byte) ([]byte, error) {
	for {
		sym, err := lit.Decode(r)
		if err != nil {
			return nil, err
		}

		switch {
		case sym < 256:
			out = append(out, byte(sym))
			continue
		case sym == endBlockMarker:
			return out, nil
		case sym >= maxNumLit:
			return nil, fmt.Errorf("%w: literal/length symbol %d", ErrDeflate, sym)
		}

		lengthCode := sym - 257
		extra, err := r.ReadBits(lengthExtra[lengthCode])
		if err != nil {
			return nil, err
		}
		length := lengthBase[lengthCode] + int(extra)

		distSym, err := dist.Decode(r)
		if err != nil {
			return nil, err
		}
		if distSym >= maxNumDist {
			return nil, fmt.Errorf("%w: distance symbol %d", ErrDeflate, distSym)
		}
		extra, err = r.ReadBits(distExtra[distSym])
		if err != nil {
			return nil, err
		}
		distance := distBase[distSym] + int(extra)

		if distance > len(out) {
			return nil, fmt.Errorf("%w: distance %d before start of output", ErrDeflate, distance)
		}

		// Byte-by-byte copy so that distance < length self-overlaps
		// into a run, as the format requires.
		for i := 0; i < length; i++ {
			out = append(out, out[len(out)-distance])
		}
	}
}
