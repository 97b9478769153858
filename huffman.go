// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gounzip

import (
	"fmt"
	"math/bits"
	"slices"
)

// maxHuffmanBits bounds code lengths so patterns fit in uint32.
const maxHuffmanBits = 31

// CodeLength assigns a code length to an alphabet symbol. A Length of 0
// means the symbol is absent from the code.
type CodeLength struct {
	Symbol int
	Length int
}

// SymbolCount pairs a symbol with an occurrence count for cost estimates.
type SymbolCount struct {
	Symbol int
	Count  int
}

// huffCode is a stored code in DEFLATE wire order: pattern is the
// bit-reversal of the canonical MSB-first code over its own length.
// length 0 marks an unassigned symbol.
type huffCode struct {
	pattern uint32
	length  uint8
}

// HuffmanEncoder holds a canonical prefix code in wire order and emits
// codes through a BitWriter. The table is read-only after construction
// and may be shared freely.
type HuffmanEncoder struct {
	codes []huffCode
}

// NewHuffmanEncoder builds a canonical code from (symbol, length) records.
//
// Records are sorted by (length ascending, symbol ascending). Codes form
// the integer sequence 0,1,2,... with a left shift at each length
// transition, and are stored bit-reversed over their own length so they
// can be written LSB-first. Records with Length 0 are skipped.
func NewHuffmanEncoder(records []CodeLength) (*HuffmanEncoder, error) {
	active := make([]CodeLength, 0, len(records))
	maxSymbol := -1
	for _, rec := range records {
		if rec.Symbol < 0 {
			return nil, fmt.Errorf("%w: negative symbol %d", ErrHuffman, rec.Symbol)
		}
		if rec.Length < 0 || rec.Length > maxHuffmanBits {
			return nil, fmt.Errorf("%w: code length %d for symbol %d", ErrHuffman, rec.Length, rec.Symbol)
		}
		if rec.Symbol > maxSymbol {
			maxSymbol = rec.Symbol
		}
		if rec.Length > 0 {
			active = append(active, rec)
		}
	}

	slices.SortFunc(active, func(a, b CodeLength) int {
		if a.Length != b.Length {
			return a.Length - b.Length
		}
		return a.Symbol - b.Symbol
	})

	e := &HuffmanEncoder{codes: make([]huffCode, maxSymbol+1)}

	var code uint32
	prevLen := 0
	for i, rec := range active {
		if i == 0 {
			prevLen = rec.Length
		}
		if e.codes[rec.Symbol].length != 0 {
			return nil, fmt.Errorf("%w: duplicate symbol %d", ErrHuffman, rec.Symbol)
		}
		code <<= uint(rec.Length - prevLen)
		if bits.Len32(code) > rec.Length {
			return nil, fmt.Errorf("%w: over-subscribed code lengths", ErrHuffman)
		}
		e.codes[rec.Symbol] = huffCode{
			pattern: reverseBits(code, rec.Length),
			length:  uint8(rec.Length),
		}
		code++
		prevLen = rec.Length
	}

	return e, nil
}

// BootstrapCodeLengths expands breakpoint pairs into explicit records.
// Each pair declares that symbols in [pair.Symbol, next.Symbol) share
// pair.Length; the final pair is a sentinel with a negative Length that
// terminates the last range. Ranges with Length 0 mark absent symbols
// and produce no records.
func BootstrapCodeLengths(pairs []CodeLength) ([]CodeLength, error) {
	if len(pairs) < 2 {
		return nil, fmt.Errorf("%w: bootstrap needs at least one range and a sentinel", ErrHuffman)
	}
	if pairs[len(pairs)-1].Length >= 0 {
		return nil, fmt.Errorf("%w: bootstrap is not sentinel-terminated", ErrHuffman)
	}

	var records []CodeLength
	for i := 0; i < len(pairs)-1; i++ {
		start, length := pairs[i].Symbol, pairs[i].Length
		end := pairs[i+1].Symbol
		if end < start {
			return nil, fmt.Errorf("%w: bootstrap symbols not ascending at %d", ErrHuffman, end)
		}
		if length == 0 {
			continue
		}
		for sym := start; sym < end; sym++ {
			records = append(records, CodeLength{Symbol: sym, Length: length})
		}
	}
	return records, nil
}

// DenseCodeLengths converts a dense length-by-symbol sequence into
// records by pairing each length with its position. A -1 entry
// terminates the sequence early.
func DenseCodeLengths(lengths []int) []CodeLength {
	records := make([]CodeLength, 0, len(lengths))
	for sym, length := range lengths {
		if length < 0 {
			break
		}
		records = append(records, CodeLength{Symbol: sym, Length: length})
	}
	return records
}

// Code returns the wire-order pattern and bit length for a symbol, and
// whether the symbol is assigned.
func (e *HuffmanEncoder) Code(symbol int) (pattern uint32, length int, ok bool) {
	if symbol < 0 || symbol >= len(e.codes) || e.codes[symbol].length == 0 {
		return 0, 0, false
	}
	c := e.codes[symbol]
	return c.pattern, int(c.length), true
}

// Encode writes the symbol's code through w. Encoding a symbol with no
// assigned code is caller misuse and fails with ErrSymbolNotAssigned.
func (e *HuffmanEncoder) Encode(w *BitWriter, symbol int) error {
	pattern, length, ok := e.Code(symbol)
	if !ok {
		return fmt.Errorf("%w: %d", ErrSymbolNotAssigned, symbol)
	}
	w.WriteBits(uint64(pattern), length)
	return nil
}

// BitCost returns the total encoded size in bits for the given symbol
// statistics. Any unassigned symbol fails with ErrSymbolNotAssigned.
func (e *HuffmanEncoder) BitCost(stats []SymbolCount) (int64, error) {
	var total int64
	for _, s := range stats {
		_, length, ok := e.Code(s.Symbol)
		if !ok {
			return 0, fmt.Errorf("%w: %d", ErrSymbolNotAssigned, s.Symbol)
		}
		total += int64(s.Count) * int64(length)
	}
	return total, nil
}

// reverseBits reverses the low n bits of v and discards the rest.
func reverseBits(v uint32, n int) uint32 {
	if n == 0 {
		return 0
	}
	return bits.Reverse32(v) >> (32 - uint(n))
}

// HuffmanDecoder answers "given the next bits, which symbol" for a
// canonical prefix code. Decoding walks the code one bit at a time:
// because wire codes are the bit-reversal of the canonical form and the
// stream is LSB-first, successive ReadBit calls yield the canonical code
// MSB-first, so each prefix can be checked against the contiguous code
// interval of its length.
type HuffmanDecoder struct {
	maxLen int
	count  []int    // codes per length, 1..maxLen
	first  []uint32 // first canonical code of each length
	base   []int    // index into syms of the first symbol of each length
	syms   []int    // symbols ordered by (length, symbol)
}

// NewHuffmanDecoder builds a decoder from a dense length-by-symbol
// vector. Zero lengths mark absent symbols. The lengths must form a
// complete canonical prefix code; the only accepted incomplete code is
// the degenerate single-symbol one-bit code, for compatibility with
// streams produced by zlib. An all-zero vector yields an empty decoder
// whose Decode always fails.
func NewHuffmanDecoder(lengths []int) (*HuffmanDecoder, error) {
	maxLen := 0
	for sym, length := range lengths {
		if length < 0 || length > maxHuffmanBits {
			return nil, fmt.Errorf("%w: code length %d for symbol %d", ErrHuffman, length, sym)
		}
		if length > maxLen {
			maxLen = length
		}
	}

	d := &HuffmanDecoder{
		maxLen: maxLen,
		count:  make([]int, maxLen+1),
		first:  make([]uint32, maxLen+1),
		base:   make([]int, maxLen+1),
	}
	if maxLen == 0 {
		return d, nil
	}

	total := 0
	for _, length := range lengths {
		if length > 0 {
			d.count[length]++
			total++
		}
	}

	// Kraft accounting: going down the tree, each length must not
	// claim more codes than remain available.
	left := 1
	for l := 1; l <= maxLen; l++ {
		left <<= 1
		left -= d.count[l]
		if left < 0 {
			return nil, fmt.Errorf("%w: over-subscribed code lengths", ErrHuffman)
		}
	}
	if left > 0 && !(maxLen == 1 && total == 1) {
		return nil, fmt.Errorf("%w: incomplete code lengths", ErrHuffman)
	}

	var code uint32
	idx := 0
	for l := 1; l <= maxLen; l++ {
		code <<= 1
		d.first[l] = code
		d.base[l] = idx
		code += uint32(d.count[l])
		idx += d.count[l]
	}

	d.syms = make([]int, total)
	next := make([]int, maxLen+1)
	copy(next, d.base)
	for sym, length := range lengths {
		if length > 0 {
			d.syms[next[length]] = sym
			next[length]++
		}
	}

	return d, nil
}

// Decode consumes bits from r and returns the matched symbol.
func (d *HuffmanDecoder) Decode(r *BitReader) (int, error) {
	var code uint32
	for l := 1; l <= d.maxLen; l++ {
		b, err := r.ReadBit()
		if err != nil {
			return 0, err
		}
		code = code<<1 | uint32(b)
		if n := d.count[l]; n > 0 && code >= d.first[l] && code < d.first[l]+uint32(n) {
			return d.syms[d.base[l]+int(code-d.first[l])], nil
		}
	}
	return 0, fmt.Errorf("%w: no symbol for bit sequence", ErrHuffman)
}
