// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gounzip

import (
	"errors"
	"reflect"
	"testing"
)

func TestCanonicalCodeAssignment(t *testing.T) {
	// Lengths [3,3,3,3,3,2,4,4] by symbol. Sorted by (length, symbol)
	// the canonical MSB-first codes are:
	//   5 -> 00, 0 -> 010, 1 -> 011, 2 -> 100, 3 -> 101, 4 -> 110,
	//   6 -> 1110, 7 -> 1111
	// The stored patterns are their bit-reversals.
	enc, err := NewHuffmanEncoder(DenseCodeLengths([]int{3, 3, 3, 3, 3, 2, 4, 4}))
	if err != nil {
		t.Fatal(err)
	}

	want := []struct {
		symbol  int
		pattern uint32
		length  int
	}{
		{5, 0b00, 2},
		{0, 0b010, 3},
		{1, 0b110, 3},
		{2, 0b001, 3},
		{3, 0b101, 3},
		{4, 0b011, 3},
		{6, 0b0111, 4},
		{7, 0b1111, 4},
	}

	for _, w := range want {
		pattern, length, ok := enc.Code(w.symbol)
		if !ok {
			t.Fatalf("symbol %d has no code", w.symbol)
		}
		if pattern != w.pattern || length != w.length {
			t.Errorf("symbol %d: got (%#b, %d), want (%#b, %d)",
				w.symbol, pattern, length, w.pattern, w.length)
		}
	}
}

func TestCanonicalCodeDeterminism(t *testing.T) {
	lengths := []int{4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4}

	a, err := NewHuffmanEncoder(DenseCodeLengths(lengths))
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewHuffmanEncoder(DenseCodeLengths(lengths))
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(a.codes, b.codes) {
		t.Error("two constructions over the same lengths differ")
	}
}

func TestReverseBitsInvolution(t *testing.T) {
	for n := 1; n <= 12; n++ {
		for x := uint32(0); x < 1<<n; x += 7 {
			if got := reverseBits(reverseBits(x, n), n); got != x {
				t.Fatalf("reverse_%d(reverse_%d(%#b)) = %#b", n, n, x, got)
			}
		}
	}
	if reverseBits(0, 0) != 0 {
		t.Error("zero-width reversal must be zero")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	// A complete code (Kraft equality) over 8 symbols.
	lengths := []int{3, 3, 3, 3, 3, 2, 4, 4}

	enc, err := NewHuffmanEncoder(DenseCodeLengths(lengths))
	if err != nil {
		t.Fatal(err)
	}
	dec, err := NewHuffmanDecoder(lengths)
	if err != nil {
		t.Fatal(err)
	}

	symbols := []int{5, 0, 7, 2, 2, 6, 1, 4, 3, 5, 5, 0}

	w := NewBitWriter()
	for _, s := range symbols {
		if err := enc.Encode(w, s); err != nil {
			t.Fatalf("encode %d: %v", s, err)
		}
	}

	r := NewBitReader(w.Finish())
	for i, want := range symbols {
		got, err := dec.Decode(r)
		if err != nil {
			t.Fatalf("decode %d: %v", i, err)
		}
		if got != want {
			t.Errorf("symbol %d: got %d, want %d", i, got, want)
		}
	}
}

func TestBootstrapCodeLengths(t *testing.T) {
	// The fixed literal/length assignment expressed as breakpoints.
	pairs := []CodeLength{
		{0, 8}, {144, 9}, {256, 7}, {280, 8}, {288, -1},
	}

	records, err := BootstrapCodeLengths(pairs)
	if err != nil {
		t.Fatal(err)
	}

	want := DenseCodeLengths(fixedLitLengths())
	if !reflect.DeepEqual(records, want) {
		t.Error("bootstrap expansion does not match the dense form")
	}
}

func TestBootstrapSkipsZeroRanges(t *testing.T) {
	pairs := []CodeLength{{0, 2}, {2, 0}, {6, 2}, {8, -1}}

	records, err := BootstrapCodeLengths(pairs)
	if err != nil {
		t.Fatal(err)
	}

	want := []CodeLength{{0, 2}, {1, 2}, {6, 2}, {7, 2}}
	if !reflect.DeepEqual(records, want) {
		t.Errorf("got %v, want %v", records, want)
	}
}

func TestBootstrapErrors(t *testing.T) {
	if _, err := BootstrapCodeLengths([]CodeLength{{0, 3}}); err == nil {
		t.Error("single pair: expected error")
	}
	if _, err := BootstrapCodeLengths([]CodeLength{{0, 3}, {4, 2}}); err == nil {
		t.Error("missing sentinel: expected error")
	}
	if _, err := BootstrapCodeLengths([]CodeLength{{4, 3}, {0, -1}}); err == nil {
		t.Error("descending symbols: expected error")
	}
}

func TestDenseCodeLengthsTerminator(t *testing.T) {
	records := DenseCodeLengths([]int{2, 3, -1, 5})
	want := []CodeLength{{0, 2}, {1, 3}}
	if !reflect.DeepEqual(records, want) {
		t.Errorf("got %v, want %v", records, want)
	}
}

func TestEncodeUnassignedSymbol(t *testing.T) {
	enc, err := NewHuffmanEncoder([]CodeLength{{0, 1}, {1, 1}, {5, 0}})
	if err != nil {
		t.Fatal(err)
	}

	w := NewBitWriter()
	if err := enc.Encode(w, 5); !errors.Is(err, ErrSymbolNotAssigned) {
		t.Errorf("zero-length symbol: got %v, want ErrSymbolNotAssigned", err)
	}
	if err := enc.Encode(w, 42); !errors.Is(err, ErrSymbolNotAssigned) {
		t.Errorf("out-of-range symbol: got %v, want ErrSymbolNotAssigned", err)
	}
}

func TestBitCost(t *testing.T) {
	enc, err := NewHuffmanEncoder(DenseCodeLengths([]int{1, 2, 2}))
	if err != nil {
		t.Fatal(err)
	}

	cost, err := enc.BitCost([]SymbolCount{{0, 10}, {1, 4}, {2, 1}})
	if err != nil {
		t.Fatal(err)
	}
	if want := int64(10*1 + 4*2 + 1*2); cost != want {
		t.Errorf("BitCost = %d, want %d", cost, want)
	}

	if _, err := enc.BitCost([]SymbolCount{{9, 1}}); !errors.Is(err, ErrSymbolNotAssigned) {
		t.Errorf("unassigned symbol: got %v, want ErrSymbolNotAssigned", err)
	}
}

func TestDecoderRejectsMalformedLengths(t *testing.T) {
	tests := []struct {
		name    string
		lengths []int
	}{
		{"Over-subscribed", []int{1, 1, 1}},
		{"Incomplete", []int{2, 2, 2}},
		{"Negative length", []int{1, -2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewHuffmanDecoder(tt.lengths); !errors.Is(err, ErrHuffman) {
				t.Errorf("got %v, want ErrHuffman", err)
			}
		})
	}
}

func TestDecoderDegenerateSingleCode(t *testing.T) {
	dec, err := NewHuffmanDecoder([]int{0, 1})
	if err != nil {
		t.Fatalf("degenerate single-symbol code rejected: %v", err)
	}

	r := NewBitReader([]byte{0b10})
	sym, err := dec.Decode(r)
	if err != nil || sym != 1 {
		t.Errorf("Decode = %d, %v; want 1, nil", sym, err)
	}
	// The unassigned one-bit sequence must not decode.
	if _, err := dec.Decode(r); !errors.Is(err, ErrHuffman) {
		t.Errorf("unassigned prefix: got %v, want ErrHuffman", err)
	}
}

func TestDecoderEmptyTable(t *testing.T) {
	dec, err := NewHuffmanDecoder([]int{0, 0, 0})
	if err != nil {
		t.Fatalf("all-zero lengths rejected: %v", err)
	}
	if _, err := dec.Decode(NewBitReader([]byte{0xFF})); !errors.Is(err, ErrHuffman) {
		t.Errorf("empty table decode: got %v, want ErrHuffman", err)
	}
}

func TestZeroLengthSymbolsNeverDecoded(t *testing.T) {
	// Symbol 1 is absent; every decoded symbol must be 0 or 2.
	lengths := []int{1, 0, 1}

	dec, err := NewHuffmanDecoder(lengths)
	if err != nil {
		t.Fatal(err)
	}

	r := NewBitReader([]byte{0b10})
	for _, want := range []int{0, 2} {
		got, err := dec.Decode(r)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("got %d, want %d", got, want)
		}
	}
}

func TestKraftEqualityRoundTrip(t *testing.T) {
	// Several complete length vectors; encoder followed by decoder must
	// round-trip every assigned symbol.
	vectors := [][]int{
		{1, 1},
		{2, 2, 2, 2},
		{1, 2, 3, 3},
		{3, 3, 3, 3, 3, 2, 4, 4},
		{2, 0, 2, 0, 3, 3, 2},
	}

	for _, lengths := range vectors {
		enc, err := NewHuffmanEncoder(DenseCodeLengths(lengths))
		if err != nil {
			t.Fatalf("%v: %v", lengths, err)
		}
		dec, err := NewHuffmanDecoder(lengths)
		if err != nil {
			t.Fatalf("%v: %v", lengths, err)
		}

		w := NewBitWriter()
		var sent []int
		for sym, l := range lengths {
			if l == 0 {
				continue
			}
			if err := enc.Encode(w, sym); err != nil {
				t.Fatalf("%v: encode %d: %v", lengths, sym, err)
			}
			sent = append(sent, sym)
		}

		r := NewBitReader(w.Finish())
		for _, want := range sent {
			got, err := dec.Decode(r)
			if err != nil {
				t.Fatalf("%v: decode: %v", lengths, err)
			}
			if got != want {
				t.Fatalf("%v: got %d, want %d", lengths, got, want)
			}
		}
	}
}
