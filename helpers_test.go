// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gounzip

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"testing"
	"time"

	"github.com/lemon4ksan/gounzip/internal"
)

// Fixed timestamp shared by all test fixtures.
var testModTime = time.Date(2024, time.May, 1, 12, 30, 0, 0, time.UTC)

// testEntry describes one archive entry for buildArchive.
type testEntry struct {
	name           string
	data           []byte            // uncompressed content
	compData       []byte            // compressed form; derived from data when nil
	method         CompressionMethod
	flags          uint16
	comment        string
	versionMadeBy  uint16 // defaults to UNIX host, spec 6.3
	externalAttrs  uint32
	dataDescriptor bool // trail CRC and sizes after the data
	descriptorSig  bool // prefix the descriptor with its signature
	localMethod    *uint16 // override the local header's method field
}

// deflateStored produces a valid DEFLATE stream holding data in a single
// stored block.
func deflateStored(t *testing.T, data []byte) []byte {
	t.Helper()
	if len(data) > 0xFFFF {
		t.Fatalf("stored block too large: %d", len(data))
	}
	w := NewBitWriter()
	w.WriteBit(1)     // BFINAL
	w.WriteBits(0, 2) // BTYPE=00
	w.AlignToByte()
	hdr := []byte{byte(len(data)), byte(len(data) >> 8), ^byte(len(data)), ^byte(len(data) >> 8)}
	if err := w.WriteAlignedBytes(append(hdr, data...)); err != nil {
		t.Fatal(err)
	}
	return w.Finish()
}

// deflateFixed produces a DEFLATE stream of fixed-Huffman literals.
func deflateFixed(t *testing.T, data []byte) []byte {
	t.Helper()
	lit, err := NewHuffmanEncoder(DenseCodeLengths(fixedLitLengths()))
	if err != nil {
		t.Fatal(err)
	}
	w := NewBitWriter()
	w.WriteBit(1)
	w.WriteBits(1, 2)
	for _, c := range data {
		if err := lit.Encode(w, int(c)); err != nil {
			t.Fatal(err)
		}
	}
	if err := lit.Encode(w, endBlockMarker); err != nil {
		t.Fatal(err)
	}
	return w.Finish()
}

// buildArchive serializes the entries into a complete ZIP archive with
// local headers, data, central directory and EOCD record.
func buildArchive(t *testing.T, entries []testEntry, comment string) []byte {
	t.Helper()

	dosDate, dosTime := timeToMsDos(testModTime)
	var buf bytes.Buffer
	var central []internal.CentralDirectory

	for _, e := range entries {
		comp := e.compData
		if comp == nil {
			switch e.method {
			case Stored:
				comp = e.data
			case Deflated:
				comp = deflateStored(t, e.data)
			default:
				t.Fatalf("entry %s: no compressed data for method %d", e.name, e.method)
			}
		}
		crc := crc32.ChecksumIEEE(e.data)

		flags := e.flags
		if e.dataDescriptor {
			flags |= dataDescriptorFlag
		}
		versionMadeBy := e.versionMadeBy
		if versionMadeBy == 0 {
			versionMadeBy = 3<<8 | 63
		}
		localMethod := uint16(e.method)
		if e.localMethod != nil {
			localMethod = *e.localMethod
		}

		localOffset := buf.Len()

		local := internal.LocalFileHeader{
			VersionNeededToExtract: 20,
			GeneralPurposeBitFlag:  flags,
			CompressionMethod:      localMethod,
			LastModFileTime:        dosTime,
			LastModFileDate:        dosDate,
			CRC32:                  crc,
			CompressedSize:         uint32(len(comp)),
			UncompressedSize:       uint32(len(e.data)),
			Filename:               e.name,
		}
		if e.dataDescriptor {
			local.CRC32 = 0
			local.CompressedSize = 0
			local.UncompressedSize = 0
		}
		buf.Write(local.Encode())
		buf.Write(comp)

		if e.dataDescriptor {
			if e.descriptorSig {
				binary.Write(&buf, binary.LittleEndian, internal.DataDescriptorSignature)
			}
			binary.Write(&buf, binary.LittleEndian, crc)
			binary.Write(&buf, binary.LittleEndian, uint32(len(comp)))
			binary.Write(&buf, binary.LittleEndian, uint32(len(e.data)))
		}

		central = append(central, internal.CentralDirectory{
			VersionMadeBy:          versionMadeBy,
			VersionNeededToExtract: 20,
			GeneralPurposeBitFlag:  flags,
			CompressionMethod:      uint16(e.method),
			LastModFileTime:        dosTime,
			LastModFileDate:        dosDate,
			CRC32:                  crc,
			CompressedSize:         uint32(len(comp)),
			UncompressedSize:       uint32(len(e.data)),
			ExternalFileAttributes: e.externalAttrs,
			LocalHeaderOffset:      uint32(localOffset),
			Filename:               e.name,
			Comment:                e.comment,
		})
	}

	cdOffset := buf.Len()
	for _, cd := range central {
		buf.Write(cd.Encode())
	}
	cdSize := buf.Len() - cdOffset

	buf.Write(internal.EncodeEndOfCentralDirRecord(len(entries), uint64(cdSize), uint64(cdOffset), comment))

	return buf.Bytes()
}
