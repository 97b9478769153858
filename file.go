// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gounzip

import (
	"bytes"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"time"

	"github.com/lemon4ksan/gounzip/internal"
	"github.com/lemon4ksan/gounzip/internal/sys"
)

// General purpose bit flags consulted on the read path.
const (
	encryptedFlag      = 0x0001 // entry data is encrypted
	dataDescriptorFlag = 0x0008 // sizes and CRC follow the data
)

// Zip64ExtraFieldTag identifies the extra field that contains 64-bit size
// and offset information for files exceeding 4GB limits.
const Zip64ExtraFieldTag = internal.Zip64ExtraTag

// File represents one entry of a ZIP archive, parsed from its central
// directory record. Metadata accessors are pure; Data seeks the
// archive's shared bit cursor, so only one Data call per archive may be
// in flight at a time.
type File struct {
	archive *Archive

	name    string // decoded path, trailing slash trimmed for directories
	comment string

	isDir      bool
	mode       fs.FileMode
	hostSystem sys.HostSystem

	flags   uint16
	method  CompressionMethod
	dosTime uint16
	dosDate uint16
	modTime time.Time

	crc32             uint32
	compressedSize    int64
	uncompressedSize  int64
	localHeaderOffset int64
	externalAttrs     uint32
	extraField        map[uint16][]byte

	local *localInfo // lazily parsed local header, cached after first Data
}

// localInfo caches the outcome of reconciling the local file header.
type localInfo struct {
	dataOffset       int64 // first byte of the entry's data
	zip64            bool  // header carries a zip64 extra field
	crc32            uint32
	compressedSize   int64
	uncompressedSize int64
}

// Name returns the file's decoded path within the archive, using forward
// slashes. Directory entries have their trailing slash trimmed.
func (f *File) Name() string { return f.name }

// Comment returns the entry's comment from the central directory.
func (f *File) Comment() string { return f.comment }

// IsDir reports whether the entry is a directory. For archives made on
// MS-DOS or UNIX hosts this is the DOS directory attribute bit; for
// other hosts a zero-size entry whose stored name ends in a slash.
func (f *File) IsDir() bool { return f.isDir }

// Mode returns the entry's attributes translated to a file mode.
func (f *File) Mode() fs.FileMode { return f.mode }

// Size returns the uncompressed size declared in the central directory.
func (f *File) Size() int64 { return f.uncompressedSize }

// UncompressedSize returns the size of the original file content before compression.
func (f *File) UncompressedSize() int64 { return f.uncompressedSize }

// CompressedSize returns the size of the compressed data within the archive.
func (f *File) CompressedSize() int64 { return f.compressedSize }

// CRC32 returns the declared CRC-32 checksum of the uncompressed data.
func (f *File) CRC32() uint32 { return f.crc32 }

// Method returns the entry's compression method id.
func (f *File) Method() CompressionMethod { return f.method }

// HostSystem returns the system the file was created on.
func (f *File) HostSystem() sys.HostSystem { return f.hostSystem }

// ExternalAttributes returns the raw external attributes field.
func (f *File) ExternalAttributes() uint32 { return f.externalAttrs }

// ModTime returns the entry's DOS modification timestamp.
func (f *File) ModTime() time.Time { return f.modTime }

// HasExtraField checks whether an extra field with the specified tag exists.
func (f *File) HasExtraField(tag uint16) bool { _, ok := f.extraField[tag]; return ok }

// GetExtraField retrieves the raw bytes of an extra field by its tag ID.
func (f *File) GetExtraField(tag uint16) []byte { return f.extraField[tag] }

// Encrypted reports whether the entry's data is encrypted. Encrypted
// entries cannot be decoded; Data fails with ErrEncryption.
func (f *File) Encrypted() bool { return f.flags&encryptedFlag != 0 }

// Open returns a ReadCloser over the entry's verified content. The whole
// entry is decoded and checked up front; see Data.
func (f *File) Open() (io.ReadCloser, error) {
	data, err := f.Data()
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Data decodes and verifies the entry's content.
//
// It seeks the archive's shared reader to the local header, reconciles
// the header against the central directory, dispatches on the
// compression method, consumes an optional data descriptor, and checks
// the observed compressed size, the decoded size and the CRC32 against
// the declared values. On a checksum mismatch the returned error is a
// *ChecksumError carrying the decoded bytes.
func (f *File) Data() ([]byte, error) {
	a := f.archive
	a.cursorMu.Lock()
	defer a.cursorMu.Unlock()

	r := a.br

	local, err := f.loadLocalHeader(r)
	if err != nil {
		return nil, err
	}

	// With a data descriptor the local header's size and CRC fields are
	// zero; the central directory is authoritative. Otherwise the local
	// header's own values are used.
	hasDescriptor := f.flags&dataDescriptorFlag != 0
	declaredCRC := local.crc32
	declaredComp := local.compressedSize
	declaredUncomp := local.uncompressedSize
	if hasDescriptor {
		declaredCRC = f.crc32
		declaredComp = f.compressedSize
		declaredUncomp = f.uncompressedSize
	}

	if f.Encrypted() {
		return nil, fmt.Errorf("%w: %s", ErrEncryption, f.name)
	}

	dataStart := r.Offset()

	var decoded []byte
	switch f.method {
	case Stored:
		r.AlignToByte()
		decoded, err = r.ReadAlignedBytes(int(declaredUncomp))
		if err != nil {
			return nil, fmt.Errorf("read stored data: %w", err)
		}
	case Deflated:
		decoded, err = Inflate(r)
		if err != nil {
			return nil, err
		}
		r.AlignToByte()
	default:
		decoded, err = f.decompressRegion(r, declaredComp, declaredUncomp)
		if err != nil {
			return nil, err
		}
	}

	realCompSize := r.Offset() - dataStart

	if hasDescriptor {
		if err := f.readDataDescriptor(r, local.zip64); err != nil {
			return nil, err
		}
	}

	if declaredComp != realCompSize {
		return nil, fmt.Errorf("%w: compressed %d bytes, header declares %d", ErrSizeMismatch, realCompSize, declaredComp)
	}
	if int64(len(decoded)) != declaredUncomp {
		return nil, fmt.Errorf("%w: decoded %d bytes, header declares %d", ErrSizeMismatch, len(decoded), declaredUncomp)
	}

	if got := crc32.ChecksumIEEE(decoded); got != declaredCRC {
		return nil, &ChecksumError{Data: decoded, Got: got, Want: declaredCRC}
	}

	return decoded, nil
}

// loadLocalHeader positions the reader on the first data byte. The local
// header is parsed and reconciled once, then cached; later calls seek
// straight to the cached data offset.
func (f *File) loadLocalHeader(r *BitReader) (*localInfo, error) {
	if f.local != nil {
		if err := r.Seek(f.local.dataOffset); err != nil {
			return nil, err
		}
		return f.local, nil
	}

	if err := r.Seek(f.localHeaderOffset); err != nil {
		return nil, err
	}

	sig, err := r.ReadUintLE(4)
	if err != nil {
		return nil, fmt.Errorf("read local header: %w", err)
	}
	if uint32(sig) != internal.LocalFileHeaderSignature {
		return nil, fmt.Errorf("%w: expected local file header signature", ErrFormat)
	}

	h, err := internal.ReadLocalFileHeader(r)
	if err != nil {
		return nil, fmt.Errorf("local header: %w", mapEOF(err))
	}

	// The four fields echoed at the data's location must agree with the
	// central directory; a mismatch means the offset points at the wrong
	// entry or the archive was tampered with.
	if h.GeneralPurposeBitFlag != f.flags ||
		h.CompressionMethod != uint16(f.method) ||
		h.LastModFileTime != f.dosTime ||
		h.LastModFileDate != f.dosDate {
		return nil, fmt.Errorf("%w: %s", ErrLocalHeaderMismatch, f.name)
	}

	uncomp, comp := h.Zip64Sizes()
	f.local = &localInfo{
		dataOffset:       r.Offset(),
		zip64:            h.Zip64FieldsPresent(),
		crc32:            h.CRC32,
		compressedSize:   int64(comp),
		uncompressedSize: int64(uncomp),
	}
	return f.local, nil
}

// decompressRegion feeds the entry's compressed byte region to a
// registered decompressor (methods other than Stored and Deflated).
func (f *File) decompressRegion(r *BitReader, compSize, uncompSize int64) ([]byte, error) {
	dec, ok := f.archive.decompressor(f.method)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrAlgorithm, f.method)
	}

	r.AlignToByte()
	region, err := r.ReadAlignedBytes(int(compSize))
	if err != nil {
		return nil, fmt.Errorf("read compressed data: %w", err)
	}

	var rc io.ReadCloser
	if sized, ok := dec.(SizedDecompressor); ok {
		rc, err = sized.DecompressSized(bytes.NewReader(region), uncompSize)
	} else {
		rc, err = dec.Decompress(bytes.NewReader(region))
	}
	if err != nil {
		return nil, fmt.Errorf("decompress data: %w", err)
	}

	decoded, err := io.ReadAll(rc)
	if cerr := rc.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("decompress data: %w", err)
	}
	return decoded, nil
}

// readDataDescriptor consumes the trailer after the entry's data: an
// optional signature, then CRC32 and both sizes. Per APPNOTE 4.3.9 the
// size fields are 8 bytes wide when the entry is in zip64 format,
// detected from the local header's zip64 extra field.
func (f *File) readDataDescriptor(r *BitReader, zip64 bool) error {
	// The signature is optional; when the first word is not the
	// signature it already holds the CRC32 and the cursor stays put.
	first, err := r.ReadUintLE(4)
	if err != nil {
		return fmt.Errorf("read data descriptor: %w", err)
	}
	if uint32(first) == internal.DataDescriptorSignature {
		if _, err = r.ReadUintLE(4); err != nil {
			return fmt.Errorf("read data descriptor: %w", err)
		}
	}

	width := 4
	if zip64 {
		width = 8
	}
	if _, err = r.ReadUintLE(width); err != nil {
		return fmt.Errorf("read data descriptor: %w", err)
	}
	if _, err = r.ReadUintLE(width); err != nil {
		return fmt.Errorf("read data descriptor: %w", err)
	}
	return nil
}

// mapEOF converts io-level end-of-stream errors into ErrTruncated.
func mapEOF(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}
	return err
}
