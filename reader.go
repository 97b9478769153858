// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gounzip

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"math"
	"strings"

	"golang.org/x/exp/mmap"

	"github.com/lemon4ksan/gounzip/internal"
	"github.com/lemon4ksan/gounzip/internal/sys"
)

// maxEOCDSearch bounds the backward scan for the end-of-central-directory
// record: the record itself plus the largest possible comment.
const maxEOCDSearch = internal.EndOfCentralDirLen + math.MaxUint16

// OpenOption configures archive parsing.
type OpenOption func(*openConfig)

type openConfig struct {
	textDecoder   TextDecoder
	decompressors decompressorsMap
	maxEntries    int64
}

// WithTextDecoder sets the decoder for non-UTF8 filenames and comments.
// The default decodes CP437.
func WithTextDecoder(d TextDecoder) OpenOption {
	return func(c *openConfig) { c.textDecoder = d }
}

// WithDecompressor registers a codec for a compression method before
// any entry is read, overriding a built-in one if present. Stored and
// Deflated entries are always decoded by the package itself; a codec
// registered for those methods is not used by File.Data.
func WithDecompressor(method CompressionMethod, d Decompressor) OpenOption {
	return func(c *openConfig) { c.decompressors[method] = d }
}

// WithMaxEntries caps the number of central directory entries parsed,
// guarding against forged entry counts. Zero means no cap.
func WithMaxEntries(n int64) OpenOption {
	return func(c *openConfig) { c.maxEntries = n }
}

// Open parses a ZIP archive held in memory and returns it as an Archive.
// The slice is borrowed for the lifetime of the Archive and must not be
// mutated.
func Open(data []byte, options ...OpenOption) (*Archive, error) {
	return OpenWithContext(context.Background(), data, options...)
}

// OpenWithContext parses an archive with context support. The context is
// checked between central directory entries.
func OpenWithContext(ctx context.Context, data []byte, options ...OpenOption) (*Archive, error) {
	config := openConfig{decompressors: builtinDecompressors()}
	for _, opt := range options {
		opt(&config)
	}

	reader := &zipReader{data: data, config: config}
	endDir, err := reader.findAndReadEndOfCentralDir()
	if err != nil {
		return nil, err
	}

	archive := &Archive{
		br:            NewBitReader(data),
		fileCache:     make(map[string]bool),
		decompressors: config.decompressors,
		comment:       endDir.Comment,
	}

	files, err := reader.readCentralDir(ctx, archive, endDir)
	if err != nil {
		return nil, err
	}

	archive.files = files
	for _, f := range files {
		key := f.name
		if f.isDir {
			key += "/"
		}
		archive.fileCache[key] = true
	}

	return archive, nil
}

// OpenReaderAt buffers an archive from an io.ReaderAt and parses it.
func OpenReaderAt(src io.ReaderAt, size int64, options ...OpenOption) (*Archive, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: negative size", ErrFormat)
	}
	data := make([]byte, size)
	if _, err := src.ReadAt(data, 0); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	return Open(data, options...)
}

// OpenFile memory-maps the archive at path and parses it. The mapping is
// released once the archive bytes have been captured.
func OpenFile(path string, options ...OpenOption) (*Archive, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	defer m.Close()
	return OpenReaderAt(m, int64(m.Len()), options...)
}

// endOfDirectory is the resolved central directory location after
// following any zip64 records.
type endOfDirectory struct {
	CentralDirOffset int64
	Entries          int64
	Comment          string
}

// zipReader handles low-level reading of ZIP archive structure.
type zipReader struct {
	data   []byte
	config openConfig
}

// findAndReadEndOfCentralDir scans backwards for the End of Central
// Directory record and reads it, following the zip64 locator when the
// 32-bit fields are saturated.
func (zr *zipReader) findAndReadEndOfCentralDir() (endOfDirectory, error) {
	size := int64(len(zr.data))
	if size < internal.EndOfCentralDirLen {
		return endOfDirectory{}, fmt.Errorf("%w: file too small", ErrFormat)
	}

	searchLimit := max(0, size-maxEOCDSearch)

	// Scan backwards: the parseable record closest to the end wins. A
	// signature inside the archive comment, at least a record's length
	// before the end, is taken instead of the real record if the bytes
	// after it parse.
	eocdPos := int64(-1)
	var end internal.EndOfCentralDirectory
	for pos := size - internal.EndOfCentralDirLen; pos >= searchLimit; pos-- {
		if binary.LittleEndian.Uint32(zr.data[pos:pos+4]) != internal.EndOfCentralDirSignature {
			continue
		}
		rec, err := internal.ReadEndOfCentralDir(bytes.NewReader(zr.data[pos+4:]))
		if err != nil {
			continue
		}
		end = rec
		eocdPos = pos
		break
	}
	if eocdPos < 0 {
		return endOfDirectory{}, fmt.Errorf("%w: no end of central directory signature found", ErrFormat)
	}

	if end.ThisDiskNum != 0 || end.DiskNumWithTheStartOfCentralDir != 0 {
		return endOfDirectory{}, fmt.Errorf("%w: multi-disk archive", ErrFeature)
	}

	result := endOfDirectory{
		CentralDirOffset: int64(end.CentralDirOffset),
		Entries:          int64(end.TotalNumberOfEntries),
		Comment:          end.Comment,
	}

	if end.CentralDirOffset == math.MaxUint32 || end.TotalNumberOfEntries == math.MaxUint16 || end.CentralDirSize == math.MaxUint32 {
		zip64End, err := zr.readZip64EndOfCentralDir(eocdPos)
		if err != nil {
			return endOfDirectory{}, err
		}
		result.CentralDirOffset = int64(zip64End.CentralDirOffset)
		result.Entries = int64(zip64End.TotalNumberOfEntries)
	}

	return result, nil
}

// readZip64EndOfCentralDir locates the zip64 EOCD through the locator
// record that directly precedes the standard EOCD.
func (zr *zipReader) readZip64EndOfCentralDir(eocdPos int64) (internal.Zip64EndOfCentralDirectory, error) {
	var zip64End internal.Zip64EndOfCentralDirectory

	locatorOffset := eocdPos - internal.Zip64LocatorLen
	if locatorOffset < 0 {
		return zip64End, fmt.Errorf("%w: invalid zip64 locator offset", ErrFormat)
	}
	if binary.LittleEndian.Uint32(zr.data[locatorOffset:locatorOffset+4]) != internal.Zip64EndOfCentralDirLocatorSignature {
		return zip64End, fmt.Errorf("%w: expected zip64 end of central directory locator signature", ErrFormat)
	}

	locator, err := internal.ReadZip64EndOfCentralDirLocator(bytes.NewReader(zr.data[locatorOffset+4:]))
	if err != nil {
		return zip64End, fmt.Errorf("read zip64 end of central dir locator: %w", mapEOF(err))
	}
	if locator.TotalNumberOfDisks > 1 {
		return zip64End, fmt.Errorf("%w: multi-disk archive", ErrFeature)
	}

	offset := int64(locator.Zip64EndOfCentralDirOffset)
	if offset < 0 || offset+4 > int64(len(zr.data)) {
		return zip64End, fmt.Errorf("%w: invalid zip64 end of central directory offset", ErrFormat)
	}
	if binary.LittleEndian.Uint32(zr.data[offset:offset+4]) != internal.Zip64EndOfCentralDirSignature {
		return zip64End, fmt.Errorf("%w: expected zip64 end of central directory signature", ErrFormat)
	}

	zip64End, err = internal.ReadZip64EndOfCentralDir(bytes.NewReader(zr.data[offset+4:]))
	if err != nil {
		return zip64End, fmt.Errorf("read zip64 end of central dir: %w", mapEOF(err))
	}
	return zip64End, nil
}

// readCentralDir reads the central directory entries starting at the
// resolved offset. Checks context cancellation between entries.
func (zr *zipReader) readCentralDir(ctx context.Context, archive *Archive, endDir endOfDirectory) ([]*File, error) {
	size := int64(len(zr.data))
	if endDir.CentralDirOffset < 0 || endDir.CentralDirOffset > size {
		return nil, fmt.Errorf("%w: central directory offset %d outside archive", ErrFormat, endDir.CentralDirOffset)
	}
	if zr.config.maxEntries > 0 && endDir.Entries > zr.config.maxEntries {
		return nil, fmt.Errorf("%w: %d entries exceed configured cap %d", ErrFormat, endDir.Entries, zr.config.maxEntries)
	}
	if endDir.Entries*internal.CentralDirectoryLen > size-endDir.CentralDirOffset {
		return nil, fmt.Errorf("%w: central directory truncated", ErrTruncated)
	}

	cd := bytes.NewReader(zr.data[endDir.CentralDirOffset:])

	files := make([]*File, 0, endDir.Entries)
	for i := int64(0); i < endDir.Entries; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !verifySignature(cd, internal.CentralDirectorySignature) {
			return nil, fmt.Errorf("%w: expected central directory signature at entry %d", ErrFormat, i)
		}

		entry, err := internal.ReadCentralDirEntry(cd)
		if err != nil {
			return nil, fmt.Errorf("decode central dir entry: %w", mapEOF(err))
		}

		files = append(files, zr.newFileFromCentralDir(archive, entry))
	}

	return files, nil
}

// newFileFromCentralDir creates a File struct from a central directory entry.
func (zr *zipReader) newFileFromCentralDir(archive *Archive, entry internal.CentralDirectory) *File {
	filename := decodeText(entry.Filename, entry.GeneralPurposeBitFlag, zr.config.textDecoder)
	comment := decodeText(entry.Comment, entry.GeneralPurposeBitFlag, zr.config.textDecoder)

	uncompressedSize, compressedSize, localHeaderOffset := entry.Zip64Fields()
	hostSystem := sys.HostSystem(entry.VersionMadeBy >> 8)

	// MS-DOS and UNIX hosts mark directories with the DOS attribute
	// bit; other hosts only through a zero-size entry named with a
	// trailing slash.
	var isDir bool
	if hostSystem == sys.HostSystemFAT || hostSystem == sys.HostSystemUNIX {
		isDir = entry.ExternalFileAttributes&sys.DOSAttrDirectory != 0
	} else {
		isDir = uncompressedSize == 0 && strings.HasSuffix(entry.Filename, "/")
	}

	return &File{
		archive:           archive,
		name:              strings.TrimSuffix(filename, "/"),
		comment:           comment,
		isDir:             isDir,
		mode:              parseFileExternalAttributes(entry),
		hostSystem:        hostSystem,
		flags:             entry.GeneralPurposeBitFlag,
		method:            CompressionMethod(entry.CompressionMethod),
		dosTime:           entry.LastModFileTime,
		dosDate:           entry.LastModFileDate,
		modTime:           msDosToTime(entry.LastModFileDate, entry.LastModFileTime),
		crc32:             entry.CRC32,
		compressedSize:    int64(compressedSize),
		uncompressedSize:  int64(uncompressedSize),
		localHeaderOffset: int64(localHeaderOffset),
		externalAttrs:     entry.ExternalFileAttributes,
		extraField:        entry.ExtraField,
	}
}

// verifySignature checks whether the next 4 bytes match the given signature.
func verifySignature(r io.Reader, s uint32) bool {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return false
	}
	return binary.LittleEndian.Uint32(buf) == s
}

// parseFileExternalAttributes translates the external attributes to a
// file mode, selecting the POSIX or DOS bit layout by host system.
func parseFileExternalAttributes(entry internal.CentralDirectory) fs.FileMode {
	var mode fs.FileMode
	hostSystem := sys.HostSystem(entry.VersionMadeBy >> 8)

	if hostSystem.IsUnix() {
		unixMode := uint32(entry.ExternalFileAttributes >> 16)
		mode = fs.FileMode(unixMode & 0777)

		switch unixMode & sys.S_IFMT {
		case sys.S_IFDIR:
			mode |= fs.ModeDir
		case sys.S_IFLNK:
			mode |= fs.ModeSymlink
		case sys.S_IFSOCK:
			mode |= fs.ModeSocket
		case sys.S_IFIFO:
			mode |= fs.ModeNamedPipe
		case sys.S_IFCHR:
			mode |= fs.ModeCharDevice
		case sys.S_IFBLK:
			mode |= fs.ModeDevice
		}
		return mode
	}

	if hostSystem.IsDOS() {
		isDir := strings.HasSuffix(entry.Filename, "/") || (entry.ExternalFileAttributes&sys.DOSAttrDirectory != 0)

		if isDir {
			mode = 0755 | fs.ModeDir
		} else {
			mode = 0644
		}

		if entry.ExternalFileAttributes&sys.DOSAttrReadOnly != 0 {
			mode &^= 0222 // Remove write permission (a-w)
		}
		return mode
	}

	if strings.HasSuffix(entry.Filename, "/") {
		return 0755 | fs.ModeDir
	}
	return 0644
}
