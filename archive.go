// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gounzip reads ZIP archives with its own DEFLATE, Huffman and
// bit-level machinery.
//
// The package parses the central directory eagerly and decodes entry
// data on demand, verifying structural invariants (local header
// reconciliation, compressed and uncompressed sizes) and the CRC32 of
// every decoded entry. DEFLATE streams are inflated by the package's
// canonical Huffman decoder over an LSB-first bit cursor; BZip2, LZMA
// and Zstandard entries are delegated to registered codecs, and callers
// can add their own with RegisterDecompressor.
//
// # Basic Usage
//
//	archive, _ := gounzip.OpenFile("release.zip")
//	for _, f := range archive.Files() {
//		if f.IsDir() {
//			continue
//		}
//		data, err := f.Data() // decoded and CRC-checked
//		...
//	}
//
// The archive can also be accessed as a read-only filesystem through
// the [fs.FS] interface:
//
//	fsys := archive.FS()
//	data, _ := fs.ReadFile(fsys, "docs/readme.md")
//
// # Concurrency
//
// Entry metadata is read-only and safe to share. Data calls are
// serialized per archive because they move a shared cursor over the
// archive bytes; to extract in parallel, open independent Archive views
// over the same byte slice.
package gounzip

import (
	"io"
	"io/fs"
	"path"
	"strings"
	"sync"
)

// Archive is a parsed ZIP archive held fully in memory.
type Archive struct {
	mu            sync.RWMutex     // guards decompressors
	cursorMu      sync.Mutex       // serializes Data over the shared bit cursor
	br            *BitReader       // shared cursor over the archive bytes
	files         []*File          // entries in central directory order
	fileCache     map[string]bool  // lookup map for existence checks (normalized paths)
	decompressors decompressorsMap // registered decompression codecs
	comment       string           // archive-level comment from the EOCD
}

// Comment returns the archive-level comment.
func (a *Archive) Comment() string { return a.comment }

// Files returns a copy of the list of entries in the archive.
func (a *Archive) Files() []*File {
	result := make([]*File, len(a.files))
	copy(result, a.files)
	return result
}

// File returns the entry matching the given name.
// Name is case-sensitive and normalized to forward slashes.
// Returns ErrFileNotFound if no exact match is found.
func (a *Archive) File(name string) (*File, error) {
	searchName := normalizePath(name)

	if !a.fileCache[searchName] && !a.fileCache[searchName+"/"] {
		return nil, ErrFileNotFound
	}

	for _, f := range a.files {
		if f.name == searchName {
			return f, nil
		}
	}

	return nil, ErrFileNotFound
}

// Exists checks if a file or directory exists in the archive.
// A directory entry matches with or without its trailing slash;
// directories implied only by the paths of other entries are not
// reported.
func (a *Archive) Exists(name string) bool {
	key := normalizePath(name)
	return a.fileCache[key] || a.fileCache[key+"/"]
}

// Glob returns all files whose names match the specified shell pattern.
// Pattern syntax is identical to [path.Match].
func (a *Archive) Glob(pattern string) ([]*File, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}

	if !hasMeta(pattern) {
		if f, err := a.File(pattern); err == nil {
			return []*File{f}, nil
		}
		return nil, nil
	}

	var matches []*File
	for _, f := range a.files {
		if matched, _ := path.Match(pattern, f.name); matched {
			matches = append(matches, f)
		}
	}

	return matches, nil
}

// Find searches for files matching the pattern in all directories.
// Unlike Glob, the pattern is applied to base names only.
// Example: Find("*.log") matches "error.log" AND "var/logs/access.log".
func (a *Archive) Find(pattern string) ([]*File, error) {
	pattern = strings.ReplaceAll(pattern, "\\", "/")

	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}

	var matches []*File
	for _, f := range a.files {
		if matched, _ := path.Match(pattern, path.Base(f.name)); matched {
			matches = append(matches, f)
		}
	}

	return matches, nil
}

// OpenFile returns a ReadCloser for the named regular file within the
// archive. Returns ErrFileNotFound if not found.
func (a *Archive) OpenFile(name string) (io.ReadCloser, error) {
	f, err := a.File(name)
	if err != nil {
		return nil, err
	}
	if f.isDir {
		return nil, ErrFileNotFound
	}
	return f.Open()
}

// FS returns fs.FS for reading archive content.
func (a *Archive) FS() fs.FS {
	return &zipFS{a: a}
}

// RegisterDecompressor adds support for reading a custom compression
// method, or overrides a built-in one. Stored and Deflated entries are
// always decoded by the package itself; a codec registered for those
// methods is not used by File.Data.
func (a *Archive) RegisterDecompressor(method CompressionMethod, d Decompressor) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.decompressors[method] = d
}

// decompressor looks up the codec registered for a method.
func (a *Archive) decompressor(method CompressionMethod) (Decompressor, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	d, ok := a.decompressors[method]
	return d, ok
}

// normalizePath cleans a lookup path to the archive's internal form.
func normalizePath(name string) string {
	return strings.TrimPrefix(path.Clean(strings.ReplaceAll(name, "\\", "/")), "/")
}
