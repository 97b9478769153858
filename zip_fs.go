// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gounzip

import (
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

var (
	_ fs.FS        = (*zipFS)(nil)
	_ fs.StatFS    = (*zipFS)(nil)
	_ fs.ReadDirFS = (*zipFS)(nil)
)

type zipFS struct {
	a *Archive
}

// Open implements fs.FS, allowing the archive to be used as a read-only filesystem.
func (zfs *zipFS) Open(name string) (fs.File, error) {
	entry, err := zfs.getFileEntry(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}

	if entry.isDir {
		return &fsDir{entry: entry, a: zfs.a}, nil
	}

	fsFile, err := newFsFile(entry)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}

	return fsFile, nil
}

// Stat implements fs.StatFS.
func (zfs *zipFS) Stat(name string) (fs.FileInfo, error) {
	entry, err := zfs.getFileEntry(name)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	return fileInfoAdapter{entry}, nil
}

// ReadDir implements fs.ReadDirFS.
func (zfs *zipFS) ReadDir(name string) ([]fs.DirEntry, error) {
	file, err := zfs.Open(name)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}
	defer file.Close()

	dir, ok := file.(fs.ReadDirFile)
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	return dir.ReadDir(-1)
}

// getFileEntry is a helper function to get the File entry for a given name.
// It handles the root directory, explicit files, and implicit directories.
func (zfs *zipFS) getFileEntry(name string) (*File, error) {
	// Backslash is not a separator in fs paths, unlike in Archive.File.
	if !fs.ValidPath(name) || strings.Contains(name, `\`) {
		return nil, fs.ErrInvalid
	}

	if name == "." {
		return &File{
			name:    ".",
			isDir:   true,
			mode:    fs.ModeDir | 0755,
			modTime: time.Now(),
		}, nil
	}

	if f, err := zfs.a.File(name); err == nil {
		return f, nil
	}

	if modTime, ok := zfs.implicitDirModTime(name); ok {
		return &File{
			name:    name,
			isDir:   true,
			mode:    fs.ModeDir | 0755,
			modTime: modTime,
		}, nil
	}

	return nil, fs.ErrNotExist
}

// implicitDirModTime reports whether name is a directory implied by the
// entries below it, and returns the modification time of the first such
// entry, which directory listings also use for it.
func (zfs *zipFS) implicitDirModTime(name string) (time.Time, bool) {
	prefix := name + "/"
	for _, f := range zfs.a.files {
		if strings.HasPrefix(f.name, prefix) {
			return f.modTime, true
		}
	}
	return time.Time{}, false
}

// fsFile wraps a regular compressed file to satisfy fs.File
type fsFile struct {
	entry *File
	rc    io.ReadCloser
}

func newFsFile(f *File) (*fsFile, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	return &fsFile{entry: f, rc: rc}, nil
}

func (f *fsFile) Stat() (fs.FileInfo, error) { return fileInfoAdapter{f.entry}, nil }
func (f *fsFile) Read(b []byte) (int, error) { return f.rc.Read(b) }
func (f *fsFile) Close() error               { return f.rc.Close() }

// fsDir wraps a directory entry to satisfy fs.ReadDirFile
type fsDir struct {
	entry *File
	a     *Archive

	// Listing state for partial ReadDir calls.
	listed  bool
	entries []fs.DirEntry
	pos     int
}

func (d *fsDir) Stat() (fs.FileInfo, error) { return fileInfoAdapter{d.entry}, nil }
func (d *fsDir) Close() error               { return nil }
func (d *fsDir) Read(b []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.entry.name, Err: fs.ErrInvalid}
}

// ReadDir searches the entry list to find the current dir's children.
// Positive n reads the listing in pieces, continuing across calls.
func (d *fsDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if !d.listed {
		d.entries = d.list()
		d.listed = true
	}

	if n <= 0 {
		rest := d.entries[d.pos:]
		d.pos = len(d.entries)
		return rest, nil
	}

	if d.pos >= len(d.entries) {
		return nil, io.EOF
	}
	end := min(d.pos+n, len(d.entries))
	part := d.entries[d.pos:end]
	d.pos = end
	return part, nil
}

// list enumerates the directory's direct children.
func (d *fsDir) list() []fs.DirEntry {
	dirPath := d.entry.name
	if dirPath == "." {
		dirPath = ""
	} else if !strings.HasSuffix(dirPath, "/") {
		dirPath += "/"
	}

	seen := make(map[string]bool)
	var entries []fs.DirEntry

	for _, f := range d.a.files {
		filename := f.name
		if f.isDir {
			filename += "/"
		}
		if !strings.HasPrefix(filename, dirPath) {
			continue
		}

		rel := strings.TrimPrefix(filename, dirPath)
		if rel == "" {
			continue
		}

		parts := strings.SplitN(rel, "/", 2)
		childName := parts[0]
		if childName == "" {
			continue
		}

		if seen[childName] {
			continue
		}
		seen[childName] = true

		isDir := len(parts) > 1 || f.isDir
		info := fileInfoAdapter{f}
		if len(parts) > 1 && !(f.isDir && parts[1] == "") {
			// The child is an intermediate directory; synthesize its
			// info instead of borrowing the descendant's.
			info = fileInfoAdapter{&File{
				name:    childName,
				isDir:   true,
				mode:    fs.ModeDir | 0755,
				modTime: f.modTime,
			}}
		}
		entries = append(entries, fsDirEntryAdapter{
			name:  childName,
			isDir: isDir,
			info:  info,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	return entries
}

type fileInfoAdapter struct{ f *File }

func (i fileInfoAdapter) Name() string       { return path.Base(i.f.name) }
func (i fileInfoAdapter) Size() int64        { return i.f.uncompressedSize }
func (i fileInfoAdapter) Mode() fs.FileMode  { return i.f.mode }
func (i fileInfoAdapter) ModTime() time.Time { return i.f.modTime }
func (i fileInfoAdapter) IsDir() bool        { return i.f.isDir }
func (i fileInfoAdapter) Sys() interface{}   { return nil }

type fsDirEntryAdapter struct {
	name  string
	isDir bool
	info  fs.FileInfo
}

func (e fsDirEntryAdapter) Name() string               { return e.name }
func (e fsDirEntryAdapter) IsDir() bool                { return e.isDir }
func (e fsDirEntryAdapter) Type() fs.FileMode          { return e.info.Mode().Type() }
func (e fsDirEntryAdapter) Info() (fs.FileInfo, error) { return e.info, nil }
