// Copyright (c) 2020 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Author(s): Jonas Plum

// Package evidencefs gives extractors read-only access to the partitions of
// an evidence item. Partition handles are scoped resources: acquire one per
// partition loop iteration and close it on every exit path before opening
// the next, since image handles can be a limited resource.
package evidencefs

import (
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/forensicanalysis/fsdoublestar"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// FileInfo is the subset of stat data extractors need.
type FileInfo struct {
	IsDir bool
	Size  int64
}

// FS is a read-only view of one partition.
type FS interface {
	// IterPaths returns the file paths matching a glob pattern. Paths are
	// evidence-normalized: forward slashes, no leading slash.
	IterPaths(glob string) ([]string, error)
	// WalkDirectory returns every file path below dir.
	WalkDirectory(dir string) ([]string, error)
	// ReadFile returns the content of one file.
	ReadFile(path string) ([]byte, error)
	// Stat returns file info for one path.
	Stat(path string) (FileInfo, error)
}

// Handle is a scoped partition view. Close releases the underlying image
// resources and must be called before the next partition is opened.
type Handle interface {
	FS
	io.Closer
}

// Opener opens one partition of an evidence item at a time.
type Opener interface {
	OpenPartition(partitionIndex int) (Handle, error)
}

// DirFS serves a partition that is already mounted as a directory tree.
type DirFS struct {
	fs afero.Fs
}

// NewDirFS wraps an afero filesystem as a partition view.
func NewDirFS(fs afero.Fs) *DirFS {
	return &DirFS{fs: fs}
}

// NewOsDirFS serves a host directory as a partition view.
func NewOsDirFS(dir string) *DirFS {
	return &DirFS{fs: afero.NewBasePathFs(afero.NewReadOnlyFs(afero.NewOsFs()), dir)}
}

func (d *DirFS) IterPaths(glob string) ([]string, error) {
	// io/fs rejects rooted patterns
	glob = normalize(glob)
	matches, err := fsdoublestar.Glob(afero.NewIOFS(d.fs), glob)
	if err != nil {
		return nil, errors.Wrapf(err, "glob %q failed", glob)
	}
	var files []string
	for _, match := range matches {
		info, err := d.fs.Stat(match)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, normalize(match))
	}
	sort.Strings(files)
	return files, nil
}

func (d *DirFS) WalkDirectory(dir string) ([]string, error) {
	var files []string
	err := afero.Walk(d.fs, dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if !info.IsDir() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walk %q failed", dir)
	}
	sort.Strings(files)
	return files, nil
}

func (d *DirFS) ReadFile(p string) ([]byte, error) {
	return afero.ReadFile(d.fs, p)
}

func (d *DirFS) Stat(p string) (FileInfo, error) {
	info, err := d.fs.Stat(p)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{IsDir: info.IsDir(), Size: info.Size()}, nil
}

// Close is a no-op; directory trees hold no scarce handles.
func (d *DirFS) Close() error {
	return nil
}

// DirOpener maps partition indexes to mounted directory trees. Partition 0
// falls back to the default filesystem when no explicit mapping exists.
type DirOpener struct {
	Partitions map[int]afero.Fs
	Default    afero.Fs
}

func (o *DirOpener) OpenPartition(partitionIndex int) (Handle, error) {
	if fs, ok := o.Partitions[partitionIndex]; ok {
		return NewDirFS(fs), nil
	}
	if partitionIndex == 0 && o.Default != nil {
		return NewDirFS(o.Default), nil
	}
	return nil, errors.Errorf("no filesystem mounted for partition %d", partitionIndex)
}

// normalize makes evidence paths comparable: forward slashes, no leading
// slash, no duplicate separators.
func normalize(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	return strings.Trim(p, "/")
}

// Base returns the final path segment of an evidence path.
func Base(p string) string {
	return path.Base("/" + normalize(p))
}
