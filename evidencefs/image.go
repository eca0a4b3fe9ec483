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

package evidencefs

import (
	"io"
	"os"
	"path"
	"sort"
	"strings"

	diskfs "github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/filesystem"
	"github.com/forensicanalysis/fsdoublestar"
	"github.com/pkg/errors"
)

// ImageOpener opens partitions of a raw disk image. Each OpenPartition call
// opens the image anew, so the returned handle owns its resources and can be
// closed independently of any other partition.
type ImageOpener struct {
	ImagePath string
}

func (o *ImageOpener) OpenPartition(partitionIndex int) (Handle, error) {
	disk, err := diskfs.Open(o.ImagePath)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open image %s", o.ImagePath)
	}

	fs, err := disk.GetFilesystem(partitionIndex)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open partition %d of %s", partitionIndex, o.ImagePath)
	}

	return &imageHandle{disk: disk, fs: fs}, nil
}

// Partitions lists the partition indexes of the image, 1-based. An image
// without a partition table is reported as the single partition 0.
func (o *ImageOpener) Partitions() ([]int, error) {
	disk, err := diskfs.Open(o.ImagePath)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open image %s", o.ImagePath)
	}
	defer disk.Close()

	table, err := disk.GetPartitionTable()
	if err != nil {
		return []int{0}, nil
	}

	var indexes []int
	for i, partition := range table.GetPartitions() {
		if partition.GetSize() > 0 {
			indexes = append(indexes, i+1)
		}
	}
	return indexes, nil
}

type imageHandle struct {
	disk io.Closer
	fs   filesystem.FileSystem
}

func (h *imageHandle) IterPaths(glob string) ([]string, error) {
	all, err := h.WalkDirectory("/")
	if err != nil {
		return nil, err
	}
	glob = strings.TrimPrefix(glob, "/")
	var matches []string
	for _, p := range all {
		rel := strings.TrimPrefix(p, "/")
		if ok, err := fsdoublestar.PathMatch(glob, rel); err == nil && ok {
			matches = append(matches, rel)
		}
	}
	return matches, nil
}

func (h *imageHandle) WalkDirectory(dir string) ([]string, error) {
	var files []string
	var walk func(dir string) error
	walk = func(dir string) error {
		entries, err := h.fs.ReadDir(dir)
		if err != nil {
			return nil // unreadable directories are skipped
		}
		for _, entry := range entries {
			full := path.Join(dir, entry.Name())
			if entry.IsDir() {
				if err := walk(full); err != nil {
					return err
				}
				continue
			}
			files = append(files, full)
		}
		return nil
	}
	if dir == "" {
		dir = "/"
	}
	if err := walk(dir); err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func (h *imageHandle) ReadFile(p string) ([]byte, error) {
	f, err := h.fs.OpenFile(p, os.O_RDONLY)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s", p)
	}
	return io.ReadAll(f)
}

func (h *imageHandle) Stat(p string) (FileInfo, error) {
	entries, err := h.fs.ReadDir(path.Dir(p))
	if err != nil {
		return FileInfo{}, errors.Wrapf(err, "could not stat %s", p)
	}
	name := path.Base(p)
	for _, entry := range entries {
		if entry.Name() == name {
			return FileInfo{IsDir: entry.IsDir(), Size: entry.Size()}, nil
		}
	}
	return FileInfo{}, errors.Errorf("%s not found", p)
}

func (h *imageHandle) Close() error {
	return h.disk.Close()
}
