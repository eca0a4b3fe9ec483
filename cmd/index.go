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

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forensicanalysis/browsercase"
	"github.com/forensicanalysis/browsercase/evidencefs"
)

// Index is the browsercase index commandline subcommand. It walks a mounted
// directory or every partition of a raw disk image and records the file
// paths in the case database, where discovery queries find them later.
func Index() *cobra.Command {
	var evidenceID int64
	var partition int
	var image string

	indexCommand := &cobra.Command{
		Use:   "index <case> [<directory>]",
		Short: "Record evidence file paths in the case database",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 {
				return fmt.Errorf("requires a case database")
			}
			if err := requireOneCase(cmd, args[:1]); err != nil {
				return err
			}
			if image == "" && len(args) != 2 {
				return fmt.Errorf("requires a directory argument or --image")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openCase(args)
			if err != nil {
				return err
			}
			defer db.Close()

			if image != "" {
				return indexImage(db, evidenceID, image)
			}

			handle := evidencefs.NewOsDirFS(args[1])
			n, err := indexPartition(db, evidenceID, partition, handle)
			if err != nil {
				return err
			}
			fmt.Printf("indexed %d files from %s as partition %d\n", n, args[1], partition)
			return nil
		},
	}
	indexCommand.Flags().Int64Var(&evidenceID, "evidence", 1, "evidence id")
	indexCommand.Flags().IntVar(&partition, "partition", 1, "partition index of the mounted directory")
	indexCommand.Flags().StringVar(&image, "image", "", "index a raw disk image instead of a directory")
	return indexCommand
}

func indexImage(db *browsercase.CaseDB, evidenceID int64, image string) error {
	opener := &evidencefs.ImageOpener{ImagePath: image}
	partitions, err := opener.Partitions()
	if err != nil {
		return err
	}
	for _, partition := range partitions {
		handle, err := opener.OpenPartition(partition)
		if err != nil {
			fmt.Printf("skipping partition %d: %v\n", partition, err)
			continue
		}
		n, err := indexPartition(db, evidenceID, partition, handle)
		handle.Close()
		if err != nil {
			return err
		}
		fmt.Printf("indexed %d files from partition %d of %s\n", n, partition, image)
	}
	return nil
}

func indexPartition(db *browsercase.CaseDB, evidenceID int64, partition int, handle evidencefs.Handle) (int, error) {
	paths, err := handle.WalkDirectory("/")
	if err != nil {
		return 0, err
	}

	rows := make([]browsercase.FileListRow, 0, len(paths))
	for _, p := range paths {
		var size int64
		if info, err := handle.Stat(p); err == nil {
			size = info.Size
		}
		rows = append(rows, browsercase.NewFileListRow(evidenceID, partition, strings.TrimPrefix(p, "/"), size))
	}
	if err := db.InsertFileList(rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}
