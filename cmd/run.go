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

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/forensicanalysis/browsercase/evidencefs"
	"github.com/forensicanalysis/browsercase/pipeline"
	"github.com/forensicanalysis/browsercase/sessions"
)

// Discover is the browsercase discover commandline subcommand
func Discover() *cobra.Command {
	var evidenceID int64
	var browsers []string

	discoverCommand := &cobra.Command{
		Use:   "discover <case>",
		Short: "List session files found in the indexed evidence",
		Args:  requireOneCase,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openCase(args)
			if err != nil {
				return err
			}
			defer db.Close()

			extractor := sessions.New(db, evidenceID, browsers)
			result := extractor.Discover()
			fmt.Println(result.Summary())
			for _, match := range result.AllMatches() {
				meta := extractor.Classify(match)
				fmt.Printf("p%d %s [%s %s %s]\n",
					match.PartitionIndex, match.FilePath, meta.Browser, meta.Profile, meta.FileType)
			}
			return nil
		},
	}
	discoverCommand.Flags().Int64Var(&evidenceID, "evidence", 1, "evidence id")
	discoverCommand.Flags().StringSliceVar(&browsers, "browser", nil, "limit to these browsers")
	return discoverCommand
}

// Extract is the browsercase extract commandline subcommand
func Extract() *cobra.Command {
	var evidenceID int64
	var browsers []string
	var dir, image, output string
	var partition int

	extractCommand := &cobra.Command{
		Use:   "extract <case>",
		Short: "Copy session files from the evidence into the workspace",
		Args:  requireOneCase,
		RunE: func(cmd *cobra.Command, args []string) error {
			opener, partitions, err := buildOpener(dir, image, partition)
			if err != nil {
				return err
			}

			db, err := openCase(args)
			if err != nil {
				return err
			}
			defer db.Close()

			runner := &pipeline.Runner{
				DB:         db,
				Opener:     opener,
				Workspace:  afero.NewOsFs(),
				OutputDir:  output,
				EvidenceID: evidenceID,
				Callbacks:  pipeline.LogCallbacks{},
			}
			extractor := sessions.New(db, evidenceID, browsers)
			extractor.Opener = opener
			extractor.Partitions = partitions
			manifest, err := runner.RunExtraction(extractor)
			if err != nil {
				return err
			}
			fmt.Printf("run %s: %d files, status %s\n", manifest.RunID, len(manifest.Files), manifest.Status)
			return nil
		},
	}
	extractCommand.Flags().Int64Var(&evidenceID, "evidence", 1, "evidence id")
	extractCommand.Flags().StringSliceVar(&browsers, "browser", nil, "limit to these browsers")
	extractCommand.Flags().StringVar(&dir, "dir", "", "mounted partition directory")
	extractCommand.Flags().IntVar(&partition, "partition", 1, "partition index of the mounted directory")
	extractCommand.Flags().StringVar(&image, "image", "", "raw disk image")
	extractCommand.Flags().StringVar(&output, "output", "extracted/sessions", "workspace directory for file copies")
	return extractCommand
}

// Ingest is the browsercase ingest commandline subcommand
func Ingest() *cobra.Command {
	var evidenceID int64
	var output string

	ingestCommand := &cobra.Command{
		Use:   "ingest <case>",
		Short: "Parse extracted session files into the case database",
		Args:  requireOneCase,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openCase(args)
			if err != nil {
				return err
			}
			defer db.Close()

			runner := &pipeline.Runner{
				DB:         db,
				Workspace:  afero.NewOsFs(),
				OutputDir:  output,
				EvidenceID: evidenceID,
				Callbacks:  pipeline.LogCallbacks{},
			}
			stats, err := runner.RunIngestion(sessions.New(db, evidenceID, nil))
			if err != nil {
				return err
			}
			fmt.Printf("parsed %d files into %d records (%d warnings)\n",
				stats.FilesParsed, stats.Records, stats.WarningCount)
			return nil
		},
	}
	ingestCommand.Flags().Int64Var(&evidenceID, "evidence", 1, "evidence id")
	ingestCommand.Flags().StringVar(&output, "output", "extracted/sessions", "workspace directory with the manifest")
	return ingestCommand
}

func buildOpener(dir, image string, partition int) (evidencefs.Opener, []int, error) {
	switch {
	case image != "":
		opener := &evidencefs.ImageOpener{ImagePath: image}
		partitions, err := opener.Partitions()
		if err != nil {
			return nil, nil, err
		}
		return opener, partitions, nil
	case dir != "":
		return &evidencefs.DirOpener{
			Partitions: map[int]afero.Fs{
				partition: afero.NewBasePathFs(afero.NewReadOnlyFs(afero.NewOsFs()), dir),
			},
		}, []int{partition}, nil
	default:
		return nil, nil, errors.New("either --dir or --image is required")
	}
}
