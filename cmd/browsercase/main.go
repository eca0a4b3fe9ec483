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

// Package main implements the browsercase command line tool with
// subcommands that cover the full case workflow.
//     create    Create a case database
//     index     Record evidence file paths in the case database
//     discover  List session files found in the indexed evidence
//     extract   Copy session files from the evidence into the workspace
//     ingest    Parse extracted session files into the case database
//     snss      Decode one SNSS session file and print it as JSON
//
// Usage
//
// Create a case and index a mounted partition
//     browsercase create my.case
//     browsercase index --evidence 1 --partition 1 my.case /mnt/evidence
// Run the two extraction phases
//     browsercase extract --dir /mnt/evidence my.case
//     browsercase ingest my.case
// Inspect a single session file
//     browsercase snss "Current Session"
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forensicanalysis/browsercase/cmd"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "browsercase",
		Short: "Extract browser session artifacts into case databases",
	}
	rootCmd.AddCommand(cmd.Create(), cmd.Index(), cmd.Discover(),
		cmd.Extract(), cmd.Ingest(), cmd.Snss())
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}
