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

package discover

import (
	"fmt"
	"log"
	"path"
	"sort"
	"strings"

	"github.com/forensicanalysis/browsercase/evidencefs"
)

// WalkFallback matches glob patterns against a live partition filesystem.
// It is the slow path used when the file index is not populated for an
// evidence item; all matches are attributed to the given partition. Like
// Discover it fails soft, per pattern.
func WalkFallback(fsys evidencefs.FS, patterns []string, partitionIndex int) *Result {
	result := &Result{MatchesByPartition: map[int][]Match{}}
	if len(patterns) == 0 {
		result.QueryInfo = "no patterns specified"
		return result
	}

	seen := map[string]bool{}
	var failed []string

	for _, pattern := range patterns {
		paths, err := fsys.IterPaths(pattern)
		if err != nil {
			log.Printf("fallback glob %q failed: %v", pattern, err)
			failed = append(failed, pattern)
			continue
		}
		for _, p := range paths {
			if seen[p] {
				continue
			}
			seen[p] = true

			var size *int64
			if info, err := fsys.Stat(p); err == nil {
				if info.IsDir {
					continue
				}
				s := info.Size
				size = &s
			}

			name := path.Base(strings.ReplaceAll(p, `\`, "/"))
			match := Match{
				FilePath:       p,
				FileName:       name,
				PartitionIndex: partitionIndex,
				SizeBytes:      size,
				Extension:      strings.ToLower(path.Ext(name)),
			}
			result.MatchesByPartition[partitionIndex] = append(result.MatchesByPartition[partitionIndex], match)
			result.TotalMatches++
		}
	}

	if result.TotalMatches > 0 {
		result.PartitionsWithMatches = []int{partitionIndex}
		sort.Slice(result.MatchesByPartition[partitionIndex], func(i, j int) bool {
			return result.MatchesByPartition[partitionIndex][i].FilePath <
				result.MatchesByPartition[partitionIndex][j].FilePath
		})
	}
	result.QueryInfo = fmt.Sprintf("filesystem walk, patterns=%v", patterns)
	if len(failed) > 0 {
		result.QueryInfo += fmt.Sprintf(", failed=%v", failed)
	}
	return result
}
