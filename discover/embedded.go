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
	"sort"
	"strings"

	"github.com/forensicanalysis/fsdoublestar"
	"github.com/imdario/mergo"
)

// Signal types that imply "this directory is a browser profile".
const (
	SignalCookies        = "cookies"
	SignalHistory        = "history"
	SignalWebData        = "web_data"
	SignalPreferences    = "preferences"
	SignalCache          = "cache"
	SignalLocalStorage   = "local_storage"
	SignalSessionStorage = "session_storage"
)

// signalPathPatterns is the single discovery query behind embedded-root
// detection, one LIKE pattern per signal-bearing artifact path.
var signalPathPatterns = []string{
	"%/Network/Cookies",
	"%/Cookies",
	"%/History",
	"%/Web Data",
	"%/Preferences",
	"%/Cache/Cache_Data/index",
	"%/Cache/index",
	"%/Local Storage/leveldb/%",
	"%/Session Storage/%",
}

var artifactSuffixes = map[string][]string{
	SignalCookies:     {"/network/cookies", "/cookies"},
	SignalHistory:     {"/history"},
	SignalWebData:     {"/web data"},
	SignalPreferences: {"/preferences"},
	SignalCache:       {"/cache/cache_data/index", "/cache/index"},
}

// suffixOrder fixes the priority when one path could carry several signals.
var suffixOrder = []string{SignalCookies, SignalHistory, SignalWebData, SignalPreferences, SignalCache}

var profileMarkers = map[string]bool{
	"default":        true,
	"guest profile":  true,
	"system profile": true,
}

// EmbeddedRoot is a browser-profile-like directory that matches no
// registered browser install path.
type EmbeddedRoot struct {
	RootPath       string
	PartitionIndex int
	Signals        []string
	SignalCount    int
}

// EmbeddedConfig tunes embedded-root detection. The defaults reflect a
// precision/recall trade-off: two distinct signals tolerate one missing or
// renamed artifact while rejecting single stray file hits.
type EmbeddedConfig struct {
	// MinSignals is the number of distinct signal types a root needs before
	// it is accepted. Heuristic, not validated against a ground-truth
	// corpus; treat as tunable.
	MinSignals int
	// KnownRootGlobs are the registered browsers' profile and cache root
	// globs. Candidates matching one of them are already covered by a
	// registered browser and are not reported.
	KnownRootGlobs []string
}

// DefaultEmbeddedConfig returns the stock detection settings.
func DefaultEmbeddedConfig() EmbeddedConfig {
	return EmbeddedConfig{
		MinSignals: 2,
		KnownRootGlobs: []string{
			"users/*/appdata/local/google/chrome/user data",
			"users/*/appdata/local/microsoft/edge/user data",
			"users/*/appdata/local/chromium/user data",
			"users/*/appdata/local/bravesoftware/brave-browser/user data",
			"users/*/appdata/roaming/opera software/opera stable",
			"users/*/appdata/local/vivaldi/user data",
		},
	}
}

// DetectEmbeddedRoots finds unregistered browser profile roots via
// multi-signal matching: one discovery query over the signal path suffixes,
// candidates grouped by (partition, derived root), acceptance at
// cfg.MinSignals distinct signal types. Zero-value cfg fields fall back to
// the defaults.
func (e *Engine) DetectEmbeddedRoots(cfg EmbeddedConfig) []EmbeddedRoot {
	if err := mergo.Merge(&cfg, DefaultEmbeddedConfig()); err != nil {
		return nil
	}

	result := e.Discover(Query{PathPatterns: signalPathPatterns})

	type rootKey struct {
		partition int
		root      string
	}
	signalsByRoot := map[rootKey]map[string]bool{}

	for _, match := range result.AllMatches() {
		signal := detectSignal(match.FilePath, match.FileName)
		if signal == "" {
			continue
		}
		profileRoot := extractProfileRoot(match.FilePath, signal)
		if profileRoot == "" {
			continue
		}
		root := deriveEmbeddedRoot(profileRoot)
		if root == "" || matchesKnownRoot(root, cfg.KnownRootGlobs) {
			continue
		}

		key := rootKey{match.PartitionIndex, root}
		if signalsByRoot[key] == nil {
			signalsByRoot[key] = map[string]bool{}
		}
		signalsByRoot[key][signal] = true
	}

	var roots []EmbeddedRoot
	for key, signals := range signalsByRoot {
		if len(signals) < cfg.MinSignals {
			continue
		}
		sorted := make([]string, 0, len(signals))
		for signal := range signals {
			sorted = append(sorted, signal)
		}
		sort.Strings(sorted)
		roots = append(roots, EmbeddedRoot{
			RootPath:       key.root,
			PartitionIndex: key.partition,
			Signals:        sorted,
			SignalCount:    len(sorted),
		})
	}

	sort.Slice(roots, func(i, j int) bool {
		if roots[i].PartitionIndex != roots[j].PartitionIndex {
			return roots[i].PartitionIndex < roots[j].PartitionIndex
		}
		return roots[i].RootPath < roots[j].RootPath
	})
	return roots
}

func normalizePath(p string) string {
	normalized := strings.ReplaceAll(p, `\`, "/")
	for strings.Contains(normalized, "//") {
		normalized = strings.ReplaceAll(normalized, "//", "/")
	}
	return strings.TrimRight(normalized, "/")
}

// detectSignal types a matched path. The path suffix wins over the bare
// filename so "History" inside a cache directory is not mistyped.
func detectSignal(filePath, fileName string) string {
	lowerPath := strings.ToLower(normalizePath(filePath))
	lowerName := strings.ToLower(fileName)

	for _, signal := range suffixOrder {
		for _, suffix := range artifactSuffixes[signal] {
			if strings.HasSuffix(lowerPath, suffix) {
				return signal
			}
		}
	}
	if strings.Contains(lowerPath, "/local storage/leveldb/") {
		return SignalLocalStorage
	}
	if strings.Contains(lowerPath, "/session storage/") {
		return SignalSessionStorage
	}

	switch lowerName {
	case "cookies":
		return SignalCookies
	case "history":
		return SignalHistory
	case "web data":
		return SignalWebData
	case "preferences":
		return SignalPreferences
	case "index":
		if strings.Contains(lowerPath, "/cache/") || strings.Contains(lowerPath, "/leveldb/") {
			return SignalCache
		}
	}
	return ""
}

// extractProfileRoot strips the matched artifact suffix, leaving the
// profile directory.
func extractProfileRoot(filePath, signal string) string {
	normalized := normalizePath(filePath)
	lowerPath := strings.ToLower(normalized)

	if suffixes, ok := artifactSuffixes[signal]; ok {
		for _, suffix := range suffixes {
			if strings.HasSuffix(lowerPath, suffix) {
				return strings.TrimRight(normalized[:len(normalized)-len(suffix)], "/")
			}
		}
	}

	marker := ""
	switch signal {
	case SignalLocalStorage:
		marker = "/local storage/leveldb/"
	case SignalSessionStorage:
		marker = "/session storage/"
	}
	if marker != "" {
		if idx := strings.Index(lowerPath, marker); idx >= 0 {
			return strings.TrimRight(normalized[:idx], "/")
		}
	}
	return ""
}

// deriveEmbeddedRoot strips a trailing profile marker ("Default",
// "Profile 2", ...) so all profiles of one installation group to the same
// root.
func deriveEmbeddedRoot(profileRoot string) string {
	normalized := normalizePath(profileRoot)
	idx := strings.LastIndex(normalized, "/")
	last := strings.ToLower(normalized[idx+1:])
	if profileMarkers[last] || strings.HasPrefix(last, "profile ") {
		if idx < 0 {
			return ""
		}
		return strings.TrimRight(normalized[:idx], "/")
	}
	return normalized
}

func matchesKnownRoot(root string, knownGlobs []string) bool {
	normalized := strings.ToLower(strings.TrimLeft(normalizePath(root), "/"))
	for _, glob := range knownGlobs {
		pattern := strings.ToLower(strings.TrimLeft(normalizePath(glob), "/"))
		if ok, err := fsdoublestar.PathMatch(pattern, normalized); err == nil && ok {
			return true
		}
		if ok, err := fsdoublestar.PathMatch(pattern+"/**", normalized); err == nil && ok {
			return true
		}
	}
	return false
}

// MergeResults combines two discovery results, deduplicating on
// (partition, path, name).
func MergeResults(base, extra *Result) *Result {
	merged := &Result{MatchesByPartition: map[int][]Match{}}

	type matchKey struct {
		partition int
		path      string
		name      string
	}
	seen := map[matchKey]bool{}

	for _, result := range []*Result{base, extra} {
		if result == nil {
			continue
		}
		for partition, matches := range result.MatchesByPartition {
			for _, match := range matches {
				key := matchKey{partition, match.FilePath, match.FileName}
				if seen[key] {
					continue
				}
				seen[key] = true
				merged.MatchesByPartition[partition] = append(merged.MatchesByPartition[partition], match)
				merged.TotalMatches++
			}
		}
	}

	for partition := range merged.MatchesByPartition {
		merged.PartitionsWithMatches = append(merged.PartitionsWithMatches, partition)
	}
	sort.Ints(merged.PartitionsWithMatches)
	merged.QueryInfo = "merged"
	return merged
}
