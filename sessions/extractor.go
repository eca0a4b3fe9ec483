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

// Package sessions extracts Chromium session-restore artifacts. Session
// files often outlive the browsing session itself after a crash or
// ungraceful shutdown, so they carry tabs, titles and per-tab navigation
// history that the History database may no longer hold.
package sessions

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/forensicanalysis/browsercase"
	"github.com/forensicanalysis/browsercase/discover"
	"github.com/forensicanalysis/browsercase/evidencefs"
	"github.com/forensicanalysis/browsercase/pipeline"
	"github.com/forensicanalysis/browsercase/snss"
	"github.com/forensicanalysis/browsercase/warnings"
)

const (
	extractorName    = "chromium_sessions"
	extractorVersion = "1.0"
	artifactType     = "sessions"
)

// Extractor finds, copies and ingests Chromium SNSS session files. It plugs
// into the generic pipeline; an empty Browsers selection means all supported
// browsers.
type Extractor struct {
	DB         *browsercase.CaseDB
	EvidenceID int64
	Browsers   []string

	// Opener and Partitions enable the live filesystem walk used when the
	// file index is not populated for this evidence. With a nil Opener,
	// discovery reads the file_list table only.
	Opener     evidencefs.Opener
	Partitions []int

	// embedded roots found during discovery, by partition, consumed by
	// Classify for paths outside registered install locations
	embeddedByPartition map[int][]string
}

// New creates a sessions extractor for one evidence item.
func New(db *browsercase.CaseDB, evidenceID int64, browsers []string) *Extractor {
	return &Extractor{DB: db, EvidenceID: evidenceID, Browsers: browsers}
}

func (e *Extractor) Name() string         { return extractorName }
func (e *Extractor) Version() string      { return extractorVersion }
func (e *Extractor) ArtifactType() string { return artifactType }

func (e *Extractor) selectedBrowsers() []string {
	if len(e.Browsers) == 0 {
		return AllBrowsers()
	}
	var selected []string
	for _, browser := range e.Browsers {
		if _, ok := Browsers[browser]; ok {
			selected = append(selected, browser)
		}
	}
	return selected
}

// Discover queries the file index for session files of the selected
// browsers, plus embedded Chromium roots found by multi-signal detection.
// Matches belonging to an unselected browser are dropped. When the file
// index is not populated, discovery falls back to a live filesystem walk
// over the configured partitions.
func (e *Extractor) Discover() *discover.Result {
	selected := e.selectedBrowsers()
	e.embeddedByPartition = map[int][]string{}

	if available, _ := e.DB.FileListAvailable(e.EvidenceID); !available && e.Opener != nil {
		log.Printf("no file index for evidence %d, walking the filesystem", e.EvidenceID)
		return e.filterBySelection(e.discoverByWalk(selected), selected)
	}

	engine := discover.NewEngine(e.DB.Conn(), e.EvidenceID)

	embedded := engine.DetectEmbeddedRoots(discover.EmbeddedConfig{
		KnownRootGlobs: knownRootGlobs(),
	})
	for _, root := range embedded {
		e.embeddedByPartition[root.PartitionIndex] = append(
			e.embeddedByPartition[root.PartitionIndex], root.RootPath)
	}
	if len(embedded) > 0 {
		log.Printf("found %d embedded browser root(s)", len(embedded))
	}

	sortedPatterns := pathPatternsFor(selected)

	result := engine.Discover(discover.Query{
		FilenamePatterns: sessionFilenames,
		PathPatterns:     sortedPatterns,
	})

	// embedded roots sit outside the registered install paths, so each one
	// needs its own partition-scoped query
	for _, root := range embedded {
		embeddedResult := engine.Discover(discover.Query{
			FilenamePatterns: sessionFilenames,
			PathPatterns:     patternsForRoot(root.RootPath),
			PartitionFilter:  []int{root.PartitionIndex},
		})
		result = discover.MergeResults(result, embeddedResult)
	}

	return e.filterBySelection(result, selected)
}

// pathPatternsFor deduplicates and sorts the session path patterns of the
// selected browsers.
func pathPatternsFor(selected []string) []string {
	pathPatterns := map[string]bool{}
	for _, browser := range selected {
		for _, pattern := range SessionPatterns(browser) {
			pathPatterns[pattern] = true
		}
	}
	sorted := make([]string, 0, len(pathPatterns))
	for pattern := range pathPatterns {
		sorted = append(sorted, pattern)
	}
	sort.Strings(sorted)
	return sorted
}

// discoverByWalk globs the session patterns over every configured partition.
// Embedded-root detection needs the file index and is skipped here.
func (e *Extractor) discoverByWalk(selected []string) *discover.Result {
	patterns := pathPatternsFor(selected)
	partitions := e.Partitions
	if len(partitions) == 0 {
		partitions = []int{0}
	}

	merged := &discover.Result{MatchesByPartition: map[int][]discover.Match{}}
	for _, partition := range partitions {
		handle, err := e.Opener.OpenPartition(partition)
		if err != nil {
			log.Printf("could not open partition %d for discovery: %v", partition, err)
			continue
		}
		walked := discover.WalkFallback(handle, patterns, partition)
		handle.Close()
		merged = discover.MergeResults(merged, walked)
	}
	merged.QueryInfo = fmt.Sprintf("filesystem walk over partitions %v", partitions)
	return merged
}

// patternsForRoot builds session glob patterns under an arbitrary profile
// root, in both the nested and the flat profile layout.
func patternsForRoot(root string) []string {
	root = strings.TrimRight(root, "/")
	var patterns []string
	for _, artifact := range sessionArtifactPaths {
		patterns = append(patterns, root+"/"+artifact)
		for _, profile := range profilePatterns {
			patterns = append(patterns, root+"/"+profile+"/"+artifact)
		}
	}
	return patterns
}

// filterBySelection rebuilds a result without matches that belong to a
// browser outside the selection. Unrecognized and embedded paths stay in.
func (e *Extractor) filterBySelection(result *discover.Result, selected []string) *discover.Result {
	selectedSet := map[string]bool{}
	for _, browser := range selected {
		selectedSet[browser] = true
	}

	filtered := &discover.Result{MatchesByPartition: map[int][]discover.Match{}, QueryInfo: result.QueryInfo}
	for _, partition := range result.PartitionsWithMatches {
		for _, match := range result.MatchesByPartition[partition] {
			browser := DetectBrowser(match.FilePath, e.embeddedByPartition[partition])
			if browser != "" && browser != "chromium_embedded" && !selectedSet[browser] {
				continue
			}
			filtered.MatchesByPartition[partition] = append(filtered.MatchesByPartition[partition], match)
			filtered.TotalMatches++
		}
		if len(filtered.MatchesByPartition[partition]) > 0 {
			filtered.PartitionsWithMatches = append(filtered.PartitionsWithMatches, partition)
		} else {
			delete(filtered.MatchesByPartition, partition)
		}
	}
	return filtered
}

// knownRootGlobs lowers every registered profile root for the embedded-root
// exclusion check.
func knownRootGlobs() []string {
	var globs []string
	for _, info := range Browsers {
		for _, root := range info.ProfileRoots {
			globs = append(globs, strings.ToLower(root))
		}
	}
	sort.Strings(globs)
	return globs
}

// Classify derives browser, profile and session type from a match path.
func (e *Extractor) Classify(match discover.Match) pipeline.FileMeta {
	browser := DetectBrowser(match.FilePath, e.embeddedByPartition[match.PartitionIndex])
	if browser == "" {
		browser = "chromium"
	}
	profile := ProfileFromPath(match.FilePath)
	if profile == "" {
		profile = "Default"
	}
	return pipeline.FileMeta{
		Browser:  browser,
		Profile:  profile,
		FileType: ClassifyFile(match.FilePath),
	}
}

// DeleteRun clears every session artifact row of one run, making
// re-ingestion idempotent.
func (e *Extractor) DeleteRun(evidenceID int64, runID string) (int64, error) {
	return e.DB.DeleteSessionsByRun(evidenceID, runID)
}

// Parse decodes one extracted SNSS file and inserts window, tab, navigation
// and cross-posted URL rows. Encrypted or malformed files produce warnings
// and zero records, never an error; only database failures are errors.
func (e *Extractor) Parse(data []byte, file pipeline.ExtractedFile, prov browsercase.Provenance, collector *warnings.Collector) (int, error) {
	if strings.HasSuffix(file.FileType, "_companion") {
		return 0, nil
	}

	result := snss.Parse(data)
	e.reportParseWarnings(result, prov.SourcePath, collector)
	if !result.IsValid {
		for _, parseErr := range result.Errors {
			log.Printf("snss parse error in %s: %s", prov.SourcePath, parseErr)
		}
		return 0, nil
	}

	windowRows := e.windowRows(result, file, prov)
	tabRows, navRows := e.tabRows(result, file, prov)
	urlRows := e.urlRows(result, file, prov)

	if err := e.DB.InsertSessionWindows(windowRows); err != nil {
		return 0, err
	}
	if err := e.DB.InsertSessionTabs(tabRows); err != nil {
		return 0, err
	}
	if err := e.DB.InsertSessionNavigations(navRows); err != nil {
		return 0, err
	}
	if err := e.DB.InsertURLs(urlRows); err != nil {
		return 0, err
	}

	return len(windowRows) + len(tabRows) + len(navRows) + len(urlRows), nil
}

func (e *Extractor) reportParseWarnings(result *snss.ParseResult, sourcePath string, collector *warnings.Collector) {
	if collector == nil {
		return
	}

	if result.IsEncrypted {
		collector.Add(warnings.TypeVersionUnsupported, warnings.CategoryBinary, warnings.SeverityWarning,
			artifactType, sourcePath, "encrypted_session",
			fmt.Sprintf("SNSS version %d (encrypted)", result.Version),
			map[string]interface{}{"version": result.Version, "encrypted": true})
	}

	for _, parseErr := range result.Errors {
		severity := warnings.SeverityWarning
		if strings.Contains(strings.ToLower(parseErr), "invalid") {
			severity = warnings.SeverityError
		}
		collector.Add(warnings.TypeBinaryFormatError, warnings.CategoryBinary, severity,
			artifactType, sourcePath, "snss_parse_error", parseErr, nil)
	}

	if len(result.UnknownCommands) > 0 {
		collector.Add(warnings.TypeUnknownCommand, warnings.CategoryBinary, warnings.SeverityInfo,
			artifactType, sourcePath, "unknown_snss_commands",
			fmt.Sprint(result.UnknownCommands),
			map[string]interface{}{"command_ids": result.UnknownCommands})
	}
}

func (e *Extractor) windowRows(result *snss.ParseResult, file pipeline.ExtractedFile, prov browsercase.Provenance) []browsercase.SessionWindow {
	var rows []browsercase.SessionWindow
	for _, window := range result.Windows {
		rows = append(rows, browsercase.SessionWindow{
			EvidenceID:       prov.EvidenceID,
			RunID:            prov.RunID,
			SourcePath:       prov.SourcePath,
			PartitionIndex:   prov.PartitionIndex,
			DiscoveredBy:     prov.DiscoveredBy,
			Browser:          file.Browser,
			Profile:          file.Profile,
			WindowID:         window.WindowID,
			SelectedTabIndex: window.SelectedTabIndex,
			WindowType:       window.WindowType,
		})
	}

	// tab-restore files carry tabs without window commands
	if len(rows) == 0 && len(result.Tabs) > 0 {
		rows = append(rows, browsercase.SessionWindow{
			EvidenceID:     prov.EvidenceID,
			RunID:          prov.RunID,
			SourcePath:     prov.SourcePath,
			PartitionIndex: prov.PartitionIndex,
			DiscoveredBy:   prov.DiscoveredBy,
			Browser:        file.Browser,
			Profile:        file.Profile,
		})
	}
	return rows
}

func (e *Extractor) tabRows(result *snss.ParseResult, file pipeline.ExtractedFile, prov browsercase.Provenance) ([]browsercase.SessionTab, []browsercase.SessionNavigation) {
	var tabs []browsercase.SessionTab
	var navs []browsercase.SessionNavigation

	for _, tab := range result.Tabs {
		if len(tab.Navigations) == 0 && tab.LastActiveTime.IsZero() {
			continue
		}

		tabs = append(tabs, browsercase.SessionTab{
			EvidenceID:             prov.EvidenceID,
			RunID:                  prov.RunID,
			SourcePath:             prov.SourcePath,
			PartitionIndex:         prov.PartitionIndex,
			DiscoveredBy:           prov.DiscoveredBy,
			Browser:                file.Browser,
			Profile:                file.Profile,
			TabID:                  tab.TabID,
			WindowID:               tab.WindowID,
			IndexInWindow:          tab.IndexInWindow,
			Pinned:                 tab.Pinned,
			CurrentNavigationIndex: tab.CurrentNavigationIndex,
			LastActiveTime:         formatTime(tab.LastActiveTime),
		})

		for navIndex, nav := range tab.Navigations {
			if nav.URL == "" {
				continue
			}
			navs = append(navs, browsercase.SessionNavigation{
				EvidenceID:            prov.EvidenceID,
				RunID:                 prov.RunID,
				SourcePath:            prov.SourcePath,
				PartitionIndex:        prov.PartitionIndex,
				DiscoveredBy:          prov.DiscoveredBy,
				Browser:               file.Browser,
				Profile:               file.Profile,
				TabID:                 tab.TabID,
				NavIndex:              navIndex,
				URL:                   nav.URL,
				Title:                 nav.Title,
				ReferrerURL:           nav.ReferrerURL,
				OriginalRequestURL:    nav.OriginalRequestURL,
				Timestamp:             formatTime(nav.Timestamp),
				TransitionType:        nav.TransitionType,
				HTTPStatusCode:        nav.HTTPStatusCode,
				HasPostData:           nav.HasPostData,
				IsOverridingUserAgent: nav.IsOverridingUserAgent,
			})
		}
	}
	return tabs, navs
}

// urlRows cross-posts navigation events to the unified urls table. Every
// URL+timestamp pair is a distinct visit event; deduplication is left to the
// query or report level. Browser-internal schemes are skipped.
func (e *Extractor) urlRows(result *snss.ParseResult, file pipeline.ExtractedFile, prov browsercase.Provenance) []browsercase.URLRecord {
	var rows []browsercase.URLRecord
	add := func(url, title string, timestamp time.Time) {
		if url == "" || isInternalURL(url) {
			return
		}
		rows = append(rows, browsercase.URLRecord{
			EvidenceID:     prov.EvidenceID,
			RunID:          prov.RunID,
			SourcePath:     prov.SourcePath,
			PartitionIndex: prov.PartitionIndex,
			DiscoveredBy:   prov.DiscoveredBy,
			ArtifactType:   artifactType,
			URL:            url,
			Title:          title,
			Timestamp:      formatTime(timestamp),
		})
	}

	for _, tab := range result.Tabs {
		if current, ok := currentNavigation(tab); ok {
			timestamp := current.Timestamp
			if timestamp.IsZero() {
				timestamp = tab.LastActiveTime
			}
			add(current.URL, current.Title, timestamp)
		}
		for _, nav := range tab.Navigations {
			add(nav.URL, nav.Title, nav.Timestamp)
		}
	}
	return rows
}

// currentNavigation resolves a tab's selected entry, clamping an index that
// points past the recorded navigations.
func currentNavigation(tab snss.Tab) (snss.NavigationEntry, bool) {
	if len(tab.Navigations) == 0 {
		return snss.NavigationEntry{}, false
	}
	index := tab.CurrentNavigationIndex
	if index >= len(tab.Navigations) {
		index = len(tab.Navigations) - 1
	}
	if index < 0 {
		return snss.NavigationEntry{}, false
	}
	return tab.Navigations[index], true
}

var internalURLPrefixes = []string{"about:", "chrome:", "chrome-extension:", "javascript:", "data:"}

func isInternalURL(url string) bool {
	for _, prefix := range internalURLPrefixes {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(browsercase.SQLTimeFormat)
}
