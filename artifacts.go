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

package browsercase

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/structs"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stoewer/go-strcase"
)

// Provenance is carried by every artifact row produced during ingestion. It
// ties the row back to the exact extraction run and tool version.
type Provenance struct {
	EvidenceID     int64
	RunID          string
	SourcePath     string
	PartitionIndex int
	DiscoveredBy   string
}

// Validate rejects rows that would break run-scoped idempotence or
// traceability.
func (p Provenance) Validate() error {
	if p.RunID == "" {
		return errors.New("provenance requires a run_id")
	}
	if p.SourcePath == "" {
		return errors.New("provenance requires a source_path")
	}
	if p.DiscoveredBy == "" {
		return errors.New("provenance requires a discovered_by tag")
	}
	return nil
}

// SessionWindow is one restored browser window.
type SessionWindow struct {
	ID               string
	EvidenceID       int64
	RunID            string
	SourcePath       string
	PartitionIndex   int
	DiscoveredBy     string
	Browser          string
	Profile          string
	WindowID         int
	SelectedTabIndex int
	WindowType       int
}

// SessionTab is the final state of one restored browser tab.
type SessionTab struct {
	ID                     string
	EvidenceID             int64
	RunID                  string
	SourcePath             string
	PartitionIndex         int
	DiscoveredBy           string
	Browser                string
	Profile                string
	TabID                  int
	WindowID               int
	IndexInWindow          int
	Pinned                 bool
	CurrentNavigationIndex int
	LastActiveTime         string
}

// SessionNavigation is one navigation entry of a restored tab, in file order.
type SessionNavigation struct {
	ID                    string
	EvidenceID            int64
	RunID                 string
	SourcePath            string
	PartitionIndex        int
	DiscoveredBy          string
	Browser               string
	Profile               string
	TabID                 int
	NavIndex              int
	URL                   string
	Title                 string
	ReferrerURL           string
	OriginalRequestURL    string
	Timestamp             string
	TransitionType        int
	HTTPStatusCode        int
	HasPostData           bool
	IsOverridingUserAgent bool
}

// URLRecord is a cross-posted URL event for unified timeline analysis.
type URLRecord struct {
	ID             string
	EvidenceID     int64
	RunID          string
	SourcePath     string
	PartitionIndex int
	DiscoveredBy   string
	ArtifactType   string
	URL            string
	Title          string
	Timestamp      string
}

// ExtractedFileRecord is the audit row for one copied evidence file.
type ExtractedFileRecord struct {
	ID             string
	EvidenceID     int64
	RunID          string
	Extractor      string
	SourcePath     string
	DestPath       string
	PartitionIndex int
	CopyStatus     string
	SizeBytes      int64
	MD5            string
	SHA256         string
	ErrorMessage   string
}

// NewID builds a discriminated row id, e.g. "session-tab--<uuid>".
func NewID(kind string) string {
	return kind + "--" + uuid.New().String()
}

// InsertSessionWindows adds window rows, assigning ids where missing.
func (db *CaseDB) InsertSessionWindows(rows []SessionWindow) error {
	for i := range rows {
		if rows[i].ID == "" {
			rows[i].ID = NewID("session-window")
		}
		if err := db.insertStruct("session_windows", rows[i]); err != nil {
			return err
		}
	}
	return nil
}

// InsertSessionTabs adds tab rows, assigning ids where missing.
func (db *CaseDB) InsertSessionTabs(rows []SessionTab) error {
	for i := range rows {
		if rows[i].ID == "" {
			rows[i].ID = NewID("session-tab")
		}
		if err := db.insertStruct("session_tabs", rows[i]); err != nil {
			return err
		}
	}
	return nil
}

// InsertSessionNavigations adds navigation rows, assigning ids where missing.
func (db *CaseDB) InsertSessionNavigations(rows []SessionNavigation) error {
	for i := range rows {
		if rows[i].ID == "" {
			rows[i].ID = NewID("session-navigation")
		}
		if err := db.insertStruct("session_navigations", rows[i]); err != nil {
			return err
		}
	}
	return nil
}

// InsertURLs adds cross-posted URL events.
func (db *CaseDB) InsertURLs(rows []URLRecord) error {
	for i := range rows {
		if rows[i].ID == "" {
			rows[i].ID = NewID("url")
		}
		if err := db.insertStruct("urls", rows[i]); err != nil {
			return err
		}
	}
	return nil
}

// InsertExtractedFiles adds chain-of-custody rows for copied files.
func (db *CaseDB) InsertExtractedFiles(rows []ExtractedFileRecord) error {
	for i := range rows {
		if rows[i].ID == "" {
			rows[i].ID = NewID("extracted-file")
		}
		if err := db.insertStruct("extracted_files", rows[i]); err != nil {
			return err
		}
	}
	return nil
}

var sessionTables = []string{"session_windows", "session_tabs", "session_navigations", "urls"}

// DeleteSessionsByRun removes every session artifact row tagged with this
// exact run id. Re-running ingestion on the same extraction is idempotent;
// rows from other runs are untouched.
func (db *CaseDB) DeleteSessionsByRun(evidenceID int64, runID string) (int64, error) {
	var deleted int64
	for _, table := range sessionTables {
		n, err := db.deleteByRun(table, evidenceID, runID)
		if err != nil {
			return deleted, err
		}
		deleted += n
	}
	return deleted, nil
}

// CountByRun returns the number of rows in table tagged with runID.
func (db *CaseDB) CountByRun(table string, evidenceID int64, runID string) (int64, error) {
	if !validTableName(table) {
		return 0, fmt.Errorf("invalid table name %q", table)
	}
	query := fmt.Sprintf("SELECT COUNT(*) AS n FROM %s WHERE evidence_id = ? AND run_id = ?", table) // #nosec
	return db.count(query, evidenceID, runID)
}

func (db *CaseDB) deleteByRun(table string, evidenceID int64, runID string) (int64, error) {
	n, err := db.CountByRun(table, evidenceID, runID)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE evidence_id = ? AND run_id = ?", table) // #nosec
	stmt, err := db.cursor.Prepare(query)
	if err != nil {
		return 0, err
	}
	stmt.BindInt64(1, evidenceID)
	stmt.BindText(2, runID)
	if _, err := stmt.Step(); err != nil {
		return 0, err
	}
	return n, stmt.Finalize()
}

func validTableName(name string) bool {
	for _, r := range name {
		if r != '_' && (r < 'a' || r > 'z') {
			return false
		}
	}
	return name != ""
}

// insertStruct maps a record struct to snake_case columns and inserts it.
func (db *CaseDB) insertStruct(table string, record interface{}) error {
	m := structs.Map(record)

	columns := make([]string, 0, len(m))
	for field := range m {
		columns = append(columns, field)
	}
	sort.Strings(columns)

	names := make([]string, 0, len(columns))
	placeholders := make([]string, 0, len(columns))
	binds := make([]interface{}, 0, len(columns))
	for _, field := range columns {
		names = append(names, strcase.SnakeCase(field))
		placeholders = append(placeholders, "?")
		binds = append(binds, m[field])
	}

	query := fmt.Sprintf( // #nosec
		"INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(names, ", "), strings.Join(placeholders, ", "),
	)
	stmt, err := db.cursor.Prepare(query)
	if err != nil {
		return errors.Wrapf(err, "could not prepare statement %s", query)
	}
	if err := bindAll(stmt, binds); err != nil {
		return err
	}
	if _, err := stmt.Step(); err != nil {
		return errors.Wrapf(err, "could not exec statement %s", query)
	}
	return stmt.Finalize()
}
