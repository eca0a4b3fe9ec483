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

// Package discover turns glob-style artifact patterns into indexed SQL
// queries against the per-evidence file index, so extractors find their
// files across all partitions in seconds instead of walking every
// filesystem. When the index is missing it falls back to a live walk.
package discover

import (
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"

	"crawshaw.io/sqlite"
)

// Query selects files from the file index. At least one of the three
// pattern fields must be non-empty; an empty query is rejected instead of
// scanning the whole table.
type Query struct {
	FilenamePatterns []string
	PathPatterns     []string
	ExtensionFilter  []string
	IncludeDeleted   bool
	PartitionFilter  []int
}

// Match is a single file index hit.
type Match struct {
	FilePath       string
	FileName       string
	PartitionIndex int
	Inode          *int64
	SizeBytes      *int64
	Extension      string
}

// Result groups matches by partition. A failed query yields an empty result
// with the reason in QueryInfo, never an error.
type Result struct {
	MatchesByPartition    map[int][]Match
	TotalMatches          int
	PartitionsWithMatches []int
	QueryInfo             string
}

// IsMultiPartition reports whether matches span more than one partition.
func (r *Result) IsMultiPartition() bool {
	return len(r.PartitionsWithMatches) > 1
}

// IsEmpty reports whether the query matched nothing.
func (r *Result) IsEmpty() bool {
	return r.TotalMatches == 0
}

// AllMatches flattens the per-partition groups, ordered by partition.
func (r *Result) AllMatches() []Match {
	var all []Match
	for _, partition := range r.PartitionsWithMatches {
		all = append(all, r.MatchesByPartition[partition]...)
	}
	return all
}

// Summary returns a human-readable partition distribution.
func (r *Result) Summary() string {
	if r.IsEmpty() {
		return "no matches found"
	}
	parts := make([]string, 0, len(r.PartitionsWithMatches))
	for _, partition := range r.PartitionsWithMatches {
		parts = append(parts, fmt.Sprintf("partition %d: %d", partition, len(r.MatchesByPartition[partition])))
	}
	return fmt.Sprintf("%d matches (%s)", r.TotalMatches, strings.Join(parts, ", "))
}

// Engine runs discovery queries against one evidence item's file index.
type Engine struct {
	conn       *sqlite.Conn
	evidenceID int64
}

// NewEngine creates a discovery engine bound to one evidence item.
func NewEngine(conn *sqlite.Conn, evidenceID int64) *Engine {
	return &Engine{conn: conn, evidenceID: evidenceID}
}

// Discover queries the file index. It fails soft: a malformed query or a SQL
// error returns an empty result annotated in QueryInfo, so one bad pattern
// cannot abort a scan over many browsers.
func (e *Engine) Discover(query Query) *Result {
	empty := &Result{MatchesByPartition: map[int][]Match{}}

	if len(query.FilenamePatterns) == 0 && len(query.PathPatterns) == 0 && len(query.ExtensionFilter) == 0 {
		log.Printf("discovery called with no patterns, returning empty result")
		empty.QueryInfo = "no patterns specified"
		return empty
	}

	sql, binds := buildQuery(e.evidenceID, query)

	result, err := e.run(sql, binds)
	if err != nil {
		log.Printf("discovery query failed: %v", err)
		empty.QueryInfo = fmt.Sprintf("query failed: %v", err)
		return empty
	}

	result.QueryInfo = fmt.Sprintf("filename=%v, path=%v, ext=%v",
		query.FilenamePatterns, query.PathPatterns, query.ExtensionFilter)
	return result
}

func buildQuery(evidenceID int64, query Query) (string, []interface{}) {
	binds := []interface{}{evidenceID}

	parts := []string{
		"SELECT file_path, file_name, partition_index, inode, size_bytes, extension",
		"FROM file_list",
		"WHERE evidence_id = ?",
	}

	if clause := filenameClause(query.FilenamePatterns, &binds); clause != "" {
		parts = append(parts, clause)
	}
	if clause := pathClause(query.PathPatterns, &binds); clause != "" {
		parts = append(parts, clause)
	}
	if clause := extensionClause(query.ExtensionFilter, &binds); clause != "" {
		parts = append(parts, clause)
	}
	if !query.IncludeDeleted {
		parts = append(parts, "AND COALESCE(deleted, 0) = 0")
	}
	if len(query.PartitionFilter) > 0 {
		placeholders := make([]string, len(query.PartitionFilter))
		partitions := append([]int{}, query.PartitionFilter...)
		sort.Ints(partitions)
		for i, partition := range partitions {
			placeholders[i] = "?"
			binds = append(binds, partition)
		}
		parts = append(parts, "AND partition_index IN ("+strings.Join(placeholders, ", ")+")")
	}

	return strings.Join(parts, "\n"), binds
}

// filenameClause ORs the filename patterns. Patterns without wildcards use
// an exact case-insensitive match so the file_name index stays usable.
func filenameClause(patterns []string, binds *[]interface{}) string {
	if len(patterns) == 0 {
		return ""
	}
	clauses := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		if strings.ContainsAny(pattern, "*?") {
			clauses = append(clauses, `file_name LIKE ? ESCAPE '\'`)
			*binds = append(*binds, GlobToLike(pattern))
		} else {
			clauses = append(clauses, "LOWER(file_name) = LOWER(?)")
			*binds = append(*binds, pattern)
		}
	}
	return "AND (" + strings.Join(clauses, " OR ") + ")"
}

// pathClause ORs the path patterns. Patterns may be given in glob or SQL
// LIKE form; glob form is translated when no LIKE wildcard is present.
func pathClause(patterns []string, binds *[]interface{}) string {
	if len(patterns) == 0 {
		return ""
	}
	clauses := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		sqlPattern := pattern
		if strings.Contains(pattern, "*") && !strings.Contains(pattern, "%") {
			sqlPattern = GlobToLike(pattern)
		}
		clauses = append(clauses, `file_path LIKE ? ESCAPE '\'`)
		*binds = append(*binds, sqlPattern)
	}
	return "AND (" + strings.Join(clauses, " OR ") + ")"
}

func extensionClause(extensions []string, binds *[]interface{}) string {
	if len(extensions) == 0 {
		return ""
	}
	placeholders := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		placeholders = append(placeholders, "?")
		*binds = append(*binds, strings.ToLower(ext))
	}
	return "AND LOWER(extension) IN (" + strings.Join(placeholders, ", ") + ")"
}

func (e *Engine) run(query string, binds []interface{}) (*Result, error) {
	stmt, err := e.conn.Prepare(query)
	if err != nil {
		return nil, err
	}
	for i, bind := range binds {
		switch v := bind.(type) {
		case string:
			stmt.BindText(i+1, v)
		case int:
			stmt.BindInt64(i+1, int64(v))
		case int64:
			stmt.BindInt64(i+1, v)
		default:
			return nil, fmt.Errorf("unsupported bind type %T", bind)
		}
	}

	result := &Result{MatchesByPartition: map[int][]Match{}}
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return nil, err
		}
		if !hasRow {
			break
		}

		match := Match{
			FilePath:       stmt.GetText("file_path"),
			FileName:       stmt.GetText("file_name"),
			PartitionIndex: int(stmt.GetInt64("partition_index")),
			Inode:          ParseInode(stmt.GetText("inode")),
			Extension:      stmt.GetText("extension"),
		}
		size := stmt.GetInt64("size_bytes")
		if size > 0 {
			match.SizeBytes = &size
		}

		result.MatchesByPartition[match.PartitionIndex] = append(
			result.MatchesByPartition[match.PartitionIndex], match)
		result.TotalMatches++
	}
	if err := stmt.Finalize(); err != nil {
		return nil, err
	}

	for partition := range result.MatchesByPartition {
		result.PartitionsWithMatches = append(result.PartitionsWithMatches, partition)
	}
	sort.Ints(result.PartitionsWithMatches)
	return result, nil
}

// GlobToLike converts a glob pattern to a SQL LIKE pattern: '*' and '**'
// become '%', '?' becomes '_', and literal '%'/'_' are backslash-escaped so
// the glob semantics survive exactly. Use with LIKE ... ESCAPE '\'.
func GlobToLike(glob string) string {
	pattern := strings.ReplaceAll(glob, "**", "*")

	var b strings.Builder
	b.Grow(len(pattern))
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteByte('%')
		case '?':
			b.WriteByte('_')
		case '%', '_':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseInode tolerates the two inode encodings found in file indexes: a
// plain integer, or the NTFS composite "MFT-ATTR-ATTRID" from which only
// the leading MFT record number is taken. Anything else yields nil.
func ParseInode(raw string) *int64 {
	if raw == "" {
		return nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return &n
	}
	if idx := strings.Index(raw, "-"); idx > 0 {
		if n, err := strconv.ParseInt(raw[:idx], 10, 64); err == nil {
			return &n
		}
	}
	return nil
}
