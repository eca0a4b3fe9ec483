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

package warnings

import (
	"path"
	"sort"
	"strings"

	"crawshaw.io/sqlite"
	"github.com/tidwall/gjson"
)

// KnownSchema is a parser's allow-list, table name to expected columns.
type KnownSchema map[string][]string

// Column is one column of an inspected artifact database table.
type Column struct {
	Name string
	Type string
}

// TableColumns lists the columns of one table via PRAGMA table_info.
func TableColumns(conn *sqlite.Conn, table string) ([]Column, error) {
	stmt, err := conn.Prepare("PRAGMA table_info(\"" + strings.ReplaceAll(table, `"`, `""`) + "\")")
	if err != nil {
		return nil, err
	}
	var columns []Column
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return nil, err
		}
		if !hasRow {
			break
		}
		columns = append(columns, Column{
			Name: stmt.GetText("name"),
			Type: stmt.GetText("type"),
		})
	}
	return columns, stmt.Finalize()
}

// Tables lists the user tables of an artifact database.
func Tables(conn *sqlite.Conn) ([]string, error) {
	stmt, err := conn.Prepare(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, err
	}
	var tables []string
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return nil, err
		}
		if !hasRow {
			break
		}
		tables = append(tables, stmt.GetText("name"))
	}
	return tables, stmt.Finalize()
}

// InspectDatabase compares the live schema of an artifact database against a
// parser's allow-list and records the drift. Tables outside the allow-list
// are reported only when they match one of the relevance patterns (glob on
// the lowercased table name); an empty pattern list means every table is
// relevant. Known tables always have their extra columns reported.
func InspectDatabase(conn *sqlite.Conn, known KnownSchema, relevancePatterns []string,
	collector *Collector, sourceFile, artifactType string) error {
	tables, err := Tables(conn)
	if err != nil {
		return err
	}

	knownColumns := make(map[string]map[string]bool, len(known))
	for table, columns := range known {
		set := make(map[string]bool, len(columns))
		for _, column := range columns {
			set[strings.ToLower(column)] = true
		}
		knownColumns[strings.ToLower(table)] = set
	}

	for _, table := range tables {
		lower := strings.ToLower(table)
		expected, isKnown := knownColumns[lower]

		if !isKnown {
			if !matchesAny(lower, relevancePatterns) {
				continue
			}
			columns, err := TableColumns(conn, table)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(columns))
			for _, c := range columns {
				names = append(names, c.Name)
			}
			collector.UnknownTable(table, names, sourceFile, artifactType)
			continue
		}

		columns, err := TableColumns(conn, table)
		if err != nil {
			return err
		}
		for _, c := range columns {
			if !expected[strings.ToLower(c.Name)] {
				collector.UnknownColumn(table, c.Name, c.Type, sourceFile, artifactType)
			}
		}
	}
	return nil
}

func matchesAny(name string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		if ok, err := path.Match(strings.ToLower(pattern), name); err == nil && ok {
			return true
		}
	}
	return false
}

// UnknownJSONKeys walks a JSON document and returns the dotted key paths the
// allow-list does not cover, sorted. A known path covers all of its
// descendants, so allowing "profile" silences "profile.name" as well.
// maxDepth bounds the walk; 0 means unlimited.
func UnknownJSONKeys(doc string, known []string, maxDepth int) []string {
	if !gjson.Valid(doc) {
		return nil
	}

	allowed := make(map[string]bool, len(known))
	for _, k := range known {
		allowed[k] = true
	}

	seen := map[string]bool{}
	var walk func(value gjson.Result, prefix string, depth int)
	walk = func(value gjson.Result, prefix string, depth int) {
		if maxDepth > 0 && depth > maxDepth {
			return
		}
		if !value.IsObject() {
			return
		}
		value.ForEach(func(key, child gjson.Result) bool {
			keyPath := key.String()
			if prefix != "" {
				keyPath = prefix + "." + keyPath
			}
			if covered(keyPath, allowed) {
				return true
			}
			if child.IsObject() {
				// Unknown branch: report children individually so the
				// warning names the leaf that actually drifted.
				walk(child, keyPath, depth+1)
				return true
			}
			seen[keyPath] = true
			return true
		})
	}
	walk(gjson.Parse(doc), "", 1)

	unknown := make([]string, 0, len(seen))
	for keyPath := range seen {
		unknown = append(unknown, keyPath)
	}
	sort.Strings(unknown)
	return unknown
}

func covered(keyPath string, allowed map[string]bool) bool {
	if allowed[keyPath] {
		return true
	}
	for i := len(keyPath) - 1; i > 0; i-- {
		if keyPath[i] == '.' && allowed[keyPath[:i]] {
			return true
		}
	}
	return false
}
