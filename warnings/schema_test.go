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
	"testing"

	"crawshaw.io/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConn(t *testing.T, ddl ...string) *sqlite.Conn {
	t.Helper()
	conn, err := sqlite.OpenConn(":memory:", 0)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	for _, query := range ddl {
		stmt, err := conn.Prepare(query)
		require.NoError(t, err)
		_, err = stmt.Step()
		require.NoError(t, err)
		require.NoError(t, stmt.Finalize())
	}
	return conn
}

func TestInspectDatabase(t *testing.T) {
	conn := testConn(t,
		"CREATE TABLE urls (id INTEGER, url TEXT, title TEXT, new_flag INTEGER)",
		"CREATE TABLE visits (id INTEGER, url INTEGER)",
		"CREATE TABLE downloads_v2 (id INTEGER, target_path TEXT)",
		"CREATE TABLE meta (key TEXT, value TEXT)",
	)

	known := KnownSchema{
		"urls":   {"id", "url", "title"},
		"visits": {"id", "url"},
	}

	c := NewCollector("test", "run", 1)
	err := InspectDatabase(conn, known, []string{"downloads*"}, c, "History", "history")
	require.NoError(t, err)

	ws := c.Warnings()
	require.Len(t, ws, 2)

	// downloads_v2 matches the relevance pattern, meta does not
	assert.Equal(t, TypeUnknownTable, ws[0].WarningType)
	assert.Equal(t, "downloads_v2", ws[0].ItemName)
	assert.JSONEq(t, `{"columns":["id","target_path"]}`, ws[0].ContextJSON)

	// the extra column of a known table is always reported
	assert.Equal(t, TypeUnknownColumn, ws[1].WarningType)
	assert.Equal(t, "new_flag", ws[1].ItemName)
	assert.Equal(t, "INTEGER", ws[1].ItemValue)
}

func TestInspectDatabaseNoPatterns(t *testing.T) {
	conn := testConn(t, "CREATE TABLE meta (key TEXT)")

	c := NewCollector("test", "run", 1)
	require.NoError(t, InspectDatabase(conn, KnownSchema{}, nil, c, "History", "history"))

	ws := c.Warnings()
	require.Len(t, ws, 1)
	assert.Equal(t, "meta", ws[0].ItemName)
}

func TestTableColumns(t *testing.T) {
	conn := testConn(t, "CREATE TABLE urls (id INTEGER PRIMARY KEY, url TEXT)")

	columns, err := TableColumns(conn, "urls")
	require.NoError(t, err)
	assert.Equal(t, []Column{{"id", "INTEGER"}, {"url", "TEXT"}}, columns)
}

func TestUnknownJSONKeys(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		known    []string
		maxDepth int
		want     []string
	}{
		{
			"all known",
			`{"profile": {"name": "Default"}, "version": 3}`,
			[]string{"profile", "version"}, 0,
			nil,
		},
		{
			"unknown leaf",
			`{"profile": {"name": "Default"}, "experiment_flag": true}`,
			[]string{"profile"}, 0,
			[]string{"experiment_flag"},
		},
		{
			"unknown nested keys reported as leaves",
			`{"sync": {"engine": "v2", "state": 1}}`,
			nil, 0,
			[]string{"sync.engine", "sync.state"},
		},
		{
			"known prefix covers descendants",
			`{"sync": {"engine": "v2"}}`,
			[]string{"sync"}, 0,
			nil,
		},
		{
			"depth limit",
			`{"a": {"b": {"c": 1}}}`,
			nil, 1,
			nil,
		},
		{
			"invalid json",
			`{"a": `,
			nil, 0,
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UnknownJSONKeys(tt.doc, tt.known, tt.maxDepth)
			if tt.want == nil {
				assert.Empty(t, got)
			} else {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
