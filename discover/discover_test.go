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

package discover_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensicanalysis/browsercase"
	"github.com/forensicanalysis/browsercase/discover"
)

func TestGlobToLike(t *testing.T) {
	tests := []struct {
		glob string
		want string
	}{
		{"History", "History"},
		{"Users/*/AppData", "Users/%/AppData"},
		{"**/*.sqlite", "%/%.sqlite"},
		{"file?.db", "file_.db"},
		{"file_name.db", `file\_name.db`},
		{"100%.txt", `100\%.txt`},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.glob, func(t *testing.T) {
			assert.Equal(t, tt.want, discover.GlobToLike(tt.glob))
		})
	}
}

func TestParseInode(t *testing.T) {
	tests := []struct {
		raw  string
		want *int64
	}{
		{"42", int64Ptr(42)},
		{"3869-128-4", int64Ptr(3869)},
		{"", nil},
		{"not-a-number", nil},
		{"-5-1", nil},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := discover.ParseInode(tt.raw)
			if tt.want == nil {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.Equal(t, *tt.want, *got)
			}
		})
	}
}

func int64Ptr(n int64) *int64 { return &n }

func testEngine(t *testing.T) (*browsercase.CaseDB, *discover.Engine) {
	t.Helper()
	db, err := browsercase.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	rows := []browsercase.FileListRow{
		{EvidenceID: 1, PartitionIndex: 1, FilePath: "Users/john/AppData/Local/Google/Chrome/User Data/Default/History", FileName: "History", Inode: "100", SizeBytes: 4096, Extension: ""},
		{EvidenceID: 1, PartitionIndex: 1, FilePath: "Users/john/AppData/Local/Google/Chrome/User Data/Default/Cookies", FileName: "Cookies", Inode: "101-128-4", SizeBytes: 2048, Extension: ""},
		{EvidenceID: 1, PartitionIndex: 2, FilePath: "Portable/Browser/Default/History", FileName: "History", Inode: "200", SizeBytes: 1024, Extension: ""},
		{EvidenceID: 1, PartitionIndex: 1, FilePath: "Users/john/deleted/History", FileName: "History", Deleted: true},
		{EvidenceID: 1, PartitionIndex: 1, FilePath: "Users/john/places.sqlite", FileName: "places.sqlite", Extension: ".sqlite", SizeBytes: 512},
		{EvidenceID: 2, PartitionIndex: 1, FilePath: "Users/other/History", FileName: "History"},
	}
	require.NoError(t, db.InsertFileList(rows))

	return db, discover.NewEngine(db.Conn(), 1)
}

func TestDiscoverEmptyQuery(t *testing.T) {
	_, engine := testEngine(t)

	result := engine.Discover(discover.Query{})
	assert.True(t, result.IsEmpty())
	assert.Equal(t, "no patterns specified", result.QueryInfo)
}

func TestDiscoverExactFilename(t *testing.T) {
	_, engine := testEngine(t)

	// exact match is case-insensitive and skips deleted rows
	result := engine.Discover(discover.Query{FilenamePatterns: []string{"history"}})
	require.Equal(t, 2, result.TotalMatches)
	assert.True(t, result.IsMultiPartition())
	assert.Equal(t, []int{1, 2}, result.PartitionsWithMatches)

	first := result.MatchesByPartition[1][0]
	assert.Equal(t, "History", first.FileName)
	require.NotNil(t, first.Inode)
	assert.EqualValues(t, 100, *first.Inode)
	require.NotNil(t, first.SizeBytes)
	assert.EqualValues(t, 4096, *first.SizeBytes)
}

func TestDiscoverWildcardFilename(t *testing.T) {
	_, engine := testEngine(t)

	result := engine.Discover(discover.Query{FilenamePatterns: []string{"*.sqlite"}})
	require.Equal(t, 1, result.TotalMatches)
	assert.Equal(t, "places.sqlite", result.AllMatches()[0].FileName)
}

func TestDiscoverPathPatterns(t *testing.T) {
	_, engine := testEngine(t)

	// glob and LIKE forms both work
	for _, pattern := range []string{"%Chrome%User Data%", "*Chrome*User Data*"} {
		result := engine.Discover(discover.Query{PathPatterns: []string{pattern}})
		assert.Equal(t, 2, result.TotalMatches, pattern)
		assert.Equal(t, []int{1}, result.PartitionsWithMatches, pattern)
	}
}

func TestDiscoverCombinedClauses(t *testing.T) {
	_, engine := testEngine(t)

	// groups are ANDed, patterns within a group are ORed
	result := engine.Discover(discover.Query{
		FilenamePatterns: []string{"History", "Cookies"},
		PathPatterns:     []string{"%Chrome%"},
	})
	assert.Equal(t, 2, result.TotalMatches)

	result = engine.Discover(discover.Query{
		FilenamePatterns: []string{"History"},
		PathPatterns:     []string{"%Chrome%"},
		PartitionFilter:  []int{2},
	})
	assert.True(t, result.IsEmpty())
}

func TestDiscoverExtensionFilter(t *testing.T) {
	_, engine := testEngine(t)

	// extensions are normalized to a leading dot
	for _, ext := range []string{".sqlite", "sqlite", ".SQLITE"} {
		result := engine.Discover(discover.Query{ExtensionFilter: []string{ext}})
		assert.Equal(t, 1, result.TotalMatches, ext)
	}
}

func TestDiscoverIncludeDeleted(t *testing.T) {
	_, engine := testEngine(t)

	result := engine.Discover(discover.Query{
		FilenamePatterns: []string{"History"},
		IncludeDeleted:   true,
	})
	assert.Equal(t, 3, result.TotalMatches)
}

func TestDiscoverScopedToEvidence(t *testing.T) {
	_, engine := testEngine(t)

	// evidence 2 has a History row that must not leak into evidence 1 results
	result := engine.Discover(discover.Query{FilenamePatterns: []string{"History"}})
	for _, match := range result.AllMatches() {
		assert.NotEqual(t, "Users/other/History", match.FilePath)
	}
}

func TestDiscoverFailsSoft(t *testing.T) {
	db, err := browsercase.New(":memory:")
	require.NoError(t, err)
	defer db.Close()

	// engine pointed at a connection without a file_list table
	conn := db.Conn()
	stmt, err := conn.Prepare("DROP TABLE file_list")
	require.NoError(t, err)
	_, err = stmt.Step()
	require.NoError(t, err)
	require.NoError(t, stmt.Finalize())

	engine := discover.NewEngine(conn, 1)
	result := engine.Discover(discover.Query{FilenamePatterns: []string{"History"}})
	assert.True(t, result.IsEmpty())
	assert.Contains(t, result.QueryInfo, "query failed")
}

func TestResultSummary(t *testing.T) {
	_, engine := testEngine(t)

	empty := engine.Discover(discover.Query{FilenamePatterns: []string{"does-not-exist"}})
	assert.Equal(t, "no matches found", empty.Summary())

	result := engine.Discover(discover.Query{FilenamePatterns: []string{"History"}})
	assert.Equal(t, "2 matches (partition 1: 1, partition 2: 1)", result.Summary())
}
