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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFileListRow(t *testing.T) {
	row := NewFileListRow(1, 2, "Users/alice/AppData/Local/Google/Chrome/User Data/Default/History", 4096)
	assert.Equal(t, "History", row.FileName)
	assert.Equal(t, "", row.Extension)
	assert.Equal(t, 2, row.PartitionIndex)
	assert.EqualValues(t, 4096, row.SizeBytes)

	row = NewFileListRow(1, 1, "Users/alice/Documents/Notes.TXT", 10)
	assert.Equal(t, "Notes.TXT", row.FileName)
	assert.Equal(t, ".txt", row.Extension)
}

func TestFileList(t *testing.T) {
	db := testDB(t)

	available, n := db.FileListAvailable(1)
	assert.False(t, available)
	assert.EqualValues(t, 0, n)

	require.NoError(t, db.InsertFileList([]FileListRow{
		NewFileListRow(1, 1, "Users/alice/a", 1),
		NewFileListRow(1, 1, "Users/alice/b", 2),
		NewFileListRow(1, 2, "Users/bob/c", 3),
		NewFileListRow(2, 1, "other/evidence", 4),
	}))

	available, n = db.FileListAvailable(1)
	assert.True(t, available)
	assert.EqualValues(t, 3, n)

	stats, err := db.FileListStats(1)
	require.NoError(t, err)
	assert.Equal(t, map[int]int64{1: 2, 2: 1}, stats)
}
