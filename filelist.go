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
	"path"
	"strings"

	"github.com/pkg/errors"
)

// FileListRow is one file on one partition of the evidence. The table is
// normally populated once by the indexer and consumed read-only by
// discovery.
type FileListRow struct {
	EvidenceID     int64
	PartitionIndex int
	FilePath       string
	FileName       string
	Inode          string
	SizeBytes      int64
	Extension      string
	Deleted        bool
}

// NewFileListRow derives file_name and extension from a path.
func NewFileListRow(evidenceID int64, partitionIndex int, filePath string, sizeBytes int64) FileListRow {
	name := path.Base(filePath)
	return FileListRow{
		EvidenceID:     evidenceID,
		PartitionIndex: partitionIndex,
		FilePath:       filePath,
		FileName:       name,
		SizeBytes:      sizeBytes,
		Extension:      strings.ToLower(path.Ext(name)),
	}
}

// InsertFileList adds rows to the file index.
func (db *CaseDB) InsertFileList(rows []FileListRow) error {
	for _, row := range rows {
		if err := db.insertStruct("file_list", row); err != nil {
			return errors.Wrap(err, "could not insert file_list row")
		}
	}
	return nil
}

// FileListAvailable reports whether the file index is populated for this
// evidence, and how many rows it holds. Discovery falls back to a live
// filesystem walk when it is not.
func (db *CaseDB) FileListAvailable(evidenceID int64) (bool, int64) {
	n, err := db.count("SELECT COUNT(*) AS n FROM file_list WHERE evidence_id = ?", evidenceID)
	if err != nil {
		return false, 0
	}
	return n > 0, n
}

// FileListStats returns the file count per partition.
func (db *CaseDB) FileListStats(evidenceID int64) (map[int]int64, error) {
	stmt, err := db.cursor.Prepare(
		"SELECT partition_index, COUNT(*) AS n FROM file_list WHERE evidence_id = ? " +
			"GROUP BY partition_index ORDER BY partition_index")
	if err != nil {
		return nil, err
	}
	stmt.BindInt64(1, evidenceID)

	stats := map[int]int64{}
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return nil, err
		}
		if !hasRow {
			break
		}
		stats[int(stmt.GetInt64("partition_index"))] = stmt.GetInt64("n")
	}
	return stats, stmt.Finalize()
}
