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
	"github.com/pkg/errors"

	"github.com/forensicanalysis/browsercase/warnings"
)

// InsertExtractionWarnings writes a batch of warnings in a single
// transaction. It implements warnings.Inserter, so a warnings.Collector can
// flush straight into the case database.
func (db *CaseDB) InsertExtractionWarnings(batch []warnings.Warning) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	if err := db.exec("BEGIN"); err != nil {
		return 0, errors.Wrap(err, "could not begin warning insert")
	}

	inserted := 0
	for _, w := range batch {
		row := struct {
			ID            string
			EvidenceID    int64
			RunID         string
			ExtractorName string
			WarningType   string
			Category      string
			Severity      string
			ArtifactType  string
			SourceFile    string
			ItemName      string
			ItemValue     string
			ContextJSON   string
		}{
			ID:            NewID("extraction-warning"),
			EvidenceID:    w.EvidenceID,
			RunID:         w.RunID,
			ExtractorName: w.ExtractorName,
			WarningType:   w.WarningType,
			Category:      w.Category,
			Severity:      w.Severity,
			ArtifactType:  w.ArtifactType,
			SourceFile:    w.SourceFile,
			ItemName:      w.ItemName,
			ItemValue:     w.ItemValue,
			ContextJSON:   w.ContextJSON,
		}
		if err := db.insertStruct("extraction_warnings", row); err != nil {
			_ = db.exec("ROLLBACK")
			return 0, errors.Wrap(err, "could not insert extraction warning")
		}
		inserted++
	}

	if err := db.exec("COMMIT"); err != nil {
		return 0, errors.Wrap(err, "could not commit warning insert")
	}
	return inserted, nil
}

// WarningsByRun returns the warnings stored for one extraction run, in
// insertion order.
func (db *CaseDB) WarningsByRun(evidenceID int64, runID string) ([]warnings.Warning, error) {
	stmt, err := db.cursor.Prepare(
		"SELECT extractor_name, warning_type, category, severity, artifact_type, " +
			"source_file, item_name, item_value, context_json " +
			"FROM extraction_warnings WHERE evidence_id = ? AND run_id = ? ORDER BY rowid")
	if err != nil {
		return nil, err
	}
	stmt.BindInt64(1, evidenceID)
	stmt.BindText(2, runID)

	var out []warnings.Warning
	for {
		hasRow, err := stmt.Step()
		if err != nil {
			return nil, err
		}
		if !hasRow {
			break
		}
		out = append(out, warnings.Warning{
			EvidenceID:    evidenceID,
			RunID:         runID,
			ExtractorName: stmt.GetText("extractor_name"),
			WarningType:   stmt.GetText("warning_type"),
			Category:      stmt.GetText("category"),
			Severity:      stmt.GetText("severity"),
			ArtifactType:  stmt.GetText("artifact_type"),
			SourceFile:    stmt.GetText("source_file"),
			ItemName:      stmt.GetText("item_name"),
			ItemValue:     stmt.GetText("item_value"),
			ContextJSON:   stmt.GetText("context_json"),
		})
	}
	return out, stmt.Finalize()
}
