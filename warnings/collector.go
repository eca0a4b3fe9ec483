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

// Package warnings collects schema-drift findings during ingestion. Every
// parser keeps an allow-list of the tables, columns, keys and enum values it
// understands; anything outside that list is forensically significant and is
// recorded here instead of being silently dropped.
package warnings

import (
	"encoding/json"
	"fmt"
)

// Warning types.
const (
	TypeUnknownTable       = "unknown_table"
	TypeUnknownColumn      = "unknown_column"
	TypeUnknownEnumValue   = "unknown_enum_value"
	TypeUnknownCommand     = "unknown_command"
	TypeJSONParseError     = "json_parse_error"
	TypeJSONUnknownKey     = "json_unknown_key"
	TypeBinaryFormatError  = "binary_format_error"
	TypeFileCorrupt        = "file_corrupt"
	TypeVersionUnsupported = "version_unsupported"
)

// Warning categories.
const (
	CategoryDatabase = "database"
	CategoryJSON     = "json"
	CategoryBinary   = "binary"
)

// Warning severities.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Warning is a single extraction warning record.
type Warning struct {
	ExtractorName string `json:"extractor_name"`
	RunID         string `json:"run_id"`
	EvidenceID    int64  `json:"evidence_id"`
	WarningType   string `json:"warning_type"`
	Category      string `json:"category,omitempty"`
	Severity      string `json:"severity"`
	ArtifactType  string `json:"artifact_type,omitempty"`
	SourceFile    string `json:"source_file,omitempty"`
	ItemName      string `json:"item_name"`
	ItemValue     string `json:"item_value,omitempty"`
	ContextJSON   string `json:"context_json,omitempty"`
}

// Inserter performs the single bulk insert of a flush. Implemented by
// browsercase.CaseDB.
type Inserter interface {
	InsertExtractionWarnings(warnings []Warning) (int, error)
}

// Collector buffers warnings for one (extractor, run, evidence) scope and
// writes them once per run. It is not safe for concurrent use; each run
// owns its own collector.
type Collector struct {
	ExtractorName string
	RunID         string
	EvidenceID    int64

	buffer []Warning
}

// NewCollector creates a collector scoped to one extraction run.
func NewCollector(extractorName, runID string, evidenceID int64) *Collector {
	return &Collector{ExtractorName: extractorName, RunID: runID, EvidenceID: evidenceID}
}

// Add appends a warning to the buffer. Context may be nil.
func (c *Collector) Add(warningType, category, severity, artifactType, sourceFile, itemName, itemValue string, context map[string]interface{}) {
	contextJSON := ""
	if len(context) > 0 {
		if b, err := json.Marshal(context); err == nil {
			contextJSON = string(b)
		}
	}
	c.buffer = append(c.buffer, Warning{
		ExtractorName: c.ExtractorName,
		RunID:         c.RunID,
		EvidenceID:    c.EvidenceID,
		WarningType:   warningType,
		Category:      category,
		Severity:      severity,
		ArtifactType:  artifactType,
		SourceFile:    sourceFile,
		ItemName:      itemName,
		ItemValue:     itemValue,
		ContextJSON:   contextJSON,
	})
}

// UnknownTable records a table the parser does not understand.
func (c *Collector) UnknownTable(table string, columns []string, sourceFile, artifactType string) {
	c.Add(TypeUnknownTable, CategoryDatabase, SeverityWarning, artifactType, sourceFile,
		table, "", map[string]interface{}{"columns": columns})
}

// UnknownColumn records a column the parser does not understand.
func (c *Collector) UnknownColumn(table, column, columnType, sourceFile, artifactType string) {
	c.Add(TypeUnknownColumn, CategoryDatabase, SeverityInfo, artifactType, sourceFile,
		column, columnType, map[string]interface{}{"table": table})
}

// UnknownEnumValue records an enum value outside the parser's known set.
func (c *Collector) UnknownEnumValue(enumName string, value interface{}, sourceFile, artifactType string) {
	c.Add(TypeUnknownEnumValue, CategoryDatabase, SeverityInfo, artifactType, sourceFile,
		enumName, fmt.Sprint(value), nil)
}

// UnknownCommand records a binary command id outside the parser's known set.
func (c *Collector) UnknownCommand(format string, commandID int, sourceFile, artifactType string) {
	c.Add(TypeUnknownCommand, CategoryBinary, SeverityInfo, artifactType, sourceFile,
		format, fmt.Sprint(commandID), nil)
}

// JSONParseError records a JSON document that could not be decoded.
func (c *Collector) JSONParseError(filename, errMsg, artifactType string) {
	c.Add(TypeJSONParseError, CategoryJSON, SeverityError, artifactType, filename,
		filename, errMsg, nil)
}

// FileCorrupt records a file that could not be parsed at all.
func (c *Collector) FileCorrupt(filename, errMsg, artifactType string) {
	c.Add(TypeFileCorrupt, CategoryBinary, SeverityError, artifactType, filename,
		filename, errMsg, nil)
}

// BinaryFormatError records a structural error inside a binary format.
func (c *Collector) BinaryFormatError(filename, errMsg, artifactType string) {
	c.Add(TypeBinaryFormatError, CategoryBinary, SeverityError, artifactType, filename,
		filename, errMsg, nil)
}

// VersionUnsupported records a file version the parser refuses, e.g. an
// encrypted SNSS file.
func (c *Collector) VersionUnsupported(filename string, version int, artifactType string) {
	c.Add(TypeVersionUnsupported, CategoryBinary, SeverityWarning, artifactType, filename,
		"version", fmt.Sprint(version), nil)
}

// Count returns the number of buffered warnings.
func (c *Collector) Count() int {
	return len(c.buffer)
}

// HasErrors reports whether any buffered warning has error severity.
func (c *Collector) HasErrors() bool {
	for _, w := range c.buffer {
		if w.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Warnings returns a copy of the buffer.
func (c *Collector) Warnings() []Warning {
	out := make([]Warning, len(c.buffer))
	copy(out, c.buffer)
	return out
}

// Flush performs exactly one bulk insert of the buffered warnings and
// clears the buffer, so a second flush inserts nothing. Safe to call with
// an empty buffer; call it from a defer so that warnings collected before a
// mid-ingestion failure still reach the database.
func (c *Collector) Flush(inserter Inserter) (int, error) {
	if len(c.buffer) == 0 {
		return 0, nil
	}
	n, err := inserter.InsertExtractionWarnings(c.buffer)
	if err != nil {
		return n, err
	}
	c.buffer = c.buffer[:0]
	return n, nil
}

// Clear drops all buffered warnings without saving them.
func (c *Collector) Clear() {
	c.buffer = c.buffer[:0]
}
