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

package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"github.com/qri-io/jsonschema"
	"github.com/spf13/afero"
)

// ManifestFilename is the fixed name of the extraction↔ingestion handoff
// file inside an extractor's output directory.
const ManifestFilename = "manifest.json"

// Manifest statuses. These and the JSON field names below are a stable
// interface other tooling may read.
const (
	StatusOK        = "ok"
	StatusPartial   = "partial"
	StatusCancelled = "cancelled"
	StatusError     = "error"
)

// Copy statuses of a single extracted file.
const (
	CopyOK    = "ok"
	CopyError = "error"
)

// ExtractedFile is the audit record of one copied evidence file.
type ExtractedFile struct {
	SourcePath     string `json:"source_path"`
	DestPath       string `json:"dest_path"`
	PartitionIndex int    `json:"partition_index"`
	CopyStatus     string `json:"copy_status"`
	SizeBytes      int64  `json:"size_bytes"`
	MD5            string `json:"md5,omitempty"`
	SHA256         string `json:"sha256,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
	Browser        string `json:"browser,omitempty"`
	Profile        string `json:"profile,omitempty"`
	FileType       string `json:"file_type,omitempty"`
}

// Manifest is the sole handoff artifact between the extraction and
// ingestion phases. Extraction writes it exactly once; ingestion reads it
// arbitrarily later, possibly from another process.
type Manifest struct {
	Extractor           string          `json:"extractor"`
	Version             string          `json:"version"`
	RunID               string          `json:"run_id"`
	EvidenceID          int64           `json:"evidence_id"`
	ExtractionTimestamp string          `json:"extraction_timestamp"`
	ToolVersion         string          `json:"tool_version,omitempty"`
	ImageContext        string          `json:"image_context,omitempty"`
	PartitionsScanned   []int           `json:"partitions_scanned"`
	Files               []ExtractedFile `json:"files"`
	Status              string          `json:"status"`
	Notes               []string        `json:"notes"`
}

// NewRunID returns a monotonic-sortable, globally unique run identifier.
func NewRunID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// DiscoveredBy builds the provenance tag carried by every ingested row.
func DiscoveredBy(extractor, version, runID string) string {
	return fmt.Sprintf("%s:%s:%s", extractor, version, runID)
}

var manifestSchema = []byte(`{
	"type": "object",
	"required": ["extractor", "version", "run_id", "evidence_id", "extraction_timestamp", "files", "status"],
	"properties": {
		"extractor": {"type": "string", "minLength": 1},
		"version": {"type": "string"},
		"run_id": {"type": "string", "minLength": 1},
		"evidence_id": {"type": "integer"},
		"extraction_timestamp": {"type": "string"},
		"status": {"enum": ["ok", "partial", "cancelled", "error"]},
		"notes": {"type": "array", "items": {"type": "string"}},
		"files": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["source_path", "partition_index", "copy_status"],
				"properties": {
					"source_path": {"type": "string"},
					"dest_path": {"type": "string"},
					"partition_index": {"type": "integer"},
					"copy_status": {"enum": ["ok", "error"]},
					"size_bytes": {"type": "integer"},
					"md5": {"type": "string"},
					"sha256": {"type": "string"},
					"error_message": {"type": "string"}
				}
			}
		}
	}
}`)

// ValidateManifest checks raw manifest bytes against the embedded schema.
func ValidateManifest(data []byte) error {
	schema := &jsonschema.Schema{}
	if err := json.Unmarshal(manifestSchema, schema); err != nil {
		return errors.Wrap(err, "could not parse manifest schema")
	}

	keyErrors, err := schema.ValidateBytes(context.Background(), data)
	if err != nil {
		return errors.Wrap(err, "could not validate manifest")
	}
	if len(keyErrors) > 0 {
		var msgs []string
		for _, keyError := range keyErrors {
			msgs = append(msgs, keyError.Error())
		}
		return errors.Errorf("invalid manifest: %v", msgs)
	}
	return nil
}

// WriteManifest persists the manifest to the output directory. Called
// exactly once per extraction, after the copy loop.
func WriteManifest(fs afero.Fs, outputDir string, manifest *Manifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return errors.Wrap(err, "could not encode manifest")
	}
	if err := fs.MkdirAll(outputDir, 0750); err != nil {
		return errors.Wrap(err, "could not create output directory")
	}
	return afero.WriteFile(fs, path.Join(outputDir, ManifestFilename), data, 0600)
}

// ReadManifest loads and validates a manifest. A missing manifest is one of
// the two fatal ingestion errors.
func ReadManifest(fs afero.Fs, outputDir string) (*Manifest, error) {
	data, err := afero.ReadFile(fs, path.Join(outputDir, ManifestFilename))
	if err != nil {
		return nil, errors.Wrapf(err, "no manifest in %s, run extraction first", outputDir)
	}
	if err := ValidateManifest(data); err != nil {
		return nil, err
	}
	manifest := &Manifest{}
	if err := json.Unmarshal(data, manifest); err != nil {
		return nil, errors.Wrap(err, "could not decode manifest")
	}
	return manifest, nil
}
