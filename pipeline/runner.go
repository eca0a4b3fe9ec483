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

// Package pipeline is the generic two-phase extraction→ingestion workflow
// shared by every artifact extractor. Extraction copies evidence bytes into
// the case workspace and writes a manifest; ingestion re-opens the manifest,
// parses the local copies and inserts provenance-tagged rows. The phases
// communicate only through the manifest and the database, so either can be
// re-run independently and arbitrarily later.
package pipeline

import (
	"crypto/md5"  // #nosec
	"crypto/sha256"
	"fmt"
	"log"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/forensicanalysis/browsercase"
	"github.com/forensicanalysis/browsercase/discover"
	"github.com/forensicanalysis/browsercase/evidencefs"
	"github.com/forensicanalysis/browsercase/warnings"
)

// FileMeta is an extractor's classification of one discovered file, used to
// build the workspace filename and the ingestion context.
type FileMeta struct {
	Browser  string
	Profile  string
	FileType string
}

// Extractor is one artifact kind plugged into the pipeline. Implementations
// hold their own discovery engine and database helpers; the pipeline owns
// run identity, copying, the manifest and the warning flush.
type Extractor interface {
	Name() string
	Version() string
	ArtifactType() string
	// Discover returns the candidate files, grouped by partition.
	Discover() *discover.Result
	// Classify derives browser, profile and file type from a match.
	Classify(match discover.Match) FileMeta
	// DeleteRun removes all rows this extractor tagged with runID, making
	// re-ingestion idempotent.
	DeleteRun(evidenceID int64, runID string) (int64, error)
	// Parse decodes one local file copy and inserts provenance-tagged rows.
	// Soft failures go to the collector; a returned error marks the file
	// corrupt without aborting the remaining files.
	Parse(data []byte, file ExtractedFile, prov browsercase.Provenance, collector *warnings.Collector) (int, error)
}

// companionSuffixes are SQLite side files copied best-effort along with
// their main database, so ingestion sees uncommitted transactions too.
var companionSuffixes = []string{"-wal", "-journal", "-shm"}

// Runner executes extraction and ingestion runs against one evidence item.
type Runner struct {
	DB         *browsercase.CaseDB
	Opener     evidencefs.Opener
	Workspace  afero.Fs
	OutputDir  string
	EvidenceID int64
	Callbacks  Callbacks
}

func (r *Runner) callbacks() Callbacks {
	if r.Callbacks == nil {
		return NopCallbacks{}
	}
	return r.Callbacks
}

// IngestStats summarizes one ingestion run.
type IngestStats struct {
	FilesParsed  int
	Records      int
	RowsDeleted  int64
	WarningCount int
}

// RunExtraction performs the extraction phase: discover, copy per
// partition, write the manifest once. Per-file and per-partition failures
// are recorded and skipped; only a manifest write failure is fatal.
func (r *Runner) RunExtraction(extractor Extractor) (*Manifest, error) {
	cb := r.callbacks()
	runID := NewRunID()

	cb.OnStep(fmt.Sprintf("discovering %s files", extractor.ArtifactType()))
	result := extractor.Discover()

	manifest := &Manifest{
		Extractor:           extractor.Name(),
		Version:             extractor.Version(),
		RunID:               runID,
		EvidenceID:          r.EvidenceID,
		ExtractionTimestamp: time.Now().UTC().Format(browsercase.SQLTimeFormat),
		PartitionsScanned:   append([]int{}, result.PartitionsWithMatches...),
		Files:               []ExtractedFile{},
		Status:              StatusOK,
		Notes:               []string{},
	}

	cb.OnLog(result.Summary(), "info")

	total := result.TotalMatches
	done := 0
	cancelled := false

	for _, partition := range result.PartitionsWithMatches {
		if cancelled {
			break
		}

		handle, err := r.Opener.OpenPartition(partition)
		if err != nil {
			note := fmt.Sprintf("could not open partition %d: %v", partition, err)
			log.Printf("%s", note)
			manifest.Notes = append(manifest.Notes, note)
			continue
		}

		// scoped handle, closed before the next partition opens
		func() {
			defer handle.Close()

			for _, match := range result.MatchesByPartition[partition] {
				if cb.IsCancelled() {
					manifest.Status = StatusCancelled
					manifest.Notes = append(manifest.Notes, "extraction cancelled")
					cancelled = true
					return
				}

				done++
				cb.OnProgress(done, total, fmt.Sprintf("copying %s (partition %d)", match.FileName, partition))

				meta := extractor.Classify(match)
				file := r.extractFile(handle, match, meta, extractor.Name())
				manifest.Files = append(manifest.Files, file)
				if file.CopyStatus == CopyError {
					manifest.Notes = append(manifest.Notes,
						fmt.Sprintf("failed to copy %s: %s", match.FilePath, file.ErrorMessage))
					continue
				}

				manifest.Files = append(manifest.Files, r.copyCompanions(handle, match, file)...)
			}
		}()
	}

	if manifest.Status == StatusOK {
		for _, file := range manifest.Files {
			if file.CopyStatus == CopyError {
				manifest.Status = StatusPartial
				break
			}
		}
	}

	if r.DB != nil {
		if err := r.recordExtractedFiles(extractor, runID, manifest.Files); err != nil {
			manifest.Notes = append(manifest.Notes, fmt.Sprintf("audit insert failed: %v", err))
		}
	}

	cb.OnStep("writing manifest")
	if err := WriteManifest(r.Workspace, r.OutputDir, manifest); err != nil {
		return nil, err
	}

	log.Printf("extraction complete: %d files, status=%s", len(manifest.Files), manifest.Status)
	return manifest, nil
}

// extractFile reads one evidence file, hashes it and writes it under a
// collision-proof workspace name. Failures are values, not errors.
func (r *Runner) extractFile(handle evidencefs.Handle, match discover.Match, meta FileMeta, extractorName string) ExtractedFile {
	file := ExtractedFile{
		SourcePath:     match.FilePath,
		PartitionIndex: match.PartitionIndex,
		Browser:        meta.Browser,
		Profile:        meta.Profile,
		FileType:       meta.FileType,
	}

	data, err := handle.ReadFile(match.FilePath)
	if err != nil {
		file.CopyStatus = CopyError
		file.ErrorMessage = err.Error()
		return file
	}

	md5sum := fmt.Sprintf("%x", md5.Sum(data)) // #nosec
	destName := destFilename(extractorName, meta, match, md5sum)
	destPath := path.Join(r.OutputDir, destName)

	if err := afero.WriteFile(r.Workspace, destPath, data, 0600); err != nil {
		file.CopyStatus = CopyError
		file.ErrorMessage = err.Error()
		return file
	}

	file.CopyStatus = CopyOK
	file.DestPath = destPath
	file.SizeBytes = int64(len(data))
	file.MD5 = md5sum
	file.SHA256 = fmt.Sprintf("%x", sha256.Sum256(data))
	return file
}

// copyCompanions copies SQLite -wal/-journal/-shm side files best-effort.
// Absence is normal and silent.
func (r *Runner) copyCompanions(handle evidencefs.Handle, match discover.Match, main ExtractedFile) []ExtractedFile {
	var companions []ExtractedFile
	for _, suffix := range companionSuffixes {
		data, err := handle.ReadFile(match.FilePath + suffix)
		if err != nil {
			continue
		}
		destPath := main.DestPath + suffix
		if err := afero.WriteFile(r.Workspace, destPath, data, 0600); err != nil {
			continue
		}
		companions = append(companions, ExtractedFile{
			SourcePath:     match.FilePath + suffix,
			DestPath:       destPath,
			PartitionIndex: match.PartitionIndex,
			CopyStatus:     CopyOK,
			SizeBytes:      int64(len(data)),
			MD5:            fmt.Sprintf("%x", md5.Sum(data)), // #nosec
			SHA256:         fmt.Sprintf("%x", sha256.Sum256(data)),
			Browser:        main.Browser,
			Profile:        main.Profile,
			FileType:       main.FileType + "_companion",
		})
	}
	return companions
}

// destFilename builds the workspace name. The hash prefix guards against
// two files at different evidence paths mapping to the same
// browser/profile/type/partition tuple; the timestamp suffix keeps the
// Chrome 100+ Session_<timestamp> identity readable.
func destFilename(extractorName string, meta FileMeta, match discover.Match, md5sum string) string {
	safeProfile := strings.NewReplacer(" ", "_", "/", "_").Replace(meta.Profile)
	if safeProfile == "" {
		safeProfile = "Default"
	}

	timestampSuffix := ""
	if idx := strings.Index(match.FileName, "_"); idx >= 0 && idx+1 < len(match.FileName) {
		rest := match.FileName[idx+1:]
		if strings.ContainsAny(rest, "0123456789") {
			timestampSuffix = "_" + rest
		}
	}

	return fmt.Sprintf("%s_%s_%s_%s_p%d%s_%s",
		extractorName, meta.Browser, safeProfile, meta.FileType,
		match.PartitionIndex, timestampSuffix, md5sum[:8])
}

func (r *Runner) recordExtractedFiles(extractor Extractor, runID string, files []ExtractedFile) error {
	records := make([]browsercase.ExtractedFileRecord, 0, len(files))
	for _, file := range files {
		records = append(records, browsercase.ExtractedFileRecord{
			EvidenceID:     r.EvidenceID,
			RunID:          runID,
			Extractor:      extractor.Name(),
			SourcePath:     file.SourcePath,
			DestPath:       file.DestPath,
			PartitionIndex: file.PartitionIndex,
			CopyStatus:     file.CopyStatus,
			SizeBytes:      file.SizeBytes,
			MD5:            file.MD5,
			SHA256:         file.SHA256,
			ErrorMessage:   file.ErrorMessage,
		})
	}
	return r.DB.InsertExtractedFiles(records)
}

// RunIngestion performs the ingestion phase: read and validate the
// manifest, delete this run's previous rows, parse every successfully
// copied file, flush warnings once. A per-file parse failure becomes a
// file_corrupt warning; only a missing manifest or a database failure is
// fatal.
func (r *Runner) RunIngestion(extractor Extractor) (*IngestStats, error) {
	cb := r.callbacks()
	stats := &IngestStats{}

	cb.OnStep("reading manifest")
	manifest, err := ReadManifest(r.Workspace, r.OutputDir)
	if err != nil {
		cb.OnError("manifest not found", err.Error())
		return nil, err
	}

	collector := warnings.NewCollector(extractor.Name(), manifest.RunID, r.EvidenceID)
	// guaranteed flush, so a failure mid-ingestion still surfaces the
	// warnings collected up to that point
	defer func() {
		n, flushErr := collector.Flush(r.DB)
		if flushErr != nil {
			log.Printf("could not flush warnings: %v", flushErr)
			return
		}
		stats.WarningCount = n
		if n > 0 {
			cb.OnLog(fmt.Sprintf("recorded %d extraction warnings", n), "info")
		}
	}()

	deleted, err := extractor.DeleteRun(r.EvidenceID, manifest.RunID)
	if err != nil {
		return nil, errors.Wrap(err, "could not clear previous run")
	}
	stats.RowsDeleted = deleted
	if deleted > 0 {
		log.Printf("cleared %d rows from previous ingestion of run %s", deleted, manifest.RunID)
	}

	discoveredBy := DiscoveredBy(manifest.Extractor, manifest.Version, manifest.RunID)

	for i, file := range manifest.Files {
		if cb.IsCancelled() {
			break
		}
		if file.CopyStatus != CopyOK {
			cb.OnLog(fmt.Sprintf("skipping failed copy of %s: %s", file.SourcePath, file.ErrorMessage), "warning")
			continue
		}

		cb.OnProgress(i+1, len(manifest.Files), fmt.Sprintf("parsing %s", path.Base(file.DestPath)))

		data, err := afero.ReadFile(r.Workspace, file.DestPath)
		if err != nil {
			collector.FileCorrupt(file.SourcePath, err.Error(), extractor.ArtifactType())
			continue
		}

		prov := browsercase.Provenance{
			EvidenceID:     r.EvidenceID,
			RunID:          manifest.RunID,
			SourcePath:     file.SourcePath,
			PartitionIndex: file.PartitionIndex,
			DiscoveredBy:   discoveredBy,
		}

		records, err := extractor.Parse(data, file, prov, collector)
		if err != nil {
			collector.FileCorrupt(file.SourcePath, err.Error(), extractor.ArtifactType())
			continue
		}
		stats.FilesParsed++
		stats.Records += records
	}

	return stats, nil
}
