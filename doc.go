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

// Package browsercase creates and accesses case databases for browser
// artifact extraction (a SQLite database holding evidence file indexes,
// extracted artifact rows and extraction warnings).
//
// The case database
//
// A case database implements the following conventions:
//     - The case is a single SQLite file with a fixed application_id, so foreign databases are rejected on open.
//     - The file_list table indexes every file path of the evidence, per partition, and is the sole input of artifact discovery.
//     - Artifact rows carry full provenance: evidence id, run id, source path, partition index and the discovering tool version.
//     - All rows of one extraction run share a run id, so re-ingesting a run replaces exactly its own rows.
//     - Parser anomalies are recorded as rows in extraction_warnings instead of failing the extraction.
//
// Workflow
//
// Artifact extraction runs in two phases that communicate only through a
// manifest file and the case database:
//     case.db
//     ├── file_list            indexed evidence paths
//     ├── extracted_files      chain of custody for copied files
//     ├── session_windows      parsed artifact rows ...
//     ├── session_tabs
//     ├── session_navigations
//     ├── urls
//     └── extraction_warnings  schema drift and parse anomalies
package browsercase
