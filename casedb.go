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

// Package browsercase provides the case database for browser artifact
// extractions. It stores the per-evidence file index, the artifact rows
// produced by ingestion and the extraction warning log, all in a single
// SQLite file owned by one connection.
package browsercase

import (
	"fmt"
	"os"
	"path"
	"strings"

	"crawshaw.io/sqlite"
	"github.com/pkg/errors"
)

const caseVersion = 1
const caseApplicationID = 1651862885

// SQLTimeFormat is the timestamp layout used for all TEXT time columns.
const SQLTimeFormat = "2006-01-02T15:04:05.000Z"

// The CaseDB is the central storage for one evidence item. It holds the
// precomputed file index consumed by discovery, every artifact row produced
// by ingestion and the extraction warnings. The connection is single-owner:
// extraction and ingestion phases of a run use it sequentially, never
// concurrently.
type CaseDB struct {
	cursor *sqlite.Conn
}

var ErrCaseExists = fmt.Errorf("case database already exists")
var ErrCaseNotExists = fmt.Errorf("case database does not exist")

// New creates a new case database.
func New(url string) (*CaseDB, error) {
	return open(url, true)
}

// Open opens an existing case database.
func Open(url string) (*CaseDB, error) {
	return open(url, false)
}

func pragma(conn *sqlite.Conn, name string) (int64, error) {
	stmt, err := conn.Prepare("PRAGMA " + name)
	if err != nil {
		return 0, err
	}
	_, err = stmt.Step()
	if err != nil {
		return 0, err
	}
	i := stmt.GetInt64(name)
	return i, stmt.Finalize()
}

func setPragma(conn *sqlite.Conn, name string, i int64) error {
	stmt, err := conn.Prepare("PRAGMA " + name + " = " + fmt.Sprint(i))
	if err != nil {
		return err
	}
	_, err = stmt.Step()
	if err != nil {
		return err
	}
	return stmt.Finalize()
}

func open(url string, create bool) (*CaseDB, error) { // nolint:gocyclo
	if url != ":memory:" {
		url = strings.TrimRight(url, "/")

		exists := true
		_, err := os.Stat(url)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			exists = false
		}

		if create && exists {
			return nil, ErrCaseExists
		}
		if !create && !exists {
			return nil, ErrCaseNotExists
		}

		if create {
			err = os.MkdirAll(path.Dir(url), 0750)
			if err != nil {
				return nil, err
			}

			_, err := os.Create(url)
			if err != nil {
				return nil, err
			}
		}
	}

	db := &CaseDB{}

	var err error
	db.cursor, err = sqlite.OpenConn(url, 0)
	if err != nil {
		return nil, err
	}

	if create || url == ":memory:" {
		err = setPragma(db.cursor, "application_id", caseApplicationID)
		if err != nil {
			return nil, err
		}

		err = setPragma(db.cursor, "user_version", caseVersion)
		if err != nil {
			return nil, err
		}

		err = db.createTables()
		if err != nil {
			return nil, err
		}
	} else {
		applicationID, err := pragma(db.cursor, "application_id")
		if err != nil {
			return nil, err
		}
		if applicationID != caseApplicationID {
			msg := "wrong file format (application_id is %d, requires %d)"
			return nil, fmt.Errorf(msg, applicationID, caseApplicationID)
		}

		version, err := pragma(db.cursor, "user_version")
		if err != nil {
			return nil, err
		}
		if version != caseVersion {
			msg := "wrong file format (user_version is %d, requires %d)"
			return nil, fmt.Errorf(msg, version, caseVersion)
		}
	}

	return db, nil
}

var caseTables = []string{
	`CREATE TABLE IF NOT EXISTS file_list (
		evidence_id INTEGER NOT NULL,
		partition_index INTEGER NOT NULL DEFAULT 0,
		file_path TEXT NOT NULL,
		file_name TEXT NOT NULL,
		inode TEXT,
		size_bytes INTEGER,
		extension TEXT,
		deleted INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_file_list_name ON file_list (evidence_id, file_name)`,
	`CREATE INDEX IF NOT EXISTS idx_file_list_path ON file_list (evidence_id, file_path)`,
	`CREATE TABLE IF NOT EXISTS session_windows (
		id TEXT PRIMARY KEY,
		evidence_id INTEGER NOT NULL,
		run_id TEXT NOT NULL,
		source_path TEXT NOT NULL,
		partition_index INTEGER NOT NULL DEFAULT 0,
		discovered_by TEXT NOT NULL,
		browser TEXT,
		profile TEXT,
		window_id INTEGER,
		selected_tab_index INTEGER,
		window_type INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS session_tabs (
		id TEXT PRIMARY KEY,
		evidence_id INTEGER NOT NULL,
		run_id TEXT NOT NULL,
		source_path TEXT NOT NULL,
		partition_index INTEGER NOT NULL DEFAULT 0,
		discovered_by TEXT NOT NULL,
		browser TEXT,
		profile TEXT,
		tab_id INTEGER,
		window_id INTEGER,
		index_in_window INTEGER,
		pinned INTEGER,
		current_navigation_index INTEGER,
		last_active_time TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS session_navigations (
		id TEXT PRIMARY KEY,
		evidence_id INTEGER NOT NULL,
		run_id TEXT NOT NULL,
		source_path TEXT NOT NULL,
		partition_index INTEGER NOT NULL DEFAULT 0,
		discovered_by TEXT NOT NULL,
		browser TEXT,
		profile TEXT,
		tab_id INTEGER,
		nav_index INTEGER,
		url TEXT,
		title TEXT,
		referrer_url TEXT,
		original_request_url TEXT,
		timestamp TEXT,
		transition_type INTEGER,
		http_status_code INTEGER,
		has_post_data INTEGER,
		is_overriding_user_agent INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS urls (
		id TEXT PRIMARY KEY,
		evidence_id INTEGER NOT NULL,
		run_id TEXT NOT NULL,
		source_path TEXT NOT NULL,
		partition_index INTEGER NOT NULL DEFAULT 0,
		discovered_by TEXT NOT NULL,
		artifact_type TEXT,
		url TEXT,
		title TEXT,
		timestamp TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS extracted_files (
		id TEXT PRIMARY KEY,
		evidence_id INTEGER NOT NULL,
		run_id TEXT NOT NULL,
		extractor TEXT NOT NULL,
		source_path TEXT,
		dest_path TEXT,
		partition_index INTEGER NOT NULL DEFAULT 0,
		copy_status TEXT,
		size_bytes INTEGER,
		md5 TEXT,
		sha256 TEXT,
		error_message TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS extraction_warnings (
		id TEXT PRIMARY KEY,
		evidence_id INTEGER NOT NULL,
		run_id TEXT NOT NULL,
		extractor_name TEXT NOT NULL,
		warning_type TEXT NOT NULL,
		category TEXT,
		severity TEXT,
		artifact_type TEXT,
		source_file TEXT,
		item_name TEXT,
		item_value TEXT,
		context_json TEXT
	)`,
}

func (db *CaseDB) createTables() error {
	for _, ddl := range caseTables {
		if err := db.exec(ddl); err != nil {
			return errors.Wrap(err, "could not create case tables")
		}
	}
	return nil
}

// Conn exposes the underlying connection for components that build their own
// queries, e.g. the discovery engine.
func (db *CaseDB) Conn() *sqlite.Conn {
	return db.cursor
}

// Close closes the database connection.
func (db *CaseDB) Close() error {
	return db.cursor.Close()
}

func (db *CaseDB) exec(query string) error {
	stmt, err := db.cursor.Prepare(query)
	if err != nil {
		return err
	}

	_, err = stmt.Step()
	if err != nil {
		return err
	}

	return stmt.Finalize()
}

func (db *CaseDB) count(query string, binds ...interface{}) (int64, error) {
	stmt, err := db.cursor.Prepare(query)
	if err != nil {
		return 0, err
	}
	if err := bindAll(stmt, binds); err != nil {
		return 0, err
	}
	hasRow, err := stmt.Step()
	if err != nil {
		return 0, err
	}
	var n int64
	if hasRow {
		n = stmt.GetInt64("n")
	}
	return n, stmt.Finalize()
}

func bindAll(stmt *sqlite.Stmt, binds []interface{}) error {
	for i, bind := range binds {
		switch v := bind.(type) {
		case string:
			stmt.BindText(i+1, v)
		case int:
			stmt.BindInt64(i+1, int64(v))
		case int64:
			stmt.BindInt64(i+1, v)
		case bool:
			stmt.BindBool(i+1, v)
		case nil:
			stmt.BindNull(i + 1)
		default:
			return fmt.Errorf("unsupported bind type %T", bind)
		}
	}
	return nil
}
