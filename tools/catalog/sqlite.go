/*
 * Copyright 2020 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 *     Unless required by applicable law or agreed to in writing, software
 *     distributed under the License is distributed on an "AS IS" BASIS,
 *     WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *     See the License for the specific language governing permissions and
 *     limitations under the License.
 */
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// SQLiteSink appends sample tables to a SQLite database, one run at a time.
// Every run gets a row in runs and its samples in samples, keyed by RUN_ID.
type SQLiteSink struct {
	db *sql.DB
}

func sqlType(k Kind) string {
	switch k {
	case Int, Bool:
		return "INTEGER"
	case Float:
		return "REAL"
	}
	return "TEXT"
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// The sample table always has the full column set; runs without geometry leave it NULL.
	defs := []string{"RUN_ID TEXT NOT NULL REFERENCES runs(RUN_ID)"}
	for _, cols := range [][]Column{arrivalColumns, geometryColumns, sampleColumns} {
		for _, col := range cols {
			defs = append(defs, fmt.Sprintf("%v %v", col.Name, sqlType(col.Kind)))
		}
	}
	for _, stmt := range []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"CREATE TABLE IF NOT EXISTS runs (RUN_ID TEXT PRIMARY KEY, NAME TEXT, CREATED_AT TEXT)",
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS samples (%v)", strings.Join(defs, ", ")),
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("%q: %w", stmt, err)
		}
	}
	return &SQLiteSink{db: db}, nil
}

func sqlValue(v interface{}) interface{} {
	switch v := v.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
	case bool:
		if v {
			return 1
		}
		return 0
	}
	return v
}

// WriteRun stores records as a new run named name and returns its id.
func (s *SQLiteSink) WriteRun(ctx context.Context, name string, records []EnrichedSampleRecord) (string, error) {
	runID := uuid.New().String()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "INSERT INTO runs (RUN_ID, NAME, CREATED_AT) VALUES (?, ?, ?)", runID, name, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return "", err
	}
	if len(records) > 0 {
		columns := Columns(&records[0])
		names := []string{"RUN_ID"}
		marks := []string{"?"}
		for _, col := range columns {
			names = append(names, col.Name)
			marks = append(marks, "?")
		}
		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO samples (%v) VALUES (%v)", strings.Join(names, ", "), strings.Join(marks, ", ")))
		if err != nil {
			return "", err
		}
		defer stmt.Close()
		args := make([]interface{}, len(names))
		args[0] = runID
		for recIdx := range records {
			for idx, col := range columns {
				args[idx+1] = sqlValue(col.Value(&records[recIdx]))
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return "", fmt.Errorf("inserting %v: %w", records[recIdx].Filename, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return runID, nil
}

// Filenames returns the sample filenames of a run in insertion order.
func (s *SQLiteSink) Filenames(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT FILENAME FROM samples WHERE RUN_ID = ? ORDER BY rowid", runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res = append(res, name)
	}
	return res, rows.Err()
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
