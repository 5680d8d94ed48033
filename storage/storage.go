/*
 * Copyright 2018 The CovenantSQL Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package storage is a thin adapter over database/sql and go-sqlite3,
// exposing typed statements against the single `docs` table that backs
// the document-revision store. It knows the table's columns; it does
// not know about revision trees, conflicts, or generations — that
// policy lives in package docstore.
//
// Although a sql.DB should be safe for concurrent use, go-sqlite3 only
// guarantees the safety of concurrent readers; callers should perform
// as many concurrent read operations as they like but funnel writes
// through a single TransactionScope at a time.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// Row mirrors one row of the docs table.
type Row struct {
	Sequence int64
	DocID    string
	RevID    string
	Parent   sql.NullInt64
	Current  bool
	Deleted  bool
	JSON     []byte // nil means SQL NULL
}

// Storage wraps a single sqlite-backed `docs` table, plus the nested
// transaction bookkeeping TransactionScope (txn.go) drives.
type Storage struct {
	conn   *sql.DB
	tx     *sql.Tx
	depth  int
	failed bool
}

// Open opens (creating if absent) the sqlite file at dsn and ensures
// the docs schema and its indexes exist. dsn is parsed and
// re-formatted through DSN first, so callers may pass either a bare
// path or a full "file:...?key=value" connection string. busyTimeout
// configures PRAGMA busy_timeout, the retry window a writer waits for
// a lock before failing with ErrBusy (spec default: 10s).
func Open(dsn string, busyTimeout time.Duration) (*Storage, error) {
	parsed, err := NewDSN(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "storage: parse dsn")
	}

	conn, err := sql.Open("sqlite3", parsed.Format())
	if err != nil {
		return nil, errors.Wrap(err, "storage: open")
	}
	// go-sqlite3 connections are not safe for concurrent writers; cap
	// the pool at one so database/sql serializes for us rather than
	// handing out a second, distinct connection mid-transaction.
	conn.SetMaxOpenConns(1)

	s := &Storage{conn: conn}

	if err := s.exec(context.Background(), fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds())); err != nil {
		return nil, err
	}
	if err := s.exec(context.Background(), "PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}
	if err := s.ensureSchema(context.Background()); err != nil {
		return nil, err
	}

	return s, nil
}

// OpenInMemory opens a private, non-shared in-memory database — handy
// for tests and for the demo command.
func OpenInMemory(busyTimeout time.Duration) (*Storage, error) {
	return Open("file::memory:", busyTimeout)
}

// Close closes the underlying connection.
func (s *Storage) Close() error {
	return s.conn.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS docs (
	sequence INTEGER PRIMARY KEY AUTOINCREMENT,
	docid    TEXT NOT NULL,
	revid    TEXT NOT NULL,
	parent   INTEGER NULL REFERENCES docs(sequence) ON DELETE SET NULL,
	current  BOOLEAN NOT NULL,
	deleted  BOOLEAN NOT NULL DEFAULT 0,
	json     BLOB NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS docs_docid_revid ON docs (docid, revid);
CREATE INDEX IF NOT EXISTS docs_docid_current ON docs (docid, current);
CREATE INDEX IF NOT EXISTS docs_sequence ON docs (sequence);
`

func (s *Storage) ensureSchema(ctx context.Context) error {
	return s.exec(ctx, schema)
}

// executor is the subset of *sql.DB / *sql.Tx this package drives
// queries through; whichever is active (a transaction, if one is open,
// else the raw connection) is selected by (*Storage).executor.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (s *Storage) executor() executor {
	if s.tx != nil {
		return s.tx
	}
	return s.conn
}

func (s *Storage) exec(ctx context.Context, query string, args ...interface{}) error {
	_, err := s.executor().ExecContext(ctx, query, args...)
	return classify(err)
}

// ErrBusy is returned by classify when the sqlite driver reports the
// connection was locked past PRAGMA busy_timeout.
var ErrBusy = errors.New("storage: busy")

func classify(err error) error {
	if err == nil {
		return nil
	}
	if sqliteErr, ok := err.(sqlite3.Error); ok {
		if sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked {
			return errors.Wrap(ErrBusy, err.Error())
		}
	}
	return errors.Wrap(err, "storage")
}

// InsertRevision inserts one docs row and returns its assigned
// sequence. parent is 0 to mean SQL NULL (root revision).
func (s *Storage) InsertRevision(ctx context.Context, r Row, parent int64) (int64, error) {
	var parentArg interface{}
	if parent > 0 {
		parentArg = parent
	}

	res, err := s.executor().ExecContext(ctx,
		`INSERT INTO docs (docid, revid, parent, current, deleted, json) VALUES (?, ?, ?, ?, ?, ?)`,
		r.DocID, r.RevID, parentArg, r.Current, r.Deleted, r.JSON,
	)
	if err != nil {
		return 0, classify(err)
	}
	return res.LastInsertId()
}

// SetCurrent flips the `current` flag of the row at sequence.
func (s *Storage) SetCurrent(ctx context.Context, sequence int64, current bool) error {
	return s.exec(ctx, `UPDATE docs SET current = ? WHERE sequence = ?`, current, sequence)
}

// ClearJSON nulls out json for every row with current = 0, returning
// the count of rows touched. Used by compact().
func (s *Storage) ClearJSON(ctx context.Context) (int64, error) {
	res, err := s.executor().ExecContext(ctx, `UPDATE docs SET json = NULL WHERE current = 0 AND json IS NOT NULL`)
	if err != nil {
		return 0, classify(err)
	}
	return res.RowsAffected()
}

func scanRow(scanner interface{ Scan(dest ...interface{}) error }) (Row, error) {
	var r Row
	err := scanner.Scan(&r.Sequence, &r.DocID, &r.RevID, &r.Parent, &r.Current, &r.Deleted, &r.JSON)
	return r, err
}

const rowColumns = `sequence, docid, revid, parent, current, deleted, json`

// ByDocAndRevID returns the unique row for (docID, revID), if any.
func (s *Storage) ByDocAndRevID(ctx context.Context, docID, revID string) (Row, bool, error) {
	row := s.executor().QueryRowContext(ctx,
		`SELECT `+rowColumns+` FROM docs WHERE docid = ? AND revid = ?`, docID, revID)
	r, err := scanRow(row)
	if err == sql.ErrNoRows {
		return Row{}, false, nil
	}
	if err != nil {
		return Row{}, false, classify(err)
	}
	return r, true, nil
}

// BySequence returns the row at sequence, if any.
func (s *Storage) BySequence(ctx context.Context, sequence int64) (Row, bool, error) {
	row := s.executor().QueryRowContext(ctx, `SELECT `+rowColumns+` FROM docs WHERE sequence = ?`, sequence)
	r, err := scanRow(row)
	if err == sql.ErrNoRows {
		return Row{}, false, nil
	}
	if err != nil {
		return Row{}, false, classify(err)
	}
	return r, true, nil
}

// CurrentByDocAndRevID returns the current=true row for (docID, revID),
// if any — used to resolve a prevRevID during put().
func (s *Storage) CurrentByDocAndRevID(ctx context.Context, docID, revID string) (Row, bool, error) {
	row := s.executor().QueryRowContext(ctx,
		`SELECT `+rowColumns+` FROM docs WHERE docid = ? AND revid = ? AND current = 1`, docID, revID)
	r, err := scanRow(row)
	if err == sql.ErrNoRows {
		return Row{}, false, nil
	}
	if err != nil {
		return Row{}, false, classify(err)
	}
	return r, true, nil
}

// CurrentLeaves returns every current=true row for docID, in no
// particular order.
func (s *Storage) CurrentLeaves(ctx context.Context, docID string) ([]Row, error) {
	rows, err := s.executor().QueryContext(ctx,
		`SELECT `+rowColumns+` FROM docs WHERE docid = ? AND current = 1`, docID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, r)
	}
	return out, classify(rows.Err())
}

// AllForDoc returns every row for docID ordered by descending sequence.
func (s *Storage) AllForDoc(ctx context.Context, docID string) ([]Row, error) {
	rows, err := s.executor().QueryContext(ctx,
		`SELECT `+rowColumns+` FROM docs WHERE docid = ? ORDER BY sequence DESC`, docID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, r)
	}
	return out, classify(rows.Err())
}

// ByParentChain walks backward from startSequence following `parent`
// links and returns each row visited, leaf first.
func (s *Storage) ByParentChain(ctx context.Context, startSequence int64) ([]Row, error) {
	var out []Row
	seq := startSequence

	for seq != 0 {
		row := s.executor().QueryRowContext(ctx, `SELECT `+rowColumns+` FROM docs WHERE sequence = ?`, seq)
		r, err := scanRow(row)
		if err == sql.ErrNoRows {
			break
		}
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, r)
		if r.Parent.Valid {
			seq = r.Parent.Int64
		} else {
			seq = 0
		}
	}

	return out, nil
}

// ChangesSince returns rows with sequence > since AND current = 1,
// ascending by sequence, capped at limit (0 means unlimited).
func (s *Storage) ChangesSince(ctx context.Context, since int64, limit int) ([]Row, error) {
	query := `SELECT ` + rowColumns + ` FROM docs WHERE sequence > ? AND current = 1 ORDER BY sequence ASC`
	args := []interface{}{since}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.executor().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, r)
	}
	return out, classify(rows.Err())
}

// CurrentNonDeletedPage returns current, non-deleted rows ordered by
// docid, paginated by skip/limit (limit <= 0 means unlimited).
func (s *Storage) CurrentNonDeletedPage(ctx context.Context, descending bool, skip, limit int) ([]Row, error) {
	order := "ASC"
	if descending {
		order = "DESC"
	}
	query := fmt.Sprintf(`SELECT %s FROM docs WHERE current = 1 AND deleted = 0 ORDER BY docid %s`, rowColumns, order)
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, skip)
	} else if skip > 0 {
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, skip)
	}

	rows, err := s.executor().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, r)
	}
	return out, classify(rows.Err())
}

// CountCurrentNonDeleted returns the number of distinct docIDs with a
// current, non-deleted row.
func (s *Storage) CountCurrentNonDeleted(ctx context.Context) (int64, error) {
	var n int64
	row := s.executor().QueryRowContext(ctx, `SELECT COUNT(DISTINCT docid) FROM docs WHERE current = 1 AND deleted = 0`)
	if err := row.Scan(&n); err != nil {
		return 0, classify(err)
	}
	return n, nil
}

// MaxSequence returns the highest assigned sequence, or 0 if empty.
func (s *Storage) MaxSequence(ctx context.Context) (int64, error) {
	var n sql.NullInt64
	row := s.executor().QueryRowContext(ctx, `SELECT MAX(sequence) FROM docs`)
	if err := row.Scan(&n); err != nil {
		return 0, classify(err)
	}
	if !n.Valid {
		return 0, nil
	}
	return n.Int64, nil
}

// RevPair is a (docID, revID) pair, usable as a map key.
type RevPair struct {
	DocID string
	RevID string
}

// ExistingPairs reports, for each (docID, revID) in pairs, whether a
// row exists locally. Implemented as a single indexed query over the
// union of the requested docIDs, matching every pair in one round
// trip rather than one query per pair.
func (s *Storage) ExistingPairs(ctx context.Context, pairs []RevPair) (map[RevPair]bool, error) {
	out := make(map[RevPair]bool, len(pairs))
	if len(pairs) == 0 {
		return out, nil
	}

	var docIDs []string
	seen := make(map[string]struct{}, len(pairs))
	for _, p := range pairs {
		if _, ok := seen[p.DocID]; !ok {
			seen[p.DocID] = struct{}{}
			docIDs = append(docIDs, p.DocID)
		}
		out[p] = false
	}

	placeholders := make([]string, len(docIDs))
	args := make([]interface{}, len(docIDs))
	for i, id := range docIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`SELECT docid, revid FROM docs WHERE docid IN (%s)`, joinPlaceholders(placeholders))
	rows, err := s.executor().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	for rows.Next() {
		var docID, revID string
		if err := rows.Scan(&docID, &revID); err != nil {
			return nil, classify(err)
		}
		key := RevPair{DocID: docID, RevID: revID}
		if _, wanted := out[key]; wanted {
			out[key] = true
		}
	}

	return out, classify(rows.Err())
}

func joinPlaceholders(ps []string) string {
	out := ps[0]
	for _, p := range ps[1:] {
		out += ", " + p
	}
	return out
}
