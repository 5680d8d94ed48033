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

package storage

import (
	"context"
)

// Scope is a re-entrant acquisition of Storage's single underlying
// *sql.Tx. It is modeled on the teacher's twopc.Coordinator
// prepare/commit/rollback shape and xenomint.State's single shared
// executer across a transaction boundary, collapsed from a
// distributed two-phase commit down to one in-process participant: no
// network phase applies to an embedded store, only the nesting-counter
// and fail-flag idea survives.
//
// A per-Storage counter tracks nesting depth. Begin increments it; when
// depth transitions 0->1 a real *sql.Tx begins. End decrements it; when
// depth transitions 1->0, the transaction commits if the fail-flag is
// clear, else rolls back. The fail-flag is write-once per outermost
// scope: once set it cannot be cleared before the scope ends, though
// setting it does not itself abort anything — the scope's remaining
// statements still run (pointlessly, since the whole thing is about to
// roll back) until End observes the flag.
type Scope struct {
	st    *Storage
	ended bool
}

// Begin acquires a Scope. Storage is not safe to use concurrently from
// multiple goroutines while a Scope is open; callers must serialize
// mutating operations (see package docstore's single-writer model).
func (s *Storage) Begin(ctx context.Context) (*Scope, error) {
	s.depth++

	if s.depth == 1 {
		tx, err := s.conn.BeginTx(ctx, nil)
		if err != nil {
			s.depth--
			return nil, classify(err)
		}
		s.tx = tx
		s.failed = false
	}

	return &Scope{st: s}, nil
}

// Fail sets the store's fail-flag, forcing a rollback when the
// outermost Scope ends. Safe to call more than once or from a nested
// Scope; the flag is shared by the whole outermost transaction.
func (sc *Scope) Fail() {
	sc.st.failed = true
}

// Failed reports whether the fail-flag has been set on the current
// outermost transaction.
func (sc *Scope) Failed() bool {
	return sc.st.failed
}

// End releases the Scope. At nesting depth 0 it commits the
// transaction if the fail-flag is clear, or rolls back if it is set,
// and resets the flag for the store's next transaction. End is
// idempotent: calling it twice on the same Scope is a no-op the second
// time, which lets callers defer sc.End() unconditionally alongside an
// explicit call on the success path.
func (sc *Scope) End() error {
	if sc.ended {
		return nil
	}
	sc.ended = true

	sc.st.depth--
	if sc.st.depth > 0 {
		return nil
	}

	tx := sc.st.tx
	sc.st.tx = nil
	failed := sc.st.failed
	sc.st.failed = false

	if tx == nil {
		return nil
	}
	if failed {
		return classify(tx.Rollback())
	}
	return classify(tx.Commit())
}

// ReadOnly runs fn with a dedicated read transaction for operations
// that need a consistent snapshot across more than one query (allDocuments'
// update_seq, in particular) without participating in the write
// fail-flag protocol. It does not nest with Begin/End.
func (s *Storage) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	// go-sqlite3 does not support the sql.TxOptions.ReadOnly hint
	// (only Isolation); a plain transaction still gives us the
	// consistent-snapshot guarantee allDocuments' update_seq needs.
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}

	prevTx, prevDepth := s.tx, s.depth
	s.tx, s.depth = tx, 1
	defer func() {
		s.tx, s.depth = prevTx, prevDepth
	}()

	if err := fn(ctx); err != nil {
		tx.Rollback()
		return err
	}
	return classify(tx.Commit())
}
