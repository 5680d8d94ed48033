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

// Package docstore is the central component of ldb: it owns a
// storage.Storage, enforces the revision-tree invariants, assigns
// sequences and revision ids, runs the change feed, and answers the
// replication-support queries. Everything else in this module exists
// to give DocumentStore somewhere to put its bytes.
package docstore

import (
	"context"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"

	"github.com/couchkit/ldb/internal/bus"
	"github.com/couchkit/ldb/internal/log"
	"github.com/couchkit/ldb/revid"
	"github.com/couchkit/ldb/revision"
	"github.com/couchkit/ldb/storage"
)

// DocumentStore is the embedded document-revision store. A single
// instance must not be used concurrently from more than one goroutine
// for mutating operations (put, forceInsert, compact) — see §5 of
// SPEC_FULL.md. Reads made outside a transaction may overlap each
// other, but AllDocuments with IncludeUpdateSeq installs its own
// transaction on the shared storage without locking, so it must not
// overlap any other call.
type DocumentStore struct {
	st    *storage.Storage
	cache *storage.LeafCache
	opts  Options
	bus   *bus.Bus

	mu            sync.Mutex
	txDepth       int
	pendingEvents []ChangeEvent
}

// ChangeEvent is the notification payload dispatched to observers after
// a mutation's outermost transaction commits.
type ChangeEvent struct {
	Rev revision.Revision
	Seq int64
}

// Open opens (or creates) the sqlite file at dsn and returns a ready
// DocumentStore.
func Open(dsn string, opts Options) (*DocumentStore, error) {
	opts = opts.withDefaults()

	st, err := storage.Open(dsn, opts.BusyTimeout)
	if err != nil {
		return nil, err
	}

	return &DocumentStore{
		st:    st,
		cache: storage.NewLeafCache(opts.CacheSize),
		opts:  opts,
		bus:   bus.New(),
	}, nil
}

// OpenInMemory opens a private in-memory DocumentStore, for tests and
// short-lived tooling.
func OpenInMemory(opts Options) (*DocumentStore, error) {
	opts = opts.withDefaults()

	st, err := storage.OpenInMemory(opts.BusyTimeout)
	if err != nil {
		return nil, err
	}

	return &DocumentStore{
		st:    st,
		cache: storage.NewLeafCache(opts.CacheSize),
		opts:  opts,
		bus:   bus.New(),
	}, nil
}

// Close closes the underlying storage.
func (ds *DocumentStore) Close() error {
	return ds.st.Close()
}

// Subscribe registers an observer to be called, synchronously and in
// registration order, after every successful committed Put or
// ForceInsert (including those ApplyBulkDocs runs); Compact emits no
// event. It
// returns an unsubscribe function. Handlers must not call back into
// the store re-entrantly.
func (ds *DocumentStore) Subscribe(h func(ChangeEvent)) (unsubscribe func()) {
	return ds.bus.Subscribe(func(v interface{}) {
		h(v.(ChangeEvent))
	})
}

// txScope composes storage.Scope with DocumentStore's own nesting
// counter, so that change-notification dispatch can be deferred until
// the outermost scope commits, even when several store operations
// (e.g. ApplyBulkDocs' repeated forceInsert) share one outer scope.
type txScope struct {
	inner *storage.Scope
	ds    *DocumentStore
	ended bool
}

func (ds *DocumentStore) begin(ctx context.Context) (*txScope, error) {
	inner, err := ds.st.Begin(ctx)
	if err != nil {
		return nil, internal(err)
	}

	ds.mu.Lock()
	ds.txDepth++
	ds.opts.Metrics.TxDepth.Set(float64(ds.txDepth))
	ds.mu.Unlock()

	return &txScope{inner: inner, ds: ds}, nil
}

func (t *txScope) fail() {
	t.inner.Fail()
}

func (t *txScope) emit(ev ChangeEvent) {
	t.ds.mu.Lock()
	t.ds.pendingEvents = append(t.ds.pendingEvents, ev)
	t.ds.mu.Unlock()
}

// end commits (or rolls back, if fail() was called) when this is the
// outermost scope, and dispatches any queued ChangeEvents only once
// the commit has actually happened — never before, unlike the source
// behavior SPEC_FULL.md §9 calls out as a latent bug.
func (t *txScope) end() error {
	if t.ended {
		return nil
	}
	t.ended = true

	committed := !t.inner.Failed()
	err := t.inner.End()

	t.ds.mu.Lock()
	t.ds.txDepth--
	t.ds.opts.Metrics.TxDepth.Set(float64(t.ds.txDepth))
	outermost := t.ds.txDepth == 0
	var toDispatch []ChangeEvent
	if outermost {
		if committed && err == nil {
			toDispatch = t.ds.pendingEvents
		}
		t.ds.pendingEvents = nil
	}
	t.ds.mu.Unlock()

	for _, ev := range toDispatch {
		ds := t.ds
		ev := ev
		// Invalidate rather than Set: put() always leaves at most one
		// current leaf, so Set would be safe here, but forceInsert can
		// splice in a second current leaf (a conflict) without this
		// event knowing whether it's now the lexical winner.
		ds.cache.Invalidate(ev.Rev.DocID)
		ds.bus.Publish(ev)
	}

	return err
}

func genDocID() string {
	id, err := uuid.NewV4()
	if err != nil {
		// NewV4 only fails reading crypto/rand; NewV1 draws on the
		// system clock and MAC address instead, an independent source.
		id, _ = uuid.NewV1()
	}
	return id.String()
}

// Get returns the revision matching (docID, revID), or — if revID is
// empty — the current, non-deleted revision with the lexicographically
// greatest revid (the "largest revID wins" rule of SPEC_FULL.md §9's
// Open Question 2; this is a plain string comparison over the whole
// "<generation>-<digest>" token, not a numeric-generation comparison).
// Returns (nil, nil) if nothing matches; body is populated only if the
// stored json is non-null.
func (ds *DocumentStore) Get(ctx context.Context, docID, revID string) (*revision.Revision, error) {
	if docID == "" {
		return nil, badRequest("docID must not be empty")
	}

	if revID != "" {
		row, ok, err := ds.st.ByDocAndRevID(ctx, docID, revID)
		if err != nil {
			return nil, internal(err)
		}
		if !ok {
			return nil, nil
		}
		return rowToRevision(row), nil
	}

	if seq, ok := ds.cache.Get(docID); ok {
		row, ok, err := ds.st.BySequence(ctx, seq)
		if err == nil && ok && row.DocID == docID && row.Current && !row.Deleted {
			return rowToRevision(row), nil
		}
		// stale entry: fall through to the authoritative scan.
	}

	leaves, err := ds.st.CurrentLeaves(ctx, docID)
	if err != nil {
		return nil, internal(err)
	}

	var winner *storage.Row
	for i := range leaves {
		r := &leaves[i]
		if r.Deleted {
			continue
		}
		if winner == nil || r.RevID > winner.RevID {
			winner = r
		}
	}
	if winner == nil {
		return nil, nil
	}

	ds.cache.Set(docID, winner.Sequence)
	return rowToRevision(*winner), nil
}

// LoadBody populates rev.Body from storage, returning true if the row
// still exists (even when its json has been compacted away, in which
// case Body is left nil but no error occurs), or false if the row is
// gone entirely.
func (ds *DocumentStore) LoadBody(ctx context.Context, rev *revision.Revision) (found bool, err error) {
	row, ok, err := ds.st.ByDocAndRevID(ctx, rev.DocID, rev.RevID)
	if err != nil {
		return false, internal(err)
	}
	if !ok {
		return false, nil
	}

	if row.JSON != nil {
		var body map[string]interface{}
		if err := json.Unmarshal(row.JSON, &body); err != nil {
			return true, internal(err)
		}
		delete(body, "_id")
		delete(body, "_rev")
		rev.Body = body
	}
	rev.Sequence = row.Sequence
	rev.Deleted = row.Deleted
	rev.Current = row.Current
	if row.Parent.Valid {
		rev.ParentSequence = row.Parent.Int64
	}
	return true, nil
}

func rowToRevision(r storage.Row) *revision.Revision {
	rev := &revision.Revision{
		DocID:    r.DocID,
		RevID:    r.RevID,
		Deleted:  r.Deleted,
		Current:  r.Current,
		Sequence: r.Sequence,
	}
	if r.Parent.Valid {
		rev.ParentSequence = r.Parent.Int64
	}
	if r.JSON != nil {
		var body map[string]interface{}
		if err := json.Unmarshal(r.JSON, &body); err == nil {
			delete(body, "_id")
			delete(body, "_rev")
			rev.Body = body
		}
	}
	return rev
}

// Put inserts rev as a new revision of its document, checking the
// conflict rules in SPEC_FULL.md §4.3.3. rev.RevID must be unset; the
// store assigns it. rev.DocID may be unset only when prevRevID is also
// empty (a fresh insert with a store-assigned id). If rev.Deleted is
// true, prevRevID must be set.
func (ds *DocumentStore) Put(ctx context.Context, rev revision.Revision, prevRevID string) (out *revision.Revision, err error) {
	// Defers unwind in LIFO order and this one is registered first, so
	// it runs after the scope-end defer below has had its last chance
	// to override err. Every exit path, not just the success path,
	// increments Puts exactly once.
	var created bool
	defer func() {
		ds.opts.Metrics.Puts.WithLabelValues(outcomeLabel(rev.Deleted, created, err)).Inc()
	}()

	if rev.RevID != "" {
		return nil, badRequest("rev.RevID must be unset; the store assigns it")
	}
	if rev.Deleted && prevRevID == "" {
		return nil, badRequest("deleting a document requires prevRevID")
	}
	if rev.DocID == "" && prevRevID != "" {
		return nil, badRequest("docID is required when prevRevID is set")
	}

	scope, err := ds.begin(ctx)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err != nil {
			scope.fail()
		}
		if endErr := scope.end(); endErr != nil && err == nil {
			out, err = nil, internal(endErr)
		}
	}()

	out, created, err = ds.putLocked(ctx, scope, rev, prevRevID)
	if err != nil {
		return nil, err
	}

	ds.opts.Metrics.LastSequence.Set(float64(out.Sequence))
	log.WithField("docID", out.DocID).WithField("revID", out.RevID).Debugf("put committed")

	return out, nil
}

func outcomeLabel(deleted, created bool, err error) string {
	if err != nil {
		if errors.Cause(err) == ErrConflict {
			return "conflict"
		}
		return "error"
	}
	switch {
	case deleted:
		return "deleted"
	case created:
		return "created"
	default:
		return "updated"
	}
}

func (ds *DocumentStore) putLocked(ctx context.Context, scope *txScope, rev revision.Revision, prevRevID string) (out *revision.Revision, created bool, err error) {
	var parentSequence int64
	docID := rev.DocID

	if prevRevID != "" {
		current, ok, err := ds.st.CurrentByDocAndRevID(ctx, docID, prevRevID)
		if err != nil {
			return nil, false, internal(err)
		}
		if !ok {
			leaves, lerr := ds.st.CurrentLeaves(ctx, docID)
			if lerr != nil {
				return nil, false, internal(lerr)
			}
			if len(leaves) > 0 {
				return nil, false, conflict("prevRevID is not a current revision")
			}
			return nil, false, notFound("document not found")
		}
		parentSequence = current.Sequence
		if err := ds.st.SetCurrent(ctx, current.Sequence, false); err != nil {
			return nil, false, internal(err)
		}
	} else {
		if docID == "" {
			docID = genDocID()
		}

		leaves, err := ds.st.CurrentLeaves(ctx, docID)
		if err != nil {
			return nil, false, internal(err)
		}
		for _, l := range leaves {
			if !l.Deleted {
				return nil, false, conflict("document already has a current revision")
			}
		}
		for _, l := range leaves {
			if l.Deleted {
				if err := ds.st.SetCurrent(ctx, l.Sequence, false); err != nil {
					return nil, false, internal(err)
				}
				parentSequence = l.Sequence
				break
			}
		}
		created = len(leaves) == 0
	}

	var parentRevID string
	if parentSequence > 0 {
		if parentRow, ok, err := ds.st.BySequence(ctx, parentSequence); err == nil && ok {
			parentRevID = parentRow.RevID
		}
	} else if prevRevID != "" {
		parentRevID = prevRevID
	}

	newRevID, err := revid.Next(parentRevID, nil)
	if err != nil {
		return nil, false, internal(err)
	}

	finalRev := rev
	finalRev.DocID = docID
	finalRev.RevID = newRevID

	var bodyJSON []byte
	if !finalRev.Deleted {
		body, err := json.Marshal(finalRev.AsJSON())
		if err != nil {
			return nil, false, badRequest("body is not serializable: " + err.Error())
		}
		bodyJSON = body
	}

	row := storage.Row{
		DocID:   docID,
		RevID:   newRevID,
		Current: true,
		Deleted: finalRev.Deleted,
		JSON:    bodyJSON,
	}

	seq, err := ds.st.InsertRevision(ctx, row, parentSequence)
	if err != nil {
		return nil, false, internal(err)
	}

	finalRev.Sequence = seq
	finalRev.ParentSequence = parentSequence
	finalRev.Current = true

	scope.emit(ChangeEvent{Rev: finalRev, Seq: seq})

	if prevRevID == "" && !created {
		// recreate-after-delete: not a brand new document, but still
		// a 201 per scenario 5 ("status 201 ... allowed because
		// previous current row is deleted").
		created = true
	}

	return &finalRev, created, nil
}

// Compact discards the bodies of every non-current revision. History
// structure (the parent chain and current flags) is untouched; this is
// not reversible.
func (ds *DocumentStore) Compact(ctx context.Context) (rowsCleared int64, err error) {
	scope, err := ds.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			scope.fail()
		}
		if endErr := scope.end(); endErr != nil && err == nil {
			rowsCleared, err = 0, internal(endErr)
		}
	}()

	rowsCleared, err = ds.st.ClearJSON(ctx)
	if err != nil {
		return 0, internal(err)
	}

	ds.opts.Metrics.Compactions.Inc()
	return rowsCleared, nil
}

// DocumentCount returns the number of documents with at least one
// current, non-deleted revision.
func (ds *DocumentStore) DocumentCount(ctx context.Context) (int64, error) {
	n, err := ds.st.CountCurrentNonDeleted(ctx)
	if err != nil {
		return 0, internal(err)
	}
	ds.opts.Metrics.DocumentCount.Set(float64(n))
	return n, nil
}

// LastSequence returns the highest sequence assigned to any revision, or
// 0 if the store is empty.
func (ds *DocumentStore) LastSequence(ctx context.Context) (int64, error) {
	n, err := ds.st.MaxSequence(ctx)
	if err != nil {
		return 0, internal(err)
	}
	return n, nil
}
