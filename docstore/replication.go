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

package docstore

import (
	"context"

	"github.com/couchkit/ldb/revision"
	"github.com/couchkit/ldb/storage"
)

// FindMissing removes from revs every (docID, revID) pair already
// present locally, leaving exactly what the remote side of a
// replication must still transfer. Implemented as a single indexed
// query over the union of the requested docIDs, rather than one
// round trip per pair.
func (ds *DocumentStore) FindMissing(ctx context.Context, revs *revision.List) error {
	entries := revs.Revisions()
	pairs := make([]storage.RevPair, len(entries))
	for i, r := range entries {
		pairs[i] = storage.RevPair{DocID: r.DocID, RevID: r.RevID}
	}

	present, err := ds.st.ExistingPairs(ctx, pairs)
	if err != nil {
		return internal(err)
	}

	revs.RemoveAll(func(docID, revID string) bool {
		return present[storage.RevPair{DocID: docID, RevID: revID}]
	})
	return nil
}

// GetAllRevisions returns every revision of docID, ordered by
// descending sequence, deleted flag and sequence populated, bodies
// omitted.
func (ds *DocumentStore) GetAllRevisions(ctx context.Context, docID string) (*revision.List, error) {
	rows, err := ds.st.AllForDoc(ctx, docID)
	if err != nil {
		return nil, internal(err)
	}

	revs := make([]revision.Revision, 0, len(rows))
	for _, r := range rows {
		rev := revision.Revision{
			DocID:    r.DocID,
			RevID:    r.RevID,
			Deleted:  r.Deleted,
			Current:  r.Current,
			Sequence: r.Sequence,
		}
		if r.Parent.Valid {
			rev.ParentSequence = r.Parent.Int64
		}
		revs = append(revs, rev)
	}
	return revision.NewList(revs), nil
}

// GetRevisionHistory returns the linear ancestry of rev, from rev
// itself back to its root, newest first. Traversal walks the
// parentSequence chain and stops at a null parent.
func (ds *DocumentStore) GetRevisionHistory(ctx context.Context, rev *revision.Revision) ([]revision.Revision, error) {
	if rev.Sequence == 0 {
		row, ok, err := ds.st.ByDocAndRevID(ctx, rev.DocID, rev.RevID)
		if err != nil {
			return nil, internal(err)
		}
		if !ok {
			return nil, notFound("revision not found")
		}
		rev = rowToRevision(row)
	}

	rows, err := ds.st.ByParentChain(ctx, rev.Sequence)
	if err != nil {
		return nil, internal(err)
	}

	out := make([]revision.Revision, 0, len(rows))
	for _, r := range rows {
		out = append(out, *rowToRevision(r))
	}
	return out, nil
}

// AllDocumentsOptions configures AllDocuments.
type AllDocumentsOptions struct {
	Descending       bool
	Skip             int
	Limit            int
	IncludeBodies    bool
	IncludeUpdateSeq bool
}

// AllDocumentsResult is the summarization endpoint's response shape,
// matching CouchDB/Couchbase Lite's _all_docs.
type AllDocumentsResult struct {
	Rows      []revision.Revision
	TotalRows int
	Offset    int
	UpdateSeq int64 // 0 and meaningless unless IncludeUpdateSeq was requested
}

// AllDocuments returns every current, non-deleted revision (more than
// one for a document with conflicting leaves), sorted by docID,
// paginated by opts.Skip/opts.Limit. TotalRows counts documents. If
// opts.IncludeUpdateSeq, UpdateSeq is a snapshot of LastSequence taken
// in the same read transaction as the row scan, so it reflects exactly
// the data the rows were read from.
func (ds *DocumentStore) AllDocuments(ctx context.Context, opts AllDocumentsOptions) (*AllDocumentsResult, error) {
	res := &AllDocumentsResult{Offset: opts.Skip}

	fetch := func(ctx context.Context) error {
		rows, err := ds.st.CurrentNonDeletedPage(ctx, opts.Descending, opts.Skip, opts.Limit)
		if err != nil {
			return err
		}
		total, err := ds.st.CountCurrentNonDeleted(ctx)
		if err != nil {
			return err
		}

		revs := make([]revision.Revision, 0, len(rows))
		for _, r := range rows {
			rev := rowToRevision(r)
			if !opts.IncludeBodies {
				rev.Body = nil
			}
			revs = append(revs, *rev)
		}
		res.Rows = revs
		res.TotalRows = int(total)

		if opts.IncludeUpdateSeq {
			seq, err := ds.st.MaxSequence(ctx)
			if err != nil {
				return err
			}
			res.UpdateSeq = seq
		}
		return nil
	}

	var err error
	if opts.IncludeUpdateSeq {
		err = ds.st.ReadOnly(ctx, fetch)
	} else {
		err = fetch(ctx)
	}
	if err != nil {
		return nil, internal(err)
	}

	return res, nil
}

// BulkDocsEntry is one (leaf, history) pair to splice via ApplyBulkDocs.
type BulkDocsEntry struct {
	Leaf    revision.Revision
	History []string
}

// BulkDocsResult is the outcome of one BulkDocsEntry.
type BulkDocsResult struct {
	DocID  string
	RevID  string
	Status int
	Err    error
}

// ApplyBulkDocs runs ForceInsert once per entry inside a single shared
// outer transaction scope, so the resulting change events dispatch
// together after one commit instead of one per entry. Grounded on
// original_source/Source/CBL_Pusher.h's per-item bulk-docs status
// handling: a failure on one entry does not abort the others — each
// gets its own BulkDocsResult, and the scope only fails outright if
// every single entry failed to apply (in which case there is nothing
// to commit and the transaction is a no-op rollback).
//
// An entry that fails partway through its own history walk may still
// leave stub revisions behind from the ancestors it managed to insert
// before the error; this is harmless (stubs are valid history nodes,
// not current leaves) and a later retry of the same entry completes
// the chain.
func (ds *DocumentStore) ApplyBulkDocs(ctx context.Context, entries []BulkDocsEntry) ([]BulkDocsResult, error) {
	scope, err := ds.begin(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]BulkDocsResult, len(entries))
	anySucceeded := false

	for i, e := range entries {
		out, ferr := ds.forceInsertLocked(ctx, scope, e.Leaf, e.History)
		if ferr != nil {
			results[i] = BulkDocsResult{DocID: e.Leaf.DocID, RevID: e.Leaf.RevID, Status: Status(ferr), Err: ferr}
			ds.opts.Metrics.ForceInserts.WithLabelValues("error").Inc()
			continue
		}
		results[i] = BulkDocsResult{DocID: out.DocID, RevID: out.RevID, Status: StatusCreated}
		anySucceeded = true
	}

	if !anySucceeded && len(entries) > 0 {
		scope.fail()
	}

	if endErr := scope.end(); endErr != nil {
		return results, internal(endErr)
	}

	if anySucceeded {
		if seq, err := ds.st.MaxSequence(ctx); err == nil {
			ds.opts.Metrics.LastSequence.Set(float64(seq))
		}
	}

	return results, nil
}
