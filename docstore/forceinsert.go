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

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/couchkit/ldb/internal/log"
	"github.com/couchkit/ldb/revision"
	"github.com/couchkit/ldb/storage"
)

// ForceInsert splices a remote revision chain into the local tree,
// bypassing the conflict checks Put enforces. history is ordered
// newest-to-oldest, beginning with leaf.RevID; it is the replication
// puller's account of leaf's ancestry. ForceInsert is idempotent:
// replaying the same (leaf, history) inserts no new rows and returns
// the same sequence.
//
// Because a remote chain may diverge from the local tree, ForceInsert
// can leave a document with more than one current, non-deleted leaf —
// the conflict representation I5 allows for. Resolving that conflict
// is left to a higher layer; ForceInsert only guarantees the spliced
// chain is faithfully represented.
func (ds *DocumentStore) ForceInsert(ctx context.Context, leaf revision.Revision, history []string) (out *revision.Revision, err error) {
	// Per-row outcomes (inserted/stub/duplicate) are recorded inside
	// forceInsertLocked as each history entry is resolved; this defer
	// only covers the call-level "error" outcome, since a failure here
	// may occur before any row label was ever assigned.
	defer func() {
		if err != nil {
			ds.opts.Metrics.ForceInserts.WithLabelValues("error").Inc()
		}
	}()

	if leaf.DocID == "" {
		return nil, badRequest("leaf.DocID must not be empty")
	}
	if leaf.RevID == "" {
		return nil, badRequest("leaf.RevID must not be empty")
	}
	if len(history) == 0 || history[0] != leaf.RevID {
		return nil, badRequest("history must begin with leaf.RevID")
	}
	if !leaf.Deleted && leaf.Body == nil {
		return nil, badRequest("leaf body is required unless leaf.Deleted")
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

	out, err = ds.forceInsertLocked(ctx, scope, leaf, history)
	if err != nil {
		return nil, err
	}

	ds.opts.Metrics.LastSequence.Set(float64(out.Sequence))
	log.WithField("docID", out.DocID).WithField("revID", out.RevID).Debugf("forceInsert committed")

	return out, nil
}

// forceInsertLocked implements spec.md's §4.3.4 algorithm: walk history
// oldest-to-newest, reusing any (docID, revID) pair already present and
// inserting a stub (or, at the final/newest entry, the full leaf) for
// every pair that is missing. Inputs are validated here, before any row
// is written, so ForceInsert and ApplyBulkDocs reject the same entries.
func (ds *DocumentStore) forceInsertLocked(ctx context.Context, scope *txScope, leaf revision.Revision, history []string) (*revision.Revision, error) {
	if leaf.DocID == "" {
		return nil, badRequest("leaf.DocID must not be empty")
	}
	if leaf.RevID == "" {
		return nil, badRequest("leaf.RevID must not be empty")
	}
	if len(history) == 0 || history[0] != leaf.RevID {
		return nil, badRequest("history must begin with leaf.RevID")
	}
	if !leaf.Deleted && leaf.Body == nil {
		return nil, badRequest("leaf body is required unless leaf.Deleted")
	}

	docID := leaf.DocID

	var parentSequence int64
	var leafSequence int64

	for i := len(history) - 1; i >= 0; i-- {
		revID := history[i]

		existing, ok, err := ds.st.ByDocAndRevID(ctx, docID, revID)
		if err != nil {
			return nil, internal(err)
		}
		if ok {
			ds.opts.Metrics.ForceInserts.WithLabelValues("duplicate").Inc()
			parentSequence = existing.Sequence
			if i == 0 {
				leafSequence = existing.Sequence
			}
			continue
		}

		row := storage.Row{
			DocID:   docID,
			RevID:   revID,
			Current: i == 0,
			Deleted: i == 0 && leaf.Deleted,
		}

		if i == 0 && !leaf.Deleted {
			body, err := json.Marshal(leaf.AsJSON())
			if err != nil {
				return nil, badRequest("leaf body is not serializable: " + err.Error())
			}
			row.JSON = body
		}

		seq, err := ds.st.InsertRevision(ctx, row, parentSequence)
		if err != nil {
			return nil, internal(err)
		}

		if i == 0 {
			ds.opts.Metrics.ForceInserts.WithLabelValues("inserted").Inc()
		} else {
			ds.opts.Metrics.ForceInserts.WithLabelValues("stub").Inc()
		}

		parentSequence = seq
		if i == 0 {
			leafSequence = seq
		}
	}

	// Resolve the leaf's parent sequence from the row as actually
	// stored, rather than tracking it through both the "already
	// present" and "freshly inserted" branches separately.
	stored, ok, err := ds.st.ByDocAndRevID(ctx, docID, leaf.RevID)
	if err != nil {
		return nil, internal(err)
	}
	if !ok {
		return nil, internal(errors.New("forceInsert: leaf row missing immediately after insert"))
	}

	out := leaf
	out.Sequence = leafSequence
	out.Current = true
	out.Deleted = stored.Deleted
	if stored.Parent.Valid {
		out.ParentSequence = stored.Parent.Int64
	}

	scope.emit(ChangeEvent{Rev: out, Seq: leafSequence})

	return &out, nil
}
