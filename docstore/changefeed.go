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
)

// ChangesSince returns revisions committed after lastSequence, ordered
// ascending by sequence, current leaves only. Bodies are not populated;
// call LoadBody for any revision the caller needs the body of. limit <=
// 0 falls back to Options.ChangesLimitDefault. This is the replication
// cursor: a puller calls it repeatedly, remembering the Sequence of the
// last entry it processed.
func (ds *DocumentStore) ChangesSince(ctx context.Context, lastSequence int64, limit int) ([]ChangeEvent, error) {
	if limit <= 0 {
		limit = ds.opts.ChangesLimitDefault
	}

	rows, err := ds.st.ChangesSince(ctx, lastSequence, limit)
	if err != nil {
		return nil, internal(err)
	}

	out := make([]ChangeEvent, 0, len(rows))
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
		out = append(out, ChangeEvent{Rev: rev, Seq: r.Sequence})
	}
	return out, nil
}
