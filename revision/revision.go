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

// Package revision defines the Revision value type and RevisionList, the
// collection replication uses for missing-revision diffing.
package revision

// Revision is an immutable-after-commit snapshot of one document at one
// point in its revision history.
type Revision struct {
	DocID    string
	RevID    string
	Deleted  bool
	Body     map[string]interface{} // nil until loadBody populates it
	Sequence int64                  // 0 means "not yet assigned"

	// ParentSequence is the sequence of this revision's parent, or 0 if
	// this revision is a root. Populated by queries that need lineage
	// (get, forceInsert, getRevisionHistory); not always fetched.
	ParentSequence int64
	// Current marks whether this row is a leaf of the revision DAG.
	Current bool
}

// HasBody reports whether Body has been populated (by loadBody or by a
// query that fetches json eagerly).
func (r *Revision) HasBody() bool {
	return r.Body != nil
}

// AsJSON returns the properties to serialize for storage: the caller's
// body with "_id" and "_rev" injected, or nil for a deleted revision.
func (r *Revision) AsJSON() map[string]interface{} {
	if r.Deleted {
		return nil
	}

	out := make(map[string]interface{}, len(r.Body)+2)
	for k, v := range r.Body {
		out[k] = v
	}
	out["_id"] = r.DocID
	out["_rev"] = r.RevID
	return out
}

// Key identifies a revision by its content-addressed pair, independent
// of sequence.
type Key struct {
	DocID string
	RevID string
}

// key returns r's lookup key.
func (r *Revision) key() Key {
	return Key{DocID: r.DocID, RevID: r.RevID}
}
