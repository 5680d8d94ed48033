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

package revision

// List is a collection of Revisions supporting lookup by (docID, revID)
// and the set-difference operation findMissing needs. It is the wire
// shape a replication puller/pusher exchanges: "here are the revisions
// I have/want for these documents".
type List struct {
	revs []Revision
}

// NewList wraps revs in a List.
func NewList(revs []Revision) *List {
	return &List{revs: revs}
}

// Revisions returns the current contents, in order.
func (l *List) Revisions() []Revision {
	return l.revs
}

// Len returns the number of entries.
func (l *List) Len() int {
	return len(l.revs)
}

// Contains reports whether (docID, revID) is present.
func (l *List) Contains(docID, revID string) bool {
	for _, r := range l.revs {
		if r.DocID == docID && r.RevID == revID {
			return true
		}
	}
	return false
}

// DocIDs returns the distinct set of document ids referenced.
func (l *List) DocIDs() []string {
	seen := make(map[string]struct{}, len(l.revs))
	var ids []string
	for _, r := range l.revs {
		if _, ok := seen[r.DocID]; !ok {
			seen[r.DocID] = struct{}{}
			ids = append(ids, r.DocID)
		}
	}
	return ids
}

// RemoveAll removes every entry whose (DocID, RevID) pair satisfies
// present, in place. Used by findMissing: the caller passes a predicate
// that checks local presence, and the residual List is exactly what the
// remote must still transfer.
func (l *List) RemoveAll(present func(docID, revID string) bool) {
	kept := l.revs[:0]
	for _, r := range l.revs {
		if !present(r.DocID, r.RevID) {
			kept = append(kept, r)
		}
	}
	l.revs = kept
}
