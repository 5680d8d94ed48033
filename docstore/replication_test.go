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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/couchkit/ldb/revision"
)

func TestFindMissingLeavesOnlyAbsentPairs(t *testing.T) {
	ds := openTestStore(t)
	ctx := context.Background()

	_, err := ds.Put(ctx, revision.Revision{DocID: "d1", Body: map[string]interface{}{"x": 1}}, "")
	require.NoError(t, err)
	cur, err := ds.Get(ctx, "d1", "")
	require.NoError(t, err)

	revs := revision.NewList([]revision.Revision{
		{DocID: "d1", RevID: cur.RevID},
		{DocID: "d1", RevID: "9-missing"},
		{DocID: "d2", RevID: "1-also-missing"},
	})

	require.NoError(t, ds.FindMissing(ctx, revs))
	require.Equal(t, 2, revs.Len())
	require.True(t, revs.Contains("d1", "9-missing"))
	require.True(t, revs.Contains("d2", "1-also-missing"))
	require.False(t, revs.Contains("d1", cur.RevID))
}

func TestGetAllRevisionsOrderedDescendingBySequence(t *testing.T) {
	ds := openTestStore(t)
	ctx := context.Background()

	first, err := ds.Put(ctx, revision.Revision{DocID: "d1", Body: map[string]interface{}{"x": 1}}, "")
	require.NoError(t, err)
	second, err := ds.Put(ctx, revision.Revision{DocID: "d1", Body: map[string]interface{}{"x": 2}}, first.RevID)
	require.NoError(t, err)

	list, err := ds.GetAllRevisions(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, 2, list.Len())
	require.Equal(t, second.RevID, list.Revisions()[0].RevID)
	require.Equal(t, first.RevID, list.Revisions()[1].RevID)
}

func TestAllDocumentsPaginatesAndSnapshotsUpdateSeq(t *testing.T) {
	ds := openTestStore(t)
	ctx := context.Background()

	_, err := ds.Put(ctx, revision.Revision{DocID: "a", Body: map[string]interface{}{}}, "")
	require.NoError(t, err)
	_, err = ds.Put(ctx, revision.Revision{DocID: "b", Body: map[string]interface{}{}}, "")
	require.NoError(t, err)
	_, err = ds.Put(ctx, revision.Revision{DocID: "c", Body: map[string]interface{}{}}, "")
	require.NoError(t, err)

	res, err := ds.AllDocuments(ctx, AllDocumentsOptions{Limit: 2, IncludeUpdateSeq: true})
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	require.Equal(t, 3, res.TotalRows)
	require.Equal(t, "a", res.Rows[0].DocID)
	require.Equal(t, "b", res.Rows[1].DocID)
	require.Equal(t, int64(3), res.UpdateSeq)

	res2, err := ds.AllDocuments(ctx, AllDocumentsOptions{Skip: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, res2.Rows, 1)
	require.Equal(t, "c", res2.Rows[0].DocID)
	require.Equal(t, int64(0), res2.UpdateSeq, "UpdateSeq is only meaningful when requested")
}

func TestAllDocumentsExcludesDeleted(t *testing.T) {
	ds := openTestStore(t)
	ctx := context.Background()

	created, err := ds.Put(ctx, revision.Revision{DocID: "a", Body: map[string]interface{}{}}, "")
	require.NoError(t, err)
	_, err = ds.Put(ctx, revision.Revision{DocID: "a", Deleted: true}, created.RevID)
	require.NoError(t, err)

	res, err := ds.AllDocuments(ctx, AllDocumentsOptions{})
	require.NoError(t, err)
	require.Empty(t, res.Rows)
	require.Equal(t, 0, res.TotalRows)
}

func TestApplyBulkDocsPartialFailureStillCommitsSuccesses(t *testing.T) {
	ds := openTestStore(t)
	ctx := context.Background()

	entries := []BulkDocsEntry{
		{
			Leaf:    revision.Revision{DocID: "d1", RevID: "1-a", Body: map[string]interface{}{"ok": true}},
			History: []string{"1-a"},
		},
		{
			// Malformed: history doesn't start with the leaf's revid.
			Leaf:    revision.Revision{DocID: "d2", RevID: "1-b", Body: map[string]interface{}{}},
			History: []string{"wrong"},
		},
	}

	results, err := ds.ApplyBulkDocs(ctx, entries)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, StatusCreated, results[0].Status)
	require.NoError(t, results[0].Err)
	require.Equal(t, StatusBadRequest, results[1].Status)
	require.Error(t, results[1].Err)

	got, err := ds.Get(ctx, "d1", "1-a")
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestApplyBulkDocsAllFailingRollsBack(t *testing.T) {
	ds := openTestStore(t)
	ctx := context.Background()

	entries := []BulkDocsEntry{
		{
			Leaf:    revision.Revision{DocID: "d1", RevID: "1-a", Body: map[string]interface{}{}},
			History: []string{"wrong"},
		},
	}

	results, err := ds.ApplyBulkDocs(ctx, entries)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Error(t, results[0].Err)

	seq, err := ds.LastSequence(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), seq)
}
