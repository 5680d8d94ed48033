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
	"testing"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func openTestStorage(t *testing.T) *Storage {
	t.Helper()
	st, err := OpenInMemory(time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestInsertAndFetchByDocAndRevID(t *testing.T) {
	st := openTestStorage(t)
	ctx := context.Background()

	seq, err := st.InsertRevision(ctx, Row{DocID: "d1", RevID: "1-a", Current: true, JSON: []byte(`{"x":1}`)}, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), seq)

	row, ok, err := st.ByDocAndRevID(ctx, "d1", "1-a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, seq, row.Sequence)
	require.True(t, row.Current)
	require.False(t, row.Deleted)
	require.False(t, row.Parent.Valid)

	_, ok, err = st.ByDocAndRevID(ctx, "d1", "9-nope")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCurrentLeavesAndSetCurrent(t *testing.T) {
	st := openTestStorage(t)
	ctx := context.Background()

	seq1, err := st.InsertRevision(ctx, Row{DocID: "d1", RevID: "1-a", Current: true}, 0)
	require.NoError(t, err)

	leaves, err := st.CurrentLeaves(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, leaves, 1)

	require.NoError(t, st.SetCurrent(ctx, seq1, false))

	seq2, err := st.InsertRevision(ctx, Row{DocID: "d1", RevID: "2-b", Current: true}, seq1)
	require.NoError(t, err)

	leaves, err = st.CurrentLeaves(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, leaves, 1)
	require.Equal(t, seq2, leaves[0].Sequence)
	require.True(t, leaves[0].Parent.Valid)
	require.Equal(t, seq1, leaves[0].Parent.Int64)
}

func TestByParentChainWalksToRoot(t *testing.T) {
	st := openTestStorage(t)
	ctx := context.Background()

	seq1, err := st.InsertRevision(ctx, Row{DocID: "d1", RevID: "1-a", Current: false}, 0)
	require.NoError(t, err)
	seq2, err := st.InsertRevision(ctx, Row{DocID: "d1", RevID: "2-b", Current: false}, seq1)
	require.NoError(t, err)
	seq3, err := st.InsertRevision(ctx, Row{DocID: "d1", RevID: "3-c", Current: true}, seq2)
	require.NoError(t, err)

	chain, err := st.ByParentChain(ctx, seq3)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	require.Equal(t, "3-c", chain[0].RevID)
	require.Equal(t, "2-b", chain[1].RevID)
	require.Equal(t, "1-a", chain[2].RevID)
}

func TestChangesSinceOrderingAndLimit(t *testing.T) {
	st := openTestStorage(t)
	ctx := context.Background()

	for i, revID := range []string{"1-a", "1-b", "1-c"} {
		_, err := st.InsertRevision(ctx, Row{DocID: "doc" + string(rune('a'+i)), RevID: revID, Current: true}, 0)
		require.NoError(t, err)
	}

	all, err := st.ChangesSince(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, int64(1), all[0].Sequence)
	require.Equal(t, int64(3), all[2].Sequence)

	limited, err := st.ChangesSince(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)

	fromMiddle, err := st.ChangesSince(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, fromMiddle, 2)
}

func TestClearJSONOnlyTouchesNonCurrent(t *testing.T) {
	st := openTestStorage(t)
	ctx := context.Background()

	seq1, err := st.InsertRevision(ctx, Row{DocID: "d1", RevID: "1-a", Current: false, JSON: []byte(`{}`)}, 0)
	require.NoError(t, err)
	seq2, err := st.InsertRevision(ctx, Row{DocID: "d1", RevID: "2-b", Current: true, JSON: []byte(`{}`)}, seq1)
	require.NoError(t, err)

	n, err := st.ClearJSON(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	row1, _, err := st.BySequence(ctx, seq1)
	require.NoError(t, err)
	require.Nil(t, row1.JSON)

	row2, _, err := st.BySequence(ctx, seq2)
	require.NoError(t, err)
	require.NotNil(t, row2.JSON)
}

func TestExistingPairs(t *testing.T) {
	st := openTestStorage(t)
	ctx := context.Background()

	_, err := st.InsertRevision(ctx, Row{DocID: "d1", RevID: "1-a", Current: true}, 0)
	require.NoError(t, err)

	present, err := st.ExistingPairs(ctx, []RevPair{
		{DocID: "d1", RevID: "1-a"},
		{DocID: "d1", RevID: "1-missing"},
		{DocID: "d2", RevID: "1-also-missing"},
	})
	require.NoError(t, err)
	require.True(t, present[RevPair{DocID: "d1", RevID: "1-a"}])
	require.False(t, present[RevPair{DocID: "d1", RevID: "1-missing"}])
	require.False(t, present[RevPair{DocID: "d2", RevID: "1-also-missing"}])
}

func TestCountCurrentNonDeletedAndMaxSequence(t *testing.T) {
	st := openTestStorage(t)
	ctx := context.Background()

	n, err := st.MaxSequence(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), n)

	_, err = st.InsertRevision(ctx, Row{DocID: "d1", RevID: "1-a", Current: true}, 0)
	require.NoError(t, err)
	_, err = st.InsertRevision(ctx, Row{DocID: "d2", RevID: "1-a", Current: true, Deleted: true}, 0)
	require.NoError(t, err)

	count, err := st.CountCurrentNonDeleted(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	n, err = st.MaxSequence(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}

func TestClassifyMapsSQLiteBusyAndLockedToErrBusy(t *testing.T) {
	busy := sqlite3.Error{Code: sqlite3.ErrBusy}
	require.Equal(t, ErrBusy, errors.Cause(classify(busy)))

	locked := sqlite3.Error{Code: sqlite3.ErrLocked}
	require.Equal(t, ErrBusy, errors.Cause(classify(locked)))
}

func TestClassifyLeavesOtherSQLiteErrorsAsInternal(t *testing.T) {
	constraint := sqlite3.Error{Code: sqlite3.ErrConstraint}
	require.NotEqual(t, ErrBusy, errors.Cause(classify(constraint)))
}
