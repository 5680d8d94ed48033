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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLeafCacheGetSetInvalidate(t *testing.T) {
	c := NewLeafCache(8)

	_, ok := c.Get("d1")
	require.False(t, ok)

	c.Set("d1", 42)
	seq, ok := c.Get("d1")
	require.True(t, ok)
	require.Equal(t, int64(42), seq)

	c.Invalidate("d1")
	_, ok = c.Get("d1")
	require.False(t, ok)
}

func TestLeafCacheEvictsBeyondSize(t *testing.T) {
	c := NewLeafCache(2)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	count := 0
	for _, k := range []string{"a", "b", "c"} {
		if _, ok := c.Get(k); ok {
			count++
		}
	}
	require.Equal(t, 2, count, "cache capped at 2 entries should hold exactly 2")
}
