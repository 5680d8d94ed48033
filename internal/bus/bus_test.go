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

package bus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishDispatchesInRegistrationOrder(t *testing.T) {
	b := New()
	var order []int

	b.Subscribe(func(v interface{}) { order = append(order, 1) })
	b.Subscribe(func(v interface{}) { order = append(order, 2) })
	b.Subscribe(func(v interface{}) { order = append(order, 3) })

	b.Publish("x")
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	var calls int

	unsubscribe := b.Subscribe(func(v interface{}) { calls++ })
	b.Publish("x")
	unsubscribe()
	b.Publish("x")

	require.Equal(t, 1, calls)
}

func TestHasHandlers(t *testing.T) {
	b := New()
	require.False(t, b.HasHandlers())

	unsubscribe := b.Subscribe(func(v interface{}) {})
	require.True(t, b.HasHandlers())

	unsubscribe()
	require.False(t, b.HasHandlers())
}

func TestPublishPassesValueThrough(t *testing.T) {
	b := New()
	var got interface{}
	b.Subscribe(func(v interface{}) { got = v })
	b.Publish(42)
	require.Equal(t, 42, got)
}
