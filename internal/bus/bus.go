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

// Package bus provides a synchronous, ordered, single-topic notification
// bus. It is a trimmed sibling of a general multi-topic pub/sub bus: no
// async dispatch, no once-subscriptions, no per-handler transactional
// mutex — a change feed only ever needs "call every observer, in
// registration order, right now, on this goroutine".
package bus

import "sync"

// Handler receives a dispatched value. Handlers must not call back into
// the component doing the dispatching from within the handler.
type Handler func(v interface{})

// Bus holds an ordered list of handlers and dispatches synchronously.
type Bus struct {
	mu       sync.Mutex
	handlers []Handler
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers h to be called on every future Publish, in
// registration order relative to other handlers. Returns an
// unsubscribe function.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers = append(b.handlers, h)
	idx := len(b.handlers) - 1

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if idx < len(b.handlers) {
			b.handlers[idx] = nil
		}
	}
}

// Publish calls every live handler with v, in order, on the caller's
// goroutine.
func (b *Bus) Publish(v interface{}) {
	b.mu.Lock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.Unlock()

	for _, h := range handlers {
		if h != nil {
			h(v)
		}
	}
}

// HasHandlers reports whether any handler is currently registered.
func (b *Bus) HasHandlers() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, h := range b.handlers {
		if h != nil {
			return true
		}
	}
	return false
}
