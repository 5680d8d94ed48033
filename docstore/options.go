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
	"math"
	"time"

	"github.com/couchkit/ldb/internal/metrics"
)

// Options configures a DocumentStore. There is no file-based config or
// CLI surface for this core (out of scope); an Options value is built
// in-process by the host the way the teacher's worker.DBConfig is
// built by its caller.
type Options struct {
	// BusyTimeout bounds how long a write waits on a sqlite lock
	// before failing with ErrBusy. Default 10s.
	BusyTimeout time.Duration
	// ChangesLimitDefault caps ChangesSince when the caller passes a
	// limit <= 0. AllDocuments does not use it: a zero
	// AllDocumentsOptions.Limit there means no limit. Default is effectively
	// unbounded (INT_MAX, matching the spec's query-options default).
	ChangesLimitDefault int
	// CacheSize bounds the docID -> current-leaf-sequence LRU. Default 1024.
	CacheSize int
	// Metrics, if non-nil, receives this store's Prometheus
	// collectors. If nil, a private Collector is created and
	// discarded (metrics are still computed, just unexported).
	Metrics *metrics.Collector
}

// withDefaults returns a copy of o with zero fields filled in.
func (o Options) withDefaults() Options {
	if o.BusyTimeout == 0 {
		o.BusyTimeout = 10 * time.Second
	}
	if o.ChangesLimitDefault == 0 {
		o.ChangesLimitDefault = math.MaxInt32
	}
	if o.CacheSize == 0 {
		o.CacheSize = 1024
	}
	if o.Metrics == nil {
		o.Metrics = metrics.New("ldb")
	}
	return o
}
