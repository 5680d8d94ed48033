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

// Package metrics exposes the process-local Prometheus collectors for a
// DocumentStore instance: sequence/document counts, write outcomes, and
// transaction nesting depth. Each store gets its own Collector backed by
// its own registry, since more than one store may be embedded in a host
// process.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector holds the gauges and counters for one DocumentStore.
type Collector struct {
	Registry *prometheus.Registry

	LastSequence  prometheus.Gauge
	DocumentCount prometheus.Gauge
	TxDepth       prometheus.Gauge
	Puts          *prometheus.CounterVec // labeled by outcome: created, updated, deleted, conflict, error
	ForceInserts  *prometheus.CounterVec // labeled by outcome: inserted, stub, duplicate, error
	Compactions   prometheus.Counter
}

// New creates a Collector and registers it on a fresh registry.
func New(namespace string) *Collector {
	c := &Collector{
		Registry: prometheus.NewRegistry(),
		LastSequence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sequence",
			Help:      "Highest sequence assigned to any revision.",
		}),
		DocumentCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "document_count",
			Help:      "Number of documents with a current, non-deleted revision.",
		}),
		TxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transaction_depth",
			Help:      "Current TransactionScope nesting depth.",
		}),
		Puts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "puts_total",
			Help:      "put() calls by outcome.",
		}, []string{"outcome"}),
		ForceInserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "force_inserts_total",
			Help:      "forceInsert() rows by outcome.",
		}, []string{"outcome"}),
		Compactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compactions_total",
			Help:      "compact() calls completed.",
		}),
	}

	c.Registry.MustRegister(
		c.LastSequence, c.DocumentCount, c.TxDepth, c.Puts, c.ForceInserts, c.Compactions,
	)
	return c
}
