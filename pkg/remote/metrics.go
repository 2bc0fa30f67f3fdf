// Copyright 2024 The Keel Authors.
//
// Use of this software is governed by the Keel Software License
// included in the /LICENSE file.

package remote

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts the coordination traffic an executor processed.
type Metrics struct {
	ReadTaskRequestsReceived          prometheus.Counter
	MergeTreeReadTaskRequestsReceived prometheus.Counter
}

// MakeMetrics creates the executor metrics. They are not registered
// anywhere; call Register to expose them.
func MakeMetrics() *Metrics {
	return &Metrics{
		ReadTaskRequestsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "keel",
			Subsystem: "remote",
			Name:      "read_task_requests_received",
			Help:      "Number of distributed read task requests answered.",
		}),
		MergeTreeReadTaskRequestsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "keel",
			Subsystem: "remote",
			Name:      "merge_tree_read_task_requests_received",
			Help:      "Number of parallel-replica range requests answered.",
		}),
	}
}

// Register registers the metrics with the given registerer.
func (m *Metrics) Register(r prometheus.Registerer) error {
	if err := r.Register(m.ReadTaskRequestsReceived); err != nil {
		return err
	}
	return r.Register(m.MergeTreeReadTaskRequestsReceived)
}
