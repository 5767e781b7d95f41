// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telemetry exposes Prometheus counters, gauges and histograms
// for the storage core. Registration happens eagerly at package init, the
// same pattern the teacher's churn module and the pack's collector
// examples use: metrics exist and are safe to touch whether or not
// anything ever scrapes /metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	IngestTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "iris_ingest_total",
		Help: "Total reports accepted by the ingestion façade.",
	})
	IngestDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "iris_ingest_dropped_total",
		Help: "Total reports dropped before reaching persistence, by reason.",
	}, []string{"reason"})

	BatchCommitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "iris_batch_commits_total",
		Help: "Total batch commit transactions attempted.",
	})
	BatchCommitErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "iris_batch_commit_errors_total",
		Help: "Total batch commit transactions that failed and were discarded.",
	})
	BatchRowsPerBatch = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "iris_batch_rows_per_batch",
		Help:    "Distribution of row counts per committed batch.",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024},
	})
	BatchCommitDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "iris_batch_commit_duration_seconds",
		Help:    "Wall-clock duration of a batch commit transaction.",
		Buckets: prometheus.DefBuckets,
	})

	RetentionDeletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "iris_retention_deleted_total",
		Help: "Total samples deleted by the retention sweeper.",
	})
	RetentionSweepsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "iris_retention_sweeps_total",
		Help: "Total retention sweep cycles run.",
	})

	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "iris_queue_depth",
		Help: "Current depth of the write queue.",
	})
	BroadcastSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "iris_broadcast_subscribers",
		Help: "Current number of live-stream subscribers.",
	})
	BroadcastDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "iris_broadcast_dropped_total",
		Help: "Total live-stream events dropped for slow subscribers.",
	})
)

func init() {
	prometheus.MustRegister(
		IngestTotal,
		IngestDroppedTotal,
		BatchCommitsTotal,
		BatchCommitErrorsTotal,
		BatchRowsPerBatch,
		BatchCommitDurationSeconds,
		RetentionDeletedTotal,
		RetentionSweepsTotal,
		QueueDepth,
		BroadcastSubscribers,
		BroadcastDroppedTotal,
	)
}

