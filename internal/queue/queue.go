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

// Package queue provides the bounded multi-producer single-consumer
// channel decoupling ingestion from disk. Modeled on the buffered-channel
// ingress used by the pack's audit-store and collector examples: producers
// never block on a full queue, they get told no and move on.
package queue

import "github.com/ablate-ai/iris/internal/model"

const defaultCapacity = 1000

// WriteQueue is a bounded channel of reports awaiting a batch commit.
type WriteQueue struct {
	ch chan model.MetricsReport
}

// New creates a WriteQueue with the given capacity. A non-positive
// capacity falls back to the default of 1000.
func New(capacity int) *WriteQueue {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &WriteQueue{ch: make(chan model.MetricsReport, capacity)}
}

// TryEnqueue attempts a non-blocking send. It returns false if the queue
// is full; the caller (the ingestion façade) must never block on this.
func (q *WriteQueue) TryEnqueue(report model.MetricsReport) bool {
	select {
	case q.ch <- report:
		return true
	default:
		return false
	}
}

// Receive exposes the consumer side for BatchWriter.
func (q *WriteQueue) Receive() <-chan model.MetricsReport {
	return q.ch
}

// Depth reports the number of reports currently buffered, for telemetry
// and overload logging.
func (q *WriteQueue) Depth() int {
	return len(q.ch)
}

// Capacity returns the configured queue capacity.
func (q *WriteQueue) Capacity() int {
	return cap(q.ch)
}
