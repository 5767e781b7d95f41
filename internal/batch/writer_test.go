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

package batch

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ablate-ai/iris/internal/model"
	"github.com/ablate-ai/iris/internal/queue"
)

type fakePersister struct {
	mu      sync.Mutex
	batches [][]model.MetricsReport
	failing bool
	calls   int
}

func (f *fakePersister) WriteBatch(reports []model.MetricsReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failing {
		return errors.New("simulated disk failure")
	}
	cp := make([]model.MetricsReport, len(reports))
	copy(cp, reports)
	f.batches = append(f.batches, cp)
	return nil
}

func (f *fakePersister) rowCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestFlushesOnSizeTriggerBeforeTimeout(t *testing.T) {
	q := queue.New(10)
	store := &fakePersister{}
	w := New(q, store, 3, time.Hour, zerolog.Nop())
	w.Start()
	defer w.Stop()

	for i := 0; i < 3; i++ {
		q.TryEnqueue(model.MetricsReport{AgentID: "a", Timestamp: int64(i)})
	}

	waitFor(t, time.Second, func() bool { return store.rowCount() == 3 })
}

func TestFlushesOnTimeoutTrigger(t *testing.T) {
	q := queue.New(10)
	store := &fakePersister{}
	w := New(q, store, 1000, 50*time.Millisecond, zerolog.Nop())
	w.Start()
	defer w.Stop()

	q.TryEnqueue(model.MetricsReport{AgentID: "a", Timestamp: 1})

	waitFor(t, time.Second, func() bool { return store.rowCount() == 1 })
}

func TestStopDrainsAndFlushesPendingReports(t *testing.T) {
	q := queue.New(10)
	store := &fakePersister{}
	w := New(q, store, 1000, time.Hour, zerolog.Nop())
	w.Start()

	q.TryEnqueue(model.MetricsReport{AgentID: "a", Timestamp: 1})
	q.TryEnqueue(model.MetricsReport{AgentID: "a", Timestamp: 2})

	w.Stop()

	if got := store.rowCount(); got != 2 {
		t.Fatalf("expected 2 rows flushed on shutdown, got %d", got)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	q := queue.New(10)
	store := &fakePersister{}
	w := New(q, store, 10, time.Hour, zerolog.Nop())
	w.Start()

	w.Stop()
	w.Stop() // must not panic or block
}

func TestFailedCommitDiscardsBatchWithoutRetry(t *testing.T) {
	q := queue.New(10)
	store := &fakePersister{failing: true}
	w := New(q, store, 1, time.Hour, zerolog.Nop())
	w.Start()
	defer w.Stop()

	q.TryEnqueue(model.MetricsReport{AgentID: "a", Timestamp: 1})

	waitFor(t, time.Second, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.calls >= 1 // the flush goroutine has attempted the commit
	})
	time.Sleep(20 * time.Millisecond)

	store.mu.Lock()
	calls := store.calls
	store.mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected exactly one commit attempt for the failed batch, got %d", calls)
	}
	if store.rowCount() != 0 {
		t.Fatalf("expected failed batch to be discarded, not retried")
	}
}
