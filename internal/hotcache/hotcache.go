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

// Package hotcache holds the per-agent bounded ring of most-recent
// samples. It is the synchronous write target on the ingestion path and
// the source of truth for "latest" reads.
package hotcache

import (
	"sync"
	"time"

	"github.com/ablate-ai/iris/internal/model"
)

const defaultCapacity = 100

// ring is a circular buffer of samples for one agent, plus the single
// latest-wins slot. The wrap-and-track-filled indexing mirrors the
// pack's time-bounded in-memory retention ring: buf[idx] is the next
// write slot, filled becomes true once the ring has wrapped at least
// once.
type ring struct {
	mu       sync.Mutex
	buf      []model.MetricsReport
	idx      int
	filled   bool
	latest   model.MetricsReport
	hasLatst bool
	touched  int64 // unix nano of last Put, for diagnostics
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]model.MetricsReport, capacity)}
}

func (r *ring) put(report model.MetricsReport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.idx] = report
	r.idx = (r.idx + 1) % len(r.buf)
	if r.idx == 0 {
		r.filled = true
	}
	// Ties go to the incoming report: last-writer-wins within a batch.
	if !r.hasLatst || report.Timestamp >= r.latest.Timestamp {
		r.latest = report
		r.hasLatst = true
	}
	r.touched = time.Now().UnixNano()
}

func (r *ring) getLatest() (model.MetricsReport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest, r.hasLatst
}

// tail returns up to n most-recent samples, oldest-first.
func (r *ring) tail(n int) []model.MetricsReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.idx
	if r.filled {
		size = len(r.buf)
	}
	if n > size {
		n = size
	}
	if n <= 0 {
		return nil
	}

	out := make([]model.MetricsReport, n)
	// The most recently written slot is r.idx-1 (mod len). Walk backward
	// n steps, then reverse into oldest-first order.
	pos := r.idx
	for i := n - 1; i >= 0; i-- {
		pos = (pos - 1 + len(r.buf)) % len(r.buf)
		out[i] = r.buf[pos]
	}
	return out
}

func (r *ring) lastSeen() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest.Timestamp
}

func (r *ring) hostname() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest.Hostname
}

// Cache maps agent_id to its ring. Readers and writers contend only on the
// per-agent lock inside ring; the map itself is a sync.Map so independent
// agents never block each other, the same sharded-by-key discipline the
// teacher's core.Store uses for per-key VSA instances.
type Cache struct {
	capacity int
	rings    sync.Map // map[string]*ring
}

// New creates a HotCache with the given per-agent ring capacity. A
// non-positive capacity falls back to the default of 100.
func New(capacityPerAgent int) *Cache {
	if capacityPerAgent <= 0 {
		capacityPerAgent = defaultCapacity
	}
	return &Cache{capacity: capacityPerAgent}
}

func (c *Cache) ringFor(agentID string) *ring {
	if v, ok := c.rings.Load(agentID); ok {
		return v.(*ring)
	}
	r := newRing(c.capacity)
	actual, _ := c.rings.LoadOrStore(agentID, r)
	return actual.(*ring)
}

// Put appends report to agent's ring, evicting the oldest entry when
// full, and updates the latest slot. Never fails.
func (c *Cache) Put(report model.MetricsReport) {
	c.ringFor(report.AgentID).put(report)
}

// Latest returns the most recent report for agentID, if known.
func (c *Cache) Latest(agentID string) (model.MetricsReport, bool) {
	if v, ok := c.rings.Load(agentID); ok {
		return v.(*ring).getLatest()
	}
	return model.MetricsReport{}, false
}

// Tail returns up to n most-recent samples for agentID, oldest-first.
func (c *Cache) Tail(agentID string, n int) []model.MetricsReport {
	if v, ok := c.rings.Load(agentID); ok {
		return v.(*ring).tail(n)
	}
	return nil
}

// Agents returns a snapshot of known agent_ids with their latest
// timestamps and hostnames.
func (c *Cache) Agents() []model.AgentDescriptor {
	var out []model.AgentDescriptor
	c.rings.Range(func(key, value any) bool {
		r := value.(*ring)
		out = append(out, model.AgentDescriptor{
			AgentID:  key.(string),
			Hostname: r.hostname(),
			LastSeen: r.lastSeen(),
		})
		return true
	})
	return out
}

// Evict removes all entries for an agent.
func (c *Cache) Evict(agentID string) {
	c.rings.Delete(agentID)
}
