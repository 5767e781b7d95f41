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

// Package persistence is the durable, embedded on-disk layer backing the
// storage core. It is built on go.etcd.io/bbolt, an ordered embedded
// key-value store, the same family of storage engine the pack's
// cuemby-warren BoltStore and etcd's own mvcc backend wrap: a single
// file, two buckets, no external process.
package persistence

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.etcd.io/bbolt"

	"github.com/ablate-ai/iris/internal/model"
)

var (
	samplesBucket     = []byte("samples")
	agentLatestBucket = []byte("agent_latest")
)

// Store is the bbolt-backed PersistenceLayer. All methods are safe for
// concurrent use; bbolt serializes writers internally and allows
// concurrent readers via MVCC snapshots.
type Store struct {
	db    *bbolt.DB
	path  string
	nonce uint64 // atomic, monotonic within process lifetime
}

// Open creates or opens the bbolt file at path and ensures both buckets
// exist. Mirrors the teacher's persistence constructors: fail fast and
// loudly if the on-disk file can't be prepared.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("persistence: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(samplesBucket); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(agentLatestBucket); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("persistence: init buckets: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close releases the underlying file handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// WriteBatch commits reports as a single bbolt transaction: either all
// rows land or none do, matching BatchWriter's all-or-nothing commit
// requirement. Every report in the batch gets a distinct nonce, drawn
// from a process-wide atomic counter, so same-timestamp rows from the
// same batch never collide under the lexicographic key.
func (s *Store) WriteBatch(reports []model.MetricsReport) error {
	if len(reports) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		samples := tx.Bucket(samplesBucket)
		latest := tx.Bucket(agentLatestBucket)

		for _, r := range reports {
			n := atomic.AddUint64(&s.nonce, 1)
			val, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("marshal report for agent %s: %w", r.AgentID, err)
			}
			key := encodeSampleKey(r.AgentID, r.Timestamp, n)
			if err := samples.Put(key, val); err != nil {
				return err
			}

			cur := latest.Get([]byte(r.AgentID))
			if cur == nil {
				if err := latest.Put([]byte(r.AgentID), val); err != nil {
					return err
				}
				continue
			}
			var existing model.MetricsReport
			if err := json.Unmarshal(cur, &existing); err == nil && r.Timestamp < existing.Timestamp {
				continue
			}
			if err := latest.Put([]byte(r.AgentID), val); err != nil {
				return err
			}
		}
		return nil
	})
}

// Latest returns the most recently observed report for agentID. The
// normal path is a single point lookup in agent_latest; only when that
// pointer is missing (an agent known solely through legacy-format keys
// written by an older build) does it fall back to scanning samples.
func (s *Store) Latest(agentID string) (model.MetricsReport, bool, error) {
	var report model.MetricsReport
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		if val := tx.Bucket(agentLatestBucket).Get([]byte(agentID)); val != nil {
			if err := json.Unmarshal(val, &report); err != nil {
				return fmt.Errorf("decode latest for agent %s: %w", agentID, err)
			}
			found = true
			return nil
		}
		all, err := scanAgentSamples(tx, agentID)
		if err != nil {
			return err
		}
		if len(all) == 0 {
			return nil
		}
		report = all[len(all)-1]
		found = true
		return nil
	})
	return report, found, err
}

// History returns up to limit reports for agentID within [since, until]
// (milliseconds since epoch; until<=0 means no upper bound), oldest-first.
// It reads every sample for the agent (modern and legacy keys), filters
// them to the window, and when more than limit match keeps the newest
// limit of them; limit<=0 returns every match.
func (s *Store) History(agentID string, since, until int64, limit int) ([]model.MetricsReport, error) {
	var out []model.MetricsReport
	err := s.db.View(func(tx *bbolt.Tx) error {
		all, err := scanAgentSamples(tx, agentID)
		if err != nil {
			return err
		}
		for _, r := range all {
			if r.Timestamp < since {
				continue
			}
			if until > 0 && r.Timestamp > until {
				continue
			}
			out = append(out, r)
		}
		if limit > 0 && len(out) > limit {
			out = out[len(out)-limit:]
		}
		return nil
	})
	return out, err
}

// scanAgentSamples reads every sample for agentID, under both the
// modern agent_id\x00ts\x00nonce key form and the legacy agent_id:ts
// form, and returns them sorted ascending by timestamp. The two key
// forms never interleave in the keyspace (a NUL byte always sorts
// before ':'), so each gets its own prefix scan.
func scanAgentSamples(tx *bbolt.Tx, agentID string) ([]model.MetricsReport, error) {
	var out []model.MetricsReport
	c := tx.Bucket(samplesBucket).Cursor()

	modernPrefix := agentPrefix(agentID)
	for k, v := c.Seek(modernPrefix); k != nil && hasPrefix(k, modernPrefix); k, v = c.Next() {
		var r model.MetricsReport
		if err := json.Unmarshal(v, &r); err != nil {
			return nil, fmt.Errorf("decode sample %x: %w", k, err)
		}
		out = append(out, r)
	}

	legacyPrefix := []byte(agentID + ":")
	for k, v := c.Seek(legacyPrefix); k != nil && hasPrefix(k, legacyPrefix); k, v = c.Next() {
		var r model.MetricsReport
		if err := json.Unmarshal(v, &r); err != nil {
			return nil, fmt.Errorf("decode legacy sample %x: %w", k, err)
		}
		out = append(out, r)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

// Agents returns every agent_id with a latest-pointer entry.
func (s *Store) Agents() ([]model.AgentDescriptor, error) {
	var out []model.AgentDescriptor
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(agentLatestBucket).ForEach(func(k, v []byte) error {
			var r model.MetricsReport
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("decode latest for agent %s: %w", k, err)
			}
			out = append(out, model.AgentDescriptor{
				AgentID:  string(k),
				Hostname: r.Hostname,
				LastSeen: r.Timestamp,
			})
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, err
}

// DeleteOlderThan removes every sample for agentID with a timestamp
// strictly before cutoff (milliseconds since epoch). It returns the number of rows
// deleted. If the agent has no samples left afterward, its latest
// pointer is dropped too, per spec.md's zero-record agent eviction rule.
func (s *Store) DeleteOlderThan(agentID string, cutoff int64) (int, error) {
	deleted := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		samples := tx.Bucket(samplesBucket)

		var doomed [][]byte
		for _, prefix := range agentKeyPrefixes(agentID) {
			c := samples.Cursor()
			for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
				_, ts, ok := decodeSampleKey(k)
				if !ok {
					continue
				}
				if ts < cutoff {
					doomed = append(doomed, append([]byte(nil), k...))
				}
			}
		}
		for _, k := range doomed {
			if err := samples.Delete(k); err != nil {
				return err
			}
			deleted++
		}
		return s.dropLatestIfEmpty(tx, agentID)
	})
	return deleted, err
}

// TrimToCount keeps only the newest maxRecords samples for agentID,
// deleting the oldest overflow. Returns the number of rows deleted.
func (s *Store) TrimToCount(agentID string, maxRecords int) (int, error) {
	if maxRecords <= 0 {
		return 0, nil
	}
	deleted := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		samples := tx.Bucket(samplesBucket)

		type keyTS struct {
			key []byte
			ts  int64
		}
		var keys []keyTS
		for _, prefix := range agentKeyPrefixes(agentID) {
			c := samples.Cursor()
			for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
				_, ts, ok := decodeSampleKey(k)
				if !ok {
					continue
				}
				keys = append(keys, keyTS{append([]byte(nil), k...), ts})
			}
		}
		if len(keys) <= maxRecords {
			return nil
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i].ts < keys[j].ts })
		overflow := keys[:len(keys)-maxRecords]
		for _, kt := range overflow {
			if err := samples.Delete(kt.key); err != nil {
				return err
			}
			deleted++
		}
		return s.dropLatestIfEmpty(tx, agentID)
	})
	return deleted, err
}

// agentKeyPrefixes returns the modern and legacy key prefixes for
// agentID, in that scan order.
func agentKeyPrefixes(agentID string) [][]byte {
	return [][]byte{agentPrefix(agentID), []byte(agentID + ":")}
}

func (s *Store) dropLatestIfEmpty(tx *bbolt.Tx, agentID string) error {
	samples := tx.Bucket(samplesBucket)
	for _, prefix := range agentKeyPrefixes(agentID) {
		c := samples.Cursor()
		if k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix) {
			return nil
		}
	}
	return tx.Bucket(agentLatestBucket).Delete([]byte(agentID))
}

func hasPrefix(key, prefix []byte) bool {
	if len(key) < len(prefix) {
		return false
	}
	for i := range prefix {
		if key[i] != prefix[i] {
			return false
		}
	}
	return true
}
