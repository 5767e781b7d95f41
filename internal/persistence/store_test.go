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

package persistence

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"go.etcd.io/bbolt"

	"github.com/ablate-ai/iris/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "iris.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestWriteBatchThenLatestAndHistory(t *testing.T) {
	s := openTestStore(t)

	reports := []model.MetricsReport{
		{AgentID: "a", Hostname: "h", Timestamp: 100},
		{AgentID: "a", Hostname: "h", Timestamp: 200},
		{AgentID: "a", Hostname: "h", Timestamp: 300},
	}
	if err := s.WriteBatch(reports); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}

	latest, ok, err := s.Latest("a")
	if err != nil || !ok {
		t.Fatalf("Latest: report=%v ok=%v err=%v", latest, ok, err)
	}
	if latest.Timestamp != 300 {
		t.Fatalf("expected latest timestamp 300, got %d", latest.Timestamp)
	}

	history, err := s.History("a", 0, 0, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(history))
	}
	for i, want := range []int64{100, 200, 300} {
		if history[i].Timestamp != want {
			t.Fatalf("history[%d].Timestamp = %d, want %d", i, history[i].Timestamp, want)
		}
	}
}

func TestWriteBatchIsAtomicAcrossReports(t *testing.T) {
	s := openTestStore(t)
	reports := []model.MetricsReport{
		{AgentID: "a", Timestamp: 1},
		{AgentID: "b", Timestamp: 2},
	}
	if err := s.WriteBatch(reports); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	agents, err := s.Agents()
	if err != nil {
		t.Fatalf("Agents: %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("expected 2 agents committed together, got %d", len(agents))
	}
}

func TestDeleteOlderThanRemovesAgedSamples(t *testing.T) {
	s := openTestStore(t)
	s.WriteBatch([]model.MetricsReport{
		{AgentID: "a", Timestamp: 100},
		{AgentID: "a", Timestamp: 200},
		{AgentID: "a", Timestamp: 300},
	})

	deleted, err := s.DeleteOlderThan("a", 200)
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted row, got %d", deleted)
	}

	history, _ := s.History("a", 0, 0, 10)
	if len(history) != 2 {
		t.Fatalf("expected 2 remaining rows, got %d", len(history))
	}
}

func TestTrimToCountKeepsNewest(t *testing.T) {
	s := openTestStore(t)
	var reports []model.MetricsReport
	for i := int64(1); i <= 25; i++ {
		reports = append(reports, model.MetricsReport{AgentID: "a", Timestamp: i})
	}
	s.WriteBatch(reports)

	deleted, err := s.TrimToCount("a", 10)
	if err != nil {
		t.Fatalf("TrimToCount: %v", err)
	}
	if deleted != 15 {
		t.Fatalf("expected 15 deleted rows, got %d", deleted)
	}

	history, _ := s.History("a", 0, 0, 100)
	if len(history) != 10 {
		t.Fatalf("expected 10 remaining rows, got %d", len(history))
	}
	if history[0].Timestamp != 16 || history[9].Timestamp != 25 {
		t.Fatalf("expected newest 10 kept, got first=%d last=%d", history[0].Timestamp, history[9].Timestamp)
	}
}

func TestDropsLatestPointerWhenAgentEmptied(t *testing.T) {
	s := openTestStore(t)
	s.WriteBatch([]model.MetricsReport{{AgentID: "a", Timestamp: 100}})

	if _, err := s.DeleteOlderThan("a", 1000); err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}

	if _, ok, _ := s.Latest("a"); ok {
		t.Fatal("expected latest pointer to be dropped once agent has zero samples")
	}
}

func TestLegacyKeyRoundTrip(t *testing.T) {
	s := openTestStore(t)

	err := s.db.Update(func(tx *bbolt.Tx) error {
		samples := tx.Bucket(samplesBucket)
		report := model.MetricsReport{AgentID: "legacy-agent", Hostname: "h", Timestamp: 555}
		val, err := json.Marshal(report)
		if err != nil {
			return err
		}
		return samples.Put([]byte("legacy-agent:555"), val)
	})
	if err != nil {
		t.Fatalf("seed legacy key: %v", err)
	}

	history, err := s.History("legacy-agent", 0, 0, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || history[0].Timestamp != 555 {
		t.Fatalf("expected legacy key to be readable, got %+v", history)
	}
}

func TestAgentsReturnsEmptySliceWhenStoreEmpty(t *testing.T) {
	s := openTestStore(t)
	agents, err := s.Agents()
	if err != nil {
		t.Fatalf("Agents: %v", err)
	}
	if len(agents) != 0 {
		t.Fatalf("expected no agents, got %d", len(agents))
	}
}
