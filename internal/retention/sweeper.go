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

// Package retention periodically trims persisted history: age-based
// deletion via retention_days and count-based deletion via
// max_records_per_agent. Same periodic-ticker-goroutine shape as
// internal/batch, grounded on the same teacher/pack precedent.
package retention

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ablate-ai/iris/internal/model"
	"github.com/ablate-ai/iris/internal/telemetry"
)

// Pruner is the subset of the persistence layer the sweeper needs.
type Pruner interface {
	Agents() ([]model.AgentDescriptor, error)
	DeleteOlderThan(agentID string, cutoff int64) (int, error)
	TrimToCount(agentID string, maxRecords int) (int, error)
}

// Sweeper runs periodic retention passes over every known agent.
type Sweeper struct {
	store          Pruner
	interval       time.Duration
	retentionDays  int
	maxRecords     int
	log            zerolog.Logger
	now            func() time.Time
	stopCh         chan struct{}
	doneCh         chan struct{}
	once           sync.Once
}

// New builds a Sweeper. retentionDays<=0 disables age-based deletion;
// maxRecords<=0 disables count-based trimming. interval<=0 falls back to
// 6 hours, the teacher's default housekeeping cadence.
func New(store Pruner, interval time.Duration, retentionDays, maxRecords int, log zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &Sweeper{
		store:         store,
		interval:      interval,
		retentionDays: retentionDays,
		maxRecords:    maxRecords,
		log:           log.With().Str("component", "retention").Logger(),
		now:           time.Now,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start launches the periodic sweep goroutine.
func (s *Sweeper) Start() {
	go s.run()
}

// Stop signals the sweep goroutine to exit and waits for it.
func (s *Sweeper) Stop() {
	s.once.Do(func() {
		close(s.stopCh)
	})
	<-s.doneCh
}

func (s *Sweeper) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.SweepOnce()
		case <-s.stopCh:
			return
		}
	}
}

// SweepOnce runs a single retention pass over every known agent. It is
// exported so callers (and tests) can trigger an out-of-band sweep
// without waiting for the ticker.
func (s *Sweeper) SweepOnce() {
	telemetry.RetentionSweepsTotal.Inc()

	agents, err := s.store.Agents()
	if err != nil {
		s.log.Error().Err(err).Msg("retention sweep: list agents failed")
		return
	}

	var cutoff int64
	if s.retentionDays > 0 {
		// Sample timestamps are milliseconds since epoch (spec.md §3), so
		// the cutoff must be too — an accidental Unix()-in-seconds cutoff
		// here compares against ms timestamps and never matches anything.
		cutoff = s.now().AddDate(0, 0, -s.retentionDays).UnixMilli()
	}

	for _, agent := range agents {
		total := 0
		if s.retentionDays > 0 {
			n, err := s.store.DeleteOlderThan(agent.AgentID, cutoff)
			if err != nil {
				s.log.Error().Err(err).Str("agent_id", agent.AgentID).Msg("retention: age-based delete failed")
			} else {
				total += n
			}
		}
		if s.maxRecords > 0 {
			n, err := s.store.TrimToCount(agent.AgentID, s.maxRecords)
			if err != nil {
				s.log.Error().Err(err).Str("agent_id", agent.AgentID).Msg("retention: count-based trim failed")
			} else {
				total += n
			}
		}
		if total > 0 {
			telemetry.RetentionDeletedTotal.Add(float64(total))
			s.log.Info().Str("agent_id", agent.AgentID).Int("deleted", total).Msg("retention swept agent")
		}
	}
}
