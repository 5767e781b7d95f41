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

package iris

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/ablate-ai/iris/internal/batch"
	"github.com/ablate-ai/iris/internal/broadcast"
	"github.com/ablate-ai/iris/internal/hotcache"
	"github.com/ablate-ai/iris/internal/persistence"
	"github.com/ablate-ai/iris/internal/queue"
	"github.com/ablate-ai/iris/internal/retention"
	"github.com/ablate-ai/iris/internal/telemetry"
)

const (
	defaultCacheSizePerAgent = 100
	defaultBatchSize         = 50
	defaultBatchTimeout      = 5 * time.Second
	defaultChannelCapacity   = 1000
	defaultMaxRecords        = 604_800
	defaultCleanupInterval   = 6 * time.Hour
)

// Config carries every tunable of the storage core. Every field has a
// documented default and is optional; NewStorage fills in zero values
// the same way the teacher's constructors do ("if opts.X <= 0 { opts.X
// = default }"), not via a config-file loader — wiring Config from a
// file, flags or environment is the server entry point's job, outside
// this module's scope.
type Config struct {
	// DBPath enables persistent mode when set and openable. Empty means
	// in-memory mode: BatchWriter and the retention sweeper never run,
	// and History falls back to the HotCache tail.
	DBPath string

	// CacheSizePerAgent is the HotCache ring capacity. Default 100.
	CacheSizePerAgent int
	// BatchSize is BatchWriter's count-based flush trigger. Default 50.
	BatchSize int
	// BatchTimeout is BatchWriter's time-based flush trigger. Default 5s.
	BatchTimeout time.Duration
	// ChannelCapacity is the WriteQueue depth. Default 1000.
	ChannelCapacity int
	// MaxRecordsPerAgent bounds persisted history per agent. Default
	// 604800 (one sample/second for one week).
	MaxRecordsPerAgent int
	// RetentionDays enables age-based deletion when > 0. Default 0 (off).
	RetentionDays int
	// CleanupIntervalHours is the retention sweeper's period. Default 6.
	CleanupIntervalHours int
	// DisableCleanup turns off the retention sweeper entirely. Default
	// false, matching spec.md's `enable_cleanup` default of true — this
	// field is inverted relative to the spec name so that Go's zero
	// value (false) preserves the documented default instead of silently
	// disabling retention for every caller who doesn't set it explicitly.
	DisableCleanup bool

	// SubscriberBuffer is the per-subscriber LiveBroadcast channel
	// capacity. Default 16 (see internal/broadcast).
	SubscriberBuffer int

	// Logger is the base logger every component derives from via
	// .With().Str("component", ...). The zero value is zerolog's
	// no-op/disabled logger, which is a safe default for library use.
	Logger zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.CacheSizePerAgent <= 0 {
		c.CacheSizePerAgent = defaultCacheSizePerAgent
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = defaultBatchTimeout
	}
	if c.ChannelCapacity <= 0 {
		c.ChannelCapacity = defaultChannelCapacity
	}
	if c.MaxRecordsPerAgent <= 0 {
		c.MaxRecordsPerAgent = defaultMaxRecords
	}
	if c.CleanupIntervalHours <= 0 {
		c.CleanupIntervalHours = int(defaultCleanupInterval.Hours())
	}
	return c
}

// Storage is the public façade assembling HotCache, WriteQueue,
// BatchWriter, PersistenceLayer, RetentionSweeper and LiveBroadcast into
// the single entry point the ingestion RPC and query API use. It
// collapses the teacher's pkg/vsa + internal/ratelimiter/core.Store
// split into one type: unlike the rate limiter, Iris's storage core has
// no separate low-level primitive worth exposing independently.
type Storage struct {
	cfg        Config
	log        zerolog.Logger
	cache      *hotcache.Cache
	hub        *broadcast.Hub
	queue      *queue.WriteQueue
	writer     *batch.Writer
	sweeper    *retention.Sweeper
	store      *persistence.Store
	persistent bool
}

// NewStorage builds and starts a Storage instance: HotCache and
// LiveBroadcast always run; BatchWriter and the retention sweeper start
// only in persistent mode. Mode selection happens once, at construction,
// and is logged — runtime switching is not supported.
func NewStorage(cfg Config) (*Storage, error) {
	cfg = cfg.withDefaults()
	log := cfg.Logger.With().Str("component", "storage").Logger()

	s := &Storage{
		cfg:   cfg,
		log:   log,
		cache: hotcache.New(cfg.CacheSizePerAgent),
		hub:   broadcast.New(cfg.SubscriberBuffer, cfg.Logger),
		queue: queue.New(cfg.ChannelCapacity),
	}

	if cfg.DBPath == "" {
		s.log.Info().Msg("starting in in-memory mode: no db_path configured")
		return s, nil
	}

	store, err := persistence.Open(cfg.DBPath)
	if err != nil {
		return nil, &PersistenceCorruption{Path: cfg.DBPath, Err: err}
	}
	s.store = store
	s.persistent = true
	s.log.Info().Str("db_path", cfg.DBPath).Msg("starting in persistent mode")

	s.writer = batch.New(s.queue, s.store, cfg.BatchSize, cfg.BatchTimeout, cfg.Logger)
	s.writer.Start()

	if !cfg.DisableCleanup {
		interval := time.Duration(cfg.CleanupIntervalHours) * time.Hour
		s.sweeper = retention.New(s.store, interval, cfg.RetentionDays, cfg.MaxRecordsPerAgent, cfg.Logger)
		s.sweeper.Start()
	}

	return s, nil
}

// Ingest validates, caches, broadcasts and (if persistent) queues a
// report. It is synchronous and never touches disk directly: disk I/O
// happens later, on BatchWriter's own goroutine. A full WriteQueue is
// an Overload, not a failure — the report is already visible via
// HotCache and LiveBroadcast, so Ingest still reports success.
func (s *Storage) Ingest(report MetricsReport) error {
	if report.AgentID == "" {
		telemetry.IngestDroppedTotal.WithLabelValues("validation").Inc()
		return &ValidationError{Field: "agent_id"}
	}
	if report.Hostname == "" {
		telemetry.IngestDroppedTotal.WithLabelValues("validation").Inc()
		return &ValidationError{Field: "hostname"}
	}

	s.cache.Put(report)
	s.hub.Publish(report)
	telemetry.IngestTotal.Inc()

	if !s.persistent {
		return nil
	}

	if !s.queue.TryEnqueue(report) {
		telemetry.IngestDroppedTotal.WithLabelValues("overload").Inc()
		s.log.Warn().
			Str("agent_id", report.AgentID).
			Int("queue_depth", s.queue.Depth()).
			Msg("write queue full, dropping sample from persistence path")
	}
	return nil
}

// Latest returns the most recent report for agentID: HotCache first,
// falling back to persistence on a cache miss.
func (s *Storage) Latest(agentID string) (MetricsReport, bool, error) {
	if r, ok := s.cache.Latest(agentID); ok {
		return r, true, nil
	}
	if !s.persistent {
		return MetricsReport{}, false, nil
	}
	r, ok, err := s.store.Latest(agentID)
	if err != nil {
		return MetricsReport{}, false, &PersistenceIOError{Op: "latest", Err: err}
	}
	return r, ok, nil
}

// History returns up to limit reports for agentID in ascending
// timestamp order. In persistent mode this reads the full on-disk
// history (avoiding HotCache's bounded window); in in-memory mode it
// falls back to the HotCache tail.
func (s *Storage) History(agentID string, limit int) ([]MetricsReport, error) {
	if !s.persistent {
		return s.cache.Tail(agentID, limit), nil
	}
	reports, err := s.store.History(agentID, 0, 0, limit)
	if err != nil {
		return nil, &PersistenceIOError{Op: "history", Err: err}
	}
	return reports, nil
}

// Agents returns the union of every agent known to HotCache and, in
// persistent mode, PersistenceLayer — a HotCache-only restart window
// must not hide agents whose history is still queryable on disk.
// last_seen is the max across both sources.
func (s *Storage) Agents() ([]AgentDescriptor, error) {
	byID := make(map[string]AgentDescriptor)
	for _, a := range s.cache.Agents() {
		byID[a.AgentID] = a
	}

	if s.persistent {
		persisted, err := s.store.Agents()
		if err != nil {
			return nil, &PersistenceIOError{Op: "agents", Err: err}
		}
		for _, a := range persisted {
			existing, ok := byID[a.AgentID]
			if !ok || a.LastSeen > existing.LastSeen {
				byID[a.AgentID] = a
			}
		}
	}

	if len(byID) == 0 {
		return nil, nil
	}
	agents := make([]AgentDescriptor, 0, len(byID))
	for _, a := range byID {
		agents = append(agents, a)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].AgentID < agents[j].AgentID })
	return agents, nil
}

// Subscribe registers a new live-stream subscriber. The returned
// unsubscribe function must be called exactly once when the caller is
// done receiving.
func (s *Storage) Subscribe() (<-chan MetricsReport, func()) {
	id, ch := s.hub.Subscribe()
	return ch, func() { s.hub.Unsubscribe(id) }
}

// Shutdown stops the batch writer and retention sweeper (draining and
// flushing any buffered reports) and closes the persistence file. Safe
// to call on an in-memory Storage, where it is a no-op.
func (s *Storage) Shutdown() error {
	if !s.persistent {
		return nil
	}
	s.writer.Stop()
	if s.sweeper != nil {
		s.sweeper.Stop()
	}
	if err := s.store.Close(); err != nil {
		return &PersistenceIOError{Op: "close", Err: err}
	}
	return nil
}
