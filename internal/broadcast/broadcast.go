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

// Package broadcast fans freshly-ingested reports out to live
// subscribers (dashboards, SSE/websocket handlers). Each subscriber gets
// its own bounded channel; a slow subscriber drops its own oldest event
// rather than stalling ingestion, the same isolation the pack's
// collector examples give per-consumer fan-out channels.
package broadcast

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ablate-ai/iris/internal/model"
	"github.com/ablate-ai/iris/internal/telemetry"
)

const defaultSubscriberBuffer = 16

// Hub manages live subscriptions and publishes incoming reports to all
// of them.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]chan model.MetricsReport
	bufferSize  int
	log         zerolog.Logger
}

// New creates a Hub. bufferSize<=0 falls back to 16 events per
// subscriber.
func New(bufferSize int, log zerolog.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = defaultSubscriberBuffer
	}
	return &Hub{
		subscribers: make(map[string]chan model.MetricsReport),
		bufferSize:  bufferSize,
		log:         log.With().Str("component", "broadcast").Logger(),
	}
}

// Subscribe registers a new live subscriber and returns its id and
// receive channel. The caller must call Unsubscribe(id) when done.
func (h *Hub) Subscribe() (string, <-chan model.MetricsReport) {
	id := uuid.NewString()
	ch := make(chan model.MetricsReport, h.bufferSize)

	h.mu.Lock()
	h.subscribers[id] = ch
	count := len(h.subscribers)
	h.mu.Unlock()

	telemetry.BroadcastSubscribers.Set(float64(count))
	h.log.Debug().Str("subscriber_id", id).Msg("subscriber joined")
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	ch, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	count := len(h.subscribers)
	h.mu.Unlock()

	if !ok {
		return
	}
	close(ch)
	telemetry.BroadcastSubscribers.Set(float64(count))
	h.log.Debug().Str("subscriber_id", id).Msg("subscriber left")
}

// Publish sends report to every current subscriber. A subscriber whose
// buffer is full has its oldest buffered event dropped to make room —
// publish never blocks on a slow reader.
func (h *Hub) Publish(report model.MetricsReport) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subscribers {
		select {
		case ch <- report:
		default:
			select {
			case <-ch:
				telemetry.BroadcastDroppedTotal.Inc()
			default:
			}
			select {
			case ch <- report:
			default:
				telemetry.BroadcastDroppedTotal.Inc()
				h.log.Warn().Str("subscriber_id", id).Msg("dropped event for slow subscriber")
			}
		}
	}
}

// Count returns the current number of live subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
