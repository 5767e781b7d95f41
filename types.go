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

// Package iris implements the storage core and ingestion pipeline for the
// Iris host-metrics telemetry system: a fleet of agents push MetricsReport
// samples to a central Storage instance, which caches, persists, retires
// and streams them.
package iris

import "github.com/ablate-ai/iris/internal/model"

// MetricsReport is the atomic unit of ingestion and storage. System is an
// opaque, caller-defined payload (CPU/memory/disk/network counters); this
// package never inspects its shape and round-trips it verbatim through
// persistence.
type MetricsReport = model.MetricsReport

// AgentDescriptor is derived, never stored explicitly: the latest-pointer
// table joined with the most recent sample for that agent.
type AgentDescriptor = model.AgentDescriptor
