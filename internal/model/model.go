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

// Package model holds the data types shared by every storage-core
// component. It has no dependencies on sibling internal packages so that
// hotcache, queue, batch, persistence, retention and broadcast can all
// depend on it without cycles.
package model

import "encoding/json"

// MetricsReport is the atomic unit of ingestion and storage.
type MetricsReport struct {
	AgentID   string          `json:"agent_id"`
	Hostname  string          `json:"hostname"`
	Timestamp int64           `json:"timestamp"`
	System    json.RawMessage `json:"system,omitempty"`
}

// AgentDescriptor is derived from the latest-pointer table joined with
// the most recent sample for that agent.
type AgentDescriptor struct {
	AgentID  string `json:"agent_id"`
	Hostname string `json:"hostname"`
	LastSeen int64  `json:"last_seen"`
}
