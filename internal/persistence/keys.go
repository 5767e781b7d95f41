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
	"fmt"
	"strconv"
	"strings"
)

// Samples are keyed "<agent_id>\x00<ts20>\x00<nonce20>" inside the
// "samples" bucket so bbolt's native byte-lexicographic ordering walks a
// single agent's history in timestamp order without a secondary index.
// The NUL separator can't appear in an agent_id sourced from JSON, so
// there is no ambiguity splitting it back apart. ts20/nonce20 are
// zero-padded to 20 decimal digits (enough for any int64 and any
// realistic batch counter) so lexicographic and numeric order agree.
const keySep = "\x00"

func encodeSampleKey(agentID string, ts int64, nonce uint64) []byte {
	return []byte(agentID + keySep + ts20(ts) + keySep + nonce20(nonce))
}

// decodeSampleKey reverses encodeSampleKey. It also accepts the legacy
// "agent_id:ts" form (no nonce, colon separator) left behind by an
// earlier on-disk layout, per spec.md's read-compat requirement.
func decodeSampleKey(key []byte) (agentID string, ts int64, ok bool) {
	s := string(key)
	if parts := strings.SplitN(s, keySep, 3); len(parts) == 3 {
		t, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return "", 0, false
		}
		return parts[0], t, true
	}
	if idx := strings.LastIndex(s, ":"); idx > 0 {
		t, err := strconv.ParseInt(s[idx+1:], 10, 64)
		if err != nil {
			return "", 0, false
		}
		return s[:idx], t, true
	}
	return "", 0, false
}

func agentPrefix(agentID string) []byte {
	return []byte(agentID + keySep)
}

func ts20(ts int64) string {
	if ts < 0 {
		ts = 0
	}
	return fmt.Sprintf("%020d", ts)
}

func nonce20(n uint64) string {
	return fmt.Sprintf("%020d", n)
}
