/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package metrics

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotHitRate(t *testing.T) {
	m := &Metrics{}
	m.BufferHits.Add(3)
	m.BufferMisses.Add(1)

	s := m.Snapshot()
	assert.Equal(t, uint64(3), s.BufferHits)
	assert.Equal(t, uint64(1), s.BufferMisses)
	assert.InDelta(t, 75.0, s.BufferHitRate, 0.001)
}

func TestSnapshotZeroTrafficHasZeroRate(t *testing.T) {
	m := &Metrics{}
	assert.Zero(t, m.Snapshot().BufferHitRate)
}

func TestResetClearsCounters(t *testing.T) {
	m := &Metrics{}
	m.Deadlocks.Add(2)
	m.TxnsCommitted.Add(5)
	m.Reset()

	s := m.Snapshot()
	assert.Zero(t, s.Deadlocks)
	assert.Zero(t, s.TxnsCommitted)
}

func TestSnapshotStringSections(t *testing.T) {
	m := &Metrics{}
	m.IndexSplits.Add(4)
	out := m.Snapshot().String()
	for _, section := range []string{"buffer:", "index:", "locks:", "txns:"} {
		assert.True(t, strings.Contains(out, section), "missing %s section", section)
	}
	assert.Contains(t, out, "splits=4")
}
