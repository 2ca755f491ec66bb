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

/*
Package metrics provides engine counters for NestDB.

METRIC CATEGORIES:
==================
- Buffer pool: hits, misses, evictions, flushes
- Index: inserts, deletes, splits, coalesces
- Locking: grants, waits, upgrades, deadlocks detected
- Transactions: begun, committed, aborted

All counters are lock-free atomics; a Snapshot can be taken at any time
for display in the shell or in tests.
*/
package metrics

import (
	"fmt"
	"sync/atomic"
)

// Metrics holds all NestDB engine counters.
type Metrics struct {
	// Buffer pool metrics
	BufferHits      atomic.Uint64
	BufferMisses    atomic.Uint64
	BufferEvictions atomic.Uint64
	BufferFlushes   atomic.Uint64

	// Index metrics
	IndexInserts   atomic.Uint64
	IndexDeletes   atomic.Uint64
	IndexSplits    atomic.Uint64
	IndexCoalesces atomic.Uint64

	// Lock manager metrics
	LockGrants    atomic.Uint64
	LockWaits     atomic.Uint64
	LockUpgrades  atomic.Uint64
	Deadlocks     atomic.Uint64

	// Transaction metrics
	TxnsBegun     atomic.Uint64
	TxnsCommitted atomic.Uint64
	TxnsAborted   atomic.Uint64
}

// Global metrics instance.
var globalMetrics = &Metrics{}

// Get returns the global metrics instance.
func Get() *Metrics {
	return globalMetrics
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	BufferHits      uint64
	BufferMisses    uint64
	BufferEvictions uint64
	BufferFlushes   uint64
	BufferHitRate   float64

	IndexInserts   uint64
	IndexDeletes   uint64
	IndexSplits    uint64
	IndexCoalesces uint64

	LockGrants   uint64
	LockWaits    uint64
	LockUpgrades uint64
	Deadlocks    uint64

	TxnsBegun     uint64
	TxnsCommitted uint64
	TxnsAborted   uint64
}

// Snapshot captures the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		BufferHits:      m.BufferHits.Load(),
		BufferMisses:    m.BufferMisses.Load(),
		BufferEvictions: m.BufferEvictions.Load(),
		BufferFlushes:   m.BufferFlushes.Load(),
		IndexInserts:    m.IndexInserts.Load(),
		IndexDeletes:    m.IndexDeletes.Load(),
		IndexSplits:     m.IndexSplits.Load(),
		IndexCoalesces:  m.IndexCoalesces.Load(),
		LockGrants:      m.LockGrants.Load(),
		LockWaits:       m.LockWaits.Load(),
		LockUpgrades:    m.LockUpgrades.Load(),
		Deadlocks:       m.Deadlocks.Load(),
		TxnsBegun:       m.TxnsBegun.Load(),
		TxnsCommitted:   m.TxnsCommitted.Load(),
		TxnsAborted:     m.TxnsAborted.Load(),
	}
	total := s.BufferHits + s.BufferMisses
	if total > 0 {
		s.BufferHitRate = float64(s.BufferHits) / float64(total) * 100
	}
	return s
}

// Reset zeroes every counter. Intended for tests.
func (m *Metrics) Reset() {
	m.BufferHits.Store(0)
	m.BufferMisses.Store(0)
	m.BufferEvictions.Store(0)
	m.BufferFlushes.Store(0)
	m.IndexInserts.Store(0)
	m.IndexDeletes.Store(0)
	m.IndexSplits.Store(0)
	m.IndexCoalesces.Store(0)
	m.LockGrants.Store(0)
	m.LockWaits.Store(0)
	m.LockUpgrades.Store(0)
	m.Deadlocks.Store(0)
	m.TxnsBegun.Store(0)
	m.TxnsCommitted.Store(0)
	m.TxnsAborted.Store(0)
}

// String renders the snapshot as a small fixed-order report.
func (s Snapshot) String() string {
	return fmt.Sprintf(
		"buffer: hits=%d misses=%d hit_rate=%.1f%% evictions=%d flushes=%d\n"+
			"index:  inserts=%d deletes=%d splits=%d coalesces=%d\n"+
			"locks:  grants=%d waits=%d upgrades=%d deadlocks=%d\n"+
			"txns:   begun=%d committed=%d aborted=%d",
		s.BufferHits, s.BufferMisses, s.BufferHitRate, s.BufferEvictions, s.BufferFlushes,
		s.IndexInserts, s.IndexDeletes, s.IndexSplits, s.IndexCoalesces,
		s.LockGrants, s.LockWaits, s.LockUpgrades, s.Deadlocks,
		s.TxnsBegun, s.TxnsCommitted, s.TxnsAborted)
}
