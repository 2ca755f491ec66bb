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
Package concurrency implements transactions, the two-phase-locking lock
manager, and deadlock detection.

Two-Phase Locking Protocol:
===========================

  - Growing phase: a transaction may acquire locks but releases none.
  - Shrinking phase: once it releases its first lock (under repeatable
    read), it may never acquire another.

Lock Compatibility Matrix:
==========================

  - Shared + Shared: compatible (multiple readers)
  - Shared + Exclusive: conflict
  - Exclusive + anything: conflict

Deadlock Detection:
===================

A background task periodically rebuilds the wait-for graph from the lock
queues and searches it for cycles; the youngest transaction on each cycle
is aborted until none remain.
*/
package concurrency

import (
	"sync"
	"sync/atomic"

	"nestdb/internal/storage/page"
)

// TxnID identifies a transaction. IDs are monotonic: a higher id means a
// younger transaction.
type TxnID int64

// InvalidTxnID marks an unset transaction id.
const InvalidTxnID TxnID = -1

// TxnState is the lifecycle state of a transaction.
type TxnState int32

const (
	// Growing: the transaction is acquiring locks.
	Growing TxnState = iota
	// Shrinking: the transaction has begun releasing locks.
	Shrinking
	// Committed: the transaction finished successfully.
	Committed
	// Aborted: the transaction was aborted or killed as a deadlock victim.
	Aborted
)

// String returns the symbolic state name.
func (s TxnState) String() string {
	switch s {
	case Growing:
		return "GROWING"
	case Shrinking:
		return "SHRINKING"
	case Committed:
		return "COMMITTED"
	case Aborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// IsolationLevel selects the transaction's isolation guarantees.
type IsolationLevel int

const (
	// ReadUncommitted takes no shared locks at all.
	ReadUncommitted IsolationLevel = iota
	// ReadCommitted takes shared locks but releases them early, so reads
	// are not repeatable.
	ReadCommitted
	// RepeatableRead holds shared locks to the end of the transaction and
	// enforces the shrinking phase.
	RepeatableRead
)

// String returns the symbolic isolation level name.
func (l IsolationLevel) String() string {
	switch l {
	case ReadUncommitted:
		return "READ_UNCOMMITTED"
	case ReadCommitted:
		return "READ_COMMITTED"
	case RepeatableRead:
		return "REPEATABLE_READ"
	default:
		return "UNKNOWN"
	}
}

// Transaction carries the state the lock manager and the B+ tree need:
// the 2PL phase, the lock sets, and the latched/deleted page sets of the
// tree operation currently in flight.
//
// The page sets are owned by the single goroutine driving the
// transaction; the lock sets are also read by the deadlock detector and
// are mutex-protected.
type Transaction struct {
	id        TxnID
	isolation IsolationLevel
	state     atomic.Int32

	lockMu        sync.Mutex
	sharedLocks   map[page.RID]struct{}
	exclusiveLock map[page.RID]struct{}

	// Pages write-latched by the in-flight index operation, in latch
	// acquisition order, and pages scheduled for deletion when it ends.
	pageSet        []*page.Page
	deletedPageSet map[page.ID]struct{}
}

// NewTransaction creates a transaction in the Growing state. Callers
// normally go through TransactionManager.Begin.
func NewTransaction(id TxnID, isolation IsolationLevel) *Transaction {
	return &Transaction{
		id:             id,
		isolation:      isolation,
		sharedLocks:    make(map[page.RID]struct{}),
		exclusiveLock:  make(map[page.RID]struct{}),
		deletedPageSet: make(map[page.ID]struct{}),
	}
}

// ID returns the transaction id.
func (t *Transaction) ID() TxnID {
	return t.id
}

// IsolationLevel returns the transaction's isolation level.
func (t *Transaction) IsolationLevel() IsolationLevel {
	return t.isolation
}

// State returns the current lifecycle state.
func (t *Transaction) State() TxnState {
	return TxnState(t.state.Load())
}

// SetState transitions the lifecycle state.
func (t *Transaction) SetState(s TxnState) {
	t.state.Store(int32(s))
}

// IsSharedLocked reports whether the transaction holds a shared lock on rid.
func (t *Transaction) IsSharedLocked(rid page.RID) bool {
	t.lockMu.Lock()
	defer t.lockMu.Unlock()
	_, ok := t.sharedLocks[rid]
	return ok
}

// IsExclusiveLocked reports whether the transaction holds an exclusive
// lock on rid.
func (t *Transaction) IsExclusiveLocked(rid page.RID) bool {
	t.lockMu.Lock()
	defer t.lockMu.Unlock()
	_, ok := t.exclusiveLock[rid]
	return ok
}

// addSharedLock records a granted shared lock.
func (t *Transaction) addSharedLock(rid page.RID) {
	t.lockMu.Lock()
	defer t.lockMu.Unlock()
	t.sharedLocks[rid] = struct{}{}
}

// addExclusiveLock records a granted exclusive lock.
func (t *Transaction) addExclusiveLock(rid page.RID) {
	t.lockMu.Lock()
	defer t.lockMu.Unlock()
	t.exclusiveLock[rid] = struct{}{}
}

// removeLock erases rid from both lock sets.
func (t *Transaction) removeLock(rid page.RID) {
	t.lockMu.Lock()
	defer t.lockMu.Unlock()
	delete(t.sharedLocks, rid)
	delete(t.exclusiveLock, rid)
}

// promoteLock moves rid from the shared set to the exclusive set.
func (t *Transaction) promoteLock(rid page.RID) {
	t.lockMu.Lock()
	defer t.lockMu.Unlock()
	delete(t.sharedLocks, rid)
	t.exclusiveLock[rid] = struct{}{}
}

// LockedRIDs returns a snapshot of every rid this transaction holds a
// lock on, in either mode.
func (t *Transaction) LockedRIDs() []page.RID {
	t.lockMu.Lock()
	defer t.lockMu.Unlock()
	rids := make([]page.RID, 0, len(t.sharedLocks)+len(t.exclusiveLock))
	for rid := range t.sharedLocks {
		rids = append(rids, rid)
	}
	for rid := range t.exclusiveLock {
		if _, dup := t.sharedLocks[rid]; !dup {
			rids = append(rids, rid)
		}
	}
	return rids
}

// AddIntoPageSet appends a latched page to the operation's page set.
func (t *Transaction) AddIntoPageSet(p *page.Page) {
	t.pageSet = append(t.pageSet, p)
}

// PageSet returns the latched pages in acquisition order.
func (t *Transaction) PageSet() []*page.Page {
	return t.pageSet
}

// ClearPageSet empties the page set after its latches were released.
func (t *Transaction) ClearPageSet() {
	t.pageSet = t.pageSet[:0]
}

// AddIntoDeletedPageSet schedules a page for deletion at operation end.
func (t *Transaction) AddIntoDeletedPageSet(id page.ID) {
	t.deletedPageSet[id] = struct{}{}
}

// DeletedPageSet returns the pages scheduled for deletion.
func (t *Transaction) DeletedPageSet() map[page.ID]struct{} {
	return t.deletedPageSet
}
