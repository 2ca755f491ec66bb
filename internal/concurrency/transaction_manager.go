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

package concurrency

import (
	"sync"
	"sync/atomic"

	"nestdb/internal/logging"
	"nestdb/internal/metrics"
)

// TransactionManager mints transactions and drives their lifecycle. The
// registry it keeps is also what the deadlock detector uses to resolve
// transaction ids back to transactions.
type TransactionManager struct {
	mu      sync.RWMutex
	txns    map[TxnID]*Transaction
	nextID  atomic.Int64
	lockMgr *LockManager

	log   *logging.Logger
	stats *metrics.Metrics
}

// NewTransactionManager creates the manager and wires it into the lock
// manager's deadlock detector.
func NewTransactionManager(lockMgr *LockManager) *TransactionManager {
	tm := &TransactionManager{
		txns:    make(map[TxnID]*Transaction),
		lockMgr: lockMgr,
		log:     logging.NewLogger("txn"),
		stats:   metrics.Get(),
	}
	lockMgr.txnMgr = tm
	return tm
}

// Begin starts a new transaction at the given isolation level.
func (tm *TransactionManager) Begin(isolation IsolationLevel) *Transaction {
	id := TxnID(tm.nextID.Add(1) - 1)
	txn := NewTransaction(id, isolation)

	tm.mu.Lock()
	tm.txns[id] = txn
	tm.mu.Unlock()

	tm.stats.TxnsBegun.Add(1)
	tm.log.Debug("Transaction begun", "txn_id", id, "isolation", isolation)
	return txn
}

// GetTransaction resolves a transaction id, or nil when unknown.
func (tm *TransactionManager) GetTransaction(id TxnID) *Transaction {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.txns[id]
}

// Commit releases every lock the transaction holds and marks it
// committed.
func (tm *TransactionManager) Commit(txn *Transaction) {
	tm.releaseAllLocks(txn)
	txn.SetState(Committed)
	tm.stats.TxnsCommitted.Add(1)
	tm.log.Debug("Transaction committed", "txn_id", txn.ID())
}

// Abort marks the transaction aborted and releases every lock it holds.
// The caller is responsible for undoing its writes before aborting.
func (tm *TransactionManager) Abort(txn *Transaction) {
	txn.SetState(Aborted)
	tm.releaseAllLocks(txn)
	tm.stats.TxnsAborted.Add(1)
	tm.log.Debug("Transaction aborted", "txn_id", txn.ID())
}

// releaseAllLocks unlocks every rid in the transaction's lock sets.
func (tm *TransactionManager) releaseAllLocks(txn *Transaction) {
	for _, rid := range txn.LockedRIDs() {
		tm.lockMgr.Unlock(txn, rid)
	}
}
