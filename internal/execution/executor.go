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
Package execution implements the pull-based executor tier over the
storage core.

Every executor is a Volcano-style iterator: Init prepares it, Next
produces one output tuple at a time until it reports exhaustion. Plans
compose executors into pipelines; a scan at the bottom feeds filters,
joins, aggregations and data modification nodes above it.

Executors acquire row locks through the lock manager according to the
transaction's isolation level, and surface TransactionAbortError to the
caller, which aborts the transaction through the transaction manager
(its locks are released; writes already applied are not undone).
*/
package execution

import (
	"nestdb/internal/buffer"
	"nestdb/internal/catalog"
	"nestdb/internal/concurrency"
	"nestdb/internal/storage/page"
	"nestdb/internal/storage/table"
)

// ExecutorContext carries everything an executor needs to run.
type ExecutorContext struct {
	Txn     *concurrency.Transaction
	Catalog *catalog.Catalog
	BPM     *buffer.BufferPoolManager
	LockMgr *concurrency.LockManager
	TxnMgr  *concurrency.TransactionManager
}

// NewExecutorContext bundles the engine components for one query.
func NewExecutorContext(txn *concurrency.Transaction, cat *catalog.Catalog,
	bpm *buffer.BufferPoolManager, lockMgr *concurrency.LockManager,
	txnMgr *concurrency.TransactionManager) *ExecutorContext {
	return &ExecutorContext{Txn: txn, Catalog: cat, BPM: bpm, LockMgr: lockMgr, TxnMgr: txnMgr}
}

// Executor is the pull-based iterator every plan node compiles to.
type Executor interface {
	// Init prepares the executor for iteration.
	Init() error

	// Next produces the next tuple. ok is false when the executor is
	// exhausted.
	Next() (tuple table.Tuple, rid page.RID, ok bool, err error)
}

// lockRead takes a shared lock on rid per the isolation level: none at
// READ_UNCOMMITTED, short at READ_COMMITTED (released by unlockRead),
// held to transaction end at REPEATABLE_READ.
func lockRead(ctx *ExecutorContext, rid page.RID) error {
	if ctx.Txn == nil || ctx.LockMgr == nil {
		return nil
	}
	if ctx.Txn.IsolationLevel() == concurrency.ReadUncommitted {
		return nil
	}
	if ctx.Txn.IsSharedLocked(rid) || ctx.Txn.IsExclusiveLocked(rid) {
		return nil
	}
	return ctx.LockMgr.LockShared(ctx.Txn, rid)
}

// unlockRead releases a READ_COMMITTED read lock right after the read.
func unlockRead(ctx *ExecutorContext, rid page.RID) {
	if ctx.Txn == nil || ctx.LockMgr == nil {
		return
	}
	if ctx.Txn.IsolationLevel() == concurrency.ReadCommitted && ctx.Txn.IsSharedLocked(rid) {
		ctx.LockMgr.Unlock(ctx.Txn, rid)
	}
}

// lockWrite takes (or upgrades to) an exclusive lock on rid.
func lockWrite(ctx *ExecutorContext, rid page.RID) error {
	if ctx.Txn == nil || ctx.LockMgr == nil {
		return nil
	}
	if ctx.Txn.IsExclusiveLocked(rid) {
		return nil
	}
	if ctx.Txn.IsSharedLocked(rid) {
		return ctx.LockMgr.LockUpgrade(ctx.Txn, rid)
	}
	return ctx.LockMgr.LockExclusive(ctx.Txn, rid)
}
