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
Package engine assembles the storage and concurrency components into one
embeddable database engine: disk manager, buffer pool, lock manager with
its deadlock detector, transaction manager, and catalog.

Startup order follows the dependency chain bottom-up; shutdown reverses
it, flushing every dirty page before the page file closes.
*/
package engine

import (
	"time"

	"nestdb/internal/buffer"
	"nestdb/internal/catalog"
	"nestdb/internal/concurrency"
	"nestdb/internal/config"
	"nestdb/internal/logging"
	"nestdb/internal/metrics"
	"nestdb/internal/storage/disk"
	"nestdb/internal/storage/page"
)

// Engine owns every component of a running NestDB instance.
type Engine struct {
	cfg     *config.Config
	diskMgr *disk.FileManager
	bpm     *buffer.BufferPoolManager
	lockMgr *concurrency.LockManager
	txnMgr  *concurrency.TransactionManager
	cat     *catalog.Catalog
	log     *logging.Logger
}

// Open boots an engine from the configuration.
func Open(cfg *config.Config) (*Engine, error) {
	logging.SetGlobalLevel(logging.ParseLevel(cfg.LogLevel))
	logging.SetJSONMode(cfg.LogJSON)
	log := logging.NewLogger("engine")

	dm, err := disk.Open(cfg.DBPath, disk.EncryptionConfig{
		Enabled:    cfg.EncryptionEnabled,
		Passphrase: cfg.EncryptionPassphrase,
	})
	if err != nil {
		return nil, err
	}

	poolSize := cfg.BufferPoolSize
	if poolSize <= 0 {
		poolSize = buffer.CalculateOptimalPoolSize()
	}
	bpm := buffer.NewBufferPoolManager(dm, poolSize)

	// Reserve page 0 for index root registrations before anything else
	// allocates.
	if err := ensureHeaderPage(bpm); err != nil {
		dm.Close()
		return nil, err
	}

	lockMgr := concurrency.NewLockManager(time.Duration(cfg.CycleDetectionMs) * time.Millisecond)
	txnMgr := concurrency.NewTransactionManager(lockMgr)
	lockMgr.StartDeadlockDetection()

	e := &Engine{
		cfg:     cfg,
		diskMgr: dm,
		bpm:     bpm,
		lockMgr: lockMgr,
		txnMgr:  txnMgr,
		cat:     catalog.NewCatalog(bpm, lockMgr),
		log:     log,
	}
	log.Info("Engine started", "db_path", cfg.DBPath, "pool_size", poolSize,
		"encrypted", cfg.EncryptionEnabled)
	return e, nil
}

// ensureHeaderPage makes sure page 0 exists, allocating it when it cannot
// be fetched, and leaves it unpinned.
func ensureHeaderPage(bpm *buffer.BufferPoolManager) error {
	if _, err := bpm.FetchPage(page.HeaderPageID); err == nil {
		bpm.UnpinPage(page.HeaderPageID, false)
		return nil
	}
	p, err := bpm.NewPage()
	if err != nil {
		return err
	}
	bpm.UnpinPage(p.ID(), true)
	return nil
}

// Catalog returns the table and index registry.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.cat
}

// BufferPool returns the buffer pool manager.
func (e *Engine) BufferPool() *buffer.BufferPoolManager {
	return e.bpm
}

// LockManager returns the lock manager.
func (e *Engine) LockManager() *concurrency.LockManager {
	return e.lockMgr
}

// TxnManager returns the transaction manager.
func (e *Engine) TxnManager() *concurrency.TransactionManager {
	return e.txnMgr
}

// Begin starts a transaction.
func (e *Engine) Begin(isolation concurrency.IsolationLevel) *concurrency.Transaction {
	return e.txnMgr.Begin(isolation)
}

// Commit commits a transaction, releasing its locks.
func (e *Engine) Commit(txn *concurrency.Transaction) {
	e.txnMgr.Commit(txn)
}

// Abort marks a transaction aborted and releases its locks. Writes it has
// already applied are not undone.
func (e *Engine) Abort(txn *concurrency.Transaction) {
	e.txnMgr.Abort(txn)
}

// Metrics returns a snapshot of the engine counters.
func (e *Engine) Metrics() metrics.Snapshot {
	return metrics.Get().Snapshot()
}

// Close stops the deadlock detector, flushes every dirty page, and closes
// the page file.
func (e *Engine) Close() error {
	e.lockMgr.StopDeadlockDetection()
	e.bpm.FlushAllPages()
	err := e.diskMgr.Close()
	if err == nil {
		e.log.Info("Engine stopped")
	}
	return err
}
