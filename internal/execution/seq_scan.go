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

package execution

import (
	"nestdb/internal/catalog"
	"nestdb/internal/storage/page"
	"nestdb/internal/storage/table"
)

// SeqScanExecutor walks the table heap in chain order, locking each row
// for read per the isolation level and filtering by the plan predicate.
type SeqScanExecutor struct {
	ctx  *ExecutorContext
	plan *SeqScanPlan
	meta *catalog.TableMetadata
	iter *table.Iterator
}

// NewSeqScanExecutor builds a sequential scan.
func NewSeqScanExecutor(ctx *ExecutorContext, plan *SeqScanPlan) *SeqScanExecutor {
	return &SeqScanExecutor{ctx: ctx, plan: plan}
}

// Init implements Executor.
func (e *SeqScanExecutor) Init() error {
	meta, err := e.ctx.Catalog.GetTable(e.plan.TableName)
	if err != nil {
		return err
	}
	e.meta = meta
	e.iter = meta.Heap.Begin(e.ctx.Txn)
	return nil
}

// Next implements Executor.
func (e *SeqScanExecutor) Next() (table.Tuple, page.RID, bool, error) {
	for !e.iter.IsEnd() {
		rid := e.iter.RID()
		if err := lockRead(e.ctx, rid); err != nil {
			return table.Tuple{}, page.InvalidRID, false, err
		}
		t, err := e.iter.Tuple(e.ctx.Txn)
		unlockRead(e.ctx, rid)
		e.iter.Next()
		if err != nil {
			// The row vanished between the seek and the read; skip it.
			continue
		}
		if e.plan.Predicate == nil || isTrue(e.plan.Predicate.Evaluate(&t, e.meta.Schema)) {
			return t, rid, true, nil
		}
	}
	return table.Tuple{}, page.InvalidRID, false, nil
}
