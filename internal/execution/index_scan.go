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
	"nestdb/internal/storage/index"
	"nestdb/internal/storage/page"
	"nestdb/internal/storage/table"
)

// IndexScanExecutor walks an index in key order and fetches the matching
// rows from the heap. The index iterator releases each leaf before
// stepping to the next, so concurrent writers must be serialized by the
// caller's isolation level.
type IndexScanExecutor struct {
	ctx  *ExecutorContext
	plan *IndexScanPlan
	meta *catalog.TableMetadata
	info *catalog.IndexInfo
	iter *index.Iterator
}

// NewIndexScanExecutor builds an index scan.
func NewIndexScanExecutor(ctx *ExecutorContext, plan *IndexScanPlan) *IndexScanExecutor {
	return &IndexScanExecutor{ctx: ctx, plan: plan}
}

// Init implements Executor.
func (e *IndexScanExecutor) Init() error {
	meta, err := e.ctx.Catalog.GetTable(e.plan.TableName)
	if err != nil {
		return err
	}
	info, err := e.ctx.Catalog.GetIndex(e.plan.IndexName, e.plan.TableName)
	if err != nil {
		return err
	}
	e.meta, e.info = meta, info

	if e.plan.HasBegin {
		e.iter, err = info.Tree.BeginAt(e.plan.Begin)
	} else {
		e.iter, err = info.Tree.Begin()
	}
	return err
}

// Next implements Executor.
func (e *IndexScanExecutor) Next() (table.Tuple, page.RID, bool, error) {
	for e.iter != nil && !e.iter.IsEnd() {
		rid := e.iter.RID()
		e.iter.Next()

		if err := lockRead(e.ctx, rid); err != nil {
			return table.Tuple{}, page.InvalidRID, false, err
		}
		t, err := e.meta.Heap.GetTuple(rid, e.ctx.Txn)
		unlockRead(e.ctx, rid)
		if err != nil {
			continue
		}
		if e.plan.Predicate == nil || isTrue(e.plan.Predicate.Evaluate(&t, e.meta.Schema)) {
			return t, rid, true, nil
		}
	}
	return table.Tuple{}, page.InvalidRID, false, nil
}

// Close releases the index iterator's leaf latch early.
func (e *IndexScanExecutor) Close() {
	if e.iter != nil {
		e.iter.Close()
	}
}
