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

// NestedIndexJoinExecutor joins the child against an inner table by
// probing the inner table's index with each outer row's join key, so the
// inner side costs one point lookup per outer row instead of a scan.
type NestedIndexJoinExecutor struct {
	ctx  *ExecutorContext
	plan *NestedIndexJoinPlan

	innerMeta *catalog.TableMetadata
	innerIdx  *catalog.IndexInfo

	left    table.Tuple
	pending []page.RID
}

// NewNestedIndexJoinExecutor builds a nested-index join.
func NewNestedIndexJoinExecutor(ctx *ExecutorContext, plan *NestedIndexJoinPlan) *NestedIndexJoinExecutor {
	return &NestedIndexJoinExecutor{ctx: ctx, plan: plan}
}

// Init implements Executor.
func (e *NestedIndexJoinExecutor) Init() error {
	meta, err := e.ctx.Catalog.GetTable(e.plan.InnerTable)
	if err != nil {
		return err
	}
	info, err := e.ctx.Catalog.GetIndex(e.plan.IndexName, e.plan.InnerTable)
	if err != nil {
		return err
	}
	e.innerMeta, e.innerIdx = meta, info
	e.pending = nil
	return e.plan.Child.Init()
}

// probeKey builds the index key from the outer row's join column.
func (e *NestedIndexJoinExecutor) probeKey(t *table.Tuple) index.Key {
	v := t.Values[e.plan.OuterKeyColumn]
	if v.Type == table.TypeInt64 {
		return index.Int64Key(v.Int)
	}
	return index.StringKey(v.Str)
}

// Next implements Executor.
func (e *NestedIndexJoinExecutor) Next() (table.Tuple, page.RID, bool, error) {
	for {
		if n := len(e.pending); n > 0 {
			rid := e.pending[n-1]
			e.pending = e.pending[:n-1]

			if err := lockRead(e.ctx, rid); err != nil {
				return table.Tuple{}, page.InvalidRID, false, err
			}
			right, err := e.innerMeta.Heap.GetTuple(rid, e.ctx.Txn)
			unlockRead(e.ctx, rid)
			if err != nil {
				continue
			}
			return joinTuple(e.left, right), page.InvalidRID, true, nil
		}

		left, _, ok, err := e.plan.Child.Next()
		if err != nil || !ok {
			return table.Tuple{}, page.InvalidRID, false, err
		}
		e.left = left
		e.pending, err = e.innerIdx.Tree.GetValue(e.probeKey(&left), e.ctx.Txn)
		if err != nil {
			return table.Tuple{}, page.InvalidRID, false, err
		}
	}
}
