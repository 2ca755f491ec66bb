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

// DeleteExecutor removes every row its child produces, dropping the
// matching entries from all indexes over the table. It produces no
// output tuples.
type DeleteExecutor struct {
	ctx     *ExecutorContext
	plan    *DeletePlan
	meta    *catalog.TableMetadata
	indexes []*catalog.IndexInfo
	done    bool

	// Deleted counts the rows removed.
	Deleted int
}

// NewDeleteExecutor builds a delete.
func NewDeleteExecutor(ctx *ExecutorContext, plan *DeletePlan) *DeleteExecutor {
	return &DeleteExecutor{ctx: ctx, plan: plan}
}

// Init implements Executor.
func (e *DeleteExecutor) Init() error {
	meta, err := e.ctx.Catalog.GetTable(e.plan.TableName)
	if err != nil {
		return err
	}
	e.meta = meta
	e.indexes = e.ctx.Catalog.GetTableIndexes(e.plan.TableName)
	return e.plan.Child.Init()
}

// Next implements Executor. All rows are deleted on the first call.
func (e *DeleteExecutor) Next() (table.Tuple, page.RID, bool, error) {
	if e.done {
		return table.Tuple{}, page.InvalidRID, false, nil
	}
	e.done = true

	for {
		t, rid, ok, err := e.plan.Child.Next()
		if err != nil {
			return table.Tuple{}, page.InvalidRID, false, err
		}
		if !ok {
			return table.Tuple{}, page.InvalidRID, false, nil
		}
		if err := lockWrite(e.ctx, rid); err != nil {
			return table.Tuple{}, page.InvalidRID, false, err
		}
		if !e.meta.Heap.MarkDelete(rid, e.ctx.Txn) {
			continue
		}
		for _, info := range e.indexes {
			if err := info.Tree.Remove(info.KeyFromTuple(t), e.ctx.Txn); err != nil {
				return table.Tuple{}, page.InvalidRID, false, err
			}
		}
		e.Deleted++
	}
}
