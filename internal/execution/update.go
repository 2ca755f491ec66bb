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

// UpdateExecutor rewrites every row its child produces, keeping all
// indexes over the table in sync: the old key is removed and the new key
// inserted.
type UpdateExecutor struct {
	ctx     *ExecutorContext
	plan    *UpdatePlan
	meta    *catalog.TableMetadata
	indexes []*catalog.IndexInfo

	// Updated counts the rows rewritten.
	Updated int
}

// NewUpdateExecutor builds an update.
func NewUpdateExecutor(ctx *ExecutorContext, plan *UpdatePlan) *UpdateExecutor {
	return &UpdateExecutor{ctx: ctx, plan: plan}
}

// Init implements Executor.
func (e *UpdateExecutor) Init() error {
	meta, err := e.ctx.Catalog.GetTable(e.plan.TableName)
	if err != nil {
		return err
	}
	e.meta = meta
	e.indexes = e.ctx.Catalog.GetTableIndexes(e.plan.TableName)
	return e.plan.Child.Init()
}

// generateUpdatedTuple applies the SET expressions to the old row.
func (e *UpdateExecutor) generateUpdatedTuple(old table.Tuple) table.Tuple {
	values := make([]table.Value, len(old.Values))
	copy(values, old.Values)
	for col, expr := range e.plan.SetColumns {
		values[col] = expr.Evaluate(&old, e.meta.Schema)
	}
	return table.Tuple{RID: old.RID, Values: values}
}

// Next implements Executor: it pulls one row from the child, rewrites it,
// and passes the updated row through.
func (e *UpdateExecutor) Next() (table.Tuple, page.RID, bool, error) {
	old, rid, ok, err := e.plan.Child.Next()
	if err != nil || !ok {
		return table.Tuple{}, page.InvalidRID, false, err
	}

	if err := lockWrite(e.ctx, rid); err != nil {
		return table.Tuple{}, page.InvalidRID, false, err
	}

	updated := e.generateUpdatedTuple(old)
	fit, err := e.meta.Heap.UpdateTuple(updated, rid, e.ctx.Txn)
	if err != nil {
		return table.Tuple{}, page.InvalidRID, false, err
	}
	newRID := rid
	if !fit {
		// The grown row does not fit its slot: move it.
		e.meta.Heap.MarkDelete(rid, e.ctx.Txn)
		newRID, err = e.meta.Heap.InsertTuple(updated, e.ctx.Txn)
		if err != nil {
			return table.Tuple{}, page.InvalidRID, false, err
		}
		if err := lockWrite(e.ctx, newRID); err != nil {
			return table.Tuple{}, page.InvalidRID, false, err
		}
		updated.RID = newRID
	}

	for _, info := range e.indexes {
		if err := info.Tree.Remove(info.KeyFromTuple(old), e.ctx.Txn); err != nil {
			return table.Tuple{}, page.InvalidRID, false, err
		}
		if _, err := info.Tree.Insert(info.KeyFromTuple(updated), newRID, e.ctx.Txn); err != nil {
			return table.Tuple{}, page.InvalidRID, false, err
		}
	}
	e.Updated++
	return updated, newRID, true, nil
}
