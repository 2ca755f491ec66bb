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

// InsertExecutor inserts rows into a table and maintains every index
// built over it. Rows come either embedded in the plan (raw insert) or
// from a child executor. Insert produces no output tuples; Next reports
// exhaustion after all rows are in.
type InsertExecutor struct {
	ctx     *ExecutorContext
	plan    *InsertPlan
	meta    *catalog.TableMetadata
	indexes []*catalog.IndexInfo
	done    bool

	// Inserted counts the rows written, for the caller's status line.
	Inserted int
}

// NewInsertExecutor builds an insert.
func NewInsertExecutor(ctx *ExecutorContext, plan *InsertPlan) *InsertExecutor {
	return &InsertExecutor{ctx: ctx, plan: plan}
}

// Init implements Executor.
func (e *InsertExecutor) Init() error {
	meta, err := e.ctx.Catalog.GetTable(e.plan.TableName)
	if err != nil {
		return err
	}
	e.meta = meta
	e.indexes = e.ctx.Catalog.GetTableIndexes(e.plan.TableName)
	if e.plan.Child != nil {
		return e.plan.Child.Init()
	}
	return nil
}

// insertOne writes a single row and its index entries.
func (e *InsertExecutor) insertOne(t table.Tuple) error {
	rid, err := e.meta.Heap.InsertTuple(t, e.ctx.Txn)
	if err != nil {
		return err
	}
	if err := lockWrite(e.ctx, rid); err != nil {
		return err
	}
	t.RID = rid
	for _, info := range e.indexes {
		if _, err := info.Tree.Insert(info.KeyFromTuple(t), rid, e.ctx.Txn); err != nil {
			return err
		}
	}
	e.Inserted++
	return nil
}

// Next implements Executor. All rows are inserted on the first call.
func (e *InsertExecutor) Next() (table.Tuple, page.RID, bool, error) {
	if e.done {
		return table.Tuple{}, page.InvalidRID, false, nil
	}
	e.done = true

	if e.plan.Child == nil {
		for _, t := range e.plan.RawValues {
			if err := e.insertOne(t); err != nil {
				return table.Tuple{}, page.InvalidRID, false, err
			}
		}
		return table.Tuple{}, page.InvalidRID, false, nil
	}

	for {
		t, _, ok, err := e.plan.Child.Next()
		if err != nil {
			return table.Tuple{}, page.InvalidRID, false, err
		}
		if !ok {
			return table.Tuple{}, page.InvalidRID, false, nil
		}
		if err := e.insertOne(t); err != nil {
			return table.Tuple{}, page.InvalidRID, false, err
		}
	}
}
