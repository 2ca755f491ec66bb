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
	"nestdb/internal/storage/page"
	"nestdb/internal/storage/table"
)

// NestedLoopJoinExecutor joins two inputs by re-initializing the right
// child for every left row. Output rows are the left columns followed by
// the right columns.
type NestedLoopJoinExecutor struct {
	ctx  *ExecutorContext
	plan *NestedLoopJoinPlan

	left     table.Tuple
	haveLeft bool
}

// NewNestedLoopJoinExecutor builds a nested-loop join.
func NewNestedLoopJoinExecutor(ctx *ExecutorContext, plan *NestedLoopJoinPlan) *NestedLoopJoinExecutor {
	return &NestedLoopJoinExecutor{ctx: ctx, plan: plan}
}

// Init implements Executor.
func (e *NestedLoopJoinExecutor) Init() error {
	e.haveLeft = false
	return e.plan.Left.Init()
}

// joinTuple concatenates the two sides.
func joinTuple(left, right table.Tuple) table.Tuple {
	values := make([]table.Value, 0, len(left.Values)+len(right.Values))
	values = append(values, left.Values...)
	values = append(values, right.Values...)
	return table.Tuple{RID: page.InvalidRID, Values: values}
}

// Next implements Executor.
func (e *NestedLoopJoinExecutor) Next() (table.Tuple, page.RID, bool, error) {
	for {
		if !e.haveLeft {
			left, _, ok, err := e.plan.Left.Next()
			if err != nil || !ok {
				return table.Tuple{}, page.InvalidRID, false, err
			}
			e.left = left
			e.haveLeft = true
			if err := e.plan.Right.Init(); err != nil {
				return table.Tuple{}, page.InvalidRID, false, err
			}
		}

		right, _, ok, err := e.plan.Right.Next()
		if err != nil {
			return table.Tuple{}, page.InvalidRID, false, err
		}
		if !ok {
			// Right side exhausted for this left row; advance the outer.
			e.haveLeft = false
			continue
		}
		if e.plan.Predicate == nil ||
			isTrue(e.plan.Predicate.EvaluateJoin(&e.left, e.plan.LeftSchema, &right, e.plan.RightSchema)) {
			return joinTuple(e.left, right), page.InvalidRID, true, nil
		}
	}
}
