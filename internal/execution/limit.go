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

// LimitExecutor passes through at most Limit tuples after skipping
// Offset of them.
type LimitExecutor struct {
	ctx     *ExecutorContext
	plan    *LimitPlan
	skipped int
	emitted int
}

// NewLimitExecutor builds a limit.
func NewLimitExecutor(ctx *ExecutorContext, plan *LimitPlan) *LimitExecutor {
	return &LimitExecutor{ctx: ctx, plan: plan}
}

// Init implements Executor.
func (e *LimitExecutor) Init() error {
	e.skipped = 0
	e.emitted = 0
	return e.plan.Child.Init()
}

// Next implements Executor.
func (e *LimitExecutor) Next() (table.Tuple, page.RID, bool, error) {
	for {
		if e.emitted >= e.plan.Limit {
			return table.Tuple{}, page.InvalidRID, false, nil
		}
		t, rid, ok, err := e.plan.Child.Next()
		if err != nil || !ok {
			return table.Tuple{}, page.InvalidRID, false, err
		}
		if e.skipped < e.plan.Offset {
			e.skipped++
			continue
		}
		e.emitted++
		return t, rid, true, nil
	}
}
