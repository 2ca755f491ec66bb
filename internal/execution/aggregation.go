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
	"strings"

	"nestdb/internal/storage/page"
	"nestdb/internal/storage/table"
)

// aggregateKey is the map key for one group-by combination.
type aggregateKey string

// aggregateEntry accumulates one group's state.
type aggregateEntry struct {
	groupBys   []table.Value
	aggregates []table.Value
	seen       []bool // per aggregate: whether any input reached it yet
}

// AggregationExecutor hash-aggregates its child's output. The build phase
// runs entirely in Init; Next then streams the groups that pass HAVING.
// Output rows carry the group-by values followed by the aggregates.
type AggregationExecutor struct {
	ctx  *ExecutorContext
	plan *AggregationPlan

	groups map[aggregateKey]*aggregateEntry
	order  []aggregateKey // insertion order for deterministic output
	pos    int
}

// NewAggregationExecutor builds a hash aggregation.
func NewAggregationExecutor(ctx *ExecutorContext, plan *AggregationPlan) *AggregationExecutor {
	return &AggregationExecutor{ctx: ctx, plan: plan}
}

// makeKey evaluates the group-by expressions for one input row.
func (e *AggregationExecutor) makeKey(t *table.Tuple) ([]table.Value, aggregateKey) {
	values := make([]table.Value, len(e.plan.GroupBys))
	var sb strings.Builder
	for i, expr := range e.plan.GroupBys {
		values[i] = expr.Evaluate(t, e.plan.ChildSchema)
		sb.WriteString(values[i].String())
		sb.WriteByte(0)
	}
	return values, aggregateKey(sb.String())
}

// initialAggregates seeds one group's accumulators.
func (e *AggregationExecutor) initialAggregates() ([]table.Value, []bool) {
	aggs := make([]table.Value, len(e.plan.AggTypes))
	seen := make([]bool, len(e.plan.AggTypes))
	for i, at := range e.plan.AggTypes {
		if at == CountAggregate {
			aggs[i] = table.IntValue(0)
		}
	}
	return aggs, seen
}

// combine folds one input row into a group's accumulators.
func (e *AggregationExecutor) combine(entry *aggregateEntry, t *table.Tuple) {
	for i, at := range e.plan.AggTypes {
		input := e.plan.Aggregates[i].Evaluate(t, e.plan.ChildSchema)
		switch at {
		case CountAggregate:
			entry.aggregates[i].Int++
		case SumAggregate:
			if !entry.seen[i] {
				entry.aggregates[i] = input
			} else {
				entry.aggregates[i].Int += input.Int
			}
		case MinAggregate:
			if !entry.seen[i] || input.Compare(entry.aggregates[i]) < 0 {
				entry.aggregates[i] = input
			}
		case MaxAggregate:
			if !entry.seen[i] || input.Compare(entry.aggregates[i]) > 0 {
				entry.aggregates[i] = input
			}
		}
		entry.seen[i] = true
	}
}

// Init implements Executor: it drains the child and builds the hash table.
func (e *AggregationExecutor) Init() error {
	if err := e.plan.Child.Init(); err != nil {
		return err
	}
	e.groups = make(map[aggregateKey]*aggregateEntry)
	e.order = e.order[:0]
	e.pos = 0

	for {
		t, _, ok, err := e.plan.Child.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		groupBys, key := e.makeKey(&t)
		entry, ok := e.groups[key]
		if !ok {
			aggs, seen := e.initialAggregates()
			entry = &aggregateEntry{groupBys: groupBys, aggregates: aggs, seen: seen}
			e.groups[key] = entry
			e.order = append(e.order, key)
		}
		e.combine(entry, &t)
	}
	return nil
}

// Next implements Executor: it emits one surviving group per call.
func (e *AggregationExecutor) Next() (table.Tuple, page.RID, bool, error) {
	for e.pos < len(e.order) {
		entry := e.groups[e.order[e.pos]]
		e.pos++

		if e.plan.Having != nil &&
			!isTrue(e.plan.Having.EvaluateAggregate(entry.groupBys, entry.aggregates)) {
			continue
		}
		values := make([]table.Value, 0, len(entry.groupBys)+len(entry.aggregates))
		values = append(values, entry.groupBys...)
		values = append(values, entry.aggregates...)
		return table.Tuple{RID: page.InvalidRID, Values: values}, page.InvalidRID, true, nil
	}
	return table.Tuple{}, page.InvalidRID, false, nil
}
