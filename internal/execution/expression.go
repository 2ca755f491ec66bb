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
	"nestdb/internal/storage/table"
)

// Expression is evaluated against tuples to produce a value. Join
// evaluation sees both sides; aggregate evaluation sees the group-by
// values and the accumulated aggregates instead of a tuple.
type Expression interface {
	Evaluate(t *table.Tuple, schema *table.Schema) table.Value
	EvaluateJoin(left *table.Tuple, leftSchema *table.Schema, right *table.Tuple, rightSchema *table.Schema) table.Value
	EvaluateAggregate(groupBys []table.Value, aggregates []table.Value) table.Value
}

// ColumnExpression reads one column of the input tuple. TupleSide selects
// the left (0) or right (1) input during join evaluation.
type ColumnExpression struct {
	TupleSide int
	ColIdx    int
}

// Column builds a column reference on the single input.
func Column(colIdx int) *ColumnExpression {
	return &ColumnExpression{ColIdx: colIdx}
}

// JoinColumn builds a column reference on one side of a join.
func JoinColumn(side, colIdx int) *ColumnExpression {
	return &ColumnExpression{TupleSide: side, ColIdx: colIdx}
}

// Evaluate implements Expression.
func (e *ColumnExpression) Evaluate(t *table.Tuple, _ *table.Schema) table.Value {
	return t.Values[e.ColIdx]
}

// EvaluateJoin implements Expression.
func (e *ColumnExpression) EvaluateJoin(left *table.Tuple, _ *table.Schema, right *table.Tuple, _ *table.Schema) table.Value {
	if e.TupleSide == 0 {
		return left.Values[e.ColIdx]
	}
	return right.Values[e.ColIdx]
}

// EvaluateAggregate implements Expression; a column in aggregate context
// refers to a group-by value.
func (e *ColumnExpression) EvaluateAggregate(groupBys []table.Value, _ []table.Value) table.Value {
	return groupBys[e.ColIdx]
}

// ConstantExpression yields a fixed value.
type ConstantExpression struct {
	Value table.Value
}

// Constant builds a constant expression.
func Constant(v table.Value) *ConstantExpression {
	return &ConstantExpression{Value: v}
}

// Evaluate implements Expression.
func (e *ConstantExpression) Evaluate(*table.Tuple, *table.Schema) table.Value {
	return e.Value
}

// EvaluateJoin implements Expression.
func (e *ConstantExpression) EvaluateJoin(*table.Tuple, *table.Schema, *table.Tuple, *table.Schema) table.Value {
	return e.Value
}

// EvaluateAggregate implements Expression.
func (e *ConstantExpression) EvaluateAggregate([]table.Value, []table.Value) table.Value {
	return e.Value
}

// CompareOp enumerates comparison operators.
type CompareOp int

const (
	CmpEq CompareOp = iota
	CmpNe
	CmpLt
	CmpLe
	CmpGt
	CmpGe
)

// boolValue encodes a boolean as an integer cell, the convention every
// predicate uses.
func boolValue(b bool) table.Value {
	if b {
		return table.IntValue(1)
	}
	return table.IntValue(0)
}

// isTrue decodes a predicate result.
func isTrue(v table.Value) bool {
	return v.Type == table.TypeInt64 && v.Int != 0
}

// ComparisonExpression compares its two children.
type ComparisonExpression struct {
	Op          CompareOp
	Left, Right Expression
}

// Compare builds a comparison predicate.
func Compare(op CompareOp, left, right Expression) *ComparisonExpression {
	return &ComparisonExpression{Op: op, Left: left, Right: right}
}

func (e *ComparisonExpression) compare(l, r table.Value) table.Value {
	c := l.Compare(r)
	switch e.Op {
	case CmpEq:
		return boolValue(c == 0)
	case CmpNe:
		return boolValue(c != 0)
	case CmpLt:
		return boolValue(c < 0)
	case CmpLe:
		return boolValue(c <= 0)
	case CmpGt:
		return boolValue(c > 0)
	default:
		return boolValue(c >= 0)
	}
}

// Evaluate implements Expression.
func (e *ComparisonExpression) Evaluate(t *table.Tuple, s *table.Schema) table.Value {
	return e.compare(e.Left.Evaluate(t, s), e.Right.Evaluate(t, s))
}

// EvaluateJoin implements Expression.
func (e *ComparisonExpression) EvaluateJoin(l *table.Tuple, ls *table.Schema, r *table.Tuple, rs *table.Schema) table.Value {
	return e.compare(e.Left.EvaluateJoin(l, ls, r, rs), e.Right.EvaluateJoin(l, ls, r, rs))
}

// EvaluateAggregate implements Expression.
func (e *ComparisonExpression) EvaluateAggregate(g []table.Value, a []table.Value) table.Value {
	return e.compare(e.Left.EvaluateAggregate(g, a), e.Right.EvaluateAggregate(g, a))
}

// LogicOp enumerates boolean connectives.
type LogicOp int

const (
	LogicAnd LogicOp = iota
	LogicOr
)

// LogicExpression combines two predicates.
type LogicExpression struct {
	Op          LogicOp
	Left, Right Expression
}

// And builds a conjunction.
func And(left, right Expression) *LogicExpression {
	return &LogicExpression{Op: LogicAnd, Left: left, Right: right}
}

// Or builds a disjunction.
func Or(left, right Expression) *LogicExpression {
	return &LogicExpression{Op: LogicOr, Left: left, Right: right}
}

func (e *LogicExpression) combine(l, r table.Value) table.Value {
	if e.Op == LogicAnd {
		return boolValue(isTrue(l) && isTrue(r))
	}
	return boolValue(isTrue(l) || isTrue(r))
}

// Evaluate implements Expression.
func (e *LogicExpression) Evaluate(t *table.Tuple, s *table.Schema) table.Value {
	return e.combine(e.Left.Evaluate(t, s), e.Right.Evaluate(t, s))
}

// EvaluateJoin implements Expression.
func (e *LogicExpression) EvaluateJoin(l *table.Tuple, ls *table.Schema, r *table.Tuple, rs *table.Schema) table.Value {
	return e.combine(e.Left.EvaluateJoin(l, ls, r, rs), e.Right.EvaluateJoin(l, ls, r, rs))
}

// EvaluateAggregate implements Expression.
func (e *LogicExpression) EvaluateAggregate(g []table.Value, a []table.Value) table.Value {
	return e.combine(e.Left.EvaluateAggregate(g, a), e.Right.EvaluateAggregate(g, a))
}

// AggregateRef reads the i-th accumulated aggregate in a HAVING clause or
// aggregation output column.
type AggregateRef struct {
	AggIdx int
}

// Aggregate builds a reference to an accumulated aggregate.
func Aggregate(i int) *AggregateRef {
	return &AggregateRef{AggIdx: i}
}

// Evaluate implements Expression; meaningless outside aggregate context.
func (e *AggregateRef) Evaluate(*table.Tuple, *table.Schema) table.Value {
	return table.IntValue(0)
}

// EvaluateJoin implements Expression; meaningless outside aggregate context.
func (e *AggregateRef) EvaluateJoin(*table.Tuple, *table.Schema, *table.Tuple, *table.Schema) table.Value {
	return table.IntValue(0)
}

// EvaluateAggregate implements Expression.
func (e *AggregateRef) EvaluateAggregate(_ []table.Value, aggregates []table.Value) table.Value {
	return aggregates[e.AggIdx]
}
