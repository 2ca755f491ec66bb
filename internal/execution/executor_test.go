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
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestdb/internal/buffer"
	"nestdb/internal/catalog"
	"nestdb/internal/concurrency"
	"nestdb/internal/storage/disk"
	"nestdb/internal/storage/index"
	"nestdb/internal/storage/table"
)

type fixture struct {
	cat     *catalog.Catalog
	bpm     *buffer.BufferPoolManager
	lockMgr *concurrency.LockManager
	txnMgr  *concurrency.TransactionManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	bpm := buffer.NewBufferPoolManager(disk.NewMemoryManager(), 256)
	// Reserve page 0 for index root registrations before tables allocate.
	hp, err := bpm.NewPage()
	require.NoError(t, err)
	bpm.UnpinPage(hp.ID(), true)
	lm := concurrency.NewLockManager(0)
	tm := concurrency.NewTransactionManager(lm)
	return &fixture{
		cat:     catalog.NewCatalog(bpm, lm),
		bpm:     bpm,
		lockMgr: lm,
		txnMgr:  tm,
	}
}

func (f *fixture) ctx(txn *concurrency.Transaction) *ExecutorContext {
	return NewExecutorContext(txn, f.cat, f.bpm, f.lockMgr, f.txnMgr)
}

// seedUsers creates a users(id, name) table with a standard data set.
func (f *fixture) seedUsers(t *testing.T) *catalog.TableMetadata {
	t.Helper()
	schema := table.NewSchema(
		table.Column{Name: "id", Type: table.TypeInt64},
		table.Column{Name: "name", Type: table.TypeString},
	)
	meta, err := f.cat.CreateTable("users", schema, nil)
	require.NoError(t, err)
	rows := []table.Tuple{
		table.NewTuple(table.IntValue(1), table.StringValue("ada")),
		table.NewTuple(table.IntValue(2), table.StringValue("bob")),
		table.NewTuple(table.IntValue(3), table.StringValue("ada")),
		table.NewTuple(table.IntValue(4), table.StringValue("cyn")),
		table.NewTuple(table.IntValue(5), table.StringValue("bob")),
	}
	for _, r := range rows {
		_, err := meta.Heap.InsertTuple(r, nil)
		require.NoError(t, err)
	}
	return meta
}

// drain runs an executor to exhaustion, collecting its tuples.
func drain(t *testing.T, e Executor) []table.Tuple {
	t.Helper()
	require.NoError(t, e.Init())
	var out []table.Tuple
	for {
		tp, _, ok, err := e.Next()
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, tp)
	}
}

func ids(rows []table.Tuple) []int64 {
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = r.Values[0].Int
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestSeqScanWithPredicate(t *testing.T) {
	f := newFixture(t)
	f.seedUsers(t)
	txn := f.txnMgr.Begin(concurrency.RepeatableRead)

	scan := NewSeqScanExecutor(f.ctx(txn), &SeqScanPlan{
		TableName: "users",
		Predicate: Compare(CmpEq, Column(1), Constant(table.StringValue("bob"))),
	})
	rows := drain(t, scan)
	assert.Equal(t, []int64{2, 5}, ids(rows))

	// Repeatable read keeps the shared locks until commit.
	assert.NotEmpty(t, txn.LockedRIDs())
	f.txnMgr.Commit(txn)
	assert.Empty(t, txn.LockedRIDs())
}

func TestSeqScanReadCommittedReleasesLocks(t *testing.T) {
	f := newFixture(t)
	f.seedUsers(t)
	txn := f.txnMgr.Begin(concurrency.ReadCommitted)

	scan := NewSeqScanExecutor(f.ctx(txn), &SeqScanPlan{TableName: "users"})
	rows := drain(t, scan)
	assert.Len(t, rows, 5)
	assert.Empty(t, txn.LockedRIDs(), "read committed drops read locks eagerly")
	f.txnMgr.Commit(txn)
}

func TestInsertMaintainsIndexes(t *testing.T) {
	f := newFixture(t)
	f.seedUsers(t)
	_, err := f.cat.CreateIndex("users_pk", "users", 0, index.Int64Comparator{}, 4, 4, nil)
	require.NoError(t, err)

	txn := f.txnMgr.Begin(concurrency.RepeatableRead)
	ins := NewInsertExecutor(f.ctx(txn), &InsertPlan{
		TableName: "users",
		RawValues: []table.Tuple{
			table.NewTuple(table.IntValue(6), table.StringValue("dee")),
			table.NewTuple(table.IntValue(7), table.StringValue("eve")),
		},
	})
	drain(t, ins)
	assert.Equal(t, 2, ins.Inserted)
	f.txnMgr.Commit(txn)

	info, err := f.cat.GetIndex("users_pk", "users")
	require.NoError(t, err)
	for _, k := range []int64{6, 7} {
		vals, err := info.Tree.GetValue(index.Int64Key(k), nil)
		require.NoError(t, err)
		require.Len(t, vals, 1, "key %d not indexed", k)

		// The index entry points at the heap row.
		meta, err := f.cat.GetTable("users")
		require.NoError(t, err)
		row, err := meta.Heap.GetTuple(vals[0], nil)
		require.NoError(t, err)
		assert.Equal(t, k, row.Values[0].Int)
	}
}

func TestIndexScanOrdersByKey(t *testing.T) {
	f := newFixture(t)
	f.seedUsers(t)
	_, err := f.cat.CreateIndex("users_pk", "users", 0, index.Int64Comparator{}, 4, 4, nil)
	require.NoError(t, err)

	txn := f.txnMgr.Begin(concurrency.RepeatableRead)
	scan := NewIndexScanExecutor(f.ctx(txn), &IndexScanPlan{
		TableName: "users",
		IndexName: "users_pk",
		Begin:     index.Int64Key(3),
		HasBegin:  true,
	})
	rows := drain(t, scan)
	got := make([]int64, len(rows))
	for i, r := range rows {
		got[i] = r.Values[0].Int
	}
	assert.Equal(t, []int64{3, 4, 5}, got, "index scan must be ordered and bounded")
	f.txnMgr.Commit(txn)
}

func TestUpdateRewritesRowsAndIndexes(t *testing.T) {
	f := newFixture(t)
	f.seedUsers(t)
	_, err := f.cat.CreateIndex("users_pk", "users", 0, index.Int64Comparator{}, 4, 4, nil)
	require.NoError(t, err)

	txn := f.txnMgr.Begin(concurrency.RepeatableRead)
	ctx := f.ctx(txn)
	scan := NewSeqScanExecutor(ctx, &SeqScanPlan{
		TableName: "users",
		Predicate: Compare(CmpEq, Column(0), Constant(table.IntValue(2))),
	})
	upd := NewUpdateExecutor(ctx, &UpdatePlan{
		TableName:  "users",
		SetColumns: map[int]Expression{0: Constant(table.IntValue(20))},
		Child:      scan,
	})
	drain(t, upd)
	assert.Equal(t, 1, upd.Updated)
	f.txnMgr.Commit(txn)

	info, err := f.cat.GetIndex("users_pk", "users")
	require.NoError(t, err)
	vals, err := info.Tree.GetValue(index.Int64Key(2), nil)
	require.NoError(t, err)
	assert.Empty(t, vals, "old key must be gone from the index")
	vals, err = info.Tree.GetValue(index.Int64Key(20), nil)
	require.NoError(t, err)
	assert.Len(t, vals, 1, "new key must be indexed")
}

func TestDeleteRemovesRowsAndIndexEntries(t *testing.T) {
	f := newFixture(t)
	f.seedUsers(t)
	_, err := f.cat.CreateIndex("users_pk", "users", 0, index.Int64Comparator{}, 4, 4, nil)
	require.NoError(t, err)

	txn := f.txnMgr.Begin(concurrency.RepeatableRead)
	ctx := f.ctx(txn)
	scan := NewSeqScanExecutor(ctx, &SeqScanPlan{
		TableName: "users",
		Predicate: Compare(CmpEq, Column(1), Constant(table.StringValue("ada"))),
	})
	del := NewDeleteExecutor(ctx, &DeletePlan{TableName: "users", Child: scan})
	drain(t, del)
	assert.Equal(t, 2, del.Deleted)
	f.txnMgr.Commit(txn)

	// Only the non-ada rows remain.
	txn2 := f.txnMgr.Begin(concurrency.RepeatableRead)
	rows := drain(t, NewSeqScanExecutor(f.ctx(txn2), &SeqScanPlan{TableName: "users"}))
	assert.Equal(t, []int64{2, 4, 5}, ids(rows))
	f.txnMgr.Commit(txn2)

	info, err := f.cat.GetIndex("users_pk", "users")
	require.NoError(t, err)
	for _, k := range []int64{1, 3} {
		vals, err := info.Tree.GetValue(index.Int64Key(k), nil)
		require.NoError(t, err)
		assert.Empty(t, vals, "deleted key %d still indexed", k)
	}
}

func TestLimitAndOffset(t *testing.T) {
	f := newFixture(t)
	f.seedUsers(t)
	txn := f.txnMgr.Begin(concurrency.RepeatableRead)
	ctx := f.ctx(txn)

	scan := NewSeqScanExecutor(ctx, &SeqScanPlan{TableName: "users"})
	limit := NewLimitExecutor(ctx, &LimitPlan{Limit: 2, Offset: 1, Child: scan})
	rows := drain(t, limit)
	assert.Len(t, rows, 2)
	f.txnMgr.Commit(txn)
}

func TestAggregationGroupByHaving(t *testing.T) {
	f := newFixture(t)
	meta := f.seedUsers(t)
	txn := f.txnMgr.Begin(concurrency.RepeatableRead)
	ctx := f.ctx(txn)

	scan := NewSeqScanExecutor(ctx, &SeqScanPlan{TableName: "users"})
	agg := NewAggregationExecutor(ctx, &AggregationPlan{
		GroupBys:    []Expression{Column(1)},
		Aggregates:  []Expression{Column(0), Column(0), Column(0), Column(0)},
		AggTypes:    []AggregationType{CountAggregate, SumAggregate, MinAggregate, MaxAggregate},
		Having:      Compare(CmpGe, Aggregate(0), Constant(table.IntValue(2))),
		Child:       scan,
		ChildSchema: meta.Schema,
	})
	rows := drain(t, agg)

	// Groups: ada{1,3} bob{2,5} cyn{4}; HAVING count >= 2 keeps ada, bob.
	require.Len(t, rows, 2)
	byName := make(map[string][]int64)
	for _, r := range rows {
		byName[r.Values[0].Str] = []int64{
			r.Values[1].Int, r.Values[2].Int, r.Values[3].Int, r.Values[4].Int,
		}
	}
	assert.Equal(t, []int64{2, 4, 1, 3}, byName["ada"], "count/sum/min/max for ada")
	assert.Equal(t, []int64{2, 7, 2, 5}, byName["bob"], "count/sum/min/max for bob")
	f.txnMgr.Commit(txn)
}

// seedOrders creates an orders(user_id, amount) table.
func (f *fixture) seedOrders(t *testing.T) *catalog.TableMetadata {
	t.Helper()
	schema := table.NewSchema(
		table.Column{Name: "user_id", Type: table.TypeInt64},
		table.Column{Name: "amount", Type: table.TypeInt64},
	)
	meta, err := f.cat.CreateTable("orders", schema, nil)
	require.NoError(t, err)
	for _, o := range [][2]int64{{1, 100}, {2, 50}, {1, 25}, {9, 1}} {
		_, err := meta.Heap.InsertTuple(
			table.NewTuple(table.IntValue(o[0]), table.IntValue(o[1])), nil)
		require.NoError(t, err)
	}
	return meta
}

func TestNestedLoopJoin(t *testing.T) {
	f := newFixture(t)
	users := f.seedUsers(t)
	orders := f.seedOrders(t)
	txn := f.txnMgr.Begin(concurrency.RepeatableRead)
	ctx := f.ctx(txn)

	left := NewSeqScanExecutor(ctx, &SeqScanPlan{TableName: "orders"})
	right := NewSeqScanExecutor(ctx, &SeqScanPlan{TableName: "users"})
	join := NewNestedLoopJoinExecutor(ctx, &NestedLoopJoinPlan{
		Left:        left,
		Right:       right,
		Predicate:   Compare(CmpEq, JoinColumn(0, 0), JoinColumn(1, 0)),
		LeftSchema:  orders.Schema,
		RightSchema: users.Schema,
	})
	rows := drain(t, join)

	// Orders for users 1, 2, 1 match; user 9 has no row.
	require.Len(t, rows, 3)
	for _, r := range rows {
		assert.Equal(t, r.Values[0].Int, r.Values[2].Int, "join key mismatch")
		assert.Len(t, r.Values, 4)
	}
	f.txnMgr.Commit(txn)
}

func TestNestedIndexJoin(t *testing.T) {
	f := newFixture(t)
	f.seedUsers(t)
	f.seedOrders(t)
	_, err := f.cat.CreateIndex("users_pk", "users", 0, index.Int64Comparator{}, 4, 4, nil)
	require.NoError(t, err)

	txn := f.txnMgr.Begin(concurrency.RepeatableRead)
	ctx := f.ctx(txn)
	outer := NewSeqScanExecutor(ctx, &SeqScanPlan{TableName: "orders"})
	join := NewNestedIndexJoinExecutor(ctx, &NestedIndexJoinPlan{
		Child:          outer,
		InnerTable:     "users",
		IndexName:      "users_pk",
		OuterKeyColumn: 0,
	})
	rows := drain(t, join)

	require.Len(t, rows, 3, "unmatched outer rows are dropped")
	for _, r := range rows {
		assert.Equal(t, r.Values[0].Int, r.Values[2].Int)
	}
	f.txnMgr.Commit(txn)
}

func TestChildFedInsert(t *testing.T) {
	f := newFixture(t)
	f.seedUsers(t)

	schema := table.NewSchema(
		table.Column{Name: "id", Type: table.TypeInt64},
		table.Column{Name: "name", Type: table.TypeString},
	)
	_, err := f.cat.CreateTable("users_archive", schema, nil)
	require.NoError(t, err)

	txn := f.txnMgr.Begin(concurrency.RepeatableRead)
	ctx := f.ctx(txn)
	scan := NewSeqScanExecutor(ctx, &SeqScanPlan{
		TableName: "users",
		Predicate: Compare(CmpLt, Column(0), Constant(table.IntValue(3))),
	})
	ins := NewInsertExecutor(ctx, &InsertPlan{TableName: "users_archive", Child: scan})
	drain(t, ins)
	assert.Equal(t, 2, ins.Inserted)
	f.txnMgr.Commit(txn)

	txn2 := f.txnMgr.Begin(concurrency.RepeatableRead)
	rows := drain(t, NewSeqScanExecutor(f.ctx(txn2), &SeqScanPlan{TableName: "users_archive"}))
	assert.Equal(t, []int64{1, 2}, ids(rows))
	f.txnMgr.Commit(txn2)
}
