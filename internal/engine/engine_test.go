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

package engine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestdb/internal/concurrency"
	"nestdb/internal/config"
	"nestdb/internal/execution"
	"nestdb/internal/storage/index"
	"nestdb/internal/storage/table"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "engine_test.ndb")
	cfg.BufferPoolSize = 128
	cfg.LogLevel = "error"
	return cfg
}

func TestEngineEndToEnd(t *testing.T) {
	eng, err := Open(testConfig(t))
	require.NoError(t, err)
	defer eng.Close()

	schema := table.NewSchema(
		table.Column{Name: "id", Type: table.TypeInt64},
		table.Column{Name: "city", Type: table.TypeString},
	)
	_, err = eng.Catalog().CreateTable("stops", schema, nil)
	require.NoError(t, err)
	_, err = eng.Catalog().CreateIndex("stops_pk", "stops", 0, index.Int64Comparator{}, 0, 0, nil)
	require.NoError(t, err)

	txn := eng.Begin(concurrency.RepeatableRead)
	ctx := execution.NewExecutorContext(txn, eng.Catalog(), eng.BufferPool(),
		eng.LockManager(), eng.TxnManager())

	ins := execution.NewInsertExecutor(ctx, &execution.InsertPlan{
		TableName: "stops",
		RawValues: []table.Tuple{
			table.NewTuple(table.IntValue(1), table.StringValue("vienna")),
			table.NewTuple(table.IntValue(2), table.StringValue("graz")),
			table.NewTuple(table.IntValue(3), table.StringValue("linz")),
		},
	})
	require.NoError(t, ins.Init())
	_, _, _, err = ins.Next()
	require.NoError(t, err)
	assert.Equal(t, 3, ins.Inserted)
	eng.Commit(txn)

	// Read the rows back through the index scan path.
	txn2 := eng.Begin(concurrency.RepeatableRead)
	ctx2 := execution.NewExecutorContext(txn2, eng.Catalog(), eng.BufferPool(),
		eng.LockManager(), eng.TxnManager())
	scan := execution.NewIndexScanExecutor(ctx2, &execution.IndexScanPlan{
		TableName: "stops",
		IndexName: "stops_pk",
	})
	require.NoError(t, scan.Init())
	var cities []string
	for {
		tp, _, ok, err := scan.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		cities = append(cities, tp.Values[1].Str)
	}
	assert.Equal(t, []string{"vienna", "graz", "linz"}, cities)
	eng.Commit(txn2)

	snap := eng.Metrics()
	assert.NotZero(t, snap.TxnsCommitted)
}

func TestEngineIndexPersistsAcrossReopen(t *testing.T) {
	cfg := testConfig(t)

	eng, err := Open(cfg)
	require.NoError(t, err)
	_, err = eng.Catalog().CreateTable("t", table.NewSchema(
		table.Column{Name: "k", Type: table.TypeInt64}), nil)
	require.NoError(t, err)
	info, err := eng.Catalog().CreateIndex("t_pk", "t", 0, index.Int64Comparator{}, 4, 4, nil)
	require.NoError(t, err)
	meta, err := eng.Catalog().GetTable("t")
	require.NoError(t, err)
	for i := int64(0); i < 50; i++ {
		rid, err := meta.Heap.InsertTuple(table.NewTuple(table.IntValue(i)), nil)
		require.NoError(t, err)
		_, err = info.Tree.Insert(index.Int64Key(i), rid, nil)
		require.NoError(t, err)
	}
	require.NoError(t, eng.Close())

	// Reopen: the tree reattaches to its pages through the header page.
	eng2, err := Open(cfg)
	require.NoError(t, err)
	defer eng2.Close()

	tree, err := index.NewBPlusTree("t_pk", eng2.BufferPool(), index.Int64Comparator{}, 4, 4)
	require.NoError(t, err)
	assert.False(t, tree.IsEmpty())
	for i := int64(0); i < 50; i++ {
		vals, err := tree.GetValue(index.Int64Key(i), nil)
		require.NoError(t, err)
		assert.Len(t, vals, 1, "key %d lost across restart", i)
	}
}

func TestEngineEncryptedReopenNeedsKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.EncryptionEnabled = true
	cfg.EncryptionPassphrase = "opener"

	eng, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, eng.Close())

	bad := *cfg
	bad.EncryptionPassphrase = ""
	_, err = Open(&bad)
	assert.Error(t, err)
}
