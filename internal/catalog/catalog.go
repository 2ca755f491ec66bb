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

/*
Package catalog tracks tables and indexes: schemas, heaps, and the B+
trees built over them. Executors resolve everything they touch through
the catalog.
*/
package catalog

import (
	"errors"
	"fmt"
	"sync"

	"nestdb/internal/buffer"
	"nestdb/internal/concurrency"
	"nestdb/internal/storage/index"
	"nestdb/internal/storage/table"
)

// TableOID identifies a table.
type TableOID uint32

// IndexOID identifies an index.
type IndexOID uint32

// TableMetadata bundles what executors need to touch a table.
type TableMetadata struct {
	Schema *table.Schema
	Name   string
	Heap   *table.TableHeap
	OID    TableOID
}

// IndexInfo bundles what executors need to probe an index.
type IndexInfo struct {
	Name      string
	TableName string
	// KeyColumn is the indexed column's position in the table schema.
	KeyColumn int
	Tree      *index.BPlusTree
	OID       IndexOID
}

// KeyFromTuple extracts the index key for a row of the indexed table.
func (info *IndexInfo) KeyFromTuple(t table.Tuple) index.Key {
	v := t.Values[info.KeyColumn]
	if v.Type == table.TypeInt64 {
		return index.Int64Key(v.Int)
	}
	return index.StringKey(v.Str)
}

var (
	// ErrTableExists is returned when creating a table whose name is taken.
	ErrTableExists = errors.New("table already exists")
	// ErrTableNotFound is returned when resolving an unknown table.
	ErrTableNotFound = errors.New("table not found")
	// ErrIndexExists is returned when creating an index whose name is taken.
	ErrIndexExists = errors.New("index already exists")
	// ErrIndexNotFound is returned when resolving an unknown index.
	ErrIndexNotFound = errors.New("index not found")
)

// Catalog is the in-memory registry of tables and indexes.
type Catalog struct {
	mu      sync.RWMutex
	bpm     *buffer.BufferPoolManager
	lockMgr *concurrency.LockManager

	tables     map[TableOID]*TableMetadata
	tableNames map[string]TableOID
	nextTable  TableOID

	indexes    map[IndexOID]*IndexInfo
	indexNames map[string]map[string]IndexOID // table -> index name -> oid
	nextIndex  IndexOID
}

// NewCatalog creates an empty catalog over the buffer pool.
func NewCatalog(bpm *buffer.BufferPoolManager, lockMgr *concurrency.LockManager) *Catalog {
	return &Catalog{
		bpm:        bpm,
		lockMgr:    lockMgr,
		tables:     make(map[TableOID]*TableMetadata),
		tableNames: make(map[string]TableOID),
		indexes:    make(map[IndexOID]*IndexInfo),
		indexNames: make(map[string]map[string]IndexOID),
	}
}

// CreateTable creates an empty table with the given schema.
func (c *Catalog) CreateTable(name string, schema *table.Schema, txn *concurrency.Transaction) (*TableMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.tableNames[name]; ok {
		return nil, ErrTableExists
	}
	heap, err := table.NewTableHeap(c.bpm, schema)
	if err != nil {
		return nil, err
	}
	oid := c.nextTable
	c.nextTable++
	meta := &TableMetadata{Schema: schema, Name: name, Heap: heap, OID: oid}
	c.tables[oid] = meta
	c.tableNames[name] = oid
	return meta, nil
}

// GetTable resolves a table by name.
func (c *Catalog) GetTable(name string) (*TableMetadata, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	oid, ok := c.tableNames[name]
	if !ok {
		return nil, ErrTableNotFound
	}
	return c.tables[oid], nil
}

// GetTableByOID resolves a table by oid.
func (c *Catalog) GetTableByOID(oid TableOID) (*TableMetadata, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	meta, ok := c.tables[oid]
	if !ok {
		return nil, ErrTableNotFound
	}
	return meta, nil
}

// TableNames lists every table in the catalog.
func (c *Catalog) TableNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.tableNames))
	for name := range c.tableNames {
		names = append(names, name)
	}
	return names
}

// CreateIndex builds a B+ tree over keyColumn of an existing table and
// backfills it from the current heap contents.
func (c *Catalog) CreateIndex(indexName, tableName string, keyColumn int,
	cmp index.KeyComparator, leafMax, internalMax int,
	txn *concurrency.Transaction) (*IndexInfo, error) {

	c.mu.Lock()
	defer c.mu.Unlock()

	oidT, ok := c.tableNames[tableName]
	if !ok {
		return nil, ErrTableNotFound
	}
	meta := c.tables[oidT]
	if keyColumn < 0 || keyColumn >= len(meta.Schema.Columns) {
		return nil, fmt.Errorf("key column %d out of range for table %s", keyColumn, tableName)
	}
	if byTable, ok := c.indexNames[tableName]; ok {
		if _, dup := byTable[indexName]; dup {
			return nil, ErrIndexExists
		}
	}

	tree, err := index.NewBPlusTree(indexName, c.bpm, cmp, leafMax, internalMax)
	if err != nil {
		return nil, err
	}
	oid := c.nextIndex
	c.nextIndex++
	info := &IndexInfo{
		Name:      indexName,
		TableName: tableName,
		KeyColumn: keyColumn,
		Tree:      tree,
		OID:       oid,
	}

	// Backfill from the heap so the index covers pre-existing rows.
	for it := meta.Heap.Begin(txn); !it.IsEnd(); it.Next() {
		t, err := it.Tuple(txn)
		if err != nil {
			return nil, err
		}
		if _, err := tree.Insert(info.KeyFromTuple(t), t.RID, txn); err != nil {
			return nil, err
		}
	}

	c.indexes[oid] = info
	if c.indexNames[tableName] == nil {
		c.indexNames[tableName] = make(map[string]IndexOID)
	}
	c.indexNames[tableName][indexName] = oid
	return info, nil
}

// GetIndex resolves an index by name within a table.
func (c *Catalog) GetIndex(indexName, tableName string) (*IndexInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	byTable, ok := c.indexNames[tableName]
	if !ok {
		return nil, ErrIndexNotFound
	}
	oid, ok := byTable[indexName]
	if !ok {
		return nil, ErrIndexNotFound
	}
	return c.indexes[oid], nil
}

// GetTableIndexes lists every index built over a table.
func (c *Catalog) GetTableIndexes(tableName string) []*IndexInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var infos []*IndexInfo
	for _, oid := range c.indexNames[tableName] {
		infos = append(infos, c.indexes[oid])
	}
	return infos
}
