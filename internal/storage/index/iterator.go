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

package index

import (
	"nestdb/internal/storage/page"
)

// Iterator walks the leaf level in key order. It holds a read latch and a
// pin on the current leaf, trading them for the next leaf's as it crosses
// page boundaries. The current leaf's latch is released before the next
// leaf's is acquired, so iteration is not stable against concurrent
// structural modification; callers either serialize writers externally or
// tolerate missed and repeated entries.
//
// Close must be called (or the iterator driven to the end) to release the
// final leaf.
type Iterator struct {
	tree  *BPlusTree
	leaf  *page.Page
	index int
}

// Begin positions an iterator at the first entry of the leftmost leaf.
func (t *BPlusTree) Begin() (*Iterator, error) {
	ctx := &opContext{op: opRead}
	leaf, ok, err := t.findLeaf(Key{}, true, ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Iterator{tree: t}, nil
	}
	t.tryUnlockRoot(ctx)
	ctx.clearPages() // the iterator takes over the leaf's latch and pin
	it := &Iterator{tree: t, leaf: leaf.raw()}
	it.skipEmpty()
	return it, nil
}

// BeginAt positions an iterator at the first entry >= key.
func (t *BPlusTree) BeginAt(key Key) (*Iterator, error) {
	ctx := &opContext{op: opRead}
	leaf, ok, err := t.findLeaf(key, false, ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Iterator{tree: t}, nil
	}
	t.tryUnlockRoot(ctx)
	ctx.clearPages()
	it := &Iterator{tree: t, leaf: leaf.raw(), index: leaf.KeyIndex(key, t.cmp)}
	it.skipEmpty()
	return it, nil
}

// IsEnd reports whether the iterator has run off the last leaf.
func (it *Iterator) IsEnd() bool {
	return it.leaf == nil
}

// Key returns the key at the current position.
func (it *Iterator) Key() Key {
	return asLeaf(it.leaf).KeyAt(it.index)
}

// RID returns the record id at the current position.
func (it *Iterator) RID() page.RID {
	return asLeaf(it.leaf).ValueAt(it.index)
}

// Next advances one entry, crossing to the chained sibling when the
// current leaf is exhausted.
func (it *Iterator) Next() {
	if it.leaf == nil {
		return
	}
	it.index++
	it.skipEmpty()
}

// skipEmpty moves forward across leaf boundaries until the position is
// valid or the chain ends.
func (it *Iterator) skipEmpty() {
	for it.leaf != nil && it.index >= asLeaf(it.leaf).Size() {
		next := asLeaf(it.leaf).NextPageID()
		it.release()
		if next == page.InvalidID {
			return
		}
		p, err := it.tree.bpm.FetchPage(next)
		if err != nil {
			it.tree.log.Error("Iterator failed to fetch next leaf", "page_id", next, "error", err)
			return
		}
		p.RLatch()
		it.leaf = p
		it.index = 0
	}
}

// release drops the current leaf's latch and pin.
func (it *Iterator) release() {
	if it.leaf == nil {
		return
	}
	id := it.leaf.ID()
	it.leaf.RUnlatch()
	it.tree.bpm.UnpinPage(id, false)
	it.leaf = nil
}

// Close releases any held leaf. Safe to call repeatedly.
func (it *Iterator) Close() {
	it.release()
}
