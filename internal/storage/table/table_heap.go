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

package table

import (
	"errors"

	"nestdb/internal/buffer"
	"nestdb/internal/concurrency"
	"nestdb/internal/logging"
	"nestdb/internal/storage/page"
)

// TableHeap is an unordered collection of tuples stored across a doubly
// linked chain of slotted pages. New tuples land on the first page with
// room, so the heap grows without compaction.
type TableHeap struct {
	bpm         *buffer.BufferPoolManager
	schema      *Schema
	firstPageID page.ID
	log         *logging.Logger
}

// ErrTupleTooLarge is returned when a tuple image cannot fit a fresh page.
var ErrTupleTooLarge = errors.New("tuple too large for a page")

// ErrTupleNotFound is returned for a RID that resolves to no live tuple.
var ErrTupleNotFound = errors.New("tuple not found")

// NewTableHeap creates an empty heap with one page.
func NewTableHeap(bpm *buffer.BufferPoolManager, schema *Schema) (*TableHeap, error) {
	p, err := bpm.NewPage()
	if err != nil {
		return nil, err
	}
	p.WLatch()
	InitTablePage(p, page.InvalidID)
	p.WUnlatch()
	id := p.ID()
	bpm.UnpinPage(id, true)
	return &TableHeap{
		bpm:         bpm,
		schema:      schema,
		firstPageID: id,
		log:         logging.NewLogger("heap"),
	}, nil
}

// OpenTableHeap reattaches to an existing heap chain.
func OpenTableHeap(bpm *buffer.BufferPoolManager, schema *Schema, firstPageID page.ID) *TableHeap {
	return &TableHeap{
		bpm:         bpm,
		schema:      schema,
		firstPageID: firstPageID,
		log:         logging.NewLogger("heap"),
	}
}

// Schema returns the heap's row schema.
func (h *TableHeap) Schema() *Schema {
	return h.schema
}

// FirstPageID returns the head of the page chain.
func (h *TableHeap) FirstPageID() page.ID {
	return h.firstPageID
}

// InsertTuple appends the tuple to the first page with room, extending
// the chain when every page is full. The assigned RID is returned.
func (h *TableHeap) InsertTuple(t Tuple, txn *concurrency.Transaction) (page.RID, error) {
	data, err := t.Encode(h.schema)
	if err != nil {
		return page.InvalidRID, err
	}
	if len(data)+tpHeaderSize+tpSlotSize > page.Size {
		return page.InvalidRID, ErrTupleTooLarge
	}

	cur := h.firstPageID
	for {
		p, err := h.bpm.FetchPage(cur)
		if err != nil {
			return page.InvalidRID, err
		}
		p.WLatch()
		tp := AsTablePage(p)
		if slot, ok := tp.InsertRecord(data); ok {
			p.WUnlatch()
			h.bpm.UnpinPage(cur, true)
			return page.RID{PageID: cur, Slot: slot}, nil
		}

		next := tp.NextPageID()
		if next != page.InvalidID {
			p.WUnlatch()
			h.bpm.UnpinPage(cur, false)
			cur = next
			continue
		}

		// End of chain: extend it while still holding the tail latch so
		// two inserters cannot both append.
		np, err := h.bpm.NewPage()
		if err != nil {
			p.WUnlatch()
			h.bpm.UnpinPage(cur, false)
			return page.InvalidRID, err
		}
		np.WLatch()
		ntp := InitTablePage(np, cur)
		tp.SetNextPageID(np.ID())
		p.WUnlatch()
		h.bpm.UnpinPage(cur, true)

		slot, ok := ntp.InsertRecord(data)
		newID := np.ID()
		np.WUnlatch()
		h.bpm.UnpinPage(newID, true)
		if !ok {
			return page.InvalidRID, ErrTupleTooLarge
		}
		return page.RID{PageID: newID, Slot: slot}, nil
	}
}

// GetTuple reads the tuple at rid.
func (h *TableHeap) GetTuple(rid page.RID, txn *concurrency.Transaction) (Tuple, error) {
	p, err := h.bpm.FetchPage(rid.PageID)
	if err != nil {
		return Tuple{}, err
	}
	p.RLatch()
	tp := AsTablePage(p)
	data, ok := tp.GetRecord(rid.Slot)
	if !ok {
		p.RUnlatch()
		h.bpm.UnpinPage(rid.PageID, false)
		return Tuple{}, ErrTupleNotFound
	}
	t, err := DecodeTuple(data, h.schema)
	p.RUnlatch()
	h.bpm.UnpinPage(rid.PageID, false)
	if err != nil {
		return Tuple{}, err
	}
	t.RID = rid
	return t, nil
}

// UpdateTuple overwrites the tuple at rid. When the new image does not
// fit the old slot the update fails and the caller falls back to
// delete-and-reinsert.
func (h *TableHeap) UpdateTuple(t Tuple, rid page.RID, txn *concurrency.Transaction) (bool, error) {
	data, err := t.Encode(h.schema)
	if err != nil {
		return false, err
	}
	p, err := h.bpm.FetchPage(rid.PageID)
	if err != nil {
		return false, err
	}
	p.WLatch()
	ok := AsTablePage(p).UpdateRecord(rid.Slot, data)
	p.WUnlatch()
	h.bpm.UnpinPage(rid.PageID, ok)
	return ok, nil
}

// MarkDelete tombstones the tuple at rid. Its slot stays allocated so
// other RIDs on the page remain stable.
func (h *TableHeap) MarkDelete(rid page.RID, txn *concurrency.Transaction) bool {
	p, err := h.bpm.FetchPage(rid.PageID)
	if err != nil {
		return false
	}
	p.WLatch()
	ok := AsTablePage(p).DeleteRecord(rid.Slot)
	p.WUnlatch()
	h.bpm.UnpinPage(rid.PageID, ok)
	return ok
}

// Iterator walks every live tuple in chain order.
type Iterator struct {
	heap *TableHeap
	rid  page.RID
	end  bool
}

// Begin positions an iterator on the first live tuple.
func (h *TableHeap) Begin(txn *concurrency.Transaction) *Iterator {
	it := &Iterator{heap: h, rid: page.RID{PageID: h.firstPageID, Slot: 0}}
	it.seek()
	return it
}

// IsEnd reports whether the iterator is exhausted.
func (it *Iterator) IsEnd() bool {
	return it.end
}

// RID returns the current position.
func (it *Iterator) RID() page.RID {
	return it.rid
}

// Tuple reads the tuple at the current position.
func (it *Iterator) Tuple(txn *concurrency.Transaction) (Tuple, error) {
	return it.heap.GetTuple(it.rid, txn)
}

// Next advances to the following live tuple.
func (it *Iterator) Next() {
	if it.end {
		return
	}
	it.rid.Slot++
	it.seek()
}

// seek moves forward until a live slot at or after the current position
// is found or the chain ends.
func (it *Iterator) seek() {
	for {
		p, err := it.heap.bpm.FetchPage(it.rid.PageID)
		if err != nil {
			it.end = true
			return
		}
		p.RLatch()
		tp := AsTablePage(p)
		slot, ok := tp.FirstValidSlot(it.rid.Slot)
		next := tp.NextPageID()
		p.RUnlatch()
		it.heap.bpm.UnpinPage(it.rid.PageID, false)

		if ok {
			it.rid.Slot = slot
			return
		}
		if next == page.InvalidID {
			it.end = true
			return
		}
		it.rid = page.RID{PageID: next, Slot: 0}
	}
}
