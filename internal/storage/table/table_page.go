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
	"encoding/binary"

	"nestdb/internal/storage/page"
)

// TablePage is the slotted-page view of a heap page.
//
// Layout:
//
//	┌────────────────────────────────────────────────────────────┐
//	│  Header: NextPageID(4) PrevPageID(4) FreeEnd(2) SlotCnt(2) │
//	├────────────────────────────────────────────────────────────┤
//	│  Slot 0  │  Slot 1  │  ...  │        Free Space  →         │
//	├────────────────────────────────────────────────────────────┤
//	│  ← Record N  │  ...  │  Record 1  │  Record 0              │
//	└────────────────────────────────────────────────────────────┘
//
// The slot array grows forward from the header, record data grows
// backward from the end of the page and the free space sits in between.
// Each slot is {offset:2, length:2}; a deleted record keeps its slot with
// offset 0 so external RIDs stay stable.
type TablePage struct {
	page *page.Page
}

const (
	tpNextOffset    = 0
	tpPrevOffset    = 4
	tpFreeEndOffset = 8
	tpSlotCntOffset = 10
	tpHeaderSize    = 12
	tpSlotSize      = 4

	slotDeleted = 0 // slot offset value marking a deleted record
)

// AsTablePage reinterprets a pinned page as a heap page.
func AsTablePage(p *page.Page) TablePage {
	return TablePage{page: p}
}

// InitTablePage formats a fresh page as an empty heap page.
func InitTablePage(p *page.Page, prev page.ID) TablePage {
	tp := AsTablePage(p)
	tp.SetNextPageID(page.InvalidID)
	tp.SetPrevPageID(prev)
	tp.setFreeEnd(page.Size)
	tp.setSlotCount(0)
	return tp
}

func (tp TablePage) u16(off int) uint16 {
	return binary.LittleEndian.Uint16(tp.page.Data()[off:])
}

func (tp TablePage) setU16(off int, v uint16) {
	binary.LittleEndian.PutUint16(tp.page.Data()[off:], v)
}

func (tp TablePage) u32(off int) uint32 {
	return binary.LittleEndian.Uint32(tp.page.Data()[off:])
}

func (tp TablePage) setU32(off int, v uint32) {
	binary.LittleEndian.PutUint32(tp.page.Data()[off:], v)
}

// NextPageID returns the next page in the heap chain.
func (tp TablePage) NextPageID() page.ID {
	return page.ID(int32(tp.u32(tpNextOffset)))
}

// SetNextPageID links the next page in the heap chain.
func (tp TablePage) SetNextPageID(id page.ID) {
	tp.setU32(tpNextOffset, uint32(int32(id)))
}

// PrevPageID returns the previous page in the heap chain.
func (tp TablePage) PrevPageID() page.ID {
	return page.ID(int32(tp.u32(tpPrevOffset)))
}

// SetPrevPageID links the previous page in the heap chain.
func (tp TablePage) SetPrevPageID(id page.ID) {
	tp.setU32(tpPrevOffset, uint32(int32(id)))
}

func (tp TablePage) freeEnd() int {
	return int(tp.u16(tpFreeEndOffset))
}

func (tp TablePage) setFreeEnd(v int) {
	tp.setU16(tpFreeEndOffset, uint16(v))
}

// SlotCount returns the number of slots, including deleted ones.
func (tp TablePage) SlotCount() int {
	return int(tp.u16(tpSlotCntOffset))
}

func (tp TablePage) setSlotCount(n int) {
	tp.setU16(tpSlotCntOffset, uint16(n))
}

func (tp TablePage) slotOffset(i int) int {
	return tpHeaderSize + i*tpSlotSize
}

func (tp TablePage) slot(i int) (offset, length int) {
	base := tp.slotOffset(i)
	return int(tp.u16(base)), int(tp.u16(base + 2))
}

func (tp TablePage) setSlot(i, offset, length int) {
	base := tp.slotOffset(i)
	tp.setU16(base, uint16(offset))
	tp.setU16(base+2, uint16(length))
}

// freeSpace returns the bytes left between the slot array and record data.
func (tp TablePage) freeSpace() int {
	return tp.freeEnd() - (tpHeaderSize + tp.SlotCount()*tpSlotSize)
}

// InsertRecord stores a record image and returns its slot number, or
// false when the page cannot hold it.
func (tp TablePage) InsertRecord(data []byte) (uint32, bool) {
	// Reuse a deleted slot when one exists; otherwise grow the slot array.
	slot := -1
	for i := 0; i < tp.SlotCount(); i++ {
		if off, _ := tp.slot(i); off == slotDeleted {
			slot = i
			break
		}
	}
	need := len(data)
	if slot < 0 {
		need += tpSlotSize
	}
	if tp.freeSpace() < need {
		return 0, false
	}

	recOffset := tp.freeEnd() - len(data)
	copy(tp.page.Data()[recOffset:], data)
	tp.setFreeEnd(recOffset)

	if slot < 0 {
		slot = tp.SlotCount()
		tp.setSlotCount(slot + 1)
	}
	tp.setSlot(slot, recOffset, len(data))
	return uint32(slot), true
}

// GetRecord returns the record image at slot, or false for an invalid or
// deleted slot.
func (tp TablePage) GetRecord(slot uint32) ([]byte, bool) {
	if int(slot) >= tp.SlotCount() {
		return nil, false
	}
	off, length := tp.slot(int(slot))
	if off == slotDeleted {
		return nil, false
	}
	return tp.page.Data()[off : off+length], true
}

// UpdateRecord overwrites the record in place when the new image is no
// larger than the old one. Returns false when it does not fit.
func (tp TablePage) UpdateRecord(slot uint32, data []byte) bool {
	if int(slot) >= tp.SlotCount() {
		return false
	}
	off, length := tp.slot(int(slot))
	if off == slotDeleted || len(data) > length {
		return false
	}
	copy(tp.page.Data()[off:], data)
	tp.setSlot(int(slot), off, len(data))
	return true
}

// DeleteRecord tombstones the slot. The record bytes become dead space
// reclaimed when the page is compacted (not implemented; pages are
// reused through slot recycling).
func (tp TablePage) DeleteRecord(slot uint32) bool {
	if int(slot) >= tp.SlotCount() {
		return false
	}
	off, _ := tp.slot(int(slot))
	if off == slotDeleted {
		return false
	}
	tp.setSlot(int(slot), slotDeleted, 0)
	return true
}

// FirstValidSlot returns the first live slot at or after start, or false.
func (tp TablePage) FirstValidSlot(start uint32) (uint32, bool) {
	for i := int(start); i < tp.SlotCount(); i++ {
		if off, _ := tp.slot(i); off != slotDeleted {
			return uint32(i), true
		}
	}
	return 0, false
}
