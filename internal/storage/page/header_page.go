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

package page

import (
	"encoding/binary"
)

// HeaderPage is a typed view over page 0, which records the root page id
// of every named index. The B+ tree re-registers itself here whenever its
// root page id changes, so an index survives process restarts.
//
// Record layout (fixed width, 36 bytes each):
//
//	Offset  Size  Field
//	------  ----  -----
//	0       4     record count (page prefix, not per record)
//	4+36*i  32    index name, NUL padded
//	36+36*i 4     root page id
type HeaderPage struct {
	page *Page
}

const (
	headerCountOffset = 0
	headerRecordBase  = 4
	headerNameLen     = 32
	headerRecordSize  = headerNameLen + 4

	// MaxHeaderRecords is the number of index registrations page 0 can hold.
	MaxHeaderRecords = (Size - headerRecordBase) / headerRecordSize
)

// AsHeaderPage reinterprets a pinned page as the header page.
func AsHeaderPage(p *Page) *HeaderPage {
	return &HeaderPage{page: p}
}

// Page returns the underlying raw page.
func (h *HeaderPage) Page() *Page {
	return h.page
}

// RecordCount returns the number of registered indexes.
func (h *HeaderPage) RecordCount() int {
	return int(binary.LittleEndian.Uint32(h.page.data[headerCountOffset:]))
}

func (h *HeaderPage) setRecordCount(n int) {
	binary.LittleEndian.PutUint32(h.page.data[headerCountOffset:], uint32(n))
}

func (h *HeaderPage) recordName(i int) string {
	off := headerRecordBase + i*headerRecordSize
	raw := h.page.data[off : off+headerNameLen]
	end := 0
	for end < headerNameLen && raw[end] != 0 {
		end++
	}
	return string(raw[:end])
}

func (h *HeaderPage) recordRoot(i int) ID {
	off := headerRecordBase + i*headerRecordSize + headerNameLen
	return ID(int32(binary.LittleEndian.Uint32(h.page.data[off:])))
}

func (h *HeaderPage) writeRecord(i int, name string, root ID) {
	off := headerRecordBase + i*headerRecordSize
	var buf [headerNameLen]byte
	copy(buf[:], name)
	copy(h.page.data[off:off+headerNameLen], buf[:])
	binary.LittleEndian.PutUint32(h.page.data[off+headerNameLen:], uint32(int32(root)))
}

// findRecord returns the slot of the named record, or -1.
func (h *HeaderPage) findRecord(name string) int {
	for i := 0; i < h.RecordCount(); i++ {
		if h.recordName(i) == name {
			return i
		}
	}
	return -1
}

// InsertRecord registers a new index. Returns false when the name is
// already registered, too long, or the page is full.
func (h *HeaderPage) InsertRecord(name string, root ID) bool {
	if len(name) == 0 || len(name) > headerNameLen {
		return false
	}
	if h.findRecord(name) >= 0 {
		return false
	}
	n := h.RecordCount()
	if n >= MaxHeaderRecords {
		return false
	}
	h.writeRecord(n, name, root)
	h.setRecordCount(n + 1)
	return true
}

// UpdateRecord changes the root page id of a registered index.
func (h *HeaderPage) UpdateRecord(name string, root ID) bool {
	i := h.findRecord(name)
	if i < 0 {
		return false
	}
	h.writeRecord(i, name, root)
	return true
}

// DeleteRecord removes a registration, compacting the record array.
func (h *HeaderPage) DeleteRecord(name string) bool {
	i := h.findRecord(name)
	if i < 0 {
		return false
	}
	n := h.RecordCount()
	for ; i < n-1; i++ {
		h.writeRecord(i, h.recordName(i+1), h.recordRoot(i+1))
	}
	h.setRecordCount(n - 1)
	return true
}

// GetRootID looks up the root page id registered for an index.
func (h *HeaderPage) GetRootID(name string) (ID, bool) {
	i := h.findRecord(name)
	if i < 0 {
		return InvalidID, false
	}
	return h.recordRoot(i), true
}
