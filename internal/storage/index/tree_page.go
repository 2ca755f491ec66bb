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
	"encoding/binary"

	"nestdb/internal/storage/page"
)

// PageType distinguishes the two node kinds a tree page can hold.
type PageType int32

const (
	// InvalidPageType marks a page that holds no initialized node.
	InvalidPageType PageType = iota
	// LeafPageType marks a node holding (key, RID) entries.
	LeafPageType
	// InternalPageType marks a node holding (key, child page id) entries.
	InternalPageType
)

// opType identifies the descent mode for crab latching.
type opType int

const (
	opRead opType = iota
	opInsert
	opDelete
)

// Shared node header layout. Both node kinds start with this 24-byte
// header; leaves additionally store next_page_id right after it.
//
//	Offset  Size  Field
//	------  ----  -----
//	0       4     page type
//	4       4     lsn (reserved for the log manager)
//	8       4     current size
//	12      4     max size
//	16      4     parent page id
//	20      4     page id
const (
	offPageType   = 0
	offLSN        = 4
	offSize       = 8
	offMaxSize    = 12
	offParentID   = 16
	offPageID     = 20
	headerSize    = 24
	offNextPageID = headerSize // leaf only
	leafDataStart = headerSize + 4
)

// treePage is the codec every node view embeds. It reads and writes the
// shared header fields directly in the underlying page buffer; no byte
// image is ever reinterpreted as a Go struct.
type treePage struct {
	page *page.Page
}

func (t treePage) raw() *page.Page {
	return t.page
}

func (t treePage) u32(off int) uint32 {
	return binary.LittleEndian.Uint32(t.page.Data()[off:])
}

func (t treePage) setU32(off int, v uint32) {
	binary.LittleEndian.PutUint32(t.page.Data()[off:], v)
}

// PageType returns the node kind stored on this page.
func (t treePage) PageType() PageType {
	return PageType(int32(t.u32(offPageType)))
}

func (t treePage) setPageType(pt PageType) {
	t.setU32(offPageType, uint32(int32(pt)))
}

// IsLeaf reports whether the page holds a leaf node.
func (t treePage) IsLeaf() bool {
	return t.PageType() == LeafPageType
}

// Size returns the number of stored entries.
func (t treePage) Size() int {
	return int(int32(t.u32(offSize)))
}

// SetSize stores the entry count.
func (t treePage) SetSize(n int) {
	t.setU32(offSize, uint32(int32(n)))
}

// IncreaseSize adjusts the entry count by delta.
func (t treePage) IncreaseSize(delta int) {
	t.SetSize(t.Size() + delta)
}

// MaxSize returns the node's configured capacity.
func (t treePage) MaxSize() int {
	return int(int32(t.u32(offMaxSize)))
}

func (t treePage) setMaxSize(n int) {
	t.setU32(offMaxSize, uint32(int32(n)))
}

// ParentPageID returns the parent node's page id, InvalidID for the root.
func (t treePage) ParentPageID() page.ID {
	return page.ID(int32(t.u32(offParentID)))
}

// SetParentPageID stores the parent back-reference.
func (t treePage) SetParentPageID(id page.ID) {
	t.setU32(offParentID, uint32(int32(id)))
}

// PageID returns the node's own page id.
func (t treePage) PageID() page.ID {
	return page.ID(int32(t.u32(offPageID)))
}

func (t treePage) setPageID(id page.ID) {
	t.setU32(offPageID, uint32(int32(id)))
}

// IsRoot reports whether the node has no parent.
func (t treePage) IsRoot() bool {
	return t.ParentPageID() == page.InvalidID
}

// MinSize returns the underflow bound for a non-root node: half capacity,
// where a leaf's usable capacity is max_size-1 (leaves split on reaching
// max_size) and an internal's is max_size.
func (t treePage) MinSize() int {
	if t.IsLeaf() {
		return t.MaxSize() / 2
	}
	return (t.MaxSize() + 1) / 2
}

// isSafe reports whether this node cannot propagate a structural change
// to its ancestors under the given operation: for an insert it can absorb
// one more entry without splitting, for a delete it can give one up
// without underflowing. Reads are always safe.
func (t treePage) isSafe(op opType) bool {
	switch op {
	case opInsert:
		return t.Size() < t.MaxSize()-1
	case opDelete:
		return t.Size() > t.MinSize()
	default:
		return true
	}
}
