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

// leafPairSize is the on-page width of one (key, RID) entry.
const leafPairSize = KeySize + 8

// LeafMaxForPageSize is the largest leaf capacity a 4KB page supports.
const LeafMaxForPageSize = (page.Size - leafDataStart) / leafPairSize

// LeafNode is the typed view of a leaf page: an ordered (key, RID) array
// plus the next-leaf link that chains leaves left to right.
type LeafNode struct {
	treePage
}

// asLeaf reinterprets a pinned page as a leaf node view.
func asLeaf(p *page.Page) LeafNode {
	return LeafNode{treePage{page: p}}
}

// initLeaf formats a fresh page as an empty leaf.
func initLeaf(p *page.Page, id, parent page.ID, maxSize int) LeafNode {
	leaf := asLeaf(p)
	leaf.setPageType(LeafPageType)
	leaf.SetSize(0)
	leaf.setPageID(id)
	leaf.SetParentPageID(parent)
	leaf.setMaxSize(maxSize)
	leaf.SetNextPageID(page.InvalidID)
	return leaf
}

// NextPageID returns the right sibling's page id.
func (l LeafNode) NextPageID() page.ID {
	return page.ID(int32(l.u32(offNextPageID)))
}

// SetNextPageID stores the right sibling link.
func (l LeafNode) SetNextPageID(id page.ID) {
	l.setU32(offNextPageID, uint32(int32(id)))
}

func (l LeafNode) pairOffset(i int) int {
	return leafDataStart + i*leafPairSize
}

// KeyAt returns the key stored at index i.
func (l LeafNode) KeyAt(i int) Key {
	var k Key
	copy(k[:], l.page.Data()[l.pairOffset(i):])
	return k
}

func (l LeafNode) setKeyAt(i int, k Key) {
	copy(l.page.Data()[l.pairOffset(i):], k[:])
}

// ValueAt returns the RID stored at index i.
func (l LeafNode) ValueAt(i int) page.RID {
	off := l.pairOffset(i) + KeySize
	data := l.page.Data()
	return page.RID{
		PageID: page.ID(int32(binary.LittleEndian.Uint32(data[off:]))),
		Slot:   binary.LittleEndian.Uint32(data[off+4:]),
	}
}

func (l LeafNode) setValueAt(i int, rid page.RID) {
	off := l.pairOffset(i) + KeySize
	data := l.page.Data()
	binary.LittleEndian.PutUint32(data[off:], uint32(int32(rid.PageID)))
	binary.LittleEndian.PutUint32(data[off+4:], rid.Slot)
}

// copyPair moves the entry at from to index to.
func (l LeafNode) copyPair(to, from int) {
	data := l.page.Data()
	copy(data[l.pairOffset(to):l.pairOffset(to)+leafPairSize],
		data[l.pairOffset(from):l.pairOffset(from)+leafPairSize])
}

// KeyIndex finds the first index whose key is >= key, via binary search.
// Returns Size() when every stored key is smaller.
func (l LeafNode) KeyIndex(key Key, cmp KeyComparator) int {
	left, right := 0, l.Size()-1
	for left <= right {
		mid := left + (right-left)/2
		if cmp.Compare(l.KeyAt(mid), key) >= 0 {
			right = mid - 1
		} else {
			left = mid + 1
		}
	}
	return right + 1
}

// Lookup finds the RID stored under key.
func (l LeafNode) Lookup(key Key, cmp KeyComparator) (page.RID, bool) {
	i := l.KeyIndex(key, cmp)
	if i < l.Size() && cmp.Compare(l.KeyAt(i), key) == 0 {
		return l.ValueAt(i), true
	}
	return page.InvalidRID, false
}

// Insert adds the pair in key order and returns the new size. The caller
// has already ruled out duplicates.
func (l LeafNode) Insert(key Key, rid page.RID, cmp KeyComparator) int {
	i := l.KeyIndex(key, cmp)
	for j := l.Size() - 1; j >= i; j-- {
		l.copyPair(j+1, j)
	}
	l.setKeyAt(i, key)
	l.setValueAt(i, rid)
	l.IncreaseSize(1)
	return l.Size()
}

// RemoveAndDeleteRecord removes the entry for key if present, shifting
// later entries left. Returns the resulting size.
func (l LeafNode) RemoveAndDeleteRecord(key Key, cmp KeyComparator) int {
	i := l.KeyIndex(key, cmp)
	if i < l.Size() && cmp.Compare(l.KeyAt(i), key) == 0 {
		for ; i < l.Size()-1; i++ {
			l.copyPair(i, i+1)
		}
		l.IncreaseSize(-1)
	}
	return l.Size()
}

// MoveHalfTo transfers the upper half of this leaf to an empty recipient
// (the new right sibling) and links it into the leaf chain.
func (l LeafNode) MoveHalfTo(recipient LeafNode) {
	size := l.Size()
	split := size / 2
	for i := split; i < size; i++ {
		recipient.setKeyAt(i-split, l.KeyAt(i))
		recipient.setValueAt(i-split, l.ValueAt(i))
	}
	recipient.SetSize(size - split)
	recipient.SetNextPageID(l.NextPageID())
	l.SetNextPageID(recipient.PageID())
	l.SetSize(split)
}

// MoveAllTo appends every entry to the left sibling and unlinks this leaf
// from the chain.
func (l LeafNode) MoveAllTo(recipient LeafNode) {
	offset := recipient.Size()
	size := l.Size()
	for i := 0; i < size; i++ {
		recipient.setKeyAt(offset+i, l.KeyAt(i))
		recipient.setValueAt(offset+i, l.ValueAt(i))
	}
	recipient.IncreaseSize(size)
	recipient.SetNextPageID(l.NextPageID())
	l.SetSize(0)
}

// MoveFirstToEndOf shifts this leaf's first entry onto the tail of the
// left sibling. The caller refreshes the parent separator afterwards.
func (l LeafNode) MoveFirstToEndOf(recipient LeafNode) {
	recipient.setKeyAt(recipient.Size(), l.KeyAt(0))
	recipient.setValueAt(recipient.Size(), l.ValueAt(0))
	recipient.IncreaseSize(1)
	for i := 0; i < l.Size()-1; i++ {
		l.copyPair(i, i+1)
	}
	l.IncreaseSize(-1)
}

// MoveLastToFrontOf shifts this leaf's last entry onto the head of the
// right sibling. The caller refreshes the parent separator afterwards.
func (l LeafNode) MoveLastToFrontOf(recipient LeafNode) {
	for i := recipient.Size(); i > 0; i-- {
		recipient.copyPair(i, i-1)
	}
	recipient.setKeyAt(0, l.KeyAt(l.Size()-1))
	recipient.setValueAt(0, l.ValueAt(l.Size()-1))
	recipient.IncreaseSize(1)
	l.IncreaseSize(-1)
}
