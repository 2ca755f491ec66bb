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

// internalPairSize is the on-page width of one (key, child id) entry.
const internalPairSize = KeySize + 4

// InternalMaxForPageSize is the largest internal capacity a 4KB page
// supports.
const InternalMaxForPageSize = (page.Size - headerSize) / internalPairSize

// InternalNode is the typed view of an internal page: an ordered array of
// (key, child page id) entries where the key at index 0 is an unused
// sentinel. For i >= 1, every key in child i is >= key[i] and every key
// in child i-1 is < key[i].
type InternalNode struct {
	treePage
}

// asInternal reinterprets a pinned page as an internal node view.
func asInternal(p *page.Page) InternalNode {
	return InternalNode{treePage{page: p}}
}

// initInternal formats a fresh page as an empty internal node.
func initInternal(p *page.Page, id, parent page.ID, maxSize int) InternalNode {
	node := asInternal(p)
	node.setPageType(InternalPageType)
	node.SetSize(0)
	node.setPageID(id)
	node.SetParentPageID(parent)
	node.setMaxSize(maxSize)
	return node
}

func (n InternalNode) pairOffset(i int) int {
	return headerSize + i*internalPairSize
}

// KeyAt returns the separator key at index i. Index 0 is the sentinel.
func (n InternalNode) KeyAt(i int) Key {
	var k Key
	copy(k[:], n.page.Data()[n.pairOffset(i):])
	return k
}

// SetKeyAt stores the separator key at index i.
func (n InternalNode) SetKeyAt(i int, k Key) {
	copy(n.page.Data()[n.pairOffset(i):], k[:])
}

// ValueAt returns the child page id at index i.
func (n InternalNode) ValueAt(i int) page.ID {
	off := n.pairOffset(i) + KeySize
	return page.ID(int32(binary.LittleEndian.Uint32(n.page.Data()[off:])))
}

func (n InternalNode) setValueAt(i int, id page.ID) {
	off := n.pairOffset(i) + KeySize
	binary.LittleEndian.PutUint32(n.page.Data()[off:], uint32(int32(id)))
}

func (n InternalNode) copyPair(to, from int) {
	data := n.page.Data()
	copy(data[n.pairOffset(to):n.pairOffset(to)+internalPairSize],
		data[n.pairOffset(from):n.pairOffset(from)+internalPairSize])
}

// ValueIndex returns the index whose child id equals value, or -1.
func (n InternalNode) ValueIndex(value page.ID) int {
	for i := 0; i < n.Size(); i++ {
		if n.ValueAt(i) == value {
			return i
		}
	}
	return -1
}

// Lookup returns the child that may contain key: the child at the largest
// index i in [1, size) with key[i] <= key, or child 0 when there is none.
func (n InternalNode) Lookup(key Key, cmp KeyComparator) page.ID {
	left, right := 1, n.Size()-1
	for left <= right {
		mid := left + (right-left)/2
		if cmp.Compare(n.KeyAt(mid), key) <= 0 {
			left = mid + 1
		} else {
			right = mid - 1
		}
	}
	return n.ValueAt(left - 1)
}

// PopulateNewRoot initializes a fresh root after the old root split:
// child 0 under the sentinel key, child 1 under the separator.
func (n InternalNode) PopulateNewRoot(oldChild page.ID, key Key, newChild page.ID) {
	n.setValueAt(0, oldChild)
	n.SetKeyAt(1, key)
	n.setValueAt(1, newChild)
	n.SetSize(2)
}

// InsertNodeAfter inserts (key, newChild) immediately after the entry
// whose child id is oldChild. Returns the new size.
func (n InternalNode) InsertNodeAfter(oldChild page.ID, key Key, newChild page.ID) int {
	index := n.ValueIndex(oldChild)
	for i := n.Size() - 1; i > index; i-- {
		n.copyPair(i+1, i)
	}
	n.SetKeyAt(index+1, key)
	n.setValueAt(index+1, newChild)
	n.IncreaseSize(1)
	return n.Size()
}

// Remove deletes the entry at index, shifting later entries left.
func (n InternalNode) Remove(index int) {
	for i := index; i < n.Size()-1; i++ {
		n.copyPair(i, i+1)
	}
	n.IncreaseSize(-1)
}

// RemoveAndReturnOnlyChild empties a root of size 1 and returns its sole
// child, which becomes the new root.
func (n InternalNode) RemoveAndReturnOnlyChild() page.ID {
	child := n.ValueAt(0)
	n.SetSize(0)
	return child
}

// childAdopter updates a moved child's parent back-reference. The tree
// supplies an implementation backed by the buffer pool.
type childAdopter func(child page.ID, parent page.ID)

// MoveHalfTo transfers the upper half of this node's entries to an empty
// recipient (the new right sibling) and re-parents the moved children.
func (n InternalNode) MoveHalfTo(recipient InternalNode, adopt childAdopter) {
	size := n.Size()
	split := size / 2
	for i := split; i < size; i++ {
		recipient.SetKeyAt(i-split, n.KeyAt(i))
		recipient.setValueAt(i-split, n.ValueAt(i))
		adopt(n.ValueAt(i), recipient.PageID())
	}
	recipient.SetSize(size - split)
	n.SetSize(split)
}

// MoveAllTo appends every entry to the left sibling, placing middleKey
// (the separator taken from the parent) over this node's first child.
// The caller removes the separator from the parent.
func (n InternalNode) MoveAllTo(recipient InternalNode, middleKey Key, adopt childAdopter) {
	n.SetKeyAt(0, middleKey)
	offset := recipient.Size()
	size := n.Size()
	for i := 0; i < size; i++ {
		recipient.SetKeyAt(offset+i, n.KeyAt(i))
		recipient.setValueAt(offset+i, n.ValueAt(i))
		adopt(n.ValueAt(i), recipient.PageID())
	}
	recipient.IncreaseSize(size)
	n.SetSize(0)
}

// MoveFirstToEndOf rotates this node's first entry onto the tail of the
// left sibling: the parent separator middleKey comes down over the moved
// child and this node's next key goes up to replace it (via the caller).
// Returns the key the parent separator must become.
func (n InternalNode) MoveFirstToEndOf(recipient InternalNode, middleKey Key, adopt childAdopter) Key {
	moved := n.ValueAt(0)
	up := n.KeyAt(1)
	recipient.SetKeyAt(recipient.Size(), middleKey)
	recipient.setValueAt(recipient.Size(), moved)
	recipient.IncreaseSize(1)
	adopt(moved, recipient.PageID())
	n.Remove(0)
	return up
}

// MoveLastToFrontOf rotates this node's last entry onto the head of the
// right sibling: middleKey comes down over the recipient's old first
// child and this node's last key goes up. Returns the key the parent
// separator must become.
func (n InternalNode) MoveLastToFrontOf(recipient InternalNode, middleKey Key, adopt childAdopter) Key {
	last := n.Size() - 1
	moved := n.ValueAt(last)
	up := n.KeyAt(last)
	for i := recipient.Size(); i > 0; i-- {
		recipient.copyPair(i, i-1)
	}
	recipient.setValueAt(0, moved)
	recipient.SetKeyAt(1, middleKey)
	recipient.IncreaseSize(1)
	adopt(moved, recipient.PageID())
	n.IncreaseSize(-1)
	return up
}
