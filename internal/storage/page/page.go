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
Package page defines the in-memory page abstraction shared by the buffer
pool, the B+ tree index, and the table heap.

Page-Based Storage Overview:
============================

NestDB organizes all persistent data into fixed-size 4KB pages. Pages are
the unit of disk I/O, of buffer pool caching, and of latching:

 1. Efficient I/O: reads and writes happen in page-sized chunks.

 2. Buffer Pool Integration: a page is owned by exactly one buffer pool
    frame while resident; the pin count prevents eviction during use.

 3. Concurrency: every page carries a reader-writer latch. Index and heap
    code latches page contents; the buffer pool itself only serializes
    frame bookkeeping.

The byte payload is opaque at this level. Typed views (B+ tree nodes,
slotted tuple pages, the header page) are explicit codecs layered on top
of the raw buffer; no unsafe reinterpretation is performed.
*/
package page

import "sync"

// Size is the size of each page in bytes.
const Size = 4096

// ID is a logical page identifier assigned by the disk manager.
type ID int32

// InvalidID marks a page id slot as unassigned.
const InvalidID ID = -1

// HeaderPageID is the reserved page holding index root registrations.
const HeaderPageID ID = 0

// Page is a fixed-size byte buffer plus the metadata the buffer pool
// tracks for it. The buffer pool owns every Page for its whole lifetime
// in memory; other components access pages only while pinned.
type Page struct {
	data     [Size]byte
	id       ID
	pinCount int
	dirty    bool
	latch    sync.RWMutex
}

// NewPage returns an empty, unassigned page.
func NewPage() *Page {
	return &Page{id: InvalidID}
}

// Data returns the page's byte buffer.
func (p *Page) Data() *[Size]byte {
	return &p.data
}

// ID returns the logical page id, or InvalidID for an unassigned frame.
func (p *Page) ID() ID {
	return p.id
}

// SetID assigns the logical page id. Buffer pool use only.
func (p *Page) SetID(id ID) {
	p.id = id
}

// PinCount returns the current pin count.
func (p *Page) PinCount() int {
	return p.pinCount
}

// SetPinCount sets the pin count. Buffer pool use only.
func (p *Page) SetPinCount(n int) {
	p.pinCount = n
}

// IsDirty reports whether the page has unwritten modifications.
func (p *Page) IsDirty() bool {
	return p.dirty
}

// SetDirty marks or clears the dirty flag. Buffer pool use only.
func (p *Page) SetDirty(dirty bool) {
	p.dirty = dirty
}

// Reset zeroes the buffer and clears all metadata.
func (p *Page) Reset() {
	p.data = [Size]byte{}
	p.id = InvalidID
	p.pinCount = 0
	p.dirty = false
}

// RLatch acquires the page latch in shared mode.
func (p *Page) RLatch() { p.latch.RLock() }

// RUnlatch releases a shared latch.
func (p *Page) RUnlatch() { p.latch.RUnlock() }

// WLatch acquires the page latch in exclusive mode.
func (p *Page) WLatch() { p.latch.Lock() }

// WUnlatch releases an exclusive latch.
func (p *Page) WUnlatch() { p.latch.Unlock() }
