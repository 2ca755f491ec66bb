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
Package buffer implements the buffer pool manager and its LRU eviction
policy.

The buffer pool is a critical component of any disk-based database system.
It manages a fixed-size cache of database pages in memory, reducing
expensive disk I/O operations by keeping frequently accessed pages in RAM.

Buffer Pool Architecture:
=========================

	┌──────────────────────────────────────────────────────────────┐
	│                      Buffer Pool                             │
	│  ┌─────────────────────────────────────────────────────────┐ │
	│  │                    Page Table                           │ │
	│  │  PageID → frame index (hash table for O(1) lookup)      │ │
	│  └─────────────────────────────────────────────────────────┘ │
	│  ┌─────────────────────────────────────────────────────────┐ │
	│  │                    Frame Array                          │ │
	│  │  [Frame 0] [Frame 1] [Frame 2] ... [Frame N-1]          │ │
	│  │  Each frame holds one page (pin count, dirty flag)      │ │
	│  └─────────────────────────────────────────────────────────┘ │
	│  ┌─────────────┐  ┌────────────────────────────────────────┐ │
	│  │  Free List  │  │  LRU Replacer (unpinned frames)        │ │
	│  └─────────────┘  └────────────────────────────────────────┘ │
	└──────────────────────────────────────────────────────────────┘

Every frame is in exactly one of three states: on the free list, holding
a pinned page, or holding an unpinned page tracked by the replacer.

Pin/Unpin Protocol:
===================

Pages must be "pinned" before use and "unpinned" when done:

 1. FetchPage(pageID): pins the page, returns a pointer
 2. Use the page (latch its contents for reads/writes)
 3. UnpinPage(pageID, dirty): unpins, marks dirty if modified

Pinned pages cannot be evicted, preventing use-after-free bugs. When the
pin count drops to zero the frame enters the replacer and becomes an
eviction candidate.

Thread Safety:
==============

All bookkeeping (page table, free list, replacer membership, pin counts)
is protected by a single mutex; disk I/O also happens under it, which
keeps the invariants simple at the cost of concurrency during faults.
Page contents are additionally guarded by per-page reader-writer latches
held by index and heap code.
*/
package buffer

import (
	"sync"

	"nestdb/internal/errors"
	"nestdb/internal/logging"
	"nestdb/internal/metrics"
	"nestdb/internal/storage/disk"
	"nestdb/internal/storage/page"
)

// FrameID indexes the buffer pool's frame array.
type FrameID int

// InvalidFrameID marks an unassigned frame slot.
const InvalidFrameID FrameID = -1

// BufferPoolManager mediates all page access, transparently reading from
// and writing back to the disk manager.
type BufferPoolManager struct {
	mu        sync.Mutex
	diskMgr   disk.Manager
	pages     []*page.Page
	replacer  *LRUReplacer
	freeList  []FrameID
	pageTable map[page.ID]FrameID
	log       *logging.Logger
	stats     *metrics.Metrics
}

// NewBufferPoolManager creates a pool of poolSize frames over the disk
// manager.
func NewBufferPoolManager(diskMgr disk.Manager, poolSize int) *BufferPoolManager {
	b := &BufferPoolManager{
		diskMgr:   diskMgr,
		pages:     make([]*page.Page, poolSize),
		replacer:  NewLRUReplacer(poolSize),
		freeList:  make([]FrameID, poolSize),
		pageTable: make(map[page.ID]FrameID),
		log:       logging.NewLogger("buffer"),
		stats:     metrics.Get(),
	}
	for i := 0; i < poolSize; i++ {
		b.pages[i] = page.NewPage()
		// LIFO free list: frame 0 is consumed first.
		b.freeList[i] = FrameID(poolSize - 1 - i)
	}
	return b
}

// PoolSize returns the number of frames.
func (b *BufferPoolManager) PoolSize() int {
	return len(b.pages)
}

// FetchPage returns the requested page pinned, reading it from disk on a
// miss. Returns ErrCodeBufferPoolFull when every frame is pinned.
func (b *BufferPoolManager) FetchPage(pageID page.ID) (*page.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if frame, ok := b.pageTable[pageID]; ok {
		b.stats.BufferHits.Add(1)
		p := b.pages[frame]
		p.SetPinCount(p.PinCount() + 1)
		b.replacer.Pin(frame)
		return p, nil
	}

	b.stats.BufferMisses.Add(1)
	frame, err := b.findVictimFrame()
	if err != nil {
		return nil, err
	}

	p := b.pages[frame]
	p.SetID(pageID)
	p.SetPinCount(1)
	p.SetDirty(false)
	if err := b.diskMgr.ReadPage(pageID, p.Data()); err != nil {
		// Frame bookkeeping was not yet published; return it to the free list.
		p.Reset()
		b.freeList = append(b.freeList, frame)
		return nil, err
	}
	b.pageTable[pageID] = frame
	b.replacer.Pin(frame)
	return p, nil
}

// NewPage allocates a fresh page id from the disk manager and returns its
// zeroed, pinned page.
func (b *BufferPoolManager) NewPage() (*page.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pageID, err := b.diskMgr.AllocatePage()
	if err != nil {
		return nil, err
	}
	frame, err := b.findVictimFrame()
	if err != nil {
		// No frame can hold the new page; hand the id back.
		if derr := b.diskMgr.DeallocatePage(pageID); derr != nil {
			b.log.Warn("Failed to return page id after frame exhaustion",
				"page_id", pageID, "error", derr)
		}
		return nil, err
	}

	p := b.pages[frame]
	p.Reset()
	p.SetID(pageID)
	p.SetPinCount(1)
	b.pageTable[pageID] = frame
	b.replacer.Pin(frame)
	return p, nil
}

// UnpinPage decrements the pin count and ORs in the dirty flag. When the
// pin count reaches zero the frame becomes an eviction candidate.
// Returns false if the page is not resident.
func (b *BufferPoolManager) UnpinPage(pageID page.ID, isDirty bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	frame, ok := b.pageTable[pageID]
	if !ok {
		return false
	}
	p := b.pages[frame]
	if isDirty {
		p.SetDirty(true)
	}
	if p.PinCount() <= 0 {
		return false
	}
	p.SetPinCount(p.PinCount() - 1)
	if p.PinCount() == 0 {
		b.replacer.Unpin(frame)
	}
	return true
}

// FlushPage writes the page image to disk and clears the dirty flag.
// Pinning is unchanged. Returns false if the page is not resident.
func (b *BufferPoolManager) FlushPage(pageID page.ID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	frame, ok := b.pageTable[pageID]
	if !ok {
		return false
	}
	p := b.pages[frame]
	if err := b.diskMgr.WritePage(pageID, p.Data()); err != nil {
		b.log.Error("Flush failed", "page_id", pageID, "error", err)
		return false
	}
	p.SetDirty(false)
	b.stats.BufferFlushes.Add(1)
	return true
}

// FlushAllPages flushes every resident page.
func (b *BufferPoolManager) FlushAllPages() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for pageID, frame := range b.pageTable {
		p := b.pages[frame]
		if err := b.diskMgr.WritePage(pageID, p.Data()); err != nil {
			b.log.Error("Flush failed", "page_id", pageID, "error", err)
			continue
		}
		p.SetDirty(false)
		b.stats.BufferFlushes.Add(1)
	}
}

// DeletePage drops a page from the pool and deallocates it on disk.
// Deleting a non-resident page succeeds as a no-op. Deleting a pinned
// page fails with ErrCodePageInUse.
func (b *BufferPoolManager) DeletePage(pageID page.ID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	frame, ok := b.pageTable[pageID]
	if !ok {
		return nil
	}
	p := b.pages[frame]
	if p.PinCount() > 0 {
		return errors.PageInUse(int64(pageID))
	}

	delete(b.pageTable, pageID)
	b.replacer.Pin(frame)
	p.Reset()
	b.freeList = append(b.freeList, frame)
	return b.diskMgr.DeallocatePage(pageID)
}

// findVictimFrame returns a frame ready to host a new page: the free list
// is consumed first (LIFO), then the replacer is asked for victims. A
// victim that turns out to be pinned is re-entered and skipped. The
// evicted page is written back when dirty and its mapping removed.
func (b *BufferPoolManager) findVictimFrame() (FrameID, error) {
	if n := len(b.freeList); n > 0 {
		frame := b.freeList[n-1]
		b.freeList = b.freeList[:n-1]
		return frame, nil
	}

	attempts := b.replacer.Size()
	for i := 0; i < attempts; i++ {
		frame, ok := b.replacer.Victim()
		if !ok {
			break
		}
		victim := b.pages[frame]
		if victim.PinCount() > 0 {
			// Still pinned; keep it as a candidate and look further.
			b.replacer.Unpin(frame)
			continue
		}
		if victim.IsDirty() {
			if err := b.diskMgr.WritePage(victim.ID(), victim.Data()); err != nil {
				b.replacer.Unpin(frame)
				return InvalidFrameID, err
			}
		}
		delete(b.pageTable, victim.ID())
		victim.Reset()
		b.stats.BufferEvictions.Add(1)
		return frame, nil
	}
	return InvalidFrameID, errors.BufferPoolFull()
}
