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
Package index implements a disk-resident, concurrently accessible B+ tree
with unique keys.

Tree Structure:
===============

  - Internal pages direct the search; leaf pages hold (key, RID) entries.
  - All leaves sit at the same depth and are chained left to right by a
    next-page link, so range scans walk the leaf level only.
  - Nodes split when they fill and merge or redistribute when a non-root
    node falls below half capacity; the tree grows and shrinks at the root.

Crab Latching:
==============

Every page carries a reader-writer latch and the tree adds one root latch
guarding the root page id. A descent latches the child before giving up
the parent ("crabbing"):

  - Readers latch the child shared, then immediately release the parent:
    structure below a read-latched node cannot change under them.
  - Writers keep the chain of exclusive latches from the deepest unsafe
    ancestor downward. The moment a child is proven safe (it can absorb
    the pending insert or delete without structural change), every
    ancestor latch is released at once.

The pages latched by one operation are recorded in its context (the
transaction when present); they are unlatched, unpinned, and any page
scheduled for deletion is deleted when the operation completes.
*/
package index

import (
	"errors"
	"sync"

	"nestdb/internal/buffer"
	"nestdb/internal/concurrency"
	"nestdb/internal/logging"
	"nestdb/internal/metrics"
	"nestdb/internal/storage/page"
)

// ErrNoHeaderPage is returned when page 0 cannot be fetched and a newly
// allocated page does not receive id 0. A fetchable page 0 is used as the
// header page whatever it holds.
var ErrNoHeaderPage = errors.New("page store has no header page")

// BPlusTree is an ordered unique-key index over (Key, RID) pairs.
// Durability is delegated to the buffer pool.
type BPlusTree struct {
	name            string
	rootPageID      page.ID
	bpm             *buffer.BufferPoolManager
	cmp             KeyComparator
	leafMaxSize     int
	internalMaxSize int

	// rootLatch guards rootPageID; per-page latches guard node contents.
	rootLatch sync.RWMutex

	log   *logging.Logger
	stats *metrics.Metrics
}

// opContext records what one descent has latched: the chain of pages in
// acquisition order and the pages scheduled for deletion. When the
// operation runs under a transaction the sets live on it so executors
// can observe them; otherwise the context carries its own.
type opContext struct {
	op          opType
	txn         *concurrency.Transaction
	rootLatched bool

	localPages   []*page.Page
	localDeleted map[page.ID]struct{}
}

func (c *opContext) addPage(p *page.Page) {
	if c.txn != nil {
		c.txn.AddIntoPageSet(p)
		return
	}
	c.localPages = append(c.localPages, p)
}

func (c *opContext) pages() []*page.Page {
	if c.txn != nil {
		return c.txn.PageSet()
	}
	return c.localPages
}

func (c *opContext) clearPages() {
	if c.txn != nil {
		c.txn.ClearPageSet()
		return
	}
	c.localPages = c.localPages[:0]
}

func (c *opContext) addDeleted(id page.ID) {
	if c.txn != nil {
		c.txn.AddIntoDeletedPageSet(id)
		return
	}
	if c.localDeleted == nil {
		c.localDeleted = make(map[page.ID]struct{})
	}
	c.localDeleted[id] = struct{}{}
}

func (c *opContext) deleted() map[page.ID]struct{} {
	if c.txn != nil {
		return c.txn.DeletedPageSet()
	}
	return c.localDeleted
}

// NewBPlusTree opens (or registers) the named index on the buffer pool.
// A leafMaxSize or internalMaxSize of zero derives the largest capacity
// the page size supports. The root page id is loaded from the header
// page, so an existing index reattaches to its pages.
func NewBPlusTree(name string, bpm *buffer.BufferPoolManager, cmp KeyComparator,
	leafMaxSize, internalMaxSize int) (*BPlusTree, error) {

	if leafMaxSize <= 0 {
		leafMaxSize = LeafMaxForPageSize
	}
	if internalMaxSize <= 0 {
		internalMaxSize = InternalMaxForPageSize
	}

	t := &BPlusTree{
		name:            name,
		rootPageID:      page.InvalidID,
		bpm:             bpm,
		cmp:             cmp,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		log:             logging.NewLogger("index"),
		stats:           metrics.Get(),
	}

	hp, err := t.fetchHeaderPage()
	if err != nil {
		return nil, err
	}
	header := page.AsHeaderPage(hp)
	hp.WLatch()
	if root, ok := header.GetRootID(name); ok {
		t.rootPageID = root
		hp.WUnlatch()
		t.bpm.UnpinPage(page.HeaderPageID, false)
	} else {
		header.InsertRecord(name, page.InvalidID)
		hp.WUnlatch()
		t.bpm.UnpinPage(page.HeaderPageID, true)
	}
	return t, nil
}

// fetchHeaderPage pins page 0, allocating it on a brand new store.
func (t *BPlusTree) fetchHeaderPage() (*page.Page, error) {
	if hp, err := t.bpm.FetchPage(page.HeaderPageID); err == nil {
		return hp, nil
	}
	hp, err := t.bpm.NewPage()
	if err != nil {
		return nil, err
	}
	if hp.ID() != page.HeaderPageID {
		// The store was created without its header page; nothing we can do.
		t.bpm.UnpinPage(hp.ID(), false)
		return nil, ErrNoHeaderPage
	}
	return hp, nil
}

// Name returns the index name used for header page registration.
func (t *BPlusTree) Name() string {
	return t.name
}

// IsEmpty reports whether the tree holds no entries.
func (t *BPlusTree) IsEmpty() bool {
	t.rootLatch.RLock()
	defer t.rootLatch.RUnlock()
	return t.rootPageID == page.InvalidID
}

// lockRoot acquires the root latch in the mode the operation needs.
func (t *BPlusTree) lockRoot(ctx *opContext) {
	if ctx.op == opRead {
		t.rootLatch.RLock()
	} else {
		t.rootLatch.Lock()
	}
	ctx.rootLatched = true
}

// tryUnlockRoot releases the root latch if this operation still holds it.
func (t *BPlusTree) tryUnlockRoot(ctx *opContext) {
	if !ctx.rootLatched {
		return
	}
	if ctx.op == opRead {
		t.rootLatch.RUnlock()
	} else {
		t.rootLatch.Unlock()
	}
	ctx.rootLatched = false
}

// freeAll releases the root latch and every page the context latched, in
// acquisition order, then deletes the pages scheduled for deletion.
func (t *BPlusTree) freeAll(ctx *opContext) {
	t.tryUnlockRoot(ctx)
	isWrite := ctx.op != opRead
	deleted := ctx.deleted()
	for _, p := range ctx.pages() {
		id := p.ID()
		if isWrite {
			p.WUnlatch()
		} else {
			p.RUnlatch()
		}
		t.bpm.UnpinPage(id, isWrite)
		if deleted != nil {
			if _, ok := deleted[id]; ok {
				if err := t.bpm.DeletePage(id); err != nil {
					t.log.Warn("Failed to delete emptied index page", "page_id", id, "error", err)
				}
				delete(deleted, id)
			}
		}
	}
	ctx.clearPages()
}

// crabFetch pins and latches a node. When the node proves safe for the
// pending operation (or the descent is a read), every ancestor latch held
// by the context is released before the node is recorded.
func (t *BPlusTree) crabFetch(id page.ID, hasAncestors bool, ctx *opContext) (*page.Page, error) {
	p, err := t.bpm.FetchPage(id)
	if err != nil {
		t.freeAll(ctx)
		return nil, err
	}
	if ctx.op == opRead {
		p.RLatch()
	} else {
		p.WLatch()
	}
	if hasAncestors && (ctx.op == opRead || (treePage{p}).isSafe(ctx.op)) {
		t.freeAll(ctx)
	}
	ctx.addPage(p)
	return p, nil
}

// findLeaf descends to the leaf responsible for key (or the leftmost
// leaf), latching per the crabbing protocol. The returned leaf is pinned
// and latched and recorded in the context. ok is false when the tree is
// empty; the root latch has then been released.
func (t *BPlusTree) findLeaf(key Key, leftMost bool, ctx *opContext) (LeafNode, bool, error) {
	t.lockRoot(ctx)
	if t.rootPageID == page.InvalidID {
		t.tryUnlockRoot(ctx)
		return LeafNode{}, false, nil
	}

	p, err := t.crabFetch(t.rootPageID, false, ctx)
	if err != nil {
		return LeafNode{}, false, err
	}
	for !(treePage{p}).IsLeaf() {
		node := asInternal(p)
		var next page.ID
		if leftMost {
			next = node.ValueAt(0)
		} else {
			next = node.Lookup(key, t.cmp)
		}
		p, err = t.crabFetch(next, true, ctx)
		if err != nil {
			return LeafNode{}, false, err
		}
	}
	return asLeaf(p), true, nil
}

// GetValue performs a point lookup. The result slice holds the matching
// RID, or is empty when the key is absent.
func (t *BPlusTree) GetValue(key Key, txn *concurrency.Transaction) ([]page.RID, error) {
	ctx := &opContext{op: opRead, txn: txn}
	leaf, ok, err := t.findLeaf(key, false, ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	rid, found := leaf.Lookup(key, t.cmp)
	t.freeAll(ctx)
	if !found {
		return nil, nil
	}
	return []page.RID{rid}, nil
}

// Insert adds a (key, RID) pair. Duplicate keys return false without
// modifying the tree.
func (t *BPlusTree) Insert(key Key, rid page.RID, txn *concurrency.Transaction) (bool, error) {
	ctx := &opContext{op: opInsert, txn: txn}

	t.lockRoot(ctx)
	if t.rootPageID == page.InvalidID {
		err := t.startNewTree(key, rid)
		t.tryUnlockRoot(ctx)
		if err == nil {
			t.stats.IndexInserts.Add(1)
		}
		return err == nil, err
	}
	t.tryUnlockRoot(ctx)
	return t.insertIntoLeaf(key, rid, ctx)
}

// startNewTree creates a single-leaf tree holding the first entry.
// Caller holds the root latch exclusively.
func (t *BPlusTree) startNewTree(key Key, rid page.RID) error {
	p, err := t.bpm.NewPage()
	if err != nil {
		return err
	}
	leaf := initLeaf(p, p.ID(), page.InvalidID, t.leafMaxSize)
	leaf.Insert(key, rid, t.cmp)
	t.rootPageID = p.ID()
	t.updateRootPageID()
	t.bpm.UnpinPage(p.ID(), true)
	return nil
}

// insertIntoLeaf descends with insert crabbing and places the entry,
// splitting up the tree as needed.
func (t *BPlusTree) insertIntoLeaf(key Key, rid page.RID, ctx *opContext) (bool, error) {
	leaf, ok, err := t.findLeaf(key, false, ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		// The tree emptied between the root check and the descent; retry
		// through the empty-tree path.
		return t.Insert(key, rid, ctx.txn)
	}

	if _, exists := leaf.Lookup(key, t.cmp); exists {
		t.freeAll(ctx)
		return false, nil
	}

	size := leaf.Insert(key, rid, t.cmp)
	if size == t.leafMaxSize {
		sibling, err := t.splitLeaf(leaf, ctx)
		if err != nil {
			return false, err
		}
		if err := t.insertIntoParent(leaf.treePage, sibling.KeyAt(0), sibling.treePage, ctx); err != nil {
			return false, err
		}
	}
	t.freeAll(ctx)
	t.stats.IndexInserts.Add(1)
	return true, nil
}

// splitLeaf allocates a right sibling and moves the upper half into it.
// The sibling is write-latched and joins the operation's page set.
func (t *BPlusTree) splitLeaf(leaf LeafNode, ctx *opContext) (LeafNode, error) {
	p, err := t.bpm.NewPage()
	if err != nil {
		t.freeAll(ctx)
		return LeafNode{}, err
	}
	p.WLatch()
	ctx.addPage(p)
	sibling := initLeaf(p, p.ID(), leaf.ParentPageID(), t.leafMaxSize)
	leaf.MoveHalfTo(sibling)
	t.stats.IndexSplits.Add(1)
	return sibling, nil
}

// splitInternal allocates a right sibling for an overflowing internal
// node and moves the upper half into it, re-parenting the moved children.
func (t *BPlusTree) splitInternal(node InternalNode, ctx *opContext) (InternalNode, error) {
	p, err := t.bpm.NewPage()
	if err != nil {
		t.freeAll(ctx)
		return InternalNode{}, err
	}
	p.WLatch()
	ctx.addPage(p)
	sibling := initInternal(p, p.ID(), node.ParentPageID(), t.internalMaxSize)
	node.MoveHalfTo(sibling, t.adoptChild)
	t.stats.IndexSplits.Add(1)
	return sibling, nil
}

// adoptChild rewrites a moved child's parent back-reference.
func (t *BPlusTree) adoptChild(child page.ID, parent page.ID) {
	cp, err := t.bpm.FetchPage(child)
	if err != nil {
		t.log.Error("Failed to re-parent child page", "page_id", child, "error", err)
		return
	}
	(treePage{cp}).SetParentPageID(parent)
	t.bpm.UnpinPage(child, true)
}

// insertIntoParent inserts the separator for a freshly split pair,
// recursing when the parent overflows in turn. When the split node was
// the root a new root is allocated above the pair.
func (t *BPlusTree) insertIntoParent(old treePage, key Key, newNode treePage, ctx *opContext) error {
	if old.IsRoot() {
		p, err := t.bpm.NewPage()
		if err != nil {
			t.freeAll(ctx)
			return err
		}
		root := initInternal(p, p.ID(), page.InvalidID, t.internalMaxSize)
		root.PopulateNewRoot(old.PageID(), key, newNode.PageID())
		old.SetParentPageID(p.ID())
		newNode.SetParentPageID(p.ID())
		t.rootPageID = p.ID()
		t.updateRootPageID()
		t.bpm.UnpinPage(p.ID(), true)
		return nil
	}

	parentID := old.ParentPageID()
	pp, err := t.bpm.FetchPage(parentID)
	if err != nil {
		t.freeAll(ctx)
		return err
	}
	parent := asInternal(pp)
	newNode.SetParentPageID(parentID)
	parent.InsertNodeAfter(old.PageID(), key, newNode.PageID())
	if parent.Size() == parent.MaxSize() {
		sibling, err := t.splitInternal(parent, ctx)
		if err != nil {
			t.bpm.UnpinPage(parentID, true)
			return err
		}
		if err := t.insertIntoParent(parent.treePage, sibling.KeyAt(0), sibling.treePage, ctx); err != nil {
			t.bpm.UnpinPage(parentID, true)
			return err
		}
	}
	t.bpm.UnpinPage(parentID, true)
	return nil
}

// Remove deletes the entry for key if present, rebalancing up the tree as
// needed.
func (t *BPlusTree) Remove(key Key, txn *concurrency.Transaction) error {
	ctx := &opContext{op: opDelete, txn: txn}
	leaf, ok, err := t.findLeaf(key, false, ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	before := leaf.Size()
	size := leaf.RemoveAndDeleteRecord(key, t.cmp)
	if size < before {
		t.stats.IndexDeletes.Add(1)
	}
	if size < leaf.MinSize() {
		if _, err := t.coalesceOrRedistribute(leaf.raw(), ctx); err != nil {
			return err
		}
	}
	t.freeAll(ctx)
	return nil
}

// coalesceOrRedistribute restores the minimum-size invariant for an
// underflowing node: the root is adjusted specially, otherwise the node
// merges with or borrows from an immediate sibling. Returns whether the
// input node was scheduled for deletion.
func (t *BPlusTree) coalesceOrRedistribute(p *page.Page, ctx *opContext) (bool, error) {
	node := treePage{p}
	if node.IsRoot() {
		deleted := t.adjustRoot(p)
		if deleted {
			ctx.addDeleted(node.PageID())
		}
		return deleted, nil
	}

	parentID := node.ParentPageID()
	pp, err := t.bpm.FetchPage(parentID)
	if err != nil {
		t.freeAll(ctx)
		return false, err
	}
	parent := asInternal(pp)
	idx := parent.ValueIndex(node.PageID())

	// Prefer the preceding sibling; the node at parent index 0 pairs with
	// its follower instead.
	siblingIsNext := idx == 0
	sibIdx := idx - 1
	if siblingIsNext {
		sibIdx = idx + 1
	}
	sp, err := t.crabFetchSibling(parent.ValueAt(sibIdx), ctx)
	if err != nil {
		t.bpm.UnpinPage(parentID, false)
		return false, err
	}
	sibling := treePage{sp}

	if node.Size()+sibling.Size() < node.MaxSize() {
		// Coalesce: the merged content lives in the preceding node, the
		// following node is dropped.
		left, right, rightIdx := sp, p, idx
		if siblingIsNext {
			left, right, rightIdx = p, sp, sibIdx
		}
		if err := t.coalesce(left, right, parent, rightIdx, ctx); err != nil {
			t.bpm.UnpinPage(parentID, true)
			return false, err
		}
		t.bpm.UnpinPage(parentID, true)
		return !siblingIsNext, nil
	}

	t.redistribute(sp, p, parent, idx, sibIdx, siblingIsNext)
	t.bpm.UnpinPage(parentID, true)
	return false, nil
}

// crabFetchSibling latches a sibling for the rebalance and records it in
// the operation's page set; unlike a descent fetch it never releases
// ancestors.
func (t *BPlusTree) crabFetchSibling(id page.ID, ctx *opContext) (*page.Page, error) {
	p, err := t.bpm.FetchPage(id)
	if err != nil {
		t.freeAll(ctx)
		return nil, err
	}
	p.WLatch()
	ctx.addPage(p)
	return p, nil
}

// coalesce merges right into left, removes the separator at rightIdx from
// the parent, and recurses when the parent underflows in turn.
func (t *BPlusTree) coalesce(left, right *page.Page, parent InternalNode, rightIdx int, ctx *opContext) error {
	middleKey := parent.KeyAt(rightIdx)
	if (treePage{right}).IsLeaf() {
		asLeaf(right).MoveAllTo(asLeaf(left))
	} else {
		asInternal(right).MoveAllTo(asInternal(left), middleKey, t.adoptChild)
	}
	ctx.addDeleted((treePage{right}).PageID())
	parent.Remove(rightIdx)
	t.stats.IndexCoalesces.Add(1)

	if parent.Size() < parent.MinSize() {
		_, err := t.coalesceOrRedistribute(parent.raw(), ctx)
		return err
	}
	return nil
}

// redistribute moves one entry between node and sibling and refreshes the
// parent separator so ordering holds.
func (t *BPlusTree) redistribute(sp, np *page.Page, parent InternalNode, idx, sibIdx int, siblingIsNext bool) {
	if siblingIsNext {
		// Sibling is the right neighbor: its first entry moves to node's tail.
		middleKey := parent.KeyAt(sibIdx)
		if (treePage{sp}).IsLeaf() {
			asLeaf(sp).MoveFirstToEndOf(asLeaf(np))
			parent.SetKeyAt(sibIdx, asLeaf(sp).KeyAt(0))
		} else {
			up := asInternal(sp).MoveFirstToEndOf(asInternal(np), middleKey, t.adoptChild)
			parent.SetKeyAt(sibIdx, up)
		}
	} else {
		// Sibling is the left neighbor: its last entry moves to node's head.
		middleKey := parent.KeyAt(idx)
		if (treePage{sp}).IsLeaf() {
			asLeaf(sp).MoveLastToFrontOf(asLeaf(np))
			parent.SetKeyAt(idx, asLeaf(np).KeyAt(0))
		} else {
			up := asInternal(sp).MoveLastToFrontOf(asInternal(np), middleKey, t.adoptChild)
			parent.SetKeyAt(idx, up)
		}
	}
}

// adjustRoot handles underflow at the root: an internal root left with a
// single child promotes that child; an emptied leaf root unsets the root
// page id. Returns whether the old root page should be deleted.
func (t *BPlusTree) adjustRoot(p *page.Page) bool {
	node := treePage{p}
	if node.IsLeaf() {
		if node.Size() > 0 {
			return false
		}
		t.rootPageID = page.InvalidID
		t.updateRootPageID()
		return true
	}
	if node.Size() == 1 {
		child := asInternal(p).RemoveAndReturnOnlyChild()
		t.rootPageID = child
		t.updateRootPageID()
		cp, err := t.bpm.FetchPage(child)
		if err != nil {
			t.log.Error("Failed to promote new root", "page_id", child, "error", err)
			return true
		}
		(treePage{cp}).SetParentPageID(page.InvalidID)
		t.bpm.UnpinPage(child, true)
		return true
	}
	return false
}

// updateRootPageID registers the current root page id with the header
// page. Called whenever rootPageID changes.
func (t *BPlusTree) updateRootPageID() {
	hp, err := t.bpm.FetchPage(page.HeaderPageID)
	if err != nil {
		t.log.Error("Failed to pin header page", "error", err)
		return
	}
	header := page.AsHeaderPage(hp)
	hp.WLatch()
	if !header.UpdateRecord(t.name, t.rootPageID) {
		header.InsertRecord(t.name, t.rootPageID)
	}
	hp.WUnlatch()
	t.bpm.UnpinPage(page.HeaderPageID, true)
}
