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

package concurrency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestdb/internal/errors"
	"nestdb/internal/storage/page"
)

func newLockFixture(interval time.Duration) (*LockManager, *TransactionManager) {
	lm := NewLockManager(interval)
	tm := NewTransactionManager(lm)
	return lm, tm
}

func rid(n int) page.RID {
	return page.RID{PageID: page.ID(n), Slot: 0}
}

func TestSharedLocksCoexist(t *testing.T) {
	lm, tm := newLockFixture(0)
	t1 := tm.Begin(RepeatableRead)
	t2 := tm.Begin(RepeatableRead)

	require.NoError(t, lm.LockShared(t1, rid(1)))
	require.NoError(t, lm.LockShared(t2, rid(1)))
	assert.True(t, t1.IsSharedLocked(rid(1)))
	assert.True(t, t2.IsSharedLocked(rid(1)))

	// Re-locking an already held rid succeeds without a second request.
	require.NoError(t, lm.LockShared(t1, rid(1)))
}

func TestExclusiveWaitsForAllSharedHolders(t *testing.T) {
	lm, tm := newLockFixture(0)
	t1 := tm.Begin(RepeatableRead)
	t2 := tm.Begin(RepeatableRead)
	t3 := tm.Begin(RepeatableRead)

	require.NoError(t, lm.LockShared(t1, rid(1)))
	require.NoError(t, lm.LockShared(t2, rid(1)))

	granted := make(chan error, 1)
	go func() { granted <- lm.LockExclusive(t3, rid(1)) }()

	// T3 must stay blocked while any shared holder remains.
	select {
	case <-granted:
		t.Fatal("exclusive lock granted alongside shared holders")
	case <-time.After(50 * time.Millisecond):
	}

	require.True(t, lm.Unlock(t1, rid(1)))
	select {
	case <-granted:
		t.Fatal("exclusive lock granted while one shared holder remains")
	case <-time.After(50 * time.Millisecond):
	}

	require.True(t, lm.Unlock(t2, rid(1)))
	select {
	case err := <-granted:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("exclusive lock never granted after all holders released")
	}
	assert.True(t, t3.IsExclusiveLocked(rid(1)))
}

func TestNoConflictingHoldersEver(t *testing.T) {
	lm, tm := newLockFixture(0)
	t1 := tm.Begin(RepeatableRead)
	t2 := tm.Begin(RepeatableRead)

	require.NoError(t, lm.LockExclusive(t1, rid(5)))

	granted := make(chan error, 1)
	go func() { granted <- lm.LockShared(t2, rid(5)) }()

	select {
	case <-granted:
		t.Fatal("shared lock granted while exclusive is held")
	case <-time.After(50 * time.Millisecond):
	}

	require.True(t, lm.Unlock(t1, rid(5)))
	require.NoError(t, <-granted)
}

func TestSharedOnReadUncommittedAborts(t *testing.T) {
	lm, tm := newLockFixture(0)
	txn := tm.Begin(ReadUncommitted)

	err := lm.LockShared(txn, rid(1))
	require.Error(t, err)
	abort, ok := errors.IsTransactionAbort(err)
	require.True(t, ok)
	assert.Equal(t, errors.AbortSharedOnReadUncommitted, abort.Reason)
	assert.Equal(t, Aborted, txn.State())
}

func TestLockOnShrinkingAborts(t *testing.T) {
	lm, tm := newLockFixture(0)
	txn := tm.Begin(RepeatableRead)

	require.NoError(t, lm.LockShared(txn, rid(1)))
	require.True(t, lm.Unlock(txn, rid(1)))
	assert.Equal(t, Shrinking, txn.State())

	err := lm.LockShared(txn, rid(2))
	require.Error(t, err)
	abort, ok := errors.IsTransactionAbort(err)
	require.True(t, ok)
	assert.Equal(t, errors.AbortLockOnShrinking, abort.Reason)
}

func TestReadCommittedUnlockDoesNotShrink(t *testing.T) {
	lm, tm := newLockFixture(0)
	txn := tm.Begin(ReadCommitted)

	require.NoError(t, lm.LockShared(txn, rid(1)))
	require.True(t, lm.Unlock(txn, rid(1)))
	assert.Equal(t, Growing, txn.State())

	// Read committed may lock again after unlocking.
	require.NoError(t, lm.LockShared(txn, rid(2)))
}

func TestLockUpgrade(t *testing.T) {
	lm, tm := newLockFixture(0)
	t1 := tm.Begin(RepeatableRead)

	require.NoError(t, lm.LockShared(t1, rid(1)))
	require.NoError(t, lm.LockUpgrade(t1, rid(1)))
	assert.False(t, t1.IsSharedLocked(rid(1)))
	assert.True(t, t1.IsExclusiveLocked(rid(1)))

	// Upgrading an already exclusive lock is a no-op success.
	require.NoError(t, lm.LockUpgrade(t1, rid(1)))
}

func TestUpgradeConflict(t *testing.T) {
	lm, tm := newLockFixture(0)
	t1 := tm.Begin(RepeatableRead)
	t2 := tm.Begin(RepeatableRead)

	require.NoError(t, lm.LockShared(t1, rid(1)))
	require.NoError(t, lm.LockShared(t2, rid(1)))

	// T1's upgrade waits for T2's shared lock to go away.
	firstUpgrade := make(chan error, 1)
	go func() { firstUpgrade <- lm.LockUpgrade(t1, rid(1)) }()

	// Give the first upgrade time to set the upgrading flag.
	time.Sleep(50 * time.Millisecond)

	// The second upgrade must fail immediately.
	err := lm.LockUpgrade(t2, rid(1))
	require.Error(t, err)
	abort, ok := errors.IsTransactionAbort(err)
	require.True(t, ok)
	assert.Equal(t, errors.AbortUpgradeConflict, abort.Reason)
	assert.Equal(t, Aborted, t2.State())

	// Aborting T2 releases its shared lock, unblocking T1's upgrade.
	tm.Abort(t2)
	select {
	case err := <-firstUpgrade:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("upgrade never completed after conflicting holder aborted")
	}
	assert.True(t, t1.IsExclusiveLocked(rid(1)))
}

func TestDeadlockDetectionAbortsYoungest(t *testing.T) {
	lm, tm := newLockFixture(20 * time.Millisecond)
	lm.StartDeadlockDetection()
	defer lm.StopDeadlockDetection()

	t1 := tm.Begin(RepeatableRead)
	t2 := tm.Begin(RepeatableRead)

	require.NoError(t, lm.LockExclusive(t1, rid(1)))
	require.NoError(t, lm.LockExclusive(t2, rid(2)))

	t2Result := make(chan error, 1)
	go func() { t2Result <- lm.LockExclusive(t2, rid(1)) }()
	time.Sleep(20 * time.Millisecond)

	t1Result := make(chan error, 1)
	go func() { t1Result <- lm.LockExclusive(t1, rid(2)) }()

	// The cycle T1→T2→T1 must be broken by aborting T2 (the younger).
	select {
	case err := <-t2Result:
		require.Error(t, err)
		abort, ok := errors.IsTransactionAbort(err)
		require.True(t, ok)
		assert.Equal(t, errors.AbortDeadlock, abort.Reason)
		assert.Equal(t, Aborted, t2.State())
	case <-time.After(2 * time.Second):
		t.Fatal("deadlock never detected")
	}

	// Releasing the victim's locks lets T1 finish.
	tm.Abort(t2)
	select {
	case err := <-t1Result:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("survivor never acquired the lock")
	}
	assert.Equal(t, Growing, t1.State())
}

func TestWaitForGraphEdges(t *testing.T) {
	lm, _ := newLockFixture(0)

	lm.AddEdge(1, 2)
	lm.AddEdge(1, 2) // duplicate is a no-op
	lm.AddEdge(0, 2)
	lm.AddEdge(2, 0)

	edges := lm.GetEdgeList()
	assert.Equal(t, [][2]TxnID{{0, 2}, {1, 2}, {2, 0}}, edges)

	lm.RemoveEdge(1, 2)
	edges = lm.GetEdgeList()
	assert.Equal(t, [][2]TxnID{{0, 2}, {2, 0}}, edges)
}

func TestHasCycleFindsYoungest(t *testing.T) {
	lm, _ := newLockFixture(0)

	// No cycle in a chain.
	lm.AddEdge(0, 1)
	lm.AddEdge(1, 2)
	_, found := lm.HasCycle()
	assert.False(t, found)

	// Close the loop: 0 → 1 → 2 → 0; victim is the max id on the cycle.
	lm.AddEdge(2, 0)
	victim, found := lm.HasCycle()
	require.True(t, found)
	assert.Equal(t, TxnID(2), victim)

	lm.RemoveEdge(2, 0)
	_, found = lm.HasCycle()
	assert.False(t, found)
}

func TestHasCycleDisjointGraphs(t *testing.T) {
	lm, _ := newLockFixture(0)

	lm.AddEdge(0, 1)
	lm.AddEdge(5, 6)
	lm.AddEdge(6, 5)

	victim, found := lm.HasCycle()
	require.True(t, found)
	assert.Equal(t, TxnID(6), victim)
}
