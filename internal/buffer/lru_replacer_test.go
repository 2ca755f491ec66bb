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

package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUReplacerVictimOrder(t *testing.T) {
	r := NewLRUReplacer(7)

	for i := 1; i <= 6; i++ {
		r.Unpin(FrameID(i))
	}
	assert.Equal(t, 6, r.Size())

	r.Pin(4)
	assert.Equal(t, 5, r.Size())
	r.Unpin(4)
	assert.Equal(t, 6, r.Size())

	want := []FrameID{1, 2, 3, 5, 6, 4}
	for _, expect := range want {
		frame, ok := r.Victim()
		require.True(t, ok)
		assert.Equal(t, expect, frame)
	}

	_, ok := r.Victim()
	assert.False(t, ok, "empty replacer must not produce a victim")
	assert.Equal(t, 0, r.Size())
}

func TestLRUReplacerUnpinIsIdempotent(t *testing.T) {
	r := NewLRUReplacer(3)
	r.Unpin(1)
	r.Unpin(1)
	r.Unpin(1)
	assert.Equal(t, 1, r.Size())

	frame, ok := r.Victim()
	require.True(t, ok)
	assert.Equal(t, FrameID(1), frame)
	_, ok = r.Victim()
	assert.False(t, ok)
}

func TestLRUReplacerPinUntracked(t *testing.T) {
	r := NewLRUReplacer(3)
	r.Pin(9) // not tracked; must be a no-op
	assert.Equal(t, 0, r.Size())
}

func TestLRUReplacerCapacityOverflow(t *testing.T) {
	r := NewLRUReplacer(2)
	r.Unpin(1)
	r.Unpin(2)
	// Exceeding capacity evicts the current LRU (frame 1) first.
	r.Unpin(3)
	assert.Equal(t, 2, r.Size())

	frame, ok := r.Victim()
	require.True(t, ok)
	assert.Equal(t, FrameID(2), frame)
	frame, ok = r.Victim()
	require.True(t, ok)
	assert.Equal(t, FrameID(3), frame)
}
