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
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderPageRecords(t *testing.T) {
	h := AsHeaderPage(NewPage())

	assert.Equal(t, 0, h.RecordCount())
	_, ok := h.GetRootID("missing")
	assert.False(t, ok)

	require.True(t, h.InsertRecord("orders_pk", 7))
	require.True(t, h.InsertRecord("users_pk", 12))
	assert.Equal(t, 2, h.RecordCount())

	root, ok := h.GetRootID("orders_pk")
	require.True(t, ok)
	assert.Equal(t, ID(7), root)

	// Duplicate names are rejected.
	assert.False(t, h.InsertRecord("orders_pk", 9))

	require.True(t, h.UpdateRecord("orders_pk", 21))
	root, _ = h.GetRootID("orders_pk")
	assert.Equal(t, ID(21), root)
	assert.False(t, h.UpdateRecord("missing", 1))

	require.True(t, h.DeleteRecord("orders_pk"))
	assert.Equal(t, 1, h.RecordCount())
	_, ok = h.GetRootID("orders_pk")
	assert.False(t, ok)
	root, ok = h.GetRootID("users_pk")
	require.True(t, ok)
	assert.Equal(t, ID(12), root)

	assert.False(t, h.DeleteRecord("orders_pk"))
}

func TestHeaderPageLimits(t *testing.T) {
	h := AsHeaderPage(NewPage())

	assert.False(t, h.InsertRecord("", 1))
	assert.False(t, h.InsertRecord("this-name-is-way-too-long-for-a-header-record", 1))

	for i := 0; i < MaxHeaderRecords; i++ {
		require.True(t, h.InsertRecord(fmt.Sprintf("idx_%d", i), ID(i)))
	}
	assert.False(t, h.InsertRecord("one_too_many", 1))
}
