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

import "fmt"

// RID identifies a tuple by the page it lives on and its slot within that
// page. RIDs are the leaf-value type of primary indexes and the key of
// row-level locks.
type RID struct {
	PageID ID
	Slot   uint32
}

// InvalidRID is the zero-value-adjacent sentinel for an unset RID.
var InvalidRID = RID{PageID: InvalidID}

// String renders the RID as "page:slot".
func (r RID) String() string {
	return fmt.Sprintf("%d:%d", r.PageID, r.Slot)
}
