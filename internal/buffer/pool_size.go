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
	"runtime"

	"nestdb/internal/storage/page"
)

// CalculateOptimalPoolSize determines a buffer pool size from the memory
// the Go runtime has obtained from the OS (runtime.MemStats.Sys): a
// quarter of it, bounded to keep small machines usable and big ones from
// dedicating everything to the cache.
func CalculateOptimalPoolSize() int {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	availableBytes := memStats.Sys
	if availableBytes == 0 {
		availableBytes = 1 << 30 // assume 1GB if the runtime reports nothing
	}
	targetBytes := availableBytes / 4
	pages := int(targetBytes / page.Size)

	const minPages = 512  // 2MB
	const maxPages = 262144 // 1GB

	if pages < minPages {
		pages = minPages
	}
	if pages > maxPages {
		pages = maxPages
	}
	return pages
}
