// Copyright 2026 The Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//     http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package datastore

import "sort"

// Gap is one contiguous stretch of data_ids in [First, Late] with no
// persisted datastore_meta row.
type Gap struct {
	Start, End uint64
}

// VerifyCoverage cross-checks persisted data_ids against a swept range,
// reporting gaps without writing anything — a post-scan diagnostic run
// after the Metadata Scanner completes, consistent with the harvester
// being a read-only, non-deduplicating crawler (spec §1 Non-goals).
func VerifyCoverage(rng Range, persistedIDs []uint64) []Gap {
	seen := make(map[uint64]struct{}, len(persistedIDs))
	for _, id := range persistedIDs {
		seen[id] = struct{}{}
	}

	var gaps []Gap
	var cur *Gap
	for id := rng.First; id <= rng.Late; id++ {
		if _, ok := seen[id]; ok {
			if cur != nil {
				gaps = append(gaps, *cur)
				cur = nil
			}
			continue
		}
		if cur == nil {
			cur = &Gap{Start: id, End: id}
		} else {
			cur.End = id
		}
	}
	if cur != nil {
		gaps = append(gaps, *cur)
	}

	sort.Slice(gaps, func(i, j int) bool { return gaps[i].Start < gaps[j].Start })
	return gaps
}
