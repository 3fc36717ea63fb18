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

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/nex-archival/nexharvest/internal/nexerr"
	"github.com/nex-archival/nexharvest/internal/nexrpc"
	"github.com/nex-archival/nexharvest/internal/retry"
)

// FirstDataIDFloor is the conservative clamp applied when the discovered
// first id is missing or implausibly high (spec §4.5 step 2).
const FirstDataIDFloor = 900_000

// SamplingLateCap bounds the swept range in sampling mode (spec §4.5 step 4).
const SamplingLateCap = 200_000

// earliestSearchCreatedAfter matches the original's 2012-01-01 floor
// (spec §4.5 step 1/3): the NEX DataStore service did not exist before
// this date for any catalog title.
var earliestSearchCreatedAfter = time.Date(2012, time.January, 1, 0, 0, 0, 0, time.UTC)

// monthStep is the backward-walk decrement used in step 3.
const monthStep = 30 * 24 * time.Hour

// Range is the [First, Late] interval the Metadata Scanner must sweep.
type Range struct {
	First uint64
	Late  uint64
}

// Find discovers (first_data_id, late_data_id) for a title (spec §4.5).
// resumeMax is the prior run's max persisted data_id for this title, if any
// (step 5's idempotent-resume raise); sampling selects the capped-range
// variant (step 4). now is injected so the backward walk is deterministic
// in tests.
func Find(ctx context.Context, w *retry.Wrapper, logger log.Logger, resumeMax uint64, hasResumeMax bool, sampling bool, now time.Time) (Range, bool, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	var first uint64
	haveFirst := false

	err := w.Do(ctx, func(ctx context.Context, s nexrpc.Session) error {
		results, err := s.SearchObject(ctx, nexrpc.SearchObjectParam{Count: 1})
		if err != nil {
			return err
		}
		if len(results) > 0 {
			first = results[0].DataID
			haveFirst = true
		}
		return nil
	})
	if err != nil && !nexerr.IsApplicationErr(err) {
		return Range{}, false, err
	}

	if !haveFirst {
		err := w.Do(ctx, func(ctx context.Context, s nexrpc.Session) error {
			results, err := s.SearchObject(ctx, nexrpc.SearchObjectParam{
				Count:        1,
				CreatedAfter: earliestSearchCreatedAfter,
			})
			if err != nil {
				return err
			}
			if len(results) > 0 {
				first = results[0].DataID
				haveFirst = true
			}
			return nil
		})
		if err != nil && !nexerr.IsApplicationErr(err) {
			return Range{}, false, err
		}
	}

	if !haveFirst {
		level.Info(logger).Log("msg", "range finder gave up, no live objects found")
		return Range{}, false, nil
	}

	if first > FirstDataIDFloor {
		first = FirstDataIDFloor
	}

	// Step 3: walk backward in monthStep decrements until a hit or the
	// 2012-01-01 floor.
	var late uint64
	haveLate := false
	t := now
	for t.After(earliestSearchCreatedAfter) {
		var hit uint64
		var found bool
		err := w.Do(ctx, func(ctx context.Context, s nexrpc.Session) error {
			results, err := s.SearchObject(ctx, nexrpc.SearchObjectParam{Count: 1, CreatedAfter: t})
			if err != nil {
				return err
			}
			if len(results) > 0 {
				hit = results[0].DataID
				found = true
			}
			return nil
		})
		if err != nil && !nexerr.IsApplicationErr(err) {
			return Range{}, false, err
		}
		if found {
			late = hit
			haveLate = true
			break
		}
		t = t.Add(-monthStep)
	}
	if !haveLate {
		// No hit anywhere back to the floor: fall back to first itself.
		late = first
	}

	if sampling && late > first+SamplingLateCap {
		late = first + SamplingLateCap
	}

	if hasResumeMax && resumeMax > first {
		first = resumeMax
	}

	return Range{First: first, Late: late}, true, nil
}
