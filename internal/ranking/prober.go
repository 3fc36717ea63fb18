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

// Package ranking implements the Category Prober (spec §4.2) and the
// Ranking Harvester state machine (spec §4.3).
package ranking

import (
	"context"
	"sort"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/time/rate"

	"github.com/nex-archival/nexharvest/internal/nexerr"
	"github.com/nex-archival/nexharvest/internal/nexrpc"
	"github.com/nex-archival/nexharvest/internal/retry"
)

// ProbeRange is the fixed small-integer sweep spec §4.2 names.
const (
	ProbeRangeStart = 0
	ProbeRangeEnd   = 1000 // exclusive
)

// ProbeProgress is called periodically during Probe with the number of
// category ids tested so far, mirroring the original's print_categories
// progress reporting (SPEC_FULL.md "supplemented features").
type ProbeProgress func(tested int)

// Prober probes candidate category ids to find a title's non-empty set.
type Prober struct {
	Wrapper *retry.Wrapper
	Logger  log.Logger
	// Limiter paces probe calls so a title's server is never hammered faster
	// than a configured rate; nil disables pacing.
	Limiter *rate.Limiter
}

// Probe iterates [ProbeRangeStart, ProbeRangeEnd) invoking
// get_ranking(mode=GLOBAL, category, offset=0, count=1); any non-error
// response adds that category to the returned set. extra is merged in
// unconditionally (spec §4.2's hard-coded 63-entry seed list, loaded as
// catalog sidecar data rather than code).
func (p *Prober) Probe(ctx context.Context, extra []uint32, progress ProbeProgress) ([]uint32, error) {
	logger := p.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	found := map[uint32]struct{}{}
	for _, c := range extra {
		found[c] = struct{}{}
	}

	for category := ProbeRangeStart; category < ProbeRangeEnd; category++ {
		if p.Limiter != nil {
			if err := p.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		cat := uint32(category)
		err := p.Wrapper.Do(ctx, func(ctx context.Context, s nexrpc.Session) error {
			_, err := s.GetRanking(ctx, nexrpc.ModeGlobal, cat,
				nexrpc.RankingOrderParam{Offset: 0, Count: 1}, nexrpc.RankingTarget{})
			return err
		})
		if err == nil {
			found[cat] = struct{}{}
		} else if !nexerr.IsApplicationErr(err) {
			// Structural/unexpected error probing this one category: log and
			// continue the sweep (spec §7.4).
			level.Warn(logger).Log("msg", "category probe failed unexpectedly", "category", cat, "err", err)
		}

		if progress != nil && (category+1)%100 == 0 {
			progress(category + 1)
		}
	}

	out := make([]uint32, 0, len(found))
	for c := range found {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
