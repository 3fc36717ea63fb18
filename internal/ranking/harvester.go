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

package ranking

import (
	"context"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/nex-archival/nexharvest/internal/nexrpc"
	"github.com/nex-archival/nexharvest/internal/retry"
)

// OffsetPageSize is the per-call count used in state S2 (spec §4.3).
const OffsetPageSize = 255

var rankingEntriesPersisted = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "nexharvest_ranking_entries_persisted_total",
	Help: "Number of ranking entries written per (game, category).",
}, []string{"game", "category"})

func init() {
	prometheus.MustRegister(rankingEntriesPersisted)
}

// Sink is the narrow persistence contract the harvester writes through
// (spec §4.9); implemented by *store.RankingStore.
type Sink interface {
	CountRows(ctx context.Context, game string, category uint32) (int64, error)
	HighestWatermark(ctx context.Context, game string, category uint32) (rank int64, uniqueID uint64, principalID string, ok bool, err error)
	InsertEntries(ctx context.Context, game string, category uint32, entries []nexrpc.RankingEntry) error
}

// SinkFunc lets *store.RankingStore (whose HighestWatermark returns a
// store.Watermark struct) satisfy Sink without this package importing store,
// which would create a dependency from the core engine onto its own
// persistence implementation. Callers pass an adapter built from closures;
// see coordinator for the concrete wiring.
type SinkFunc struct {
	CountRowsFn        func(ctx context.Context, game string, category uint32) (int64, error)
	HighestWatermarkFn func(ctx context.Context, game string, category uint32) (int64, uint64, string, bool, error)
	InsertEntriesFn    func(ctx context.Context, game string, category uint32, entries []nexrpc.RankingEntry) error
}

func (f SinkFunc) CountRows(ctx context.Context, game string, category uint32) (int64, error) {
	return f.CountRowsFn(ctx, game, category)
}

func (f SinkFunc) HighestWatermark(ctx context.Context, game string, category uint32) (int64, uint64, string, bool, error) {
	return f.HighestWatermarkFn(ctx, game, category)
}

func (f SinkFunc) InsertEntries(ctx context.Context, game string, category uint32, entries []nexrpc.RankingEntry) error {
	return f.InsertEntriesFn(ctx, game, category, entries)
}

// watermark tracks the state machine's "last rank seen" cursor (spec §3,
// §4.3): rank is a monotone non-decreasing bound; uniqueID/principalID seed
// the around-self target for state S4.
type watermark struct {
	rank        int64
	uniqueID    uint64
	principalID string
	valid       bool
}

// Harvester runs the S0-S4 state machine (spec §4.3) for one (title,
// category), writing rows through Sink.
type Harvester struct {
	Wrapper *retry.Wrapper
	Sink    Sink
	Logger  log.Logger
}

// Run drives one category to completion: S0 probe total, S1 resume check,
// S2 offset scan, S3 bootstrap, S4 around-self scan.
func (h *Harvester) Run(ctx context.Context, game string, category uint32) error {
	logger := log.With(loggerOrNop(h.Logger), "game", game, "category", category)

	// S0: probe total + first (unique_id, principal-id).
	var result *nexrpc.RankingResult
	err := h.Wrapper.Do(ctx, func(ctx context.Context, s nexrpc.Session) error {
		r, err := s.GetRanking(ctx, nexrpc.ModeGlobal, category,
			nexrpc.RankingOrderParam{Offset: 0, Count: 1}, nexrpc.RankingTarget{})
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		level.Warn(logger).Log("msg", "S0 probe failed, abandoning category", "err", err)
		return nil
	}
	if len(result.Data) == 0 {
		level.Info(logger).Log("msg", "category empty, nothing to harvest")
		return nil
	}
	wm := watermark{
		uniqueID:    result.Data[0].UniqueID,
		principalID: result.Data[0].PrincipalID,
		valid:       true,
	}
	total := result.Total

	// S1: resume check.
	count, err := h.Sink.CountRows(ctx, game, category)
	if err != nil {
		return fmt.Errorf("ranking: S1 count rows: %w", err)
	}
	if count >= total {
		level.Info(logger).Log("msg", "category already complete", "count", count, "total", total)
		return nil
	}
	if count > 0 {
		rank, uid, pid, ok, err := h.Sink.HighestWatermark(ctx, game, category)
		if err != nil {
			return fmt.Errorf("ranking: S1 load watermark: %w", err)
		}
		if ok {
			wm = watermark{rank: rank, uniqueID: uid, principalID: pid, valid: true}
			return h.aroundSelfScan(ctx, logger, game, category, wm)
		}
	}

	// S2: offset scan.
	wm, enteredS4, err := h.offsetScan(ctx, logger, game, category, wm)
	if err != nil {
		return err
	}
	if !enteredS4 {
		return nil
	}

	// S3: bootstrap check.
	if !wm.valid {
		return nil
	}

	// S4: around-self scan.
	return h.aroundSelfScan(ctx, logger, game, category, wm)
}

// offsetScan implements state S2. It returns the watermark at the point S2
// stopped and whether the category should proceed into S3/S4.
func (h *Harvester) offsetScan(ctx context.Context, logger log.Logger, game string, category uint32, wm watermark) (watermark, bool, error) {
	cur := 0
	for {
		var result *nexrpc.RankingResult
		err := h.Wrapper.Do(ctx, func(ctx context.Context, s nexrpc.Session) error {
			r, err := s.GetRanking(ctx, nexrpc.ModeGlobal, category, nexrpc.RankingOrderParam{
				Offset:    cur,
				Count:     OffsetPageSize,
				OrderCalc: nexrpc.OrderCalcOrdinal,
			}, nexrpc.RankingTarget{})
			if err != nil {
				return err
			}
			result = r
			return nil
		})
		if err != nil {
			level.Info(logger).Log("msg", "S2 offset scan ended with application error, moving to S3/S4", "err", err, "have", cur)
			return wm, true, nil
		}
		if len(result.Data) == 0 {
			level.Info(logger).Log("msg", "S2 offset scan empty, moving to S3/S4", "have", cur)
			return wm, true, nil
		}

		if err := h.Sink.InsertEntries(ctx, game, category, result.Data); err != nil {
			return wm, false, fmt.Errorf("ranking: S2 persist: %w", err)
		}
		rankingEntriesPersisted.WithLabelValues(game, fmt.Sprint(category)).Add(float64(len(result.Data)))

		last := result.Data[len(result.Data)-1]
		wm = watermark{rank: last.Rank, uniqueID: last.UniqueID, principalID: last.PrincipalID, valid: true}
		cur += len(result.Data)

		level.Debug(logger).Log("msg", "S2 offset scan progress", "have", cur, "total", result.Total)
	}
}

// aroundSelfScan implements state S4, repeating until no new entries remain
// above the watermark or an RPC error ends the category (spec §4.3).
func (h *Harvester) aroundSelfScan(ctx context.Context, logger log.Logger, game string, category uint32, wm watermark) error {
	for {
		var result *nexrpc.RankingResult
		err := h.Wrapper.Do(ctx, func(ctx context.Context, s nexrpc.Session) error {
			r, err := s.GetRanking(ctx, nexrpc.ModeGlobalAroundSelf, category, nexrpc.RankingOrderParam{
				Offset:    0,
				Count:     OffsetPageSize,
				OrderCalc: nexrpc.OrderCalcOrdinal,
			}, nexrpc.RankingTarget{UniqueID: wm.uniqueID, PrincipalID: wm.principalID})
			if err != nil {
				return err
			}
			result = r
			return nil
		})
		if err != nil {
			level.Info(logger).Log("msg", "S4 around-self scan ended", "err", err)
			return nil
		}

		// Duplicate-filter: only ranks strictly above the watermark survive
		// (spec §4.3, §8 "duplicate-filter correctness").
		fresh := result.Data[:0:0]
		for _, e := range result.Data {
			if e.Rank > wm.rank {
				fresh = append(fresh, e)
			}
		}
		if len(fresh) == 0 {
			level.Info(logger).Log("msg", "S4 around-self scan done, no fresh entries")
			return nil
		}

		if err := h.Sink.InsertEntries(ctx, game, category, fresh); err != nil {
			return fmt.Errorf("ranking: S4 persist: %w", err)
		}
		rankingEntriesPersisted.WithLabelValues(game, fmt.Sprint(category)).Add(float64(len(fresh)))

		last := fresh[len(fresh)-1]
		wm = watermark{rank: last.Rank, uniqueID: last.UniqueID, principalID: last.PrincipalID, valid: true}
	}
}

func loggerOrNop(l log.Logger) log.Logger {
	if l == nil {
		return log.NewNopLogger()
	}
	return l
}

// RunAll advances up to groupSize categories in parallel (spec §4.3: "up to
// 32 categories per title are advanced in parallel"), using errgroup so a
// structural error in one category's goroutine is surfaced without aborting
// the others in flight (spec §7.4) — in-flight siblings still finish since
// each Run call only returns non-nil on errors from persistence, not from
// RPC/HTTP failures, which are handled internally per category.
func RunAll(ctx context.Context, h *Harvester, game string, categories []uint32, groupSize int) error {
	if groupSize <= 0 {
		groupSize = 32
	}
	var g errgroup.Group
	g.SetLimit(groupSize)
	for _, category := range categories {
		category := category
		g.Go(func() error {
			return h.Run(ctx, game, category)
		})
	}
	return g.Wait()
}
