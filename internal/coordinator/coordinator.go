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

// Package coordinator implements the Harvest Coordinator (spec §4.10): per
// title, it builds sessions, runs the prober/range-finder, spawns the
// worker pools, feeds the queue, and joins on completion.
package coordinator

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/oklog/run"
	"golang.org/x/time/rate"

	"github.com/nex-archival/nexharvest/internal/catalog"
	"github.com/nex-archival/nexharvest/internal/datastore"
	"github.com/nex-archival/nexharvest/internal/nexrpc"
	"github.com/nex-archival/nexharvest/internal/ranking"
	"github.com/nex-archival/nexharvest/internal/retry"
	"github.com/nex-archival/nexharvest/internal/store"
)

// Coordinator owns the dialer and both persistence sinks for one harvest
// process invocation (one CLI subcommand run).
type Coordinator struct {
	Dialer nexrpc.Dialer
	Logger log.Logger

	RankingStore    *store.RankingStore
	DataStoreStore  *store.DataStoreStore

	// ProbeRateLimit paces the Category Prober's 1000-category sweep; nil
	// disables pacing.
	ProbeRateLimit *rate.Limiter

	RetryOpts retry.Opts
}

func (c *Coordinator) logger() log.Logger {
	if c.Logger == nil {
		return log.NewNopLogger()
	}
	return c.Logger
}

func (c *Coordinator) wrapper(title catalog.Title, desc nexrpc.Descriptor) (*retry.Wrapper, error) {
	// Decoded eagerly so a malformed catalog entry fails before any RPC
	// attempt, not on the first transport rebuild.
	if _, err := title.AccessKeyBytes(); err != nil {
		return nil, err
	}
	opts := c.RetryOpts
	opts.Logger = c.logger()
	return retry.New(c.Dialer, title.Key, title.NEX, desc, opts), nil
}

// rankingStoreAdapter adapts *store.RankingStore to ranking.Sink.
func rankingStoreAdapter(s *store.RankingStore) ranking.Sink {
	return ranking.SinkFunc{
		CountRowsFn: s.CountRows,
		HighestWatermarkFn: func(ctx context.Context, game string, category uint32) (int64, uint64, string, bool, error) {
			wm, ok, err := s.HighestWatermark(ctx, game, category)
			return wm.Rank, wm.UniqueID, wm.PrincipalID, ok, err
		},
		InsertEntriesFn: s.InsertEntries,
	}
}

// HarvestRanking runs the Category Prober followed by the Ranking
// Harvester, in parallel across up to groupSize categories (spec §4.3).
func (c *Coordinator) HarvestRanking(ctx context.Context, title catalog.Title, desc nexrpc.Descriptor, extraCategories []uint32, groupSize int) error {
	runID := uuid.NewString()
	logger := log.With(c.logger(), "run_id", runID, "title_id", title.AID, "title", title.Name)

	w, err := c.wrapper(title, desc)
	if err != nil {
		return err
	}

	prober := &ranking.Prober{Wrapper: w, Logger: logger, Limiter: c.ProbeRateLimit}
	categories, err := prober.Probe(ctx, extraCategories, func(tested int) {
		level.Debug(logger).Log("msg", "category probe progress", "tested", tested)
	})
	if err != nil {
		return err
	}
	level.Info(logger).Log("msg", "category probe complete", "valid_categories", len(categories))

	harvester := &ranking.Harvester{Wrapper: w, Sink: rankingStoreAdapter(c.RankingStore), Logger: logger}
	game := gameID(title)
	return ranking.RunAll(ctx, harvester, game, categories, groupSize)
}

// dataStoreSinkAdapter adapts *store.DataStoreStore to the narrower sink
// interfaces the scanner/fetcher/persistence-scanner need.
type dataStoreSinkAdapter struct {
	*store.DataStoreStore
}

// HarvestDataStoreOpts configures one DataStore harvest pass.
type HarvestDataStoreOpts struct {
	Sampling     bool
	ScanConfig   datastore.ScanConfig
	FetchWorkers int
	QueueSize    int
	Now          time.Time
}

// HarvestDataStore runs the Capability Probe, Range Finder, then the
// Metadata Scanner and Blob Fetcher pools joined via an oklog/run.Group —
// the same "register actor/interrupt pairs, run until done" idiom the
// teacher's cmd/*/main.go uses for its own top-level goroutines, here
// modeling spec §4.10's "spawns the worker pools, and joins on all of them."
func (c *Coordinator) HarvestDataStore(ctx context.Context, title catalog.Title, desc nexrpc.Descriptor, opts HarvestDataStoreOpts) error {
	runID := uuid.NewString()
	logger := log.With(c.logger(), "run_id", runID, "title_id", title.AID, "title", title.Name)

	if !title.SupportsDataStore() {
		level.Info(logger).Log("msg", "title has no datastore capability flag, skipping")
		return nil
	}

	w, err := c.wrapper(title, desc)
	if err != nil {
		return err
	}

	supported, err := datastore.ProbeCapability(ctx, w)
	if err != nil {
		return err
	}
	if !supported {
		level.Info(logger).Log("msg", "search_object unsupported, skipping datastore harvest")
		return nil
	}

	game := gameID(title)

	resumeMax, hasMax, err := c.DataStoreStore.MaxDataID(ctx, game)
	if err != nil {
		return err
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	rng, ok, err := datastore.Find(ctx, w, logger, resumeMax, hasMax, opts.Sampling, now)
	if err != nil {
		return err
	}
	if !ok {
		level.Info(logger).Log("msg", "range finder found no live objects, skipping")
		return nil
	}
	level.Info(logger).Log("msg", "range discovered", "first", rng.First, "late", rng.Late)

	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = 1024
	}
	blobQueue := make(chan datastore.BlobTask, queueSize)

	unfetched, err := c.DataStoreStore.UnfetchedMetas(ctx, game)
	if err != nil {
		return err
	}
	if len(unfetched) > 0 {
		level.Info(logger).Log("msg", "pre-filling blob queue from resume", "count", len(unfetched))
	}

	var g run.Group
	resumeCtx, cancelResume := context.WithCancel(ctx)
	g.Add(func() error {
		for _, id := range unfetched {
			select {
			case blobQueue <- datastore.BlobTask{DataID: id}:
			case <-resumeCtx.Done():
				return resumeCtx.Err()
			}
		}
		return nil
	}, func(error) { cancelResume() })

	g.Add(func() error {
		return datastore.RunMetadataScanner(ctx, w, dataStoreSinkAdapter{c.DataStoreStore}, game, rng, opts.ScanConfig, blobQueue, logger)
	}, func(error) {})

	g.Add(func() error {
		return datastore.RunBlobFetcher(ctx, w, c.DataStoreStore, game, blobQueue, opts.FetchWorkers, nil, logger)
	}, func(error) {})

	if err := g.Run(); err != nil {
		return err
	}

	persisted, err := c.DataStoreStore.PersistedDataIDs(ctx, game, rng.First, rng.Late)
	if err != nil {
		return err
	}
	if gaps := datastore.VerifyCoverage(rng, persisted); len(gaps) > 0 {
		level.Warn(logger).Log("msg", "coverage gaps found in swept range", "gap_count", len(gaps))
	}
	return nil
}

// HarvestPersistenceOpts configures one Metadata-By-Persistence Scanner pass.
type HarvestPersistenceOpts struct {
	FetchWorkers int
	QueueSize    int
}

// HarvestPersistence runs the Metadata-By-Persistence Scanner (spec §4.8)
// for the given set of previously-harvested owner-principals, joined with a
// Blob Fetcher pool over a run.Group the same way HarvestDataStore joins its
// own scanner and fetcher: oversized persistence-slot entries are queued for
// download rather than left unfetched.
func (c *Coordinator) HarvestPersistence(ctx context.Context, title catalog.Title, desc nexrpc.Descriptor, owners []string, opts HarvestPersistenceOpts) error {
	logger := log.With(c.logger(), "title_id", title.AID, "title", title.Name)
	w, err := c.wrapper(title, desc)
	if err != nil {
		return err
	}
	level.Info(logger).Log("msg", "scanning persistence slots", "owners", len(owners))

	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = 1024
	}
	blobQueue := make(chan datastore.BlobTask, queueSize)
	game := gameID(title)

	var g run.Group
	g.Add(func() error {
		return datastore.ScanPersistence(ctx, w, dataStoreSinkAdapter{c.DataStoreStore}, game, owners, blobQueue)
	}, func(error) {})

	g.Add(func() error {
		return datastore.RunBlobFetcher(ctx, w, c.DataStoreStore, game, blobQueue, opts.FetchWorkers, nil, logger)
	}, func(error) {})

	return g.Run()
}

// gameID is the "game" column value used throughout the schema (spec §6):
// the catalog's human-readable title name, so ranking.db/datastore.db rows
// stay readable without a join back to the catalog file.
func gameID(title catalog.Title) string {
	return title.Name
}
