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

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/nex-archival/nexharvest/internal/nexrpc"
	"github.com/nex-archival/nexharvest/internal/retry"
)

// DefaultScanWorkers and DefaultBatchSize match spec §4.6's defaults
// (N=8, B=100).
const (
	DefaultScanWorkers = 8
	DefaultBatchSize   = 100
)

var datastoreMetasScanned = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "nexharvest_datastore_metas_scanned_total",
	Help: "Number of successful get_metas entries persisted, by game.",
}, []string{"game"})

func init() {
	prometheus.MustRegister(datastoreMetasScanned)
}

// MetaSink is the persistence seam the Metadata Scanner writes through.
type MetaSink interface {
	InsertMetas(ctx context.Context, game string, metas []nexrpc.DataStoreMeta) (toFetch []uint64, err error)
}

// BlobTask names one object the Blob Fetcher must download.
type BlobTask struct {
	DataID  uint64
	OwnerID string
}

// ScanConfig configures the Metadata Scanner worker pool.
type ScanConfig struct {
	Workers   int
	BatchSize int
}

func (c ScanConfig) withDefaults() ScanConfig {
	if c.Workers <= 0 {
		c.Workers = DefaultScanWorkers
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	return c
}

// RunMetadataScanner partitions [rng.First, rng.Late] round-robin across
// cfg.Workers workers (spec §4.6) and closes blobQueue once every worker has
// stopped — the Go channel-close is this implementation's "shared done flag
// read by blob workers" (spec §4.6): a closed, drained channel is exactly
// "done flag set AND input queue empty" (spec §5).
func RunMetadataScanner(ctx context.Context, w *retry.Wrapper, sink MetaSink, game string, rng Range, cfg ScanConfig, blobQueue chan<- BlobTask, logger log.Logger) error {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = log.NewNopLogger()
	}
	defer close(blobQueue)

	var g errgroup.Group
	for wk := 0; wk < cfg.Workers; wk++ {
		wk := wk
		g.Go(func() error {
			return scanWorker(ctx, w, sink, game, rng, cfg, wk, blobQueue, logger)
		})
	}
	return g.Wait()
}

func scanWorker(ctx context.Context, w *retry.Wrapper, sink MetaSink, game string, rng Range, cfg ScanConfig, workerIndex int, blobQueue chan<- BlobTask, logger log.Logger) error {
	stride := uint64(cfg.Workers * cfg.BatchSize)
	id := rng.First + uint64(workerIndex*cfg.BatchSize)
	havePassedLate := false

	for {
		if id > rng.Late {
			havePassedLate = true
		}

		batch := make([]uint64, cfg.BatchSize)
		for i := range batch {
			batch[i] = id + uint64(i)
		}

		var entries []nexrpc.MetaEntryResult
		err := w.Do(ctx, func(ctx context.Context, s nexrpc.Session) error {
			r, err := s.GetMetas(ctx, batch, nexrpc.MetaResultOptionAll)
			if err != nil {
				return err
			}
			entries = r
			return nil
		})
		if err != nil {
			level.Warn(logger).Log("msg", "metadata scan batch failed", "worker", workerIndex, "start_id", id, "err", err)
			return err
		}

		var metas []nexrpc.DataStoreMeta
		for _, e := range entries {
			if e.Err == nil && e.Meta != nil {
				metas = append(metas, *e.Meta)
			}
		}

		if len(metas) > 0 {
			toFetch, err := sink.InsertMetas(ctx, game, metas)
			if err != nil {
				return err
			}
			datastoreMetasScanned.WithLabelValues(game).Add(float64(len(metas)))

			ownerByID := make(map[uint64]string, len(metas))
			for _, m := range metas {
				ownerByID[m.DataID] = m.OwnerID
			}
			for _, dataID := range toFetch {
				select {
				case blobQueue <- BlobTask{DataID: dataID, OwnerID: ownerByID[dataID]}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}

		if havePassedLate && len(metas) == 0 {
			level.Debug(logger).Log("msg", "scan worker done", "worker", workerIndex, "last_id", id)
			return nil
		}

		id += stride
	}
}
