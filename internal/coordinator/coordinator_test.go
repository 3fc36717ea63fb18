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

package coordinator

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"

	"github.com/nex-archival/nexharvest/internal/catalog"
	"github.com/nex-archival/nexharvest/internal/datastore"
	"github.com/nex-archival/nexharvest/internal/nexerr"
	"github.com/nex-archival/nexharvest/internal/nexrpc"
	"github.com/nex-archival/nexharvest/internal/nexrpc/nexrpctest"
	"github.com/nex-archival/nexharvest/internal/store"
)

var errNotLive = nexerr.NewApplication(nexerr.DataStoreNotFound)

func openStores(t *testing.T) (*store.RankingStore, *store.DataStoreStore) {
	t.Helper()
	dir := t.TempDir()
	rs, err := store.OpenRanking(filepath.Join(dir, "ranking.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rs.Close() })
	ds, err := store.OpenDataStore(filepath.Join(dir, "datastore.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close() })
	return rs, ds
}

func testTitle() catalog.Title {
	return catalog.Title{AID: 1, Name: "game1", Key: "deadbeef", NEX: [3]int{3, 5, 0}, HasDataStore: true}
}

func TestHarvestRanking_DrivesEntriesThroughToStore(t *testing.T) {
	rs, ds := openStores(t)

	entries := []nexrpc.RankingEntry{
		{UniqueID: 1, PrincipalID: "p1", Rank: 1},
		{UniqueID: 2, PrincipalID: "p2", Rank: 2},
	}
	sess := &nexrpctest.Session{
		SearchObjectFn: func(ctx context.Context, param nexrpc.SearchObjectParam) ([]nexrpc.DataStoreSearchResult, error) {
			return nil, nil
		},
		GetRankingFn: func(ctx context.Context, mode nexrpc.RankingMode, category uint32, order nexrpc.RankingOrderParam, target nexrpc.RankingTarget) (*nexrpc.RankingResult, error) {
			if mode == nexrpc.ModeGlobalAroundSelf {
				return &nexrpc.RankingResult{Total: 2}, nil
			}
			if category != 3 {
				return nil, errNotLive
			}
			if order.Count == 1 {
				return &nexrpc.RankingResult{Total: 2, Data: entries[:1]}, nil
			}
			if order.Offset == 0 {
				return &nexrpc.RankingResult{Total: 2, Data: entries}, nil
			}
			return &nexrpc.RankingResult{Total: 2}, nil
		},
	}
	c := &Coordinator{Dialer: &nexrpctest.Dialer{Session: sess}, RankingStore: rs, DataStoreStore: ds}
	err := c.HarvestRanking(context.Background(), testTitle(), nexrpc.Descriptor{}, []uint32{3}, 4)
	require.NoError(t, err)

	n, err := rs.CountRows(context.Background(), "game1", 3)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}

func TestHarvestDataStore_SkipsWhenCatalogFlagAbsent(t *testing.T) {
	rs, ds := openStores(t)
	c := &Coordinator{Dialer: &nexrpctest.Dialer{Session: &nexrpctest.Session{}}, RankingStore: rs, DataStoreStore: ds}

	title := testTitle()
	title.HasDataStore = false
	title.NEXDS = false

	err := c.HarvestDataStore(context.Background(), title, nexrpc.Descriptor{}, HarvestDataStoreOpts{})
	require.NoError(t, err)
}

func TestHarvestDataStore_ScansAndFetchesEndToEnd(t *testing.T) {
	rs, ds := openStores(t)

	sess := &nexrpctest.Session{
		SearchObjectFn: func(ctx context.Context, param nexrpc.SearchObjectParam) ([]nexrpc.DataStoreSearchResult, error) {
			if param.CreatedAfter.IsZero() {
				return []nexrpc.DataStoreSearchResult{{DataID: datastore.FirstDataIDFloor}}, nil
			}
			return []nexrpc.DataStoreSearchResult{{DataID: datastore.FirstDataIDFloor + 2}}, nil
		},
		GetMetasFn: func(ctx context.Context, dataIDs []uint64, resultOption uint32) ([]nexrpc.MetaEntryResult, error) {
			results := make([]nexrpc.MetaEntryResult, len(dataIDs))
			for i, id := range dataIDs {
				if id >= datastore.FirstDataIDFloor && id <= datastore.FirstDataIDFloor+2 {
					results[i] = nexrpc.MetaEntryResult{DataID: id, Meta: &nexrpc.DataStoreMeta{DataID: id, Size: 10}}
				} else {
					results[i] = nexrpc.MetaEntryResult{DataID: id, Err: errNotLive}
				}
			}
			return results, nil
		},
		PrepareGetObjectFn: func(ctx context.Context, dataID uint64) (*nexrpc.PreparedObject, error) {
			return &nexrpc.PreparedObject{URL: "https://example.invalid/blob"}, nil
		},
	}
	c := &Coordinator{Dialer: &nexrpctest.Dialer{Session: sess}, RankingStore: rs, DataStoreStore: ds}

	opts := HarvestDataStoreOpts{
		ScanConfig:   datastore.ScanConfig{Workers: 1, BatchSize: 4},
		FetchWorkers: 1,
		QueueSize:    16,
	}
	err := c.HarvestDataStore(context.Background(), testTitle(), nexrpc.Descriptor{}, opts)
	require.NoError(t, err)

	max, ok, err := ds.MaxDataID(context.Background(), "game1")
	require.NoError(t, err)
	require.True(t, ok)
	require.GreaterOrEqual(t, max, uint64(datastore.FirstDataIDFloor))
}

func TestHarvestDataStore_LogsCoverageGapsAfterScan(t *testing.T) {
	rs, ds := openStores(t)

	sess := &nexrpctest.Session{
		SearchObjectFn: func(ctx context.Context, param nexrpc.SearchObjectParam) ([]nexrpc.DataStoreSearchResult, error) {
			if param.CreatedAfter.IsZero() {
				return []nexrpc.DataStoreSearchResult{{DataID: datastore.FirstDataIDFloor}}, nil
			}
			return []nexrpc.DataStoreSearchResult{{DataID: datastore.FirstDataIDFloor + 2}}, nil
		},
		GetMetasFn: func(ctx context.Context, dataIDs []uint64, resultOption uint32) ([]nexrpc.MetaEntryResult, error) {
			results := make([]nexrpc.MetaEntryResult, len(dataIDs))
			for i, id := range dataIDs {
				// Skip the middle id so the swept range has a one-id gap.
				if id == datastore.FirstDataIDFloor || id == datastore.FirstDataIDFloor+2 {
					results[i] = nexrpc.MetaEntryResult{DataID: id, Meta: &nexrpc.DataStoreMeta{DataID: id, Size: 0}}
				} else {
					results[i] = nexrpc.MetaEntryResult{DataID: id, Err: errNotLive}
				}
			}
			return results, nil
		},
	}

	var buf bytes.Buffer
	c := &Coordinator{
		Dialer:         &nexrpctest.Dialer{Session: sess},
		RankingStore:   rs,
		DataStoreStore: ds,
		Logger:         log.NewLogfmtLogger(&buf),
	}

	opts := HarvestDataStoreOpts{ScanConfig: datastore.ScanConfig{Workers: 1, BatchSize: 4}, FetchWorkers: 1, QueueSize: 16}
	err := c.HarvestDataStore(context.Background(), testTitle(), nexrpc.Descriptor{}, opts)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "coverage gaps found")
}

func TestHarvestPersistence_WritesMappings(t *testing.T) {
	rs, ds := openStores(t)

	sess := &nexrpctest.Session{
		GetMetasMultipleParamFn: func(ctx context.Context, targets []nexrpc.PersistenceTarget, resultOption uint32) ([]nexrpc.MetaEntryResult, error) {
			results := make([]nexrpc.MetaEntryResult, len(targets))
			for i := range targets {
				results[i] = nexrpc.MetaEntryResult{DataID: uint64(i), Meta: &nexrpc.DataStoreMeta{DataID: uint64(i), Size: 1}}
			}
			return results, nil
		},
		PrepareGetObjectFn: func(ctx context.Context, dataID uint64) (*nexrpc.PreparedObject, error) {
			return &nexrpc.PreparedObject{URL: "https://example.invalid/blob"}, nil
		},
	}
	c := &Coordinator{Dialer: &nexrpctest.Dialer{Session: sess}, RankingStore: rs, DataStoreStore: ds}
	opts := HarvestPersistenceOpts{FetchWorkers: 1, QueueSize: 32}
	err := c.HarvestPersistence(context.Background(), testTitle(), nexrpc.Descriptor{}, []string{"owner-a"}, opts)
	require.NoError(t, err)

	// Every persistence slot carries Size: 1, so every data_id discovered
	// here must also have reached the Blob Fetcher and landed a datastore_data
	// row; UnfetchedMetas reports none left outstanding.
	unfetched, err := ds.UnfetchedMetas(context.Background(), "game1")
	require.NoError(t, err)
	require.Empty(t, unfetched)
}

