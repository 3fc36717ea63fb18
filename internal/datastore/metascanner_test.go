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
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nex-archival/nexharvest/internal/nexrpc"
	"github.com/nex-archival/nexharvest/internal/nexrpc/nexrpctest"
	"github.com/nex-archival/nexharvest/internal/retry"
)

// recordingSink captures every InsertMetas call; data_ids with Size > 0 are
// reported back to the caller for the blob queue, mirroring store.DataStoreStore.
type recordingSink struct {
	mu    sync.Mutex
	metas []nexrpc.DataStoreMeta
}

func (s *recordingSink) InsertMetas(ctx context.Context, game string, metas []nexrpc.DataStoreMeta) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metas = append(s.metas, metas...)
	var toFetch []uint64
	for _, m := range metas {
		if m.Size > 0 {
			toFetch = append(toFetch, m.DataID)
		}
	}
	return toFetch, nil
}

// TestRunMetadataScanner_PartitionsEveryIDExactlyOnce is the partitioning
// property from the testable-properties list: each id in [First, Late] is
// queried by exactly one worker.
func TestRunMetadataScanner_PartitionsEveryIDExactlyOnce(t *testing.T) {
	const late = 23
	seen := map[uint64]int{}
	var mu sync.Mutex

	sess := &nexrpctest.Session{
		GetMetasFn: func(ctx context.Context, dataIDs []uint64, resultOption uint32) ([]nexrpc.MetaEntryResult, error) {
			mu.Lock()
			for _, id := range dataIDs {
				seen[id]++
			}
			mu.Unlock()

			results := make([]nexrpc.MetaEntryResult, len(dataIDs))
			for i, id := range dataIDs {
				if id <= late {
					results[i] = nexrpc.MetaEntryResult{DataID: id, Meta: &nexrpc.DataStoreMeta{DataID: id, Size: 1}}
				} else {
					results[i] = nexrpc.MetaEntryResult{DataID: id, Err: errors.New("not found")}
				}
			}
			return results, nil
		},
	}
	dialer := &nexrpctest.Dialer{Session: sess}
	w := retry.New(dialer, "key", [3]int{1, 0, 0}, nexrpc.Descriptor{}, retry.Opts{})

	sink := &recordingSink{}
	blobQueue := make(chan BlobTask, 64)
	cfg := ScanConfig{Workers: 4, BatchSize: 3}

	err := RunMetadataScanner(context.Background(), w, sink, "game1", Range{First: 0, Late: late}, cfg, blobQueue, nil)
	require.NoError(t, err)

	for id := uint64(0); id <= late; id++ {
		require.Equalf(t, 1, seen[id], "id %d should be queried exactly once", id)
	}

	var fetched []uint64
	for task := range blobQueue {
		fetched = append(fetched, task.DataID)
	}
	require.Len(t, fetched, late+1)
}

func TestRunMetadataScanner_SkipsPerEntryErrorsWithoutAbortingBatch(t *testing.T) {
	const late = 3
	sess := &nexrpctest.Session{
		GetMetasFn: func(ctx context.Context, dataIDs []uint64, resultOption uint32) ([]nexrpc.MetaEntryResult, error) {
			results := make([]nexrpc.MetaEntryResult, len(dataIDs))
			for i, id := range dataIDs {
				if id > late || id%2 == 0 {
					results[i] = nexrpc.MetaEntryResult{DataID: id, Err: errors.New("deleted or out of range")}
				} else {
					results[i] = nexrpc.MetaEntryResult{DataID: id, Meta: &nexrpc.DataStoreMeta{DataID: id, Size: 0}}
				}
			}
			return results, nil
		},
	}
	dialer := &nexrpctest.Dialer{Session: sess}
	w := retry.New(dialer, "key", [3]int{1, 0, 0}, nexrpc.Descriptor{}, retry.Opts{})

	sink := &recordingSink{}
	blobQueue := make(chan BlobTask, 64)
	cfg := ScanConfig{Workers: 1, BatchSize: 4}

	err := RunMetadataScanner(context.Background(), w, sink, "game1", Range{First: 0, Late: late}, cfg, blobQueue, nil)
	require.NoError(t, err)
	require.Len(t, sink.metas, 2) // ids 1 and 3 survive; 0 and 2 are per-entry errors.
}
