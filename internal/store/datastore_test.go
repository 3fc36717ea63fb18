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

package store

import (
	"context"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nex-archival/nexharvest/internal/nexrpc"
)

func openTestDataStore(t *testing.T) *DataStoreStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "datastore.db")
	s, err := OpenDataStore(path, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDataStoreStore_InsertMetasReturnsOnlyNonEmptyForFetch(t *testing.T) {
	s := openTestDataStore(t)
	ctx := context.Background()

	metas := []nexrpc.DataStoreMeta{
		{DataID: 1, OwnerID: "o1", Size: 100, Tags: []string{"a", "b"}},
		{DataID: 2, OwnerID: "o2", Size: 0},
	}
	toFetch, err := s.InsertMetas(ctx, "game1", metas)
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, toFetch)

	max, ok, err := s.MaxDataID(ctx, "game1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(2), max)
}

func TestDataStoreStore_InsertMetasIsIdempotent(t *testing.T) {
	s := openTestDataStore(t)
	ctx := context.Background()

	metas := []nexrpc.DataStoreMeta{{DataID: 1, OwnerID: "o1", Size: 10, Tags: []string{"a"}}}
	_, err := s.InsertMetas(ctx, "game1", metas)
	require.NoError(t, err)
	_, err = s.InsertMetas(ctx, "game1", metas)
	require.NoError(t, err)

	var count int
	require.NoError(t, s.db.Get(&count, `SELECT COUNT(*) FROM datastore_meta_tag WHERE game = ? AND data_id = ?`, "game1", 1))
	require.Equal(t, 1, count)
}

func TestDataStoreStore_UnfetchedMetas(t *testing.T) {
	s := openTestDataStore(t)
	ctx := context.Background()

	_, err := s.InsertMetas(ctx, "game1", []nexrpc.DataStoreMeta{
		{DataID: 1, Size: 10},
		{DataID: 2, Size: 20},
		{DataID: 3, Size: 0},
	})
	require.NoError(t, err)
	require.NoError(t, s.InsertBlob(ctx, "game1", 1, "https://example/1", []byte("blob"), ""))

	ids, err := s.UnfetchedMetas(ctx, "game1")
	require.NoError(t, err)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	require.Equal(t, []uint64{2}, ids)
}

func TestDataStoreStore_InsertBlobRecordsErrors(t *testing.T) {
	s := openTestDataStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertBlob(ctx, "game1", 1, "", nil, "404 not found"))

	var errMsg, url string
	require.NoError(t, s.db.QueryRow(`SELECT error, url FROM datastore_data WHERE game = ? AND data_id = ?`, "game1", 1).Scan(&errMsg, &url))
	require.Equal(t, "404 not found", errMsg)
}

func TestDataStoreStore_InsertPersistenceMapping(t *testing.T) {
	s := openTestDataStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertPersistenceMapping(ctx, "game1", "owner1", 3, 42))
	require.NoError(t, s.InsertPersistenceMapping(ctx, "game1", "owner1", 3, 42))

	var count int
	require.NoError(t, s.db.Get(&count, `SELECT COUNT(*) FROM datastore_persistent WHERE game = ? AND owner_id = ?`, "game1", "owner1"))
	require.Equal(t, 1, count)
}
