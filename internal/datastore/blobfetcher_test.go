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
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"github.com/nex-archival/nexharvest/internal/nexerr"
	"github.com/nex-archival/nexharvest/internal/nexrpc"
	"github.com/nex-archival/nexharvest/internal/nexrpc/nexrpctest"
	"github.com/nex-archival/nexharvest/internal/retry"
)

type recordingBlobSink struct {
	mu   sync.Mutex
	rows map[uint64]struct {
		url, errMsg string
		data        []byte
	}
}

func newRecordingBlobSink() *recordingBlobSink {
	return &recordingBlobSink{rows: map[uint64]struct {
		url, errMsg string
		data        []byte
	}{}}
}

func (s *recordingBlobSink) InsertBlob(ctx context.Context, game string, dataID uint64, url string, data []byte, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[dataID] = struct {
		url, errMsg string
		data        []byte
	}{url, errMsg, data}
	return nil
}

func TestRunBlobFetcher_FetchesAndCompresses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "payload-data")
	}))
	defer srv.Close()

	sess := &nexrpctest.Session{
		PrepareGetObjectFn: func(ctx context.Context, dataID uint64) (*nexrpc.PreparedObject, error) {
			return &nexrpc.PreparedObject{URL: srv.URL}, nil
		},
	}
	dialer := &nexrpctest.Dialer{Session: sess}
	w := retry.New(dialer, "key", [3]int{1, 0, 0}, nexrpc.Descriptor{}, retry.Opts{})

	sink := newRecordingBlobSink()
	queue := make(chan BlobTask, 1)
	queue <- BlobTask{DataID: 7}
	close(queue)

	require.NoError(t, RunBlobFetcher(context.Background(), w, sink, "game1", queue, 1, srv.Client(), nil))

	row, ok := sink.rows[7]
	require.True(t, ok)
	require.Empty(t, row.errMsg)

	zr, err := gzip.NewReader(bytes.NewReader(row.data))
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = buf.ReadFrom(zr)
	require.NoError(t, err)
	require.Equal(t, "payload-data", buf.String())
}

func TestRunBlobFetcher_RecordsRPCErrorWithoutAbortingWorker(t *testing.T) {
	sess := &nexrpctest.Session{
		PrepareGetObjectFn: func(ctx context.Context, dataID uint64) (*nexrpc.PreparedObject, error) {
			return nil, nexerr.NewApplication(nexerr.DataStoreNotFound)
		},
	}
	dialer := &nexrpctest.Dialer{Session: sess}
	w := retry.New(dialer, "key", [3]int{1, 0, 0}, nexrpc.Descriptor{}, retry.Opts{})

	sink := newRecordingBlobSink()
	queue := make(chan BlobTask, 2)
	queue <- BlobTask{DataID: 1}
	queue <- BlobTask{DataID: 2}
	close(queue)

	require.NoError(t, RunBlobFetcher(context.Background(), w, sink, "game1", queue, 1, nil, nil))
	require.Len(t, sink.rows, 2)
	for _, row := range sink.rows {
		require.NotEmpty(t, row.errMsg)
	}
}

func TestRunBlobFetcher_RecordsHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	sess := &nexrpctest.Session{
		PrepareGetObjectFn: func(ctx context.Context, dataID uint64) (*nexrpc.PreparedObject, error) {
			return &nexrpc.PreparedObject{URL: srv.URL}, nil
		},
	}
	dialer := &nexrpctest.Dialer{Session: sess}
	w := retry.New(dialer, "key", [3]int{1, 0, 0}, nexrpc.Descriptor{}, retry.Opts{})

	sink := newRecordingBlobSink()
	queue := make(chan BlobTask, 1)
	queue <- BlobTask{DataID: 9}
	close(queue)

	require.NoError(t, RunBlobFetcher(context.Background(), w, sink, "game1", queue, 1, srv.Client(), nil))
	row := sink.rows[9]
	require.Nil(t, row.data)
	require.Contains(t, row.errMsg, "404")
}
