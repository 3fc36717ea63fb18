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
	"io"
	"net/http"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/nex-archival/nexharvest/internal/nexerr"
	"github.com/nex-archival/nexharvest/internal/nexrpc"
	"github.com/nex-archival/nexharvest/internal/retry"
)

// DefaultFetchWorkers matches spec §4.7's default (K=8).
const DefaultFetchWorkers = 8

// BlobGetTimeout is the plain HTTPS GET timeout against a signed URL
// (spec §4.7).
const BlobGetTimeout = 10 * time.Minute

var (
	blobsFetched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nexharvest_datastore_blobs_fetched_total",
		Help: "Number of blob rows written, by game and outcome.",
	}, []string{"game", "outcome"})
)

func init() {
	prometheus.MustRegister(blobsFetched)
}

// BlobSink is the persistence seam the Blob Fetcher writes through.
type BlobSink interface {
	InsertBlob(ctx context.Context, game string, dataID uint64, url string, data []byte, errMsg string) error
}

// RunBlobFetcher drains queue with the given number of workers
// (DefaultFetchWorkers when workers <= 0). Each worker calls
// prepare_get_object (retry-wrapped), performs a plain HTTPS GET, gzip
// compresses the body, and writes one datastore_data row; RPC or HTTP
// failures are recorded as an error row instead of aborting the worker
// (spec §4.7, §7.3). A worker exits once queue is closed and drained —
// the channel-close equivalent of "queue empty AND done flag set" (spec §4.7).
func RunBlobFetcher(ctx context.Context, w *retry.Wrapper, sink BlobSink, game string, queue <-chan BlobTask, workers int, client *http.Client, logger log.Logger) error {
	if workers <= 0 {
		workers = DefaultFetchWorkers
	}
	if client == nil {
		client = defaultHTTPClient()
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			return fetchWorker(gctx, w, sink, game, queue, client, logger)
		})
	}
	return g.Wait()
}

func fetchWorker(ctx context.Context, w *retry.Wrapper, sink BlobSink, game string, queue <-chan BlobTask, client *http.Client, logger log.Logger) error {
	for task := range queue {
		if err := fetchOne(ctx, w, sink, game, task, client); err != nil {
			if ctx.Err() != nil {
				return err
			}
			level.Error(logger).Log("msg", "blob fetch failed unexpectedly", "data_id", task.DataID, "err", err)
			continue
		}
	}
	return nil
}

func fetchOne(ctx context.Context, w *retry.Wrapper, sink BlobSink, game string, task BlobTask, client *http.Client) error {
	var prepared *nexrpc.PreparedObject
	err := w.Do(ctx, func(ctx context.Context, s nexrpc.Session) error {
		p, err := s.PrepareGetObject(ctx, task.DataID)
		if err != nil {
			return err
		}
		prepared = p
		return nil
	})
	if err != nil {
		if nexerr.IsApplicationErr(err) {
			blobsFetched.WithLabelValues(game, "rpc_error").Inc()
			return sink.InsertBlob(ctx, game, task.DataID, "", nil, err.Error())
		}
		return err
	}

	getCtx, cancel := context.WithTimeout(ctx, BlobGetTimeout)
	defer cancel()

	body, err := get(getCtx, client, prepared.URL, prepared.Headers)
	if err != nil {
		blobsFetched.WithLabelValues(game, "http_error").Inc()
		return sink.InsertBlob(ctx, game, task.DataID, prepared.URL, nil, err.Error())
	}

	compressed, err := gzipCompress(body)
	if err != nil {
		return fmt.Errorf("datastore: gzip compress data_id %d: %w", task.DataID, err)
	}

	blobsFetched.WithLabelValues(game, "ok").Inc()
	return sink.InsertBlob(ctx, game, task.DataID, prepared.URL, compressed, "")
}

func get(ctx context.Context, client *http.Client, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nexerr.NewHTTP(0, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, nexerr.NewHTTP(0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nexerr.NewHTTP(resp.StatusCode, nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nexerr.NewHTTP(resp.StatusCode, err)
	}
	return body, nil
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// defaultHTTPClient uses hashicorp/go-cleanhttp's default transport, the
// same "plain, sane, unpooled-by-default" client the teacher uses for
// one-shot outbound HTTP calls.
func defaultHTTPClient() *http.Client {
	return &http.Client{Transport: cleanhttpTransport()}
}
