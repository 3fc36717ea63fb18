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

// Package retry implements the Retry Wrapper (spec §4.1): it wraps an
// RPC-using closure over a Session, and on transport-class failure tears the
// session down and re-establishes it, then re-invokes the closure. It
// retries without bound on transport errors (the upstream service is known
// to flap) but surfaces application-class errors unchanged. Per spec §9 it
// adds exponential backoff with jitter on top of the source's synchronous
// recursive retry, using the same backoff library the teacher already
// vendors transitively.
package retry

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/jpillora/backoff"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nex-archival/nexharvest/internal/nexerr"
	"github.com/nex-archival/nexharvest/internal/nexrpc"
)

var retryAttemptsTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "nexharvest_retry_attempts_total",
	Help: "Number of session rebuild attempts after a transport error.",
})

func init() {
	prometheus.MustRegister(retryAttemptsTotal)
}

// Opts configures the Wrapper's backoff behavior.
type Opts struct {
	// MinDelay and MaxDelay bound the exponential backoff between session
	// rebuild attempts. Defaults: 200ms / 30s.
	MinDelay, MaxDelay time.Duration
	// Logger receives one warning line per rebuild attempt.
	Logger log.Logger
}

// Wrapper rebuilds a nexrpc.Session on transport failure and replays the
// caller's closure against the fresh session.
type Wrapper struct {
	dialer    nexrpc.Dialer
	accessKey string
	nexVer    [3]int
	desc      nexrpc.Descriptor

	backoff *backoff.Backoff
	logger  log.Logger
}

// New builds a Wrapper that dials sessions via d using the given per-title
// protocol parameters and credential descriptor.
func New(d nexrpc.Dialer, accessKey string, nexVersion [3]int, desc nexrpc.Descriptor, opts Opts) *Wrapper {
	if opts.MinDelay <= 0 {
		opts.MinDelay = 200 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}
	return &Wrapper{
		dialer:    d,
		accessKey: accessKey,
		nexVer:    nexVersion,
		desc:      desc,
		backoff: &backoff.Backoff{
			Min:    opts.MinDelay,
			Max:    opts.MaxDelay,
			Factor: 2,
			Jitter: true,
		},
		logger: opts.Logger,
	}
}

// Do dials a fresh session, invokes fn, and closes the session afterwards;
// no session is kept between attempts or calls. On a transport-class error
// it waits a backoff interval, dials a fresh session, and retries — without
// bound. Application-class
// errors from fn are returned to the caller unchanged.
func (w *Wrapper) Do(ctx context.Context, fn func(ctx context.Context, s nexrpc.Session) error) error {
	for {
		sess, err := w.dialer.Dial(ctx, w.accessKey, w.nexVer, w.desc)
		if err != nil {
			if nexerr.IsTransport(err) {
				if waitErr := w.wait(ctx); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}

		callErr := fn(ctx, sess)
		_ = sess.Close()

		if callErr == nil {
			w.backoff.Reset()
			return nil
		}
		if !nexerr.IsTransport(callErr) {
			return callErr
		}

		retryAttemptsTotal.Inc()
		level.Warn(w.logger).Log("msg", "nex transport error, rebuilding session", "err", callErr)
		if waitErr := w.wait(ctx); waitErr != nil {
			return waitErr
		}
	}
}

func (w *Wrapper) wait(ctx context.Context) error {
	d := w.backoff.Duration()
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
