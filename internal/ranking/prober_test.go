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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nex-archival/nexharvest/internal/nexerr"
	"github.com/nex-archival/nexharvest/internal/nexrpc"
	"github.com/nex-archival/nexharvest/internal/nexrpc/nexrpctest"
	"github.com/nex-archival/nexharvest/internal/retry"
)

func TestProber_FindsOnlyRespondingCategories(t *testing.T) {
	live := map[uint32]bool{3: true, 41: true, 999: true}
	sess := &nexrpctest.Session{
		GetRankingFn: func(ctx context.Context, mode nexrpc.RankingMode, category uint32, order nexrpc.RankingOrderParam, target nexrpc.RankingTarget) (*nexrpc.RankingResult, error) {
			if live[category] {
				return &nexrpc.RankingResult{Total: 1, Data: []nexrpc.RankingEntry{{Rank: 1}}}, nil
			}
			return nil, nexerr.NewApplication(nexerr.RankingNotFound)
		},
	}
	dialer := &nexrpctest.Dialer{Session: sess}
	w := retry.New(dialer, "key", [3]int{1, 0, 0}, nexrpc.Descriptor{}, retry.Opts{MinDelay: time.Millisecond, MaxDelay: time.Millisecond})

	p := &Prober{Wrapper: w}
	found, err := p.Probe(context.Background(), []uint32{500}, nil)
	require.NoError(t, err)
	require.Equal(t, []uint32{3, 41, 500, 999}, found)
}

func TestProber_MergesExtraCategoriesUnconditionally(t *testing.T) {
	sess := &nexrpctest.Session{
		GetRankingFn: func(ctx context.Context, mode nexrpc.RankingMode, category uint32, order nexrpc.RankingOrderParam, target nexrpc.RankingTarget) (*nexrpc.RankingResult, error) {
			return nil, nexerr.NewApplication(nexerr.RankingNotFound)
		},
	}
	dialer := &nexrpctest.Dialer{Session: sess}
	w := retry.New(dialer, "key", [3]int{1, 0, 0}, nexrpc.Descriptor{}, retry.Opts{MinDelay: time.Millisecond, MaxDelay: time.Millisecond})

	p := &Prober{Wrapper: w}
	found, err := p.Probe(context.Background(), []uint32{10, 20}, nil)
	require.NoError(t, err)
	require.Equal(t, []uint32{10, 20}, found)
}
