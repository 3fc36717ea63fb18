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

// Package nexrpctest provides a fake nexrpc.Session/Dialer for exercising
// the harvest engine without a real NEX server.
package nexrpctest

import (
	"context"
	"sync/atomic"

	"github.com/nex-archival/nexharvest/internal/nexrpc"
)

// Session is a scriptable fake implementing nexrpc.Session.
type Session struct {
	GetRankingFn            func(ctx context.Context, mode nexrpc.RankingMode, category uint32, order nexrpc.RankingOrderParam, target nexrpc.RankingTarget) (*nexrpc.RankingResult, error)
	SearchObjectFn          func(ctx context.Context, param nexrpc.SearchObjectParam) ([]nexrpc.DataStoreSearchResult, error)
	GetMetasFn              func(ctx context.Context, dataIDs []uint64, resultOption uint32) ([]nexrpc.MetaEntryResult, error)
	GetMetasMultipleParamFn func(ctx context.Context, targets []nexrpc.PersistenceTarget, resultOption uint32) ([]nexrpc.MetaEntryResult, error)
	PrepareGetObjectFn      func(ctx context.Context, dataID uint64) (*nexrpc.PreparedObject, error)
	Closed                  int32
}

func (s *Session) GetRanking(ctx context.Context, mode nexrpc.RankingMode, category uint32, order nexrpc.RankingOrderParam, target nexrpc.RankingTarget) (*nexrpc.RankingResult, error) {
	return s.GetRankingFn(ctx, mode, category, order, target)
}

func (s *Session) SearchObject(ctx context.Context, param nexrpc.SearchObjectParam) ([]nexrpc.DataStoreSearchResult, error) {
	return s.SearchObjectFn(ctx, param)
}

func (s *Session) GetMetas(ctx context.Context, dataIDs []uint64, resultOption uint32) ([]nexrpc.MetaEntryResult, error) {
	return s.GetMetasFn(ctx, dataIDs, resultOption)
}

func (s *Session) GetMetasMultipleParam(ctx context.Context, targets []nexrpc.PersistenceTarget, resultOption uint32) ([]nexrpc.MetaEntryResult, error) {
	return s.GetMetasMultipleParamFn(ctx, targets, resultOption)
}

func (s *Session) PrepareGetObject(ctx context.Context, dataID uint64) (*nexrpc.PreparedObject, error) {
	return s.PrepareGetObjectFn(ctx, dataID)
}

func (s *Session) Close() error {
	atomic.AddInt32(&s.Closed, 1)
	return nil
}

// Dialer is a fake nexrpc.Dialer that always hands out the same Session,
// after first failing FailDials times with DialErr (to exercise the retry
// wrapper).
type Dialer struct {
	Session  *Session
	DialErr  error
	FailDials int
	dials    int32
}

func (d *Dialer) Dial(ctx context.Context, accessKey string, nexVersion [3]int, desc nexrpc.Descriptor) (nexrpc.Session, error) {
	n := atomic.AddInt32(&d.dials, 1)
	if int(n) <= d.FailDials {
		return nil, d.DialErr
	}
	return d.Session, nil
}

// Dials returns the number of Dial calls made so far.
func (d *Dialer) Dials() int {
	return int(atomic.LoadInt32(&d.dials))
}
