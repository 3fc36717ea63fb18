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

// Package nexrpc defines the external contract of a single authenticated,
// multiplexed RPC channel to one NEX game server. The framed transport,
// handshake and serialization codec underneath it are out of scope (spec §1)
// and are implemented by a real collaborator; this package only declares the
// verbs the harvest engine calls.
package nexrpc

import (
	"context"
	"time"
)

// RankingMode selects how a get_ranking call is evaluated.
type RankingMode int

const (
	ModeGlobal RankingMode = iota
	ModeGlobalAroundSelf
)

// OrderCalc selects tie-break behavior on ranks.
type OrderCalc int

const (
	// OrderCalcStandard assigns equal ranks to tied scores (1,2,2,4).
	OrderCalcStandard OrderCalc = 0
	// OrderCalcOrdinal assigns strictly increasing ranks (1,2,3,4).
	OrderCalcOrdinal OrderCalc = 1
)

// RankingOrderParam mirrors the wire order-param for get_ranking.
type RankingOrderParam struct {
	Offset    int
	Count     int
	OrderCalc OrderCalc
}

// RankingTarget identifies the self in GLOBAL_AROUND_SELF mode.
type RankingTarget struct {
	UniqueID    uint64
	PrincipalID string
}

// RankingEntry is one row of a get_ranking response.
type RankingEntry struct {
	UniqueID    uint64
	PrincipalID string
	Rank        int64
	Score       int64
	Groups      []uint8
	// Param is an opaque u64, often a DataStore data_id reference.
	Param uint64
	// CommonData is an opaque blob.
	CommonData []byte
	// UpdateTime is populated for wire versions >= 1 (spec §9's override hook).
	UpdateTime time.Time
}

// RankingResult is the decoded get_ranking response.
type RankingResult struct {
	// Total is the server's claimed leaderboard size; it may be capped below
	// the true size (spec §4.3).
	Total int64
	Data  []RankingEntry
}

// SearchObjectParam mirrors the wire search_object request fields the
// harvester uses.
type SearchObjectParam struct {
	Offset    int
	Count     int
	// ResultOrder, when non-zero, requests ascending (1) or descending (-1)
	// order by data_id. Zero means server default.
	ResultOrder int
	// CreatedAfter filters to objects created at or after this time, when
	// non-zero.
	CreatedAfter time.Time
}

// DataStoreSearchResult is one search_object hit.
type DataStoreSearchResult struct {
	DataID uint64
}

// MetaResultOption requests which fields get_metas returns. 0xFF requests
// all fields (spec §6).
const MetaResultOptionAll = 0xFF

// RatingInfo is one rating slot on a DataStoreMeta.
type RatingInfo struct {
	Slot    int32
	Total   int64
	Count   int64
	Initial int64
}

// DataStoreMeta is the decoded metadata for one data_id.
type DataStoreMeta struct {
	DataID             uint64
	OwnerID            string
	Size               int64
	Name               string
	DataType           uint16
	MetaBinary         []byte
	PermissionMask     uint8
	PermissionRecips   []string
	DeletePermMask     uint8
	DeletePermRecips   []string
	CreateTime         time.Time
	UpdateTime         time.Time
	ReferredTime       time.Time
	ExpireTime         time.Time
	Period             int32
	Status             int32
	ReferredCount      int64
	ReferDataID        uint64
	Flag               uint32
	Tags               []string
	Ratings            []RatingInfo
}

// MetaEntryResult pairs a requested data_id with its per-entry outcome; a
// per-entry failure (e.g. deleted object) carries a nil Meta and non-nil Err,
// and must not abort the batch (spec §4.6, §8 scenario 4).
type MetaEntryResult struct {
	DataID uint64
	Meta   *DataStoreMeta
	Err    error
}

// PersistenceTarget names an owner + persistence slot for
// get_metas_multiple_param (spec §4.8).
type PersistenceTarget struct {
	OwnerID string
	Slot    int32
}

// PreparedObject is the signed URL + headers returned by prepare_get_object.
type PreparedObject struct {
	URL     string
	Headers map[string]string
}

// Session is the typed subset of the NEX RPC surface the harvester needs.
// A real implementation owns one login over one framed, authenticated
// channel; it is not safe for concurrent use by multiple goroutines at once
// (spec §5 "Workers never share mutable RPC sessions").
type Session interface {
	GetRanking(ctx context.Context, mode RankingMode, category uint32, order RankingOrderParam, target RankingTarget) (*RankingResult, error)
	SearchObject(ctx context.Context, param SearchObjectParam) ([]DataStoreSearchResult, error)
	GetMetas(ctx context.Context, dataIDs []uint64, resultOption uint32) ([]MetaEntryResult, error)
	GetMetasMultipleParam(ctx context.Context, targets []PersistenceTarget, resultOption uint32) ([]MetaEntryResult, error)
	PrepareGetObject(ctx context.Context, dataID uint64) (*PreparedObject, error)
	// Close tears down the underlying connection.
	Close() error
}

// Descriptor is the credential material needed to open a Session, as minted
// by the Credential Broker (spec §6).
type Descriptor struct {
	Host        string
	Port        int
	PrincipalID string
	Password    string
	// AuthInfo, when set, is sent as AuthenticationInfo{token, ngs_version=2}
	// for titles selected by title_id equality (spec §6).
	AuthInfo *AuthenticationInfo
}

// AuthenticationInfo carries a bearer token used by some titles' login flow.
type AuthenticationInfo struct {
	Token      string
	NGSVersion int
}

// Dialer opens a new authenticated Session against a Descriptor, plus the
// per-title protocol parameters (access key, NEX version) needed to
// configure the transport before login. It is the seam the retry wrapper
// tears down and rebuilds against on transport failure.
type Dialer interface {
	Dial(ctx context.Context, accessKey string, nexVersion [3]int, d Descriptor) (Session, error)
}
