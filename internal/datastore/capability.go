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

// Package datastore implements the DataStore enumeration pipeline: the
// Capability Probe (spec §4.4), Range Finder (spec §4.5), Metadata Scanner
// (spec §4.6), Blob Fetcher (spec §4.7) and Metadata-By-Persistence Scanner
// (spec §4.8).
package datastore

import (
	"context"

	"github.com/nex-archival/nexharvest/internal/nexerr"
	"github.com/nex-archival/nexharvest/internal/nexrpc"
	"github.com/nex-archival/nexharvest/internal/retry"
)

// ProbeCapability issues one search_object(offset=0, count=1) call and
// classifies the title: Core::NotImplemented means search-unsupported;
// DataStore::NotFound or success means search-supported; any other failure
// is conservatively treated as search-unsupported (spec §4.4, §8
// "capability probe classification").
func ProbeCapability(ctx context.Context, w *retry.Wrapper) (bool, error) {
	err := w.Do(ctx, func(ctx context.Context, s nexrpc.Session) error {
		_, err := s.SearchObject(ctx, nexrpc.SearchObjectParam{Offset: 0, Count: 1})
		return err
	})
	switch {
	case err == nil:
		return true, nil
	case nexerr.IsApplication(err, nexerr.CoreNotImplemented):
		return false, nil
	case nexerr.IsApplication(err, nexerr.DataStoreNotFound):
		return true, nil
	case nexerr.IsApplicationErr(err):
		return false, nil
	default:
		// Any other failure class, including a structural/unexpected error,
		// is conservatively treated as search-unsupported (spec §4.4, §8).
		return false, nil
	}
}
