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

	"github.com/nex-archival/nexharvest/internal/nexrpc"
	"github.com/nex-archival/nexharvest/internal/retry"
)

// PersistenceSlotCount is the number of named save slots per owner
// (spec GLOSSARY "Persistence slot").
const PersistenceSlotCount = 16

// PersistenceSink is the persistence seam the Metadata-By-Persistence
// Scanner writes through.
type PersistenceSink interface {
	MetaSink
	InsertPersistenceMapping(ctx context.Context, game, owner string, slot int32, dataID uint64) error
}

// ScanPersistence issues get_metas_multiple_param for each (owner, slot)
// pair across owners and persists one PersistenceMapping row plus one
// DataStoreMeta row per successful entry (spec §4.8). This recovers objects
// whose data_ids are not discoverable by range sweeping. Entries whose size
// is nonzero are queued onto blobQueue for the Blob Fetcher, exactly as the
// Metadata Scanner does (the original's get_datastore_metas_pids builds its
// download_entries list the same way: size > 0 means fetch it).
//
// A nil batch from the RPC call (spec §9: "download_entries can be None
// when get_metas multi-param fails before initialising it") is treated as
// "skip this owner" rather than a crash, matching the original's observed
// failure mode.
//
// ScanPersistence closes blobQueue once every owner has been swept, the same
// channel-close-as-done-flag idiom RunMetadataScanner uses.
func ScanPersistence(ctx context.Context, w *retry.Wrapper, sink PersistenceSink, game string, owners []string, blobQueue chan<- BlobTask) error {
	defer close(blobQueue)

	for _, owner := range owners {
		targets := make([]nexrpc.PersistenceTarget, PersistenceSlotCount)
		for slot := 0; slot < PersistenceSlotCount; slot++ {
			targets[slot] = nexrpc.PersistenceTarget{OwnerID: owner, Slot: int32(slot)}
		}

		var entries []nexrpc.MetaEntryResult
		err := w.Do(ctx, func(ctx context.Context, s nexrpc.Session) error {
			r, err := s.GetMetasMultipleParam(ctx, targets, nexrpc.MetaResultOptionAll)
			if err != nil {
				return err
			}
			entries = r
			return nil
		})
		if err != nil {
			continue
		}
		if entries == nil {
			continue
		}

		for slot, e := range entries {
			if e.Err != nil || e.Meta == nil {
				continue
			}
			toFetch, err := sink.InsertMetas(ctx, game, []nexrpc.DataStoreMeta{*e.Meta})
			if err != nil {
				return err
			}
			if err := sink.InsertPersistenceMapping(ctx, game, owner, int32(slot), e.Meta.DataID); err != nil {
				return err
			}
			for _, dataID := range toFetch {
				select {
				case blobQueue <- BlobTask{DataID: dataID, OwnerID: e.Meta.OwnerID}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
	return nil
}
