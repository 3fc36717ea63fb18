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
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/nex-archival/nexharvest/internal/nexrpc"
)

// InsertMetas persists metas (plus their tags and ratings) for game in one
// transaction, and returns the subset of data_ids with Size > 0 — the ones
// the caller must push onto the blob queue (spec §4.6).
func (s *DataStoreStore) InsertMetas(ctx context.Context, game string, metas []nexrpc.DataStoreMeta) ([]uint64, error) {
	if len(metas) == 0 {
		return nil, nil
	}
	var toFetch []uint64
	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		metaStmt, err := tx.PrepareNamedContext(ctx, `
			INSERT OR IGNORE INTO datastore_meta
				(game, data_id, owner_id, size, name, data_type, meta_binary,
				 permission_mask, delete_permission_mask, create_time, update_time,
				 referred_time, expire_time, period, status, referred_count,
				 refer_data_id, flag)
			VALUES
				(:game, :data_id, :owner_id, :size, :name, :data_type, :meta_binary,
				 :permission_mask, :delete_permission_mask, :create_time, :update_time,
				 :referred_time, :expire_time, :period, :status, :referred_count,
				 :refer_data_id, :flag)`)
		if err != nil {
			return fmt.Errorf("store: prepare insert meta: %w", err)
		}
		defer metaStmt.Close()

		tagStmt, err := tx.PreparexContext(ctx,
			`INSERT OR IGNORE INTO datastore_meta_tag (game, data_id, tag) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("store: prepare insert tag: %w", err)
		}
		defer tagStmt.Close()

		ratingStmt, err := tx.PreparexContext(ctx,
			`INSERT OR IGNORE INTO datastore_meta_rating (game, data_id, slot, total_value, count, initial_value) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("store: prepare insert rating: %w", err)
		}
		defer ratingStmt.Close()

		recipStmt, err := tx.PreparexContext(ctx,
			`INSERT OR IGNORE INTO datastore_permission_recipients (game, data_id, is_delete, recipient) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("store: prepare insert recipient: %w", err)
		}
		defer recipStmt.Close()

		for _, m := range metas {
			row := metaRow{
				Game:           game,
				DataID:         m.DataID,
				OwnerID:        m.OwnerID,
				Size:           m.Size,
				Name:           m.Name,
				DataType:       m.DataType,
				MetaBinary:     m.MetaBinary,
				PermissionMask: m.PermissionMask,
				DeletePermMask: m.DeletePermMask,
				CreateTime:     m.CreateTime.Unix(),
				UpdateTime:     m.UpdateTime.Unix(),
				ReferredTime:   m.ReferredTime.Unix(),
				ExpireTime:     m.ExpireTime.Unix(),
				Period:         m.Period,
				Status:         m.Status,
				ReferredCount:  m.ReferredCount,
				ReferDataID:    m.ReferDataID,
				Flag:           m.Flag,
			}
			if _, err := metaStmt.ExecContext(ctx, row); err != nil {
				return fmt.Errorf("store: insert meta row: %w", err)
			}
			for _, tag := range m.Tags {
				if _, err := tagStmt.ExecContext(ctx, game, m.DataID, tag); err != nil {
					return fmt.Errorf("store: insert tag row: %w", err)
				}
			}
			for _, r := range m.Ratings {
				if _, err := ratingStmt.ExecContext(ctx, game, m.DataID, r.Slot, r.Total, r.Count, r.Initial); err != nil {
					return fmt.Errorf("store: insert rating row: %w", err)
				}
			}
			for _, recip := range m.PermissionRecips {
				if _, err := recipStmt.ExecContext(ctx, game, m.DataID, 0, recip); err != nil {
					return fmt.Errorf("store: insert permission recipient row: %w", err)
				}
			}
			for _, recip := range m.DeletePermRecips {
				if _, err := recipStmt.ExecContext(ctx, game, m.DataID, 1, recip); err != nil {
					return fmt.Errorf("store: insert delete-permission recipient row: %w", err)
				}
			}
			if m.Size > 0 {
				toFetch = append(toFetch, m.DataID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toFetch, nil
}

type metaRow struct {
	Game           string `db:"game"`
	DataID         uint64 `db:"data_id"`
	OwnerID        string `db:"owner_id"`
	Size           int64  `db:"size"`
	Name           string `db:"name"`
	DataType       uint16 `db:"data_type"`
	MetaBinary     []byte `db:"meta_binary"`
	PermissionMask uint8  `db:"permission_mask"`
	DeletePermMask uint8  `db:"delete_permission_mask"`
	CreateTime     int64  `db:"create_time"`
	UpdateTime     int64  `db:"update_time"`
	ReferredTime   int64  `db:"referred_time"`
	ExpireTime     int64  `db:"expire_time"`
	Period         int32  `db:"period"`
	Status         int32  `db:"status"`
	ReferredCount  int64  `db:"referred_count"`
	ReferDataID    uint64 `db:"refer_data_id"`
	Flag           uint32 `db:"flag"`
}

// InsertBlob persists one datastore_data row: either a successful
// (url, gzip-compressed data) pair, or an error string (spec §4.7, §8
// scenario 5). Exactly one of data/errMsg should be non-empty.
func (s *DataStoreStore) InsertBlob(ctx context.Context, game string, dataID uint64, url string, data []byte, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO datastore_data (game, data_id, error, url, data) VALUES (?, ?, ?, ?, ?)`,
		game, dataID, nullIfEmpty(errMsg), url, data)
	if err != nil {
		return fmt.Errorf("store: insert blob row: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// MaxDataID returns the highest data_id already persisted for game, used by
// the Range Finder's idempotent-resume step (spec §4.5 step 5).
func (s *DataStoreStore) MaxDataID(ctx context.Context, game string) (uint64, bool, error) {
	var max sql.NullInt64
	err := s.db.GetContext(ctx, &max, `SELECT MAX(data_id) FROM datastore_meta WHERE game = ?`, game)
	if err != nil {
		return 0, false, fmt.Errorf("store: max data_id: %w", err)
	}
	if !max.Valid {
		return 0, false, nil
	}
	return uint64(max.Int64), true, nil
}

// UnfetchedMetas returns data_ids that have a meta row with size > 0 but no
// corresponding datastore_data row yet, so the coordinator can pre-fill the
// blob queue on resume (spec §4.10).
func (s *DataStoreStore) UnfetchedMetas(ctx context.Context, game string) ([]uint64, error) {
	var ids []uint64
	err := s.db.SelectContext(ctx, &ids, `
		SELECT m.data_id FROM datastore_meta m
		LEFT JOIN datastore_data d ON d.game = m.game AND d.data_id = m.data_id
		WHERE m.game = ? AND m.size > 0 AND d.data_id IS NULL`, game)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: unfetched metas: %w", err)
	}
	return ids, nil
}

// PersistedDataIDs returns every data_id already persisted for game within
// [first, late], for the post-scan coverage check (spec §4.6 "find holes in
// a completed sweep").
func (s *DataStoreStore) PersistedDataIDs(ctx context.Context, game string, first, late uint64) ([]uint64, error) {
	var ids []uint64
	err := s.db.SelectContext(ctx, &ids,
		`SELECT data_id FROM datastore_meta WHERE game = ? AND data_id >= ? AND data_id <= ?`, game, first, late)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: persisted data_ids: %w", err)
	}
	return ids, nil
}

// InsertPersistenceMapping persists one PersistenceMapping row (spec §4.8).
func (s *DataStoreStore) InsertPersistenceMapping(ctx context.Context, game, owner string, slot int32, dataID uint64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO datastore_persistent (game, owner_id, persistence_id, data_id) VALUES (?, ?, ?, ?)`,
		game, owner, slot, dataID)
	if err != nil {
		return fmt.Errorf("store: insert persistence mapping: %w", err)
	}
	return nil
}
