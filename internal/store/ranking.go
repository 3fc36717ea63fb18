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
	"strconv"

	"github.com/jmoiron/sqlx"

	"github.com/nex-archival/nexharvest/internal/nexrpc"
)

// Watermark is the highest (rank, unique_id, principal-id) persisted so far
// for one (game, category), used by Ranking Harvester state S1 to resume.
type Watermark struct {
	Rank        int64
	UniqueID    uint64
	PrincipalID string
}

// CountRows returns the number of ranking rows already persisted for
// (game, category), used by state S1 to decide DONE/S2/S4.
func (s *RankingStore) CountRows(ctx context.Context, game string, category uint32) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM ranking WHERE game = ? AND category = ?`, game, category)
	if err != nil {
		return 0, fmt.Errorf("store: count ranking rows: %w", err)
	}
	return n, nil
}

// HighestWatermark returns the highest-rank row persisted for (game,
// category), for resuming into state S4 directly.
func (s *RankingStore) HighestWatermark(ctx context.Context, game string, category uint32) (Watermark, bool, error) {
	var row struct {
		Rank int64  `db:"rank"`
		ID   string `db:"id"`
		PID  string `db:"pid"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT rank, id, pid FROM ranking WHERE game = ? AND category = ? ORDER BY rank DESC LIMIT 1`,
		game, category)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Watermark{}, false, nil
		}
		return Watermark{}, false, fmt.Errorf("store: highest watermark: %w", err)
	}
	uid, err := strconv.ParseUint(row.ID, 10, 64)
	if err != nil {
		return Watermark{}, false, fmt.Errorf("store: parse watermark unique_id: %w", err)
	}
	return Watermark{Rank: row.Rank, UniqueID: uid, PrincipalID: row.PID}, true, nil
}

// rankingRow is the sqlx-bound shape of one `ranking` table row.
type rankingRow struct {
	Game       string `db:"game"`
	ID         string `db:"id"`
	PID        string `db:"pid"`
	Rank       int64  `db:"rank"`
	Category   uint32 `db:"category"`
	Score      int64  `db:"score"`
	Param      string `db:"param"`
	Data       []byte `db:"data"`
	UpdateTime int64  `db:"update_time"`
}

// InsertEntries persists entries for (game, category) in one transaction
// (spec §3: atomic per-commit batch writes). Rows that already exist for
// the same (game, category, rank) are silently skipped (INSERT OR IGNORE),
// satisfying the "no rank written twice" invariant even if a caller submits
// an overlapping batch across the S2/S4 boundary.
func (s *RankingStore) InsertEntries(ctx context.Context, game string, category uint32, entries []nexrpc.RankingEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		stmt, err := tx.PrepareNamedContext(ctx,
			`INSERT OR IGNORE INTO ranking (game, id, pid, rank, category, score, param, data, update_time)
			 VALUES (:game, :id, :pid, :rank, :category, :score, :param, :data, :update_time)`)
		if err != nil {
			return fmt.Errorf("store: prepare insert ranking: %w", err)
		}
		defer stmt.Close()

		for _, e := range entries {
			row := rankingRow{
				Game:       game,
				ID:         strconv.FormatUint(e.UniqueID, 10),
				PID:        e.PrincipalID,
				Rank:       e.Rank,
				Category:   category,
				Score:      e.Score,
				Param:      strconv.FormatUint(e.Param, 10),
				Data:       e.CommonData,
				UpdateTime: e.UpdateTime.Unix(),
			}
			if _, err := stmt.ExecContext(ctx, row); err != nil {
				return fmt.Errorf("store: insert ranking row: %w", err)
			}
		}
		return nil
	})
}
