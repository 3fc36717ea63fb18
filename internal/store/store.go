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

// Package store implements the Persistence Sink (spec §4.9): a narrow,
// append-only interface onto the relational store. All writers in the
// harvester go through it. Writes for a single batch commit atomically
// (spec §3); the handle is opened with a long busy-timeout because multiple
// worker processes/goroutines write the same database file concurrently
// (spec §4.9, §5).
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultBusyTimeout matches spec §4.9's recommendation.
const DefaultBusyTimeout = 3600 * time.Second

func open(path string, busyTimeout time.Duration) (*sqlx.DB, error) {
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL", path, busyTimeout.Milliseconds())
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// One process handle reused across many batches (spec §4.9); sqlite
	// serializes writers internally so a single pooled connection per
	// process is sufficient and avoids SQLITE_BUSY under our own load.
	db.SetMaxOpenConns(1)
	return db, nil
}

// RankingStore is the ranking.db-backed Persistence Sink.
type RankingStore struct {
	db *sqlx.DB
}

// OpenRanking opens (creating if needed) the ranking database at path.
func OpenRanking(path string, busyTimeout time.Duration) (*RankingStore, error) {
	db, err := open(path, busyTimeout)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(rankingSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create ranking schema: %w", err)
	}
	return &RankingStore{db: db}, nil
}

func (s *RankingStore) Close() error { return s.db.Close() }

// DataStoreStore is the datastore.db-backed Persistence Sink.
type DataStoreStore struct {
	db *sqlx.DB
}

// OpenDataStore opens (creating if needed) the datastore database at path.
func OpenDataStore(path string, busyTimeout time.Duration) (*DataStoreStore, error) {
	db, err := open(path, busyTimeout)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(dataStoreSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create datastore schema: %w", err)
	}
	return &DataStoreStore{db: db}, nil
}

func (s *DataStoreStore) Close() error { return s.db.Close() }

// withTx runs fn inside one transaction, committing only if fn succeeds, so
// a batch's writes are all-or-nothing (spec §3).
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit tx: %w", err)
	}
	return nil
}
