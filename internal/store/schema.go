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

// Bootstrap DDL only: enough to stand up a fresh ranking.db / datastore.db
// for tests and first-run deployments. Full schema migration/versioning and
// backup tooling is an external collaborator (spec §1) and lives outside
// this package.

const rankingSchema = `
CREATE TABLE IF NOT EXISTS ranking (
	game TEXT NOT NULL,
	id TEXT NOT NULL,
	pid TEXT NOT NULL,
	rank INTEGER NOT NULL,
	category INTEGER NOT NULL,
	score INTEGER NOT NULL,
	param TEXT,
	data BLOB,
	update_time INTEGER,
	PRIMARY KEY (game, category, rank)
);
CREATE INDEX IF NOT EXISTS idx_ranking_game_category ON ranking (game, category);
CREATE INDEX IF NOT EXISTS idx_ranking_rank ON ranking (rank);

CREATE TABLE IF NOT EXISTS ranking_group (
	game TEXT NOT NULL,
	id TEXT NOT NULL,
	pid TEXT NOT NULL,
	rank INTEGER NOT NULL,
	category INTEGER NOT NULL,
	score INTEGER NOT NULL,
	param TEXT,
	data BLOB,
	update_time INTEGER,
	ranking_group INTEGER NOT NULL,
	ranking_index INTEGER NOT NULL,
	PRIMARY KEY (game, category, rank, ranking_group, ranking_index)
);
`

const dataStoreSchema = `
CREATE TABLE IF NOT EXISTS datastore_meta (
	game TEXT NOT NULL,
	data_id INTEGER NOT NULL,
	owner_id TEXT,
	size INTEGER NOT NULL,
	name TEXT,
	data_type INTEGER,
	meta_binary BLOB,
	permission_mask INTEGER,
	delete_permission_mask INTEGER,
	create_time INTEGER,
	update_time INTEGER,
	referred_time INTEGER,
	expire_time INTEGER,
	period INTEGER,
	status INTEGER,
	referred_count INTEGER,
	refer_data_id INTEGER,
	flag INTEGER,
	PRIMARY KEY (game, data_id)
);

CREATE TABLE IF NOT EXISTS datastore_meta_tag (
	game TEXT NOT NULL,
	data_id INTEGER NOT NULL,
	tag TEXT NOT NULL,
	PRIMARY KEY (game, data_id, tag)
);

CREATE TABLE IF NOT EXISTS datastore_meta_rating (
	game TEXT NOT NULL,
	data_id INTEGER NOT NULL,
	slot INTEGER NOT NULL,
	total_value INTEGER,
	count INTEGER,
	initial_value INTEGER,
	PRIMARY KEY (game, data_id, slot)
);

CREATE TABLE IF NOT EXISTS datastore_data (
	game TEXT NOT NULL,
	data_id INTEGER NOT NULL,
	error TEXT,
	url TEXT,
	data BLOB,
	PRIMARY KEY (game, data_id)
);

CREATE TABLE IF NOT EXISTS datastore_permission_recipients (
	game TEXT NOT NULL,
	data_id INTEGER NOT NULL,
	is_delete INTEGER NOT NULL,
	recipient TEXT NOT NULL,
	PRIMARY KEY (game, data_id, is_delete, recipient)
);

CREATE TABLE IF NOT EXISTS datastore_persistent (
	game TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	persistence_id INTEGER NOT NULL,
	data_id INTEGER NOT NULL,
	PRIMARY KEY (game, owner_id, persistence_id)
);
`
