// Package sqlite implements the Store's persistence on a local SQLite file
// (standalone mode) using the pure-Go driver. Per-entry append and
// per-owner chain serialization are enforced with keyed mutexes on top of
// transactions.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/trinsiklabs/onelist/internal/store"
)

// NewStores opens (creating if needed) the standalone database and returns
// the full store container.
func NewStores(path string) (*store.Stores, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The sqlite driver serializes writes; a single connection avoids
	// SQLITE_BUSY churn under concurrent handlers.
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	entries := &EntryStore{db: db, appendLocks: store.NewKeyedMutex()}
	return &store.Stores{
		Owners:        &OwnerStore{db: db},
		Entries:       entries,
		Memories:      &MemoryStore{db: db},
		Chain:         &ChainStore{db: db},
		Relationships: &RelationshipStore{db: db},
		Tasks:         &TaskStore{db: db},
		Search:        &SearchStore{db: db},
	}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS owners (
	id             TEXT PRIMARY KEY,
	trusted_memory INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS entries (
	id              TEXT PRIMARY KEY,
	public_id       TEXT NOT NULL UNIQUE,
	owner_id        TEXT NOT NULL,
	entry_type      TEXT NOT NULL,
	title           TEXT NOT NULL DEFAULT '',
	metadata        TEXT NOT NULL DEFAULT '{}',
	revision        INTEGER NOT NULL DEFAULT 1,
	created_at      INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL,
	agent_kind      TEXT NOT NULL DEFAULT '',
	agent_version   TEXT NOT NULL DEFAULT '',
	instance_id     TEXT NOT NULL DEFAULT '',
	subagent_id     TEXT NOT NULL DEFAULT '',
	external_key    TEXT,
	message_count   INTEGER NOT NULL DEFAULT 0,
	last_message_at INTEGER,
	last_role       TEXT NOT NULL DEFAULT '',
	chain_hash      TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_external_key
	ON entries(owner_id, external_key) WHERE external_key IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_entries_owner_updated ON entries(owner_id, updated_at DESC);

CREATE TABLE IF NOT EXISTS representations (
	entry_id TEXT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
	form     TEXT NOT NULL,
	content  TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (entry_id, form)
);

CREATE TABLE IF NOT EXISTS assets (
	id         TEXT PRIMARY KEY,
	entry_id   TEXT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	media_type TEXT NOT NULL DEFAULT '',
	data       BLOB NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_assets_entry ON assets(entry_id);

CREATE TABLE IF NOT EXISTS message_index (
	owner_id   TEXT NOT NULL,
	message_id TEXT NOT NULL,
	entry_id   TEXT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
	PRIMARY KEY (owner_id, message_id)
);

CREATE TABLE IF NOT EXISTS memories (
	id              TEXT PRIMARY KEY,
	owner_id        TEXT NOT NULL,
	source_entry_id TEXT NOT NULL DEFAULT '',
	chunk_index     INTEGER NOT NULL DEFAULT 0,
	kind            TEXT NOT NULL,
	content         TEXT NOT NULL,
	confidence      REAL NOT NULL DEFAULT 1.0,
	valid_from      INTEGER NOT NULL,
	valid_until     INTEGER,
	source_agent    TEXT NOT NULL DEFAULT '',
	agent_version   TEXT NOT NULL DEFAULT '',
	depth           INTEGER NOT NULL DEFAULT 0,
	derived_from_id TEXT NOT NULL DEFAULT '',
	content_hash    TEXT NOT NULL,
	created_at      INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_memories_current_hash
	ON memories(owner_id, content_hash) WHERE valid_until IS NULL;

CREATE TABLE IF NOT EXISTS chain_records (
	owner_id  TEXT NOT NULL,
	seq       INTEGER NOT NULL,
	prev_hash TEXT NOT NULL,
	this_hash TEXT NOT NULL,
	kind      TEXT NOT NULL,
	entry_id  TEXT NOT NULL DEFAULT '',
	at        INTEGER NOT NULL,
	PRIMARY KEY (owner_id, seq)
);

CREATE TABLE IF NOT EXISTS relationships (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	source_id  TEXT NOT NULL,
	target_id  TEXT NOT NULL,
	type       TEXT NOT NULL,
	metadata   TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL,
	UNIQUE (owner_id, source_id, target_id, type)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_relationships_claim
	ON relationships(owner_id, source_id) WHERE type = 'claimed_by';
`)
	return err
}
