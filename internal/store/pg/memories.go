package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/trinsiklabs/onelist/internal/store"
)

// OwnerStore implements store.OwnerStore on Postgres.
type OwnerStore struct {
	db *sql.DB
}

func (s *OwnerStore) TrustedMemory(ctx context.Context, ownerID string) (bool, error) {
	var trusted bool
	err := s.db.QueryRowContext(ctx,
		`SELECT trusted_memory FROM owners WHERE id = $1`, ownerID).Scan(&trusted)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return trusted, err
}

func (s *OwnerStore) SetTrustedMemory(ctx context.Context, ownerID string, on bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO owners (id, trusted_memory) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET trusted_memory = excluded.trusted_memory`,
		ownerID, on)
	return err
}

// MemoryStore implements store.MemoryStore on Postgres.
type MemoryStore struct {
	db *sql.DB
}

const memoryCols = `id, owner_id, source_entry_id, chunk_index, kind, content, confidence,
	valid_from, valid_until, source_agent, agent_version, depth, derived_from_id,
	content_hash, created_at`

func (s *MemoryStore) Create(ctx context.Context, m *store.Memory) error {
	if m.ID == "" {
		m.ID = uuid.Must(uuid.NewV7()).String()
	}
	now := time.Now().UTC()
	m.CreatedAt = now
	if m.ValidFrom == 0 {
		m.ValidFrom = now.UnixMilli()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (`+memoryCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		m.ID, m.OwnerID, m.SourceEntryID, m.ChunkIndex, m.Kind, m.Content, m.Confidence,
		m.ValidFrom, m.ValidUntil, m.SourceAgent, m.AgentVersion, m.Depth, m.DerivedFromID,
		m.ContentHash, now.UnixMilli())
	if err != nil && isUniqueViolation(err) {
		// Partial unique index: one current memory per {owner, hash}.
		return store.ErrConflict
	}
	return err
}

func (s *MemoryStore) Get(ctx context.Context, ownerID, id string) (*store.Memory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+memoryCols+` FROM memories WHERE owner_id = $1 AND id = $2`, ownerID, id)
	return scanMemory(row)
}

func (s *MemoryStore) CurrentByHash(ctx context.Context, ownerID, contentHash string) (*store.Memory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+memoryCols+` FROM memories
		WHERE owner_id = $1 AND content_hash = $2 AND valid_until IS NULL`,
		ownerID, contentHash)
	m, err := scanMemory(row)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return m, err
}

func (s *MemoryStore) Supersede(ctx context.Context, ownerID, id string, at int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET valid_until = $1
		WHERE owner_id = $2 AND id = $3 AND valid_until IS NULL`,
		at, ownerID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanMemory(row rowScanner) (*store.Memory, error) {
	var m store.Memory
	var validUntil sql.NullInt64
	var createdAt int64

	err := row.Scan(&m.ID, &m.OwnerID, &m.SourceEntryID, &m.ChunkIndex, &m.Kind, &m.Content,
		&m.Confidence, &m.ValidFrom, &validUntil, &m.SourceAgent, &m.AgentVersion,
		&m.Depth, &m.DerivedFromID, &m.ContentHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if validUntil.Valid {
		m.ValidUntil = &validUntil.Int64
	}
	m.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &m, nil
}

// ChainStore implements store.ChainStore on Postgres. Sequencing is the
// chain worker's job; the primary key rejects a duplicated sequence.
type ChainStore struct {
	db *sql.DB
}

func (s *ChainStore) Append(ctx context.Context, r *store.ChainRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chain_records (owner_id, seq, prev_hash, this_hash, kind, entry_id, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.OwnerID, r.Seq, r.PrevHash, r.ThisHash, r.Kind, r.EntryID, r.At.UnixMilli())
	if err != nil && isUniqueViolation(err) {
		return store.ErrConflict
	}
	return err
}

func (s *ChainStore) Last(ctx context.Context, ownerID string) (*store.ChainRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT owner_id, seq, prev_hash, this_hash, kind, entry_id, at
		FROM chain_records WHERE owner_id = $1 ORDER BY seq DESC LIMIT 1`, ownerID)
	r, err := scanChainRecord(row)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return r, err
}

func (s *ChainStore) Walk(ctx context.Context, ownerID string, fn func(*store.ChainRecord) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT owner_id, seq, prev_hash, this_hash, kind, entry_id, at
		FROM chain_records WHERE owner_id = $1 ORDER BY seq ASC`, ownerID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		r, err := scanChainRecord(rows)
		if err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return rows.Err()
}

func scanChainRecord(row rowScanner) (*store.ChainRecord, error) {
	var r store.ChainRecord
	var at int64
	err := row.Scan(&r.OwnerID, &r.Seq, &r.PrevHash, &r.ThisHash, &r.Kind, &r.EntryID, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.At = time.UnixMilli(at).UTC()
	return &r, nil
}
