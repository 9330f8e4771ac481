package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trinsiklabs/onelist/internal/store"
)

// EntryStore implements store.EntryStore on Postgres.
type EntryStore struct {
	db          *sql.DB
	appendLocks *store.KeyedMutex
}

const entryCols = `id, public_id, owner_id, entry_type, title, metadata, revision,
	created_at, updated_at, agent_kind, agent_version, instance_id, subagent_id,
	external_key, message_count, last_message_at, last_role, chain_hash`

func (s *EntryStore) Create(ctx context.Context, e *store.Entry) error {
	now := time.Now().UTC()
	if e.ID == "" {
		e.ID = uuid.Must(uuid.NewV7()).String()
	}
	if e.PublicID == "" {
		e.PublicID = strings.ReplaceAll(uuid.Must(uuid.NewV7()).String(), "-", "")[:12]
	}
	e.CreatedAt, e.UpdatedAt = now, now
	e.Revision = 1

	meta, err := json.Marshal(orEmpty(e.Metadata))
	if err != nil {
		return err
	}
	var extKey interface{}
	if e.ExternalKey != "" {
		extKey = e.ExternalKey
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entries (id, public_id, owner_id, entry_type, title, metadata, revision,
			created_at, updated_at, agent_kind, agent_version, instance_id, subagent_id, external_key)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID, e.PublicID, e.OwnerID, e.EntryType, e.Title, string(meta),
		now.UnixMilli(), now.UnixMilli(),
		e.AgentKind, e.AgentVersion, e.InstanceID, e.SubagentID, extKey)
	if err != nil && isUniqueViolation(err) {
		return store.ErrConflict
	}
	return err
}

func (s *EntryStore) Get(ctx context.Context, ownerID, id string) (*store.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryCols+` FROM entries WHERE owner_id = $1 AND (id = $2 OR public_id = $2)`,
		ownerID, id)
	return scanEntry(row)
}

func (s *EntryStore) GetByExternalKey(ctx context.Context, ownerID, key string) (*store.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryCols+` FROM entries WHERE owner_id = $1 AND external_key = $2`,
		ownerID, key)
	return scanEntry(row)
}

func (s *EntryStore) Update(ctx context.Context, ownerID, id string, upd store.EntryUpdate) (*store.Entry, error) {
	e, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if upd.Title != nil {
		e.Title = *upd.Title
	}
	if upd.Metadata != nil {
		e.Metadata = upd.Metadata
	}
	meta, err := json.Marshal(orEmpty(e.Metadata))
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE entries SET title = $1, metadata = $2, revision = revision + 1, updated_at = $3
		WHERE owner_id = $4 AND id = $5`,
		e.Title, string(meta), now.UnixMilli(), ownerID, e.ID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}

	if upd.Content != nil {
		if err := s.SetRepresentation(ctx, ownerID, e.ID, store.FormMarkdown, *upd.Content); err != nil {
			return nil, err
		}
	}
	return s.Get(ctx, ownerID, e.ID)
}

func (s *EntryStore) Delete(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM entries WHERE owner_id = $1 AND (id = $2 OR public_id = $2)`, ownerID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// AppendLine mirrors the sqlite backend: one transaction appends the
// canonical line, bumps the chat attributes, and indexes the message id.
// The keyed mutex keeps the process's own appends from interleaving;
// row-level locking covers multi-process deployments.
func (s *EntryStore) AppendLine(ctx context.Context, ownerID, id string, line []byte, meta store.AppendMeta) (int, error) {
	unlock := s.appendLocks.Lock(id)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO representations (entry_id, form, content) VALUES ($1, $2, $3)
		ON CONFLICT (entry_id, form) DO UPDATE SET content = representations.content || excluded.content`,
		id, store.FormJSONL, string(line)+"\n")
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	var lastAt interface{}
	if meta.Timestamp != nil {
		lastAt = meta.Timestamp.UnixMilli()
	} else {
		lastAt = now.UnixMilli()
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE entries SET message_count = message_count + 1, last_message_at = $1,
			last_role = $2, revision = revision + 1, updated_at = $3
		WHERE owner_id = $4 AND id = $5`,
		lastAt, meta.Role, now.UnixMilli(), ownerID, id)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, store.ErrNotFound
	}

	if meta.MessageID != "" {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO message_index (owner_id, message_id, entry_id) VALUES ($1, $2, $3)
			ON CONFLICT (owner_id, message_id) DO NOTHING`,
			ownerID, meta.MessageID, id); err != nil {
			return 0, err
		}
	}

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT message_count FROM entries WHERE id = $1`, id).Scan(&count); err != nil {
		return 0, err
	}
	return count, tx.Commit()
}

func (s *EntryStore) AppendSideLine(ctx context.Context, ownerID, id string, line []byte) error {
	unlock := s.appendLocks.Lock(id)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO representations (entry_id, form, content) VALUES ($1, $2, $3)
		ON CONFLICT (entry_id, form) DO UPDATE SET content = representations.content || excluded.content`,
		id, store.FormJSONL, string(line)+"\n"); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE entries SET revision = revision + 1, updated_at = $1
		WHERE owner_id = $2 AND id = $3`,
		time.Now().UTC().UnixMilli(), ownerID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return tx.Commit()
}

func (s *EntryStore) FindMessageEntry(ctx context.Context, ownerID, messageID string) (string, error) {
	var entryID string
	err := s.db.QueryRowContext(ctx,
		`SELECT entry_id FROM message_index WHERE owner_id = $1 AND message_id = $2`,
		ownerID, messageID).Scan(&entryID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	return entryID, err
}

func (s *EntryStore) Representation(ctx context.Context, ownerID, id, form string) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx, `
		SELECT r.content FROM representations r
		JOIN entries e ON e.id = r.entry_id
		WHERE e.owner_id = $1 AND r.entry_id = $2 AND r.form = $3`,
		ownerID, id, form).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	return content, err
}

func (s *EntryStore) SetRepresentation(ctx context.Context, ownerID, id, form, content string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO representations (entry_id, form, content) VALUES ($1, $2, $3)
		ON CONFLICT (entry_id, form) DO UPDATE SET content = excluded.content`,
		id, form, content)
	return err
}

func (s *EntryStore) SetChainHash(ctx context.Context, ownerID, id, hash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE entries SET chain_hash = $1 WHERE owner_id = $2 AND id = $3`, hash, ownerID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// PutAsset stores the blob and bumps the owning entry's revision in one
// transaction.
func (s *EntryStore) PutAsset(ctx context.Context, ownerID, entryID string, a *store.Asset) error {
	if a.ID == "" {
		a.ID = uuid.Must(uuid.NewV7()).String()
	}
	a.EntryID = entryID
	a.CreatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE entries SET revision = revision + 1, updated_at = $1
		WHERE owner_id = $2 AND id = $3`,
		a.CreatedAt.UnixMilli(), ownerID, entryID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO assets (id, entry_id, name, media_type, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, entryID, a.Name, a.MediaType, a.Data, a.CreatedAt.UnixMilli()); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *EntryStore) ListAssets(ctx context.Context, ownerID, entryID string) ([]store.Asset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.name, a.media_type, length(a.data), a.created_at
		FROM assets a
		JOIN entries e ON e.id = a.entry_id
		WHERE e.owner_id = $1 AND a.entry_id = $2
		ORDER BY a.created_at`,
		ownerID, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Asset
	for rows.Next() {
		a := store.Asset{EntryID: entryID}
		var createdAt int64
		if err := rows.Scan(&a.ID, &a.Name, &a.MediaType, &a.Size, &createdAt); err != nil {
			return nil, err
		}
		a.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*store.Entry, error) {
	var e store.Entry
	var meta string
	var createdAt, updatedAt int64
	var lastMsgAt sql.NullInt64
	var extKey sql.NullString

	err := row.Scan(&e.ID, &e.PublicID, &e.OwnerID, &e.EntryType, &e.Title, &meta, &e.Revision,
		&createdAt, &updatedAt, &e.AgentKind, &e.AgentVersion, &e.InstanceID, &e.SubagentID,
		&extKey, &e.MessageCount, &lastMsgAt, &e.LastRole, &e.ChainHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	e.CreatedAt = time.UnixMilli(createdAt).UTC()
	e.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	if lastMsgAt.Valid {
		t := time.UnixMilli(lastMsgAt.Int64).UTC()
		e.LastMessageAt = &t
	}
	e.ExternalKey = extKey.String
	if meta != "" {
		json.Unmarshal([]byte(meta), &e.Metadata)
	}
	return &e, nil
}
