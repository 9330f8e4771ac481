package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/trinsiklabs/onelist/internal/store"
)

// RelationshipStore implements store.RelationshipStore on SQLite.
type RelationshipStore struct {
	db *sql.DB
}

func (s *RelationshipStore) Create(ctx context.Context, r *store.Relationship) error {
	if r.ID == "" {
		r.ID = uuid.Must(uuid.NewV7()).String()
	}
	r.CreatedAt = time.Now().UTC()
	meta, err := json.Marshal(orEmpty(r.Metadata))
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO relationships (id, owner_id, source_id, target_id, type, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.OwnerID, r.SourceID, r.TargetID, r.Type, string(meta), r.CreatedAt.UnixMilli())
	if err != nil && isUniqueViolation(err) {
		return store.ErrConflict
	}
	return err
}

func (s *RelationshipStore) List(ctx context.Context, ownerID, entryID, relType, direction string) ([]store.Relationship, error) {
	query := `SELECT id, owner_id, source_id, target_id, type, metadata, created_at
		FROM relationships WHERE owner_id = ?`
	args := []interface{}{ownerID}

	switch direction {
	case "outgoing":
		query += ` AND source_id = ?`
		args = append(args, entryID)
	case "incoming":
		query += ` AND target_id = ?`
		args = append(args, entryID)
	default:
		query += ` AND (source_id = ? OR target_id = ?)`
		args = append(args, entryID, entryID)
	}
	if relType != "" {
		query += ` AND type = ?`
		args = append(args, relType)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRelationships(rows)
}

// BlockingChain walks the blocking-dependency closure breadth first,
// guarding against cycles.
func (s *RelationshipStore) BlockingChain(ctx context.Context, ownerID, entryID string) ([]store.Relationship, error) {
	var out []store.Relationship
	seen := map[string]bool{entryID: true}
	frontier := []string{entryID}

	for len(frontier) > 0 {
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, owner_id, source_id, target_id, type, metadata, created_at
			FROM relationships
			WHERE owner_id = ? AND type IN ('blocks', 'depends_on')
			  AND source_id IN (`+placeholders(len(frontier))+`)
			ORDER BY created_at ASC`,
			append([]interface{}{ownerID}, toArgs(frontier)...)...)
		if err != nil {
			return nil, err
		}
		batch, err := scanRelationships(rows)
		rows.Close()
		if err != nil {
			return nil, err
		}

		frontier = frontier[:0]
		for _, r := range batch {
			out = append(out, r)
			if !seen[r.TargetID] {
				seen[r.TargetID] = true
				frontier = append(frontier, r.TargetID)
			}
		}
	}
	return out, nil
}

func scanRelationships(rows *sql.Rows) ([]store.Relationship, error) {
	var out []store.Relationship
	for rows.Next() {
		var r store.Relationship
		var meta string
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.SourceID, &r.TargetID, &r.Type, &meta, &createdAt); err != nil {
			return nil, err
		}
		r.CreatedAt = time.UnixMilli(createdAt).UTC()
		if meta != "" {
			json.Unmarshal([]byte(meta), &r.Metadata)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	out := make([]byte, 0, 2*n)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}

func toArgs(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// TaskStore implements store.TaskStore on SQLite.
type TaskStore struct {
	db *sql.DB
}

// Claim inserts the exclusive claimed_by edge. The partial unique index on
// {owner, task} makes the insert the compare-and-set: the loser's insert
// violates it.
func (s *TaskStore) Claim(ctx context.Context, ownerID, taskID, personID string) error {
	var entryType string
	err := s.db.QueryRowContext(ctx,
		`SELECT entry_type FROM entries WHERE owner_id = ? AND id = ?`, ownerID, taskID).
		Scan(&entryType)
	if err == sql.ErrNoRows {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	if entryType != "task" {
		return store.ErrConflict
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO relationships (id, owner_id, source_id, target_id, type, metadata, created_at)
		VALUES (?, ?, ?, ?, 'claimed_by', '{}', ?)`,
		uuid.Must(uuid.NewV7()).String(), ownerID, taskID, personID, time.Now().UTC().UnixMilli())
	if err != nil && isUniqueViolation(err) {
		return store.ErrAlreadyClaimed
	}
	return err
}

// AssignedTasks lists task entries with an assigned_to edge targeting the
// person or, when includeChildren, any person below it (instances under a
// type, sub-agents under an instance).
func (s *TaskStore) AssignedTasks(ctx context.Context, ownerID, personID string, includeChildren bool) ([]store.Entry, error) {
	persons := []string{personID}
	if includeChildren {
		seen := map[string]bool{personID: true}
		frontier := []string{personID}
		for len(frontier) > 0 {
			rows, err := s.db.QueryContext(ctx, `
				SELECT source_id FROM relationships
				WHERE owner_id = ? AND type IN ('instance_of', 'subagent_of')
				  AND target_id IN (`+placeholders(len(frontier))+`)`,
				append([]interface{}{ownerID}, toArgs(frontier)...)...)
			if err != nil {
				return nil, err
			}
			var next []string
			for rows.Next() {
				var id string
				if err := rows.Scan(&id); err != nil {
					rows.Close()
					return nil, err
				}
				if !seen[id] {
					seen[id] = true
					next = append(next, id)
				}
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				return nil, err
			}
			persons = append(persons, next...)
			frontier = next
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryCols+` FROM entries
		WHERE owner_id = ? AND entry_type = 'task' AND id IN (
			SELECT source_id FROM relationships
			WHERE owner_id = ? AND type = 'assigned_to'
			  AND target_id IN (`+placeholders(len(persons))+`)
		)
		ORDER BY created_at ASC`,
		append([]interface{}{ownerID, ownerID}, toArgs(persons)...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}
