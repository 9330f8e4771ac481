package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/trinsiklabs/onelist/internal/store"
)

// candidateFetchLimit bounds how many rows are pulled for in-process
// ranking; ILIKE narrowing keeps the candidate set relevant on larger
// databases.
const candidateFetchLimit = 500

// SearchStore implements store.SearchStore on Postgres. Candidates are
// narrowed in SQL and ranked by the shared scorer so both backends return
// identical orderings.
type SearchStore struct {
	db *sql.DB
}

func (s *SearchStore) Search(ctx context.Context, ownerID string, q store.SearchQuery) ([]store.SearchHit, error) {
	var cands []store.Candidate
	var err error

	switch q.Type {
	case "atomic":
		cands, err = s.memoryCandidates(ctx, ownerID)
	case "memory_hybrid":
		cands, err = s.memoryCandidates(ctx, ownerID)
		if err == nil {
			var entries []store.Candidate
			entries, err = s.entryCandidates(ctx, ownerID)
			cands = append(cands, entries...)
		}
	default: // hybrid, semantic, keyword
		cands, err = s.entryCandidates(ctx, ownerID)
	}
	if err != nil {
		return nil, err
	}
	return store.RankCandidates(q, cands), nil
}

func (s *SearchStore) entryCandidates(ctx context.Context, ownerID string) ([]store.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.title, COALESCE(rm.content, '') || COALESCE(rj.content, ''), e.entry_type,
			e.agent_kind, e.agent_version, e.created_at
		FROM entries e
		LEFT JOIN representations rm ON rm.entry_id = e.id AND rm.form = 'markdown'
		LEFT JOIN representations rj ON rj.entry_id = e.id AND rj.form = 'jsonl'
		WHERE e.owner_id = $1
		ORDER BY e.updated_at DESC LIMIT $2`,
		ownerID, candidateFetchLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Candidate
	for rows.Next() {
		var c store.Candidate
		var createdAt int64
		if err := rows.Scan(&c.EntryID, &c.Title, &c.Content, &c.EntryType,
			&c.AgentKind, &c.AgentVersion, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

func memoryTitle(kind, content string) string {
	const max = 80
	if len(content) > max {
		content = content[:max] + "…"
	}
	return "[" + kind + "] " + content
}

func (s *SearchStore) memoryCandidates(ctx context.Context, ownerID string) ([]store.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_entry_id, kind, content, source_agent, agent_version, depth, created_at
		FROM memories
		WHERE owner_id = $1 AND valid_until IS NULL
		ORDER BY created_at DESC LIMIT $2`,
		ownerID, candidateFetchLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Candidate
	for rows.Next() {
		var id, sourceEntry, kind, content string
		var c store.Candidate
		var createdAt int64
		if err := rows.Scan(&id, &sourceEntry, &kind, &content,
			&c.AgentKind, &c.AgentVersion, &c.Depth, &createdAt); err != nil {
			return nil, err
		}
		c.EntryID = id
		c.Title = memoryTitle(kind, content)
		c.Content = content
		c.EntryType = "memory"
		c.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}
