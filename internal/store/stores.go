// Package store defines the Store's persistence contracts and shared row
// types. Backends live in store/sqlite (standalone mode) and store/pg
// (managed mode).
package store

import "context"

// Stores is the top-level container for all storage backends.
type Stores struct {
	Owners        OwnerStore
	Entries       EntryStore
	Memories      MemoryStore
	Chain         ChainStore
	Relationships RelationshipStore
	Tasks         TaskStore
	Search        SearchStore
}

// OwnerStore keeps per-principal settings.
type OwnerStore interface {
	// TrustedMemory reports whether the owner opted into the verifiable
	// memory chain. Unknown owners default to false.
	TrustedMemory(ctx context.Context, ownerID string) (bool, error)
	SetTrustedMemory(ctx context.Context, ownerID string, on bool) error
}

// EntryStore persists entries and their representations. Entry type and
// provenance are immutable after creation; every mutation bumps Revision.
type EntryStore interface {
	Create(ctx context.Context, e *Entry) error
	Get(ctx context.Context, ownerID, id string) (*Entry, error)
	// GetByExternalKey resolves a chat-log entry by its external session key.
	GetByExternalKey(ctx context.Context, ownerID, key string) (*Entry, error)
	Update(ctx context.Context, ownerID, id string, upd EntryUpdate) (*Entry, error)
	Delete(ctx context.Context, ownerID, id string) error

	// AppendLine appends one canonical JSON line to the entry's jsonl
	// representation and atomically maintains message_count,
	// last_message_at, last_role and the revision. Appends are serialized
	// per entry. Returns the new message count.
	AppendLine(ctx context.Context, ownerID, id string, line []byte, meta AppendMeta) (int, error)

	// AppendSideLine appends a non-message line (e.g. a reaction record)
	// to the jsonl representation: revision bumps, message_count does not.
	AppendSideLine(ctx context.Context, ownerID, id string, line []byte) error

	// FindMessageEntry resolves which entry holds the given embedded
	// message id, for reaction cross-referencing.
	FindMessageEntry(ctx context.Context, ownerID, messageID string) (string, error)

	// Representation returns the named representation's content.
	Representation(ctx context.Context, ownerID, id, form string) (string, error)
	SetRepresentation(ctx context.Context, ownerID, id, form, content string) error

	// SetChainHash stores the entry's memory-chain hash (trusted mode).
	SetChainHash(ctx context.Context, ownerID, id, hash string) error

	// PutAsset stores an opaque blob owned by the entry and bumps the
	// entry's revision.
	PutAsset(ctx context.Context, ownerID, entryID string, a *Asset) error
	// ListAssets returns the entry's asset metadata, Data omitted.
	ListAssets(ctx context.Context, ownerID, entryID string) ([]Asset, error)
}

// MemoryStore persists atomic memories.
type MemoryStore interface {
	Create(ctx context.Context, m *Memory) error
	Get(ctx context.Context, ownerID, id string) (*Memory, error)
	// CurrentByHash finds the owner's non-superseded memory with the given
	// content hash, or nil.
	CurrentByHash(ctx context.Context, ownerID, contentHash string) (*Memory, error)
	// Supersede closes the memory's validity window. The caller guarantees
	// validUntil precedes any successor's validFrom.
	Supersede(ctx context.Context, ownerID, id string, at int64) error
}

// ChainStore persists the per-owner append-only hash chain.
type ChainStore interface {
	Append(ctx context.Context, r *ChainRecord) error
	Last(ctx context.Context, ownerID string) (*ChainRecord, error)
	// Walk visits records in sequence order.
	Walk(ctx context.Context, ownerID string, fn func(*ChainRecord) error) error
}

// RelationshipStore persists directed typed edges, unique by
// {source, target, type}.
type RelationshipStore interface {
	Create(ctx context.Context, r *Relationship) error
	List(ctx context.Context, ownerID, entryID, relType, direction string) ([]Relationship, error)
	// BlockingChain returns the transitive closure over blocking types
	// starting from the entry.
	BlockingChain(ctx context.Context, ownerID, entryID string) ([]Relationship, error)
}

// TaskStore covers claimable tasks and person-level assignment queries.
type TaskStore interface {
	// Claim atomically claims the task for the person. Exactly one of
	// several concurrent claimants wins; losers get ErrAlreadyClaimed.
	Claim(ctx context.Context, ownerID, taskID, personID string) error
	// AssignedTasks lists tasks assigned to the person; includeChildren
	// follows parent edges down to instances and sub-agents.
	AssignedTasks(ctx context.Context, ownerID, personID string, includeChildren bool) ([]Entry, error)
}

// SearchStore answers the search facade.
type SearchStore interface {
	Search(ctx context.Context, ownerID string, q SearchQuery) ([]SearchHit, error)
}
