package store

import "time"

// Representation forms.
const (
	FormMarkdown = "markdown"
	FormHTML     = "html"
	FormJSONL    = "jsonl" // append-only
)

// Relationship types. The vocabulary is closed-plus-extensible: these are
// the types the Store reasons about; unknown types are stored verbatim.
const (
	RelAssignedTo = "assigned_to"
	RelClaimedBy  = "claimed_by"
	RelBlocks     = "blocks"
	RelDependsOn  = "depends_on"
	RelInstanceOf = "instance_of" // instance person -> type person
	RelSubagentOf = "subagent_of" // sub-agent person -> instance person
	RelDerivedOf  = "derived_from"
	RelRelatedTo  = "related_to"
)

// blockingTypes participate in transitive-closure queries.
var blockingTypes = []string{RelBlocks, RelDependsOn}

// Person levels.
const (
	PersonLevelType     = "type"
	PersonLevelInstance = "instance"
	PersonLevelSubagent = "subagent"
)

// Entry is the Store's base unit.
type Entry struct {
	ID        string
	PublicID  string
	OwnerID   string
	EntryType string // immutable after creation
	Title     string
	Metadata  map[string]interface{}
	Revision  int64
	CreatedAt time.Time
	UpdatedAt time.Time

	// Provenance tuple, immutable after creation.
	AgentKind    string
	AgentVersion string
	InstanceID   string
	SubagentID   string

	// Chat-log fields, maintained by AppendLine.
	ExternalKey   string
	MessageCount  int
	LastMessageAt *time.Time
	LastRole      string

	// Trusted-memory chain hash of the creation record, when chained.
	ChainHash string
}

// Asset is an opaque blob owned by an entry. Listings omit Data and
// report Size instead.
type Asset struct {
	ID        string
	EntryID   string
	Name      string
	MediaType string
	Data      []byte
	Size      int64
	CreatedAt time.Time
}

// EntryUpdate is the mutable subset of an entry. Nil fields are unchanged.
type EntryUpdate struct {
	Title    *string
	Metadata map[string]interface{}
	Content  *string // markdown representation
}

// AppendMeta carries the attribute updates accompanying one append.
type AppendMeta struct {
	Role      string
	Timestamp *time.Time
	MessageID string // indexed for reaction cross-referencing
}

// Memory is an atomic fact extracted from an entry.
type Memory struct {
	ID            string
	OwnerID       string
	SourceEntryID string
	ChunkIndex    int
	Kind          string // fact | preference | event | observation | decision
	Content       string
	Confidence    float64
	ValidFrom     int64  // unix ms
	ValidUntil    *int64 // non-nil means superseded
	SourceAgent   string
	AgentVersion  string
	Depth         int
	DerivedFromID string
	ContentHash   string
	CreatedAt     time.Time
}

// Current reports whether the memory is still valid (not superseded).
func (m *Memory) Current() bool { return m.ValidUntil == nil }

// Chain record kinds.
const (
	ChainCreate    = "create"
	ChainSupersede = "supersede"
)

// ChainRecord is one link of an owner's memory hash chain.
type ChainRecord struct {
	OwnerID  string
	Seq      int64
	PrevHash string
	ThisHash string
	Kind     string // create | supersede
	EntryID  string
	At       time.Time
}

// Relationship is a directed typed edge between two entries.
type Relationship struct {
	ID        string
	OwnerID   string
	SourceID  string
	TargetID  string
	Type      string
	Metadata  map[string]interface{}
	CreatedAt time.Time
}

// SearchQuery is the backend-facing search request.
type SearchQuery struct {
	Query          string
	Type           string // hybrid | semantic | keyword | atomic | memory_hybrid
	Limit          int
	SemanticWeight float64
	KeywordWeight  float64
	IncludeAgents  []string
	ExcludeAgents  []string
	Threshold      float64
}

// SearchHit is one scored result with attribution.
type SearchHit struct {
	EntryID      string
	Title        string
	Snippet      string
	Relevance    float64
	EntryType    string
	AgentKind    string
	AgentVersion string
	CreatedAt    time.Time
	Depth        int
}
