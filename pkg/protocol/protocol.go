// Package protocol defines the wire surface between the OneList Store and
// the agent-side runtime: request/response bodies, the error envelope, the
// identity headers every call must carry, and event names pushed to
// WebSocket observers.
//
// All request paths are versioned at /api/v1. Authentication is an opaque
// bearer token; identity headers are mandatory on every call.
package protocol

import "time"

// ProtocolVersion is bumped on breaking wire changes.
const ProtocolVersion = 3

// APIPrefix is the versioned path prefix for all Store endpoints.
const APIPrefix = "/api/v1"

// Identity headers. These tag every Store request with provenance and must
// be set by the runtime, never by downstream tool code.
const (
	HeaderAgentID         = "X-Agent-Id"          // agent kind tag, e.g. "claude-code"
	HeaderAgentVersion    = "X-Agent-Version"     // runtime version string
	HeaderAgentInstanceID = "X-Agent-Instance-Id" // stable per host installation
	HeaderAgentSubagentID = "X-Agent-Subagent-Id" // set when acting for a sub-agent
)

// EntryType is the closed set of entry type tags.
type EntryType string

const (
	EntryChatLog    EntryType = "chat_log"
	EntryTask       EntryType = "task"
	EntryMemory     EntryType = "memory"
	EntryNote       EntryType = "note"
	EntryPerson     EntryType = "person"
	EntryProject    EntryType = "project"
	EntryEntryGroup EntryType = "entry_group" // sprint
	EntryConfig     EntryType = "config"
)

// MemoryKind classifies an atomic memory.
type MemoryKind string

const (
	MemoryFact        MemoryKind = "fact"
	MemoryPreference  MemoryKind = "preference"
	MemoryEvent       MemoryKind = "event"
	MemoryObservation MemoryKind = "observation"
	MemoryDecision    MemoryKind = "decision"
)

// GTD buckets for task entries.
const (
	BucketInbox        = "inbox"
	BucketNextActions  = "next_actions"
	BucketWaitingFor   = "waiting_for"
	BucketSomedayMaybe = "someday_maybe"
)

// SearchType selects the search mode.
type SearchType string

const (
	SearchHybrid       SearchType = "hybrid"
	SearchSemantic     SearchType = "semantic"
	SearchKeyword      SearchType = "keyword"
	SearchAtomic       SearchType = "atomic"        // current memories only
	SearchMemoryHybrid SearchType = "memory_hybrid" // memories + raw chunks
)

// Error codes carried in the error envelope.
const (
	CodeUnauthorized    = "unauthorized"
	CodeRateLimited     = "rate_limited"
	CodeDerivationLimit = "derivation_limit"
	CodeDuplicate       = "duplicate"
	CodeNotFound        = "not_found"
	CodeConflict        = "conflict"
	CodeInvalid         = "invalid_request"
	CodeInternal        = "internal_error"
	CodeAlreadyClaimed  = "already_claimed"
)

// ErrorBody is the structured error envelope: {ok:false, error:{code,message}}.
type ErrorBody struct {
	OK    bool        `json:"ok"`
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the machine-readable code and a human message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Provenance is the immutable origin tuple recorded on entry creation.
type Provenance struct {
	AgentKind    string `json:"agent_kind,omitempty"`
	AgentVersion string `json:"agent_version,omitempty"`
	InstanceID   string `json:"instance_id,omitempty"`
	SubagentID   string `json:"subagent_id,omitempty"`
}

// ChatMessage is one message appended to a chat stream.
type ChatMessage struct {
	Role      string    `json:"role"` // user | assistant | system | tool
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	MessageID string    `json:"message_id,omitempty"` // external id for cross-referencing
	Source    string    `json:"source,omitempty"`     // channel tag, e.g. "telegram"

	// Channel metadata extracted client-side so the Store receives
	// already-attributed events.
	SenderName  string   `json:"sender_name,omitempty"`
	SenderID    string   `json:"sender_id,omitempty"`
	ReplyToID   string   `json:"reply_to_id,omitempty"`
	Reactions   []string `json:"reactions,omitempty"`
}

// AppendRequest is the body of POST /api/v1/chat-stream/append.
type AppendRequest struct {
	SessionID string      `json:"session_id"` // external session key {channel}:{agent}:{principal}
	Message   ChatMessage `json:"message"`
}

// AppendResponse acknowledges a successful append.
type AppendResponse struct {
	OK           bool   `json:"ok"`
	StreamID     string `json:"stream_id"`
	MessageID    string `json:"message_id"`
	MessageCount int    `json:"message_count"`
}

// ReactionRequest is the body of POST /api/v1/chat-stream/reaction.
type ReactionRequest struct {
	TargetMessageID string `json:"target_message_id"`
	Emoji           string `json:"emoji"`
	FromUser        string `json:"from_user"`
}

// CreateEntryRequest is the body of POST /api/v1/entries.
type CreateEntryRequest struct {
	Title      string                 `json:"title"`
	EntryType  EntryType              `json:"entry_type"`
	SourceType string                 `json:"source_type,omitempty"`
	Public     bool                   `json:"public,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Content    string                 `json:"content,omitempty"`
}

// EntryResponse is the entry view returned by entry endpoints.
type EntryResponse struct {
	ID         string                 `json:"id"`
	PublicID   string                 `json:"public_id"`
	OwnerID    string                 `json:"owner_id"`
	Title      string                 `json:"title"`
	EntryType  EntryType              `json:"entry_type"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Version    int64                  `json:"version"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
	Provenance *Provenance            `json:"provenance,omitempty"`
}

// UpdateEntryRequest is the body of PUT /api/v1/entries/{id}.
// EntryType and provenance are immutable and must not appear here.
type UpdateEntryRequest struct {
	Title    string                 `json:"title,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Content  string                 `json:"content,omitempty"`
}

// AssetRequest is the body of POST /api/v1/entries/{id}/assets. Data is
// base64 on the wire.
type AssetRequest struct {
	Name      string `json:"name"`
	MediaType string `json:"media_type,omitempty"`
	Data      []byte `json:"data"`
}

// AssetInfo describes one stored asset; the blob itself is omitted.
type AssetInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	MediaType string    `json:"media_type,omitempty"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchRequest is the body of POST /api/v1/search.
type SearchRequest struct {
	Query          string     `json:"query"`
	SearchType     SearchType `json:"search_type,omitempty"` // default hybrid
	Limit          int        `json:"limit,omitempty"`
	SemanticWeight float64    `json:"semantic_weight,omitempty"`
	KeywordWeight  float64    `json:"keyword_weight,omitempty"`
	IncludeAgents  []string   `json:"include_agents,omitempty"`
	ExcludeAgents  []string   `json:"exclude_agents,omitempty"`
	Threshold      float64    `json:"threshold,omitempty"`
}

// Attribution identifies who produced a search result and how derived it is.
type Attribution struct {
	AgentKind       string    `json:"agent_kind,omitempty"`
	AgentVersion    string    `json:"agent_version,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	DerivationDepth int       `json:"derivation_depth"`
}

// SearchResult is one scored hit.
type SearchResult struct {
	EntryID     string      `json:"entry_id"`
	Title       string      `json:"title"`
	Snippet     string      `json:"snippet,omitempty"`
	Relevance   float64     `json:"relevance"`
	EntryType   EntryType   `json:"entry_type"`
	Attribution Attribution `json:"attribution"`
}

// SearchResponse is the result list for a search call.
type SearchResponse struct {
	OK         bool           `json:"ok"`
	Query      string         `json:"query"`
	SearchType SearchType     `json:"search_type"`
	Results    []SearchResult `json:"results"`
}

// CheckDerivationRequest is the pre-flight probe body for memory writes.
type CheckDerivationRequest struct {
	Content       string `json:"content"`
	SourceAgent   string `json:"source_agent"`
	DerivedFromID string `json:"derived_from_id,omitempty"`
}

// CheckDerivationResponse reports the guard's verdict without writing.
type CheckDerivationResponse struct {
	OK        bool `json:"ok"`
	Duplicate bool `json:"duplicate"`
	Depth     int  `json:"depth"`
}

// RelationshipRequest is the body of POST /api/v1/relationships.
type RelationshipRequest struct {
	SourceEntryID    string                 `json:"source_entry_id"`
	TargetEntryID    string                 `json:"target_entry_id"`
	RelationshipType string                 `json:"relationship_type"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// ClaimResponse is returned by POST /api/v1/tasks/{id}/claim.
type ClaimResponse struct {
	OK      bool   `json:"ok"`
	Claimed bool   `json:"claimed"`
	Reason  string `json:"reason,omitempty"` // "already_claimed" on the losing side
}

// ImportFilter narrows a historical import run.
type ImportFilter struct {
	AgentKind string     `json:"agent_kind,omitempty"`
	After     *time.Time `json:"after,omitempty"`
	Before    *time.Time `json:"before,omitempty"`
	DryRun    bool       `json:"dry_run,omitempty"`
}

// ImportRequest is the body of POST /api/v1/openclaw/import.
type ImportRequest struct {
	Root   string       `json:"root"`
	Filter ImportFilter `json:"filter,omitempty"`
}

// ImportFileInfo describes one discovered session transcript.
type ImportFileInfo struct {
	Path         string     `json:"path"`
	AgentKind    string     `json:"agent_kind"`
	SessionID    string     `json:"session_id"`
	Earliest     *time.Time `json:"earliest,omitempty"`
	MessageCount int        `json:"message_count"`
}

// ImportFileResult reports the outcome of importing one file.
type ImportFileResult struct {
	Path           string `json:"path"`
	EntryID        string `json:"entry_id,omitempty"`
	SessionKey     string `json:"session_key,omitempty"`
	Imported       int    `json:"imported"`
	AlreadyExisted bool   `json:"already_existed"`
	Error          string `json:"error,omitempty"`
}

// ImportResponse is the bulk-import report: partial failures do not abort.
type ImportResponse struct {
	OK            bool               `json:"ok"`
	ImportedCount int                `json:"imported_count"`
	FailedCount   int                `json:"failed_count"`
	Results       []ImportFileResult `json:"results"`
}

// ChainVerifyResponse is returned by GET /api/v1/memories/chain/verify.
type ChainVerifyResponse struct {
	OK         bool  `json:"ok"`
	Broken     bool  `json:"broken"`
	AtSequence int64 `json:"at_sequence,omitempty"`
}
