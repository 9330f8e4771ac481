// Package memory holds the Store's memory-integrity machinery: canonical
// hashing, the derivation guard, the per-owner hash chain, and the
// extraction queue.
package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/trinsiklabs/onelist/internal/store"
)

// CanonicalContent normalizes memory content before hashing: whitespace
// runs collapse to single spaces so formatting differences do not defeat
// duplicate detection.
func CanonicalContent(content string) string {
	return strings.Join(strings.Fields(content), " ")
}

// ContentHash is the hex SHA-256 of the canonical content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(CanonicalContent(content)))
	return hex.EncodeToString(sum[:])
}

// canonicalEntry is the stable projection of an entry that the chain
// hashes. encoding/json sorts struct fields by declaration, so the byte
// form is deterministic.
type canonicalEntry struct {
	ID          string `json:"id"`
	OwnerID     string `json:"owner_id"`
	EntryType   string `json:"entry_type"`
	Title       string `json:"title"`
	ExternalKey string `json:"external_key,omitempty"`
	AgentKind   string `json:"agent_kind,omitempty"`
	CreatedAt   int64  `json:"created_at"`
}

// ChainHash computes H(prevHash ‖ canonical(entry)) for the next link.
func ChainHash(prevHash string, e *store.Entry) string {
	data, _ := json.Marshal(canonicalEntry{
		ID:          e.ID,
		OwnerID:     e.OwnerID,
		EntryType:   e.EntryType,
		Title:       e.Title,
		ExternalKey: e.ExternalKey,
		AgentKind:   e.AgentKind,
		CreatedAt:   e.CreatedAt.UnixMilli(),
	})
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SupersedeHash computes the link hash for a supersession event, keyed on
// the predecessor's chain hash and the superseding memory id.
func SupersedeHash(prevHash, memoryID string) string {
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write([]byte("supersede:" + memoryID))
	return hex.EncodeToString(h.Sum(nil))
}
