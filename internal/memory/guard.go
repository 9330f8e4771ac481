package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/trinsiklabs/onelist/internal/store"
)

// MaxDerivationDepth caps cross-agent re-derivation. Depth only grows when
// a memory crosses an agent boundary, so the lineage is acyclic by
// construction.
const MaxDerivationDepth = 3

// Guard errors.
var (
	ErrDuplicate       = errors.New("memory: duplicate of a current memory")
	ErrDerivationLimit = errors.New("memory: derivation depth limit exceeded")
)

// Guard is the derivation guard (pre-flight and write-time).
type Guard struct {
	memories store.MemoryStore
}

// NewGuard creates the guard over the memory store.
func NewGuard(memories store.MemoryStore) *Guard {
	return &Guard{memories: memories}
}

// Verdict is the guard's decision for a candidate memory write.
type Verdict struct {
	Duplicate bool
	Depth     int
}

// Check computes the candidate's verdict without writing. A duplicate is a
// current (non-superseded) memory with the same owner and content hash.
// Depth is the source's depth plus one when the writer differs from the
// source's agent; past MaxDerivationDepth the write must be rejected.
func (g *Guard) Check(ctx context.Context, ownerID, content, writerAgent, derivedFromID string) (Verdict, error) {
	v := Verdict{}

	existing, err := g.memories.CurrentByHash(ctx, ownerID, ContentHash(content))
	if err != nil {
		return v, fmt.Errorf("look up content hash: %w", err)
	}
	if existing != nil {
		v.Duplicate = true
	}

	if derivedFromID != "" {
		source, err := g.memories.Get(ctx, ownerID, derivedFromID)
		if err != nil {
			return v, fmt.Errorf("look up derivation source: %w", err)
		}
		v.Depth = source.Depth
		if source.SourceAgent != writerAgent {
			v.Depth++
		}
	}
	return v, nil
}

// Admit runs Check and converts violations into guard errors. On success
// the returned depth is what the write must record.
func (g *Guard) Admit(ctx context.Context, ownerID, content, writerAgent, derivedFromID string) (int, error) {
	v, err := g.Check(ctx, ownerID, content, writerAgent, derivedFromID)
	if err != nil {
		return 0, err
	}
	if v.Duplicate {
		return v.Depth, ErrDuplicate
	}
	if v.Depth > MaxDerivationDepth {
		return v.Depth, ErrDerivationLimit
	}
	return v.Depth, nil
}
