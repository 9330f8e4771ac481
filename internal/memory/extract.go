package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/trinsiklabs/onelist/internal/store"
)

// extractEvery triggers extraction when the message count crosses a
// multiple of it.
const extractEvery = 10

// ExtractionJob names one entry the external extractor should process.
type ExtractionJob struct {
	OwnerID  string
	EntryID  string
	QueuedAt time.Time
}

// ExtractionQueue debounces extraction jobs per entry. The extractor
// itself is an external collaborator: it drains Jobs and feeds results
// back through the Writer, where the guard and chain absorb duplicates.
type ExtractionQueue struct {
	mu       sync.Mutex
	pending  map[string]time.Time
	debounce time.Duration
	jobs     chan ExtractionJob
	now      func() time.Time
}

// NewExtractionQueue creates a queue with the default 30 s debounce.
func NewExtractionQueue() *ExtractionQueue {
	return &ExtractionQueue{
		pending:  make(map[string]time.Time),
		debounce: 30 * time.Second,
		jobs:     make(chan ExtractionJob, 256),
		now:      time.Now,
	}
}

// Jobs is the extractor-facing feed.
func (q *ExtractionQueue) Jobs() <-chan ExtractionJob { return q.jobs }

// MaybeEnqueue queues extraction for the entry when the message count
// crossed a multiple of ten and no job for it is pending within the
// debounce window. Reports whether a job was queued.
func (q *ExtractionQueue) MaybeEnqueue(ownerID, entryID string, messageCount int) bool {
	if messageCount <= 0 || messageCount%extractEvery != 0 {
		return false
	}

	q.mu.Lock()
	now := q.now()
	if at, ok := q.pending[entryID]; ok && now.Sub(at) < q.debounce {
		q.mu.Unlock()
		return false
	}
	q.pending[entryID] = now
	q.mu.Unlock()

	select {
	case q.jobs <- ExtractionJob{OwnerID: ownerID, EntryID: entryID, QueuedAt: now}:
		return true
	default:
		slog.Warn("extraction queue full, job dropped", "entry", entryID)
		return false
	}
}

// Done clears the entry's pending mark once the extractor finished.
func (q *ExtractionQueue) Done(entryID string) {
	q.mu.Lock()
	delete(q.pending, entryID)
	q.mu.Unlock()
}

// Candidate is one extracted memory as the external extractor reports it.
type Candidate struct {
	Kind          string
	Content       string
	Confidence    float64
	ChunkIndex    int
	SourceAgent   string
	AgentVersion  string
	DerivedFromID string
}

// Writer admits extractor output into the memory store: the guard filters,
// the chain serializes.
type Writer struct {
	guard    *Guard
	memories store.MemoryStore
	chain    *Chain
}

// NewWriter assembles the memory write path.
func NewWriter(guard *Guard, memories store.MemoryStore, chain *Chain) *Writer {
	return &Writer{guard: guard, memories: memories, chain: chain}
}

// Write admits one candidate for the source entry. Duplicates and
// depth violations return the guard's errors; the caller decides whether
// to absorb or surface them.
func (w *Writer) Write(ctx context.Context, ownerID, sourceEntryID string, c Candidate) (*store.Memory, error) {
	depth, err := w.guard.Admit(ctx, ownerID, c.Content, c.SourceAgent, c.DerivedFromID)
	if err != nil {
		return nil, err
	}

	m := &store.Memory{
		OwnerID:       ownerID,
		SourceEntryID: sourceEntryID,
		ChunkIndex:    c.ChunkIndex,
		Kind:          c.Kind,
		Content:       CanonicalContent(c.Content),
		Confidence:    c.Confidence,
		SourceAgent:   c.SourceAgent,
		AgentVersion:  c.AgentVersion,
		Depth:         depth,
		DerivedFromID: c.DerivedFromID,
		ContentHash:   ContentHash(c.Content),
	}
	if err := w.memories.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create memory: %w", err)
	}
	return m, nil
}

// Supersede replaces an existing memory with the candidate: the
// predecessor's validity closes strictly before the successor's opens,
// and trusted owners get a supersede chain record.
func (w *Writer) Supersede(ctx context.Context, ownerID, oldID string, c Candidate) (*store.Memory, error) {
	old, err := w.memories.Get(ctx, ownerID, oldID)
	if err != nil {
		return nil, err
	}
	if !old.Current() {
		return nil, store.ErrConflict
	}

	c.DerivedFromID = oldID
	m, err := w.Write(ctx, ownerID, old.SourceEntryID, c)
	if err != nil {
		return nil, err
	}
	if err := w.memories.Supersede(ctx, ownerID, oldID, m.ValidFrom-1); err != nil {
		return nil, fmt.Errorf("close predecessor: %w", err)
	}
	if w.chain != nil {
		if err := w.chain.RecordSupersede(ctx, ownerID, m.ID); err != nil {
			slog.Warn("supersede not chained", "memory", m.ID, "error", err)
		}
	}
	return m, nil
}
