package memory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/trinsiklabs/onelist/internal/store"
	"github.com/trinsiklabs/onelist/internal/store/sqlite"
)

const owner = "owner-1"

func newStores(t *testing.T) *store.Stores {
	t.Helper()
	st, err := sqlite.NewStores(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func TestContentHashCanonicalizes(t *testing.T) {
	a := ContentHash("prefers  dark \n mode")
	b := ContentHash("prefers dark mode")
	if a != b {
		t.Error("whitespace variants must hash identically")
	}
	if a == ContentHash("prefers light mode") {
		t.Error("distinct content must hash differently")
	}
}

func TestDerivationChainAndCap(t *testing.T) {
	st := newStores(t)
	ctx := context.Background()
	guard := NewGuard(st.Memories)
	writer := NewWriter(guard, st.Memories, nil)

	// Agent A observes at depth 0.
	m0, err := writer.Write(ctx, owner, "entry-1", Candidate{
		Kind: "fact", Content: "deploys happen on fridays", SourceAgent: "agent-a", Confidence: 0.9,
	})
	if err != nil {
		t.Fatal(err)
	}
	if m0.Depth != 0 {
		t.Fatalf("m0 depth = %d, want 0", m0.Depth)
	}

	// Agent B re-derives three times; each crossing raises depth.
	prev := m0
	contents := []string{
		"deploys happen on fridays, restated",
		"deploys happen on fridays, restated again",
		"deploys happen on fridays, third restatement",
	}
	agents := []string{"agent-b", "agent-c", "agent-d"}
	for i, content := range contents {
		m, err := writer.Write(ctx, owner, "entry-1", Candidate{
			Kind: "fact", Content: content, SourceAgent: agents[i], DerivedFromID: prev.ID,
		})
		if err != nil {
			t.Fatalf("derivation %d: %v", i+1, err)
		}
		if m.Depth != i+1 {
			t.Fatalf("derivation %d depth = %d, want %d", i+1, m.Depth, i+1)
		}
		prev = m
	}

	// A fourth cross-agent derivation would reach depth 4.
	_, err = writer.Write(ctx, owner, "entry-1", Candidate{
		Kind: "fact", Content: "yet another restatement", SourceAgent: "agent-e", DerivedFromID: prev.ID,
	})
	if !errors.Is(err, ErrDerivationLimit) {
		t.Fatalf("depth 4 write: err = %v, want ErrDerivationLimit", err)
	}

	// Same-agent derivation does not raise depth.
	m, err := writer.Write(ctx, owner, "entry-1", Candidate{
		Kind: "fact", Content: "same agent restating", SourceAgent: "agent-d", DerivedFromID: prev.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	if m.Depth != prev.Depth {
		t.Errorf("same-agent depth = %d, want %d", m.Depth, prev.Depth)
	}
}

func TestDuplicateRejected(t *testing.T) {
	st := newStores(t)
	ctx := context.Background()
	writer := NewWriter(NewGuard(st.Memories), st.Memories, nil)

	if _, err := writer.Write(ctx, owner, "e", Candidate{Kind: "fact", Content: "likes go", SourceAgent: "a"}); err != nil {
		t.Fatal(err)
	}
	_, err := writer.Write(ctx, owner, "e", Candidate{Kind: "fact", Content: "likes   go", SourceAgent: "b"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate write: err = %v, want ErrDuplicate", err)
	}
}

func TestSupersedeClosesValidity(t *testing.T) {
	st := newStores(t)
	ctx := context.Background()
	writer := NewWriter(NewGuard(st.Memories), st.Memories, nil)

	m1, err := writer.Write(ctx, owner, "e", Candidate{Kind: "preference", Content: "prefers tabs", SourceAgent: "a"})
	if err != nil {
		t.Fatal(err)
	}
	m2, err := writer.Supersede(ctx, owner, m1.ID, Candidate{Kind: "preference", Content: "prefers spaces", SourceAgent: "a"})
	if err != nil {
		t.Fatal(err)
	}

	old, err := st.Memories.Get(ctx, owner, m1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if old.ValidUntil == nil {
		t.Fatal("predecessor still current")
	}
	if *old.ValidUntil >= m2.ValidFrom {
		t.Errorf("validity overlap: until=%d from=%d", *old.ValidUntil, m2.ValidFrom)
	}
}

func TestChainAppendAndVerify(t *testing.T) {
	st := newStores(t)
	ctx := context.Background()
	if err := st.Owners.SetTrustedMemory(ctx, owner, true); err != nil {
		t.Fatal(err)
	}
	chain := NewChain(st.Owners, st.Entries, st.Chain)

	for i, title := range []string{"one", "two", "three"} {
		e := &store.Entry{OwnerID: owner, EntryType: "note", Title: title}
		if err := st.Entries.Create(ctx, e); err != nil {
			t.Fatal(err)
		}
		if err := chain.RecordCreate(ctx, e); err != nil {
			t.Fatalf("chain record %d: %v", i, err)
		}
		got, err := st.Entries.Get(ctx, owner, e.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.ChainHash == "" {
			t.Fatalf("entry %d missing chain hash", i)
		}
	}

	res, err := chain.Verify(ctx, owner)
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK {
		t.Fatalf("verify broken at %d", res.AtSequence)
	}

	// Tamper: a record with a gap breaks linkage at its sequence.
	if err := st.Chain.Append(ctx, &store.ChainRecord{
		OwnerID: owner, Seq: 5, PrevHash: "bogus", ThisHash: "alsobogus",
		Kind: store.ChainCreate, At: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}
	res, err = chain.Verify(ctx, owner)
	if err != nil {
		t.Fatal(err)
	}
	if res.OK || res.AtSequence != 5 {
		t.Fatalf("verify = %+v, want broken at 5", res)
	}
}

func TestChainNoOpForUntrustedOwner(t *testing.T) {
	st := newStores(t)
	ctx := context.Background()
	chain := NewChain(st.Owners, st.Entries, st.Chain)

	e := &store.Entry{OwnerID: owner, EntryType: "note", Title: "plain"}
	if err := st.Entries.Create(ctx, e); err != nil {
		t.Fatal(err)
	}
	if err := chain.RecordCreate(ctx, e); err != nil {
		t.Fatal(err)
	}
	last, err := st.Chain.Last(ctx, owner)
	if err != nil {
		t.Fatal(err)
	}
	if last != nil {
		t.Fatal("untrusted owner must not be chained")
	}
}

func TestExtractionQueueDebounce(t *testing.T) {
	q := NewExtractionQueue()

	if q.MaybeEnqueue(owner, "e1", 7) {
		t.Error("count 7 must not enqueue")
	}
	if !q.MaybeEnqueue(owner, "e1", 10) {
		t.Error("count 10 must enqueue")
	}
	if q.MaybeEnqueue(owner, "e1", 20) {
		t.Error("within debounce must not enqueue")
	}

	q.now = func() time.Time { return time.Now().Add(time.Minute) }
	if !q.MaybeEnqueue(owner, "e1", 20) {
		t.Error("past debounce must enqueue")
	}

	if got := len(q.Jobs()); got != 2 {
		t.Errorf("jobs queued = %d, want 2", got)
	}
}
