package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/trinsiklabs/onelist/internal/store"
)

// Chain appends to the per-owner memory hash chain for owners in
// trusted-memory mode. A keyed lock serializes each owner's appends;
// cross-owner operations are independent.
type Chain struct {
	owners  store.OwnerStore
	entries store.EntryStore
	chain   store.ChainStore
	locks   *store.KeyedMutex
	now     func() time.Time
}

// NewChain creates the chain worker.
func NewChain(owners store.OwnerStore, entries store.EntryStore, chain store.ChainStore) *Chain {
	return &Chain{
		owners:  owners,
		entries: entries,
		chain:   chain,
		locks:   store.NewKeyedMutex(),
		now:     time.Now,
	}
}

// RecordCreate appends a creation record for the entry and stamps the
// entry with its chain hash. A no-op for owners outside trusted mode.
func (c *Chain) RecordCreate(ctx context.Context, e *store.Entry) error {
	trusted, err := c.owners.TrustedMemory(ctx, e.OwnerID)
	if err != nil || !trusted {
		return err
	}

	unlock := c.locks.Lock(e.OwnerID)
	defer unlock()

	seq, prev, err := c.next(ctx, e.OwnerID)
	if err != nil {
		return err
	}
	this := ChainHash(prev, e)
	if err := c.chain.Append(ctx, &store.ChainRecord{
		OwnerID:  e.OwnerID,
		Seq:      seq,
		PrevHash: prev,
		ThisHash: this,
		Kind:     store.ChainCreate,
		EntryID:  e.ID,
		At:       c.now().UTC(),
	}); err != nil {
		return fmt.Errorf("append chain record: %w", err)
	}
	return c.entries.SetChainHash(ctx, e.OwnerID, e.ID, this)
}

// RecordSupersede appends a supersession record referencing the
// predecessor's chain position.
func (c *Chain) RecordSupersede(ctx context.Context, ownerID, memoryID string) error {
	trusted, err := c.owners.TrustedMemory(ctx, ownerID)
	if err != nil || !trusted {
		return err
	}

	unlock := c.locks.Lock(ownerID)
	defer unlock()

	seq, prev, err := c.next(ctx, ownerID)
	if err != nil {
		return err
	}
	return c.chain.Append(ctx, &store.ChainRecord{
		OwnerID:  ownerID,
		Seq:      seq,
		PrevHash: prev,
		ThisHash: SupersedeHash(prev, memoryID),
		Kind:     store.ChainSupersede,
		EntryID:  memoryID,
		At:       c.now().UTC(),
	})
}

// next returns the owner's next sequence number and the previous hash.
// Sequence 0 links from the empty hash.
func (c *Chain) next(ctx context.Context, ownerID string) (int64, string, error) {
	last, err := c.chain.Last(ctx, ownerID)
	if err != nil {
		return 0, "", fmt.Errorf("read chain head: %w", err)
	}
	if last == nil {
		return 0, "", nil
	}
	return last.Seq + 1, last.ThisHash, nil
}

// VerifyResult reports a chain walk: OK, or the first broken position.
type VerifyResult struct {
	OK         bool
	AtSequence int64
}

// Verify walks the owner's chain and checks density, monotonicity, and
// hash linkage.
func (c *Chain) Verify(ctx context.Context, ownerID string) (VerifyResult, error) {
	var prev *store.ChainRecord
	broken := int64(-1)

	err := c.chain.Walk(ctx, ownerID, func(r *store.ChainRecord) error {
		if broken >= 0 {
			return nil
		}
		switch {
		case prev == nil && r.Seq != 0:
			broken = r.Seq
		case prev == nil && r.PrevHash != "":
			broken = r.Seq
		case prev != nil && (r.Seq != prev.Seq+1 || r.PrevHash != prev.ThisHash):
			broken = r.Seq
		}
		prev = r
		return nil
	})
	if err != nil {
		return VerifyResult{}, err
	}
	if broken >= 0 {
		return VerifyResult{OK: false, AtSequence: broken}, nil
	}
	return VerifyResult{OK: true}, nil
}
