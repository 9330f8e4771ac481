package store

import "errors"

// Sentinel errors shared by all backends.
var (
	ErrNotFound       = errors.New("store: not found")
	ErrConflict       = errors.New("store: conflict")
	ErrAlreadyClaimed = errors.New("store: task already claimed")
	ErrImmutable      = errors.New("store: field is immutable")
	// ErrChainProtected rejects non-chain mutations for owners in
	// trusted-memory mode.
	ErrChainProtected = errors.New("store: entry protected by memory chain")
)
