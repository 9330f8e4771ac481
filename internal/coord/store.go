// Package coord is the file-backed coordination area shared by sibling
// agents on one host: write rate windows, a global circuit breaker,
// per-session injection budgets, and lifetime stats. A sidecar lock file
// provides mutual exclusion; every read under a failed lock degrades to
// permissive defaults so host hooks never block on coordination.
package coord

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Tunables. Defaults follow the cooperative contract all agent runtimes on
// the host agree on; changing them on one agent only weakens coordination.
type Options struct {
	WindowDuration     time.Duration // sliding write window, default 60s
	MaxWritesPerWindow int           // default 30

	FailureThreshold int           // consecutive failures before the circuit opens, default 5
	InitialBackoff   time.Duration // default 60s, doubled per failure past the threshold
	MaxBackoff       time.Duration // default 1h

	MaxInjectionsPerSession int           // default 5
	MinInjectionInterval    time.Duration // global gap between injections, default 30s
	ResetOnRecreate         bool          // reset session count when the file is recreated

	SessionTTL  time.Duration // prune session records older than this, default 7d
	MaxSessions int           // prune beyond this many records, default 100
}

// DefaultOptions returns the cooperative defaults.
func DefaultOptions() Options {
	return Options{
		WindowDuration:          60 * time.Second,
		MaxWritesPerWindow:      30,
		FailureThreshold:        5,
		InitialBackoff:          60 * time.Second,
		MaxBackoff:              time.Hour,
		MaxInjectionsPerSession: 5,
		MinInjectionInterval:    30 * time.Second,
		ResetOnRecreate:         true,
		SessionTTL:              7 * 24 * time.Hour,
		MaxSessions:             100,
	}
}

// Store is the host-wide coordination store.
type Store struct {
	statePath string
	lock      *fileLock
	opts      Options
	now       func() time.Time
}

// Decision is the verdict of CanWrite.
type Decision struct {
	Allowed    bool
	Reason     string
	RetryAfter time.Duration
}

// InjectionDecision is the verdict of CheckInjection.
type InjectionDecision struct {
	Allowed      bool
	Reason       string
	CurrentCount int
}

// Deny reasons.
const (
	ReasonCircuitOpen     = "circuit_open"
	ReasonWindowSaturated = "rate_window_saturated"
	ReasonAtLimit         = "at_injection_limit"
	ReasonTooSoon         = "injection_too_soon"
	ReasonBirthRegressed  = "file_birth_regressed"
)

// New opens (creating if needed) the coordination area under dir.
func New(dir string, opts Options) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create coordination dir: %w", err)
	}
	statePath := filepath.Join(dir, "state.json")
	return &Store{
		statePath: statePath,
		lock:      newFileLock(statePath + ".lock"),
		opts:      opts,
		now:       time.Now,
	}, nil
}

// withLock runs fn against the current state under the sidecar lock and, if
// fn reports a mutation, persists the result. Lock or write failures are
// logged and swallowed: callers proceed with whatever fn decided.
func (s *Store) withLock(fn func(st *state) (mutated bool)) error {
	if err := s.lock.acquire(); err != nil {
		return err
	}
	defer s.lock.release()

	st := loadState(s.statePath)
	if fn(st) {
		if err := saveState(s.statePath, st); err != nil {
			slog.Warn("coordination state write failed", "error", err)
		}
	}
	return nil
}

// CanWrite reports whether a Store write may proceed for the given agent
// key. Denied while the global circuit breaker is open or the agent's
// sliding window is saturated.
func (s *Store) CanWrite(agentKey string) Decision {
	d := Decision{Allowed: true}
	err := s.withLock(func(st *state) bool {
		now := s.now()
		if st.Circuit.BackoffUntil.After(now) {
			d = Decision{Reason: ReasonCircuitOpen, RetryAfter: st.Circuit.BackoffUntil.Sub(now)}
			return false
		}
		w := st.Windows[agentKey]
		if w != nil && now.Sub(w.WindowStart) < s.opts.WindowDuration && w.Count >= s.opts.MaxWritesPerWindow {
			d = Decision{
				Reason:     ReasonWindowSaturated,
				RetryAfter: s.opts.WindowDuration - now.Sub(w.WindowStart),
			}
			return false
		}
		return false
	})
	if err != nil {
		// Lock unavailable: default to allowed, nothing recorded.
		return Decision{Allowed: true}
	}
	return d
}

// RecordWrite counts a successful write in the agent's window and clears
// the consecutive-failure counter.
func (s *Store) RecordWrite(agentKey string) {
	err := s.withLock(func(st *state) bool {
		now := s.now()
		w := st.Windows[agentKey]
		if w == nil || now.Sub(w.WindowStart) >= s.opts.WindowDuration {
			st.Windows[agentKey] = &windowState{WindowStart: now, Count: 1}
		} else {
			w.Count++
		}
		st.Circuit.ConsecutiveFailures = 0
		st.Stats.Appends++
		return true
	})
	if err != nil {
		slog.Debug("coordination write not recorded", "reason", "lock busy")
	}
}

// RecordFailure counts a Store failure into the shared circuit breaker.
// At the threshold the breaker opens with exponential backoff, capped.
func (s *Store) RecordFailure() {
	err := s.withLock(func(st *state) bool {
		st.Circuit.ConsecutiveFailures++
		st.Stats.Failures++
		n := st.Circuit.ConsecutiveFailures
		if n >= s.opts.FailureThreshold {
			backoff := s.opts.InitialBackoff << uint(n-s.opts.FailureThreshold)
			if backoff > s.opts.MaxBackoff || backoff <= 0 {
				backoff = s.opts.MaxBackoff
			}
			st.Circuit.BackoffUntil = s.now().Add(backoff)
			slog.Warn("circuit breaker open", "failures", n, "backoff", backoff)
		}
		return true
	})
	if err != nil {
		slog.Debug("coordination failure not recorded", "reason", "lock busy")
	}
}

// CircuitOpen reports whether the shared breaker currently denies writes.
func (s *Store) CircuitOpen() bool {
	open := false
	s.withLock(func(st *state) bool {
		open = st.Circuit.BackoffUntil.After(s.now())
		return false
	})
	return open
}
