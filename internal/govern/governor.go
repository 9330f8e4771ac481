// Package govern decides whether retrieved context is injected into a new
// agent turn. The decision is budgeted, persistent across restarts through
// the coordination store, and defended against nested injection.
package govern

import (
	"context"
	"log/slog"
	"time"

	"github.com/trinsiklabs/onelist/internal/coord"
	"github.com/trinsiklabs/onelist/internal/sessions"
	"github.com/trinsiklabs/onelist/internal/transcript"
)

// Source labels where an injected block came from.
const (
	SourceRetrieval = "retrieval"
	SourceFallback  = "fallback"
)

// Retriever is the smart-retrieval path (C4).
type Retriever interface {
	Retrieve(ctx context.Context, sessionFile string) string
}

// Recoverer is the local fallback path (C5).
type Recoverer interface {
	Recover(ctx context.Context) string
}

// Options bound the governor's decision.
type Options struct {
	Budget          time.Duration // wall clock for the whole decision, default 5s
	MaxContentChars int           // size guard, default 50000
	FallbackEnabled bool
}

// Governor runs the injection decision at each agent-turn start.
type Governor struct {
	pointer   *sessions.PointerReader
	coord     *coord.Store
	retriever Retriever
	recoverer Recoverer
	opts      Options
}

// New assembles a governor. recoverer may be nil when fallback is disabled.
func New(pointer *sessions.PointerReader, cs *coord.Store, r Retriever, f Recoverer, opts Options) *Governor {
	if opts.Budget <= 0 {
		opts.Budget = 5 * time.Second
	}
	if opts.MaxContentChars <= 0 {
		opts.MaxContentChars = 50000
	}
	return &Governor{pointer: pointer, coord: cs, retriever: r, recoverer: f, opts: opts}
}

// Decide returns the context block to inject, or empty to skip. Every
// failure path — missing session, denied budget, timeout, oversized or
// nested content — is a silent skip: host hooks never see an error.
func (g *Governor) Decide(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, g.opts.Budget)
	defer cancel()

	main := g.pointer.Main()
	if main == nil {
		slog.Debug("injection skipped", "reason", "no main session")
		return ""
	}

	dec := g.coord.CheckInjection(main.SessionID, main.File)
	if !dec.Allowed {
		if dec.Reason == coord.ReasonAtLimit {
			slog.Info("at injection limit (5/5)", "session", main.SessionID)
		} else {
			slog.Debug("injection skipped", "reason", dec.Reason, "session", main.SessionID)
		}
		return ""
	}

	content, source := g.gather(ctx, main.File)
	if content == "" || ctx.Err() != nil {
		// Timeout or nothing gathered: skip, no record.
		return ""
	}

	if len(content) > g.opts.MaxContentChars {
		slog.Warn("injection skipped", "reason", "content too large", "chars", len(content))
		return ""
	}
	if transcript.CountContextHeaders(content) > 1 {
		slog.Warn("injection skipped", "reason", "nested injection detected")
		return ""
	}

	g.coord.RecordInjection(main.SessionID, main.File, source)
	slog.Info("context injected", "session", main.SessionID, "source", source, "chars", len(content), "count", dec.CurrentCount+1)
	return content
}

// gather tries retrieval, then fallback.
func (g *Governor) gather(ctx context.Context, sessionFile string) (content, source string) {
	if g.retriever != nil {
		if c := g.retriever.Retrieve(ctx, sessionFile); c != "" {
			return c, SourceRetrieval
		}
	}
	if g.opts.FallbackEnabled && g.recoverer != nil {
		if c := g.recoverer.Recover(ctx); c != "" {
			return c, SourceFallback
		}
	}
	return "", ""
}
