// Package syncer streams the host's main-session transcript into the
// Store: new lines are filtered, attributed, and appended; reactions are
// forwarded; the per-file cursor guarantees exactly-once forward progress
// across restarts.
package syncer

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/trinsiklabs/onelist/internal/client"
	"github.com/trinsiklabs/onelist/internal/config"
	"github.com/trinsiklabs/onelist/internal/coord"
	"github.com/trinsiklabs/onelist/internal/sessions"
	"github.com/trinsiklabs/onelist/internal/transcript"
	"github.com/trinsiklabs/onelist/pkg/protocol"
)

// birthSkew mirrors the injection guard: a forward birth move past this
// means the session file was recreated and the cursor starts over.
const birthSkew = 2 * time.Second

// maxParseWarnings bounds per-file corruption logging; the rest are
// summarized.
const maxParseWarnings = 3

// Poster is the slice of the Store client the syncer posts through.
type Poster interface {
	AppendChatMessage(ctx context.Context, req *protocol.AppendRequest) (*protocol.AppendResponse, error)
	AddReaction(ctx context.Context, req *protocol.ReactionRequest) error
}

var _ Poster = (*client.Client)(nil)

// Syncer watches the sessions directory and syncs the main session file.
type Syncer struct {
	dir      string // host sessions directory
	agent    string // agent kind, also the coordination rate-window key
	channel  string // session-key channel segment
	pointer  *sessions.PointerReader
	coord    *coord.Store
	post     Poster
	cursors  *cursorTable
	tick     time.Duration
	appendTO time.Duration
}

// New assembles a syncer. stateDir holds the persisted cursor table.
func New(cfg *config.Config, pointer *sessions.PointerReader, cs *coord.Store, post Poster, stateDir string) *Syncer {
	tick := time.Duration(cfg.Sync.TickSec) * time.Second
	if tick <= 0 {
		tick = 15 * time.Second
	}
	return &Syncer{
		dir:      cfg.SessionsDir(),
		agent:    cfg.Agent.Kind,
		channel:  "openclaw",
		pointer:  pointer,
		coord:    cs,
		post:     post,
		cursors:  loadCursors(filepath.Join(stateDir, "sync", "sync-state.json"), cfg.Sync.MaxTrackedFiles),
		tick:     tick,
		appendTO: 10 * time.Second,
	}
}

// Run watches until ctx is done. Startup performs one immediate sync so a
// restart catches up before the first event arrives.
func (s *Syncer) Run(ctx context.Context) error {
	s.SyncOnce(ctx)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("fsnotify unavailable, syncing on tick only", "error", err)
		watcher = nil
	} else {
		defer watcher.Close()
		if err := watcher.Add(s.dir); err != nil {
			slog.Warn("cannot watch sessions dir, syncing on tick only", "dir", s.dir, "error", err)
		}
	}

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	var errs <-chan error
	if watcher != nil {
		events = watcher.Events
		errs = watcher.Errors
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if filepath.Base(ev.Name) == "sessions.json" {
				s.pointer.Invalidate()
			}
			s.SyncOnce(ctx)
		case err, ok := <-errs:
			if ok && err != nil {
				slog.Debug("watcher error", "error", err)
			}
		case <-ticker.C:
			s.SyncOnce(ctx)
		}
	}
}

// SyncOnce syncs the current main session file, if any.
func (s *Syncer) SyncOnce(ctx context.Context) {
	main := s.pointer.Main()
	if main == nil {
		return
	}
	s.syncFile(ctx, main)
}

// syncFile pushes the file's unseen lines to the Store. The cursor only
// advances past a line once its post succeeded.
func (s *Syncer) syncFile(ctx context.Context, main *sessions.MainSession) {
	cur := s.cursors.get(main.File)

	birth, birthOK := coord.FileBirth(main.File)
	if birthOK && cur.Birth != nil && birth.Sub(*cur.Birth) > birthSkew {
		slog.Info("session file recreated, cursor reset", "file", filepath.Base(main.File))
		*cur = fileCursor{}
	}

	lines, err := readCompleteLines(main.File)
	if err != nil {
		slog.Debug("session file unreadable", "file", filepath.Base(main.File), "error", err)
		return
	}
	if len(lines) < cur.LineCount {
		// Shrunk without a birth bump: treat as recreated anyway.
		slog.Info("session file shrank, cursor reset", "file", filepath.Base(main.File), "lines", len(lines), "cursor", cur.LineCount)
		*cur = fileCursor{}
	}
	if len(lines) == cur.LineCount {
		return
	}

	sessionKey := sessions.BuildKey(s.channel, s.agent, main.SessionID)
	parseErrs := 0
	advanced := cur.LineCount

	for i := cur.LineCount; i < len(lines); i++ {
		if ctx.Err() != nil {
			break
		}
		line := bytes.TrimSpace(lines[i])
		if len(line) == 0 {
			advanced = i + 1
			continue
		}
		rec, err := transcript.ParseLine(line)
		if err != nil {
			parseErrs++
			if parseErrs <= maxParseWarnings {
				slog.Warn("unparseable transcript line", "file", filepath.Base(main.File), "line", i+1, "error", err)
			}
			advanced = i + 1
			continue
		}
		if !rec.IsMessage() {
			advanced = i + 1
			continue
		}

		if ok := s.postRecord(ctx, sessionKey, rec); !ok {
			break // cursor stays before this line; next tick retries
		}
		advanced = i + 1
		if ts := rec.Time(); !ts.IsZero() {
			cur.LastTS = ts
		}
	}

	if parseErrs > maxParseWarnings {
		slog.Warn("unparseable transcript lines summarized", "file", filepath.Base(main.File), "total", parseErrs)
	}

	if advanced != cur.LineCount || birthOK {
		cur.LineCount = advanced
		if birthOK {
			cur.Birth = &birth
		}
		cur.Updated = time.Now()
		if err := s.cursors.save(); err != nil {
			slog.Warn("sync state not persisted", "error", err)
		}
	}
}

// postRecord classifies and posts one message record. False means the post
// was denied or failed and the batch must stop.
func (s *Syncer) postRecord(ctx context.Context, sessionKey string, rec *transcript.Record) bool {
	text := strings.TrimSpace(rec.Text())

	if reaction, ok := ParseReaction(text); ok {
		if d := s.coord.CanWrite(s.agent); !d.Allowed {
			slog.Debug("reaction deferred", "reason", d.Reason, "retry_after", d.RetryAfter)
			return false
		}
		ctx, cancel := context.WithTimeout(ctx, s.appendTO)
		defer cancel()
		if err := s.post.AddReaction(ctx, &protocol.ReactionRequest{
			TargetMessageID: reaction.TargetMessageID,
			Emoji:           reaction.Emoji,
			FromUser:        reaction.FromUser,
		}); err != nil {
			slog.Debug("reaction post failed", "error", err)
			return false
		}
		return true
	}

	if transcript.IsNoise(text) {
		return true // dropped, but the line is consumed
	}

	if d := s.coord.CanWrite(s.agent); !d.Allowed {
		slog.Debug("append deferred", "reason", d.Reason, "retry_after", d.RetryAfter)
		return false
	}

	meta, body := ExtractMeta(text)
	msg := protocol.ChatMessage{
		Role:       rec.Role,
		Content:    body,
		MessageID:  firstNonEmpty(meta.MessageID, rec.ID),
		Source:     s.channel,
		SenderName: meta.SenderName,
		SenderID:   meta.SenderID,
		ReplyToID:  meta.ReplyToID,
	}
	if ts := rec.Time(); !ts.IsZero() {
		msg.Timestamp = ts
	}

	ctx, cancel := context.WithTimeout(ctx, s.appendTO)
	defer cancel()
	if _, err := s.post.AppendChatMessage(ctx, &protocol.AppendRequest{
		SessionID: sessionKey,
		Message:   msg,
	}); err != nil {
		slog.Debug("append failed", "error", err)
		return false
	}
	return true
}

// readCompleteLines returns the file's newline-terminated lines. A partial
// trailing line (host mid-write) is not counted.
func readCompleteLines(path string) ([][]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	lines := bytes.Split(data, []byte{'\n'})
	// Split leaves either an empty tail (file ends with \n) or a partial
	// line; both are dropped.
	return lines[:len(lines)-1], nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
