package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/trinsiklabs/onelist/internal/config"
	"github.com/trinsiklabs/onelist/internal/coord"
	"github.com/trinsiklabs/onelist/internal/sessions"
	"github.com/trinsiklabs/onelist/pkg/protocol"
)

type fakePoster struct {
	appends   []protocol.AppendRequest
	reactions []protocol.ReactionRequest
	failNext  bool
}

func (f *fakePoster) AppendChatMessage(ctx context.Context, req *protocol.AppendRequest) (*protocol.AppendResponse, error) {
	if f.failNext {
		return nil, fmt.Errorf("store unavailable")
	}
	f.appends = append(f.appends, *req)
	return &protocol.AppendResponse{OK: true, MessageCount: len(f.appends)}, nil
}

func (f *fakePoster) AddReaction(ctx context.Context, req *protocol.ReactionRequest) error {
	f.reactions = append(f.reactions, *req)
	return nil
}

type fixture struct {
	syncer      *Syncer
	poster      *fakePoster
	sessionFile string
	stateDir    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Agent.Kind = "main"
	cfg.Agent.OpenClawHome = t.TempDir()
	sessionsDir := cfg.SessionsDir()
	if err := os.MkdirAll(sessionsDir, 0755); err != nil {
		t.Fatal(err)
	}

	sessionFile := filepath.Join(sessionsDir, "s1.jsonl")
	pointer, _ := json.Marshal(map[string]map[string]string{
		"agent:main:main": {"sessionId": "s1", "sessionFile": "s1.jsonl"},
	})
	if err := os.WriteFile(filepath.Join(sessionsDir, "sessions.json"), pointer, 0644); err != nil {
		t.Fatal(err)
	}

	cs, err := coord.New(t.TempDir(), coord.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	poster := &fakePoster{}
	reader := sessions.NewPointerReader(sessionsDir, "main", time.Hour)
	stateDir := t.TempDir()
	return &fixture{
		syncer:      New(cfg, reader, cs, poster, stateDir),
		poster:      poster,
		sessionFile: sessionFile,
		stateDir:    stateDir,
	}
}

func appendLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	for _, l := range lines {
		if _, err := f.WriteString(l + "\n"); err != nil {
			t.Fatal(err)
		}
	}
}

func userLine(text string) string {
	return fmt.Sprintf(`{"type":"message","role":"user","content":%q}`, text)
}

func TestSyncForwardProgress(t *testing.T) {
	fx := newFixture(t)
	appendLines(t, fx.sessionFile,
		userLine("first message body"),
		`{"type":"model_change","model":"x"}`,
		userLine("second message body"),
	)

	fx.syncer.SyncOnce(context.Background())
	if len(fx.poster.appends) != 2 {
		t.Fatalf("appends = %d, want 2 (non-message records skipped)", len(fx.poster.appends))
	}
	if key := fx.poster.appends[0].SessionID; key != "openclaw:main:s1" {
		t.Errorf("session key = %q", key)
	}

	// No growth: nothing posted.
	fx.syncer.SyncOnce(context.Background())
	if len(fx.poster.appends) != 2 {
		t.Fatalf("re-sync without growth posted %d extra", len(fx.poster.appends)-2)
	}

	appendLines(t, fx.sessionFile, userLine("third message body"))
	fx.syncer.SyncOnce(context.Background())
	if len(fx.poster.appends) != 3 {
		t.Fatalf("appends = %d, want 3 after growth", len(fx.poster.appends))
	}
}

func TestSyncCursorSurvivesRestart(t *testing.T) {
	fx := newFixture(t)
	appendLines(t, fx.sessionFile, userLine("alpha body"), userLine("beta body"))
	fx.syncer.SyncOnce(context.Background())

	// Cursor state lives in the sync/ subdir of the coordination home.
	statePath := filepath.Join(fx.stateDir, "sync", "sync-state.json")
	if fx.syncer.cursors.path != statePath {
		t.Fatalf("cursor path = %q, want %q", fx.syncer.cursors.path, statePath)
	}
	if _, err := os.Stat(statePath); err != nil {
		t.Fatalf("state file not written: %v", err)
	}

	// A fresh syncer over the same state dir re-reads the cursor.
	reloaded := New(config.Default(), fx.syncer.pointer, fx.syncer.coord, fx.poster, fx.stateDir)
	reloaded.dir = fx.syncer.dir
	reloaded.agent = fx.syncer.agent
	reloaded.SyncOnce(context.Background())
	if len(fx.poster.appends) != 2 {
		t.Fatalf("restart re-sent lines: appends = %d, want 2", len(fx.poster.appends))
	}
}

func TestSyncTruncationResetsCursor(t *testing.T) {
	fx := newFixture(t)
	appendLines(t, fx.sessionFile, userLine("one body"), userLine("two body"), userLine("three body"))
	fx.syncer.SyncOnce(context.Background())
	if len(fx.poster.appends) != 3 {
		t.Fatalf("appends = %d, want 3", len(fx.poster.appends))
	}

	// Session recreated with fewer lines.
	if err := os.WriteFile(fx.sessionFile, []byte(userLine("fresh body")+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	fx.syncer.SyncOnce(context.Background())
	if len(fx.poster.appends) != 4 {
		t.Fatalf("appends = %d, want 4 (cursor reset, one re-append)", len(fx.poster.appends))
	}
}

func TestSyncClassification(t *testing.T) {
	fx := newFixture(t)
	appendLines(t, fx.sessionFile,
		userLine("alice reacted to msg-42 with 👍"),
		userLine("[image attached]"),
		userLine("[Alice Smith (@asmith) #msg-17] hello from the channel"),
	)
	fx.syncer.SyncOnce(context.Background())

	if len(fx.poster.reactions) != 1 {
		t.Fatalf("reactions = %d, want 1", len(fx.poster.reactions))
	}
	r := fx.poster.reactions[0]
	if r.TargetMessageID != "msg-42" || r.Emoji != "👍" || r.FromUser != "alice" {
		t.Errorf("reaction = %+v", r)
	}

	if len(fx.poster.appends) != 1 {
		t.Fatalf("appends = %d, want 1 (noise dropped)", len(fx.poster.appends))
	}
	msg := fx.poster.appends[0].Message
	if msg.SenderName != "Alice Smith" || msg.SenderID != "asmith" || msg.MessageID != "msg-17" {
		t.Errorf("metadata = %+v", msg)
	}
	if msg.Content != "hello from the channel" {
		t.Errorf("body = %q", msg.Content)
	}
}

func TestSyncFailedPostLeavesCursor(t *testing.T) {
	fx := newFixture(t)
	appendLines(t, fx.sessionFile, userLine("will fail body"))
	fx.poster.failNext = true
	fx.syncer.SyncOnce(context.Background())
	if len(fx.poster.appends) != 0 {
		t.Fatal("failed post should not append")
	}

	fx.poster.failNext = false
	fx.syncer.SyncOnce(context.Background())
	if len(fx.poster.appends) != 1 {
		t.Fatalf("retry after failure: appends = %d, want 1", len(fx.poster.appends))
	}
}

func TestSyncPartialLastLine(t *testing.T) {
	fx := newFixture(t)
	appendLines(t, fx.sessionFile, userLine("complete line body"))
	f, err := os.OpenFile(fx.sessionFile, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString(`{"type":"message","role":"user","conte`) // mid-write
	f.Close()

	fx.syncer.SyncOnce(context.Background())
	if len(fx.poster.appends) != 1 {
		t.Fatalf("appends = %d, want 1 (partial line ignored)", len(fx.poster.appends))
	}
}
