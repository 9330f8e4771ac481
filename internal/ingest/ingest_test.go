package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/trinsiklabs/onelist/internal/memory"
	"github.com/trinsiklabs/onelist/internal/store"
	"github.com/trinsiklabs/onelist/internal/store/sqlite"
	"github.com/trinsiklabs/onelist/pkg/protocol"
)

func newService(t *testing.T) (*Service, *store.Stores, *memory.ExtractionQueue) {
	t.Helper()
	stores, err := sqlite.NewStores(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("open stores: %v", err)
	}
	queue := memory.NewExtractionQueue()
	chain := memory.NewChain(stores.Owners, stores.Entries, stores.Chain)
	return New(stores, chain, queue, nil), stores, queue
}

func appendMsg(t *testing.T, svc *Service, key, role, content, msgID string) *protocol.AppendResponse {
	t.Helper()
	resp, err := svc.Append(context.Background(), "default", protocol.Provenance{AgentKind: "claude-code"},
		&protocol.AppendRequest{
			SessionID: key,
			Message:   protocol.ChatMessage{Role: role, Content: content, MessageID: msgID},
		})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	return resp
}

func TestAppendCreatesAndReusesStream(t *testing.T) {
	svc, stores, _ := newService(t)
	key := "openclaw:claude-code:direct-1"

	first := appendMsg(t, svc, key, "user", "hello", "")
	if first.MessageCount != 1 {
		t.Fatalf("count = %d, want 1", first.MessageCount)
	}
	if first.MessageID == "" {
		t.Fatal("expected a generated message id")
	}

	second := appendMsg(t, svc, key, "assistant", "hi there", "")
	if second.StreamID != first.StreamID {
		t.Fatalf("stream changed: %s vs %s", second.StreamID, first.StreamID)
	}
	if second.MessageCount != 2 {
		t.Fatalf("count = %d, want 2", second.MessageCount)
	}

	e, err := stores.Entries.Get(context.Background(), "default", first.StreamID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if e.EntryType != string(protocol.EntryChatLog) {
		t.Fatalf("entry type = %q", e.EntryType)
	}
	if e.Title != "Chat: openclaw/direct-1" {
		t.Fatalf("title = %q", e.Title)
	}
	if e.AgentKind != "claude-code" {
		t.Fatalf("provenance kind = %q", e.AgentKind)
	}
	if e.LastRole != "assistant" {
		t.Fatalf("last role = %q", e.LastRole)
	}

	jsonl, err := stores.Entries.Representation(context.Background(), "default", first.StreamID, store.FormJSONL)
	if err != nil {
		t.Fatalf("representation: %v", err)
	}
	if got := strings.Count(jsonl, "\n"); got != 2 {
		t.Fatalf("jsonl lines = %d, want 2", got)
	}
}

func TestAppendRejectsBadInput(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.Append(context.Background(), "default", protocol.Provenance{},
		&protocol.AppendRequest{SessionID: "not-a-key", Message: protocol.ChatMessage{Role: "user", Content: "x"}})
	if !errors.Is(err, ErrBadSessionKey) {
		t.Fatalf("err = %v, want ErrBadSessionKey", err)
	}

	_, err = svc.Append(context.Background(), "default", protocol.Provenance{},
		&protocol.AppendRequest{SessionID: "openclaw:main:s1", Message: protocol.ChatMessage{Content: "x"}})
	if !errors.Is(err, ErrMissingRole) {
		t.Fatalf("err = %v, want ErrMissingRole", err)
	}
}

func TestReactionRidesTheTargetStream(t *testing.T) {
	svc, stores, _ := newService(t)
	key := "telegram:chat-assistant:group-9"

	resp := appendMsg(t, svc, key, "user", "ship it?", "msg-42")

	err := svc.React(context.Background(), "default", &protocol.ReactionRequest{
		TargetMessageID: "msg-42", Emoji: "👍", FromUser: "alice",
	})
	if err != nil {
		t.Fatalf("react: %v", err)
	}

	jsonl, err := stores.Entries.Representation(context.Background(), "default", resp.StreamID, store.FormJSONL)
	if err != nil {
		t.Fatalf("representation: %v", err)
	}
	if !strings.Contains(jsonl, `"type":"reaction"`) || !strings.Contains(jsonl, "👍") {
		t.Fatalf("reaction line missing from stream:\n%s", jsonl)
	}

	// Reactions never count as messages.
	e, _ := stores.Entries.Get(context.Background(), "default", resp.StreamID)
	if e.MessageCount != 1 {
		t.Fatalf("message count = %d, want 1", e.MessageCount)
	}

	err = svc.React(context.Background(), "default", &protocol.ReactionRequest{
		TargetMessageID: "never-seen", Emoji: "👀",
	})
	if !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("err = %v, want ErrUnknownMessage", err)
	}
}

func TestExtractionQueuedOnThreshold(t *testing.T) {
	svc, _, queue := newService(t)
	key := "openclaw:main:long-session"

	for i := 0; i < 10; i++ {
		appendMsg(t, svc, key, "user", "message", "")
	}

	select {
	case job := <-queue.Jobs():
		if job.OwnerID != "default" {
			t.Fatalf("job owner = %q", job.OwnerID)
		}
	default:
		t.Fatal("expected an extraction job after the tenth message")
	}
}
