package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/trinsiklabs/onelist/pkg/protocol"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	id := Identity{Kind: "claude-code", Version: "1.2.3", InstanceID: "inst-1", SubagentID: "researcher"}
	c := New(srv.URL, "secret-token", id, nil)
	c.sleep = func(time.Duration) {} // no real backoff in tests
	return c, srv
}

func TestIdentityHeadersOnEveryRequest(t *testing.T) {
	var got http.Header
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		json.NewEncoder(w).Encode(protocol.EntryResponse{ID: "e1"})
	}))

	if _, err := c.CreateEntry(context.Background(), &protocol.CreateEntryRequest{Title: "t", EntryType: protocol.EntryNote}); err != nil {
		t.Fatal(err)
	}

	checks := map[string]string{
		"Authorization":                  "Bearer secret-token",
		protocol.HeaderAgentID:           "claude-code",
		protocol.HeaderAgentVersion:      "1.2.3",
		protocol.HeaderAgentInstanceID:   "inst-1",
		protocol.HeaderAgentSubagentID:   "researcher",
	}
	for header, want := range checks {
		if v := got.Get(header); v != want {
			t.Errorf("%s = %q, want %q", header, v, want)
		}
	}
}

func TestRetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(protocol.EntryResponse{ID: "e1"})
	}))

	out, err := c.CreateEntry(context.Background(), &protocol.CreateEntryRequest{Title: "t", EntryType: protocol.EntryNote})
	if err != nil {
		t.Fatal(err)
	}
	if out.ID != "e1" {
		t.Errorf("ID = %q", out.ID)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestClientErrorsDoNotRetry(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(protocol.ErrorBody{
			Error: protocol.ErrorDetail{Code: protocol.CodeUnauthorized, Message: "bad token"},
		})
	}))

	_, err := c.CreateEntry(context.Background(), &protocol.CreateEntryRequest{Title: "t", EntryType: protocol.EntryNote})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1 (4xx must not retry)", n)
	}
}

func TestRetryAfterOverridesBackoff(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(protocol.ErrorBody{
				Error: protocol.ErrorDetail{Code: protocol.CodeRateLimited, Message: "slow down"},
			})
			return
		}
		json.NewEncoder(w).Encode(protocol.EntryResponse{ID: "e1"})
	})

	c, _ := newTestClient(t, handler)
	var slept []time.Duration
	c.sleep = func(d time.Duration) { slept = append(slept, d) }

	if _, err := c.CreateEntry(context.Background(), &protocol.CreateEntryRequest{Title: "t", EntryType: protocol.EntryNote}); err != nil {
		t.Fatal(err)
	}
	if len(slept) != 1 || slept[0] != 7*time.Second {
		t.Errorf("slept = %v, want [7s]", slept)
	}
}

func TestSearchExcludesSelfByDefault(t *testing.T) {
	var got protocol.SearchRequest
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = protocol.SearchRequest{}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(protocol.SearchResponse{OK: true})
	}))

	if _, err := c.Search(context.Background(), &protocol.SearchRequest{Query: "deploy steps"}); err != nil {
		t.Fatal(err)
	}
	if len(got.ExcludeAgents) != 1 || got.ExcludeAgents[0] != "claude-code" {
		t.Errorf("ExcludeAgents = %v, want [claude-code]", got.ExcludeAgents)
	}

	// Explicit include set suppresses the default exclusion.
	if _, err := c.Search(context.Background(), &protocol.SearchRequest{Query: "q", IncludeAgents: []string{"chat-bot"}}); err != nil {
		t.Fatal(err)
	}
	if len(got.ExcludeAgents) != 0 {
		t.Errorf("ExcludeAgents = %v, want empty with explicit include", got.ExcludeAgents)
	}
}

func TestClaimTaskLoserMapsToResponse(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(protocol.ErrorBody{
			Error: protocol.ErrorDetail{Code: protocol.CodeAlreadyClaimed, Message: "task already claimed"},
		})
	}))

	out, err := c.ClaimTask(context.Background(), "task-9")
	if err != nil {
		t.Fatalf("losing a claim race is not an error: %v", err)
	}
	if out.Claimed {
		t.Error("Claimed = true on the losing side")
	}
	if out.Reason != protocol.CodeAlreadyClaimed {
		t.Errorf("Reason = %q", out.Reason)
	}
}

func TestLoadOrCreateInstanceIDStable(t *testing.T) {
	dir := t.TempDir()
	first, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatal(err)
	}
	second, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatal(err)
	}
	if first == "" || first != second {
		t.Errorf("instance id not stable: %q vs %q", first, second)
	}
}
