package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/trinsiklabs/onelist/internal/bus"
	"github.com/trinsiklabs/onelist/internal/config"
	"github.com/trinsiklabs/onelist/internal/importer"
	"github.com/trinsiklabs/onelist/internal/ingest"
	"github.com/trinsiklabs/onelist/internal/memory"
	"github.com/trinsiklabs/onelist/internal/store"
	"github.com/trinsiklabs/onelist/internal/store/sqlite"
	"github.com/trinsiklabs/onelist/pkg/protocol"
)

const testToken = "test-token"

func newTestServer(t *testing.T) (*httptest.Server, *store.Stores) {
	t.Helper()
	stores, err := sqlite.NewStores(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("open stores: %v", err)
	}

	cfg := config.Default()
	cfg.Server.Token = testToken

	events := bus.New()
	queue := memory.NewExtractionQueue()
	guard := memory.NewGuard(stores.Memories)
	chain := memory.NewChain(stores.Owners, stores.Entries, stores.Chain)
	svc := ingest.New(stores, chain, queue, events)
	imp := importer.New(svc, stores.Entries, events)

	srv := New(cfg, stores, svc, guard, chain, events, imp)
	ts := httptest.NewServer(srv.BuildMux())
	t.Cleanup(ts.Close)
	return ts, stores
}

// call issues an authenticated request with the standard identity headers.
func call(t *testing.T, ts *httptest.Server, method, path string, body, out interface{}) int {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, ts.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(protocol.HeaderAgentID, "claude-code")
	req.Header.Set(protocol.HeaderAgentVersion, "1.0.0")
	req.Header.Set(protocol.HeaderAgentInstanceID, "inst-1")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func TestAuthRequired(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + protocol.APIPrefix + "/search?q=x")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}

	var envelope protocol.ErrorBody
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.OK || envelope.Error.Code != protocol.CodeUnauthorized {
		t.Fatalf("envelope = %+v", envelope)
	}
}

func TestEntryLifecycle(t *testing.T) {
	ts, _ := newTestServer(t)

	var created protocol.EntryResponse
	status := call(t, ts, http.MethodPost, protocol.APIPrefix+"/entries", protocol.CreateEntryRequest{
		Title:     "Standup notes",
		EntryType: protocol.EntryNote,
		Content:   "Talked about the release.",
	}, &created)
	if status != http.StatusCreated {
		t.Fatalf("create status = %d", status)
	}
	if created.Provenance == nil || created.Provenance.AgentKind != "claude-code" {
		t.Fatalf("provenance = %+v", created.Provenance)
	}

	var fetched protocol.EntryResponse
	if status := call(t, ts, http.MethodGet, protocol.APIPrefix+"/entries/"+created.ID, nil, &fetched); status != http.StatusOK {
		t.Fatalf("get status = %d", status)
	}
	if fetched.Title != "Standup notes" {
		t.Fatalf("title = %q", fetched.Title)
	}

	var updated protocol.EntryResponse
	status = call(t, ts, http.MethodPut, protocol.APIPrefix+"/entries/"+created.ID,
		protocol.UpdateEntryRequest{Title: "Standup notes (amended)"}, &updated)
	if status != http.StatusOK {
		t.Fatalf("update status = %d", status)
	}
	if updated.Version <= fetched.Version {
		t.Fatalf("version did not advance: %d -> %d", fetched.Version, updated.Version)
	}

	if status := call(t, ts, http.MethodDelete, protocol.APIPrefix+"/entries/"+created.ID, nil, nil); status != http.StatusOK {
		t.Fatalf("delete status = %d", status)
	}
	if status := call(t, ts, http.MethodGet, protocol.APIPrefix+"/entries/"+created.ID, nil, nil); status != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", status)
	}
}

func TestEntryAssets(t *testing.T) {
	ts, _ := newTestServer(t)

	var created protocol.EntryResponse
	call(t, ts, http.MethodPost, protocol.APIPrefix+"/entries", protocol.CreateEntryRequest{
		Title:     "Release checklist",
		EntryType: protocol.EntryNote,
	}, &created)

	var added struct {
		OK bool   `json:"ok"`
		ID string `json:"id"`
	}
	status := call(t, ts, http.MethodPost, protocol.APIPrefix+"/entries/"+created.ID+"/assets",
		protocol.AssetRequest{Name: "diagram.png", MediaType: "image/png", Data: []byte{0x89, 0x50, 0x4e, 0x47}}, &added)
	if status != http.StatusCreated || added.ID == "" {
		t.Fatalf("add asset status = %d resp = %+v", status, added)
	}

	var listed struct {
		OK     bool                 `json:"ok"`
		Assets []protocol.AssetInfo `json:"assets"`
	}
	call(t, ts, http.MethodGet, protocol.APIPrefix+"/entries/"+created.ID+"/assets", nil, &listed)
	if len(listed.Assets) != 1 || listed.Assets[0].Name != "diagram.png" || listed.Assets[0].Size != 4 {
		t.Fatalf("assets = %+v", listed.Assets)
	}

	// Blob mutations count as entry mutations.
	var after protocol.EntryResponse
	call(t, ts, http.MethodGet, protocol.APIPrefix+"/entries/"+created.ID, nil, &after)
	if after.Version <= created.Version {
		t.Fatalf("version did not advance: %d -> %d", created.Version, after.Version)
	}
}

func TestSearchExcludesCallingAgentByDefault(t *testing.T) {
	ts, _ := newTestServer(t)

	var appended protocol.AppendResponse
	status := call(t, ts, http.MethodPost, protocol.APIPrefix+"/chat-stream/append", protocol.AppendRequest{
		SessionID: "openclaw:claude-code:s1",
		Message:   protocol.ChatMessage{Role: "user", Content: "deploy pipeline configuration"},
	}, &appended)
	if status != http.StatusOK || !appended.OK {
		t.Fatalf("append status = %d resp = %+v", status, appended)
	}

	// call() identifies as claude-code, so a bare search must not surface
	// the agent's own writes.
	var own protocol.SearchResponse
	call(t, ts, http.MethodPost, protocol.APIPrefix+"/search", protocol.SearchRequest{
		Query: "deploy pipeline configuration",
	}, &own)
	if len(own.Results) != 0 {
		t.Fatalf("default search returned the caller's own writes: %d hits", len(own.Results))
	}

	// Explicit agent filters override the default exclusion.
	var included protocol.SearchResponse
	call(t, ts, http.MethodPost, protocol.APIPrefix+"/search", protocol.SearchRequest{
		Query:         "deploy pipeline configuration",
		IncludeAgents: []string{"claude-code"},
	}, &included)
	if len(included.Results) == 0 {
		t.Fatal("explicit include_agents should surface the hit")
	}

	// The GET form takes the same exclusion list as a query parameter.
	var viaGet protocol.SearchResponse
	call(t, ts, http.MethodGet,
		protocol.APIPrefix+"/search?q=deploy+pipeline+configuration&exclude_agents=chat-assistant", nil, &viaGet)
	if len(viaGet.Results) == 0 {
		t.Fatal("exclude_agents naming another agent should leave the hit visible")
	}
}

func TestTrustedMemoryFreezesEntries(t *testing.T) {
	ts, stores := newTestServer(t)

	var created protocol.EntryResponse
	call(t, ts, http.MethodPost, protocol.APIPrefix+"/entries", protocol.CreateEntryRequest{
		Title:     "Pinned decision",
		EntryType: protocol.EntryNote,
	}, &created)

	if err := stores.Owners.SetTrustedMemory(context.Background(), "default", true); err != nil {
		t.Fatalf("set trusted memory: %v", err)
	}

	var envelope protocol.ErrorBody
	status := call(t, ts, http.MethodPut, protocol.APIPrefix+"/entries/"+created.ID,
		protocol.UpdateEntryRequest{Title: "rewritten"}, &envelope)
	if status != http.StatusConflict || envelope.Error.Code != protocol.CodeConflict {
		t.Fatalf("update status = %d code = %q", status, envelope.Error.Code)
	}

	envelope = protocol.ErrorBody{}
	status = call(t, ts, http.MethodDelete, protocol.APIPrefix+"/entries/"+created.ID, nil, &envelope)
	if status != http.StatusConflict || envelope.Error.Code != protocol.CodeConflict {
		t.Fatalf("delete status = %d code = %q", status, envelope.Error.Code)
	}

	var still protocol.EntryResponse
	if status := call(t, ts, http.MethodGet, protocol.APIPrefix+"/entries/"+created.ID, nil, &still); status != http.StatusOK {
		t.Fatalf("entry gone after rejected mutations: status = %d", status)
	}
	if still.Title != "Pinned decision" {
		t.Fatalf("title = %q", still.Title)
	}
}

func TestBlockingChainRoute(t *testing.T) {
	ts, stores := newTestServer(t)

	ctx := context.Background()
	a := &store.Entry{OwnerID: "default", EntryType: string(protocol.EntryTask), Title: "Ship release"}
	b := &store.Entry{OwnerID: "default", EntryType: string(protocol.EntryTask), Title: "Fix migration"}
	for _, e := range []*store.Entry{a, b} {
		if err := stores.Entries.Create(ctx, e); err != nil {
			t.Fatalf("create entry: %v", err)
		}
	}
	if err := stores.Relationships.Create(ctx, &store.Relationship{
		OwnerID: "default", SourceID: a.ID, TargetID: b.ID, Type: store.RelDependsOn,
	}); err != nil {
		t.Fatalf("create relationship: %v", err)
	}

	var resp struct {
		OK    bool                 `json:"ok"`
		Chain []store.Relationship `json:"chain"`
	}
	status := call(t, ts, http.MethodGet,
		protocol.APIPrefix+"/entries/"+a.ID+"/relationships/blocking-chain", nil, &resp)
	if status != http.StatusOK || !resp.OK {
		t.Fatalf("status = %d resp = %+v", status, resp)
	}
	if len(resp.Chain) != 1 || resp.Chain[0].TargetID != b.ID {
		t.Fatalf("chain = %+v", resp.Chain)
	}
}

func TestClaimIsExclusive(t *testing.T) {
	ts, stores := newTestServer(t)

	task := &store.Entry{OwnerID: "default", EntryType: string(protocol.EntryTask), Title: "Rotate keys"}
	if err := stores.Entries.Create(context.Background(), task); err != nil {
		t.Fatalf("create task: %v", err)
	}

	var first protocol.ClaimResponse
	if status := call(t, ts, http.MethodPost, protocol.APIPrefix+"/tasks/"+task.ID+"/claim", nil, &first); status != http.StatusOK {
		t.Fatalf("first claim status = %d", status)
	}
	if !first.Claimed {
		t.Fatalf("first claim = %+v", first)
	}

	var envelope protocol.ErrorBody
	status := call(t, ts, http.MethodPost, protocol.APIPrefix+"/tasks/"+task.ID+"/claim", nil, &envelope)
	if status != http.StatusConflict {
		t.Fatalf("second claim status = %d", status)
	}
	if envelope.Error.Code != protocol.CodeAlreadyClaimed {
		t.Fatalf("second claim code = %q", envelope.Error.Code)
	}
}

func TestCheckDerivationReportsDuplicate(t *testing.T) {
	ts, stores := newTestServer(t)

	guard := memory.NewGuard(stores.Memories)
	writer := memory.NewWriter(guard, stores.Memories, nil)
	if _, err := writer.Write(context.Background(), "default", "", memory.Candidate{
		Kind: string(protocol.MemoryFact), Content: "The deploy window is Friday.", SourceAgent: "main", Confidence: 1,
	}); err != nil {
		t.Fatalf("seed memory: %v", err)
	}

	var resp protocol.CheckDerivationResponse
	status := call(t, ts, http.MethodPost, protocol.APIPrefix+"/memories/check-derivation",
		protocol.CheckDerivationRequest{Content: "The  deploy window is Friday.", SourceAgent: "main"}, &resp)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if !resp.Duplicate {
		t.Fatal("expected a duplicate verdict for whitespace-variant content")
	}
}

func TestImportPreviewAndRun(t *testing.T) {
	ts, _ := newTestServer(t)

	root := t.TempDir()
	sessDir := filepath.Join(root, "agents", "claude-code", "sessions")
	if err := os.MkdirAll(sessDir, 0755); err != nil {
		t.Fatal(err)
	}
	lines := ""
	for i := 0; i < 3; i++ {
		lines += fmt.Sprintf(`{"type":"message","role":"user","content":"archived message %d","timestamp":"2026-08-0%dT10:00:00Z"}`+"\n", i, i+1)
	}
	if err := os.WriteFile(filepath.Join(sessDir, "old-session.jsonl"), []byte(lines), 0644); err != nil {
		t.Fatal(err)
	}

	var preview struct {
		OK    bool                      `json:"ok"`
		Files []protocol.ImportFileInfo `json:"files"`
	}
	call(t, ts, http.MethodGet, protocol.APIPrefix+"/openclaw/import/preview?root="+root, nil, &preview)
	if len(preview.Files) != 1 || preview.Files[0].MessageCount != 3 {
		t.Fatalf("preview = %+v", preview)
	}

	// The time window narrows the preview the same way it narrows a run.
	var windowed struct {
		OK    bool                      `json:"ok"`
		Files []protocol.ImportFileInfo `json:"files"`
	}
	call(t, ts, http.MethodGet,
		protocol.APIPrefix+"/openclaw/import/preview?root="+root+"&after=2026-08-10T00:00:00Z", nil, &windowed)
	if len(windowed.Files) != 0 {
		t.Fatalf("after-window preview = %+v", windowed.Files)
	}
	if status := call(t, ts, http.MethodGet,
		protocol.APIPrefix+"/openclaw/import/preview?root="+root+"&before=not-a-time", nil, nil); status != http.StatusBadRequest {
		t.Fatalf("bad before param status = %d", status)
	}

	var run protocol.ImportResponse
	call(t, ts, http.MethodPost, protocol.APIPrefix+"/openclaw/import",
		protocol.ImportRequest{Root: root}, &run)
	if run.ImportedCount != 3 || run.FailedCount != 0 {
		t.Fatalf("run = %+v", run)
	}

	// Re-running is a no-op thanks to the external session key.
	var again protocol.ImportResponse
	call(t, ts, http.MethodPost, protocol.APIPrefix+"/openclaw/import",
		protocol.ImportRequest{Root: root}, &again)
	if again.ImportedCount != 0 || len(again.Results) != 1 || !again.Results[0].AlreadyExisted {
		t.Fatalf("second run = %+v", again)
	}
}
