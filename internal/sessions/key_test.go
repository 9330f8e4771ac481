package sessions

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestBuildAndParseKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		want    Key
		wantErr bool
	}{
		{"simple", "openclaw:main:abc123", Key{"openclaw", "main", "abc123"}, false},
		{"id with colons", "telegram:chat:group:100:topic:9", Key{"telegram", "chat", "group:100:topic:9"}, false},
		{"two segments", "openclaw:main", Key{}, true},
		{"empty segment", "openclaw::abc", Key{}, true},
		{"empty", "", Key{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseKey(%q) err = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("ParseKey(%q) = %+v, want %+v", tt.key, got, tt.want)
			}
			if err == nil && got.String() != tt.key {
				t.Errorf("round trip = %q, want %q", got.String(), tt.key)
			}
		})
	}
}

func writePointer(t *testing.T, dir string, m map[string]pointerEntry) {
	t.Helper()
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sessions.json"), data, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestPointerReader(t *testing.T) {
	dir := t.TempDir()
	r := NewPointerReader(dir, "main", time.Hour)

	if got := r.Main(); got != nil {
		t.Fatalf("missing pointer file: got %+v, want nil", got)
	}

	writePointer(t, dir, map[string]pointerEntry{
		"agent:main:main": {SessionID: "s1", SessionFile: "s1.jsonl"},
	})

	// Cached nil until invalidated.
	if got := r.Main(); got != nil {
		t.Fatalf("cache not honored: got %+v", got)
	}
	r.Invalidate()

	got := r.Main()
	if got == nil || got.SessionID != "s1" {
		t.Fatalf("Main() = %+v, want session s1", got)
	}
	if got.File != filepath.Join(dir, "s1.jsonl") {
		t.Errorf("relative file not resolved: %q", got.File)
	}
}

func TestPointerReaderWrongAgent(t *testing.T) {
	dir := t.TempDir()
	writePointer(t, dir, map[string]pointerEntry{
		"agent:other:main": {SessionID: "s1", SessionFile: "s1.jsonl"},
	})
	r := NewPointerReader(dir, "main", time.Hour)
	if got := r.Main(); got != nil {
		t.Fatalf("wrong agent resolved: %+v", got)
	}
}
