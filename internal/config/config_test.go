package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json5"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Injection.MaxPerSession != 5 {
		t.Errorf("MaxPerSession = %d, want 5", cfg.Injection.MaxPerSession)
	}
	if cfg.Retrieval.SemanticWeight != 0.7 {
		t.Errorf("SemanticWeight = %v, want 0.7", cfg.Retrieval.SemanticWeight)
	}
	if !cfg.Injection.ResetOnRecreate {
		t.Error("ResetOnRecreate should default to true")
	}
}

func TestLoadJSON5AndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	body := `{
	// comments are allowed
	agent: { kind: "chat-bot" },
	store: { url: "http://file-configured:1" },
}`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("ONELIST_STORE_URL", "http://env-wins:2")
	t.Setenv("ONELIST_STORE_TOKEN", "sekrit")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.Kind != "chat-bot" {
		t.Errorf("Agent.Kind = %q, want chat-bot", cfg.Agent.Kind)
	}
	if cfg.Store.URL != "http://env-wins:2" {
		t.Errorf("Store.URL = %q, env should win", cfg.Store.URL)
	}
	if cfg.Store.Token != "sekrit" {
		t.Errorf("Store.Token not read from env")
	}
}

func TestSaveNeverPersistsSecrets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Default()
	cfg.Store.Token = "topsecret"
	cfg.Database.PostgresDSN = "postgres://u:p@h/db"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) == "" {
		t.Fatal("empty config written")
	}
	for _, secret := range []string{"topsecret", "postgres://u:p@h/db"} {
		if strings.Contains(string(data), secret) {
			t.Errorf("secret %q leaked into saved config", secret)
		}
	}
}

func TestMaskedCopy(t *testing.T) {
	cfg := Default()
	cfg.Store.Token = "abc"
	cp := cfg.MaskedCopy()
	if cp.Store.Token != "" && cp.Store.Token != secretMask {
		t.Errorf("Store.Token = %q, want masked", cp.Store.Token)
	}
	if cfg.Store.Token != "abc" {
		t.Error("original mutated")
	}
}

func TestExpandHome(t *testing.T) {
	home, _ := os.UserHomeDir()
	tests := []struct {
		in   string
		want string
	}{
		{"~/.onelist", home + "/.onelist"},
		{"/abs/path", "/abs/path"},
		{"", ""},
		{"~", home},
	}
	for _, tt := range tests {
		if got := ExpandHome(tt.in); got != tt.want {
			t.Errorf("ExpandHome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
