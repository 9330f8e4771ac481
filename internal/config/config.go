package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Config is the root configuration for the OneList runtime and Store.
type Config struct {
	Agent     AgentConfig     `json:"agent"`
	Store     StoreConfig     `json:"store"`
	Server    ServerConfig    `json:"server"`
	Injection InjectionConfig `json:"injection,omitempty"`
	Retrieval RetrievalConfig `json:"retrieval,omitempty"`
	Fallback  FallbackConfig  `json:"fallback,omitempty"`
	Sync      SyncConfig      `json:"sync,omitempty"`
	Database  DatabaseConfig  `json:"database,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	mu        sync.RWMutex
}

// AgentConfig identifies this runtime to the Store and locates the host
// AI runtime's home directory.
type AgentConfig struct {
	Kind         string `json:"kind"`                    // agent kind tag, e.g. "claude-code"
	SubagentID   string `json:"subagent_id,omitempty"`   // set when running as a named sub-agent
	OpenClawHome string `json:"openclaw_home,omitempty"` // host home; env OPENCLAW_HOME wins
	OneListHome  string `json:"onelist_home,omitempty"`  // coordination area; default ~/.onelist
}

// StoreConfig points the runtime at the Store.
// Token is NEVER read from config files (secret) — only from env ONELIST_STORE_TOKEN.
type StoreConfig struct {
	URL     string        `json:"url"`
	Token   string        `json:"-"`
	Timeout time.Duration `json:"-"` // per-request budget; see DefaultRequestTimeout
}

// ServerConfig configures the Store HTTP server (serve mode).
type ServerConfig struct {
	Host  string `json:"host"`
	Port  int    `json:"port"`
	Token string `json:"-"` // env ONELIST_SERVER_TOKEN only
}

// InjectionConfig bounds context injection per session.
type InjectionConfig struct {
	MaxPerSession    int  `json:"max_per_session,omitempty"`    // default 5
	MinIntervalSec   int  `json:"min_interval_sec,omitempty"`   // default 30
	MaxContentChars  int  `json:"max_content_chars,omitempty"`  // default 50000
	BudgetSec        int  `json:"budget_sec,omitempty"`         // governor wall clock, default 5
	ResetOnRecreate  bool `json:"reset_on_recreate"`            // reset count when session file is recreated
	FallbackEnabled  bool `json:"fallback_enabled"`
}

// RetrievalConfig tunes the smart retriever.
type RetrievalConfig struct {
	Limit          int     `json:"limit,omitempty"`           // default 10
	Threshold      float64 `json:"threshold,omitempty"`       // default 0.5
	SemanticWeight float64 `json:"semantic_weight,omitempty"` // default 0.7
	KeywordWeight  float64 `json:"keyword_weight,omitempty"`  // default 0.3
	TimeoutSec     int     `json:"timeout_sec,omitempty"`     // default 8
}

// FallbackConfig tunes the local transcript recoverer.
type FallbackConfig struct {
	WindowHours    int `json:"window_hours,omitempty"`     // default 12, ceiling 168
	TargetMessages int `json:"target_messages,omitempty"`  // default 30, max 100
	MinMessages    int `json:"min_messages,omitempty"`     // default 3
	MaxFiles       int `json:"max_files,omitempty"`        // default 100
	MaxFileBytes   int `json:"max_file_bytes,omitempty"`   // default 5 MB
	MaxTotalBytes  int `json:"max_total_bytes,omitempty"`  // default 100 MB
	MaxLinesPer    int `json:"max_lines_per,omitempty"`    // default 10000
	MaxTextChars   int `json:"max_text_chars,omitempty"`   // default 4000
}

// SyncConfig tunes the chat-stream syncer.
type SyncConfig struct {
	Enabled         bool `json:"enabled"`
	TickSec         int  `json:"tick_sec,omitempty"`          // periodic re-scan, default 15
	PointerTTLSec   int  `json:"pointer_ttl_sec,omitempty"`   // main-session pointer cache, default 30
	MaxTrackedFiles int  `json:"max_tracked_files,omitempty"` // sync-state cap, default 50
}

// DatabaseConfig configures the Store backend for serve mode.
// PostgresDSN is NEVER read from config files — only from env ONELIST_POSTGRES_DSN.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"`
	Mode        string `json:"mode,omitempty"`        // "standalone" (sqlite, default) or "managed"
	SQLitePath  string `json:"sqlite_path,omitempty"` // default ~/.onelist/store.db
}

// IsManagedMode returns true when the Store runs against Postgres.
func (c *Config) IsManagedMode() bool {
	return c.Database.Mode == "managed" && c.Database.PostgresDSN != ""
}

// TelemetryConfig configures the optional OTLP trace exporter.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`
	Protocol    string `json:"protocol,omitempty"` // "grpc" (default) or "http"
	ServiceName string `json:"service_name,omitempty"`
	Insecure    bool   `json:"insecure,omitempty"`
}

// Hash returns a SHA-256 hash of the config for optimistic concurrency.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

const secretMask = "***"

// MaskedCopy returns a deep copy of the config with secret fields masked.
func (c *Config) MaskedCopy() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := json.Marshal(c)
	if err != nil {
		return &Config{}
	}
	cp := Default()
	if err := json.Unmarshal(data, cp); err != nil {
		return &Config{}
	}
	maskNonEmpty(&cp.Store.Token)
	maskNonEmpty(&cp.Server.Token)
	maskNonEmpty(&cp.Database.PostgresDSN)
	return cp
}

func maskNonEmpty(s *string) {
	if *s != "" {
		*s = secretMask
	}
}
