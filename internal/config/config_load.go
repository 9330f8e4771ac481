package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/titanous/json5"
)

// DefaultRequestTimeout is the per-request budget for Store calls that do
// not declare their own (appends use 10 s, search uses 8 s).
const DefaultRequestTimeout = 10 * time.Second

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Kind:        "claude-code",
			OneListHome: "~/.onelist",
		},
		Store: StoreConfig{
			URL:     "http://127.0.0.1:18890",
			Timeout: DefaultRequestTimeout,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 18890,
		},
		Injection: InjectionConfig{
			MaxPerSession:   5,
			MinIntervalSec:  30,
			MaxContentChars: 50000,
			BudgetSec:       5,
			ResetOnRecreate: true,
			FallbackEnabled: true,
		},
		Retrieval: RetrievalConfig{
			Limit:          10,
			Threshold:      0.5,
			SemanticWeight: 0.7,
			KeywordWeight:  0.3,
			TimeoutSec:     8,
		},
		Fallback: FallbackConfig{
			WindowHours:    12,
			TargetMessages: 30,
			MinMessages:    3,
			MaxFiles:       100,
			MaxFileBytes:   5 * 1024 * 1024,
			MaxTotalBytes:  100 * 1024 * 1024,
			MaxLinesPer:    10000,
			MaxTextChars:   4000,
		},
		Sync: SyncConfig{
			Enabled:         true,
			TickSec:         15,
			PointerTTLSec:   30,
			MaxTrackedFiles: 50,
		},
		Database: DatabaseConfig{
			Mode:       "standalone",
			SQLitePath: "~/.onelist/store.db",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error: defaults + env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("ONELIST_AGENT_KIND", &c.Agent.Kind)
	envStr("ONELIST_SUBAGENT_ID", &c.Agent.SubagentID)
	envStr("OPENCLAW_HOME", &c.Agent.OpenClawHome)
	envStr("ONELIST_HOME", &c.Agent.OneListHome)

	envStr("ONELIST_STORE_URL", &c.Store.URL)
	envStr("ONELIST_STORE_TOKEN", &c.Store.Token)

	envStr("ONELIST_HOST", &c.Server.Host)
	if v := os.Getenv("ONELIST_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Server.Port = port
		}
	}
	envStr("ONELIST_SERVER_TOKEN", &c.Server.Token)

	envStr("ONELIST_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("ONELIST_MODE", &c.Database.Mode)
	envStr("ONELIST_SQLITE_PATH", &c.Database.SQLitePath)

	envStr("ONELIST_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("ONELIST_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("ONELIST_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("ONELIST_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("ONELIST_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}
}

// ApplyEnvOverrides re-applies environment variable overrides.
// Call after mutating config to restore runtime secrets from env.
func (c *Config) ApplyEnvOverrides() {
	c.applyEnvOverrides()
}

// Save writes the config to a JSON file. Secrets are tagged `json:"-"`
// and never persist.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// OneListHomePath returns the expanded coordination home directory.
func (c *Config) OneListHomePath() string {
	return ExpandHome(c.Agent.OneListHome)
}

// OpenClawHomePath resolves the host runtime's home directory: config value,
// then OPENCLAW_HOME (applied by env overlay), then the OS convention.
func (c *Config) OpenClawHomePath() string {
	if c.Agent.OpenClawHome != "" {
		return ExpandHome(c.Agent.OpenClawHome)
	}
	return ExpandHome("~/.openclaw")
}

// SessionsDir returns the host's session-file directory for this agent kind.
func (c *Config) SessionsDir() string {
	return filepath.Join(c.OpenClawHomePath(), "agents", c.Agent.Kind, "sessions")
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
