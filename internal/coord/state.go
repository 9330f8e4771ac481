package coord

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// stateVersion is the current schema version of the coordination file.
// Older files are migrated in place on the next locked write.
const stateVersion = 2

// state is the shared view persisted at {onelistHome}/coordination/state.json.
// Only lock holders mutate it.
type state struct {
	Version           int                       `json:"version"`
	Circuit           circuitState              `json:"circuit"`
	Windows           map[string]*windowState   `json:"windows,omitempty"`
	LastInjectionTime time.Time                 `json:"lastInjectionTime,omitempty"`
	Sessions          map[string]*sessionRecord `json:"sessionInjectionCounts,omitempty"`
	Stats             Stats                     `json:"stats"`
}

// circuitState is the global circuit breaker shared by all sibling agents.
type circuitState struct {
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	BackoffUntil        time.Time `json:"backoffUntil,omitempty"`
}

// windowState is one agent key's sliding write window.
type windowState struct {
	WindowStart time.Time `json:"windowStart"`
	Count       int       `json:"count"`
}

// sessionRecord tracks injections for one session across process restarts.
type sessionRecord struct {
	Count         int        `json:"count"`
	LastUpdated   time.Time  `json:"lastUpdated"`
	FileBirthTime *time.Time `json:"lastFileBirthTime,omitempty"`
}

// Stats are lifetime counters surfaced by the health line.
type Stats struct {
	Injections int64 `json:"injections"`
	Retrievals int64 `json:"retrievals"`
	Fallbacks  int64 `json:"fallbacks"`
	Searches   int64 `json:"searches"`
	SearchHits int64 `json:"searchHits"`
	Appends    int64 `json:"appends"`
	Failures   int64 `json:"failures"`
}

func newState() *state {
	return &state{
		Version:  stateVersion,
		Windows:  make(map[string]*windowState),
		Sessions: make(map[string]*sessionRecord),
	}
}

// migrate lifts older schema versions to the current one. Unknown future
// versions are taken as-is: fields we understand still round-trip.
func (s *state) migrate() {
	if s.Windows == nil {
		s.Windows = make(map[string]*windowState)
	}
	if s.Sessions == nil {
		s.Sessions = make(map[string]*sessionRecord)
	}
	s.Version = stateVersion
}

// loadState reads the coordination file. Any failure yields a fresh state:
// coordination degrades to permissive defaults rather than blocking hooks.
func loadState(path string) *state {
	data, err := os.ReadFile(path)
	if err != nil {
		return newState()
	}
	var s state
	if err := json.Unmarshal(data, &s); err != nil {
		return newState()
	}
	s.migrate()
	return &s
}

// saveState rewrites the coordination file atomically (temp + rename).
func saveState(path string, s *state) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "state-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	tmp.Close()

	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	cleanup = false
	return nil
}
