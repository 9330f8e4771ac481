package sessions

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// pointerEntry is one value in the host's sessions pointer file, a map keyed
// "agent:{agent}:main" identifying the current main session.
type pointerEntry struct {
	SessionID   string `json:"sessionId"`
	SessionFile string `json:"sessionFile"`
}

// MainSession identifies the host's current main session file.
type MainSession struct {
	SessionID string
	File      string
}

// PointerReader resolves the host's main-session pointer with a short cache
// so per-event reads do not hit the disk. An absent or malformed pointer
// file resolves to "no main session", never an error.
type PointerReader struct {
	path  string
	agent string
	ttl   time.Duration

	mu       sync.Mutex
	cached   *MainSession
	cachedAt time.Time
}

// NewPointerReader watches the pointer file for the given agent kind.
// sessionsDir is the host's session-file directory; the pointer lives at
// sessionsDir/sessions.json.
func NewPointerReader(sessionsDir, agent string, ttl time.Duration) *PointerReader {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &PointerReader{
		path:  filepath.Join(sessionsDir, "sessions.json"),
		agent: agent,
		ttl:   ttl,
	}
}

// Main returns the current main session, or nil when none is identified.
func (p *PointerReader) Main() *MainSession {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if now.Sub(p.cachedAt) < p.ttl {
		return p.cached
	}
	p.cached = p.read()
	p.cachedAt = now
	return p.cached
}

// Invalidate drops the cache so the next Main re-reads the pointer file.
func (p *PointerReader) Invalidate() {
	p.mu.Lock()
	p.cachedAt = time.Time{}
	p.mu.Unlock()
}

func (p *PointerReader) read() *MainSession {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil
	}
	var m map[string]pointerEntry
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	entry, ok := m["agent:"+p.agent+":main"]
	if !ok || entry.SessionFile == "" {
		return nil
	}
	file := entry.SessionFile
	if !filepath.IsAbs(file) {
		file = filepath.Join(filepath.Dir(p.path), file)
	}
	id := entry.SessionID
	if id == "" {
		base := filepath.Base(file)
		id = base[:len(base)-len(filepath.Ext(base))]
	}
	return &MainSession{SessionID: id, File: file}
}
