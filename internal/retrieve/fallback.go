package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/trinsiklabs/onelist/internal/config"
	"github.com/trinsiklabs/onelist/internal/transcript"
)

// maxFallbackWindow caps the configurable recovery window.
const maxFallbackWindow = 168 * time.Hour

// skipMarkers disqualify a session file from recovery.
var skipMarkers = []string{".deleted", ".locked", ".archived"}

// Recoverer scans local session transcripts when Store retrieval is
// unavailable and rebuilds a capped tail of recent conversation.
type Recoverer struct {
	dir string
	cfg config.FallbackConfig
	now func() time.Time
}

// NewRecoverer creates the fallback recoverer over the host's sessions dir.
func NewRecoverer(dir string, cfg config.FallbackConfig) *Recoverer {
	return &Recoverer{dir: dir, cfg: cfg, now: time.Now}
}

type recovered struct {
	role string
	text string
	ts   time.Time
}

// Recover scans the sessions directory and returns a recovered-context
// block, or empty when fewer than the minimum messages survive filtering.
func (r *Recoverer) Recover(ctx context.Context) string {
	window := time.Duration(r.cfg.WindowHours) * time.Hour
	if window <= 0 {
		window = 12 * time.Hour
	}
	if window > maxFallbackWindow {
		window = maxFallbackWindow
	}
	target := r.cfg.TargetMessages
	if target <= 0 {
		target = 30
	}
	if target > 100 {
		target = 100
	}
	maxTotal := int64(r.cfg.MaxTotalBytes)
	if maxTotal <= 0 {
		maxTotal = 100 << 20
	}

	files := r.candidateFiles(window)
	if len(files) == 0 {
		return ""
	}

	var msgs []recovered
	var totalBytes int64
	for _, path := range files {
		if ctx.Err() != nil {
			return ""
		}
		if totalBytes >= maxTotal || len(msgs) >= 2*target {
			break
		}
		read := r.scanFile(path, &msgs)
		totalBytes += read
	}

	minMsgs := r.cfg.MinMessages
	if minMsgs <= 0 {
		minMsgs = 3
	}
	if len(msgs) < minMsgs {
		return ""
	}

	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].ts.Before(msgs[j].ts) })
	if len(msgs) > target {
		msgs = msgs[len(msgs)-target:]
	}
	return r.formatBlock(msgs)
}

// candidateFiles lists eligible session files, most recently modified first.
func (r *Recoverer) candidateFiles(window time.Duration) []string {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		slog.Debug("fallback: sessions dir unreadable", "dir", r.dir, "error", err)
		return nil
	}

	maxFiles := r.cfg.MaxFiles
	if maxFiles <= 0 {
		maxFiles = 100
	}
	maxFileBytes := int64(r.cfg.MaxFileBytes)
	if maxFileBytes <= 0 {
		maxFileBytes = 5 << 20
	}
	cutoff := r.now().Add(-window)

	type candidate struct {
		path  string
		mtime time.Time
	}
	var cands []candidate
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		if hasSkipMarker(name) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) || info.Size() > maxFileBytes {
			continue
		}
		cands = append(cands, candidate{filepath.Join(r.dir, name), info.ModTime()})
	}

	sort.Slice(cands, func(i, j int) bool { return cands[i].mtime.After(cands[j].mtime) })
	if len(cands) > maxFiles {
		cands = cands[:maxFiles]
	}
	paths := make([]string, len(cands))
	for i, c := range cands {
		paths[i] = c.path
	}
	return paths
}

func hasSkipMarker(name string) bool {
	for _, m := range skipMarkers {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}

// scanFile appends surviving messages from one file and returns bytes read.
func (r *Recoverer) scanFile(path string, out *[]recovered) int64 {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	maxText := r.cfg.MaxTextChars
	if maxText <= 0 {
		maxText = 4000
	}

	stats := transcript.Scan(f, r.cfg.MaxLinesPer, func(rec *transcript.Record) {
		if rec.Role != "user" && rec.Role != "assistant" {
			return
		}
		text := strings.TrimSpace(rec.Text())
		if text == "" || transcript.IsNoise(text) {
			return
		}
		if len(text) > maxText {
			text = text[:maxText]
		}
		*out = append(*out, recovered{role: rec.Role, text: text, ts: rec.Time()})
	})
	if stats.ParseErrs > 0 {
		slog.Debug("fallback: parse errors tolerated", "file", filepath.Base(path), "count", stats.ParseErrs)
	}
	return stats.BytesRead
}

func (r *Recoverer) formatBlock(msgs []recovered) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", transcript.RecoveredContextHeader)
	fmt.Fprintf(&b, "Recovered: %s | Messages: %d\n\n", r.now().UTC().Format(time.RFC3339), len(msgs))
	for _, m := range msgs {
		fmt.Fprintf(&b, "[%s] %s\n", m.role, m.text)
	}
	b.WriteString("\n-- end of injected context --\n")
	return b.String()
}
