package retrieve

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/trinsiklabs/onelist/internal/config"
	"github.com/trinsiklabs/onelist/internal/transcript"
)

func fallbackConfig() config.FallbackConfig {
	return config.Default().Fallback
}

func writeSession(t *testing.T, dir, name string, lines []string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func msgLine(role, text string, ts time.Time) string {
	return fmt.Sprintf(`{"type":"message","role":%q,"content":%q,"timestamp":%q}`,
		role, text, ts.Format(time.RFC3339))
}

func TestRecoverTailOrdered(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	var lines []string
	for i := 0; i < 8; i++ {
		lines = append(lines, msgLine("user", fmt.Sprintf("message number %d", i), base.Add(time.Duration(i)*time.Minute)))
	}
	writeSession(t, dir, "a.jsonl", lines)

	r := NewRecoverer(dir, fallbackConfig())
	block := r.Recover(context.Background())
	if block == "" {
		t.Fatal("expected a recovered block")
	}
	if !strings.HasPrefix(block, transcript.RecoveredContextHeader) {
		t.Errorf("missing header: %q", block[:60])
	}
	if strings.Index(block, "message number 0") > strings.Index(block, "message number 7") {
		t.Error("messages not in timestamp order")
	}
}

func TestRecoverZeroConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	writeSession(t, dir, "a.jsonl", []string{
		msgLine("user", "alpha message content", now),
		msgLine("assistant", "beta message content", now),
		msgLine("user", "gamma message content", now),
	})

	// Unset size caps must default, not filter out every non-empty file.
	r := NewRecoverer(dir, config.FallbackConfig{})
	block := r.Recover(context.Background())
	if block == "" {
		t.Fatal("zero-value config recovered nothing")
	}
	if !strings.Contains(block, "alpha message content") {
		t.Errorf("recovered block missing content:\n%s", block)
	}
}

func TestRecoverMinimumSurvivors(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	writeSession(t, dir, "a.jsonl", []string{
		msgLine("user", "only one real message here", now),
		msgLine("tool", "tool output ignored", now),
		msgLine("user", "[image attached]", now),
	})

	r := NewRecoverer(dir, fallbackConfig())
	if block := r.Recover(context.Background()); block != "" {
		t.Errorf("below minimum survivors, got block:\n%s", block)
	}
}

func TestRecoverSkipsMarkedAndStale(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	lines := []string{
		msgLine("user", "alpha message content", now),
		msgLine("assistant", "beta message content", now),
		msgLine("user", "gamma message content", now),
	}
	writeSession(t, dir, "live.jsonl", lines)
	writeSession(t, dir, "old.deleted.jsonl", lines)
	stale := writeSession(t, dir, "stale.jsonl", lines)
	past := time.Now().Add(-200 * time.Hour)
	os.Chtimes(stale, past, past)

	cfg := fallbackConfig()
	cfg.WindowHours = 1
	r := NewRecoverer(dir, cfg)
	block := r.Recover(context.Background())
	if block == "" {
		t.Fatal("expected block from live file")
	}
	if got := strings.Count(block, "alpha message content"); got != 1 {
		t.Errorf("alpha appears %d times, want 1 (marked/stale files must be skipped)", got)
	}
}

func TestRecoverFiltersNoiseAndTruncates(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	long := strings.Repeat("z", 6000)
	writeSession(t, dir, "a.jsonl", []string{
		msgLine("user", "first real message body", now),
		msgLine("assistant", transcript.RetrievedContextHeader+" echoed block", now),
		msgLine("user", long, now.Add(time.Minute)),
		msgLine("assistant", "closing real message body", now.Add(2*time.Minute)),
	})

	r := NewRecoverer(dir, fallbackConfig())
	block := r.Recover(context.Background())
	if block == "" {
		t.Fatal("expected block")
	}
	if strings.Contains(block, "echoed block") {
		t.Error("injection echo not filtered")
	}
	if strings.Contains(block, strings.Repeat("z", 4001)) {
		t.Error("long text not truncated to 4000 chars")
	}
}
