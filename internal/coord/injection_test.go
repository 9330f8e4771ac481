package coord

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeSessionFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(`{"type":"message","role":"user","content":"hi"}`+"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestInjectionBudgetAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	file := writeSessionFile(t, dir, "s1.jsonl")

	s, now := newTestStore(t)
	for i := 0; i < 5; i++ {
		d := s.CheckInjection("s1", file)
		if !d.Allowed {
			t.Fatalf("injection %d denied: %s", i+1, d.Reason)
		}
		s.RecordInjection("s1", file, "retrieval")
		*now = now.Add(31 * time.Second) // clear the global interval gate
	}

	d := s.CheckInjection("s1", file)
	if d.Allowed {
		t.Fatal("6th injection should be denied")
	}
	if d.Reason != ReasonAtLimit || d.CurrentCount != 5 {
		t.Errorf("decision = %+v", d)
	}

	// Restart: a fresh Store over the same coordination dir still denies.
	restarted, err := New(filepath.Dir(s.statePath), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if d := restarted.CheckInjection("s1", file); d.Allowed {
		t.Error("budget should survive process restart")
	}
}

func TestInjectionGlobalInterval(t *testing.T) {
	dir := t.TempDir()
	file := writeSessionFile(t, dir, "s1.jsonl")
	other := writeSessionFile(t, dir, "s2.jsonl")

	s, now := newTestStore(t)
	s.RecordInjection("s1", file, "retrieval")

	// Another session, 10s later: denied by the 30s global gap.
	*now = now.Add(10 * time.Second)
	d := s.CheckInjection("s2", other)
	if d.Allowed {
		t.Fatal("injection within 30s of the last should be denied")
	}
	if d.Reason != ReasonTooSoon {
		t.Errorf("reason = %q", d.Reason)
	}

	*now = now.Add(25 * time.Second)
	if d := s.CheckInjection("s2", other); !d.Allowed {
		t.Errorf("injection after the gap denied: %s", d.Reason)
	}
}

func TestInjectionResetOnRecreatedFile(t *testing.T) {
	dir := t.TempDir()
	file := writeSessionFile(t, dir, "s1.jsonl")
	if _, ok := fileBirth(file); !ok {
		t.Skip("filesystem does not expose file birth time")
	}

	s, now := newTestStore(t)
	for i := 0; i < 5; i++ {
		s.RecordInjection("s1", file, "retrieval")
		*now = now.Add(31 * time.Second)
	}
	if d := s.CheckInjection("s1", file); d.Allowed {
		t.Fatal("budget should be exhausted")
	}

	// Recreate the session file with a birth instant past the skew.
	if err := os.Remove(file); err != nil {
		t.Fatal(err)
	}
	time.Sleep(2100 * time.Millisecond)
	file = writeSessionFile(t, dir, "s1.jsonl")

	d := s.CheckInjection("s1", file)
	if !d.Allowed {
		t.Fatalf("recreated session should reset the budget: %s", d.Reason)
	}
	if d.CurrentCount != 0 {
		t.Errorf("CurrentCount = %d, want 0 after reset", d.CurrentCount)
	}
}

func TestInjectionBirthRegressionDenied(t *testing.T) {
	dir := t.TempDir()
	file := writeSessionFile(t, dir, "s1.jsonl")
	birth, ok := fileBirth(file)
	if !ok {
		t.Skip("filesystem does not expose file birth time")
	}

	s, _ := newTestStore(t)
	// Seed a record whose stored birth is in the future relative to the file.
	future := birth.Add(time.Hour)
	s.withLock(func(st *state) bool {
		st.Sessions["s1"] = &sessionRecord{Count: 1, LastUpdated: s.now(), FileBirthTime: &future}
		return true
	})

	d := s.CheckInjection("s1", file)
	if d.Allowed {
		t.Fatal("birth regression should deny injection")
	}
	if d.Reason != ReasonBirthRegressed {
		t.Errorf("reason = %q", d.Reason)
	}
}

func TestSessionPruning(t *testing.T) {
	dir := t.TempDir()
	file := writeSessionFile(t, dir, "s.jsonl")

	opts := DefaultOptions()
	opts.MaxSessions = 10
	opts.MinInjectionInterval = 0
	s, err := New(t.TempDir(), opts)
	if err != nil {
		t.Fatal(err)
	}
	base := time.Now()
	now := base
	s.now = func() time.Time { return now }

	for i := 0; i < 25; i++ {
		now = now.Add(time.Second)
		s.RecordInjection(sessionName(i), file, "retrieval")
	}

	_, tracked := s.SnapshotStats()
	if tracked > 10 {
		t.Errorf("tracked sessions = %d, want <= 10", tracked)
	}

	// Old records fall out by TTL.
	now = now.Add(8 * 24 * time.Hour)
	s.RecordInjection("fresh", file, "fallback")
	_, tracked = s.SnapshotStats()
	if tracked != 1 {
		t.Errorf("tracked sessions after TTL = %d, want 1", tracked)
	}
}

func sessionName(i int) string {
	return fmt.Sprintf("session-%02d", i)
}
