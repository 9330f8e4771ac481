package coord

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	s, err := New(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.Now()
	s.now = func() time.Time { return now }
	return s, &now
}

func TestCanWriteWindowSaturation(t *testing.T) {
	s, now := newTestStore(t)

	for i := 0; i < 30; i++ {
		if d := s.CanWrite("claude-code"); !d.Allowed {
			t.Fatalf("write %d denied: %s", i, d.Reason)
		}
		s.RecordWrite("claude-code")
	}

	d := s.CanWrite("claude-code")
	if d.Allowed {
		t.Fatal("31st write in window should be denied")
	}
	if d.Reason != ReasonWindowSaturated {
		t.Errorf("reason = %q", d.Reason)
	}
	if d.RetryAfter <= 0 || d.RetryAfter > 60*time.Second {
		t.Errorf("RetryAfter = %v", d.RetryAfter)
	}

	// A different agent key has its own window.
	if d := s.CanWrite("chat-bot"); !d.Allowed {
		t.Errorf("sibling agent denied: %s", d.Reason)
	}

	// Window rolls after 60s.
	*now = now.Add(61 * time.Second)
	if d := s.CanWrite("claude-code"); !d.Allowed {
		t.Errorf("write after window roll denied: %s", d.Reason)
	}
}

func TestCircuitBreakerOpensAfterFiveFailures(t *testing.T) {
	s, now := newTestStore(t)

	for i := 0; i < 4; i++ {
		s.RecordFailure()
	}
	if d := s.CanWrite("a"); !d.Allowed {
		t.Fatal("circuit should still be closed at 4 failures")
	}

	s.RecordFailure()
	d := s.CanWrite("a")
	if d.Allowed {
		t.Fatal("circuit should be open at 5 failures")
	}
	if d.Reason != ReasonCircuitOpen {
		t.Errorf("reason = %q", d.Reason)
	}

	// Initial backoff is 60s; permits retry afterwards.
	*now = now.Add(61 * time.Second)
	if d := s.CanWrite("a"); !d.Allowed {
		t.Errorf("circuit should permit retry after backoff: %s", d.Reason)
	}

	// A successful write closes it.
	s.RecordWrite("a")
	s.RecordFailure() // single failure must not reopen
	if d := s.CanWrite("a"); !d.Allowed {
		t.Error("one failure after success reopened the circuit")
	}
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	s, now := newTestStore(t)

	for i := 0; i < 5; i++ {
		s.RecordFailure()
	}
	first := s.CanWrite("a").RetryAfter
	if first != 60*time.Second {
		t.Errorf("initial backoff = %v, want 60s", first)
	}

	s.RecordFailure() // 6th: 2x
	if got := s.CanWrite("a").RetryAfter; got != 120*time.Second {
		t.Errorf("backoff after 6 failures = %v, want 2m", got)
	}

	for i := 0; i < 20; i++ {
		s.RecordFailure()
	}
	if got := s.CanWrite("a").RetryAfter; got > time.Hour {
		t.Errorf("backoff = %v, should cap at 1h", got)
	}
	_ = now
}

func TestStatePersistsAcrossStores(t *testing.T) {
	dir := t.TempDir()
	s1, err := New(dir, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 30; i++ {
		s1.RecordWrite("k")
	}

	// A second Store over the same dir (simulating a sibling or restart)
	// sees the saturated window.
	s2, err := New(dir, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if d := s2.CanWrite("k"); d.Allowed {
		t.Error("sibling store should see the saturated window")
	}
}

func TestCorruptStateFileYieldsDefaults(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "state.json"), []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	s, err := New(dir, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if d := s.CanWrite("k"); !d.Allowed {
		t.Errorf("corrupt state should degrade to allowed, got %s", d.Reason)
	}
}

func TestStaleLockReclaimed(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "state.json.lock")
	if err := os.WriteFile(lockPath, []byte("12345\n"), 0600); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-time.Minute)
	if err := os.Chtimes(lockPath, old, old); err != nil {
		t.Fatal(err)
	}

	s, err := New(dir, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan Decision, 1)
	go func() { done <- s.CanWrite("k") }()
	select {
	case d := <-done:
		if !d.Allowed {
			t.Errorf("denied: %s", d.Reason)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("stale lock was not reclaimed")
	}
}

func TestSnapshotStats(t *testing.T) {
	s, _ := newTestStore(t)
	s.RecordWrite("k")
	s.RecordSearch(true)
	s.RecordSearch(false)
	s.RecordFailure()

	stats, _ := s.SnapshotStats()
	if stats.Appends != 1 || stats.Searches != 2 || stats.SearchHits != 1 || stats.Failures != 1 {
		t.Errorf("stats = %+v", stats)
	}
}
