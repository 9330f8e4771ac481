package coord

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// ErrLockBusy is returned when the sidecar lock could not be acquired
// within the acquisition budget. Callers treat it as a silent skip.
var ErrLockBusy = errors.New("coordination lock busy")

// fileLock is a sidecar lock file acquired by exclusive creation. Its mere
// existence denotes a held lock; its age drives stale reclamation. All
// sibling agents on the host contend on the same path.
type fileLock struct {
	path     string
	retry    time.Duration // poll interval while contended
	timeout  time.Duration // total acquisition budget
	staleAge time.Duration // older locks are reclaimed
}

func newFileLock(path string) *fileLock {
	return &fileLock{
		path:     path,
		retry:    50 * time.Millisecond,
		timeout:  5 * time.Second,
		staleAge: 10 * time.Second,
	}
}

// acquire takes the lock or returns ErrLockBusy after the budget elapses.
func (l *fileLock) acquire() error {
	deadline := time.Now().Add(l.timeout)

	for {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("create lock: %w", err)
		}

		// Held by someone. Reclaim if the holder looks dead.
		if fi, statErr := os.Stat(l.path); statErr == nil {
			if time.Since(fi.ModTime()) > l.staleAge {
				slog.Warn("reclaiming stale coordination lock", "path", l.path, "age", time.Since(fi.ModTime()))
				os.Remove(l.path)
				continue
			}
		}

		if time.Now().After(deadline) {
			return ErrLockBusy
		}
		time.Sleep(l.retry)
	}
}

// release drops the lock. Missing file is fine: a sibling may have
// reclaimed it as stale.
func (l *fileLock) release() {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("release coordination lock", "path", l.path, "error", err)
	}
}
