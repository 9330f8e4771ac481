//go:build !linux && !darwin

package coord

import (
	"os"
	"time"
)

// fileBirth falls back to the modification time where the platform exposes
// no creation instant. Recreation detection degrades to "file changed".
func fileBirth(path string) (time.Time, bool) {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}, false
	}
	return fi.ModTime(), true
}
