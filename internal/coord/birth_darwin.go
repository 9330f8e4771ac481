//go:build darwin

package coord

import (
	"os"
	"syscall"
	"time"
)

// fileBirth returns the file's creation instant via the Darwin birthtime.
func fileBirth(path string) (time.Time, bool) {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}, false
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(st.Birthtimespec.Sec, st.Birthtimespec.Nsec), true
}
