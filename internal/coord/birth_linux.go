//go:build linux

package coord

import (
	"time"

	"golang.org/x/sys/unix"
)

// fileBirth returns the file's creation instant. Linux exposes it through
// statx btime on filesystems that record it; when the kernel or filesystem
// does not, the reported time falls back to the unavailable case.
func fileBirth(path string) (time.Time, bool) {
	var stx unix.Statx_t
	err := unix.Statx(unix.AT_FDCWD, path, 0, unix.STATX_BTIME, &stx)
	if err != nil || stx.Mask&unix.STATX_BTIME == 0 {
		return time.Time{}, false
	}
	return time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec)), true
}
