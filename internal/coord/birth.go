package coord

import "time"

// FileBirth reports the file's creation instant when the platform exposes
// one. The syncer and the injection guard both key session-recreation
// detection off it.
func FileBirth(path string) (time.Time, bool) {
	return fileBirth(path)
}
