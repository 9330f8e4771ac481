package syncer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// fileCursor is the per-file sync position. Appends only advance it after
// the whole batch is flushed, so a crashed sync re-sends nothing and skips
// nothing.
type fileCursor struct {
	LineCount int        `json:"lineCount"`
	LastTS    time.Time  `json:"lastTimestamp,omitempty"`
	Birth     *time.Time `json:"fileBirthTime,omitempty"`
	Updated   time.Time  `json:"updated"`
}

// syncState is the persisted cursor table, capped so a long-lived runtime
// does not accumulate dead sessions.
type syncState struct {
	Version int                    `json:"version"`
	Files   map[string]*fileCursor `json:"files"`
}

const (
	syncStateVersion = 1
	maxTrackedFiles  = 50
)

type cursorTable struct {
	path string
	max  int
	st   *syncState
}

func loadCursors(path string, max int) *cursorTable {
	if max <= 0 {
		max = maxTrackedFiles
	}
	t := &cursorTable{path: path, max: max, st: &syncState{Version: syncStateVersion, Files: map[string]*fileCursor{}}}
	data, err := os.ReadFile(path)
	if err != nil {
		return t
	}
	var st syncState
	if err := json.Unmarshal(data, &st); err != nil || st.Files == nil {
		return t
	}
	st.Version = syncStateVersion
	t.st = &st
	return t
}

func (t *cursorTable) get(file string) *fileCursor {
	if c, ok := t.st.Files[file]; ok {
		return c
	}
	c := &fileCursor{}
	t.st.Files[file] = c
	return c
}

// save prunes past the cap (oldest half dropped) and rewrites atomically.
func (t *cursorTable) save() error {
	if len(t.st.Files) > t.max {
		type aged struct {
			file string
			at   time.Time
		}
		all := make([]aged, 0, len(t.st.Files))
		for f, c := range t.st.Files {
			all = append(all, aged{f, c.Updated})
		}
		sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })
		for _, a := range all[:len(all)/2] {
			delete(t.st.Files, a.file)
		}
	}

	data, err := json.MarshalIndent(t.st, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(t.path), 0755); err != nil {
		return err
	}
	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, t.path)
}
