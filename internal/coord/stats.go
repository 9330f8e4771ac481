package coord

// SnapshotStats returns the lifetime counters and the number of tracked
// sessions. Counters survive restarts with the state file.
func (s *Store) SnapshotStats() (Stats, int) {
	var stats Stats
	sessions := 0
	s.withLock(func(st *state) bool {
		stats = st.Stats
		sessions = len(st.Sessions)
		return false
	})
	return stats, sessions
}

// RecordSearch counts a search attempt and, when it produced results, a hit.
func (s *Store) RecordSearch(hit bool) {
	s.withLock(func(st *state) bool {
		st.Stats.Searches++
		if hit {
			st.Stats.SearchHits++
		}
		return true
	})
}
