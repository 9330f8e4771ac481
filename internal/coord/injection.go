package coord

import (
	"log/slog"
	"sort"
	"time"
)

// birthSkew is how far forward a session file's birth instant must move
// before the session counts as recreated and its budget resets.
const birthSkew = 2 * time.Second

// CheckInjection decides, atomically under the lock, whether context may be
// injected into the given session. Denials: budget exhausted, global
// last-injection too recent, or the session file's birth instant moved
// backwards (corruption guard). A forward birth move past the skew treats
// the session as recreated and resets its count.
func (s *Store) CheckInjection(sessionID, sessionFile string) InjectionDecision {
	d := InjectionDecision{Allowed: true}
	err := s.withLock(func(st *state) bool {
		now := s.now()
		birth, birthOK := fileBirth(sessionFile)

		rec := st.Sessions[sessionID]
		mutated := false

		if rec != nil && birthOK && rec.FileBirthTime != nil {
			switch {
			case birth.Before(*rec.FileBirthTime):
				d = InjectionDecision{Reason: ReasonBirthRegressed, CurrentCount: rec.Count}
				return false
			case birth.Sub(*rec.FileBirthTime) > birthSkew && s.opts.ResetOnRecreate:
				// Session file was recreated; budget starts over.
				rec.Count = 0
				rec.FileBirthTime = &birth
				rec.LastUpdated = now
				mutated = true
			}
		}

		count := 0
		if rec != nil {
			count = rec.Count
		}
		if count >= s.opts.MaxInjectionsPerSession {
			d = InjectionDecision{Reason: ReasonAtLimit, CurrentCount: count}
			slog.Info("at injection limit",
				"session", sessionID, "count", count, "max", s.opts.MaxInjectionsPerSession)
			return mutated
		}
		if !st.LastInjectionTime.IsZero() && now.Sub(st.LastInjectionTime) < s.opts.MinInjectionInterval {
			d = InjectionDecision{Reason: ReasonTooSoon, CurrentCount: count}
			return mutated
		}

		d = InjectionDecision{Allowed: true, CurrentCount: count}
		return mutated
	})
	if err != nil {
		// Lock unavailable: hooks continue with defaults, nothing recorded.
		return InjectionDecision{Allowed: true}
	}
	return d
}

// RecordInjection counts one injection for the session and stamps the
// global last-injection instant. source is "retrieval" or "fallback".
func (s *Store) RecordInjection(sessionID, sessionFile, source string) {
	err := s.withLock(func(st *state) bool {
		now := s.now()
		rec := st.Sessions[sessionID]
		if rec == nil {
			rec = &sessionRecord{}
			st.Sessions[sessionID] = rec
		}
		rec.Count++
		rec.LastUpdated = now
		if birth, ok := fileBirth(sessionFile); ok {
			rec.FileBirthTime = &birth
		}
		st.LastInjectionTime = now

		st.Stats.Injections++
		if source == "fallback" {
			st.Stats.Fallbacks++
		} else {
			st.Stats.Retrievals++
		}

		s.pruneSessions(st)
		return true
	})
	if err != nil {
		slog.Debug("injection not recorded", "session", sessionID, "reason", "lock busy")
	}
}

// pruneSessions drops records older than the TTL, then trims the oldest
// past the session cap. Called under the lock.
func (s *Store) pruneSessions(st *state) {
	now := s.now()
	for id, rec := range st.Sessions {
		if now.Sub(rec.LastUpdated) > s.opts.SessionTTL {
			delete(st.Sessions, id)
		}
	}
	if len(st.Sessions) <= s.opts.MaxSessions {
		return
	}

	type aged struct {
		id   string
		last time.Time
	}
	all := make([]aged, 0, len(st.Sessions))
	for id, rec := range st.Sessions {
		all = append(all, aged{id, rec.LastUpdated})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].last.Before(all[j].last) })
	for _, a := range all[:len(all)-s.opts.MaxSessions] {
		delete(st.Sessions, a.id)
	}
}
