package store

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Candidate is one row a backend feeds the shared ranker. Backends narrow
// candidates with cheap SQL predicates; scoring and blending happen here so
// sqlite and postgres rank identically.
type Candidate struct {
	EntryID      string
	Title        string
	Content      string
	EntryType    string
	AgentKind    string
	AgentVersion string
	CreatedAt    time.Time
	Depth        int
}

// Tokenize lowercases and splits on non-alphanumerics, dropping one-char
// fragments.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 1 {
			out = append(out, f)
		}
	}
	return out
}

// keywordScore is the fraction of query tokens present in the candidate,
// with matches in the title weighted double.
func keywordScore(queryTokens []string, title, content string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	titleSet := tokenSet(title)
	contentSet := tokenSet(content)

	var score float64
	for _, t := range queryTokens {
		switch {
		case titleSet[t]:
			score += 2
		case contentSet[t]:
			score += 1
		}
	}
	return score / float64(2*len(queryTokens))
}

// semanticScore is a bag-of-words cosine between query and candidate. It
// stands in for embedding similarity when no vector index is configured;
// the blend weights behave the same either way.
func semanticScore(queryTokens []string, title, content string) float64 {
	qv := tokenCounts(queryTokens)
	cv := tokenCounts(append(Tokenize(title), Tokenize(content)...))
	if len(qv) == 0 || len(cv) == 0 {
		return 0
	}
	var dot, qn, cn float64
	for t, q := range qv {
		qn += float64(q * q)
		if c, ok := cv[t]; ok {
			dot += float64(q * c)
		}
	}
	for _, c := range cv {
		cn += float64(c * c)
	}
	if dot == 0 {
		return 0
	}
	return dot / (math.Sqrt(qn) * math.Sqrt(cn))
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range Tokenize(s) {
		set[t] = true
	}
	return set
}

func tokenCounts(tokens []string) map[string]int {
	counts := make(map[string]int)
	for _, t := range tokens {
		counts[t]++
	}
	return counts
}

// RankCandidates scores, filters, and sorts candidates per the query. The
// agent include/exclude sets are applied here so every backend enforces
// attribution filtering the same way.
func RankCandidates(q SearchQuery, cands []Candidate) []SearchHit {
	queryTokens := Tokenize(q.Query)

	semW, kwW := q.SemanticWeight, q.KeywordWeight
	switch q.Type {
	case "semantic":
		semW, kwW = 1, 0
	case "keyword":
		semW, kwW = 0, 1
	default:
		if semW == 0 && kwW == 0 {
			semW, kwW = 0.7, 0.3
		}
	}

	include := toSet(q.IncludeAgents)
	exclude := toSet(q.ExcludeAgents)

	var hits []SearchHit
	for _, c := range cands {
		if len(include) > 0 && !include[c.AgentKind] {
			continue
		}
		if exclude[c.AgentKind] {
			continue
		}

		score := semW*semanticScore(queryTokens, c.Title, c.Content) +
			kwW*keywordScore(queryTokens, c.Title, c.Content)
		if score < q.Threshold || score == 0 {
			continue
		}

		hit := SearchHit{
			EntryID:      c.EntryID,
			Title:        c.Title,
			Snippet:      snippet(c.Content, queryTokens),
			Relevance:    score,
			EntryType:    c.EntryType,
			AgentKind:    c.AgentKind,
			AgentVersion: c.AgentVersion,
			CreatedAt:    c.CreatedAt,
			Depth:        c.Depth,
		}
		hits = append(hits, hit)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Relevance > hits[j].Relevance })
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return hits
}

func toSet(ss []string) map[string]bool {
	if len(ss) == 0 {
		return nil
	}
	set := make(map[string]bool, len(ss))
	for _, s := range ss {
		set[s] = true
	}
	return set
}

// snippet returns a short window of the content around the first query-token
// match.
func snippet(content string, queryTokens []string) string {
	const width = 160
	if content == "" {
		return ""
	}
	lower := strings.ToLower(content)
	at := -1
	for _, t := range queryTokens {
		if i := strings.Index(lower, t); i >= 0 && (at < 0 || i < at) {
			at = i
		}
	}
	if at < 0 {
		at = 0
	}
	start := at - width/4
	if start < 0 {
		start = 0
	}
	end := start + width
	if end > len(content) {
		end = len(content)
	}
	// Byte offsets can land mid-rune; back both up to rune starts so the
	// window never splits a multi-byte character.
	for start > 0 && !utf8.RuneStart(content[start]) {
		start--
	}
	for end < len(content) && !utf8.RuneStart(content[end]) {
		end--
	}
	s := strings.TrimSpace(content[start:end])
	if start > 0 {
		s = "…" + s
	}
	if end < len(content) {
		s += "…"
	}
	return s
}
