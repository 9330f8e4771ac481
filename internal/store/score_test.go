package store

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSnippetKeepsRunesWhole(t *testing.T) {
	// Multi-byte padding on both sides of the match forces the window
	// boundaries into the middle of runes unless they are clamped.
	pad := strings.Repeat("日本語テキスト", 20)
	content := pad + " deployment notes " + pad

	s := snippet(content, []string{"deployment"})
	if !utf8.ValidString(s) {
		t.Fatalf("snippet split a rune: %q", s)
	}
	if !strings.Contains(s, "deployment") {
		t.Fatalf("snippet lost the match: %q", s)
	}
}

func TestSnippetWindowAffixes(t *testing.T) {
	long := strings.Repeat("alpha beta ", 50) + "needle" + strings.Repeat(" gamma delta", 50)
	s := snippet(long, []string{"needle"})
	if !strings.HasPrefix(s, "…") || !strings.HasSuffix(s, "…") {
		t.Fatalf("mid-content snippet missing ellipses: %q", s)
	}

	short := "just a short note"
	if got := snippet(short, []string{"short"}); got != short {
		t.Fatalf("short content should pass through, got %q", got)
	}
}

func TestRankCandidatesAgentFilters(t *testing.T) {
	cands := []Candidate{
		{EntryID: "a", Title: "deploy runbook", Content: "how to deploy the service", AgentKind: "claude-code"},
		{EntryID: "b", Title: "deploy checklist", Content: "deploy steps and gates", AgentKind: "chat-assistant"},
	}

	hits := RankCandidates(SearchQuery{Query: "deploy", Type: "keyword", Limit: 10,
		ExcludeAgents: []string{"claude-code"}}, cands)
	for _, h := range hits {
		if h.AgentKind == "claude-code" {
			t.Fatalf("excluded agent surfaced: %+v", h)
		}
	}
	if len(hits) != 1 || hits[0].EntryID != "b" {
		t.Fatalf("hits = %+v, want only entry b", hits)
	}

	hits = RankCandidates(SearchQuery{Query: "deploy", Type: "keyword", Limit: 10,
		IncludeAgents: []string{"claude-code"}}, cands)
	if len(hits) != 1 || hits[0].EntryID != "a" {
		t.Fatalf("hits = %+v, want only entry a", hits)
	}
}
