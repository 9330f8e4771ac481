package retrieve

import (
	"strings"
	"testing"
)

func TestQueryFromTurns(t *testing.T) {
	tests := []struct {
		name  string
		turns []string
		want  string
	}{
		{
			"question wins",
			[]string{"setup notes", "how do I configure the postgres backend? also thanks"},
			"how do I configure the postgres backend?",
		},
		{
			"filler stripped terms kept in order",
			[]string{"please check the deployment pipeline for the staging cluster"},
			"check deployment pipeline staging cluster",
		},
		{
			"short words dropped",
			[]string{"fix the db now"},
			"",
		},
		{
			"empty",
			nil,
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := QueryFromTurns(tt.turns); got != tt.want {
				t.Errorf("QueryFromTurns(%v) = %q, want %q", tt.turns, got, tt.want)
			}
		})
	}
}

func TestQueryFromTurnsTermCap(t *testing.T) {
	words := make([]string, 50)
	for i := range words {
		words[i] = "component" + strings.Repeat("x", i%3)
	}
	got := QueryFromTurns([]string{strings.Join(words, " ")})
	if n := len(strings.Fields(got)); n != maxQueryTerms {
		t.Errorf("kept %d terms, want %d", n, maxQueryTerms)
	}
}

func TestQueryFromTurnsCharCap(t *testing.T) {
	long := strings.Repeat("abcdefgh ", 200) + "trailing?"
	got := QueryFromTurns([]string{long})
	if len(got) > maxQueryChars {
		t.Errorf("query length %d exceeds cap %d", len(got), maxQueryChars)
	}
}
