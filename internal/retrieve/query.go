// Package retrieve produces bounded context blocks for new agent turns:
// the smart retriever queries the Store, the fallback recoverer scans
// local session transcripts when the Store is unavailable.
package retrieve

import (
	"os"
	"strings"

	"github.com/trinsiklabs/onelist/internal/transcript"
)

const (
	maxQueryUserTurns = 3
	maxQueryTerms     = 20
	minTermLen        = 4
	maxQueryChars     = 500
	maxQueryScanLines = 10000
)

// fillerWords are closed-class words stripped before term selection.
var fillerWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"to": true, "of": true, "in": true, "on": true, "at": true, "for": true,
	"with": true, "from": true, "into": true, "about": true, "that": true,
	"this": true, "these": true, "those": true, "it": true, "its": true,
	"can": true, "could": true, "would": true, "should": true, "will": true,
	"please": true, "just": true, "like": true, "what": true, "when": true,
	"where": true, "which": true, "how": true, "why": true, "who": true,
	"you": true, "your": true, "me": true, "my": true, "i": true, "we": true,
	"do": true, "does": true, "did": true, "have": true, "has": true, "had": true,
	"not": true, "no": true, "yes": true, "if": true, "then": true, "than": true,
	"there": true, "here": true, "some": true, "any": true, "all": true,
}

// BuildQuery derives a search query from the session transcript at path:
// the last few non-trivial user turns, reduced to either the leading
// question or the most significant terms. Empty when nothing usable.
func BuildQuery(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	var userTexts []string
	transcript.Scan(f, maxQueryScanLines, func(rec *transcript.Record) {
		if rec.Role != "user" {
			return
		}
		text := strings.TrimSpace(rec.Text())
		if len(text) < 3 || transcript.IsNoise(text) {
			return
		}
		userTexts = append(userTexts, text)
	})
	if len(userTexts) == 0 {
		return ""
	}
	if len(userTexts) > maxQueryUserTurns {
		userTexts = userTexts[len(userTexts)-maxQueryUserTurns:]
	}

	return QueryFromTurns(userTexts)
}

// QueryFromTurns reduces the given user turns to a query string. If the
// last turn contains a question mark, the portion up to the first question
// mark is the query. Otherwise filler words are stripped and the first 20
// terms of length ≥4 are kept in original order. Capped at 500 characters.
func QueryFromTurns(turns []string) string {
	if len(turns) == 0 {
		return ""
	}

	last := turns[len(turns)-1]
	if i := strings.IndexByte(last, '?'); i >= 0 {
		return capQuery(strings.TrimSpace(last[:i+1]))
	}

	var terms []string
	for _, turn := range turns {
		for _, w := range strings.Fields(turn) {
			clean := strings.Trim(w, ".,;:!\"'()[]{}")
			if len(clean) < minTermLen || fillerWords[strings.ToLower(clean)] {
				continue
			}
			terms = append(terms, clean)
			if len(terms) >= maxQueryTerms {
				return capQuery(strings.Join(terms, " "))
			}
		}
	}
	return capQuery(strings.Join(terms, " "))
}

func capQuery(q string) string {
	if len(q) > maxQueryChars {
		q = q[:maxQueryChars]
	}
	return q
}
