package transcript

import (
	"regexp"
	"strings"
)

// Injection block markers. Any message containing one of these came from a
// prior injection (ours or a sibling's) and must never be re-ingested or
// re-retrieved: that is the re-interpretation feedback loop.
const (
	RetrievedContextHeader = "## Retrieved Context"
	RecoveredContextHeader = "## Recovered Context (Fallback)"
	contextFooter          = "-- end of injected context --"
)

// noisePrefixes match agent meta-speak and system preambles that carry no
// memory value.
var noisePrefixes = []string{
	"## Retrieved Context",
	"## Recovered Context",
	"-- end of injected context --",
	"<system-reminder>",
	"[system]",
	"Caveat: the messages below",
	"This session is being continued from",
	"No response requested.",
	"As instructed, I will not respond",
}

// noisePatterns match reaction announcements and media shorthands anywhere
// in the text.
var noisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^reacted (?:to .+ )?with \S+$`),
	regexp.MustCompile(`^\[(?:image|audio|video|sticker|document|attachment)[^\]]*\]$`),
	regexp.MustCompile(`^<(?:media|attachment):[^>]+>$`),
	regexp.MustCompile(`(?i)^heartbeat(?: ok)?$`),
}

// IsNoise reports whether the text should be dropped before ingestion or
// fallback recovery: injection echoes, meta chatter, media shorthands.
func IsNoise(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true
	}
	for _, p := range noisePrefixes {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	// Injection markers anywhere in the body also disqualify: a quoted
	// injected block must not round-trip into the Store.
	if strings.Contains(trimmed, RetrievedContextHeader) || strings.Contains(trimmed, RecoveredContextHeader) {
		return true
	}
	for _, re := range noisePatterns {
		if re.MatchString(trimmed) {
			return true
		}
	}
	return false
}

// CountContextHeaders counts visible injected-context headers in a block.
// More than one means nested injection.
func CountContextHeaders(s string) int {
	return strings.Count(s, RetrievedContextHeader) + strings.Count(s, RecoveredContextHeader)
}
