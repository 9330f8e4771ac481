package syncer

import (
	"regexp"
	"strings"
)

// reactionRe matches reaction announcements the host writes into the
// transcript, e.g.
//
//	alice reacted to msg-42 with 👍
//	reacted to msg-42 with :heart:
var reactionRe = regexp.MustCompile(`^(?:(.+?) )?reacted to (\S+) with (\S+)$`)

// Reaction is a parsed reaction line.
type Reaction struct {
	FromUser        string
	TargetMessageID string
	Emoji           string
}

// ParseReaction extracts a reaction from the text, if it is one.
func ParseReaction(text string) (Reaction, bool) {
	m := reactionRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return Reaction{}, false
	}
	return Reaction{FromUser: m[1], TargetMessageID: m[2], Emoji: m[3]}, true
}

// metaRe matches the channel-metadata prefix some hosts stamp on relayed
// messages:
//
//	[Alice Smith (@asmith) #msg-17] the actual text
//	[Bob #msg-18 ↩msg-17] a reply
var metaRe = regexp.MustCompile(`^\[([^(\]#↩]+?)(?:\s+\(@([^)]+)\))?(?:\s+#(\S+?))?(?:\s+↩(\S+?))?\]\s*(.*)$`)

// Meta is per-message channel metadata extracted before posting, so the
// Store receives already-attributed events.
type Meta struct {
	SenderName string
	SenderID   string
	MessageID  string
	ReplyToID  string
}

// ExtractMeta splits a channel-metadata prefix off the text. Without a
// prefix it returns an empty Meta and the text unchanged.
func ExtractMeta(text string) (Meta, string) {
	m := metaRe.FindStringSubmatch(text)
	if m == nil {
		return Meta{}, text
	}
	return Meta{
		SenderName: strings.TrimSpace(m[1]),
		SenderID:   m[2],
		MessageID:  m[3],
		ReplyToID:  m[4],
	}, m[5]
}
