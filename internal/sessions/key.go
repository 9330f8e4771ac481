// Package sessions — external session keys and the host's main-session
// pointer.
//
// External session keys follow the canonical format:
//
//	{channel}:{agent}:{principal-or-channel-id}
//
// Examples:
//
//	openclaw:main:b7c2d1e0
//	openclaw:claude-code:direct-386246614
//	telegram:chat-assistant:group-100123456
//
// The key identifies one conversation across restarts; the Store keeps one
// chat-log entry per key and owner.
package sessions

import (
	"fmt"
	"strings"
)

// Key is a parsed external session key.
type Key struct {
	Channel   string // source channel, e.g. "openclaw", "telegram"
	Agent     string // agent kind, e.g. "main", "claude-code"
	SessionID string // principal or channel-scoped conversation id
}

// BuildKey builds the canonical external session key.
func BuildKey(channel, agent, sessionID string) string {
	return fmt.Sprintf("%s:%s:%s", channel, agent, sessionID)
}

// ParseKey parses an external session key. The session id segment may itself
// contain colons; only the first two separators are structural.
func ParseKey(key string) (Key, error) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Key{}, fmt.Errorf("invalid session key %q: want {channel}:{agent}:{id}", key)
	}
	return Key{Channel: parts[0], Agent: parts[1], SessionID: parts[2]}, nil
}

// String re-serializes the key.
func (k Key) String() string {
	return BuildKey(k.Channel, k.Agent, k.SessionID)
}
