// Package transcript models the host runtime's on-disk session logs:
// one JSON record per line, record kind "message" for conversation turns.
// Readers tolerate partial trailing lines — the host may be mid-write.
package transcript

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
	"time"
)

// Record is one line of a session JSONL file.
type Record struct {
	Kind      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Role      string          `json:"role,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	ToolCalls json.RawMessage `json:"tool_calls,omitempty"`
}

// Message is a normalized conversation turn extracted from a Record.
type Message struct {
	ID        string
	Role      string
	Text      string
	Timestamp time.Time
}

// contentItem is one element of a structured content list.
type contentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// IsMessage reports whether the record is a conversation message with a role.
func (r *Record) IsMessage() bool {
	return r.Kind == "message" && r.Role != ""
}

// Text extracts the textual content: either a plain string or the
// concatenation of text-typed items in a structured list.
func (r *Record) Text() string {
	if len(r.Content) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(r.Content, &s); err == nil {
		return s
	}

	var items []contentItem
	if err := json.Unmarshal(r.Content, &items); err != nil {
		return ""
	}
	var b strings.Builder
	for _, it := range items {
		if it.Type != "text" || it.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(it.Text)
	}
	return b.String()
}

// Time parses the record timestamp. Zero time when absent or malformed.
func (r *Record) Time() time.Time {
	if r.Timestamp == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, r.Timestamp); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ParseLine parses one JSONL line into a Record.
func ParseLine(line []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(line, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ScanStats reports what a scan saw, for bounded corruption logging.
type ScanStats struct {
	Lines      int
	Messages   int
	ParseErrs  int
	BytesRead  int64
}

// Scan reads records from r line by line, invoking fn for each message
// record. maxLines caps the scan (0 = unlimited). Parse errors are counted,
// never fatal: the host may still be writing the last line.
func Scan(r io.Reader, maxLines int, fn func(*Record)) ScanStats {
	var stats ScanStats
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for sc.Scan() {
		stats.Lines++
		line := sc.Bytes()
		stats.BytesRead += int64(len(line)) + 1
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		rec, err := ParseLine(line)
		if err != nil {
			stats.ParseErrs++
			continue
		}
		if rec.IsMessage() {
			stats.Messages++
			fn(rec)
		}
		if maxLines > 0 && stats.Lines >= maxLines {
			break
		}
	}
	return stats
}

// CanonicalMessage is the canonical JSON form the Store appends to a
// chat-log entry's jsonl representation. Field order is fixed so that a
// re-read and re-serialize round-trips byte for byte.
type CanonicalMessage struct {
	ID         string `json:"id"`
	Role       string `json:"role"`
	Content    string `json:"content"`
	Timestamp  string `json:"timestamp,omitempty"`
	Source     string `json:"source,omitempty"`
	SenderName string `json:"sender_name,omitempty"`
	SenderID   string `json:"sender_id,omitempty"`
	ReplyToID  string `json:"reply_to_id,omitempty"`
}

// Canonical serializes the message to its canonical line (no trailing newline).
func (m *CanonicalMessage) Canonical() ([]byte, error) {
	return json.Marshal(m)
}
