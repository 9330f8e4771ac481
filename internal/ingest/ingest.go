// Package ingest is the Store-side chat ingestion service: it resolves or
// creates the chat-log entry for a session key, appends canonical message
// lines, cross-references reactions, and queues memory extraction as
// streams grow.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/trinsiklabs/onelist/internal/bus"
	"github.com/trinsiklabs/onelist/internal/memory"
	"github.com/trinsiklabs/onelist/internal/sessions"
	"github.com/trinsiklabs/onelist/internal/store"
	"github.com/trinsiklabs/onelist/internal/transcript"
	"github.com/trinsiklabs/onelist/pkg/protocol"
)

var (
	// ErrBadSessionKey rejects appends whose session id is not a
	// {channel}:{agent}:{principal} key.
	ErrBadSessionKey = errors.New("malformed session key")
	// ErrMissingRole rejects messages without a role.
	ErrMissingRole = errors.New("message role required")
	// ErrUnknownMessage rejects reactions whose target was never ingested.
	ErrUnknownMessage = errors.New("target message not found")
)

// Service wires the append path: entry store, memory chain, extraction
// queue, and the observer bus.
type Service struct {
	stores *store.Stores
	chain  *memory.Chain
	queue  *memory.ExtractionQueue
	events bus.Publisher
	now    func() time.Time
}

// New assembles the ingestion service. chain and events may be nil.
func New(stores *store.Stores, chain *memory.Chain, queue *memory.ExtractionQueue, events bus.Publisher) *Service {
	return &Service{stores: stores, chain: chain, queue: queue, events: events, now: time.Now}
}

// Append ingests one chat message: the stream entry is resolved or created
// by its external session key, the canonical line is appended, and
// extraction is queued when the count crosses a threshold.
func (s *Service) Append(ctx context.Context, ownerID string, prov protocol.Provenance, req *protocol.AppendRequest) (*protocol.AppendResponse, error) {
	key, err := sessions.ParseKey(req.SessionID)
	if err != nil {
		return nil, ErrBadSessionKey
	}
	if req.Message.Role == "" {
		return nil, ErrMissingRole
	}

	entry, err := s.resolveStream(ctx, ownerID, key, prov)
	if err != nil {
		return nil, err
	}

	msg := req.Message
	if msg.MessageID == "" {
		msg.MessageID = uuid.Must(uuid.NewV7()).String()
	}
	line, err := canonicalLine(&msg)
	if err != nil {
		return nil, fmt.Errorf("canonicalize message: %w", err)
	}

	meta := store.AppendMeta{Role: msg.Role, MessageID: msg.MessageID}
	if !msg.Timestamp.IsZero() {
		ts := msg.Timestamp
		meta.Timestamp = &ts
	}
	count, err := s.stores.Entries.AppendLine(ctx, ownerID, entry.ID, line, meta)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	if s.queue != nil && s.queue.MaybeEnqueue(ownerID, entry.ID, count) {
		s.broadcast(protocol.EventExtractQueued, map[string]interface{}{
			"entry_id": entry.ID, "message_count": count,
		})
	}
	s.broadcast(protocol.EventChatAppend, map[string]interface{}{
		"stream_id": entry.ID, "session_id": req.SessionID,
		"role": msg.Role, "message_count": count,
	})

	return &protocol.AppendResponse{
		OK:           true,
		StreamID:     entry.ID,
		MessageID:    msg.MessageID,
		MessageCount: count,
	}, nil
}

// React records a reaction against the stream holding the target message.
// The reaction line rides the stream's jsonl form without counting as a
// message.
func (s *Service) React(ctx context.Context, ownerID string, req *protocol.ReactionRequest) error {
	entryID, err := s.stores.Entries.FindMessageEntry(ctx, ownerID, req.TargetMessageID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrUnknownMessage
	}
	if err != nil {
		return err
	}

	line, err := json.Marshal(reactionLine{
		Kind:      "reaction",
		MessageID: req.TargetMessageID,
		Emoji:     req.Emoji,
		From:      req.FromUser,
		Timestamp: s.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	if err := s.stores.Entries.AppendSideLine(ctx, ownerID, entryID, line); err != nil {
		return fmt.Errorf("append reaction: %w", err)
	}

	s.broadcast(protocol.EventReaction, map[string]interface{}{
		"stream_id": entryID, "target_message_id": req.TargetMessageID,
		"emoji": req.Emoji, "from": req.FromUser,
	})
	return nil
}

// resolveStream finds the chat-log entry for the key, creating it with the
// caller's provenance on first contact. Two racing first appends converge
// on one entry: the creation loser re-reads.
func (s *Service) resolveStream(ctx context.Context, ownerID string, key sessions.Key, prov protocol.Provenance) (*store.Entry, error) {
	entry, err := s.stores.Entries.GetByExternalKey(ctx, ownerID, key.String())
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	entry = &store.Entry{
		OwnerID:      ownerID,
		EntryType:    string(protocol.EntryChatLog),
		Title:        fmt.Sprintf("Chat: %s/%s", key.Channel, key.SessionID),
		ExternalKey:  key.String(),
		AgentKind:    prov.AgentKind,
		AgentVersion: prov.AgentVersion,
		InstanceID:   prov.InstanceID,
		SubagentID:   prov.SubagentID,
		Metadata: map[string]interface{}{
			"channel": key.Channel,
			"agent":   key.Agent,
		},
	}
	err = s.stores.Entries.Create(ctx, entry)
	if errors.Is(err, store.ErrConflict) {
		return s.stores.Entries.GetByExternalKey(ctx, ownerID, key.String())
	}
	if err != nil {
		return nil, fmt.Errorf("create chat stream: %w", err)
	}

	if s.chain != nil {
		if cerr := s.chain.RecordCreate(ctx, entry); cerr != nil {
			slog.Warn("stream creation not chained", "entry", entry.ID, "error", cerr)
		}
	}
	slog.Info("chat stream created", "entry", entry.ID, "session", key.String())
	return entry, nil
}

func (s *Service) broadcast(name string, payload interface{}) {
	if s.events != nil {
		s.events.Broadcast(protocol.NewEvent(name, payload))
	}
}

// reactionLine is the side-record form appended for reactions.
type reactionLine struct {
	Kind      string `json:"type"`
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
	From      string `json:"from,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// canonicalLine renders the wire message as the canonical stored line.
func canonicalLine(m *protocol.ChatMessage) ([]byte, error) {
	cm := transcript.CanonicalMessage{
		ID:         m.MessageID,
		Role:       m.Role,
		Content:    m.Content,
		Source:     m.Source,
		SenderName: m.SenderName,
		SenderID:   m.SenderID,
		ReplyToID:  m.ReplyToID,
	}
	if !m.Timestamp.IsZero() {
		cm.Timestamp = m.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return cm.Canonical()
}
