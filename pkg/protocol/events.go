package protocol

// WebSocket event names pushed from the Store to observer clients
// (dashboards, the `onelist events` command). Agents never consume these;
// agent-side retrieval polls.
const (
	EventChatAppend    = "chat.append"
	EventReaction      = "chat.reaction"
	EventMemoryCreated = "memory.created"
	EventMemoryChained = "memory.chained"
	EventExtractQueued = "extract.queued"
	EventImportFile    = "import.file"
	EventTaskClaimed   = "task.claimed"
	EventHealth        = "health"
	EventShutdown      = "shutdown"
)

// EventFrame is the envelope broadcast to WebSocket observers.
type EventFrame struct {
	Name    string      `json:"name"`
	Payload interface{} `json:"payload,omitempty"`
}

// NewEvent builds an event frame.
func NewEvent(name string, payload interface{}) *EventFrame {
	return &EventFrame{Name: name, Payload: payload}
}
