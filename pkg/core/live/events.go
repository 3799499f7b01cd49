package live

// Event is the interface for all assistant events delivered to the host.
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// Status is the connection status of a session.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// StatusChangedEvent is emitted when the connection status changes.
type StatusChangedEvent struct {
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (e *StatusChangedEvent) EventType() string { return "status.changed" }

// MessagesChangedEvent carries a snapshot of the message history.
type MessagesChangedEvent struct {
	Messages []Message `json:"messages"`
}

func (e *MessagesChangedEvent) EventType() string { return "messages.changed" }

// InputTranscriptEvent carries the cumulative user transcript of the current turn.
type InputTranscriptEvent struct {
	Text string `json:"text"`
}

func (e *InputTranscriptEvent) EventType() string { return "transcript.input" }

// OutputTranscriptEvent carries the cumulative assistant transcript of the current turn.
type OutputTranscriptEvent struct {
	Text string `json:"text"`
}

func (e *OutputTranscriptEvent) EventType() string { return "transcript.output" }

// ThoughtEvent carries the current thought narration.
type ThoughtEvent struct {
	Text     string `json:"text"`
	Thinking bool   `json:"thinking"`
}

func (e *ThoughtEvent) EventType() string { return "thought" }

// SpeakingChangedEvent is emitted when assistant audio starts or stops.
type SpeakingChangedEvent struct {
	Speaking bool `json:"speaking"`
}

func (e *SpeakingChangedEvent) EventType() string { return "speaking.changed" }

// PhaseChangedEvent is emitted when the turn phase changes.
type PhaseChangedEvent struct {
	From TurnPhase `json:"from"`
	To   TurnPhase `json:"to"`
}

func (e *PhaseChangedEvent) EventType() string { return "phase.changed" }

// LogEvent is emitted for every system log entry.
type LogEvent struct {
	Entry LogEntry `json:"entry"`
}

func (e *LogEvent) EventType() string { return "log" }

// ToolCallEvent is emitted when a tool call is dispatched.
type ToolCallEvent struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

func (e *ToolCallEvent) EventType() string { return "tool.call" }

// ToolResultEvent is emitted after a tool response is sent.
type ToolResultEvent struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Error string `json:"error,omitempty"`
}

func (e *ToolResultEvent) EventType() string { return "tool.result" }

// ArtifactEvent carries content a tool produced for the host to display,
// such as a rendered diagram or dashboard update.
type ArtifactEvent struct {
	Kind    string         `json:"kind"`
	Payload map[string]any `json:"payload"`
}

func (e *ArtifactEvent) EventType() string { return "artifact" }
