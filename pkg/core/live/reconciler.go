package live

import (
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// DefaultDedupWindow is how long an identical user utterance is suppressed.
const DefaultDedupWindow = 5 * time.Second

// Player receives decoded assistant audio.
type Player interface {
	Enqueue(pcm []byte) (time.Duration, error)
	Clear()
}

// ReconcilerConfig configures a Reconciler.
type ReconcilerConfig struct {
	Player Player
	// Dispatch receives tool calls. It must not block.
	Dispatch func(calls []*genai.FunctionCall)
	// Emit receives state change events on the Apply goroutine. It must not block.
	Emit func(Event)
	Log  *SystemLog

	DedupWindow     time.Duration
	ThinkingEnabled bool

	Now    func() time.Time
	NewID  func() string
	Logger *slog.Logger
}

// turn holds the uncommitted buffers of the turn in progress.
type turn struct {
	phase      TurnPhase
	hasThought bool
	input      string
	output     string
}

// Reconciler folds the server's multiplexed event stream into message history.
// Apply must be called from a single goroutine; accessors are safe from any goroutine.
type Reconciler struct {
	cfg ReconcilerConfig

	mu       sync.Mutex
	turn     turn
	thought  string
	thinking bool
	speaking bool
	messages []Message
	pending  []Event
}

// NewReconciler creates a reconciler with empty history.
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = DefaultDedupWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Emit == nil {
		cfg.Emit = func(Event) {}
	}
	return &Reconciler{cfg: cfg, thinking: cfg.ThinkingEnabled}
}

// Apply processes one inbound server message.
func (r *Reconciler) Apply(msg *genai.LiveServerMessage) {
	if msg == nil {
		return
	}
	if sc := msg.ServerContent; sc != nil {
		r.applyAudio(sc)
		if sc.Interrupted {
			r.Interrupt()
		}
		r.applyThoughts(sc)
		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
			r.appendInput(sc.InputTranscription.Text)
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			r.appendOutput(sc.OutputTranscription.Text)
		}
		if sc.TurnComplete {
			r.commit()
		}
	}
	if msg.ToolCall != nil && len(msg.ToolCall.FunctionCalls) > 0 {
		calls := msg.ToolCall.FunctionCalls
		for _, call := range calls {
			if call == nil {
				continue
			}
			r.cfg.Log.Add(SeverityTool, "Tool requested: "+call.Name, map[string]any{"id": call.ID, "args": call.Args})
		}
		if r.cfg.Dispatch != nil {
			r.cfg.Dispatch(calls)
		}
	}
	if msg.ToolCallCancellation != nil && len(msg.ToolCallCancellation.IDs) > 0 {
		r.cfg.Log.Add(SeverityWarning, "Server cancelled pending tool calls", map[string]any{"ids": msg.ToolCallCancellation.IDs})
	}
	if msg.GoAway != nil {
		r.cfg.Log.Add(SeverityWarning, "Server will close the session soon", nil)
	}
}

func (r *Reconciler) applyAudio(sc *genai.LiveServerContent) {
	if sc.ModelTurn == nil {
		return
	}
	for _, part := range sc.ModelTurn.Parts {
		if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		if !strings.HasPrefix(part.InlineData.MIMEType, "audio/") {
			continue
		}
		if r.cfg.Player != nil {
			if _, err := r.cfg.Player.Enqueue(part.InlineData.Data); errors.Is(err, ErrNoOutput) {
				continue
			} else if err != nil {
				r.cfg.Logger.Warn("skipping audio chunk", "error", err, "bytes", len(part.InlineData.Data))
				r.cfg.Log.Add(SeverityWarning, "Skipped malformed audio chunk", map[string]any{"error": err.Error()})
				continue
			}
		}
		r.mu.Lock()
		r.setPhaseLocked(r.turn.phase.advance(PhaseResponding))
		if !r.speaking {
			r.speaking = true
			r.pending = append(r.pending, &SpeakingChangedEvent{Speaking: true})
		}
		r.unlockAndFlush()
	}
}

func (r *Reconciler) applyThoughts(sc *genai.LiveServerContent) {
	if sc.ModelTurn == nil {
		return
	}
	for _, part := range sc.ModelTurn.Parts {
		if part == nil || !part.Thought || part.Text == "" {
			continue
		}
		r.mu.Lock()
		if !r.thinking {
			r.mu.Unlock()
			continue
		}
		if !r.turn.hasThought {
			r.thought = ""
			r.turn.hasThought = true
		}
		if !strings.HasSuffix(r.thought, part.Text) {
			if r.thought != "" {
				r.thought += " "
			}
			r.thought += part.Text
		}
		r.setPhaseLocked(r.turn.phase.advance(PhaseThinking))
		r.pending = append(r.pending, &ThoughtEvent{Text: r.thought, Thinking: true})
		r.unlockAndFlush()
	}
}

func (r *Reconciler) appendInput(text string) {
	r.mu.Lock()
	r.turn.input += text
	r.setPhaseLocked(r.turn.phase.advance(PhaseListening))
	r.pending = append(r.pending, &InputTranscriptEvent{Text: r.turn.input})
	r.unlockAndFlush()
}

func (r *Reconciler) appendOutput(text string) {
	r.mu.Lock()
	r.turn.output += text
	cur := r.turn.output
	if i := streamingTail(r.messages); i >= 0 {
		r.messages[i].Text = cur
	} else {
		r.messages = append(r.messages, Message{
			ID:          "streaming-" + r.cfg.NewID(),
			Role:        RoleAssistant,
			Text:        cur,
			Timestamp:   r.cfg.Now(),
			IsStreaming: true,
		})
	}
	r.setPhaseLocked(r.turn.phase.advance(PhaseResponding))
	r.pending = append(r.pending,
		&OutputTranscriptEvent{Text: cur},
		&MessagesChangedEvent{Messages: r.snapshotLocked()},
	)
	r.unlockAndFlush()
}

// commit finalizes the turn at a turnComplete boundary.
func (r *Reconciler) commit() {
	r.mu.Lock()
	r.setPhaseLocked(PhaseCommitting)

	var thought string
	if r.turn.hasThought {
		thought = r.thought
	}

	var committedUser string
	now := r.cfg.Now()
	if text := strings.TrimSpace(r.turn.input); text != "" {
		if !isDuplicate(r.messages, RoleUser, text, now, r.cfg.DedupWindow) {
			r.messages = insertUser(r.messages, Message{
				ID:        r.cfg.NewID(),
				Role:      RoleUser,
				Text:      text,
				Timestamp: now,
			})
			committedUser = text
		}
	}

	var committedAssistant string
	if i := streamingTail(r.messages); i >= 0 {
		r.messages[i].ID = r.cfg.NewID()
		r.messages[i].IsStreaming = false
		r.messages[i].Thought = thought
		committedAssistant = r.messages[i].Text
	}

	r.turn = turn{phase: r.turn.phase}
	r.setPhaseLocked(PhaseIdle)
	r.pending = append(r.pending,
		&InputTranscriptEvent{},
		&OutputTranscriptEvent{},
		&ThoughtEvent{Text: r.thought},
		&MessagesChangedEvent{Messages: r.snapshotLocked()},
	)
	r.unlockAndFlush()

	if committedUser != "" || committedAssistant != "" {
		r.cfg.Logger.Debug("turn committed", "user_chars", len(committedUser), "assistant_chars", len(committedAssistant))
	}
}

// Interrupt abandons the turn in progress: audio stops and all uncommitted
// buffers are discarded, including any streaming assistant message.
func (r *Reconciler) Interrupt() {
	if r.cfg.Player != nil {
		r.cfg.Player.Clear()
	}
	r.AbandonTurn()
	r.cfg.Log.Add(SeverityInfo, "Assistant interrupted", nil)
}

// AbandonTurn drops the in-flight turn: transcripts, thought and any
// streaming assistant message. Committed history is kept. It is called when
// a session ends so the next session starts from a clean turn.
func (r *Reconciler) AbandonTurn() {
	r.mu.Lock()
	if r.speaking {
		r.speaking = false
		r.pending = append(r.pending, &SpeakingChangedEvent{Speaking: false})
	}
	r.thought = ""
	r.turn = turn{phase: r.turn.phase}
	if i := streamingTail(r.messages); i >= 0 {
		r.messages = r.messages[:i]
	}
	r.setPhaseLocked(PhaseIdle)
	r.pending = append(r.pending,
		&ThoughtEvent{},
		&InputTranscriptEvent{},
		&OutputTranscriptEvent{},
		&MessagesChangedEvent{Messages: r.snapshotLocked()},
	)
	r.unlockAndFlush()
}

// SpeakingEnded records that the player drained its last source.
func (r *Reconciler) SpeakingEnded() {
	r.mu.Lock()
	if r.speaking {
		r.speaking = false
		r.pending = append(r.pending, &SpeakingChangedEvent{Speaking: false})
	}
	r.unlockAndFlush()
}

// AddUserText records a locally typed user message. The message lands ahead
// of a reply that is still streaming, so the reply stays the last message.
// Blank text, and text that duplicates a recent user message, is dropped and
// reported as not added.
func (r *Reconciler) AddUserText(text string) (Message, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, false
	}
	r.mu.Lock()
	now := r.cfg.Now()
	if isDuplicate(r.messages, RoleUser, text, now, r.cfg.DedupWindow) {
		r.mu.Unlock()
		return Message{}, false
	}
	m := Message{
		ID:        r.cfg.NewID(),
		Role:      RoleUser,
		Text:      text,
		Timestamp: now,
	}
	if i := streamingTail(r.messages); i >= 0 {
		r.messages = slices.Insert(r.messages, i, m)
	} else {
		r.messages = append(r.messages, m)
	}
	r.pending = append(r.pending, &MessagesChangedEvent{Messages: r.snapshotLocked()})
	r.unlockAndFlush()
	return m, true
}

// SetThinkingEnabled toggles whether thought fragments are honored.
func (r *Reconciler) SetThinkingEnabled(enabled bool) {
	r.mu.Lock()
	r.thinking = enabled
	r.mu.Unlock()
}

// Reset discards all history and turn state.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	r.turn = turn{}
	r.thought = ""
	r.speaking = false
	r.messages = nil
	r.mu.Unlock()
}

func (r *Reconciler) setPhaseLocked(to TurnPhase) {
	from := r.turn.phase
	if from == to {
		return
	}
	r.turn.phase = to
	r.pending = append(r.pending, &PhaseChangedEvent{From: from, To: to})
}

// unlockAndFlush releases the lock and delivers events queued while it was held.
func (r *Reconciler) unlockAndFlush() {
	events := r.pending
	r.pending = nil
	r.mu.Unlock()
	for _, ev := range events {
		r.cfg.Emit(ev)
	}
}

func (r *Reconciler) snapshotLocked() []Message {
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Messages returns a copy of the message history.
func (r *Reconciler) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Phase returns the current turn phase.
func (r *Reconciler) Phase() TurnPhase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.turn.phase
}

// Speaking reports whether assistant audio is playing.
func (r *Reconciler) Speaking() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.speaking
}

// Thought returns the current thought narration.
func (r *Reconciler) Thought() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.thought
}

// Thinking reports whether the model is streaming a thought right now.
func (r *Reconciler) Thinking() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.turn.phase == PhaseThinking
}

// CurrentInput returns the uncommitted user transcript.
func (r *Reconciler) CurrentInput() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.turn.input
}

// CurrentOutput returns the uncommitted assistant transcript.
func (r *Reconciler) CurrentOutput() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.turn.output
}
