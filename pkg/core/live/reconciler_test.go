package live

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

type recorder struct {
	events []Event
}

func (r *recorder) emit(ev Event) { r.events = append(r.events, ev) }

func (r *recorder) count(eventType string) int {
	n := 0
	for _, ev := range r.events {
		if ev.EventType() == eventType {
			n++
		}
	}
	return n
}

type reconcilerHarness struct {
	rec   *Reconciler
	out   *fakeOutput
	sched *Scheduler
	clock *fakeClock
	calls [][]*genai.FunctionCall
	log   *SystemLog
	seen  *recorder
}

func newHarness(t *testing.T, thinking bool) *reconcilerHarness {
	t.Helper()
	h := &reconcilerHarness{
		out:   &fakeOutput{},
		clock: &fakeClock{t: time.Unix(1_700_000_000, 0)},
		log:   NewSystemLog(DefaultLogCapacity),
		seen:  &recorder{},
	}
	var ids int
	h.sched = NewScheduler(h.out, PlaybackConfig{})
	h.rec = NewReconciler(ReconcilerConfig{
		Player:          h.sched,
		Dispatch:        func(calls []*genai.FunctionCall) { h.calls = append(h.calls, calls) },
		Emit:            h.seen.emit,
		Log:             h.log,
		ThinkingEnabled: thinking,
		Now:             h.clock.Now,
		NewID: func() string {
			ids++
			return fmt.Sprintf("id-%d", ids)
		},
	})
	return h
}

func content(sc *genai.LiveServerContent) *genai.LiveServerMessage {
	return &genai.LiveServerMessage{ServerContent: sc}
}

func audioMsg(pcm []byte) *genai.LiveServerMessage {
	return content(&genai.LiveServerContent{ModelTurn: &genai.Content{Parts: []*genai.Part{
		{InlineData: &genai.Blob{MIMEType: "audio/pcm;rate=24000", Data: pcm}},
	}}})
}

func thoughtMsg(text string) *genai.LiveServerMessage {
	return content(&genai.LiveServerContent{ModelTurn: &genai.Content{Parts: []*genai.Part{
		{Text: text, Thought: true},
	}}})
}

func inputMsg(text string) *genai.LiveServerMessage {
	return content(&genai.LiveServerContent{InputTranscription: &genai.Transcription{Text: text}})
}

func outputMsg(text string) *genai.LiveServerMessage {
	return content(&genai.LiveServerContent{OutputTranscription: &genai.Transcription{Text: text}})
}

func turnCompleteMsg() *genai.LiveServerMessage {
	return content(&genai.LiveServerContent{TurnComplete: true})
}

func interruptedMsg() *genai.LiveServerMessage {
	return content(&genai.LiveServerContent{Interrupted: true})
}

func TestReconciler_TextTurnScenario(t *testing.T) {
	h := newHarness(t, false)

	h.rec.AddUserText("hello")
	h.rec.Apply(outputMsg("Hi there"))
	h.rec.Apply(turnCompleteMsg())

	msgs := h.rec.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Text)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hi there", msgs[1].Text)
	assert.False(t, msgs[1].IsStreaming)
	assert.Equal(t, PhaseIdle, h.rec.Phase())
}

func TestReconciler_OutputUpsertsStreamingTail(t *testing.T) {
	h := newHarness(t, false)

	h.rec.Apply(outputMsg("Hi"))
	h.rec.Apply(outputMsg(" there"))

	msgs := h.rec.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Hi there", msgs[0].Text)
	assert.True(t, msgs[0].IsStreaming)
	assert.Equal(t, "Hi there", h.rec.CurrentOutput())
	assert.Equal(t, PhaseResponding, h.rec.Phase())

	h.rec.Apply(turnCompleteMsg())
	msgs = h.rec.Messages()
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].IsStreaming)
	assert.NotContains(t, msgs[0].ID, "streaming-")
	assert.Empty(t, h.rec.CurrentOutput())
}

func TestReconciler_CommitPlacesUserBeforeAssistant(t *testing.T) {
	h := newHarness(t, false)

	// Output fragments are processed before the user's transcript completes.
	h.rec.Apply(inputMsg("what's the"))
	h.rec.Apply(outputMsg("It is "))
	h.rec.Apply(inputMsg(" weather"))
	h.rec.Apply(outputMsg("sunny."))
	h.rec.Apply(turnCompleteMsg())

	msgs := h.rec.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "what's the weather", msgs[0].Text)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, "It is sunny.", msgs[1].Text)
	assert.False(t, msgs[1].IsStreaming)
	assert.Empty(t, h.rec.CurrentInput())
}

func TestReconciler_UserOnlyTurnAppends(t *testing.T) {
	h := newHarness(t, false)

	h.rec.Apply(inputMsg("  just talking  "))
	h.rec.Apply(turnCompleteMsg())

	msgs := h.rec.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "just talking", msgs[0].Text)
}

func TestReconciler_DuplicateUserUtteranceSuppressed(t *testing.T) {
	h := newHarness(t, false)

	h.rec.Apply(inputMsg("turn on the lights"))
	h.rec.Apply(turnCompleteMsg())

	h.clock.t = h.clock.t.Add(2 * time.Second)
	h.rec.Apply(inputMsg(" turn on the lights "))
	h.rec.Apply(turnCompleteMsg())

	require.Len(t, h.rec.Messages(), 1)

	// Outside the window the same utterance is a new message.
	h.clock.t = h.clock.t.Add(6 * time.Second)
	h.rec.Apply(inputMsg("turn on the lights"))
	h.rec.Apply(turnCompleteMsg())
	assert.Len(t, h.rec.Messages(), 2)
}

func TestReconciler_InterruptionClearsState(t *testing.T) {
	h := newHarness(t, true)

	h.rec.Apply(thoughtMsg("Planning reply"))
	h.rec.Apply(inputMsg("stop"))
	h.rec.Apply(audioMsg(pcmOfDuration(100 * time.Millisecond)))
	h.rec.Apply(outputMsg("Well, as I was"))
	require.Equal(t, 1, h.sched.Active())
	require.True(t, h.rec.Speaking())
	require.NotEmpty(t, h.rec.Thought())

	h.rec.Apply(interruptedMsg())

	assert.Empty(t, h.rec.Thought())
	assert.Empty(t, h.rec.CurrentInput())
	assert.Empty(t, h.rec.CurrentOutput())
	assert.Equal(t, 0, h.sched.Active())
	assert.False(t, h.rec.Speaking())
	assert.Equal(t, PhaseIdle, h.rec.Phase())
	for _, m := range h.rec.Messages() {
		assert.False(t, m.IsStreaming, "no streaming message may dangle after interruption")
	}
	assert.True(t, h.out.sources[0].stopped)
}

func TestReconciler_InterruptionKeepsCommittedHistory(t *testing.T) {
	h := newHarness(t, false)

	h.rec.Apply(outputMsg("First answer"))
	h.rec.Apply(turnCompleteMsg())
	h.rec.Apply(outputMsg("Second ans"))
	h.rec.Apply(interruptedMsg())

	msgs := h.rec.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "First answer", msgs[0].Text)
}

func TestReconciler_ThoughtsGatedDedupedAndAttached(t *testing.T) {
	h := newHarness(t, false)

	h.rec.Apply(thoughtMsg("ignored while disabled"))
	assert.Empty(t, h.rec.Thought())

	h.rec.SetThinkingEnabled(true)
	h.rec.Apply(thoughtMsg("Considering options."))
	assert.True(t, h.rec.Thinking())
	h.rec.Apply(thoughtMsg("Considering options."))
	h.rec.Apply(thoughtMsg("Picking one."))
	assert.Equal(t, "Considering options. Picking one.", h.rec.Thought())

	h.rec.Apply(outputMsg("Done."))
	h.rec.Apply(turnCompleteMsg())

	msgs := h.rec.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Considering options. Picking one.", msgs[0].Thought)
	assert.False(t, h.rec.Thinking())
	// The thought stays visible until the next turn starts thinking.
	assert.Equal(t, "Considering options. Picking one.", h.rec.Thought())

	h.rec.Apply(thoughtMsg("New turn."))
	assert.Equal(t, "New turn.", h.rec.Thought())

	// A turn without thinking does not inherit the stale thought.
	h.rec.Apply(turnCompleteMsg())
	h.rec.Apply(outputMsg("Plain."))
	h.rec.Apply(turnCompleteMsg())
	msgs = h.rec.Messages()
	assert.Empty(t, msgs[len(msgs)-1].Thought)
}

func TestReconciler_ToolCallsForwarded(t *testing.T) {
	h := newHarness(t, false)

	h.rec.Apply(&genai.LiveServerMessage{ToolCall: &genai.LiveServerToolCall{FunctionCalls: []*genai.FunctionCall{
		{ID: "call-1", Name: "add_note", Args: map[string]any{"content": "milk"}},
		{ID: "call-2", Name: "get_system_info"},
	}}})

	require.Len(t, h.calls, 1)
	assert.Len(t, h.calls[0], 2)
	assert.Equal(t, "call-1", h.calls[0][0].ID)

	var tools int
	for _, e := range h.log.Entries() {
		if e.Severity == SeverityTool {
			tools++
		}
	}
	assert.Equal(t, 2, tools)
}

func TestReconciler_BadAudioChunkSkipped(t *testing.T) {
	h := newHarness(t, false)

	h.rec.Apply(audioMsg([]byte{1, 2, 3}))
	assert.False(t, h.rec.Speaking())
	assert.Equal(t, 0, h.sched.Active())

	h.rec.Apply(audioMsg(pcmOfDuration(20 * time.Millisecond)))
	assert.True(t, h.rec.Speaking())
	assert.Equal(t, 1, h.seen.count("speaking.changed"))

	h.out.finish(0)
	h.rec.SpeakingEnded()
	assert.False(t, h.rec.Speaking())
	assert.Equal(t, 2, h.seen.count("speaking.changed"))
}

func TestReconciler_PhaseTransitions(t *testing.T) {
	h := newHarness(t, true)

	h.rec.Apply(inputMsg("hi"))
	assert.Equal(t, PhaseListening, h.rec.Phase())
	h.rec.Apply(thoughtMsg("hm"))
	assert.Equal(t, PhaseThinking, h.rec.Phase())
	h.rec.Apply(outputMsg("hello"))
	assert.Equal(t, PhaseResponding, h.rec.Phase())

	// Late input does not move the phase backwards.
	h.rec.Apply(inputMsg(" again"))
	assert.Equal(t, PhaseResponding, h.rec.Phase())

	h.rec.Apply(turnCompleteMsg())
	assert.Equal(t, PhaseIdle, h.rec.Phase())

	var phases []string
	for _, ev := range h.seen.events {
		if pc, ok := ev.(*PhaseChangedEvent); ok {
			phases = append(phases, pc.To.String())
		}
	}
	assert.Equal(t, []string{"LISTENING", "THINKING", "RESPONDING", "COMMITTING", "IDLE"}, phases)
}

func TestReconciler_ResetDropsHistory(t *testing.T) {
	h := newHarness(t, false)
	h.rec.AddUserText("hello")
	h.rec.Reset()
	assert.Empty(t, h.rec.Messages())
}

func TestReconciler_AddUserTextDedup(t *testing.T) {
	h := newHarness(t, false)
	_, added := h.rec.AddUserText("hello")
	require.True(t, added)
	_, added = h.rec.AddUserText(" hello ")
	assert.False(t, added)

	h.clock.t = h.clock.t.Add(DefaultDedupWindow + time.Second)
	_, added = h.rec.AddUserText("hello")
	assert.True(t, added)
	assert.Len(t, h.rec.Messages(), 2)
}

func TestReconciler_TypedTextDuringReplyKeepsReplyLast(t *testing.T) {
	h := newHarness(t, false)

	h.rec.Apply(outputMsg("Hi "))
	_, added := h.rec.AddUserText("stop")
	require.True(t, added)
	h.rec.Apply(outputMsg("there"))
	h.rec.Apply(turnCompleteMsg())

	msgs := h.rec.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "stop", msgs[0].Text)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hi there", msgs[1].Text)
	for _, m := range msgs {
		assert.False(t, m.IsStreaming)
	}
}

func TestReconciler_AddUserTextTrimsAndRejectsBlank(t *testing.T) {
	h := newHarness(t, false)

	m, added := h.rec.AddUserText("  hello \n")
	require.True(t, added)
	assert.Equal(t, "hello", m.Text)

	_, added = h.rec.AddUserText(" \t ")
	assert.False(t, added)

	msgs := h.rec.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Text)
}

func TestReconciler_AbandonTurnDropsPartialReply(t *testing.T) {
	h := newHarness(t, false)

	h.rec.Apply(outputMsg("Done."))
	h.rec.Apply(turnCompleteMsg())
	h.rec.Apply(inputMsg("and then"))
	h.rec.Apply(audioMsg(pcmOfDuration(50 * time.Millisecond)))
	h.rec.Apply(outputMsg("Half a sent"))
	require.True(t, h.rec.Speaking())

	h.rec.AbandonTurn()

	assert.Empty(t, h.rec.CurrentInput())
	assert.Empty(t, h.rec.CurrentOutput())
	assert.False(t, h.rec.Speaking())
	assert.Equal(t, PhaseIdle, h.rec.Phase())
	msgs := h.rec.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Done.", msgs[0].Text)

	h.rec.Apply(outputMsg("New reply"))
	h.rec.Apply(turnCompleteMsg())
	msgs = h.rec.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "New reply", msgs[1].Text)
	assert.False(t, msgs[1].IsStreaming)
	assert.Zero(t, h.log.Len(), "abandoning a turn is not an interruption")
}
