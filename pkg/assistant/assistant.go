// Package assistant ties the live session, the reconciler, the tool
// dispatcher and the audio hardware into one connectable assistant.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/vango-go/nova-live/pkg/config"
	"github.com/vango-go/nova-live/pkg/core"
	"github.com/vango-go/nova-live/pkg/core/live"
	"github.com/vango-go/nova-live/pkg/core/live/gemini"
	"github.com/vango-go/nova-live/pkg/store"
	"github.com/vango-go/nova-live/pkg/tools"
)

// ErrNotConnected is returned by send operations while no session is open.
var ErrNotConnected = errors.New("assistant: not connected")

// DataLoadPrefix marks the silent turn that pushes attachments into context.
const DataLoadPrefix = "[SYSTEM_DATA_LOAD]"

const defaultEventBuffer = 256

// Session is the duplex stream the assistant drives. *gemini.Session implements it.
type Session interface {
	Events() <-chan *genai.LiveServerMessage
	SendAudioFrame(b64 string) error
	SendVideoFrame(jpegB64 string) error
	SendTurn(parts []*genai.Part, turnComplete bool) error
	SendToolResponse(responses ...*genai.FunctionResponse) error
	Close() error
	Err() error
}

// DialFunc opens a Session.
type DialFunc func(ctx context.Context, opts gemini.Options) (Session, error)

// DialGemini opens a Gemini Live session.
func DialGemini(ctx context.Context, opts gemini.Options) (Session, error) {
	s, err := gemini.Dial(ctx, opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// AudioEngine is an opened microphone and speaker pair. *device.Engine implements it.
type AudioEngine interface {
	Microphone() live.Microphone
	Output() live.Output
	Close() error
}

// Config holds the per-assistant session settings.
type Config struct {
	Model            string
	Voice            string
	Endpoint         string
	ThinkingEnabled  bool
	ThinkingBudget   int
	SilenceDuration  time.Duration
	GoogleSearch     bool
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	DedupWindow      time.Duration
	// ToolTimeout follows tools.DispatcherConfig: zero is the default, negative disables.
	ToolTimeout    time.Duration
	PlaybackMargin time.Duration
}

// ConfigFrom maps the environment configuration onto Config.
func ConfigFrom(c config.Config) Config {
	return Config{
		Model:            c.Model,
		Voice:            c.Voice,
		Endpoint:         c.Endpoint,
		ThinkingEnabled:  c.ThinkingEnabled,
		ThinkingBudget:   c.ThinkingBudget,
		SilenceDuration:  c.SilenceDuration,
		GoogleSearch:     c.GoogleSearch,
		HandshakeTimeout: c.HandshakeTimeout,
		WriteTimeout:     c.WriteTimeout,
		DedupWindow:      c.DedupWindow,
		ToolTimeout:      c.DispatcherTimeout(),
		PlaybackMargin:   c.PlaybackMargin,
	}
}

// Dependencies are the collaborators of an Assistant.
type Dependencies struct {
	Config  Config
	Persona config.Persona
	Store   *store.Store

	// APIKey resolves the credential on every connect.
	APIKey func(ctx context.Context) (string, error)
	// Dial defaults to DialGemini.
	Dial DialFunc
	// Audio opens the hardware. Nil runs without audio.
	Audio func(ctx context.Context) (AudioEngine, error)
	// Tools builds the catalog. It receives the assistant so tools can send
	// turns, read attachments and shut the session down.
	Tools func(a *Assistant) (*tools.Registry, error)

	Gate      tools.Gate
	Confirmer tools.Confirmer

	EventBuffer int
	Now         func() time.Time
	Logger      *slog.Logger
}

// Assistant owns one conversation across any number of session generations.
type Assistant struct {
	cfg      Config
	persona  config.Persona
	store    *store.Store
	apiKey   func(ctx context.Context) (string, error)
	dial     DialFunc
	audio    func(ctx context.Context) (AudioEngine, error)
	gate     tools.Gate
	confirm  tools.Confirmer
	now      func() time.Time
	logger   *slog.Logger
	registry *tools.Registry

	log    *live.SystemLog
	rec    *live.Reconciler
	events chan live.Event

	mu          sync.Mutex
	status      live.Status
	lastErr     string
	gen         uint64
	active      bool
	sess        Session
	disp        *tools.Dispatcher
	sessCtx     context.Context
	cancel      context.CancelFunc
	loopDone    chan struct{}
	engine      AudioEngine
	sched       *live.Scheduler
	capture     *live.Capture
	micMuted    bool
	hardMuted   bool
	thinking    bool
	attachments []live.Attachment
	sent        map[string]struct{}

	histMu    sync.Mutex
	persisted map[string]struct{}
}

// New creates a disconnected assistant.
func New(deps Dependencies) (*Assistant, error) {
	if deps.APIKey == nil {
		return nil, fmt.Errorf("api key resolver is required")
	}
	if deps.Dial == nil {
		deps.Dial = DialGemini
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.EventBuffer <= 0 {
		deps.EventBuffer = defaultEventBuffer
	}
	if deps.Config.Model == "" {
		deps.Config.Model = live.DefaultModel
	}

	a := &Assistant{
		cfg:       deps.Config,
		persona:   deps.Persona,
		store:     deps.Store,
		apiKey:    deps.APIKey,
		dial:      deps.Dial,
		audio:     deps.Audio,
		gate:      deps.Gate,
		confirm:   deps.Confirmer,
		now:       deps.Now,
		logger:    deps.Logger,
		log:       live.NewSystemLog(live.DefaultLogCapacity),
		events:    make(chan live.Event, deps.EventBuffer),
		status:    live.StatusDisconnected,
		thinking:  deps.Config.ThinkingEnabled,
		sent:      make(map[string]struct{}),
		persisted: make(map[string]struct{}),
	}
	a.log.OnAppend(func(e live.LogEntry) { a.emit(&live.LogEvent{Entry: e}) })
	a.rec = live.NewReconciler(live.ReconcilerConfig{
		Player:          playerProxy{a},
		Dispatch:        a.dispatch,
		Emit:            a.onReconcilerEvent,
		Log:             a.log,
		DedupWindow:     deps.Config.DedupWindow,
		ThinkingEnabled: deps.Config.ThinkingEnabled,
		Now:             deps.Now,
		Logger:          deps.Logger,
	})

	if deps.Tools != nil {
		reg, err := deps.Tools(a)
		if err != nil {
			return nil, fmt.Errorf("build tool registry: %w", err)
		}
		a.registry = reg
	} else {
		a.registry = tools.NewRegistry()
	}
	return a, nil
}

// Events streams state changes. Events are dropped when the consumer falls behind.
func (a *Assistant) Events() <-chan live.Event { return a.events }

// Logs returns the system log entries, oldest first.
func (a *Assistant) Logs() []live.LogEntry { return a.log.Entries() }

// SystemLog returns the assistant's log ring.
func (a *Assistant) SystemLog() *live.SystemLog { return a.log }

// Messages returns a copy of the conversation.
func (a *Assistant) Messages() []live.Message { return a.rec.Messages() }

// Registry returns the tool catalog.
func (a *Assistant) Registry() *tools.Registry { return a.registry }

// Speaking reports whether assistant audio is playing.
func (a *Assistant) Speaking() bool { return a.rec.Speaking() }

// Phase returns the turn phase.
func (a *Assistant) Phase() live.TurnPhase { return a.rec.Phase() }

func (a *Assistant) Status() live.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// LastError returns the reason of the last error teardown.
func (a *Assistant) LastError() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

// Publish delivers a host event, such as a tool artifact, on the event stream.
func (a *Assistant) Publish(ev live.Event) { a.emit(ev) }

func (a *Assistant) emit(ev live.Event) {
	select {
	case a.events <- ev:
	default:
		a.logger.Debug("dropping assistant event", "type", ev.EventType())
	}
}

func (a *Assistant) onReconcilerEvent(ev live.Event) {
	if mc, ok := ev.(*live.MessagesChangedEvent); ok {
		a.persistHistory(mc.Messages)
	}
	a.emit(ev)
}

// persistHistory appends finalized messages that have not been written yet.
func (a *Assistant) persistHistory(msgs []live.Message) {
	if a.store == nil {
		return
	}
	a.histMu.Lock()
	defer a.histMu.Unlock()
	var entries []store.HistoryEntry
	for _, m := range msgs {
		if m.IsStreaming || m.ID == "" || strings.TrimSpace(m.Text) == "" {
			continue
		}
		if _, ok := a.persisted[m.ID]; ok {
			continue
		}
		entries = append(entries, store.HistoryEntry{
			ID:        m.ID,
			Role:      string(m.Role),
			Text:      m.Text,
			Thought:   m.Thought,
			Timestamp: m.Timestamp.UnixMilli(),
		})
	}
	if len(entries) == 0 {
		return
	}
	if err := a.store.AppendHistory(context.Background(), entries...); err != nil {
		a.logger.Warn("persist history failed", "error", err)
		return
	}
	for _, e := range entries {
		a.persisted[e.ID] = struct{}{}
	}
}

// Connect opens a session. It is a no-op while connecting or connected.
func (a *Assistant) Connect(ctx context.Context) error {
	a.mu.Lock()
	if a.status == live.StatusConnecting || a.status == live.StatusConnected {
		a.mu.Unlock()
		return nil
	}
	a.gen++
	gen := a.gen
	a.active = true
	a.lastErr = ""
	a.status = live.StatusConnecting
	prevLoop := a.loopDone
	thinking := a.thinking
	a.mu.Unlock()
	a.emit(&live.StatusChangedEvent{Status: live.StatusConnecting})
	a.log.Add(live.SeverityInfo, "Connecting to Gemini Live...", nil)

	key, err := a.apiKey(ctx)
	if err == nil && strings.TrimSpace(key) == "" {
		err = core.NewAuthenticationError("no API key configured; set GEMINI_API_KEY or run `nova key set`")
	}
	if err != nil {
		a.teardown(gen, "credential lookup failed", err)
		return err
	}

	scfg := live.SessionConfig{
		Model:             a.cfg.Model,
		Voice:             a.resolveVoice(ctx),
		SystemInstruction: a.buildInstruction(ctx),
		Tools:             a.registry.Tools(a.cfg.GoogleSearch),
		Thinking:          live.ThinkingConfig{Enabled: thinking, Budget: a.cfg.ThinkingBudget},
		Activity:          live.ActivityConfig{SilenceDurationMs: int(a.cfg.SilenceDuration / time.Millisecond)},
		Transcribe:        true,
	}.WithDefaults()

	sess, err := a.dial(ctx, gemini.Options{
		APIKey:           key,
		Endpoint:         a.cfg.Endpoint,
		Config:           scfg,
		HandshakeTimeout: a.cfg.HandshakeTimeout,
		WriteTimeout:     a.cfg.WriteTimeout,
		Logger:           a.logger,
	})
	if err != nil {
		a.teardown(gen, "connection failed", err)
		return err
	}

	if prevLoop != nil {
		<-prevLoop
		a.rec.AbandonTurn()
	}

	a.mu.Lock()
	if a.gen != gen || !a.active {
		a.mu.Unlock()
		_ = sess.Close()
		a.logger.Info("connect superseded", "generation", gen)
		return nil
	}
	sessCtx, cancel := context.WithCancel(context.WithValue(context.WithoutCancel(ctx), generationKey{}, gen))
	a.sess = sess
	a.sessCtx = sessCtx
	a.cancel = cancel
	a.disp = tools.NewDispatcher(tools.DispatcherConfig{
		Registry:  a.registry,
		Responder: sess,
		Gate:      a.gate,
		Confirmer: a.confirm,
		Timeout:   a.cfg.ToolTimeout,
		Log:       a.log,
		Emit:      a.emit,
		Logger:    a.logger,
	})
	done := make(chan struct{})
	a.loopDone = done
	a.status = live.StatusConnected
	a.mu.Unlock()

	go a.eventLoop(gen, sess, done)

	a.emit(&live.StatusChangedEvent{Status: live.StatusConnected})
	a.log.Add(live.SeveritySuccess, "Connected to Gemini Live", map[string]any{"model": scfg.Model, "voice": scfg.Voice})
	a.logger.Info("live session connected", "model", scfg.Model, "voice", scfg.Voice, "generation", gen)

	if err := a.SyncHardware(); err != nil {
		a.log.Add(live.SeverityWarning, "Audio unavailable, continuing in text mode", map[string]any{"error": err.Error()})
	}
	a.syncAttachments()
	return nil
}

// generationKey tags a session context with its generation.
type generationKey struct{}

// eventLoop is the single consumer of a session's messages.
func (a *Assistant) eventLoop(gen uint64, sess Session, done chan struct{}) {
	defer close(done)
	for msg := range sess.Events() {
		if !a.current(gen) {
			continue
		}
		a.rec.Apply(msg)
	}
	if err := sess.Err(); err != nil {
		a.teardown(gen, "connection lost", err)
		return
	}
	a.teardown(gen, "session closed by server", nil)
}

func (a *Assistant) current(gen uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active && a.gen == gen
}

func (a *Assistant) dispatch(calls []*genai.FunctionCall) {
	a.mu.Lock()
	disp, ctx := a.disp, a.sessCtx
	a.mu.Unlock()
	if disp == nil {
		return
	}
	disp.Dispatch(ctx, calls)
}

func (a *Assistant) resolveVoice(ctx context.Context) string {
	if v := strings.TrimSpace(a.cfg.Voice); v != "" {
		return v
	}
	if v := strings.TrimSpace(a.persona.Voice); v != "" {
		return v
	}
	if a.store != nil {
		vc, err := a.store.VoiceConfig(ctx)
		if err != nil {
			a.logger.Warn("read voice config", "error", err)
		} else if vc.VoiceName != "" {
			return vc.VoiceName
		}
	}
	return live.DefaultVoice
}

func (a *Assistant) buildInstruction(ctx context.Context) string {
	pc := PromptContext{
		CreatorName: a.persona.CreatorName,
		VaultPath:   a.persona.VaultPath,
		Extra:       a.persona.ExtraInstructions,
		Now:         a.now(),
		Assistant:   store.DefaultAssistantConfig(),
	}
	if a.store != nil {
		if ac, err := a.store.AssistantConfig(ctx); err == nil {
			pc.Assistant = ac
		} else {
			a.logger.Warn("read assistant config", "error", err)
		}
		if p, err := a.store.UserProfile(ctx); err == nil {
			pc.Profile = p
		}
		if m, err := a.store.Memories(ctx); err == nil {
			pc.Memories = m
		}
		if h, err := a.store.History(ctx); err == nil {
			pc.History = h
		}
	}
	if a.persona.AssistantName != "" {
		pc.Assistant.AssistantName = a.persona.AssistantName
	}
	if a.persona.VoiceTone != "" {
		pc.Assistant.VoiceTone = a.persona.VoiceTone
	}
	pc.VaultFolders = vaultFolders(pc.VaultPath)
	return BuildInstruction(pc)
}

// vaultFolders lists the directories in the vault. A missing vault has none.
func vaultFolders(path string) []string {
	if path == "" {
		path = DefaultVaultPath
	}
	if !filepath.IsAbs(path) {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~/"))
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	return out
}

func (a *Assistant) session() Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status != live.StatusConnected {
		return nil
	}
	return a.sess
}

// SendTurn sends a client-content turn on the open session.
func (a *Assistant) SendTurn(parts []*genai.Part, turnComplete bool) error {
	sess := a.session()
	if sess == nil {
		return ErrNotConnected
	}
	return sess.SendTurn(parts, turnComplete)
}

// SendText sends a typed turn. Silent turns are not shown in the conversation.
// A visible turn that repeats a recent user message is dropped.
func (a *Assistant) SendText(text string, silent bool) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return core.NewValidationError("text must not be empty", "text")
	}
	sess := a.session()
	if sess == nil {
		return ErrNotConnected
	}
	if !silent {
		if _, added := a.rec.AddUserText(text); !added {
			a.logger.Debug("dropping duplicate user text")
			return nil
		}
	}
	if err := sess.SendTurn([]*genai.Part{{Text: text}}, true); err != nil {
		a.log.Add(live.SeverityError, "Failed to send message", map[string]any{"error": err.Error()})
		return err
	}
	if silent {
		a.log.Add(live.SeverityInfo, "Sent background system command", nil)
	} else {
		a.log.Add(live.SeverityInfo, "User sent message: "+preview(text, 30), nil)
	}
	return nil
}

// SendMultimodal sends attachments followed by text in one turn. Blank text
// is replaced by a prompt asking the model to analyze the files.
func (a *Assistant) SendMultimodal(text string, attachments []live.Attachment) error {
	sess := a.session()
	if sess == nil {
		return ErrNotConnected
	}
	names := make([]string, len(attachments))
	for i, att := range attachments {
		names[i] = att.Name
	}
	def := fmt.Sprintf("I've attached %d file(s) (%s). Please analyze them carefully and tell me what you find. Be specific and accurate.",
		len(attachments), strings.Join(names, ", "))
	parts, err := gemini.BuildTurnParts(attachments, text, def)
	if err != nil {
		return err
	}
	if len(parts) == 0 {
		return core.NewValidationError("message must have text or attachments", "text")
	}
	if display := strings.TrimSpace(text); display != "" {
		a.rec.AddUserText(display)
	}
	if len(attachments) > 0 {
		a.log.Add(live.SeverityInfo, fmt.Sprintf("Sending %d files: %s", len(attachments), strings.Join(names, ", ")), nil)
	}
	return sess.SendTurn(parts, true)
}

// SendVideoFrame forwards a JPEG frame. Frames are dropped while not connected.
func (a *Assistant) SendVideoFrame(jpegB64 string) error {
	sess := a.session()
	if sess == nil {
		return nil
	}
	return sess.SendVideoFrame(jpegB64)
}

// Attachments returns the files currently attached.
func (a *Assistant) Attachments() []live.Attachment {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]live.Attachment, len(a.attachments))
	copy(out, a.attachments)
	return out
}

// SetAttachments replaces the attached file set. While connected, files not
// yet sent are pushed to the model as a silent context turn.
func (a *Assistant) SetAttachments(atts []live.Attachment) {
	a.mu.Lock()
	a.attachments = append([]live.Attachment(nil), atts...)
	names := make(map[string]struct{}, len(atts))
	for _, att := range atts {
		names[att.Name] = struct{}{}
	}
	for name := range a.sent {
		if _, ok := names[name]; !ok {
			delete(a.sent, name)
		}
	}
	a.mu.Unlock()
	a.syncAttachments()
}

func (a *Assistant) syncAttachments() {
	a.mu.Lock()
	if a.status != live.StatusConnected || a.sess == nil {
		a.mu.Unlock()
		return
	}
	sess := a.sess
	var fresh []live.Attachment
	for _, att := range a.attachments {
		if _, ok := a.sent[att.Name]; ok {
			continue
		}
		a.sent[att.Name] = struct{}{}
		fresh = append(fresh, att)
	}
	a.mu.Unlock()
	if len(fresh) == 0 {
		return
	}

	a.log.Add(live.SeverityInfo, fmt.Sprintf("Auto-syncing %d new attachments to AI context...", len(fresh)), nil)
	note := fmt.Sprintf("%s User has attached these %d file(s) for context. Analyze them silently. Wait for user's voice command or question about them.",
		DataLoadPrefix, len(fresh))
	parts, err := gemini.BuildTurnParts(fresh, note, "")
	if err == nil {
		err = sess.SendTurn(parts, true)
	}
	if err != nil {
		a.logger.Warn("attachment sync failed", "error", err)
		a.log.Add(live.SeverityError, "Attachment sync failed", map[string]any{"error": err.Error()})
		return
	}
	a.log.Add(live.SeveritySuccess, fmt.Sprintf("%d files uploaded to AI context", len(fresh)), nil)
}

// SetMicMuted mutes capture without releasing the device.
func (a *Assistant) SetMicMuted(muted bool) {
	a.mu.Lock()
	a.micMuted = muted
	capture := a.capture
	a.mu.Unlock()
	if capture != nil {
		capture.SetMuted(muted)
	}
	if muted {
		a.log.Add(live.SeverityInfo, "Microphone Muted", nil)
	} else {
		a.log.Add(live.SeverityInfo, "Microphone Unmuted", nil)
	}
}

// SetHardMuted releases or reacquires the audio hardware.
func (a *Assistant) SetHardMuted(muted bool) error {
	a.mu.Lock()
	a.hardMuted = muted
	a.mu.Unlock()
	return a.SyncHardware()
}

// SetThinkingEnabled toggles thought display. The budget sent to the model
// changes on the next connect.
func (a *Assistant) SetThinkingEnabled(enabled bool) {
	a.mu.Lock()
	a.thinking = enabled
	a.mu.Unlock()
	a.rec.SetThinkingEnabled(enabled)
}

// Shutdown ends a session on behalf of a tool. When ctx was derived from a
// session's context only that session is ended, so a delayed shutdown cannot
// close a session opened after it was scheduled.
func (a *Assistant) Shutdown(ctx context.Context, reason string) {
	a.mu.Lock()
	gen, bound := ctx.Value(generationKey{}).(uint64)
	if !bound {
		gen = a.gen
	}
	stale := !a.active || a.gen != gen
	a.mu.Unlock()
	if stale {
		a.logger.Info("ignoring shutdown for ended session", "reason", reason, "generation", gen)
		return
	}
	a.log.Add(live.SeverityInfo, "Shutting down: "+reason, nil)
	a.teardown(gen, reason, nil)
}

// Disconnect ends the current session.
func (a *Assistant) Disconnect() {
	a.Teardown("disconnect")
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// playerProxy routes reconciler audio to the scheduler of the current session.
type playerProxy struct{ a *Assistant }

func (p playerProxy) Enqueue(pcm []byte) (time.Duration, error) {
	p.a.mu.Lock()
	s := p.a.sched
	p.a.mu.Unlock()
	if s == nil {
		return 0, live.ErrNoOutput
	}
	return s.Enqueue(pcm)
}

func (p playerProxy) Clear() {
	p.a.mu.Lock()
	s := p.a.sched
	p.a.mu.Unlock()
	if s != nil {
		s.Clear()
	}
}
