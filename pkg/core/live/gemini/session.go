package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/vango-go/nova-live/pkg/core"
	"github.com/vango-go/nova-live/pkg/core/live"
)

const (
	// DefaultEndpoint is the Gemini Live websocket endpoint.
	DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	defaultHandshakeTimeout = 15 * time.Second
	defaultWriteTimeout     = 5 * time.Second
	defaultEventBuffer      = 256
	maxMessageBytes         = 16 << 20
)

// Options configures Dial.
type Options struct {
	APIKey   string
	Endpoint string
	Config   live.SessionConfig

	Dialer           *websocket.Dialer
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	Logger           *slog.Logger
}

// Session is one duplex BidiGenerateContent stream.
type Session struct {
	id     string
	conn   *websocket.Conn
	logger *slog.Logger

	events chan *genai.LiveServerMessage
	done   chan struct{}
	quit   chan struct{}

	writeTimeout time.Duration
	writeMu      sync.Mutex
	closeOnce    sync.Once
	closed       atomic.Bool

	errMu sync.Mutex
	err   error
}

// Dial opens a stream, sends the setup message and waits for setupComplete.
func Dial(ctx context.Context, opts Options) (*Session, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, core.NewAuthenticationError("no API key configured; set GEMINI_API_KEY or run `nova key set`")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	handshakeTimeout := opts.HandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = defaultHandshakeTimeout
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	wsURL, err := withAPIKey(endpoint, apiKey)
	if err != nil {
		return nil, core.NewConnectionError("invalid endpoint", err)
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	dialCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, handshakeTimeout)
		defer cancel()
	}

	conn, resp, err := dialer.DialContext(dialCtx, wsURL, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &core.Error{Type: core.ErrAuthentication, Message: "API key rejected", Code: resp.Status, Cause: err}
		}
		if resp != nil {
			return nil, core.NewConnectionError(fmt.Sprintf("websocket dial failed (status %d)", resp.StatusCode), err)
		}
		return nil, core.NewConnectionError("websocket dial failed", err)
	}
	conn.SetReadLimit(maxMessageBytes)

	setup := BuildSetup(opts.Config)
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(clientMessage{Setup: setup}); err != nil {
		_ = conn.Close()
		return nil, core.NewConnectionError("send setup", err)
	}
	_ = conn.SetWriteDeadline(time.Time{})

	deadline := time.Now().Add(handshakeTimeout)
	if d, ok := dialCtx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)
	_, payload, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, classifyCloseError("read setupComplete", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	var first genai.LiveServerMessage
	if err := json.Unmarshal(payload, &first); err != nil {
		_ = conn.Close()
		return nil, core.NewConnectionError("decode setupComplete", err)
	}
	if first.SetupComplete == nil {
		_ = conn.Close()
		return nil, core.NewConnectionError("server did not acknowledge setup", nil)
	}

	s := &Session{
		id:           uuid.NewString(),
		conn:         conn,
		logger:       logger,
		events:       make(chan *genai.LiveServerMessage, defaultEventBuffer),
		done:         make(chan struct{}),
		quit:         make(chan struct{}),
		writeTimeout: writeTimeout,
	}
	s.logger = logger.With("session_id", s.id)
	s.logger.Info("live session connected", "model", setup.Model, "tools", len(setup.Tools))
	go s.readLoop()
	return s, nil
}

func withAPIKey(endpoint, apiKey string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("key", apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// classifyCloseError maps websocket failures onto the engine's error taxonomy.
func classifyCloseError(op string, err error) error {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		reason := strings.TrimSpace(closeErr.Text)
		if closeErr.Code == websocket.ClosePolicyViolation || strings.Contains(strings.ToLower(reason), "api key") {
			return &core.Error{Type: core.ErrAuthentication, Message: nonEmpty(reason, "credential rejected"), Code: fmt.Sprint(closeErr.Code), Cause: err}
		}
		return &core.Error{Type: core.ErrConnection, Message: fmt.Sprintf("%s: %s", op, nonEmpty(reason, "connection closed")), Code: fmt.Sprint(closeErr.Code), Cause: err}
	}
	return core.NewConnectionError(op, err)
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// ID returns the client-side session identifier.
func (s *Session) ID() string { return s.id }

// Events yields decoded server messages. The channel closes when the stream ends.
func (s *Session) Events() <-chan *genai.LiveServerMessage {
	if s == nil {
		return nil
	}
	return s.events
}

// Done is closed once the read loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// SendAudioFrame streams one base64 PCM16 capture frame.
func (s *Session) SendAudioFrame(b64 string) error {
	return s.send(clientMessage{RealtimeInput: &RealtimeInput{
		Audio: &MediaChunk{MIMEType: live.InputMIMEType, Data: b64},
	}})
}

// SendVideoFrame streams one base64 JPEG frame.
func (s *Session) SendVideoFrame(jpegB64 string) error {
	return s.send(clientMessage{RealtimeInput: &RealtimeInput{
		Video: &MediaChunk{MIMEType: "image/jpeg", Data: jpegB64},
	}})
}

// SendTurn appends a user turn built from parts.
func (s *Session) SendTurn(parts []*genai.Part, turnComplete bool) error {
	if len(parts) == 0 {
		return core.NewValidationError("turn must have at least one part", "parts")
	}
	return s.send(clientMessage{ClientContent: &ClientContent{
		Turns:        []*genai.Content{{Role: genai.RoleUser, Parts: parts}},
		TurnComplete: turnComplete,
	}})
}

// SendToolResponse answers function calls by id.
func (s *Session) SendToolResponse(responses ...*genai.FunctionResponse) error {
	if len(responses) == 0 {
		return nil
	}
	return s.send(clientMessage{ToolResponse: &ToolResponse{FunctionResponses: responses}})
}

func (s *Session) send(msg clientMessage) error {
	if s == nil {
		return core.NewConnectionError("session must not be nil", nil)
	}
	if s.closed.Load() {
		return core.NewConnectionError("live session is closed", nil)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := s.conn.WriteJSON(msg); err != nil {
		return core.NewConnectionError("write", err)
	}
	return nil
}

// Close closes the websocket session. It is idempotent.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.quit)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	<-s.done
	return nil
}

// Err returns the terminal session error once the stream has ended.
// A clean close yields nil.
func (s *Session) Err() error {
	if s == nil {
		return nil
	}
	<-s.done
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *Session) setErr(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *Session) readLoop() {
	defer close(s.done)
	defer close(s.events)

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			s.setErr(classifyCloseError("live stream", err))
			return
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		msg := new(genai.LiveServerMessage)
		if err := json.Unmarshal(data, msg); err != nil {
			s.logger.Warn("dropping undecodable server message", "error", err, "bytes", len(data))
			continue
		}
		select {
		case s.events <- msg:
		case <-s.quit:
			return
		}
	}
}
