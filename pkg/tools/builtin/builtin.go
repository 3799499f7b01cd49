// Package builtin implements the assistant's tool catalog on top of the
// document store and the host collaborators.
package builtin

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"google.golang.org/genai"

	"github.com/vango-go/nova-live/pkg/core/live"
	"github.com/vango-go/nova-live/pkg/host"
	"github.com/vango-go/nova-live/pkg/store"
	"github.com/vango-go/nova-live/pkg/tools"
)

// AttachmentSource exposes the files the user attached to the conversation.
type AttachmentSource interface {
	Attachments() []live.Attachment
}

// TurnSender delivers a client-content turn on the current session.
type TurnSender interface {
	SendTurn(parts []*genai.Part, turnComplete bool) error
}

// Deps are the collaborators the tools act on. Tools whose collaborator is
// nil are not registered.
type Deps struct {
	Store       *store.Store
	Host        host.Host
	Messenger   host.Messenger
	Images      host.ImageGenerator
	Attachments AttachmentSource
	Turns       TurnSender

	// HTTP serves http_request. It should be SSRF-restricted.
	HTTP *http.Client
	// Web serves the YouTube search. Default: a client with HTTPTimeout.
	Web *http.Client

	// Shutdown tears the session down. turn_off calls it TurnOffDelay after
	// responding, with the context of the call that requested it.
	Shutdown func(ctx context.Context, reason string)
	// Emit publishes artifacts for the host UI.
	Emit func(live.Event)

	DownloadsDir     string
	YouTubeSearchURL string
	MapsURL          string

	TurnOffDelay    time.Duration
	ScreenshotDelay time.Duration
	EnterDelay      time.Duration
	TypeEnterDelay  time.Duration
	HTTPTimeout     time.Duration

	Now    func() time.Time
	Logger *slog.Logger
}

const (
	defaultYouTubeSearchURL = "https://www.youtube.com/results"
	defaultMapsURL          = "https://www.google.com/maps/dir/"
)

func (d *Deps) withDefaults() {
	if d.TurnOffDelay <= 0 {
		d.TurnOffDelay = 2 * time.Second
	}
	if d.ScreenshotDelay <= 0 {
		d.ScreenshotDelay = 100 * time.Millisecond
	}
	if d.EnterDelay == 0 {
		d.EnterDelay = 8 * time.Second
	}
	if d.TypeEnterDelay == 0 {
		d.TypeEnterDelay = 5 * time.Second
	}
	if d.HTTPTimeout <= 0 {
		d.HTTPTimeout = 30 * time.Second
	}
	if d.Web == nil {
		d.Web = &http.Client{Timeout: d.HTTPTimeout}
	}
	if d.YouTubeSearchURL == "" {
		d.YouTubeSearchURL = defaultYouTubeSearchURL
	}
	if d.MapsURL == "" {
		d.MapsURL = defaultMapsURL
	}
	if d.DownloadsDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			d.DownloadsDir = filepath.Join(home, "Downloads")
		}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Emit == nil {
		d.Emit = func(live.Event) {}
	}
}

// Handlers returns every tool whose collaborators are present.
func Handlers(d Deps) []tools.Handler {
	d.withDefaults()
	var hs []tools.Handler
	if d.Store != nil {
		hs = append(hs, memoryTools(&d)...)
	}
	if d.Host != nil {
		hs = append(hs, systemTools(&d)...)
	}
	hs = append(hs, webTools(&d)...)
	hs = append(hs, mediaTools(&d)...)
	hs = append(hs, turnOff(&d))
	return hs
}

// NewRegistry builds a registry holding Handlers(d).
func NewRegistry(d Deps) (*tools.Registry, error) {
	reg := tools.NewRegistry(Handlers(d)...)
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

func handler(decl *genai.FunctionDeclaration, fn func(ctx context.Context, call tools.Call) (tools.Result, error)) tools.Handler {
	return tools.Func{Decl: decl, Fn: fn}
}

func object(required []string, props map[string]*genai.Schema) *genai.Schema {
	if props == nil {
		props = map[string]*genai.Schema{}
	}
	return &genai.Schema{Type: genai.TypeObject, Properties: props, Required: required}
}

func str(desc string, enum ...string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: desc, Enum: enum}
}

func num(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeNumber, Description: desc}
}

func boolean(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeBoolean, Description: desc}
}

func emitArtifact(d *Deps, kind string, payload map[string]any) {
	d.Emit(&live.ArtifactEvent{Kind: kind, Payload: payload})
}

func turnOff(d *Deps) tools.Handler {
	return handler(&genai.FunctionDeclaration{
		Name:        "turn_off",
		Description: `Turns off the AI assistant and closes the live session. Use this when the user says "goodbye", "go to sleep", "turn off", or "I am done".`,
		Parameters:  object(nil, nil),
	}, func(ctx context.Context, _ tools.Call) (tools.Result, error) {
		res := tools.Payload(map[string]any{"success": true, "message": "Shutdown initiated."})
		if d.Shutdown != nil {
			res.FollowUp = func() { d.Shutdown(ctx, "turn_off") }
			res.After = d.TurnOffDelay
		}
		return res, nil
	})
}
