package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/vango-go/nova-live/pkg/assistant"
	"github.com/vango-go/nova-live/pkg/config"
	"github.com/vango-go/nova-live/pkg/device"
	"github.com/vango-go/nova-live/pkg/host"
	"github.com/vango-go/nova-live/pkg/store"
	"github.com/vango-go/nova-live/pkg/tools"
	"github.com/vango-go/nova-live/pkg/tools/builtin"
	"github.com/vango-go/nova-live/pkg/tools/policy"
	"github.com/vango-go/nova-live/pkg/tools/safety"
)

// appOptions select the collaborators newAssistant wires.
type appOptions struct {
	audio     config.AudioBackend
	confirmer tools.Confirmer
	host      host.Host
}

// newGate prepares the tool policy from the configuration.
func newGate(ctx context.Context, cfg config.Config) (tools.Gate, error) {
	settings := policy.Settings{AllowShell: cfg.AllowShell, ConfirmMessages: cfg.ConfirmMessages}
	if cfg.PolicyFile != "" {
		return policy.LoadFile(ctx, cfg.PolicyFile, settings)
	}
	return policy.NewEngine(ctx, "", settings)
}

func audioFactory(cfg config.Config, backend config.AudioBackend, logger *slog.Logger) func(context.Context) (assistant.AudioEngine, error) {
	if backend == config.AudioNone {
		return nil
	}
	dcfg := device.Config{
		Backend:    device.Backend(backend),
		FFmpegPath: cfg.FFmpegPath,
		FFplayPath: cfg.FFplayPath,
		Logger:     logger,
	}
	return func(ctx context.Context) (assistant.AudioEngine, error) {
		e, err := device.Open(ctx, dcfg)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
}

// builtinDeps assembles the tool collaborators. imager may be nil.
func builtinDeps(cfg config.Config, st *store.Store, h host.Host, imager host.ImageGenerator, logger *slog.Logger) builtin.Deps {
	guard := safety.Guard{AllowPrivate: cfg.AllowPrivateHTTP}
	d := builtin.Deps{
		Store:        st,
		Host:         h,
		Messenger:    &host.WhatsAppDesktop{Host: h},
		HTTP:         guard.NewRestrictedHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		TurnOffDelay: cfg.TurnOffDelay,
		HTTPTimeout:  cfg.HTTPTimeout,
		Logger:       logger,
	}
	if imager != nil {
		d.Images = imager
	}
	return d
}

// newAssistant wires the store, credentials, host, tool gate and audio
// engine into an Assistant.
func newAssistant(ctx context.Context, cfg config.Config, st *store.Store, opts appOptions, logger *slog.Logger) (*assistant.Assistant, error) {
	persona, err := config.LoadPersona(cfg.PersonaFile)
	if err != nil {
		return nil, err
	}
	gate, err := newGate(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tool policy: %w", err)
	}
	creds := credentialProvider(cfg, st, logger)

	h := opts.host
	if h == nil {
		h = host.New(host.Config{Logger: logger})
	}

	var imager host.ImageGenerator
	if key, _, err := creds.Resolve(ctx); err == nil {
		g, err := host.NewGeminiImager(ctx, key, "")
		if err != nil {
			logger.Warn("image generation unavailable", "error", err)
		} else {
			imager = g
		}
	}

	return assistant.New(assistant.Dependencies{
		Config:  assistant.ConfigFrom(cfg),
		Persona: persona,
		Store:   st,
		APIKey: func(ctx context.Context) (string, error) {
			key, source, err := creds.Resolve(ctx)
			if err == nil {
				logger.Debug("api key resolved", "source", source)
			}
			return key, err
		},
		Audio: audioFactory(cfg, opts.audio, logger),
		Tools: func(a *assistant.Assistant) (*tools.Registry, error) {
			d := builtinDeps(cfg, st, h, imager, logger)
			d.Attachments = a
			d.Turns = a
			d.Shutdown = a.Shutdown
			d.Emit = a.Publish
			return builtin.NewRegistry(d)
		},
		Gate:      gate,
		Confirmer: opts.confirmer,
		Logger:    logger,
	})
}
