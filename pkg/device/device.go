// Package device binds the live audio pipeline to real hardware: a microphone
// for capture and a clocked mixer feeding the speakers.
package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/vango-go/nova-live/pkg/core/live"
)

// Backend names an audio implementation.
type Backend string

const (
	BackendAuto      Backend = "auto"
	BackendPortAudio Backend = "portaudio"
	BackendFFmpeg    Backend = "ffmpeg"
	BackendNone      Backend = "none"
)

// ErrNoDevice is returned by microphones that have no hardware behind them.
var ErrNoDevice = errors.New("device: no audio device available")

// Config selects and configures the audio backend.
type Config struct {
	Backend Backend
	// OutputRate is the speaker rate. Default: 24000.
	OutputRate int
	// Block is the number of frames rendered per pump iteration. Default: 20 ms.
	Block int

	FFmpegPath string
	FFplayPath string
	GOOS       string

	LookPath func(string) (string, error)
	Logger   *slog.Logger
}

func (c *Config) withDefaults() {
	if c.Backend == "" {
		c.Backend = BackendAuto
	}
	if c.OutputRate <= 0 {
		c.OutputRate = live.OutputSampleRate
	}
	if c.Block <= 0 {
		c.Block = c.OutputRate / 50
	}
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.FFplayPath == "" {
		c.FFplayPath = "ffplay"
	}
	if c.GOOS == "" {
		c.GOOS = runtime.GOOS
	}
	if c.LookPath == nil {
		c.LookPath = exec.LookPath
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Engine is an opened microphone and speaker pair. One Engine is owned by
// each connected session.
type Engine struct {
	backend Backend
	mic     live.Microphone
	mixer   *Mixer

	sink   Sink
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

// Backend returns the backend in use.
func (e *Engine) Backend() Backend { return e.backend }

// Microphone returns the capture device.
func (e *Engine) Microphone() live.Microphone { return e.mic }

// Output returns the playback timeline.
func (e *Engine) Output() live.Output { return e.mixer }

// Mixer returns the output mixer.
func (e *Engine) Mixer() *Mixer { return e.mixer }

// Resolve picks the concrete backend for cfg.Backend.
func Resolve(cfg Config) Backend {
	cfg.withDefaults()
	if cfg.Backend != BackendAuto {
		return cfg.Backend
	}
	if portAudioAvailable() {
		return BackendPortAudio
	}
	if _, err := cfg.LookPath(cfg.FFmpegPath); err == nil {
		if _, err := cfg.LookPath(cfg.FFplayPath); err == nil {
			return BackendFFmpeg
		}
	}
	return BackendNone
}

// Open starts the selected backend. The speaker pump runs until Close.
func Open(ctx context.Context, cfg Config) (*Engine, error) {
	cfg.withDefaults()
	backend := Resolve(cfg)

	var (
		mic  live.Microphone
		sink Sink
		pace time.Duration
		err  error
	)
	switch backend {
	case BackendPortAudio:
		mic = PortAudioMicrophone{}
		sink, err = openPortAudioSink(cfg.OutputRate, cfg.Block)
	case BackendFFmpeg:
		mic = &FFmpegMicrophone{Path: cfg.FFmpegPath, GOOS: cfg.GOOS, Logger: cfg.Logger}
		sink, err = openFFplaySink(ctx, cfg.FFplayPath, cfg.OutputRate)
		pace = time.Duration(cfg.Block) * time.Second / time.Duration(cfg.OutputRate)
	case BackendNone:
		mic = NullMicrophone{}
		sink = discardSink{}
		pace = time.Duration(cfg.Block) * time.Second / time.Duration(cfg.OutputRate)
	default:
		return nil, fmt.Errorf("device: unknown backend %q", backend)
	}
	if err != nil {
		return nil, fmt.Errorf("device: open %s output: %w", backend, err)
	}

	pumpCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e := &Engine{
		backend: backend,
		mic:     mic,
		mixer:   NewMixer(cfg.OutputRate),
		sink:    sink,
		cancel:  cancel,
		done:    make(chan struct{}),
		logger:  cfg.Logger,
	}
	go func() {
		defer close(e.done)
		if err := e.mixer.Pump(pumpCtx, sink, cfg.Block, pace); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Warn("audio output stopped", "backend", backend, "error", err)
		}
	}()
	cfg.Logger.Info("audio engine opened", "backend", backend, "output_rate", cfg.OutputRate)
	return e, nil
}

// Close stops the speaker pump and releases the output device. It is idempotent.
func (e *Engine) Close() error {
	var err error
	e.once.Do(func() {
		e.cancel()
		select {
		case <-e.done:
		case <-time.After(2 * time.Second):
			e.logger.Warn("audio output did not stop in time")
		}
		err = e.sink.Close()
	})
	return err
}

// ParseBackend normalizes a backend name.
func ParseBackend(s string) (Backend, error) {
	b := Backend(strings.ToLower(strings.TrimSpace(s)))
	switch b {
	case "":
		return BackendAuto, nil
	case BackendAuto, BackendPortAudio, BackendFFmpeg, BackendNone:
		return b, nil
	}
	return "", fmt.Errorf("unknown audio backend %q", s)
}

// NullMicrophone has no hardware. Open always fails with ErrNoDevice.
type NullMicrophone struct{}

func (NullMicrophone) Open(context.Context, live.AudioFormat, int) (live.MicStream, error) {
	return nil, ErrNoDevice
}

type discardSink struct{}

func (discardSink) Write([]float32) error { return nil }
func (discardSink) Close() error          { return nil }
