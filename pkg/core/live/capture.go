package live

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Microphone acquires capture streams. Open may block on a permission prompt
// and must return when ctx is canceled.
type Microphone interface {
	Open(ctx context.Context, format AudioFormat, frameSamples int) (MicStream, error)
}

// MicStream delivers interleaved float samples.
type MicStream interface {
	// Read blocks until frame is filled.
	Read(frame []float32) error
	Close() error
}

// CaptureConfig configures a Capture pipeline.
type CaptureConfig struct {
	// SampleRate is the rate the stream is opened at. Default: 16000.
	SampleRate int
	// Channels is the device channel count before downmix. Default: 1.
	Channels int
	// FrameSamples is the mono frame size handed to OnFrame. Default: 512.
	FrameSamples int

	// OnFrame receives each encoded frame. It runs on the capture goroutine and must not block.
	OnFrame func(b64 string)
	// OnError is invoked when the device cannot be opened or fails mid-stream.
	OnError func(error)

	StopTimeout time.Duration
	Logger      *slog.Logger
}

// Capture turns a microphone stream into fixed-size PCM16 frames.
type Capture struct {
	mic Microphone
	cfg CaptureConfig

	muted atomic.Bool
	level atomic.Uint64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	stream  MicStream
	done    chan struct{}
}

// NewCapture creates a capture pipeline over mic.
func NewCapture(mic Microphone, cfg CaptureConfig) *Capture {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = InputSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.FrameSamples <= 0 {
		cfg.FrameSamples = CaptureFrameSamples
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Capture{mic: mic, cfg: cfg}
}

// Start acquires the microphone on a background goroutine and begins producing frames.
// It returns immediately; open failures are reported through OnError.
func (c *Capture) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running || c.mic == nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.running = true
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx, c.done)
}

func (c *Capture) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	format := AudioFormat{SampleRate: c.cfg.SampleRate, Channels: c.cfg.Channels}
	stream, err := c.mic.Open(ctx, format, c.cfg.FrameSamples)
	if err != nil {
		if ctx.Err() == nil {
			c.fail(err)
		}
		return
	}

	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		_ = stream.Close()
		return
	}
	c.stream = stream
	c.mu.Unlock()

	raw := make([]float32, c.cfg.FrameSamples*c.cfg.Channels)
	mono := make([]float32, 0, c.cfg.FrameSamples)
	for {
		if err := stream.Read(raw); err != nil {
			if ctx.Err() == nil {
				c.fail(err)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		mono = Downmix(mono, raw, c.cfg.Channels)
		c.level.Store(math.Float64bits(RMS(mono)))
		if c.muted.Load() {
			continue
		}
		if c.cfg.OnFrame != nil {
			c.cfg.OnFrame(EncodeFrame(mono))
		}
	}
}

func (c *Capture) fail(err error) {
	c.cfg.Logger.Warn("microphone capture failed", "error", err)
	if c.cfg.OnError != nil {
		c.cfg.OnError(err)
	}
}

// Stop releases the microphone. It is idempotent.
func (c *Capture) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel, stream, done := c.cancel, c.stream, c.done
	c.cancel, c.stream, c.done = nil, nil, nil
	c.mu.Unlock()

	cancel()
	if stream != nil {
		if err := stream.Close(); err != nil && !errors.Is(err, context.Canceled) {
			c.cfg.Logger.Debug("microphone close", "error", err)
		}
	}
	select {
	case <-done:
	case <-time.After(c.cfg.StopTimeout):
		c.cfg.Logger.Warn("microphone capture did not stop in time")
	}
	c.level.Store(0)
}

// SetMuted toggles the soft mute. Muted frames are read and discarded.
func (c *Capture) SetMuted(muted bool) {
	c.muted.Store(muted)
}

// Muted reports the soft mute state.
func (c *Capture) Muted() bool {
	return c.muted.Load()
}

// Running reports whether the hardware stream is held.
func (c *Capture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Level returns the RMS level of the last captured frame.
func (c *Capture) Level() float64 {
	return math.Float64frombits(c.level.Load())
}
