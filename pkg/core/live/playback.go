package live

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultUnderrunMargin is the lead time applied when the cursor falls behind the output clock.
const DefaultUnderrunMargin = 50 * time.Millisecond

// ErrNoOutput is returned by players that currently have no output device.
// The reconciler drops such chunks silently.
var ErrNoOutput = errors.New("live: no audio output")

// Output is an audio output timeline. Schedule must not invoke onEnded synchronously.
type Output interface {
	// Now returns the current position of the output clock.
	Now() time.Duration
	// Schedule starts buf at the given clock position.
	Schedule(buf *Buffer, at time.Duration, onEnded func()) (Source, error)
}

// Source is one scheduled buffer on an Output.
type Source interface {
	Stop()
}

// PlaybackConfig configures a Scheduler.
type PlaybackConfig struct {
	SampleRate int
	Channels   int
	Margin     time.Duration

	OnSpeakingStarted func()
	OnSpeakingEnded   func()

	Logger *slog.Logger
}

// Scheduler places arriving audio chunks back to back on an Output timeline.
type Scheduler struct {
	cfg PlaybackConfig
	out Output

	mu         sync.Mutex
	next       time.Duration
	sources    map[uint64]Source
	seq        uint64
	generation uint64
	speaking   bool
	level      Level
}

// NewScheduler creates a playback scheduler for out.
func NewScheduler(out Output, cfg PlaybackConfig) *Scheduler {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = OutputSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.Margin <= 0 {
		cfg.Margin = DefaultUnderrunMargin
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{
		cfg:     cfg,
		out:     out,
		sources: make(map[uint64]Source),
	}
}

// Enqueue decodes a PCM16 chunk and schedules it at the cursor.
// It returns the start time assigned to the chunk.
func (s *Scheduler) Enqueue(pcm []byte) (time.Duration, error) {
	buf, err := DecodeAudioBuffer(pcm, s.cfg.SampleRate, s.cfg.Channels)
	if err != nil {
		return 0, err
	}
	if buf.Frames() == 0 {
		return 0, nil
	}

	s.mu.Lock()
	now := s.out.Now()
	if s.next < now {
		s.next = now + s.cfg.Margin
	}
	start := s.next

	s.seq++
	id := s.seq
	gen := s.generation
	src, err := s.out.Schedule(buf, start, func() { s.sourceEnded(id, gen) })
	if err != nil {
		s.mu.Unlock()
		return 0, err
	}
	s.sources[id] = src
	s.next = start + buf.Duration()
	s.level = PCMLevel(pcm)

	started := !s.speaking
	s.speaking = true
	s.mu.Unlock()

	if started && s.cfg.OnSpeakingStarted != nil {
		s.cfg.OnSpeakingStarted()
	}
	return start, nil
}

func (s *Scheduler) sourceEnded(id, gen uint64) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	if _, ok := s.sources[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.sources, id)
	ended := len(s.sources) == 0 && s.speaking
	if ended {
		s.speaking = false
		s.level = Level{}
	}
	s.mu.Unlock()

	if ended && s.cfg.OnSpeakingEnded != nil {
		s.cfg.OnSpeakingEnded()
	}
}

// Clear stops and discards every scheduled source and resets the cursor to zero.
// It is safe to call at any time, including on a scheduler with nothing queued.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	sources := s.sources
	s.sources = make(map[uint64]Source)
	s.generation++
	s.next = 0
	wasSpeaking := s.speaking
	s.speaking = false
	s.level = Level{}
	s.mu.Unlock()

	for _, src := range sources {
		stopQuietly(src, s.cfg.Logger)
	}
	if wasSpeaking && s.cfg.OnSpeakingEnded != nil {
		s.cfg.OnSpeakingEnded()
	}
}

func stopQuietly(src Source, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("playback source stop panicked", "panic", r)
		}
	}()
	if src != nil {
		src.Stop()
	}
}

// Active returns the number of scheduled or playing sources.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sources)
}

// Speaking reports whether any source is scheduled or playing.
func (s *Scheduler) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// Next returns the cursor where the next chunk will start.
func (s *Scheduler) Next() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Level returns the loudness of the most recently scheduled chunk, or zero
// once playback has drained or been cleared.
func (s *Scheduler) Level() Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}
