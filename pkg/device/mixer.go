package device

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vango-go/nova-live/pkg/core/live"
)

// Sink consumes rendered mono float samples at the mixer's rate.
type Sink interface {
	// Write plays samples. Blocking sinks pace the mixer clock.
	Write(samples []float32) error
	Close() error
}

// Mixer is a sample-clocked live.Output. Scheduled buffers are resampled to
// the device rate and summed into blocks pulled by Render.
type Mixer struct {
	rate int

	mu     sync.Mutex
	frames int64
	voices map[uint64]*voice
	seq    uint64
}

type voice struct {
	id      uint64
	start   int64
	samples []float32
	onEnded func()
}

// NewMixer creates a mono mixer running at rate.
func NewMixer(rate int) *Mixer {
	if rate <= 0 {
		rate = live.OutputSampleRate
	}
	return &Mixer{rate: rate, voices: map[uint64]*voice{}}
}

// Rate returns the device sample rate.
func (m *Mixer) Rate() int { return m.rate }

// Now returns the amount of audio rendered so far.
func (m *Mixer) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.toDuration(m.frames)
}

func (m *Mixer) toDuration(frames int64) time.Duration {
	return time.Duration(frames) * time.Second / time.Duration(m.rate)
}

func (m *Mixer) toFrames(d time.Duration) int64 {
	return int64(d) * int64(m.rate) / int64(time.Second)
}

// Schedule places buf on the timeline at clock position at. Positions in the
// past start immediately.
func (m *Mixer) Schedule(buf *live.Buffer, at time.Duration, onEnded func()) (live.Source, error) {
	if buf == nil || buf.Frames() == 0 {
		return nil, errors.New("device: empty buffer")
	}
	mono := live.Downmix(nil, interleave(buf), buf.Channels())
	mono = Resample(mono, buf.SampleRate, m.rate)

	m.mu.Lock()
	defer m.mu.Unlock()
	start := m.toFrames(at)
	if start < m.frames {
		start = m.frames
	}
	m.seq++
	v := &voice{id: m.seq, start: start, samples: mono, onEnded: onEnded}
	m.voices[v.id] = v
	return &mixerSource{m: m, id: v.id}, nil
}

// Render mixes the next len(dst) frames into dst and advances the clock.
// Voices that finish inside the block have onEnded called on a new goroutine.
func (m *Mixer) Render(dst []float32) {
	clear(dst)
	m.mu.Lock()
	from := m.frames
	to := from + int64(len(dst))
	var ended []func()
	for id, v := range m.voices {
		end := v.start + int64(len(v.samples))
		if v.start < to && end > from {
			lo := max(v.start, from)
			hi := min(end, to)
			for f := lo; f < hi; f++ {
				dst[f-from] += v.samples[f-v.start]
			}
		}
		if end <= to {
			delete(m.voices, id)
			if v.onEnded != nil {
				ended = append(ended, v.onEnded)
			}
		}
	}
	m.frames = to
	m.mu.Unlock()

	for i, s := range dst {
		if s > 1 {
			dst[i] = 1
		} else if s < -1 {
			dst[i] = -1
		}
	}
	for _, fn := range ended {
		go fn()
	}
}

// Pending reports how many voices are scheduled or playing.
func (m *Mixer) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

func (m *Mixer) stop(id uint64) {
	m.mu.Lock()
	delete(m.voices, id)
	m.mu.Unlock()
}

type mixerSource struct {
	m  *Mixer
	id uint64
}

// Stop removes the voice without calling its onEnded.
func (s *mixerSource) Stop() { s.m.stop(s.id) }

// Pump renders block-sized chunks into sink until ctx is done. When pace is
// positive a ticker paces rendering; otherwise the sink's blocking Write does.
func (m *Mixer) Pump(ctx context.Context, sink Sink, block int, pace time.Duration) error {
	if block <= 0 {
		block = m.rate / 50
	}
	buf := make([]float32, block)
	var tick <-chan time.Time
	if pace > 0 {
		t := time.NewTicker(pace)
		defer t.Stop()
		tick = t.C
	}
	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		m.Render(buf)
		if err := sink.Write(buf); err != nil {
			return err
		}
	}
}

func interleave(buf *live.Buffer) []float32 {
	ch := buf.Channels()
	if ch == 1 {
		return buf.Data[0]
	}
	n := buf.Frames()
	out := make([]float32, n*ch)
	for i := 0; i < n; i++ {
		for c := 0; c < ch; c++ {
			out[i*ch+c] = buf.Data[c][i]
		}
	}
	return out
}

// Resample converts mono samples between rates by linear interpolation.
func Resample(in []float32, from, to int) []float32 {
	if from <= 0 || to <= 0 || from == to || len(in) == 0 {
		return in
	}
	n := int(int64(len(in)) * int64(to) / int64(from))
	if n == 0 {
		return nil
	}
	out := make([]float32, n)
	step := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = in[j]*(1-frac) + in[j+1]*frac
	}
	return out
}
