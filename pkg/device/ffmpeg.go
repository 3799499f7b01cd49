package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"

	"github.com/vango-go/nova-live/pkg/core/live"
)

// FFmpegMicrophone captures the default input device through an ffmpeg
// subprocess emitting s16le PCM on stdout.
type FFmpegMicrophone struct {
	Path   string
	GOOS   string
	Logger *slog.Logger
}

// FFmpegCaptureArgs returns the ffmpeg arguments for capturing the default
// input on goos.
func FFmpegCaptureArgs(goos string, format live.AudioFormat) ([]string, error) {
	var input []string
	switch goos {
	case "darwin":
		input = []string{"-f", "avfoundation", "-i", ":0"}
	case "linux":
		input = []string{"-f", "pulse", "-i", "default"}
	default:
		return nil, fmt.Errorf("ffmpeg capture is not implemented for %s; supported platforms: darwin, linux", goos)
	}
	args := []string{"-hide_banner", "-loglevel", "error"}
	args = append(args, input...)
	args = append(args,
		"-ac", strconv.Itoa(format.Channels),
		"-ar", strconv.Itoa(format.SampleRate),
		"-f", "s16le", "-",
	)
	return args, nil
}

func (m *FFmpegMicrophone) Open(ctx context.Context, format live.AudioFormat, frameSamples int) (live.MicStream, error) {
	path := m.Path
	if path == "" {
		path = "ffmpeg"
	}
	if _, err := exec.LookPath(path); err != nil {
		return nil, fmt.Errorf("ffmpeg is required for mic capture (install ffmpeg and ensure it is in PATH): %w", err)
	}
	args, err := FFmpegCaptureArgs(m.GOOS, format)
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, path, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg mic capture: %w", err)
	}
	return newPCMStream(stdout, func() error {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		_ = cmd.Wait()
		return nil
	}), nil
}

// pcmStream reads little-endian PCM16 from r into float frames.
type pcmStream struct {
	r       io.Reader
	raw     []byte
	closeFn func() error
	once    sync.Once
}

func newPCMStream(r io.Reader, closeFn func() error) *pcmStream {
	return &pcmStream{r: r, closeFn: closeFn}
}

func (s *pcmStream) Read(frame []float32) error {
	need := len(frame) * 2
	if cap(s.raw) < need {
		s.raw = make([]byte, need)
	}
	raw := s.raw[:need]
	if _, err := io.ReadFull(s.r, raw); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		}
		return err
	}
	for i := range frame {
		v := int16(uint16(raw[2*i]) | uint16(raw[2*i+1])<<8)
		frame[i] = float32(v) / 32768
	}
	return nil
}

func (s *pcmStream) Close() error {
	var err error
	s.once.Do(func() {
		if s.closeFn != nil {
			err = s.closeFn()
		}
	})
	return err
}

// ffplaySink pipes PCM16 to an ffplay subprocess.
type ffplaySink struct {
	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

func openFFplaySink(ctx context.Context, path string, rate int) (*ffplaySink, error) {
	if _, err := exec.LookPath(path); err != nil {
		return nil, fmt.Errorf("ffplay is required for playback (install ffmpeg/ffplay and ensure it is in PATH): %w", err)
	}
	cmd := exec.CommandContext(context.WithoutCancel(ctx), path, FFplayArgs(rate)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffplay stdin: %w", err)
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffplay: %w", err)
	}
	return &ffplaySink{cmd: cmd, stdin: stdin}, nil
}

// FFplayArgs returns the ffplay arguments for raw mono PCM16 at rate.
func FFplayArgs(rate int) []string {
	return []string{
		"-nodisp",
		"-autoexit",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(rate),
		"-ac", "1",
		"-i", "pipe:0",
	}
}

func (p *ffplaySink) Write(samples []float32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stdin == nil {
		return errors.New("ffplay stdin is closed")
	}
	_, err := p.stdin.Write(live.EncodePCM16(samples))
	return err
}

func (p *ffplaySink) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stdin != nil {
		_ = p.stdin.Close()
		p.stdin = nil
	}
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
		_ = p.cmd.Wait()
		p.cmd = nil
	}
	return nil
}
