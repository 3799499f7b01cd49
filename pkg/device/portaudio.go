//go:build cgo

package device

import (
	"context"
	"errors"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/vango-go/nova-live/pkg/core/live"
)

func portAudioAvailable() bool {
	if err := portaudio.Initialize(); err != nil {
		return false
	}
	defer portaudio.Terminate()
	_, err := portaudio.DefaultOutputDevice()
	return err == nil
}

// PortAudioMicrophone opens the default input device through PortAudio.
type PortAudioMicrophone struct{}

func (PortAudioMicrophone) Open(ctx context.Context, format live.AudioFormat, frameSamples int) (live.MicStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	buf := make([]float32, frameSamples*format.Channels)
	stream, err := portaudio.OpenDefaultStream(format.Channels, 0, float64(format.SampleRate), frameSamples, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, err
	}
	return &paStream{stream: stream, buf: buf}, nil
}

// paStream serializes Read and Close; a PortAudio stream must not be read
// after it is closed.
type paStream struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []float32
}

func (s *paStream) Read(frame []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return errors.New("portaudio: stream closed")
	}
	if err := s.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return err
	}
	copy(frame, s.buf)
	return nil
}

func (s *paStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return nil
	}
	err := s.stream.Stop()
	if closeErr := s.stream.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	s.stream = nil
	portaudio.Terminate()
	return err
}

type paSink struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []float32
}

func openPortAudioSink(rate, block int) (Sink, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	buf := make([]float32, block)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(rate), block, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, err
	}
	return &paSink{stream: stream, buf: buf}, nil
}

func (s *paSink) Write(samples []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return errors.New("portaudio: stream closed")
	}
	n := copy(s.buf, samples)
	clear(s.buf[n:])
	if err := s.stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
		return err
	}
	return nil
}

func (s *paSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return nil
	}
	err := s.stream.Stop()
	if closeErr := s.stream.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	s.stream = nil
	portaudio.Terminate()
	return err
}
