//go:build !cgo

package device

import (
	"context"
	"errors"

	"github.com/vango-go/nova-live/pkg/core/live"
)

var errNoCgo = errors.New("portaudio backend requires cgo")

func portAudioAvailable() bool { return false }

// PortAudioMicrophone is unavailable without cgo.
type PortAudioMicrophone struct{}

func (PortAudioMicrophone) Open(context.Context, live.AudioFormat, int) (live.MicStream, error) {
	return nil, errNoCgo
}

func openPortAudioSink(int, int) (Sink, error) { return nil, errNoCgo }
