package live

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/vango-go/nova-live/pkg/core"
)

const (
	// InputSampleRate is the capture rate expected by the model.
	InputSampleRate = 16000
	// OutputSampleRate is the rate of audio chunks sent by the model.
	OutputSampleRate = 24000
	// CaptureFrameSamples is the number of mono samples in one outbound frame.
	CaptureFrameSamples = 512

	// InputMIMEType labels outbound realtime audio frames.
	InputMIMEType = "audio/pcm;rate=16000"
)

// AudioFormat specifies PCM16 audio format parameters.
type AudioFormat struct {
	SampleRate int `json:"sample_rate"`
	Channels   int `json:"channels"`
}

// Buffer is decoded, deinterleaved audio with its declared sample rate.
// The rate is the source rate; output backends resample when their device differs.
type Buffer struct {
	SampleRate int
	Data       [][]float32
}

// Channels returns the channel count.
func (b *Buffer) Channels() int {
	if b == nil {
		return 0
	}
	return len(b.Data)
}

// Frames returns the number of sample frames per channel.
func (b *Buffer) Frames() int {
	if b == nil || len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

// Duration returns the buffer's playback length at its declared rate.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// EncodePCM16 clamps samples to [-1,1] and packs them as little-endian int16.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(s * 32768)
		} else {
			v = int16(s * 32767)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// EncodeFrame converts float samples into base64 PCM16 for the realtime input channel.
func EncodeFrame(samples []float32) string {
	return base64.StdEncoding.EncodeToString(EncodePCM16(samples))
}

// DecodePCM16 normalizes little-endian int16 samples to float32 by dividing by 32768.
func DecodePCM16(pcm []byte) ([]float32, error) {
	if len(pcm)%2 != 0 {
		return nil, core.NewDecodeError(fmt.Sprintf("pcm16 payload has odd byte length %d", len(pcm)), nil)
	}
	out := make([]float32, len(pcm)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(v) / 32768
	}
	return out, nil
}

// DecodeFrame decodes base64 PCM16 into normalized samples.
func DecodeFrame(b64 string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, core.NewDecodeError("invalid base64 audio payload", err)
	}
	return DecodePCM16(raw)
}

// DecodeAudioBuffer builds a playable buffer from interleaved PCM16 bytes.
func DecodeAudioBuffer(pcm []byte, sampleRate, channels int) (*Buffer, error) {
	if channels <= 0 {
		channels = 1
	}
	if sampleRate <= 0 {
		return nil, core.NewDecodeError(fmt.Sprintf("invalid sample rate %d", sampleRate), nil)
	}
	if len(pcm)%(2*channels) != 0 {
		return nil, core.NewDecodeError(fmt.Sprintf("pcm16 payload of %d bytes is not a whole number of %d-channel frames", len(pcm), channels), nil)
	}
	samples, err := DecodePCM16(pcm)
	if err != nil {
		return nil, err
	}
	frames := len(samples) / channels
	buf := &Buffer{SampleRate: sampleRate, Data: make([][]float32, channels)}
	for ch := range buf.Data {
		buf.Data[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			buf.Data[ch][i] = samples[i*channels+ch]
		}
	}
	return buf, nil
}

// Level is the loudness of a chunk of audio, both values in [0, 1].
type Level struct {
	RMS  float64 `json:"rms"`
	Peak float64 `json:"peak"`
}

// PCMLevel measures little-endian PCM16 audio. A trailing odd byte is ignored.
func PCMLevel(pcm []byte) Level {
	n := len(pcm) / 2
	if n == 0 {
		return Level{}
	}
	var sum, peak float64
	for i := 0; i < n; i++ {
		// float64 so that negating -32768 cannot overflow
		v := float64(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) / 32768
		sum += v * v
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	return Level{RMS: math.Sqrt(sum / float64(n)), Peak: peak}
}

// RMS returns the root-mean-square level of float samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Downmix averages interleaved multi-channel samples to mono, reusing dst's storage.
func Downmix(dst, src []float32, channels int) []float32 {
	if channels <= 1 {
		return append(dst[:0], src...)
	}
	frames := len(src) / channels
	dst = dst[:0]
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += src[i*channels+ch]
		}
		dst = append(dst, sum/float32(channels))
	}
	return dst
}
