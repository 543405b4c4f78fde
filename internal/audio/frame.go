package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidFrame is returned for frames that cannot be decoded at all.
var ErrInvalidFrame = errors.New("audio: invalid frame")

// Frame is one delivery unit of raw audio from the transport: interleaved
// float samples in [-1, 1], len(Samples) == frameLength*Channels.
type Frame struct {
	SampleRate int
	Channels   int
	Samples    []float32
}

// Validate reports whether the frame describes decodable audio.
func (f Frame) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidFrame, f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("%w: channel count %d", ErrInvalidFrame, f.Channels)
	}
	return nil
}

// FrameLength returns the number of whole time indices (per-channel samples).
func (f Frame) FrameLength() int {
	if f.Channels <= 0 {
		return 0
	}
	return len(f.Samples) / f.Channels
}

// Segment is mono 16-bit PCM at the sample rate of the frame(s) it came from.
type Segment struct {
	SampleRate int
	Samples    []int16
}

func (s Segment) Len() int { return len(s.Samples) }

func (s Segment) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(s.Samples)) * time.Second / time.Duration(s.SampleRate)
}

// SampleMode selects how out-of-range float samples are mapped to int16.
type SampleMode int

const (
	// SampleClamp saturates at the int16 limits.
	SampleClamp SampleMode = iota
	// SampleWrap keeps native 16-bit two's complement wrap-around.
	SampleWrap
)

func (m SampleMode) String() string {
	switch m {
	case SampleClamp:
		return "clamp"
	case SampleWrap:
		return "wrap"
	default:
		return "unknown"
	}
}

// ParseSampleMode maps "clamp" / "wrap" to a SampleMode.
func ParseSampleMode(s string) (SampleMode, error) {
	switch s {
	case "", "clamp":
		return SampleClamp, nil
	case "wrap":
		return SampleWrap, nil
	default:
		return SampleClamp, fmt.Errorf("audio: unknown sample mode %q", s)
	}
}

// Decode collapses f to mono by averaging channels at each time index and
// converts every sample with trunc(s*32767). Trailing samples that do not
// fill a whole time index are ignored. f is not modified.
func Decode(f Frame, mode SampleMode) Segment {
	ch := f.Channels
	if ch <= 0 {
		ch = 1
	}
	n := len(f.Samples) / ch
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		var v float64
		if ch == 1 {
			v = float64(f.Samples[i])
		} else {
			var sum float64
			for c := 0; c < ch; c++ {
				sum += float64(f.Samples[i*ch+c])
			}
			v = sum / float64(ch)
		}
		out[i] = toInt16(v*32767, mode)
	}
	return Segment{SampleRate: f.SampleRate, Samples: out}
}

func toInt16(v float64, mode SampleMode) int16 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Trunc(v)
	if mode == SampleClamp {
		if v > math.MaxInt16 {
			return math.MaxInt16
		}
		if v < math.MinInt16 {
			return math.MinInt16
		}
		return int16(v)
	}
	// float→int conversion is implementation-defined out of range, so go
	// through int64 first and let the narrowing wrap.
	if v > math.MaxInt64 || v < math.MinInt64 {
		return 0
	}
	return int16(int64(v))
}

// DecodeFloat32LE interprets b as little-endian IEEE-754 float32 samples,
// the binary frame encoding used by the websocket transport.
func DecodeFloat32LE(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, errors.New("float32 payload length must be a multiple of 4")
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out, nil
}

// EncodeFloat32LE is the inverse of DecodeFloat32LE.
func EncodeFloat32LE(samples []float32) []byte {
	out := make([]byte, 4*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(s))
	}
	return out
}
