package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

const (
	bitDepth16   = 16
	wavFormatPCM = 1
)

// Unit is an encoded segment materialised as a temporary WAV file. It lives
// only for the duration of one recognizer call; the owner must call Remove.
type Unit struct {
	Path       string
	SampleRate int
	NumSamples int
}

// Open returns the WAV file for reading.
func (u *Unit) Open() (*os.File, error) { return os.Open(u.Path) }

// Bytes returns the complete WAV container.
func (u *Unit) Bytes() ([]byte, error) { return os.ReadFile(u.Path) }

// Remove deletes the backing file. Removing twice is not an error.
func (u *Unit) Remove() error {
	if u == nil || u.Path == "" {
		return nil
	}
	if err := os.Remove(u.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// EncodeFile writes seg as a mono 16-bit PCM WAV file with a unique name in
// dir (os.TempDir when empty). The file is flushed and closed on return; on
// failure nothing is left behind.
func EncodeFile(dir string, seg Segment) (*Unit, error) {
	if seg.SampleRate <= 0 {
		return nil, fmt.Errorf("audio: encode: sample rate %d", seg.SampleRate)
	}
	if len(seg.Samples) == 0 {
		return nil, errors.New("audio: encode: empty segment")
	}
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "segment-"+uuid.NewString()+".wav")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audio: encode: %w", err)
	}

	fail := func(err error) (*Unit, error) {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("audio: encode: %w", err)
	}

	data := make([]int, len(seg.Samples))
	for i, s := range seg.Samples {
		data[i] = int(s)
	}
	enc := wav.NewEncoder(f, seg.SampleRate, bitDepth16, 1, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: seg.SampleRate},
		Data:           data,
		SourceBitDepth: bitDepth16,
	}
	if err := enc.Write(buf); err != nil {
		return fail(err)
	}
	// Close rewrites the RIFF sizes and syncs *os.File writers; it does not
	// close f.
	if err := enc.Close(); err != nil {
		return fail(err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("audio: encode: %w", err)
	}
	return &Unit{Path: path, SampleRate: seg.SampleRate, NumSamples: len(seg.Samples)}, nil
}

// Info describes a WAV container header.
type Info struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Format     int
}

// ProbeWAV reads only the container header.
func ProbeWAV(r io.ReadSeeker) (Info, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Info{}, errors.New("invalid wav file")
	}
	return Info{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
		Format:     int(dec.WavAudioFormat),
	}, nil
}

// ReadSegmentFile parses a mono 16-bit WAV file back into a Segment.
func ReadSegmentFile(path string) (Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return Segment{}, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Segment{}, errors.New("invalid wav file")
	}
	if dec.NumChans != 1 || dec.BitDepth != bitDepth16 {
		return Segment{}, fmt.Errorf("want mono 16-bit wav, got %d channels %d bits", dec.NumChans, dec.BitDepth)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil && err != io.EOF {
		return Segment{}, err
	}
	if buf == nil {
		return Segment{}, errors.New("empty wav buffer")
	}
	out := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		out[i] = int16(v)
	}
	return Segment{SampleRate: int(dec.SampleRate), Samples: out}, nil
}

// DecodeWAV decodes a small WAV blob into an interleaved float Frame.
func DecodeWAV(b []byte) (Frame, error) {
	dec := wav.NewDecoder(bytes.NewReader(b))
	if !dec.IsValidFile() {
		return Frame{}, errors.New("invalid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil && err != io.EOF {
		return Frame{}, err
	}
	if buf == nil {
		return Frame{}, errors.New("empty wav buffer")
	}
	depth := buf.SourceBitDepth
	if depth <= 0 {
		depth = bitDepth16
	}
	scale := float32(int(1) << (depth - 1))
	out := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		out[i] = float32(v) / scale
	}
	sr := int(dec.SampleRate)
	if sr == 0 && buf.Format != nil {
		sr = buf.Format.SampleRate
	}
	if sr == 0 {
		sr = 16000
	}
	ch := int(dec.NumChans)
	if ch <= 0 {
		ch = 1
	}
	return Frame{SampleRate: sr, Channels: ch, Samples: out}, nil
}

// DecodePCM16LE converts little-endian mono PCM16 bytes into a float Frame.
func DecodePCM16LE(b []byte, sampleRate int) (Frame, error) {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if len(b)%2 != 0 {
		return Frame{}, errors.New("pcm16 length must be even")
	}
	out := make([]float32, len(b)/2)
	for i := range out {
		v := int16(uint16(b[2*i]) | uint16(b[2*i+1])<<8)
		out[i] = float32(v) / 32768.0
	}
	return Frame{SampleRate: sampleRate, Channels: 1, Samples: out}, nil
}

// Float32 converts a segment back to float samples in [-1, 1).
func Float32(seg Segment) []float32 {
	out := make([]float32, len(seg.Samples))
	for i, v := range seg.Samples {
		out[i] = float32(v) / 32768.0
	}
	return out
}

// ResampleLinear resamples mono float samples from inRate to outRate using
// linear interpolation.
func ResampleLinear(samples []float32, inRate, outRate int) []float32 {
	if inRate == outRate {
		return append([]float32(nil), samples...)
	}
	if inRate <= 0 || outRate <= 0 || len(samples) == 0 {
		return samples
	}
	ratio := float64(outRate) / float64(inRate)
	outLen := int(float64(len(samples)) * ratio)
	if outLen < 1 {
		outLen = 1
	}
	out := make([]float32, outLen)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) / ratio
		i0 := int(pos)
		if i0 >= last {
			out[i] = samples[last]
			continue
		}
		frac := float32(pos - float64(i0))
		out[i] = samples[i0] + (samples[i0+1]-samples[i0])*frac
	}
	return out
}
