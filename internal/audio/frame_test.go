package audio

import (
	"math"
	"testing"
)

func TestDecode_SampleCountPerChannel(t *testing.T) {
	for _, ch := range []int{1, 2, 3, 6} {
		f := Frame{SampleRate: 48000, Channels: ch, Samples: make([]float32, 480*ch)}
		seg := Decode(f, SampleClamp)
		if seg.Len() != 480 {
			t.Errorf("channels=%d: got %d samples, want 480", ch, seg.Len())
		}
		if seg.SampleRate != 48000 {
			t.Errorf("channels=%d: sample rate %d, want 48000", ch, seg.SampleRate)
		}
	}
}

func TestDecode_AveragesChannels(t *testing.T) {
	f := Frame{
		SampleRate: 16000,
		Channels:   2,
		Samples:    []float32{1, 0, 0.5, -0.5, -1, -1, 0.25, 0.75},
	}
	seg := Decode(f, SampleClamp)
	want := []int16{16383, 0, -32767, 16383}
	if len(seg.Samples) != len(want) {
		t.Fatalf("got %d samples, want %d", len(seg.Samples), len(want))
	}
	for i := range want {
		if seg.Samples[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, seg.Samples[i], want[i])
		}
	}
}

func TestDecode_TruncatesTowardZero(t *testing.T) {
	seg := Decode(Frame{SampleRate: 8000, Channels: 1, Samples: []float32{0.5, -0.5}}, SampleClamp)
	if seg.Samples[0] != 16383 || seg.Samples[1] != -16383 {
		t.Fatalf("got %v, want [16383 -16383]", seg.Samples)
	}
}

func TestDecode_IgnoresPartialTimeIndex(t *testing.T) {
	seg := Decode(Frame{SampleRate: 8000, Channels: 2, Samples: []float32{0, 0, 0, 0, 0.3}}, SampleClamp)
	if seg.Len() != 2 {
		t.Fatalf("got %d samples, want 2", seg.Len())
	}
}

func TestDecode_DoesNotMutateInput(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3, 0.4}
	f := Frame{SampleRate: 8000, Channels: 2, Samples: in}
	_ = Decode(f, SampleWrap)
	want := []float32{0.1, 0.2, 0.3, 0.4}
	for i := range want {
		if in[i] != want[i] {
			t.Fatalf("input modified at %d: %v", i, in)
		}
	}
}

func TestDecode_OutOfRange(t *testing.T) {
	tests := []struct {
		name string
		mode SampleMode
		in   float32
		want int16
	}{
		{"clamp high", SampleClamp, 1.5, math.MaxInt16},
		{"clamp low", SampleClamp, -1.5, math.MinInt16},
		{"wrap high", SampleWrap, 1.5, -16386}, // 49150 - 65536
		{"wrap low", SampleWrap, -1.5, 16386},
		{"in range wrap", SampleWrap, 1, 32767},
		{"nan", SampleClamp, float32(math.NaN()), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seg := Decode(Frame{SampleRate: 8000, Channels: 1, Samples: []float32{tt.in}}, tt.mode)
			if seg.Samples[0] != tt.want {
				t.Errorf("got %d, want %d", seg.Samples[0], tt.want)
			}
		})
	}
}

func TestDecode_Silence(t *testing.T) {
	seg := Decode(Frame{SampleRate: 48000, Channels: 2, Samples: make([]float32, 96000)}, SampleClamp)
	if seg.Len() != 48000 {
		t.Fatalf("got %d samples", seg.Len())
	}
	for i, s := range seg.Samples {
		if s != 0 {
			t.Fatalf("sample %d = %d, want 0", i, s)
		}
	}
	if d := seg.Duration().Seconds(); d != 1 {
		t.Errorf("duration %v, want 1s", seg.Duration())
	}
}

func TestFrame_Validate(t *testing.T) {
	if err := (Frame{SampleRate: 16000, Channels: 1}).Validate(); err != nil {
		t.Errorf("valid frame: %v", err)
	}
	if err := (Frame{SampleRate: 0, Channels: 1}).Validate(); err == nil {
		t.Error("expected error for zero sample rate")
	}
	if err := (Frame{SampleRate: 16000, Channels: 0}).Validate(); err == nil {
		t.Error("expected error for zero channels")
	}
}

func TestParseSampleMode(t *testing.T) {
	if m, err := ParseSampleMode("wrap"); err != nil || m != SampleWrap {
		t.Errorf("wrap: %v %v", m, err)
	}
	if m, err := ParseSampleMode(""); err != nil || m != SampleClamp {
		t.Errorf("empty: %v %v", m, err)
	}
	if _, err := ParseSampleMode("round"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestFloat32LE(t *testing.T) {
	in := []float32{0, 1, -1, 0.25, -0.125}
	out, err := DecodeFloat32LE(EncodeFloat32LE(in))
	if err != nil {
		t.Fatal(err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d = %v, want %v", i, out[i], in[i])
		}
	}
	if _, err := DecodeFloat32LE([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated payload")
	}
}
