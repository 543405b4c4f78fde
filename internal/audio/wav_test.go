package audio

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testSegment(rate, n int) Segment {
	s := make([]int16, n)
	for i := range s {
		s[i] = int16((i*733)%65536 - 32768)
	}
	return Segment{SampleRate: rate, Samples: s}
}

func TestEncodeFile_Header(t *testing.T) {
	for _, rate := range []int{8000, 16000, 44100, 48000} {
		u, err := EncodeFile(t.TempDir(), testSegment(rate, 1000))
		if err != nil {
			t.Fatalf("EncodeFile(%d): %v", rate, err)
		}
		f, err := u.Open()
		if err != nil {
			t.Fatal(err)
		}
		info, err := ProbeWAV(f)
		f.Close()
		if err != nil {
			t.Fatalf("ProbeWAV: %v", err)
		}
		if info.SampleRate != rate || info.Channels != 1 || info.BitDepth != 16 || info.Format != 1 {
			t.Errorf("rate %d: got %+v", rate, info)
		}
		if u.SampleRate != rate || u.NumSamples != 1000 {
			t.Errorf("unit = %+v", u)
		}
	}
}

func TestEncodeFile_RoundTrip(t *testing.T) {
	seg := testSegment(22050, 4097)
	u, err := EncodeFile(t.TempDir(), seg)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ReadSegmentFile(u.Path)
	if err != nil {
		t.Fatalf("ReadSegmentFile: %v", err)
	}
	if got.SampleRate != seg.SampleRate {
		t.Errorf("sample rate %d, want %d", got.SampleRate, seg.SampleRate)
	}
	if len(got.Samples) != len(seg.Samples) {
		t.Fatalf("got %d samples, want %d", len(got.Samples), len(seg.Samples))
	}
	for i := range seg.Samples {
		if got.Samples[i] != seg.Samples[i] {
			t.Fatalf("sample %d = %d, want %d", i, got.Samples[i], seg.Samples[i])
		}
	}
}

func TestEncodeFile_PayloadBytes(t *testing.T) {
	seg := testSegment(16000, 321)
	u, err := EncodeFile(t.TempDir(), seg)
	if err != nil {
		t.Fatal(err)
	}
	b, err := u.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		t.Fatalf("bad container magic %q %q", b[0:4], b[8:12])
	}
	payload := b[len(b)-2*len(seg.Samples):]
	for i, s := range seg.Samples {
		if v := int16(binary.LittleEndian.Uint16(payload[2*i:])); v != s {
			t.Fatalf("payload sample %d = %d, want %d", i, v, s)
		}
	}
}

func TestEncodeFile_UniqueNames(t *testing.T) {
	dir := t.TempDir()
	a, err := EncodeFile(dir, testSegment(16000, 10))
	if err != nil {
		t.Fatal(err)
	}
	b, err := EncodeFile(dir, testSegment(16000, 10))
	if err != nil {
		t.Fatal(err)
	}
	if a.Path == b.Path {
		t.Fatalf("duplicate path %s", a.Path)
	}
	if filepath.Dir(a.Path) != dir {
		t.Errorf("unit written outside %s: %s", dir, a.Path)
	}
}

func TestEncodeFile_RejectsEmptySegment(t *testing.T) {
	dir := t.TempDir()
	if _, err := EncodeFile(dir, Segment{SampleRate: 16000}); err == nil {
		t.Fatal("expected error for empty segment")
	}
	if _, err := EncodeFile(dir, Segment{Samples: []int16{1}}); err == nil {
		t.Fatal("expected error for missing sample rate")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("left %d files behind", len(entries))
	}
}

func TestUnit_RemoveIsIdempotent(t *testing.T) {
	u, err := EncodeFile(t.TempDir(), testSegment(16000, 10))
	if err != nil {
		t.Fatal(err)
	}
	if err := u.Remove(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(u.Path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("file still present: %v", err)
	}
	if err := u.Remove(); err != nil {
		t.Errorf("second Remove: %v", err)
	}
	var nilUnit *Unit
	if err := nilUnit.Remove(); err != nil {
		t.Errorf("nil Remove: %v", err)
	}
}

func TestDecodeWAV_FromEncodedUnit(t *testing.T) {
	seg := Segment{SampleRate: 16000, Samples: []int16{0, 16384, -16384, 32767}}
	u, err := EncodeFile(t.TempDir(), seg)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := u.Bytes()
	f, err := DecodeWAV(b)
	if err != nil {
		t.Fatal(err)
	}
	if f.SampleRate != 16000 || f.Channels != 1 || len(f.Samples) != 4 {
		t.Fatalf("got frame %+v", f)
	}
	if f.Samples[1] != 0.5 || f.Samples[2] != -0.5 {
		t.Errorf("samples = %v", f.Samples)
	}
	if _, err := DecodeWAV([]byte("not a wav")); err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestDecodePCM16LE(t *testing.T) {
	f, err := DecodePCM16LE([]byte{0x00, 0x40, 0x00, 0xc0}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if f.SampleRate != 16000 || f.Channels != 1 {
		t.Errorf("frame = %+v", f)
	}
	if f.Samples[0] != 0.5 || f.Samples[1] != -0.5 {
		t.Errorf("samples = %v", f.Samples)
	}
	if _, err := DecodePCM16LE([]byte{1}, 16000); err == nil {
		t.Error("expected error for odd length")
	}
}

func TestResampleLinear(t *testing.T) {
	in := make([]float32, 4800)
	for i := range in {
		in[i] = float32(i)
	}
	out := ResampleLinear(in, 48000, 16000)
	if len(out) != 1600 {
		t.Fatalf("got %d samples, want 1600", len(out))
	}
	if out[1] != 3 {
		t.Errorf("out[1] = %v, want 3", out[1])
	}
	same := ResampleLinear(in, 16000, 16000)
	if &same[0] == &in[0] || len(same) != len(in) {
		t.Error("same-rate resample should return a copy")
	}
}
