package audio

import (
	"testing"
	"time"
)

func tone(rate int, d time.Duration, amp int16) Segment {
	n := int(d * time.Duration(rate) / time.Second)
	s := make([]int16, n)
	for i := range s {
		if i%2 == 0 {
			s[i] = amp
		} else {
			s[i] = -amp
		}
	}
	return Segment{SampleRate: rate, Samples: s}
}

func TestRMS(t *testing.T) {
	if RMS(nil) != 0 {
		t.Error("empty RMS should be 0")
	}
	if got := RMS(tone(16000, 10*time.Millisecond, 1000).Samples); got != 1000 {
		t.Errorf("RMS = %v, want 1000", got)
	}
}

func TestAccumulator_FlushesAfterTrailingSilence(t *testing.T) {
	a := NewAccumulator(0, 300*time.Millisecond, 0)

	if out := a.Add(tone(16000, 200*time.Millisecond, 0)); len(out) != 0 {
		t.Fatal("leading silence should not flush")
	}
	if a.Buffered() != 0 {
		t.Fatalf("leading silence buffered: %v", a.Buffered())
	}
	if out := a.Add(tone(16000, 500*time.Millisecond, 5000)); len(out) != 0 {
		t.Fatal("speech alone should not flush")
	}
	if out := a.Add(tone(16000, 200*time.Millisecond, 0)); len(out) != 0 {
		t.Fatal("short pause should not flush")
	}
	out := a.Add(tone(16000, 200*time.Millisecond, 0))
	if len(out) != 1 {
		t.Fatalf("expected one utterance after 400ms of trailing silence, got %d", len(out))
	}
	if got := out[0].Duration(); got != 900*time.Millisecond {
		t.Errorf("utterance duration %v, want 900ms", got)
	}
	if a.Buffered() != 0 {
		t.Errorf("accumulator not reset: %v", a.Buffered())
	}
}

func TestAccumulator_FlushesAtMaxDuration(t *testing.T) {
	a := NewAccumulator(0, time.Second, 2*time.Second)
	for i := 0; i < 3; i++ {
		if out := a.Add(tone(8000, 500*time.Millisecond, 4000)); len(out) != 0 {
			t.Fatalf("flushed early at chunk %d", i)
		}
	}
	out := a.Add(tone(8000, 500*time.Millisecond, 4000))
	if len(out) != 1 {
		t.Fatalf("expected forced flush at max duration, got %d utterances", len(out))
	}
	if out[0].Duration() != 2*time.Second {
		t.Errorf("duration %v, want 2s", out[0].Duration())
	}
}

func TestAccumulator_MaxDurationIsHardBound(t *testing.T) {
	tests := []struct {
		name     string
		frames   []Segment
		wantDurs []time.Duration
		wantLeft time.Duration
	}{
		{
			name:     "one oversized frame",
			frames:   []Segment{tone(16000, 350*time.Millisecond, 4000)},
			wantDurs: []time.Duration{100 * time.Millisecond, 100 * time.Millisecond, 100 * time.Millisecond},
			wantLeft: 50 * time.Millisecond,
		},
		{
			name:     "rate change then oversized frame",
			frames:   []Segment{tone(16000, 50*time.Millisecond, 4000), tone(8000, time.Second, 4000)},
			wantDurs: append([]time.Duration{50 * time.Millisecond}, repeat(100*time.Millisecond, 10)...),
			wantLeft: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAccumulator(0, time.Second, 100*time.Millisecond)
			var got []time.Duration
			for _, f := range tt.frames {
				for _, u := range a.Add(f) {
					got = append(got, u.Duration())
				}
			}
			if len(got) != len(tt.wantDurs) {
				t.Fatalf("utterances = %v, want %v", got, tt.wantDurs)
			}
			for i := range got {
				if got[i] != tt.wantDurs[i] {
					t.Errorf("utterance %d = %v, want %v", i, got[i], tt.wantDurs[i])
				}
			}
			if a.Buffered() != tt.wantLeft {
				t.Errorf("buffered after = %v, want %v", a.Buffered(), tt.wantLeft)
			}
		})
	}
}

func TestAccumulator_TrailingSilencePastBoundIsDropped(t *testing.T) {
	a := NewAccumulator(0, time.Second, 100*time.Millisecond)
	if out := a.Add(tone(16000, 80*time.Millisecond, 4000)); len(out) != 0 {
		t.Fatal("flushed below the bound")
	}
	out := a.Add(tone(16000, 60*time.Millisecond, 0))
	if len(out) != 1 || out[0].Duration() != 100*time.Millisecond {
		t.Fatalf("got %d utterances", len(out))
	}
	if a.Buffered() != 0 {
		t.Errorf("silence carried over: %v", a.Buffered())
	}
}

func repeat(d time.Duration, n int) []time.Duration {
	out := make([]time.Duration, n)
	for i := range out {
		out[i] = d
	}
	return out
}

func TestAccumulator_RateChangeReleasesPending(t *testing.T) {
	a := NewAccumulator(0, time.Second, 0)
	a.Add(tone(16000, 100*time.Millisecond, 4000))
	out := a.Add(tone(48000, 100*time.Millisecond, 4000))
	if len(out) != 1 || out[0].SampleRate != 16000 {
		t.Fatalf("expected pending 16kHz utterance, got %+v", out)
	}
	if a.Buffered() != 100*time.Millisecond {
		t.Errorf("new utterance buffered %v, want 100ms", a.Buffered())
	}
}

func TestAccumulator_FlushWithoutSpeech(t *testing.T) {
	a := NewAccumulator(0, 0, 0)
	a.Add(tone(16000, 100*time.Millisecond, 0))
	if _, ok := a.Flush(); ok {
		t.Error("silence-only flush should report nothing")
	}
}
