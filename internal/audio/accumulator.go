package audio

import (
	"math"
	"time"
)

// DefaultSilenceRMS is the RMS level (in int16 units) below which audio is
// treated as silence. 300 out of 32767 is near-silence.
const DefaultSilenceRMS = 300.0

// RMS returns the root-mean-square energy of samples in int16 units.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Accumulator joins consecutive segments into utterances. An utterance is
// released once speech has been followed by at least Silence of quiet audio,
// or once MaxDuration of audio has been buffered. Leading silence is dropped.
// Not safe for concurrent use.
type Accumulator struct {
	SilenceRMS  float64
	Silence     time.Duration
	MaxDuration time.Duration

	rate      int
	buf       []int16
	hadSpeech bool
	quiet     time.Duration
}

// NewAccumulator returns an Accumulator with the given thresholds; zero values
// fall back to DefaultSilenceRMS, 500ms and 10s.
func NewAccumulator(silenceRMS float64, silence, maxDuration time.Duration) *Accumulator {
	if silenceRMS <= 0 {
		silenceRMS = DefaultSilenceRMS
	}
	if silence <= 0 {
		silence = 500 * time.Millisecond
	}
	if maxDuration <= 0 {
		maxDuration = 10 * time.Second
	}
	return &Accumulator{SilenceRMS: silenceRMS, Silence: silence, MaxDuration: maxDuration}
}

// Add appends seg and returns the utterances it completed, oldest first.
// When the sample rate changes mid-stream the pending utterance is released
// first and seg starts a new one. No released utterance is longer than
// MaxDuration; audio past the bound carries over into the next one.
func (a *Accumulator) Add(seg Segment) []Segment {
	if len(seg.Samples) == 0 {
		return nil
	}
	var out []Segment
	if a.rate != 0 && seg.SampleRate != a.rate && len(a.buf) > 0 {
		if u, ok := a.Flush(); ok {
			out = append(out, u)
		}
	}
	a.add(seg)

	maxN := int(a.MaxDuration * time.Duration(a.rate) / time.Second)
	for maxN > 0 && len(a.buf) >= maxN {
		out = append(out, Segment{SampleRate: a.rate, Samples: a.buf[:maxN:maxN]})
		a.buf = a.buf[maxN:]
		rest := Segment{SampleRate: a.rate, Samples: a.buf}.Duration()
		if a.quiet >= rest {
			// only trailing silence is left over
			a.reset()
		}
	}
	if a.hadSpeech && a.quiet >= a.Silence {
		if u, ok := a.Flush(); ok {
			out = append(out, u)
		}
	}
	return out
}

func (a *Accumulator) add(seg Segment) {
	a.rate = seg.SampleRate
	if RMS(seg.Samples) < a.SilenceRMS {
		if !a.hadSpeech {
			return
		}
		a.quiet += seg.Duration()
	} else {
		a.hadSpeech = true
		a.quiet = 0
	}
	a.buf = append(a.buf, seg.Samples...)
}

// Buffered returns the duration of pending audio.
func (a *Accumulator) Buffered() time.Duration {
	return Segment{SampleRate: a.rate, Samples: a.buf}.Duration()
}

// Flush releases whatever speech is pending and resets the accumulator.
func (a *Accumulator) Flush() (Segment, bool) {
	buf, rate, speech := a.buf, a.rate, a.hadSpeech
	a.reset()
	if len(buf) == 0 || !speech {
		return Segment{}, false
	}
	return Segment{SampleRate: rate, Samples: buf}, true
}

func (a *Accumulator) reset() {
	a.buf = nil
	a.hadSpeech = false
	a.quiet = 0
}
