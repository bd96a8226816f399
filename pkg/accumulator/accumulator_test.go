package accumulator

import (
	"math"
	"testing"

	"github.com/quietloop/scribecore/pkg/audio"
)

func sineChunk(amplitude float64, nSamples int, freq, sampleRate float64) audio.Chunk {
	samples := make([]float32, nSamples)
	for i := range samples {
		samples[i] = float32(amplitude * math.Sin(2*math.Pi*freq*float64(i)/sampleRate))
	}
	return audio.Chunk{Samples: samples, SampleRate: uint32(sampleRate)}
}

func silentChunk(amplitude float64, nSamples int, sampleRate float64) audio.Chunk {
	samples := make([]float32, nSamples)
	for i := range samples {
		samples[i] = float32(amplitude)
	}
	return audio.Chunk{Samples: samples, SampleRate: uint32(sampleRate)}
}

func TestSilenceOnlyNeverYields(t *testing.T) {
	a := New(DefaultConfig(), nil)
	for i := 0; i < 20; i++ {
		if buf := a.Feed(silentChunk(0.001, 8000, 16000)); buf != nil {
			t.Fatalf("unexpected yield on silent chunk %d", i)
		}
	}
	if buf := a.Flush(); buf != nil {
		t.Fatal("flush should yield nothing when no speech was seen")
	}
}

func TestShortUtteranceYieldsOnPause(t *testing.T) {
	a := New(DefaultConfig(), nil)
	for i := 0; i < 6; i++ {
		if buf := a.Feed(sineChunk(0.3, 8000, 440, 16000)); buf != nil {
			t.Fatalf("unexpected early yield at speech chunk %d", i)
		}
	}
	var got *audio.Buffer
	for i := 0; i < 2; i++ {
		if buf := a.Feed(silentChunk(0.0, 8000, 16000)); buf != nil {
			got = buf
		}
	}
	if got == nil {
		t.Fatal("expected a yield after the trailing silence pause")
	}
	if len(got.Samples) != 64000 {
		t.Fatalf("expected 64000 samples, got %d", len(got.Samples))
	}
	if got.SampleRate != 16000 {
		t.Fatalf("expected 16000 sample rate, got %d", got.SampleRate)
	}
	peak := peakAbs(got.Samples)
	if peak > 0.95+1e-4 {
		t.Fatalf("peak %f exceeds 0.95", peak)
	}
}

func TestLongContinuousSpeechYieldsAtHardCap(t *testing.T) {
	a := New(DefaultConfig(), nil)
	var yields int
	var firstYieldAt int = -1
	for i := 0; i < 70; i++ {
		if buf := a.Feed(sineChunk(0.5, 8000, 440, 16000)); buf != nil {
			yields++
			if firstYieldAt == -1 {
				firstYieldAt = i
				if len(buf.Samples) != 480000 {
					t.Fatalf("expected hard-cap buffer of 480000 samples, got %d", len(buf.Samples))
				}
			}
		}
	}
	if firstYieldAt != 59 {
		t.Fatalf("expected first yield at chunk index 59 (60th chunk), got %d", firstYieldAt)
	}
	if yields == 0 {
		t.Fatal("expected at least one yield")
	}
}

func TestPreRollPrependedOnSpeechOnset(t *testing.T) {
	a := New(DefaultConfig(), nil)
	if buf := a.Feed(silentChunk(0.001, 8000, 16000)); buf != nil {
		t.Fatal("unexpected yield on leading silence")
	}
	for i := 0; i < 6; i++ {
		a.Feed(sineChunk(0.3, 8000, 440, 16000))
	}
	var got *audio.Buffer
	for i := 0; i < 2; i++ {
		if buf := a.Feed(silentChunk(0.0, 8000, 16000)); buf != nil {
			got = buf
		}
	}
	if got == nil {
		t.Fatal("expected a yield")
	}
	if len(got.Samples) != 72000 {
		t.Fatalf("expected 72000 samples (4.5s), got %d", len(got.Samples))
	}
}

func TestFlushAfterResetReturnsNone(t *testing.T) {
	a := New(DefaultConfig(), nil)
	a.Feed(sineChunk(0.3, 8000, 440, 16000))
	a.Flush()
	if buf := a.Flush(); buf != nil {
		t.Fatal("second flush should return nil")
	}
}

func TestResampleFailureLeavesStateUnchanged(t *testing.T) {
	a := New(DefaultConfig(), nil)
	before := len(a.accumulated)
	a.Feed(audio.Chunk{Samples: nil, SampleRate: 0})
	if len(a.accumulated) != before {
		t.Fatalf("state mutated on resample failure: before=%d after=%d", before, len(a.accumulated))
	}
}

func peakAbs(samples []float32) float32 {
	var peak float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}
