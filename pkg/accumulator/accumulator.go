// Package accumulator resamples incoming chunks to 16kHz, runs an RMS
// voice-activity gate with pre-roll and trailing-silence hysteresis, and
// yields peak-normalized AudioBuffers bounded between a minimum and
// maximum duration.
package accumulator

import (
	"math"

	"github.com/quietloop/scribecore/internal/logging"
	"github.com/quietloop/scribecore/pkg/audio"
	"github.com/quietloop/scribecore/pkg/model"
)

const targetSampleRate = 16000

// Config is the accumulator's enumerated configuration. Defaults
// correspond to the production tuning.
type Config struct {
	MinDurationSecs float64
	MaxDurationSecs float64
	SilencePauseMs  int
	ChunkMs         int
	SpeechThreshold float64
}

// DefaultConfig returns the production tuning: 3s minimum, 30s maximum, a
// 1s trailing silence pause, 500ms chunks and an RMS gate of 0.005.
func DefaultConfig() Config {
	return Config{
		MinDurationSecs: 3.0,
		MaxDurationSecs: 30.0,
		SilencePauseMs:  1000,
		ChunkMs:         500,
		SpeechThreshold: 0.005,
	}
}

// Accumulator is the VAD-based utterance accumulator. The zero value is not
// usable; construct with New.
type Accumulator struct {
	cfg                Config
	minSamples         int
	maxSamples         int
	silencePauseChunks int
	logger             logging.Logger

	accumulated []float32
	preRoll     []float32
	silenceCnt  int
	hasSpeech   bool
}

// New builds an Accumulator from cfg.
func New(cfg Config, logger logging.Logger) *Accumulator {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	chunkMs := cfg.ChunkMs
	if chunkMs < 1 {
		chunkMs = 1
	}
	return &Accumulator{
		cfg:                cfg,
		minSamples:         int(cfg.MinDurationSecs * targetSampleRate),
		maxSamples:         int(cfg.MaxDurationSecs * targetSampleRate),
		silencePauseChunks: cfg.SilencePauseMs / chunkMs,
		logger:             logger,
	}
}

// Feed processes one capture chunk and returns a yielded AudioBuffer when
// either the hard cap or a natural speech pause is reached.
func (a *Accumulator) Feed(chunk audio.Chunk) *audio.Buffer {
	samples := chunk.Samples
	if chunk.SampleRate != targetSampleRate {
		resampled, err := model.Resample(chunk.Samples, chunk.SampleRate, targetSampleRate)
		if err != nil {
			a.logger.Warn("accumulator: resample failed, dropping chunk", "err", err)
			return nil
		}
		samples = resampled
	}

	energy := rms(samples)
	isSpeech := energy >= a.cfg.SpeechThreshold

	if isSpeech {
		if !a.hasSpeech && len(a.preRoll) > 0 {
			a.accumulated = append(a.accumulated, a.preRoll...)
		}
		a.preRoll = nil
		a.hasSpeech = true
		a.silenceCnt = 0
		a.accumulated = append(a.accumulated, samples...)
	} else if a.hasSpeech {
		a.accumulated = append(a.accumulated, samples...)
		a.silenceCnt++
	} else {
		a.preRoll = append([]float32(nil), samples...)
	}

	if len(a.accumulated) >= a.maxSamples {
		return a.takeBuffer()
	}
	if a.hasSpeech && len(a.accumulated) >= a.minSamples && a.silenceCnt >= a.silencePauseChunks {
		return a.takeBuffer()
	}
	return nil
}

// Flush yields the in-progress utterance if it contains any speech,
// unconditionally resetting state either way.
func (a *Accumulator) Flush() *audio.Buffer {
	if a.hasSpeech && len(a.accumulated) > 0 {
		return a.takeBuffer()
	}
	a.reset()
	return nil
}

// takeBuffer drains up to maxSamples (dropping any overflow tail), resets
// VAD state, and returns a peak-normalized window.
func (a *Accumulator) takeBuffer() *audio.Buffer {
	samples := a.accumulated
	if len(samples) > a.maxSamples {
		samples = samples[:a.maxSamples]
	}
	out := make([]float32, len(samples))
	copy(out, samples)
	audio.PeakNormalize(out, 0.95)

	a.reset()
	return &audio.Buffer{Samples: out, SampleRate: targetSampleRate}
}

func (a *Accumulator) reset() {
	a.accumulated = nil
	a.preRoll = nil
	a.hasSpeech = false
	a.silenceCnt = 0
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
