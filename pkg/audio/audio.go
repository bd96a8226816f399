// Package audio holds the capture-side PCM types shared by the capture
// source, the utterance accumulator and the inference engine.
package audio

// Chunk is a slab of mono PCM samples delivered by the capture source at a
// fixed cadence.
type Chunk struct {
	Samples    []float32
	SampleRate uint32
}

// Buffer is an accumulated utterance ready for transcription: always
// 16kHz mono, peak-normalized before being handed to the inference engine.
type Buffer struct {
	Samples    []float32
	SampleRate uint32
}

// DurationSeconds returns the buffer's length in seconds.
func (b Buffer) DurationSeconds() float64 {
	if b.SampleRate == 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}

// Downmix averages interleaved multi-channel frames down to mono. channels
// of 1 returns data unchanged (a fresh copy).
func Downmix(data []float32, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(data))
		copy(out, data)
		return out
	}
	nFrames := len(data) / channels
	out := make([]float32, nFrames)
	for f := 0; f < nFrames; f++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += data[f*channels+c]
		}
		out[f] = sum / float32(channels)
	}
	return out
}

// Int16ToFloat converts signed 16-bit PCM to the [-1, 1] float range.
func Int16ToFloat(data []int16) []float32 {
	out := make([]float32, len(data))
	for i, s := range data {
		out[i] = float32(s) / 32768
	}
	return out
}

// Int32ToFloat converts signed 32-bit PCM to the [-1, 1] float range.
func Int32ToFloat(data []int32) []float32 {
	out := make([]float32, len(data))
	for i, s := range data {
		out[i] = float32(s) / 2147483648
	}
	return out
}

// PeakNormalize scales samples in place so the loudest sample reaches
// target (e.g. 0.95). Silent buffers are left untouched.
func PeakNormalize(samples []float32, target float32) {
	var peak float32
	for _, s := range samples {
		abs := s
		if abs < 0 {
			abs = -abs
		}
		if abs > peak {
			peak = abs
		}
	}
	if peak == 0 {
		return
	}
	gain := target / peak
	for i := range samples {
		samples[i] *= gain
	}
}
