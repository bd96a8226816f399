package model

// Frame-rate constants of the mel front end: a property of the model's
// training configuration, not a tunable of scribecore itself.
const (
	HopSamples          = 160 // 10ms at 16kHz
	NMels               = 80
	DefaultHiddenSize   = 3072
	DefaultDelayTokens  = 6
	DefaultMaxMelFrames = 1200
)

// NeedsChunking reports whether nSamples, at the model's frame hop, would
// produce more than maxFrames mel frames.
func NeedsChunking(nSamples, maxFrames int) bool {
	return nSamples/HopSamples > maxFrames
}

// ChunkAudio splits samples into contiguous, non-overlapping pieces of at
// most maxFrames mel frames each.
func ChunkAudio(samples []float32, maxFrames int) [][]float32 {
	chunkSamples := maxFrames * HopSamples
	if chunkSamples <= 0 || len(samples) <= chunkSamples {
		return [][]float32{samples}
	}
	var chunks [][]float32
	for start := 0; start < len(samples); start += chunkSamples {
		end := start + chunkSamples
		if end > len(samples) {
			end = len(samples)
		}
		chunks = append(chunks, samples[start:end])
	}
	return chunks
}

// PadAudio pads samples with trailing silence so at least one mel frame can
// be produced, matching the model library's pad_audio utility.
func PadAudio(samples []float32) []float32 {
	if len(samples) >= HopSamples {
		return samples
	}
	out := make([]float32, HopSamples)
	copy(out, samples)
	return out
}
