package model

import "fmt"

// Resample converts samples captured at fromRate to toRate via linear
// interpolation.
func Resample(samples []float32, fromRate, toRate uint32) ([]float32, error) {
	if fromRate == 0 || toRate == 0 {
		return nil, fmt.Errorf("model: resample requires nonzero sample rates (from=%d to=%d)", fromRate, toRate)
	}
	if fromRate == toRate {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out, nil
	}
	if len(samples) == 0 {
		return nil, nil
	}

	ratio := float64(toRate) / float64(fromRate)
	outLen := int(float64(len(samples)) * ratio)
	if outLen < 1 {
		return nil, nil
	}
	out := make([]float32, outLen)
	step := float64(fromRate) / float64(toRate)
	for i := range out {
		srcPos := float64(i) * step
		idx := int(srcPos)
		frac := float32(srcPos - float64(idx))
		if idx+1 < len(samples) {
			out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
		} else {
			out[i] = samples[len(samples)-1]
		}
	}
	return out, nil
}
