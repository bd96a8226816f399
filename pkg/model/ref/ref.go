// Package ref is the reference implementation of the model.Loader
// boundary: a deterministic, dependency-free stand-in for the quantized
// Q4 GGUF model the spec treats as an opaque external collaborator. It
// exists so the streaming decoder has a real backend to run and test
// against, not to produce meaningful transcription.
package ref

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/quietloop/scribecore/pkg/model"
)

// Loader builds deterministic Model/Tokenizer/MelExtractor instances sized
// by HiddenSize and VocabSize. Zero values fall back to the model's native
// hidden size and a modest vocabulary.
type Loader struct {
	HiddenSize int
	VocabSize  int
}

func (l Loader) sizes() (hidden, vocab int) {
	hidden = l.HiddenSize
	if hidden == 0 {
		hidden = model.DefaultHiddenSize
	}
	vocab = l.VocabSize
	if vocab == 0 {
		vocab = 4096
	}
	return hidden, vocab
}

// Load validates that the model and tokenizer files exist and builds a
// deterministic backend seeded from the model path. It does not parse either
// file's contents: weight-format decoding is explicitly out of scope.
func (l Loader) Load(_ context.Context, modelPath, tokenizerPath string) (model.Model, model.Tokenizer, model.MelExtractor, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, nil, nil, fmt.Errorf("model file %q: %w", modelPath, err)
	}
	if _, err := os.Stat(tokenizerPath); err != nil {
		return nil, nil, nil, fmt.Errorf("tokenizer file %q: %w", tokenizerPath, err)
	}
	hidden, vocab := l.sizes()
	seed := hashSeed(modelPath)
	m := &backend{
		hidden:  hidden,
		vocab:   vocab,
		encodeW: seededMatrix(seed^0x1, model.NMels, hidden),
		lmHeadW: seededMatrix(seed^0x2, hidden, vocab),
	}
	tok := &tokenizer{vocab: vocab}
	mel := &melExtractor{}
	return m, tok, mel, nil
}

// TimeEmbed returns a deterministic [1, 1, hiddenSize] tensor keyed on the
// token delay, standing in for the model's learned time embedding.
func (l Loader) TimeEmbed(delayTokens, hiddenSize int) model.Tensor {
	data := make([]float32, hiddenSize)
	seed := uint64(delayTokens)*0x9E3779B97F4A7C15 + 1
	for i := range data {
		seed = lcgNext(seed)
		data[i] = (float32(seed%2000) - 1000) / 100000
	}
	return model.NewTensor([]int{1, 1, hiddenSize}, data)
}

func hashSeed(s string) uint64 {
	var h uint64 = 1469598103934665603
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

func lcgNext(x uint64) uint64 {
	return x*6364136223846793005 + 1442695040888963407
}

func seededMatrix(seed uint64, rows, cols int) []float32 {
	out := make([]float32, rows*cols)
	for i := range out {
		seed = lcgNext(seed)
		out[i] = (float32(seed%2000) - 1000) / 1000
	}
	return out
}

// backend is a deterministic, trained-on-nothing model.Model.
type backend struct {
	hidden  int
	vocab   int
	encodeW []float32 // [n_mels, hidden]
	lmHeadW []float32 // [hidden, vocab]
}

func (b *backend) EncodeAudio(_ context.Context, mel model.Tensor) (model.Tensor, error) {
	if len(mel.Shape) != 3 {
		return model.Tensor{}, fmt.Errorf("ref: expected rank-3 mel tensor, got %v", mel.Shape)
	}
	nMels, nFrames := mel.Shape[1], mel.Shape[2]
	out := make([]float32, nFrames*b.hidden)
	for f := 0; f < nFrames; f++ {
		for h := 0; h < b.hidden; h++ {
			var sum float32
			for m := 0; m < nMels; m++ {
				sum += mel.Data[m*nFrames+f] * b.encodeW[m*b.hidden+h]
			}
			out[f*b.hidden+h] = float32(math.Tanh(float64(sum)))
		}
	}
	return model.NewTensor([]int{1, nFrames, b.hidden}, out), nil
}

func (b *backend) Decoder() model.Decoder {
	return &decoder{hidden: b.hidden, vocab: b.vocab, lmHeadW: b.lmHeadW}
}

func (b *backend) CreateDecoderCachePreallocated(size int) (model.Cache, error) {
	if size <= 0 {
		return nil, fmt.Errorf("ref: cache size must be positive, got %d", size)
	}
	return &cache{size: size}, nil
}

type cache struct {
	size int
	pos  int
}

func (c *cache) Size() int { return c.size }

type decoder struct {
	hidden  int
	vocab   int
	lmHeadW []float32
	embeds  map[int32][]float32
}

func (d *decoder) EmbedTokens(_ context.Context, ids []int32) (model.Tensor, error) {
	if d.embeds == nil {
		d.embeds = make(map[int32][]float32)
	}
	out := make([]float32, len(ids)*d.hidden)
	for i, id := range ids {
		vec, ok := d.embeds[id]
		if !ok {
			vec = make([]float32, d.hidden)
			seed := uint64(id)*2654435761 + 0xABCDEF
			for k := range vec {
				seed = lcgNext(seed)
				vec[k] = (float32(seed%2000) - 1000) / 1000
			}
			d.embeds[id] = vec
		}
		copy(out[i*d.hidden:(i+1)*d.hidden], vec)
	}
	return model.NewTensor([]int{1, len(ids), d.hidden}, out), nil
}

func (d *decoder) ForwardHiddenWithCache(_ context.Context, input, timeEmbed model.Tensor, c model.Cache) (model.Tensor, error) {
	cc, ok := c.(*cache)
	if !ok {
		return model.Tensor{}, fmt.Errorf("ref: cache of unexpected type %T", c)
	}
	n := input.Shape[1]
	if cc.pos+n > cc.size {
		return model.Tensor{}, fmt.Errorf("ref: cache overflow: pos=%d n=%d size=%d", cc.pos, n, cc.size)
	}
	hidden, err := model.Add(input, timeEmbed)
	if err != nil {
		return model.Tensor{}, err
	}
	cc.pos += n
	return hidden, nil
}

func (d *decoder) LMHead(_ context.Context, hidden model.Tensor) (model.Tensor, error) {
	n := hidden.Shape[1]
	out := make([]float32, n*d.vocab)
	for p := 0; p < n; p++ {
		for v := 0; v < d.vocab; v++ {
			var sum float32
			for h := 0; h < d.hidden; h++ {
				sum += hidden.Data[p*d.hidden+h] * d.lmHeadW[h*d.vocab+v]
			}
			out[p*d.vocab+v] = sum
		}
	}
	return model.NewTensor([]int{1, n, d.vocab}, out), nil
}

// tokenizer decodes text-token ids into a deterministic pseudo-text by
// cycling through a small fixed vocabulary. One in every seven ids decodes
// to the empty string, exercising the decoder's plateau (no-growth) path.
type tokenizer struct {
	vocab int
}

var wordBank = []string{
	"the", "quick", "brown", "fox", "jumps", "over", "lazy", "dog",
	"meeting", "notes", "action", "item", "follow", "up", "next", "week",
}

func (t *tokenizer) Decode(ids []uint32) (string, error) {
	var b strings.Builder
	for _, id := range ids {
		if id%7 == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(wordBank[int(id)%len(wordBank)])
	}
	return b.String(), nil
}

// melExtractor produces one mel frame per HopSamples input samples, using
// per-frame mean/energy-derived values across NMels bins.
type melExtractor struct{}

func (melExtractor) ComputeLog(samples []float32) (model.Tensor, error) {
	nFrames := len(samples) / model.HopSamples
	if nFrames == 0 {
		return model.NewTensor([]int{1, model.NMels, 0}, nil), nil
	}
	out := make([]float32, model.NMels*nFrames)
	for f := 0; f < nFrames; f++ {
		frame := samples[f*model.HopSamples : (f+1)*model.HopSamples]
		var energy float32
		for _, s := range frame {
			energy += s * s
		}
		energy /= float32(len(frame))
		logEnergy := float32(math.Log(float64(energy) + 1e-9))
		for m := 0; m < model.NMels; m++ {
			// Vary by bin so downstream matmuls see more than one column.
			out[m*nFrames+f] = logEnergy * (1 + float32(m)/float32(model.NMels))
		}
	}
	return model.NewTensor([]int{1, model.NMels, nFrames}, out), nil
}

