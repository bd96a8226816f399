// Package model defines the boundary scribecore expects from the quantized
// speech model it treats as an opaque external dependency: audio encoding,
// a KV-cache-preallocated decoder, tokenizer decode, and mel extraction.
// Nothing upstream of this package knows about GGUF files, tensor backends,
// or quantization; pkg/engine talks only to these interfaces.
package model

import "context"

// Streaming decode constants, as fixed by the model's training scheme. These
// are properties of the model contract, not tunables.
const (
	PrefixLen       = 38
	BOSToken        = 1
	StreamingPad    = 32
	TextTokenOffset = 1000
)

// Model is a single loaded instance of the speech model: the audio encoder,
// the autoregressive decoder, and its cache factory.
type Model interface {
	// EncodeAudio runs the audio encoder over a [1, n_mels, n_frames] mel
	// tensor, returning a [1, seq_len, d_model] tensor of audio embeddings.
	EncodeAudio(ctx context.Context, mel Tensor) (Tensor, error)

	// Decoder returns the autoregressive text decoder paired with this
	// model instance.
	Decoder() Decoder

	// CreateDecoderCachePreallocated allocates a KV cache sized for exactly
	// size decode positions.
	CreateDecoderCachePreallocated(size int) (Cache, error)
}

// Decoder runs forward passes through the autoregressive decoder, given a
// previously allocated Cache.
type Decoder interface {
	// EmbedTokens looks up embeddings for a sequence of token ids, returning
	// a [1, len(ids), d_model] tensor.
	EmbedTokens(ctx context.Context, ids []int32) (Tensor, error)

	// ForwardHiddenWithCache advances the cache by the positions present in
	// input (one position during autoregressive stepping, PrefixLen
	// positions during prefill) and returns the resulting hidden states.
	ForwardHiddenWithCache(ctx context.Context, input, timeEmbed Tensor, cache Cache) (Tensor, error)

	// LMHead projects hidden states to vocabulary logits.
	LMHead(ctx context.Context, hidden Tensor) (Tensor, error)
}

// Cache is an opaque, position-tracking KV cache.
type Cache interface {
	// Size returns the number of positions the cache was preallocated for.
	Size() int
}

// Tokenizer decodes text-token ids (>= TextTokenOffset once rebased to text
// vocabulary) into UTF-8 text.
type Tokenizer interface {
	Decode(ids []uint32) (string, error)
}

// MelExtractor computes a log-mel spectrogram from 16kHz mono PCM.
type MelExtractor interface {
	// ComputeLog returns a [1, n_mels, n_frames] tensor. n_frames is 0 when
	// samples is too short to produce a single frame.
	ComputeLog(samples []float32) (Tensor, error)
}

// Loader loads a Model, Tokenizer and MelExtractor from the model and
// tokenizer file paths, and builds the fixed time-embedding tensor the
// decoder adds at every position.
type Loader interface {
	Load(ctx context.Context, modelPath, tokenizerPath string) (Model, Tokenizer, MelExtractor, error)

	// TimeEmbed builds the [1, 1, hiddenSize] embedding for a fixed token
	// delay (1 token ~= 80ms at this model's frame rate).
	TimeEmbed(delayTokens, hiddenSize int) Tensor
}
