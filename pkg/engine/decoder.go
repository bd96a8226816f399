package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/quietloop/scribecore/internal/coreerr"
	"github.com/quietloop/scribecore/pkg/model"
)

// decodeWindow runs the streaming decode protocol over a single mel
// window and returns its decoded text. onPartial, if non-nil, fires once
// per strict growth of the running decoded text.
//
// State machine (per window): Idle -- encode --> Prefilled -- step -->
// Decoding -- pos==seqLen --> Done (return text). Any step failing returns
// an error; the caller (Engine.run) treats the window as dropped and the
// engine itself stays Loaded.
func decodeWindow(ctx context.Context, st *loaded, samples []float32, onPartial func(string)) (string, error) {
	mel, err := st.mel.ComputeLog(model.PadAudio(samples))
	if err != nil {
		return "", wrapTensorErr("mel", err)
	}
	if mel.Dim(2) == 0 {
		return "", coreerr.ErrMelEmpty
	}

	audioEmbeds, err := st.model.EncodeAudio(ctx, mel)
	if err != nil {
		return "", wrapTensorErr("encode_audio", err)
	}
	seqLen := audioEmbeds.Dim(1)
	if seqLen < model.PrefixLen {
		return "", nil
	}

	dec := st.model.Decoder()

	prefixIDs := make([]int32, model.PrefixLen)
	prefixIDs[0] = model.BOSToken
	for i := 1; i < model.PrefixLen; i++ {
		prefixIDs[i] = model.StreamingPad
	}
	prefixTextEmbeds, err := dec.EmbedTokens(ctx, prefixIDs)
	if err != nil {
		return "", wrapTensorErr("embed_tokens(prefix)", err)
	}

	audioPrefix := audioEmbeds.SlicePrefix(model.PrefixLen)
	prefixInputs, err := model.Add(prefixTextEmbeds, audioPrefix)
	if err != nil {
		return "", wrapTensorErr("prefix_inputs", err)
	}

	cache, err := st.model.CreateDecoderCachePreallocated(seqLen)
	if err != nil {
		return "", wrapTensorErr("create_decoder_cache", err)
	}

	hidden, err := dec.ForwardHiddenWithCache(ctx, prefixInputs, st.timeEmbed, cache)
	if err != nil {
		return "", wrapTensorErr("prefill", err)
	}
	logits, err := dec.LMHead(ctx, hidden)
	if err != nil {
		return "", wrapTensorErr("lm_head(prefill)", err)
	}
	firstToken := model.ArgmaxLastPosition(logits)

	// Pre-slice the audio positions the autoregressive loop will need, then
	// drop the full audio_embeds tensor to cap peak memory.
	audioPositions := make([]model.Tensor, seqLen-model.PrefixLen)
	for p := model.PrefixLen; p < seqLen; p++ {
		audioPositions[p-model.PrefixLen] = audioEmbeds.SlicePosition(p)
	}
	audioEmbeds = model.Tensor{}

	tokens := []int32{firstToken}
	var textTokens []uint32
	lastDecodedLen := 0

	emit := func(tok int32) error {
		if tok < model.TextTokenOffset {
			return nil
		}
		textTokens = append(textTokens, uint32(tok))
		text, err := st.tokenizer.Decode(textTokens)
		if err != nil {
			return fmt.Errorf("%w: %v", coreerr.ErrDecodeFailure, err)
		}
		trimmed := strings.TrimSpace(text)
		if len(trimmed) > lastDecodedLen {
			lastDecodedLen = len(trimmed)
			if onPartial != nil {
				onPartial(trimmed)
			}
		}
		return nil
	}
	if err := emit(firstToken); err != nil {
		return "", err
	}

	for pos := model.PrefixLen + 1; pos < seqLen; pos++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		newToken := tokens[len(tokens)-1]
		tokEmbed, err := dec.EmbedTokens(ctx, []int32{newToken})
		if err != nil {
			return "", wrapTensorErr("embed_tokens(step)", err)
		}
		audioPos := audioPositions[pos-1-model.PrefixLen]
		input, err := model.Add(tokEmbed, audioPos)
		if err != nil {
			return "", wrapTensorErr("step_input", err)
		}

		hidden, err := dec.ForwardHiddenWithCache(ctx, input, st.timeEmbed, cache)
		if err != nil {
			return "", wrapTensorErr("step", err)
		}
		logits, err := dec.LMHead(ctx, hidden)
		if err != nil {
			return "", wrapTensorErr("lm_head(step)", err)
		}
		nextToken := model.ArgmaxLastPosition(logits)
		tokens = append(tokens, nextToken)
		if err := emit(nextToken); err != nil {
			return "", err
		}
	}

	return st.tokenizer.Decode(textTokens)
}
