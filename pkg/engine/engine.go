// Package engine implements the lazy model lifecycle, long-audio
// chunking, and the autoregressive streaming decoder that drives
// partial-transcript callbacks.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/quietloop/scribecore/internal/coreerr"
	"github.com/quietloop/scribecore/internal/logging"
	"github.com/quietloop/scribecore/pkg/audio"
	"github.com/quietloop/scribecore/pkg/model"
)

// autoLanguage is the constant language string reported for every
// transcript: the model auto-detects language.
const autoLanguage = "auto"

// Result is the outcome of one transcribe call.
type Result struct {
	Text     string
	Language string
	RTF      float64
}

// loaded bundles the four coupled resources the engine holds together as
// a single sum type rather than four independently nullable fields, so
// "loaded" and "not loaded" can't disagree across the four resources.
type loaded struct {
	model     model.Model
	tokenizer model.Tokenizer
	mel       model.MelExtractor
	timeEmbed model.Tensor
}

// Engine is the lazy-load/unload speech engine. Construction does not touch
// disk. The zero value is not usable; construct with New.
type Engine struct {
	modelPath     string
	tokenizerPath string
	loader        model.Loader
	logger        logging.Logger

	mu sync.Mutex // guards st
	st *loaded

	// busyMu is held for the duration of any transcription; Unload also
	// takes it, so one in-flight transcription blocks unload.
	busyMu sync.Mutex
}

// New builds an Engine for the given model and tokenizer paths, using
// loader to materialize the four coupled resources on Load.
func New(modelPath, tokenizerPath string, loader model.Loader, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Engine{
		modelPath:     modelPath,
		tokenizerPath: tokenizerPath,
		loader:        loader,
		logger:        logger,
	}
}

// Load materializes the tokenizer, model weights, mel extractor and time
// embedding. It is idempotent-fast: a second call while already loaded
// returns 0 immediately.
func (e *Engine) Load(ctx context.Context) (time.Duration, error) {
	e.mu.Lock()
	if e.st != nil {
		e.mu.Unlock()
		return 0, nil
	}
	e.mu.Unlock()

	start := time.Now()
	m, tok, mel, err := e.loader.Load(ctx, e.modelPath, e.tokenizerPath)
	if err != nil {
		return 0, err
	}
	// Size the time embedding to the loaded decoder's embedding width so it
	// broadcast-adds onto every decoder input.
	probe, err := m.Decoder().EmbedTokens(ctx, []int32{model.BOSToken})
	if err != nil {
		return 0, wrapTensorErr("embed_tokens(probe)", err)
	}
	timeEmbed := e.loader.TimeEmbed(model.DefaultDelayTokens, probe.Dim(2))
	elapsed := time.Since(start)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.st != nil {
		// Lost a race with a concurrent Load: keep the winner, discard ours.
		return 0, nil
	}
	e.st = &loaded{model: m, tokenizer: tok, mel: mel, timeEmbed: timeEmbed}
	return elapsed, nil
}

// Unload releases all four loaded resources. It blocks until any in-flight
// transcription completes, and is a no-op if already unloaded.
func (e *Engine) Unload() error {
	e.busyMu.Lock()
	defer e.busyMu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.st = nil
	return nil
}

// IsLoaded reports whether the engine currently holds its four resources.
func (e *Engine) IsLoaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st != nil
}

// Transcribe runs inference to completion and returns the final result.
func (e *Engine) Transcribe(ctx context.Context, buf *audio.Buffer) (Result, error) {
	return e.run(ctx, buf, nil)
}

// TranscribeWithCallback runs inference like Transcribe but additionally
// invokes onPartial with each strictly-growing partial transcript snapshot
// as the decode loop advances.
func (e *Engine) TranscribeWithCallback(ctx context.Context, buf *audio.Buffer, onPartial func(string)) (Result, error) {
	return e.run(ctx, buf, onPartial)
}

func (e *Engine) run(ctx context.Context, buf *audio.Buffer, onPartial func(string)) (Result, error) {
	e.busyMu.Lock()
	defer e.busyMu.Unlock()

	e.mu.Lock()
	st := e.st
	e.mu.Unlock()
	if st == nil {
		return Result{}, coreerr.ErrNotLoaded
	}

	samples := buf.Samples
	var chunks [][]float32
	if model.NeedsChunking(len(samples), model.DefaultMaxMelFrames) {
		chunks = model.ChunkAudio(samples, model.DefaultMaxMelFrames)
	} else {
		chunks = [][]float32{samples}
	}

	start := time.Now()
	var parts []string
	for _, chunk := range chunks {
		text, err := decodeWindow(ctx, st, chunk, onPartial)
		if err != nil {
			return Result{}, err
		}
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	elapsed := time.Since(start)

	duration := buf.DurationSeconds()
	var rtf float64
	if duration > 0 {
		rtf = elapsed.Seconds() / duration
	}

	return Result{Text: strings.Join(parts, " "), Language: autoLanguage, RTF: rtf}, nil
}

func wrapTensorErr(stage string, err error) error {
	return fmt.Errorf("%w: %s: %v", coreerr.ErrTensorFailure, stage, err)
}
