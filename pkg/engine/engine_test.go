package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/quietloop/scribecore/pkg/audio"
	"github.com/quietloop/scribecore/pkg/model"
	"github.com/quietloop/scribecore/pkg/model/ref"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.gguf")
	tokPath := filepath.Join(dir, "tokenizer.json")
	if err := os.WriteFile(modelPath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(tokPath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	return New(modelPath, tokPath, ref.Loader{HiddenSize: 32, VocabSize: 4096}, nil)
}

func sineBuffer(nSamples int) *audio.Buffer {
	samples := make([]float32, nSamples)
	for i := range samples {
		samples[i] = float32(i%100) / 100
	}
	return &audio.Buffer{Samples: samples, SampleRate: 16000}
}

func TestLoadIsIdempotentFast(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.Load(ctx); err != nil {
		t.Fatalf("first load: %v", err)
	}
	if !e.IsLoaded() {
		t.Fatal("expected engine to be loaded")
	}
	elapsed, err := e.Load(ctx)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if elapsed != 0 {
		t.Fatalf("expected 0 elapsed on second load, got %v", elapsed)
	}
}

func TestUnloadIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	if _, err := e.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := e.Unload(); err != nil {
		t.Fatalf("first unload: %v", err)
	}
	if e.IsLoaded() {
		t.Fatal("expected engine to be unloaded")
	}
	if err := e.Unload(); err != nil {
		t.Fatalf("second unload: %v", err)
	}
}

func TestTranscribeFailsWhenNotLoaded(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Transcribe(context.Background(), sineBuffer(16000))
	if err == nil {
		t.Fatal("expected error transcribing an unloaded engine")
	}
}

func TestShortBufferYieldsEmptyNoError(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	if _, err := e.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	defer e.Unload()

	// Fewer than PrefixLen*HopSamples samples produces seq_len < 38.
	buf := sineBuffer(1000)
	var partials int
	res, err := e.TranscribeWithCallback(ctx, buf, func(string) { partials++ })
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if res.Text != "" {
		t.Fatalf("expected empty text, got %q", res.Text)
	}
	if partials != 0 {
		t.Fatalf("expected zero partials, got %d", partials)
	}
}

func TestTranscribeEmitsMonotonePartialsAndFinalRTF(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	if _, err := e.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	defer e.Unload()

	buf := sineBuffer(model.HopSamples * 60)
	var lens []int
	res, err := e.TranscribeWithCallback(ctx, buf, func(text string) {
		lens = append(lens, len(text))
	})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	for i := 1; i < len(lens); i++ {
		if lens[i] <= lens[i-1] {
			t.Fatalf("partial lengths not strictly increasing: %v", lens)
		}
	}
	if res.Language != "auto" {
		t.Fatalf("expected language auto, got %q", res.Language)
	}
	if res.RTF < 0 {
		t.Fatalf("expected non-negative rtf, got %f", res.RTF)
	}
}

func TestUnloadBlocksUntilInFlightTranscriptionCompletes(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	if _, err := e.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	if _, err := e.Transcribe(ctx, sineBuffer(model.HopSamples*60)); err != nil {
		t.Fatalf("transcribe: %v", err)
	}

	// Hold busyMu exactly as an in-flight transcription does.
	e.busyMu.Lock()
	unloaded := make(chan error, 1)
	go func() { unloaded <- e.Unload() }()

	select {
	case <-unloaded:
		t.Fatal("Unload returned while a transcription was in flight")
	case <-time.After(50 * time.Millisecond):
	}
	if !e.IsLoaded() {
		t.Fatal("engine unloaded while a transcription was in flight")
	}
	e.busyMu.Unlock()

	if err := <-unloaded; err != nil {
		t.Fatalf("unload: %v", err)
	}
	if e.IsLoaded() {
		t.Fatal("expected engine unloaded")
	}
}
