// Package session wires the capture source, the utterance accumulator,
// the inference engine and the transcript bus together and drives one
// window of audio at a time through them.
package session

import (
	"context"
	"time"

	"github.com/quietloop/scribecore/internal/logging"
	"github.com/quietloop/scribecore/pkg/audio"
	"github.com/quietloop/scribecore/pkg/bus"
	"github.com/quietloop/scribecore/pkg/engine"
)

// CaptureSource is the subset of capture.Source the driver depends on,
// kept as an interface so the driver can be exercised without real audio
// hardware (mirrors the orchestrator package's provider-interface style).
type CaptureSource interface {
	Start(ctx context.Context, chunkMs int) error
	Stop() error
	Output() <-chan audio.Chunk
}

// Accumulator is the subset of accumulator.Accumulator the driver depends
// on.
type Accumulator interface {
	Feed(chunk audio.Chunk) *audio.Buffer
	Flush() *audio.Buffer
}

// Transcriber is the subset of engine.Engine the driver depends on.
type Transcriber interface {
	Load(ctx context.Context) (time.Duration, error)
	Unload() error
	TranscribeWithCallback(ctx context.Context, buf *audio.Buffer, onPartial func(string)) (engine.Result, error)
}

// Driver owns the engine, accumulator and capture source for one recording
// session and publishes their lifecycle and transcript events to the bus.
type Driver struct {
	engine  Transcriber
	accum   Accumulator
	capture CaptureSource
	bus     *bus.Bus
	logger  logging.Logger

	chunkMs int
}

// New builds a Driver from its four collaborators.
func New(eng Transcriber, accum Accumulator, cap CaptureSource, b *bus.Bus, chunkMs int, logger logging.Logger) *Driver {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Driver{engine: eng, accum: accum, capture: cap, bus: b, chunkMs: chunkMs, logger: logger}
}

// Run loads the engine, starts capture, and pumps chunks through the
// accumulator and engine until ctx is cancelled. On cancellation it stops
// capture first (so no new chunks arrive), flushes any in-progress
// utterance, and unloads the engine before returning.
func (d *Driver) Run(ctx context.Context) error {
	d.bus.Publish(bus.NewStatus("Loading model…"))
	if _, err := d.engine.Load(ctx); err != nil {
		return err
	}
	d.bus.Publish(bus.NewStatus("Ready"))

	if err := d.capture.Start(ctx, d.chunkMs); err != nil {
		return err
	}

	chunks := d.capture.Output()
	for {
		select {
		case <-ctx.Done():
			d.capture.Stop()
			if buf := d.accum.Flush(); buf != nil {
				d.transcribeAndPublish(context.Background(), buf)
			}
			return d.engine.Unload()

		case chunk, ok := <-chunks:
			if !ok {
				d.capture.Stop()
				if buf := d.accum.Flush(); buf != nil {
					d.transcribeAndPublish(context.Background(), buf)
				}
				return d.engine.Unload()
			}
			if buf := d.accum.Feed(chunk); buf != nil {
				d.transcribeAndPublish(ctx, buf)
			}
		}
	}
}

func (d *Driver) transcribeAndPublish(ctx context.Context, buf *audio.Buffer) {
	res, err := d.engine.TranscribeWithCallback(ctx, buf, func(text string) {
		d.bus.Publish(bus.NewTranscript(text, "auto", false, nil))
	})
	if err != nil {
		d.logger.Warn("session: transcription failed", "err", err)
		d.bus.Publish(bus.NewError(err.Error()))
		return
	}
	rtf := res.RTF
	d.bus.Publish(bus.NewTranscript(res.Text, res.Language, true, &rtf))
}
