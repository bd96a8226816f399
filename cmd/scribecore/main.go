// Command scribecore runs the real-time audio-to-text core: it captures
// microphone audio, accumulates VAD-gated utterances, transcribes them
// with a streaming decoder, and fans partial/final transcripts out to
// WebSocket subscribers.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/quietloop/scribecore/internal/coreerr"
	"github.com/quietloop/scribecore/internal/logging"
	"github.com/quietloop/scribecore/pkg/accumulator"
	"github.com/quietloop/scribecore/pkg/bus"
	"github.com/quietloop/scribecore/pkg/capture"
	"github.com/quietloop/scribecore/pkg/engine"
	"github.com/quietloop/scribecore/pkg/model/ref"
	"github.com/quietloop/scribecore/pkg/session"
	"github.com/quietloop/scribecore/pkg/transport"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "note: no .env file found, using system environment variables")
	}

	var (
		listDevices   = pflag.Bool("list-devices", false, "List available input devices and exit.")
		device        = pflag.String("device", os.Getenv("SCRIBECORE_DEVICE"), "Input device name. Defaults to $SCRIBECORE_DEVICE, or the system default device if unset.")
		modelPath     = pflag.String("model-path", "", "Path to the quantized model file.")
		tokenizerPath = pflag.String("tokenizer-path", "", "Path to the tokenizer file.")
		wsPort        = pflag.Int("ws-port", 8765, "WebSocket server port.")
		bufferMs      = pflag.Int("buffer-ms", 500, "Capture chunk duration in milliseconds.")
		minDuration   = pflag.Float64("min-duration", 3.0, "Minimum utterance duration in seconds.")
		maxDuration   = pflag.Float64("max-duration", 30.0, "Maximum utterance duration in seconds.")
		logJSON       = pflag.Bool("log-json", false, "Emit logs as JSON instead of text.")
		logLevel      = pflag.String("log-level", "info", "Log level: debug, info, warn, error.")
	)
	pflag.Parse()

	logger := logging.New(logging.Options{JSON: *logJSON, Level: *logLevel})

	if *listDevices {
		names, err := capture.ListDevices()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
		for i, name := range names {
			fmt.Printf("[%d] %s\n", i, name)
		}
		return 0
	}

	if *modelPath == "" {
		fmt.Fprintln(os.Stderr, "error: --model-path is required")
		return 1
	}
	if *tokenizerPath == "" {
		fmt.Fprintln(os.Stderr, "error: --tokenizer-path is required")
		return 1
	}
	if _, err := os.Stat(*modelPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v: %v\n", coreerr.ErrModelMissing, err)
		return 1
	}
	if _, err := os.Stat(*tokenizerPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v: %v\n", coreerr.ErrTokenizerMissing, err)
		return 1
	}

	eventBus := bus.New(bus.DefaultCapacity)
	eng := engine.New(*modelPath, *tokenizerPath, ref.Loader{}, logger)
	accum := accumulator.New(accumulator.Config{
		MinDurationSecs: *minDuration,
		MaxDurationSecs: *maxDuration,
		SilencePauseMs:  1000,
		ChunkMs:         *bufferMs,
		SpeechThreshold: 0.005,
	}, logger)
	capSource := capture.New(*device, logger)
	driver := session.New(eng, accum, capSource, eventBus, *bufferMs, logger)

	addr := fmt.Sprintf(":%d", *wsPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v: %v\n", coreerr.ErrPortInUse, err)
		return 1
	}

	httpServer := &http.Server{Handler: transport.NewServer(eventBus, logger).Handler()}
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("websocket server stopped", "err", err)
		}
	}()
	logger.Info("websocket server listening", "addr", addr)

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("shutting down")
		cancel()
	}()

	runErr := driver.Run(ctx)
	httpServer.Close()
	if runErr != nil {
		logger.Error("session driver exited with error", "err", runErr)
		return 1
	}
	return 0
}
