// Package coreerr defines the sentinel errors shared across scribecore's
// initialization and inference paths.
package coreerr

import "errors"

// Initialization errors. These are fatal: the process reports them and
// exits with a non-zero status.
var (
	ErrDeviceNotFound          = errors.New("audio device not found")
	ErrUnsupportedSampleFormat = errors.New("unsupported audio sample format")
	ErrModelMissing            = errors.New("model file not found")
	ErrTokenizerMissing        = errors.New("tokenizer file not found")
	ErrPortInUse               = errors.New("websocket port already in use")
	ErrAlreadyRunning          = errors.New("capture already running")
)

// Inference errors. These are reported as bus Error events and do not stop
// the session driver; it continues processing the next utterance.
var (
	ErrMelEmpty      = errors.New("mel front end produced zero frames")
	ErrTensorFailure = errors.New("tensor operation failed")
	ErrDecodeFailure = errors.New("token decode failed")
	ErrNotLoaded     = errors.New("engine not loaded")
)
