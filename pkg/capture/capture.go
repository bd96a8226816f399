// Package capture opens a named input device via malgo with a single
// capture channel, so the backend delivers mono frames, and drains
// fixed-duration chunks through a bounded, non-blocking channel from the
// real-time audio callback. The callback does not average multi-channel
// frames itself: it only ever receives one channel.
package capture

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/quietloop/scribecore/internal/coreerr"
	"github.com/quietloop/scribecore/internal/logging"
	"github.com/quietloop/scribecore/pkg/audio"
)

// OutputChannelCapacity is the bounded capacity of the chunk channel.
const OutputChannelCapacity = 32

// ListDevices enumerates input device names available on this machine.
func ListDevices() ([]string, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("capture: init context: %w", err)
	}
	defer mctx.Uninit()

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("capture: enumerate devices: %w", err)
	}
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	return names, nil
}

// formatCandidate pairs a malgo sample format with the conversion applied
// to it in the hot path. Tried in order: F32, then I16, then I32.
type formatCandidate struct {
	format  malgo.FormatType
	convert func([]byte) []float32
}

var formatCandidates = []formatCandidate{
	{malgo.FormatF32, bytesToFloat32},
	{malgo.FormatS16, bytesToInt16Float32},
	{malgo.FormatS32, bytesToInt32Float32},
}

// Source opens a named capture device and emits fixed-duration AudioChunks.
// The zero value is not usable; construct with New.
type Source struct {
	deviceName string
	channels   uint32
	logger     logging.Logger

	out chan audio.Chunk

	mu           sync.Mutex // guards everything below, including the hot-path buffer
	running      bool
	mctx         *malgo.AllocatedContext
	device       *malgo.Device
	sampleRate   uint32
	chunkSamples int
	buf          []float32
	convert      func([]byte) []float32
}

// New builds a Source for deviceName (empty selects the default device).
func New(deviceName string, logger logging.Logger) *Source {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Source{
		deviceName: deviceName,
		channels:   1,
		logger:     logger,
		out:        make(chan audio.Chunk, OutputChannelCapacity),
	}
}

// Output returns the channel chunks are delivered on.
func (s *Source) Output() <-chan audio.Chunk {
	return s.out
}

// SampleRate returns the device's negotiated sample rate. Valid only after
// a successful Start.
func (s *Source) SampleRate() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sampleRate
}

// Start opens the device with one capture channel, selecting the first
// of {F32, I16, I32} the backend accepts, and begins delivering chunkMs
// worth of mono PCM at a time. It fails if already running or the named
// device cannot be found.
func (s *Source) Start(ctx context.Context, chunkMs int) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return coreerr.ErrAlreadyRunning
	}
	s.mu.Unlock()

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("capture: init context: %w", err)
	}

	var deviceID *malgo.DeviceID
	if s.deviceName != "" {
		infos, err := mctx.Devices(malgo.Capture)
		if err != nil {
			mctx.Uninit()
			return fmt.Errorf("capture: enumerate devices: %w", err)
		}
		found := false
		for _, info := range infos {
			if info.Name() == s.deviceName {
				id := info.ID
				deviceID = &id
				found = true
				break
			}
		}
		if !found {
			mctx.Uninit()
			return fmt.Errorf("%w: %q", coreerr.ErrDeviceNotFound, s.deviceName)
		}
	}

	device, sampleRate, convert, err := s.openDevice(mctx, deviceID)
	if err != nil {
		mctx.Uninit()
		return err
	}

	chunkSamples := int(sampleRate) * chunkMs / 1000
	if chunkSamples < 1 {
		chunkSamples = 1
	}

	s.mu.Lock()
	s.mctx = mctx
	s.device = device
	s.sampleRate = sampleRate
	s.chunkSamples = chunkSamples
	s.convert = convert
	s.buf = nil
	s.running = true
	s.mu.Unlock()

	if err := device.Start(); err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		device.Uninit()
		mctx.Uninit()
		return fmt.Errorf("capture: start device: %w", err)
	}
	return nil
}

// openDevice tries each candidate sample format in turn, returning the
// first the backend accepts configured for this Source's device.
func (s *Source) openDevice(mctx *malgo.AllocatedContext, deviceID *malgo.DeviceID) (*malgo.Device, uint32, func([]byte) []float32, error) {
	var lastErr error
	for _, cand := range formatCandidates {
		cfg := malgo.DefaultDeviceConfig(malgo.Capture)
		cfg.Capture.Format = cand.format
		cfg.Capture.Channels = s.channels
		if deviceID != nil {
			cfg.Capture.DeviceID = deviceID.Pointer()
		}

		device, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{
			Data: s.onData,
		})
		if err != nil {
			lastErr = err
			continue
		}
		return device, device.SampleRate(), cand.convert, nil
	}
	if lastErr == nil {
		lastErr = coreerr.ErrUnsupportedSampleFormat
	}
	return nil, 0, nil, fmt.Errorf("%w: %v", coreerr.ErrUnsupportedSampleFormat, lastErr)
}

// onData is the real-time audio callback: convert, accumulate, drain
// fixed-size chunks with a non-blocking try-send. s.channels is always 1,
// so the Downmix call copies the already-mono frames unchanged. It must
// never block or allocate unboundedly.
func (s *Source) onData(_ []byte, pInput []byte, _ uint32) {
	if len(pInput) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}

	mono := audio.Downmix(s.convert(pInput), int(s.channels))
	s.buf = append(s.buf, mono...)

	for len(s.buf) >= s.chunkSamples {
		chunk := make([]float32, s.chunkSamples)
		copy(chunk, s.buf[:s.chunkSamples])
		s.buf = s.buf[s.chunkSamples:]

		select {
		case s.out <- audio.Chunk{Samples: chunk, SampleRate: s.sampleRate}:
		default:
			s.logger.Warn("capture: dropping chunk, consumer channel full")
		}
	}
}

// Stop closes the device. It is idempotent and safe to call even if Start
// was never called or already failed.
//
// device.Stop blocks until the backend's in-flight data callback returns,
// and that callback takes s.mu itself to reach s.running. So the device and
// context are detached under the lock and closed after releasing it,
// otherwise a callback already parked on s.mu could never observe
// running=false and return, and this call would deadlock against itself.
func (s *Source) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	device := s.device
	mctx := s.mctx
	s.device = nil
	s.mctx = nil
	s.mu.Unlock()

	if device != nil {
		device.Stop()
		device.Uninit()
	}
	if mctx != nil {
		mctx.Uninit()
	}
	return nil
}

func bytesToFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		bits := uint32(b[i*4]) | uint32(b[i*4+1])<<8 | uint32(b[i*4+2])<<16 | uint32(b[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}

func bytesToInt16Float32(b []byte) []float32 {
	n := len(b) / 2
	ints := make([]int16, n)
	for i := 0; i < n; i++ {
		ints[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return audio.Int16ToFloat(ints)
}

func bytesToInt32Float32(b []byte) []float32 {
	n := len(b) / 4
	ints := make([]int32, n)
	for i := 0; i < n; i++ {
		ints[i] = int32(b[i*4]) | int32(b[i*4+1])<<8 | int32(b[i*4+2])<<16 | int32(b[i*4+3])<<24
	}
	return audio.Int32ToFloat(ints)
}
