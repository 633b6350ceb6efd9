package media

import (
	"context"
	"encoding/binary"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/sightline-ai/sightline/pkg/core"
	"github.com/sightline-ai/sightline/pkg/core/live"
)

// CaptureConfig configures a Capture.
type CaptureConfig struct {
	// Audio is the microphone format. Defaults to the capture format the
	// endpoint expects (16 kHz mono PCM16).
	Audio live.AudioConfig

	// BlockSize is the number of float samples per emitted block.
	BlockSize int

	// Video controls frame downscale width and JPEG quality.
	Video live.VideoConfig
}

// DefaultCaptureConfig returns a CaptureConfig with sensible defaults.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		Audio:     live.CaptureAudioConfig(),
		BlockSize: 4096,
		Video:     live.DefaultVideoConfig(),
	}
}

// Capture is the hardware media source: an exclusive microphone handle plus
// a frame source, acquired together and released together.
type Capture struct {
	cfg    CaptureConfig
	frames FrameSource
	logger *slog.Logger

	blocks chan []float32

	mu       sync.Mutex
	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	pending  []float32
	acquired bool

	// encoding guards against overlapping frame compressions: a grab that
	// arrives while one is in flight is dropped, not queued.
	encoding atomic.Bool
}

// NewCapture creates a Capture. frames may be nil for audio-only sessions.
func NewCapture(cfg CaptureConfig, frames FrameSource, logger *slog.Logger) *Capture {
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio = live.CaptureAudioConfig()
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = DefaultCaptureConfig().BlockSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Capture{
		cfg:    cfg,
		frames: frames,
		logger: logger,
		blocks: make(chan []float32, 16),
	}
}

// Acquire claims the microphone and starts the capture device. On any
// failure everything already initialized is released again.
func (c *Capture) Acquire(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.acquired {
		return nil
	}

	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return core.NewDeviceUnavailableError("audio context init failed: " + err.Error())
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(c.cfg.Audio.Channels)
	deviceConfig.SampleRate = uint32(c.cfg.Audio.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			c.onSamples(input)
		},
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		malgoCtx.Uninit()
		malgoCtx.Free()
		return core.NewDeviceUnavailableError("no usable microphone: " + err.Error())
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		malgoCtx.Uninit()
		malgoCtx.Free()
		return core.NewPermissionError("microphone access refused: " + err.Error())
	}

	c.ctx = malgoCtx
	c.device = device
	c.acquired = true
	return nil
}

// onSamples accumulates capture floats into fixed-size blocks. Blocks are
// sent best-effort: capture never blocks on a slow consumer.
func (c *Capture) onSamples(input []byte) {
	c.mu.Lock()
	for i := 0; i+4 <= len(input); i += 4 {
		bits := binary.LittleEndian.Uint32(input[i:])
		c.pending = append(c.pending, math.Float32frombits(bits))
	}
	var ready [][]float32
	for len(c.pending) >= c.cfg.BlockSize {
		block := make([]float32, c.cfg.BlockSize)
		copy(block, c.pending)
		c.pending = c.pending[c.cfg.BlockSize:]
		ready = append(ready, block)
	}
	c.mu.Unlock()

	for _, block := range ready {
		select {
		case c.blocks <- block:
		default:
			// Consumer stalled; drop rather than backpressure the device.
		}
	}
}

// AudioBlocks yields fixed-size microphone sample blocks.
func (c *Capture) AudioBlocks() <-chan []float32 {
	return c.blocks
}

// NextFrameJPEG grabs and compresses the current frame. Returns false when
// no frame source is attached, a compression is still in flight, or the
// grab fails.
func (c *Capture) NextFrameJPEG() ([]byte, bool) {
	if c.frames == nil {
		return nil, false
	}
	if !c.encoding.CompareAndSwap(false, true) {
		return nil, false
	}
	defer c.encoding.Store(false)

	img, err := c.frames.Grab()
	if err != nil {
		c.logger.Debug("frame grab failed", "error", err)
		return nil, false
	}
	data, err := EncodeJPEG(img, c.cfg.Video.Width, c.cfg.Video.JPEGQuality)
	if err != nil {
		c.logger.Debug("frame encode failed", "error", err)
		return nil, false
	}
	return data, true
}

// Release stops the microphone and frees the audio context. Idempotent and
// safe after a partial Acquire.
func (c *Capture) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.acquired {
		return
	}
	if c.device != nil {
		_ = c.device.Stop()
		c.device.Uninit()
		c.device = nil
	}
	if c.ctx != nil {
		c.ctx.Uninit()
		c.ctx.Free()
		c.ctx = nil
	}
	c.pending = nil
	c.acquired = false
}
