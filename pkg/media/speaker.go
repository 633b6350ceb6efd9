package media

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/sightline-ai/sightline/pkg/core"
	"github.com/sightline-ai/sightline/pkg/core/live"
)

// Speaker plays scheduled PCM16 segments through the default output device.
// It implements the playback sink: segments are placed on a byte-addressed
// output timeline that advances with the device callback, with silence
// filled between them.
type Speaker struct {
	cfg    live.AudioConfig
	logger *slog.Logger
	tl     timeline

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	started bool
}

// NewSpeaker creates a Speaker. The device is not opened until Resume.
func NewSpeaker(cfg live.AudioConfig, logger *slog.Logger) *Speaker {
	if cfg.SampleRate == 0 {
		cfg = live.PlaybackAudioConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Speaker{cfg: cfg, logger: logger}
}

// Now returns the current output timeline position.
func (s *Speaker) Now() time.Duration {
	return s.cfg.Duration(int(s.tl.position()))
}

// Resume opens and starts the output device if it is not already running.
// Safe to call before every scheduled segment.
func (s *Speaker) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return core.NewDeviceUnavailableError("audio context init failed: " + err.Error())
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(s.cfg.Channels)
	deviceConfig.SampleRate = uint32(s.cfg.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, _ uint32) {
			for _, done := range s.tl.fill(output) {
				done()
			}
		},
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		malgoCtx.Uninit()
		malgoCtx.Free()
		return core.NewDeviceUnavailableError("no usable output device: " + err.Error())
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		malgoCtx.Uninit()
		malgoCtx.Free()
		return core.NewDeviceUnavailableError("output device start failed: " + err.Error())
	}

	s.ctx = malgoCtx
	s.device = device
	s.started = true
	return nil
}

// ScheduleAt places pcm on the timeline at start. done fires from the device
// callback once the segment has fully played; the returned stop removes the
// segment without firing done.
func (s *Speaker) ScheduleAt(pcm []byte, start time.Duration, done func()) func() {
	startByte := int64(s.cfg.BytesForDuration(start))
	// Sample-align so a segment never starts mid-sample.
	startByte &^= 1
	return s.tl.add(pcm, startByte, done)
}

// Flush drops every pending segment without firing completions.
func (s *Speaker) Flush() {
	s.tl.flush()
}

// Close stops the device and frees the audio context. The speaker can be
// resumed again afterwards. Idempotent.
func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	if s.device != nil {
		_ = s.device.Stop()
		s.device.Uninit()
		s.device = nil
	}
	if s.ctx != nil {
		s.ctx.Uninit()
		s.ctx.Free()
		s.ctx = nil
	}
	s.tl.flush()
	s.started = false
	return nil
}

type segment struct {
	id        int64
	startByte int64
	data      []byte
	done      func()
}

// timeline is the byte-addressed playback schedule. pos advances only in
// fill; segments before pos play immediately from their remaining portion.
type timeline struct {
	mu     sync.Mutex
	pos    int64
	nextID int64
	segs   []*segment
}

func (t *timeline) position() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pos
}

func (t *timeline) add(data []byte, startByte int64, done func()) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	seg := &segment{id: t.nextID, startByte: startByte, data: data, done: done}
	t.segs = append(t.segs, seg)
	id := seg.id
	return func() { t.remove(id) }
}

func (t *timeline) remove(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, seg := range t.segs {
		if seg.id == id {
			t.segs = append(t.segs[:i], t.segs[i+1:]...)
			return
		}
	}
}

func (t *timeline) flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.segs = nil
}

// fill writes the next len(out) bytes of the timeline into out, advancing
// the position. It returns the done callbacks of segments that finished
// inside this window; the caller invokes them outside the lock.
func (t *timeline) fill(out []byte) []func() {
	for i := range out {
		out[i] = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	windowStart := t.pos
	windowEnd := t.pos + int64(len(out))

	var completed []func()
	remaining := t.segs[:0]
	for _, seg := range t.segs {
		segEnd := seg.startByte + int64(len(seg.data))
		if segEnd <= windowStart {
			// Fully in the past (scheduled behind the clock); treat as played.
			if seg.done != nil {
				completed = append(completed, seg.done)
			}
			continue
		}
		if seg.startByte < windowEnd {
			dst := int64(0)
			src := windowStart - seg.startByte
			if src < 0 {
				dst = -src
				src = 0
			}
			copy(out[dst:], seg.data[src:])
		}
		if segEnd <= windowEnd {
			if seg.done != nil {
				completed = append(completed, seg.done)
			}
			continue
		}
		remaining = append(remaining, seg)
	}
	t.segs = remaining
	t.pos = windowEnd
	return completed
}
