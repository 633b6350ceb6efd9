package live

import (
	"log/slog"
	"sync"
	"time"
)

// Sink is the output audio engine the scheduler plays through. The
// production implementation renders a silence-padded timeline on a hardware
// playback device; tests substitute a fake with a manual clock.
type Sink interface {
	// Now returns the monotonic output clock position: how much audio time
	// has elapsed since the sink started rendering. It never decreases while
	// the sink is open.
	Now() time.Duration

	// Resume starts the device if it is suspended. Must complete before any
	// scheduling happens.
	Resume() error

	// ScheduleAt queues pcm to begin playing at the given output clock
	// position and returns a function that force-stops the segment. The done
	// callback fires once when playback ends naturally; it must not be
	// invoked synchronously from within ScheduleAt.
	ScheduleAt(pcm []byte, start time.Duration, done func()) (stop func())

	// Flush drops every pending segment without firing completions.
	Flush()

	// Close releases the device. Idempotent.
	Close() error
}

// Scheduler queues decoded speech buffers back-to-back against the sink's
// output clock so that independently arriving chunks play gaplessly. It owns
// the playback clock and the active unit set; nothing else mutates them.
type Scheduler struct {
	cfg    AudioConfig
	sink   Sink
	logger *slog.Logger

	mu     sync.Mutex
	clock  time.Duration
	nextID int64
	active map[int64]func()
}

// NewScheduler creates a scheduler playing through sink at the given format.
func NewScheduler(cfg AudioConfig, sink Sink, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:    cfg,
		sink:   sink,
		logger: logger,
		active: make(map[int64]func()),
	}
}

// Enqueue decodes one inbound audio chunk and schedules it for gapless
// playback. A corrupt chunk is skipped without touching the clock, so one
// bad buffer never stalls the queue. The computed start time is
// max(clock, sink.Now()): never in the past after an idle gap, never before
// the previous unit's end when chunks arrive faster than they play.
func (s *Scheduler) Enqueue(pcm []byte) {
	d, err := decodeUnitDuration(s.cfg, pcm)
	if err != nil {
		s.logger.Debug("skipping undecodable audio chunk", "error", err, "bytes", len(pcm))
		return
	}

	// Resume must complete before scheduling against the clock.
	if err := s.sink.Resume(); err != nil {
		s.logger.Debug("audio sink resume failed, dropping chunk", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.clock
	if now := s.sink.Now(); now > start {
		start = now
	}

	id := s.nextID
	s.nextID++
	stop := s.sink.ScheduleAt(pcm, start, func() {
		s.mu.Lock()
		delete(s.active, id)
		s.mu.Unlock()
	})
	s.active[id] = stop
	s.clock = start + d
}

// Interrupt performs the barge-in hard cut: every active unit is stopped
// immediately, the active set is cleared and the clock resets to zero.
// Partially played audio is discarded, not faded.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	stops := make([]func(), 0, len(s.active))
	for _, stop := range s.active {
		stops = append(stops, stop)
	}
	s.active = make(map[int64]func())
	s.clock = 0
	s.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
	s.sink.Flush()
}

// Reset is the session-stop variant of Interrupt. Same semantics.
func (s *Scheduler) Reset() {
	s.Interrupt()
}

// Clock returns the next-start position. Exposed for the engine's status
// reporting and for tests.
func (s *Scheduler) Clock() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock
}

// ActiveCount returns the number of units currently scheduled or playing.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// decodeUnitDuration validates one PCM16LE chunk and returns its playback
// duration at the configured rate.
func decodeUnitDuration(cfg AudioConfig, pcm []byte) (time.Duration, error) {
	if len(pcm) == 0 {
		return 0, errEmptyChunk
	}
	if len(pcm)%2 != 0 {
		return 0, errOddChunk
	}
	return cfg.Duration(len(pcm)), nil
}

var (
	errEmptyChunk = &chunkError{"empty audio chunk"}
	errOddChunk   = &chunkError{"audio chunk is not whole 16-bit samples"}
)

type chunkError struct{ msg string }

func (e *chunkError) Error() string { return e.msg }
