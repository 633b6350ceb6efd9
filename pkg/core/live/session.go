package live

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"github.com/sightline-ai/sightline/pkg/core"
)

const (
	// MIMEAudioPCM16k is the outbound microphone chunk type.
	MIMEAudioPCM16k = "audio/pcm;rate=16000"
	// MIMEImageJPEG is the outbound frame chunk type.
	MIMEImageJPEG = "image/jpeg"
)

// ErrAlreadyStarted is returned when Start is called while a session is
// already connecting or active. A second start never re-acquires hardware.
var ErrAlreadyStarted = errors.New("live session already started")

// ErrStopped is returned by Start when Stop ran while the remote handshake
// was still in flight. The late session is closed and nothing stays
// acquired.
var ErrStopped = errors.New("live session stopped before start completed")

// Session is one open duplex connection to the remote endpoint. Sends are
// best-effort from the engine's perspective: a failed chunk is dropped, never
// retried, and never backpressures capture.
type Session interface {
	// Events yields inbound events in arrival order. The channel closes when
	// the session ends.
	Events() <-chan Event

	// SendMedia sends one base64-encoded media chunk.
	SendMedia(mimeType, data string) error

	// SendToolResponse returns one structured tool result keyed by call id.
	SendToolResponse(id, name string, response map[string]any) error

	// Close is idempotent and safe on a never-opened session.
	Close() error
}

// Dialer opens sessions. The production implementation speaks the live
// websocket protocol; tests substitute a fake.
type Dialer interface {
	Connect(ctx context.Context, cfg SessionConfig) (Session, error)
}

// MediaSource is the capture adapter: exclusive microphone and frame-source
// handles acquired on start and released on stop.
type MediaSource interface {
	// Acquire claims the hardware. Fails with a permission_denied or
	// device_unavailable error when the platform refuses.
	Acquire(ctx context.Context) error

	// AudioBlocks yields fixed-size float sample blocks from the microphone.
	AudioBlocks() <-chan []float32

	// NextFrameJPEG returns the current frame compressed for the wire, or
	// false when video is unavailable or a previous compression is still in
	// flight (frames are dropped, not queued).
	NextFrameJPEG() ([]byte, bool)

	// Release stops all hardware. Idempotent, safe after partial init.
	Release()
}

// ToolDispatcher matches inbound tool calls to local capabilities.
type ToolDispatcher interface {
	// Declarations yields the tool declarations for session setup.
	Declarations() []*genai.Tool

	// Dispatch executes one call asynchronously and invokes respond exactly
	// once with a structured payload, even on failure.
	Dispatch(ctx context.Context, call FunctionCall, respond func(id, name string, response map[string]any))
}

// Callbacks surface engine activity to the UI layer. All are optional.
type Callbacks struct {
	// OnState fires on every lifecycle transition.
	OnState func(state SessionState)

	// OnStatus receives short user-facing status strings. Per the error
	// design only permission and connection failures show up here.
	OnStatus func(message string)

	// OnThreat fires when the urgent keyword alert is raised or cleared.
	OnThreat func(active bool)

	// OnTranscript receives narration transcript text.
	OnTranscript func(text string)
}

// EngineDeps are the collaborators an Engine is built from.
type EngineDeps struct {
	Dialer    Dialer
	Source    MediaSource
	Sink      Sink
	Tools     ToolDispatcher
	Logger    *slog.Logger
	Callbacks Callbacks
}

// Engine is the session lifecycle controller. It owns the capture handles,
// the playback scheduler and clock, and the threat monitor; all of that state
// lives on one instance constructed by NewEngine and is torn down on Stop.
//
// States: Idle -> Connecting -> Active -> Idle. Failures during start revert
// to Idle with a user-facing reason.
type Engine struct {
	cfg       EngineConfig
	dialer    Dialer
	source    MediaSource
	sink      Sink
	tools     ToolDispatcher
	logger    *slog.Logger
	callbacks Callbacks

	scheduler *Scheduler
	monitor   *ThreatMonitor

	mu        sync.Mutex
	state     SessionState
	sessionID string
	sess      Session
	cancel    context.CancelFunc
	group     *errgroup.Group

	// startGen identifies the Start attempt that owns the Connecting state.
	// A connect that finishes after its attempt was torn down must not
	// install itself over a newer attempt.
	startGen uint64

	// shutdown suppresses late-arriving events and capture callbacks once
	// teardown has begun. It is cleared only by the next Start.
	shutdown atomic.Bool
}

// NewEngine constructs an idle engine.
func NewEngine(cfg EngineConfig, deps EngineDeps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AudioBlockSize <= 0 {
		cfg.AudioBlockSize = DefaultEngineConfig().AudioBlockSize
	}

	e := &Engine{
		cfg:       cfg,
		dialer:    deps.Dialer,
		source:    deps.Source,
		sink:      deps.Sink,
		tools:     deps.Tools,
		logger:    logger,
		callbacks: deps.Callbacks,
		scheduler: NewScheduler(PlaybackAudioConfig(), deps.Sink, logger),
		monitor:   NewThreatMonitor(cfg.Threat),
		state:     StateIdle,
	}
	e.monitor.SetCallbacks(
		func(keyword string) {
			e.logger.Info("threat keyword detected", "keyword", keyword)
			if e.callbacks.OnThreat != nil {
				e.callbacks.OnThreat(true)
			}
		},
		func() {
			if e.callbacks.OnThreat != nil {
				e.callbacks.OnThreat(false)
			}
		},
	)
	return e
}

// Start acquires media, opens the remote session and arms the streaming
// loops. Returns ErrAlreadyStarted while Connecting or Active. On any
// failure the engine reverts to Idle and the reason is surfaced through
// OnStatus.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.state = StateConnecting
	e.shutdown.Store(false)
	e.startGen++
	gen := e.startGen
	e.mu.Unlock()
	e.notifyState(StateConnecting)

	if err := e.source.Acquire(ctx); err != nil {
		e.failStart("microphone or camera unavailable", err)
		return err
	}

	sessCfg := e.cfg.Session
	if e.tools != nil {
		sessCfg.Tools = append(sessCfg.Tools, e.tools.Declarations()...)
	}

	sess, err := e.dialer.Connect(ctx, sessCfg)
	if err != nil {
		e.source.Release()
		if _, ok := err.(*core.Error); !ok {
			err = core.NewConnectError(err.Error())
		}
		e.failStart("connection failed", err)
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	group, groupCtx := errgroup.WithContext(runCtx)

	e.mu.Lock()
	if e.shutdown.Load() || e.startGen != gen {
		// Stop ran while the handshake was in flight and already tore down.
		// Going Active here would strand a session no Stop can ever reach.
		ownsSource := e.startGen == gen
		e.mu.Unlock()
		cancel()
		_ = sess.Close()
		if ownsSource {
			// A newer Start may hold the hardware by now; only the torn-down
			// attempt releases it.
			e.source.Release()
		}
		e.logger.Info("session start aborted by stop")
		return ErrStopped
	}
	e.sess = sess
	e.cancel = cancel
	e.group = group
	e.sessionID = uuid.NewString()
	e.state = StateActive
	e.mu.Unlock()

	group.Go(func() error { return e.inboundLoop(groupCtx, sess) })
	group.Go(func() error { return e.audioLoop(groupCtx, sess) })
	group.Go(func() error { return e.videoLoop(groupCtx, sess) })

	e.notifyState(StateActive)
	e.logger.Info("live session active", "session_id", e.sessionID, "model", sessCfg.Model)
	return nil
}

// Stop tears the session down in strict order: sampling loops, remote close,
// playback reset, audio engine release, media hardware release. Each step is
// independently guarded so one failure never skips the rest. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state == StateIdle {
		e.mu.Unlock()
		return
	}
	if e.shutdown.Swap(true) {
		// Teardown already in progress on another goroutine.
		e.mu.Unlock()
		return
	}
	sess := e.sess
	cancel := e.cancel
	group := e.group
	e.mu.Unlock()

	// 1. Cancel the video sampling timer and the streaming loops.
	if cancel != nil {
		cancel()
	}
	if group != nil {
		_ = group.Wait()
	}

	// 2. Request session close.
	if sess != nil {
		if err := sess.Close(); err != nil {
			e.logger.Debug("session close failed", "error", err)
		}
	}

	// 3. Stop all active playback units and reset the clock.
	e.scheduler.Reset()

	// 4. Release the output audio engine.
	if e.sink != nil {
		if err := e.sink.Close(); err != nil {
			e.logger.Debug("audio sink close failed", "error", err)
		}
	}

	// 5. Release media hardware.
	e.source.Release()

	e.monitor.Cancel()

	e.mu.Lock()
	e.sess = nil
	e.cancel = nil
	e.group = nil
	e.state = StateIdle
	e.mu.Unlock()

	e.notifyState(StateIdle)
	e.logger.Info("live session stopped")
}

// State returns the current lifecycle state.
func (e *Engine) State() SessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SessionID returns the identity handle of the active session, or "" when
// idle.
func (e *Engine) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateActive {
		return ""
	}
	return e.sessionID
}

// Scheduler exposes the playback scheduler for status reporting.
func (e *Engine) Scheduler() *Scheduler {
	return e.scheduler
}

// ThreatActive reports whether the urgent keyword alert is raised.
func (e *Engine) ThreatActive() bool {
	return e.monitor.Active()
}

// inboundLoop consumes transport events on a single goroutine, preserving
// arrival order. It is the only place the scheduler, dispatcher and monitor
// are fed from.
func (e *Engine) inboundLoop(ctx context.Context, sess Session) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sess.Events():
			if !ok {
				if !e.shutdown.Load() {
					e.logger.Info("remote closed the session")
					go e.Stop()
				}
				return nil
			}
			if e.shutdown.Load() {
				continue
			}
			e.handleEvent(ctx, sess, ev)
		}
	}
}

func (e *Engine) handleEvent(ctx context.Context, sess Session, ev Event) {
	switch event := ev.(type) {
	case AudioEvent:
		e.scheduler.Enqueue(event.Data)
	case TranscriptEvent:
		if e.callbacks.OnTranscript != nil {
			e.callbacks.OnTranscript(event.Text)
		}
		e.monitor.Observe(event.Text)
	case ToolCallEvent:
		if e.tools == nil {
			return
		}
		for _, call := range event.Calls {
			e.tools.Dispatch(ctx, call, func(id, name string, response map[string]any) {
				// No response is sent after teardown begins.
				if e.shutdown.Load() {
					return
				}
				if err := sess.SendToolResponse(id, name, response); err != nil {
					e.logger.Debug("tool response dropped", "tool", name, "error", err)
				}
			})
		}
	case InterruptedEvent:
		e.scheduler.Interrupt()
		e.logger.Debug("playback interrupted by barge-in")
	case TurnCompleteEvent:
		e.logger.Debug("model turn complete")
	case ClosedEvent:
		e.logger.Info("remote closed the session", "reason", event.Reason)
		go e.Stop()
	case ErrorEvent:
		e.logger.Error("session transport error", "error", event.Err)
		e.notifyStatus("connection lost")
		go e.Stop()
	}
}

// audioLoop drains capture blocks, encodes them and sends best-effort. Send
// failures are discarded so a saturated channel never backpressures capture.
func (e *Engine) audioLoop(ctx context.Context, sess Session) error {
	blocks := e.source.AudioBlocks()
	for {
		select {
		case <-ctx.Done():
			return nil
		case block, ok := <-blocks:
			if !ok {
				return nil
			}
			if e.shutdown.Load() {
				continue
			}
			if e.logger.Enabled(ctx, slog.LevelDebug) {
				e.logger.Debug("mic level", "rms", BlockRMSEnergy(block))
			}
			pcm := EncodePCM16LE(block)
			data := base64.StdEncoding.EncodeToString(pcm)
			if err := sess.SendMedia(MIMEAudioPCM16k, data); err != nil {
				e.logger.Debug("audio chunk dropped", "error", err)
			}
		}
	}
}

// videoLoop samples frames on the configured cadence. Cadence is a rate, not
// a guarantee: the source drops frames while a compression is in flight.
func (e *Engine) videoLoop(ctx context.Context, sess Session) error {
	ticker := newTicker(e.cfg.Video.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if e.shutdown.Load() {
				continue
			}
			jpeg, ok := e.source.NextFrameJPEG()
			if !ok {
				continue
			}
			data := base64.StdEncoding.EncodeToString(jpeg)
			if err := sess.SendMedia(MIMEImageJPEG, data); err != nil {
				e.logger.Debug("image chunk dropped", "error", err)
			}
		}
	}
}

func newTicker(interval time.Duration) *time.Ticker {
	if interval <= 0 {
		interval = DefaultVideoConfig().Cadence
	}
	return time.NewTicker(interval)
}

func (e *Engine) failStart(status string, err error) {
	e.mu.Lock()
	e.state = StateIdle
	e.mu.Unlock()
	e.logger.Error("session start failed", "error", err)
	e.notifyStatus(status)
	e.notifyState(StateIdle)
}

func (e *Engine) notifyState(state SessionState) {
	if e.callbacks.OnState != nil {
		e.callbacks.OnState(state)
	}
}

func (e *Engine) notifyStatus(message string) {
	if e.callbacks.OnStatus != nil {
		e.callbacks.OnStatus(message)
	}
}
