package genlive

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sightline-ai/sightline/pkg/core"
	"github.com/sightline-ai/sightline/pkg/core/live"
)

const (
	// DefaultEndpoint is the Gemini Live bidirectional streaming endpoint.
	DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	defaultConnectTimeout = 15 * time.Second
)

// Config configures a Dialer.
type Config struct {
	// APIKey authenticates the connection; passed as a query parameter.
	APIKey string

	// Endpoint overrides the live websocket URL. Tests point this at a
	// local server.
	Endpoint string

	// ConnectTimeout bounds dial plus setup handshake. Default 15s.
	ConnectTimeout time.Duration
}

// Dialer opens live sessions against the Gemini endpoint.
type Dialer struct {
	cfg    Config
	logger *slog.Logger
}

// NewDialer creates a Dialer.
func NewDialer(cfg Config, logger *slog.Logger) *Dialer {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dialer{cfg: cfg, logger: logger}
}

// Connect dials the endpoint, sends the setup frame and waits for the
// server's setup acknowledgement. Any failure before the acknowledgement is
// a connect error and leaves nothing open.
func (d *Dialer) Connect(ctx context.Context, cfg live.SessionConfig) (live.Session, error) {
	wsURL := d.cfg.Endpoint + "?key=" + d.cfg.APIKey

	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, d.cfg.ConnectTimeout)
		defer cancel()
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, core.NewConnectError(fmt.Sprintf("websocket dial failed (status %d): %v", resp.StatusCode, err))
		}
		return nil, core.NewConnectError(fmt.Sprintf("websocket dial failed: %v", err))
	}

	if err := conn.WriteJSON(buildSetup(cfg)); err != nil {
		_ = conn.Close()
		return nil, core.NewConnectError(fmt.Sprintf("send setup: %v", err))
	}

	_ = conn.SetReadDeadline(time.Now().Add(d.cfg.ConnectTimeout))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, core.NewConnectError(fmt.Sprintf("read setup acknowledgement: %v", err))
	}
	_ = conn.SetReadDeadline(time.Time{})

	var first serverMessage
	if err := json.Unmarshal(payload, &first); err != nil {
		_ = conn.Close()
		return nil, core.NewConnectError(fmt.Sprintf("decode setup acknowledgement: %v", err))
	}
	if first.SetupComplete == nil {
		_ = conn.Close()
		return nil, core.NewConnectError("setup was not acknowledged")
	}

	session := &liveSession{
		conn:   conn,
		logger: d.logger,
		events: make(chan live.Event, 64),
		done:   make(chan struct{}),
		quit:   make(chan struct{}),
	}
	go session.readLoop()
	return session, nil
}

func buildSetup(cfg live.SessionConfig) setupMessage {
	setup := setupPayload{
		Model: qualifyModel(cfg.Model),
		GenerationConfig: &generationConfig{
			ResponseModalities: cfg.ResponseModalities,
		},
		Tools:                    cfg.Tools,
		OutputAudioTranscription: &transcriptionConfig{},
	}
	if cfg.Voice != "" {
		setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: &voiceConfig{
				PrebuiltVoiceConfig: &prebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if cfg.SystemInstruction != "" {
		setup.SystemInstruction = &wireContent{
			Parts: []wirePart{{Text: cfg.SystemInstruction}},
		}
	}
	return setupMessage{Setup: setup}
}

// liveSession is one open duplex connection. Writes are serialized under
// writeMu; the read loop is the only reader.
type liveSession struct {
	conn   *websocket.Conn
	logger *slog.Logger

	events chan live.Event
	done   chan struct{}
	quit   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
}

func (s *liveSession) Events() <-chan live.Event { return s.events }

// SendMedia sends one realtime media chunk. data is already base64.
func (s *liveSession) SendMedia(mimeType, data string) error {
	msg := realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []wireBlob{{MIMEType: mimeType, Data: data}},
		},
	}
	return s.sendJSON(msg)
}

// SendToolResponse returns one tool result keyed by the originating call id.
func (s *liveSession) SendToolResponse(id, name string, response map[string]any) error {
	msg := toolResponseMessage{
		ToolResponse: toolResponse{
			FunctionResponses: []functionResponse{{
				ID:       id,
				Name:     name,
				Response: response,
			}},
		},
	}
	return s.sendJSON(msg)
}

func (s *liveSession) sendJSON(v any) error {
	if s.closed.Load() {
		return core.NewTransportSendError("session is closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(v); err != nil {
		return core.NewTransportSendError(err.Error())
	}
	return nil
}

// Close is idempotent. It unblocks the read loop and waits for it to drain.
func (s *liveSession) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.quit)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(2*time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	<-s.done
	return nil
}

// readLoop decodes inbound frames and emits events in arrival order. Within
// one server-content frame the interruption signal is emitted before any
// audio or transcript it arrived with, so stale playback is cut before new
// speech is enqueued.
func (s *liveSession) readLoop() {
	defer close(s.done)
	defer close(s.events)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.emit(live.ClosedEvent{Reason: "remote closed"})
				return
			}
			s.emit(live.ErrorEvent{Err: err})
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug("undecodable live frame dropped", "error", err)
			continue
		}
		s.dispatch(msg)
	}
}

func (s *liveSession) dispatch(msg serverMessage) {
	switch {
	case msg.ServerContent != nil:
		sc := msg.ServerContent
		if sc.Interrupted {
			s.emit(live.InterruptedEvent{})
		}
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part.InlineData == nil {
					continue
				}
				pcm, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err != nil {
					s.logger.Debug("corrupt audio part dropped", "error", err)
					continue
				}
				s.emit(live.AudioEvent{Data: pcm})
			}
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			s.emit(live.TranscriptEvent{Text: sc.OutputTranscription.Text})
		}
		if sc.TurnComplete {
			s.emit(live.TurnCompleteEvent{})
		}
	case msg.ToolCall != nil:
		calls := make([]live.FunctionCall, 0, len(msg.ToolCall.FunctionCalls))
		for _, call := range msg.ToolCall.FunctionCalls {
			calls = append(calls, live.FunctionCall{
				ID:   call.ID,
				Name: call.Name,
				Args: call.Args,
			})
		}
		if len(calls) > 0 {
			s.emit(live.ToolCallEvent{Calls: calls})
		}
	case msg.GoAway != nil:
		s.emit(live.ClosedEvent{Reason: "server going away"})
	}
}

// emit blocks until the consumer takes the event, preserving arrival order.
// A closing session unblocks it via quit.
func (s *liveSession) emit(ev live.Event) {
	select {
	case s.events <- ev:
	case <-s.quit:
	}
}
