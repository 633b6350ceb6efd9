package genlive

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sightline-ai/sightline/pkg/core"
	"github.com/sightline-ai/sightline/pkg/core/live"
)

func newLiveTestServer(t *testing.T, handler func(conn *websocket.Conn)) (string, func()) {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handler(conn)
	}))

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	return wsURL, server.Close
}

// ackSetup reads the setup frame and acknowledges it, returning the raw
// setup payload for assertions.
func ackSetup(t *testing.T, conn *websocket.Conn) json.RawMessage {
	t.Helper()
	var raw json.RawMessage
	if err := conn.ReadJSON(&raw); err != nil {
		t.Errorf("read setup: %v", err)
		return nil
	}
	if err := conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}}); err != nil {
		t.Errorf("write setupComplete: %v", err)
	}
	return raw
}

func testDialer(endpoint string) *Dialer {
	return NewDialer(Config{APIKey: "test-key", Endpoint: endpoint, ConnectTimeout: 3 * time.Second}, nil)
}

func TestConnectSendsSetup(t *testing.T) {
	t.Parallel()

	setupCh := make(chan json.RawMessage, 1)
	serverURL, closeServer := newLiveTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		setupCh <- ackSetup(t, conn)
		time.Sleep(100 * time.Millisecond)
	})
	defer closeServer()

	cfg := live.DefaultSessionConfig()
	cfg.SystemInstruction = "Narrate the surroundings."

	sess, err := testDialer(serverURL).Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	var msg struct {
		Setup struct {
			Model            string `json:"model"`
			GenerationConfig struct {
				ResponseModalities []string `json:"responseModalities"`
				SpeechConfig       struct {
					VoiceConfig struct {
						PrebuiltVoiceConfig struct {
							VoiceName string `json:"voiceName"`
						} `json:"prebuiltVoiceConfig"`
					} `json:"voiceConfig"`
				} `json:"speechConfig"`
			} `json:"generationConfig"`
			SystemInstruction struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"systemInstruction"`
		} `json:"setup"`
	}
	if err := json.Unmarshal(<-setupCh, &msg); err != nil {
		t.Fatalf("decode setup: %v", err)
	}
	if msg.Setup.Model != "models/gemini-live-2.5-flash" {
		t.Errorf("model = %q", msg.Setup.Model)
	}
	if got := msg.Setup.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName; got != "Puck" {
		t.Errorf("voice = %q", got)
	}
	if len(msg.Setup.GenerationConfig.ResponseModalities) != 1 || msg.Setup.GenerationConfig.ResponseModalities[0] != "AUDIO" {
		t.Errorf("modalities = %v", msg.Setup.GenerationConfig.ResponseModalities)
	}
	if len(msg.Setup.SystemInstruction.Parts) != 1 || msg.Setup.SystemInstruction.Parts[0].Text != "Narrate the surroundings." {
		t.Errorf("system instruction = %+v", msg.Setup.SystemInstruction)
	}
}

func TestConnectRejectedWithoutAck(t *testing.T) {
	t.Parallel()

	serverURL, closeServer := newLiveTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		var raw json.RawMessage
		_ = conn.ReadJSON(&raw)
		// Wrong first frame: content before setupComplete.
		_ = conn.WriteJSON(map[string]any{"serverContent": map[string]any{"turnComplete": true}})
	})
	defer closeServer()

	_, err := testDialer(serverURL).Connect(context.Background(), live.DefaultSessionConfig())
	if err == nil {
		t.Fatal("expected connect failure")
	}
	coreErr, ok := err.(*core.Error)
	if !ok || coreErr.Type != core.ErrConnect {
		t.Fatalf("err = %v, want connect error", err)
	}
}

func TestConnectDialFailure(t *testing.T) {
	t.Parallel()

	// Nothing is listening here.
	_, err := testDialer("ws://127.0.0.1:1").Connect(context.Background(), live.DefaultSessionConfig())
	if err == nil {
		t.Fatal("expected dial failure")
	}
	if !core.IsUserFacing(err) {
		t.Errorf("dial failure should be user-facing, got %v", err)
	}
}

func TestReadLoopEmitsContentInOrder(t *testing.T) {
	t.Parallel()

	audio := base64.StdEncoding.EncodeToString([]byte{1, 2, 3, 4})
	serverURL, closeServer := newLiveTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		ackSetup(t, conn)

		// One frame carrying interruption, audio and transcript together:
		// the interruption must come out first.
		_ = conn.WriteJSON(map[string]any{
			"serverContent": map[string]any{
				"interrupted": true,
				"modelTurn": map[string]any{
					"parts": []map[string]any{
						{"inlineData": map[string]any{"mimeType": "audio/pcm;rate=24000", "data": audio}},
					},
				},
				"outputTranscription": map[string]any{"text": "on your left"},
				"turnComplete":        true,
			},
		})
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		time.Sleep(100 * time.Millisecond)
	})
	defer closeServer()

	sess, err := testDialer(serverURL).Connect(context.Background(), live.DefaultSessionConfig())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	var got []live.Event
	for ev := range sess.Events() {
		got = append(got, ev)
		if _, ok := ev.(live.ClosedEvent); ok {
			break
		}
	}

	if len(got) != 5 {
		t.Fatalf("got %d events: %+v", len(got), got)
	}
	if _, ok := got[0].(live.InterruptedEvent); !ok {
		t.Errorf("event 0 = %T, want InterruptedEvent", got[0])
	}
	audioEv, ok := got[1].(live.AudioEvent)
	if !ok {
		t.Fatalf("event 1 = %T, want AudioEvent", got[1])
	}
	if len(audioEv.Data) != 4 || audioEv.Data[0] != 1 {
		t.Errorf("audio data = %v", audioEv.Data)
	}
	transcript, ok := got[2].(live.TranscriptEvent)
	if !ok || transcript.Text != "on your left" {
		t.Errorf("event 2 = %+v, want transcript", got[2])
	}
	if _, ok := got[3].(live.TurnCompleteEvent); !ok {
		t.Errorf("event 3 = %T, want TurnCompleteEvent", got[3])
	}
	if _, ok := got[4].(live.ClosedEvent); !ok {
		t.Errorf("event 4 = %T, want ClosedEvent", got[4])
	}
}

func TestReadLoopSkipsCorruptAudio(t *testing.T) {
	t.Parallel()

	serverURL, closeServer := newLiveTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		ackSetup(t, conn)
		_ = conn.WriteJSON(map[string]any{
			"serverContent": map[string]any{
				"modelTurn": map[string]any{
					"parts": []map[string]any{
						{"inlineData": map[string]any{"mimeType": "audio/pcm;rate=24000", "data": "!!!not-base64!!!"}},
					},
				},
				"outputTranscription": map[string]any{"text": "still narrating"},
			},
		})
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		time.Sleep(100 * time.Millisecond)
	})
	defer closeServer()

	sess, err := testDialer(serverURL).Connect(context.Background(), live.DefaultSessionConfig())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	var got []live.Event
	for ev := range sess.Events() {
		got = append(got, ev)
		if _, ok := ev.(live.ClosedEvent); ok {
			break
		}
	}

	// The corrupt audio part is dropped; the transcript still comes through.
	if len(got) != 2 {
		t.Fatalf("got %d events: %+v", len(got), got)
	}
	if transcript, ok := got[0].(live.TranscriptEvent); !ok || transcript.Text != "still narrating" {
		t.Errorf("event 0 = %+v, want transcript", got[0])
	}
}

func TestToolCallRoundTrip(t *testing.T) {
	t.Parallel()

	responseCh := make(chan json.RawMessage, 1)
	serverURL, closeServer := newLiveTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		ackSetup(t, conn)
		_ = conn.WriteJSON(map[string]any{
			"toolCall": map[string]any{
				"functionCalls": []map[string]any{
					{"id": "fc-1", "name": "lookup_location", "args": map[string]any{"verbose": true}},
				},
			},
		})
		var raw json.RawMessage
		if err := conn.ReadJSON(&raw); err == nil {
			responseCh <- raw
		}
	})
	defer closeServer()

	sess, err := testDialer(serverURL).Connect(context.Background(), live.DefaultSessionConfig())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	ev := <-sess.Events()
	toolEv, ok := ev.(live.ToolCallEvent)
	if !ok {
		t.Fatalf("event = %T, want ToolCallEvent", ev)
	}
	if len(toolEv.Calls) != 1 || toolEv.Calls[0].ID != "fc-1" || toolEv.Calls[0].Name != "lookup_location" {
		t.Fatalf("calls = %+v", toolEv.Calls)
	}
	if v, _ := toolEv.Calls[0].Args["verbose"].(bool); !v {
		t.Errorf("args = %v", toolEv.Calls[0].Args)
	}

	if err := sess.SendToolResponse("fc-1", "lookup_location", map[string]any{"address": "5th Ave"}); err != nil {
		t.Fatalf("SendToolResponse: %v", err)
	}

	var msg struct {
		ToolResponse struct {
			FunctionResponses []struct {
				ID       string         `json:"id"`
				Name     string         `json:"name"`
				Response map[string]any `json:"response"`
			} `json:"functionResponses"`
		} `json:"toolResponse"`
	}
	select {
	case raw := <-responseCh:
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("decode tool response: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no tool response received")
	}
	resp := msg.ToolResponse.FunctionResponses
	if len(resp) != 1 || resp[0].ID != "fc-1" || resp[0].Name != "lookup_location" {
		t.Fatalf("function responses = %+v", resp)
	}
	if resp[0].Response["address"] != "5th Ave" {
		t.Errorf("response payload = %v", resp[0].Response)
	}
}

func TestSendMediaWireFormat(t *testing.T) {
	t.Parallel()

	chunkCh := make(chan json.RawMessage, 1)
	serverURL, closeServer := newLiveTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		ackSetup(t, conn)
		var raw json.RawMessage
		if err := conn.ReadJSON(&raw); err == nil {
			chunkCh <- raw
		}
	})
	defer closeServer()

	sess, err := testDialer(serverURL).Connect(context.Background(), live.DefaultSessionConfig())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	payload := base64.StdEncoding.EncodeToString([]byte("pcm"))
	if err := sess.SendMedia("audio/pcm;rate=16000", payload); err != nil {
		t.Fatalf("SendMedia: %v", err)
	}

	var msg struct {
		RealtimeInput struct {
			MediaChunks []struct {
				MIMEType string `json:"mimeType"`
				Data     string `json:"data"`
			} `json:"mediaChunks"`
		} `json:"realtimeInput"`
	}
	select {
	case raw := <-chunkCh:
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("decode chunk: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no media chunk received")
	}
	chunks := msg.RealtimeInput.MediaChunks
	if len(chunks) != 1 || chunks[0].MIMEType != "audio/pcm;rate=16000" || chunks[0].Data != payload {
		t.Fatalf("chunks = %+v", chunks)
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	t.Parallel()

	serverURL, closeServer := newLiveTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		ackSetup(t, conn)
		time.Sleep(200 * time.Millisecond)
	})
	defer closeServer()

	sess, err := testDialer(serverURL).Connect(context.Background(), live.DefaultSessionConfig())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Close twice is safe.
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if err := sess.SendMedia("audio/pcm;rate=16000", "AAAA"); err == nil {
		t.Fatal("expected send failure after close")
	}
}

func TestGoAwayEmitsClosed(t *testing.T) {
	t.Parallel()

	serverURL, closeServer := newLiveTestServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		ackSetup(t, conn)
		_ = conn.WriteJSON(map[string]any{"goAway": map[string]any{"timeLeft": "10s"}})
		time.Sleep(100 * time.Millisecond)
	})
	defer closeServer()

	sess, err := testDialer(serverURL).Connect(context.Background(), live.DefaultSessionConfig())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	ev := <-sess.Events()
	closed, ok := ev.(live.ClosedEvent)
	if !ok {
		t.Fatalf("event = %T, want ClosedEvent", ev)
	}
	if closed.Reason != "server going away" {
		t.Errorf("reason = %q", closed.Reason)
	}
}
