package genlive

import (
	"strings"

	"google.golang.org/genai"
)

// Wire format for BidiGenerateContent. Note: the API uses camelCase for
// JSON field names.

// setupMessage is the first client frame on a new connection.
type setupMessage struct {
	Setup setupPayload `json:"setup"`
}

type setupPayload struct {
	Model                    string               `json:"model"`
	GenerationConfig         *generationConfig    `json:"generationConfig,omitempty"`
	SystemInstruction        *wireContent         `json:"systemInstruction,omitempty"`
	Tools                    []*genai.Tool        `json:"tools,omitempty"`
	OutputAudioTranscription *transcriptionConfig `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []genai.Modality `json:"responseModalities,omitempty"`
	SpeechConfig       *speechConfig    `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig *voiceConfig `json:"voiceConfig,omitempty"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig *prebuiltVoiceConfig `json:"prebuiltVoiceConfig,omitempty"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

// transcriptionConfig is empty: presence alone enables transcription.
type transcriptionConfig struct{}

// realtimeInputMessage carries one outbound media chunk.
type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []wireBlob `json:"mediaChunks"`
}

// toolResponseMessage returns structured tool results to the model.
type toolResponseMessage struct {
	ToolResponse toolResponse `json:"toolResponse"`
}

type toolResponse struct {
	FunctionResponses []functionResponse `json:"functionResponses"`
}

type functionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// serverMessage is the envelope for every inbound frame. Exactly one field
// is set per frame.
type serverMessage struct {
	SetupComplete *setupComplete   `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	ToolCall      *toolCallPayload `json:"toolCall,omitempty"`
	GoAway        *goAway          `json:"goAway,omitempty"`
}

type setupComplete struct{}

type serverContent struct {
	ModelTurn           *wireContent   `json:"modelTurn,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
}

type transcription struct {
	Text string `json:"text"`
}

type toolCallPayload struct {
	FunctionCalls []functionCall `json:"functionCalls"`
}

type functionCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type goAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type wirePart struct {
	Text       string    `json:"text,omitempty"`
	InlineData *wireBlob `json:"inlineData,omitempty"`
}

type wireBlob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64 encoded
}

// qualifyModel expands a bare model name to the resource form the live API
// expects. "gemini-live-2.5-flash" -> "models/gemini-live-2.5-flash".
func qualifyModel(model string) string {
	if strings.Contains(model, "/") {
		return model
	}
	return "models/" + model
}
