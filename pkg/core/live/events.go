package live

// Event is one inbound event decoded from the remote session stream. Events
// are delivered strictly in arrival order and each is consumed exactly once
// by the engine loop.
type Event interface {
	eventType() string
}

// AudioEvent carries one decoded chunk of synthesized speech (PCM16LE at the
// playback sample rate).
type AudioEvent struct {
	Data []byte
}

func (e AudioEvent) eventType() string { return "audio" }

// TranscriptEvent carries narration transcript text.
type TranscriptEvent struct {
	Text string
}

func (e TranscriptEvent) eventType() string { return "transcript" }

// FunctionCall is one tool invocation requested by the model.
type FunctionCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolCallEvent carries one or more simultaneous tool invocations. Each call
// must receive an independent response keyed by its id.
type ToolCallEvent struct {
	Calls []FunctionCall
}

func (e ToolCallEvent) eventType() string { return "tool_call" }

// InterruptedEvent is the server-signaled barge-in: the user began speaking
// over the assistant and playback must be cut immediately.
type InterruptedEvent struct{}

func (e InterruptedEvent) eventType() string { return "interrupted" }

// TurnCompleteEvent marks the end of one model turn.
type TurnCompleteEvent struct{}

func (e TurnCompleteEvent) eventType() string { return "turn_complete" }

// ClosedEvent signals that the remote ended the session.
type ClosedEvent struct {
	Reason string
}

func (e ClosedEvent) eventType() string { return "closed" }

// ErrorEvent carries a terminal transport error.
type ErrorEvent struct {
	Err error
}

func (e ErrorEvent) eventType() string { return "error" }
