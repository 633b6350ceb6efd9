package live

import (
	"time"

	"google.golang.org/genai"
)

// SessionState represents the lifecycle state of the engine.
type SessionState int

const (
	// StateIdle is the resting state; no hardware or connection is held.
	StateIdle SessionState = iota
	// StateConnecting is while media is being acquired and the remote
	// handshake is in flight.
	StateConnecting
	// StateActive is when the duplex stream is running.
	StateActive
)

// String returns a human-readable state name.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateActive:
		return "ACTIVE"
	default:
		return "UNKNOWN"
	}
}

// SessionConfig holds the remote session parameters sent during setup.
type SessionConfig struct {
	// Model is the live model to connect to.
	Model string `json:"model"`

	// Voice is the prebuilt voice name for synthesized speech.
	Voice string `json:"voice,omitempty"`

	// SystemInstruction steers the narration style.
	SystemInstruction string `json:"system_instruction,omitempty"`

	// ResponseModalities selects what the model streams back. Default: audio.
	ResponseModalities []genai.Modality `json:"response_modalities,omitempty"`

	// Tools are the locally implemented capabilities declared to the model.
	Tools []*genai.Tool `json:"tools,omitempty"`
}

// DefaultSessionConfig returns a SessionConfig with sensible defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Model:              "gemini-live-2.5-flash",
		Voice:              "Puck",
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
	}
}

// AudioConfig specifies audio format parameters.
type AudioConfig struct {
	// SampleRate in Hz. Capture runs at 16000, playback at 24000.
	SampleRate int `json:"sample_rate"`

	// Channels: 1 for mono, 2 for stereo.
	Channels int `json:"channels"`

	// BitsPerSample: typically 16 for PCM.
	BitsPerSample int `json:"bits_per_sample"`
}

// CaptureAudioConfig returns the microphone format expected by the endpoint.
func CaptureAudioConfig() AudioConfig {
	return AudioConfig{
		SampleRate:    16000,
		Channels:      1,
		BitsPerSample: 16,
	}
}

// PlaybackAudioConfig returns the format of inbound synthesized speech.
func PlaybackAudioConfig() AudioConfig {
	return AudioConfig{
		SampleRate:    24000,
		Channels:      1,
		BitsPerSample: 16,
	}
}

// BytesPerSecond returns the audio byte rate.
func (c AudioConfig) BytesPerSecond() int {
	return c.SampleRate * c.Channels * (c.BitsPerSample / 8)
}

// Duration returns the playback duration of the given byte count.
func (c AudioConfig) Duration(bytes int) time.Duration {
	bps := c.BytesPerSecond()
	if bps == 0 || bytes <= 0 {
		return 0
	}
	return time.Duration(bytes) * time.Second / time.Duration(bps)
}

// BytesForDuration returns the byte count for the given duration.
func (c AudioConfig) BytesForDuration(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(int64(c.BytesPerSecond()) * int64(d) / int64(time.Second))
}

// VideoConfig controls the outbound frame sampling cadence.
type VideoConfig struct {
	// Cadence is the frame sampling interval in non-reactive mode.
	Cadence time.Duration `json:"cadence"`

	// ReactiveCadence is the faster interval used for motion-sensitive
	// narration.
	ReactiveCadence time.Duration `json:"reactive_cadence"`

	// Reactive selects which cadence is in effect.
	Reactive bool `json:"reactive"`

	// Width is the fixed downscale width in pixels; height preserves the
	// source aspect ratio.
	Width int `json:"width"`

	// JPEGQuality is the lossy compression quality (1-100).
	JPEGQuality int `json:"jpeg_quality"`
}

// DefaultVideoConfig returns a VideoConfig with sensible defaults.
func DefaultVideoConfig() VideoConfig {
	return VideoConfig{
		Cadence:         1000 * time.Millisecond,
		ReactiveCadence: 600 * time.Millisecond,
		Width:           640,
		JPEGQuality:     80,
	}
}

// Interval returns the cadence currently in effect.
func (c VideoConfig) Interval() time.Duration {
	if c.Reactive {
		return c.ReactiveCadence
	}
	return c.Cadence
}

// ThreatConfig configures the urgent keyword monitor.
type ThreatConfig struct {
	// Keywords is the danger vocabulary matched against narration text.
	Keywords []string `json:"keywords"`

	// Dwell is how long the alert stays raised after the last match.
	Dwell time.Duration `json:"dwell"`
}

// DefaultThreatConfig returns a ThreatConfig with sensible defaults.
func DefaultThreatConfig() ThreatConfig {
	return ThreatConfig{
		Keywords: []string{
			"danger", "dangerous", "weapon", "knife", "gun",
			"fire", "attack", "dog", "threat", "emergency",
		},
		Dwell: 5 * time.Second,
	}
}

// EngineConfig aggregates everything the engine needs to run a session.
type EngineConfig struct {
	Session SessionConfig `json:"session"`
	Video   VideoConfig   `json:"video"`
	Threat  ThreatConfig  `json:"threat"`

	// AudioBlockSize is the number of float samples per outbound encoding
	// block. Default: 4096.
	AudioBlockSize int `json:"audio_block_size"`
}

// DefaultEngineConfig returns an EngineConfig with sensible defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Session:        DefaultSessionConfig(),
		Video:          DefaultVideoConfig(),
		Threat:         DefaultThreatConfig(),
		AudioBlockSize: 4096,
	}
}
