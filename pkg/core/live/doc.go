// Package live implements the live multimodal session engine: gapless
// playback scheduling for inbound speech, outbound media cadence, urgent
// keyword monitoring and the session lifecycle state machine tying them
// together. The remote endpoint, audio hardware and tool capabilities are
// collaborators reached through the narrow interfaces defined here.
package live
