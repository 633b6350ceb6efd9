// Package media owns the platform devices: microphone capture, frame
// grabbing and JPEG compression for the outbound stream, and the speaker
// sink that plays scheduled PCM segments on a shared output timeline.
package media
