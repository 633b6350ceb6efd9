// Package genlive speaks the Gemini Live bidirectional websocket protocol:
// session setup, realtime media input, tool responses, and the inbound
// server-content stream decoded into engine events.
package genlive
