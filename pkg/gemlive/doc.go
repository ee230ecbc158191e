// Package gemlive provides a reusable Gemini Live websocket client implementation.
//
// It speaks the BidiGenerateContent protocol: setup/setupComplete negotiation,
// realtime PCM audio input, client text turns, tool call round-trips, and
// downstream audio decoding. Events are delivered through a Callbacks struct in
// the order the remote stream produced them.
package gemlive
