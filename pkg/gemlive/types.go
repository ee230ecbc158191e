package gemlive

// Modality selects how the model renders its responses.
type Modality string

const (
	ModalityAudio Modality = "AUDIO"
	ModalityText  Modality = "TEXT"
)

// Valid reports whether the modality is one of the recognized values.
func (m Modality) Valid() bool {
	return m == ModalityAudio || m == ModalityText
}

// Schema describes a tool parameter schema with primitive-typed fields.
type Schema struct {
	Type        string            `json:"type"`
	Description string            `json:"description,omitempty"`
	Properties  map[string]Schema `json:"properties,omitempty"`
	Required    []string          `json:"required,omitempty"`
}

// FunctionDeclaration is one entry of the tool schema sent in session setup.
type FunctionDeclaration struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Parameters  *Schema `json:"parameters,omitempty"`
}

// FunctionCall is a single tool invocation requested by the model mid-stream.
type FunctionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// FunctionResult carries the local execution outcome back to the model,
// correlated by the call id.
type FunctionResult struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// SessionConfig is the negotiated configuration for one session. It is
// validated at construction by the caller and never mutated while connected.
type SessionConfig struct {
	Modality          Modality
	SystemInstruction string
	VoiceName         string
	Tools             []FunctionDeclaration
}

// Config represents the client configuration.
type Config struct {
	BaseURL     string
	APIKey      string
	InputRate   int
	OutboundCap int
}

// Callbacks represents the event handlers invoked by the read loop. Each fires
// at most once per occurrence, in stream order. Handlers must not block.
type Callbacks struct {
	OnOpened       func()
	OnAudio        func(pcm []byte)
	OnText         func(text string)
	OnToolCall     func(calls []FunctionCall)
	OnInterrupted  func()
	OnTurnComplete func()
	OnClosed       func(reason string)
	OnError        func(err error)
}
