// Package protocol defines the JSON messages exchanged with the web frontend
// over the client websocket.
package protocol

// ClientCommand represents a command sent from the web frontend to the
// session gateway.
type ClientCommand struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	AudioPCM  string `json:"audio_pcm,omitempty"`
	AudioRate int    `json:"audio_sample_rate,omitempty"`
	Modality  string `json:"modality,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Client command types.
const (
	CmdConnect     = "connect"
	CmdDisconnect  = "disconnect"
	CmdStartMic    = "start-mic"
	CmdStopMic     = "stop-mic"
	CmdMicAudio    = "mic-audio-data"
	CmdTextInput   = "text-input"
	CmdSetModality = "set-modality"
	CmdInterrupt   = "interrupt-signal"
	CmdHeartbeat   = "heartbeat"
)

// ServerEvent represents a display event pushed to the web frontend.
type ServerEvent struct {
	Type      string        `json:"type"`
	ID        string        `json:"id,omitempty"`
	Status    string        `json:"status,omitempty"`
	Text      string        `json:"text,omitempty"`
	AudioPCM  string        `json:"audio_pcm,omitempty"`
	AudioRate int           `json:"audio_sample_rate,omitempty"`
	Volume    float64       `json:"volume,omitempty"`
	Recording bool          `json:"recording"`
	Message   string        `json:"message,omitempty"`
	Sessions  []SessionCard `json:"sessions,omitempty"`
}

// Server event types.
const (
	EventStatus       = "status"
	EventUtterance    = "utterance"
	EventAudio        = "audio"
	EventSessionCards = "session-cards"
	EventVolume       = "volume"
	EventRecording    = "recording"
	EventError        = "error"
)

// Connection status values carried by EventStatus.
const (
	StatusIdle          = "idle"
	StatusConnecting    = "connecting"
	StatusConnected     = "connected"
	StatusDisconnecting = "disconnecting"
	StatusInterrupted   = "interrupted"
	// StatusReconnectRequired reports a config change that only takes
	// effect on the next connection.
	StatusReconnectRequired = "reconnect-required"
)

// SessionCard is the UI rendering of one schedulable session.
type SessionCard struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Instructor string `json:"instructor"`
	Schedule   string `json:"schedule"`
	SpotsLeft  int    `json:"spots_left"`
	IsFull     bool   `json:"is_full"`
}
