package gemlive

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultBaseURL     = "wss://generativelanguage.googleapis.com/ws"
	bidiPath           = "/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	defaultInputRate   = 16000
	defaultOutboundCap = 32
)

var (
	// ErrConnection indicates the handshake or transport setup failed.
	ErrConnection = errors.New("gemini live connection failed")
	// ErrNotConnected indicates a send was attempted without an open session.
	ErrNotConnected = errors.New("gemini live session not connected")
	// ErrProtocol indicates a malformed inbound message. The message is
	// dropped; the stream stays open.
	ErrProtocol = errors.New("gemini live protocol violation")
)

// link holds the per-connection state. A fresh link is created on every
// Connect so a stale read loop can never touch a newer connection.
type link struct {
	conn      *websocket.Conn
	outbound  chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closing   atomic.Bool
	opened    atomic.Bool
	dropped   atomic.Uint64
}

// Client represents a client for one Gemini Live websocket channel at a time.
type Client struct {
	cfg       Config
	logger    *zap.Logger
	callbacks Callbacks

	mu   sync.Mutex
	link *link

	writeMu sync.Mutex
}

// NewClient executes the newClient function.
func NewClient(cfg Config, callbacks Callbacks, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.InputRate <= 0 {
		cfg.InputRate = defaultInputRate
	}
	if cfg.OutboundCap <= 0 {
		cfg.OutboundCap = defaultOutboundCap
	}
	return &Client{
		cfg:       cfg,
		logger:    logger,
		callbacks: callbacks,
	}
}

// Connect establishes the channel and sends the session setup message. Any
// prior connection on the same client is torn down first. OnOpened fires once
// the remote acknowledges setup; Connect itself returns after the handshake
// and setup send succeed.
func (c *Client) Connect(ctx context.Context, model string, sessionCfg SessionConfig) error {
	if model == "" {
		return fmt.Errorf("%w: model is empty", ErrConnection)
	}
	if sessionCfg.Modality == "" {
		sessionCfg.Modality = ModalityAudio
	}
	if !sessionCfg.Modality.Valid() {
		return fmt.Errorf("%w: unknown response modality %q", ErrConnection, sessionCfg.Modality)
	}

	c.Disconnect()

	wsURL := endpointURL(c.cfg.BaseURL, c.cfg.APIKey)
	c.logger.Info("gemini live connecting", zap.String("model", model), zap.String("modality", string(sessionCfg.Modality)))

	dialer := websocket.Dialer{}
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	conn, _, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	l := &link{
		conn:     conn,
		outbound: make(chan []byte, c.cfg.OutboundCap),
		done:     make(chan struct{}),
	}

	c.mu.Lock()
	c.link = l
	c.mu.Unlock()

	if err := c.writeJSON(conn, buildSetup(model, sessionCfg)); err != nil {
		c.teardown(l)
		return fmt.Errorf("%w: setup send: %v", ErrConnection, err)
	}

	go c.readLoop(l)
	go c.writeLoop(l)
	return nil
}

// Disconnect closes the channel if open. Safe to call when already closed.
func (c *Client) Disconnect() {
	c.mu.Lock()
	l := c.link
	c.mu.Unlock()
	if l == nil {
		return
	}
	l.closing.Store(true)
	c.teardown(l)
}

// Connected reports whether the setup handshake has completed on the current
// channel.
func (c *Client) Connected() bool {
	c.mu.Lock()
	l := c.link
	c.mu.Unlock()
	return l != nil && l.opened.Load()
}

// SendAudio enqueues one PCM frame for transmission. The call never blocks:
// when the outbound queue is saturated the oldest unsent frame is dropped.
// Ownership of pcm transfers to the client.
func (c *Client) SendAudio(pcm []byte) error {
	c.mu.Lock()
	l := c.link
	c.mu.Unlock()
	if l == nil {
		return ErrNotConnected
	}
	select {
	case l.outbound <- pcm:
		return nil
	default:
	}
	select {
	case <-l.outbound:
	default:
	}
	dropped := l.dropped.Add(1)
	if dropped == 1 || dropped%100 == 0 {
		c.logger.Warn("gemini live outbound audio saturated, dropping oldest frame", zap.Uint64("dropped_total", dropped))
	}
	select {
	case l.outbound <- pcm:
	default:
	}
	return nil
}

// SendText transmits a user text turn, interleaved with audio on the same
// logical stream.
func (c *Client) SendText(text string) error {
	c.mu.Lock()
	l := c.link
	c.mu.Unlock()
	if l == nil {
		return ErrNotConnected
	}
	msg := clientContentMessage{
		ClientContent: clientContent{
			Turns: []contentTurn{
				{Role: "user", Parts: []part{{Text: text}}},
			},
			TurnComplete: true,
		},
	}
	return c.writeJSON(l.conn, msg)
}

// SendToolResults transmits one batch of tool results keyed by call id.
func (c *Client) SendToolResults(results []FunctionResult) error {
	if len(results) == 0 {
		return nil
	}
	c.mu.Lock()
	l := c.link
	c.mu.Unlock()
	if l == nil {
		return ErrNotConnected
	}
	msg := toolResponseMessage{
		ToolResponse: toolResponse{FunctionResponses: results},
	}
	return c.writeJSON(l.conn, msg)
}

// endpointURL appends the BidiGenerateContent RPC path unless the base URL
// already names it, so operators may configure either form.
func endpointURL(base string, apiKey string) string {
	if !strings.Contains(base, "BidiGenerateContent") {
		base += bidiPath
	}
	return base + "?key=" + apiKey
}

// qualifyModel accepts both bare names and resource names.
func qualifyModel(model string) string {
	if strings.HasPrefix(model, "models/") {
		return model
	}
	return "models/" + model
}

func buildSetup(model string, sessionCfg SessionConfig) setupMessage {
	msg := setupMessage{
		Setup: setupPayload{
			Model: qualifyModel(model),
			GenerationConfig: generationConfig{
				ResponseModalities: []string{string(sessionCfg.Modality)},
			},
		},
	}
	if sessionCfg.SystemInstruction != "" {
		msg.Setup.SystemInstruction = &systemInstruction{
			Parts: []part{{Text: sessionCfg.SystemInstruction}},
		}
	}
	if sessionCfg.VoiceName != "" {
		msg.Setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{
				PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: sessionCfg.VoiceName},
			},
		}
	}
	if len(sessionCfg.Tools) > 0 {
		msg.Setup.Tools = []toolGroup{{FunctionDeclarations: sessionCfg.Tools}}
	}
	return msg
}

func (c *Client) writeJSON(conn *websocket.Conn, payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(payload)
}

func (c *Client) writeLoop(l *link) {
	for {
		select {
		case <-l.done:
			return
		case pcm := <-l.outbound:
			msg := realtimeInputMessage{
				RealtimeInput: realtimeInput{
					MediaChunks: []mediaChunk{
						{
							MIMEType: fmt.Sprintf("audio/pcm;rate=%d", c.cfg.InputRate),
							Data:     base64.StdEncoding.EncodeToString(pcm),
						},
					},
				},
			}
			if err := c.writeJSON(l.conn, msg); err != nil {
				if !l.closing.Load() {
					c.reportError(err)
				}
				return
			}
		}
	}
}

func (c *Client) readLoop(l *link) {
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			c.finishLink(l, err)
			return
		}
		c.handleMessage(l, data)
	}
}

// finishLink tears the link down and emits exactly one terminal event for it.
func (c *Client) finishLink(l *link, err error) {
	c.teardown(l)

	switch {
	case l.closing.Load():
		c.emitClosed("client disconnect")
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		reason := "closed by remote"
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) && closeErr.Text != "" {
			reason = closeErr.Text
		}
		c.emitClosed(reason)
	default:
		c.logger.Warn("gemini live connection lost", zap.Error(err))
		c.reportError(err)
	}
}

func (c *Client) handleMessage(l *link, data []byte) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reportError(fmt.Errorf("%w: %v", ErrProtocol, err))
		return
	}

	if msg.Error != nil {
		text := msg.Error.Message
		if text == "" {
			text = "unknown server error"
		}
		c.reportError(fmt.Errorf("gemini live server error: %s", text))
	}

	if msg.SetupComplete != nil && !l.opened.Swap(true) {
		c.logger.Info("gemini live setup acknowledged")
		if c.callbacks.OnOpened != nil {
			c.callbacks.OnOpened()
		}
	}

	if msg.ServerContent != nil {
		c.handleServerContent(msg.ServerContent)
	}

	if msg.ToolCall != nil && len(msg.ToolCall.FunctionCalls) > 0 && c.callbacks.OnToolCall != nil {
		c.callbacks.OnToolCall(msg.ToolCall.FunctionCalls)
	}

	if msg.GoAway != nil {
		c.logger.Info("gemini live goAway received", zap.String("time_left", msg.GoAway.TimeLeft))
	}
}

func (c *Client) handleServerContent(sc *serverContent) {
	if sc.Interrupted && c.callbacks.OnInterrupted != nil {
		c.callbacks.OnInterrupted()
	}

	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData != nil {
				pcm, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
				if err != nil {
					c.reportError(fmt.Errorf("%w: inline audio decode: %v", ErrProtocol, err))
					continue
				}
				if len(pcm) > 0 && c.callbacks.OnAudio != nil {
					c.callbacks.OnAudio(pcm)
				}
			}
			if p.Text != "" && c.callbacks.OnText != nil {
				c.callbacks.OnText(p.Text)
			}
		}
	}

	if sc.TurnComplete && c.callbacks.OnTurnComplete != nil {
		c.callbacks.OnTurnComplete()
	}
}

// teardown detaches and closes the link. Idempotent per link.
func (c *Client) teardown(l *link) {
	c.mu.Lock()
	if c.link == l {
		c.link = nil
	}
	c.mu.Unlock()

	l.closeOnce.Do(func() {
		close(l.done)
		_ = l.conn.Close()
	})
}

func (c *Client) emitClosed(reason string) {
	c.logger.Info("gemini live session closed", zap.String("reason", reason))
	if c.callbacks.OnClosed != nil {
		c.callbacks.OnClosed(reason)
	}
}

func (c *Client) reportError(err error) {
	if c.callbacks.OnError != nil {
		c.callbacks.OnError(err)
	}
}
