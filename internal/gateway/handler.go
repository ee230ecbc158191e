// Package gateway exposes the voice session to the web frontend over a
// websocket: one connection drives one session controller.
package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hungnci/elevate-fitness/internal/booking"
	"github.com/hungnci/elevate-fitness/internal/controller"
	"github.com/hungnci/elevate-fitness/internal/protocol"
	"github.com/hungnci/elevate-fitness/internal/storage"
	"github.com/hungnci/elevate-fitness/pkg/audio"
	"github.com/hungnci/elevate-fitness/pkg/gemlive"
)

// Config holds what the gateway needs to spin up a session per connection.
type Config struct {
	Gemini            gemlive.Config
	Model             string
	Modality          gemlive.Modality
	VoiceName         string
	SystemInstruction string
	// TranscriptsDir enables conversation transcript persistence when set.
	TranscriptsDir string
}

// Handler upgrades client connections and runs one session each.
type Handler struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader
	cfg      Config
	store    booking.Store
	sessions map[string]*session
	mu       sync.Mutex
}

// NewHandler creates a gateway handler over the booking store.
func NewHandler(logger *zap.Logger, cfg Config, store booking.Store) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		logger:   logger,
		cfg:      cfg,
		store:    store,
		sessions: make(map[string]*session),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

type session struct {
	conn    *websocket.Conn
	sendMu  sync.Mutex
	logger  *zap.Logger
	ctrl    *controller.Controller
	id      string
	pumpEnd chan struct{}

	transcriptsDir string
	transcriptMu   sync.Mutex
	transcriptUID  string
	userID         string
}

// Handle executes the websocket session loop for one client.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess := &session{
		conn:           conn,
		logger:         h.logger,
		id:             fmt.Sprintf("%d", time.Now().UnixNano()),
		pumpEnd:        make(chan struct{}),
		transcriptsDir: h.cfg.TranscriptsDir,
	}
	sess.ctrl = controller.New(controller.Config{
		Model:             h.cfg.Model,
		Modality:          h.cfg.Modality,
		VoiceName:         h.cfg.VoiceName,
		SystemInstruction: h.cfg.SystemInstruction,
	}, controller.Deps{
		Gemini:  h.cfg.Gemini,
		Store:   h.store,
		Speaker: &eventSpeaker{sess: sess},
		Logger:  h.logger,
	})

	h.register(sess)
	sess.logger.Info("client session opened", zap.String("session_id", sess.id))
	go sess.pumpEvents()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			sess.logger.Debug("client connection closed", zap.Error(err))
			break
		}
		var cmd protocol.ClientCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			sess.sendEvent(protocol.ServerEvent{Type: protocol.EventError, Message: "invalid json"})
			continue
		}
		if cmd.Type != protocol.CmdHeartbeat && cmd.Type != protocol.CmdMicAudio {
			sess.logger.Debug("client command",
				zap.String("session_id", sess.id),
				zap.String("type", cmd.Type),
			)
		}
		sess.dispatch(ctx, cmd)
	}

	sess.ctrl.Close()
	<-sess.pumpEnd
	sess.logger.Info("client session closed", zap.String("session_id", sess.id))
	h.unregister(sess.id)
}

func (h *Handler) register(s *session) {
	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()
}

func (h *Handler) unregister(id string) {
	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()
}

// pumpEvents forwards controller display events to the client until the
// controller closes or the socket dies.
func (s *session) pumpEvents() {
	defer close(s.pumpEnd)
	for {
		select {
		case ev := <-s.ctrl.Events():
			if ev.Type == protocol.EventUtterance && ev.Text != "" {
				s.recordTranscript(storage.RoleAssistant, ev.Text)
			}
			if !s.sendEvent(ev) {
				return
			}
		case <-s.ctrl.Done():
			return
		}
	}
}

func (s *session) sendEvent(ev protocol.ServerEvent) bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := s.conn.WriteJSON(ev); err != nil {
		s.logger.Debug("client event send failed", zap.Error(err))
		return false
	}
	return true
}

// beginTranscript opens a fresh transcript for the connected user. A
// failure here only disables persistence for the session.
func (s *session) beginTranscript(userID string) {
	if s.transcriptsDir == "" {
		return
	}
	s.transcriptMu.Lock()
	defer s.transcriptMu.Unlock()
	s.userID = userID
	uid, err := storage.CreateTranscript(s.transcriptsDir, userID)
	if err != nil {
		s.logger.Warn("transcript create failed", zap.Error(err))
		s.transcriptUID = ""
		return
	}
	s.transcriptUID = uid
}

func (s *session) recordTranscript(role string, content string) {
	s.transcriptMu.Lock()
	defer s.transcriptMu.Unlock()
	if s.transcriptUID == "" {
		return
	}
	err := storage.AppendMessage(s.transcriptsDir, s.userID, s.transcriptUID, storage.TranscriptMessage{
		Role:    role,
		Content: content,
	})
	if err != nil {
		s.logger.Warn("transcript append failed", zap.Error(err))
	}
}

// eventSpeaker routes model audio to the browser as display events instead
// of a local device.
type eventSpeaker struct {
	sess *session
}

func (e *eventSpeaker) Write(pcm []byte) error {
	e.sess.sendEvent(protocol.ServerEvent{
		Type:      protocol.EventAudio,
		AudioPCM:  base64.StdEncoding.EncodeToString(pcm),
		AudioRate: audio.OutputSampleRate,
	})
	return nil
}

func (e *eventSpeaker) Reset() error { return nil }

func (e *eventSpeaker) Close() error { return nil }
