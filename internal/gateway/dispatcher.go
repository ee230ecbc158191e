package gateway

import (
	"context"
	"encoding/base64"

	"go.uber.org/zap"

	"github.com/hungnci/elevate-fitness/internal/protocol"
	"github.com/hungnci/elevate-fitness/internal/storage"
	"github.com/hungnci/elevate-fitness/internal/tools"
	"github.com/hungnci/elevate-fitness/pkg/gemlive"
)

type commandHandler func(context.Context, protocol.ClientCommand)

func (s *session) dispatch(ctx context.Context, cmd protocol.ClientCommand) {
	handlers := map[string]commandHandler{
		protocol.CmdConnect:     s.onConnect,
		protocol.CmdDisconnect:  s.onDisconnect,
		protocol.CmdStartMic:    s.onStartMic,
		protocol.CmdStopMic:     s.onStopMic,
		protocol.CmdMicAudio:    s.onMicAudio,
		protocol.CmdTextInput:   s.onTextInput,
		protocol.CmdSetModality: s.onSetModality,
		protocol.CmdInterrupt:   s.onInterrupt,
		protocol.CmdHeartbeat:   s.onNoop,
	}

	if handler, ok := handlers[cmd.Type]; ok {
		handler(ctx, cmd)
		return
	}
	s.logger.Debug("unknown client command",
		zap.String("session_id", s.id),
		zap.String("type", cmd.Type),
	)
}

func (s *session) onConnect(ctx context.Context, cmd protocol.ClientCommand) {
	s.ctrl.SetActor(tools.Actor{ID: cmd.UserID})
	if err := s.ctrl.Connect(ctx); err != nil {
		s.sendEvent(protocol.ServerEvent{Type: protocol.EventError, Message: err.Error()})
		return
	}
	s.beginTranscript(cmd.UserID)
}

func (s *session) onDisconnect(_ context.Context, _ protocol.ClientCommand) {
	s.ctrl.Disconnect()
}

func (s *session) onStartMic(_ context.Context, _ protocol.ClientCommand) {
	if err := s.ctrl.StartCapture(); err != nil {
		s.sendEvent(protocol.ServerEvent{Type: protocol.EventError, Message: err.Error()})
	}
}

func (s *session) onStopMic(_ context.Context, _ protocol.ClientCommand) {
	s.ctrl.StopCapture()
}

func (s *session) onMicAudio(_ context.Context, cmd protocol.ClientCommand) {
	if cmd.AudioPCM == "" {
		return
	}
	pcm, err := base64.StdEncoding.DecodeString(cmd.AudioPCM)
	if err != nil {
		s.sendEvent(protocol.ServerEvent{Type: protocol.EventError, Message: "invalid audio payload"})
		return
	}
	// Frames pushed while the mic is stopped are dropped, not an error; the
	// frontend keeps streaming a little past stop.
	_ = s.ctrl.PushAudio(pcm)
}

func (s *session) onTextInput(_ context.Context, cmd protocol.ClientCommand) {
	if cmd.Text == "" {
		return
	}
	if err := s.ctrl.SendText(cmd.Text); err != nil {
		s.sendEvent(protocol.ServerEvent{Type: protocol.EventError, Message: err.Error()})
		return
	}
	s.recordTranscript(storage.RoleUser, cmd.Text)
}

func (s *session) onSetModality(_ context.Context, cmd protocol.ClientCommand) {
	reconnect, err := s.ctrl.SetModality(gemlive.Modality(cmd.Modality))
	if err != nil {
		s.sendEvent(protocol.ServerEvent{Type: protocol.EventError, Message: err.Error()})
		return
	}
	if reconnect {
		s.sendEvent(protocol.ServerEvent{
			Type:    protocol.EventStatus,
			Status:  protocol.StatusReconnectRequired,
			Message: "modality saved; reconnect required to apply",
		})
	}
}

func (s *session) onInterrupt(_ context.Context, _ protocol.ClientCommand) {
	s.ctrl.Interrupt()
}

func (s *session) onNoop(_ context.Context, _ protocol.ClientCommand) {}
