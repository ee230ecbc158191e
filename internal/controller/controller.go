// Package controller drives one voice session end to end: it owns the
// lifecycle machine, the Gemini Live client, the capture and playback
// pipelines, and the tool dispatcher, and republishes everything the UI
// needs as display events.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hungnci/elevate-fitness/internal/booking"
	"github.com/hungnci/elevate-fitness/internal/protocol"
	"github.com/hungnci/elevate-fitness/internal/session/fsm"
	"github.com/hungnci/elevate-fitness/internal/tools"
	"github.com/hungnci/elevate-fitness/pkg/audio"
	"github.com/hungnci/elevate-fitness/pkg/gemlive"
)

// ErrNotConnected indicates an operation that requires an open session.
var ErrNotConnected = errors.New("session is not connected")

const (
	eventQueueCap  = 64
	volumeInterval = 100 * time.Millisecond
)

// Config holds the per-session model parameters.
type Config struct {
	Model             string
	Modality          gemlive.Modality
	VoiceName         string
	SystemInstruction string
}

// Deps carries the controller's collaborators. Mic may be nil, in which case
// microphone audio is expected over PushAudio (browser-fed capture).
type Deps struct {
	Gemini  gemlive.Config
	Store   booking.Store
	Mic     audio.DeviceFactory
	Speaker audio.OutputDevice
	Logger  *zap.Logger
	Now     func() time.Time
}

// Controller owns one session. All exported methods are safe for concurrent
// use.
type Controller struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	machine    *fsm.Machine
	client     *gemlive.Client
	registry   *tools.Registry
	dispatcher *tools.Dispatcher
	capture    *audio.Capture
	playback   *audio.Playback
	meter      *audio.Meter

	events chan protocol.ServerEvent
	quit   chan struct{}

	mu       sync.Mutex
	actor    tools.Actor
	modality gemlive.Modality
	stream   *audio.StreamDevice
}

// New creates a controller, registers the booking tool set, and starts the
// background pumps. Call Close to release everything.
func New(cfg Config, deps Deps) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	if cfg.Modality == "" {
		cfg.Modality = gemlive.ModalityAudio
	}

	c := &Controller{
		cfg:      cfg,
		logger:   logger,
		now:      now,
		machine:  fsm.New(),
		registry: tools.NewRegistry(),
		meter:    audio.NewMeter(0),
		events:   make(chan protocol.ServerEvent, eventQueueCap),
		quit:     make(chan struct{}),
		modality: cfg.Modality,
	}
	c.dispatcher = tools.NewDispatcher(c.registry, logger)
	tools.RegisterBookingTools(c.registry, deps.Store, c, now)

	c.client = gemlive.NewClient(deps.Gemini, gemlive.Callbacks{
		OnOpened:       c.onOpened,
		OnAudio:        c.onAudio,
		OnText:         c.onText,
		OnToolCall:     c.onToolCall,
		OnInterrupted:  c.onInterrupted,
		OnTurnComplete: c.onTurnComplete,
		OnClosed:       c.onClosed,
		OnError:        c.onError,
	}, logger)

	mic := deps.Mic
	if mic == nil {
		mic = c.openStream
	}
	c.capture = audio.NewCapture(mic, c.meter, logger, c.onCaptureError)
	c.playback = audio.NewPlayback(deps.Speaker, nil, logger)

	go c.pumpFrames()
	go c.pumpVolume()
	return c
}

// Events returns the display event stream. Events are dropped oldest-first
// when the consumer falls behind.
func (c *Controller) Events() <-chan protocol.ServerEvent {
	return c.events
}

// Done is closed when the controller shuts down.
func (c *Controller) Done() <-chan struct{} {
	return c.quit
}

// SetActor sets the identity tool calls run on behalf of.
func (c *Controller) SetActor(actor tools.Actor) {
	c.mu.Lock()
	c.actor = actor
	c.mu.Unlock()
}

// State returns the lifecycle state.
func (c *Controller) State() fsm.State {
	return c.machine.State()
}

// Connect opens the upstream session. Legal only from idle.
func (c *Controller) Connect(ctx context.Context) error {
	if err := c.machine.Transition(fsm.StateConnecting); err != nil {
		return err
	}
	c.publishStatus(protocol.StatusConnecting)

	c.mu.Lock()
	modality := c.modality
	c.mu.Unlock()

	err := c.client.Connect(ctx, c.cfg.Model, gemlive.SessionConfig{
		Modality:          modality,
		SystemInstruction: c.systemInstruction(),
		VoiceName:         c.cfg.VoiceName,
		Tools:             c.registry.Declarations(),
	})
	if err != nil {
		_ = c.machine.Force(fsm.StateIdle)
		c.publishStatus(protocol.StatusIdle)
		c.publishError(err)
		return err
	}
	return nil
}

// Disconnect tears the session down in order: capture first, then the
// upstream channel, then queued playback.
func (c *Controller) Disconnect() {
	if !c.machine.Is(fsm.StateConnecting, fsm.StateConnected) {
		return
	}
	_ = c.machine.Transition(fsm.StateDisconnecting)
	c.publishStatus(protocol.StatusDisconnecting)

	c.StopCapture()
	c.client.Disconnect()
	c.playback.Interrupt()
}

// StartCapture opens the microphone and begins streaming frames upstream.
func (c *Controller) StartCapture() error {
	if !c.machine.Is(fsm.StateConnected) {
		return ErrNotConnected
	}
	if err := c.capture.Start(); err != nil {
		c.publishError(err)
		return err
	}
	c.publish(protocol.ServerEvent{Type: protocol.EventRecording, Recording: true})
	return nil
}

// StopCapture stops the microphone. Safe to call when not capturing.
func (c *Controller) StopCapture() {
	if !c.capture.Running() {
		return
	}
	c.capture.Stop()

	c.mu.Lock()
	c.stream = nil
	c.mu.Unlock()

	c.publish(protocol.ServerEvent{Type: protocol.EventRecording, Recording: false})
}

// PushAudio feeds browser-captured PCM into the capture pipeline. Rejected
// when the microphone is not started.
func (c *Controller) PushAudio(pcm []byte) error {
	c.mu.Lock()
	stream := c.stream
	c.mu.Unlock()
	if stream == nil || !c.capture.Running() {
		return ErrNotConnected
	}
	stream.Push(pcm)
	return nil
}

// SendText forwards a typed user turn. Requires the connected state.
func (c *Controller) SendText(text string) error {
	if !c.machine.Is(fsm.StateConnected) {
		return ErrNotConnected
	}
	return c.client.SendText(text)
}

// Interrupt cuts model playback short on behalf of the user.
func (c *Controller) Interrupt() {
	c.playback.Interrupt()
	c.machine.MarkInterrupted()
	c.publishStatus(protocol.StatusInterrupted)
}

// SetModality stores the response modality for the NEXT connection; the
// protocol cannot change it mid-session. Returns true when a reconnect is
// needed for it to take effect.
func (c *Controller) SetModality(m gemlive.Modality) (reconnectRequired bool, err error) {
	if !m.Valid() {
		return false, fmt.Errorf("unknown modality %q", m)
	}
	c.mu.Lock()
	c.modality = m
	c.mu.Unlock()
	return c.machine.Is(fsm.StateConnecting, fsm.StateConnected), nil
}

// Close releases the controller. The events channel stays open but quiet.
func (c *Controller) Close() {
	c.Disconnect()
	close(c.quit)
	c.capture.Stop()
	_ = c.playback.Close()
}

// openStream satisfies audio.DeviceFactory for browser-fed capture.
func (c *Controller) openStream() (audio.CaptureDevice, error) {
	stream := audio.NewStreamDevice()
	c.mu.Lock()
	c.stream = stream
	c.mu.Unlock()
	return stream, nil
}

// systemInstruction grounds the configured instruction in the current time
// so relative dates like "tomorrow" resolve correctly.
func (c *Controller) systemInstruction() string {
	stamp := c.now().Format("Monday, January 2, 2006 at 3:04 PM MST")
	if c.cfg.SystemInstruction == "" {
		return "Current date and time: " + stamp
	}
	return c.cfg.SystemInstruction + "\n\nCurrent date and time: " + stamp
}

// pumpFrames forwards capture frames upstream for the life of the controller.
func (c *Controller) pumpFrames() {
	for {
		select {
		case <-c.quit:
			return
		case frame := <-c.capture.Frames():
			if c.machine.Is(fsm.StateConnected) {
				// Ownership of the frame transfers to the client.
				if err := c.client.SendAudio(frame); err != nil {
					audio.ReleaseBytes(frame)
				}
			} else {
				audio.ReleaseBytes(frame)
			}
		}
	}
}

// pumpVolume publishes the smoothed input level while capturing.
func (c *Controller) pumpVolume() {
	ticker := time.NewTicker(volumeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.quit:
			return
		case <-ticker.C:
			if !c.capture.Running() {
				continue
			}
			c.publish(protocol.ServerEvent{Type: protocol.EventVolume, Volume: c.meter.Level()})
		}
	}
}

// ShowSessions implements tools.Display.
func (c *Controller) ShowSessions(sessions []booking.SessionAvailability) {
	cards := make([]protocol.SessionCard, 0, len(sessions))
	for _, s := range sessions {
		cards = append(cards, protocol.SessionCard{
			ID:         s.ID,
			Name:       s.Name,
			Instructor: s.Instructor,
			Schedule:   s.StartTime.Format("Monday, January 2 at 3:04 PM"),
			SpotsLeft:  s.SpotsLeft,
			IsFull:     s.IsFull,
		})
	}
	c.publish(protocol.ServerEvent{
		Type:     protocol.EventSessionCards,
		ID:       uuid.NewString(),
		Sessions: cards,
	})
}

// ShowMessage implements tools.Display.
func (c *Controller) ShowMessage(text string) {
	c.publish(protocol.ServerEvent{
		Type: protocol.EventUtterance,
		ID:   uuid.NewString(),
		Text: text,
	})
}

func (c *Controller) onOpened() {
	if err := c.machine.Transition(fsm.StateConnected); err != nil {
		c.logger.Warn("late setup ack ignored", zap.Error(err))
		return
	}
	c.playback.Start()
	c.publishStatus(protocol.StatusConnected)
}

// onAudio hands model audio to the playback pipeline; the output device
// decides whether that means a local speaker or the browser.
func (c *Controller) onAudio(pcm []byte) {
	c.playback.Enqueue(pcm)
}

func (c *Controller) onText(text string) {
	c.publish(protocol.ServerEvent{
		Type: protocol.EventUtterance,
		ID:   uuid.NewString(),
		Text: text,
	})
}

// onToolCall executes the batch off the read loop so tool latency never
// stalls inbound audio.
func (c *Controller) onToolCall(calls []gemlive.FunctionCall) {
	c.mu.Lock()
	actor := c.actor
	c.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		results := c.dispatcher.Handle(ctx, actor, calls)
		if !c.machine.Is(fsm.StateConnected) {
			c.logger.Info("discarding tool results, session no longer connected", zap.Int("count", len(results)))
			return
		}
		if err := c.client.SendToolResults(results); err != nil {
			c.logger.Warn("tool result send failed", zap.Error(err))
		}
	}()
}

func (c *Controller) onInterrupted() {
	c.machine.MarkInterrupted()
	c.playback.Interrupt()
	c.publishStatus(protocol.StatusInterrupted)
}

func (c *Controller) onTurnComplete() {
	c.machine.ClearInterrupted()
}

// onClosed handles the terminal event of a connection, orderly or not.
func (c *Controller) onClosed(reason string) {
	c.collapse()
	c.publish(protocol.ServerEvent{Type: protocol.EventStatus, Status: protocol.StatusIdle, Message: reason})
}

func (c *Controller) onError(err error) {
	if errors.Is(err, gemlive.ErrProtocol) {
		// Malformed inbound message; the stream itself is still up.
		c.publishError(err)
		return
	}
	c.collapse()
	c.publishStatus(protocol.StatusIdle)
	c.publishError(err)
}

func (c *Controller) onCaptureError(err error) {
	c.publish(protocol.ServerEvent{Type: protocol.EventRecording, Recording: false})
	c.publishError(err)
}

// collapse force-stops everything after the upstream channel died.
func (c *Controller) collapse() {
	c.StopCapture()
	c.playback.Interrupt()
	_ = c.machine.Force(fsm.StateIdle)
}

func (c *Controller) publishStatus(status string) {
	c.publish(protocol.ServerEvent{Type: protocol.EventStatus, Status: status})
}

func (c *Controller) publishError(err error) {
	c.publish(protocol.ServerEvent{Type: protocol.EventError, Message: err.Error()})
}

// publish never blocks; the oldest queued event is dropped on overflow.
func (c *Controller) publish(ev protocol.ServerEvent) {
	select {
	case c.events <- ev:
		return
	default:
	}
	select {
	case <-c.events:
	default:
	}
	select {
	case c.events <- ev:
	default:
	}
}
