package audio

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Playback drains a jitter buffer into an output device on a fixed 20 ms
// cadence. Underruns render silence so the device clock keeps moving.
type Playback struct {
	buf    *FrameBuffer
	dev    OutputDevice
	meter  *Meter
	logger *zap.Logger

	mu      sync.Mutex
	stopped chan struct{}
	quit    chan struct{}
}

// NewPlayback creates a stopped playback over dev. meter may be nil.
func NewPlayback(dev OutputDevice, meter *Meter, logger *zap.Logger) *Playback {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Playback{
		buf:    NewFrameBuffer(0),
		dev:    dev,
		meter:  meter,
		logger: logger,
	}
}

// Enqueue appends received PCM to the jitter buffer.
func (p *Playback) Enqueue(pcm []byte) {
	p.buf.Append(pcm)
}

// Buffered returns the number of queued bytes not yet written to the device.
func (p *Playback) Buffered() int {
	return p.buf.Buffered()
}

// Start launches the cadence loop. Starting a running playback is a no-op.
func (p *Playback) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.quit != nil {
		return
	}
	p.quit = make(chan struct{})
	p.stopped = make(chan struct{})
	go p.loop(p.quit, p.stopped)
	p.logger.Info("audio playback started")
}

// Interrupt discards queued audio and resets the device so in-flight OS
// audio is cut off. The cadence loop keeps running.
func (p *Playback) Interrupt() {
	p.buf.Flush()
	if err := p.dev.Reset(); err != nil {
		p.logger.Warn("playback device reset failed", zap.Error(err))
	}
	if p.meter != nil {
		p.meter.Reset()
	}
}

// Stop halts the cadence loop and discards queued audio. Safe to call when
// already stopped.
func (p *Playback) Stop() {
	p.mu.Lock()
	quit := p.quit
	stopped := p.stopped
	p.quit = nil
	p.stopped = nil
	p.mu.Unlock()

	if quit == nil {
		return
	}
	close(quit)
	<-stopped
	p.Interrupt()
	p.logger.Info("audio playback stopped")
}

// Close stops the loop and releases the device.
func (p *Playback) Close() error {
	p.Stop()
	return p.dev.Close()
}

func (p *Playback) loop(quit, stopped chan struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	frame := make([]byte, PlaybackFrameBytes)
	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
		}

		n := p.buf.ReadBlock(frame)
		if n == 0 {
			if p.meter != nil {
				p.meter.Decay()
			}
			continue
		}
		if p.meter != nil {
			p.meter.ObserveBytes(frame[:n])
		}
		if err := p.dev.Write(frame); err != nil {
			p.logger.Warn("playback device write failed", zap.Error(err))
		}
	}
}
