package audio

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrDevice indicates an audio device could not be opened or failed
// mid-stream.
var ErrDevice = errors.New("audio device failure")

const captureQueueCap = 8

// CaptureDevice is a raw PCM source. Close must unblock a pending Read.
type CaptureDevice interface {
	io.Reader
	io.Closer
}

// DeviceFactory opens a fresh capture device. Called on every Start so a
// stopped capture can be restarted.
type DeviceFactory func() (CaptureDevice, error)

// Capture frames a PCM source into fixed 20 ms chunks and feeds them to a
// bounded queue. When the consumer falls behind the oldest frame is dropped.
type Capture struct {
	open    DeviceFactory
	meter   *Meter
	logger  *zap.Logger
	onError func(error)

	frames  chan []byte
	dropped atomic.Uint64

	mu      sync.Mutex
	dev     CaptureDevice
	stopped chan struct{}
	closing bool
}

// NewCapture creates a stopped capture. onError is invoked when the device
// fails mid-stream; it may be nil.
func NewCapture(open DeviceFactory, meter *Meter, logger *zap.Logger, onError func(error)) *Capture {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Capture{
		open:    open,
		meter:   meter,
		logger:  logger,
		onError: onError,
		frames:  make(chan []byte, captureQueueCap),
	}
}

// Frames returns the frame queue. Frames are pool-backed; the consumer
// should return them with ReleaseBytes.
func (c *Capture) Frames() <-chan []byte {
	return c.frames
}

// Running reports whether the capture loop is active.
func (c *Capture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dev != nil
}

// Start opens the device and begins framing. Starting an already running
// capture is a no-op.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev != nil {
		return nil
	}

	dev, err := c.open()
	if err != nil {
		return fmt.Errorf("%w: open: %v", ErrDevice, err)
	}
	c.dev = dev
	c.closing = false
	c.stopped = make(chan struct{})
	go c.loop(dev, c.stopped)
	c.logger.Info("audio capture started")
	return nil
}

// Stop closes the device and waits for the loop to drain. Safe to call when
// already stopped.
func (c *Capture) Stop() {
	c.mu.Lock()
	dev := c.dev
	stopped := c.stopped
	if dev != nil {
		c.closing = true
		c.dev = nil
		_ = dev.Close()
	}
	c.mu.Unlock()

	if dev == nil {
		return
	}
	<-stopped
	if c.meter != nil {
		c.meter.Reset()
	}
	c.logger.Info("audio capture stopped")
}

func (c *Capture) loop(dev CaptureDevice, stopped chan struct{}) {
	defer close(stopped)

	for {
		frame := AcquireBytes(CaptureFrameBytes)
		if _, err := io.ReadFull(dev, frame); err != nil {
			ReleaseBytes(frame)
			c.finish(dev, err)
			return
		}

		if c.meter != nil {
			c.meter.ObserveBytes(frame)
		}

		select {
		case c.frames <- frame:
			continue
		default:
		}
		select {
		case old := <-c.frames:
			ReleaseBytes(old)
		default:
		}
		dropped := c.dropped.Add(1)
		if dropped == 1 || dropped%100 == 0 {
			c.logger.Warn("capture queue saturated, dropping oldest frame", zap.Uint64("dropped_total", dropped))
		}
		select {
		case c.frames <- frame:
		default:
			ReleaseBytes(frame)
		}
	}
}

// finish handles loop termination, distinguishing a requested Stop from a
// device failure.
func (c *Capture) finish(dev CaptureDevice, err error) {
	c.mu.Lock()
	requested := c.closing
	if c.dev == dev {
		c.dev = nil
		_ = dev.Close()
	}
	c.mu.Unlock()

	if requested {
		return
	}
	c.logger.Warn("audio capture device failed", zap.Error(err))
	if c.onError != nil {
		c.onError(fmt.Errorf("%w: read: %v", ErrDevice, err))
	}
}
