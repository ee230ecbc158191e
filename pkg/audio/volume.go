package audio

import (
	"math"
	"sync"
)

const defaultMeterSmoothing = 0.25

// Meter tracks a smoothed RMS level of a PCM stream, normalized to [0, 1].
// Safe for concurrent use.
type Meter struct {
	mu        sync.Mutex
	smoothing float64
	level     float64
}

// NewMeter creates a meter. Smoothing outside (0, 1] uses the default; a
// higher value tracks the signal faster.
func NewMeter(smoothing float64) *Meter {
	if smoothing <= 0 || smoothing > 1 {
		smoothing = defaultMeterSmoothing
	}
	return &Meter{smoothing: smoothing}
}

// Observe folds one block of samples into the smoothed level.
func (m *Meter) Observe(samples []int16) {
	if len(samples) == 0 {
		return
	}
	var sum float64
	for _, s := range samples {
		f := float64(s) / float64(math.MaxInt16)
		sum += f * f
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms > 1 {
		rms = 1
	}

	m.mu.Lock()
	m.level += m.smoothing * (rms - m.level)
	m.mu.Unlock()
}

// ObserveBytes folds little-endian PCM bytes into the smoothed level.
func (m *Meter) ObserveBytes(pcm []byte) {
	samples := AcquireInt16(len(pcm) / 2)
	samples = BytesToInt16Into(samples, pcm)
	m.Observe(samples)
	ReleaseInt16(samples)
}

// Decay moves the level toward silence. Call on underrun so the meter does
// not freeze at the last heard value.
func (m *Meter) Decay() {
	m.mu.Lock()
	m.level -= m.smoothing * m.level
	if m.level < 1e-4 {
		m.level = 0
	}
	m.mu.Unlock()
}

// Level returns the current smoothed level in [0, 1].
func (m *Meter) Level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// Reset drops the level to zero.
func (m *Meter) Reset() {
	m.mu.Lock()
	m.level = 0
	m.mu.Unlock()
}
