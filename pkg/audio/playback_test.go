package audio

import (
	"sync"
	"testing"
	"time"
)

type recordingSpeaker struct {
	mu      sync.Mutex
	written []byte
	resets  int
	closed  bool
}

func (s *recordingSpeaker) Write(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, pcm...)
	return nil
}

func (s *recordingSpeaker) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	return nil
}

func (s *recordingSpeaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSpeaker) bytesWritten() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.written)
}

func TestPlaybackDrainsQueuedAudio(t *testing.T) {
	spk := &recordingSpeaker{}
	p := NewPlayback(spk, nil, nil)
	p.Enqueue(make([]byte, PlaybackFrameBytes*2))
	p.Start()
	defer p.Close()

	deadline := time.Now().Add(2 * time.Second)
	for p.Buffered() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("buffer did not drain, %d bytes left", p.Buffered())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := spk.bytesWritten(); got < PlaybackFrameBytes*2 {
		t.Fatalf("speaker got %d bytes, want at least %d", got, PlaybackFrameBytes*2)
	}
}

func TestPlaybackInterruptFlushes(t *testing.T) {
	spk := &recordingSpeaker{}
	p := NewPlayback(spk, nil, nil)
	p.Enqueue(make([]byte, PlaybackFrameBytes*50))
	p.Interrupt()

	if got := p.Buffered(); got != 0 {
		t.Fatalf("Buffered()=%d after Interrupt, want 0", got)
	}
	spk.mu.Lock()
	resets := spk.resets
	spk.mu.Unlock()
	if resets != 1 {
		t.Fatalf("device resets=%d, want 1", resets)
	}
}

func TestPlaybackStopIsIdempotent(t *testing.T) {
	spk := &recordingSpeaker{}
	p := NewPlayback(spk, nil, nil)
	p.Start()
	p.Stop()
	p.Stop()
	if err := p.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	spk.mu.Lock()
	closed := spk.closed
	spk.mu.Unlock()
	if !closed {
		t.Fatal("device not closed")
	}
}

func TestPlaybackMeterDecaysOnUnderrun(t *testing.T) {
	m := NewMeter(0.5)
	loud := make([]int16, 320)
	for i := range loud {
		loud[i] = 16000
	}
	m.Observe(loud)
	before := m.Level()

	spk := &recordingSpeaker{}
	p := NewPlayback(spk, m, nil)
	p.Start()
	defer p.Close()

	deadline := time.Now().Add(2 * time.Second)
	for m.Level() >= before {
		if time.Now().After(deadline) {
			t.Fatalf("meter did not decay: level=%v", m.Level())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
