package audio

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"sync"
)

// OutputDevice is a raw PCM sink. Reset discards audio the device has
// already accepted but not yet rendered.
type OutputDevice interface {
	Write(pcm []byte) error
	Reset() error
	Close() error
}

// FFmpegMic captures the default microphone via an ffmpeg subprocess
// emitting s16le mono at the input rate on stdout.
type FFmpegMic struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
}

// OpenFFmpegMic starts the capture subprocess. It satisfies DeviceFactory.
func OpenFFmpegMic() (CaptureDevice, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, errors.New("ffmpeg is required for mic capture (install ffmpeg and ensure it is in PATH)")
	}
	args, err := micArgs(runtime.GOOS)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg mic capture: %w", err)
	}
	return &FFmpegMic{cmd: cmd, stdout: stdout}, nil
}

func micArgs(goos string) ([]string, error) {
	switch goos {
	case "darwin":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "avfoundation", "-i", ":0",
			"-ac", "1", "-ar", fmt.Sprintf("%d", InputSampleRate),
			"-f", "s16le", "-",
		}, nil
	case "linux":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "pulse", "-i", "default",
			"-ac", "1", "-ar", fmt.Sprintf("%d", InputSampleRate),
			"-f", "s16le", "-",
		}, nil
	default:
		return nil, fmt.Errorf("mic capture is not implemented for %s; supported platforms: darwin, linux", goos)
	}
}

func (m *FFmpegMic) Read(p []byte) (int, error) {
	if m == nil || m.stdout == nil {
		return 0, io.EOF
	}
	return m.stdout.Read(p)
}

func (m *FFmpegMic) Close() error {
	if m == nil {
		return nil
	}
	if m.cmd != nil && m.cmd.Process != nil {
		_ = m.cmd.Process.Kill()
		_ = m.cmd.Wait()
	}
	return nil
}

// FFplaySpeaker renders s16le mono at the output rate through an ffplay
// subprocess. Reset restarts the subprocess, dropping whatever the OS had
// buffered.
type FFplaySpeaker struct {
	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// OpenFFplaySpeaker starts the playback subprocess.
func OpenFFplaySpeaker() (OutputDevice, error) {
	if _, err := exec.LookPath("ffplay"); err != nil {
		return nil, errors.New("ffplay is required for playback (install ffmpeg/ffplay and ensure it is in PATH)")
	}
	s := &FFplaySpeaker{}
	if err := s.startLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FFplaySpeaker) startLocked() error {
	s.cmd = exec.Command("ffplay",
		"-nodisp",
		"-autoexit",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", OutputSampleRate),
		"-ac", "1",
		"-i", "pipe:0",
	)
	stdin, err := s.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open ffplay stdin: %w", err)
	}
	s.cmd.Stdout = io.Discard
	s.cmd.Stderr = io.Discard
	if err := s.cmd.Start(); err != nil {
		return fmt.Errorf("start ffplay: %w", err)
	}
	s.stdin = stdin
	return nil
}

func (s *FFplaySpeaker) Write(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stdin == nil {
		return errors.New("ffplay stdin is not initialized")
	}
	_, err := s.stdin.Write(pcm)
	return err
}

func (s *FFplaySpeaker) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killLocked()
	return s.startLocked()
}

func (s *FFplaySpeaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killLocked()
	return nil
}

func (s *FFplaySpeaker) killLocked() {
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}
	s.stdin = nil
}

// StreamDevice is a channel-fed capture source for audio arriving over a
// network transport instead of a local microphone.
type StreamDevice struct {
	mu       sync.Mutex
	pending  []byte
	incoming chan []byte
	closed   chan struct{}
	once     sync.Once
}

// NewStreamDevice creates an open stream device.
func NewStreamDevice() *StreamDevice {
	return &StreamDevice{
		incoming: make(chan []byte, captureQueueCap),
		closed:   make(chan struct{}),
	}
}

// Push queues PCM bytes for the reader. Returns false after Close or when
// the queue is full.
func (d *StreamDevice) Push(pcm []byte) bool {
	if len(pcm) == 0 {
		return true
	}
	select {
	case <-d.closed:
		return false
	default:
	}
	select {
	case d.incoming <- pcm:
		return true
	case <-d.closed:
		return false
	default:
		return false
	}
}

// Read blocks until pushed bytes are available or the device is closed.
func (d *StreamDevice) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for len(d.pending) == 0 {
		d.mu.Unlock()
		select {
		case chunk := <-d.incoming:
			d.mu.Lock()
			d.pending = append(d.pending, chunk...)
		case <-d.closed:
			d.mu.Lock()
			return 0, io.EOF
		}
	}

	n := copy(p, d.pending)
	d.pending = d.pending[n:]
	return n, nil
}

// Close unblocks pending reads with io.EOF.
func (d *StreamDevice) Close() error {
	d.once.Do(func() { close(d.closed) })
	return nil
}
