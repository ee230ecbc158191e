package audio

import (
	"sync"
	"time"
)

// Stream parameters. Capture runs at 16 kHz mono s16le, playback at 24 kHz
// mono s16le, both framed on a 20 ms cadence.
const (
	InputSampleRate  = 16000
	OutputSampleRate = 24000
	FrameDuration    = 20 * time.Millisecond

	// CaptureFrameBytes is one 20 ms frame at the input rate (16000 * 0.02 * 2).
	CaptureFrameBytes = 640
	// PlaybackFrameBytes is one 20 ms frame at the output rate (24000 * 0.02 * 2).
	PlaybackFrameBytes = 960
)

var bytesPool sync.Pool
var int16Pool sync.Pool

// AcquireBytes returns a byte slice with length size.
func AcquireBytes(size int) []byte {
	if size <= 0 {
		return nil
	}
	if v := bytesPool.Get(); v != nil {
		buf := v.([]byte)
		if cap(buf) >= size {
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// ReleaseBytes puts a byte slice back to the pool.
func ReleaseBytes(buf []byte) {
	if buf == nil {
		return
	}
	bytesPool.Put(buf[:0])
}

// AcquireInt16 returns an int16 slice with length size.
func AcquireInt16(size int) []int16 {
	if size <= 0 {
		return nil
	}
	if v := int16Pool.Get(); v != nil {
		buf := v.([]int16)
		if cap(buf) >= size {
			return buf[:size]
		}
	}
	return make([]int16, size)
}

// ReleaseInt16 puts an int16 slice back to the pool.
func ReleaseInt16(buf []int16) {
	if buf == nil {
		return
	}
	int16Pool.Put(buf[:0])
}

// BytesToInt16Into decodes little-endian PCM bytes into dst and returns the
// slice. A trailing odd byte is ignored.
func BytesToInt16Into(dst []int16, pcm []byte) []int16 {
	n := len(pcm) / 2
	if cap(dst) < n {
		dst = make([]int16, n)
	} else {
		dst = dst[:n]
	}
	for i := 0; i < n; i++ {
		offset := i * 2
		dst[i] = int16(pcm[offset]) | int16(pcm[offset+1])<<8
	}
	return dst
}

// Int16ToBytesInto converts int16 samples to little-endian bytes.
func Int16ToBytesInto(dst []byte, samples []int16) []byte {
	needed := len(samples) * 2
	if cap(dst) < needed {
		dst = make([]byte, needed)
	} else {
		dst = dst[:needed]
	}
	for i, sample := range samples {
		offset := i * 2
		dst[offset] = byte(sample)
		dst[offset+1] = byte(sample >> 8)
	}
	return dst
}
