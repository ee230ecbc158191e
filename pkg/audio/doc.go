// Package audio provides the PCM capture and playback pipeline: frame
// conversion helpers, a jitter buffer, a smoothed volume meter, and
// restartable capture/playback loops over pluggable devices.
package audio
