// Package pcm provides types and arithmetic for 16-bit signed little-endian
// PCM audio: format descriptions, duration/byte conversions, amplitude
// measurement, and the Chunk type carried through the capture pipeline.
package pcm

import (
	"math"
	"time"
)

// Format describes a PCM audio format. Samples are always 16-bit signed
// little-endian; only the sample rate and channel count vary.
type Format struct {
	// SampleRate is the sample rate in Hz (e.g., 16000, 44100, 48000).
	SampleRate int

	// Channels is the number of interleaved channels.
	Channels int
}

// Fixed formats used by the translation pipeline.
var (
	// L16Mono16K is the outbound capture format: PCM16, 16 kHz, mono.
	L16Mono16K = Format{SampleRate: 16000, Channels: 1}

	// L16Mono24K is the inbound playback format: PCM16, 24 kHz, mono.
	L16Mono24K = Format{SampleRate: 24000, Channels: 1}
)

// Depth returns the bit depth. All formats in this package are 16-bit.
func (f Format) Depth() int { return 16 }

// Valid reports whether the format has a usable sample rate and channel count.
func (f Format) Valid() bool { return f.SampleRate > 0 && f.Channels > 0 }

// FrameBytes returns the number of bytes in one frame (one sample per channel).
func (f Format) FrameBytes() int { return 2 * f.Channels }

// Frames returns the number of complete frames in the given number of bytes.
func (f Format) Frames(bytes int) int { return bytes / f.FrameBytes() }

// BytesRate returns the byte rate of audio in this format.
func (f Format) BytesRate() int { return f.SampleRate * f.FrameBytes() }

// FramesInDuration returns the number of frames spanning the given duration.
func (f Format) FramesInDuration(d time.Duration) int {
	return int(time.Duration(f.SampleRate) * d / time.Second)
}

// BytesInDuration returns the number of bytes spanning the given duration.
func (f Format) BytesInDuration(d time.Duration) int {
	return f.FramesInDuration(d) * f.FrameBytes()
}

// Duration returns the duration of the given number of bytes.
func (f Format) Duration(bytes int) time.Duration {
	if f.SampleRate == 0 {
		return 0
	}
	return time.Duration(f.Frames(bytes)) * time.Second / time.Duration(f.SampleRate)
}

// Chunk is a single buffer of captured audio. A chunk is produced once by the
// capture engine and consumed once by whichever pipeline is armed; it is not
// retained after consumption.
type Chunk struct {
	// Data holds interleaved 16-bit signed little-endian samples.
	Data []byte

	// Format describes the sample layout of Data.
	Format Format

	// Captured is the monotonic capture timestamp.
	Captured time.Time
}

// Duration returns the audio duration of the chunk.
func (c Chunk) Duration() time.Duration { return c.Format.Duration(len(c.Data)) }

// RMS computes the root-mean-square amplitude of a PCM16LE buffer, normalized
// to [0, 1]. Trailing odd bytes are ignored. The computation is a single pass
// with no allocation so it is safe on the capture path.
func RMS(data []byte) float64 {
	n := len(data) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(uint16(data[2*i])|uint16(data[2*i+1])<<8)) / 32768.0
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

// Int16 reads the sample at frame index i, channel ch from a PCM16LE buffer.
func (f Format) Int16(data []byte, i, ch int) int16 {
	off := (i*f.Channels + ch) * 2
	return int16(uint16(data[off]) | uint16(data[off+1])<<8)
}

// PutInt16 writes the sample at frame index i, channel ch in a PCM16LE buffer.
func (f Format) PutInt16(data []byte, i, ch int, v int16) {
	off := (i*f.Channels + ch) * 2
	data[off] = byte(v)
	data[off+1] = byte(v >> 8)
}
