// Package resampler converts 16-bit PCM audio between formats: arbitrary
// hardware sample rates down to the pipeline rate, and stereo down to mono.
// The rate conversion is backed by a pure Go resampling library, so no CGO
// is required.
package resampler

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/voxlate/voxlate/pkg/audio/pcm"
)

// Converter converts PCM16LE audio from a source format to a destination
// format. It is push-driven: each Process call accepts one source buffer and
// returns the converted frames produced so far. Converter reuses internal
// scratch buffers across calls, so the returned slice is only valid until the
// next Process call. Not safe for concurrent use.
type Converter struct {
	src pcm.Format
	dst pcm.Format

	rs resampling.Resampler

	mono []byte
	fin  []float64
	out  []byte
}

// New creates a Converter from src to dst. Only mono and stereo sources are
// supported, and dst must be mono. Returns an error when no conversion can be
// built for the pair.
func New(src, dst pcm.Format) (*Converter, error) {
	if !src.Valid() {
		return nil, fmt.Errorf("resampler: invalid source format %+v", src)
	}
	if !dst.Valid() || dst.Channels != 1 {
		return nil, fmt.Errorf("resampler: invalid destination format %+v", dst)
	}
	if src.Channels > 2 {
		return nil, fmt.Errorf("resampler: unsupported channel count %d", src.Channels)
	}

	c := &Converter{src: src, dst: dst}

	if src.SampleRate != dst.SampleRate {
		rs, err := resampling.New(&resampling.Config{
			InputRate:  float64(src.SampleRate),
			OutputRate: float64(dst.SampleRate),
			Channels:   dst.Channels,
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			return nil, fmt.Errorf("resampler: %w", err)
		}
		c.rs = rs
	}

	return c, nil
}

// Process converts one source buffer. Incomplete trailing frames are dropped.
// The returned slice may be empty while the underlying resampler is still
// priming its filter.
func (c *Converter) Process(data []byte) ([]byte, error) {
	frames := c.src.Frames(len(data))
	if frames == 0 {
		return nil, nil
	}
	data = data[:frames*c.src.FrameBytes()]

	mono := c.downmix(data, frames)

	if c.rs == nil {
		return mono, nil
	}

	// Normalize to float64 in [-1, 1] for the resampling library.
	if cap(c.fin) < frames {
		c.fin = make([]float64, frames)
	}
	fin := c.fin[:frames]
	for i := 0; i < frames; i++ {
		fin[i] = float64(int16(uint16(mono[2*i])|uint16(mono[2*i+1])<<8)) / 32768.0
	}

	fout, err := c.rs.Process(fin)
	if err != nil {
		return nil, fmt.Errorf("resampler: %w", err)
	}

	if cap(c.out) < len(fout)*2 {
		c.out = make([]byte, len(fout)*2)
	}
	out := c.out[:len(fout)*2]
	for i, s := range fout {
		v := int16(s * 32767.0)
		if s > 1.0 {
			v = 32767
		} else if s < -1.0 {
			v = -32768
		}
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	return out, nil
}

// downmix averages stereo frames into mono. Mono input passes through.
func (c *Converter) downmix(data []byte, frames int) []byte {
	if c.src.Channels == 1 {
		return data
	}
	if cap(c.mono) < frames*2 {
		c.mono = make([]byte, frames*2)
	}
	mono := c.mono[:frames*2]
	for i := 0; i < frames; i++ {
		l := int(c.src.Int16(data, i, 0))
		r := int(c.src.Int16(data, i, 1))
		v := int16((l + r) / 2)
		mono[2*i] = byte(v)
		mono[2*i+1] = byte(v >> 8)
	}
	return mono
}
