package pcm_test

import (
	"math"
	"testing"
	"time"

	"github.com/voxlate/voxlate/pkg/audio/pcm"
)

func TestFormatArithmetic(t *testing.T) {
	f := pcm.L16Mono16K

	if got := f.FrameBytes(); got != 2 {
		t.Fatalf("FrameBytes = %d, want 2", got)
	}
	if got := f.BytesRate(); got != 32000 {
		t.Fatalf("BytesRate = %d, want 32000", got)
	}
	if got := f.BytesInDuration(150 * time.Millisecond); got != 4800 {
		t.Fatalf("BytesInDuration(150ms) = %d, want 4800", got)
	}
	if got := f.Duration(32000); got != time.Second {
		t.Fatalf("Duration(32000) = %v, want 1s", got)
	}

	stereo := pcm.Format{SampleRate: 48000, Channels: 2}
	if got := stereo.FrameBytes(); got != 4 {
		t.Fatalf("stereo FrameBytes = %d, want 4", got)
	}
	if got := stereo.Frames(400); got != 100 {
		t.Fatalf("stereo Frames(400) = %d, want 100", got)
	}
}

func TestFormatValid(t *testing.T) {
	if !pcm.L16Mono24K.Valid() {
		t.Fatal("L16Mono24K should be valid")
	}
	if (pcm.Format{SampleRate: 0, Channels: 1}).Valid() {
		t.Fatal("zero sample rate should be invalid")
	}
	if (pcm.Format{SampleRate: 16000, Channels: 0}).Valid() {
		t.Fatal("zero channels should be invalid")
	}
}

func TestRMS(t *testing.T) {
	if got := pcm.RMS(nil); got != 0 {
		t.Fatalf("RMS(nil) = %v, want 0", got)
	}

	// Silence.
	silence := make([]byte, 640)
	if got := pcm.RMS(silence); got != 0 {
		t.Fatalf("RMS(silence) = %v, want 0", got)
	}

	// Full-scale square wave has RMS ~1.
	f := pcm.Format{SampleRate: 16000, Channels: 1}
	square := make([]byte, 640)
	for i := 0; i < f.Frames(len(square)); i++ {
		v := int16(32767)
		if i%2 == 1 {
			v = -32767
		}
		f.PutInt16(square, i, 0, v)
	}
	got := pcm.RMS(square)
	if math.Abs(got-1.0) > 0.01 {
		t.Fatalf("RMS(full-scale square) = %v, want ~1", got)
	}

	// Half-scale constant signal has RMS ~0.5.
	half := make([]byte, 640)
	for i := 0; i < f.Frames(len(half)); i++ {
		f.PutInt16(half, i, 0, 16384)
	}
	got = pcm.RMS(half)
	if math.Abs(got-0.5) > 0.01 {
		t.Fatalf("RMS(half-scale) = %v, want ~0.5", got)
	}
}

func TestChunkDuration(t *testing.T) {
	c := pcm.Chunk{
		Data:   make([]byte, 9600),
		Format: pcm.L16Mono16K,
	}
	if got := c.Duration(); got != 300*time.Millisecond {
		t.Fatalf("Duration = %v, want 300ms", got)
	}
}
