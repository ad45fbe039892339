package openaicompat

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/openai/openai-go"

	"github.com/voxlate/voxlate/pkg/audio/device"
	"github.com/voxlate/voxlate/pkg/audio/pcm"
)

// Synthesizer speaks translated text through an OpenAI-compatible speech
// endpoint and renders the returned PCM on an audio output.
type Synthesizer struct {
	client *openai.Client
	model  string
	voice  string
	host   device.Host
	routes device.RouteSet

	mu  sync.Mutex
	out device.Output
}

// NewSynthesizer creates a Synthesizer playing on the given routes.
func NewSynthesizer(cfg Config, voice string, host device.Host, routes device.RouteSet) (*Synthesizer, error) {
	client, err := cfg.client()
	if err != nil {
		return nil, err
	}
	if voice == "" {
		voice = "alloy"
	}
	return &Synthesizer{
		client: client,
		model:  cfg.Model,
		voice:  voice,
		host:   host,
		routes: routes,
	}, nil
}

// Speak synthesizes text and plays it to completion, unless cancelled.
func (s *Synthesizer) Speak(ctx context.Context, text, lang string) error {
	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          s.model,
		Input:          text,
		Voice:          openai.AudioSpeechNewParamsVoice(s.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatPCM,
	})
	if err != nil {
		return fmt.Errorf("openaicompat: speech synthesis: %w", err)
	}
	defer resp.Body.Close()

	// The PCM response format is 24 kHz mono 16-bit.
	out, err := s.host.OpenOutput(pcm.L16Mono24K, s.routes)
	if err != nil {
		return fmt.Errorf("openaicompat: open output: %w", err)
	}
	s.mu.Lock()
	s.out = out
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.out == out {
			s.out = nil
		}
		s.mu.Unlock()
		out.Close()
	}()

	buf := make([]byte, pcm.L16Mono24K.BytesRate()/10)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				// Cancel closes the output mid-write.
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("openaicompat: playback write: %w", werr)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("openaicompat: reading synthesis stream: %w", err)
		}
	}
}

// Cancel aborts in-flight playback. Idempotent.
func (s *Synthesizer) Cancel() {
	s.mu.Lock()
	out := s.out
	s.out = nil
	s.mu.Unlock()
	if out != nil {
		out.Close()
	}
}
