package openaicompat

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go"

	"github.com/voxlate/voxlate/pkg/audio/pcm"
	"github.com/voxlate/voxlate/pkg/fallback"
)

// DefaultWindow is the cadence at which accumulated audio is re-transcribed
// for a partial update.
const DefaultWindow = 1500 * time.Millisecond

// Recognizer transcribes captured audio through an OpenAI-compatible
// transcription endpoint (whisper.cpp server, faster-whisper). Fed audio
// accumulates into an utterance buffer that is re-transcribed on a fixed
// cadence; a window with no new audio finalizes the utterance.
type Recognizer struct {
	client *openai.Client
	model  string
	window time.Duration

	mu  sync.Mutex
	buf []byte
	run *recRun
}

type recRun struct {
	cancel      context.CancelFunc
	transcripts chan fallback.Transcript
	done        chan struct{}
}

// RecognizerOption configures a Recognizer.
type RecognizerOption func(*Recognizer)

// WithWindow overrides the transcription cadence.
func WithWindow(d time.Duration) RecognizerOption {
	return func(r *Recognizer) { r.window = d }
}

// NewRecognizer creates a Recognizer against the endpoint in cfg.
func NewRecognizer(cfg Config, opts ...RecognizerOption) (*Recognizer, error) {
	client, err := cfg.client()
	if err != nil {
		return nil, err
	}
	r := &Recognizer{client: client, model: cfg.Model, window: DefaultWindow}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Available reports locale support. Whisper-family models are multilingual,
// so any non-empty locale is accepted.
func (r *Recognizer) Available(locale string) bool {
	return strings.TrimSpace(locale) != ""
}

// RequestPermission always grants: a local HTTP endpoint needs no microphone
// entitlement of its own.
func (r *Recognizer) RequestPermission(context.Context) fallback.Permission {
	return fallback.PermissionGranted
}

// Start begins a recognition run.
func (r *Recognizer) Start(ctx context.Context, locale string) (<-chan fallback.Transcript, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.run != nil {
		return nil, fmt.Errorf("openaicompat: recognition already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	run := &recRun{
		cancel:      cancel,
		transcripts: make(chan fallback.Transcript, 16),
		done:        make(chan struct{}),
	}
	r.run = run
	r.buf = nil
	go r.loop(ctx, run, locale)
	return run.transcripts, nil
}

// Feed appends one captured chunk to the utterance buffer.
func (r *Recognizer) Feed(chunk pcm.Chunk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.run == nil {
		return
	}
	r.buf = append(r.buf, chunk.Data...)
}

// Stop cancels the active run. Idempotent.
func (r *Recognizer) Stop() {
	r.mu.Lock()
	run := r.run
	r.run = nil
	r.buf = nil
	r.mu.Unlock()

	if run == nil {
		return
	}
	run.cancel()
	<-run.done
}

// loop re-transcribes the growing utterance each window. When a window passes
// with no new audio the last transcript is finalized and the buffer cleared.
func (r *Recognizer) loop(ctx context.Context, run *recRun, locale string) {
	defer close(run.done)
	defer close(run.transcripts)

	ticker := time.NewTicker(r.window)
	defer ticker.Stop()

	var lastLen int
	var lastText string

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		r.mu.Lock()
		audio := append([]byte(nil), r.buf...)
		r.mu.Unlock()

		if len(audio) == 0 {
			continue
		}
		if len(audio) == lastLen {
			// Utterance over: no new audio since the last pass.
			if lastText != "" {
				if !deliver(ctx, run.transcripts, fallback.Transcript{Text: lastText, Final: true}) {
					return
				}
			}
			r.mu.Lock()
			if r.run == run {
				r.buf = r.buf[len(audio):]
			}
			r.mu.Unlock()
			lastLen, lastText = 0, ""
			continue
		}
		lastLen = len(audio)

		text, err := r.transcribe(ctx, audio, locale)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			deliver(ctx, run.transcripts, fallback.Transcript{Err: err})
			return
		}
		if text == "" || text == lastText {
			continue
		}
		lastText = text
		if !deliver(ctx, run.transcripts, fallback.Transcript{Text: text}) {
			return
		}
	}
}

func (r *Recognizer) transcribe(ctx context.Context, audio []byte, locale string) (string, error) {
	resp, err := r.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model:    r.model,
		Language: openai.String(locale),
		File:     openai.File(bytes.NewReader(wavBytes(audio, pcm.L16Mono16K)), "utterance.wav", "audio/wav"),
	})
	if err != nil {
		return "", fmt.Errorf("openaicompat: transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func deliver(ctx context.Context, ch chan<- fallback.Transcript, t fallback.Transcript) bool {
	select {
	case ch <- t:
		return true
	case <-ctx.Done():
		return false
	}
}

// wavBytes wraps raw PCM16 in a minimal RIFF/WAVE container for upload.
func wavBytes(data []byte, f pcm.Format) []byte {
	var buf bytes.Buffer
	byteRate := f.SampleRate * f.Channels * 2
	blockAlign := f.Channels * 2

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(data)))
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(f.Channels))
	binary.Write(&buf, binary.LittleEndian, uint32(f.SampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)
	return buf.Bytes()
}
