package fallback

import (
	"context"
	"fmt"
	"sync"

	"github.com/voxlate/voxlate/pkg/audio/pcm"
)

// MockRecognizer is a scripted Recognizer for tests. Transcripts are pushed
// by the test through Emit.
type MockRecognizer struct {
	// Locales recognition claims to support. Empty means everything.
	Locales []string

	// Permission returned by RequestPermission.
	Permission Permission

	// StartErr forces Start to fail.
	StartErr error

	mu      sync.Mutex
	out     chan Transcript
	fed     []pcm.Chunk
	stopped bool
}

func (m *MockRecognizer) Available(locale string) bool {
	if len(m.Locales) == 0 {
		return true
	}
	for _, l := range m.Locales {
		if l == locale {
			return true
		}
	}
	return false
}

func (m *MockRecognizer) RequestPermission(context.Context) Permission {
	if m.Permission == PermissionUndetermined {
		return PermissionGranted
	}
	return m.Permission
}

func (m *MockRecognizer) Start(ctx context.Context, locale string) (<-chan Transcript, error) {
	if m.StartErr != nil {
		return nil, m.StartErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.out = make(chan Transcript, 16)
	m.stopped = false
	return m.out, nil
}

// Emit pushes one transcript update into the active run.
func (m *MockRecognizer) Emit(t Transcript) {
	m.mu.Lock()
	out := m.out
	m.mu.Unlock()
	out <- t
}

func (m *MockRecognizer) Feed(chunk pcm.Chunk) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fed = append(m.fed, chunk)
}

// FedChunks returns the chunks offered so far.
func (m *MockRecognizer) FedChunks() []pcm.Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]pcm.Chunk(nil), m.fed...)
}

func (m *MockRecognizer) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped || m.out == nil {
		return
	}
	m.stopped = true
	close(m.out)
}

// MockTranslator translates by wrapping the input so tests can assert the
// full path without a model.
type MockTranslator struct {
	// Err forces Translate to fail.
	Err error
}

func (m *MockTranslator) Translate(_ context.Context, text, source, target string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	return fmt.Sprintf("[%s→%s] %s", source, target, text), nil
}

// MockSynthesizer records spoken text.
type MockSynthesizer struct {
	// Err forces Speak to fail.
	Err error

	mu      sync.Mutex
	spoken  []string
	cancels int
}

func (m *MockSynthesizer) Speak(_ context.Context, text, lang string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spoken = append(m.spoken, text)
	return nil
}

func (m *MockSynthesizer) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels++
}

// Spoken returns all spoken texts.
func (m *MockSynthesizer) Spoken() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.spoken...)
}

// Cancels reports how many times Cancel was called.
func (m *MockSynthesizer) Cancels() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancels
}

var (
	_ Recognizer  = (*MockRecognizer)(nil)
	_ Translator  = (*MockTranslator)(nil)
	_ Synthesizer = (*MockSynthesizer)(nil)
)
