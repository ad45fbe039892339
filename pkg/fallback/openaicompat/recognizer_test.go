package openaicompat_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voxlate/voxlate/pkg/audio/pcm"
	"github.com/voxlate/voxlate/pkg/fallback"
	"github.com/voxlate/voxlate/pkg/fallback/openaicompat"
)

// transcriptionServer returns a longer transcript on every call, the way a
// growing utterance transcribes.
func transcriptionServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("language"); got != "en" {
			t.Errorf("language = %q, want en", got)
		}
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"text":"word%d"}`, n)
	}))
}

func feedAudio(r *openaicompat.Recognizer, ms int) {
	r.Feed(pcm.Chunk{
		Data:     make([]byte, pcm.L16Mono16K.BytesInDuration(time.Duration(ms)*time.Millisecond)),
		Format:   pcm.L16Mono16K,
		Captured: time.Now(),
	})
}

func TestRecognizerPartialsThenFinal(t *testing.T) {
	var calls atomic.Int32
	srv := transcriptionServer(t, &calls)
	defer srv.Close()

	// A generous window keeps the feed-then-read rhythm below the idle
	// finalization threshold.
	rec, err := openaicompat.NewRecognizer(openaicompat.Config{
		BaseURL: srv.URL + "/v1",
		APIKey:  "local",
		Model:   "whisper-1",
	}, openaicompat.WithWindow(100*time.Millisecond))
	if err != nil {
		t.Fatalf("NewRecognizer: %v", err)
	}
	defer rec.Stop()

	transcripts, err := rec.Start(context.Background(), "en")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	feedAudio(rec, 150)
	first := <-transcripts
	if first.Err != nil || first.Final || first.Text != "word1" {
		t.Fatalf("first transcript = %+v, want partial word1", first)
	}

	feedAudio(rec, 150)
	second := <-transcripts
	if second.Final || second.Text != "word2" {
		t.Fatalf("second transcript = %+v, want partial word2", second)
	}

	// No further audio: the next idle window finalizes the utterance.
	final := <-transcripts
	if !final.Final || final.Text != "word2" {
		t.Fatalf("final transcript = %+v, want final word2", final)
	}
}

func TestRecognizerNewUtteranceAfterFinal(t *testing.T) {
	var calls atomic.Int32
	srv := transcriptionServer(t, &calls)
	defer srv.Close()

	rec, err := openaicompat.NewRecognizer(openaicompat.Config{
		BaseURL: srv.URL + "/v1",
		Model:   "whisper-1",
	}, openaicompat.WithWindow(30*time.Millisecond))
	if err != nil {
		t.Fatalf("NewRecognizer: %v", err)
	}
	defer rec.Stop()

	transcripts, err := rec.Start(context.Background(), "en")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	feedAudio(rec, 150)
	<-transcripts // partial
	<-transcripts // final

	feedAudio(rec, 150)
	next := <-transcripts
	if next.Final || next.Text != "word2" {
		t.Fatalf("next utterance transcript = %+v, want fresh partial", next)
	}
}

func TestRecognizerStopEndsStream(t *testing.T) {
	var calls atomic.Int32
	srv := transcriptionServer(t, &calls)
	defer srv.Close()

	rec, err := openaicompat.NewRecognizer(openaicompat.Config{
		BaseURL: srv.URL + "/v1",
		Model:   "whisper-1",
	}, openaicompat.WithWindow(30*time.Millisecond))
	if err != nil {
		t.Fatalf("NewRecognizer: %v", err)
	}

	transcripts, err := rec.Start(context.Background(), "en")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	rec.Stop()
	rec.Stop()

	select {
	case _, ok := <-transcripts:
		if ok {
			t.Fatal("transcript after Stop")
		}
	case <-time.After(time.Second):
		t.Fatal("transcript channel not closed after Stop")
	}

	if _, err := rec.Start(context.Background(), "en"); err != nil {
		t.Fatalf("restart after Stop: %v", err)
	}
	rec.Stop()
}

func TestRecognizerSurfacesTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	rec, err := openaicompat.NewRecognizer(openaicompat.Config{
		BaseURL: srv.URL + "/v1",
		Model:   "whisper-1",
	}, openaicompat.WithWindow(30*time.Millisecond))
	if err != nil {
		t.Fatalf("NewRecognizer: %v", err)
	}
	defer rec.Stop()

	transcripts, err := rec.Start(context.Background(), "en")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	feedAudio(rec, 150)

	got := <-transcripts
	if got.Err == nil {
		t.Fatalf("transcript = %+v, want error", got)
	}
}

func TestRecognizerAvailability(t *testing.T) {
	rec, err := openaicompat.NewRecognizer(openaicompat.Config{Model: "whisper-1"})
	if err != nil {
		t.Fatalf("NewRecognizer: %v", err)
	}
	if !rec.Available("en") {
		t.Fatal("Available(en) = false")
	}
	if rec.Available("  ") {
		t.Fatal("Available(blank) = true")
	}
	if got := rec.RequestPermission(context.Background()); got != fallback.PermissionGranted {
		t.Fatalf("RequestPermission = %v, want granted", got)
	}
}
