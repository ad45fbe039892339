package realtime_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxlate/voxlate/pkg/audio/pcm"
	"github.com/voxlate/voxlate/pkg/mode"
	"github.com/voxlate/voxlate/pkg/realtime"
	"github.com/voxlate/voxlate/pkg/translate"
)

type staticCreds string

func (c staticCreds) Credential() (string, bool) { return string(c), c != "" }

// backend is a scripted translation backend for tests. It performs the
// session.created / session.update exchange and then hands the connection to
// the script.
type backend struct {
	t      *testing.T
	srv    *httptest.Server
	hits   atomic.Int32
	config chan json.RawMessage
	script func(conn *websocket.Conn)
}

func newBackend(t *testing.T, script func(conn *websocket.Conn)) *backend {
	t.Helper()
	b := &backend{t: t, config: make(chan json.RawMessage, 1), script: script}
	upgrader := websocket.Upgrader{}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.hits.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		if err := conn.WriteJSON(map[string]any{"type": "session.created"}); err != nil {
			t.Errorf("send session.created: %v", err)
			return
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Errorf("read session.update: %v", err)
			return
		}
		b.config <- json.RawMessage(msg)

		if b.script != nil {
			b.script(conn)
		}
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) url() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http")
}

func (b *backend) sessionUpdate() json.RawMessage {
	select {
	case cfg := <-b.config:
		return cfg
	case <-time.After(2 * time.Second):
		b.t.Fatal("no session.update received")
		return nil
	}
}

func connect(t *testing.T, b *backend, m mode.Mode) *realtime.Session {
	t.Helper()
	client := realtime.NewClient(staticCreds("sk-test"), realtime.WithURL(b.url()))
	s, err := client.Connect(context.Background(), translate.Config{Source: "en", Target: "es"}, m)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(s.Disconnect)
	return s
}

func waitEvent(t *testing.T, s *realtime.Session, kind realtime.EventKind) realtime.Event {
	t.Helper()
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				t.Fatalf("event stream closed waiting for kind %d", kind)
			}
			if ev.Kind == kind {
				return ev
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for event kind %d", kind)
		}
	}
}

func TestConnectMissingCredential(t *testing.T) {
	b := newBackend(t, nil)
	client := realtime.NewClient(staticCreds(""), realtime.WithURL(b.url()))

	_, err := client.Connect(context.Background(), translate.Config{Source: "en", Target: "es"}, mode.Conversation)
	if !errors.Is(err, realtime.ErrMissingCredential) {
		t.Fatalf("Connect = %v, want ErrMissingCredential", err)
	}
	if got := b.hits.Load(); got != 0 {
		t.Fatalf("backend was dialed %d times despite missing credential", got)
	}
}

func TestConnectInvalidURL(t *testing.T) {
	client := realtime.NewClient(staticCreds("sk-test"), realtime.WithURL("http://not-a-ws-url"))
	_, err := client.Connect(context.Background(), translate.Config{Source: "en", Target: "es"}, mode.Conversation)
	if !errors.Is(err, realtime.ErrInvalidURL) {
		t.Fatalf("Connect = %v, want ErrInvalidURL", err)
	}
}

func TestSessionConfigurationFrame(t *testing.T) {
	b := newBackend(t, nil)
	s := connect(t, b, mode.Ambient)
	defer s.Disconnect()

	raw := string(b.sessionUpdate())

	// The threshold literal must survive serialization exactly.
	if !strings.Contains(raw, `"threshold":0.35`) {
		t.Fatalf("session.update threshold not exact: %s", raw)
	}
	for _, want := range []string{
		`"type":"session.update"`,
		`"modalities":["text","audio"]`,
		`"input_audio_format":"pcm16"`,
		`"output_audio_format":"pcm16"`,
		`"type":"server_vad"`,
		`"prefix_padding_ms":500`,
		`"silence_duration_ms":1500`,
		`"input_audio_transcription"`,
	} {
		if !strings.Contains(raw, want) {
			t.Fatalf("session.update missing %s: %s", want, raw)
		}
	}

	var frame struct {
		Session struct {
			Instructions string `json:"instructions"`
		} `json:"session"`
	}
	if err := json.Unmarshal([]byte(raw), &frame); err != nil {
		t.Fatalf("unmarshal session.update: %v", err)
	}
	if !strings.Contains(frame.Session.Instructions, "numbers") {
		t.Fatalf("ambient instructions not applied: %q", frame.Session.Instructions)
	}

	if got := s.State(); got != realtime.StateConnected {
		t.Fatalf("state after connect = %v, want connected", got)
	}
}

func TestAudioRoundTrip(t *testing.T) {
	fragment := []byte{1, 2, 3, 4, 5, 6}
	received := make(chan string, 1)
	// Holds the scripted response back until the test has observed the
	// translating state; writing everything at once would let response.done
	// flip the state back before the assertion runs.
	respond := make(chan struct{})

	b := newBackend(t, func(conn *websocket.Conn) {
		// Read one audio append from the client.
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame struct {
			Type  string `json:"type"`
			Audio string `json:"audio"`
		}
		json.Unmarshal(msg, &frame)
		if frame.Type == "input_audio_buffer.append" {
			received <- frame.Audio
		}

		conn.WriteJSON(map[string]any{"type": "input_audio_buffer.speech_started"})
		<-respond
		conn.WriteJSON(map[string]any{"type": "input_audio_buffer.speech_stopped"})
		conn.WriteJSON(map[string]any{
			"type":  "response.audio.delta",
			"delta": base64.StdEncoding.EncodeToString(fragment),
		})
		conn.WriteJSON(map[string]any{"type": "response.audio_transcript.delta", "delta": "Hola "})
		conn.WriteJSON(map[string]any{"type": "response.audio_transcript.delta", "delta": "mundo"})
		conn.WriteJSON(map[string]any{"type": "response.audio_transcript.done", "transcript": "Hola mundo"})
		conn.WriteJSON(map[string]any{
			"type":       "conversation.item.input_audio_transcription.completed",
			"transcript": "Hello world",
		})
		conn.WriteJSON(map[string]any{"type": "response.done"})

		// Keep the connection open until the client disconnects.
		conn.ReadMessage()
	})

	s := connect(t, b, mode.Conversation)

	chunk := pcm.Chunk{Data: []byte("audio-bytes!"), Format: pcm.L16Mono16K, Captured: time.Now()}
	s.SendAudio(chunk)

	select {
	case got := <-received:
		want := base64.StdEncoding.EncodeToString(chunk.Data)
		if got != want {
			t.Fatalf("backend received audio %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("backend never received audio")
	}

	waitEvent(t, s, realtime.EventSpeechStarted)
	if got := s.State(); got != realtime.StateTranslating {
		t.Fatalf("state after speech_started = %v, want translating", got)
	}
	close(respond)

	if ev := waitEvent(t, s, realtime.EventAudioDelta); string(ev.Audio) != string(fragment) {
		t.Fatalf("audio delta = %v, want %v", ev.Audio, fragment)
	}
	if ev := waitEvent(t, s, realtime.EventTranscriptDone); ev.Text != "Hola mundo" {
		t.Fatalf("transcript done = %q, want %q", ev.Text, "Hola mundo")
	}
	if ev := waitEvent(t, s, realtime.EventInputTranscript); ev.Text != "Hello world" {
		t.Fatalf("input transcript = %q, want %q", ev.Text, "Hello world")
	}

	waitEvent(t, s, realtime.EventTurnDone)
	if got := s.State(); got != realtime.StateConnected {
		t.Fatalf("state after response.done = %v, want connected", got)
	}

	if got := s.SentAudioDuration(); got <= 0 {
		t.Fatalf("SentAudioDuration = %v, want > 0", got)
	}
}

func TestProtocolErrorSurfaces(t *testing.T) {
	b := newBackend(t, func(conn *websocket.Conn) {
		conn.WriteJSON(map[string]any{
			"type":  "error",
			"error": map[string]any{"message": "quota exhausted"},
		})
		conn.ReadMessage()
	})

	s := connect(t, b, mode.Conversation)

	ev := waitEvent(t, s, realtime.EventFailure)
	if ev.Err == nil || !strings.Contains(ev.Err.Error(), "quota exhausted") {
		t.Fatalf("failure event = %v, want backend message", ev.Err)
	}
	if got := s.State(); got != realtime.StateError {
		t.Fatalf("state after protocol error = %v, want error", got)
	}
}

func TestTransportFailureSurfaces(t *testing.T) {
	b := newBackend(t, func(conn *websocket.Conn) {
		conn.Close()
	})

	s := connect(t, b, mode.Conversation)

	ev := waitEvent(t, s, realtime.EventFailure)
	if ev.Err == nil {
		t.Fatal("failure event missing error")
	}
	if got := s.State(); got != realtime.StateError {
		t.Fatalf("state after transport failure = %v, want error", got)
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	b := newBackend(t, func(conn *websocket.Conn) {
		conn.ReadMessage()
	})

	s := connect(t, b, mode.Conversation)
	s.Disconnect()
	s.Disconnect()

	if got := s.State(); got != realtime.StateDisconnected {
		t.Fatalf("state after disconnect = %v, want disconnected", got)
	}

	// SendAudio after disconnect is a no-op.
	s.SendAudio(pcm.Chunk{Data: []byte{1, 2}, Format: pcm.L16Mono16K})
	if got := s.SentAudioDuration(); got != 0 {
		t.Fatalf("audio accounted after disconnect: %v", got)
	}

	// The event stream drains and closes.
	for {
		select {
		case _, ok := <-s.Events():
			if !ok {
				return
			}
		case <-time.After(2 * time.Second):
			t.Fatal("event stream not closed after disconnect")
		}
	}
}
