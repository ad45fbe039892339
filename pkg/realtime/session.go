package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxlate/voxlate/pkg/audio/pcm"
)

// EventKind tags a session event.
type EventKind int

const (
	// EventAudioDelta carries one synthesized audio fragment (PCM16, 24 kHz,
	// mono), to be appended to playback.
	EventAudioDelta EventKind = iota

	// EventTranscriptDelta carries streamed translated text.
	EventTranscriptDelta

	// EventTranscriptDone carries the final translated text of a turn.
	EventTranscriptDone

	// EventInputTranscript carries the final original-language transcript.
	EventInputTranscript

	// EventSpeechStarted reports the server VAD utterance start.
	EventSpeechStarted

	// EventSpeechStopped reports the server VAD utterance end.
	EventSpeechStopped

	// EventTurnDone reports the end of a translation turn.
	EventTurnDone

	// EventFailure reports a protocol or transport failure. The session state
	// is StateError; restart is an explicit action by the coordinator.
	EventFailure
)

// Event is one session event, delivered in strict arrival order.
type Event struct {
	Kind  EventKind
	Audio []byte
	Text  string
	Err   error
}

// Session is one live connection to the translation backend. Sessions are
// created by Client.Connect; a fresh connect never reuses a prior session's
// resources.
type Session struct {
	conn *websocket.Conn
	log  *slog.Logger

	state atomic.Int32

	events chan Event
	sendCh chan any

	closeOnce sync.Once
	closeCh   chan struct{}
	writeDone chan struct{}

	sentBytes atomic.Int64
}

func newSession(conn *websocket.Conn, log *slog.Logger) *Session {
	return &Session{
		conn:      conn,
		log:       log,
		events:    make(chan Event, 64),
		sendCh:    make(chan any, 64),
		closeCh:   make(chan struct{}),
		writeDone: make(chan struct{}),
	}
}

// State returns the current session state.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) {
	old := State(s.state.Swap(int32(st)))
	if old != st {
		s.log.Debug("session state", "from", old.String(), "to", st.String())
	}
}

// Events returns the session's event stream. Events arrive in wire order; the
// channel closes when the receive loop ends.
func (s *Session) Events() <-chan Event { return s.events }

// SendAudio encodes and enqueues one captured chunk. It is a no-op unless the
// session is connected or translating, and it never blocks the caller: the
// outbound queue absorbs bursts and overflow is dropped.
func (s *Session) SendAudio(c pcm.Chunk) {
	st := s.State()
	if st != StateConnected && st != StateTranslating {
		return
	}
	frame := audioAppend{
		EventID: newEventID(),
		Type:    typeInputAudioBufferAppend,
		Audio:   base64.StdEncoding.EncodeToString(c.Data),
	}
	select {
	case s.sendCh <- frame:
		s.sentBytes.Add(int64(len(c.Data)))
	default:
		s.log.Warn("outbound queue full, chunk dropped")
	}
}

// SentAudioDuration reports how much captured audio has been streamed to the
// backend, for usage accounting.
func (s *Session) SentAudioDuration() time.Duration {
	return pcm.L16Mono16K.Duration(int(s.sentBytes.Load()))
}

// Disconnect cancels the receive loop, closes the transport, and sets the
// state to disconnected. Idempotent.
func (s *Session) Disconnect() {
	s.closeOnce.Do(func() {
		close(s.closeCh)
		s.conn.Close()
	})
	s.setState(StateDisconnected)
}

// configure performs the post-dial exchange: wait for the server's
// session.created acknowledgment, then send the session configuration. Only
// after that does the session count as connected.
func (s *Session) configure(ctx context.Context, cfg sessionUpdate, timeout time.Duration) error {
	deadline := contextDeadline(ctx, timeout)
	s.conn.SetReadDeadline(deadline)
	defer s.conn.SetReadDeadline(time.Time{})

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("realtime: waiting for session acknowledgment: %w", err)
		}
		var ev serverEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			return fmt.Errorf("realtime: malformed acknowledgment: %w", err)
		}
		switch ev.Type {
		case typeSessionCreated:
			s.conn.SetWriteDeadline(deadline)
			defer s.conn.SetWriteDeadline(time.Time{})
			if err := s.conn.WriteJSON(cfg); err != nil {
				return fmt.Errorf("realtime: sending session configuration: %w", err)
			}
			return nil
		case typeError:
			return fmt.Errorf("realtime: backend rejected session: %s", ev.errorMessage())
		default:
			// Ignore anything else until the acknowledgment arrives.
		}
	}
}

func (s *Session) startLoops() {
	go s.writeLoop()
	go s.readLoop()
}

// writeLoop serializes all outbound frames so sending never happens on the
// capture path.
func (s *Session) writeLoop() {
	defer close(s.writeDone)
	for {
		select {
		case <-s.closeCh:
			return
		case frame := <-s.sendCh:
			if err := s.conn.WriteJSON(frame); err != nil {
				select {
				case <-s.closeCh:
				default:
					s.log.Error("write failed", "error", err)
				}
				return
			}
		}
	}
}

// readLoop is the single long-lived receive operation. Each message is
// dispatched by type tag in arrival order, then the read re-arms. A transport
// failure surfaces as StateError and is not retried here.
func (s *Session) readLoop() {
	defer close(s.events)

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closeCh:
				// Intentional disconnect.
			default:
				s.setState(StateError)
				s.emit(Event{Kind: EventFailure, Err: fmt.Errorf("realtime: receive failed: %w", err)})
			}
			return
		}

		var ev serverEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			s.log.Warn("dropping malformed frame", "error", err)
			continue
		}
		if !s.dispatch(ev) {
			return
		}
	}
}

// dispatch handles one inbound event. It returns false when delivery was
// aborted by Disconnect.
func (s *Session) dispatch(ev serverEvent) bool {
	switch ev.Type {
	case typeSessionUpdated:
		s.log.Debug("session configuration acknowledged")
		return true

	case typeSpeechStarted:
		if s.State() == StateConnected {
			s.setState(StateTranslating)
		}
		return s.emit(Event{Kind: EventSpeechStarted})

	case typeSpeechStopped:
		return s.emit(Event{Kind: EventSpeechStopped})

	case typeResponseAudioDelta:
		audio, err := base64.StdEncoding.DecodeString(ev.Delta)
		if err != nil {
			s.log.Warn("dropping undecodable audio delta", "error", err)
			return true
		}
		return s.emit(Event{Kind: EventAudioDelta, Audio: audio})

	case typeResponseTranscriptDelta:
		return s.emit(Event{Kind: EventTranscriptDelta, Text: ev.Delta})

	case typeResponseTranscriptDone:
		return s.emit(Event{Kind: EventTranscriptDone, Text: ev.Transcript})

	case typeInputTranscriptCompleted:
		return s.emit(Event{Kind: EventInputTranscript, Text: ev.Transcript})

	case typeResponseDone:
		if s.State() == StateTranslating {
			s.setState(StateConnected)
		}
		return s.emit(Event{Kind: EventTurnDone})

	case typeError:
		// Protocol error: the connection stays open, but the failure must be
		// visible rather than silently retried.
		s.setState(StateError)
		return s.emit(Event{Kind: EventFailure, Err: fmt.Errorf("realtime: backend error: %s", ev.errorMessage())})

	default:
		s.log.Debug("ignoring event", "type", ev.Type)
		return true
	}
}

func (s *Session) emit(ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.closeCh:
		return false
	}
}

func (ev serverEvent) errorMessage() string {
	if ev.Error == nil {
		return "unknown error"
	}
	if ev.Error.Message != "" {
		return ev.Error.Message
	}
	return ev.Error.Code
}
