package realtime

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Client event types.
const (
	typeSessionUpdate          = "session.update"
	typeInputAudioBufferAppend = "input_audio_buffer.append"
)

// Server event types.
const (
	typeError                    = "error"
	typeSessionCreated           = "session.created"
	typeSessionUpdated           = "session.updated"
	typeInputTranscriptCompleted = "conversation.item.input_audio_transcription.completed"
	typeSpeechStarted            = "input_audio_buffer.speech_started"
	typeSpeechStopped            = "input_audio_buffer.speech_stopped"
	typeResponseAudioDelta       = "response.audio.delta"
	typeResponseTranscriptDelta  = "response.audio_transcript.delta"
	typeResponseTranscriptDone   = "response.audio_transcript.done"
	typeResponseDone             = "response.done"
)

// sessionUpdate is the session-configuration frame sent once after the
// transport acknowledgment. Field names are wire-exact.
type sessionUpdate struct {
	EventID string        `json:"event_id"`
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	Modalities              []string            `json:"modalities"`
	Instructions            string              `json:"instructions"`
	InputAudioFormat        string              `json:"input_audio_format"`
	OutputAudioFormat       string              `json:"output_audio_format"`
	Voice                   string              `json:"voice"`
	TurnDetection           turnDetection       `json:"turn_detection"`
	InputAudioTranscription transcriptionConfig `json:"input_audio_transcription"`
}

// turnDetection carries the server VAD tuning. Threshold is a json.Number so
// the frame reproduces the configured decimal literal exactly; the backend
// rejects numerals with excess significant digits.
type turnDetection struct {
	Type              string      `json:"type"`
	Threshold         json.Number `json:"threshold"`
	PrefixPaddingMs   int         `json:"prefix_padding_ms"`
	SilenceDurationMs int         `json:"silence_duration_ms"`
}

type transcriptionConfig struct {
	Model string `json:"model"`
}

// audioAppend streams one base64 PCM16 chunk into the input buffer.
type audioAppend struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Audio   string `json:"audio"`
}

// serverEvent is the inbound frame, dispatched by Type.
type serverEvent struct {
	Type       string       `json:"type"`
	EventID    string       `json:"event_id,omitempty"`
	Delta      string       `json:"delta,omitempty"`
	Transcript string       `json:"transcript,omitempty"`
	Error      *serverError `json:"error,omitempty"`
}

type serverError struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func newEventID() string {
	return "evt_" + uuid.New().String()[:12]
}
