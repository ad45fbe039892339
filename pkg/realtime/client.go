// Package realtime implements the streaming translation session: a JSON-framed
// WebSocket protocol with server-side speech boundary detection. The client
// opens sessions; each session owns one connection, one receive loop, and one
// authoritative state machine.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxlate/voxlate/pkg/mode"
	"github.com/voxlate/voxlate/pkg/translate"
)

// DefaultURL is the default translation backend endpoint.
const DefaultURL = "wss://api.openai.com/v1/realtime"

// Defaults for session configuration.
const (
	DefaultModel              = "gpt-4o-realtime-preview"
	DefaultVoice              = "alloy"
	DefaultTranscriptionModel = "whisper-1"
)

// Configuration errors. Both fail fast, before any transport resource is
// claimed.
var (
	// ErrMissingCredential is returned by Connect when no backend credential
	// is configured. No connection attempt is made.
	ErrMissingCredential = errors.New("realtime: no backend credential configured")

	// ErrInvalidURL is returned by Connect for an unusable backend URL.
	ErrInvalidURL = errors.New("realtime: invalid backend URL")
)

// CredentialSource supplies the backend credential. The credential is
// immutable shared state read only by this package.
type CredentialSource interface {
	// Credential returns the credential and whether one is configured.
	Credential() (string, bool)
}

// Client opens translation sessions.
type Client struct {
	creds CredentialSource

	wsURL            string
	model            string
	voice            string
	transcription    string
	handshakeTimeout time.Duration

	log *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithURL overrides the backend endpoint.
func WithURL(u string) Option { return func(c *Client) { c.wsURL = u } }

// WithModel overrides the translation model.
func WithModel(m string) Option { return func(c *Client) { c.model = m } }

// WithVoice overrides the synthesis voice.
func WithVoice(v string) Option { return func(c *Client) { c.voice = v } }

// WithHandshakeTimeout bounds the transport handshake and configuration
// exchange.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) { c.handshakeTimeout = d }
}

// NewClient creates a Client reading its credential from creds.
func NewClient(creds CredentialSource, opts ...Option) *Client {
	c := &Client{
		creds:            creds,
		wsURL:            DefaultURL,
		model:            DefaultModel,
		voice:            DefaultVoice,
		transcription:    DefaultTranscriptionModel,
		handshakeTimeout: 10 * time.Second,
		log:              slog.Default().With("component", "realtime"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect opens the transport, waits for the transport-establishment
// acknowledgment, sends the session configuration built from cfg and m, and
// returns the connected session. It suspends until the exchange completes or
// fails. Failures before the dial are configuration errors; failures after
// are transport errors.
func (c *Client) Connect(ctx context.Context, cfg translate.Config, m mode.Mode) (*Session, error) {
	cred, ok := c.creds.Credential()
	if !ok || cred == "" {
		return nil, ErrMissingCredential
	}
	if u, err := url.Parse(c.wsURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, c.wsURL)
	}

	endpoint := fmt.Sprintf("%s?model=%s", c.wsURL, c.model)
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+cred)
	headers.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{HandshakeTimeout: c.handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, endpoint, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime: connect failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("realtime: connect failed: %w", err)
	}

	s := newSession(conn, c.log)
	s.setState(StateConnecting)

	if err := s.configure(ctx, c.sessionConfig(cfg, m), c.handshakeTimeout); err != nil {
		conn.Close()
		s.setState(StateDisconnected)
		return nil, err
	}

	s.setState(StateConnected)
	s.startLoops()
	c.log.Info("session connected", "languages", cfg.String(), "mode", m.String())
	return s, nil
}

// sessionConfig builds the session-configuration frame from the language pair
// and the mode's tuning profile.
func (c *Client) sessionConfig(cfg translate.Config, m mode.Mode) sessionUpdate {
	p := mode.ProfileFor(m)
	return sessionUpdate{
		EventID: newEventID(),
		Type:    typeSessionUpdate,
		Session: sessionConfig{
			Modalities:        []string{"text", "audio"},
			Instructions:      p.Instructions(cfg),
			InputAudioFormat:  "pcm16",
			OutputAudioFormat: "pcm16",
			Voice:             c.voice,
			TurnDetection: turnDetection{
				Type:              "server_vad",
				Threshold:         p.VAD.Threshold,
				PrefixPaddingMs:   p.VAD.PrefixPaddingMs,
				SilenceDurationMs: p.VAD.SilenceDurationMs,
			},
			InputAudioTranscription: transcriptionConfig{
				Model: c.transcription,
			},
		},
	}
}

// contextDeadline resolves the effective handshake deadline.
func contextDeadline(ctx context.Context, fallback time.Duration) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(fallback)
}
