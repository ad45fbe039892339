// Package mode defines the mutually exclusive operating modes of the
// translation pipeline and the per-mode tuning they imply. All mode-dependent
// behavior lives in the Profile table so the rest of the pipeline resolves a
// mode once at entry instead of branching on it pervasively.
package mode

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/voxlate/voxlate/pkg/audio/device"
	"github.com/voxlate/voxlate/pkg/translate"
)

// Mode is an operating mode. Exactly one is active at a time.
type Mode int

const (
	// Conversation is turn-based two-party translation.
	Conversation Mode = iota

	// Ambient continuously monitors surrounding speech, e.g. announcements.
	Ambient

	// PushToTalk translates only while the talk control is held and plays
	// the result on both the private and public channels.
	PushToTalk
)

func (m Mode) String() string {
	switch m {
	case Conversation:
		return "conversation"
	case Ambient:
		return "ambient"
	case PushToTalk:
		return "push-to-talk"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Parse converts a mode name to a Mode.
func Parse(s string) (Mode, error) {
	switch s {
	case "conversation":
		return Conversation, nil
	case "ambient":
		return Ambient, nil
	case "push-to-talk", "ptt":
		return PushToTalk, nil
	}
	return 0, fmt.Errorf("mode: unknown mode %q", s)
}

// VAD holds server-side speech boundary detection parameters. Threshold is a
// json.Number so the wire encoding carries the exact decimal literal: encoding
// a native float can grow extra significant digits that the backend rejects.
type VAD struct {
	Threshold         json.Number
	PrefixPaddingMs   int
	SilenceDurationMs int
}

// Profile is the resolved tuning for one mode.
type Profile struct {
	Mode Mode

	// ChunkDuration is the target duration of outbound capture chunks.
	// Shorter favors latency, longer favors throughput.
	ChunkDuration time.Duration

	// VAD is the server-side speech boundary tuning sent at session setup.
	VAD VAD

	// InputClass is the preferred capture device class.
	InputClass device.InputClass

	// OutputRoutes is the playback route set.
	OutputRoutes device.RouteSet

	instructions func(cfg translate.Config) string
}

// Instructions renders the backend prompt for the given language pair.
func (p Profile) Instructions(cfg translate.Config) string {
	return p.instructions(cfg)
}

var profiles = map[Mode]Profile{
	Conversation: {
		Mode:          Conversation,
		ChunkDuration: 150 * time.Millisecond,
		VAD: VAD{
			Threshold:         json.Number("0.5"),
			PrefixPaddingMs:   300,
			SilenceDurationMs: 500,
		},
		InputClass:   device.ClassHeadsetMic,
		OutputRoutes: device.RouteSet(device.RoutePrivate),
		instructions: func(cfg translate.Config) string {
			return fmt.Sprintf(
				"You are a live interpreter in a two-party conversation. "+
					"Translate everything you hear from %s into %s. "+
					"Be concise and fast; keep the conversational register. "+
					"Output only the translation, never commentary.",
				cfg.Source, cfg.Target)
		},
	},
	Ambient: {
		Mode:          Ambient,
		ChunkDuration: 300 * time.Millisecond,
		VAD: VAD{
			// More sensitive, with long silence tolerance: announcements
			// contain natural pauses that must not truncate an utterance.
			Threshold:         json.Number("0.35"),
			PrefixPaddingMs:   500,
			SilenceDurationMs: 1500,
		},
		InputClass:   device.ClassDeviceMicBottom,
		OutputRoutes: device.RouteSet(device.RoutePrivate),
		instructions: func(cfg translate.Config) string {
			return fmt.Sprintf(
				"You are translating ambient announcements from %s into %s. "+
					"Prioritize accurate extraction of actionable details: "+
					"numbers, identifiers, gate and platform names, locations, times. "+
					"If parts of the audio are garbled, translate the portion you "+
					"understood with confidence instead of refusing. "+
					"Output only the translation.",
				cfg.Source, cfg.Target)
		},
	},
	PushToTalk: {
		Mode:          PushToTalk,
		ChunkDuration: 150 * time.Millisecond,
		VAD: VAD{
			Threshold:         json.Number("0.5"),
			PrefixPaddingMs:   300,
			SilenceDurationMs: 500,
		},
		InputClass:   device.ClassHeadsetMic,
		OutputRoutes: device.RouteSet(device.RoutePrivate | device.RoutePublic),
		instructions: func(cfg translate.Config) string {
			return fmt.Sprintf(
				"Translate the speaker's words from %s into %s for a listener "+
					"without a headset. Be concise and natural. "+
					"Output only the translation.",
				cfg.Source, cfg.Target)
		},
	},
}

// ProfileFor returns the tuning profile for m.
func ProfileFor(m Mode) Profile {
	p, ok := profiles[m]
	if !ok {
		return profiles[Conversation]
	}
	return p
}
