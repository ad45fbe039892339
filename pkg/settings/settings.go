// Package settings persists user preferences as YAML under
// os.UserConfigDir()/voxlate/:
//
//	~/.config/voxlate/settings.yaml         (Linux)
//	~/Library/Application Support/voxlate/  (macOS)
//	%AppData%/voxlate/                      (Windows)
//
// It also supplies the translation backend credential and the daily usage
// quota state directory.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/goccy/go-yaml"
)

const (
	// appDir is the directory name under os.UserConfigDir().
	appDir = "voxlate"

	settingsFile = "settings.yaml"

	// stateDir holds the key-value store (history, usage counters).
	stateDir = "state"
)

// Settings holds all user preferences.
type Settings struct {
	// APIKey authenticates against the streaming translation backend.
	APIKey string `yaml:"api_key,omitempty"`

	// BackendURL overrides the translation backend endpoint.
	BackendURL string `yaml:"backend_url,omitempty"`

	// Model overrides the translation model.
	Model string `yaml:"model,omitempty"`

	// Voice selects the synthesized output voice.
	Voice string `yaml:"voice,omitempty"`

	// SourceLanguage and TargetLanguage are BCP-47 tags, e.g. "en", "es".
	SourceLanguage string `yaml:"source_language"`
	TargetLanguage string `yaml:"target_language"`

	// Mode is the startup translation mode: conversation, ambient or
	// push-to-talk.
	Mode string `yaml:"mode"`

	// AutoFallback switches to the on-device pipeline when the backend is
	// unreachable, and back when it recovers.
	AutoFallback bool `yaml:"auto_fallback"`

	// NoiseSuppression gates low-level input before conversion.
	NoiseSuppression bool `yaml:"noise_suppression"`

	// DailyLimitSeconds caps streamed audio per calendar day. Zero means
	// unlimited.
	DailyLimitSeconds int `yaml:"daily_limit_seconds"`

	// FallbackURL and FallbackModel point at the local OpenAI-compatible
	// endpoint used by the on-device pipeline.
	FallbackURL   string `yaml:"fallback_url,omitempty"`
	FallbackModel string `yaml:"fallback_model,omitempty"`
}

// Defaults returns the settings applied when no file exists yet.
func Defaults() Settings {
	return Settings{
		SourceLanguage:    "en",
		TargetLanguage:    "es",
		Mode:              "conversation",
		AutoFallback:      true,
		NoiseSuppression:  true,
		DailyLimitSeconds: 1800,
	}
}

// Credential returns the backend API key, preferring the VOXLATE_API_KEY
// environment variable over the stored value.
func (s Settings) Credential() (string, bool) {
	if key := os.Getenv("VOXLATE_API_KEY"); key != "" {
		return key, true
	}
	if s.APIKey != "" {
		return s.APIKey, true
	}
	return "", false
}

// Store reads and writes the settings file.
type Store struct {
	dir string
}

// NewStore creates a store rooted at the default config directory.
func NewStore() (*Store, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine config directory: %w", err)
	}
	return NewStoreAt(filepath.Join(base, appDir)), nil
}

// NewStoreAt creates a store rooted at a specific directory.
func NewStoreAt(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the root configuration directory.
func (st *Store) Dir() string { return st.dir }

// StateDir returns the directory for persistent state (history, usage).
func (st *Store) StateDir() string { return filepath.Join(st.dir, stateDir) }

// Load reads the settings file, filling in defaults for a missing file.
func (st *Store) Load() (Settings, error) {
	path := filepath.Join(st.dir, settingsFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Defaults(), nil
		}
		return Settings{}, fmt.Errorf("read %s: %w", path, err)
	}
	s := Defaults()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return s, nil
}

// Save writes the settings file, creating the directory as needed.
func (st *Store) Save(s Settings) error {
	if err := os.MkdirAll(st.dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	path := filepath.Join(st.dir, settingsFile)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Keys returns the settable field names in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// field maps a settings key to its accessor pair for the CLI config command.
type field struct {
	get func(Settings) string
	set func(*Settings, string) error
}

var fields = map[string]field{
	"api_key": {
		get: func(s Settings) string {
			if s.APIKey == "" {
				return ""
			}
			return "(set)"
		},
		set: func(s *Settings, v string) error { s.APIKey = v; return nil },
	},
	"backend_url": {
		get: func(s Settings) string { return s.BackendURL },
		set: func(s *Settings, v string) error { s.BackendURL = v; return nil },
	},
	"model": {
		get: func(s Settings) string { return s.Model },
		set: func(s *Settings, v string) error { s.Model = v; return nil },
	},
	"voice": {
		get: func(s Settings) string { return s.Voice },
		set: func(s *Settings, v string) error { s.Voice = v; return nil },
	},
	"source_language": {
		get: func(s Settings) string { return s.SourceLanguage },
		set: func(s *Settings, v string) error { s.SourceLanguage = v; return nil },
	},
	"target_language": {
		get: func(s Settings) string { return s.TargetLanguage },
		set: func(s *Settings, v string) error { s.TargetLanguage = v; return nil },
	},
	"mode": {
		get: func(s Settings) string { return s.Mode },
		set: func(s *Settings, v string) error { s.Mode = v; return nil },
	},
	"auto_fallback": {
		get: func(s Settings) string { return strconv.FormatBool(s.AutoFallback) },
		set: func(s *Settings, v string) error { return setBool(&s.AutoFallback, v) },
	},
	"noise_suppression": {
		get: func(s Settings) string { return strconv.FormatBool(s.NoiseSuppression) },
		set: func(s *Settings, v string) error { return setBool(&s.NoiseSuppression, v) },
	},
	"daily_limit_seconds": {
		get: func(s Settings) string { return strconv.Itoa(s.DailyLimitSeconds) },
		set: func(s *Settings, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return fmt.Errorf("daily_limit_seconds must be a non-negative integer")
			}
			s.DailyLimitSeconds = n
			return nil
		},
	},
	"fallback_url": {
		get: func(s Settings) string { return s.FallbackURL },
		set: func(s *Settings, v string) error { s.FallbackURL = v; return nil },
	},
	"fallback_model": {
		get: func(s Settings) string { return s.FallbackModel },
		set: func(s *Settings, v string) error { s.FallbackModel = v; return nil },
	},
}

func setBool(dst *bool, v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("expected true or false, got %q", v)
	}
	*dst = b
	return nil
}

// Get returns the display value for a settings key.
func (s Settings) Get(key string) (string, error) {
	f, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("unknown setting %q", key)
	}
	return f.get(s), nil
}

// Set updates a settings key from its string form.
func (s *Settings) Set(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("unknown setting %q", key)
	}
	return f.set(s, value)
}
