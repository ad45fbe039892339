package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/voxlate/voxlate/pkg/settings"
)

var (
	// Global flags
	verbose bool

	// Settings store (resolved at init time)
	globalStore *settings.Store
)

var rootCmd = &cobra.Command{
	Use:   "voxlate",
	Short: "Live speech-to-speech translation",
	Long: `voxlate - live speech-to-speech translation from the command line.

Spoken input is streamed to a realtime translation backend and the
translated speech is played back as it arrives. When the backend is
unreachable, an on-device pipeline (recognition + local model + speech
synthesis) takes over automatically.

Settings are stored in the OS config directory:
  macOS:   ~/Library/Application Support/voxlate/
  Linux:   ~/.config/voxlate/
  Windows: %AppData%/voxlate/

Examples:
  # Configure once
  voxlate config set api_key sk-...
  voxlate config set source_language en
  voxlate config set target_language es

  # Translate a conversation
  voxlate run

  # Eavesdrop on airport announcements
  voxlate run --mode ambient`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initLogging, initStore)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

func initLogging() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// storeErr holds the error from resolving the config directory for deferred
// reporting, so commands like 'voxlate version' still work without one.
var storeErr error

func initStore() {
	globalStore, storeErr = settings.NewStore()
}

// getStore returns the settings store.
func getStore() (*settings.Store, error) {
	if globalStore == nil {
		if storeErr != nil {
			return nil, fmt.Errorf("settings not available: %w", storeErr)
		}
		globalStore, storeErr = settings.NewStore()
		if storeErr != nil {
			return nil, fmt.Errorf("settings not available: %w", storeErr)
		}
	}
	return globalStore, nil
}

// loadSettings reads the settings file through the resolved store.
func loadSettings() (*settings.Store, settings.Settings, error) {
	store, err := getStore()
	if err != nil {
		return nil, settings.Settings{}, err
	}
	s, err := store.Load()
	if err != nil {
		return nil, settings.Settings{}, err
	}
	return store, s, nil
}
