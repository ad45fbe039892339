package commands

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/voxlate/voxlate/pkg/audio/device"
	"github.com/voxlate/voxlate/pkg/audio/device/portaudio"
	"github.com/voxlate/voxlate/pkg/capture"
	"github.com/voxlate/voxlate/pkg/connectivity"
	"github.com/voxlate/voxlate/pkg/coordinator"
	"github.com/voxlate/voxlate/pkg/fallback"
	"github.com/voxlate/voxlate/pkg/fallback/openaicompat"
	"github.com/voxlate/voxlate/pkg/history"
	"github.com/voxlate/voxlate/pkg/kv"
	"github.com/voxlate/voxlate/pkg/mode"
	"github.com/voxlate/voxlate/pkg/playback"
	"github.com/voxlate/voxlate/pkg/realtime"
	"github.com/voxlate/voxlate/pkg/settings"
	"github.com/voxlate/voxlate/pkg/translate"
)

var (
	runMode   string
	runSource string
	runTarget string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start live speech translation",
	Long: `Start capturing the microphone and translating speech live.

The streaming backend is used while it is reachable; with auto_fallback
enabled, the on-device pipeline takes over during outages and hands back
when connectivity returns.

Examples:
  voxlate run
  voxlate run --mode ambient
  voxlate run --source en --target ja`,
	RunE: runTranslation,
}

func init() {
	runCmd.Flags().StringVarP(&runMode, "mode", "m", "", "translation mode: conversation, ambient, push-to-talk")
	runCmd.Flags().StringVar(&runSource, "source", "", "source language tag (e.g. en)")
	runCmd.Flags().StringVar(&runTarget, "target", "", "target language tag (e.g. es)")
	rootCmd.AddCommand(runCmd)
}

func runTranslation(cmd *cobra.Command, args []string) error {
	store, s, err := loadSettings()
	if err != nil {
		return err
	}

	cfg := translate.Config{Source: s.SourceLanguage, Target: s.TargetLanguage}
	if runSource != "" {
		cfg.Source = runSource
	}
	if runTarget != "" {
		cfg.Target = runTarget
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	modeName := s.Mode
	if runMode != "" {
		modeName = runMode
	}
	m, err := mode.Parse(modeName)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(store.StateDir(), 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	kvStore, err := kv.NewBadger(kv.BadgerOptions{Dir: store.StateDir()})
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer kvStore.Close()

	host, err := portaudio.NewHost()
	if err != nil {
		return fmt.Errorf("initialize audio: %w", err)
	}
	defer host.Close()

	var clientOpts []realtime.Option
	if s.BackendURL != "" {
		clientOpts = append(clientOpts, realtime.WithURL(s.BackendURL))
	}
	if s.Model != "" {
		clientOpts = append(clientOpts, realtime.WithModel(s.Model))
	}
	if s.Voice != "" {
		clientOpts = append(clientOpts, realtime.WithVoice(s.Voice))
	}

	pipeline, err := buildFallback(s, host, mode.ProfileFor(m).OutputRoutes)
	if err != nil {
		return err
	}

	monitor := connectivity.NewMonitor(connectivity.DialProber{
		Address: probeAddress(s.BackendURL),
		Timeout: time.Second,
	}, connectivity.DefaultInterval)
	monitor.Start()
	defer monitor.Stop()

	coord := coordinator.New(coordinator.Deps{
		Dialer:   coordinator.RealtimeDialer{Client: realtime.NewClient(s, clientOpts...)},
		Fallback: pipeline,
		Capture:  capture.New(host),
		Playback: playback.New(host),
		Monitor:  monitor,
		Quota:    settings.NewQuota(kvStore, time.Duration(s.DailyLimitSeconds)*time.Second),
		History:  printingHistory{next: history.New(kvStore)},
	}, cfg, m)
	coord.SetAutoFallback(s.AutoFallback)
	coord.SetNoiseSuppression(s.NoiseSuppression)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := coord.Start(ctx); err != nil {
		return err
	}
	defer coord.Stop()

	fmt.Printf("%s %s  %s\n",
		styles.Title.Render("voxlate"),
		styles.Value.Render(cfg.String()),
		styles.Dim.Render(fmt.Sprintf("[%s, %s]", m, coord.Path())))
	fmt.Println(styles.Dim.Render("Listening. Press Ctrl-C to stop."))

	<-ctx.Done()
	fmt.Println()
	return nil
}

// buildFallback assembles the on-device pipeline from the local endpoint
// settings.
func buildFallback(s settings.Settings, host *portaudio.Host, routes device.RouteSet) (*fallback.Pipeline, error) {
	base := openaicompat.Config{BaseURL: s.FallbackURL, APIKey: "local"}

	rec, err := openaicompat.NewRecognizer(withModel(base, "whisper-1"))
	if err != nil {
		return nil, fmt.Errorf("fallback recognizer: %w", err)
	}
	chatModel := s.FallbackModel
	if chatModel == "" {
		chatModel = "llama3.2"
	}
	tr, err := openaicompat.New(withModel(base, chatModel))
	if err != nil {
		return nil, fmt.Errorf("fallback translator: %w", err)
	}
	syn, err := openaicompat.NewSynthesizer(withModel(base, "tts-1"), s.Voice, host, routes)
	if err != nil {
		return nil, fmt.Errorf("fallback synthesizer: %w", err)
	}
	return fallback.New(rec, tr, syn), nil
}

func withModel(cfg openaicompat.Config, model string) openaicompat.Config {
	cfg.Model = model
	return cfg
}

// probeAddress derives the connectivity probe target from the backend URL.
func probeAddress(backendURL string) string {
	if backendURL == "" {
		return "api.openai.com:443"
	}
	u, err := url.Parse(backendURL)
	if err != nil || u.Host == "" {
		return "api.openai.com:443"
	}
	host := u.Host
	if u.Port() == "" {
		host += ":443"
	}
	return host
}

// printingHistory echoes each completed turn to the terminal before storing
// it.
type printingHistory struct {
	next *history.Log
}

func (p printingHistory) Append(ctx context.Context, e history.Entry) (history.Entry, error) {
	fmt.Printf("%s %s\n%s %s\n",
		styles.Dim.Render("»"), styles.Value.Render(e.Original),
		styles.Label.Render("«"), styles.Value.Render(e.Translated))
	return p.next.Append(ctx, e)
}
