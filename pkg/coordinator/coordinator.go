// Package coordinator arms exactly one translation pipeline at a time and
// moves between the streaming backend and the on-device fallback as
// connectivity and user preference dictate.
//
// Ordering rules: a pipeline is armed before capture starts feeding it, and
// capture stops before the pipeline is torn down. Every component's Stop
// blocks until its resources are released, so a restart needs no settle
// delay.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxlate/voxlate/pkg/audio/pcm"
	"github.com/voxlate/voxlate/pkg/fallback"
	"github.com/voxlate/voxlate/pkg/history"
	"github.com/voxlate/voxlate/pkg/mode"
	"github.com/voxlate/voxlate/pkg/realtime"
	"github.com/voxlate/voxlate/pkg/translate"
)

var (
	// ErrAlreadyRunning is returned by Start while a pipeline is armed.
	ErrAlreadyRunning = errors.New("coordinator: translation already running")

	// ErrQuotaExhausted is returned when today's streaming cap is spent and
	// no fallback can take over.
	ErrQuotaExhausted = errors.New("coordinator: daily translation limit reached")

	// ErrUnavailable is returned when neither the backend nor the fallback
	// pipeline can serve the requested language pair.
	ErrUnavailable = errors.New("coordinator: no translation pipeline available")
)

// Path identifies which pipeline is armed.
type Path int

const (
	PathNone Path = iota
	PathStreaming
	PathFallback
)

func (p Path) String() string {
	switch p {
	case PathStreaming:
		return "streaming"
	case PathFallback:
		return "fallback"
	default:
		return "none"
	}
}

// StreamSession is the armed streaming connection.
type StreamSession interface {
	Events() <-chan realtime.Event
	SendAudio(pcm.Chunk)
	SentAudioDuration() time.Duration
	Disconnect()
}

// Dialer opens streaming sessions.
type Dialer interface {
	Connect(ctx context.Context, cfg translate.Config, m mode.Mode) (StreamSession, error)
}

// RealtimeDialer adapts realtime.Client to the Dialer interface.
type RealtimeDialer struct {
	Client *realtime.Client
}

func (d RealtimeDialer) Connect(ctx context.Context, cfg translate.Config, m mode.Mode) (StreamSession, error) {
	return d.Client.Connect(ctx, cfg, m)
}

// Capture produces microphone chunks.
type Capture interface {
	Start(m mode.Mode, noiseSuppression bool) (<-chan pcm.Chunk, error)
	SetNoiseSuppression(enabled bool)
	Stop()
}

// Playback renders translated audio.
type Playback interface {
	Start(m mode.Mode) error
	Enqueue(fragment []byte)
	Stop()
}

// Fallback is the on-device pipeline.
type Fallback interface {
	CheckAvailability(cfg translate.Config) bool
	Start(ctx context.Context, cfg translate.Config) error
	Feed(chunk pcm.Chunk)
	Results() <-chan fallback.Result
	Stop()
}

// Connectivity reports backend reachability.
type Connectivity interface {
	Online() bool
	Transitions() <-chan bool
}

// Quota gates and accounts streamed audio time.
type Quota interface {
	CanTranslate(ctx context.Context) (bool, error)
	Record(ctx context.Context, d time.Duration) error
}

// History records completed translation turns.
type History interface {
	Append(ctx context.Context, e history.Entry) (history.Entry, error)
}

// Deps are the coordinator's collaborators.
type Deps struct {
	Dialer   Dialer
	Fallback Fallback
	Capture  Capture
	Playback Playback
	Monitor  Connectivity
	Quota    Quota
	History  History
	Logger   *slog.Logger
}

// Coordinator owns the translation lifecycle.
type Coordinator struct {
	d   Deps
	log *slog.Logger

	mu               sync.Mutex
	cfg              translate.Config
	mode             mode.Mode
	autoFallback     bool
	noiseSuppression bool

	// gen invalidates in-flight failover attempts from older runs.
	gen    int
	active *activeRun

	watchOnce sync.Once
}

// activeRun is one armed pipeline plus the goroutines feeding and draining it.
type activeRun struct {
	path     Path
	session  StreamSession
	pumpDone chan struct{}
	consDone chan struct{}
}

// New creates a coordinator with the given collaborators and initial
// preferences.
func New(d Deps, cfg translate.Config, m mode.Mode) *Coordinator {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		d:            d,
		log:          log.With("component", "coordinator"),
		cfg:          cfg,
		mode:         m,
		autoFallback: true,
	}
}

// SetAutoFallback controls whether connectivity changes move translation
// between pipelines automatically.
func (c *Coordinator) SetAutoFallback(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoFallback = enabled
}

// SetNoiseSuppression applies immediately to a live capture run.
func (c *Coordinator) SetNoiseSuppression(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.noiseSuppression = enabled
	c.d.Capture.SetNoiseSuppression(enabled)
}

// Path returns the currently armed pipeline.
func (c *Coordinator) Path() Path {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return PathNone
	}
	return c.active.path
}

// Start arms a pipeline and begins feeding it captured audio. The streaming
// path is preferred; the fallback is used when the backend is unreachable or
// the daily cap is spent, provided auto-fallback is on and the language pair
// is supported on device.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return ErrAlreadyRunning
	}
	c.watchOnce.Do(func() { go c.watchConnectivity() })

	if c.d.Monitor.Online() {
		ok, err := c.d.Quota.CanTranslate(ctx)
		if err != nil {
			return fmt.Errorf("coordinator: quota check: %w", err)
		}
		if ok {
			if err := c.startStreamingLocked(ctx); err == nil {
				return nil
			} else if !c.autoFallback {
				return err
			} else {
				c.log.Warn("streaming start failed, trying fallback", "error", err)
			}
		} else if !c.autoFallback {
			return ErrQuotaExhausted
		}
	} else if !c.autoFallback {
		return ErrUnavailable
	}

	return c.startFallbackLocked(ctx)
}

// Stop tears the armed pipeline down: capture first, then the pipeline, then
// playback. Idempotent; safe while stopped.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopActiveLocked()
}

// SetMode restarts the armed pipeline under the new mode profile. While
// stopped it only updates the preference.
func (c *Coordinator) SetMode(ctx context.Context, m mode.Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m == c.mode {
		return nil
	}
	c.mode = m
	return c.restartLocked(ctx)
}

// SetConfig swaps the language pair, restarting the armed pipeline.
func (c *Coordinator) SetConfig(ctx context.Context, cfg translate.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cfg == c.cfg {
		return nil
	}
	c.cfg = cfg
	return c.restartLocked(ctx)
}

func (c *Coordinator) restartLocked(ctx context.Context) error {
	if c.active == nil {
		return nil
	}
	path := c.active.path
	c.stopActiveLocked()
	if path == PathStreaming {
		return c.startStreamingLocked(ctx)
	}
	return c.startFallbackLocked(ctx)
}

// startStreamingLocked arms the backend session and then starts capture.
func (c *Coordinator) startStreamingLocked(ctx context.Context) error {
	sess, err := c.d.Dialer.Connect(ctx, c.cfg, c.mode)
	if err != nil {
		return fmt.Errorf("coordinator: connect backend: %w", err)
	}
	if err := c.d.Playback.Start(c.mode); err != nil {
		sess.Disconnect()
		return fmt.Errorf("coordinator: start playback: %w", err)
	}
	chunks, err := c.d.Capture.Start(c.mode, c.noiseSuppression)
	if err != nil {
		sess.Disconnect()
		c.d.Playback.Stop()
		return fmt.Errorf("coordinator: start capture: %w", err)
	}

	c.gen++
	run := &activeRun{
		path:     PathStreaming,
		session:  sess,
		pumpDone: make(chan struct{}),
		consDone: make(chan struct{}),
	}
	c.active = run
	go c.pumpStreaming(chunks, sess, run.pumpDone)
	go c.consumeStreaming(c.gen, c.cfg, sess, run.consDone)
	c.log.Info("streaming translation armed", "languages", c.cfg, "mode", c.mode)
	return nil
}

// startFallbackLocked arms the on-device pipeline and then starts capture.
func (c *Coordinator) startFallbackLocked(ctx context.Context) error {
	if !c.d.Fallback.CheckAvailability(c.cfg) {
		return fmt.Errorf("%w: %s not supported on device", ErrUnavailable, c.cfg)
	}
	if err := c.d.Fallback.Start(ctx, c.cfg); err != nil {
		return fmt.Errorf("coordinator: start fallback: %w", err)
	}
	chunks, err := c.d.Capture.Start(c.mode, c.noiseSuppression)
	if err != nil {
		c.d.Fallback.Stop()
		return fmt.Errorf("coordinator: start capture: %w", err)
	}

	c.gen++
	run := &activeRun{
		path:     PathFallback,
		pumpDone: make(chan struct{}),
		consDone: make(chan struct{}),
	}
	c.active = run
	go c.pumpFallback(chunks, run.pumpDone)
	go c.consumeFallback(c.cfg, c.d.Fallback.Results(), run.consDone)
	c.log.Info("on-device translation armed", "languages", c.cfg, "mode", c.mode)
	return nil
}

// stopActiveLocked sequences the teardown: capture stops so the pump drains
// and exits, then the pipeline itself, then playback.
func (c *Coordinator) stopActiveLocked() {
	run := c.active
	if run == nil {
		return
	}
	c.active = nil
	c.gen++

	c.d.Capture.Stop()
	<-run.pumpDone

	switch run.path {
	case PathStreaming:
		run.session.Disconnect()
		<-run.consDone
		sent := run.session.SentAudioDuration()
		if err := c.d.Quota.Record(context.Background(), sent); err != nil {
			c.log.Error("recording usage failed", "error", err)
		}
		c.d.Playback.Stop()
	case PathFallback:
		c.d.Fallback.Stop()
		<-run.consDone
	}
	c.log.Info("translation stopped", "path", run.path)
}

func (c *Coordinator) pumpStreaming(chunks <-chan pcm.Chunk, sess StreamSession, done chan<- struct{}) {
	defer close(done)
	for chunk := range chunks {
		sess.SendAudio(chunk)
	}
}

func (c *Coordinator) pumpFallback(chunks <-chan pcm.Chunk, done chan<- struct{}) {
	defer close(done)
	for chunk := range chunks {
		c.d.Fallback.Feed(chunk)
	}
}

// consumeStreaming drains session events: audio goes to playback, transcripts
// accumulate into one history entry per turn, failures hand off to the
// fallback when allowed.
func (c *Coordinator) consumeStreaming(gen int, cfg translate.Config, sess StreamSession, done chan<- struct{}) {
	defer close(done)

	var original, translated string
	for ev := range sess.Events() {
		switch ev.Kind {
		case realtime.EventAudioDelta:
			c.d.Playback.Enqueue(ev.Audio)
		case realtime.EventInputTranscript:
			original = ev.Text
		case realtime.EventTranscriptDelta:
			translated += ev.Text
		case realtime.EventTranscriptDone:
			if ev.Text != "" {
				translated = ev.Text
			}
		case realtime.EventTurnDone:
			c.recordTurn(cfg, original, translated)
			original, translated = "", ""
		case realtime.EventFailure:
			c.log.Error("streaming session failed", "error", ev.Err)
			go c.failover(gen)
		}
	}
}

// consumeFallback drains on-device results into history.
func (c *Coordinator) consumeFallback(cfg translate.Config, results <-chan fallback.Result, done chan<- struct{}) {
	defer close(done)
	for res := range results {
		if res.Err != nil {
			c.log.Error("on-device translation failed", "error", res.Err)
			continue
		}
		c.recordTurn(cfg, res.Original, res.Translated)
	}
}

// recordTurn must not touch c.mu: it runs on the consume goroutines, which
// teardown waits on while holding the lock.
func (c *Coordinator) recordTurn(cfg translate.Config, original, translated string) {
	if original == "" && translated == "" {
		return
	}
	_, err := c.d.History.Append(context.Background(), history.Entry{
		Original:   original,
		Translated: translated,
		Source:     cfg.Source,
		Target:     cfg.Target,
	})
	if err != nil {
		c.log.Error("recording history failed", "error", err)
	}
}

// failover moves a live run from streaming to the on-device pipeline. Stale
// attempts from a superseded run are discarded by the generation check.
func (c *Coordinator) failover(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.active == nil || c.active.path != PathStreaming {
		return
	}
	if !c.autoFallback {
		c.log.Warn("backend lost and auto-fallback disabled, stopping")
		c.stopActiveLocked()
		return
	}
	c.log.Info("failing over to on-device translation")
	c.stopActiveLocked()
	if err := c.startFallbackLocked(context.Background()); err != nil {
		c.log.Error("fallback takeover failed", "error", err)
	}
}

// recoverStreaming moves a live fallback run back to streaming once the
// backend is reachable again.
func (c *Coordinator) recoverStreaming() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || c.active.path != PathFallback || !c.autoFallback {
		return
	}
	ok, err := c.d.Quota.CanTranslate(context.Background())
	if err != nil || !ok {
		return
	}
	c.log.Info("backend reachable again, resuming streaming")
	c.stopActiveLocked()
	if err := c.startStreamingLocked(context.Background()); err != nil {
		c.log.Error("streaming resume failed, staying on device", "error", err)
		if ferr := c.startFallbackLocked(context.Background()); ferr != nil {
			c.log.Error("fallback restart failed", "error", ferr)
		}
	}
}

// watchConnectivity reacts to edge-triggered reachability changes for as long
// as the coordinator lives.
func (c *Coordinator) watchConnectivity() {
	for online := range c.d.Monitor.Transitions() {
		if online {
			c.recoverStreaming()
			continue
		}
		c.mu.Lock()
		streaming := c.active != nil && c.active.path == PathStreaming
		auto := c.autoFallback
		gen := c.gen
		c.mu.Unlock()
		if !streaming {
			continue
		}
		// A failed probe does not mean the websocket is dead. Without
		// auto-fallback there is nowhere to move the run, so leave it
		// alone; a real transport failure surfaces as a session event.
		if !auto {
			c.log.Warn("backend unreachable, continuing on open session")
			continue
		}
		c.failover(gen)
	}
}
