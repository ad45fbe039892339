// Package fallback implements the on-device translation pipeline used when no
// network session is viable: speech recognition to text, text translation,
// and speech synthesis. Providers are pluggable; the pipeline owns the state
// machine, the transcript debounce, and failure classification.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxlate/voxlate/pkg/audio/pcm"
	"github.com/voxlate/voxlate/pkg/translate"
)

// State is the fallback pipeline lifecycle state, independent from the
// session state. Only one of the two drives the pipeline at a time.
type State int32

const (
	StateIdle State = iota
	StatePreparing
	StateReady
	StateListening
	StateTranslating
	StateSpeaking
	StateError
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateReady:
		return "ready"
	case StateListening:
		return "listening"
	case StateTranslating:
		return "translating"
	case StateSpeaking:
		return "speaking"
	case StateError:
		return "error"
	case StateUnavailable:
		return "unavailable"
	}
	return "unknown"
}

// Permission is the recognition permission status reported by the platform.
type Permission int

const (
	PermissionUndetermined Permission = iota
	PermissionGranted
	PermissionDenied
	PermissionRestricted
)

// ErrPermission is returned by Start when recognition permission is denied,
// restricted, or cannot be determined. Never silently degraded.
var ErrPermission = errors.New("fallback: speech recognition permission not granted")

// Transcript is one recognition update. Err, when set, terminates the
// recognition stream.
type Transcript struct {
	Text  string
	Final bool
	Err   error
}

// Recognizer is an on-device speech recognition provider.
type Recognizer interface {
	// Available reports whether recognition supports the source locale.
	Available(locale string) bool

	// RequestPermission resolves the recognition permission, prompting the
	// user if undetermined.
	RequestPermission(ctx context.Context) Permission

	// Start begins a recognition run for the locale. Updates arrive on the
	// returned channel in order; the channel closes when the run ends.
	Start(ctx context.Context, locale string) (<-chan Transcript, error)

	// Feed offers one captured chunk to the active run.
	Feed(chunk pcm.Chunk)

	// Stop cancels the active run. Idempotent.
	Stop()
}

// Translator translates recognized text to the target language.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// Synthesizer speaks translated text in the target language.
type Synthesizer interface {
	Speak(ctx context.Context, text, lang string) error

	// Cancel aborts any in-flight synthesis. Idempotent.
	Cancel()
}

// Result is one completed recognize→translate→speak round trip, or a failure.
type Result struct {
	Original   string
	Translated string
	Err        error
}

// DefaultDebounce is how long a partial transcript must stay unchanged before
// it is translated; translating sooner risks translating text about to be
// revised. A final transcript bypasses the debounce entirely.
const DefaultDebounce = 800 * time.Millisecond

// Pipeline is the on-device translation pipeline.
type Pipeline struct {
	rec      Recognizer
	tr       Translator
	syn      Synthesizer
	debounce time.Duration
	log      *slog.Logger

	state atomic.Int32

	mu  sync.Mutex
	run *runState
}

type runState struct {
	cfg      translate.Config
	cancel   context.CancelFunc
	stopping atomic.Bool
	timer    *time.Timer
	pending  string
	results  chan Result
	done     chan struct{}
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithDebounce overrides the transcript stability window.
func WithDebounce(d time.Duration) Option {
	return func(p *Pipeline) { p.debounce = d }
}

// New creates a Pipeline over the given providers.
func New(rec Recognizer, tr Translator, syn Synthesizer, opts ...Option) *Pipeline {
	p := &Pipeline{
		rec:      rec,
		tr:       tr,
		syn:      syn,
		debounce: DefaultDebounce,
		log:      slog.Default().With("component", "fallback"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current pipeline state.
func (p *Pipeline) State() State { return State(p.state.Load()) }

func (p *Pipeline) setState(s State) {
	old := State(p.state.Swap(int32(s)))
	if old != s {
		p.log.Debug("fallback state", "from", old.String(), "to", s.String())
	}
}

// CheckAvailability reports whether on-device recognition supports the source
// locale. Callers must check before Start.
func (p *Pipeline) CheckAvailability(cfg translate.Config) bool {
	if !p.rec.Available(cfg.Source) {
		p.setState(StateUnavailable)
		return false
	}
	return true
}

// Start resolves recognition permission and begins consuming audio. It fails
// with ErrPermission unless permission is granted.
func (p *Pipeline) Start(ctx context.Context, cfg translate.Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.run != nil {
		return fmt.Errorf("fallback: already started")
	}

	p.setState(StatePreparing)

	switch perm := p.rec.RequestPermission(ctx); perm {
	case PermissionGranted:
		p.setState(StateReady)
	default:
		p.setState(StateError)
		return fmt.Errorf("%w (%d)", ErrPermission, perm)
	}

	runCtx, cancel := context.WithCancel(ctx)
	transcripts, err := p.rec.Start(runCtx, cfg.Source)
	if err != nil {
		cancel()
		p.setState(StateError)
		return fmt.Errorf("fallback: start recognition: %w", err)
	}

	r := &runState{
		cfg:     cfg,
		cancel:  cancel,
		results: make(chan Result, 16),
		done:    make(chan struct{}),
	}
	p.run = r
	p.setState(StateListening)

	go p.consume(runCtx, r, transcripts)
	return nil
}

// Feed offers one captured chunk to the recognizer. No-op when not running.
func (p *Pipeline) Feed(chunk pcm.Chunk) {
	p.mu.Lock()
	running := p.run != nil
	p.mu.Unlock()
	if running {
		p.rec.Feed(chunk)
	}
}

// Results returns the current run's result stream, or nil when stopped.
func (p *Pipeline) Results() <-chan Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.run == nil {
		return nil
	}
	return p.run.results
}

// Stop cancels recognition and any pending synthesis and resets the debounce
// state. Idempotent and safe before Start; when it returns, the run is fully
// torn down.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	r := p.run
	p.run = nil
	p.mu.Unlock()

	if r == nil {
		return
	}
	r.stopping.Store(true)
	r.cancel()
	p.rec.Stop()
	p.syn.Cancel()
	<-r.done
	p.setState(StateIdle)
}

// consume drives one recognition run in a single goroutine: partial
// transcripts arm the stability timer, final transcripts translate
// immediately, and the timer callback only signals back here so all
// translation work stays serialized.
func (p *Pipeline) consume(ctx context.Context, r *runState, transcripts <-chan Transcript) {
	defer close(r.done)
	defer close(r.results)

	stable := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return

		case <-stable:
			text := r.pending
			r.pending = ""
			if text != "" {
				p.translateAndSpeak(ctx, r, text)
			}

		case t, ok := <-transcripts:
			if !ok {
				return
			}
			if t.Err != nil {
				if r.stopping.Load() || errors.Is(t.Err, context.Canceled) {
					// Cancellation from an intentional stop is not a failure.
					p.log.Debug("recognition cancelled", "error", t.Err)
					return
				}
				p.setState(StateError)
				r.emit(ctx, Result{Err: fmt.Errorf("fallback: recognition: %w", t.Err)})
				return
			}

			if t.Final {
				if r.timer != nil {
					r.timer.Stop()
					r.timer = nil
				}
				r.pending = ""
				p.translateAndSpeak(ctx, r, t.Text)
				continue
			}

			r.pending = t.Text
			if r.timer != nil {
				r.timer.Stop()
			}
			r.timer = time.AfterFunc(p.debounce, func() {
				select {
				case stable <- struct{}{}:
				default:
				}
			})
		}
	}
}

// emit delivers a result unless the run is being torn down.
func (r *runState) emit(ctx context.Context, res Result) {
	select {
	case r.results <- res:
	case <-ctx.Done():
	}
}

// translateAndSpeak performs one translate→synthesize round trip and reports
// the outcome.
func (p *Pipeline) translateAndSpeak(ctx context.Context, r *runState, text string) {
	if text == "" {
		return
	}

	p.setState(StateTranslating)
	translated, err := p.tr.Translate(ctx, text, r.cfg.Source, r.cfg.Target)
	if err != nil {
		if r.stopping.Load() || errors.Is(err, context.Canceled) {
			return
		}
		p.setState(StateError)
		r.emit(ctx, Result{Original: text, Err: fmt.Errorf("fallback: translate: %w", err)})
		return
	}

	p.setState(StateSpeaking)
	if err := p.syn.Speak(ctx, translated, r.cfg.Target); err != nil {
		if r.stopping.Load() || errors.Is(err, context.Canceled) {
			return
		}
		p.setState(StateError)
		r.emit(ctx, Result{Original: text, Translated: translated, Err: fmt.Errorf("fallback: synthesize: %w", err)})
		return
	}

	p.setState(StateListening)
	r.emit(ctx, Result{Original: text, Translated: translated})
}
