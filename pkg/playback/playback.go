// Package playback reassembles streamed audio fragments and drives the output
// device. Fragments from the session can be far smaller than a playable
// buffer; scheduling a play per fragment causes audible stutter, so the
// engine accumulates and flushes one contiguous unit at a time.
package playback

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxlate/voxlate/pkg/audio/device"
	"github.com/voxlate/voxlate/pkg/audio/pcm"
	"github.com/voxlate/voxlate/pkg/mode"
)

const (
	// DefaultDebounce is the inactivity window after the last fragment before
	// the accumulated buffer is flushed.
	DefaultDebounce = 50 * time.Millisecond

	// DefaultFlushThreshold is the accumulated audio duration that triggers an
	// immediate flush regardless of the debounce window.
	DefaultFlushThreshold = 100 * time.Millisecond
)

// Engine buffers and plays audio fragments with mode-aware output routing.
type Engine struct {
	host     device.Host
	format   pcm.Format
	debounce time.Duration
	log      *slog.Logger

	// thresholdBytes derives from format and DefaultFlushThreshold.
	thresholdBytes int

	mu      sync.Mutex
	running bool
	out     device.Output
	routes  device.RouteSet
	buf     []byte
	timer   *time.Timer
	playCh  chan []byte
	done    chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithDebounce overrides the flush debounce window.
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) { e.debounce = d }
}

// New creates an Engine playing through the given host. The inbound stream
// format is PCM16, 24 kHz, mono.
func New(host device.Host, opts ...Option) *Engine {
	e := &Engine{
		host:     host,
		format:   pcm.L16Mono24K,
		debounce: DefaultDebounce,
		log:      slog.Default().With("component", "playback"),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.thresholdBytes = e.format.BytesInDuration(DefaultFlushThreshold)
	return e
}

// Start claims the output device with the mode's route set. If the engine is
// already running it must not reopen the device: resetting the audio session
// while capture holds an input route silently breaks capture. In that case
// only the routes are retargeted.
func (e *Engine) Start(m mode.Mode) error {
	profile := mode.ProfileFor(m)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		if e.routes != profile.OutputRoutes {
			e.log.Info("retargeting output routes without reopening",
				"from", e.routes.String(), "to", profile.OutputRoutes.String())
			if err := e.out.SetRoutes(profile.OutputRoutes); err != nil {
				return fmt.Errorf("playback: retarget routes: %w", err)
			}
			e.routes = profile.OutputRoutes
		}
		return nil
	}

	out, err := e.host.OpenOutput(e.format, profile.OutputRoutes)
	if err != nil {
		return fmt.Errorf("playback: open output: %w", err)
	}

	e.out = out
	e.routes = profile.OutputRoutes
	e.running = true
	e.playCh = make(chan []byte, 16)
	e.done = make(chan struct{})
	e.log.Info("output started", "routes", profile.OutputRoutes.String())

	go e.playLoop(out, e.playCh, e.done)
	return nil
}

// Enqueue appends one fragment to the accumulation buffer. A flush is
// scheduled when the inactivity window elapses, or immediately once the
// buffer crosses the size threshold, whichever comes first. Enqueue never
// blocks on the output device.
func (e *Engine) Enqueue(fragment []byte) {
	if len(fragment) == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}

	e.buf = append(e.buf, fragment...)

	if len(e.buf) >= e.thresholdBytes {
		e.flushLocked()
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.debounce, e.flush)
}

// flush is the debounce-timer callback.
func (e *Engine) flush() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.flushLocked()
}

// flushLocked hands the accumulated buffer to the play loop as one contiguous
// unit and clears the accumulation state.
func (e *Engine) flushLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if len(e.buf) == 0 {
		return
	}
	unit := e.buf
	e.buf = nil

	select {
	case e.playCh <- unit:
	default:
		e.log.Warn("play queue full, dropping buffered audio", "bytes", len(unit))
	}
}

// Stop halts playback, clears any pending accumulation, and releases the
// output device. Idempotent; safe before Start.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.buf = nil
	out := e.out
	e.out = nil
	playCh := e.playCh
	done := e.done
	e.mu.Unlock()

	close(playCh)
	<-done
	out.Close()
}

// playLoop writes flushed units to the device off the enqueue path.
func (e *Engine) playLoop(out device.Output, playCh <-chan []byte, done chan<- struct{}) {
	defer close(done)
	for unit := range playCh {
		if _, err := out.Write(unit); err != nil {
			e.log.Error("playback write failed", "error", err)
			return
		}
	}
}
