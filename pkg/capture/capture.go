// Package capture owns the microphone resource. It converts whatever format
// the hardware delivers into the fixed outbound pipeline format (PCM16,
// 16 kHz, mono) and publishes a running amplitude level for UI metering.
package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxlate/voxlate/pkg/audio/device"
	"github.com/voxlate/voxlate/pkg/audio/pcm"
	"github.com/voxlate/voxlate/pkg/audio/resampler"
	"github.com/voxlate/voxlate/pkg/mode"
)

// Errors reported by Start. Both are fatal to the start attempt: the engine
// never partially starts.
var (
	// ErrFormat indicates the hardware reported an unusable capture format.
	ErrFormat = errors.New("capture: hardware reported invalid format")

	// ErrConversion indicates no converter could be built from the hardware
	// format to the outbound pipeline format.
	ErrConversion = errors.New("capture: cannot convert hardware format")
)

// gateFloor is the RMS level below which the noise gate mutes a buffer.
const gateFloor = 0.012

// Engine captures audio from the host's input device. One Engine owns at most
// one hardware input at a time; Start claims it and Stop releases it.
type Engine struct {
	host device.Host
	log  *slog.Logger

	noiseSuppression atomic.Bool

	mu       sync.Mutex
	run      *run
	selected device.Info
	hasInput bool
}

// run is the per-start state. Each Start builds a fresh run so a replaced
// capture loop can never fire into current state.
type run struct {
	in     device.Input
	conv   *resampler.Converter
	chunks chan pcm.Chunk
	levels chan float64
	stop   chan struct{}
	done   chan struct{}
}

// New creates an Engine on the given platform audio host.
func New(host device.Host) *Engine {
	return &Engine{
		host: host,
		log:  slog.Default().With("component", "capture"),
	}
}

// Start claims the input device preferred by the mode's routing policy and
// begins emitting chunks in the fixed outbound format. The returned channel
// belongs to this run and is closed when the run ends.
func (e *Engine) Start(m mode.Mode, noiseSuppression bool) (<-chan pcm.Chunk, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.run != nil {
		return nil, fmt.Errorf("capture: already started")
	}

	profile := mode.ProfileFor(m)

	in, info, err := e.host.OpenInput(profile.InputClass)
	if err != nil {
		return nil, fmt.Errorf("capture: open input: %w", err)
	}

	hw := in.Format()
	if !hw.Valid() {
		in.Close()
		return nil, fmt.Errorf("%w: %dHz/%dch", ErrFormat, hw.SampleRate, hw.Channels)
	}

	conv, err := resampler.New(hw, pcm.L16Mono16K)
	if err != nil {
		in.Close()
		return nil, fmt.Errorf("%w: %v", ErrConversion, err)
	}

	// Routing bugs are only diagnosable if the actually-selected device is
	// visible, so always report it.
	e.log.Info("input device selected",
		"requested_class", profile.InputClass.String(),
		"selected_class", info.Class.String(),
		"device", info.Name,
		"format", fmt.Sprintf("%dHz/%dch", hw.SampleRate, hw.Channels))
	if info.Class != profile.InputClass {
		e.log.Warn("input routing policy not honored",
			"requested_class", profile.InputClass.String(),
			"selected_class", info.Class.String())
	}

	e.noiseSuppression.Store(noiseSuppression)

	r := &run{
		in:     in,
		conv:   conv,
		chunks: make(chan pcm.Chunk, 8),
		levels: make(chan float64, 8),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	e.run = r
	e.selected = info
	e.hasInput = true

	go e.loop(r, hw, profile.ChunkDuration)

	return r.chunks, nil
}

// Levels returns the amplitude stream of the current run, or nil when the
// engine is stopped. Values are in [0, 1], one per hardware buffer, computed
// before resampling. Slow consumers lose samples rather than stalling capture.
func (e *Engine) Levels() <-chan float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.run == nil {
		return nil
	}
	return e.run.levels
}

// SelectedDevice reports the device actually claimed by the last Start.
func (e *Engine) SelectedDevice() (device.Info, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selected, e.hasInput
}

// SetNoiseSuppression toggles the noise gate without restarting capture.
func (e *Engine) SetNoiseSuppression(enabled bool) {
	e.noiseSuppression.Store(enabled)
}

// Stop releases the hardware input and waits for the capture loop to finish.
// It is idempotent and safe to call on an engine that never started; when it
// returns, all capture resources are released.
func (e *Engine) Stop() {
	e.mu.Lock()
	r := e.run
	e.run = nil
	e.hasInput = false
	e.mu.Unlock()

	if r == nil {
		return
	}
	close(r.stop)
	r.in.Close()
	<-r.done
}

// loop reads hardware buffers, meters, converts, and emits chunks until the
// input fails or Stop is called. It owns the chunk and level channels.
func (e *Engine) loop(r *run, hw pcm.Format, chunkDuration time.Duration) {
	defer close(r.done)
	defer close(r.chunks)
	defer close(r.levels)

	// One hardware read per outbound chunk target. The converter may deliver
	// fewer frames while its filter primes, so output is accumulated until a
	// full chunk is available.
	hwBuf := make([]byte, hw.BytesInDuration(chunkDuration))
	targetBytes := pcm.L16Mono16K.BytesInDuration(chunkDuration)
	pending := make([]byte, 0, targetBytes*2)

	for {
		select {
		case <-r.stop:
			return
		default:
		}

		n, err := r.in.Read(hwBuf)
		if err != nil {
			select {
			case <-r.stop:
			default:
				e.log.Error("input read failed", "error", err)
			}
			return
		}
		if n == 0 {
			continue
		}
		raw := hwBuf[:n]

		// Meter the raw hardware buffer before any conversion.
		level := pcm.RMS(raw)
		select {
		case r.levels <- level:
		default:
		}

		if e.noiseSuppression.Load() && level < gateFloor {
			for i := range raw {
				raw[i] = 0
			}
		}

		out, err := r.conv.Process(raw)
		if err != nil {
			e.log.Error("conversion failed", "error", err)
			return
		}
		if len(out) == 0 {
			continue
		}
		pending = append(pending, out...)

		for len(pending) >= targetBytes {
			chunk := pcm.Chunk{
				Data:     append([]byte(nil), pending[:targetBytes]...),
				Format:   pcm.L16Mono16K,
				Captured: time.Now(),
			}
			pending = pending[:copy(pending, pending[targetBytes:])]

			select {
			case r.chunks <- chunk:
			case <-r.stop:
				return
			default:
				// Consumer is stalled; dropping the chunk bounds memory while
				// keeping delivered chunks in strict capture order.
				e.log.Debug("chunk dropped, consumer stalled")
			}
		}
	}
}
