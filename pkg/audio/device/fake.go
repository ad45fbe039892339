package device

import (
	"io"
	"sync"

	"github.com/voxlate/voxlate/pkg/audio/pcm"
)

// FakeHost is an in-memory Host for tests. Input devices replay queued
// buffers; output devices record every write and route change.
type FakeHost struct {
	mu sync.Mutex

	// InputFormat is the hardware format reported by fake inputs.
	InputFormat pcm.Format

	// InputData is replayed by fake inputs, one Read per element.
	InputData [][]byte

	// SelectedClass, when set, overrides the class echoed back by OpenInput,
	// simulating a platform that ignores the routing preference.
	SelectedClass *InputClass

	// OpenInputErr forces OpenInput to fail.
	OpenInputErr error

	// OpenOutputErr forces OpenOutput to fail.
	OpenOutputErr error

	openInputs  int
	openOutputs int
	outputs     []*FakeOutput
}

// NewFakeHost returns a FakeHost reporting the given hardware input format.
func NewFakeHost(inputFormat pcm.Format) *FakeHost {
	return &FakeHost{InputFormat: inputFormat}
}

func (h *FakeHost) Devices() ([]Info, error) {
	return []Info{
		{ID: "fake-in", Name: "Fake Microphone", Input: true, Class: ClassDeviceMic, Format: h.InputFormat, Default: true},
		{ID: "fake-out", Name: "Fake Speaker", Output: true, Format: pcm.L16Mono24K, Default: true},
	}, nil
}

func (h *FakeHost) OpenInput(class InputClass) (Input, Info, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.OpenInputErr != nil {
		return nil, Info{}, h.OpenInputErr
	}
	h.openInputs++
	selected := class
	if h.SelectedClass != nil {
		selected = *h.SelectedClass
	}
	in := &FakeInput{format: h.InputFormat, data: append([][]byte(nil), h.InputData...)}
	return in, Info{ID: "fake-in", Name: "Fake Microphone", Input: true, Class: selected, Format: h.InputFormat}, nil
}

func (h *FakeHost) OpenOutput(format pcm.Format, routes RouteSet) (Output, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.OpenOutputErr != nil {
		return nil, h.OpenOutputErr
	}
	h.openOutputs++
	out := &FakeOutput{format: format, routes: routes}
	h.outputs = append(h.outputs, out)
	return out, nil
}

// OpenInputCount reports how many times OpenInput succeeded.
func (h *FakeHost) OpenInputCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.openInputs
}

// OpenOutputCount reports how many times OpenOutput succeeded.
func (h *FakeHost) OpenOutputCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.openOutputs
}

// LastOutput returns the most recently opened fake output, or nil.
func (h *FakeHost) LastOutput() *FakeOutput {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.outputs) == 0 {
		return nil
	}
	return h.outputs[len(h.outputs)-1]
}

// FakeInput replays queued buffers, then blocks until closed.
type FakeInput struct {
	format pcm.Format

	mu     sync.Mutex
	data   [][]byte
	closed chan struct{}
	once   sync.Once
}

func (in *FakeInput) Format() pcm.Format { return in.format }

func (in *FakeInput) Read(p []byte) (int, error) {
	in.mu.Lock()
	if in.closed == nil {
		in.closed = make(chan struct{})
	}
	if len(in.data) > 0 {
		buf := in.data[0]
		in.data = in.data[1:]
		in.mu.Unlock()
		return copy(p, buf), nil
	}
	closed := in.closed
	in.mu.Unlock()
	<-closed
	return 0, io.EOF
}

func (in *FakeInput) Close() error {
	in.mu.Lock()
	if in.closed == nil {
		in.closed = make(chan struct{})
	}
	in.mu.Unlock()
	in.once.Do(func() { close(in.closed) })
	return nil
}

// FakeOutput records writes and route changes.
type FakeOutput struct {
	format pcm.Format

	mu         sync.Mutex
	routes     RouteSet
	writes     [][]byte
	routeCalls int
	closed     bool
}

func (o *FakeOutput) Format() pcm.Format { return o.format }

func (o *FakeOutput) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writes = append(o.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (o *FakeOutput) SetRoutes(routes RouteSet) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.routes = routes
	o.routeCalls++
	return nil
}

func (o *FakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

// Writes returns a copy of all recorded writes.
func (o *FakeOutput) Writes() [][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([][]byte(nil), o.writes...)
}

// Routes returns the current route set.
func (o *FakeOutput) Routes() RouteSet {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.routes
}

// RouteCalls reports how many times SetRoutes was called.
func (o *FakeOutput) RouteCalls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.routeCalls
}

// Closed reports whether Close was called.
func (o *FakeOutput) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

var (
	_ Host   = (*FakeHost)(nil)
	_ Input  = (*FakeInput)(nil)
	_ Output = (*FakeOutput)(nil)
)
