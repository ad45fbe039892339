// Package portaudio implements device.Host over the PortAudio C library.
//
// Requires portaudio installed via pkg-config (brew install portaudio,
// apt install portaudio19-dev).
package portaudio

/*
#cgo pkg-config: portaudio-2.0

#include <portaudio.h>
#include <stdlib.h>

// void* wrappers avoid CGO type issues with PaStream.
static PaError va_open_stream(void **stream,
                              const PaStreamParameters *inputParams,
                              const PaStreamParameters *outputParams,
                              double sampleRate,
                              unsigned long frames) {
    return Pa_OpenStream((PaStream**)stream, inputParams, outputParams,
                         sampleRate, frames, paClipOff, NULL, NULL);
}

static PaError va_start_stream(void *stream)  { return Pa_StartStream((PaStream*)stream); }
static PaError va_close_stream(void *stream)  { return Pa_CloseStream((PaStream*)stream); }
static PaError va_abort_stream(void *stream)  { return Pa_AbortStream((PaStream*)stream); }

static PaError va_read_stream(void *stream, void *buf, unsigned long frames) {
    return Pa_ReadStream((PaStream*)stream, buf, frames);
}

static PaError va_write_stream(void *stream, const void *buf, unsigned long frames) {
    return Pa_WriteStream((PaStream*)stream, buf, frames);
}
*/
import "C"

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"unsafe"

	"github.com/voxlate/voxlate/pkg/audio/device"
	"github.com/voxlate/voxlate/pkg/audio/pcm"
)

// framesPerBuffer is the hardware exchange size: 20 ms at 16 kHz.
const framesPerBuffer = 320

func paError(code C.PaError) error {
	if code == C.paNoError {
		return nil
	}
	return errors.New(C.GoString(C.Pa_GetErrorText(code)))
}

// Host is a PortAudio-backed device.Host.
type Host struct {
	mu     sync.Mutex
	closed bool
}

// NewHost initializes PortAudio and returns a Host. Close releases the
// library.
func NewHost() (*Host, error) {
	if err := paError(C.Pa_Initialize()); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	return &Host{}, nil
}

// Close terminates PortAudio. Streams must be closed first.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return paError(C.Pa_Terminate())
}

// classify maps a device name to an input class. Hosts rarely expose
// transducer positions, so this is a name heuristic.
func classify(name string) device.InputClass {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "headset") || strings.Contains(n, "headphone") || strings.Contains(n, "airpod"):
		return device.ClassHeadsetMic
	case strings.Contains(n, "bottom"):
		return device.ClassDeviceMicBottom
	default:
		return device.ClassDeviceMic
	}
}

func (h *Host) Devices() ([]device.Info, error) {
	count := int(C.Pa_GetDeviceCount())
	if count < 0 {
		return nil, fmt.Errorf("portaudio: enumerate: %w", paError(C.PaError(count)))
	}
	defaultIn := int(C.Pa_GetDefaultInputDevice())
	defaultOut := int(C.Pa_GetDefaultOutputDevice())

	var devices []device.Info
	for i := 0; i < count; i++ {
		info := C.Pa_GetDeviceInfo(C.PaDeviceIndex(i))
		if info == nil {
			continue
		}
		name := C.GoString(info.name)
		channels := int(info.maxInputChannels)
		if channels == 0 {
			channels = int(info.maxOutputChannels)
		}
		devices = append(devices, device.Info{
			ID:      strconv.Itoa(i),
			Name:    name,
			Class:   classify(name),
			Input:   info.maxInputChannels > 0,
			Output:  info.maxOutputChannels > 0,
			Format:  pcm.Format{SampleRate: int(info.defaultSampleRate), Channels: min(channels, 2)},
			Default: i == defaultIn || i == defaultOut,
		})
	}
	return devices, nil
}

// pickInput prefers a device matching the class, falling back to the default
// input.
func (h *Host) pickInput(class device.InputClass) (C.PaDeviceIndex, device.Info, error) {
	devices, err := h.Devices()
	if err != nil {
		return 0, device.Info{}, err
	}
	var fallbackIdx C.PaDeviceIndex = C.paNoDevice
	var fallbackInfo device.Info
	for _, d := range devices {
		if !d.Input {
			continue
		}
		idx, _ := strconv.Atoi(d.ID)
		if d.Class == class {
			return C.PaDeviceIndex(idx), d, nil
		}
		if fallbackIdx == C.paNoDevice || d.Default {
			fallbackIdx = C.PaDeviceIndex(idx)
			fallbackInfo = d
		}
	}
	if fallbackIdx == C.paNoDevice {
		return 0, device.Info{}, device.ErrNoDevice
	}
	return fallbackIdx, fallbackInfo, nil
}

func (h *Host) OpenInput(class device.InputClass) (device.Input, device.Info, error) {
	idx, info, err := h.pickInput(class)
	if err != nil {
		return nil, device.Info{}, err
	}
	paInfo := C.Pa_GetDeviceInfo(idx)
	if paInfo == nil {
		return nil, device.Info{}, device.ErrNoDevice
	}

	format := pcm.Format{SampleRate: int(paInfo.defaultSampleRate), Channels: 1}
	params := C.PaStreamParameters{
		device:           idx,
		channelCount:     1,
		sampleFormat:     C.paInt16,
		suggestedLatency: paInfo.defaultLowInputLatency,
	}

	var stream unsafe.Pointer
	if err := paError(C.va_open_stream(&stream, &params, nil, C.double(format.SampleRate), framesPerBuffer)); err != nil {
		return nil, device.Info{}, fmt.Errorf("portaudio: open input %q: %w", info.Name, err)
	}
	if err := paError(C.va_start_stream(stream)); err != nil {
		C.va_close_stream(stream)
		return nil, device.Info{}, fmt.Errorf("portaudio: start input %q: %w", info.Name, err)
	}

	info.Format = format
	return &input{stream: newStream(stream, framesPerBuffer*2), format: format}, info, nil
}

func (h *Host) OpenOutput(format pcm.Format, routes device.RouteSet) (device.Output, error) {
	if !format.Valid() {
		return nil, fmt.Errorf("portaudio: invalid output format %d Hz / %d ch", format.SampleRate, format.Channels)
	}
	idx := C.Pa_GetDefaultOutputDevice()
	if idx == C.paNoDevice {
		return nil, device.ErrNoDevice
	}
	paInfo := C.Pa_GetDeviceInfo(idx)
	if paInfo == nil {
		return nil, device.ErrNoDevice
	}
	params := C.PaStreamParameters{
		device:           idx,
		channelCount:     C.int(format.Channels),
		sampleFormat:     C.paInt16,
		suggestedLatency: paInfo.defaultLowOutputLatency,
	}

	var stream unsafe.Pointer
	if err := paError(C.va_open_stream(&stream, nil, &params, C.double(format.SampleRate), framesPerBuffer)); err != nil {
		return nil, fmt.Errorf("portaudio: open output: %w", err)
	}
	if err := paError(C.va_start_stream(stream)); err != nil {
		C.va_close_stream(stream)
		return nil, fmt.Errorf("portaudio: start output: %w", err)
	}
	return &output{
		stream: newStream(stream, framesPerBuffer*format.Channels*2),
		format: format,
		routes: routes,
	}, nil
}

// stream wraps one PortAudio stream with a C-side exchange buffer.
type stream struct {
	mu     sync.Mutex
	ptr    unsafe.Pointer
	buf    unsafe.Pointer
	bufLen int
	closed bool
}

func newStream(ptr unsafe.Pointer, bufLen int) *stream {
	return &stream{ptr: ptr, buf: C.malloc(C.size_t(bufLen)), bufLen: bufLen}
}

func (s *stream) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	C.va_abort_stream(s.ptr)
	err := paError(C.va_close_stream(s.ptr))
	C.free(s.buf)
	return err
}

type input struct {
	stream *stream
	format pcm.Format
}

func (in *input) Format() pcm.Format { return in.format }

// Read blocks until one hardware buffer is available, then copies as much as
// fits into p.
func (in *input) Read(p []byte) (int, error) {
	s := in.stream
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.EOF
	}
	// Input overflow (paInputOverflowed) drops old audio but still fills the
	// buffer, so it is not treated as a failure.
	code := C.va_read_stream(s.ptr, s.buf, framesPerBuffer)
	if code != C.paNoError && code != C.paInputOverflowed {
		return 0, fmt.Errorf("portaudio: read: %w", paError(code))
	}
	n := copy(p, unsafe.Slice((*byte)(s.buf), s.bufLen))
	return n, nil
}

func (in *input) Close() error { return in.stream.close() }

type output struct {
	stream *stream
	format pcm.Format

	mu     sync.Mutex
	routes device.RouteSet
}

func (o *output) Format() pcm.Format { return o.format }

// Write blocks until the hardware has accepted all of p, padding the final
// partial buffer with silence.
func (o *output) Write(p []byte) (int, error) {
	s := o.stream
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}

	dst := unsafe.Slice((*byte)(s.buf), s.bufLen)
	written := 0
	for written < len(p) {
		n := copy(dst, p[written:])
		for i := n; i < s.bufLen; i++ {
			dst[i] = 0
		}
		frames := C.ulong(s.bufLen / (o.format.Channels * 2))
		// Output underflow only means the device starved; keep going.
		code := C.va_write_stream(s.ptr, s.buf, frames)
		if code != C.paNoError && code != C.paOutputUnderflowed {
			return written, fmt.Errorf("portaudio: write: %w", paError(code))
		}
		written += n
	}
	return written, nil
}

// SetRoutes records the requested routes. Speaker/receiver selection is the
// operating system's call on desktop hosts; the request is kept for
// observability.
func (o *output) SetRoutes(routes device.RouteSet) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.routes = routes
	return nil
}

func (o *output) Close() error { return o.stream.close() }

var _ device.Host = (*Host)(nil)
