// Package device abstracts the platform audio layer: device enumeration,
// input selection by device class, and output routing. The translation
// pipeline never touches hardware directly; it declares a desired input class
// and output route set per operating mode and the Host implementation is
// responsible for honoring them.
package device

import (
	"errors"
	"strings"

	"github.com/voxlate/voxlate/pkg/audio/pcm"
)

// InputClass is the preferred class of input device. A connected wireless
// headset may offer a microphone that is physically unsuitable for capturing
// ambient sound, so the class is part of the per-mode routing policy rather
// than something the platform picks on its own.
type InputClass int

const (
	// ClassHeadsetMic prefers the microphone of a connected headset.
	ClassHeadsetMic InputClass = iota

	// ClassDeviceMic prefers the device's built-in microphone.
	ClassDeviceMic

	// ClassDeviceMicBottom prefers a built-in microphone oriented toward the
	// sound source (bottom-firing on handsets, front on laptops).
	ClassDeviceMicBottom
)

func (c InputClass) String() string {
	switch c {
	case ClassHeadsetMic:
		return "headset-mic"
	case ClassDeviceMic:
		return "device-mic"
	case ClassDeviceMicBottom:
		return "device-mic-bottom"
	}
	return "unknown"
}

// Route is a single output route.
type Route int

const (
	// RoutePrivate is the personal channel: headset or handset earpiece.
	RoutePrivate Route = 1 << iota

	// RoutePublic is the shared channel: loudspeaker.
	RoutePublic
)

// RouteSet is a set of simultaneous output routes.
type RouteSet int

// Has reports whether the set contains r.
func (s RouteSet) Has(r Route) bool { return s&RouteSet(r) != 0 }

func (s RouteSet) String() string {
	var parts []string
	if s.Has(RoutePrivate) {
		parts = append(parts, "private")
	}
	if s.Has(RoutePublic) {
		parts = append(parts, "public")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// Info describes an audio device known to the host.
type Info struct {
	ID      string
	Name    string
	Class   InputClass
	Input   bool
	Output  bool
	Format  pcm.Format
	Default bool
}

// Input is an open capture stream. Read blocks until the hardware delivers
// the next buffer; it returns the number of bytes read in the device's native
// format.
type Input interface {
	// Format is the hardware capture format. The capture engine converts from
	// this to the fixed pipeline format.
	Format() pcm.Format

	// Read fills p with captured audio and returns the byte count.
	Read(p []byte) (int, error)

	// Close releases the hardware input. Safe to call more than once.
	Close() error
}

// Output is an open playback sink.
type Output interface {
	// Format is the format Write expects.
	Format() pcm.Format

	// Write plays one contiguous buffer.
	Write(p []byte) (int, error)

	// SetRoutes retargets the output routes without reopening the stream.
	// Implementations must not reset the underlying audio session: reopening
	// while capture holds an input route is known to silently break capture.
	SetRoutes(routes RouteSet) error

	// Close releases the output. Safe to call more than once.
	Close() error
}

// Host is the platform audio layer.
type Host interface {
	// Devices enumerates the available devices.
	Devices() ([]Info, error)

	// OpenInput claims an input device of the preferred class. The returned
	// Info identifies the actually-selected device, which may differ from the
	// request; callers log it so routing bugs are diagnosable.
	OpenInput(class InputClass) (Input, Info, error)

	// OpenOutput claims the output device with the given initial routes.
	OpenOutput(format pcm.Format, routes RouteSet) (Output, error)
}

// ErrNoDevice is returned when the host has no device usable for a request.
var ErrNoDevice = errors.New("device: no usable device")
