package playback_test

import (
	"testing"
	"time"

	"github.com/voxlate/voxlate/pkg/audio/device"
	"github.com/voxlate/voxlate/pkg/audio/pcm"
	"github.com/voxlate/voxlate/pkg/mode"
	"github.com/voxlate/voxlate/pkg/playback"
)

func startedEngine(t *testing.T, m mode.Mode) (*playback.Engine, *device.FakeHost) {
	t.Helper()
	host := device.NewFakeHost(pcm.L16Mono16K)
	e := playback.New(host)
	if err := e.Start(m); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(e.Stop)
	return e, host
}

func waitWrites(t *testing.T, out *device.FakeOutput, want int) [][]byte {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if w := out.Writes(); len(w) >= want {
			return w
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d writes, have %d", want, len(out.Writes()))
	return nil
}

func TestDebounceCoalescesFragments(t *testing.T) {
	e, host := startedEngine(t, mode.Conversation)
	out := host.LastOutput()

	// Five 100-byte fragments in rapid succession must coalesce into exactly
	// one 500-byte playback unit after the debounce window.
	for i := 0; i < 5; i++ {
		e.Enqueue(make([]byte, 100))
	}

	writes := waitWrites(t, out, 1)
	if len(writes[0]) != 500 {
		t.Fatalf("flush size = %d, want 500", len(writes[0]))
	}

	// No further write appears afterwards.
	time.Sleep(3 * playback.DefaultDebounce)
	if got := len(out.Writes()); got != 1 {
		t.Fatalf("writes = %d, want exactly 1", got)
	}
}

func TestSizeThresholdFlushesImmediately(t *testing.T) {
	e, host := startedEngine(t, mode.Conversation)
	out := host.LastOutput()

	// 5000 bytes exceeds the ~100 ms threshold (4800 bytes at 24 kHz mono),
	// so the flush must not wait for the debounce window.
	e.Enqueue(make([]byte, 5000))

	deadline := time.Now().Add(playback.DefaultDebounce / 2)
	for len(out.Writes()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("threshold flush waited for the debounce window")
		}
		time.Sleep(time.Millisecond)
	}
	if got := len(out.Writes()[0]); got != 5000 {
		t.Fatalf("flush size = %d, want 5000", got)
	}
}

func TestPushToTalkRoutesBothChannels(t *testing.T) {
	_, host := startedEngine(t, mode.PushToTalk)
	out := host.LastOutput()

	routes := out.Routes()
	if !routes.Has(device.RoutePrivate) || !routes.Has(device.RoutePublic) {
		t.Fatalf("routes = %v, want private+public", routes)
	}
}

func TestStartWhileRunningDoesNotReopen(t *testing.T) {
	e, host := startedEngine(t, mode.Conversation)

	if err := e.Start(mode.PushToTalk); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	if got := host.OpenOutputCount(); got != 1 {
		t.Fatalf("output opened %d times, want 1 (reopen resets the audio session)", got)
	}
	out := host.LastOutput()
	if !out.Routes().Has(device.RoutePublic) {
		t.Fatalf("routes = %v, want public added via SetRoutes", out.Routes())
	}
	if got := out.RouteCalls(); got != 1 {
		t.Fatalf("SetRoutes calls = %d, want 1", got)
	}
}

func TestStartWhileRunningSameModeIsNoop(t *testing.T) {
	e, host := startedEngine(t, mode.Conversation)
	if err := e.Start(mode.Conversation); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if got := host.LastOutput().RouteCalls(); got != 0 {
		t.Fatalf("SetRoutes calls = %d, want 0 for unchanged routes", got)
	}
}

func TestStopClearsPendingAccumulation(t *testing.T) {
	e, host := startedEngine(t, mode.Conversation)
	out := host.LastOutput()

	e.Enqueue(make([]byte, 100))
	e.Stop()

	time.Sleep(3 * playback.DefaultDebounce)
	if got := len(out.Writes()); got != 0 {
		t.Fatalf("writes after stop = %d, want 0 (pending buffer must be discarded)", got)
	}
	if !out.Closed() {
		t.Fatal("output device not released by Stop")
	}
}

func TestStopIdempotent(t *testing.T) {
	host := device.NewFakeHost(pcm.L16Mono16K)
	e := playback.New(host)

	// Stop before Start.
	e.Stop()

	if err := e.Start(mode.Conversation); err != nil {
		t.Fatalf("Start: %v", err)
	}
	e.Stop()
	e.Stop()

	// Enqueue after Stop is a no-op.
	e.Enqueue(make([]byte, 100))
}

func TestRestartAfterStop(t *testing.T) {
	host := device.NewFakeHost(pcm.L16Mono16K)
	e := playback.New(host)

	if err := e.Start(mode.Conversation); err != nil {
		t.Fatalf("Start: %v", err)
	}
	e.Stop()
	if err := e.Start(mode.Ambient); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer e.Stop()

	if got := host.OpenOutputCount(); got != 2 {
		t.Fatalf("output opened %d times across restart, want 2", got)
	}

	e.Enqueue(make([]byte, 5000))
	waitWrites(t, host.LastOutput(), 1)
}
