package coordinator_test

import (
	"context"
	"sync"
	"time"

	"github.com/voxlate/voxlate/pkg/audio/pcm"
	"github.com/voxlate/voxlate/pkg/coordinator"
	"github.com/voxlate/voxlate/pkg/fallback"
	"github.com/voxlate/voxlate/pkg/history"
	"github.com/voxlate/voxlate/pkg/mode"
	"github.com/voxlate/voxlate/pkg/realtime"
	"github.com/voxlate/voxlate/pkg/translate"
)

// seqLog records the order of component calls across goroutines.
type seqLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *seqLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *seqLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeSession struct {
	seq    *seqLog
	events chan realtime.Event

	mu        sync.Mutex
	closeOnce sync.Once
	sent      []pcm.Chunk
	duration  time.Duration
}

func newFakeSession(seq *seqLog) *fakeSession {
	return &fakeSession{seq: seq, events: make(chan realtime.Event, 64), duration: 3 * time.Second}
}

func (s *fakeSession) Events() <-chan realtime.Event { return s.events }

func (s *fakeSession) SendAudio(c pcm.Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, c)
}

func (s *fakeSession) Sent() []pcm.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pcm.Chunk(nil), s.sent...)
}

func (s *fakeSession) SentAudioDuration() time.Duration { return s.duration }

func (s *fakeSession) Disconnect() {
	s.closeOnce.Do(func() {
		s.seq.add("session.disconnect")
		close(s.events)
	})
}

// Fail emits a transport failure and ends the event stream, the way a dead
// connection does.
func (s *fakeSession) Fail(err error) {
	s.events <- realtime.Event{Kind: realtime.EventFailure, Err: err}
	s.closeOnce.Do(func() { close(s.events) })
}

type fakeDialer struct {
	seq *seqLog

	mu       sync.Mutex
	err      error
	sessions []*fakeSession
	lastMode mode.Mode
	lastCfg  translate.Config
}

func (d *fakeDialer) Connect(_ context.Context, cfg translate.Config, m mode.Mode) (coordinator.StreamSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	d.seq.add("dialer.connect")
	s := newFakeSession(d.seq)
	d.sessions = append(d.sessions, s)
	d.lastMode, d.lastCfg = m, cfg
	return s, nil
}

func (d *fakeDialer) session(i int) *fakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[i]
}

func (d *fakeDialer) connects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sessions)
}

type fakeCapture struct {
	seq *seqLog

	mu       sync.Mutex
	chunks   chan pcm.Chunk
	starts   int
	lastMode mode.Mode
	noise    bool
}

func (c *fakeCapture) Start(m mode.Mode, noiseSuppression bool) (<-chan pcm.Chunk, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq.add("capture.start")
	c.starts++
	c.lastMode = m
	c.noise = noiseSuppression
	c.chunks = make(chan pcm.Chunk, 16)
	return c.chunks, nil
}

func (c *fakeCapture) Feed(chunk pcm.Chunk) {
	c.mu.Lock()
	ch := c.chunks
	c.mu.Unlock()
	ch <- chunk
}

func (c *fakeCapture) SetNoiseSuppression(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.noise = enabled
}

func (c *fakeCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chunks == nil {
		return
	}
	c.seq.add("capture.stop")
	close(c.chunks)
	c.chunks = nil
}

func (c *fakeCapture) startCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts
}

type fakePlayback struct {
	seq *seqLog

	mu       sync.Mutex
	running  bool
	enqueued [][]byte
}

func (p *fakePlayback) Start(mode.Mode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq.add("playback.start")
	p.running = true
	return nil
}

func (p *fakePlayback) Enqueue(fragment []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enqueued = append(p.enqueued, append([]byte(nil), fragment...))
}

func (p *fakePlayback) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq.add("playback.stop")
	p.running = false
}

func (p *fakePlayback) fragments() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.enqueued...)
}

type fakeFallback struct {
	seq *seqLog

	mu        sync.Mutex
	available bool
	startErr  error
	results   chan fallback.Result
	starts    int
	fed       []pcm.Chunk
}

func (f *fakeFallback) CheckAvailability(translate.Config) bool {
	return f.available
}

func (f *fakeFallback) Start(context.Context, translate.Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.seq.add("fallback.start")
	f.starts++
	f.results = make(chan fallback.Result, 16)
	return nil
}

func (f *fakeFallback) Feed(chunk pcm.Chunk) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fed = append(f.fed, chunk)
}

func (f *fakeFallback) Results() <-chan fallback.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results
}

func (f *fakeFallback) Emit(res fallback.Result) {
	f.mu.Lock()
	ch := f.results
	f.mu.Unlock()
	ch <- res
}

func (f *fakeFallback) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.results == nil {
		return
	}
	f.seq.add("fallback.stop")
	close(f.results)
	f.results = nil
}

func (f *fakeFallback) fedChunks() []pcm.Chunk {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pcm.Chunk(nil), f.fed...)
}

func (f *fakeFallback) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

type fakeMonitor struct {
	mu          sync.Mutex
	online      bool
	transitions chan bool
}

func newFakeMonitor(online bool) *fakeMonitor {
	return &fakeMonitor{online: online, transitions: make(chan bool, 4)}
}

func (m *fakeMonitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *fakeMonitor) Transitions() <-chan bool { return m.transitions }

func (m *fakeMonitor) flip(online bool) {
	m.mu.Lock()
	m.online = online
	m.mu.Unlock()
	m.transitions <- online
}

type fakeQuota struct {
	mu       sync.Mutex
	allowed  bool
	recorded []time.Duration
}

func (q *fakeQuota) CanTranslate(context.Context) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.allowed, nil
}

func (q *fakeQuota) Record(_ context.Context, d time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.recorded = append(q.recorded, d)
	return nil
}

func (q *fakeQuota) recordings() []time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]time.Duration(nil), q.recorded...)
}

type fakeHistory struct {
	mu      sync.Mutex
	entries []history.Entry
}

func (h *fakeHistory) Append(_ context.Context, e history.Entry) (history.Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e)
	return e, nil
}

func (h *fakeHistory) all() []history.Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]history.Entry(nil), h.entries...)
}
