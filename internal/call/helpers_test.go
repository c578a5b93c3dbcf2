package call_test

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/call"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
)

type fakeTransport struct {
	mu        sync.Mutex
	listeners map[int]call.Listener
	nextID    int

	startErr error
	starts   int
	stops    int
	target   string
	params   map[string]any

	// block, when set, holds Start until it is closed; entered is closed on
	// the way in. ignoreCtx keeps Start blocked even after cancellation.
	block     chan struct{}
	entered   chan struct{}
	ignoreCtx bool
	startDone bool
	cancelled bool
	stopsLate int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{listeners: map[int]call.Listener{}}
}

func (f *fakeTransport) Start(ctx context.Context, target string, params map[string]any) error {
	f.mu.Lock()
	f.starts++
	f.target = target
	f.params = params
	block, entered, ignoreCtx := f.block, f.entered, f.ignoreCtx
	f.mu.Unlock()

	if block != nil {
		if entered != nil {
			close(entered)
		}
		if ignoreCtx {
			<-block
		} else {
			select {
			case <-block:
			case <-ctx.Done():
				f.mu.Lock()
				f.cancelled = true
				f.mu.Unlock()
			}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.startDone = true
	return f.startErr
}

func (f *fakeTransport) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if f.startDone {
		f.stopsLate++
	}
	return nil
}

func (f *fakeTransport) Subscribe(l call.Listener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = l
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

func (f *fakeTransport) each(fn func(call.Listener)) {
	f.mu.Lock()
	ls := make([]call.Listener, 0, len(f.listeners))
	for _, l := range f.listeners {
		ls = append(ls, l)
	}
	f.mu.Unlock()
	for _, l := range ls {
		fn(l)
	}
}

func (f *fakeTransport) callStart()   { f.each(func(l call.Listener) { l.OnCallStart() }) }
func (f *fakeTransport) callEnd()     { f.each(func(l call.Listener) { l.OnCallEnd() }) }
func (f *fakeTransport) speechStart() { f.each(func(l call.Listener) { l.OnSpeechStart() }) }
func (f *fakeTransport) speechEnd()   { f.each(func(l call.Listener) { l.OnSpeechEnd() }) }
func (f *fakeTransport) fail(err error) {
	f.each(func(l call.Listener) { l.OnError(err) })
}
func (f *fakeTransport) say(role, text string) {
	f.each(func(l call.Listener) {
		l.OnMessage(call.Message{Type: call.MessageTranscript, TranscriptType: call.TranscriptFinal, Role: role, Transcript: text})
	})
}
func (f *fakeTransport) partial(role, text string) {
	f.each(func(l call.Listener) {
		l.OnMessage(call.Message{Type: call.MessageTranscript, TranscriptType: call.TranscriptPartial, Role: role, Transcript: text})
	})
}

func (f *fakeTransport) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

// blockStart makes the next Start wait for release and returns the entry signal.
func (f *fakeTransport) blockStart(ignoreCtx bool) (entered <-chan struct{}, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.block = make(chan struct{})
	f.entered = make(chan struct{})
	f.ignoreCtx = ignoreCtx
	var once sync.Once
	block := f.block
	return f.entered, func() { once.Do(func() { close(block) }) }
}

func (f *fakeTransport) lateStops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopsLate
}

func (f *fakeTransport) wasCancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

func (f *fakeTransport) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func newFakeTicker() *fakeTicker { return &fakeTicker{ch: make(chan time.Time)} }

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.stopped.Store(true) }

// tick blocks until the watchdog has received the tick.
func (t *fakeTicker) tick(tb testing.TB) {
	tb.Helper()
	select {
	case t.ch <- time.Now():
	case <-time.After(2 * time.Second):
		tb.Fatal("watchdog did not receive tick")
	}
}

type recordingNavigator struct {
	mu    sync.Mutex
	paths []string
}

func (n *recordingNavigator) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
}

func (n *recordingNavigator) Paths() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}

type feedbackMock struct{ mock.Mock }

func (m *feedbackMock) CreateFeedback(ctx context.Context, req domain.FeedbackRequest) (domain.FeedbackResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.FeedbackResult), args.Error(1)
}

type harness struct {
	transport *fakeTransport
	clock     *fakeClock
	ticker    *fakeTicker
	nav       *recordingNavigator
	feedback  *feedbackMock
	ctrl      *call.Controller
}

func newHarness(sess call.Session) *harness {
	return newHarnessWith(sess, nil)
}

// newHarnessWith lets a test adjust the options before the controller is built.
func newHarnessWith(sess call.Session, tweak func(*call.Options)) *harness {
	h := &harness{
		transport: newFakeTransport(),
		clock:     newFakeClock(),
		ticker:    newFakeTicker(),
		nav:       &recordingNavigator{},
		feedback:  &feedbackMock{},
	}
	opts := call.Options{
		InactivityTimeout: 30 * time.Second,
		WatchdogInterval:  5 * time.Second,
		Now:               h.clock.Now,
		NewTicker:         func(time.Duration) call.Ticker { return h.ticker },
	}
	if tweak != nil {
		tweak(&opts)
	}
	h.ctrl = call.NewController(h.transport, h.feedback, h.nav, sess, opts)
	return h
}

func waitDone(tb testing.TB, c *call.Controller) {
	tb.Helper()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		tb.Fatal("controller did not dispatch")
	}
}

func generateSession() call.Session {
	return call.Session{Mode: domain.ModeGenerate, UserName: "Ada", UserID: "u-1", Target: "wf-1"}
}

func interviewSession() call.Session {
	return call.Session{
		Mode:        domain.ModeInterview,
		UserID:      "u-1",
		InterviewID: "iv-1",
		Questions:   []string{"Tell me about yourself", "Why Go?"},
		Target:      "asst-1",
	}
}

// syncBuffer is a bytes.Buffer safe for the dispatch goroutine to log into.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
