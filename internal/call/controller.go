package call

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
	obsctx "github.com/fairyhunter13/ai-mock-interviewer/internal/observability"
	"github.com/fairyhunter13/ai-mock-interviewer/pkg/textx"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultInactivityTimeout = 30 * time.Second
	DefaultWatchdogInterval  = 5 * time.Second
	DefaultFeedbackTimeout   = 60 * time.Second
	DefaultConnectTimeout    = 30 * time.Second
	DefaultLocation          = "/"
)

// Session describes who the call is for and what it runs.
type Session struct {
	Mode        domain.InterviewMode
	UserName    string
	UserID      string
	InterviewID string
	FeedbackID  string
	Questions   []string
	// Target is the transport workflow or assistant the call connects to.
	Target string
}

// Options tunes timing and hooks. The zero value is usable.
type Options struct {
	InactivityTimeout   time.Duration
	WatchdogInterval    time.Duration
	FeedbackTimeout     time.Duration
	// ConnectTimeout bounds how long a call may stay Connecting.
	ConnectTimeout      time.Duration
	SessionEndedMarkers []string
	DefaultLocation     string
	Logger              *slog.Logger

	Now       func() time.Time
	NewTicker func(time.Duration) Ticker

	// OnFinished runs once after the terminal navigation.
	OnFinished func(Snapshot)
}

func (o Options) withDefaults() Options {
	if o.InactivityTimeout <= 0 {
		o.InactivityTimeout = DefaultInactivityTimeout
	}
	if o.WatchdogInterval <= 0 {
		o.WatchdogInterval = DefaultWatchdogInterval
	}
	if o.FeedbackTimeout <= 0 {
		o.FeedbackTimeout = DefaultFeedbackTimeout
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if len(o.SessionEndedMarkers) == 0 {
		o.SessionEndedMarkers = []string{DefaultSessionEndedMarker}
	}
	if o.DefaultLocation == "" {
		o.DefaultLocation = DefaultLocation
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewTicker == nil {
		o.NewTicker = NewTicker
	}
	return o
}

// Snapshot is a point-in-time copy of the controller state.
type Snapshot struct {
	Status      Status                   `json:"status"`
	Reason      Reason                   `json:"reason,omitempty"`
	Mode        domain.InterviewMode     `json:"mode"`
	Speaking    bool                     `json:"speaking"`
	LastMessage string                   `json:"lastMessage,omitempty"`
	Transcript  []domain.TranscriptEntry `json:"transcript"`
	Redirect    string                   `json:"redirect,omitempty"`
	StartedAt   time.Time                `json:"startedAt,omitempty"`
	FinishedAt  time.Time                `json:"finishedAt,omitempty"`
}

// Controller owns the lifecycle of one call. All event handling is
// serialized by mu; the terminal dispatch runs on its own goroutine once the
// status has become Finished.
type Controller struct {
	transport Transport
	feedback  FeedbackGenerator
	nav       Navigator
	sess      Session
	opts      Options
	log       *slog.Logger

	mu           sync.Mutex
	status       Status
	reason       Reason
	closed       bool
	speaking     bool
	transcript   []domain.TranscriptEntry
	lastMessage  string
	lastActivity time.Time
	startedAt    time.Time
	finishedAt   time.Time
	redirect     string
	unsubscribe  func()
	watchdogStop chan struct{}
	connectTimer *time.Timer

	// starting is set while transport.Start is in flight. A stop requested
	// meanwhile cancels the start and is replayed once Start returns.
	starting    bool
	stopPending bool
	cancelStart context.CancelFunc

	watchdogWG sync.WaitGroup
	stopOnce   sync.Once
	done       chan struct{}
}

// NewController builds an Inactive controller. Nothing is subscribed until Start.
func NewController(t Transport, fg FeedbackGenerator, nav Navigator, sess Session, opts Options) *Controller {
	opts = opts.withDefaults()
	return &Controller{
		transport: t,
		feedback:  fg,
		nav:       nav,
		sess:      sess,
		opts:      opts,
		log:       opts.Logger.With(slog.String("mode", string(sess.Mode)), slog.String("user_id", sess.UserID)),
		status:    StatusInactive,
		done:      make(chan struct{}),
	}
}

// Start subscribes to the transport and asks it to connect. Calling Start
// on a controller that already left Inactive is a no-op. A failed start
// finishes the call.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.closed || c.status != StatusInactive {
		c.mu.Unlock()
		c.log.Debug("call start ignored", slog.String("status", c.Status().String()))
		return
	}
	c.status = StatusConnecting
	c.startedAt = c.opts.Now()
	c.connectTimer = time.AfterFunc(c.opts.ConnectTimeout, c.onConnectTimeout)
	c.mu.Unlock()

	unsub := c.transport.Subscribe(events{c})
	c.mu.Lock()
	if c.closed || c.status == StatusFinished {
		c.mu.Unlock()
		unsub()
		return
	}
	c.unsubscribe = unsub
	startCtx, cancel := context.WithCancel(ctx)
	c.starting = true
	c.cancelStart = cancel
	c.mu.Unlock()

	c.log.Info("call connecting", slog.String("target", c.sess.Target))
	err := c.transport.Start(startCtx, c.sess.Target, c.startParams())
	cancel()

	c.mu.Lock()
	c.starting = false
	c.cancelStart = nil
	pending := c.stopPending
	c.mu.Unlock()

	if err != nil && !pending {
		c.log.Error("call start failed", slog.Any("error", err))
		c.finish(ReasonStartFailed, true)
		return
	}
	if pending {
		c.log.Info("call stopped while connecting")
		c.stopTransport()
	}
}

// Disconnect is the user hanging up.
func (c *Controller) Disconnect() {
	c.finish(ReasonDisconnected, true)
}

// Close tears down subscriptions and the watchdog without dispatching the
// terminal action. A call still in progress is stopped.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	live := c.status == StatusConnecting || c.status == StatusActive
	c.stopWatchdogLocked()
	c.stopConnectTimerLocked()
	c.mu.Unlock()

	if live {
		c.stopTransport()
	}
	c.release()
	c.watchdogWG.Wait()
}

// Done is closed after the terminal navigation has been issued.
func (c *Controller) Done() <-chan struct{} { return c.done }

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Reason is why the call finished; empty while it is still running.
func (c *Controller) Reason() Reason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// LastMessage is the most recent finalized utterance.
func (c *Controller) LastMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastMessage
}

func (c *Controller) IsSpeaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}

// Transcript returns a copy of the finalized utterances in arrival order.
func (c *Controller) Transcript() []domain.TranscriptEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.TranscriptEntry(nil), c.transcript...)
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Status:      c.status,
		Reason:      c.reason,
		Mode:        c.sess.Mode,
		Speaking:    c.speaking,
		LastMessage: c.lastMessage,
		Transcript:  append([]domain.TranscriptEntry{}, c.transcript...),
		Redirect:    c.redirect,
		StartedAt:   c.startedAt,
		FinishedAt:  c.finishedAt,
	}
}

func (c *Controller) startParams() map[string]any {
	if c.sess.Mode == domain.ModeGenerate {
		return map[string]any{
			"username": c.sess.UserName,
			"userid":   c.sess.UserID,
		}
	}
	return map[string]any{"questions": FormatQuestions(c.sess.Questions)}
}

// FormatQuestions renders the question list the interviewer reads from.
func FormatQuestions(qs []string) string {
	var b strings.Builder
	for i, q := range qs {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(q)
	}
	return b.String()
}

// liveLocked reports whether events may still change state. Caller holds mu.
func (c *Controller) liveLocked() bool {
	return !c.closed && (c.status == StatusConnecting || c.status == StatusActive)
}

func (c *Controller) onCallStart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.status != StatusConnecting {
		return
	}
	c.status = StatusActive
	c.lastActivity = c.opts.Now()
	c.stopConnectTimerLocked()
	c.startWatchdogLocked()
	c.log.Info("call active")
}

func (c *Controller) onConnectTimeout() {
	c.mu.Lock()
	if c.closed || c.status != StatusConnecting {
		c.mu.Unlock()
		return
	}
	finished := c.finishLocked(ReasonConnectTimeout)
	c.mu.Unlock()
	if finished {
		c.log.Warn("call never connected", slog.Duration("timeout", c.opts.ConnectTimeout))
		c.stopTransport()
		c.afterFinish()
	}
}

func (c *Controller) onCallEnd() {
	c.finish(ReasonCallEnded, false)
}

func (c *Controller) onMessage(m Message) {
	if !m.IsFinalTranscript() {
		return
	}
	content := textx.SanitizeText(m.Transcript)
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.liveLocked() {
		return
	}
	c.transcript = append(c.transcript, domain.TranscriptEntry{Role: m.Role, Content: content})
	c.lastMessage = content
	c.lastActivity = c.opts.Now()
}

func (c *Controller) onSpeechStart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.liveLocked() {
		return
	}
	c.speaking = true
	c.lastActivity = c.opts.Now()
}

func (c *Controller) onSpeechEnd() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.liveLocked() {
		return
	}
	c.speaking = false
}

func (c *Controller) onError(err error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	if !IsSessionEnded(err, c.opts.SessionEndedMarkers) {
		c.log.Warn("call transport error", slog.String("error", ErrorMessage(err)))
		return
	}
	c.log.Info("call session ended by remote", slog.String("error", ErrorMessage(err)))
	c.mu.Lock()
	finished := c.finishLocked(ReasonSessionEnded)
	c.mu.Unlock()
	// stop is forced even when another trigger already finished the call.
	c.stopTransport()
	if finished {
		c.afterFinish()
	}
}

// finish moves a live call to Finished and dispatches the terminal action.
func (c *Controller) finish(reason Reason, forceStop bool) {
	c.mu.Lock()
	finished := c.finishLocked(reason)
	c.mu.Unlock()
	if !finished {
		return
	}
	if forceStop {
		c.stopTransport()
	}
	c.afterFinish()
}

// finishLocked reports whether this call made the transition. Caller holds mu.
func (c *Controller) finishLocked(reason Reason) bool {
	if !c.liveLocked() {
		return false
	}
	c.status = StatusFinished
	c.reason = reason
	c.speaking = false
	c.finishedAt = c.opts.Now()
	c.stopWatchdogLocked()
	c.stopConnectTimerLocked()
	c.log.Info("call finished", slog.String("reason", string(reason)), slog.Int("utterances", len(c.transcript)))
	return true
}

func (c *Controller) afterFinish() {
	c.release()
	go c.dispatch()
}

// stopConnectTimerLocked cancels the connect deadline. Caller holds mu.
func (c *Controller) stopConnectTimerLocked() {
	if c.connectTimer != nil {
		c.connectTimer.Stop()
		c.connectTimer = nil
	}
}

// stopTransport stops the transport once. While Start is still in flight the
// stop is deferred until it returns and the start is cancelled.
func (c *Controller) stopTransport() {
	c.mu.Lock()
	if c.starting {
		c.stopPending = true
		cancel := c.cancelStart
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return
	}
	c.mu.Unlock()
	c.stopOnce.Do(func() {
		if err := c.transport.Stop(); err != nil {
			c.log.Warn("call transport stop failed", slog.Any("error", err))
		}
	})
}

func (c *Controller) release() {
	c.mu.Lock()
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// dispatch runs the single terminal action for a Finished call.
func (c *Controller) dispatch() {
	defer close(c.done)

	path := c.opts.DefaultLocation
	if c.sess.Mode != domain.ModeGenerate {
		path = c.submitFeedback()
	}
	if c.nav != nil {
		c.nav.Navigate(path)
	}
	c.watchdogWG.Wait()

	c.mu.Lock()
	c.redirect = path
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.log.Info("call navigated", slog.String("path", path))
	if c.opts.OnFinished != nil {
		c.opts.OnFinished(snap)
	}
}

func (c *Controller) submitFeedback() string {
	if c.feedback == nil {
		c.log.Error("call feedback generator missing")
		return c.opts.DefaultLocation
	}
	req := domain.FeedbackRequest{
		InterviewID: c.sess.InterviewID,
		UserID:      c.sess.UserID,
		Transcript:  c.Transcript(),
		FeedbackID:  c.sess.FeedbackID,
	}
	ctx, cancel := context.WithTimeout(obsctx.ContextWithLogger(context.Background(), c.log), c.opts.FeedbackTimeout)
	defer cancel()

	res, err := c.feedback.CreateFeedback(ctx, req)
	if err != nil {
		c.log.Error("call feedback failed", slog.String("interview_id", req.InterviewID), slog.Any("error", err))
		return c.opts.DefaultLocation
	}
	if !res.Success || res.FeedbackID == "" {
		c.log.Warn("call feedback unsuccessful", slog.String("interview_id", req.InterviewID))
		return c.opts.DefaultLocation
	}
	return FeedbackPath(req.InterviewID, res.FeedbackID)
}

// FeedbackPath is the page that shows one feedback for an interview.
func FeedbackPath(interviewID, feedbackID string) string {
	return fmt.Sprintf("/interview/%s/feedback/%s", url.PathEscape(interviewID), url.PathEscape(feedbackID))
}

// events adapts the controller to Listener without exporting the handlers.
type events struct{ c *Controller }

func (e events) OnCallStart()        { e.c.onCallStart() }
func (e events) OnCallEnd()          { e.c.onCallEnd() }
func (e events) OnMessage(m Message) { e.c.onMessage(m) }
func (e events) OnSpeechStart()      { e.c.onSpeechStart() }
func (e events) OnSpeechEnd()        { e.c.onSpeechEnd() }
func (e events) OnError(err error)   { e.c.onError(err) }
