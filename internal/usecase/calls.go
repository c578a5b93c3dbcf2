package usecase

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	obs "github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/call"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/observability"
)

// TransportFactory returns a fresh transport for one call.
type TransportFactory func() call.Transport

// StartCallInput selects what the call runs.
type StartCallInput struct {
	Mode        domain.InterviewMode `json:"mode" validate:"required,oneof=generate interview"`
	InterviewID string               `json:"interviewId" validate:"required_if=Mode interview"`
	FeedbackID  string               `json:"feedbackId"`
}

// CallView is what a user sees of one of their calls.
type CallView struct {
	ID string `json:"id"`
	call.Snapshot
}

// CallTargets names the remote workflow and assistant for each mode.
type CallTargets struct {
	Workflow    string
	Interviewer string
}

type callEntry struct {
	id          string
	userID      string
	mode        domain.InterviewMode
	ctrl        *call.Controller
	accountOnce sync.Once

	mu          sync.Mutex
	navigatedAt time.Time
}

func (e *callEntry) account(reason string, d time.Duration) {
	e.accountOnce.Do(func() { obs.CallFinished(string(e.mode), reason, d) })
}

func (e *callEntry) navigated() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.navigatedAt, !e.navigatedAt.IsZero()
}

// CallService owns the running call controllers, keyed by call id.
type CallService struct {
	Interviews   domain.InterviewRepository
	Feedback     call.FeedbackGenerator
	NewTransport TransportFactory
	Targets      CallTargets
	// Options is the template every controller is built from.
	Options    call.Options
	Retention  time.Duration
	MaxPerUser int

	now func() time.Time

	mu    sync.Mutex
	calls map[string]*callEntry
}

func NewCallService(ivs domain.InterviewRepository, fg call.FeedbackGenerator, tf TransportFactory, targets CallTargets, opts call.Options) *CallService {
	return &CallService{
		Interviews:   ivs,
		Feedback:     fg,
		NewTransport: tf,
		Targets:      targets,
		Options:      opts,
		Retention:    10 * time.Minute,
		MaxPerUser:   1,
		now:          time.Now,
		calls:        make(map[string]*callEntry),
	}
}

func (s *CallService) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Start creates a controller for user and asks the transport to connect.
func (s *CallService) Start(ctx domain.Context, user domain.User, in StartCallInput) (CallView, error) {
	if err := Validator().Struct(in); err != nil {
		return CallView{}, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	if user.ID == "" {
		return CallView{}, fmt.Errorf("%w: no user", domain.ErrUnauthenticated)
	}
	if s.NewTransport == nil {
		return CallView{}, fmt.Errorf("%w: voice transport not configured", domain.ErrInternal)
	}

	sess := call.Session{Mode: in.Mode, UserName: user.Name, UserID: user.ID, Target: s.Targets.Workflow}
	if in.Mode == domain.ModeInterview {
		iv, err := s.Interviews.Get(ctx, in.InterviewID)
		if err != nil {
			return CallView{}, err
		}
		if len(iv.Questions) == 0 {
			return CallView{}, fmt.Errorf("%w: interview has no questions", domain.ErrInvalidArgument)
		}
		sess.InterviewID = iv.ID
		sess.FeedbackID = in.FeedbackID
		sess.Questions = iv.Questions
		sess.Target = s.Targets.Interviewer
	}

	s.mu.Lock()
	if s.calls == nil {
		s.calls = make(map[string]*callEntry)
	}
	if s.MaxPerUser > 0 && s.liveForUserLocked(user.ID) >= s.MaxPerUser {
		s.mu.Unlock()
		return CallView{}, fmt.Errorf("%w: a call is already in progress", domain.ErrRateLimited)
	}
	e := &callEntry{id: ulid.MustNew(ulid.Timestamp(s.clock()), rand.Reader).String(), userID: user.ID, mode: in.Mode}
	opts := s.Options
	base := opts.Logger
	if base == nil {
		base = observability.Logger(ctx)
	}
	opts.Logger = base.With(slog.String("call_id", e.id))
	opts.OnFinished = func(snap call.Snapshot) {
		e.mu.Lock()
		e.navigatedAt = s.clock()
		e.mu.Unlock()
		var d time.Duration
		if !snap.StartedAt.IsZero() && !snap.FinishedAt.IsZero() {
			d = snap.FinishedAt.Sub(snap.StartedAt)
		}
		e.account(string(snap.Reason), d)
	}
	e.ctrl = call.NewController(s.NewTransport(), s.Feedback, call.NavigatorFunc(func(string) {}), sess, opts)
	s.calls[e.id] = e
	s.mu.Unlock()

	obs.CallStarted(string(in.Mode))
	e.ctrl.Start(observability.ContextWithCallID(ctx, e.id))
	return CallView{ID: e.id, Snapshot: e.ctrl.Snapshot()}, nil
}

func (s *CallService) liveForUserLocked(userID string) int {
	n := 0
	for _, e := range s.calls {
		if e.userID == userID && e.ctrl.Status() != call.StatusFinished {
			n++
		}
	}
	return n
}

func (s *CallService) lookup(callID, userID string) (*callEntry, error) {
	s.mu.Lock()
	e, ok := s.calls[callID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: call %s", domain.ErrNotFound, callID)
	}
	if e.userID != userID {
		return nil, fmt.Errorf("%w: call belongs to another user", domain.ErrForbidden)
	}
	return e, nil
}

// Get returns a snapshot of the caller's own call.
func (s *CallService) Get(callID, userID string) (CallView, error) {
	e, err := s.lookup(callID, userID)
	if err != nil {
		return CallView{}, err
	}
	return CallView{ID: e.id, Snapshot: e.ctrl.Snapshot()}, nil
}

// Disconnect hangs up the caller's call. Disconnecting a finished call is a no-op.
func (s *CallService) Disconnect(callID, userID string) (CallView, error) {
	e, err := s.lookup(callID, userID)
	if err != nil {
		return CallView{}, err
	}
	e.ctrl.Disconnect()
	return CallView{ID: e.id, Snapshot: e.ctrl.Snapshot()}, nil
}

// Reap drops calls whose terminal navigation happened more than Retention
// before now and returns how many were removed.
func (s *CallService) Reap(now time.Time) int {
	var reaped []*callEntry
	s.mu.Lock()
	for id, e := range s.calls {
		at, ok := e.navigated()
		if ok && now.Sub(at) > s.Retention {
			delete(s.calls, id)
			reaped = append(reaped, e)
		}
	}
	s.mu.Unlock()
	for _, e := range reaped {
		e.ctrl.Close()
	}
	return len(reaped)
}

// RunReaper calls Reap every interval until ctx ends.
func (s *CallService) RunReaper(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.Reap(s.clock()); n > 0 {
				slog.Debug("reaped finished calls", slog.Int("count", n))
			}
		}
	}
}

// CloseAll stops every call without dispatching terminal actions.
func (s *CallService) CloseAll() {
	s.mu.Lock()
	all := make([]*callEntry, 0, len(s.calls))
	for id, e := range s.calls {
		all = append(all, e)
		delete(s.calls, id)
	}
	s.mu.Unlock()
	for _, e := range all {
		e.ctrl.Close()
		e.account("closed", 0)
	}
}

// Len reports how many calls are tracked.
func (s *CallService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}
