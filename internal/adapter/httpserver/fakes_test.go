package httpserver_test

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	httpserver "github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/config"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/usecase"
)

type fakeAuth struct {
	signUp    func(usecase.SignUpInput) (domain.User, error)
	signIn    func(usecase.SignInInput) (usecase.Session, error)
	signedOut []string
	users     map[string]domain.User
}

func (f *fakeAuth) SignUp(_ domain.Context, in usecase.SignUpInput) (domain.User, error) {
	return f.signUp(in)
}

func (f *fakeAuth) SignIn(_ domain.Context, in usecase.SignInInput) (usecase.Session, error) {
	return f.signIn(in)
}

func (f *fakeAuth) SignOut(_ domain.Context, token string) error {
	f.signedOut = append(f.signedOut, token)
	return nil
}

func (f *fakeAuth) CurrentUser(_ domain.Context, token string) (domain.User, error) {
	if token == "" {
		return domain.User{}, domain.ErrUnauthenticated
	}
	u, ok := f.users[token]
	if !ok {
		return domain.User{}, domain.ErrUnauthenticated
	}
	return u, nil
}

type fakeInterviews struct {
	generated []usecase.GenerateInput
	byID      map[string]domain.Interview
	latest    []domain.Interview
	limit     int
}

func (f *fakeInterviews) Generate(_ domain.Context, in usecase.GenerateInput) (domain.Interview, error) {
	f.generated = append(f.generated, in)
	return domain.Interview{ID: "iv-new", UserID: in.UserID, Role: in.Role, Finalized: true}, nil
}

func (f *fakeInterviews) Get(_ domain.Context, id string) (domain.Interview, error) {
	iv, ok := f.byID[id]
	if !ok {
		return domain.Interview{}, domain.ErrNotFound
	}
	return iv, nil
}

func (f *fakeInterviews) ListByUser(_ domain.Context, userID string) ([]domain.Interview, error) {
	var out []domain.Interview
	for _, iv := range f.byID {
		if iv.UserID == userID {
			out = append(out, iv)
		}
	}
	return out, nil
}

func (f *fakeInterviews) ListLatest(_ domain.Context, _ string, limit int) ([]domain.Interview, error) {
	f.limit = limit
	return f.latest, nil
}

type fakeFeedback struct {
	fb domain.Feedback
}

func (f *fakeFeedback) GetByInterview(_ domain.Context, interviewID, userID string) (domain.Feedback, error) {
	if f.fb.InterviewID != interviewID || f.fb.UserID != userID {
		return domain.Feedback{}, domain.ErrNotFound
	}
	return f.fb, nil
}

type fakeCalls struct {
	started []usecase.StartCallInput
	views   map[string]usecase.CallView
	owners  map[string]string
	startFn func(usecase.StartCallInput) (usecase.CallView, error)
}

func (f *fakeCalls) Start(_ domain.Context, _ domain.User, in usecase.StartCallInput) (usecase.CallView, error) {
	f.started = append(f.started, in)
	return f.startFn(in)
}

func (f *fakeCalls) lookup(callID, userID string) (usecase.CallView, error) {
	v, ok := f.views[callID]
	if !ok {
		return usecase.CallView{}, domain.ErrNotFound
	}
	if f.owners[callID] != userID {
		return usecase.CallView{}, domain.ErrForbidden
	}
	return v, nil
}

func (f *fakeCalls) Get(callID, userID string) (usecase.CallView, error) { return f.lookup(callID, userID) }

func (f *fakeCalls) Disconnect(callID, userID string) (usecase.CallView, error) {
	return f.lookup(callID, userID)
}

type fixture struct {
	srv   *httpserver.Server
	auth  *fakeAuth
	ivs   *fakeInterviews
	fb    *fakeFeedback
	calls *fakeCalls
}

var alice = domain.User{ID: "u1", Name: "Alice", Email: "alice@example.com", PasswordHash: "secret-hash"}

func newFixture(cfg config.Config) *fixture {
	f := &fixture{
		auth:  &fakeAuth{users: map[string]domain.User{"tok-alice": alice}},
		ivs:   &fakeInterviews{byID: map[string]domain.Interview{}},
		fb:    &fakeFeedback{},
		calls: &fakeCalls{views: map[string]usecase.CallView{}, owners: map[string]string{}},
	}
	f.srv = httpserver.NewServer(cfg, f.auth, f.ivs, f.fb, f.calls, nil, nil)
	return f
}

// router mounts the handlers the way the app does, minus rate limits.
func (f *fixture) router() http.Handler {
	s := f.srv
	r := chi.NewRouter()
	r.Post("/v1/auth/sign-up", s.SignUpHandler())
	r.Post("/v1/auth/sign-in", s.SignInHandler())
	r.Post("/v1/auth/sign-out", s.SignOutHandler())
	r.Post("/v1/vapi/generate", s.GenerateHandler())
	r.Group(func(r chi.Router) {
		r.Use(s.RequireUser)
		r.Get("/v1/me", s.MeHandler())
		r.Get("/v1/interviews", s.ListInterviewsHandler())
		r.Get("/v1/interviews/latest", s.LatestInterviewsHandler())
		r.Get("/v1/interviews/{id}", s.GetInterviewHandler())
		r.Get("/v1/interviews/{id}/feedback", s.FeedbackHandler())
		r.Post("/v1/calls", s.StartCallHandler())
		r.Get("/v1/calls/{id}", s.GetCallHandler())
		r.Post("/v1/calls/{id}/disconnect", s.DisconnectCallHandler())
	})
	r.Get("/readyz", s.ReadyzHandler())
	return r
}

func jsonBody(s string) *strings.Reader { return strings.NewReader(s) }

func noCheck(context.Context) error { return nil }
