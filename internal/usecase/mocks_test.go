package usecase

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/call"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
)

type userRepoMock struct{ mock.Mock }

func (m *userRepoMock) Create(ctx domain.Context, u domain.User) (string, error) {
	args := m.Called(ctx, u)
	return args.String(0), args.Error(1)
}

func (m *userRepoMock) GetByID(ctx domain.Context, id string) (domain.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.User), args.Error(1)
}

func (m *userRepoMock) GetByEmail(ctx domain.Context, email string) (domain.User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(domain.User), args.Error(1)
}

type identityMock struct{ mock.Mock }

func (m *identityMock) HashPassword(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *identityMock) VerifyPassword(password, encodedHash string) bool {
	return m.Called(password, encodedHash).Bool(0)
}

func (m *identityMock) IssueSession(ctx domain.Context, userID string) (string, domain.SessionClaims, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Get(1).(domain.SessionClaims), args.Error(2)
}

func (m *identityMock) VerifySession(ctx domain.Context, token string) (domain.SessionClaims, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(domain.SessionClaims), args.Error(1)
}

func (m *identityMock) RevokeSession(ctx domain.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

type interviewRepoMock struct{ mock.Mock }

func (m *interviewRepoMock) Create(ctx domain.Context, iv domain.Interview) (string, error) {
	args := m.Called(ctx, iv)
	return args.String(0), args.Error(1)
}

func (m *interviewRepoMock) Get(ctx domain.Context, id string) (domain.Interview, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Interview), args.Error(1)
}

func (m *interviewRepoMock) ListByUser(ctx domain.Context, userID string) ([]domain.Interview, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.Interview), args.Error(1)
}

func (m *interviewRepoMock) ListLatest(ctx domain.Context, excludeUserID string, limit int) ([]domain.Interview, error) {
	args := m.Called(ctx, excludeUserID, limit)
	return args.Get(0).([]domain.Interview), args.Error(1)
}

type feedbackRepoMock struct{ mock.Mock }

func (m *feedbackRepoMock) Upsert(ctx domain.Context, f domain.Feedback) (string, error) {
	args := m.Called(ctx, f)
	return args.String(0), args.Error(1)
}

func (m *feedbackRepoMock) GetByInterview(ctx domain.Context, interviewID, userID string) (domain.Feedback, error) {
	args := m.Called(ctx, interviewID, userID)
	return args.Get(0).(domain.Feedback), args.Error(1)
}

type aiMock struct{ mock.Mock }

func (m *aiMock) ChatJSON(ctx domain.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	args := m.Called(ctx, systemPrompt, userPrompt, maxTokens)
	return args.String(0), args.Error(1)
}

type feedbackGenMock struct{ mock.Mock }

func (m *feedbackGenMock) CreateFeedback(ctx context.Context, req domain.FeedbackRequest) (domain.FeedbackResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.FeedbackResult), args.Error(1)
}

// stubTransport is an in-memory call.Transport driven by the test.
type stubTransport struct {
	mu        sync.Mutex
	listeners map[int]call.Listener
	next      int
	startErr  error
	target    string
	params    map[string]any
	stops     int
}

func newStubTransport() *stubTransport { return &stubTransport{listeners: map[int]call.Listener{}} }

func (t *stubTransport) Start(_ context.Context, target string, params map[string]any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.target, t.params = target, params
	return t.startErr
}

func (t *stubTransport) Stop() error {
	t.mu.Lock()
	t.stops++
	t.mu.Unlock()
	return nil
}

func (t *stubTransport) Subscribe(l call.Listener) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.next
	t.next++
	t.listeners[id] = l
	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}

func (t *stubTransport) each(fn func(call.Listener)) {
	t.mu.Lock()
	ls := make([]call.Listener, 0, len(t.listeners))
	for _, l := range t.listeners {
		ls = append(ls, l)
	}
	t.mu.Unlock()
	for _, l := range ls {
		fn(l)
	}
}
