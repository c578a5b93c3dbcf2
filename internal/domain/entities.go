package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrForbidden         = errors.New("forbidden")
	ErrRateLimited       = errors.New("rate limited")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrSchemaInvalid     = errors.New("schema invalid")
	ErrInternal          = errors.New("internal error")
)

// InterviewMode selects what a voice call is for.
type InterviewMode string

const (
	// ModeGenerate runs the workflow that collects role details and generates an interview.
	ModeGenerate InterviewMode = "generate"
	// ModeInterview runs a mock interview over a previously generated question set.
	ModeInterview InterviewMode = "interview"
)

// Valid reports whether m is one of the known modes.
func (m InterviewMode) Valid() bool { return m == ModeGenerate || m == ModeInterview }

// User is the stored user document.
// Invariants: Email is lower-cased and unique; PasswordHash is never exposed.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Interview is a generated question set for a role.
type Interview struct {
	ID         string
	UserID     string
	Role       string
	Level      string
	Type       string
	TechStack  []string
	Questions  []string
	CoverImage string
	Finalized  bool
	CreatedAt  time.Time
}

// TranscriptEntry is a single finalized utterance.
type TranscriptEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CategoryScore is one scored dimension of a feedback.
type CategoryScore struct {
	Name    string `json:"name" validate:"required"`
	Score   int    `json:"score" validate:"gte=0,lte=100"`
	Comment string `json:"comment" validate:"required"`
}

// Feedback is the AI assessment of one interview attempt.
type Feedback struct {
	ID                  string
	InterviewID         string
	UserID              string
	TotalScore          int
	CategoryScores      []CategoryScore
	Strengths           []string
	AreasForImprovement []string
	FinalAssessment     string
	CreatedAt           time.Time
}

// FeedbackRequest is what the call controller submits once an interview call ends.
type FeedbackRequest struct {
	InterviewID string
	UserID      string
	Transcript  []TranscriptEntry
	// FeedbackID, when set, overwrites an existing feedback instead of creating one.
	FeedbackID string
}

// FeedbackResult mirrors the generator contract: Success plus the stored id.
type FeedbackResult struct {
	Success    bool
	FeedbackID string
}

// SessionClaims are the verified contents of a session token.
type SessionClaims struct {
	SessionID string
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Repositories (ports)

type UserRepository interface {
	Create(ctx Context, u User) (string, error)
	GetByID(ctx Context, id string) (User, error)
	GetByEmail(ctx Context, email string) (User, error)
}

type InterviewRepository interface {
	Create(ctx Context, iv Interview) (string, error)
	Get(ctx Context, id string) (Interview, error)
	ListByUser(ctx Context, userID string) ([]Interview, error)
	ListLatest(ctx Context, excludeUserID string, limit int) ([]Interview, error)
}

type FeedbackRepository interface {
	Upsert(ctx Context, f Feedback) (string, error)
	GetByInterview(ctx Context, interviewID, userID string) (Feedback, error)
}

// AIClient (port)

type AIClient interface {
	// ChatJSON returns the model's message content, which the caller expects to be JSON.
	ChatJSON(ctx Context, systemPrompt, userPrompt string, maxTokens int) (string, error)
}

// IdentityProvider (port) owns credentials and session tokens.
type IdentityProvider interface {
	HashPassword(password string) (string, error)
	VerifyPassword(password, encodedHash string) bool
	IssueSession(ctx Context, userID string) (token string, claims SessionClaims, err error)
	VerifySession(ctx Context, token string) (SessionClaims, error)
	RevokeSession(ctx Context, token string) error
}

// Context is an alias so ports read the same in every layer.
type Context = context.Context
