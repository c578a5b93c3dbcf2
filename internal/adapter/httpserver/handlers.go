package httpserver

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/config"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/usecase"
)

// AuthService is the subset of usecase.AuthService the handlers use.
type AuthService interface {
	SignUp(ctx domain.Context, in usecase.SignUpInput) (domain.User, error)
	SignIn(ctx domain.Context, in usecase.SignInInput) (usecase.Session, error)
	SignOut(ctx domain.Context, token string) error
	CurrentUser(ctx domain.Context, token string) (domain.User, error)
}

type InterviewService interface {
	Generate(ctx domain.Context, in usecase.GenerateInput) (domain.Interview, error)
	Get(ctx domain.Context, id string) (domain.Interview, error)
	ListByUser(ctx domain.Context, userID string) ([]domain.Interview, error)
	ListLatest(ctx domain.Context, excludeUserID string, limit int) ([]domain.Interview, error)
}

type FeedbackService interface {
	GetByInterview(ctx domain.Context, interviewID, userID string) (domain.Feedback, error)
}

type CallService interface {
	Start(ctx domain.Context, user domain.User, in usecase.StartCallInput) (usecase.CallView, error)
	Get(callID, userID string) (usecase.CallView, error)
	Disconnect(callID, userID string) (usecase.CallView, error)
}

// Server holds the handler dependencies.
type Server struct {
	Cfg        config.Config
	Auth       AuthService
	Interviews InterviewService
	Feedback   FeedbackService
	Calls      CallService
	Cookies    SessionCookies

	DBCheck    func(context.Context) error
	RedisCheck func(context.Context) error
}

func NewServer(cfg config.Config, auth AuthService, ivs InterviewService, fb FeedbackService, calls CallService, dbCheck, redisCheck func(context.Context) error) *Server {
	return &Server{
		Cfg:        cfg,
		Auth:       auth,
		Interviews: ivs,
		Feedback:   fb,
		Calls:      calls,
		Cookies:    NewSessionCookies(cfg),
		DBCheck:    dbCheck,
		RedisCheck: redisCheck,
	}
}

type userDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type interviewDTO struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Role       string    `json:"role"`
	Level      string    `json:"level"`
	Type       string    `json:"type"`
	TechStack  []string  `json:"techstack"`
	Questions  []string  `json:"questions"`
	CoverImage string    `json:"coverImage"`
	Finalized  bool      `json:"finalized"`
	CreatedAt  time.Time `json:"createdAt"`
}

type feedbackDTO struct {
	ID                  string                 `json:"id"`
	InterviewID         string                 `json:"interviewId"`
	TotalScore          int                    `json:"totalScore"`
	CategoryScores      []domain.CategoryScore `json:"categoryScores"`
	Strengths           []string               `json:"strengths"`
	AreasForImprovement []string               `json:"areasForImprovement"`
	FinalAssessment     string                 `json:"finalAssessment"`
	CreatedAt           time.Time              `json:"createdAt"`
}

func toUserDTO(u domain.User) userDTO { return userDTO{ID: u.ID, Name: u.Name, Email: u.Email} }

func toInterviewDTO(iv domain.Interview) interviewDTO {
	return interviewDTO{
		ID: iv.ID, UserID: iv.UserID, Role: iv.Role, Level: iv.Level, Type: iv.Type,
		TechStack: iv.TechStack, Questions: iv.Questions, CoverImage: iv.CoverImage,
		Finalized: iv.Finalized, CreatedAt: iv.CreatedAt,
	}
}

func toInterviewDTOs(ivs []domain.Interview) []interviewDTO {
	out := make([]interviewDTO, 0, len(ivs))
	for _, iv := range ivs {
		out = append(out, toInterviewDTO(iv))
	}
	return out
}

func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	u, ok := UserFrom(r.Context())
	if !ok {
		writeError(w, r, fmt.Errorf("%w: sign in required", domain.ErrUnauthenticated), nil)
	}
	return u, ok
}

// SignUpHandler creates an account.
func (s *Server) SignUpHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in usecase.SignUpInput
		if !decodeJSON(w, r, &in) {
			return
		}
		u, err := s.Auth.SignUp(r.Context(), in)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "message": "Account created successfully. Please sign in.", "user": toUserDTO(u)})
	}
}

// SignInHandler issues the session cookie.
func (s *Server) SignInHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in usecase.SignInInput
		if !decodeJSON(w, r, &in) {
			return
		}
		sess, err := s.Auth.SignIn(r.Context(), in)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		s.Cookies.Set(w, sess.Token)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "expiresAt": sess.ExpiresAt})
	}
}

// SignOutHandler revokes the session and clears the cookie.
func (s *Server) SignOutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Auth.SignOut(r.Context(), s.Cookies.Token(r)); err != nil {
			writeError(w, r, err, nil)
			return
		}
		s.Cookies.Clear(w)
		w.WriteHeader(http.StatusNoContent)
	}
}

// MeHandler returns the signed-in user.
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := s.currentUser(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, toUserDTO(u))
	}
}

// GenerateHandler is the webhook the generate workflow posts collected role details to.
func (s *Server) GenerateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if secret := s.Cfg.VoiceWebhookSecret; secret != "" {
			got := r.Header.Get("X-Webhook-Secret")
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				writeError(w, r, fmt.Errorf("%w: bad webhook secret", domain.ErrUnauthenticated), nil)
				return
			}
		}
		var in usecase.GenerateInput
		if !decodeJSON(w, r, &in) {
			return
		}
		iv, err := s.Interviews.Generate(r.Context(), in)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "interview": toInterviewDTO(iv)})
	}
}

func (s *Server) ListInterviewsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := s.currentUser(w, r)
		if !ok {
			return
		}
		ivs, err := s.Interviews.ListByUser(r.Context(), u.ID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"interviews": toInterviewDTOs(ivs)})
	}
}

// LatestInterviewsHandler lists finalized interviews by other users.
func (s *Server) LatestInterviewsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := s.currentUser(w, r)
		if !ok {
			return
		}
		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > 100 {
				writeError(w, r, fmt.Errorf("%w: limit must be 1..100", domain.ErrInvalidArgument), map[string]string{"limit": v})
				return
			}
			limit = n
		}
		ivs, err := s.Interviews.ListLatest(r.Context(), u.ID, limit)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"interviews": toInterviewDTOs(ivs)})
	}
}

func (s *Server) GetInterviewHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		iv, err := s.Interviews.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toInterviewDTO(iv))
	}
}

// FeedbackHandler returns the caller's latest feedback for an interview.
func (s *Server) FeedbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := s.currentUser(w, r)
		if !ok {
			return
		}
		f, err := s.Feedback.GetByInterview(r.Context(), chi.URLParam(r, "id"), u.ID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, feedbackDTO{
			ID: f.ID, InterviewID: f.InterviewID, TotalScore: f.TotalScore, CategoryScores: f.CategoryScores,
			Strengths: f.Strengths, AreasForImprovement: f.AreasForImprovement,
			FinalAssessment: f.FinalAssessment, CreatedAt: f.CreatedAt,
		})
	}
}

// StartCallHandler starts a voice call for the signed-in user.
func (s *Server) StartCallHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := s.currentUser(w, r)
		if !ok {
			return
		}
		var in usecase.StartCallInput
		if !decodeJSON(w, r, &in) {
			return
		}
		v, err := s.Calls.Start(r.Context(), u, in)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.Header().Set("Location", "/v1/calls/"+v.ID)
		writeJSON(w, http.StatusAccepted, v)
	}
}

func (s *Server) GetCallHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := s.currentUser(w, r)
		if !ok {
			return
		}
		v, err := s.Calls.Get(chi.URLParam(r, "id"), u.ID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func (s *Server) DisconnectCallHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := s.currentUser(w, r)
		if !ok {
			return
		}
		v, err := s.Calls.Disconnect(chi.URLParam(r, "id"), u.ID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// ReadyzHandler checks the database and Redis.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		targets := []struct {
			name string
			fn   func(context.Context) error
		}{{"db", s.DBCheck}, {"redis", s.RedisCheck}}
		checks := make([]check, 0, len(targets))
		st := http.StatusOK
		for _, p := range targets {
			if p.fn == nil {
				continue
			}
			c := check{Name: p.name, OK: true}
			if err := p.fn(ctx); err != nil {
				c.OK, c.Details = false, err.Error()
				st = http.StatusServiceUnavailable
			}
			checks = append(checks, c)
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
