package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/config"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
	obsctx "github.com/fairyhunter13/ai-mock-interviewer/internal/observability"
)

// SessionCookies writes and reads the session cookie.
type SessionCookies struct {
	Name     string
	Secure   bool
	SameSite http.SameSite
	MaxAge   time.Duration
}

func NewSessionCookies(cfg config.Config) SessionCookies {
	name := cfg.SessionCookieName
	if name == "" {
		name = "session"
	}
	return SessionCookies{Name: name, Secure: !cfg.IsDev(), SameSite: cfg.SessionSameSite(), MaxAge: cfg.SessionTTL}
}

func (c SessionCookies) Set(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
		MaxAge:   int(c.MaxAge / time.Second),
	})
}

func (c SessionCookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
		MaxAge:   -1,
	})
}

// Token returns the session token from the cookie, or from a Bearer
// Authorization header for non-browser clients.
func (c SessionCookies) Token(r *http.Request) string {
	if ck, err := r.Cookie(c.Name); err == nil && ck.Value != "" {
		return ck.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

type userKey struct{}

// UserFrom returns the user resolved by RequireUser.
func UserFrom(ctx context.Context) (domain.User, bool) {
	u, ok := ctx.Value(userKey{}).(domain.User)
	return u, ok
}

// RequireUser rejects requests without a valid session with 401.
func (s *Server) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := s.Auth.CurrentUser(r.Context(), s.Cookies.Token(r))
		if err != nil {
			if errors.Is(err, domain.ErrUnauthenticated) || errors.Is(err, domain.ErrNotFound) {
				s.Cookies.Clear(w)
				writeError(w, r, fmt.Errorf("%w: sign in required", domain.ErrUnauthenticated), nil)
				return
			}
			writeError(w, r, err, nil)
			return
		}
		ctx := context.WithValue(r.Context(), userKey{}, u)
		ctx = obsctx.ContextWithLogger(ctx, LoggerFrom(r).With(slog.String("user_id", u.ID)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
