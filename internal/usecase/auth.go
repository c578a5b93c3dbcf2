// Package usecase contains application business logic services.
package usecase

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
)

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

// Validator returns the shared validator instance.
func Validator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// SignUpInput is the account creation request.
type SignUpInput struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// SignInInput is the credential check request.
type SignInInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Session is an issued session token and when it stops being valid.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// AuthService implements sign-up, sign-in and session resolution.
type AuthService struct {
	Users    domain.UserRepository
	Identity domain.IdentityProvider
}

func NewAuthService(users domain.UserRepository, id domain.IdentityProvider) AuthService {
	return AuthService{Users: users, Identity: id}
}

// SignUp stores a new user. An existing email yields ErrConflict.
func (s AuthService) SignUp(ctx domain.Context, in SignUpInput) (domain.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	if err := Validator().Struct(in); err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	if _, err := s.Users.GetByEmail(ctx, in.Email); err == nil {
		return domain.User{}, fmt.Errorf("%w: user already exists, please sign in", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, err
	}
	hash, err := s.Identity.HashPassword(in.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("op=auth.SignUp: %w", err)
	}
	u := domain.User{Name: in.Name, Email: in.Email, PasswordHash: hash, CreatedAt: time.Now().UTC()}
	id, err := s.Users.Create(ctx, u)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return domain.User{}, fmt.Errorf("%w: user already exists, please sign in", domain.ErrConflict)
		}
		return domain.User{}, err
	}
	u.ID = id
	u.PasswordHash = ""
	return u, nil
}

// SignIn checks credentials and issues a session.
func (s AuthService) SignIn(ctx domain.Context, in SignInInput) (Session, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := Validator().Struct(in); err != nil {
		return Session{}, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	u, err := s.Users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Session{}, fmt.Errorf("%w: user does not exist, create an account", domain.ErrNotFound)
		}
		return Session{}, err
	}
	if !s.Identity.VerifyPassword(in.Password, u.PasswordHash) {
		return Session{}, fmt.Errorf("%w: invalid credentials", domain.ErrUnauthenticated)
	}
	token, claims, err := s.Identity.IssueSession(ctx, u.ID)
	if err != nil {
		return Session{}, fmt.Errorf("op=auth.SignIn: %w", err)
	}
	return Session{Token: token, ExpiresAt: claims.ExpiresAt}, nil
}

// SignOut revokes the session carried by token.
func (s AuthService) SignOut(ctx domain.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.Identity.RevokeSession(ctx, token)
}

// CurrentUser resolves the user behind a session token. The password hash is
// never returned.
func (s AuthService) CurrentUser(ctx domain.Context, token string) (domain.User, error) {
	if token == "" {
		return domain.User{}, fmt.Errorf("%w: no session", domain.ErrUnauthenticated)
	}
	claims, err := s.Identity.VerifySession(ctx, token)
	if err != nil {
		return domain.User{}, err
	}
	u, err := s.Users.GetByID(ctx, claims.UserID)
	if err != nil {
		return domain.User{}, err
	}
	u.PasswordHash = ""
	return u, nil
}

func (s AuthService) IsAuthenticated(ctx domain.Context, token string) bool {
	_, err := s.CurrentUser(ctx, token)
	return err == nil
}
