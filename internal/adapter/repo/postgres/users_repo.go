package postgres

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
)

// UserRepo persists user documents.
type UserRepo struct{ Pool PgxPool }

func NewUserRepo(p PgxPool) *UserRepo { return &UserRepo{Pool: p} }

// Create stores u and returns its id (generates one if empty). A duplicate
// email yields ErrConflict.
func (r *UserRepo) Create(ctx domain.Context, u domain.User) (string, error) {
	ctx, span := startSpan(ctx, "repo.users", "users.Create", "INSERT", "users")
	defer span.End()
	id := u.ID
	if id == "" {
		id = uuid.NewString()
	}
	q := `INSERT INTO users (id, name, email, password_hash, created_at) VALUES ($1,$2,$3,$4,$5)`
	if _, err := r.Pool.Exec(ctx, q, id, u.Name, strings.ToLower(u.Email), u.PasswordHash, time.Now().UTC()); err != nil {
		return "", wrap("user.create", err)
	}
	return id, nil
}

func (r *UserRepo) GetByID(ctx domain.Context, id string) (domain.User, error) {
	ctx, span := startSpan(ctx, "repo.users", "users.GetByID", "SELECT", "users")
	defer span.End()
	q := `SELECT id, name, email, password_hash, created_at FROM users WHERE id=$1`
	var u domain.User
	if err := r.Pool.QueryRow(ctx, q, id).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		return domain.User{}, wrap("user.get", err)
	}
	return u, nil
}

// GetByEmail looks a user up case-insensitively.
func (r *UserRepo) GetByEmail(ctx domain.Context, email string) (domain.User, error) {
	ctx, span := startSpan(ctx, "repo.users", "users.GetByEmail", "SELECT", "users")
	defer span.End()
	q := `SELECT id, name, email, password_hash, created_at FROM users WHERE email=$1`
	var u domain.User
	if err := r.Pool.QueryRow(ctx, q, strings.ToLower(email)).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		return domain.User{}, wrap("user.get_by_email", err)
	}
	return u, nil
}
