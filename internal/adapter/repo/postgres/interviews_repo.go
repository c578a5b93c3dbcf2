package postgres

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
)

const interviewColumns = `id, user_id, role, level, type, techstack, questions, cover_image, finalized, created_at`

// InterviewRepo persists generated interviews.
type InterviewRepo struct{ Pool PgxPool }

func NewInterviewRepo(p PgxPool) *InterviewRepo { return &InterviewRepo{Pool: p} }

func (r *InterviewRepo) Create(ctx domain.Context, iv domain.Interview) (string, error) {
	ctx, span := startSpan(ctx, "repo.interviews", "interviews.Create", "INSERT", "interviews")
	defer span.End()
	id := iv.ID
	if id == "" {
		id = uuid.NewString()
	}
	created := iv.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	q := `INSERT INTO interviews (` + interviewColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err := r.Pool.Exec(ctx, q, id, iv.UserID, iv.Role, iv.Level, iv.Type,
		nonNil(iv.TechStack), nonNil(iv.Questions), iv.CoverImage, iv.Finalized, created)
	if err != nil {
		return "", wrap("interview.create", err)
	}
	return id, nil
}

func (r *InterviewRepo) Get(ctx domain.Context, id string) (domain.Interview, error) {
	ctx, span := startSpan(ctx, "repo.interviews", "interviews.Get", "SELECT", "interviews")
	defer span.End()
	iv, err := scanInterview(r.Pool.QueryRow(ctx, `SELECT `+interviewColumns+` FROM interviews WHERE id=$1`, id))
	if err != nil {
		return domain.Interview{}, wrap("interview.get", err)
	}
	return iv, nil
}

// ListByUser returns the user's interviews, newest first.
func (r *InterviewRepo) ListByUser(ctx domain.Context, userID string) ([]domain.Interview, error) {
	ctx, span := startSpan(ctx, "repo.interviews", "interviews.ListByUser", "SELECT", "interviews")
	defer span.End()
	rows, err := r.Pool.Query(ctx, `SELECT `+interviewColumns+` FROM interviews WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, wrap("interview.list_by_user", err)
	}
	return collectInterviews("interview.list_by_user", rows)
}

// ListLatest returns finalized interviews by other users, newest first.
func (r *InterviewRepo) ListLatest(ctx domain.Context, excludeUserID string, limit int) ([]domain.Interview, error) {
	ctx, span := startSpan(ctx, "repo.interviews", "interviews.ListLatest", "SELECT", "interviews")
	defer span.End()
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT ` + interviewColumns + ` FROM interviews WHERE finalized = true AND user_id <> $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.Pool.Query(ctx, q, excludeUserID, limit)
	if err != nil {
		return nil, wrap("interview.list_latest", err)
	}
	return collectInterviews("interview.list_latest", rows)
}

func scanInterview(row pgx.Row) (domain.Interview, error) {
	var iv domain.Interview
	err := row.Scan(&iv.ID, &iv.UserID, &iv.Role, &iv.Level, &iv.Type,
		&iv.TechStack, &iv.Questions, &iv.CoverImage, &iv.Finalized, &iv.CreatedAt)
	return iv, err
}

func collectInterviews(op string, rows pgx.Rows) ([]domain.Interview, error) {
	defer rows.Close()
	out := []domain.Interview{}
	for rows.Next() {
		iv, err := scanInterview(rows)
		if err != nil {
			return nil, wrap(op, err)
		}
		out = append(out, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(op, err)
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
