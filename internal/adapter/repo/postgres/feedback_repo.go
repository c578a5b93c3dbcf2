package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
)

// FeedbackRepo persists interview feedback.
type FeedbackRepo struct{ Pool PgxPool }

func NewFeedbackRepo(p PgxPool) *FeedbackRepo { return &FeedbackRepo{Pool: p} }

// Upsert writes f under its id, creating a new id when f.ID is empty, and
// returns the stored id.
func (r *FeedbackRepo) Upsert(ctx domain.Context, f domain.Feedback) (string, error) {
	ctx, span := startSpan(ctx, "repo.feedback", "feedback.Upsert", "UPSERT", "feedback")
	defer span.End()
	id := f.ID
	if id == "" {
		id = uuid.NewString()
	}
	scores, err := json.Marshal(f.CategoryScores)
	if err != nil {
		return "", fmt.Errorf("op=feedback.upsert: %w", err)
	}
	created := f.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	q := `INSERT INTO feedback (id, interview_id, user_id, total_score, category_scores, strengths, areas_for_improvement, final_assessment, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
  total_score = EXCLUDED.total_score,
  category_scores = EXCLUDED.category_scores,
  strengths = EXCLUDED.strengths,
  areas_for_improvement = EXCLUDED.areas_for_improvement,
  final_assessment = EXCLUDED.final_assessment,
  created_at = EXCLUDED.created_at
WHERE feedback.interview_id = EXCLUDED.interview_id AND feedback.user_id = EXCLUDED.user_id`
	tag, err := r.Pool.Exec(ctx, q, id, f.InterviewID, f.UserID, f.TotalScore, scores,
		nonNil(f.Strengths), nonNil(f.AreasForImprovement), f.FinalAssessment, created)
	if err != nil {
		return "", wrap("feedback.upsert", err)
	}
	if tag.RowsAffected() == 0 {
		// id exists but belongs to another interview or user
		return "", fmt.Errorf("op=feedback.upsert: %w", domain.ErrForbidden)
	}
	return id, nil
}

// GetByInterview returns the newest feedback the user received for an interview.
func (r *FeedbackRepo) GetByInterview(ctx domain.Context, interviewID, userID string) (domain.Feedback, error) {
	ctx, span := startSpan(ctx, "repo.feedback", "feedback.GetByInterview", "SELECT", "feedback")
	defer span.End()
	q := `SELECT id, interview_id, user_id, total_score, category_scores, strengths, areas_for_improvement, final_assessment, created_at
FROM feedback WHERE interview_id=$1 AND user_id=$2 ORDER BY created_at DESC LIMIT 1`
	var (
		f      domain.Feedback
		scores []byte
	)
	err := r.Pool.QueryRow(ctx, q, interviewID, userID).Scan(&f.ID, &f.InterviewID, &f.UserID, &f.TotalScore,
		&scores, &f.Strengths, &f.AreasForImprovement, &f.FinalAssessment, &f.CreatedAt)
	if err != nil {
		return domain.Feedback{}, wrap("feedback.get_by_interview", err)
	}
	if len(scores) > 0 {
		if err := json.Unmarshal(scores, &f.CategoryScores); err != nil {
			return domain.Feedback{}, fmt.Errorf("op=feedback.get_by_interview: %w: %v", domain.ErrSchemaInvalid, err)
		}
	}
	return f, nil
}
