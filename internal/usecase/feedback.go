package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/ai/tokencount"
	obs "github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/observability"
	"github.com/fairyhunter13/ai-mock-interviewer/pkg/textx"
)

// FeedbackCategories are the fixed scoring dimensions, in order.
var FeedbackCategories = []string{
	"Communication Skills",
	"Technical Knowledge",
	"Problem Solving",
	"Cultural Fit",
	"Confidence and Clarity",
}

const feedbackSystemPrompt = `You are a professional interviewer analyzing a mock interview. Your task is to evaluate the candidate based on structured categories.
Be thorough and detailed in your analysis. Don't be lenient with the candidate. If there are mistakes or areas for improvement, point them out.
Score the candidate from 0 to 100 in each of these categories, in this order, using exactly these names:
- Communication Skills: clarity, articulation, structured responses.
- Technical Knowledge: understanding of key concepts for the role.
- Problem Solving: ability to analyze problems and propose solutions.
- Cultural Fit: alignment with company values and job role.
- Confidence and Clarity: confidence in responses, engagement, and clarity.
Respond with only a JSON object:
{"totalScore": int, "categoryScores": [{"name": string, "score": int, "comment": string}], "strengths": [string], "areasForImprovement": [string], "finalAssessment": string}`

// Trimmer bounds a list of transcript lines to a token budget.
type Trimmer interface {
	TrimLines(lines []string, maxTokens int) ([]string, bool)
}

type feedbackPayload struct {
	TotalScore          int                    `json:"totalScore" validate:"gte=0,lte=100"`
	CategoryScores      []domain.CategoryScore `json:"categoryScores" validate:"len=5,dive"`
	Strengths           []string               `json:"strengths"`
	AreasForImprovement []string               `json:"areasForImprovement"`
	FinalAssessment     string                 `json:"finalAssessment" validate:"required"`
}

// FeedbackService turns a finished interview transcript into stored feedback.
type FeedbackService struct {
	Feedback          domain.FeedbackRepository
	AI                domain.AIClient
	Tokens            Trimmer
	MaxPromptTokens   int
	MaxResponseTokens int
}

func NewFeedbackService(r domain.FeedbackRepository, ai domain.AIClient, tokens Trimmer, maxPromptTokens int) FeedbackService {
	return FeedbackService{Feedback: r, AI: ai, Tokens: tokens, MaxPromptTokens: maxPromptTokens, MaxResponseTokens: 1500}
}

// CreateFeedback implements call.FeedbackGenerator. On any failure it
// returns Success=false together with the cause.
func (s FeedbackService) CreateFeedback(ctx domain.Context, req domain.FeedbackRequest) (domain.FeedbackResult, error) {
	lg := observability.Logger(ctx).With(slog.String("interview_id", req.InterviewID))
	fb, err := s.generate(ctx, req)
	if err != nil {
		obs.FeedbackGenerated("error", 0)
		lg.Error("feedback generation failed", slog.Any("error", err))
		return domain.FeedbackResult{Success: false}, err
	}
	id, err := s.Feedback.Upsert(ctx, fb)
	if err != nil {
		obs.FeedbackGenerated("error", 0)
		lg.Error("feedback save failed", slog.Any("error", err))
		return domain.FeedbackResult{Success: false}, err
	}
	obs.FeedbackGenerated("ok", fb.TotalScore)
	lg.Info("feedback stored", slog.String("feedback_id", id), slog.Int("total_score", fb.TotalScore))
	return domain.FeedbackResult{Success: true, FeedbackID: id}, nil
}

func (s FeedbackService) generate(ctx domain.Context, req domain.FeedbackRequest) (domain.Feedback, error) {
	if req.InterviewID == "" || req.UserID == "" {
		return domain.Feedback{}, fmt.Errorf("%w: interview and user ids required", domain.ErrInvalidArgument)
	}
	if s.AI == nil {
		return domain.Feedback{}, fmt.Errorf("%w: ai client not configured", domain.ErrInternal)
	}
	lines := FormatTranscript(req.Transcript)
	if len(lines) == 0 {
		return domain.Feedback{}, fmt.Errorf("%w: empty transcript", domain.ErrInvalidArgument)
	}
	if s.Tokens != nil {
		var trimmed bool
		if lines, trimmed = s.Tokens.TrimLines(lines, s.MaxPromptTokens); trimmed {
			lines = append(lines, tokencount.TruncationMarker)
		}
	}
	user := "Transcript:\n" + strings.Join(lines, "\n")

	raw, err := s.AI.ChatJSON(ctx, feedbackSystemPrompt, user, s.MaxResponseTokens)
	if err != nil {
		return domain.Feedback{}, fmt.Errorf("op=feedback.generate: %w", err)
	}
	p, err := parseFeedback(raw)
	if err != nil {
		return domain.Feedback{}, fmt.Errorf("op=feedback.generate: %w", err)
	}
	return domain.Feedback{
		ID:                  req.FeedbackID,
		InterviewID:         req.InterviewID,
		UserID:              req.UserID,
		TotalScore:          p.TotalScore,
		CategoryScores:      p.CategoryScores,
		Strengths:           p.Strengths,
		AreasForImprovement: p.AreasForImprovement,
		FinalAssessment:     p.FinalAssessment,
		CreatedAt:           time.Now().UTC(),
	}, nil
}

// FormatTranscript renders entries as "- role: content" lines, skipping blanks.
func FormatTranscript(entries []domain.TranscriptEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		content := strings.TrimSpace(e.Content)
		if content == "" {
			continue
		}
		out = append(out, fmt.Sprintf("- %s: %s", e.Role, content))
	}
	return out
}

func parseFeedback(raw string) (feedbackPayload, error) {
	js, err := textx.ExtractJSON(raw)
	if err != nil {
		return feedbackPayload{}, fmt.Errorf("%w: %v", domain.ErrSchemaInvalid, err)
	}
	var p feedbackPayload
	if err := json.Unmarshal([]byte(js), &p); err != nil {
		return feedbackPayload{}, fmt.Errorf("%w: %v", domain.ErrSchemaInvalid, err)
	}
	if err := Validator().Struct(p); err != nil {
		return feedbackPayload{}, fmt.Errorf("%w: %v", domain.ErrSchemaInvalid, err)
	}
	if p.Strengths == nil {
		p.Strengths = []string{}
	}
	if p.AreasForImprovement == nil {
		p.AreasForImprovement = []string{}
	}
	return p, nil
}

// GetByInterview returns the caller's feedback for an interview.
func (s FeedbackService) GetByInterview(ctx domain.Context, interviewID, userID string) (domain.Feedback, error) {
	if interviewID == "" || userID == "" {
		return domain.Feedback{}, fmt.Errorf("%w: interview and user ids required", domain.ErrInvalidArgument)
	}
	f, err := s.Feedback.GetByInterview(ctx, interviewID, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		observability.Logger(ctx).Error("feedback lookup failed", slog.Any("error", err))
	}
	return f, err
}
