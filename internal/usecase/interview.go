package usecase

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/observability"
	"github.com/fairyhunter13/ai-mock-interviewer/pkg/textx"
)

// CoverImages are the interview card covers, picked deterministically per interview.
var CoverImages = []string{
	"/covers/adobe.png",
	"/covers/amazon.png",
	"/covers/facebook.png",
	"/covers/hostinger.png",
	"/covers/pinterest.png",
	"/covers/quora.png",
	"/covers/reddit.png",
	"/covers/skype.png",
	"/covers/spotify.png",
	"/covers/telegram.png",
	"/covers/tiktok.png",
	"/covers/yahoo.png",
}

const generateSystemPrompt = `You prepare questions for a job interview that will be read aloud by a voice assistant.
Return only a JSON object of the form {"questions": ["..."]}, one question per element.
Do not use "/" or "*" or any other characters that may break the voice assistant.`

// GenerateInput is what the generate-mode voice workflow posts back.
type GenerateInput struct {
	Role      string `json:"role" validate:"required,max=200"`
	Level     string `json:"level" validate:"required,max=100"`
	TechStack string `json:"techstack" validate:"max=500"`
	Type      string `json:"type" validate:"required,max=100"`
	Amount    int    `json:"amount" validate:"required,gte=1,lte=50"`
	UserID    string `json:"userid" validate:"required"`
}

// InterviewService generates and lists interviews.
type InterviewService struct {
	Interviews domain.InterviewRepository
	AI         domain.AIClient
	MaxTokens  int
	now        func() time.Time
}

func NewInterviewService(r domain.InterviewRepository, ai domain.AIClient) InterviewService {
	return InterviewService{Interviews: r, AI: ai, MaxTokens: 1024, now: time.Now}
}

// Generate asks the AI for a question set and stores it as a finalized interview.
func (s InterviewService) Generate(ctx domain.Context, in GenerateInput) (domain.Interview, error) {
	if err := Validator().Struct(in); err != nil {
		return domain.Interview{}, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	if s.AI == nil {
		return domain.Interview{}, fmt.Errorf("%w: ai client not configured", domain.ErrInternal)
	}
	user := fmt.Sprintf("The job role is %s.\nThe job experience level is %s.\nThe tech stack used in the job is: %s.\n"+
		"The focus between behavioural and technical questions should lean towards: %s.\nThe amount of questions required is: %d.",
		in.Role, in.Level, in.TechStack, in.Type, in.Amount)

	raw, err := s.AI.ChatJSON(ctx, generateSystemPrompt, user, s.MaxTokens)
	if err != nil {
		return domain.Interview{}, fmt.Errorf("op=interview.Generate: %w", err)
	}
	questions, err := parseQuestions(raw)
	if err != nil {
		observability.Logger(ctx).Warn("interview questions unparsable", slog.Any("error", err), slog.Int("len", len(raw)))
		return domain.Interview{}, fmt.Errorf("op=interview.Generate: %w", err)
	}

	now := time.Now
	if s.now != nil {
		now = s.now
	}
	iv := domain.Interview{
		UserID:    in.UserID,
		Role:      strings.TrimSpace(in.Role),
		Level:     strings.TrimSpace(in.Level),
		Type:      strings.TrimSpace(in.Type),
		TechStack: splitStack(in.TechStack),
		Questions: questions,
		Finalized: true,
		CreatedAt: now().UTC(),
	}
	iv.CoverImage = coverFor(iv.UserID + iv.Role + iv.CreatedAt.String())
	id, err := s.Interviews.Create(ctx, iv)
	if err != nil {
		return domain.Interview{}, err
	}
	iv.ID = id
	return iv, nil
}

// parseQuestions accepts a bare array or an object with a "questions" array.
func parseQuestions(raw string) ([]string, error) {
	js, err := textx.ExtractJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSchemaInvalid, err)
	}
	var qs []string
	if strings.HasPrefix(js, "{") {
		var wrapped struct {
			Questions []string `json:"questions"`
		}
		if err := json.Unmarshal([]byte(js), &wrapped); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrSchemaInvalid, err)
		}
		qs = wrapped.Questions
	} else if err := json.Unmarshal([]byte(js), &qs); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSchemaInvalid, err)
	}
	out := make([]string, 0, len(qs))
	for _, q := range qs {
		if q = strings.TrimSpace(textx.SanitizeText(q)); q != "" {
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no questions", domain.ErrSchemaInvalid)
	}
	return out, nil
}

func splitStack(s string) []string {
	out := []string{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func coverFor(seed string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(seed))
	return CoverImages[int(h.Sum32()%uint32(len(CoverImages)))]
}

func (s InterviewService) Get(ctx domain.Context, id string) (domain.Interview, error) {
	if id == "" {
		return domain.Interview{}, fmt.Errorf("%w: interview id required", domain.ErrInvalidArgument)
	}
	return s.Interviews.Get(ctx, id)
}

func (s InterviewService) ListByUser(ctx domain.Context, userID string) ([]domain.Interview, error) {
	return s.Interviews.ListByUser(ctx, userID)
}

// ListLatest returns finalized interviews created by other users.
func (s InterviewService) ListLatest(ctx domain.Context, excludeUserID string, limit int) ([]domain.Interview, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.Interviews.ListLatest(ctx, excludeUserID, limit)
}
