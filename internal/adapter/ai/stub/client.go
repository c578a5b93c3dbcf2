// Package stub provides a deterministic AI client for local runs without an API key.
package stub

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
)

var amountRe = regexp.MustCompile(`(?i)amount of questions required is:?\s*(\d+)`)

// Client answers feedback prompts with a fixed assessment and question
// prompts with numbered generic questions.
type Client struct{}

var _ domain.AIClient = (*Client)(nil)

func New() *Client { return &Client{} }

func (c *Client) ChatJSON(_ domain.Context, systemPrompt, userPrompt string, _ int) (string, error) {
	var payload any
	if strings.Contains(systemPrompt, "categoryScores") {
		payload = feedback()
	} else {
		payload = map[string]any{"questions": questions(userPrompt)}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func questions(prompt string) []string {
	n := 5
	if m := amountRe.FindStringSubmatch(prompt); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil && v > 0 && v <= 50 {
			n = v
		}
	}
	base := []string{
		"Tell me about yourself and your recent work.",
		"Describe a technical challenge you solved and how you approached it.",
		"How do you make sure the code you ship is reliable?",
		"Tell me about a time you disagreed with a teammate.",
		"Why are you interested in this role?",
	}
	out := make([]string, n)
	for i := range out {
		out[i] = base[i%len(base)]
	}
	return out
}

func feedback() map[string]any {
	names := []string{"Communication Skills", "Technical Knowledge", "Problem Solving", "Cultural Fit", "Confidence and Clarity"}
	scores := make([]map[string]any, len(names))
	for i, n := range names {
		scores[i] = map[string]any{"name": n, "score": 70, "comment": "Adequate for the level."}
	}
	return map[string]any{
		"totalScore":          70,
		"categoryScores":      scores,
		"strengths":           []string{"Clear structure"},
		"areasForImprovement": []string{"Go deeper on trade-offs"},
		"finalAssessment":     "A reasonable interview with room to add depth.",
	}
}
