// Package tokencount counts prompt tokens with tiktoken-go so feedback
// prompts stay inside the model's context budget.
package tokencount

import (
	"log/slog"
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// TruncationMarker is appended when lines were dropped to fit the budget.
const TruncationMarker = "[transcript truncated]"

// Counter caches one encoding per model family. When no encoding can be
// loaded it falls back to an estimate of four bytes per token.
type Counter struct {
	model string

	once sync.Once
	enc  *tiktoken.Tiktoken
}

func NewCounter(model string) *Counter {
	return &Counter{model: model}
}

func (c *Counter) encoding() *tiktoken.Tiktoken {
	c.once.Do(func() {
		enc, err := tiktoken.EncodingForModel(normalizeModelName(c.model))
		if err != nil {
			slog.Debug("falling back to cl100k_base encoding", slog.String("model", c.model), slog.Any("error", err))
			enc, err = tiktoken.GetEncoding("cl100k_base")
		}
		if err != nil {
			slog.Warn("token encoding unavailable, estimating", slog.String("model", c.model), slog.Any("error", err))
			return
		}
		c.enc = enc
	})
	return c.enc
}

// normalizeModelName maps provider model ids onto names tiktoken knows.
func normalizeModelName(model string) string {
	model = strings.ToLower(model)
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"):
		return "gpt-4o"
	case strings.Contains(model, "gpt-3.5"):
		return "gpt-3.5-turbo"
	default:
		return "gpt-4"
	}
}

// CountTokens returns the number of tokens in text.
func (c *Counter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if enc := c.encoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}

// TrimLines keeps whole lines from the start of lines until adding another
// would exceed maxTokens. It reports whether anything was dropped.
func (c *Counter) TrimLines(lines []string, maxTokens int) ([]string, bool) {
	if maxTokens <= 0 {
		return lines, false
	}
	budget := maxTokens - c.CountTokens(TruncationMarker)
	used := 0
	for i, l := range lines {
		n := c.CountTokens(l) + 1
		if used+n > budget {
			return lines[:i], true
		}
		used += n
	}
	return lines, false
}
