package verify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/kalambet/sverka/internal/engine"
	"github.com/kalambet/sverka/internal/llmjson"
	"github.com/kalambet/sverka/internal/metrics"
)

const maxParaphrases = 3

// Chatter sends one chat request. governor.Governor implements it.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []engine.Message, jsonSchema *engine.Schema) (string, error)
}

// Expander asks the model for paraphrases of a criterion.
type Expander struct {
	chat    Chatter
	model   string
	metrics *metrics.Metrics
}

// NewExpander returns an Expander. m may be nil.
func NewExpander(chat Chatter, model string, m *metrics.Metrics) *Expander {
	return &Expander{chat: chat, model: model, metrics: m}
}

// Expand returns the criterion followed by up to three paraphrases. Any
// failure yields only the criterion.
func (e *Expander) Expand(ctx context.Context, criterion string) []string {
	resp, err := e.chat.Chat(ctx, e.model, engine.UserMessage(fmt.Sprintf(expandPrompt, criterion)), nil)
	if err != nil {
		slog.Warn("query expansion failed", "criterion", criterion, "error", err)
		e.metrics.Fallback("expand")
		return []string{criterion}
	}
	if isErrorPayload(resp) {
		slog.Warn("query expansion returned an error payload", "criterion", criterion, "response", resp)
		e.metrics.Fallback("expand")
		return []string{criterion}
	}

	queries := []string{criterion}
	for _, line := range strings.Split(llmjson.Clean(resp), "\n") {
		q := stripBullet(line)
		if q == "" || q == criterion {
			continue
		}
		queries = append(queries, q)
		if len(queries) == maxParaphrases+1 {
			break
		}
	}
	return queries
}

// isErrorPayload reports whether a response is an error report rather than
// paraphrases: a JSON object carrying "error" or "status", or text that
// opens with an error word.
func isErrorPayload(resp string) bool {
	s := strings.TrimSpace(llmjson.Clean(resp))
	if s == "" {
		return true
	}
	if strings.HasPrefix(s, "{") {
		if fields, err := llmjson.Fields(s); err == nil {
			_, hasErr := fields["error"]
			_, hasStatus := fields["status"]
			return hasErr || hasStatus
		}
	}
	lower := strings.ToLower(s)
	for _, prefix := range []string{"error", "ошибка"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// stripBullet trims a line and removes a leading list marker ("-", "*",
// "•", "1.", "2)") and surrounding quotes. A numeric marker counts only
// when whitespace follows it, so "3.5 MPa" keeps its number.
func stripBullet(line string) string {
	s := strings.TrimSpace(line)
	s = strings.TrimLeft(s, "-*•· \t")
	if i := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) }); i > 0 && i+1 < len(s) &&
		(s[i] == '.' || s[i] == ')') && (s[i+1] == ' ' || s[i+1] == '\t') {
		s = s[i+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"«»“”`)
	return strings.TrimSpace(s)
}
