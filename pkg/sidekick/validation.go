package sidekick

import (
	"fmt"
	"strings"
)

// Input validation limits.
const (
	MaxMessageLen   = 100000
	MaxCriteriaLen  = 10000
	MaxHistoryItems = 1000
)

// DefaultSuccessCriteria is used when the caller supplies none.
const DefaultSuccessCriteria = "The answer should be clear and accurate"

// HistoryItem is one caller-visible conversation entry.
type HistoryItem struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ValidationError reports the first violated input constraint. It is the only
// error category surfaced directly to RunTurn callers.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// TurnInput is a validated, normalized RunTurn input.
type TurnInput struct {
	Message         string
	SuccessCriteria string
	History         []HistoryItem
}

// ValidateTurnInput checks and normalizes RunTurn's inputs before the state
// machine runs. The first violated constraint is reported; nothing downstream
// executes on invalid input.
func ValidateTurnInput(message, successCriteria string, history []HistoryItem) (TurnInput, error) {
	var in TurnInput

	msg := strings.TrimSpace(message)
	if msg == "" {
		return in, invalid("message", "must not be empty")
	}
	if len(msg) > MaxMessageLen {
		return in, invalid("message", "exceeds maximum length of %d characters (got %d)", MaxMessageLen, len(msg))
	}
	in.Message = msg

	criteria := strings.TrimSpace(successCriteria)
	if len(criteria) > MaxCriteriaLen {
		return in, invalid("success_criteria", "exceeds maximum length of %d characters (got %d)", MaxCriteriaLen, len(criteria))
	}
	if criteria == "" {
		criteria = DefaultSuccessCriteria
	}
	in.SuccessCriteria = criteria

	normalized, err := validateHistory(history)
	if err != nil {
		return in, err
	}
	in.History = normalized
	return in, nil
}

func validateHistory(history []HistoryItem) ([]HistoryItem, error) {
	if len(history) > MaxHistoryItems {
		return nil, invalid("history", "exceeds maximum length of %d items (got %d)", MaxHistoryItems, len(history))
	}

	normalized := make([]HistoryItem, 0, len(history))
	for i, item := range history {
		role := strings.ToLower(strings.TrimSpace(item.Role))
		switch role {
		case "user", "assistant", "system":
		default:
			return nil, invalid(fmt.Sprintf("history[%d].role", i),
				"must be 'user', 'assistant', or 'system', got %q", item.Role)
		}

		content := strings.TrimSpace(item.Content)
		if content == "" {
			return nil, invalid(fmt.Sprintf("history[%d].content", i), "must not be empty")
		}
		if len(content) > MaxMessageLen {
			return nil, invalid(fmt.Sprintf("history[%d].content", i),
				"exceeds maximum length of %d characters (got %d)", MaxMessageLen, len(content))
		}
		normalized = append(normalized, HistoryItem{Role: role, Content: content})
	}

	// Non-system entries must alternate user/assistant, starting with user.
	// System entries can appear anywhere without breaking alternation.
	expected := "user"
	pos := 0
	for _, item := range normalized {
		if item.Role == "system" {
			continue
		}
		if item.Role != expected {
			return nil, invalid("history",
				"messages should alternate between user and assistant; expected %q at position %d, got %q",
				expected, pos, item.Role)
		}
		if expected == "user" {
			expected = "assistant"
		} else {
			expected = "user"
		}
		pos++
	}
	return normalized, nil
}
