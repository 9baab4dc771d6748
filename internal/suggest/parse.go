package suggest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/salesdesk/salesdesk/internal/completion"
)

// Count is the number of suggestions every caller receives.
const Count = 3

const actionsPerSuggestion = 2

var ErrParse = errors.New("suggestion response could not be parsed")

type Suggestion struct {
	Title     string   `json:"title"`
	Rationale string   `json:"rationale"`
	Actions   []string `json:"actions"`
}

// Fallback returns the suggestion used for any slot the model did not fill
// correctly.
func Fallback() Suggestion {
	return Suggestion{
		Title:     "Review your open pipeline deals",
		Rationale: "Keeping your pipeline fresh ensures no opportunities slip through.",
		Actions: []string{
			"Check for stale deals that need follow-up",
			"Prioritize deals closest to closing",
		},
	}
}

func Fallbacks() []Suggestion {
	out := make([]Suggestion, Count)
	for i := range out {
		out[i] = Fallback()
	}
	return out
}

type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrParse, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrParse, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return ErrParse
}

// Parsed always holds exactly Count suggestions. Replaced lists the slots
// filled with the fallback.
type Parsed struct {
	Suggestions []Suggestion
	Replaced    []int
}

// Parse interprets a raw model response. It never fails to produce a result:
// a non-nil *ParseError describes why the whole response was replaced. Slots
// replaced individually are only reported through Replaced.
func Parse(raw string) (Parsed, error) {
	text := completion.StripCodeFence(raw)

	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(text), &entries); err != nil {
		return allFallback(), &ParseError{Reason: "response is not a JSON array", Err: err}
	}
	if len(entries) < Count {
		return allFallback(), &ParseError{Reason: fmt.Sprintf("expected %d entries, got %d", Count, len(entries))}
	}

	parsed := Parsed{Suggestions: make([]Suggestion, 0, Count)}
	for slot, entry := range entries[:Count] {
		suggestion, ok := coerce(entry)
		if !ok {
			suggestion = Fallback()
			parsed.Replaced = append(parsed.Replaced, slot)
		}
		parsed.Suggestions = append(parsed.Suggestions, suggestion)
	}
	return parsed, nil
}

// Normalize is Parse without the diagnostics.
func Normalize(raw string) []Suggestion {
	parsed, _ := Parse(raw)
	return parsed.Suggestions
}

func allFallback() Parsed {
	return Parsed{Suggestions: Fallbacks(), Replaced: []int{0, 1, 2}}
}

func coerce(entry json.RawMessage) (Suggestion, bool) {
	var fields map[string]any
	if err := json.Unmarshal(entry, &fields); err != nil || fields == nil {
		return Suggestion{}, false
	}
	title, ok := fields["title"].(string)
	if !ok || strings.TrimSpace(title) == "" {
		return Suggestion{}, false
	}
	rawActions, ok := fields["actions"].([]any)
	if !ok || len(rawActions) < actionsPerSuggestion {
		return Suggestion{}, false
	}
	actions := make([]string, 0, actionsPerSuggestion)
	for _, rawAction := range rawActions[:actionsPerSuggestion] {
		action, ok := rawAction.(string)
		if !ok || strings.TrimSpace(action) == "" {
			return Suggestion{}, false
		}
		actions = append(actions, strings.TrimSpace(action))
	}
	rationale, _ := fields["rationale"].(string)
	return Suggestion{
		Title:     strings.TrimSpace(title),
		Rationale: strings.TrimSpace(rationale),
		Actions:   actions,
	}, true
}
