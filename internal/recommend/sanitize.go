// Package recommend relays visitor recommendations to the site owner.
package recommend

import (
	"encoding/json"
	"strings"
)

const (
	maxNameLen           = 100
	maxRecommendationLen = 200
	maxMessageLen        = 500
	minRecommendationLen = 2

	TypeMusic = "music"
	TypeMovie = "movie"
)

// Text is a JSON string field that decodes any non-string value as empty.
type Text string

// UnmarshalJSON never fails: numbers, objects and null decode as "".
func (t *Text) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*t = ""
		return nil
	}
	*t = Text(s)
	return nil
}

// Submission is the raw form posted by a visitor.
type Submission struct {
	Name           Text `json:"name"`
	Type           Text `json:"type"`
	Recommendation Text `json:"recommendation"`
	Message        Text `json:"message"`
}

// Recommendation is a sanitised submission.
type Recommendation struct {
	Name    string
	Type    string
	Text    string
	Message string
}

// ValidationError is returned for malformed input. Message is shown to the visitor as is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

var (
	errRecommendationRequired = &ValidationError{Message: "Valid recommendation is required"}
	errRecommendationTooShort = &ValidationError{Message: "Recommendation too short"}
)

// Sanitize validates s and strips it down to something safe to forward.
func Sanitize(s Submission) (Recommendation, error) {
	if s.Recommendation == "" {
		return Recommendation{}, errRecommendationRequired
	}

	rec := Recommendation{
		Name:    clean(string(s.Name), maxNameLen),
		Type:    TypeMusic,
		Text:    clean(string(s.Recommendation), maxRecommendationLen),
		Message: clean(string(s.Message), maxMessageLen),
	}
	if s.Name == "" {
		rec.Name = "Anonymous"
	}
	if s.Type == TypeMovie {
		rec.Type = TypeMovie
	}

	if len([]rune(rec.Text)) < minRecommendationLen {
		return Recommendation{}, errRecommendationTooShort
	}
	return rec, nil
}

var brackets = strings.NewReplacer("<", "", ">", "")

// clean trims, truncates to max runes and then drops angle brackets.
func clean(s string, max int) string {
	return brackets.Replace(truncate(strings.TrimSpace(s), max))
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
