package models

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrInputIncomplete is matched by every ValidationError.
var ErrInputIncomplete = errors.New("input incomplete")

// Enumerations offered by the form.
var (
	Grades            = []string{"6th", "7th", "8th", "9th", "10th", "11th", "12th"}
	SelfRatings       = []string{"No idea", "Know a little", "Understand some parts", "Know a lot"}
	ExplanationStyles = []string{"Fun", "Detailed", "Step-by-Step"}
	PodcastTypes      = []string{"Deep Dive", "Rapid Answers"}
)

const (
	MinAge = 5
	MaxAge = 18
)

// StudentProfile describes who the podcast is for.
type StudentProfile struct {
	Name             string `json:"name"`
	Age              int    `json:"age"`
	Grade            string `json:"grade"`
	SelfRating       string `json:"self_rating"`
	ExplanationStyle string `json:"explanation_style"`
	PodcastType      string `json:"podcast_type"`
}

// ValidationError describes a missing or invalid request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInputIncomplete
}

// Validate checks the profile fields against the allowed values.
func (p StudentProfile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	if p.Age < MinAge || p.Age > MaxAge {
		return &ValidationError{Field: "age", Message: fmt.Sprintf("must be between %d and %d", MinAge, MaxAge)}
	}
	checks := []struct {
		field   string
		value   string
		allowed []string
	}{
		{"grade", p.Grade, Grades},
		{"self_rating", p.SelfRating, SelfRatings},
		{"explanation_style", p.ExplanationStyle, ExplanationStyles},
		{"podcast_type", p.PodcastType, PodcastTypes},
	}
	for _, c := range checks {
		if !slices.Contains(c.allowed, c.value) {
			return &ValidationError{Field: c.field, Message: fmt.Sprintf("must be one of %s", strings.Join(c.allowed, ", "))}
		}
	}
	return nil
}

// ParseQuestions splits raw input on line breaks, trimming whitespace and dropping blank lines.
func ParseQuestions(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		if q := strings.TrimSpace(line); q != "" {
			out = append(out, q)
		}
	}
	return out
}

// FormatQuestions renders questions as a numbered list ("1. q1\n2. q2").
func FormatQuestions(questions []string) string {
	var b strings.Builder
	for i, q := range questions {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, q)
	}
	return b.String()
}

// Normalize merges QuestionsText into Questions and trims every entry.
func (r *CreateRunRequest) Normalize() {
	qs := make([]string, 0, len(r.Questions))
	for _, q := range r.Questions {
		qs = append(qs, ParseQuestions(q)...)
	}
	qs = append(qs, ParseQuestions(r.QuestionsText)...)
	r.Questions = qs
	r.QuestionsText = ""
	r.Profile.Name = strings.TrimSpace(r.Profile.Name)
	books := r.Books[:0:0]
	for _, b := range r.Books {
		if b = strings.TrimSpace(b); b != "" && !slices.Contains(books, b) {
			books = append(books, b)
		}
	}
	r.Books = books
}

// Validate checks a normalized request. Book titles are checked against the catalog elsewhere.
func (r *CreateRunRequest) Validate() error {
	if err := r.Profile.Validate(); err != nil {
		return err
	}
	if len(r.Questions) == 0 {
		return &ValidationError{Field: "questions", Message: "at least one question is required"}
	}
	if len(r.Books) == 0 {
		return &ValidationError{Field: "books", Message: "at least one book must be selected"}
	}
	if r.Webhook != nil && !strings.HasPrefix(r.Webhook.URL, "http://") && !strings.HasPrefix(r.Webhook.URL, "https://") {
		return &ValidationError{Field: "webhook.url", Message: "must be an http(s) URL"}
	}
	return nil
}
