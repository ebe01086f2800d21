package models

import (
	"errors"
	"reflect"
	"testing"
)

func validProfile() StudentProfile {
	return StudentProfile{
		Name:             "Asha",
		Age:              15,
		Grade:            "10th",
		SelfRating:       "Know a little",
		ExplanationStyle: "Fun",
		PodcastType:      "Deep Dive",
	}
}

func TestStudentProfileValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(p *StudentProfile)
		wantField string
	}{
		{"valid", func(p *StudentProfile) {}, ""},
		{"blank name", func(p *StudentProfile) { p.Name = "  " }, "name"},
		{"age too low", func(p *StudentProfile) { p.Age = 4 }, "age"},
		{"age too high", func(p *StudentProfile) { p.Age = 19 }, "age"},
		{"age bounds", func(p *StudentProfile) { p.Age = 18 }, ""},
		{"bad grade", func(p *StudentProfile) { p.Grade = "5th" }, "grade"},
		{"bad rating", func(p *StudentProfile) { p.SelfRating = "expert" }, "self_rating"},
		{"bad style", func(p *StudentProfile) { p.ExplanationStyle = "fun" }, "explanation_style"},
		{"bad type", func(p *StudentProfile) { p.PodcastType = "" }, "podcast_type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProfile()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Validate() error = %v, want *ValidationError", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", ve.Field, tt.wantField)
			}
			if !errors.Is(err, ErrInputIncomplete) {
				t.Error("expected error to match ErrInputIncomplete")
			}
		})
	}
}

func TestParseQuestions(t *testing.T) {
	got := ParseQuestions("  What is light?\n\n\r\nWhy is the sky blue?  \n")
	want := []string{"What is light?", "Why is the sky blue?"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseQuestions() = %q, want %q", got, want)
	}
	if got := ParseQuestions(" \n\n"); len(got) != 0 {
		t.Errorf("ParseQuestions(blank) = %q, want empty", got)
	}
}

func TestFormatQuestions(t *testing.T) {
	got := FormatQuestions([]string{"q1", "q2"})
	if got != "1. q1\n2. q2" {
		t.Errorf("FormatQuestions() = %q", got)
	}
}

func TestCreateRunRequestValidate(t *testing.T) {
	tests := []struct {
		name      string
		req       CreateRunRequest
		wantField string
	}{
		{
			name: "questions from text",
			req:  CreateRunRequest{Profile: validProfile(), QuestionsText: "What is an atom?", Books: []string{"B"}},
		},
		{
			name:      "no questions",
			req:       CreateRunRequest{Profile: validProfile(), QuestionsText: "\n \n", Books: []string{"B"}},
			wantField: "questions",
		},
		{
			name:      "no books",
			req:       CreateRunRequest{Profile: validProfile(), Questions: []string{"q"}, Books: []string{" "}},
			wantField: "books",
		},
		{
			name: "bad webhook",
			req: CreateRunRequest{Profile: validProfile(), Questions: []string{"q"}, Books: []string{"B"},
				Webhook: &WebhookConfig{URL: "ftp://x"}},
			wantField: "webhook.url",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			req.Normalize()
			err := req.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.wantField {
				t.Fatalf("Validate() error = %v, want field %q", err, tt.wantField)
			}
		})
	}
}

func TestNormalizeDeduplicatesBooks(t *testing.T) {
	req := CreateRunRequest{Books: []string{"A", " A ", "B"}, Questions: []string{"one\ntwo"}}
	req.Normalize()
	if !reflect.DeepEqual(req.Books, []string{"A", "B"}) {
		t.Errorf("Books = %q", req.Books)
	}
	if !reflect.DeepEqual(req.Questions, []string{"one", "two"}) {
		t.Errorf("Questions = %q", req.Questions)
	}
}
