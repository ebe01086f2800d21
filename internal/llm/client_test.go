package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tmc/langchaingo/llms"
)

type fakeModel struct {
	messages []llms.MessageContent
	opts     llms.CallOptions
	resp     *llms.ContentResponse
	err      error
	deadline bool
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	for _, opt := range options {
		opt(&m.opts)
	}
	_, m.deadline = ctx.Deadline()
	return m.resp, m.err
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestGenerate(t *testing.T) {
	model := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "  Host:Hi\n"}}}}
	c := &Client{llm: model, temperature: 0.7, maxTokens: 512, callTimeout: time.Minute}

	out, err := c.Generate(context.Background(), "You are a host.", "Say hi.")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "Host:Hi" {
		t.Errorf("Generate() = %q", out)
	}
	if len(model.messages) != 2 {
		t.Fatalf("sent %d messages, want 2", len(model.messages))
	}
	if model.messages[0].Role != llms.ChatMessageTypeSystem || model.messages[1].Role != llms.ChatMessageTypeHuman {
		t.Errorf("roles = %s, %s", model.messages[0].Role, model.messages[1].Role)
	}
	if got := model.messages[1].Parts[0].(llms.TextContent).Text; got != "Say hi." {
		t.Errorf("user prompt = %q", got)
	}
	if model.opts.Temperature != 0.7 || model.opts.MaxTokens != 512 {
		t.Errorf("options = %+v", model.opts)
	}
	if !model.deadline {
		t.Error("call context has no deadline")
	}
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name  string
		model *fakeModel
	}{
		{"model error", &fakeModel{err: errors.New("quota")}},
		{"no choices", &fakeModel{resp: &llms.ContentResponse{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Client{llm: tt.model}
			if _, err := c.Generate(context.Background(), "s", "p"); err == nil {
				t.Error("Generate() expected error")
			}
		})
	}
}

func TestEndpointRoundTripper(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
	}))
	defer srv.Close()

	hc := httpClientForEndpoint(srv.URL + "/gemini/")
	resp, err := hc.Get("https://generativelanguage.googleapis.com/v1beta/models/x:generateContent?key=k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()
	if gotPath != "/gemini/v1beta/models/x:generateContent" {
		t.Errorf("path = %q", gotPath)
	}
	if gotQuery != "key=k" {
		t.Errorf("query = %q", gotQuery)
	}
}
