package llm

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/genai"
)

func TestBuildGeminiContents(t *testing.T) {
	contents, config := buildGeminiContents([]Message{
		{Role: RoleSystem, Content: "be terse"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
	})

	if len(contents) != 2 {
		t.Fatalf("got %d contents", len(contents))
	}
	if contents[0].Role != string(genai.RoleUser) || contents[1].Role != string(genai.RoleModel) {
		t.Errorf("roles = %q, %q", contents[0].Role, contents[1].Role)
	}
	if contents[1].Parts[0].Text != "hello" {
		t.Errorf("text = %q", contents[1].Parts[0].Text)
	}
	if config == nil || config.SystemInstruction == nil || config.SystemInstruction.Parts[0].Text != "be terse" {
		t.Errorf("system instruction = %+v", config)
	}

	_, config = buildGeminiContents([]Message{{Role: RoleUser, Content: "hi"}})
	if config != nil {
		t.Errorf("config without system turns = %+v", config)
	}
}

func TestGeminiRequiresKey(t *testing.T) {
	p := NewGeminiProvider()
	if err := p.Probe(context.Background(), " "); err == nil {
		t.Error("Probe without key succeeded")
	}
	if _, err := p.Chat(context.Background(), "gemini-2.0-flash", []Message{{Role: RoleUser, Content: "hi"}}, ""); err == nil {
		t.Error("Chat without key succeeded")
	}
}

func TestDescribeGeminiError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: genai.APIError{Code: 403, Message: "forbidden"}, want: "authentication with Gemini failed, please check your API key"},
		{err: genai.APIError{Code: 429}, want: "gemini rate limit exceeded, please try again later"},
		{err: genai.APIError{Code: 500, Message: "internal"}, want: "gemini API error (status 500): internal"},
		{err: context.DeadlineExceeded, want: "the request to Gemini timed out, please try again"},
		{err: errors.New("dial tcp"), want: "gemini API error: dial tcp"},
	}
	for _, tc := range tests {
		if got := describeGeminiError(tc.err).Error(); got != tc.want {
			t.Errorf("describeGeminiError(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
