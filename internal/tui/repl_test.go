package tui

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/promptly-chat/promptly/internal/llm"
)

func runPlain(t *testing.T, h *Host, input string) string {
	t.Helper()
	var out bytes.Buffer
	if err := RunPlain(context.Background(), h, strings.NewReader(input), &out); err != nil {
		t.Fatalf("RunPlain: %v", err)
	}
	return out.String()
}

func TestRunPlainConversation(t *testing.T) {
	mock := llm.NewMockProvider("Mock").AddTextResponse("four")
	h := newTestHost(t, mock, false)

	out := runPlain(t, h, "/new\n/start Mock m1\n\nwhat is 2+2?\n/quit\nignored\n")

	for _, want := range []string{
		"No conversation. Type /new to create one.",
		"Created chat_0.",
		"Started chat with Mock - m1.",
		"four\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if mock.Calls() != 1 {
		t.Errorf("calls = %d, want 1", mock.Calls())
	}
	c, _ := h.Machine.Active()
	if len(c.Messages) != 2 {
		t.Errorf("messages = %d, want 2 (lines after /quit are ignored)", len(c.Messages))
	}
}

func TestRunPlainStreaming(t *testing.T) {
	mock := llm.NewMockProvider("Mock").AddTurn(llm.MockTurn{Chunks: []string{"str", "eamed"}})
	h := startedHost(t, mock, true)

	out := runPlain(t, h, "hi\n")
	if !strings.Contains(out, "streamed\n") {
		t.Errorf("output = %q", out)
	}
	if strings.Count(out, "streamed") != 1 {
		t.Errorf("streamed reply printed twice:\n%s", out)
	}
}

func TestRunPlainReportsFailures(t *testing.T) {
	mock := llm.NewMockProvider("Mock").AddTurn(llm.MockTurn{Chunks: []string{"half"}, FailAfter: 1, Error: errDiskFull})
	h := startedHost(t, mock, true)

	out := runPlain(t, h, "hi\n")
	if !strings.Contains(out, "Error: Failed to get response from Mock - m1.") {
		t.Errorf("failure not reported:\n%s", out)
	}
}

func TestRunPlainResumesOwedReply(t *testing.T) {
	mock := llm.NewMockProvider("Mock").AddTextResponse("late answer")
	h := startedHost(t, mock, false)
	if err := h.Machine.Submit(context.Background(), "still waiting"); err != nil {
		t.Fatal(err)
	}

	out := runPlain(t, h, "")
	if !strings.HasPrefix(out, "[chat_0] Mock - m1\n") {
		t.Errorf("banner = %q", out)
	}
	if !strings.Contains(out, "late answer") {
		t.Errorf("owed reply not generated:\n%s", out)
	}
	if h.Machine.Snapshot().Processing {
		t.Error("still processing")
	}
}

func TestRunPlainSubmitErrors(t *testing.T) {
	h := newTestHost(t, llm.NewMockProvider("Mock"), false)
	out := runPlain(t, h, "hello\n/new\nhello\n/bogus\n")

	for _, want := range []string{
		"No active conversation. Type /new to create one.",
		"Start this conversation first",
		"Unknown command: /bogus",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
