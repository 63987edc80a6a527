package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/promptly-chat/promptly/internal/conversation"
	"github.com/promptly-chat/promptly/internal/llm"
)

// runAsync flattens batches and runs each command on its own goroutine.
func runAsync(cmd tea.Cmd) <-chan tea.Msg {
	out := make(chan tea.Msg, 16)
	if cmd == nil {
		return out
	}
	var start func(c tea.Cmd)
	start = func(c tea.Cmd) {
		go func() {
			msg := c()
			if batch, ok := msg.(tea.BatchMsg); ok {
				for _, sub := range batch {
					if sub != nil {
						start(sub)
					}
				}
				return
			}
			out <- msg
		}()
	}
	start(cmd)
	return out
}

func waitFor[T tea.Msg](t *testing.T, msgs <-chan tea.Msg) T {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case msg := <-msgs:
			if v, ok := msg.(T); ok {
				return v
			}
		case <-timeout:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

func press(m *Model, k tea.KeyType) tea.Cmd {
	_, cmd := m.Update(tea.KeyMsg{Type: k})
	return cmd
}

func lastMessage(t *testing.T, h *Host) conversation.Message {
	t.Helper()
	c, ok := h.Machine.Active()
	if !ok {
		t.Fatal("no active conversation")
	}
	last, ok := c.Last()
	if !ok {
		t.Fatal("conversation is empty")
	}
	return last
}

func TestModelSubmitGeneratesReply(t *testing.T) {
	mock := llm.NewMockProvider("Mock").AddTextResponse("hello back")
	h := startedHost(t, mock, false)
	m := newTestModel(t, h)

	typeText(m, "hello")
	cmd := press(m, tea.KeyEnter)
	if m.textarea.Value() != "" {
		t.Errorf("input not cleared: %q", m.textarea.Value())
	}
	if !m.generating {
		t.Fatal("generation not started")
	}
	if !strings.Contains(m.View(), "Waiting") {
		t.Errorf("status should show waiting indicator:\n%s", m.View())
	}

	done := findMsg[generateDoneMsg](t, collect(cmd))
	if !done.appended || done.err != nil {
		t.Fatalf("done = %+v", done)
	}
	m.Update(done)

	if m.generating {
		t.Error("still generating after done")
	}
	if last := lastMessage(t, h); last.Content != "hello back" {
		t.Errorf("last = %q", last.Content)
	}
	if !strings.Contains(m.viewport.View(), "hello back") {
		t.Errorf("reply not rendered:\n%s", m.viewport.View())
	}
	if h.Machine.Snapshot().Processing {
		t.Error("machine still processing")
	}
}

func TestModelStreamsPartialText(t *testing.T) {
	mock := llm.NewMockProvider("Mock").AddTurn(llm.MockTurn{Chunks: []string{"par", "tial"}})
	h := startedHost(t, mock, true)
	m := newTestModel(t, h)

	typeText(m, "go")
	done := findMsg[generateDoneMsg](t, collect(press(m, tea.KeyEnter)))

	// Fragments are queued on the channel; deliver them before completion.
	for len(m.fragments) > 0 {
		m.Update(<-m.fragments)
	}
	if got := m.partial.String(); got != "partial" {
		t.Errorf("partial = %q", got)
	}
	if !strings.Contains(m.viewport.View(), "partial") {
		t.Errorf("partial text not rendered:\n%s", m.viewport.View())
	}
	if !strings.Contains(m.statusLine(), "Streaming") {
		t.Errorf("status = %q", m.statusLine())
	}

	m.Update(done)
	if m.partial.Len() != 0 {
		t.Error("partial text kept after completion")
	}
	if last := lastMessage(t, h); last.Content != "partial" {
		t.Errorf("last = %q", last.Content)
	}
}

func TestModelIgnoresStaleGeneration(t *testing.T) {
	h := startedHost(t, llm.NewMockProvider("Mock"), true)
	m := newTestModel(t, h)
	m.gen = 3
	m.generating = true

	m.Update(fragmentMsg{gen: 2, convID: "chat_0", frag: llm.Fragment{Text: "old"}})
	if m.partial.Len() != 0 {
		t.Errorf("stale fragment applied: %q", m.partial.String())
	}
	m.Update(generateDoneMsg{gen: 2, appended: true})
	if !m.generating {
		t.Error("stale completion ended the current generation")
	}
}

func TestModelBusyKeepsInput(t *testing.T) {
	mock := llm.NewMockProvider("Mock").AddTurn(llm.MockTurn{Text: "slow", Delay: time.Hour})
	h := startedHost(t, mock, false)
	m := newTestModel(t, h)

	typeText(m, "first")
	msgs := runAsync(press(m, tea.KeyEnter))

	typeText(m, "second")
	press(m, tea.KeyEnter)
	if m.textarea.Value() != "second" {
		t.Errorf("input = %q, want it kept", m.textarea.Value())
	}
	if !m.noticeErr || !strings.Contains(m.notice, "Wait for the current reply") {
		t.Errorf("notice = %q", m.notice)
	}

	press(m, tea.KeyEsc)
	m.Update(waitFor[generateDoneMsg](t, msgs))
}

func TestModelCancelThenRetry(t *testing.T) {
	mock := llm.NewMockProvider("Mock").
		AddTurn(llm.MockTurn{Text: "never", Delay: time.Hour}).
		AddTextResponse("second try")
	h := startedHost(t, mock, false)
	m := newTestModel(t, h)

	typeText(m, "question")
	msgs := runAsync(press(m, tea.KeyEnter))

	if cmd := press(m, tea.KeyEsc); cmd != nil {
		t.Error("esc should not return a command")
	}
	if m.notice != "Stopping..." {
		t.Errorf("notice = %q", m.notice)
	}

	_, cmd := m.Update(waitFor[generateDoneMsg](t, msgs))
	if cmd != nil {
		t.Error("cancelled reply restarted on its own")
	}
	if !m.paused || m.generating {
		t.Errorf("paused=%v generating=%v", m.paused, m.generating)
	}
	if !strings.Contains(m.notice, "/retry") {
		t.Errorf("notice = %q", m.notice)
	}
	if !h.Machine.Snapshot().Processing {
		t.Fatal("cancelled turn should stay owed")
	}

	_, cmd = m.Update(findMsg[commandDoneMsg](t, collect(m.runCommand("/retry"))))
	if m.paused || !m.generating {
		t.Fatalf("retry did not resume: paused=%v generating=%v", m.paused, m.generating)
	}
	m.Update(findMsg[generateDoneMsg](t, collect(cmd)))
	if last := lastMessage(t, h); last.Content != "second try" {
		t.Errorf("last = %q", last.Content)
	}
}

func TestModelShowsFailures(t *testing.T) {
	mock := llm.NewMockProvider("Mock").AddError(errDiskFull)
	h := startedHost(t, mock, false)
	m := newTestModel(t, h)

	typeText(m, "hi")
	m.Update(findMsg[generateDoneMsg](t, collect(press(m, tea.KeyEnter))))

	last := lastMessage(t, h)
	if !llm.IsErrorText(last.Content) || !strings.Contains(last.Content, "Mock - m1") {
		t.Errorf("last = %q", last.Content)
	}
	if !strings.Contains(m.viewport.View(), "Failed to get response") {
		t.Errorf("failure not rendered:\n%s", m.viewport.View())
	}
}

func TestModelCommandsRunAsync(t *testing.T) {
	h := newTestHost(t, llm.NewMockProvider("Mock"), false)
	m := newTestModel(t, h)
	if !strings.Contains(m.viewport.View(), "No conversation") {
		t.Errorf("empty view:\n%s", m.viewport.View())
	}

	typeText(m, "/new")
	cmd := press(m, tea.KeyEnter)
	if h.Machine.Snapshot().ActiveID != "" {
		t.Error("command ran on the update goroutine")
	}
	m.Update(findMsg[commandDoneMsg](t, collect(cmd)))

	if !strings.HasPrefix(m.notice, "Created chat_0") {
		t.Errorf("notice = %q", m.notice)
	}
	if !strings.Contains(m.viewport.View(), "has not been started") {
		t.Errorf("unstarted hint missing:\n%s", m.viewport.View())
	}
	if !strings.Contains(m.header(), "chat_0 (1/1)") {
		t.Errorf("header = %q", m.header())
	}
}

func TestModelSubmitErrors(t *testing.T) {
	h := newTestHost(t, llm.NewMockProvider("Mock"), false)
	m := newTestModel(t, h)

	typeText(m, "hello")
	press(m, tea.KeyEnter)
	if !strings.Contains(m.notice, "No active conversation") {
		t.Errorf("notice = %q", m.notice)
	}

	m.Update(findMsg[commandDoneMsg](t, collect(m.runCommand("/new"))))
	typeText(m, "hello")
	press(m, tea.KeyEnter)
	if !strings.Contains(m.notice, "/start") || m.textarea.Value() != "hello" {
		t.Errorf("notice = %q, input = %q", m.notice, m.textarea.Value())
	}
}

func TestModelQuit(t *testing.T) {
	h := startedHost(t, llm.NewMockProvider("Mock"), false)
	m := newTestModel(t, h)

	cmd := press(m, tea.KeyCtrlC)
	if cmd == nil {
		t.Fatal("ctrl+c returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("ctrl+c did not quit")
	}
	if m.View() != "" {
		t.Error("view should be empty after quitting")
	}

	m2 := newTestModel(t, h)
	_, cmd = m2.Update(commandDoneMsg{input: "/quit", result: Result{Quit: true}})
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("/quit did not quit")
	}
}

func TestClipNotice(t *testing.T) {
	h := newTestHost(t, llm.NewMockProvider("Mock"), false)
	m := newTestModel(t, h)
	m.height = 10

	long := strings.Repeat("line\n", 20) + "end"
	got := m.clipNotice(long)
	if lineCount(got) != 5 || !strings.Contains(got, "… 17 more lines") {
		t.Errorf("clipNotice = %q", got)
	}
	if m.clipNotice("short") != "short" {
		t.Error("short notice changed")
	}
}
