// Package tui hosts conversations interactively: a full-screen bubbletea
// program for terminals and a line-oriented loop for pipes. Both drive the
// chat state machine the same way, re-running Generate after every event
// that may have left a reply owed.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/promptly-chat/promptly/internal/chat"
	"github.com/promptly-chat/promptly/internal/conversation"
	"github.com/promptly-chat/promptly/internal/llm"
	"github.com/promptly-chat/promptly/internal/ui"
)

// fragmentBuffer bounds how far the generator may run ahead of the display.
const fragmentBuffer = 256

// Options configures the interactive host.
type Options struct {
	Machine *chat.Machine
	Catalog *llm.Catalog
	Styles  *ui.Styles
	Logger  *slog.Logger
}

type fragmentMsg struct {
	gen    int
	convID string
	frag   llm.Fragment
}

type generateDoneMsg struct {
	gen      int
	appended bool
	err      error
}

type commandDoneMsg struct {
	input  string
	result Result
	err    error
}

// Model is the bubbletea model for the chat screen.
type Model struct {
	ctx     context.Context
	host    *Host
	machine *chat.Machine
	styles  *ui.Styles
	logger  *slog.Logger
	now     func() time.Time

	keys     keyMap
	help     help.Model
	textarea textarea.Model
	viewport viewport.Model
	spinner  spinner.Model

	width  int
	height int
	ready  bool

	fragments        chan fragmentMsg
	gen              int
	generating       bool
	streamCancelFunc context.CancelFunc
	genStart         time.Time
	partial          strings.Builder
	partialID        string
	// paused is set when the user cancels a reply; generation resumes
	// only on /retry or the next submit.
	paused bool

	notice    string
	noticeErr bool
	quitting  bool
}

// New creates the chat model. ctx bounds every backend call it starts.
func New(ctx context.Context, opts Options) *Model {
	if opts.Styles == nil {
		opts.Styles = ui.DefaultStyles()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	keys := defaultKeyMap()

	ta := textarea.New()
	ta.Placeholder = "Send a message, or /help for commands"
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline.SetKeys(keys.Newline.Keys()...)
	ta.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = opts.Styles.Muted

	return &Model{
		ctx:       ctx,
		host:      &Host{Machine: opts.Machine, Catalog: opts.Catalog},
		machine:   opts.Machine,
		styles:    opts.Styles,
		logger:    opts.Logger,
		now:       time.Now,
		keys:      keys,
		help:      help.New(),
		textarea:  ta,
		viewport:  viewport.New(80, 20),
		spinner:   sp,
		fragments: make(chan fragmentMsg, fragmentBuffer),
	}
}

// Run starts the full-screen program and blocks until the user quits.
func Run(ctx context.Context, opts Options) error {
	p := tea.NewProgram(New(ctx, opts),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m *Model) Init() tea.Cmd {
	m.refresh()
	return tea.Batch(textarea.Blink, m.listen(), m.maybeGenerate())
}

// listen waits for the next streamed fragment.
func (m *Model) listen() tea.Cmd {
	ch := m.fragments
	ctx := m.ctx
	return func() tea.Msg {
		select {
		case msg := <-ch:
			return msg
		case <-ctx.Done():
			return nil
		}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		if !m.generating {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case fragmentMsg:
		if msg.gen == m.gen && m.generating && !msg.frag.Err {
			m.partialID = msg.convID
			m.partial.WriteString(msg.frag.Text)
			m.refresh()
		}
		return m, m.listen()

	case generateDoneMsg:
		return m.handleGenerateDone(msg)

	case commandDoneMsg:
		return m.handleCommandDone(msg)
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

func (m *Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancelGeneration()
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Cancel):
		if m.generating {
			m.cancelGeneration()
			m.setNotice("Stopping...", false)
		}
		return m, nil

	case key.Matches(msg, m.keys.New):
		return m, m.runCommand("/new")

	case key.Matches(msg, m.keys.Next):
		return m, m.runCommand("/next")

	case key.Matches(msg, m.keys.Prev):
		return m, m.runCommand("/prev")

	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case key.Matches(msg, m.keys.Send):
		return m.send()
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

func (m *Model) send() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.textarea.Value())
	if input == "" {
		return m, nil
	}
	if IsCommand(input) {
		m.textarea.Reset()
		return m, m.runCommand(input)
	}

	err := m.machine.Submit(m.ctx, input)
	switch {
	case errors.Is(err, chat.ErrBusy):
		m.setNotice("Wait for the current reply to finish, or press esc to cancel it.", true)
		return m, nil
	case errors.Is(err, chat.ErrNoActiveConversation):
		m.setNotice("No active conversation. Type /new to create one.", true)
		return m, nil
	case errors.Is(err, chat.ErrNotStarted):
		m.setNotice("Start this conversation first: /start <provider> <model>", true)
		return m, nil
	case err != nil:
		m.setNotice(err.Error(), true)
		return m, nil
	}

	m.textarea.Reset()
	m.paused = false
	m.setNotice("", false)
	m.refresh()
	return m, m.maybeGenerate()
}

// runCommand executes a slash command off the UI goroutine; some commands
// probe the network.
func (m *Model) runCommand(input string) tea.Cmd {
	host := m.host
	ctx := m.ctx
	return func() tea.Msg {
		res, err := host.Execute(ctx, input)
		return commandDoneMsg{input: input, result: res, err: err}
	}
}

func (m *Model) handleCommandDone(msg commandDoneMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.setNotice(msg.err.Error(), true)
	} else {
		m.setNotice(msg.result.Output, false)
	}
	if msg.result.Quit {
		m.cancelGeneration()
		m.quitting = true
		return m, tea.Quit
	}
	if msg.result.Retry {
		m.paused = false
	}
	m.refresh()
	return m, m.maybeGenerate()
}

// maybeGenerate starts a generation if the machine owes a reply and none is
// running. The machine itself decides whether anything is owed.
func (m *Model) maybeGenerate() tea.Cmd {
	if m.generating || m.paused || m.machine == nil {
		return nil
	}
	if !m.machine.Snapshot().Processing {
		return nil
	}

	m.gen++
	gen := m.gen
	ctx, cancel := context.WithCancel(m.ctx)
	m.streamCancelFunc = cancel
	m.generating = true
	m.genStart = m.now()
	m.partial.Reset()
	m.partialID = ""

	machine := m.machine
	ch := m.fragments
	generate := func() tea.Msg {
		defer cancel()
		appended, err := machine.Generate(ctx, func(convID string, frag llm.Fragment) {
			select {
			case ch <- fragmentMsg{gen: gen, convID: convID, frag: frag}:
			case <-ctx.Done():
			}
		})
		return generateDoneMsg{gen: gen, appended: appended, err: err}
	}
	return tea.Batch(generate, m.spinner.Tick)
}

func (m *Model) handleGenerateDone(msg generateDoneMsg) (tea.Model, tea.Cmd) {
	if msg.gen != m.gen {
		return m, nil
	}
	m.generating = false
	m.streamCancelFunc = nil
	m.partial.Reset()
	m.partialID = ""

	switch {
	case errors.Is(msg.err, context.Canceled):
		m.paused = true
		m.setNotice("Reply cancelled. Type /retry to ask again.", false)
	case msg.err != nil:
		m.logger.Warn("generation failed", "error", msg.err)
		m.setNotice(msg.err.Error(), true)
	case m.notice == "Stopping...":
		m.setNotice("", false)
	}
	m.refresh()
	return m, m.maybeGenerate()
}

func (m *Model) cancelGeneration() {
	if m.streamCancelFunc != nil {
		m.streamCancelFunc()
	}
}

func (m *Model) setNotice(text string, isErr bool) {
	m.notice = text
	m.noticeErr = isErr
	m.layout(m.width, m.height)
}

func (m *Model) layout(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	m.width, m.height = width, height
	m.ready = true

	m.textarea.SetWidth(max(width-2, 10))
	m.help.Width = width

	// header + status + bordered input
	chrome := 1 + lineCount(m.statusLine()) + m.textarea.Height() + 2
	m.viewport.Width = width
	m.viewport.Height = max(height-chrome, 3)
	m.refresh()
}

func lineCount(s string) int {
	return strings.Count(s, "\n") + 1
}

// refresh re-renders the conversation into the viewport.
func (m *Model) refresh() {
	m.viewport.SetContent(m.renderConversation(max(m.viewport.Width-2, 20)))
	m.viewport.GotoBottom()
}

func (m *Model) renderConversation(width int) string {
	if m.machine == nil {
		return ""
	}
	c, ok := m.machine.Active()
	if !ok {
		return m.styles.Muted.Render("No conversation. Type /new to create one.")
	}
	if !c.Started {
		return m.styles.Muted.Render(ui.RenderContent(
			"This conversation has not been started yet.\n"+
				"Pick a backend with /start <provider> <model>. "+
				"/providers lists what is reachable and /models <provider> what it offers.", width))
	}

	var b strings.Builder
	visible := c.Visible()
	if hidden := len(c.Messages) - len(visible); hidden > 0 {
		b.WriteString(m.styles.Muted.Render(fmt.Sprintf("… %d earlier messages", hidden)))
		b.WriteString("\n\n")
	}
	for _, msg := range visible {
		b.WriteString(m.renderMessage(c, msg, width))
		b.WriteString("\n\n")
	}

	snap := m.machine.Snapshot()
	if snap.Processing && snap.ProcessingID == c.ID {
		b.WriteString(m.styles.AssistantLabel.Render(c.Provider))
		b.WriteString("\n")
		if m.partialID == c.ID && m.partial.Len() > 0 {
			b.WriteString(ui.RenderContent(m.partial.String(), width))
		} else {
			b.WriteString(m.styles.Muted.Render("…"))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) renderMessage(c *conversation.Conversation, msg conversation.Message, width int) string {
	switch msg.Role {
	case conversation.RoleUser:
		return m.styles.UserLabel.Render("You") + "\n" +
			m.styles.UserMessage.Render(ui.RenderContent(msg.Content, width-2))
	case conversation.RoleSystem:
		return m.styles.Muted.Render(ui.RenderContent(msg.Content, width))
	}
	label := m.styles.AssistantLabel.Render(c.Provider) + m.styles.Muted.Render(" "+c.Model)
	if llm.IsErrorText(msg.Content) {
		return label + "\n" + m.styles.ErrorMessage.Render(ui.RenderContent(msg.Content, width-2))
	}
	return label + "\n" + ui.RenderContent(msg.Content, width)
}

func (m *Model) header() string {
	if m.machine == nil {
		return ""
	}
	list := m.machine.Conversations()
	for i, s := range list {
		if !s.Active {
			continue
		}
		pos := m.styles.Muted.Render(fmt.Sprintf("  %s (%d/%d)", s.ID, i+1, len(list)))
		mode := ""
		if m.machine.Streaming() {
			mode = m.styles.Muted.Render("  streaming")
		}
		return m.styles.Title.Render(ui.Truncate(s.Title, max(m.width-30, 10))) + pos + mode
	}
	return m.styles.Title.Render("promptly")
}

func (m *Model) statusLine() string {
	if m.generating {
		phase := "Waiting"
		if m.partial.Len() > 0 {
			phase = "Streaming"
		}
		status := ""
		if c, ok := m.machine.Conversation(m.machine.Snapshot().ProcessingID); ok {
			status = c.Title
		}
		return ui.StreamingIndicator{
			Spinner:    m.spinner.View(),
			Phase:      phase,
			Elapsed:    m.now().Sub(m.genStart),
			Runes:      utf8.RuneCountInString(m.partial.String()),
			Status:     status,
			ShowCancel: true,
		}.Render(m.styles)
	}
	if m.notice != "" {
		notice := m.clipNotice(m.notice)
		if m.noticeErr {
			return m.styles.Error.Render(notice)
		}
		return notice
	}
	return m.help.View(m.keys)
}

// clipNotice keeps long command output from pushing the conversation off
// screen.
func (m *Model) clipNotice(s string) string {
	limit := max(m.height/2, 5)
	lines := strings.Split(s, "\n")
	if len(lines) <= limit {
		return s
	}
	hidden := len(lines) - limit + 1
	return strings.Join(lines[:limit-1], "\n") + "\n" + m.styles.Muted.Render(fmt.Sprintf("… %d more lines", hidden))
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading..."
	}
	return strings.Join([]string{
		m.header(),
		m.viewport.View(),
		m.statusLine(),
		m.styles.InputBorder.Render(m.textarea.View()),
	}, "\n")
}
