// Package chat implements the conversation state machine. Every transition
// checks its own preconditions, so a host may re-run the whole decision
// sequence on each event without duplicating work.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/promptly-chat/promptly/internal/conversation"
	"github.com/promptly-chat/promptly/internal/llm"
)

var (
	ErrBusy                 = errors.New("a response is still being generated")
	ErrNoActiveConversation = errors.New("no active conversation")
	ErrNotStarted           = errors.New("conversation has not been started")
	ErrUnknownConversation  = errors.New("unknown conversation")
	ErrUnknownProvider      = errors.New("unknown provider")
)

// Saver durably stores the whole conversation set.
type Saver interface {
	Save(ctx context.Context, set *conversation.Set) error
}

// Sink receives streamed fragments for display as they are produced.
type Sink func(conversationID string, frag llm.Fragment)

// Options configures a Machine.
type Options struct {
	Registry    *llm.Registry
	Credentials llm.Credentials
	Store       Saver
	Streaming   bool
	Aggregator  llm.AggregatorConfig
	Logger      *slog.Logger
}

// Machine owns the conversation set and session state. Methods are safe to
// call from several goroutines; the lock is never held across a backend
// call.
type Machine struct {
	mu    sync.Mutex
	set   *conversation.Set
	state *State

	registry  *llm.Registry
	creds     llm.Credentials
	store     Saver
	streaming bool
	agg       llm.AggregatorConfig
	logger    *slog.Logger
}

// NewMachine creates a machine over a loaded set. A nil state is derived
// from set.
func NewMachine(set *conversation.Set, state *State, opts Options) *Machine {
	if set == nil {
		set = conversation.NewSet()
	}
	if state == nil {
		state = NewState(set)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Aggregator.MinChunk == 0 && opts.Aggregator.MaxInterval == 0 {
		opts.Aggregator = llm.DefaultAggregatorConfig()
	}
	return &Machine{
		set:       set,
		state:     state,
		registry:  opts.Registry,
		creds:     opts.Credentials,
		store:     opts.Store,
		streaming: opts.Streaming,
		agg:       opts.Aggregator,
		logger:    opts.Logger,
	}
}

func (m *Machine) save(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	if err := m.store.Save(ctx, m.set); err != nil {
		return fmt.Errorf("save conversations: %w", err)
	}
	return nil
}

// NewConversation creates an unstarted conversation and makes it active.
func (m *Machine) NewConversation(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.set.New()
	m.state.ActiveID = c.ID
	return c.ID, m.save(ctx)
}

// Select makes id the active conversation. An in-flight reply elsewhere is
// left alone.
func (m *Machine) Select(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.set.Get(id) == nil {
		return fmt.Errorf("%w: %s", ErrUnknownConversation, id)
	}
	m.state.ActiveID = id
	return nil
}

// Delete removes a conversation. If it was active, the first remaining
// conversation becomes active. The processing flag is deliberately not
// touched: a reply in flight for the deleted conversation is allowed to
// finish and is then discarded.
func (m *Machine) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.set.Delete(id) {
		return fmt.Errorf("%w: %s", ErrUnknownConversation, id)
	}
	if m.state.ActiveID == id {
		m.state.ActiveID = m.set.First()
	}
	return m.save(ctx)
}

// Start binds the active conversation to a provider and model. It is a
// no-op returning false when the conversation was already started.
func (m *Machine) Start(ctx context.Context, provider, model string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.set.Get(m.state.ActiveID)
	if c == nil {
		return false, ErrNoActiveConversation
	}
	if c.Started {
		return false, nil
	}
	if m.registry != nil {
		if _, ok := m.registry.Lookup(provider); !ok {
			return false, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
		}
	}
	if strings.TrimSpace(model) == "" {
		return false, errors.New("model must not be empty")
	}
	c.Start(provider, model)
	return true, m.save(ctx)
}

// Submit appends a user message to the active conversation and marks it as
// processing. Empty input is ignored.
func (m *Machine) Submit(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Processing {
		return ErrBusy
	}
	c := m.set.Get(m.state.ActiveID)
	if c == nil {
		return ErrNoActiveConversation
	}
	if !c.Started {
		return ErrNotStarted
	}

	n := len(c.Messages)
	c.Append(conversation.NewMessage(conversation.RoleUser, text))
	if err := m.save(ctx); err != nil {
		c.Messages = c.Messages[:n]
		return err
	}
	m.state.begin(c.ID)
	return nil
}

// job is everything a generation needs, captured under the lock.
type job struct {
	fp       Fingerprint
	provider string
	model    string
	messages []llm.Message
}

// Generate produces the reply for the conversation recorded as processing,
// if one is still owed. It reports whether an assistant message was
// appended. Re-invoking it for an already answered user message does
// nothing, so hosts may call it on every event.
func (m *Machine) Generate(ctx context.Context, sink Sink) (bool, error) {
	m.mu.Lock()
	j, ok := m.prepare()
	m.mu.Unlock()
	if !ok {
		return false, nil
	}

	reply, failure := m.respond(ctx, j, sink)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		// Leave the turn owed so a later invocation can retry it.
		m.state.release(j.fp)
		return false, err
	}
	return m.finish(ctx, j, reply, failure)
}

// prepare checks every precondition of a generation. The caller holds mu.
func (m *Machine) prepare() (job, bool) {
	if !m.state.Processing {
		return job{}, false
	}
	// Whoever is in flight settles the state when it returns.
	if m.state.inFlight != nil {
		return job{}, false
	}
	c := m.set.Get(m.state.ProcessingID)
	if c == nil {
		m.state.idle()
		return job{}, false
	}
	last, ok := c.Last()
	if !ok || last.Role != conversation.RoleUser {
		m.state.idle()
		return job{}, false
	}

	fp := Fingerprint{ConversationID: c.ID, MessageID: last.ID}
	if m.state.Completed(fp) {
		m.state.idle()
		return job{}, false
	}
	m.state.inFlight = &fp

	return job{
		fp:       fp,
		provider: c.Provider,
		model:    c.Model,
		messages: toLLMMessages(c.Messages),
	}, true
}

// respond calls the backend. It returns either the reply or a failure
// description carrying the error marker.
func (m *Machine) respond(ctx context.Context, j job, sink Sink) (reply, failure string) {
	if m.registry == nil {
		return "", llm.ErrorText(errors.New("no providers configured"))
	}
	entry, ok := m.registry.Lookup(j.provider)
	if !ok {
		return "", llm.ErrorText(fmt.Errorf("%w: %q", ErrUnknownProvider, j.provider))
	}
	if j.model == "" {
		return "", llm.ErrorText(errors.New("no model selected"))
	}
	credential := m.creds.Get(entry.CredentialKey)

	if !m.streaming {
		text := entry.Adapter.Chat(ctx, j.model, j.messages, credential)
		if llm.IsErrorText(text) {
			return "", text
		}
		return text, ""
	}

	stream := llm.Aggregate(entry.Adapter.ChatStream(ctx, j.model, j.messages, credential), m.agg)
	defer stream.Close()

	var b strings.Builder
	for {
		frag, err := stream.Recv()
		if err == io.EOF {
			return b.String(), ""
		}
		if err != nil {
			return "", llm.ErrorText(err)
		}
		if sink != nil {
			sink(j.fp.ConversationID, frag)
		}
		if frag.Err {
			return "", frag.Text
		}
		b.WriteString(frag.Text)
	}
}

// finish records the outcome. The caller holds mu.
func (m *Machine) finish(ctx context.Context, j job, reply, failure string) (bool, error) {
	appended := false
	c := m.set.Get(j.fp.ConversationID)
	if c != nil && !m.state.Completed(j.fp) {
		content := reply
		if failure != "" {
			content = formatFailure(j.provider, j.model, failure)
			m.logger.Warn("error in LLM response", "provider", j.provider, "model", j.model, "error", llm.StripErrorPrefix(failure))
		}
		c.Append(conversation.NewMessage(conversation.RoleAssistant, content))
		appended = true
	}
	m.state.completed.Add(j.fp)
	if m.state.owns(j.fp) {
		m.state.idle()
	} else {
		m.state.release(j.fp)
	}

	if !appended {
		return false, nil
	}
	return true, m.save(ctx)
}

func formatFailure(provider, model, failure string) string {
	return fmt.Sprintf("%s Failed to get response from %s - %s. %s",
		llm.ErrorPrefix, provider, model, llm.StripErrorPrefix(failure))
}

func toLLMMessages(msgs []conversation.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, llm.Message{Role: llm.Role(msg.Role), Content: msg.Content})
	}
	return out
}
