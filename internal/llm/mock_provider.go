package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockTurn represents a single response turn from the mock provider.
type MockTurn struct {
	Text   string        // Reply text (chunked when streamed)
	Chunks []string      // Explicit stream fragments; overrides Text chunking
	Delay  time.Duration // Optional delay before responding (for timeout tests)
	Error  error         // Return this error instead of responding
	// FailAfter emits this many chunks and then fails with Error.
	FailAfter int
}

// MockProvider is a configurable provider for testing.
// It returns scripted responses and records all requests for verification.
type MockProvider struct {
	name   string
	turns  []MockTurn
	models []string

	probeErr   error
	probePanic any
	probeDelay time.Duration

	turnIndex   int
	Requests    [][]Message // Recorded message sequences for verification
	ProbeCalls  int
	ListCalls   int
	ChatCalls   int
	StreamCalls int
	mu          sync.Mutex
}

// NewMockProvider creates a new mock provider with the given name.
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name}
}

// Name returns the provider name.
func (m *MockProvider) Name() string {
	return m.name
}

// WithModels sets the models returned by ListModels.
func (m *MockProvider) WithModels(models ...string) *MockProvider {
	m.models = models
	return m
}

// WithProbeError makes Probe fail with err.
func (m *MockProvider) WithProbeError(err error) *MockProvider {
	m.probeErr = err
	return m
}

// WithProbePanic makes Probe panic with v.
func (m *MockProvider) WithProbePanic(v any) *MockProvider {
	m.probePanic = v
	return m
}

// WithProbeDelay makes Probe wait for d or until ctx is done.
func (m *MockProvider) WithProbeDelay(d time.Duration) *MockProvider {
	m.probeDelay = d
	return m
}

// AddTurn adds a response turn and returns the provider for chaining.
func (m *MockProvider) AddTurn(t MockTurn) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, t)
	return m
}

// AddTextResponse is a convenience method to add a simple text response.
func (m *MockProvider) AddTextResponse(text string) *MockProvider {
	return m.AddTurn(MockTurn{Text: text})
}

// AddError adds a turn that returns an error.
func (m *MockProvider) AddError(err error) *MockProvider {
	return m.AddTurn(MockTurn{Error: err})
}

// Calls returns the number of chat and stream calls made so far.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ChatCalls + m.StreamCalls
}

func (m *MockProvider) Probe(ctx context.Context, credential string) error {
	m.mu.Lock()
	m.ProbeCalls++
	m.mu.Unlock()

	if m.probePanic != nil {
		panic(m.probePanic)
	}
	if m.probeDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.probeDelay):
		}
	}
	return m.probeErr
}

func (m *MockProvider) ListModels(ctx context.Context, credential string) ([]string, error) {
	m.mu.Lock()
	m.ListCalls++
	m.mu.Unlock()

	if m.probeErr != nil {
		return nil, m.probeErr
	}
	return append([]string(nil), m.models...), nil
}

func (m *MockProvider) nextTurn(messages []Message) (MockTurn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, append([]Message(nil), messages...))
	if m.turnIndex >= len(m.turns) {
		return MockTurn{}, fmt.Errorf("mock provider: no more turns configured (expected turn %d, have %d)", m.turnIndex, len(m.turns))
	}
	turn := m.turns[m.turnIndex]
	m.turnIndex++
	return turn, nil
}

// Chat implements the Provider interface.
func (m *MockProvider) Chat(ctx context.Context, model string, messages []Message, credential string) (string, error) {
	m.mu.Lock()
	m.ChatCalls++
	m.mu.Unlock()

	turn, err := m.nextTurn(messages)
	if err != nil {
		return "", err
	}
	if turn.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(turn.Delay):
		}
	}
	if turn.Error != nil {
		return "", turn.Error
	}
	return turn.Text, nil
}

// Stream implements the Provider interface.
func (m *MockProvider) Stream(ctx context.Context, model string, messages []Message, credential string) (Stream, error) {
	m.mu.Lock()
	m.StreamCalls++
	m.mu.Unlock()

	turn, err := m.nextTurn(messages)
	if err != nil {
		return nil, err
	}
	if turn.Error != nil && turn.FailAfter == 0 {
		return nil, turn.Error
	}

	chunks := turn.Chunks
	if chunks == nil {
		chunks = chunkText(turn.Text, 10)
	}

	return newFragmentStream(ctx, func(ctx context.Context, ch chan<- Fragment) error {
		if turn.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(turn.Delay):
			}
		}
		for i, chunk := range chunks {
			if turn.Error != nil && i == turn.FailAfter {
				return turn.Error
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ch <- Fragment{Text: chunk}:
			}
		}
		return turn.Error
	}), nil
}

// chunkText splits text into chunks of approximately the given size.
// It tries to break at word boundaries when possible.
func chunkText(text string, chunkSize int) []string {
	if len(text) == 0 {
		return nil
	}
	if len(text) <= chunkSize {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		if len(text) <= chunkSize {
			chunks = append(chunks, text)
			break
		}

		// Find a good break point (space) near the chunk size
		breakPoint := chunkSize
		for i := chunkSize; i > chunkSize/2; i-- {
			if text[i] == ' ' {
				breakPoint = i + 1 // include the space in current chunk
				break
			}
		}

		chunks = append(chunks, text[:breakPoint])
		text = text[breakPoint:]
	}
	return chunks
}
