package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Default per-call budgets applied at the adapter boundary.
const (
	DefaultProbeTimeout  = 5 * time.Second
	DefaultListTimeout   = 10 * time.Second
	DefaultChatTimeout   = 120 * time.Second
	DefaultStreamTimeout = 5 * time.Minute
)

// Adapter wraps a Provider with the uniform capability contract: probes
// collapse to bool, listings to possibly-empty slices, and every failure of
// a chat call becomes error-marked text. Nothing panics or errors past it.
type Adapter struct {
	provider Provider
	logger   *slog.Logger

	ProbeTimeout  time.Duration
	ListTimeout   time.Duration
	ChatTimeout   time.Duration
	StreamTimeout time.Duration
}

// NewAdapter wraps provider. A nil logger means slog.Default().
func NewAdapter(provider Provider, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		provider:      provider,
		logger:        logger,
		ProbeTimeout:  DefaultProbeTimeout,
		ListTimeout:   DefaultListTimeout,
		ChatTimeout:   DefaultChatTimeout,
		StreamTimeout: DefaultStreamTimeout,
	}
}

// Name returns the wrapped provider's display name.
func (a *Adapter) Name() string {
	return a.provider.Name()
}

// Probe reports whether the backend is usable with credential.
func (a *Adapter) Probe(ctx context.Context, credential string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Warn("provider probe panicked", "provider", a.Name(), "panic", r)
			ok = false
		}
	}()

	ctx, cancel := withTimeout(ctx, a.ProbeTimeout)
	defer cancel()

	if err := a.provider.Probe(ctx, credential); err != nil {
		a.logger.Debug("provider probe failed", "provider", a.Name(), "error", err)
		return false
	}
	return true
}

// ListModels returns the backend's models, or an empty slice on failure.
func (a *Adapter) ListModels(ctx context.Context, credential string) (models []string) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Warn("provider model listing panicked", "provider", a.Name(), "panic", r)
			models = []string{}
		}
	}()

	ctx, cancel := withTimeout(ctx, a.ListTimeout)
	defer cancel()

	models, err := a.provider.ListModels(ctx, credential)
	if err != nil {
		a.logger.Warn("list models failed", "provider", a.Name(), "error", err)
		return []string{}
	}
	if models == nil {
		return []string{}
	}
	return models
}

// Chat performs a blocking completion. Failures come back as text starting
// with ErrorPrefix.
func (a *Adapter) Chat(ctx context.Context, model string, messages []Message, credential string) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			err := panicError(r)
			a.logger.Error("provider chat panicked", "provider", a.Name(), "model", model, "panic", r)
			reply = ErrorText(err)
		}
	}()

	ctx, cancel := withTimeout(ctx, a.ChatTimeout)
	defer cancel()

	start := time.Now()
	reply, err := a.provider.Chat(ctx, model, protocolMessages(messages), credential)
	a.logger.Debug("provider response", "provider", a.Name(), "model", model, "elapsed", time.Since(start))
	if err != nil {
		a.logger.Warn("provider chat failed", "provider", a.Name(), "model", model, "error", err)
		return ErrorText(fmt.Errorf("%s: %w", a.Name(), err))
	}
	return reply
}

// ChatStream starts an incremental completion. A failure to start, or a
// failure mid-stream, surfaces as one final error fragment.
func (a *Adapter) ChatStream(ctx context.Context, model string, messages []Message, credential string) (stream Stream) {
	onErr := func(err error) {
		a.logger.Warn("provider stream failed", "provider", a.Name(), "model", model, "error", err)
	}
	defer func() {
		if r := recover(); r != nil {
			err := panicError(r)
			onErr(err)
			stream = errorStream(err)
		}
	}()

	ctx, cancel := withTimeout(ctx, a.StreamTimeout)
	inner, err := a.provider.Stream(ctx, model, protocolMessages(messages), credential)
	if err != nil {
		cancel()
		onErr(err)
		return errorStream(fmt.Errorf("%s: %w", a.Name(), err))
	}
	return &boundaryStream{inner: &cancelOnClose{Stream: inner, cancel: cancel}, onErr: onErr}
}

type cancelOnClose struct {
	Stream
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.Stream.Close()
	c.cancel()
	return err
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}
