package llm

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Prober checks backend availability. It holds no state between calls;
// callers decide how long a result stays fresh.
type Prober struct {
	registry *Registry
	logger   *slog.Logger
}

func NewProber(registry *Registry, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{registry: registry, logger: logger}
}

// AvailableProviders probes every registered provider concurrently and
// returns, in registration order, the names that reported success. A
// failing, panicking or slow provider only removes itself from the result.
func (p *Prober) AvailableProviders(ctx context.Context, creds Credentials) []string {
	entries := p.registry.Entries()
	ok := make([]bool, len(entries))

	var g errgroup.Group
	for i, entry := range entries {
		g.Go(func() error {
			ok[i] = p.probe(ctx, entry, creds)
			return nil
		})
	}
	// Tasks never return errors; Wait only joins them.
	_ = g.Wait()

	available := make([]string, 0, len(entries))
	for i, entry := range entries {
		if ok[i] {
			available = append(available, entry.Name)
		}
	}
	return available
}

func (p *Prober) probe(ctx context.Context, entry Entry, creds Credentials) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("error checking provider", "provider", entry.Name, "panic", r)
			ok = false
		}
	}()

	credential := creds.Get(entry.CredentialKey)
	if entry.RequiresCredential && credential == "" {
		return false
	}
	return entry.Adapter.Probe(ctx, credential)
}

// AvailableModels lists models for a single provider. Unknown providers and
// failures both yield an empty slice.
func (p *Prober) AvailableModels(ctx context.Context, provider string, creds Credentials) []string {
	entry, ok := p.registry.Lookup(provider)
	if !ok {
		p.logger.Warn("unknown provider", "provider", provider)
		return []string{}
	}
	credential := creds.Get(entry.CredentialKey)
	if entry.RequiresCredential && credential == "" {
		return []string{}
	}
	return entry.Adapter.ListModels(ctx, credential)
}
