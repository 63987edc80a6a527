package llm

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/promptly-chat/promptly/internal/cache"
)

const providersMemoKey = "providers"

// errNothingFound keeps empty probe results out of the memo.
var errNothingFound = errors.New("nothing found")

// ModelCache persists model lists between runs.
type ModelCache interface {
	Read(provider string) (*cache.ModelCache, error)
	Write(provider string, models []string) error
	Clear(provider string) error
}

type diskModelCache struct{}

func (diskModelCache) Read(provider string) (*cache.ModelCache, error) {
	return cache.ReadModelCache(provider)
}

func (diskModelCache) Write(provider string, models []string) error {
	return cache.WriteModelCache(provider, models)
}

func (diskModelCache) Clear(provider string) error {
	return cache.ClearModelCache(provider)
}

// DiskModelCache stores model lists under the user cache directory.
func DiskModelCache() ModelCache {
	return diskModelCache{}
}

// CatalogOptions configures a Catalog.
type CatalogOptions struct {
	// TTL bounds how long probe results and model lists are reused. Zero
	// disables in-process caching.
	TTL time.Duration
	// Models, when set, keeps model lists across runs for cache.DefaultModelTTL.
	Models ModelCache
	Logger *slog.Logger
}

// Catalog answers "which providers and models can I use right now",
// reusing recent answers so interactive hosts do not re-probe on every
// keystroke.
type Catalog struct {
	prober    *Prober
	creds     Credentials
	disk      ModelCache
	logger    *slog.Logger
	providers *cache.Memo[[]string]
	models    *cache.Memo[[]string]
}

// NewCatalog wraps prober with caching.
func NewCatalog(prober *Prober, creds Credentials, opts CatalogOptions) *Catalog {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Catalog{
		prober:    prober,
		creds:     creds,
		disk:      opts.Models,
		logger:    opts.Logger,
		providers: cache.NewMemo[[]string](opts.TTL),
		models:    cache.NewMemo[[]string](opts.TTL),
	}
}

// Providers returns the available providers in registry order.
func (c *Catalog) Providers(ctx context.Context) []string {
	names, err := c.providers.Get(providersMemoKey, func() ([]string, error) {
		names := c.prober.AvailableProviders(ctx, c.creds)
		if len(names) == 0 {
			return names, errNothingFound
		}
		return names, nil
	})
	if err != nil {
		return []string{}
	}
	return append([]string(nil), names...)
}

// Models returns the models offered by provider, or an empty slice.
func (c *Catalog) Models(ctx context.Context, provider string) []string {
	provider = c.resolve(provider)
	key := strings.ToLower(provider)
	models, err := c.models.Get(key, func() ([]string, error) {
		if c.disk != nil {
			if cached, err := c.disk.Read(key); err == nil && cache.IsCacheValid(cached, cache.DefaultModelTTL) && len(cached.Models) > 0 {
				return cached.Models, nil
			}
		}
		models := c.prober.AvailableModels(ctx, provider, c.creds)
		if len(models) == 0 {
			return models, errNothingFound
		}
		if c.disk != nil {
			if err := c.disk.Write(key, models); err != nil {
				c.logger.Debug("failed to cache models", "provider", provider, "error", err)
			}
		}
		return models, nil
	})
	if err != nil {
		return []string{}
	}
	return append([]string(nil), models...)
}

// Refresh forgets cached answers. An empty provider drops everything held
// in memory; a named provider also clears its on-disk model list.
func (c *Catalog) Refresh(provider string) {
	if provider == "" {
		c.providers.Reset()
		c.models.Reset()
		return
	}
	key := strings.ToLower(c.resolve(provider))
	c.models.Forget(key)
	if c.disk != nil {
		if err := c.disk.Clear(key); err != nil {
			c.logger.Debug("failed to clear model cache", "provider", provider, "error", err)
		}
	}
}

// resolve maps provider to its registered spelling, ignoring case.
func (c *Catalog) resolve(provider string) string {
	for _, name := range c.prober.registry.Names() {
		if strings.EqualFold(name, provider) {
			return name
		}
	}
	return provider
}
