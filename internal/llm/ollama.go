package llm

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/openai/openai-go/option"
)

// DefaultOllamaPort is used when no port is configured.
const DefaultOllamaPort = "11434"

// OllamaProvider talks to a locally hosted Ollama server through its
// OpenAI-compatible endpoint. The credential is the port number.
type OllamaProvider struct {
	host string
	opts []option.RequestOption
}

// NewOllamaProvider creates a provider for Ollama on localhost.
func NewOllamaProvider(opts ...option.RequestOption) *OllamaProvider {
	return &OllamaProvider{host: "localhost", opts: opts}
}

// NewOllamaProviderWithHost targets an Ollama server on another host.
func NewOllamaProviderWithHost(host string, opts ...option.RequestOption) *OllamaProvider {
	return &OllamaProvider{host: host, opts: opts}
}

func (p *OllamaProvider) Name() string {
	return "Ollama"
}

func (p *OllamaProvider) endpoint(port string) (*OpenAICompatProvider, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = DefaultOllamaPort
	}
	if n, err := strconv.Atoi(port); err != nil || n <= 0 || n > 65535 {
		return nil, fmt.Errorf("invalid Ollama port %q", port)
	}
	baseURL := fmt.Sprintf("http://%s:%s/v1/", p.host, port)
	compat := NewOpenAICompatProvider("Ollama", baseURL, p.opts...)
	compat.maxTokens = 1024
	compat.temperature = 0.7
	return compat, nil
}

func (p *OllamaProvider) Probe(ctx context.Context, port string) error {
	compat, err := p.endpoint(port)
	if err != nil {
		return err
	}
	return compat.Probe(ctx, "ollama")
}

func (p *OllamaProvider) ListModels(ctx context.Context, port string) ([]string, error) {
	compat, err := p.endpoint(port)
	if err != nil {
		return nil, err
	}
	return compat.ListModels(ctx, "ollama")
}

func (p *OllamaProvider) Chat(ctx context.Context, model string, messages []Message, port string) (string, error) {
	compat, err := p.endpoint(port)
	if err != nil {
		return "", err
	}
	return compat.Chat(ctx, model, messages, "ollama")
}

func (p *OllamaProvider) Stream(ctx context.Context, model string, messages []Message, port string) (Stream, error) {
	compat, err := p.endpoint(port)
	if err != nil {
		return nil, err
	}
	return compat.Stream(ctx, model, messages, "ollama")
}
