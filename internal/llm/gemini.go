package llm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider implements Provider using the Google Gen AI SDK.
type GeminiProvider struct {
	// baseURL overrides the API endpoint; empty uses the SDK default.
	baseURL string
}

func NewGeminiProvider() *GeminiProvider {
	return &GeminiProvider{}
}

// NewGeminiProviderWithBaseURL points the provider at another endpoint.
func NewGeminiProviderWithBaseURL(baseURL string) *GeminiProvider {
	return &GeminiProvider{baseURL: baseURL}
}

func (p *GeminiProvider) Name() string {
	return "Gemini"
}

func (p *GeminiProvider) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini API key is missing")
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if p.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: p.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return client, nil
}

func (p *GeminiProvider) Probe(ctx context.Context, apiKey string) error {
	client, err := p.client(ctx, apiKey)
	if err != nil {
		return err
	}
	if _, err := client.Models.List(ctx, &genai.ListModelsConfig{PageSize: 1}); err != nil {
		return describeGeminiError(err)
	}
	return nil
}

func (p *GeminiProvider) ListModels(ctx context.Context, apiKey string) ([]string, error) {
	client, err := p.client(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	var ids []string
	for model, err := range client.Models.All(ctx) {
		if err != nil {
			return nil, describeGeminiError(err)
		}
		if len(model.SupportedActions) > 0 && !slices.Contains(model.SupportedActions, "generateContent") {
			continue
		}
		ids = append(ids, strings.TrimPrefix(model.Name, "models/"))
	}
	return ids, nil
}

func (p *GeminiProvider) Chat(ctx context.Context, model string, messages []Message, apiKey string) (string, error) {
	client, err := p.client(ctx, apiKey)
	if err != nil {
		return "", err
	}
	contents, config := buildGeminiContents(messages)
	resp, err := client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", describeGeminiError(err)
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("empty response")
	}
	return text, nil
}

func (p *GeminiProvider) Stream(ctx context.Context, model string, messages []Message, apiKey string) (Stream, error) {
	client, err := p.client(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	contents, config := buildGeminiContents(messages)
	return newFragmentStream(ctx, func(ctx context.Context, out chan<- Fragment) error {
		for resp, err := range client.Models.GenerateContentStream(ctx, model, contents, config) {
			if err != nil {
				return describeGeminiError(err)
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- Fragment{Text: text}:
			}
		}
		return nil
	}), nil
}

// buildGeminiContents maps the conversation onto Gemini roles; system turns
// become the system instruction.
func buildGeminiContents(messages []Message) ([]*genai.Content, *genai.GenerateContentConfig) {
	system, turns := splitSystem(messages)
	contents := make([]*genai.Content, 0, len(turns))
	for _, msg := range turns {
		role := genai.Role(genai.RoleUser)
		if msg.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	var config *genai.GenerateContentConfig
	if system != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		}
	}
	return contents, config
}

func describeGeminiError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.New("the request to Gemini timed out, please try again")
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401, 403:
			return errors.New("authentication with Gemini failed, please check your API key")
		case 429:
			return errors.New("gemini rate limit exceeded, please try again later")
		}
		return fmt.Errorf("gemini API error (status %d): %s", apiErr.Code, truncate(apiErr.Message, 200))
	}
	return fmt.Errorf("gemini API error: %w", err)
}
