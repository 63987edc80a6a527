package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const openAIBaseURL = "https://api.openai.com/v1/"

// OpenAICompatProvider implements Provider for any backend speaking the
// OpenAI chat completions API.
type OpenAICompatProvider struct {
	name        string
	baseURL     string
	maxTokens   int64
	temperature float64
	// keep filters the model listing; nil keeps everything.
	keep func(id string) bool
	// clientOpts are appended after the defaults (tests inject transports).
	clientOpts []option.RequestOption
}

// NewOpenAICompatProvider creates a provider for baseURL shown as name.
func NewOpenAICompatProvider(name, baseURL string, opts ...option.RequestOption) *OpenAICompatProvider {
	if baseURL != "" && !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &OpenAICompatProvider{
		name:       name,
		baseURL:    baseURL,
		clientOpts: opts,
	}
}

// NewOpenAIProvider creates the OpenAI provider. Model listing is limited to
// chat-capable families.
func NewOpenAIProvider(opts ...option.RequestOption) *OpenAICompatProvider {
	p := NewOpenAICompatProvider("OpenAI", openAIBaseURL, opts...)
	p.keep = isOpenAIChatModel
	p.maxTokens = 1024
	p.temperature = 0.7
	return p
}

func isOpenAIChatModel(id string) bool {
	id = strings.ToLower(id)
	for _, prefix := range []string{"gpt", "chatgpt", "o1", "o3", "o4"} {
		if strings.HasPrefix(id, prefix) {
			return true
		}
	}
	return false
}

func (p *OpenAICompatProvider) Name() string {
	return p.name
}

func (p *OpenAICompatProvider) client(credential string, extra ...option.RequestOption) openai.Client {
	opts := []option.RequestOption{option.WithAPIKey(credential)}
	if p.baseURL != "" {
		opts = append(opts, option.WithBaseURL(p.baseURL))
	}
	opts = append(opts, p.clientOpts...)
	opts = append(opts, extra...)
	return openai.NewClient(opts...)
}

func (p *OpenAICompatProvider) Probe(ctx context.Context, credential string) error {
	client := p.client(credential, option.WithMaxRetries(0))
	page, err := client.Models.List(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	if page == nil || len(page.Data) == 0 {
		return errors.New("no models available")
	}
	return nil
}

func (p *OpenAICompatProvider) ListModels(ctx context.Context, credential string) ([]string, error) {
	client := p.client(credential)
	iter := client.Models.ListAutoPaging(ctx)
	var ids []string
	for iter.Next() {
		id := iter.Current().ID
		if p.keep != nil && !p.keep(id) {
			continue
		}
		ids = append(ids, id)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%s models API error: %w", strings.ToLower(p.name), err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (p *OpenAICompatProvider) params(model string, messages []Message) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: buildOpenAIMessages(messages),
	}
	if p.maxTokens > 0 {
		params.MaxTokens = openai.Int(p.maxTokens)
	}
	if p.temperature > 0 {
		params.Temperature = openai.Float(p.temperature)
	}
	return params
}

func (p *OpenAICompatProvider) Chat(ctx context.Context, model string, messages []Message, credential string) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("no messages provided")
	}
	client := p.client(credential)
	resp, err := client.Chat.Completions.New(ctx, p.params(model, messages))
	if err != nil {
		return "", describeOpenAIError(p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAICompatProvider) Stream(ctx context.Context, model string, messages []Message, credential string) (Stream, error) {
	if len(messages) == 0 {
		return nil, errors.New("no messages provided")
	}
	return newFragmentStream(ctx, func(ctx context.Context, out chan<- Fragment) error {
		client := p.client(credential)
		stream := client.Chat.Completions.NewStreaming(ctx, p.params(model, messages))
		defer stream.Close()
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			text := chunk.Choices[0].Delta.Content
			if text == "" {
				continue
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- Fragment{Text: text}:
			}
		}
		if err := stream.Err(); err != nil {
			return describeOpenAIError(p.name, err)
		}
		return nil
	}), nil
}

func buildOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

// describeOpenAIError maps transport failures onto the short messages users
// see in the transcript.
func describeOpenAIError(name string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("the request to %s timed out, please try again", name)
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return fmt.Errorf("authentication with %s failed, please check your API key", name)
		case 429:
			return fmt.Errorf("%s rate limit exceeded, please try again later", name)
		}
		return fmt.Errorf("%s API error (status %d): %s", name, apiErr.StatusCode, truncate(apiErr.Message, 200))
	}
	return fmt.Errorf("failed to reach %s: %w", name, err)
}
