package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicMaxTokens = 4096

// AnthropicProvider implements Provider using the Anthropic Messages API.
type AnthropicProvider struct {
	opts []option.RequestOption
}

func NewAnthropicProvider(opts ...option.RequestOption) *AnthropicProvider {
	return &AnthropicProvider{opts: opts}
}

func (p *AnthropicProvider) Name() string {
	return "Anthropic"
}

func (p *AnthropicProvider) client(apiKey string, extra ...option.RequestOption) anthropic.Client {
	opts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, p.opts...)
	opts = append(opts, extra...)
	return anthropic.NewClient(opts...)
}

func (p *AnthropicProvider) Probe(ctx context.Context, apiKey string) error {
	client := p.client(apiKey, option.WithMaxRetries(0))
	if _, err := client.Models.List(ctx, anthropic.ModelListParams{}); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func (p *AnthropicProvider) ListModels(ctx context.Context, apiKey string) ([]string, error) {
	client := p.client(apiKey)
	iter := client.Models.ListAutoPaging(ctx, anthropic.ModelListParams{})
	var ids []string
	for iter.Next() {
		ids = append(ids, iter.Current().ID)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("anthropic models API error: %w", err)
	}
	return ids, nil
}

func (p *AnthropicProvider) params(model string, messages []Message) anthropic.MessageNewParams {
	system, turns := splitSystem(messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: anthropicMaxTokens,
		Messages:  buildAnthropicMessages(turns),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params
}

func (p *AnthropicProvider) Chat(ctx context.Context, model string, messages []Message, apiKey string) (string, error) {
	client := p.client(apiKey)
	message, err := client.Messages.New(ctx, p.params(model, messages))
	if err != nil {
		return "", describeAnthropicError(err)
	}
	var b strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", errors.New("no text in response")
	}
	return b.String(), nil
}

func (p *AnthropicProvider) Stream(ctx context.Context, model string, messages []Message, apiKey string) (Stream, error) {
	return newFragmentStream(ctx, func(ctx context.Context, out chan<- Fragment) error {
		client := p.client(apiKey)
		stream := client.Messages.NewStreaming(ctx, p.params(model, messages))
		defer stream.Close()
		for stream.Next() {
			event := stream.Current()
			delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			text, ok := delta.Delta.AsAny().(anthropic.TextDelta)
			if !ok || text.Text == "" {
				continue
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- Fragment{Text: text.Text}:
			}
		}
		if err := stream.Err(); err != nil {
			return describeAnthropicError(err)
		}
		return nil
	}), nil
}

func buildAnthropicMessages(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
			continue
		}
		out = append(out, anthropic.NewUserMessage(block))
	}
	return out
}

func describeAnthropicError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.New("the request to Anthropic timed out, please try again")
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return errors.New("authentication with Anthropic failed, please check your API key")
		case 429:
			return errors.New("anthropic rate limit exceeded, please try again later")
		}
		return fmt.Errorf("anthropic API error (status %d)", apiErr.StatusCode)
	}
	return fmt.Errorf("anthropic API error: %w", err)
}
