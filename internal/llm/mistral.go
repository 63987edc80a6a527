package llm

import "github.com/openai/openai-go/option"

const mistralBaseURL = "https://api.mistral.ai/v1/"

// NewMistralProvider creates a Mistral provider using its OpenAI-compatible API.
func NewMistralProvider(opts ...option.RequestOption) *OpenAICompatProvider {
	return NewOpenAICompatProvider("Mistral", mistralBaseURL, opts...)
}
