package llm

import "github.com/openai/openai-go/option"

const deepseekBaseURL = "https://api.deepseek.com/"

// NewDeepseekProvider creates an OpenAICompatProvider preconfigured for Deepseek.
func NewDeepseekProvider(opts ...option.RequestOption) *OpenAICompatProvider {
	return NewOpenAICompatProvider("Deepseek", deepseekBaseURL, opts...)
}
