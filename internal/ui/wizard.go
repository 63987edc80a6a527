package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/promptly-chat/promptly/internal/config"
)

// SelectProvider asks the user to pick one of the available providers.
func SelectProvider(providers []string) (string, error) {
	if len(providers) == 0 {
		return "", fmt.Errorf("no providers available")
	}
	var selected string
	options := make([]huh.Option[string], 0, len(providers))
	for _, p := range providers {
		options = append(options, huh.NewOption(p, p))
	}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select a provider").
				Options(options...).
				Value(&selected),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	return selected, nil
}

// SelectModel asks the user to pick a model. Long catalogs are filterable.
func SelectModel(provider string, models []string) (string, error) {
	if len(models) == 0 {
		return "", fmt.Errorf("no models available for %s", provider)
	}
	var selected string
	options := make([]huh.Option[string], 0, len(models))
	for _, m := range models {
		options = append(options, huh.NewOption(m, m))
	}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(fmt.Sprintf("Select a %s model", provider)).
				Options(options...).
				Filtering(len(models) > 10).
				Height(min(len(models)+2, 15)).
				Value(&selected),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	return selected, nil
}

// credentialPrompt describes the input shown for one credential key.
type credentialPrompt struct {
	key         string
	title       string
	placeholder string
}

var credentialPrompts = []credentialPrompt{
	{key: "openai", title: "OpenAI API key", placeholder: "sk-..."},
	{key: "anthropic", title: "Anthropic API key", placeholder: "sk-ant-..."},
	{key: "gemini", title: "Gemini API key", placeholder: "AIza..."},
	{key: "mistral", title: "Mistral API key", placeholder: ""},
	{key: "deepseek", title: "Deepseek API key", placeholder: "sk-..."},
	{key: "ollama", title: "Ollama port", placeholder: "11434"},
}

// RunSetupWizard walks the user through credentials and chat settings,
// starting from existing values, and returns the edited copy. Keys may be
// literal secrets or references such as op://vault/item/field or ${VAR}.
func RunSetupWizard(existing *config.Config) (*config.Config, error) {
	cfg := *existing
	cfg.APIKeys = make(map[string]string, len(existing.APIKeys))
	for k, v := range existing.APIKeys {
		cfg.APIKeys[k] = v
	}

	values := make([]string, len(credentialPrompts))
	keyFields := make([]huh.Field, 0, len(credentialPrompts))
	for i, p := range credentialPrompts {
		values[i] = cfg.APIKeys[p.key]
		input := huh.NewInput().
			Title(p.title).
			Description(fmt.Sprintf("leave empty to use $%s", config.EnvFallbacks[p.key])).
			Placeholder(p.placeholder).
			Value(&values[i])
		if p.key != "ollama" {
			input = input.EchoMode(huh.EchoModePassword)
		}
		keyFields = append(keyFields, input)
	}

	backend := cfg.History.Backend
	if backend == "" {
		backend = "json"
	}
	streaming := cfg.AppSettings.UseStreaming

	form := huh.NewForm(
		huh.NewGroup(keyFields...).
			Title("Credentials"),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Stream replies as they are generated?").
				Value(&streaming),
			huh.NewSelect[string]().
				Title("Where should chat history be stored?").
				Options(
					huh.NewOption("JSON file", "json"),
					huh.NewOption("SQLite database", "sqlite"),
					huh.NewOption("Nowhere (memory only)", "memory"),
				).
				Value(&backend),
		).Title("Chat"),
	)
	if err := form.Run(); err != nil {
		return nil, err
	}

	for i, p := range credentialPrompts {
		if v := strings.TrimSpace(values[i]); v != "" {
			cfg.APIKeys[p.key] = v
		} else {
			delete(cfg.APIKeys, p.key)
		}
	}
	cfg.AppSettings.UseStreaming = streaming
	cfg.History.Backend = backend
	return &cfg, nil
}
