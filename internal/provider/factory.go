package provider

import (
	"fmt"
	"strings"
)

// Settings selects and configures a provider.
type Settings struct {
	Kind       string
	APIKey     string
	BaseURL    string
	Model      string
	EmbedModel string
	CLIPath    string
	CLIArgs    []string
}

// New builds the provider named by s.Kind.
func New(s Settings) (Provider, error) {
	switch strings.ToLower(s.Kind) {
	case "gemini":
		return NewGeminiProvider(s.APIKey, s.Model, s.EmbedModel)
	case "openai":
		return NewOpenAIProvider(s.APIKey, s.BaseURL, s.Model, s.EmbedModel)
	case "ollama":
		return NewOllamaProvider(s.BaseURL, s.Model, s.EmbedModel)
	case "anthropic":
		p, err := NewAnthropicProvider(s.APIKey, s.Model)
		if err == nil && s.BaseURL != "" {
			p.SetBaseURL(s.BaseURL)
		}
		return p, err
	case "cli":
		return NewCLIProvider(s.CLIPath, s.CLIArgs)
	case "offline", "stub":
		return NewStubProvider(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", s.Kind)
	}
}
