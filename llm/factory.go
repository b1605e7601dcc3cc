// Adapter factory - ergonomic construction of provider adapters.
//
// Quick Start:
//
//	// Read the API key from the provider's environment variable
//	claude, err := llm.ProviderAnthropic.FromEnv()
//
//	// Explicit key
//	gpt := llm.ProviderOpenAI.NewAdapter("sk-...")
//
//	// From a configuration string
//	p, err := llm.ParseProviderType("gemini")

package llm

import (
	"fmt"
	"os"
	"strings"
)

// ProviderType represents supported LLM providers.
type ProviderType int

const (
	// ProviderOpenAI is the OpenAI provider (GPT models).
	ProviderOpenAI ProviderType = iota
	// ProviderAnthropic is the Anthropic provider (Claude models).
	ProviderAnthropic
	// ProviderDeepSeek is the DeepSeek provider.
	ProviderDeepSeek
	// ProviderGemini is the Google Gemini provider.
	ProviderGemini
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	switch p {
	case ProviderOpenAI:
		return "openai"
	case ProviderAnthropic:
		return "anthropic"
	case ProviderDeepSeek:
		return "deepseek"
	case ProviderGemini:
		return "gemini"
	default:
		return "unknown"
	}
}

// EnvVar returns the environment variable name for this provider's API key.
func (p ProviderType) EnvVar() string {
	switch p {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderDeepSeek:
		return "DEEPSEEK_API_KEY"
	case ProviderGemini:
		return "GEMINI_API_KEY"
	default:
		return ""
	}
}

// ParseProviderType parses a provider from string (case-insensitive).
func ParseProviderType(s string) (ProviderType, error) {
	switch strings.ToLower(s) {
	case "openai", "gpt":
		return ProviderOpenAI, nil
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	case "deepseek":
		return ProviderDeepSeek, nil
	case "gemini", "google":
		return ProviderGemini, nil
	default:
		return 0, fmt.Errorf("unknown provider: %s", s)
	}
}

// AllProviders lists every supported provider type.
func AllProviders() []ProviderType {
	return []ProviderType{ProviderOpenAI, ProviderAnthropic, ProviderDeepSeek, ProviderGemini}
}

// NewAdapter creates the adapter for this provider with an explicit API key.
func (p ProviderType) NewAdapter(apiKey string) Adapter {
	switch p {
	case ProviderOpenAI:
		return NewOpenAIAdapter(apiKey)
	case ProviderAnthropic:
		return NewAnthropicAdapter(apiKey)
	case ProviderDeepSeek:
		return NewDeepSeekAdapter(apiKey)
	case ProviderGemini:
		return NewGeminiAdapter(apiKey)
	default:
		return nil
	}
}

// FromEnv creates the adapter, reading the API key from the environment.
func (p ProviderType) FromEnv() (Adapter, error) {
	envVar := p.EnvVar()
	apiKey := os.Getenv(envVar)
	if apiKey == "" {
		return nil, fmt.Errorf("%s: %s environment variable not set", p, envVar)
	}
	return p.NewAdapter(apiKey), nil
}
