// Built-in model catalog and YAML catalog loading.

package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Model identifier constants for the built-in catalog (January 2026).
const (
	// ModelClaudeOpus45 is Claude Opus 4.5: flagship, best for coding/agents.
	ModelClaudeOpus45 = "claude-opus-4-5-20251101"
	// ModelClaudeSonnet4 is Claude Sonnet 4: balanced performance.
	ModelClaudeSonnet4 = "claude-sonnet-4-20250514"
	// ModelClaudeHaiku4 is Claude Haiku 4: fast and efficient.
	ModelClaudeHaiku4 = "claude-haiku-4-20250514"
	// ModelGPT52 is GPT-5.2: latest OpenAI flagship.
	ModelGPT52 = "gpt-5.2"
	// ModelGPT52Codex is GPT-5.2-Codex: agentic coding specialist.
	ModelGPT52Codex = "gpt-5.2-codex"
	// ModelGPT4o is GPT-4o: legacy multimodal model.
	ModelGPT4o = "gpt-4o"
	// ModelDeepSeekV32 is DeepSeek V3.2: latest general model.
	ModelDeepSeekV32 = "deepseek-v3.2"
	// ModelDeepSeekR1 is DeepSeek R1: reasoning model with chain-of-thought.
	ModelDeepSeekR1 = "deepseek-r1"
	// ModelGeminiPro3 is Gemini 3 Pro: advanced reasoning, 1M context.
	ModelGeminiPro3 = "gemini-3-pro"
	// ModelGeminiFlash3 is Gemini 3 Flash: speed optimized.
	ModelGeminiFlash3 = "gemini-3-flash"
)

// Builtin returns a registry populated with the default model catalog.
func Builtin() *Registry {
	r := New()
	for _, m := range builtinModels {
		r.Register(m)
	}
	return r
}

var builtinModels = []Model{
	{ID: ModelClaudeOpus45, DisplayName: "Claude Opus 4.5", Provider: "anthropic",
		Caps: CapTools | CapVision | CapThinking | CapCaching, ContextWindow: 200_000, MaxOutputTokens: 64_000},
	{ID: ModelClaudeSonnet4, DisplayName: "Claude Sonnet 4", Provider: "anthropic",
		Caps: CapTools | CapVision | CapThinking | CapCaching, ContextWindow: 200_000, MaxOutputTokens: 64_000},
	{ID: ModelClaudeHaiku4, DisplayName: "Claude Haiku 4", Provider: "anthropic",
		Caps: CapTools | CapVision | CapCaching, ContextWindow: 200_000, MaxOutputTokens: 32_000},
	{ID: ModelGPT52, DisplayName: "GPT-5.2", Provider: "openai",
		Caps: CapTools | CapVision | CapThinking | CapCaching, ContextWindow: 400_000, MaxOutputTokens: 128_000},
	{ID: ModelGPT52Codex, DisplayName: "GPT-5.2 Codex", Provider: "openai",
		Caps: CapTools | CapThinking | CapCaching, ContextWindow: 400_000, MaxOutputTokens: 128_000},
	{ID: ModelGPT4o, DisplayName: "GPT-4o", Provider: "openai",
		Caps: CapTools | CapVision, ContextWindow: 128_000, MaxOutputTokens: 16_384},
	{ID: ModelDeepSeekV32, DisplayName: "DeepSeek V3.2", Provider: "deepseek",
		Caps: CapTools | CapCaching, ContextWindow: 128_000, MaxOutputTokens: 8_192},
	{ID: ModelDeepSeekR1, DisplayName: "DeepSeek R1", Provider: "deepseek",
		Caps: CapThinking | CapCaching, ContextWindow: 128_000, MaxOutputTokens: 8_192},
	{ID: ModelGeminiPro3, DisplayName: "Gemini 3 Pro", Provider: "gemini",
		Caps: CapTools | CapVision | CapThinking | CapCaching, ContextWindow: 1_000_000, MaxOutputTokens: 65_536},
	{ID: ModelGeminiFlash3, DisplayName: "Gemini 3 Flash", Provider: "gemini",
		Caps: CapTools | CapVision | CapCaching, ContextWindow: 1_000_000, MaxOutputTokens: 65_536},
}

// catalogFile is the YAML shape of a model catalog file.
type catalogFile struct {
	Models []catalogModel `yaml:"models"`
}

type catalogModel struct {
	ID              string   `yaml:"id"`
	Name            string   `yaml:"name"`
	Provider        string   `yaml:"provider"`
	Capabilities    []string `yaml:"capabilities"`
	ContextWindow   int      `yaml:"context_window"`
	MaxOutputTokens int64    `yaml:"max_output_tokens"`
}

// ParseCatalog registers models from YAML catalog data into r.
func ParseCatalog(r *Registry, data []byte) error {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse model catalog: %w", err)
	}
	for i, cm := range file.Models {
		if cm.ID == "" || cm.Provider == "" {
			return fmt.Errorf("model catalog entry %d: id and provider are required", i)
		}
		caps, err := parseCaps(cm.Capabilities)
		if err != nil {
			return fmt.Errorf("model catalog entry %q: %w", cm.ID, err)
		}
		name := cm.Name
		if name == "" {
			name = cm.ID
		}
		r.Register(Model{
			ID:              cm.ID,
			DisplayName:     name,
			Provider:        cm.Provider,
			Caps:            caps,
			ContextWindow:   cm.ContextWindow,
			MaxOutputTokens: cm.MaxOutputTokens,
		})
	}
	return nil
}

// LoadCatalog registers models from a YAML file into r.
func LoadCatalog(r *Registry, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read model catalog: %w", err)
	}
	return ParseCatalog(r, data)
}

func parseCaps(names []string) (Capability, error) {
	var caps Capability
	for _, n := range names {
		switch n {
		case "tools":
			caps |= CapTools
		case "vision":
			caps |= CapVision
		case "thinking":
			caps |= CapThinking
		case "caching":
			caps |= CapCaching
		default:
			return 0, fmt.Errorf("unknown capability %q", n)
		}
	}
	return caps, nil
}
