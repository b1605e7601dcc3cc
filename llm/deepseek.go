// DeepSeek adapter using the OpenAI-compatible API surface.
//
// Information Hiding:
// - Uses OpenAI wire protocol with a different base URL
// - Reasoning output (deepseek-reasoner) arrives via the reasoning delta
//   field and maps to ThinkingDelta

package llm

const deepseekBaseURL = "https://api.deepseek.com/v1"

// NewDeepSeekAdapter creates a new DeepSeek adapter.
func NewDeepSeekAdapter(apiKey string) *OpenAIAdapter {
	return NewOpenAICompatibleAdapter("deepseek", apiKey, deepseekBaseURL)
}
