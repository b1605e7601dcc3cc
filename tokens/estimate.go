// Package tokens provides pre-flight token estimation and per-request usage
// accounting.
//
// Estimation is a best-effort heuristic used for admission and budgeting,
// not billed truth; it never blocks and never fails. Authoritative counts
// arrive later through provider usage updates and are accumulated by
// Accountant.
package tokens

import (
	"encoding/json"

	"github.com/loomlabs/loom/llm"
)

const (
	// charsPerToken is the usual English-text density across current
	// tokenizers; close enough for budgeting.
	charsPerToken = 4
	// tokensPerImage approximates a mid-size image attachment.
	tokensPerImage = 1600
	// tokensPerMessage covers per-message framing overhead.
	tokensPerMessage = 4
	// DefaultEstimate is the conservative fallback when a request cannot be
	// inspected at all.
	DefaultEstimate = 2048
)

// Estimate approximates the input token count of a request. Returns a
// conservative default rather than an error when the request is unusable.
func Estimate(req *llm.Request) int {
	if req == nil {
		return DefaultEstimate
	}

	total := 0
	for _, msg := range req.Messages {
		total += tokensPerMessage
		for _, part := range msg.Parts {
			switch {
			case part.Image != nil:
				total += tokensPerImage
			case part.ToolResult != nil:
				total += textTokens(part.ToolResult.Content)
			case part.ToolUse != nil:
				total += textTokens(part.ToolUse.Name) + textTokens(string(part.ToolUse.Arguments))
			default:
				total += textTokens(part.Text)
			}
		}
	}
	for _, tool := range req.Tools {
		total += textTokens(tool.Name) + textTokens(tool.Description)
		if raw, err := json.Marshal(tool.Parameters); err == nil {
			total += textTokens(string(raw))
		} else {
			total += DefaultEstimate / 8
		}
	}

	if total == 0 {
		return tokensPerMessage
	}
	return total
}

func textTokens(s string) int {
	return (len(s) + charsPerToken - 1) / charsPerToken
}
