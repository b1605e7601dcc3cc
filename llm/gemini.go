// Google Gemini adapter implementation using official google.golang.org/genai SDK.
//
// Information Hiding:
// - API authentication and client creation
// - System instruction handling via generation config
// - Streaming via the SDK's iter.Seq2, pulled one response at a time
// - Tool calls arrive whole (no fragments) and carry no vendor id; the
//   adapter mints one so ids stay unique within a request

package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// GeminiAdapter implements the Adapter interface for Google Gemini.
type GeminiAdapter struct {
	client  *genai.Client
	initErr error // Stores client initialization error for deferred reporting
}

// NewGeminiAdapter creates a new Gemini adapter.
// If client initialization fails, the error is stored and returned on first use.
func NewGeminiAdapter(apiKey string) *GeminiAdapter {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return &GeminiAdapter{
			initErr: fmt.Errorf("failed to initialize Gemini client: %w", err),
		}
	}
	return &GeminiAdapter{client: client}
}

// Name returns the provider name.
func (a *GeminiAdapter) Name() string {
	return "gemini"
}

// OpenStream starts a streaming generate-content call.
func (a *GeminiAdapter) OpenStream(ctx context.Context, req *Request, model string) (Stream, error) {
	if a.initErr != nil {
		return nil, NewError(a.Name(), ErrAuthInvalid, a.initErr)
	}

	contents, system := convertToGeminiContents(req.Messages)

	config := &genai.GenerateContentConfig{}
	if req.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.StopSequences) > 0 {
		config.StopSequences = req.StopSequences
	}
	if len(req.Tools) > 0 {
		config.Tools = convertToGeminiTools(req.Tools)
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	next, stop := iter.Pull2(a.client.Models.GenerateContentStream(ctx, model, contents, config))
	return &geminiStream{next: next, halt: stop}, nil
}

// geminiStream normalizes streamed generate-content responses.
type geminiStream struct {
	next func() (*genai.GenerateContentResponse, error, bool)
	halt func()

	queue []Event
	usage TokenUsage
	stop  StopReason
	done  bool
}

func (s *geminiStream) Next() (Event, error) {
	for {
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue = s.queue[1:]
			return ev, nil
		}
		if s.done {
			return nil, io.EOF
		}

		resp, err, ok := s.next()
		if !ok {
			if s.stop == "" {
				s.stop = StopEndTurn
			}
			s.push(Stop{Reason: s.stop})
			s.done = true
			continue
		}
		if err != nil {
			s.halt()
			return nil, classifyGemini(err)
		}
		s.translate(resp)
	}
}

func (s *geminiStream) Close() error {
	s.halt()
	return nil
}

func (s *geminiStream) push(ev Event) {
	s.queue = append(s.queue, ev)
}

func (s *geminiStream) translate(resp *genai.GenerateContentResponse) {
	if resp.UsageMetadata != nil {
		s.usage = s.usage.Merge(TokenUsage{
			InputTokens:     uint64(resp.UsageMetadata.PromptTokenCount),
			OutputTokens:    uint64(resp.UsageMetadata.CandidatesTokenCount),
			CacheReadTokens: uint64(resp.UsageMetadata.CachedContentTokenCount),
		})
		s.push(UsageUpdate{Usage: s.usage})
	}

	if len(resp.Candidates) == 0 {
		return
	}
	cand := resp.Candidates[0]

	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			switch {
			case part.FunctionCall != nil:
				// Gemini delivers calls whole; synthesize the fragment
				// protocol so downstream reassembly is uniform.
				id := uuid.NewString()
				args, err := json.Marshal(part.FunctionCall.Args)
				if err != nil {
					args = []byte("{}")
				}
				s.push(ToolCallStart{ID: id, Name: part.FunctionCall.Name})
				s.push(ToolCallDelta{ID: id, Fragment: string(args)})
				s.push(ToolCallEnd{ID: id})
			case part.Thought && part.Text != "":
				s.push(ThinkingDelta{Text: part.Text})
			case part.Text != "":
				s.push(TextDelta{Text: part.Text})
			}
		}
	}

	if cand.FinishReason != "" {
		s.stop = mapGeminiFinish(cand.FinishReason)
	}
}

func mapGeminiFinish(reason genai.FinishReason) StopReason {
	switch reason {
	case genai.FinishReasonStop:
		return StopEndTurn
	case genai.FinishReasonMaxTokens:
		return StopMaxTokens
	case genai.FinishReasonSafety, genai.FinishReasonRecitation,
		genai.FinishReasonBlocklist, genai.FinishReasonProhibitedContent:
		return StopContentFilter
	default:
		return StopEndTurn
	}
}

// convertToGeminiContents converts normalized messages to Gemini format.
// The system prompt is returned separately for the generation config.
func convertToGeminiContents(messages []Message) ([]*genai.Content, string) {
	var contents []*genai.Content
	var system string

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			system += msg.Text()
		case RoleUser, RoleTool:
			contents = append(contents, geminiContent(msg, genai.RoleUser))
		case RoleAssistant:
			contents = append(contents, geminiContent(msg, genai.RoleModel))
		}
	}
	return contents, system
}

func geminiContent(msg Message, role genai.Role) *genai.Content {
	content := &genai.Content{Role: string(role)}
	for _, part := range msg.Parts {
		switch {
		case part.Image != nil:
			// Gemini wants raw bytes where the normalized form carries base64.
			raw, err := base64.StdEncoding.DecodeString(part.Image.Data)
			if err != nil {
				raw = []byte(part.Image.Data)
			}
			content.Parts = append(content.Parts, &genai.Part{
				InlineData: &genai.Blob{
					MIMEType: part.Image.MediaType,
					Data:     raw,
				},
			})
		case part.ToolResult != nil:
			var result map[string]any
			if err := json.Unmarshal([]byte(part.ToolResult.Content), &result); err != nil || result == nil {
				result = map[string]any{"result": part.ToolResult.Content}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					Name:     part.ToolResult.ToolCallID,
					Response: result,
				},
			})
		case part.ToolUse != nil:
			var args map[string]any
			_ = jsonUnmarshalLoose(part.ToolUse.Arguments, &args)
			content.Parts = append(content.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					Name: part.ToolUse.Name,
					Args: args,
				},
			})
		case part.Text != "":
			content.Parts = append(content.Parts, &genai.Part{Text: part.Text})
		}
	}
	return content
}

// convertToGeminiTools converts tool definitions to Gemini format.
func convertToGeminiTools(tools []ToolDefinition) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	var declarations []*genai.FunctionDeclaration
	for _, t := range tools {
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  convertToGeminiSchema(t.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// convertToGeminiSchema recursively converts a parameter schema to Gemini
// format. Arrays get a default string items schema when unspecified, since
// Gemini rejects item-less arrays.
func convertToGeminiSchema(params map[string]any) *genai.Schema {
	schema := &genai.Schema{Type: genai.TypeObject}

	if t, ok := params["type"].(string); ok {
		schema.Type = mapToGeminiType(t)
	}
	schema.Required = schemaRequired(params)

	if props, ok := params["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema)
		for name, prop := range props {
			propMap, ok := prop.(map[string]any)
			if !ok {
				continue
			}
			schema.Properties[name] = convertGeminiProperty(propMap)
		}
	}
	return schema
}

func convertGeminiProperty(prop map[string]any) *genai.Schema {
	schema := &genai.Schema{}
	if t, ok := prop["type"].(string); ok {
		schema.Type = mapToGeminiType(t)
	}
	if d, ok := prop["description"].(string); ok {
		schema.Description = d
	}
	if schema.Type == genai.TypeArray {
		if items, ok := prop["items"].(map[string]any); ok {
			schema.Items = convertGeminiProperty(items)
		} else {
			schema.Items = &genai.Schema{Type: genai.TypeString}
		}
	}
	if schema.Type == genai.TypeObject {
		if props, ok := prop["properties"].(map[string]any); ok {
			schema.Properties = make(map[string]*genai.Schema)
			for name, p := range props {
				if pMap, ok := p.(map[string]any); ok {
					schema.Properties[name] = convertGeminiProperty(pMap)
				}
			}
		}
	}
	return schema
}

func mapToGeminiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "integer", "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

func classifyGemini(err error) *Error {
	var apierr genai.APIError
	if errors.As(err, &apierr) {
		return ClassifyHTTPStatus("gemini", apierr.Code, 0, err)
	}
	return Classify("gemini", err)
}

// Verify GeminiAdapter implements Adapter
var _ Adapter = (*GeminiAdapter)(nil)
