// Command execution for CLI commands.
//
// Information Hiding:
// - Engine and adapter wiring hidden
// - Event stream rendering hidden
// - Usage database access hidden

package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/loomlabs/loom/config"
	"github.com/loomlabs/loom/engine"
	"github.com/loomlabs/loom/llm"
	"github.com/loomlabs/loom/registry"
	"github.com/loomlabs/loom/tokens"
	"github.com/loomlabs/loom/usagelog"
)

// Options holds CLI execution options.
type Options struct {
	Provider     string
	Model        string
	SystemPrompt string
	ShowThinking bool
	Verbose      bool
	Logger       zerolog.Logger
}

// runtime bundles everything a command needs to submit requests.
type runtime struct {
	settings config.Settings
	registry *registry.Registry
	engine   *engine.Engine
	recorder *usagelog.Recorder
	model    string
}

func (rt *runtime) close() {
	if rt.recorder != nil {
		rt.recorder.Close()
	}
}

// setup wires the registry, adapters, usage recorder, and engine from
// settings. Only providers with an API key configured get an adapter.
func setup(opts Options) (*runtime, error) {
	if opts.Provider == "" {
		return nil, fmt.Errorf("--provider is required for this command")
	}

	settings, err := config.New(opts.Provider)
	if err != nil {
		return nil, err
	}

	reg, err := buildRegistry(settings)
	if err != nil {
		return nil, err
	}

	adapters := make(map[string]llm.Adapter)
	for _, name := range config.SupportedProviders() {
		key, err := config.APIKeyFor(name)
		if err != nil {
			continue
		}
		pt, err := llm.ParseProviderType(name)
		if err != nil {
			continue
		}
		adapters[name] = pt.NewAdapter(key)
	}
	if _, ok := adapters[settings.LLM.Provider]; !ok {
		return nil, fmt.Errorf("no API key configured for provider %q", settings.LLM.Provider)
	}

	engineOpts := []engine.Option{
		engine.WithLogger(opts.Logger),
		engine.WithRetryPolicy(engine.RetryPolicy{
			MaxAttempts:       settings.Retry.MaxAttempts,
			BaseDelay:         settings.Retry.BaseDelay,
			MaxDelay:          settings.Retry.MaxDelay,
			Jitter:            settings.Retry.Jitter,
			RespectRetryAfter: settings.Retry.RespectRetryAfter,
		}),
	}

	var recorder *usagelog.Recorder
	if settings.UsageLog.Path != "" {
		recorder, err = usagelog.Open(settings.UsageLog.Path, opts.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open usage log: %w", err)
		}
		engineOpts = append(engineOpts, engine.WithObserver(recorder))
	}

	model := opts.Model
	if model == "" {
		model = settings.LLM.Model
	}

	return &runtime{
		settings: settings,
		registry: reg,
		engine:   engine.New(reg, adapters, engineOpts...),
		recorder: recorder,
		model:    model,
	}, nil
}

func buildRegistry(settings config.Settings) (*registry.Registry, error) {
	reg := registry.Builtin()
	if settings.CatalogPath != "" {
		if err := registry.LoadCatalog(reg, settings.CatalogPath); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Complete runs a single prompt and streams the response to stdout.
func Complete(ctx context.Context, prompt string, opts Options) error {
	rt, err := setup(opts)
	if err != nil {
		return err
	}
	defer rt.close()

	req := buildRequest(rt.settings, opts.SystemPrompt, nil, prompt)
	_, err = runRequest(ctx, rt, req, opts)
	return err
}

// Chat starts an interactive chat session against the configured model.
func Chat(ctx context.Context, opts Options) error {
	rt, err := setup(opts)
	if err != nil {
		return err
	}
	defer rt.close()

	fmt.Printf("Chat with %s. Type 'exit' to quit.\n\n", rt.model)

	var history []llm.Message
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		req := buildRequest(rt.settings, opts.SystemPrompt, history, input)

		fmt.Println()
		reply, err := runRequest(ctx, rt, req, opts)
		fmt.Println()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
			continue
		}

		history = append(history,
			llm.UserMessage(input),
			llm.AssistantMessage(reply),
		)
	}

	return scanner.Err()
}

// buildRequest assembles a request from the system prompt, prior turns, and
// the new user input.
func buildRequest(settings config.Settings, systemPrompt string, history []llm.Message, input string) *llm.Request {
	var messages []llm.Message
	if systemPrompt != "" {
		messages = append(messages, llm.SystemMessage(systemPrompt))
	}
	messages = append(messages, history...)
	messages = append(messages, llm.UserMessage(input))

	temp := settings.LLM.Temperature
	return &llm.Request{
		Messages:    messages,
		Temperature: &temp,
		MaxTokens:   settings.LLM.MaxTokens,
	}
}

// runRequest submits one request and renders its event stream. Returns the
// accumulated assistant text.
func runRequest(ctx context.Context, rt *runtime, req *llm.Request, opts Options) (string, error) {
	h, err := rt.engine.Submit(ctx, req, rt.model)
	if err != nil {
		return "", err
	}

	var reply strings.Builder
	var terminal *llm.Error
	thinking := false

	for ev := range h.Events() {
		switch v := ev.(type) {
		case llm.TextDelta:
			if thinking {
				fmt.Print("\n\n")
				thinking = false
			}
			fmt.Print(v.Text)
			reply.WriteString(v.Text)

		case llm.ThinkingDelta:
			if opts.ShowThinking {
				if !thinking {
					fmt.Print("[thinking] ")
					thinking = true
				}
				fmt.Print(v.Text)
			}

		case llm.ToolCall:
			fmt.Printf("\n[tool call: %s(%s)]\n", v.Name, string(v.Arguments))

		case llm.StatusUpdate:
			if opts.Verbose {
				fmt.Fprintf(os.Stderr, "[%s, attempt %d]\n", v.State, v.Attempt)
			}

		case llm.UsageUpdate:
			// Rendered in the summary after Stop.

		case llm.Stop:
			if opts.Verbose {
				usage := h.Usage()
				fmt.Fprintf(os.Stderr, "\n[%s: %d in / %d out tokens, ~$%.4f]\n",
					v.Reason, usage.InputTokens, usage.OutputTokens,
					tokens.Cost(rt.model, usage))
			}

		case *llm.Error:
			if v.Kind == llm.ErrToolCallInvalid {
				fmt.Fprintf(os.Stderr, "\n[invalid tool call %s: %v]\n", v.ToolCallID, v.Err)
				continue
			}
			terminal = v
		}
	}

	if terminal != nil {
		return reply.String(), terminal
	}
	if err := h.Err(); err != nil {
		return reply.String(), err
	}
	return reply.String(), nil
}

// ListModels prints the model catalog, optionally filtered by provider.
func ListModels(provider string, opts Options) error {
	settings := config.Settings{CatalogPath: os.Getenv("LOOM_MODEL_CATALOG")}
	reg, err := buildRegistry(settings)
	if err != nil {
		return err
	}

	models := reg.List(provider)
	if len(models) == 0 {
		fmt.Println("No models found.")
		return nil
	}

	fmt.Println("Available models:")
	fmt.Println()
	for _, m := range models {
		fmt.Printf("  %s (%s)\n", m.ID, m.Provider)
		fmt.Printf("    %s\n", m.DisplayName)
		if opts.Verbose {
			fmt.Printf("    context: %d tokens, max output: %d tokens\n", m.ContextWindow, m.MaxOutputTokens)
			fmt.Printf("    capabilities: %s\n", capString(m))
		}
		fmt.Println()
	}
	return nil
}

func capString(m registry.Model) string {
	var caps []string
	if m.Supports(registry.CapTools) {
		caps = append(caps, "tools")
	}
	if m.Supports(registry.CapVision) {
		caps = append(caps, "vision")
	}
	if m.Supports(registry.CapThinking) {
		caps = append(caps, "thinking")
	}
	if m.Supports(registry.CapCaching) {
		caps = append(caps, "caching")
	}
	if len(caps) == 0 {
		return "none"
	}
	return strings.Join(caps, ", ")
}

// ShowUsage prints the most recent request records from the usage database.
func ShowUsage(ctx context.Context, limit int, opts Options) error {
	path := os.Getenv("LOOM_USAGE_DB")
	if path == "" {
		return fmt.Errorf("LOOM_USAGE_DB is not set; usage recording is disabled")
	}

	recorder, err := usagelog.Open(path, opts.Logger)
	if err != nil {
		return fmt.Errorf("failed to open usage log: %w", err)
	}
	defer recorder.Close()

	records, err := recorder.RecentRequests(ctx, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No requests recorded.")
		return nil
	}

	var totalCost float64
	for _, rec := range records {
		started := time.Unix(rec.StartedAt, 0).Format(time.RFC3339)
		cost := tokens.Cost(rec.Model, rec.Usage)
		totalCost += cost
		fmt.Printf("%s  %-10s %-28s %-10s %6d in / %6d out  $%.4f\n",
			started, rec.Provider, rec.Model, rec.State,
			rec.Usage.InputTokens, rec.Usage.OutputTokens, cost)
	}
	fmt.Printf("\n%d requests, ~$%.4f total\n", len(records), totalCost)
	return nil
}
