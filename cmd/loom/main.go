// Package main provides the loom CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/loomlabs/loom/cli"
)

var (
	// Global flags
	provider     string
	model        string
	systemPrompt string
	showThinking bool
	verbose      bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "loom",
		Short: "Streaming LLM completions across providers",
		Long: `A CLI for running streaming completions through a provider-agnostic
request engine with retries, rate-limit handling, and usage accounting.

Providers: openai, anthropic, deepseek, gemini.`,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "", "LLM provider (openai, anthropic, deepseek, gemini)")
	rootCmd.PersistentFlags().StringVarP(&model, "model", "m", "", "Model id (defaults to the provider's configured model)")
	rootCmd.PersistentFlags().StringVar(&systemPrompt, "system", "", "System prompt")
	rootCmd.PersistentFlags().BoolVar(&showThinking, "thinking", false, "Show model reasoning output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show verbose output")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(usageCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func options() cli.Options {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	return cli.Options{
		Provider:     provider,
		Model:        model,
		SystemPrompt: systemPrompt,
		ShowThinking: showThinking,
		Verbose:      verbose,
		Logger:       logger,
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [prompt]",
		Short: "Run a single prompt and stream the response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Complete(context.Background(), args[0], options())
		},
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Chat(context.Background(), options())
		},
	}
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the model catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ListModels(provider, options())
		},
	}
}

func usageCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show recent request usage and cost",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ShowUsage(context.Background(), limit, options())
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum records to show")

	return cmd
}
