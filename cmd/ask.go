package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/angeloszaimis/ai-gateway/pkg/client"
	"github.com/angeloszaimis/ai-gateway/pkg/logger"
)

const unavailableMessage = "AI service temporarily unavailable, try again later"

type clientOptions struct {
	url     string
	apiKey  string
	timeout time.Duration
	verbose bool
}

func (o *clientOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.url, "url", "http://localhost:8080", "Gateway base URL")
	cmd.Flags().DurationVar(&o.timeout, "timeout", client.DefaultTimeout, "Request timeout")
	cmd.Flags().BoolVarP(&o.verbose, "verbose", "v", false, "Log breaker decisions to stderr")
}

func (o *clientOptions) build(cmd *cobra.Command) (*client.Client, error) {
	level := "error"
	if o.verbose {
		level = "debug"
	}

	return client.New(o.url,
		client.WithAPIKey(o.apiKey),
		client.WithTimeout(o.timeout),
		client.WithLogger(logger.New(logger.Options{Level: level, Environment: "dev", Output: cmd.ErrOrStderr()})),
	)
}

func unavailable(err error) error {
	if client.IsUnavailable(err) {
		return fmt.Errorf("%s: %w", unavailableMessage, err)
	}
	return err
}

func newAskCmd() *cobra.Command {
	opts := &clientOptions{}
	var contextDescription string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the gateway a question through the guarded client",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.build(cmd)
			if err != nil {
				return err
			}

			answer, err := c.Generate(commandContext(cmd), strings.Join(args, " "), contextDescription, nil)
			if err != nil {
				return unavailable(err)
			}

			out := cmd.OutOrStdout()
			if answer.PolicyRejection {
				fmt.Fprintln(out, "[policy rejection]")
			}
			fmt.Fprintln(out, answer.Text)
			return nil
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVar(&opts.apiKey, "api-key", os.Getenv("AI_GATEWAY_API_KEY"), "Gateway API key (or set AI_GATEWAY_API_KEY)")
	cmd.Flags().StringVar(&contextDescription, "context", "", "Advisor context, e.g. \"Penasihat keuangan\"")
	_ = cmd.MarkFlagRequired("context")

	return cmd
}

func newAnalyzeCmd() *cobra.Command {
	opts := &clientOptions{}
	var stackTrace string

	cmd := &cobra.Command{
		Use:   "analyze [error message]",
		Short: "Ask the gateway to diagnose an error message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.build(cmd)
			if err != nil {
				return err
			}

			analysis, err := c.AnalyzeError(commandContext(cmd), strings.Join(args, " "), stackTrace)
			if err != nil {
				return unavailable(err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Solution:\n%s\n\nLocation:\n%s\n", analysis.Solution, analysis.Location)
			return nil
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVar(&stackTrace, "stack", "", "Stack trace accompanying the error")

	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

