package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPaths []string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "ai-gateway",
		Short: "Resilient proxy for generative AI calls",
		Long: `ai-gateway mediates every call to an external generative AI provider.

It wraps user questions in a fixed security prompt, guards the provider
with a circuit breaker and exposes:
  POST /api/ai/generate       authenticated question answering
  POST /api/ai/analyze-error  public error diagnosis
Running without a subcommand starts the server.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	root.PersistentFlags().StringSliceVar(&opts.configPaths, "config-dir", nil, "Directories searched for config.yaml (default ./config and .)")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newAskCmd())
	root.AddCommand(newAnalyzeCmd())

	return root
}
