package main

import (
	"github.com/spf13/cobra"
)

// knownProviders enumerates the provider names resolveProvider accepts.
// A second implementation joining this engine adds its name here and to
// resolveProvider's switch.
var knownProviders = []string{"anthropic"}

var listProvidersCmd = &cobra.Command{
	Use:   "list-providers",
	Short: "List the AI providers ai-task can call through",
	RunE: func(cmd *cobra.Command, args []string) error {
		printSummary("available ai providers", knownProviders)
		return nil
	},
}
