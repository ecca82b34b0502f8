package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ankiops/ankiops/internal/aitask"
	"github.com/ankiops/ankiops/internal/ankierr"
	"github.com/ankiops/ankiops/internal/config"
)

var flagAITaskConcurrency int

var aiTaskCmd = &cobra.Command{
	Use:   "ai-task <name>",
	Short: "Run an AI field-editing task across every matching note (§9)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, ctx, cancel, err := openOrchestrator(cmd)
		if err != nil {
			return err
		}
		defer cancel()
		defer o.Close()
		if err := withStore(o); err != nil {
			return err
		}

		tasksDir := config.GetString(config.KeyAITasksDir)
		if tasksDir == "" {
			tasksDir = flagCollectionDir + "/ai-tasks"
		}
		tasks, err := aitask.LoadTasks(tasksDir)
		if err != nil {
			return err
		}
		var task *aitask.Task
		for _, t := range tasks {
			if t.Name == args[0] {
				task = t
				break
			}
		}
		if task == nil {
			return ankierr.Wrap(ankierr.ErrConfig, "resolve ai task", fmt.Errorf("no task named %q in %s", args[0], tasksDir))
		}

		provider, err := resolveProvider(task.Provider)
		if err != nil {
			return err
		}

		concurrency := flagAITaskConcurrency
		if concurrency <= 0 {
			concurrency = config.GetInt(config.KeyAIConcurrency)
		}
		result, err := o.RunAITask(ctx, task, provider, aitask.RunOptions{Concurrency: concurrency})
		if err != nil {
			return err
		}
		printSummary("ai task complete", result)
		return nil
	},
}

func resolveProvider(name string) (aitask.Provider, error) {
	switch name {
	case "", "anthropic":
		apiKey := config.GetString(config.KeyAnthropicAPIKey)
		return aitask.NewAnthropicProvider(apiKey, config.GetInt(config.KeyAIMaxRetries), config.GetDuration(config.KeyAITimeout))
	default:
		return nil, ankierr.Wrap(ankierr.ErrConfig, "resolve ai provider", fmt.Errorf("unknown provider %q", name))
	}
}

func init() {
	aiTaskCmd.Flags().IntVar(&flagAITaskConcurrency, "concurrency", 0, "Worker pool size (default: from config.yaml or 4)")
}
