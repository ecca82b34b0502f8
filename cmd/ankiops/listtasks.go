package main

import (
	"github.com/spf13/cobra"

	"github.com/ankiops/ankiops/internal/aitask"
	"github.com/ankiops/ankiops/internal/config"
)

var listTasksCmd = &cobra.Command{
	Use:   "list-tasks",
	Short: "List the ai.task.v1 definitions available to ai-task",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(flagCollectionDir); err != nil {
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

		type taskSummary struct {
			Name        string `json:"name"`
			NoteType    string `json:"note_type"`
			TargetField string `json:"target_field"`
			Provider    string `json:"provider"`
			Model       string `json:"model"`
		}
		summaries := make([]taskSummary, len(tasks))
		for i, t := range tasks {
			summaries[i] = taskSummary{Name: t.Name, NoteType: t.NoteType, TargetField: t.TargetField, Provider: t.Provider, Model: t.Model}
		}
		printSummary("available ai tasks", summaries)
		return nil
	},
}
