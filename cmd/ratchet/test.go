package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/michiel/ratchet-sub007/internal/config"
	"github.com/michiel/ratchet-sub007/internal/domain"
	"github.com/michiel/ratchet-sub007/internal/errs"
	"github.com/michiel/ratchet-sub007/internal/executor"
	"github.com/michiel/ratchet-sub007/internal/registry"
)

// newTestCommand builds the one-shot task runner: load a single task
// directory straight off disk (no repository, no queue) and execute it
// once through the same GojaExecutor production uses, printing its
// ExecutionResult. taskDir must contain exactly one task subdirectory in
// the metadata.json/main.js/*.schema.json layout FilesystemSource expects.
func newTestCommand() *cobra.Command {
	var taskDir string
	var input string

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run one task from a local directory against an input and print its result",
		RunE: func(cmd *cobra.Command, args []string) error {
			if taskDir == "" {
				return errs.Configuration("--task-dir is required")
			}
			if !json.Valid([]byte(input)) {
				return errs.Configuration("--input is not valid JSON")
			}

			cfg, err := config.Load[config.RootConfig](cfgFile)
			if err != nil {
				return errs.Wrap(errs.CategoryConfiguration, err, "load configuration")
			}

			task, err := loadSingleTask(cmd.Context(), taskDir)
			if err != nil {
				return err
			}

			exec := executor.NewExecutor(cfg.Executor)
			result, err := exec.ExecuteTask(cmd.Context(), task, json.RawMessage(input))
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			if result.Status != executor.StatusSuccess {
				return errs.Server(nil, "task run did not succeed: %s", result.ErrorMessage)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&taskDir, "task-dir", "", "directory containing exactly one task (metadata.json, main.js, schemas)")
	cmd.Flags().StringVar(&input, "input", "{}", "JSON input to pass to the task")
	return cmd
}

// loadSingleTask discovers the one task directory under root and builds a
// throwaway TaskDefinition from it, the same conversion registry.Syncer
// applies before persisting, minus the repository round-trip.
func loadSingleTask(ctx context.Context, root string) (*domain.TaskDefinition, error) {
	discovered, err := registry.NewFilesystemSource(root, true).Discover(ctx)
	if err != nil {
		return nil, err
	}
	if len(discovered) != 1 {
		return nil, errs.Configuration("--task-dir %s must contain exactly one task, found %d", root, len(discovered))
	}
	d := discovered[0]

	task := domain.NewTaskDefinition(d.Name, d.Version, "test-cli")
	task.Description = d.Description
	task.Tags = d.Tags
	task.Script = d.Script
	task.InputSchema = d.InputSchema
	task.OutputSchema = d.OutputSchema
	task.Checksum = d.Checksum
	return task, nil
}
