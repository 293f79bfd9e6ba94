package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"qline/internal/api"
)

func newStepCommand(ctx *commandContext) *cobra.Command {
	stepCmd := &cobra.Command{
		Use:   "step",
		Short: "Record operator step data for a stage",
	}

	stepCmd.AddCommand(newStepRecordCommand(ctx))
	stepCmd.AddCommand(newStepListCommand(ctx))

	return stepCmd
}

func newStepRecordCommand(ctx *commandContext) *cobra.Command {
	var (
		notes        string
		duration     int
		checklistRaw string
		valuesRaw    string
		measureRaw   string
		photos       []string
	)

	cmd := &cobra.Command{
		Use:   "record <qlid> <state> <step-code>",
		Short: "Record or replace step data for (job, state, step)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *api.JobService) error {
				req := api.StepRequest{
					StateCode:       args[1],
					StepCode:        args[2],
					Notes:           notes,
					PhotoRefs:       photos,
					DurationSeconds: duration,
					Actor:           ctx.actor(),
				}
				if err := decodeFlagJSON(checklistRaw, &req.Checklist); err != nil {
					return fmt.Errorf("--checklist: %w", err)
				}
				if err := decodeFlagJSON(valuesRaw, &req.Values); err != nil {
					return fmt.Errorf("--values: %w", err)
				}
				if err := decodeFlagJSON(measureRaw, &req.Measurements); err != nil {
					return fmt.Errorf("--measurements: %w", err)
				}

				view, err := svc.RecordStep(cmd.Context(), args[0], req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s/%s for %s\n", view.StateCode, view.StepCode, args[0])
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&notes, "notes", "", "Free-form notes")
	cmd.Flags().IntVar(&duration, "duration", 0, "Step duration in seconds")
	cmd.Flags().StringVar(&checklistRaw, "checklist", "", "Checklist results as JSON, e.g. '{\"wiped\":true}'")
	cmd.Flags().StringVar(&valuesRaw, "values", "", "Recorded values as JSON")
	cmd.Flags().StringVar(&measureRaw, "measurements", "", "Measurements as JSON")
	cmd.Flags().StringSliceVar(&photos, "photo", nil, "Photo reference (repeatable)")
	return cmd
}

func newStepListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list <qlid>",
		Short: "List recorded steps for a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *api.JobService) error {
				bundle, err := svc.Report(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if len(bundle.Steps) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No steps recorded")
					return nil
				}
				rows := make([][]string, 0, len(bundle.Steps))
				for _, step := range bundle.Steps {
					rows = append(rows, []string{
						step.StateCode,
						step.StepCode,
						step.Actor,
						fmt.Sprintf("%d", step.DurationSeconds),
						step.CompletedAt,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"State", "Step", "Actor", "Seconds", "Completed"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
}

func decodeFlagJSON[T any](raw string, target *T) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), target)
}
