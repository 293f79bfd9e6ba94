package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"qline/internal/api"
)

func newJobCommand(ctx *commandContext) *cobra.Command {
	jobCmd := &cobra.Command{
		Use:   "job",
		Short: "Create and move jobs through the pipeline",
	}

	jobCmd.AddCommand(newJobAddCommand(ctx))
	jobCmd.AddCommand(newJobListCommand(ctx))
	jobCmd.AddCommand(newJobShowCommand(ctx))
	jobCmd.AddCommand(newJobAdvanceCommand(ctx))
	jobCmd.AddCommand(newJobAssignCommand(ctx))
	jobCmd.AddCommand(newJobEscalateCommand(ctx))
	jobCmd.AddCommand(newJobBlockCommand(ctx))
	jobCmd.AddCommand(newJobResolveCommand(ctx, "resolve", "Return an escalated or blocked job to the main path"))
	jobCmd.AddCommand(newJobResolveCommand(ctx, "override", "Force a job to a chosen state (supervisor action)"))
	jobCmd.AddCommand(newJobReportCommand(ctx))

	return jobCmd
}

func newJobAddCommand(ctx *commandContext) *cobra.Command {
	var req api.IntakeRequest

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Intake a new item and mint its identifier",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *api.JobService) error {
				req.Actor = ctx.actor()
				view, err := svc.Intake(cmd.Context(), req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s)\n", view.QLID, view.StateLabel)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&req.PalletRef, "pallet", "", "Source pallet reference")
	cmd.Flags().StringVar(&req.Category, "category", "", "Device category")
	cmd.Flags().StringVar(&req.Manufacturer, "manufacturer", "", "Device manufacturer")
	cmd.Flags().StringVar(&req.Model, "model", "", "Device model")
	cmd.Flags().IntVar(&req.Priority, "priority", 0, "Scheduling priority")
	cmd.Flags().IntVar(&req.MaxAttempts, "max-attempts", 0, "Final-test attempt limit (0 uses the configured default)")
	return cmd
}

func newJobListCommand(ctx *commandContext) *cobra.Command {
	var stateFilters []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, optionally filtered by state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *api.JobService) error {
				states, err := parseStates(stateFilters)
				if err != nil {
					return err
				}
				views, err := svc.List(cmd.Context(), states...)
				if err != nil {
					return err
				}
				if len(views) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs found")
					return nil
				}
				rows := make([][]string, 0, len(views))
				for _, view := range views {
					rows = append(rows, []string{
						view.QLID,
						view.StateLabel,
						view.AssignedTech,
						fmt.Sprintf("%d/%d", view.AttemptCount, view.MaxAttempts),
						view.Category,
						view.Model,
					})
				}
				out := renderTable(
					[]string{"QLID", "State", "Tech", "Attempts", "Category", "Model"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&stateFilters, "state", nil, "Filter by state (repeatable)")
	return cmd
}

func newJobShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <qlid>",
		Short: "Show one job with its audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *api.JobService) error {
				view, err := svc.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s  %s\n", view.QLID, view.StateLabel)
				if view.Category != "" || view.Model != "" {
					fmt.Fprintf(out, "Device:    %s %s %s\n", view.Manufacturer, view.Model, view.Category)
				}
				if view.PalletRef != "" {
					fmt.Fprintf(out, "Pallet:    %s\n", view.PalletRef)
				}
				if view.AssignedTech != "" {
					fmt.Fprintf(out, "Tech:      %s\n", view.AssignedTech)
				}
				fmt.Fprintf(out, "Attempts:  %d/%d\n", view.AttemptCount, view.MaxAttempts)
				if view.FinalGrade != "" {
					fmt.Fprintf(out, "Grade:     %s (warranty: %s)\n", view.FinalGrade, warrantyText(view.WarrantyEligible))
				}
				if view.Disposition != "" {
					fmt.Fprintf(out, "Disposition: %s\n", view.Disposition)
				}
				if len(view.NextActions) > 0 {
					fmt.Fprintf(out, "Next:      %s\n", strings.Join(view.NextActions, ", "))
				}

				history, err := svc.History(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(history))
				for _, tr := range history {
					rows = append(rows, []string{
						fmt.Sprintf("%d", tr.Seq),
						tr.CreatedAt,
						tr.FromState,
						tr.ToState,
						tr.Action,
						tr.Actor,
						tr.Reason,
					})
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderTable(
					[]string{"#", "When", "From", "To", "Action", "Actor", "Reason"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}

func newJobAdvanceCommand(ctx *commandContext) *cobra.Command {
	var req api.AdvanceRequest

	cmd := &cobra.Command{
		Use:   "advance <qlid> <action>",
		Short: "Apply a lifecycle action to a job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *api.JobService) error {
				req.Action = args[1]
				req.Actor = ctx.actor()
				view, err := svc.Advance(cmd.Context(), args[0], req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", view.QLID, view.StateLabel)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&req.ExpectedState, "expect", "", "State the caller observed; the action fails if the job moved")
	cmd.Flags().StringVar(&req.Reason, "reason", "", "Audit-trail reason")
	cmd.Flags().StringVar(&req.Technician, "tech", "", "Technician (for assign)")
	cmd.Flags().StringVar(&req.TargetState, "target", "", "Target state (for resolve and override)")
	cmd.Flags().StringVar(&req.Disposition, "disposition", "", "Disposition (for dispose)")
	return cmd
}

func newJobAssignCommand(ctx *commandContext) *cobra.Command {
	var expect string

	cmd := &cobra.Command{
		Use:   "assign <qlid> <technician>",
		Short: "Assign a job to a technician",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *api.JobService) error {
				view, err := svc.Advance(cmd.Context(), args[0], api.AdvanceRequest{
					Action:        "assign",
					Technician:    args[1],
					ExpectedState: expect,
					Actor:         ctx.actor(),
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s assigned to %s\n", view.QLID, view.AssignedTech)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&expect, "expect", "", "State the caller observed")
	return cmd
}

func newJobEscalateCommand(ctx *commandContext) *cobra.Command {
	return newEscapeCommand(ctx, "escalate", "Escalate a job for supervisor attention")
}

func newJobBlockCommand(ctx *commandContext) *cobra.Command {
	return newEscapeCommand(ctx, "block", "Mark a job blocked on something external")
}

func newEscapeCommand(ctx *commandContext, action, short string) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   action + " <qlid>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *api.JobService) error {
				view, err := svc.Advance(cmd.Context(), args[0], api.AdvanceRequest{
					Action: action,
					Reason: reason,
					Actor:  ctx.actor(),
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", view.QLID, view.StateLabel)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Audit-trail reason")
	return cmd
}

func newJobResolveCommand(ctx *commandContext, action, short string) *cobra.Command {
	var target string
	var reason string

	cmd := &cobra.Command{
		Use:   action + " <qlid>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *api.JobService) error {
				view, err := svc.Advance(cmd.Context(), args[0], api.AdvanceRequest{
					Action:      action,
					TargetState: target,
					Reason:      reason,
					Actor:       ctx.actor(),
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", view.QLID, view.StateLabel)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&target, "target", "", "Main-path state to return the job to")
	cmd.Flags().StringVar(&reason, "reason", "", "Audit-trail reason")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func newJobReportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "report <qlid>",
		Short: "Dump the full job report as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *api.JobService) error {
				bundle, err := svc.Report(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(bundle)
			})
		},
	}
}

func newScanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <payload>",
		Short: "Look a job up from a scanner read, bare or container-prefixed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *api.JobService) error {
				view, container, err := svc.Resolve(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if container != "" {
					fmt.Fprintf(out, "Container: %s\n", container)
				}
				fmt.Fprintf(out, "%s  %s\n", view.QLID, view.StateLabel)
				return nil
			})
		},
	}
}

func warrantyText(eligible *bool) string {
	if eligible == nil {
		return "unknown"
	}
	return yesNo(*eligible)
}
