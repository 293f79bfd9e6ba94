package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"qline/internal/api"
)

func newDiagCommand(ctx *commandContext) *cobra.Command {
	diagCmd := &cobra.Command{
		Use:   "diag",
		Short: "Record defects and track their repairs",
	}

	diagCmd.AddCommand(newDiagAddCommand(ctx))
	diagCmd.AddCommand(newDiagListCommand(ctx))
	diagCmd.AddCommand(newDiagRepairCommand(ctx))

	return diagCmd
}

func newDiagAddCommand(ctx *commandContext) *cobra.Command {
	var (
		severity string
		action   string
		parts    []string
		photos   []string
	)

	cmd := &cobra.Command{
		Use:   "add <qlid> <defect-code>",
		Short: "Record a defect found during diagnosis",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *api.JobService) error {
				view, err := svc.OpenDiagnosis(cmd.Context(), args[0], api.DiagnosisRequest{
					DefectCode:     args[1],
					Severity:       severity,
					ProposedAction: action,
					RequiredParts:  parts,
					PhotoRefs:      photos,
					Actor:          ctx.actor(),
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Diagnosis %d recorded on %s (%s)\n", view.ID, view.QLID, view.DefectCode)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&severity, "severity", "MINOR", "Defect severity")
	cmd.Flags().StringVar(&action, "action", "", "Proposed repair action")
	cmd.Flags().StringSliceVar(&parts, "part", nil, "Required part (repeatable)")
	cmd.Flags().StringSliceVar(&photos, "photo", nil, "Photo reference (repeatable)")
	return cmd
}

func newDiagListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list <qlid>",
		Short: "List defects recorded on a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *api.JobService) error {
				views, err := svc.Diagnoses(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if len(views) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No diagnoses recorded")
					return nil
				}
				rows := make([][]string, 0, len(views))
				for _, view := range views {
					rows = append(rows, []string{
						strconv.FormatInt(view.ID, 10),
						view.DefectCode,
						view.Severity,
						view.RepairStatus,
						view.RepairedBy,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Defect", "Severity", "Repair", "By"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}

func newDiagRepairCommand(ctx *commandContext) *cobra.Command {
	var parts []string

	cmd := &cobra.Command{
		Use:   "repair <diagnosis-id> <status>",
		Short: "Move a diagnosis through IN_PROGRESS, DONE, or WONT_FIX",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *api.JobService) error {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid diagnosis id %q", args[0])
				}
				view, err := svc.UpdateRepair(cmd.Context(), id, api.RepairUpdateRequest{
					Status:    args[1],
					PartsUsed: parts,
					Actor:     ctx.actor(),
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Diagnosis %d is now %s\n", view.ID, view.RepairStatus)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&parts, "part", nil, "Part consumed by the repair (repeatable)")
	return cmd
}
