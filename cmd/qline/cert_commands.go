package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"qline/internal/api"
)

func newCertCommand(ctx *commandContext) *cobra.Command {
	certCmd := &cobra.Command{
		Use:   "cert",
		Short: "Issue, inspect, and revoke certifications",
	}

	certCmd.AddCommand(newCertIssueCommand(ctx))
	certCmd.AddCommand(newCertShowCommand(ctx))
	certCmd.AddCommand(newCertListCommand(ctx))
	certCmd.AddCommand(newCertRevokeCommand(ctx))

	return certCmd
}

func newCertIssueCommand(ctx *commandContext) *cobra.Command {
	var warrantyDays int

	cmd := &cobra.Command{
		Use:   "issue <qlid> <level>",
		Short: "Mint a certification for a job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *api.JobService) error {
				resp, err := svc.IssueCertification(cmd.Context(), args[0], api.CertifyRequest{
					Level:        args[1],
					WarrantyDays: warrantyDays,
					Actor:        ctx.actor(),
				})
				if err != nil {
					return err
				}
				cert := resp.Certification
				if resp.Created {
					fmt.Fprintf(cmd.OutOrStdout(), "Issued %s to %s (level %s, grade %s)\n",
						cert.Serial, cert.QLID, cert.Level, cert.FinalGrade)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s already holds %s (level %s, grade %s)\n",
						cert.QLID, cert.Serial, cert.Level, cert.FinalGrade)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&warrantyDays, "warranty-days", 0, "Override the level's default warranty term")
	return cmd
}

func newCertShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <serial>",
		Short: "Show one certification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *api.JobService) error {
				cert, err := svc.Certification(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printCertification(cmd, cert)
				return nil
			})
		},
	}
}

func newCertListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list <qlid>",
		Short: "List every certification minted for a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *api.JobService) error {
				certs, err := svc.Certifications(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if len(certs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No certifications")
					return nil
				}
				rows := make([][]string, 0, len(certs))
				for _, cert := range certs {
					status := "active"
					if cert.IsRevoked {
						status = "revoked"
					}
					rows = append(rows, []string{cert.Serial, cert.Level, cert.FinalGrade, status, cert.IssuedAt})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Serial", "Level", "Grade", "Status", "Issued"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}

func newCertRevokeCommand(ctx *commandContext) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "revoke <serial>",
		Short: "Revoke a certification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *api.JobService) error {
				cert, err := svc.RevokeCertification(cmd.Context(), args[0], api.RevokeRequest{
					Reason: reason,
					Actor:  ctx.actor(),
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Revoked %s (%s)\n", cert.Serial, cert.RevokeReason)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Reason for revocation")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func printCertification(cmd *cobra.Command, cert api.CertificationView) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s  job %s\n", cert.Serial, cert.QLID)
	fmt.Fprintf(out, "Level:   %s (grade %s)\n", cert.Level, cert.FinalGrade)
	fmt.Fprintf(out, "Issued:  %s by %s\n", cert.IssuedAt, cert.IssuedBy)
	if len(cert.Warranty) > 0 {
		fmt.Fprintf(out, "Warranty: %s\n", string(cert.Warranty))
	}
	if cert.IsRevoked {
		fmt.Fprintf(out, "REVOKED: %s by %s at %s\n", cert.RevokeReason, cert.RevokedBy, cert.RevokedAt)
	}
}
