package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"qline/internal/config"
)

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigValidateCommand())

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				target = config.DefaultConfigPath()
			}
			if err := config.WriteSample(target); err != nil {
				return err
			}
			resolved, err := config.ExpandPath(target)
			if err != nil {
				resolved = target
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample configuration to %s\n", resolved)
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	return cmd
}

func newConfigValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Validate the configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			configFlag, _ := cmd.Flags().GetString("config")
			cfg, path, err := config.Load(configFlag)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration at %s is valid\n", path)
			fmt.Fprintf(out, "Data dir:  %s\n", cfg.Paths.DataDir)
			fmt.Fprintf(out, "Log dir:   %s\n", cfg.Paths.LogDir)
			fmt.Fprintf(out, "API bind:  %s\n", cfg.Paths.APIBind)
			fmt.Fprintf(out, "Sweep:     every %ds, escalate after %dm\n",
				cfg.Workflow.SweepIntervalSeconds, cfg.Workflow.StaleEscalationMinutes)
			return nil
		},
	}
}
