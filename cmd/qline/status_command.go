package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"qline/internal/api"
	"qline/internal/jobs"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pipeline health and daemon state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(svc *api.JobService) error {
				health, err := svc.Health(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Jobs: %d total, %d active, %d escaped, %d terminal\n",
					health.Total, health.Active, health.Escaped, health.Terminal)

				if len(health.ByState) > 0 {
					rows := buildStateRows(health.ByState)
					fmt.Fprintln(out, renderTable(
						[]string{"State", "Count"},
						rows,
						[]columnAlignment{alignLeft, alignRight},
					))
				}

				printDaemonStatus(ctx, cmd)
				return nil
			})
		},
	}
}

// buildStateRows orders counts by main-path position, with escape and failure
// states trailing.
func buildStateRows(byState map[string]int) [][]string {
	type entry struct {
		state string
		order int
		count int
	}
	entries := make([]entry, 0, len(byState))
	for state, count := range byState {
		order := jobs.State(state).StepIndex()
		if order < 0 {
			order = len(jobs.MainPath)
		}
		entries = append(entries, entry{state: state, order: order, count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].order != entries[j].order {
			return entries[i].order < entries[j].order
		}
		return entries[i].state < entries[j].state
	})

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{api.LabelForState(jobs.State(e.state)), fmt.Sprintf("%d", e.count)})
	}
	return rows
}

// printDaemonStatus asks the daemon's HTTP API for its runtime state. A
// connection failure just means the daemon is not running.
func printDaemonStatus(ctx *commandContext, cmd *cobra.Command) {
	cfg, err := ctx.ensureConfig()
	if err != nil || cfg.Paths.APIBind == "" {
		return
	}
	out := cmd.OutOrStdout()

	client := &http.Client{Timeout: 2 * time.Second}
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet,
		"http://"+cfg.Paths.APIBind+"/api/status", nil)
	if err != nil {
		return
	}
	if cfg.Paths.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Paths.APIToken)
	}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintln(out, "Daemon: not running")
		return
	}
	defer resp.Body.Close()

	var status struct {
		Running     bool   `json:"running"`
		PID         int    `json:"pid"`
		DBPath      string `json:"dbPath"`
		BindAddress string `json:"bindAddress"`
	}
	if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&status) != nil {
		fmt.Fprintln(out, "Daemon: unreachable")
		return
	}
	fmt.Fprintf(out, "Daemon: running (pid %d) on %s\n", status.PID, status.BindAddress)
}
