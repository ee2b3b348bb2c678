package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status [job-id]",
		Short: "Show daemon status or the state of a submitted job",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := newAPIClient(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			if len(args) == 0 {
				status, err := client.status(cmd.Context())
				if err != nil {
					return err
				}
				kind := statusError
				message := "stopped"
				if status.Running {
					kind = statusOK
					message = "running"
				}
				fmt.Fprintln(out, renderStatusLine("Daemon", kind, message, colorize))
				rows := [][]string{
					{"Active Jobs", strconv.Itoa(status.ActiveJobs)},
					{"Tracked Jobs", strconv.Itoa(status.TrackedJobs)},
					{"Database", status.DBPath},
				}
				fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))
				return nil
			}

			job, err := client.job(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJobView(cmd, job)
			return nil
		},
	}
}

func printJobView(cmd *cobra.Command, job *daemonJobView) {
	out := cmd.OutOrStdout()

	for _, warning := range job.Warnings {
		fmt.Fprintf(out, "warning: %s\n", warning)
	}

	rows := [][]string{
		{"Job", job.ID},
		{"State", titleCaser.String(job.State)},
		{"Source", job.Source},
		{"Submitted", job.CreatedAt},
	}
	if job.FinishedAt != "" {
		rows = append(rows, []string{"Finished", job.FinishedAt})
	}
	if job.Error != "" {
		rows = append(rows, []string{"Error", job.Error})
	}
	if job.ArchivePath != "" {
		rows = append(rows, []string{"Archive", job.ArchivePath})
	}
	for _, file := range job.Files {
		rows = append(rows, []string{"Clip", file})
	}
	if len(job.FailedIndices) > 0 {
		labels := make([]string, len(job.FailedIndices))
		for i, index := range job.FailedIndices {
			labels[i] = strconv.Itoa(index)
		}
		rows = append(rows, []string{"Failed", strings.Join(labels, ", ")})
	}

	fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))
}
