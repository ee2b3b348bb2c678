package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"clipd/internal/config"
	"clipd/internal/scheduler"
	"clipd/internal/service"
	"clipd/internal/store"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		ownerID   int64
		username  string
		operation string
		template  string
		params    []string
	)

	cmd := &cobra.Command{
		Use:   "run <source> <ranges>",
		Short: "Cut a batch of clips from a media file",
		Long: `Cut a batch of clips from a media file.

Ranges accept H:MM:SS, M:SS, or bare seconds, separated by newlines,
commas, or semicolons, for example "0:10-0:30, 1:00-1:45".`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(func(cfg *config.Config, st *store.Store, pipeline *service.Pipeline) error {
				paramMap, err := parseParams(params)
				if err != nil {
					return err
				}
				if template != "" {
					fromTemplate, err := loadTemplateParams(cmd.Context(), st, ownerID, template)
					if err != nil {
						return err
					}
					for k, v := range paramMap {
						fromTemplate[k] = v
					}
					paramMap = fromTemplate
				}

				sub, err := pipeline.Submit(cmd.Context(), service.Request{
					OwnerID:   ownerID,
					Username:  username,
					Source:    args[0],
					Ranges:    strings.Join(args[1:], "\n"),
					Operation: operation,
					Params:    paramMap,
				})
				if err != nil {
					return err
				}
				printSubmission(cmd, sub)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&ownerID, "owner", 0, "Owner ID recorded for rate limiting and history")
	cmd.Flags().StringVar(&username, "username", "", "Owner display name")
	cmd.Flags().StringVar(&operation, "operation", "", "Operation to apply (default stream-copy clip)")
	cmd.Flags().StringVar(&template, "template", "", "Apply a saved parameter template")
	cmd.Flags().StringArrayVar(&params, "param", nil, "Operation parameter as key=value (repeatable)")

	return cmd
}

func parseParams(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	params := make(map[string]string, len(raw))
	for _, pair := range raw {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q, expected key=value", pair)
		}
		params[key] = strings.TrimSpace(value)
	}
	return params, nil
}

func printSubmission(cmd *cobra.Command, sub *service.Submission) {
	out := cmd.OutOrStdout()

	for _, warning := range sub.Warnings {
		fmt.Fprintf(out, "warning: %s\n", warning)
	}

	rows := [][]string{
		{"Job", sub.JobID},
		{"Status", statusLabel(sub.Status)},
		{"Elapsed", sub.Elapsed.Round(10 * time.Millisecond).String()},
	}
	if sub.Package.Archived {
		rows = append(rows, []string{"Archive", sub.Package.ArchivePath})
	}
	for _, file := range sub.Package.Files {
		rows = append(rows, []string{"Clip", file})
	}
	if len(sub.FailedIndices) > 0 {
		labels := make([]string, len(sub.FailedIndices))
		for i, index := range sub.FailedIndices {
			labels[i] = fmt.Sprintf("%d", index)
		}
		rows = append(rows, []string{"Failed", strings.Join(labels, ", ")})
	}

	fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))

	switch sub.Status {
	case scheduler.StatusPartiallyFailed:
		fmt.Fprintln(out, "some segments failed; see the manifest inside the archive")
	case scheduler.StatusCancelled:
		fmt.Fprintln(out, "batch was cancelled before completion")
	}
}
