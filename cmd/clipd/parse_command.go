package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"clipd/internal/timecode"
)

func newParseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <ranges...>",
		Short: "Preview how a batch of timecode ranges is interpreted",
		Long: `Preview how a batch of timecode ranges is interpreted without
touching any media file. Useful for checking a range list before a run.`,
		Args:        cobra.MinimumNArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			input := strings.Join(args, "\n")

			var rows [][]string
			invalid := 0
			for result := range timecode.Parse(input) {
				row := []string{strconv.Itoa(result.Index), result.Raw}
				if result.Err != nil {
					invalid++
					row = append(row, "", "", "", result.Err.Error())
				} else {
					row = append(row,
						timecode.FormatDuration(result.Range.Start),
						timecode.FormatDuration(result.Range.End),
						timecode.FormatDuration(result.Range.Duration()),
						"")
				}
				rows = append(rows, row)
			}
			if len(rows) == 0 {
				return fmt.Errorf("no timecode entries in input")
			}

			headers := []string{"#", "Input", "Start", "End", "Length", "Problem"}
			aligns := []columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight, alignLeft}
			fmt.Fprintln(out, renderTable(headers, rows, aligns))

			colorize := shouldColorize(out)
			if invalid > 0 {
				message := fmt.Sprintf("%d of %d entries did not parse", invalid, len(rows))
				fmt.Fprintln(out, renderStatusLine("Entries", statusError, message, colorize))
				return fmt.Errorf("%s", message)
			}
			fmt.Fprintln(out, renderStatusLine("Entries", statusOK, fmt.Sprintf("%d parsed", len(rows)), colorize))
			return nil
		},
	}
}
