package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/olivier-w/zinc/internal/ipc"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show finished tasks from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.History(limit)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp.Entries)
				}
				if len(resp.Entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "History is empty")
					return nil
				}
				rows := make([][]string, 0, len(resp.Entries))
				for _, e := range resp.Entries {
					title := e.Title
					if title == "" {
						title = e.Source
					}
					rows = append(rows, []string{
						shortID(e.TaskID),
						truncate(title, 40),
						e.Status,
						e.EngineID,
						formatRelativeTime(e.FinishedAt),
					})
				}
				table := renderTable(
					[]string{"Task", "Title", "Status", "Engine", "Finished"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of entries to show")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every journal entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.HistoryClear()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entr%s\n", resp.Removed, pluralY(resp.Removed))
				return nil
			})
		},
	})

	return cmd
}

func pluralY(count int64) string {
	if count == 1 {
		return "y"
	}
	return "ies"
}
