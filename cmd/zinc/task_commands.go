package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/olivier-w/zinc/internal/ipc"
)

func newTasksCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List tasks known to the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TaskList()
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp.Tasks)
				}
				if len(resp.Tasks) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No tasks")
					return nil
				}
				rows := make([][]string, 0, len(resp.Tasks))
				for _, t := range resp.Tasks {
					rows = append(rows, []string{
						shortID(t.ID),
						truncate(displayTitle(t), 40),
						t.Status,
						formatPercent(t.ProgressPercent),
						formatRelativeTime(t.CreatedAt),
					})
				}
				table := renderTable(
					[]string{"ID", "Title", "Status", "Progress", "Created"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	var follow bool

	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show details for a single task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				id := strings.TrimSpace(args[0])
				if follow {
					return watchTask(cmd, client, id, jsonOut)
				}
				resp, err := client.TaskDescribe(id)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp.Task)
				}
				printTaskDetail(cmd, resp.Task)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Poll until the task finishes")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Request cooperative cancellation of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TaskCancel(strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if resp.Requested {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancellation requested")
				}
				return nil
			})
		},
	}
}

func newClearCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove finished tasks from the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TaskClear(all)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d task(s)\n", resp.Removed)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Also remove tasks without a live pipeline")
	return cmd
}

func printTaskDetail(cmd *cobra.Command, t ipc.TaskInfo) {
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)

	for _, line := range renderSectionHeader("Task "+shortID(t.ID), colorize) {
		fmt.Fprintln(stdout, line)
	}
	fmt.Fprintln(stdout, renderStatusLine("ID", statusInfo, t.ID, colorize))
	fmt.Fprintln(stdout, renderStatusLine("Kind", statusInfo, t.Kind, colorize))
	fmt.Fprintln(stdout, renderStatusLine("Status", statusKindForTask(t.Status), t.Status, colorize))
	if title := displayTitle(t); title != "" {
		fmt.Fprintln(stdout, renderStatusLine("Title", statusInfo, title, colorize))
	}
	fmt.Fprintln(stdout, renderStatusLine("Source", statusInfo, t.Source, colorize))
	if t.EngineID != "" {
		engine := t.EngineID
		if t.ModelID != "" {
			engine += " / " + t.ModelID
		}
		fmt.Fprintln(stdout, renderStatusLine("Engine", statusInfo, engine, colorize))
	}
	if t.ProgressPercent > 0 || t.ProgressMessage != "" {
		progress := formatPercent(t.ProgressPercent)
		if t.ProgressMessage != "" {
			progress += " - " + t.ProgressMessage
		}
		fmt.Fprintln(stdout, renderStatusLine("Progress", statusInfo, progress, colorize))
	}
	if t.EstimatedSeconds > 0 {
		estimate := (time.Duration(t.EstimatedSeconds) * time.Second).Round(time.Second)
		fmt.Fprintln(stdout, renderStatusLine("Estimate", statusInfo, estimate.String(), colorize))
	}
	if t.OutputPath != "" {
		fmt.Fprintln(stdout, renderStatusLine("Output", statusInfo, t.OutputPath, colorize))
	}
	if t.Warning != "" {
		fmt.Fprintln(stdout, renderStatusLine("Warning", statusWarn, t.Warning, colorize))
	}
	if t.ErrorMessage != "" {
		fmt.Fprintln(stdout, renderStatusLine("Error", statusError, t.ErrorMessage, colorize))
	}
	fmt.Fprintln(stdout, renderStatusLine("Created", statusInfo, t.CreatedAt.Local().Format(time.RFC1123), colorize))
	fmt.Fprintln(stdout, renderStatusLine("Updated", statusInfo, formatRelativeTime(t.UpdatedAt), colorize))
}
