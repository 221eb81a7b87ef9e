package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/olivier-w/zinc/internal/fetch"
	"github.com/olivier-w/zinc/internal/ipc"
	"github.com/olivier-w/zinc/internal/task"
)

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var (
		format    string
		container string
		subtitles bool
		engineID  string
		modelID   string
		language  string
		style     string
		wait      bool
		jsonOut   bool
	)

	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Download remote media and optionally transcribe it",
		Long: "Fetch submits a remote media URL for download. With --subtitles the " +
			"downloaded file is transcribed and captions are embedded into the container.\n\n" +
			"Format presets: " + strings.Join(fetch.FormatPresets(), ", "),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Submit(ipc.SubmitRequest{
					Kind:      string(task.KindRemoteFetch),
					Source:    strings.TrimSpace(args[0]),
					EngineID:  engineID,
					ModelID:   modelID,
					Language:  language,
					Style:     style,
					Format:    format,
					Container: container,
					Subtitles: subtitles,
				})
				if err != nil {
					return fmt.Errorf("submit fetch: %w", err)
				}
				if jsonOut && !wait {
					return writeJSON(cmd, resp.Task)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task %s submitted\n", resp.Task.ID)
				if !wait {
					return nil
				}
				return watchTask(cmd, client, resp.Task.ID, jsonOut)
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "Format preset or raw yt-dlp format selector")
	cmd.Flags().StringVar(&container, "container", "", "Output container (mp4, mkv, webm)")
	cmd.Flags().BoolVarP(&subtitles, "subtitles", "s", false, "Transcribe the download and embed captions")
	cmd.Flags().StringVarP(&engineID, "engine", "e", "", "Transcription engine")
	cmd.Flags().StringVarP(&modelID, "model", "m", "", "Transcription model")
	cmd.Flags().StringVarP(&language, "language", "l", "", "Transcription language hint")
	cmd.Flags().StringVar(&style, "style", "", "Caption style (word or sentence)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the task to finish, printing progress")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")

	return cmd
}

// watchTask polls the task until it reaches a terminal status, printing
// progress transitions as they happen.
func watchTask(cmd *cobra.Command, client *ipc.Client, id string, jsonOut bool) error {
	stdout := cmd.OutOrStdout()
	lastLine := ""
	for {
		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case <-time.After(500 * time.Millisecond):
		}

		resp, err := client.TaskDescribe(id)
		if err != nil {
			return fmt.Errorf("describe task: %w", err)
		}
		info := resp.Task

		if !jsonOut {
			line := progressLine(info)
			if line != "" && line != lastLine {
				fmt.Fprintln(stdout, line)
				lastLine = line
			}
		}

		if task.Status(info.Status).IsTerminal() {
			if jsonOut {
				return writeJSON(cmd, info)
			}
			return printOutcome(stdout, info)
		}
	}
}

func progressLine(info ipc.TaskInfo) string {
	var b strings.Builder
	b.WriteString(info.Status)
	if info.ProgressPercent > 0 {
		fmt.Fprintf(&b, " %.1f%%", info.ProgressPercent)
	}
	if info.Speed != "" {
		b.WriteString(" ")
		b.WriteString(info.Speed)
	}
	if info.ETA != "" {
		b.WriteString(" ETA ")
		b.WriteString(info.ETA)
	}
	if info.ProgressMessage != "" {
		b.WriteString(" - ")
		b.WriteString(info.ProgressMessage)
	}
	return b.String()
}

func printOutcome(stdout io.Writer, info ipc.TaskInfo) error {
	switch task.Status(info.Status) {
	case task.StatusCompleted:
		fmt.Fprintf(stdout, "Completed: %s\n", info.OutputPath)
		if info.Warning != "" {
			fmt.Fprintf(stdout, "Warning: %s\n", info.Warning)
		}
		return nil
	case task.StatusCancelled:
		fmt.Fprintln(stdout, "Cancelled")
		return nil
	default:
		return fmt.Errorf("task failed: %s", info.ErrorMessage)
	}
}
