package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/olivier-w/zinc/internal/ipc"
	"github.com/olivier-w/zinc/internal/task"
)

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	var (
		engineID string
		modelID  string
		language string
		style    string
		wait     bool
		jsonOut  bool
	)

	cmd := &cobra.Command{
		Use:   "transcribe <file>",
		Short: "Transcribe a local media file and embed captions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Submit(ipc.SubmitRequest{
					Kind:     string(task.KindLocalTranscribe),
					Source:   strings.TrimSpace(args[0]),
					EngineID: engineID,
					ModelID:  modelID,
					Language: language,
					Style:    style,
				})
				if err != nil {
					return fmt.Errorf("submit transcription: %w", err)
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

	cmd.Flags().StringVarP(&engineID, "engine", "e", "", "Transcription engine")
	cmd.Flags().StringVarP(&modelID, "model", "m", "", "Transcription model")
	cmd.Flags().StringVarP(&language, "language", "l", "", "Transcription language hint")
	cmd.Flags().StringVar(&style, "style", "", "Caption style (word or sentence)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the task to finish, printing progress")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")

	return cmd
}
