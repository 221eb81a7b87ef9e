package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/olivier-w/zinc/internal/ipc"
)

func newEnginesCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "engines",
		Short: "List available transcription engines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Engines()
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp.Engines)
				}
				rows := make([][]string, 0, len(resp.Engines))
				for _, e := range resp.Engines {
					gpu := "no"
					if e.GPURequired {
						gpu = "required"
						if !e.GPUAvailable {
							gpu = "required (unavailable)"
						}
					}
					rows = append(rows, []string{
						e.ID,
						e.Name,
						gpu,
						fmt.Sprintf("%d", len(e.Models)),
						truncate(e.Description, 50),
					})
				}
				table := renderTable(
					[]string{"ID", "Name", "GPU", "Models", "Description"},
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

func newModelsCommand(ctx *commandContext) *cobra.Command {
	var engineFilter string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List models offered by the transcription engines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Engines()
				if err != nil {
					return err
				}
				filter := strings.TrimSpace(engineFilter)
				if jsonOut {
					filtered := resp.Engines
					if filter != "" {
						filtered = nil
						for _, e := range resp.Engines {
							if e.ID == filter {
								filtered = append(filtered, e)
							}
						}
					}
					return writeJSON(cmd, filtered)
				}

				var rows [][]string
				for _, e := range resp.Engines {
					if filter != "" && e.ID != filter {
						continue
					}
					for _, m := range e.Models {
						rows = append(rows, []string{
							e.ID,
							m.ID,
							m.Name,
							m.SizeLabel,
							yesNo(m.Installed),
						})
					}
				}
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No models found")
					return nil
				}
				table := renderTable(
					[]string{"Engine", "Model", "Name", "Size", "Installed"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&engineFilter, "engine", "e", "", "Only list models for this engine")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}

func newInstallCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "install <engine>",
		Short: "Install the runtime for a transcription engine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				engineID := strings.TrimSpace(args[0])
				fmt.Fprintf(cmd.OutOrStdout(), "Installing %s runtime...\n", engineID)
				resp, err := client.EngineInstall(engineID)
				if err != nil {
					return fmt.Errorf("install engine: %w", err)
				}
				if resp.Installed {
					fmt.Fprintf(cmd.OutOrStdout(), "Engine %s installed\n", engineID)
				}
				return nil
			})
		},
	}
}

func newDownloadModelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "download-model <engine> <model>",
		Short: "Download a model for a transcription engine",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				engineID := strings.TrimSpace(args[0])
				modelID := strings.TrimSpace(args[1])
				fmt.Fprintf(cmd.OutOrStdout(), "Downloading %s/%s...\n", engineID, modelID)
				resp, err := client.ModelDownload(engineID, modelID)
				if err != nil {
					return fmt.Errorf("download model: %w", err)
				}
				if resp.Downloaded {
					fmt.Fprintf(cmd.OutOrStdout(), "Model %s/%s ready\n", engineID, modelID)
				}
				return nil
			})
		},
	}
}
