package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vaultlink/vaultlink/internal/linksdk"
)

func init() {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect or change the daemon's sync settings",
	}
	settingsCmd.AddCommand(newSettingsGetCmd())
	settingsCmd.AddCommand(newSettingsSetCmd())
	rootCmd.AddCommand(settingsCmd)
}

func newSettingsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Print the active sync settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			sdk, err := newSDKClient(cmd)
			if err != nil {
				return err
			}
			settings, err := sdk.GetSettings(cmd.Context())
			if err != nil {
				return err
			}
			return printSettings(settings)
		},
	}
}

func newSettingsSetCmd() *cobra.Command {
	var externalRoot string
	var syncOnWrite bool
	var interval int
	var mode string
	var excluded []string
	var included []string
	var externalFolders []string
	var highlightColor string
	var debug bool

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change sync settings and apply them live",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			sdk, err := newSDKClient(cmd)
			if err != nil {
				return err
			}

			// Start from the active settings so unset flags keep their values.
			settings, err := sdk.GetSettings(cmd.Context())
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("external-root") {
				settings.ExternalRoot = externalRoot
			}
			if flags.Changed("sync-on-write") {
				settings.SyncOnWrite = syncOnWrite
			}
			if flags.Changed("interval") {
				settings.SyncInterval = interval
			}
			if flags.Changed("mode") {
				settings.Mode = mode
			}
			if flags.Changed("excluded") {
				settings.ExcludedPaths = excluded
			}
			if flags.Changed("included") {
				settings.IncludedPaths = included
			}
			if flags.Changed("external-folders") {
				settings.ExternalFolders = externalFolders
			}
			if flags.Changed("highlight-color") {
				settings.HighlightColor = highlightColor
			}
			if flags.Changed("debug") {
				settings.Debug = debug
			}

			applied, err := sdk.UpdateSettings(cmd.Context(), settings)
			if err != nil {
				return err
			}

			fmt.Println(green("settings applied"))
			return printSettings(applied)
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringVar(&externalRoot, "external-root", "", "external mirror directory")
	cmd.Flags().BoolVar(&syncOnWrite, "sync-on-write", true, "propagate vault edits as they happen")
	cmd.Flags().IntVar(&interval, "interval", 0, "full sync interval in seconds, 0 disables")
	cmd.Flags().StringVar(&mode, "mode", "", "sync mode: all-except-excluded or include-list-only")
	cmd.Flags().StringSliceVar(&excluded, "excluded", nil, "vault path prefixes to exclude")
	cmd.Flags().StringSliceVar(&included, "included", nil, "vault path prefixes to include")
	cmd.Flags().StringSliceVar(&externalFolders, "external-folders", nil, "external directories mapped into the vault")
	cmd.Flags().StringVar(&highlightColor, "highlight-color", "", "highlight colour for synced entries")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")

	return cmd
}

func printSettings(settings *linksdk.SyncSettings) error {
	pretty, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", pretty)
	return nil
}
