package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newFileCmd())
}

func newFileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "file <path>",
		Short: "Sync one vault path to the external directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			sdk, err := newSDKClient(cmd)
			if err != nil {
				return err
			}
			if err := sdk.SyncFile(cmd.Context(), args[0]); err != nil {
				return err
			}

			fmt.Printf("%s %s\n", green("synced"), cyan(args[0]))
			return nil
		},
	}
}
