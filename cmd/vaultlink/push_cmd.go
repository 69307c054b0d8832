package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newPushCmd())
}

func newPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Mirror every synced vault entry to the external directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			sdk, err := newSDKClient(cmd)
			if err != nil {
				return err
			}
			if err := sdk.Push(cmd.Context()); err != nil {
				return err
			}

			fmt.Println(green("outbound push complete"))
			return nil
		},
	}
}
