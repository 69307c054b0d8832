package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newHistoryCmd())
}

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent sync operations, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			sdk, err := newSDKClient(cmd)
			if err != nil {
				return err
			}
			ops, err := sdk.History(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if len(ops) == 0 {
				fmt.Println(gray("no sync operations recorded"))
				return nil
			}

			for _, op := range ops {
				detail := ""
				if op.Detail != "" {
					detail = gray(" (" + op.Detail + ")")
				}
				fmt.Printf("%-14s %-8s %-7s %s%s\n",
					humanize.Time(op.Time), op.Direction, op.Type, cyan(op.Path), detail)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of operations to show")

	return cmd
}
