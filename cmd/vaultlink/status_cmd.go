package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newStatusCmd())
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and sync status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			sdk, err := newSDKClient(cmd)
			if err != nil {
				return err
			}
			status, err := sdk.Status(cmd.Context())
			if err != nil {
				return err
			}

			external := status.ExternalRoot
			if external == "" {
				external = gray("not configured")
			} else {
				external = cyan(external)
			}

			fmt.Printf("%s %s\n", status.Name, status.Version)
			fmt.Printf("PID:      %d\n", status.PID)
			fmt.Printf("Uptime:   %s\n", time.Duration(status.UptimeSecs)*time.Second)
			fmt.Printf("Memory:   %s\n", humanize.Bytes(status.MemoryBytes))
			fmt.Printf("Vault:    %s\n", cyan(status.Vault))
			fmt.Printf("External: %s\n", external)

			ov := status.Overview
			fmt.Printf("Sync:     %d syncing, %d errors, %d ops, %s moved\n",
				ov.Syncing, ov.Errors, ov.TotalOps, humanize.Bytes(uint64(ov.TotalBytes)))
			if ov.LastSync != "" {
				fmt.Printf("Last:     %s\n", ov.LastSync)
			}
			return nil
		},
	}
}
