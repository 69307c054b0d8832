package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultlink/vaultlink/internal/linksdk"
)

func init() {
	rootCmd.AddCommand(newSyncCmd())
}

func newSyncCmd() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one full sync pass now",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			sdk, err := newSDKClient(cmd)
			if err != nil {
				return err
			}

			for {
				err := sdk.SyncNow(cmd.Context())
				if err == nil {
					break
				}

				var apiErr *linksdk.APIError
				if wait && errors.As(err, &apiErr) && apiErr.Code == linksdk.CodeSyncBusy {
					select {
					case <-cmd.Context().Done():
						return cmd.Context().Err()
					case <-time.After(time.Second):
					}
					continue
				}
				return err
			}

			fmt.Println(green("sync pass complete"))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "wait for an in-progress pass instead of failing busy")

	return cmd
}
