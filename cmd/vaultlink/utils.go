package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/vaultlink/vaultlink/internal/config"
	"github.com/vaultlink/vaultlink/internal/linksdk"
	"github.com/vaultlink/vaultlink/internal/sync"
)

// deleteConfirmer gates external deletions. With a terminal attached it asks,
// otherwise the configured auto-approve answer applies.
func deleteConfirmer(cfg *config.Config) sync.Confirm {
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		approve := cfg.AutoApproveDeletes
		return func(rel string, isDir bool) bool { return approve }
	}

	reader := bufio.NewReader(os.Stdin)
	return func(rel string, isDir bool) bool {
		kind := "file"
		if isDir {
			kind = "folder"
		}
		fmt.Printf("%s vault removed %s %s. Delete the external copy? [y/N]: ", red("!"), kind, cyan(rel))

		line, err := reader.ReadString('\n')
		if err != nil {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		default:
			return false
		}
	}
}

// newSDKClient builds a control plane client from the resolved config.
func newSDKClient(cmd *cobra.Command) (*linksdk.Client, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return linksdk.New(cfg.URL(), cfg.Token)
}
