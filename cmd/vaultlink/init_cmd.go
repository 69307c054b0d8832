package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vaultlink/vaultlink/internal/config"
	"github.com/vaultlink/vaultlink/internal/sync"
	"github.com/vaultlink/vaultlink/internal/vault"
)

func init() {
	rootCmd.AddCommand(newInitCmd())
}

func newInitCmd() *cobra.Command {
	var vaultDir string
	var externalRoot string
	var addr string
	var token string
	var autoApprove bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the vault, config and sync settings",
		Run: func(cmd *cobra.Command, args []string) {
			configPath := resolveConfigPath(cmd)

			if cfg, err := config.LoadFromFile(configPath); err == nil {
				fmt.Println("VaultLink already initialized")
				printConfigSummary(cfg)
				os.Exit(0)
			}

			cfg := &config.Config{
				VaultDir:           vaultDir,
				Addr:               addr,
				Token:              token,
				AutoApproveDeletes: autoApprove,
				Path:               configPath,
			}
			if err := cfg.Validate(); err != nil {
				fmt.Printf("%s: %s\n", red("ERROR"), err)
				os.Exit(1)
			}
			if err := cfg.Save(); err != nil {
				fmt.Printf("%s: %s\n", red("ERROR"), err)
				os.Exit(1)
			}

			if err := scaffoldVault(cfg.VaultDir, externalRoot); err != nil {
				fmt.Printf("%s: %s\n", red("ERROR"), err)
				os.Exit(1)
			}

			fmt.Println("VaultLink initialized")
			printConfigSummary(cfg)
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringVarP(&vaultDir, "vault", "d", defaultVaultDir, "vault root directory")
	cmd.Flags().StringVarP(&externalRoot, "external", "x", "", "external mirror directory")
	cmd.Flags().StringVarP(&addr, "addr", "a", config.DefaultAddr, "control plane bind address")
	cmd.Flags().StringVarP(&token, "token", "t", "", "control plane access token")
	cmd.Flags().BoolVar(&autoApprove, "auto-approve-deletes", false, "approve external deletions without a prompt")

	return cmd
}

// scaffoldVault creates the vault tree and its metadata dir, keeping an
// existing sync settings file intact apart from the external root.
func scaffoldVault(vaultDir, externalRoot string) error {
	store, err := vault.NewDirStore(vaultDir)
	if err != nil {
		return err
	}
	if err := store.Open(); err != nil {
		return err
	}
	defer store.Close()

	settingsPath := filepath.Join(store.MetadataDir(), sync.SettingsFileName)
	settings, err := sync.LoadSettings(settingsPath)
	if err != nil {
		return err
	}
	if externalRoot != "" {
		settings.ExternalRoot = externalRoot
	}
	return sync.SaveSettings(settingsPath, settings)
}

func printConfigSummary(cfg *config.Config) {
	fmt.Printf("Config Path:   %s\n", green(cfg.Path))
	fmt.Printf("Vault:         %s\n", cyan(cfg.VaultDir))
	fmt.Printf("Control Plane: %s\n", cyan(cfg.URL()))
}
