package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vaultlink/vaultlink/internal/config"
	"github.com/vaultlink/vaultlink/internal/daemon"
	"github.com/vaultlink/vaultlink/internal/utils"
	"github.com/vaultlink/vaultlink/internal/version"
)

var (
	home, _         = os.UserHomeDir()
	defaultVaultDir = filepath.Join(home, "VaultLink")
	configFileName  = "config"
)

var (
	red   = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green = color.New(color.FgHiGreen).SprintFunc()
	cyan  = color.New(color.FgHiCyan).SprintFunc()
	gray  = color.New(color.FgHiBlack).SprintFunc()
)

const vaultLinkArt = "__     __          _ _   _     _       _    \n" +
	"\\ \\   / /_ _ _   _| | |_| |   (_)_ __ | | __\n" +
	" \\ \\ / / _` | | | | | __| |   | | '_ \\| |/ /\n" +
	"  \\ V / (_| | |_| | | |_| |___| | | | |   < \n" +
	"   \\_/ \\__,_|\\__,_|_|\\__|_____|_|_| |_|_|\\_\\"

var rootCmd = &cobra.Command{
	Use:     "vaultlink",
	Short:   "VaultLink sync daemon",
	Version: version.Detailed(),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		// all good now, show header
		cmd.SilenceUsage = true
		showVaultLinkHeader()

		d, err := daemon.NewDaemon(cfg, deleteConfirmer(cfg))
		if err != nil {
			return err
		}

		defer slog.Info("Bye!")
		if err := d.Start(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("daemon start", "error", err)
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().StringP("vault", "d", defaultVaultDir, "Vault root directory")
	rootCmd.Flags().StringP("addr", "a", config.DefaultAddr, "Control plane bind address")
	rootCmd.Flags().StringP("token", "t", "", "Control plane access token")
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "VaultLink config file")
}

func main() {
	// A .env next to the binary can override config before cobra runs.
	_ = godotenv.Load()

	logFile := config.DefaultLogFilePath
	logDir := filepath.Dir(logFile)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create log directory: %v\n", err)
		os.Exit(1)
	}

	// New log file for this instance.
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	stdoutHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})

	logger := slog.New(utils.NewMultiLogHandler(stdoutHandler, fileHandler))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig merges the config file, environment and flags into a Config.
// Precedence: flags > VAULTLINK_* env > config file > defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if cmd.Flag("config") != nil && cmd.Flag("config").Changed {
		configFilePath, _ := cmd.Flags().GetString("config")
		viper.SetConfigFile(configFilePath)
	} else if envPath := os.Getenv("VAULTLINK_CONFIG_PATH"); envPath != "" {
		viper.SetConfigFile(envPath)
	} else {
		viper.AddConfigPath(filepath.Join(home, ".vaultlink"))
		viper.AddConfigPath(filepath.Join(home, ".config", "vaultlink"))
		viper.SetConfigName(configFileName)
		viper.SetConfigType("json")
	}

	if err := viper.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !enoent && !notFound {
			return nil, fmt.Errorf("config read '%s': %w", viper.ConfigFileUsed(), err)
		}
	}

	if f := cmd.Flags().Lookup("vault"); f != nil {
		viper.BindPFlag("vault_dir", f)
	}
	if f := cmd.Flags().Lookup("addr"); f != nil {
		viper.BindPFlag("addr", f)
	}
	if f := cmd.Flags().Lookup("token"); f != nil {
		viper.BindPFlag("token", f)
	}

	viper.SetEnvPrefix("VAULTLINK")
	viper.AutomaticEnv()

	return &config.Config{
		Path:               viper.ConfigFileUsed(),
		VaultDir:           viper.GetString("vault_dir"),
		Addr:               viper.GetString("addr"),
		Token:              viper.GetString("token"),
		AutoApproveDeletes: viper.GetBool("auto_approve_deletes"),
	}, nil
}

func showVaultLinkHeader() {
	color.New(color.FgHiCyan, color.Bold).Print(vaultLinkArt + "\n")
	fmt.Println(gray(version.ShortWithApp()))
}
