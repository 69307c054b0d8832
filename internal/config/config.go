package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/vaultlink/vaultlink/internal/utils"
)

var (
	home, _            = os.UserHomeDir()
	DefaultConfigPath  = filepath.Join(home, ".vaultlink", "config.json")
	DefaultLogFilePath = filepath.Join(home, ".vaultlink", "logs", "vaultlink.log")
	DefaultAddr        = "localhost:7438"
)

// Config is the machine-level daemon configuration. Sync behaviour lives in
// the vault's own settings file, not here.
type Config struct {
	// VaultDir is the root of the managed vault.
	VaultDir string `json:"vault_dir"`

	// Addr is the control plane bind address.
	Addr string `json:"addr"`

	// Token guards the control plane API when set.
	Token string `json:"token,omitempty"`

	// AutoApproveDeletes answers mirror deletion prompts when no terminal
	// is attached. Default false leaves external files intact.
	AutoApproveDeletes bool `json:"auto_approve_deletes"`

	// Path this config was loaded from. Not persisted.
	Path string `json:"-"`
}

func (c *Config) Validate() error {
	if c.VaultDir == "" {
		return fmt.Errorf("vault dir is required")
	}

	vaultDir, err := utils.ResolvePath(c.VaultDir)
	if err != nil {
		return fmt.Errorf("vault dir: %w", err)
	}
	c.VaultDir = vaultDir

	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return fmt.Errorf("addr %q: %w", c.Addr, err)
	}

	if c.Path != "" {
		path, err := utils.ResolvePath(c.Path)
		if err != nil {
			return fmt.Errorf("config path: %w", err)
		}
		c.Path = path
	}

	return nil
}

// URL returns the control plane base URL for clients.
func (c *Config) URL() string {
	addr := c.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	return "http://" + addr
}

func (c *Config) Save() error {
	path := c.Path
	if path == "" {
		path = DefaultConfigPath
	}

	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.Path = path
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
