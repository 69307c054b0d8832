package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultlink/vaultlink/internal/config"
)

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv("VAULTLINK_VAULT_DIR", "/tmp/vaultlink-test")
	t.Setenv("VAULTLINK_ADDR", "localhost:9999")
	t.Setenv("VAULTLINK_TOKEN", "test-token")
	t.Setenv("VAULTLINK_AUTO_APPROVE_DELETES", "true")
	t.Setenv("VAULTLINK_CONFIG_PATH", "/tmp/config.test.json")

	cfg, err := loadConfig(rootCmd)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "/tmp/vaultlink-test", cfg.VaultDir)
	assert.Equal(t, "localhost:9999", cfg.Addr)
	assert.Equal(t, "test-token", cfg.Token)
	assert.Equal(t, true, cfg.AutoApproveDeletes)
	assert.Equal(t, "/tmp/config.test.json", cfg.Path)

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "localhost:9999", cfg.Addr)
}

func TestLoadConfigJSON(t *testing.T) {
	dummyConfig := `
{
	"vault_dir": "/tmp/vaultlink-test-json",
	"addr": "localhost:7439",
	"token": "json-token",
	"auto_approve_deletes": true
}
`
	dummyConfigFile := filepath.Join(t.TempDir(), "dummy.json")
	require.NoError(t, os.WriteFile(dummyConfigFile, []byte(dummyConfig), 0o644))

	require.NoError(t, rootCmd.PersistentFlags().Set("config", dummyConfigFile))
	t.Cleanup(func() {
		f := rootCmd.PersistentFlags().Lookup("config")
		f.Changed = false
		_ = f.Value.Set(config.DefaultConfigPath)
	})

	cfg, err := loadConfig(rootCmd)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	require.Equal(t, dummyConfigFile, cfg.Path)
	assert.Equal(t, "/tmp/vaultlink-test-json", cfg.VaultDir)
	assert.Equal(t, "localhost:7439", cfg.Addr)
	assert.Equal(t, "json-token", cfg.Token)
	assert.Equal(t, true, cfg.AutoApproveDeletes)
}
