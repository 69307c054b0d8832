package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultlink/vaultlink/internal/config"
	"github.com/vaultlink/vaultlink/internal/sync"
	"github.com/vaultlink/vaultlink/internal/vault"
)

func TestInitCommand_WritesConfigAndSettings(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.json")
	vaultDir := filepath.Join(tmp, "vault")
	external := filepath.Join(tmp, "mirror")

	out, code := runCLI(t, []string{"VAULTLINK_CONFIG_PATH=" + cfgPath},
		"init", "-d", vaultDir, "-x", external, "-t", "tok")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "VaultLink initialized")

	cfg, err := config.LoadFromFile(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, vaultDir, cfg.VaultDir)
	assert.Equal(t, "tok", cfg.Token)
	assert.Equal(t, config.DefaultAddr, cfg.Addr)

	settingsPath := filepath.Join(vaultDir, vault.MetadataDirName, sync.SettingsFileName)
	settings, err := sync.LoadSettings(settingsPath)
	require.NoError(t, err)
	assert.Equal(t, external, settings.ExternalRoot)
	assert.True(t, settings.SyncOnWrite)
}

func TestInitCommand_SecondRunLeavesConfigAlone(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.json")
	vaultDir := filepath.Join(tmp, "vault")

	out, code := runCLI(t, []string{"VAULTLINK_CONFIG_PATH=" + cfgPath}, "init", "-d", vaultDir)
	require.Equal(t, 0, code, out)

	otherVault := filepath.Join(tmp, "other")
	out, code = runCLI(t, []string{"VAULTLINK_CONFIG_PATH=" + cfgPath}, "init", "-d", otherVault)
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "already initialized")

	cfg, err := config.LoadFromFile(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, vaultDir, cfg.VaultDir)
	assert.NoDirExists(t, otherVault)
}
