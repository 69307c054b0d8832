package sync

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vaultlink/vaultlink/internal/utils"
)

const (
	// SettingsFileName lives in the vault metadata dir.
	SettingsFileName = "sync.yaml"

	DefaultSyncInterval   = 300
	DefaultHighlightColor = "#4caf50"
)

// Mode selects how the path policy decides what syncs.
type Mode string

const (
	// ModeAllExceptExcluded syncs everything not under an excluded prefix.
	ModeAllExceptExcluded Mode = "all-except-excluded"

	// ModeIncludeListOnly syncs only paths under an included prefix or a
	// mapped external folder.
	ModeIncludeListOnly Mode = "include-list-only"
)

// Settings is the persisted sync configuration of one vault.
type Settings struct {
	Version int `yaml:"version" json:"version"`

	// ExternalRoot is the mirror directory. Empty means sync is not
	// configured and every operation is a no-op.
	ExternalRoot string `yaml:"external_root" json:"external_root"`

	// SyncOnWrite propagates vault content edits to the mirror as they
	// happen. Structural changes propagate regardless.
	SyncOnWrite bool `yaml:"sync_on_write" json:"sync_on_write"`

	// SyncInterval is the full-sync period in seconds. Zero disables the
	// periodic pass.
	SyncInterval int `yaml:"sync_interval" json:"sync_interval"`

	Mode Mode `yaml:"mode" json:"mode"`

	// ExcludedPaths are vault path prefixes kept out of sync in
	// all-except-excluded mode.
	ExcludedPaths []string `yaml:"excluded_paths" json:"excluded_paths"`

	// IncludedPaths are vault path prefixes allowed in include-list-only
	// mode. An empty string entry allows everything.
	IncludedPaths []string `yaml:"included_paths" json:"included_paths"`

	// ExternalFolders map external directories onto top-level vault
	// folders named after their basename.
	ExternalFolders []string `yaml:"external_folders" json:"external_folders"`

	Debug bool `yaml:"debug" json:"debug"`

	// HighlightColor tints synced entries in clients that render them.
	HighlightColor string `yaml:"highlight_color" json:"highlight_color"`
}

func DefaultSettings() *Settings {
	return &Settings{
		Version:         1,
		SyncOnWrite:     true,
		SyncInterval:    DefaultSyncInterval,
		Mode:            ModeAllExceptExcluded,
		ExcludedPaths:   []string{},
		IncludedPaths:   []string{},
		ExternalFolders: []string{},
		HighlightColor:  DefaultHighlightColor,
	}
}

func (m *Mode) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		*m = ModeAllExceptExcluded
		return nil
	}
	mode, err := parseMode(value.Value)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

func (m *Mode) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	mode, err := parseMode(raw)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

func parseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeAllExceptExcluded), "all":
		return ModeAllExceptExcluded, nil
	case string(ModeIncludeListOnly), "include":
		return ModeIncludeListOnly, nil
	case "":
		return ModeAllExceptExcluded, nil
	default:
		return "", fmt.Errorf("invalid sync mode %q", raw)
	}
}

// Validate normalizes paths and rejects settings the engine cannot run on.
func (s *Settings) Validate() error {
	if s.Version == 0 {
		s.Version = 1
	}
	if s.Mode == "" {
		s.Mode = ModeAllExceptExcluded
	}
	if s.SyncInterval < 0 {
		return fmt.Errorf("sync_interval must be >= 0, got %d", s.SyncInterval)
	}
	if s.HighlightColor == "" {
		s.HighlightColor = DefaultHighlightColor
	}

	if s.ExternalRoot != "" {
		root, err := utils.ResolvePath(s.ExternalRoot)
		if err != nil {
			return fmt.Errorf("external_root: %w", err)
		}
		s.ExternalRoot = root
	}

	seen := map[string]string{}
	for i, folder := range s.ExternalFolders {
		resolved, err := utils.ResolvePath(folder)
		if err != nil {
			return fmt.Errorf("external_folders[%d]: %w", i, err)
		}
		s.ExternalFolders[i] = resolved

		base := path.Base(filepath.ToSlash(resolved))
		if prev, dup := seen[base]; dup {
			return fmt.Errorf("external folders %q and %q map to the same vault folder %q", prev, resolved, base)
		}
		seen[base] = resolved
	}

	return nil
}

// LoadSettings reads the settings file, falling back to defaults when it
// does not exist. Keys absent from the file keep their default values.
func LoadSettings(path string) (*Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, err
	}

	cfg := DefaultSettings()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func SaveSettings(path string, cfg *Settings) error {
	if cfg == nil {
		return fmt.Errorf("settings is nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
