// Package config loads optional bitrate/frequency/geometry overrides for
// fluxtoimd's built-in modulation defaults, following the teacher's
// embedded-default-plus-user-file TOML pattern.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

//go:embed fluxtoimd.toml
var defaultConfigData []byte

// ModulationOverride carries optional per-modulation overrides; a zero
// field means "use the modulation descriptor's built-in default". The CLI
// uses BitRateKbps and SectorsPerTrack (the latter for its missing-sector
// count); BytesPerSector is parsed but not used by any caller.
type ModulationOverride struct {
	BitRateKbps      int `toml:"bitrate_kbps"`
	SectorsPerTrack  int `toml:"sectors_per_track"`
	BytesPerSector   int `toml:"bytes_per_sector"`
}

// Config is the parsed contents of a fluxtoimd.toml override file.
type Config struct {
	FM        ModulationOverride `toml:"fm"`
	MFM       ModulationOverride `toml:"mfm"`
	IntelM2FM ModulationOverride `toml:"intelm2fm"`
	HPM2FM    ModulationOverride `toml:"hpm2fm"`

	DFIFrequencyHz float64 `toml:"dfi_frequency_hz"`
}

// userConfigPath mirrors the teacher's split: AppData on Windows (via
// os.UserConfigDir), $XDG_CONFIG_HOME or the home directory elsewhere.
func userConfigPath() (string, error) {
	if runtime.GOOS == "windows" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine user config directory: %w", err)
		}
		return filepath.Join(dir, "fluxtoimd", "fluxtoimd.toml"), nil
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "fluxtoimd", "fluxtoimd.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine user home directory: %w", err)
	}
	return filepath.Join(home, ".config", "fluxtoimd", "fluxtoimd.toml"), nil
}

// Load parses the embedded defaults, then overlays an explicit path (if
// non-empty) or the user's config file (if present); a missing user file
// is not an error, since overrides are entirely optional.
func Load(explicitPath string) (*Config, error) {
	var conf Config
	if _, err := toml.Decode(string(defaultConfigData), &conf); err != nil {
		return nil, fmt.Errorf("config: parsing embedded defaults: %w", err)
	}

	path := explicitPath
	if path == "" {
		p, err := userConfigPath()
		if err != nil {
			return &conf, nil
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && explicitPath == "" {
			return &conf, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if _, err := toml.Decode(string(data), &conf); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &conf, nil
}

// For looks up the override block for one of "fm", "mfm", "intelm2fm", "hpm2fm".
func (c *Config) For(modulationName string) ModulationOverride {
	switch modulationName {
	case "fm":
		return c.FM
	case "mfm":
		return c.MFM
	case "intelm2fm":
		return c.IntelM2FM
	case "hpm2fm":
		return c.HPM2FM
	default:
		return ModulationOverride{}
	}
}
