package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingExplicitPathFails(t *testing.T) {
	conf, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err == nil {
		t.Fatal("explicit nonexistent path should fail")
	}
	if conf != nil {
		t.Error("Load should return a nil config on failure")
	}
}

func TestLoadExplicitOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fluxtoimd.toml")
	contents := "[fm]\nbitrate_kbps = 300\n"
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	conf, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if conf.For("fm").BitRateKbps != 300 {
		t.Errorf("fm.bitrate_kbps = %d, want 300", conf.For("fm").BitRateKbps)
	}
	if conf.For("mfm").BitRateKbps != 0 {
		t.Errorf("mfm.bitrate_kbps = %d, want 0 (not overridden)", conf.For("mfm").BitRateKbps)
	}
}

func TestForUnknownModulationReturnsZeroValue(t *testing.T) {
	conf := &Config{FM: ModulationOverride{BitRateKbps: 300}}
	if got := conf.For("nonsense"); got != (ModulationOverride{}) {
		t.Errorf("For(\"nonsense\") = %+v, want the zero value", got)
	}
}
