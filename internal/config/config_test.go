package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func TestDefaultPassesValidate(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default(): %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		mod  func(c *Config)
	}{
		{"empty work dir", func(c *Config) { c.WorkDir = "" }},
		{"zero workers", func(c *Config) { c.Workers = 0 }},
		{"too many workers", func(c *Config) { c.Workers = 51 }},
		{"zero queue size", func(c *Config) { c.WorkerQueueSize = 0 }},
		{"negative min disk", func(c *Config) { c.MinDiskGB = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mod(c)
			if err := c.Validate(); err == nil {
				t.Errorf("expected Validate to reject %s", tt.name)
			}
		})
	}
}

func TestLoadAppliesConfigFileOverDefault(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.yaml")
	contents := "workers: 12\nmin-disk-gb: 9.5\n"
	if err := os.WriteFile(cfgFile, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg := Default()
	cfg.AddFlags(fs)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	loaded, err := Load(fs, cfgFile)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Workers != 12 {
		t.Errorf("Workers = %d, want 12", loaded.Workers)
	}
	if loaded.MinDiskGB != 9.5 {
		t.Errorf("MinDiskGB = %v, want 9.5", loaded.MinDiskGB)
	}
	// Untouched defaults should survive.
	if loaded.WorkerQueueSize != Default().WorkerQueueSize {
		t.Errorf("WorkerQueueSize = %d, want default %d", loaded.WorkerQueueSize, Default().WorkerQueueSize)
	}
}

func TestLoadFlagOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgFile, []byte("workers: 12\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg := Default()
	cfg.AddFlags(fs)
	if err := fs.Parse([]string{"--workers=20"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	loaded, err := Load(fs, cfgFile)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Workers != 20 {
		t.Errorf("Workers = %d, want 20 (flag should win over file)", loaded.Workers)
	}
}

func TestLoadWithNoConfigFileFallsBackToDefault(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg := Default()
	cfg.AddFlags(fs)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	// An empty configFile falls through to viper's search-path lookup,
	// which reports ConfigFileNotFoundError (handled) rather than erroring
	// outright, unlike an explicit path that does not exist.
	loaded, err := Load(fs, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Workers != Default().Workers {
		t.Errorf("Workers = %d, want default %d", loaded.Workers, Default().Workers)
	}
}

func TestLoadExplicitMissingConfigFileErrors(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg := Default()
	cfg.AddFlags(fs)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if _, err := Load(fs, filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error when an explicitly named config file does not exist")
	}
}
