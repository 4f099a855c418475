// SPDX-License-Identifier: AGPL-3.0-or-later

// Package configloader reads simctl.yaml and resolves the settings the
// commands run with.
package configloader

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/flowd-org/simctl/internal/paths"
	"github.com/flowd-org/simctl/internal/retry"
	"github.com/flowd-org/simctl/internal/types"
	"gopkg.in/yaml.v3"
)

const (
	DefaultVersion         = "DEVELOPMENT"
	DefaultStatusAttempts  = 1000
	DefaultStatusDelay     = time.Millisecond
	DefaultJournalMaxBytes = 64 << 20
)

// Environment overrides, applied after the settings file.
const (
	EnvRoot    = "SIMCTL_ROOT"
	EnvData    = "SIMCTL_DATA"
	EnvJobs    = "SIMCTL_JOBS"
	EnvDataDir = "DATA_DIR"
)

// Load reads the settings file at path and resolves it against the process
// environment. Commands that take overrides of their own use Read and
// Resolve instead.
func Load(path string) (*types.Settings, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := Resolve(cfg, os.LookupEnv, nil); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read decodes the settings file at path without applying the environment
// or defaults. An empty path selects paths.SettingsFile(). A missing file
// yields empty settings.
func Read(path string) (*types.Settings, error) {
	if strings.TrimSpace(path) == "" {
		path = paths.SettingsFile()
	}
	cfg := &types.Settings{}
	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		decoder := yaml.NewDecoder(f)
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode settings %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("open settings: %w", err)
	}
	return cfg, nil
}

// Resolve layers the environment, then overrides (when non-nil), then the
// defaults onto cfg and validates the result. Defaults derived from other
// fields, such as the executable from the version, see every override.
func Resolve(cfg *types.Settings, lookup func(string) (string, bool), overrides func(*types.Settings)) error {
	ApplyEnv(cfg, lookup)
	if overrides != nil {
		overrides(cfg)
	}
	ApplyDefaults(cfg)
	return Validate(cfg)
}

// ApplyEnv overlays environment overrides onto cfg.
func ApplyEnv(cfg *types.Settings, lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&cfg.Root, EnvRoot)
	set(&cfg.Data, EnvData)
	set(&cfg.Jobs, EnvJobs)

	// Data directory precedence: env block in the file > process env > platform default.
	dataDir := ""
	if v, ok := cfg.Env[EnvDataDir]; ok && strings.TrimSpace(v) != "" {
		dataDir = strings.TrimSpace(v)
	}
	if dataDir == "" {
		if v, ok := lookup(EnvDataDir); ok {
			dataDir = strings.TrimSpace(v)
		}
	}
	if dataDir != "" {
		paths.SetDataDirOverride(dataDir)
	}
}

// ApplyDefaults fills unset fields and expands "~" in directory settings.
func ApplyDefaults(cfg *types.Settings) {
	home, _ := os.UserHomeDir()
	if cfg.Data == "" && home != "" {
		cfg.Data = filepath.Join(home, "ctoaster-data")
	}
	if cfg.Jobs == "" && home != "" {
		cfg.Jobs = filepath.Join(home, "ctoaster-jobs")
	}
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.Executable == "" {
		cfg.Executable = DefaultExecutable(cfg.Version)
	}
	if cfg.StatusRead.Attempts <= 0 {
		cfg.StatusRead.Attempts = DefaultStatusAttempts
	}
	if cfg.StatusRead.Delay <= 0 {
		cfg.StatusRead.Delay = types.Duration(DefaultStatusDelay)
	}
	if cfg.Journal.MaxBytes <= 0 {
		cfg.Journal.MaxBytes = DefaultJournalMaxBytes
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	cfg.Root = paths.ExpandHome(cfg.Root)
	cfg.Data = paths.ExpandHome(cfg.Data)
	cfg.Jobs = paths.ExpandHome(cfg.Jobs)
	cfg.Executable = paths.ExpandHome(cfg.Executable)
	cfg.MetricsTextfile = paths.ExpandHome(cfg.MetricsTextfile)

	if cfg.Env == nil {
		cfg.Env = make(map[string]string)
	}
	cfg.Env[EnvDataDir] = paths.DataDir()
}

// DefaultExecutable is the build location of the model executable for a
// version, relative to the jobs directory.
func DefaultExecutable(version string) string {
	return filepath.Join("MODELS", version, platform(), "ship", "carrotcake.exe")
}

// platform names the build directory the way the model build does.
func platform() string {
	if runtime.GOOS == "windows" {
		return "win32"
	}
	return runtime.GOOS
}

// Validate rejects settings no command can work with.
func Validate(cfg *types.Settings) error {
	switch strings.ToLower(cfg.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", cfg.Log.Format)
	}
	if cfg.Jobs == "" {
		return errors.New("jobs directory is not set")
	}
	return nil
}

// ExecutablePath resolves the executable against the jobs directory.
func ExecutablePath(cfg *types.Settings) string {
	if filepath.IsAbs(cfg.Executable) {
		return cfg.Executable
	}
	return filepath.Join(cfg.Jobs, cfg.Executable)
}

// StatusRetry converts the status_read block into a retry policy.
func StatusRetry(cfg *types.Settings) retry.Policy {
	return retry.Policy{
		Attempts: cfg.StatusRead.Attempts,
		Delay:    time.Duration(cfg.StatusRead.Delay),
	}
}
