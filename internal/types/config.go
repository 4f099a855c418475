// SPDX-License-Identifier: AGPL-3.0-or-later
package types

import (
	"fmt"
	"time"
)

// Settings is the tool configuration read from simctl.yaml.
type Settings struct {
	// Root is the model tree holding src/, data/ and tools/.
	Root string `yaml:"root,omitempty" json:"root"`
	// Data holds base-configs/, user-configs/, full-configs/ and forcings/.
	Data string `yaml:"data,omitempty" json:"data"`
	// Jobs is the root of all job directories.
	Jobs string `yaml:"jobs,omitempty" json:"jobs"`
	// Version is the model version recorded in config/model-version.
	Version string `yaml:"version,omitempty" json:"version"`
	// Executable is relative to Jobs unless absolute.
	Executable      string            `yaml:"executable,omitempty" json:"executable"`
	StatusRead      StatusReadConfig  `yaml:"status_read,omitempty" json:"status_read"`
	StrictNamelists bool              `yaml:"strict_namelists,omitempty" json:"strict_namelists"`
	Journal         JournalConfig     `yaml:"journal,omitempty" json:"journal"`
	MetricsTextfile string            `yaml:"metrics_textfile,omitempty" json:"metrics_textfile,omitempty"`
	Log             LogConfig         `yaml:"log,omitempty" json:"log"`
	Env             map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
}

// StatusReadConfig bounds status file reads.
type StatusReadConfig struct {
	Attempts int      `yaml:"attempts,omitempty" json:"attempts"`
	Delay    Duration `yaml:"delay,omitempty" json:"delay"`
}

// JournalConfig controls the SQLite job journal.
type JournalConfig struct {
	Enabled  *bool `yaml:"enabled,omitempty" json:"enabled"`
	MaxBytes int64 `yaml:"max_bytes,omitempty" json:"max_bytes"`
}

// On reports whether the journal is enabled; it defaults to on.
func (j JournalConfig) On() bool {
	return j.Enabled == nil || *j.Enabled
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level,omitempty" json:"level"`
	Format string `yaml:"format,omitempty" json:"format"`
}

// Duration accepts Go duration strings ("1ms") in YAML.
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText renders the duration for JSON output.
func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (s *Settings) EnvSlice() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.Env))
	for k, v := range s.Env {
		out = append(out, k+"="+v)
	}
	return out
}
