// SPDX-License-Identifier: AGPL-3.0-or-later

package job

import "path/filepath"

// Well-known names inside a job directory.
const (
	StatusFile       = "status"
	CommandFile      = "command"
	RunLogFile       = "run.log"
	ConfigDir        = "config"
	ConfigFile       = "config"
	ModsFile         = "config_mods"
	BaseConfigFile   = "base_config"
	UserConfigFile   = "user_config"
	FullConfigFile   = "full_config"
	ModelVersionFile = "model-version"
	SegmentLedger    = "seglist"
	SegmentsDir      = "segments"
	InputDir         = "input"
	OutputDir        = "output"
	RestartDir       = "restart"
	// SentinelNamelist exists once namelists have been generated.
	SentinelNamelist = "data_genie"
)

// ArchivedConfigFiles are copied into each segment directory.
var ArchivedConfigFiles = []string{ConfigFile, BaseConfigFile, UserConfigFile, FullConfigFile, ModsFile}

// Layout resolves paths inside one job directory.
type Layout string

// Dir returns the job directory.
func (l Layout) Dir() string { return string(l) }

// Join resolves elem relative to the job directory.
func (l Layout) Join(elem ...string) string {
	return filepath.Join(append([]string{string(l)}, elem...)...)
}

func (l Layout) Status() string       { return l.Join(StatusFile) }
func (l Layout) Command() string      { return l.Join(CommandFile) }
func (l Layout) RunLog() string       { return l.Join(RunLogFile) }
func (l Layout) ConfigDir() string    { return l.Join(ConfigDir) }
func (l Layout) Config() string       { return l.Join(ConfigDir, ConfigFile) }
func (l Layout) Mods() string         { return l.Join(ConfigDir, ModsFile) }
func (l Layout) Ledger() string       { return l.Join(ConfigDir, SegmentLedger) }
func (l Layout) Segments() string     { return l.Join(ConfigDir, SegmentsDir) }
func (l Layout) Sentinel() string     { return l.Join(SentinelNamelist) }
func (l Layout) ModelVersion() string { return l.Join(ConfigDir, ModelVersionFile) }

// Segment returns the archive directory of segment n.
func (l Layout) Segment(n int) string {
	return filepath.Join(l.Segments(), itoa(n))
}

// Namelist returns the output path for a namelist file name.
func (l Layout) Namelist(file string) string { return l.Join("data_" + file) }

// Input returns the per-module input directory.
func (l Layout) Input(module string) string { return l.Join(InputDir, module) }

// Output returns the per-module output directory.
func (l Layout) Output(module string) string { return l.Join(OutputDir, module) }

// Restart returns the per-module restart directory.
func (l Layout) Restart(module string) string { return l.Join(RestartDir, module) }
