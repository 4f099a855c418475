// SPDX-License-Identifier: AGPL-3.0-or-later

// Package paths resolves the directory simctl keeps its own state in (the
// journal database and the default settings file).
package paths

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
)

const (
	appDirName     = "simctl"
	envDataDir     = "DATA_DIR"
	envXDGDataHome = "XDG_DATA_HOME"
	envProgramData = "PROGRAMDATA"
	envSettings    = "SIMCTL_CONFIG"
	settingsName   = "simctl.yaml"
)

var override atomic.Pointer[string]

// SetDataDirOverride pins the state directory, typically from the data_dir
// setting. An empty dir removes the pin.
func SetDataDirOverride(dir string) {
	if dir == "" {
		override.Store(nil)
		return
	}
	clean := filepath.Clean(dir)
	override.Store(&clean)
}

// candidate yields a state directory, or "" when it does not apply.
type candidate func() string

// DataDir returns the first applicable of: the override, $DATA_DIR, the
// platform location ($XDG_DATA_HOME/simctl or ~/.local/share/simctl, and
// %ProgramData%\Simctl\data on Windows), ./simctl and finally the temp dir.
func DataDir() string {
	for _, c := range candidates() {
		if dir := c(); dir != "" {
			return dir
		}
	}
	return filepath.Join(os.TempDir(), appDirName)
}

func candidates() []candidate {
	list := []candidate{
		func() string {
			if p := override.Load(); p != nil {
				return *p
			}
			return ""
		},
		func() string { return cleanEnv(envDataDir) },
	}
	if runtime.GOOS == "windows" {
		list = append(list,
			under(func() string { return os.Getenv(envProgramData) }, "Simctl", "data"),
			under(home, "AppData", "Local", "Simctl", "data"),
		)
	}
	return append(list,
		under(func() string { return os.Getenv(envXDGDataHome) }, appDirName),
		under(home, ".local", "share", appDirName),
		under(workdir, appDirName),
	)
}

// under joins elem onto base() when base() is non-empty.
func under(base func() string, elem ...string) candidate {
	return func() string {
		b := base()
		if b == "" {
			return ""
		}
		return filepath.Join(append([]string{b}, elem...)...)
	}
}

func cleanEnv(key string) string {
	if v := os.Getenv(key); v != "" {
		return filepath.Clean(v)
	}
	return ""
}

func home() string {
	h, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return h
}

func workdir() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return wd
}

// DataPath joins elem onto DataDir.
func DataPath(elem ...string) string {
	return filepath.Join(append([]string{DataDir()}, elem...)...)
}

// SettingsFile returns $SIMCTL_CONFIG, or simctl.yaml in the data directory.
func SettingsFile() string {
	if p := os.Getenv(envSettings); p != "" {
		return ExpandHome(p)
	}
	return DataPath(settingsName)
}

// ExpandHome replaces a leading "~" path element with the home directory.
func ExpandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	h := home()
	if h == "" {
		return p
	}
	return filepath.Join(h, p[1:])
}
