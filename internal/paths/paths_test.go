// SPDX-License-Identifier: AGPL-3.0-or-later

package paths

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDataDirPrecedence(t *testing.T) {
	t.Setenv(envDataDir, "/srv/simctl-state")
	SetDataDirOverride("")
	if got := DataDir(); got != "/srv/simctl-state" {
		t.Fatalf("DATA_DIR not honoured: %s", got)
	}

	SetDataDirOverride("/tmp/pinned/")
	t.Cleanup(func() { SetDataDirOverride("") })
	if got := DataDir(); got != "/tmp/pinned" {
		t.Fatalf("override not honoured: %s", got)
	}
	if got := DataPath("simctl.db"); got != filepath.Join("/tmp/pinned", "simctl.db") {
		t.Fatalf("unexpected data path %s", got)
	}
}

func TestXDGDefault(t *testing.T) {
	t.Setenv(envDataDir, "")
	t.Setenv(envXDGDataHome, "/xdg")
	SetDataDirOverride("")
	if got := DataDir(); got != filepath.Join("/xdg", appDirName) {
		t.Fatalf("unexpected xdg dir %s", got)
	}
}

func TestSettingsFile(t *testing.T) {
	t.Setenv(envSettings, "")
	SetDataDirOverride("/state")
	t.Cleanup(func() { SetDataDirOverride("") })
	if got := SettingsFile(); got != filepath.Join("/state", settingsName) {
		t.Fatalf("unexpected default settings path %s", got)
	}
	t.Setenv(envSettings, "/etc/simctl.yaml")
	if got := SettingsFile(); got != "/etc/simctl.yaml" {
		t.Fatalf("SIMCTL_CONFIG not honoured: %s", got)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		t.Skip("no home directory")
	}
	if got := ExpandHome("~/ctoaster-jobs"); got != filepath.Join(home, "ctoaster-jobs") {
		t.Fatalf("unexpected expansion %s", got)
	}
	if got := ExpandHome("/abs/~x"); got != "/abs/~x" {
		t.Fatalf("absolute path changed: %s", got)
	}
}
