// SPDX-License-Identifier: AGPL-3.0-or-later
package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/flowd-org/simctl/internal/datafiles"
	"github.com/flowd-org/simctl/internal/job"
	"github.com/flowd-org/simctl/internal/logctx"
)

const developmentVersion = "DEVELOPMENT"

// writeConfigDir records how the job was configured: config/config, copies
// of every fragment used and the model version.
func (e *Engine) writeConfigDir(ctx context.Context, jobDir string, req Request, src *sources) error {
	l := job.Layout(jobDir)
	if err := os.MkdirAll(l.ConfigDir(), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	cfg := &job.Config{
		RunLength: req.RunLength,
		T100:      req.T100,
		Restart:   req.Restart,
	}
	copies := map[string]*fragment{}
	if src.Base != nil {
		cfg.BaseConfigDir, cfg.BaseConfig = src.Base.Dir, src.Base.Name
		copies[job.BaseConfigFile] = src.Base
	}
	if src.User != nil {
		cfg.UserConfigDir, cfg.UserConfig = src.User.Dir, src.User.Name
		copies[job.UserConfigFile] = src.User
	}
	if src.Full != nil {
		cfg.FullConfigDir, cfg.FullConfig = src.Full.Dir, src.Full.Name
		copies[job.FullConfigFile] = src.Full
	}
	if src.Mods != nil {
		cfg.ConfigMods = src.Mods.Path
		copies[job.ModsFile] = src.Mods
	}
	cfg.Stamp(e.now())
	if err := cfg.WriteFile(l.Config()); err != nil {
		return err
	}
	for name, f := range copies {
		dst := filepath.Join(l.ConfigDir(), name)
		if f.Path == dst {
			continue
		}
		if err := datafiles.CopyFile(f.Path, dst); err != nil {
			return fmt.Errorf("record %s: %w", name, err)
		}
	}
	return e.writeModelVersion(ctx, l)
}

// writeModelVersion writes config/model-version. Development builds are
// tagged with the source revision when it can be determined.
func (e *Engine) writeModelVersion(ctx context.Context, l job.Layout) error {
	version := e.settings.Version
	if version == "" || version == developmentVersion {
		rev, err := e.describe(ctx, e.settings.Root)
		if err != nil || rev == "" {
			logctx.From(ctx).Debug("model revision unknown", "root", e.settings.Root, "error", err)
			rev = "UNKNOWN"
		}
		version = developmentVersion + ":" + rev
	}
	return os.WriteFile(l.ModelVersion(), []byte(version+"\n"), 0o644)
}

// gitDescribe returns "git describe --tags HEAD" for the model tree.
func gitDescribe(ctx context.Context, dir string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "describe", "--tags", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
