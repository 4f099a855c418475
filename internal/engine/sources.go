// SPDX-License-Identifier: AGPL-3.0-or-later
package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flowd-org/simctl/internal/derive"
	"github.com/flowd-org/simctl/internal/layers"
)

// Subdirectories of the data directory.
const (
	BaseConfigsDir = "base-configs"
	UserConfigsDir = "user-configs"
	FullConfigsDir = "full-configs"
	ForcingsDir    = "forcings"
	configExt      = ".config"
)

// ErrRestartNotFound is returned when the restart job has no output.
var ErrRestartNotFound = errors.New("restart job does not exist")

// fragment is one configuration file found on disk.
type fragment struct {
	Name  string
	Dir   string
	Path  string
	Layer layers.Layer
}

// sources is everything read and derived before any file is written.
type sources struct {
	Base, User, Full, Mods *fragment

	// Stack is the full override order, derived layers included.
	Stack   layers.Stack
	Labels  []string
	Defines map[string]int
	// Stepping is nil for full configurations.
	Stepping    *derive.Stepping
	Modules     []string
	RestartPath string
}

// locate finds a named fragment. A name that exists as a path is used as
// is; otherwise it is looked up in dir, with ext appended first.
func locate(name, dir, ext, what string) (*fragment, error) {
	if _, err := os.Stat(name); err == nil {
		abs, err := filepath.Abs(name)
		if err != nil {
			return nil, err
		}
		return readFragment(filepath.Base(abs), filepath.Dir(abs), abs, what)
	}
	candidates := []string{filepath.Join(dir, name)}
	if ext != "" {
		candidates = append([]string{filepath.Join(dir, name+ext)}, candidates...)
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return readFragment(name, dir, p, what)
		}
	}
	return nil, &layers.NotFoundError{What: what, Path: candidates[0]}
}

func readFragment(name, dir, path, what string) (*fragment, error) {
	l, err := layers.Read(path, what)
	if err != nil {
		return nil, err
	}
	return &fragment{Name: name, Dir: dir, Path: path, Layer: l}, nil
}

// dirs are the search directories for named fragments.
type dirs struct {
	base, user, full string
}

func (e *Engine) defaultDirs() dirs {
	return dirs{
		base: filepath.Join(e.settings.Data, BaseConfigsDir),
		user: filepath.Join(e.settings.Data, UserConfigsDir),
		full: filepath.Join(e.settings.Data, FullConfigsDir),
	}
}

// readSources reads the configuration fragments of req and derives the
// layer stack and module set. A non-nil mods replaces req.ConfigMods, so an
// edit can be checked before its overlay is written.
func (e *Engine) readSources(req Request, d dirs, mods *fragment) (*sources, error) {
	src := &sources{}
	var user layers.Layer
	if req.BaseAndUser() {
		var err error
		if src.Base, err = locate(req.BaseConfig, d.base, configExt, "base configuration"); err != nil {
			return nil, err
		}
		if src.User, err = locate(req.UserConfig, d.user, "", "user configuration"); err != nil {
			return nil, err
		}
		user = src.User.Layer
		src.Stack = layers.Stack{src.Base.Layer, user}
		src.Labels = []string{"base:" + src.Base.Name, "user:" + src.User.Name}
		src.Mods = mods
		if src.Mods == nil && req.ConfigMods != "" {
			if src.Mods, err = locate(req.ConfigMods, "", "", "configuration modifications"); err != nil {
				return nil, err
			}
		}
		if src.Mods != nil {
			src.Stack = append(src.Stack, src.Mods.Layer)
			src.Labels = append(src.Labels, "mods:"+src.Mods.Name)
		}
	} else {
		var err error
		if src.Full, err = locate(req.FullConfig, d.full, configExt, "full configuration"); err != nil {
			return nil, err
		}
		src.Stack = layers.Stack{src.Full.Layer}
		src.Labels = []string{"full:" + src.Full.Name}
	}

	defs, err := layers.ExtractDefines(src.Stack)
	if err != nil {
		return nil, fmt.Errorf("extract grid definitions: %w", err)
	}
	src.Defines = defs

	// Modules come from the configured layers only; the derived layers
	// never carry enable flags.
	active := layers.ActiveFlags(layers.MergeFlags(layers.FlagLayers(src.Stack)...))
	if src.Modules, err = e.registry.ModulesFromFlags(active); err != nil {
		return nil, err
	}

	// Full configurations carry their own time-stepping and restart
	// options; only base+user jobs get the derived layers.
	if req.BaseAndUser() {
		g, err := derive.GridFromDefines(defs)
		if err != nil {
			return nil, err
		}
		ts, st := derive.Timestepping(req.RunLength, g, req.T100)
		src.Stepping = &st
		rst := derive.RestartOptions(req.Restart != "")
		stack := layers.Stack{src.Stack[0], ts, rst}
		stack = append(stack, src.Stack[1:]...)
		labels := []string{src.Labels[0], "timestepping", "restart"}
		labels = append(labels, src.Labels[1:]...)
		src.Stack, src.Labels = stack, labels
	}
	src.Stack = append(src.Stack, derive.Coordinates(defs))
	src.Labels = append(src.Labels, "coordinates")

	if req.Restart != "" {
		if src.RestartPath, err = e.restartPath(req.Restart); err != nil {
			return nil, err
		}
	}
	return src, nil
}

// restartPath resolves a restart reference: an existing path is used as
// is, otherwise it names a job whose output directory is used.
func (e *Engine) restartPath(restart string) (string, error) {
	if _, err := os.Stat(restart); err == nil {
		return filepath.Abs(restart)
	}
	p := filepath.Join(e.settings.Jobs, restart, "output")
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("%w: %s", ErrRestartNotFound, restart)
	}
	return p, nil
}
