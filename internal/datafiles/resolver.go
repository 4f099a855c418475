// SPDX-License-Identifier: AGPL-3.0-or-later

// Package datafiles discovers the auxiliary data and restart files a
// generated namelist refers to and copies them into the job directory.
//
// Namelists often carry only part of a data file name, so the search
// over-copies rather than risk leaving an input behind. Nothing here fails a
// configure run: unresolved names and copy errors are logged at debug level.
package datafiles

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/flowd-org/simctl/internal/logctx"
	"github.com/flowd-org/simctl/internal/namelist"
)

// Resolver copies data files from the model tree and the shared forcings
// directory.
type Resolver struct {
	// ModelRoot holds data/<module>/ with per-module data files.
	ModelRoot string
	// DataRoot holds forcings/<name>/ directories.
	DataRoot string
}

// Result reports what a Resolve call did.
type Result struct {
	Copied     []string
	Unresolved []string
}

// nonFilePrefixes mark values that are job-relative paths rather than data
// file names.
var nonFilePrefixes = []string{"output/", "restart/", "/"}

// Candidates returns the basenames of namelist values that may name a data
// file.
func Candidates(module string, nl *namelist.Namelist) []string {
	var out []string
	for _, k := range nl.Keys() {
		v := nl.Entries[k]
		if !isDataItem(module, v) {
			continue
		}
		switch base := filepath.Base(v.Raw); base {
		case ".", "..", string(filepath.Separator):
		default:
			out = append(out, base)
		}
	}
	return out
}

func isDataItem(module string, v namelist.Value) bool {
	if v.Kind != namelist.KindString || v.Raw == "" {
		return false
	}
	switch strings.ToLower(v.Raw) {
	case "n", "y", module:
		return false
	}
	if namelist.LooksNumeric(v.Raw) || v.Raw == "input/"+module {
		return false
	}
	for _, p := range nonFilePrefixes {
		if strings.HasPrefix(v.Raw, p) {
			return false
		}
	}
	return true
}

// Resolve copies every file the namelist and extras refer to into outDir.
// Each candidate is tried as an exact file in the module data directory, then
// as a directory under forcings, then as a substring match in the module data
// directory.
func (r *Resolver) Resolve(ctx context.Context, module string, nl *namelist.Namelist, outDir string, extras []string) Result {
	logger := logctx.From(ctx).With("module", module)
	moduleData := filepath.Join(r.ModelRoot, "data", module)
	forcings := filepath.Join(r.DataRoot, "forcings")

	var res Result
	for _, name := range dedupe(append(Candidates(module, nl), extras...)) {
		switch {
		case r.exact(moduleData, name, outDir) == nil:
			res.Copied = append(res.Copied, name)
		case r.forcing(forcings, name, outDir) == nil:
			res.Copied = append(res.Copied, name)
		default:
			matched := r.partial(logger, moduleData, name, outDir)
			if len(matched) > 0 {
				res.Copied = append(res.Copied, matched...)
				continue
			}
			res.Unresolved = append(res.Unresolved, name)
			logger.Debug("data file unresolved", "name", name)
		}
	}
	return res
}

func (r *Resolver) exact(dir, name, outDir string) error {
	return CopyFile(filepath.Join(dir, name), filepath.Join(outDir, name))
}

func (r *Resolver) forcing(dir, name, outDir string) error {
	return copyTree(filepath.Join(dir, name), filepath.Join(outDir, name))
}

func (r *Resolver) partial(logger *slog.Logger, dir, name, outDir string) []string {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+name+"*"))
	if err != nil {
		logger.Debug("data file pattern rejected", "name", name, "error", err)
		return nil
	}
	var copied []string
	for _, m := range matches {
		base := filepath.Base(m)
		if err := CopyFile(m, filepath.Join(outDir, base)); err != nil {
			logger.Debug("data file copy failed", "path", m, "error", err)
			continue
		}
		copied = append(copied, base)
	}
	return copied
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := names[:0:0]
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
