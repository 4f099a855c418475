// SPDX-License-Identifier: AGPL-3.0-or-later

package datafiles

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flowd-org/simctl/internal/logctx"
)

// Per-module data files that no namelist value names.
var (
	climateExtras = []string{
		"inv_linterp_matrix.dat",
		"NCEP_airt_monthly.dat",
		"NCEP_pptn_monthly.dat",
		"NCEP_RH_monthly.dat",
		"atm_albedo_monthly.dat",
		"uvic_windx.silo",
		"uvic_windy.silo",
		"monthly_windspd.silo",
	}
	landExtras     = []string{"ents_config.par", "sealevel_config.par"}
	sedimentExtras = []string{"lookup_calcite_4.dat", "lookup_opal_5.dat"}
)

// TracerDefinitions are copied from data/main into input/main for every job.
var TracerDefinitions = []string{"tracer_define.atm", "tracer_define.ocn", "tracer_define.sed"}

// Extras returns the extra data files for module given the active module set.
// The atmosphere tables are needed by embm only when ents is also active.
// The returned slice is freshly allocated.
func Extras(module string, active []string) []string {
	has := func(m string) bool {
		for _, a := range active {
			if a == m {
				return true
			}
		}
		return false
	}
	var out []string
	switch module {
	case "embm":
		if has("ents") {
			out = append(out, climateExtras...)
		}
	case "ents":
		out = append(out, landExtras...)
	case "sedgem":
		out = append(out, sedimentExtras...)
	}
	return out
}

// CopyTracerDefinitions copies the tracer definition files into outDir.
// Missing files are skipped.
func (r *Resolver) CopyTracerDefinitions(ctx context.Context, outDir string) []string {
	src := filepath.Join(r.ModelRoot, "data", "main")
	var copied []string
	for _, name := range TracerDefinitions {
		if err := CopyFile(filepath.Join(src, name), filepath.Join(outDir, name)); err != nil {
			logctx.From(ctx).Debug("tracer definition not copied", "name", name, "error", err)
			continue
		}
		copied = append(copied, name)
	}
	return copied
}

// CopyRestartFiles copies restart state for module from restartDir/<module>
// into outDir: files matching *rst* or *restart*, plus sedcore.nc.
func CopyRestartFiles(restartDir, module, outDir string) ([]string, error) {
	in := filepath.Join(restartDir, module)
	var files []string
	for _, pattern := range []string{"*rst*", "*restart*"} {
		m, err := filepath.Glob(filepath.Join(in, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, m...)
	}
	if _, err := os.Stat(filepath.Join(in, "sedcore.nc")); err == nil {
		files = append(files, filepath.Join(in, "sedcore.nc"))
	}

	var copied []string
	seen := map[string]struct{}{}
	for _, f := range files {
		base := filepath.Base(f)
		if _, ok := seen[base]; ok {
			continue
		}
		seen[base] = struct{}{}
		if info, err := os.Stat(f); err != nil || !info.Mode().IsRegular() {
			continue
		}
		if err := CopyFile(f, filepath.Join(outDir, base)); err != nil {
			return copied, fmt.Errorf("copy restart file %s: %w", f, err)
		}
		copied = append(copied, base)
	}
	return copied, nil
}
