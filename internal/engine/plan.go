// SPDX-License-Identifier: AGPL-3.0-or-later
package engine

import (
	"context"
	"os"
	"strconv"

	"github.com/flowd-org/simctl/internal/job"
	"github.com/flowd-org/simctl/internal/types"
)

// BuildPlan previews what Configure would do for req without writing
// anything. Missing namelist templates are reported in the plan rather
// than failing it.
func (e *Engine) BuildPlan(ctx context.Context, req Request) (types.Plan, error) {
	if err := req.Validate(); err != nil {
		return types.Plan{}, err
	}
	src, err := e.readSources(req, e.defaultDirs(), nil)
	if err != nil {
		return types.Plan{}, err
	}

	jobDir := e.JobDir(req.JobName)
	plan := types.Plan{
		JobID:      req.JobName,
		JobDir:     jobDir,
		ConfigKind: kindOf(req),
		RunLength:  req.RunLength,
		T100:       req.T100,
		Restart:    src.RestartPath,
		Modules:    src.Modules,
		Defines:    src.Defines,
	}
	for i, l := range src.Stack {
		plan.Layers = append(plan.Layers, types.PlanLayer{Source: src.Labels[i], Keys: len(l)})
	}
	if src.Stepping != nil {
		ts := src.Stack[1]
		plan.Stepping = &types.PlanStepping{
			Steps:    src.Stepping.Steps,
			BioRatio: src.Stepping.BioRatio,
			Timestep: ts["ma_genie_timestep"],
		}
		plan.Derived = map[string]string{
			"ma_koverall_total": ts["ma_koverall_total"],
			"ma_dt_write":       ts["ma_dt_write"],
			"restart":           strconv.FormatBool(req.Restart != ""),
		}
	}

	for _, m := range namelistModules(src.Modules) {
		d, err := e.registry.Lookup(m)
		if err != nil {
			return types.Plan{}, err
		}
		tmpl := e.templatePath(d)
		_, statErr := os.Stat(tmpl)
		plan.Namelists = append(plan.Namelists, types.PlanNamelist{
			Module:   m,
			Prefix:   d.Prefix,
			Template: tmpl,
			Output:   job.Layout(jobDir).Namelist(d.NamelistFile),
			Missing:  statErr != nil,
		})
	}
	return plan, nil
}
