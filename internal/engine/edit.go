// SPDX-License-Identifier: AGPL-3.0-or-later
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/flowd-org/simctl/internal/configloader"
	"github.com/flowd-org/simctl/internal/control"
	"github.com/flowd-org/simctl/internal/job"
	"github.com/flowd-org/simctl/internal/layers"
	"github.com/flowd-org/simctl/internal/logctx"
	"github.com/flowd-org/simctl/internal/observability/tracing"
)

// ErrJobRunning is returned when editing a job the simulation is running.
var ErrJobRunning = errors.New("job is running")

// Edit changes the recorded configuration of an existing job. Nil fields
// are left as they are.
type Edit struct {
	RunLength *int
	T100      *bool
	// Mods replaces the overlay text; an empty string removes it.
	Mods    *string
	Restart *string
	Strict  bool
}

// EditResult reports what an edit did besides regenerating the job.
type EditResult struct {
	*Result
	// Segment is the run segment closed before the edit, if any.
	Segment *job.Segment `json:"segment,omitempty"`
	// Reopened is set when a COMPLETE job was marked PAUSED because its
	// run length grew.
	Reopened bool `json:"reopened"`
}

// Controller returns a controller for the named job using the configured
// status read policy.
func (e *Engine) Controller(name string) *control.Controller {
	opts := []control.Option{
		control.WithID(name),
		control.WithRetry(configloader.StatusRetry(e.settings)),
	}
	if e.sink != nil {
		opts = append(opts, control.WithEvents(e.sink))
	}
	return control.New(e.JobDir(name), opts...)
}

// Reconfigure applies ed to the named job. A PAUSED or COMPLETE job first
// has its current run segment archived, so the history records which
// configuration produced which steps. The namelists are then regenerated
// from the job's recorded configuration.
func (e *Engine) Reconfigure(ctx context.Context, name string, ed Edit) (res *EditResult, err error) {
	dir := e.JobDir(name)
	ctx, span := tracing.Start(ctx, "engine.reconfigure", tracing.JobDir(dir))
	defer tracing.End(span, &err)

	j, err := job.Load(e.settings.Jobs, dir)
	if err != nil {
		return nil, err
	}
	ctl := e.Controller(name)
	state, err := ctl.JobState(ctx)
	if err != nil {
		return nil, err
	}
	if state == job.StateRunning {
		return nil, fmt.Errorf("%w: %s", ErrJobRunning, name)
	}

	// Nothing in the job directory changes until the edited configuration
	// has produced every namelist.
	cfg := *j.Config
	l := j.Layout()
	grew := false
	if ed.RunLength != nil {
		grew = *ed.RunLength > cfg.RunLength
		cfg.RunLength = *ed.RunLength
	}
	if ed.T100 != nil {
		cfg.T100 = *ed.T100
	}
	if ed.Restart != nil {
		cfg.Restart = *ed.Restart
	}

	req := Request{
		JobName:    name,
		RunLength:  cfg.RunLength,
		BaseConfig: cfg.BaseConfig,
		UserConfig: cfg.UserConfig,
		FullConfig: cfg.FullConfig,
		Restart:    cfg.Restart,
		T100:       cfg.T100,
		Strict:     ed.Strict,
	}
	var mods *fragment
	switch {
	case ed.Mods == nil:
		if _, err := os.Stat(l.Mods()); err == nil {
			req.ConfigMods = l.Mods()
		}
	case *ed.Mods != "":
		layer, err := layers.Parse(strings.NewReader(*ed.Mods))
		if err != nil {
			return nil, fmt.Errorf("parse config mods: %w", err)
		}
		req.ConfigMods = l.Mods()
		mods = &fragment{Name: job.ModsFile, Dir: l.ConfigDir(), Path: l.Mods(), Layer: layer}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	src, err := e.readSources(req, e.recordedDirs(&cfg), mods)
	if err != nil {
		return nil, err
	}
	built, err := e.buildNamelists(ctx, src, req.Strict || e.settings.StrictNamelists)
	if err != nil {
		return nil, err
	}

	res = &EditResult{}
	if res.Segment, err = ctl.ArchiveIfNeeded(ctx); err != nil {
		return nil, err
	}
	if ed.Mods != nil {
		if mods == nil {
			if err := os.Remove(l.Mods()); err != nil && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("remove config mods: %w", err)
			}
			cfg.ConfigMods = ""
		} else {
			if err := os.WriteFile(l.Mods(), []byte(*ed.Mods), 0o644); err != nil {
				return nil, fmt.Errorf("write config mods: %w", err)
			}
			cfg.ConfigMods = l.Mods()
		}
	}
	if grew && state == job.StateComplete {
		if res.Reopened, err = ctl.MarkPausedOnExtend(ctx); err != nil {
			return nil, err
		}
	}
	cfg.Stamp(e.now())
	if err := cfg.WriteFile(l.Config()); err != nil {
		return nil, err
	}
	if err := e.makeDirs(dir, src); err != nil {
		return nil, err
	}
	if res.Result, err = e.generate(ctx, dir, src, built); err != nil {
		return nil, err
	}

	logctx.From(ctx).Info("job reconfigured", "job_dir", dir, "run_length", cfg.RunLength, "reopened", res.Reopened)
	if e.sink != nil {
		data := map[string]any{
			"kind":       cfg.Kind(),
			"run_length": cfg.RunLength,
			"t100":       cfg.T100,
			"edit":       true,
		}
		if res.Segment != nil {
			data["segment"] = res.Segment.Number
		}
		e.sink.EmitConfigured(name, data)
	}
	return res, nil
}

// recordedDirs prefers the directories stored in the job config.
func (e *Engine) recordedDirs(cfg *job.Config) dirs {
	d := e.defaultDirs()
	if cfg.BaseConfigDir != "" {
		d.base = cfg.BaseConfigDir
	}
	if cfg.UserConfigDir != "" {
		d.user = cfg.UserConfigDir
	}
	if cfg.FullConfigDir != "" {
		d.full = cfg.FullConfigDir
	}
	return d
}
