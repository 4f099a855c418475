// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine compiles configuration fragments into a job directory:
// derived layers, namelists, input data and restart state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/flowd-org/simctl/internal/datafiles"
	"github.com/flowd-org/simctl/internal/events"
	"github.com/flowd-org/simctl/internal/job"
	"github.com/flowd-org/simctl/internal/logctx"
	"github.com/flowd-org/simctl/internal/metrics"
	"github.com/flowd-org/simctl/internal/modules"
	"github.com/flowd-org/simctl/internal/observability/tracing"
	"github.com/flowd-org/simctl/internal/types"
)

// ErrJobExists is returned when configuring over an existing job without
// overwrite.
var ErrJobExists = errors.New("job already configured")

// Engine builds job directories. It is safe to reuse across jobs.
type Engine struct {
	settings *types.Settings
	registry *modules.Registry
	resolver *datafiles.Resolver
	sink     events.Sink
	now      func() time.Time
	describe func(ctx context.Context, dir string) (string, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithEvents forwards configure events to sink.
func WithEvents(sink events.Sink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithClock overrides the time source used for config_date.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithDescribe overrides how a development model revision is found.
func WithDescribe(fn func(ctx context.Context, dir string) (string, error)) Option {
	return func(e *Engine) { e.describe = fn }
}

// New returns an engine for the given settings and module table.
func New(settings *types.Settings, registry *modules.Registry, opts ...Option) *Engine {
	e := &Engine{
		settings: settings,
		registry: registry,
		resolver: &datafiles.Resolver{ModelRoot: settings.Root, DataRoot: settings.Data},
		now:      time.Now,
		describe: gitDescribe,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SourceDir is the directory holding per-module namelist templates.
func (e *Engine) SourceDir() string {
	return filepath.Join(e.settings.Root, "src")
}

// JobDir resolves a job name against the jobs directory.
func (e *Engine) JobDir(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(e.settings.Jobs, name)
}

// Result summarises a configure run.
type Result struct {
	JobDir    string   `json:"job_dir"`
	Modules   []string `json:"modules"`
	Namelists []string `json:"namelists"`
	DataFiles int      `json:"data_files"`
	// Unresolved counts candidate data file names that matched nothing.
	Unresolved   int                 `json:"unresolved"`
	RestartFiles int                 `json:"restart_files"`
	UnknownKeys  map[string][]string `json:"unknown_keys,omitempty"`
}

// Configure creates the job directory for req and generates everything the
// simulation reads at start-up.
func (e *Engine) Configure(ctx context.Context, req Request) (res *Result, err error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	jobDir := e.JobDir(req.JobName)
	ctx, span := tracing.Start(ctx, "engine.configure", tracing.JobDir(jobDir))
	started := time.Now()
	defer func() {
		n := 0
		if res != nil {
			n = len(res.Namelists)
		}
		metrics.ObserveConfigure(err, time.Since(started), n)
		tracing.End(span, &err)
	}()

	src, err := e.readSources(req, e.defaultDirs(), nil)
	if err != nil {
		return nil, err
	}
	built, err := e.buildNamelists(ctx, src, req.Strict || e.settings.StrictNamelists)
	if err != nil {
		return nil, err
	}

	if req.Overwrite {
		if err := os.RemoveAll(jobDir); err != nil {
			return nil, fmt.Errorf("remove job directory: %w", err)
		}
	} else if _, err := os.Stat(job.Layout(jobDir).Sentinel()); err == nil {
		return nil, fmt.Errorf("%w: %s (use --overwrite)", ErrJobExists, jobDir)
	}
	if err := e.makeDirs(jobDir, src); err != nil {
		return nil, err
	}
	if err := e.writeConfigDir(ctx, jobDir, req, src); err != nil {
		return nil, err
	}
	res, err = e.generate(ctx, jobDir, src, built)
	if err != nil {
		return nil, err
	}

	logctx.From(ctx).Info("job configured",
		"job_dir", jobDir, "modules", len(src.Modules), "namelists", len(res.Namelists),
		"data_files", res.DataFiles, "unresolved", res.Unresolved)
	if e.sink != nil {
		e.sink.EmitConfigured(req.JobName, map[string]any{
			"kind":       kindOf(req),
			"run_length": req.RunLength,
			"t100":       req.T100,
			"modules":    len(src.Modules),
			"namelists":  len(res.Namelists),
		})
	}
	return res, nil
}

func kindOf(req Request) string {
	if req.BaseAndUser() {
		return "base+user"
	}
	return "full"
}

// makeDirs creates input/ and output/ for every module and main, plus
// restart/ when continuing from another run.
func (e *Engine) makeDirs(jobDir string, src *sources) error {
	l := job.Layout(jobDir)
	mods := append(append([]string{}, src.Modules...), "main")
	for _, m := range mods {
		dirs := []string{l.Input(m), l.Output(m)}
		if src.RestartPath != "" {
			dirs = append(dirs, l.Restart(m))
		}
		for _, d := range dirs {
			if err := os.MkdirAll(d, 0o755); err != nil {
				return fmt.Errorf("create job directory: %w", err)
			}
		}
	}
	return nil
}

// generate writes the namelists and copies data and restart files.
func (e *Engine) generate(ctx context.Context, jobDir string, src *sources, built []builtNamelist) (*Result, error) {
	l := job.Layout(jobDir)
	res := &Result{JobDir: jobDir, Modules: src.Modules, UnknownKeys: map[string][]string{}}
	for _, b := range built {
		if len(b.Unknown) > 0 {
			res.UnknownKeys[b.Descriptor.Name] = b.Unknown
		}
	}
	if len(res.UnknownKeys) == 0 {
		res.UnknownKeys = nil
	}

	// The sentinel namelist is written last so a half-generated job still
	// reads as UNCONFIGURED.
	ordered := make([]builtNamelist, 0, len(built))
	var sentinel *builtNamelist
	for i := range built {
		if "data_"+built[i].Descriptor.NamelistFile == job.SentinelNamelist {
			sentinel = &built[i]
			continue
		}
		ordered = append(ordered, built[i])
	}
	if sentinel != nil {
		ordered = append(ordered, *sentinel)
	}

	for _, b := range ordered {
		module := b.Descriptor.Name
		out := l.Namelist(b.Descriptor.NamelistFile)
		if err := b.Namelist.WriteFile(out); err != nil {
			return nil, fmt.Errorf("write namelist for %s: %w", module, err)
		}
		res.Namelists = append(res.Namelists, filepath.Base(out))

		if err := os.MkdirAll(l.Input(module), 0o755); err != nil {
			return nil, fmt.Errorf("create input directory: %w", err)
		}
		dr := e.resolver.Resolve(ctx, module, b.Namelist, l.Input(module), datafiles.Extras(module, src.Modules))
		res.DataFiles += len(dr.Copied)
		res.Unresolved += len(dr.Unresolved)
		metrics.RecordDataFiles(len(dr.Copied), len(dr.Unresolved))

		if src.RestartPath != "" {
			if err := os.MkdirAll(l.Restart(module), 0o755); err != nil {
				return nil, fmt.Errorf("create restart directory: %w", err)
			}
			copied, err := datafiles.CopyRestartFiles(src.RestartPath, module, l.Restart(module))
			if err != nil {
				return nil, err
			}
			res.RestartFiles += len(copied)
		}
	}

	res.DataFiles += len(e.resolver.CopyTracerDefinitions(ctx, l.Input("main")))
	return res, nil
}
