// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/flowd-org/simctl/internal/configloader"
	"github.com/flowd-org/simctl/internal/coredb"
	"github.com/flowd-org/simctl/internal/engine"
	"github.com/flowd-org/simctl/internal/events"
	"github.com/flowd-org/simctl/internal/logctx"
	"github.com/flowd-org/simctl/internal/metrics"
	"github.com/flowd-org/simctl/internal/modules"
	"github.com/flowd-org/simctl/internal/types"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Version is stamped by the build.
var Version = "dev"

// app carries what every command needs once settings are loaded.
type app struct {
	settingsPath string
	root         string
	data         string
	jobs         string
	version      string
	logLevel     string
	logFormat    string
	eventsFormat string

	out io.Writer
	err io.Writer

	settings *types.Settings
	logger   *slog.Logger
	db       *coredb.DB
	journal  *coredb.Journal
	sink     events.Sink
	registry *modules.Registry
}

func settingsFlags(a *app) *pflag.FlagSet {
	fs := pflag.NewFlagSet("settings", pflag.ContinueOnError)
	fs.StringVar(&a.settingsPath, "settings", "", "Settings file (default $SIMCTL_CONFIG or <data dir>/simctl.yaml)")
	fs.StringVar(&a.root, "root", "", "Model tree holding src/, data/ and tools/")
	fs.StringVar(&a.data, "data", "", "User data directory holding the configuration fragments")
	fs.StringVar(&a.jobs, "jobs", "", "Jobs directory")
	fs.StringVar(&a.version, "model-version", "", "Model version used to locate the executable")
	fs.StringVar(&a.logLevel, "log-level", "", "Log level (debug|info|warn|error)")
	fs.StringVar(&a.logFormat, "log-format", "", "Log format (text|json)")
	fs.StringVar(&a.eventsFormat, "events", "none", "Echo job events to stderr (none|text|json)")
	return fs
}

// NewRootCmd builds the simctl command tree writing to out and errOut.
func NewRootCmd(out, errOut io.Writer) *cobra.Command {
	root, _ := newRoot(out, errOut)
	return root
}

func newRoot(out, errOut io.Writer) (*cobra.Command, *app) {
	a := &app{out: out, err: errOut}
	root := &cobra.Command{
		Use:           "simctl",
		Short:         "Configure, run and track Earth-system model jobs",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[annotationNoSettings] == "true" {
				return nil
			}
			return a.setup(cmd)
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().AddFlagSet(settingsFlags(a))

	root.AddCommand(
		NewConfigureCmd(a),
		NewPlanCmd(a),
		NewJobsCmd(a),
		NewStatusCmd(a),
		NewPauseCmd(a),
		NewResumeCmd(a),
		NewRunCmd(a),
		NewEditCmd(a),
		NewSegmentsCmd(a),
		NewWatchCmd(a),
		NewModulesCmd(a),
		NewJournalCmd(a),
		NewInfoCmd(a),
		NewInitCmd(a),
		NewCompletionCmd(root),
	)
	return root, a
}

// run executes args and releases the journal and metrics afterwards,
// including when the command failed.
func run(ctx context.Context, root *cobra.Command, a *app, args []string) error {
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return errors.Join(err, a.teardown())
}

// annotationNoSettings marks commands that run without loading settings.
const annotationNoSettings = "simctl/no-settings"

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := configloader.Read(a.settingsPath)
	if err != nil {
		return err
	}
	if err := configloader.Resolve(cfg, os.LookupEnv, a.applyFlags); err != nil {
		return err
	}
	a.settings = cfg

	a.logger = logctx.New(cfg.Log.Level, cfg.Log.Format, a.err)
	slog.SetDefault(a.logger)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logctx.WithLogger(ctx, a.logger)
	cmd.SetContext(ctx)

	metrics.SetBuildInfo(Version)

	var sinks []events.Sink
	switch strings.ToLower(a.eventsFormat) {
	case "", "none":
	case "text":
		sinks = append(sinks, events.NewEmitter(a.err, false))
	case "json":
		sinks = append(sinks, events.NewEmitter(a.err, true))
	default:
		return fmt.Errorf("--events must be none, text or json, got %q", a.eventsFormat)
	}
	if cfg.Journal.On() {
		db, err := coredb.Open(ctx, coredb.Options{JournalMaxBytes: cfg.Journal.MaxBytes})
		if err != nil {
			// The journal is a record, not a requirement.
			a.logger.Warn("journal unavailable", "error", err)
		} else {
			a.db = db
			a.journal = coredb.NewJournal(db, cfg.Journal.MaxBytes)
			sinks = append(sinks, events.NewJournalSink(ctx, a.journal))
		}
	}
	a.sink = events.NewCompositeSink(sinks...)
	return nil
}

func (a *app) applyFlags(cfg *types.Settings) {
	set := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&cfg.Root, a.root)
	set(&cfg.Data, a.data)
	set(&cfg.Jobs, a.jobs)
	set(&cfg.Version, a.version)
	set(&cfg.Log.Level, a.logLevel)
	set(&cfg.Log.Format, a.logFormat)
}

// teardown writes the metrics textfile and closes the journal. It is safe
// to call more than once.
func (a *app) teardown() error {
	var errs []error
	if a.settings != nil && a.settings.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(a.settings.MetricsTextfile); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
		a.settings.MetricsTextfile = ""
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, err)
		}
		a.db = nil
	}
	return errors.Join(errs...)
}

// loadRegistry reads the module table from the model tree once.
func (a *app) loadRegistry() (*modules.Registry, error) {
	if a.registry != nil {
		return a.registry, nil
	}
	reg, err := modules.Load(filepath.Join(a.settings.Root, "src", modules.TableFile))
	if err != nil {
		return nil, err
	}
	a.registry = reg
	return reg, nil
}

func (a *app) engine() (*engine.Engine, error) {
	reg, err := a.loadRegistry()
	if err != nil {
		return nil, err
	}
	return engine.New(a.settings, reg, engine.WithEvents(a.sink)), nil
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	root, a := newRoot(os.Stdout, os.Stderr)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, root, a, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}
