// SPDX-License-Identifier: AGPL-3.0-or-later
package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flowd-org/simctl/internal/derive"
	"github.com/flowd-org/simctl/internal/job"
	"github.com/flowd-org/simctl/internal/layers"
	"github.com/flowd-org/simctl/internal/modules"
	"github.com/flowd-org/simctl/internal/namelist"
	"github.com/flowd-org/simctl/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	root, data, jobs string
	settings         *types.Settings
	engine           *Engine
}

func write(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()
	f := &fixture{
		root: filepath.Join(base, "model"),
		data: filepath.Join(base, "data"),
		jobs: filepath.Join(base, "jobs"),
	}

	write(t, filepath.Join(f.root, "src", "main-defaults.nml"), `&GENIE_CONTROL_NML
 genie_timestep=3600.0,
 koverall_total=100,
 dt_write=100,
 flag_ebatmos=.FALSE.,
 flag_goldsteinocean=.FALSE.,
 dim_GOLDSTEINNLONS=1,
 dim_GOLDSTEINNLEVS=1,
&END
`)
	write(t, filepath.Join(f.root, "src", "gem-defaults.nml"), `&INI_GEM_NML
 debug=.false.,
&END
`)
	write(t, filepath.Join(f.root, "src", "embm", "embm-defaults.nml"), `&INI_EMBM_NML
 npstp=1,
 diffa=0.1,
 topo_file='worbe2.k1',
 wind(1)=0.0,
 wind(2)=0.0,
 lout='xxxx',
 ans='n',
&END
`)
	write(t, filepath.Join(f.root, "src", "goldstein", "goldstein-defaults.nml"), `&INI_GOLDSTEIN_NML
 diff=2000.0,
 npstp=1,
&END
`)
	write(t, filepath.Join(f.root, "data", "embm", "worbe2.k1"), "topography\n")
	for _, s := range []string{"atm", "ocn", "sed"} {
		write(t, filepath.Join(f.root, "data", "main", "tracer_define."+s), s+"\n")
	}

	write(t, filepath.Join(f.data, BaseConfigsDir, "cold.config"), `# base
ma_flag_ebatmos=".TRUE."
ma_flag_goldsteinocean=".TRUE."
GOLDSTEINNLONSOPTS='$(DEFINE)GOLDSTEINNLONS=36'
GOLDSTEINNLEVSOPTS='$(DEFINE)GOLDSTEINNLEVS=16'
ea_diffa=0.2
ea_npstp=7
`)
	write(t, filepath.Join(f.data, UserConfigsDir, "tweak"), `ea_diffa=0.5
ea_wind_2=3.5
go_diff=1500.0
`)
	write(t, filepath.Join(f.data, FullConfigsDir, "whole.config"), `ma_flag_goldsteinocean=.TRUE.
GOLDSTEINNLONSOPTS=$(DEFINE)GOLDSTEINNLONS=18
GOLDSTEINNLEVSOPTS=$(DEFINE)GOLDSTEINNLEVS=8
go_npstp=42
`)

	reg, err := modules.New([]modules.Descriptor{
		{Name: "main", Flag: modules.NoFlag, Prefix: "ma", NamelistFile: "genie", NamelistName: "genie_control_nml"},
		{Name: "gem", Flag: modules.NoFlag, Prefix: "gm", NamelistFile: "gem", NamelistName: "ini_gem_nml"},
		{Name: "embm", Flag: "ma_flag_ebatmos", Prefix: "ea", NamelistFile: "embm", NamelistName: "ini_embm_nml"},
		{Name: "goldstein", Flag: "ma_flag_goldsteinocean", Prefix: "go", NamelistFile: "goldstein", NamelistName: "ini_goldstein_nml"},
	})
	require.NoError(t, err)

	f.settings = &types.Settings{
		Root:       f.root,
		Data:       f.data,
		Jobs:       f.jobs,
		Version:    "DEVELOPMENT",
		StatusRead: types.StatusReadConfig{Attempts: 2, Delay: types.Duration(time.Millisecond)},
	}
	clock := func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	describe := func(context.Context, string) (string, error) { return "v1.0-3-gabc", nil }
	f.engine = New(f.settings, reg, WithClock(clock), WithDescribe(describe))
	return f
}

func readNamelist(t *testing.T, path string) *namelist.Namelist {
	t.Helper()
	nl, err := namelist.ParseFile(path)
	require.NoError(t, err)
	require.False(t, nl.Malformed)
	return nl
}

func baseUser(name string) Request {
	return Request{JobName: name, RunLength: 10, BaseConfig: "cold", UserConfig: "tweak"}
}

func TestConfigureBaseAndUser(t *testing.T) {
	f := newFixture(t)
	mods := filepath.Join(t.TempDir(), "mods")
	write(t, mods, "ea_diffa=0.9\nea_bogus=1\n")
	req := baseUser("exp/one")
	req.ConfigMods = mods

	res, err := f.engine.Configure(context.Background(), req)
	require.NoError(t, err)

	dir := filepath.Join(f.jobs, "exp", "one")
	l := job.Layout(dir)
	assert.Equal(t, []string{"embm", "goldstein"}, res.Modules)
	assert.ElementsMatch(t, []string{"data_embm", "data_goldstein", "data_genie", "data_gem"}, res.Namelists)
	assert.Equal(t, "data_genie", res.Namelists[len(res.Namelists)-1])
	assert.Contains(t, res.UnknownKeys["embm"], "ea_bogus")
	assert.NotContains(t, res.UnknownKeys["embm"], "ea_diffa")

	embm := readNamelist(t, l.Namelist("embm"))
	assert.Equal(t, "0.9", embm.Entries["diffa"].Raw, "mods override user and base")
	assert.Equal(t, "3.5", embm.Entries["wind(2)"].Raw)
	assert.Equal(t, "0.0", embm.Entries["wind(1)"].Raw)
	assert.Equal(t, "960", embm.Entries["npstp"].Raw, "timestepping overrides base")
	assert.Equal(t, "rst", embm.Entries["lout"].Raw, "restart layer applied")
	assert.Equal(t, "n", embm.Entries["ans"].Raw)
	_, ok := embm.Get("bogus")
	assert.False(t, ok)

	ts, _ := derive.Timestepping(10, derive.Grid{Lons: 36, Levs: 16}, false)
	genie := readNamelist(t, l.Namelist("genie"))
	assert.Equal(t, ts["ma_genie_timestep"], genie.Entries["genie_timestep"].Raw)
	assert.Equal(t, "4800", genie.Entries["koverall_total"].Raw)
	assert.Equal(t, namelist.True, genie.Entries["flag_ebatmos"].Raw)
	assert.Equal(t, "36", genie.Entries["dim_GOLDSTEINNLONS"].Raw)
	assert.Equal(t, "16", genie.Entries["dim_GOLDSTEINNLEVS"].Raw)

	gold := readNamelist(t, l.Namelist("goldstein"))
	assert.Equal(t, "1500.0", gold.Entries["diff"].Raw)

	for _, m := range []string{"embm", "goldstein", "main"} {
		assert.DirExists(t, l.Input(m))
		assert.DirExists(t, l.Output(m))
		assert.NoDirExists(t, l.Restart(m))
	}
	assert.FileExists(t, filepath.Join(l.Input("embm"), "worbe2.k1"))
	assert.FileExists(t, filepath.Join(l.Input("main"), "tracer_define.sed"))

	cfg, err := job.ReadConfig(l.Config())
	require.NoError(t, err)
	assert.Equal(t, "cold", cfg.BaseConfig)
	assert.Equal(t, filepath.Join(f.data, BaseConfigsDir), cfg.BaseConfigDir)
	assert.Equal(t, "tweak", cfg.UserConfig)
	assert.Equal(t, 10, cfg.RunLength)
	assert.Equal(t, "2024-03-01 12:00:00", cfg.ConfigDate)
	assert.Equal(t, "base+user", cfg.Kind())

	for _, name := range []string{job.BaseConfigFile, job.UserConfigFile, job.ModsFile} {
		assert.FileExists(t, filepath.Join(l.ConfigDir(), name))
	}
	version, err := os.ReadFile(l.ModelVersion())
	require.NoError(t, err)
	assert.Equal(t, "DEVELOPMENT:v1.0-3-gabc\n", string(version))
}

func TestConfigureFullConfigSkipsDerivedLayers(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Configure(context.Background(), Request{JobName: "full", RunLength: 5, FullConfig: "whole"})
	require.NoError(t, err)

	l := job.Layout(filepath.Join(f.jobs, "full"))
	genie := readNamelist(t, l.Namelist("genie"))
	assert.Equal(t, "3600.0", genie.Entries["genie_timestep"].Raw)
	assert.Equal(t, "18", genie.Entries["dim_GOLDSTEINNLONS"].Raw)
	gold := readNamelist(t, l.Namelist("goldstein"))
	assert.Equal(t, "42", gold.Entries["npstp"].Raw)
	assert.NoFileExists(t, l.Namelist("embm"))

	cfg, err := job.ReadConfig(l.Config())
	require.NoError(t, err)
	assert.Equal(t, "full", cfg.Kind())
}

func TestConfigureRefusesExistingJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.Configure(ctx, baseUser("dup"))
	require.NoError(t, err)

	_, err = f.engine.Configure(ctx, baseUser("dup"))
	require.ErrorIs(t, err, ErrJobExists)

	req := baseUser("dup")
	req.Overwrite = true
	_, err = f.engine.Configure(ctx, req)
	require.NoError(t, err)
}

func TestConfigureStrictReportsUnknownKeys(t *testing.T) {
	f := newFixture(t)
	write(t, filepath.Join(f.data, UserConfigsDir, "typo"), "ea_difa=0.3\ngo_dif=1\n")
	req := Request{JobName: "strict", RunLength: 1, BaseConfig: "cold", UserConfig: "typo", Strict: true}

	_, err := f.engine.Configure(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, namelist.ErrUnknownEntry)
	assert.Contains(t, err.Error(), "ea_difa")
	assert.Contains(t, err.Error(), "go_dif")
	assert.NoDirExists(t, filepath.Join(f.jobs, "strict"), "nothing written on strict failure")
}

func TestConfigureMissingFragment(t *testing.T) {
	f := newFixture(t)
	req := baseUser("missing")
	req.UserConfig = "absent"
	_, err := f.engine.Configure(context.Background(), req)
	var nf *layers.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.ErrorIs(t, err, layers.ErrConfigNotFound)
	assert.Equal(t, "user configuration", nf.What)
}

func TestConfigureUnknownFlag(t *testing.T) {
	f := newFixture(t)
	write(t, filepath.Join(f.data, UserConfigsDir, "odd"), "ma_flag_mystery=.TRUE.\n")
	req := Request{JobName: "odd", RunLength: 1, BaseConfig: "cold", UserConfig: "odd"}
	_, err := f.engine.Configure(context.Background(), req)
	require.ErrorIs(t, err, modules.ErrUnknownFlag)
}

func TestConfigureRestart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Configure(ctx, baseUser("spinup"))
	require.NoError(t, err)
	out := filepath.Join(f.jobs, "spinup", "output")
	write(t, filepath.Join(out, "embm", "embm_rst.1"), "state\n")
	write(t, filepath.Join(out, "embm", "plot.dat"), "ignored\n")
	write(t, filepath.Join(out, "goldstein", "goldstein_restart.nc"), "state\n")

	req := baseUser("continued")
	req.Restart = "spinup"
	res, err := f.engine.Configure(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, res.RestartFiles)

	l := job.Layout(filepath.Join(f.jobs, "continued"))
	assert.FileExists(t, filepath.Join(l.Restart("embm"), "embm_rst.1"))
	assert.NoFileExists(t, filepath.Join(l.Restart("embm"), "plot.dat"))
	assert.FileExists(t, filepath.Join(l.Restart("goldstein"), "goldstein_restart.nc"))
	assert.DirExists(t, l.Restart("main"))

	embm := readNamelist(t, l.Namelist("embm"))
	assert.Equal(t, "c", embm.Entries["ans"].Raw)

	cfg, err := job.ReadConfig(l.Config())
	require.NoError(t, err)
	assert.Equal(t, "spinup", cfg.Restart)
}

func TestConfigureRestartNotFound(t *testing.T) {
	f := newFixture(t)
	req := baseUser("orphan")
	req.Restart = "nowhere"
	_, err := f.engine.Configure(context.Background(), req)
	require.ErrorIs(t, err, ErrRestartNotFound)
}

func TestModelVersionFallbacks(t *testing.T) {
	f := newFixture(t)
	f.engine.describe = func(context.Context, string) (string, error) { return "", errors.New("not a repository") }
	_, err := f.engine.Configure(context.Background(), baseUser("dev"))
	require.NoError(t, err)
	got, err := os.ReadFile(job.Layout(filepath.Join(f.jobs, "dev")).ModelVersion())
	require.NoError(t, err)
	assert.Equal(t, "DEVELOPMENT:UNKNOWN\n", string(got))

	f.settings.Version = "v2.1"
	_, err = f.engine.Configure(context.Background(), baseUser("release"))
	require.NoError(t, err)
	got, err = os.ReadFile(job.Layout(filepath.Join(f.jobs, "release")).ModelVersion())
	require.NoError(t, err)
	assert.Equal(t, "v2.1\n", string(got))
}

func TestMalformedTemplateWritesEmptyNamelist(t *testing.T) {
	f := newFixture(t)
	write(t, filepath.Join(f.root, "src", "gem-defaults.nml"), "debug=.true.\n")
	_, err := f.engine.Configure(context.Background(), baseUser("soft"))
	require.NoError(t, err)

	raw, err := os.ReadFile(job.Layout(filepath.Join(f.jobs, "soft")).Namelist("gem"))
	require.NoError(t, err)
	assert.Equal(t, "&ini_gem_nml\n&END\n", string(raw))
}

func TestBuildPlan(t *testing.T) {
	f := newFixture(t)
	mods := filepath.Join(t.TempDir(), "mods")
	write(t, mods, "ea_diffa=0.9\n")
	req := baseUser("preview")
	req.ConfigMods = mods
	req.T100 = true

	plan, err := f.engine.BuildPlan(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "base+user", plan.ConfigKind)
	assert.Equal(t, []string{"embm", "goldstein"}, plan.Modules)

	var sources []string
	for _, l := range plan.Layers {
		sources = append(sources, l.Source)
	}
	assert.Equal(t, []string{"base:cold", "timestepping", "restart", "user:tweak", "mods:mods", "coordinates"}, sources)
	require.NotNil(t, plan.Stepping)
	assert.Equal(t, 100, plan.Stepping.Steps)
	assert.Equal(t, 2, plan.Stepping.BioRatio)
	assert.Equal(t, "5000", plan.Derived["ma_koverall_total"])
	assert.Equal(t, 36, plan.Defines["GOLDSTEINNLONS"])

	require.Len(t, plan.Namelists, 4)
	assert.Equal(t, "main", plan.Namelists[2].Module)
	assert.Equal(t, filepath.Join(f.root, "src", "main-defaults.nml"), plan.Namelists[2].Template)
	assert.False(t, plan.Namelists[0].Missing)

	assert.NoDirExists(t, filepath.Join(f.jobs, "preview"))
}

func TestRequestValidate(t *testing.T) {
	cases := []struct {
		name string
		req  Request
		ok   bool
	}{
		{"base and user", Request{JobName: "j", RunLength: 1, BaseConfig: "b", UserConfig: "u"}, true},
		{"full", Request{JobName: "j", RunLength: 1, FullConfig: "f"}, true},
		{"nothing", Request{JobName: "j", RunLength: 1}, false},
		{"base only", Request{JobName: "j", RunLength: 1, BaseConfig: "b"}, false},
		{"both kinds", Request{JobName: "j", RunLength: 1, BaseConfig: "b", UserConfig: "u", FullConfig: "f"}, false},
		{"mods with full", Request{JobName: "j", RunLength: 1, FullConfig: "f", ConfigMods: "m"}, false},
		{"no run length", Request{JobName: "j", FullConfig: "f"}, false},
		{"no job", Request{RunLength: 1, FullConfig: "f"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrConfigSelection)
		})
	}
}

func TestNamelistModulesAppendsAlwaysPresent(t *testing.T) {
	assert.Equal(t, []string{"embm", "main", "gem"}, namelistModules([]string{"embm"}))
	assert.Equal(t, []string{"main", "gem"}, namelistModules(nil))
	assert.Equal(t, []string{"main", "gem"}, namelistModules([]string{"main"}))
}
