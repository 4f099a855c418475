// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/flowd-org/simctl/internal/engine"
	"github.com/flowd-org/simctl/internal/job"
)

type cliEnv struct {
	settings, root, data, jobs string
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	base := t.TempDir()
	env := &cliEnv{
		settings: filepath.Join(base, "state", "simctl.yaml"),
		root:     filepath.Join(base, "model"),
		data:     filepath.Join(base, "data"),
		jobs:     filepath.Join(base, "jobs"),
	}
	t.Setenv("DATA_DIR", filepath.Join(base, "state"))
	t.Setenv("SIMCTL_CONFIG", "")

	writeFile(t, filepath.Join(env.root, "src", "module-info.csv"), `# module, flag, prefix, namelist file, namelist name
main,NONE,ma,genie,genie_control_nml
gem,NONE,gm,gem,ini_gem_nml
embm,ebatmos,ea,embm,ini_embm_nml
`)
	writeFile(t, filepath.Join(env.root, "src", "main-defaults.nml"), `&GENIE_CONTROL_NML
 koverall_total=100,
 flag_ebatmos=.FALSE.,
&END
`)
	writeFile(t, filepath.Join(env.root, "src", "gem-defaults.nml"), `&INI_GEM_NML
 debug=.false.,
&END
`)
	writeFile(t, filepath.Join(env.root, "src", "embm", "embm-defaults.nml"), `&INI_EMBM_NML
 npstp=1,
 diffa=0.1,
&END
`)
	writeFile(t, filepath.Join(env.data, engine.BaseConfigsDir, "cold.config"), `ma_flag_ebatmos=".TRUE."
ea_diffa=0.2
GOLDSTEINNLONSOPTS='$(DEFINE)GOLDSTEINNLONS=36'
GOLDSTEINNLEVSOPTS='$(DEFINE)GOLDSTEINNLEVS=16'
`)
	writeFile(t, filepath.Join(env.data, engine.UserConfigsDir, "tweak"), "ea_npstp=5\n")
	return env
}

func (env *cliEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root, a := newRoot(&out, &errOut)
	args = append(args,
		"--settings", env.settings,
		"--root", env.root,
		"--data", env.data,
		"--jobs", env.jobs,
		"--log-level", "error",
	)
	err := run(context.Background(), root, a, args)
	return out.String(), errOut.String(), err
}

func (env *cliEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, errOut, err := env.run(t, args...)
	if err != nil {
		t.Fatalf("simctl %s: %v\nstderr: %s", strings.Join(args, " "), err, errOut)
	}
	return out
}

func TestConfigureThenStatusAndJobs(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun(t, "configure", "exp1", "10", "-b", "cold", "-u", "tweak")
	if !strings.Contains(out, "[OK] configured") || !strings.Contains(out, "embm") {
		t.Fatalf("unexpected configure output:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(env.jobs, "exp1", "data_genie")); err != nil {
		t.Fatalf("sentinel namelist missing: %v", err)
	}

	var js jobStatus
	if err := json.Unmarshal([]byte(env.mustRun(t, "status", "exp1", "--json")), &js); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if js.State != job.StateRunnable {
		t.Fatalf("expected RUNNABLE, got %s", js.State)
	}
	if js.Kind != "base+user" || js.RunLength != 10 {
		t.Fatalf("unexpected config summary: %+v", js)
	}
	if len(js.Segments) != 1 || js.Segments[0] != "1: 1-END" {
		t.Fatalf("unexpected segments: %v", js.Segments)
	}

	var listing jobsListing
	if err := json.Unmarshal([]byte(env.mustRun(t, "jobs", "--json")), &listing); err != nil {
		t.Fatalf("decode jobs: %v", err)
	}
	if len(listing.Jobs) != 1 || listing.Jobs[0].ID != "exp1" {
		t.Fatalf("unexpected jobs: %+v", listing.Jobs)
	}
}

func TestConfigureSelectionErrorExitCode(t *testing.T) {
	env := newCLIEnv(t)
	_, _, err := env.run(t, "configure", "exp1", "10", "-b", "cold")
	if !errors.Is(err, engine.ErrConfigSelection) {
		t.Fatalf("expected config selection error, got %v", err)
	}
	if code := exitCode(err); code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
}

func TestConfigureRejectsBadRunLength(t *testing.T) {
	env := newCLIEnv(t)
	_, _, err := env.run(t, "configure", "exp1", "ten", "-b", "cold", "-u", "tweak")
	if !errors.Is(err, engine.ErrConfigSelection) {
		t.Fatalf("expected argument error, got %v", err)
	}
}

func TestPlanDoesNotWrite(t *testing.T) {
	env := newCLIEnv(t)
	out := env.mustRun(t, "plan", "exp1", "10", "-b", "cold", "-u", "tweak", "-o", "json")
	if !strings.Contains(out, `"embm"`) {
		t.Fatalf("plan should list embm:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(env.jobs, "exp1")); !os.IsNotExist(err) {
		t.Fatalf("plan created the job directory: %v", err)
	}
}

func TestPauseAndResumeCommands(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "configure", "exp1", "10", "-b", "cold", "-u", "tweak")
	dir := filepath.Join(env.jobs, "exp1")

	if _, _, err := env.run(t, "pause", "exp1"); err == nil {
		t.Fatal("pausing a job that never ran should fail")
	}

	writeFile(t, filepath.Join(dir, "status"), "RUNNING 10 100 5.0\n")
	env.mustRun(t, "pause", "exp1")
	cmdFile, err := os.ReadFile(filepath.Join(dir, "command"))
	if err != nil {
		t.Fatalf("read command: %v", err)
	}
	if strings.TrimSpace(string(cmdFile)) != "PAUSE" {
		t.Fatalf("expected PAUSE, got %q", cmdFile)
	}

	writeFile(t, filepath.Join(dir, "status"), "PAUSED 10 100 5.0\n")
	out := env.mustRun(t, "pause", "exp1")
	if !strings.Contains(out, "already paused") {
		t.Fatalf("unexpected pause output: %s", out)
	}
	env.mustRun(t, "resume", "exp1")
	cmdFile, err = os.ReadFile(filepath.Join(dir, "command"))
	if err != nil {
		t.Fatalf("read command: %v", err)
	}
	if strings.TrimSpace(string(cmdFile)) != "RESUME 10 5.0" {
		t.Fatalf("expected RESUME 10 5.0, got %q", cmdFile)
	}
}

func TestEditArchivesSegmentAndShowsIt(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "configure", "exp1", "10", "-b", "cold", "-u", "tweak")
	writeFile(t, filepath.Join(env.jobs, "exp1", "status"), "PAUSED 500 1000 1.0\n")

	out := env.mustRun(t, "edit", "exp1", "--runlen", "20")
	if !strings.Contains(out, "archived segment 1") {
		t.Fatalf("expected archived segment, got:\n%s", out)
	}

	lines := strings.Split(strings.TrimSpace(env.mustRun(t, "segments", "exp1")), "\n")
	want := []string{"2: 501-END", "1: 1-500"}
	if len(lines) != len(want) {
		t.Fatalf("segments = %q, want %q", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("segments = %q, want %q", lines, want)
		}
	}

	var seg segmentView
	if err := json.Unmarshal([]byte(env.mustRun(t, "segments", "exp1", "--show", "1", "--json")), &seg); err != nil {
		t.Fatalf("decode segment: %v", err)
	}
	if seg.Number != 1 || seg.RunLength != 10 {
		t.Fatalf("archived segment should keep the old run length: %+v", seg)
	}
}

func TestEditNeedsAChange(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "configure", "exp1", "10", "-b", "cold", "-u", "tweak")
	if _, _, err := env.run(t, "edit", "exp1"); err == nil {
		t.Fatal("edit without changes should fail")
	}
}

func TestJournalRecordsConfigure(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "configure", "exp1", "10", "-b", "cold", "-u", "tweak")

	out := env.mustRun(t, "journal", "exp1", "--json")
	if !strings.Contains(out, `"job.configure"`) {
		t.Fatalf("journal should hold the configure event:\n%s", out)
	}
	out = env.mustRun(t, "journal")
	if !strings.Contains(out, "exp1") {
		t.Fatalf("journal job list should name exp1:\n%s", out)
	}
}

func TestModulesLists(t *testing.T) {
	env := newCLIEnv(t)
	out := env.mustRun(t, "modules")
	for _, want := range []string{"embm", "ma_flag_ebatmos", "(always)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("modules output missing %q:\n%s", want, out)
		}
	}
}

func TestMissingModuleTableExitCode(t *testing.T) {
	env := newCLIEnv(t)
	if err := os.Remove(filepath.Join(env.root, "src", "module-info.csv")); err != nil {
		t.Fatal(err)
	}
	_, _, err := env.run(t, "modules")
	if err == nil {
		t.Fatal("expected error for missing module table")
	}
	if code := exitCode(err); code != 3 {
		t.Fatalf("expected exit code 3, got %d", code)
	}
}

func TestInitWritesSettings(t *testing.T) {
	env := newCLIEnv(t)
	out := env.mustRun(t, "init")
	if !strings.Contains(out, "[OK] wrote") {
		t.Fatalf("unexpected init output: %s", out)
	}
	body, err := os.ReadFile(env.settings)
	if err != nil {
		t.Fatalf("settings file not written: %v", err)
	}
	if !strings.Contains(string(body), "root: "+env.root) {
		t.Fatalf("settings should pin the model root:\n%s", body)
	}
	for _, sub := range []string{engine.BaseConfigsDir, engine.UserConfigsDir, engine.FullConfigsDir, engine.ForcingsDir} {
		if info, err := os.Stat(filepath.Join(env.data, sub)); err != nil || !info.IsDir() {
			t.Fatalf("expected %s directory: %v", sub, err)
		}
	}
	if _, _, err := env.run(t, "init"); err == nil {
		t.Fatal("second init without --force should fail")
	}
	env.mustRun(t, "init", "--force")
}

func TestInfoShowsResolvedSettings(t *testing.T) {
	env := newCLIEnv(t)
	out := env.mustRun(t, "info")
	for _, want := range []string{"jobs: " + env.jobs, "settings_file: " + env.settings, "carrotcake.exe"} {
		if !strings.Contains(out, want) {
			t.Fatalf("info output missing %q:\n%s", want, out)
		}
	}
}

func TestInfoModelVersionFlagSelectsExecutable(t *testing.T) {
	env := newCLIEnv(t)
	out := env.mustRun(t, "info", "--model-version", "v2.1")
	want := filepath.Join(env.jobs, "MODELS", "v2.1")
	if !strings.Contains(out, "executable: "+want) {
		t.Fatalf("info output missing executable under %q:\n%s", want, out)
	}
	if strings.Contains(out, "DEVELOPMENT") {
		t.Fatalf("default version leaked into output:\n%s", out)
	}
}

func TestEventsFlagValidated(t *testing.T) {
	env := newCLIEnv(t)
	if _, _, err := env.run(t, "modules", "--events", "xml"); err == nil {
		t.Fatal("expected error for unknown events format")
	}
}
