// SPDX-License-Identifier: AGPL-3.0-or-later

package modules

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const table = `# module, flag, prefix, nml file, nml name
embm, ebatmos, ea, embm, ini_embm_nml
goldstein, goldstein, go, goldstein, ini_goldstein_nml
biogem, biogem, bg, biogem, ini_biogem_nml
main, NONE, ma, genie, genie_control_nml
gem, NONE, gm, gem, ini_gem_nml
`

func TestParseTable(t *testing.T) {
	reg, err := Parse(strings.NewReader(table))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := len(reg.Modules()); got != 5 {
		t.Fatalf("expected 5 modules, got %d", got)
	}

	d, err := reg.Lookup("embm")
	if err != nil {
		t.Fatalf("lookup embm: %v", err)
	}
	if d.Flag != "ma_flag_ebatmos" || d.Prefix != "ea" || d.NamelistFile != "embm" || d.NamelistName != "ini_embm_nml" {
		t.Fatalf("unexpected descriptor %+v", d)
	}

	mainMod, err := reg.Lookup("main")
	if err != nil {
		t.Fatalf("lookup main: %v", err)
	}
	if mainMod.Toggleable() {
		t.Fatalf("main should not be toggleable")
	}

	name, err := reg.ModuleFromFlag("ma_flag_biogem")
	if err != nil || name != "biogem" {
		t.Fatalf("ModuleFromFlag = %q, %v", name, err)
	}
}

func TestLookupErrors(t *testing.T) {
	reg, err := Parse(strings.NewReader(table))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Lookup("sedgem"); !errors.Is(err, ErrUnknownModule) {
		t.Fatalf("expected ErrUnknownModule, got %v", err)
	}
	if _, err := reg.ModuleFromFlag("ma_flag_sedgem"); !errors.Is(err, ErrUnknownFlag) {
		t.Fatalf("expected ErrUnknownFlag, got %v", err)
	}
	if _, err := reg.ModuleFromFlag("NONE"); !errors.Is(err, ErrUnknownFlag) {
		t.Fatalf("NONE must not resolve to a module, got %v", err)
	}
}

func TestModulesFromFlagsSorted(t *testing.T) {
	reg, err := Parse(strings.NewReader(table))
	if err != nil {
		t.Fatal(err)
	}
	got, err := reg.ModulesFromFlags([]string{"ma_flag_goldstein", "ma_flag_biogem", "ma_flag_ebatmos"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"biogem", "embm", "goldstein"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestDuplicateFlagRejected(t *testing.T) {
	_, err := Parse(strings.NewReader("a, x, a, a, a\nb, x, b, b, b\n"))
	if err == nil {
		t.Fatalf("expected duplicate flag error")
	}
}

func TestLoadMissingTable(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), TableFile))
	if !errors.Is(err, ErrTableMissing) {
		t.Fatalf("expected ErrTableMissing, got %v", err)
	}
}

func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), TableFile)
	if err := os.WriteFile(path, []byte(table), 0o644); err != nil {
		t.Fatal(err)
	}
	reg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := reg.Lookup("gem"); err != nil {
		t.Fatalf("lookup gem: %v", err)
	}
}
