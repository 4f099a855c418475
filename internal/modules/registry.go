// SPDX-License-Identifier: AGPL-3.0-or-later

// Package modules holds the table of optional simulation sub-components:
// their enable flags, parameter prefixes and namelist files.
package modules

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"
)

// TableFile is the module table name inside the model source directory.
const TableFile = "module-info.csv"

// NoFlag marks modules that are always present and cannot be toggled.
const NoFlag = "NONE"

const flagPrefix = "ma_flag_"

var (
	ErrTableMissing  = errors.New("module table missing")
	ErrUnknownModule = errors.New("unknown module")
	ErrUnknownFlag   = errors.New("unknown module flag")
)

// Descriptor describes one module.
type Descriptor struct {
	Name         string `json:"name" yaml:"name"`
	Flag         string `json:"flag" yaml:"flag"`
	Prefix       string `json:"prefix" yaml:"prefix"`
	NamelistFile string `json:"namelist_file" yaml:"namelist_file"`
	NamelistName string `json:"namelist_name" yaml:"namelist_name"`
}

// Toggleable reports whether the module has an enable flag.
func (d Descriptor) Toggleable() bool { return d.Flag != NoFlag }

// Registry is an immutable module table. Build it once at startup and pass it
// to the components that need it.
type Registry struct {
	byName map[string]Descriptor
	byFlag map[string]string
	order  []string
}

// Load reads the module table from path.
func Load(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrTableMissing, path)
		}
		return nil, fmt.Errorf("open module table: %w", err)
	}
	defer f.Close()

	reg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("module table %s: %w", path, err)
	}
	return reg, nil
}

// Parse reads CSV rows of module, flag, prefix, namelist file, namelist name.
// Rows beginning with '#' are skipped.
func Parse(r io.Reader) (*Registry, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	var descs []Descriptor
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(row) == 0 || strings.HasPrefix(strings.TrimSpace(row[0]), "#") {
			continue
		}
		if len(row) < 5 {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: expected 5 fields, got %d", line, len(row))
		}
		flag := strings.TrimSpace(row[1])
		if flag != NoFlag {
			flag = flagPrefix + flag
		}
		descs = append(descs, Descriptor{
			Name:         strings.TrimSpace(row[0]),
			Flag:         flag,
			Prefix:       strings.TrimSpace(row[2]),
			NamelistFile: strings.TrimSpace(row[3]),
			NamelistName: strings.TrimSpace(row[4]),
		})
	}
	return New(descs)
}

// New builds a registry from descriptors. Module names and flags must be unique.
func New(descs []Descriptor) (*Registry, error) {
	reg := &Registry{
		byName: make(map[string]Descriptor, len(descs)),
		byFlag: make(map[string]string, len(descs)),
	}
	for _, d := range descs {
		if d.Name == "" {
			return nil, errors.New("module with empty name")
		}
		if _, dup := reg.byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate module %q", d.Name)
		}
		if d.Flag == "" {
			d.Flag = NoFlag
		}
		if d.Toggleable() {
			if other, dup := reg.byFlag[d.Flag]; dup {
				return nil, fmt.Errorf("flag %q used by both %q and %q", d.Flag, other, d.Name)
			}
			reg.byFlag[d.Flag] = d.Name
		}
		reg.byName[d.Name] = d
		reg.order = append(reg.order, d.Name)
	}
	return reg, nil
}

// Lookup returns the descriptor for a module name.
func (r *Registry) Lookup(name string) (Descriptor, error) {
	d, ok := r.byName[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}
	return d, nil
}

// ModuleFromFlag returns the module enabled by flag.
func (r *Registry) ModuleFromFlag(flag string) (string, error) {
	name, ok := r.byFlag[flag]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownFlag, flag)
	}
	return name, nil
}

// ModulesFromFlags maps flag names to module names, sorted by module name.
func (r *Registry) ModulesFromFlags(flags []string) ([]string, error) {
	out := make([]string, 0, len(flags))
	for _, f := range flags {
		m, err := r.ModuleFromFlag(f)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

// Modules returns all descriptors in table order.
func (r *Registry) Modules() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}
