// SPDX-License-Identifier: AGPL-3.0-or-later

// Package job models one simulation job directory: its recorded
// configuration, its segment history and its lifecycle states.
package job

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when a job directory does not exist.
var ErrNotFound = errors.New("job not found")

// Job is the in-memory view of a job directory. Status is filled in by the
// controller; it is never written by this package.
type Job struct {
	// ID is the job path relative to the jobs root.
	ID       string    `json:"id" yaml:"id"`
	Dir      string    `json:"dir" yaml:"dir"`
	Config   *Config   `json:"-" yaml:"-"`
	Mods     string    `json:"mods,omitempty" yaml:"mods,omitempty"`
	Segments []Segment `json:"segments,omitempty" yaml:"segments,omitempty"`
	Status   State     `json:"status" yaml:"status"`
}

// Layout returns the path helper for the job directory.
func (j *Job) Layout() Layout { return Layout(j.Dir) }

// Load reads the job at dir. root is the jobs root used to derive the ID.
// A missing or unreadable config file leaves Config empty rather than
// failing, so half-created jobs can still be listed.
func Load(root, dir string) (*Job, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", dir, ErrNotFound)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: not a directory", dir)
	}
	id := dir
	if root != "" {
		if rel, err := filepath.Rel(root, dir); err == nil {
			id = rel
		}
	}
	j := &Job{ID: id, Dir: dir, Config: &Config{}}
	l := j.Layout()

	if cfg, err := ReadConfig(l.Config()); err == nil {
		j.Config = cfg
	}
	if mods, err := os.ReadFile(l.Mods()); err == nil {
		j.Mods = string(mods)
	}
	segs, err := ReadLedger(l.Ledger())
	if err != nil {
		return nil, fmt.Errorf("read segment ledger: %w", err)
	}
	j.Segments = segs
	return j, nil
}

// SegmentStrings returns the display list of the job's segments.
func (j *Job) SegmentStrings() []string {
	return DisplayStrings(j.Segments)
}
