// SPDX-License-Identifier: AGPL-3.0-or-later

package job

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Segment is one contiguous span of steps run under a fixed configuration.
type Segment struct {
	Number int `json:"number" yaml:"number"`
	Start  int `json:"start" yaml:"start"`
	End    int `json:"end" yaml:"end"`
}

// Line renders the ledger line for s.
func (s Segment) Line() string {
	return fmt.Sprintf("%d %d %d", s.Number, s.Start, s.End)
}

// ReadLedger returns the segments recorded in the ledger at path. A missing
// ledger is an empty history.
func ReadLedger(path string) ([]Segment, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseLedger(f)
}

// ParseLedger parses "<n> <start> <end>" lines; lines with fewer than three
// fields are skipped.
func ParseLedger(r io.Reader) ([]Segment, error) {
	var out []Segment
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		var nums [3]int
		for i := range nums {
			n, err := strconv.Atoi(fields[i])
			if err != nil {
				return nil, fmt.Errorf("ledger line %d: %w", line, err)
			}
			nums[i] = n
		}
		out = append(out, Segment{Number: nums[0], Start: nums[1], End: nums[2]})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DisplayStrings lists segments newest first as "<i>: <start>-<end>", led by
// the open segment "<n+1>: <last end+1>-END".
func DisplayStrings(segs []Segment) []string {
	if len(segs) == 0 {
		return []string{"1: 1-END"}
	}
	out := make([]string, 0, len(segs)+1)
	out = append(out, fmt.Sprintf("%d: %d-END", len(segs)+1, segs[len(segs)-1].End+1))
	for i := len(segs) - 1; i >= 0; i-- {
		out = append(out, fmt.Sprintf("%d: %d-%d", i+1, segs[i].Start, segs[i].End))
	}
	return out
}

// ErrNoSegment is returned when a segment has no archive directory.
var ErrNoSegment = errors.New("segment not archived")

// ArchivedSegment is the configuration frozen when a segment was closed.
type ArchivedSegment struct {
	Number int
	Config *Config
	Mods   string
}

// ReadSegment loads the archived configuration of segment n.
func (l Layout) ReadSegment(n int) (*ArchivedSegment, error) {
	dir := l.Segment(n)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("segment %d: %w", n, ErrNoSegment)
		}
		return nil, err
	}
	seg := &ArchivedSegment{Number: n, Config: &Config{}}
	cfg, err := ReadConfig(filepath.Join(dir, ConfigFile))
	switch {
	case err == nil:
		seg.Config = cfg
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}
	mods, err := os.ReadFile(filepath.Join(dir, ModsFile))
	switch {
	case err == nil:
		seg.Mods = strings.TrimSpace(string(mods))
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}
	return seg, nil
}

func itoa(n int) string { return strconv.Itoa(n) }
