// SPDX-License-Identifier: AGPL-3.0-or-later

// Package derive computes the parameter layers that are not authored by hand:
// time-stepping, restart handling and grid coordinates.
package derive

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/flowd-org/simctl/internal/layers"
)

// Grid definition names carried in "$(DEFINE)" values.
const (
	DefineLons = "GOLDSTEINNLONS"
	DefineLats = "GOLDSTEINNLATS"
	DefineLevs = "GOLDSTEINNLEVS"
)

const (
	secondsPerYear = 3600.0 * 24.0 * 365.25
	// loopMultiplier is the fixed number of ocean steps per atmosphere,
	// sea-ice and land step.
	loopMultiplier = 5
)

// Grid holds the ocean grid resolution.
type Grid struct {
	Lons int
	Lats int
	Levs int
}

// GridFromDefines reads the grid resolution from extracted defines.
func GridFromDefines(defs map[string]int) (Grid, error) {
	g := Grid{Lats: defs[DefineLats]}
	var ok bool
	if g.Lons, ok = defs[DefineLons]; !ok {
		return Grid{}, fmt.Errorf("grid definition %s missing", DefineLons)
	}
	if g.Levs, ok = defs[DefineLevs]; !ok {
		return Grid{}, fmt.Errorf("grid definition %s missing", DefineLevs)
	}
	return g, nil
}

type steppingRow struct {
	lons, levs         int
	steps, bio         int
	fastSteps, fastBio int
}

var steppingTable = []steppingRow{
	{lons: 36, levs: 16, steps: 96, bio: 2, fastSteps: 100, fastBio: 2},
	{lons: 36, levs: 8, steps: 96, bio: 4, fastSteps: 100, fastBio: 5},
	{lons: 18, levs: 16, steps: 48, bio: 1, fastSteps: 50, fastBio: 2},
	{lons: 18, levs: 8, steps: 48, bio: 2, fastSteps: 50, fastBio: 5},
	{lons: 36, levs: 32, steps: 96, bio: 1, fastSteps: 100, fastBio: 1},
}

var defaultStepping = steppingRow{steps: 96, bio: 1, fastSteps: 100, fastBio: 1}

// Stepping is the resolved time-stepping for a grid.
type Stepping struct {
	// Steps is the number of ocean steps per model year.
	Steps int
	// BioRatio is the number of ocean steps per biogeochemistry step.
	BioRatio int
}

// SelectStepping looks up the stepping row for a grid. fast selects the
// denser "t100" column.
func SelectStepping(g Grid, fast bool) Stepping {
	row := defaultStepping
	for _, r := range steppingTable {
		if r.lons == g.Lons && r.levs == g.Levs {
			row = r
			break
		}
	}
	if fast {
		return Stepping{Steps: row.fastSteps, BioRatio: row.fastBio}
	}
	return Stepping{Steps: row.steps, BioRatio: row.bio}
}

// PrimaryTimestep returns the primary model time step in seconds.
func (s Stepping) PrimaryTimestep() float64 {
	return secondsPerYear / loopMultiplier / float64(s.Steps)
}

var climatePrefixes = []string{"ea", "go", "gs", "ents"}

// Timestepping derives the time-stepping layer for a run of runLength years.
func Timestepping(runLength int, g Grid, fast bool) (layers.Layer, Stepping) {
	st := SelectStepping(g, fast)
	n := st.Steps
	res := layers.Layer{}

	res["ma_genie_timestep"] = formatReal(st.PrimaryTimestep())

	for _, k := range []string{"ma_ksic_loop", "ma_kocn_loop", "ma_klnd_loop"} {
		res[k] = strconv.Itoa(loopMultiplier)
	}
	for _, k := range []string{"ma_conv_kocn_katchem", "ma_conv_kocn_kbiogem", "ma_conv_kocn_krokgem"} {
		res[k] = strconv.Itoa(st.BioRatio)
	}
	for _, k := range []string{"ma_conv_kocn_ksedgem", "ma_kgemlite"} {
		res[k] = strconv.Itoa(n)
	}

	for _, k := range []string{"bg_par_misc_t_runtime", "sg_par_misc_t_runtime"} {
		res[k] = strconv.Itoa(runLength)
	}

	total := runLength * loopMultiplier * n
	for _, k := range []string{"ma_koverall_total", "ma_dt_write"} {
		res[k] = strconv.Itoa(total)
	}

	// npstp: health check frequency, iwstp: restart write frequency,
	// itstp: time series frequency, ianav: averaging frequency.
	// A +1 on itstp and ianav effectively disables those outputs. Open
	// question: the model does not document why, so the literal is kept.
	freq := runLength * n
	for _, p := range climatePrefixes {
		res[p+"_npstp"] = strconv.Itoa(freq)
		res[p+"_iwstp"] = strconv.Itoa(freq)
		res[p+"_itstp"] = strconv.Itoa(freq + 1)
		res[p+"_ianav"] = strconv.Itoa(freq + 1)
	}
	for _, k := range []string{"ea_nyear", "go_nyear", "gs_nyear"} {
		res[k] = strconv.Itoa(n)
	}
	return res, st
}

// formatReal renders a float so that it always reads back as a real.
func formatReal(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
