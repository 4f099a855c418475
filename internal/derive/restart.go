// SPDX-License-Identifier: AGPL-3.0-or-later

package derive

import (
	"github.com/flowd-org/simctl/internal/layers"
)

const (
	fortranTrue  = ".TRUE."
	fortranFalse = ".FALSE."

	// RestartInputLabel is the ASCII restart file label read on continuation.
	RestartInputLabel = "rst.1"
)

var (
	asciiClimate = []string{"ea", "go", "gs"}
	biogeochem   = []string{"ac", "bg", "sg", "rg"}
	ncRestart    = []string{"ac", "bg", "sg"}
)

// restartDirs maps directory parameters to job-relative restart and output
// locations used when continuing from an earlier run.
var restartDirs = map[string]string{
	"ea_rstdir_name":     "restart/embm",
	"go_rstdir_name":     "restart/goldstein",
	"gs_rstdir_name":     "restart/goldsteinseaice",
	"ents_outdir_name":   "output/ents",
	"ents_dirnetout":     "restart/ents",
	"ents_rstdir_name":   "restart/ents",
	"ac_par_rstdir_name": "restart/atchem",
	"bg_par_rstdir_name": "restart/biogem",
	"sg_par_rstdir_name": "restart/sedgem",
	"rg_par_rstdir_name": "restart/rokgem",
}

// RestartOptions derives the restart layer. restart selects continuation
// from an earlier run instead of a cold start.
func RestartOptions(restart bool) layers.Layer {
	res := layers.Layer{}

	for _, p := range asciiClimate {
		res[p+"_netout"] = "n"
		res[p+"_ascout"] = "y"
		res[p+"_lout"] = "rst"
	}
	res["ents_out_name"] = "rst"
	res["ents_restart_file"] = "rst.sland"

	if restart {
		for _, p := range climatePrefixes {
			res[p+"_ans"] = "c"
			res[p+"_netin"] = "n"
		}
		for _, p := range biogeochem {
			res[p+"_ctrl_continuing"] = fortranTrue
		}
		for _, p := range asciiClimate {
			res[p+"_lin"] = RestartInputLabel
		}
		for k, v := range restartDirs {
			res[k] = v
		}
	} else {
		for _, p := range climatePrefixes {
			res[p+"_ans"] = "n"
		}
		for _, p := range biogeochem {
			res[p+"_ctrl_continuing"] = fortranFalse
		}
		for _, p := range ncRestart {
			res[p+"_ctrl_ncrst"] = fortranTrue
		}
	}

	res["bg_ctrl_force_oldformat"] = fortranFalse
	return res
}
