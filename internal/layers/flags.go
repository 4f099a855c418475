// SPDX-License-Identifier: AGPL-3.0-or-later

package layers

import (
	"sort"
	"strings"
)

const (
	// FlagPrefix marks module enable flags.
	FlagPrefix = "ma_flag_"
	// TrueLiteral is the only textual value treated as an enabled flag.
	TrueLiteral = ".true."
)

// FlagLayers returns, for each layer of the stack, only the module flag entries.
func FlagLayers(s Stack) []Layer {
	out := make([]Layer, 0, len(s))
	for _, l := range s {
		flags := Layer{}
		for k, v := range l {
			if strings.HasPrefix(k, FlagPrefix) {
				flags[k] = v
			}
		}
		out = append(out, flags)
	}
	return out
}

// MergeFlags resolves boolean flags across layers. Each layer overwrites the
// running result for the keys it carries; keys it omits keep earlier values.
func MergeFlags(layers ...Layer) map[string]bool {
	res := make(map[string]bool)
	for _, l := range layers {
		for k, v := range l {
			res[k] = strings.EqualFold(strings.TrimSpace(v), TrueLiteral)
		}
	}
	return res
}

// ActiveFlags returns the flag names resolved true, sorted.
func ActiveFlags(flags map[string]bool) []string {
	out := make([]string, 0, len(flags))
	for k, on := range flags {
		if on {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
