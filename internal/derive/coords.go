// SPDX-License-Identifier: AGPL-3.0-or-later

package derive

import (
	"strconv"

	"github.com/flowd-org/simctl/internal/layers"
)

// Coordinates turns grid defines into ma_dim_<NAME> parameters.
func Coordinates(defs map[string]int) layers.Layer {
	res := make(layers.Layer, len(defs))
	for k, v := range defs {
		res["ma_dim_"+k] = strconv.Itoa(v)
	}
	return res
}
