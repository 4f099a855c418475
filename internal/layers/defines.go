// SPDX-License-Identifier: AGPL-3.0-or-later

package layers

import (
	"fmt"
	"strconv"
	"strings"
)

const definePrefix = "$(DEFINE)"

// ExtractDefines collects build-time grid definitions carried as
// "$(DEFINE)NAME=value" parameter values. Later layers win.
func ExtractDefines(s Stack) (map[string]int, error) {
	res := make(map[string]int)
	for _, l := range s {
		for _, k := range l.Keys() {
			v := l[k]
			if !strings.HasPrefix(v, definePrefix) {
				continue
			}
			name, raw, ok := strings.Cut(strings.TrimPrefix(v, definePrefix), "=")
			if !ok {
				return nil, fmt.Errorf("parameter %s: malformed define %q", k, v)
			}
			n, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil {
				return nil, fmt.Errorf("parameter %s: define %s: %w", k, name, err)
			}
			res[strings.TrimSpace(name)] = n
		}
	}
	return res, nil
}
