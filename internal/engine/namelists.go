// SPDX-License-Identifier: AGPL-3.0-or-later
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/flowd-org/simctl/internal/logctx"
	"github.com/flowd-org/simctl/internal/modules"
	"github.com/flowd-org/simctl/internal/namelist"
)

// alwaysPresent modules get a namelist whatever the flags say.
var alwaysPresent = []string{"main", "gem"}

type builtNamelist struct {
	Descriptor modules.Descriptor
	Template   string
	Namelist   *namelist.Namelist
	Unknown    []string
}

// namelistModules returns the active modules followed by the always-present ones.
func namelistModules(active []string) []string {
	out := append([]string{}, active...)
	for _, m := range alwaysPresent {
		dup := false
		for _, a := range active {
			if a == m {
				dup = true
			}
		}
		if !dup {
			out = append(out, m)
		}
	}
	return out
}

// templatePath is src/<m>/<m>-defaults.nml, or src/<m>-defaults.nml for
// modules without an enable flag.
func (e *Engine) templatePath(d modules.Descriptor) string {
	if !d.Toggleable() {
		return filepath.Join(e.SourceDir(), d.Name+"-defaults.nml")
	}
	return filepath.Join(e.SourceDir(), d.Name, d.Name+"-defaults.nml")
}

// buildNamelists merges the stack into every module template in memory.
// In strict mode any configuration key that matches no template entry
// fails the build; all offending modules are reported together.
func (e *Engine) buildNamelists(ctx context.Context, src *sources, strict bool) ([]builtNamelist, error) {
	logger := logctx.From(ctx)
	var out []builtNamelist
	var strictErrs []error
	for _, m := range namelistModules(src.Modules) {
		d, err := e.registry.Lookup(m)
		if err != nil {
			return nil, err
		}
		tmpl := e.templatePath(d)
		nl, err := namelist.ParseFile(tmpl)
		if err != nil {
			return nil, fmt.Errorf("namelist template for %s: %w", m, err)
		}
		if nl.Malformed {
			logger.Debug("namelist template malformed", "module", m, "path", tmpl)
		}
		if nl.Name == "" {
			nl.Name = d.NamelistName
		}
		b := builtNamelist{Descriptor: d, Template: tmpl, Namelist: nl}
		if strict {
			if err := nl.MergeStrict(d.Prefix, src.Stack); err != nil {
				var uk *namelist.UnknownKeysError
				if errors.As(err, &uk) {
					b.Unknown = uk.Keys
				}
				strictErrs = append(strictErrs, fmt.Errorf("module %s: %w", m, err))
			}
		} else {
			b.Unknown = nl.Merge(d.Prefix, src.Stack)
			if len(b.Unknown) > 0 {
				logger.Debug("configuration keys without namelist entry", "module", m, "keys", b.Unknown)
			}
		}
		out = append(out, b)
	}
	if len(strictErrs) > 0 {
		return nil, errors.Join(strictErrs...)
	}
	return out, nil
}
