// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/flowd-org/simctl/internal/engine"
	"github.com/flowd-org/simctl/internal/indexer"
	"github.com/flowd-org/simctl/internal/job"
	"github.com/flowd-org/simctl/internal/modules"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// exitError carries the simulation's exit code out of the run command.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("simulation exited with code %d", e.code) }

func exitCode(err error) int {
	var ee *exitError
	switch {
	case errors.As(err, &ee):
		return ee.code
	case errors.Is(err, engine.ErrConfigSelection):
		return 2
	case errors.Is(err, job.ErrNotFound), errors.Is(err, modules.ErrTableMissing):
		return 3
	default:
		return 1
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// completeJobs offers job IDs under the configured jobs directory. Settings
// are not loaded for completion requests, so it resolves them itself.
func completeJobs(a *app) cobra.CompletionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]cobra.Completion, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		if a.settings == nil {
			if err := a.setup(cmd); err != nil {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			defer a.teardown()
		}
		res, err := indexer.Discover(a.settings.Jobs)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		var out []cobra.Completion
		for _, e := range res.Jobs {
			if strings.HasPrefix(e.ID, toComplete) {
				out = append(out, e.ID)
			}
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	}
}
