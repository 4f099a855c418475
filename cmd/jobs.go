// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/flowd-org/simctl/internal/indexer"
	"github.com/spf13/cobra"
)

// statusReaders bounds concurrent status reads while listing.
const statusReaders = 8

type jobsListing struct {
	Root    string                   `json:"root"`
	Jobs    []jobStatus              `json:"jobs"`
	Folders []indexer.Entry          `json:"folders,omitempty"`
	Errors  []indexer.DiscoveryError `json:"errors,omitempty"`
}

func NewJobsCmd(a *app) *cobra.Command {
	var jsonOut bool
	c := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs under the jobs directory with their state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := indexer.Discover(a.settings.Jobs)
			if err != nil {
				return err
			}
			sort.Slice(res.Jobs, func(i, j int) bool {
				return res.Jobs[i].ID < res.Jobs[j].ID
			})
			eng, err := a.engine()
			if err != nil {
				return err
			}
			statuses, err := indexer.Collect(cmd.Context(), res.Jobs, statusReaders,
				func(ctx context.Context, e indexer.Entry) (jobStatus, error) {
					return describeJob(ctx, eng, a.settings.Jobs, e.ID)
				})
			if err != nil {
				return err
			}

			listing := jobsListing{Root: a.settings.Jobs, Jobs: statuses, Folders: res.Folders, Errors: res.Errors}
			if jsonOut {
				return writeJSON(a.out, listing)
			}

			if len(statuses) == 0 {
				fmt.Fprintf(a.out, "(no jobs found under %s)\n", a.settings.Jobs)
			} else {
				tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tSTATE\tPROGRESS\tCONFIG\tRUN LENGTH")
				for _, js := range statuses {
					kind := js.Kind
					if kind == "" {
						kind = "-"
					}
					runLength := "-"
					if js.RunLength > 0 {
						runLength = fmt.Sprint(js.RunLength)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", js.ID, js.State, formatPercent(js.Percent), kind, runLength)
				}
				tw.Flush()
			}

			if len(res.Folders) > 0 {
				fmt.Fprintln(a.out)
				fmt.Fprintln(a.out, "EMPTY FOLDERS")
				for _, f := range res.Folders {
					fmt.Fprintf(a.out, "  %s\n", f.ID)
				}
			}

			for _, derr := range res.Errors {
				fmt.Fprintf(a.err, "[warn] %s: %s\n", derr.Path, derr.Err)
			}
			return nil
		},
	}
	c.Flags().BoolVar(&jsonOut, "json", false, "Output jobs as JSON")
	return c
}
