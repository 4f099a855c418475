// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/flowd-org/simctl/internal/coredb"
	"github.com/flowd-org/simctl/internal/events"
	"github.com/spf13/cobra"
)

var errJournalDisabled = errors.New("journal is disabled or unavailable (see journal.enabled in settings)")

func NewJournalCmd(a *app) *cobra.Command {
	var (
		after   int64
		stats   bool
		forget  bool
		jsonOut bool
	)
	c := &cobra.Command{
		Use:   "journal [job]",
		Short: "Show recorded job events, or the jobs that have any",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.journal == nil {
				return errJournalDisabled
			}
			ctx := cmd.Context()

			if stats {
				st, err := a.db.Stats(ctx)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(a.out, st)
				}
				return writeYAML(a.out, st)
			}

			if forget {
				if len(args) == 0 {
					return errors.New("--forget needs a job")
				}
				n, err := a.journal.Forget(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "[OK] removed %d events of %s\n", n, args[0])
				return nil
			}

			if len(args) == 0 {
				jobs, err := a.journal.Jobs(ctx)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(a.out, jobs)
				}
				tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "JOB\tEVENTS\tLAST")
				for _, j := range jobs {
					fmt.Fprintf(tw, "%s\t%d\t%s\n", j.JobID, j.Events, j.Last.Local().Format(time.DateTime))
				}
				return tw.Flush()
			}

			enc := json.NewEncoder(a.out)
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			if !jsonOut {
				fmt.Fprintln(tw, "SEQ\tTIME\tTYPE\tDETAIL")
			}
			err := a.journal.ForEach(ctx, args[0], after, func(entry coredb.JournalEntry) error {
				ev, err := events.Decode(entry)
				if err != nil {
					return fmt.Errorf("decode event %d: %w", entry.Seq, err)
				}
				if jsonOut {
					return enc.Encode(ev)
				}
				_, err = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", ev.Sequence,
					entry.Timestamp.Local().Format(time.DateTime), ev.Type, eventDetail(ev))
				return err
			})
			if err != nil {
				return err
			}
			if jsonOut {
				return nil
			}
			return tw.Flush()
		},
		ValidArgsFunction: completeJobs(a),
	}
	c.Flags().Int64Var(&after, "after", 0, "Only show events with a sequence number above this")
	c.Flags().BoolVar(&stats, "stats", false, "Show journal database size and limits")
	c.Flags().BoolVar(&forget, "forget", false, "Delete the job's recorded events")
	c.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return c
}

func eventDetail(ev events.JobEvent) string {
	detail := ev.Message
	if ev.LaunchID != "" {
		detail = "launch=" + ev.LaunchID + " " + detail
	}
	if len(ev.Data) > 0 {
		data, err := json.Marshal(ev.Data)
		if err == nil {
			detail += string(data)
		}
	}
	return detail
}
