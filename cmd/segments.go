// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"fmt"

	"github.com/flowd-org/simctl/internal/job"
	"github.com/spf13/cobra"
)

type segmentsView struct {
	ID       string        `json:"id"`
	Segments []job.Segment `json:"segments"`
	Display  []string      `json:"display"`
}

type segmentView struct {
	Number    int    `json:"number"`
	Kind      string `json:"config_kind"`
	RunLength int    `json:"run_length"`
	T100      bool   `json:"t100"`
	Restart   string `json:"restart,omitempty"`
	Date      string `json:"config_date,omitempty"`
	Mods      string `json:"mods,omitempty"`
}

func NewSegmentsCmd(a *app) *cobra.Command {
	var (
		show   int
		asJSON bool
	)
	c := &cobra.Command{
		Use:   "segments <job>",
		Short: "List a job's run segments or show the configuration one ran with",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.engine()
			if err != nil {
				return err
			}
			j, err := job.Load(a.settings.Jobs, eng.JobDir(args[0]))
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("show") {
				seg, err := j.Layout().ReadSegment(show)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(a.out, segmentView{
						Number:    seg.Number,
						Kind:      seg.Config.Kind(),
						RunLength: seg.Config.RunLength,
						T100:      seg.Config.T100,
						Restart:   seg.Config.Restart,
						Date:      seg.Config.ConfigDate,
						Mods:      seg.Mods,
					})
				}
				fmt.Fprintf(a.out, "# segment %d of %s\n", seg.Number, j.ID)
				if err := seg.Config.Write(a.out); err != nil {
					return err
				}
				if seg.Mods != "" {
					fmt.Fprintln(a.out, "# config_mods")
					fmt.Fprintln(a.out, seg.Mods)
				}
				return nil
			}

			if asJSON {
				return writeJSON(a.out, segmentsView{ID: j.ID, Segments: j.Segments, Display: j.SegmentStrings()})
			}
			for _, s := range j.SegmentStrings() {
				fmt.Fprintln(a.out, s)
			}
			return nil
		},
		ValidArgsFunction: completeJobs(a),
	}
	c.Flags().IntVar(&show, "show", 0, "Show the archived configuration of segment N")
	c.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return c
}
