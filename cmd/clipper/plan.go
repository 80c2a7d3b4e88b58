package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rainyday01/video-cutter/internal/clipper"
)

var planCmdFlags planFlags

var planCmd = &cobra.Command{
	Use:   "plan <spreadsheet> <source-folder>",
	Short: "Show the clips a run would cut without running ffmpeg",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		req, err := planCmdFlags.request(cmd, a, args)
		if err != nil {
			return err
		}

		// Planning needs no cutter or history.
		svc := clipper.NewService(clipper.ServiceConfig{
			Headers:    a.cfg.Headers(),
			Extensions: a.cfg.Extensions(),
			Logger:     a.logger,
		})
		prep, err := svc.Prepare(context.Background(), req)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		printPlanSummary(out, prep)
		printPlanTable(out, prep)

		if req.WriteEDL {
			path, err := svc.WriteEDL(prep, prep.Plans())
			if err != nil {
				return fmt.Errorf("write edit decision list: %w", err)
			}
			if path != "" {
				fmt.Fprintf(out, "\nedit decision list: %s\n", path)
			}
		}
		return nil
	},
}

func init() {
	planCmdFlags.register(planCmd)
	rootCmd.AddCommand(planCmd)
}

func printPlanSummary(w io.Writer, prep *clipper.Prepared) {
	fmt.Fprintf(w, "run %s: %d segments, %d planned, %d without a source file\n",
		prep.RunID, len(prep.Items), len(prep.Plans()), len(prep.Unmatched()))
	fmt.Fprintf(w, "source: %s (%d recordings)\n", prep.Inventory.Root, prep.Inventory.Len())
	fmt.Fprintf(w, "output: %s\n", prep.OutputDir)
	for _, row := range prep.Skipped {
		fmt.Fprintf(w, "  skipped row %d %q: %s\n", row.Row, row.Text, row.Reason)
	}
	for _, it := range prep.Unmatched() {
		fmt.Fprintf(w, "  no source for row %d %q: %v\n", it.Segment.Row, it.Segment.Label, it.Err)
	}
}

func printPlanTable(w io.Writer, prep *clipper.Prepared) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\n#\tROW\tLABEL\tSOURCE\tIN\tDURATION\tOUTPUT")
	for _, p := range prep.Plans() {
		dup := ""
		if p.Duplicate {
			dup = " (dup)"
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s%s\t%s\t%s\t%s\n",
			p.Index+1, p.Row, p.Label,
			filepath.Base(p.Source.Path), dup,
			clock(p.InPoint), p.Duration.Round(time.Millisecond),
			filepath.Base(p.Output))
	}
	tw.Flush()
}

func clock(d time.Duration) string {
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d.%03d", ms/3_600_000, ms/60_000%60, ms/1000%60, ms%1000)
}
