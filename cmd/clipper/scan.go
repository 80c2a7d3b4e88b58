package main

import (
	"context"
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rainyday01/video-cutter/internal/catalog"
)

var scanCmd = &cobra.Command{
	Use:   "scan <source-folder>",
	Short: "List recordings and the start times read from their names",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		inv, err := catalog.NewScanner(a.cfg.Extensions(), a.logger).Scan(context.Background(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: %d recordings\n\n", inv.Root, inv.Len())
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "START\tCOVERS UNTIL\tFILE")
		for i, f := range inv.Files {
			_, end, open := inv.Coverage(i)
			until := end.Format("2006-01-02 15:04:05")
			if open {
				until = "(last)"
			}
			rel, err := filepath.Rel(inv.Root, f.Path)
			if err != nil {
				rel = f.Path
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Start.Format("2006-01-02 15:04:05"), until, rel)
		}
		tw.Flush()

		if groups := inv.DuplicateGroups(); len(groups) > 0 {
			fmt.Fprintf(out, "\n%d start times are shared; the first file of each group is used:\n", len(groups))
			for _, g := range groups {
				fmt.Fprintf(out, "  %s\n", g[0].Start.Format("2006-01-02 15:04:05"))
				for _, f := range g {
					fmt.Fprintf(out, "    %s\n", f.Path)
				}
			}
		}
		if len(inv.Skipped) > 0 {
			fmt.Fprintf(out, "\n%d media files have no recognisable timestamp:\n", len(inv.Skipped))
			for _, p := range inv.Skipped {
				fmt.Fprintf(out, "  %s\n", p)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
