package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that ffmpeg and ffprobe can be found and run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "config:   %s\n", a.cfg.ConfigFile())
		fmt.Fprintf(out, "data dir: %s\n", a.cfg.DataDir())
		fmt.Fprintf(out, "log file: %s\n", a.cfg.LogPath())

		cutter, err := a.cutter()
		if err != nil {
			fmt.Fprintf(out, "ffmpeg:   NOT FOUND\n")
			return err
		}
		caps, err := cutter.Doctor(context.Background())
		if err != nil {
			fmt.Fprintf(out, "ffmpeg:   BROKEN\n")
			return err
		}
		fmt.Fprintf(out, "ffmpeg:   %s\n          %s\n", caps.FFmpegPath, caps.FFmpegVersion)
		if caps.HasProbe {
			fmt.Fprintf(out, "ffprobe:  %s\n          %s\n", caps.FFprobePath, caps.FFprobeVersion)
		} else {
			fmt.Fprintln(out, "ffprobe:  not found (clips use the encoder's default bitrate)")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
