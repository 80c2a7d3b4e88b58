package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rainyday01/video-cutter/internal/clipper"
	"github.com/rainyday01/video-cutter/internal/db"
	"github.com/rainyday01/video-cutter/internal/pipeline"
	"github.com/rainyday01/video-cutter/internal/plan"
	"github.com/rainyday01/video-cutter/internal/runs"
	"github.com/rainyday01/video-cutter/internal/supervisor"
	"github.com/rainyday01/video-cutter/internal/ui"
)

// planFlags are shared by run and plan.
type planFlags struct {
	output      string
	quality     string
	startOffset float64
	endOffset   float64
	minDuration float64
	edl         bool
}

func (f *planFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "destination folder (default: the source folder)")
	cmd.Flags().StringVarP(&f.quality, "quality", "q", "", "high, medium or low")
	cmd.Flags().Float64Var(&f.startOffset, "start-offset", 0, "seconds to start earlier, -60..60")
	cmd.Flags().Float64Var(&f.endOffset, "end-offset", 0, "seconds to end later, -60..60")
	cmd.Flags().Float64Var(&f.minDuration, "min-duration", 0, "shortest clip in seconds, 1..300")
	cmd.Flags().BoolVar(&f.edl, "edl", false, "also write an edit decision list of the clips")
}

// request builds a run request from the arguments, the configured defaults
// and any flags the user set.
func (f *planFlags) request(cmd *cobra.Command, a *app, args []string) (clipper.Request, error) {
	req := clipper.Request{
		SheetPath: args[0],
		SourceDir: args[1],
		OutputDir: f.output,
		Quality:   a.cfg.Quality(),
		Offsets:   a.cfg.Offsets(),
		WriteEDL:  f.edl,
	}
	if cmd.Flags().Changed("quality") {
		q, err := plan.ParseQuality(f.quality)
		if err != nil {
			return req, err
		}
		req.Quality = q
	}
	if cmd.Flags().Changed("start-offset") {
		req.Offsets.StartOffset = seconds(f.startOffset)
	}
	if cmd.Flags().Changed("end-offset") {
		req.Offsets.EndOffset = seconds(f.endOffset)
	}
	if cmd.Flags().Changed("min-duration") {
		req.Offsets.MinDuration = seconds(f.minDuration)
	}
	return req, req.Offsets.Validate()
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

var runFlags planFlags

var runCmd = &cobra.Command{
	Use:   "run <spreadsheet> <source-folder>",
	Short: "Cut every clip listed in the spreadsheet",
	Long: `Reads the spreadsheet, matches each time range to the recording that
covers it and cuts the clips one after another with ffmpeg.

Press Ctrl+C once to stop after killing the current cut; clips already
written are kept.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		req, err := runFlags.request(cmd, a, args)
		if err != nil {
			return err
		}

		cutter, err := a.cutter()
		if err != nil {
			return err
		}
		doctor := pipeline.NewCachedDoctor(cutter, a.logger)

		var repo runs.Repository
		if database, err := db.Open(a.cfg.DBPath(), a.logger); err != nil {
			a.logger.Warn("run history disabled", "error", err)
		} else {
			defer database.Close()
			repo = runs.NewRepository(database.Conn())
		}

		svc := clipper.NewService(clipper.ServiceConfig{
			Supervisor: supervisor.New(cutter, doctor, a.logger),
			Repository: repo,
			Headers:    a.cfg.Headers(),
			Extensions: a.cfg.Extensions(),
			Logger:     a.logger,
		})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		prep, err := svc.Prepare(ctx, req)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		printPlanSummary(out, prep)
		if len(prep.Items) == 0 {
			return nil
		}

		// First signal stops the run; a second one abandons it.
		sigCh := make(chan os.Signal, 2)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		go func() {
			select {
			case sig := <-sigCh:
				fmt.Fprintln(out, "\nstopping, press Ctrl+C again to abort")
				a.logger.Info("stop requested by signal", "signal", sig.String())
				svc.Stop()
			case <-ctx.Done():
				return
			}
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()

		sum, err := svc.Execute(ctx, prep, &consoleObserver{w: out})
		if err != nil && sum == nil {
			return err
		}
		printSummary(out, sum)
		if err != nil {
			return err
		}
		if sum.Failed > 0 {
			return fmt.Errorf("%d of %d clips failed", sum.Failed, sum.Total)
		}
		return nil
	},
}

func init() {
	runFlags.register(runCmd)
	rootCmd.AddCommand(runCmd)
}

// consoleObserver prints run progress for a person watching the terminal.
type consoleObserver struct {
	supervisor.NopObserver
	w io.Writer
}

func (o *consoleObserver) OnTaskStart(t supervisor.TaskInfo) {
	fmt.Fprintf(o.w, "[%d/%d] %s  (%s +%s)\n", t.Index+1, t.Total, t.Label, filepath.Base(t.Source), t.Duration.Round(time.Second))
}

func (o *consoleObserver) OnProgress(p supervisor.Progress) {
	fmt.Fprintf(o.w, "\r  %3d%%  overall %3d%%  ETA %s ", int(p.Fraction*100), int(p.Overall*100), ui.FormatETA(p.ETA))
}

func (o *consoleObserver) OnTaskDone(t supervisor.TaskInfo) {
	fmt.Fprintf(o.w, "\r  done in %s -> %s\n", t.Elapsed.Round(time.Second), t.Output)
}

func (o *consoleObserver) OnTaskFailed(t supervisor.TaskInfo, f supervisor.Failure) {
	fmt.Fprintf(o.w, "\r  FAILED: %s\n", f.Reason)
}

func printSummary(w io.Writer, sum *supervisor.Summary) {
	fmt.Fprintf(w, "\n%s: %d completed, %d failed, %d skipped of %d in %s\n",
		sum.State, sum.Completed, sum.Failed, sum.Skipped, sum.Total, sum.Elapsed.Round(time.Second))
	if sum.Aborted != "" {
		fmt.Fprintf(w, "aborted: %s\n", sum.Aborted)
	}
	for _, f := range sum.Failures {
		fmt.Fprintf(w, "  #%d %s: %s\n", f.Index+1, f.Label, firstLine(f.Reason))
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
