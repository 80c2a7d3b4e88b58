package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rainyday01/video-cutter/internal/config"
	"github.com/rainyday01/video-cutter/internal/logging"
	"github.com/rainyday01/video-cutter/internal/pipeline"
)

var (
	flagConfigFile string
	flagDataDir    string
	flagLogLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "clipper",
	Short:         "Cut highlight clips out of timestamped recordings using a spreadsheet",
	Version:       config.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFile, "config", "", "YAML config file (default <data-dir>/clipper.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "directory for the database and logs (default ~/.clipper)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app holds what every command needs: resolved settings and a logger that
// writes to stderr and the diagnostic log.
type app struct {
	cfg    *config.EnvConfig
	logger *slog.Logger
	closer io.Closer
}

func newApp() (*app, error) {
	// Persistent flags are applied through the environment so they take the
	// same path as CLIPPER_* variables.
	if flagConfigFile != "" {
		os.Setenv(config.EnvConfigFile, flagConfigFile)
	}
	if flagDataDir != "" {
		os.Setenv(config.EnvDataDir, flagDataDir)
	}
	if flagLogLevel != "" {
		os.Setenv(config.EnvLogLevel, flagLogLevel)
	}

	cfg, err := config.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	logger, closer, err := logging.NewLogger(logging.Options{
		Level: cfg.LogLevel(),
		File:  cfg.LogPath(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	return &app{cfg: cfg, logger: logger, closer: closer}, nil
}

func (a *app) Close() {
	a.closer.Close()
}

func (a *app) cutter() (*pipeline.FFmpeg, error) {
	pcfg := pipeline.DefaultConfig(logging.WithComponent(a.logger, "ffmpeg"))
	pcfg.FFmpegPath = a.cfg.FFmpegPath()
	pcfg.FFprobePath = a.cfg.FFprobePath()
	pcfg.DebugPaths = logging.ParseLevel(a.cfg.LogLevel()) <= slog.LevelDebug
	return pipeline.NewFFmpeg(pcfg)
}
