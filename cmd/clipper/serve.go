package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rainyday01/video-cutter/internal/api"
	"github.com/rainyday01/video-cutter/internal/clipper"
	"github.com/rainyday01/video-cutter/internal/config"
	"github.com/rainyday01/video-cutter/internal/db"
	"github.com/rainyday01/video-cutter/internal/logging"
	"github.com/rainyday01/video-cutter/internal/pipeline"
	"github.com/rainyday01/video-cutter/internal/runs"
	"github.com/rainyday01/video-cutter/internal/supervisor"
	"github.com/rainyday01/video-cutter/internal/ui"
	"github.com/rainyday01/video-cutter/internal/watcher"
)

var (
	servePort     int
	serveHeadless bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the local control API and show the tray menu",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return serve(cmd, a)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, fmt.Sprintf("listen port on 127.0.0.1 (default %d)", config.DefaultPort))
	serveCmd.Flags().BoolVar(&serveHeadless, "headless", false, "do not show the tray menu")
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, a *app) error {
	startTime := time.Now()
	logger := a.logger
	cfg := a.cfg

	port := cfg.Port()
	if cmd.Flags().Changed("port") {
		port = servePort
	}
	headless := cfg.Headless() || serveHeadless

	logger.Info("starting clipper", "version", config.Version, "data_dir", cfg.DataDir())

	database, err := db.Open(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()
	repo := runs.NewRepository(database.Conn())

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	cutter, err := a.cutter()
	if err != nil {
		return err
	}
	doctor := pipeline.NewCachedDoctor(cutter, logger)
	initCtx, initCancel := context.WithTimeout(context.Background(), 15*time.Second)
	if _, err := doctor.Refresh(initCtx); err != nil {
		logger.Warn("initial doctor probe failed", "error", err)
	}
	initCancel()

	fsw, err := watcher.NewFSWatcher(logging.WithComponent(logger, "watcher"))
	if err != nil {
		logger.Warn("folder watcher unavailable, inventories will not be cached", "error", err)
	}

	events := supervisor.NewBroadcaster(64)
	svcCfg := clipper.ServiceConfig{
		Supervisor: supervisor.New(cutter, doctor, logging.WithComponent(logger, "supervisor")),
		Repository: repo,
		Events:     events,
		Headers:    cfg.Headers(),
		Extensions: cfg.Extensions(),
		Logger:     logger,
	}
	if fsw != nil {
		svcCfg.Watcher = fsw
		defer fsw.Stop()
	}
	svc := clipper.NewService(svcCfg)

	apiServer := api.NewServer(api.ServerConfig{
		Port:       port,
		Service:    svc,
		Events:     events,
		Repository: repo,
		Doctor:     doctor,
		Logger:     logging.WithComponent(logger, "api"),
		StartTime:  startTime,
		Version:    config.Version,
		Quality:    cfg.Quality(),
		Offsets:    cfg.Offsets(),
	})

	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Video Clipper %s\n", config.Version)
	fmt.Fprintf(out, "  API URL:    http://%s\n", apiServer.Addr())
	fmt.Fprintf(out, "  Auth Token: %s\n", authToken)
	fmt.Fprintln(out)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- apiServer.Start()
	}()

	quitCh := make(chan struct{})
	var quitOnce sync.Once
	quit := func() { quitOnce.Do(func() { close(quitCh) }) }

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig.String())
			quit()
		case err := <-serverErr:
			if err != nil {
				logger.Error("HTTP server error", "error", err)
			}
			quit()
		case <-quitCh:
		}
	}()

	if headless {
		logger.Info("running in headless mode (no system tray)")
		<-quitCh
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Controller: svc,
			Events:     events,
			Logger:     logging.WithComponent(logger, "tray"),
			OnQuit:     quit,
		})
		go func() {
			<-quitCh
			tray.Quit()
		}()
		// The tray owns the main goroutine until it exits.
		tray.Run()
		quit()
	}

	logger.Info("initiating graceful shutdown")
	if svc.Status().State.Active() {
		if err := svc.Stop(); err != nil {
			logger.Warn("failed to stop active run", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func ensureAuthToken(repo runs.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, api.AuthTokenKey)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, api.AuthTokenKey, token); err != nil {
		return "", err
	}

	return token, nil
}
