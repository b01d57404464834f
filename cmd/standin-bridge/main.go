// cmd/standin-bridge/main.go
//
// Serves one review session over loopback HTTP for the browser front-end.
// Settings come from .standin/config.yaml in the working directory and the
// STANDIN_* environment variables.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kingrea/standin/internal/backend"
	"github.com/kingrea/standin/internal/bridge"
	"github.com/kingrea/standin/internal/config"
	"github.com/kingrea/standin/internal/logbook"
	"github.com/kingrea/standin/internal/logging"
	"github.com/kingrea/standin/internal/swipe"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "standin-bridge: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("working directory: %w", err)
	}
	if err := config.InitStandinDir(cwd); err != nil {
		return fmt.Errorf("init .standin: %w", err)
	}
	cfg, err := config.NewConfig(cwd)
	if err != nil {
		return err
	}
	logger, err := logging.New(cwd, "bridge")
	if err != nil {
		return err
	}
	defer logger.Close()
	journal, err := logbook.New(filepath.Join(cfg.LogsDir(), "journey.log"))
	if err != nil {
		return err
	}
	defer journal.Close()

	settings := bridge.SettingsFromConfig(cfg)
	if !settings.Enabled {
		return errors.New("bridge is disabled (bridge.enabled / STANDIN_BRIDGE_ENABLED)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services := backend.FromConfig(cfg, logger)
	feed := bridge.NewFeed(bridge.FeedWithLogger(logger))
	driver := swipe.NewDriver(ctx, services.Controller(logger), swipe.WithObserver(feed.Publish))
	defer driver.Close()

	srv := bridge.NewServer(settings, driver,
		bridge.WithFeed(feed),
		bridge.WithMatches(services.Social),
		bridge.WithLogger(logger),
		bridge.WithJournal(journal),
	)
	if err := srv.Start(ctx); err != nil {
		return err
	}
	journal.Info("Bridge listening on %s", srv.BaseURL())
	fmt.Printf("standin bridge listening on %s\n", srv.BaseURL())

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	journal.Info("Bridge stopped")
	return nil
}
