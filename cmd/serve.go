package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"

	"github.com/metisearch/metis/pkg/api"
	"github.com/metisearch/metis/pkg/config"
	"github.com/metisearch/metis/pkg/core"
)

// historyRetention bounds how long searches and outcomes are kept.
const historyRetention = 30 * 24 * time.Hour

// ServeCommand creates the serve command
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the search API daemon",
		Action: func(ctx context.Context, c *cli.Command) error {
			return serve(ctx, c.String("config"))
		},
	}
}

// serve starts the HTTP API and keeps it running until interrupted. The
// config file is watched for changes; engine configuration reloads without a
// restart, global settings do not.
func serve(ctx context.Context, configPath string) error {
	stack, err := buildSearchStack(configPath, true)
	if err != nil {
		return err
	}
	defer stack.Close()

	mux := http.NewServeMux()
	server := api.NewServer(stack.registry, stack.dispatcher, stack.history)
	server.RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:    stack.cfg.ListenAddr,
		Handler: api.CorsMiddleware(mux),
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", stack.cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warnf("creating config file watcher: %v", err)
	} else {
		defer func() {
			if err := watcher.Close(); err != nil {
				logger.Warnf("closing config file watcher: %v", err)
			}
		}()
		if err := watcher.Add(configPath); err != nil {
			logger.Warnf("watching config file %s: %v", configPath, err)
		} else {
			logger.Infof("watching config file for changes: %s", configPath)
		}
	}

	maintenance := time.NewTicker(time.Hour)
	defer maintenance.Stop()

	fmt.Println("Serving. Press Ctrl+C to stop, send SIGHUP to reload engine configuration.")

	for {
		select {
		case err := <-serverErr:
			return fmt.Errorf("http server: %w", err)

		case <-ctx.Done():
			return shutdown(httpServer)

		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				logger.Infof("received SIGHUP, reloading engine configuration")
				if err := reloadEngines(configPath, stack.registry); err != nil {
					logger.Errorf("reloading engine configuration: %v", err)
				}
			case syscall.SIGINT, syscall.SIGTERM:
				fmt.Println("\nShutting down...")
				return shutdown(httpServer)
			}

		case <-maintenance.C:
			runMaintenance(stack)

		case event, ok := <-watcher.Events:
			if !ok {
				continue
			}
			// Editors often replace the file atomically, so react to
			// rename and remove as well, re-adding the watch afterwards.
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				logger.Infof("config file changed (%s), reloading engine configuration", event.Op.String())
				time.Sleep(200 * time.Millisecond)
				if _, err := os.Stat(configPath); os.IsNotExist(err) {
					logger.Warnf("config file was removed and not replaced, skipping reload")
					continue
				}
				if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
					if err := watcher.Add(configPath); err != nil {
						logger.Warnf("re-adding config file to watcher: %v", err)
					}
				}
				if err := reloadEngines(configPath, stack.registry); err != nil {
					logger.Errorf("reloading engine configuration: %v", err)
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				continue
			}
			logger.Warnf("config file watcher error: %v", err)
		}
	}
}

func shutdown(httpServer *http.Server) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

// reloadEngines rebuilds the engine set from the config file. Changed and
// added engines take effect immediately; engines no longer configured are
// removed. Global settings (timeouts, weights, score rule) need a restart.
func reloadEngines(configPath string, registry *core.Registry) error {
	newCfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading new config: %w", err)
	}

	configured := make(map[string]bool)
	for _, name := range newCfg.ListEngines() {
		configured[name] = true
	}
	for _, name := range registry.ListEngines() {
		if !configured[name] {
			logger.Infof("removing engine: %s", name)
			if err := registry.RemoveEngine(name); err != nil {
				logger.Warnf("removing engine %s: %v", name, err)
			}
		}
	}

	if err := createEnginesFromConfig(registry, newCfg); err != nil {
		return fmt.Errorf("creating engines: %w", err)
	}

	logger.Infof("engine configuration reloaded: %d engines active", len(registry.ListEngines()))
	return nil
}

// runMaintenance prunes old history, checkpoints the database and persists
// the current breaker suspensions.
func runMaintenance(stack *searchStack) {
	if stack.history == nil {
		return
	}
	if err := stack.history.Prune(historyRetention); err != nil {
		logger.Warnf("pruning history: %v", err)
	}
	if err := stack.history.Optimize(); err != nil {
		logger.Warnf("optimizing history database: %v", err)
	}
	if err := stack.history.SaveSuspensions(stack.breaker.Suspensions()); err != nil {
		logger.Warnf("saving suspensions: %v", err)
	}
}
