package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wlame/rx/internal/adapters/fsnotify"
	"github.com/wlame/rx/internal/adapters/web"
	"github.com/wlame/rx/internal/app"
)

var (
	serveListen string
	serveRoot   string
	serveWatch  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the JSON API server",
	Long: "Serves the search pipeline over HTTP with Prometheus metrics on\n" +
		"/metrics. The search root confines every path the API will touch.",
	Example: "  rx serve\n" +
		"  rx serve --listen 0.0.0.0:8080\n" +
		"  rx serve --watch",
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (default from config)")
	serveCmd.Flags().StringVar(&serveRoot, "root", "", "Search root confining API file access (default from config, then the working directory)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", true, "Invalidate caches when watched files change")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveRoot != "" {
		cfg.SearchRoot = serveRoot
	}
	// Unlike one-shot CLI runs, the server always confines file access.
	if cfg.SearchRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve working directory: %w", err)
		}
		cfg.SearchRoot = wd
	}

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if serveWatch {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			slog.Warn("file watcher unavailable", "error", err)
		} else {
			a.SetWatcher(watcher)
			if err := a.WatchForInvalidation(a.Sandbox.Root()); err != nil {
				slog.Warn("cache invalidation watch failed", "error", err)
			}
		}
	}

	stopJanitor := a.StartJanitor(10*time.Minute, time.Hour)
	defer stopJanitor()

	addr := serveListen
	if addr == "" {
		addr = a.Config.ListenAddr
	}

	srv := web.NewServer(a)
	if err := srv.Start(addr); err != nil {
		return err
	}
	defer srv.Stop()

	slog.Info("serving", "url", srv.URL(), "search_root", a.Sandbox.Root())
	fmt.Printf("rx API listening on %s\n", srv.URL())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	fmt.Println("shutting down")
	return nil
}
