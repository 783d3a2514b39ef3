// rmlinesd watches directories of reMarkable scene files and keeps a catalog
// of their parse results.
//
// Every .rm file that stops changing is parsed. Its summary, page text and
// diagnostics are recorded in the SQLite catalog, the diagnostics are logged
// and, when an export directory is configured, a snapshot of the page is
// written next to the others. With metrics.listen set, counters and health
// checks are served over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"rmlines/internal/config"
	"rmlines/internal/export"
	"rmlines/internal/health"
	"rmlines/internal/logging"
	"rmlines/internal/metrics"
	"rmlines/internal/store"
	"rmlines/internal/watcher"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "rmlinesd: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath string
		initConfig bool
		watchPaths []string
		logLevel   string
		listen     string
	)

	flagSet := pflag.NewFlagSet("rmlinesd", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to config file (toml, json or yaml)")
	flagSet.BoolVar(&initConfig, "init", false, "write a default config file and exit")
	flagSet.StringSliceVarP(&watchPaths, "watch", "w", nil, "additional directories to watch")
	flagSet.StringVar(&logLevel, "log-level", "", "override the configured log level")
	flagSet.StringVar(&listen, "metrics-listen", "", "serve metrics and health checks on this address")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	if configPath == "" {
		configPath = config.FindConfigFile()
	}
	if configPath == "" {
		configPath = config.ConfigPath()
	}

	if initConfig {
		cfg, created, err := config.LoadOrCreate(configPath)
		if err != nil {
			return err
		}
		if !created {
			return fmt.Errorf("config already exists: %s", configPath)
		}
		if err := cfg.EnsureDirectories(); err != nil {
			return err
		}
		fmt.Printf("Wrote default config to %s\n", configPath)
		return nil
	}

	loader := config.NewLoader(configPath)
	defer loader.Close()
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config %s: %w", configPath, err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if listen != "" {
		cfg.Metrics.Listen = listen
	}
	cfg.Watch.Paths = append(cfg.Watch.Paths, watchPaths...)

	logCfg, err := cfg.Logging.LoggerConfig("rmlinesd")
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return err
	}
	defer logger.Close()
	logging.SetDefault(logger)

	warnings, _ := cfg.Check()
	for _, w := range warnings.Warnings() {
		logger.Warn("config", slog.String("field", w.Field), slog.String("message", w.Message))
	}

	paths := cfg.WatchPaths()
	if len(paths) == 0 {
		return errors.New("no watch paths configured (set watch.paths or pass --watch)")
	}

	format, err := export.ParseFormat(cfg.Export.Format)
	if err != nil {
		return err
	}

	st, err := store.OpenWithTimeout(cfg.CatalogPath(), cfg.Catalog.BusyTimeoutMs)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer st.Close()

	w, err := watcher.New(watcher.Options{
		Paths:       paths,
		Include:     cfg.Watch.IncludePatterns,
		Exclude:     cfg.Watch.ExcludePatterns,
		Debounce:    time.Duration(cfg.Watch.DebounceMs) * time.Millisecond,
		MaxFileSize: cfg.Watch.MaxFileSize,
		Recursive:   cfg.Watch.Recursive,
	})
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Start(); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer w.Stop()

	loader.OnChange(func(c config.Change) {
		level, err := logging.ParseLevel(c.New.Logging.Level)
		if err != nil {
			return
		}
		logger.SetLevel(level)
		logger.Info("config reloaded", slog.String("level", logging.LevelString(level)))
		if len(c.Restart) > 0 {
			logger.Warn("restart rmlinesd to apply", slog.Any("sections", c.Restart))
		}
	})
	if err := loader.Watch(); err != nil {
		logger.Warn("config reload disabled", slog.String("error", err.Error()))
	}

	pidFile := filepath.Join(config.DataDir(), "rmlinesd.pid")
	if err := os.MkdirAll(filepath.Dir(pidFile), 0700); err != nil {
		return err
	}
	if err := os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0600); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidFile)

	daemonMetrics := metrics.NewDaemon(metrics.NewRegistry("rmlines"))
	checker := newChecker(cfg, st)
	if cfg.Metrics.Listen != "" {
		srv := serveMetrics(cfg.Metrics.Listen, daemonMetrics.Registry(), checker, logger)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
	}

	p := &processor{
		store:     st,
		logger:    logger,
		exportDir: cfg.ExportDir(),
		format:    format,
		metrics:   daemonMetrics,
	}
	s := &stats{started: time.Now()}
	checker.SetReady(true)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	daemonMetrics.Tick(w.TrackedFiles())

	logger.Info("watching",
		slog.Any("paths", paths),
		slog.String("catalog", cfg.CatalogPath()),
		slog.Int("tracked", w.TrackedFiles()),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	for {
		select {
		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			o, err := p.handle(ev)
			if err != nil {
				logger.Error("handle", slog.String("path", ev.Path), slog.String("error", err.Error()))
			}
			s.add(o)

		case err, ok := <-w.Errors():
			if ok {
				logger.Error("watcher", slog.String("error", err.Error()))
			}

		case <-ticker.C:
			daemonMetrics.Tick(w.TrackedFiles())

		case err := <-loader.Errors():
			logger.Warn("config reload failed", slog.String("error", err.Error()))

		case sig := <-sigChan:
			checker.SetReady(false)
			logger.Info("shutting down",
				slog.String("signal", sig.String()),
				slog.Duration("uptime", time.Since(s.started).Round(time.Second)),
				slog.Int("recorded", s.recorded),
				slog.Int("unchanged", s.unchanged),
				slog.Int("rejected", s.rejected),
			)
			return nil
		}
	}
}

// newChecker registers the checks /readyz and /healthz report on.
func newChecker(cfg *config.Config, st *store.Store) *health.Checker {
	checker := health.NewChecker()
	checker.RegisterFunc("catalog", true, health.CatalogCheck(st.Ping))
	checker.RegisterFunc("watch_paths", true, health.WatchPathsCheck(cfg.WatchPaths()))
	if dir := cfg.ExportDir(); dir != "" {
		checker.RegisterFunc("export_dir", false, health.WritableDirCheck(dir))
	}
	return checker
}

// serveMetrics starts the observability endpoint in the background.
func serveMetrics(addr string, registry *metrics.Registry, checker *health.Checker, logger *logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", registry.HTTPHandler())
	mux.Handle("/livez", checker.LivenessHandler())
	mux.Handle("/readyz", checker.ReadinessHandler())
	mux.Handle("/healthz", checker.HealthHandler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics endpoint", slog.String("addr", addr), slog.String("error", err.Error()))
		}
	}()
	logger.Info("serving metrics", slog.String("addr", addr))
	return srv
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `rmlinesd - catalog reMarkable scene files as they change

Usage:
  rmlinesd [flags]

The config file is searched for in the current directory, %s and %s.
Run "rmlinesd --init" to write one with defaults.

Flags:
%s`, config.PlatformConfigDir(), config.DataDir(), flagSet.FlagUsages())
}
