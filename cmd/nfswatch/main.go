package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/schaermu/nfswatch/internal/activation"
	"github.com/schaermu/nfswatch/internal/collector"
	"github.com/schaermu/nfswatch/internal/config"
	"github.com/schaermu/nfswatch/internal/diff"
	"github.com/schaermu/nfswatch/internal/journal/sqlite"
	"github.com/schaermu/nfswatch/internal/keypress"
	"github.com/schaermu/nfswatch/internal/poller"
	"github.com/schaermu/nfswatch/internal/snapshot"
	"github.com/schaermu/nfswatch/internal/status"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string

	// Watch/snapshot flags
	watchPath     string
	watchInterval time.Duration
	persistDir    string

	// History flags
	journalPath  string
	historyLimit int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "nfswatch",
	Short: "Detect file changes on network mounts by polling",
	Long: `nfswatch detects file-system changes under a directory tree where native change
notifications are unreliable, such as NFS and other network mounts.

It periodically takes a snapshot of the tree, compares it with the previous one
and prints created, deleted and modified entries. When the entry count swings by
more than the heavy-load threshold, diffing is suspended and raw snapshots are
written to disk until the tree settles.`,
	SilenceUsage: true,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll a directory tree and print change events",
	Long: `Watch takes an initial snapshot of the configured tree and then polls it at the
configured interval, printing one line per change event to stdout.

Press q followed by enter on an interactive terminal, or send SIGINT/SIGTERM,
to stop after the current cycle completes.`,
	RunE: runWatch,
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Collect a single snapshot and write it to disk",
	RunE:  runSnapshot,
}

var diffCmd = &cobra.Command{
	Use:   "diff OLD NEW",
	Short: "Compare two persisted snapshot files",
	Long: `Diff loads two snapshot files written by watch or snapshot and prints the change
events between them, using the same folder collapsing as the live watcher.`,
	Args: cobra.ExactArgs(2),
	RunE: runDiff,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently journaled change events",
	RunE:  runHistory,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("nfswatch %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/nfswatch/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	// Watch command flags
	watchCmd.Flags().StringVar(&watchPath, "path", "", "directory tree to watch (overrides watch.path)")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "poll interval (overrides watch.interval)")

	// Snapshot command flags
	snapshotCmd.Flags().StringVar(&watchPath, "path", "", "directory tree to snapshot (overrides watch.path)")
	snapshotCmd.Flags().StringVar(&persistDir, "out", "", "directory to write the snapshot file to (overrides persist.dir)")

	// History command flags
	historyCmd.Flags().StringVar(&journalPath, "journal", "", "journal database (overrides journal.path)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "maximum number of events to show")

	// Add commands
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fs := afero.NewOsFs()
	engine := poller.NewEngine(poller.Options{
		Root:               cfg.Watch.Path,
		Interval:           cfg.IntervalDuration(),
		HeavyLoadThreshold: cfg.Watch.HeavyLoadThreshold,
	},
		collector.New(fs, cfg.Watch.Workers, logger),
		poller.NewDiskPersister(fs, cfg.Persist.Dir, logger),
		cmd.OutOrStdout(),
		logger)

	if cfg.JournalEnabled() {
		store, err := sqlite.Open(cfg.Journal.Path)
		if err != nil {
			logger.Warn("journal unavailable, continuing without it", "path", cfg.Journal.Path, "error", err)
		} else {
			defer func() {
				if err := store.Close(); err != nil {
					logger.Warn("failed to close journal", "error", err)
				}
			}()
			engine.WithJournal(store)
		}
	}

	serveDone := make(chan struct{})
	close(serveDone)
	if cfg.ServeEnabled() {
		serveDone = startStatusServer(ctx, cfg, engine, logger)
	}

	if cfg.KeypressEnabled() && keypress.IsTerminal(os.Stdin) {
		logger.Info("press q and enter to stop")
		go keypress.WatchQuit(ctx, os.Stdin, cancel)
	}

	err = engine.Run(ctx)
	cancel()
	<-serveDone
	return err
}

// startStatusServer registers the status endpoint as a cycle observer and
// serves it until ctx is cancelled. Listener failures are not fatal.
func startStatusServer(ctx context.Context, cfg *config.Config, engine *poller.Engine, logger *slog.Logger) chan struct{} {
	done := make(chan struct{})

	l, activated, err := activation.Listener(cfg.Serve.ListenAddr)
	if err != nil {
		logger.Error("failed to start status endpoint", "addr", cfg.Serve.ListenAddr, "error", err)
		close(done)
		return done
	}
	logger.Info("status endpoint listening", "addr", l.Addr().String(), "socket_activated", activated)

	srv := status.NewServer(cfg.Watch.Path, logger)
	engine.WithObserver(srv)

	go func() {
		defer close(done)
		if err := srv.Serve(ctx, l); err != nil {
			logger.Error("status endpoint failed", "error", err)
		}
	}()
	return done
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fs := afero.NewOsFs()
	result, err := collector.New(fs, cfg.Watch.Workers, logger).Collect(ctx, cfg.Watch.Path)
	if err != nil {
		return fmt.Errorf("failed to collect snapshot: %w", err)
	}

	path, size, err := snapshot.SaveFile(fs, cfg.Persist.Dir, result.Snapshot, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	logger.Info("snapshot saved",
		"entries", result.Snapshot.Len(),
		"skipped", result.Stats.Skipped,
		"size", humanize.Bytes(uint64(size)),
		"duration", result.Stats.Duration)
	_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
	return err
}

func runDiff(cmd *cobra.Command, args []string) error {
	fs := afero.NewOsFs()

	oldSnap, err := snapshot.LoadFile(fs, args[0])
	if err != nil {
		return err
	}
	newSnap, err := snapshot.LoadFile(fs, args[1])
	if err != nil {
		return err
	}

	events := diff.Compute(oldSnap, newSnap, snapshot.IndexFolders(oldSnap))
	return diff.Write(cmd.OutOrStdout(), events)
}

func runHistory(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	path := journalPath
	if path == "" {
		cfg, err := readConfigFile(logger)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cfg == nil || !cfg.JournalEnabled() {
			return errors.New("no journal configured, set journal.path or pass --journal")
		}
		path = cfg.Journal.Path
	}

	store, err := sqlite.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	events, err := store.Recent(context.Background(), historyLimit)
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, ev := range events {
		if _, err := fmt.Fprintf(out, "%s  %s\n", ev.StartedAt.Local().Format(time.DateTime), ev); err != nil {
			return err
		}
	}
	return nil
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Events go to stdout, diagnostics to stderr
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func defaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".config", "nfswatch", "config.yaml"), nil
}

// readConfigFile loads the config file if one was given or the default file
// exists. It returns nil when no file is present.
func readConfigFile(logger *slog.Logger) (*config.Config, error) {
	configPath := cfgFile
	if configPath == "" {
		defaultPath, err := defaultConfigPath()
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(defaultPath); err != nil {
			logger.Debug("no configuration file found", "path", defaultPath)
			return nil, nil
		}
		configPath = defaultPath
	}

	logger.Info("loading configuration", "path", configPath)
	return config.Load(configPath)
}

// loadConfig merges the config file with command line overrides and
// validates the result.
func loadConfig(logger *slog.Logger) (*config.Config, error) {
	cfg, err := readConfigFile(logger)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = &config.Config{}
	}

	if watchPath != "" {
		abs, err := filepath.Abs(watchPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve path %s: %w", watchPath, err)
		}
		cfg.Watch.Path = abs
	}
	if watchInterval > 0 {
		cfg.Watch.Interval = config.Duration(watchInterval)
	}
	if persistDir != "" {
		cfg.Persist.Dir = persistDir
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Debug("configuration loaded",
		"path", cfg.Watch.Path,
		"interval", cfg.IntervalDuration(),
		"heavy_load_threshold", cfg.Watch.HeavyLoadThreshold,
		"workers", cfg.Watch.Workers,
		"persist_dir", cfg.Persist.Dir)

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
