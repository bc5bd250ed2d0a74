package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	verbose bool

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "precinct-companion",
	Short: "Companion server and shift report generator for the precinct board game",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		l, err := config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP companion server",
	RunE:  runServe,
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Play a scripted shift from stdin or a file and print its report",
	Long: `Reads one command per line:

  start [players] [dirty]     open a shift
  reroll                      reroll the setup dice
  action <category> <success|fail> [amount]
  ack <dispatch-id>           acknowledge a dispatch
  resolve                     resolve the active crisis
  wait <seconds>              advance the clock (crisis countdown)
  status                      print the tallies
  end <win|loss> [reason]     end the shift and print the report
  quit`,
	RunE: runSimulate,
}

var reportCmd = &cobra.Command{
	Use:   "report [case-file]",
	Short: "Print an archived shift report",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReport,
}

var (
	flagAddr       string
	flagSeed       int64
	flagContent    string
	flagScript     string
	flagFormat     string
	flagWatch      bool
	flagNoExporter bool
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&flagContent, "content", "", "Content pack directory (overrides PRECINCT_CONTENT_DIR)")
	rootCmd.PersistentFlags().Int64Var(&flagSeed, "seed", 0, "Random seed, 0 picks one (overrides PRECINCT_SEED)")

	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "Listen address (overrides PRECINCT_ADDR)")
	serveCmd.Flags().BoolVar(&flagWatch, "watch", false, "Reload the content pack when it changes")
	serveCmd.Flags().BoolVar(&flagNoExporter, "no-export", false, "Disable the PNG/PDF export endpoints")

	simulateCmd.Flags().StringVar(&flagScript, "script", "", "Read commands from this file instead of stdin")

	reportCmd.Flags().StringVar(&flagFormat, "format", "text", "Output format: text, json or html")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(reportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveConfig reads the environment and applies command-line overrides.
func resolveConfig(cmd *cobra.Command) (Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return Config{}, err
	}
	if cmd.Flags().Changed("addr") {
		cfg.Addr = flagAddr
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = flagSeed
	}
	if cmd.Flags().Changed("content") {
		cfg.ContentDir = flagContent
	}
	if cmd.Flags().Changed("watch") {
		cfg.ContentWatch = flagWatch
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := newConfiguredStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("close store", zap.Error(err))
		}
	}()

	if cfg.ContentWatch && cfg.ContentDir != "" {
		watcher, err := newContentWatcher(store, cfg.ContentDir)
		if err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("content watch disabled", zap.Error(err))
		}
		defer watcher.Stop()
	}

	routes := exportRoutes{Key: cfg.ExportKey, Limiter: newExportLimiter(cfg.ExportRate)}
	if !flagNoExporter {
		exporter := newRodExporter(cfg.ExportBrowserURL)
		defer func() { _ = exporter.Close() }()
		routes.Exporter = exporter
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(store, parseTemplates(), routes),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	in := cmd.InOrStdin()
	if flagScript != "" {
		f, err := os.Open(flagScript)
		if err != nil {
			return fmt.Errorf("open script: %w", err)
		}
		defer f.Close()
		in = f
	}
	store := newStore()
	store.rng = newRand(cfg.Seed)
	store.setPools(loadPoolsOrBuiltin(cmd.Context(), cfg.ContentDir))
	return runSimulation(store, in, cmd.OutOrStdout(), time.Now().UTC())
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	if repo == nil {
		return errors.New("report needs a persistent DB_DIALECT")
	}
	defer repo.Close()

	snap, err := repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	caseFile := ""
	if len(args) > 0 {
		caseFile = args[0]
	}
	store := newStore()
	store.applySnapshotLocked(snap)
	archive, ok := findArchiveLocked(store, caseFile)
	if !ok || archive.Report == nil {
		return errReportNotFound
	}
	return writeReport(cmd.OutOrStdout(), archive.Report, flagFormat)
}
