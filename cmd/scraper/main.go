package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-products/cache"
	"github.com/aluiziolira/go-scrape-products/config"
	"github.com/aluiziolira/go-scrape-products/input"
	"github.com/aluiziolira/go-scrape-products/pipeline"
	"github.com/aluiziolira/go-scrape-products/scraper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}
	cfg := config.DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment: %v\n", err)
		os.Exit(1)
	}

	if err := newRootCmd(cfg).Execute(); err != nil {
		os.Exit(1)
	}
}

type runOptions struct {
	file      string
	showTable bool
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "scraper [urls...]",
		Short: "Scrape Amazon product details through the extraction API",
		Long: `Scrape product title, brand store, item model number and manufacturer
for a batch of Amazon product URLs.

URLs come from arguments, from --file (.txt, .csv or .xlsx; first column) or,
when neither is given, from stdin, one per line.

Examples:
  scraper --api-key KEY https://www.amazon.co.uk/dp/B000000000
  scraper -f urls.xlsx -c 4 -o output/products.csv
  cat urls.txt | scraper --format dual`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
			return run(cmd.Context(), cfg, opts, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.APIKey, "api-key", cfg.APIKey, "Extraction API key (env SCRAPER_API_KEY)")
	flags.IntVarP(&cfg.Concurrency, "concurrency", "c", cfg.Concurrency, fmt.Sprintf("Concurrent scrapes (1-%d)", config.MaxConcurrency))
	flags.BoolVar(&cfg.UseInitialDelay, "initial-delay", cfg.UseInitialDelay, "Use the initial retry delay for rate-limit backoff")
	flags.StringVarP(&opts.file, "file", "f", "", "Read URLs from a .txt, .csv or .xlsx file")
	flags.StringVarP(&cfg.OutputFile, "output", "o", cfg.OutputFile, "Output file path")
	flags.StringVar(&cfg.OutputFormat, "format", cfg.OutputFormat, "Output format: csv, json, xlsx, dual (csv+jsonl), or all (csv+jsonl+xlsx)")
	flags.StringVar(&cfg.Endpoint, "endpoint", cfg.Endpoint, "Extraction API endpoint")
	flags.StringVar(&cfg.CachePath, "cache", cfg.CachePath, "SQLite cache file")
	flags.DurationVar(&cfg.CacheTTL, "cache-ttl", cfg.CacheTTL, "How long cached fields are reused")
	flags.DurationVar(&cfg.TaskTimeout, "task-timeout", cfg.TaskTimeout, "Time budget per URL")
	flags.DurationVar(&cfg.DispatchPause, "pause", cfg.DispatchPause, "Pause between task starts")
	flags.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Attempts per URL when rate limited")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	flags.BoolVar(&opts.showTable, "table", true, "Print a results table when done")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Enable verbose logging")

	return cmd
}

func run(parent context.Context, cfg *config.Config, opts *runOptions, args []string) error {
	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		return err
	}

	urls, err := readURLs(opts.file, args)
	if err != nil {
		slog.Error("reading urls", slog.Any("error", err))
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, discarding unfinished batch")
	}()

	store, err := cache.Open(ctx, cache.Options{
		Path:       cfg.CachePath,
		TTL:        cfg.CacheTTL,
		MemorySize: cfg.CacheMemorySize,
		MaxConns:   cfg.Concurrency,
	})
	if err != nil {
		slog.Error("opening cache", slog.Any("error", err))
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("close cache", slog.Any("error", err))
		}
	}()

	s, err := scraper.NewScraper(cfg,
		scraper.WithCache(store),
		scraper.WithProgress(logProgress),
	)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		return err
	}

	metricsServer := startMetricsServer(cfg.MetricsAddr, s.Metrics)
	defer stopMetricsServer(metricsServer)

	batch, err := s.Run(ctx, urls)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Warn("batch canceled, no results written")
		} else {
			slog.Error("scraping failed", slog.Any("error", err))
		}
		return err
	}

	writer, err := pipeline.NewOutputWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		return err
	}
	if err := pipeline.Export(writer, batch); err != nil {
		slog.Error("export failed", slog.Any("error", err))
		return err
	}

	if opts.showTable {
		renderResults(os.Stdout, batch)
	}
	printSummary(os.Stdout, batch, cfg.OutputFile)
	return nil
}

// readURLs prefers the file, then positional arguments, then stdin.
func readURLs(file string, args []string) ([]string, error) {
	switch {
	case file != "":
		return input.FromFile(file)
	case len(args) > 0:
		return input.FromText(strings.NewReader(strings.Join(args, "\n")))
	default:
		return input.FromText(os.Stdin)
	}
}

func logProgress(completed, total int) {
	slog.Info("progress",
		slog.Int("completed", completed),
		slog.Int("total", total),
	)
}

func startMetricsServer(addr string, metrics *scraper.Metrics) *http.Server {
	if addr == "" || metrics == nil {
		return nil
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))
	return server
}

func stopMetricsServer(server *http.Server) {
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics server shutdown failed", slog.Any("error", err))
	}
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
