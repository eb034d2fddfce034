package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"sms-dlr-aggregator/internal/ingestion"
	"sms-dlr-aggregator/internal/normalize"
	"sms-dlr-aggregator/internal/observability"
	"sms-dlr-aggregator/internal/pipeline"
	"sms-dlr-aggregator/internal/rates"
	"sms-dlr-aggregator/internal/report"
	"sms-dlr-aggregator/internal/schedule"
	"sms-dlr-aggregator/internal/storage"
	chstore "sms-dlr-aggregator/internal/storage/clickhouse"
	"sms-dlr-aggregator/internal/storage/file"
	"sms-dlr-aggregator/internal/storage/memory"
	"sms-dlr-aggregator/internal/storage/migrations"
	pgstore "sms-dlr-aggregator/internal/storage/postgres"
)

// The incremental run covers a single one-day window for yesterday and merges
// it into the persisted dataset. Meant for a daily cron slot; a day with no
// traffic is a success, not an error.
func main() {
	reportURL := flag.String("report-url", "", "DLR report service base URL")
	referenceTime := flag.String("reference-time", "", "Day to update, RFC3339 (default: yesterday)")
	windowDays := flag.Int("window-days", 1, "Span of one fetch window in days")
	horizonDays := flag.Int("horizon-days", 1, "How far back the walk reaches in days")
	datasetFile := flag.String("dataset-file", "dataset.csv", "Path of the CSV dataset file")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (optional primary store)")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string (optional analytics mirror)")
	ratesURL := flag.String("rates-url", "", "Daily currency rate API endpoint (optional)")
	rateCurrencies := flag.String("rate-currencies", "", "Comma-separated currency codes resolved via the rate API")
	rateFallbacks := flag.String("rate-fallbacks", "", "Static fallback factors, e.g. EUR=1.05,GBP=1.25")
	fetchTimeout := flag.Duration("fetch-timeout", ingestion.DefaultFetchTimeout, "Timeout for one window download")
	windowPause := flag.Duration("window-pause", ingestion.DefaultWindowPause, "Pause between window downloads")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (empty to disable)")
	migrateShape := flag.Bool("migrate-shape", false, "Narrow the persisted dataset when the remote schema dropped a dimension")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of the dataset file (dry runs)")
	verbose := flag.Bool("verbose", true, "Log every window outcome")

	flag.Parse()

	logger := log.New(os.Stdout, "[update] ", log.LstdFlags)

	if *metricsAddr != "" {
		go serveMetrics(logger, *metricsAddr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handleSignals(logger, cancel)

	if err := run(ctx, logger, runConfig{
		reportURL:      *reportURL,
		referenceTime:  *referenceTime,
		windowDays:     *windowDays,
		horizonDays:    *horizonDays,
		datasetFile:    *datasetFile,
		postgresDSN:    *postgresDSN,
		clickhouseDSN:  *clickhouseDSN,
		ratesURL:       *ratesURL,
		rateCurrencies: *rateCurrencies,
		rateFallbacks:  *rateFallbacks,
		fetchTimeout:   *fetchTimeout,
		windowPause:    *windowPause,
		migrateShape:   *migrateShape,
		useMemory:      *useMemory,
		verbose:        *verbose,
	}); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Error: %v", err)
	}

	logger.Println("Done")
}

type runConfig struct {
	reportURL      string
	referenceTime  string
	windowDays     int
	horizonDays    int
	datasetFile    string
	postgresDSN    string
	clickhouseDSN  string
	ratesURL       string
	rateCurrencies string
	rateFallbacks  string
	fetchTimeout   time.Duration
	windowPause    time.Duration
	migrateShape   bool
	useMemory      bool
	verbose        bool
}

func run(ctx context.Context, logger *log.Logger, cfg runConfig) error {
	if cfg.reportURL == "" {
		return fmt.Errorf("--report-url is required")
	}
	username := os.Getenv("DLR_USER")
	userKey := os.Getenv("DLR_KEY")
	if username == "" || userKey == "" {
		return fmt.Errorf("DLR_USER and DLR_KEY environment variables are required")
	}

	// Yesterday's full day, unless overridden.
	reference := endOfYesterday(time.Now().UTC())
	if cfg.referenceTime != "" {
		parsed, err := time.Parse(time.RFC3339, cfg.referenceTime)
		if err != nil {
			return fmt.Errorf("parse --reference-time: %w", err)
		}
		reference = parsed
	}

	client, err := report.NewClient(report.ClientOptions{
		BaseURL:      cfg.reportURL,
		Username:     username,
		UserKey:      userKey,
		FetchTimeout: cfg.fetchTimeout,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("create report client: %w", err)
	}

	resolver, err := buildResolver(cfg, logger)
	if err != nil {
		return err
	}

	stores, runLogs, closers, err := buildStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			c()
		}
	}()

	windowLogger := logger
	if !cfg.verbose {
		windowLogger = log.New(io.Discard, "", 0)
	}

	orch := ingestion.New(ingestion.Options{
		Source:       client,
		Decode:       report.Decode,
		Sniff:        report.LooksTabular,
		Normalizer:   normalize.New(resolver),
		FetchTimeout: cfg.fetchTimeout,
		WindowPause:  cfg.windowPause,
		Logger:       windowLogger,
	})

	runner, err := pipeline.New(pipeline.Options{
		Orchestrator: orch,
		Stores:       stores,
		RunLogs:      runLogs,
		MigrateShape: cfg.migrateShape,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	sched := schedule.New(reference, cfg.windowDays, cfg.horizonDays)
	logger.Printf("Updating through %s", reference.Format(time.RFC3339))

	result, err := runner.Run(ctx, sched)
	if err != nil {
		return err
	}
	if result.Fetch != nil && result.Fetch.WindowsSucceeded == 0 {
		logger.Println("No new data for the period")
	}
	return nil
}

// endOfYesterday returns yesterday at 23:59:59, so the single update window
// covers exactly one calendar day.
func endOfYesterday(now time.Time) time.Time {
	y := now.AddDate(0, 0, -1)
	return time.Date(y.Year(), y.Month(), y.Day(), 23, 59, 59, 0, now.Location())
}

// buildResolver assembles the currency resolver from the rate flags.
func buildResolver(cfg runConfig, logger *log.Logger) (*rates.Resolver, error) {
	sources := make(map[string]rates.Source)
	if cfg.ratesURL != "" {
		for _, code := range strings.Split(cfg.rateCurrencies, ",") {
			code = strings.TrimSpace(strings.ToUpper(code))
			if code == "" {
				continue
			}
			sources[code] = rates.NewHTTPSource(cfg.ratesURL, code, "USD")
		}
		if len(sources) == 0 {
			return nil, fmt.Errorf("--rates-url set but --rate-currencies is empty")
		}
	}

	fallbacks := make(map[string]decimal.Decimal)
	if cfg.rateFallbacks != "" {
		for _, pair := range strings.Split(cfg.rateFallbacks, ",") {
			code, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if !ok {
				return nil, fmt.Errorf("malformed --rate-fallbacks entry %q", pair)
			}
			factor, err := decimal.NewFromString(value)
			if err != nil {
				return nil, fmt.Errorf("parse fallback factor for %s: %w", code, err)
			}
			fallbacks[strings.ToUpper(code)] = factor
		}
	}

	return rates.NewResolver(rates.ResolverOptions{
		Sources:   sources,
		Fallbacks: fallbacks,
		Logger:    logger,
	}), nil
}

// buildStores assembles the dataset stores from the storage flags. The first
// store returned is the system of record.
func buildStores(ctx context.Context, cfg runConfig, logger *log.Logger) ([]storage.DatasetStore, []storage.RunLogStore, []func(), error) {
	var stores []storage.DatasetStore
	var runLogs []storage.RunLogStore
	var closers []func()

	switch {
	case cfg.useMemory:
		stores = append(stores, memory.NewDatasetStore())
	case cfg.postgresDSN != "":
		pool, err := pgstore.NewPool(ctx, cfg.postgresDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("apply postgres migrations: %w", err)
		}
		closers = append(closers, pool.Close)
		store := pgstore.NewDatasetStore(pool)
		stores = append(stores, store)
		runLogs = append(runLogs, store)
	default:
		stores = append(stores, file.NewDatasetStore(cfg.datasetFile))
	}

	if cfg.clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.clickhouseDSN)
		if err != nil {
			for _, c := range closers {
				c()
			}
			return nil, nil, nil, fmt.Errorf("prepare clickhouse: %w", err)
		}
		closers = append(closers, func() {
			if err := conn.Close(); err != nil {
				logger.Printf("close clickhouse: %v", err)
			}
		})
		stores = append(stores, chstore.NewDatasetStore(conn))
	}

	return stores, runLogs, closers, nil
}

func serveMetrics(logger *log.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	logger.Printf("Starting metrics server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Printf("Metrics server error: %v", err)
	}
}

// handleSignals cancels the run on the first SIGINT/SIGTERM and forces exit
// on a second one.
func handleSignals(logger *log.Logger, cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, finishing current window...", sig)
		cancel()

		sig = <-sigCh
		logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
		os.Exit(1)
	}()
}
