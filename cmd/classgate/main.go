package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"classgate/internal/batcher"
	"classgate/internal/cache"
	"classgate/internal/config"
	"classgate/internal/hash"
	"classgate/internal/transport"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config.json", "path to config file")
	endpoint := flag.String("endpoint", "", "override the classifier endpoint from the config")
	probe := flag.Bool("probe", false, "run a single health probe and exit")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		// Basic logger for startup errors
		log := zerolog.New(os.Stderr).With().Timestamp().Logger()
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if *endpoint != "" {
		cfg.Endpoint = *endpoint
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel)
	logger.Info().
		Str("config", *configPath).
		Str("endpoint", cfg.Endpoint).
		Int("batchSize", cfg.BatchSize).
		Int("batchMaxWait", cfg.BatchMaxWait).
		Bool("cache", cfg.IsCacheEnabled()).
		Msg("starting classgate")

	client := transport.NewClient(transport.Config{
		Endpoint:         cfg.Endpoint,
		RequestTimeout:   cfg.GetRequestTimeoutDuration(),
		RetryAttempts:    cfg.RetryAttempts,
		RetryBackoffBase: cfg.GetRetryBackoffBaseDuration(),
	}, logger)

	if *probe {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if !client.HealthCheck(ctx) {
			logger.Error().Str("endpoint", cfg.Endpoint).Msg("classifier unhealthy")
			os.Exit(1)
		}
		logger.Info().Str("endpoint", cfg.Endpoint).Msg("classifier healthy")
		return
	}

	var resultCache cache.Cache = cache.NewNoopCache()
	if cfg.IsCacheEnabled() {
		resultCache, err = cache.NewMemoryCache(cfg.Cache.Size, cfg.Cache.GetTTLDuration())
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create result cache")
		}
	}
	defer resultCache.Close()

	b := batcher.New(batcher.Config{
		BatchSize:    cfg.BatchSize,
		MaxWait:      cfg.GetBatchMaxWaitDuration(),
		RedrainDelay: cfg.GetRedrainDelayDuration(),
	}, client, resultCache, logger)

	// Optional metrics listener
	var metricsSrv *http.Server
	if cfg.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
			Handler: mux,
		}
		go func() {
			logger.Info().Int("port", cfg.MetricsPort).Msg("metrics listener started")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics listener failed")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// One line of content per stdin line; results print as they resolve.
	var wg sync.WaitGroup
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		fingerprint := hash.ContentFingerprint(line)
		result, err := b.Enqueue(ctx, fingerprint, line)
		if err != nil {
			logger.Warn().Err(err).Msg("rejected input line")
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			res := <-result
			fmt.Printf("%s\t%.2f\t%s\n", res.Label, res.Confidence, res.Fingerprint)
		}()
	}
	if err := scanner.Err(); err != nil {
		logger.Error().Err(err).Msg("failed to read input")
	}

	if ctx.Err() != nil {
		logger.Info().Msg("received shutdown signal, abandoning queued work")
		b.Clear()
	} else {
		b.Close(context.Background())
	}
	wg.Wait()

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("error stopping metrics listener")
		}
	}
}

// setupLogger configures the zerolog logger
func setupLogger(level string) zerolog.Logger {
	// Set log level
	var logLevel zerolog.Level
	switch level {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "info":
		logLevel = zerolog.InfoLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	// Results go to stdout, logs to stderr
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}

	return zerolog.New(output).With().Timestamp().Logger()
}
