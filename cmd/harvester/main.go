package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/webharvest/go-harvester/internal/common/dedup"
	"github.com/webharvest/go-harvester/internal/common/fetcher"
	"github.com/webharvest/go-harvester/internal/config"
	"github.com/webharvest/go-harvester/internal/discover"
	"github.com/webharvest/go-harvester/internal/exporter"
	"github.com/webharvest/go-harvester/internal/pipeline"
	"github.com/webharvest/go-harvester/internal/sink"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	rulesPath := flag.String("rules", "rules.yaml", "path to the YAML harvest schema")
	listingURL := flag.String("listing", "", "optional listing page to discover target URLs from")
	flag.Parse()

	cfg := config.Load()

	rules, err := config.LoadRules(*rulesPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("load rules")
	}

	urls := flag.Args()
	if *listingURL != "" {
		if cfg.Discover.LinkSelector == "" {
			logger.Fatal().Msg("DISCOVER_LINK_SELECTOR required with -listing")
		}
		d := discover.New(discover.Config{
			UserAgent: cfg.Fetcher.UserAgent,
			Delay:     cfg.Discover.Delay,
			MaxPages:  cfg.Discover.MaxPages,
		})
		found, err := d.Listing(*listingURL, cfg.Discover.LinkSelector)
		if err != nil {
			logger.Fatal().Err(err).Str("listing", *listingURL).Msg("discover targets")
		}
		logger.Info().Int("count", len(found)).Str("listing", *listingURL).Msg("discovered targets")
		urls = append(urls, found...)
	}
	if len(urls) == 0 {
		logger.Fatal().Msg("no target urls (pass urls as arguments or use -listing)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f := fetcher.New(fetcher.Config{
		Timeout:            cfg.Fetcher.Timeout,
		MaxRetries:         cfg.Fetcher.MaxRetries,
		BackoffBase:        cfg.Fetcher.BackoffBase,
		BackoffMultiplier:  cfg.Fetcher.BackoffMultiplier,
		UserAgent:          cfg.Fetcher.UserAgent,
		MinRequestInterval: cfg.Fetcher.MinRequestInterval,
	}, logger)

	opts := []pipeline.Option{pipeline.WithLogger(logger)}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("redis connected")
		opts = append(opts, pipeline.WithDedup(
			dedup.NewDeduplicator(rdb, cfg.Redis.DedupPrefix, cfg.Redis.DedupTTL)))
	}

	p, err := pipeline.New(f, rules, opts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("build pipeline")
	}

	batch, failures, runErr := p.Run(ctx, urls)
	for _, fail := range failures {
		logger.Error().Str("url", fail.URL).Err(fail.Err).Msg("target failed")
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Fatal().Err(runErr).Msg("run aborted")
	}
	if runErr != nil {
		logger.Warn().Msg("run cancelled, exporting partial results")
	}
	logger.Info().Int("records", batch.Len()).Int("failed_urls", len(failures)).Msg("run complete")

	if err := exporter.WriteCSV(batch, cfg.Output.CSVPath); err != nil {
		logger.Fatal().Err(err).Msg("csv export")
	}
	logger.Info().Str("path", cfg.Output.CSVPath).Msg("wrote csv")

	if err := exporter.WriteJSON(batch, cfg.Output.JSONPath); err != nil {
		logger.Fatal().Err(err).Msg("json export")
	}
	logger.Info().Str("path", cfg.Output.JSONPath).Msg("wrote json")

	// Optional storage sinks
	if cfg.Postgres.ConnectionString != "" {
		pg, err := sink.NewPostgresSink(cfg.Postgres.ConnectionString, cfg.Postgres.TableName)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		defer pg.Close()
		if err := pg.Store(ctx, batch); err != nil {
			logger.Error().Err(err).Msg("postgres store")
		} else {
			logger.Info().Int("records", batch.Len()).Msg("stored to postgres")
		}
	}

	if cfg.Elasticsearch.Addresses[0] != "" {
		es, err := sink.NewElasticsearchSink(cfg.Elasticsearch.Addresses, cfg.Elasticsearch.Index, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("elasticsearch connection failed")
		}
		if err := es.EnsureIndex(ctx); err != nil {
			logger.Warn().Err(err).Msg("ensure index failed")
		}
		if err := es.Store(ctx, batch); err != nil {
			logger.Error().Err(err).Msg("elasticsearch store")
		} else {
			logger.Info().Int("records", batch.Len()).Msg("stored to elasticsearch")
		}
	}
}
