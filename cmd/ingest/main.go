// Command ingest runs the vector ingestion pipeline once against the
// configured source prefix.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"vectoringest/internal/cache"
	"vectoringest/internal/chunker"
	"vectoringest/internal/config"
	"vectoringest/internal/converter"
	"vectoringest/internal/embedder"
	"vectoringest/internal/journal"
	"vectoringest/internal/metrics"
	"vectoringest/internal/objectstore"
	"vectoringest/internal/obslog"
	"vectoringest/internal/pipeline"
	"vectoringest/internal/vectorstore"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("ingest run failed")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	obslog.Init(cfg.LogPath, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	objects, err := objectstore.NewS3Store(ctx, cfg.S3)
	if err != nil {
		return fmt.Errorf("build object store: %w", err)
	}

	j, err := journal.Open(cfg.Journal)
	if err != nil {
		return fmt.Errorf("open journals: %w", err)
	}

	conv := converter.NewCompositeConverter(converter.LocalHTMLConverter{}, converter.NewDoclingClient(cfg.Converter.BaseURL, cfg.Converter.PollInterval, converter.WithTimeout(cfg.Converter.Timeout)))

	vectors, err := vectorstore.NewQdrantClient(cfg.Qdrant)
	if err != nil {
		return fmt.Errorf("build vector store: %w", err)
	}
	defer vectors.Close()

	emb := embedder.New(cfg.Embedder.BaseURL(), cfg.Embedder.FilenameModel, cfg.Embedder.ContentModel, j, vectors)

	fingerprintCache, err := cache.NewRedisFingerprintCache(cache.RedisConfig{
		Enabled:               cfg.Cache.Enabled,
		Addr:                  cfg.Cache.Addr,
		Password:              cfg.Cache.Password,
		DB:                    cfg.Cache.DB,
		TLSInsecureSkipVerify: cfg.Cache.TLSInsecureSkipVerify,
	}, cfg.Cache.TTL)
	if err != nil {
		return fmt.Errorf("build fingerprint cache: %w", err)
	}
	if fingerprintCache != nil {
		defer fingerprintCache.Close()
	}

	recorder, shutdownMetrics, err := metrics.Setup(ctx, metrics.Config{
		Enabled:     cfg.Metrics.Enabled,
		Endpoint:    cfg.Metrics.Endpoint,
		Insecure:    cfg.Metrics.Insecure,
		ServiceName: cfg.Metrics.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("build metrics recorder: %w", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Warn().Err(err).Msg("metrics shutdown failed")
		}
	}()

	driver := pipeline.New(objects, conv, emb, vectors, j, chunker.WhitespaceCounter{}, pipeline.Config{
		SourcePrefix:       cfg.SourcePrefix,
		MarkdownPrefix:     cfg.MarkdownPrefix,
		FilenameCollection: cfg.Qdrant.FilenameCollection,
		ContentCollection:  cfg.Qdrant.ContentCollection,
		BatchSize:          cfg.BatchSize,
		ForceReprocess:     cfg.ForceReprocess,
		SkipExtensions:     cfg.SkipExtensions,
		Concurrency:        8,
		ChunkSizeTokens:    cfg.Chunker.SizeTokens,
		ChunkOverlapTokens: cfg.Chunker.OverlapTokens,
	})
	driver.Metrics = recorder
	if fingerprintCache != nil {
		driver.Cache = fingerprintCache
	}

	summary, err := driver.Run(ctx)
	if err != nil {
		return fmt.Errorf("run pipeline: %w", err)
	}

	log.Info().
		Int("total_files", summary.TotalFiles).
		Int("new_files", summary.NewFiles).
		Int("processed", summary.Done).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Float64("duration_seconds", summary.DurationSeconds).
		Float64("files_per_second", summary.FilesPerSecond).
		Msg("ingestion run complete")

	if summary.Failed > 0 {
		os.Exit(1)
	}
	return nil
}
