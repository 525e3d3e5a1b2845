// Command retry reads the failed journal and re-submits each entry,
// searching the source prefix first and falling back to the markdown
// prefix.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"

	"vectoringest/internal/chunker"
	"vectoringest/internal/config"
	"vectoringest/internal/converter"
	"vectoringest/internal/embedder"
	"vectoringest/internal/journal"
	"vectoringest/internal/markdownrouter"
	"vectoringest/internal/objectstore"
	"vectoringest/internal/obslog"
	"vectoringest/internal/pipeline"
	"vectoringest/internal/vectorstore"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("retry run failed")
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

	driver := pipeline.New(objects, conv, emb, vectors, j, chunker.WhitespaceCounter{}, pipeline.Config{
		SourcePrefix:       cfg.SourcePrefix,
		MarkdownPrefix:     cfg.MarkdownPrefix,
		FilenameCollection: cfg.Qdrant.FilenameCollection,
		ContentCollection:  cfg.Qdrant.ContentCollection,
		BatchSize:          cfg.BatchSize,
		ForceReprocess:     cfg.ForceReprocess,
		ChunkSizeTokens:    cfg.Chunker.SizeTokens,
		ChunkOverlapTokens: cfg.Chunker.OverlapTokens,
	})

	entries := j.FailedEntries()
	if len(entries) == 0 {
		log.Info().Msg("no failed entries to retry")
		return nil
	}

	var retried, recovered, stillFailed int
	for _, entry := range entries {
		retried++
		outcome, err := retryOne(ctx, driver, objects, j, cfg, entry)
		if err != nil {
			stillFailed++
			log.Warn().Err(err).Str("filename", entry.Filename).Str("stage", string(entry.Stage)).Msg("retry attempt failed")
			continue
		}
		switch outcome {
		case pipeline.OutcomeDone, pipeline.OutcomeSkipped:
			recovered++
			if err := j.RemoveFailedEntry(entry.Filename, entry.Stage); err != nil {
				log.Error().Err(err).Str("filename", entry.Filename).Msg("failed to remove recovered failed entry")
			}
		default:
			stillFailed++
		}
	}

	log.Info().
		Int("retried", retried).
		Int("recovered", recovered).
		Int("still_failed", stillFailed).
		Msg("retry pass complete")

	if stillFailed > 0 {
		os.Exit(1)
	}
	return nil
}

// retryOne resolves entry's source: search the source prefix for a key
// whose basename matches the failed filename; if found, resume from
// Discovered. Otherwise search the markdown prefix for the
// corresponding artifact and resume from Chunked onward.
func retryOne(ctx context.Context, driver *pipeline.Driver, objects objectstore.ObjectStore, j *journal.Store, cfg *config.Config, entry journal.FailedEntry) (pipeline.Outcome, error) {
	sourceKey, err := findByBasename(ctx, objects, cfg.SourcePrefix, entry.Filename)
	if err != nil {
		return pipeline.OutcomeFailed, err
	}
	if sourceKey != "" {
		return driver.RetryFromSource(ctx, sourceKey), nil
	}

	markdownKey, err := findMarkdownArtifact(ctx, objects, cfg, entry.Filename)
	if err != nil {
		return pipeline.OutcomeFailed, err
	}
	if markdownKey == "" {
		return pipeline.OutcomeFailed, fmt.Errorf("retry: neither source nor markdown artifact found for %q", entry.Filename)
	}
	return driver.RetryFromMarkdown(ctx, markdownKey, entry.Filename)
}

func findByBasename(ctx context.Context, objects objectstore.ObjectStore, prefix, filename string) (string, error) {
	result, err := objects.List(ctx, objectstore.ListOptions{Prefix: prefix})
	if err != nil {
		return "", fmt.Errorf("retry: list %q: %w", prefix, err)
	}
	for _, obj := range result.Objects {
		if strings.EqualFold(path.Base(obj.Key), filename) {
			return obj.Key, nil
		}
	}
	return "", nil
}

func findMarkdownArtifact(ctx context.Context, objects objectstore.ObjectStore, cfg *config.Config, filename string) (string, error) {
	candidateKey, err := markdownrouter.Route(cfg.SourcePrefix+filename, cfg.SourcePrefix, cfg.MarkdownPrefix)
	if err != nil {
		return "", nil
	}
	if rc, _, err := objects.Get(ctx, candidateKey); err == nil {
		rc.Close()
		return candidateKey, nil
	}

	result, err := objects.List(ctx, objectstore.ListOptions{Prefix: cfg.MarkdownPrefix})
	if err != nil {
		return "", fmt.Errorf("retry: list %q: %w", cfg.MarkdownPrefix, err)
	}
	base := strings.TrimSuffix(filename, path.Ext(filename))
	for _, obj := range result.Objects {
		if strings.EqualFold(strings.TrimSuffix(path.Base(obj.Key), path.Ext(obj.Key)), base) {
			return obj.Key, nil
		}
	}
	return "", nil
}
