// Package pipeline implements the per-document state machine that
// coordinates object storage, conversion, chunking, embedding, and
// vector upload, with durable journaling at every stage boundary.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"vectoringest/internal/chunker"
	"vectoringest/internal/converter"
	"vectoringest/internal/embedder"
	"vectoringest/internal/hasher"
	"vectoringest/internal/journal"
	"vectoringest/internal/markdownrouter"
	"vectoringest/internal/objectstore"
	"vectoringest/internal/vectorstore"
)

// MetricsRecorder is the narrow slice of internal/metrics.Recorder the
// driver reports through. Left nil, every call is skipped; wiring a
// real recorder is the caller's choice, not this package's concern.
type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, delta int64)
	ObserveHistogram(ctx context.Context, name string, value float64)
}

// Embedder is the slice of *embedder.Client the driver depends on,
// narrowed to an interface so tests can substitute a fake.
type Embedder interface {
	EmbedFilename(ctx context.Context, filename string) ([]float32, error)
	EmbedBatchWithDedup(ctx context.Context, filename, fingerprint string, chunks []string, collection string, force bool) (embedder.EmbedBatchWithDedupResult, error)
}

// FingerprintCache fronts the journal's IsUploaded and the embedder's
// CheckEmbeddingExists dedup lookups with a faster shared check, for
// deployments running multiple driver processes against one source
// prefix. Left nil (the default), every call is skipped and behaves as
// an always-miss cache: the journal and vector store remain the source
// of truth either way, so wiring one only shortcuts redundant work.
type FingerprintCache interface {
	IsUploaded(ctx context.Context, fingerprint string) bool
	MarkUploaded(ctx context.Context, fingerprint string)
	CheckEmbeddingExists(ctx context.Context, fingerprint, collection string) bool
	MarkEmbedded(ctx context.Context, fingerprint, collection string)
}

// Config bounds a single driver run.
type Config struct {
	SourcePrefix       string
	MarkdownPrefix     string
	FilenameCollection string
	ContentCollection  string
	BatchSize          int
	ForceReprocess     bool
	SkipExtensions     []string
	Concurrency        int
	ChunkSizeTokens    int
	ChunkOverlapTokens int
}

// Driver composes every pipeline component behind the state machine
// described by the terminal-state table: Discovered -> Hashed ->
// ConversionDone -> MarkdownUploaded -> Chunked -> FilenameEmbedded ->
// FilenameUploaded -> ContentEmbedded -> ContentUploaded -> Done, with
// Skipped and Failed(stage) terminal states.
type Driver struct {
	Objects   objectstore.ObjectStore
	Converter converter.Converter
	Embedder  Embedder
	Vectors   vectorstore.Client
	Journal   *journal.Store
	Counter   chunker.Counter
	Metrics   MetricsRecorder
	Cache     FingerprintCache

	cfg Config
}

// New builds a Driver ready to Run.
func New(objects objectstore.ObjectStore, conv converter.Converter, emb Embedder, vectors vectorstore.Client, j *journal.Store, counter chunker.Counter, cfg Config) *Driver {
	if counter == nil {
		counter = chunker.WhitespaceCounter{}
	}
	return &Driver{
		Objects:   objects,
		Converter: conv,
		Embedder:  emb,
		Vectors:   vectors,
		Journal:   j,
		Counter:   counter,
		cfg:       cfg,
	}
}

// Summary totals the outcome of a Run across every discovered document.
type Summary struct {
	TotalFiles      int
	NewFiles        int
	Done            int
	Skipped         int
	Failed          int
	DurationSeconds float64
	FilesPerSecond  float64
}

// Run lists every non-skipped key under cfg.SourcePrefix and drives each
// through the pipeline with up to cfg.Concurrency documents in flight.
// Once ctx is cancelled no further document is started; documents not yet
// started are neither journaled nor counted. A document already in flight
// fails at the point that observes the cancellation: Failed(pipeline) when
// it is seen between stages, otherwise under the stage whose call was
// interrupted. Run then returns the partial summary with no error of its
// own; Run's own error return is reserved for listing failures.
func (d *Driver) Run(ctx context.Context) (Summary, error) {
	start := time.Now()

	keys, err := objectstore.ListAllKeys(ctx, d.Objects, d.cfg.SourcePrefix, d.cfg.SkipExtensions)
	if err != nil {
		return Summary{}, fmt.Errorf("pipeline: list source: %w", err)
	}

	var mu sync.Mutex
	summary := Summary{TotalFiles: len(keys)}
	record := func(outcome outcome) {
		mu.Lock()
		defer mu.Unlock()
		switch outcome {
		case outcomeDone:
			summary.Done++
			d.recordCounter(ctx, "ingest_documents_done_total", 1)
		case outcomeSkipped:
			summary.Skipped++
			d.recordCounter(ctx, "ingest_documents_skipped_total", 1)
		case outcomeFailed:
			summary.Failed++
			d.recordCounter(ctx, "ingest_documents_failed_total", 1)
		}
	}

	concurrency := d.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	sem := semaphore.NewWeighted(int64(concurrency))
	g, _ := errgroup.WithContext(ctx)

	for _, key := range keys {
		key := key
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			record(d.processDocument(ctx, key))
			return nil
		})
	}
	_ = g.Wait()

	summary.NewFiles = summary.Done + summary.Failed
	summary.DurationSeconds = time.Since(start).Seconds()
	if summary.DurationSeconds > 0 {
		summary.FilesPerSecond = float64(summary.TotalFiles) / summary.DurationSeconds
	}
	d.recordHistogram(ctx, "ingest_run_duration_seconds", summary.DurationSeconds)

	return summary, nil
}

type outcome int

const (
	outcomeDone outcome = iota
	outcomeSkipped
	outcomeFailed
)

// Outcome is the exported form of a single document's terminal result,
// returned to callers outside this package (the retry driver).
type Outcome int

const (
	OutcomeDone Outcome = iota
	OutcomeSkipped
	OutcomeFailed
)

func (o outcome) exported() Outcome { return Outcome(o) }

// RetryFromSource re-drives a document from Discovered, the same path
// Run takes for a freshly-listed key. It ignores the listing-time
// extension filter since an operator explicitly named this key for
// retry.
func (d *Driver) RetryFromSource(ctx context.Context, key string) Outcome {
	return d.processDocument(ctx, key).exported()
}

// RetryFromMarkdown re-drives a document from Chunked onward when its
// source object is gone but its markdown artifact survives: it reads
// the artifact, recomputes the fingerprint from its own bytes (the
// retry driver's best available stand-in once the original source
// bytes are unrecoverable), and resumes chunking, embedding and upload.
func (d *Driver) RetryFromMarkdown(ctx context.Context, markdownKey, filename string) (Outcome, error) {
	rc, _, err := d.Objects.Get(ctx, markdownKey)
	if err != nil {
		d.fail(filename, "", journal.StageObjectStore, err)
		return OutcomeFailed, fmt.Errorf("pipeline: retry get markdown: %w", err)
	}
	content, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		d.fail(filename, "", journal.StageObjectStore, err)
		return OutcomeFailed, fmt.Errorf("pipeline: retry read markdown: %w", err)
	}
	markdown := string(content)
	fingerprint := hasher.Fast(content)
	strongHash := hasher.Strong(content)

	if !d.cfg.ForceReprocess && (d.cacheIsUploaded(ctx, fingerprint) || d.Journal.IsUploaded(fingerprint)) {
		_ = d.Journal.AddSkippedEntry(filename, fingerprint, journal.SkipAlreadyEmbedded, journal.FoundInLogFile, d.cfg.ContentCollection)
		return OutcomeSkipped, nil
	}

	return d.continueFromMarkdown(ctx, filename, fingerprint, strongHash, markdown).exported(), nil
}

// processDocument drives one key through the full state machine. Every
// error path records a single failed journal entry and returns
// outcomeFailed; there is no per-document retry here by design — a
// dedicated retry pass re-submits failed entries later.
func (d *Driver) processDocument(ctx context.Context, key string) outcome {
	filename := path.Base(key)

	if ctx.Err() != nil {
		d.fail(filename, "", journal.StagePipeline, ctx.Err())
		return outcomeFailed
	}

	rc, _, err := d.Objects.Get(ctx, key)
	if err != nil {
		d.fail(filename, "", journal.StageObjectStore, err)
		return outcomeFailed
	}
	content, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		d.fail(filename, "", journal.StageObjectStore, err)
		return outcomeFailed
	}

	fingerprint := hasher.Fast(content)
	strongHash := hasher.Strong(content)

	if !d.cfg.ForceReprocess && (d.cacheIsUploaded(ctx, fingerprint) || d.Journal.IsUploaded(fingerprint)) {
		_ = d.Journal.AddSkippedEntry(filename, fingerprint, journal.SkipAlreadyEmbedded, journal.FoundInLogFile, d.cfg.ContentCollection)
		return outcomeSkipped
	}

	if ctx.Err() != nil {
		d.fail(filename, strongHash, journal.StagePipeline, ctx.Err())
		return outcomeFailed
	}

	markdown, err := d.Converter.Convert(ctx, filename, content)
	if err != nil {
		d.fail(filename, strongHash, journal.StageConverter, err)
		return outcomeFailed
	}
	if err := d.Journal.AddConversionEntry(filename, strongHash); err != nil {
		d.fail(filename, strongHash, journal.StagePipeline, err)
		return outcomeFailed
	}

	markdownKey, err := markdownrouter.Route(key, d.cfg.SourcePrefix, d.cfg.MarkdownPrefix)
	if err != nil {
		d.fail(filename, strongHash, journal.StageObjectStore, err)
		return outcomeFailed
	}
	if _, err := d.Objects.Put(ctx, markdownKey, strings.NewReader(markdown), objectstore.PutOptions{ContentType: "text/markdown"}); err != nil {
		d.fail(filename, strongHash, journal.StageObjectStore, err)
		return outcomeFailed
	}
	if err := d.Journal.AddMarkdownUploadEntry(filename, strongHash); err != nil {
		d.fail(filename, strongHash, journal.StagePipeline, err)
		return outcomeFailed
	}

	return d.continueFromMarkdown(ctx, filename, fingerprint, strongHash, markdown)
}

// continueFromMarkdown drives the Chunked -> ... -> Done portion of the
// state machine shared by processDocument and the retry driver's
// chunking-onward resume path (spec's "found only the markdown
// artifact" case): chunk, embed and upload the filename point, then
// dedup-embed and upload the content points.
func (d *Driver) continueFromMarkdown(ctx context.Context, filename, fingerprint, strongHash, markdown string) outcome {
	chunkCfg := chunker.Config{SizeTokens: d.cfg.ChunkSizeTokens, OverlapTokens: d.cfg.ChunkOverlapTokens}
	chunks := chunker.Split(markdown, chunkCfg, d.Counter)

	if ctx.Err() != nil {
		d.fail(filename, strongHash, journal.StagePipeline, ctx.Err())
		return outcomeFailed
	}

	filenameVec, err := d.Embedder.EmbedFilename(ctx, filename)
	if err != nil {
		d.fail(filename, strongHash, journal.StageEmbedder, err)
		return outcomeFailed
	}
	filenamePoint := vectorstore.Point{
		ID:      vectorstore.FilenamePointID(filename),
		Vector:  filenameVec,
		Payload: vectorstore.FilenamePayload(filename, fingerprint),
	}
	uploadStart := time.Now()
	if err := d.Vectors.Upsert(ctx, d.cfg.FilenameCollection, []vectorstore.Point{filenamePoint}, d.cfg.BatchSize); err != nil {
		d.fail(filename, strongHash, journal.StageVectorStore, err)
		return outcomeFailed
	}
	if err := d.Journal.AddVectorUploadEntry(filename, fingerprint, d.cfg.FilenameCollection, []string{filenamePoint.ID}, d.cfg.BatchSize, time.Since(uploadStart)); err != nil {
		d.fail(filename, strongHash, journal.StagePipeline, err)
		return outcomeFailed
	}
	d.cacheMarkUploaded(ctx, fingerprint)

	if len(chunks) == 0 {
		log.Warn().Str("filename", filename).Msg("document produced zero chunks")
		return outcomeDone
	}

	chunkTexts := make([]string, len(chunks))
	for i, c := range chunks {
		chunkTexts[i] = c.Text
	}
	d.recordHistogram(ctx, "ingest_embedder_batch_size", float64(len(chunkTexts)))

	if !d.cfg.ForceReprocess && d.cacheCheckEmbeddingExists(ctx, fingerprint, d.cfg.ContentCollection) {
		return outcomeSkipped
	}

	embedResult, err := d.Embedder.EmbedBatchWithDedup(ctx, filename, fingerprint, chunkTexts, d.cfg.ContentCollection, d.cfg.ForceReprocess)
	if err != nil {
		d.fail(filename, strongHash, journal.StageEmbedder, err)
		return outcomeFailed
	}
	if embedResult.Skipped {
		return outcomeSkipped
	}

	contentPoints := make([]vectorstore.Point, len(chunks))
	pointIDs := make([]string, len(chunks))
	for i, c := range chunks {
		id := vectorstore.ContentPointID(filename, c.Sequence)
		contentPoints[i] = vectorstore.Point{
			ID:      id,
			Vector:  embedResult.Vectors[i],
			Payload: vectorstore.ContentPayload(c.Text, filename, fingerprint, string(c.Class), c.Sequence),
		}
		pointIDs[i] = id
	}

	uploadStart = time.Now()
	if err := d.Vectors.Upsert(ctx, d.cfg.ContentCollection, contentPoints, d.cfg.BatchSize); err != nil {
		d.fail(filename, strongHash, journal.StageVectorStore, err)
		return outcomeFailed
	}
	if err := d.Journal.AddVectorUploadEntry(filename, fingerprint, d.cfg.ContentCollection, pointIDs, d.cfg.BatchSize, time.Since(uploadStart)); err != nil {
		d.fail(filename, strongHash, journal.StagePipeline, err)
		return outcomeFailed
	}
	d.cacheMarkEmbedded(ctx, fingerprint, d.cfg.ContentCollection)

	return outcomeDone
}

func (d *Driver) recordCounter(ctx context.Context, name string, delta int64) {
	if d.Metrics == nil {
		return
	}
	d.Metrics.IncCounter(ctx, name, delta)
}

func (d *Driver) recordHistogram(ctx context.Context, name string, value float64) {
	if d.Metrics == nil {
		return
	}
	d.Metrics.ObserveHistogram(ctx, name, value)
}

func (d *Driver) cacheIsUploaded(ctx context.Context, fingerprint string) bool {
	if d.Cache == nil {
		return false
	}
	return d.Cache.IsUploaded(ctx, fingerprint)
}

func (d *Driver) cacheMarkUploaded(ctx context.Context, fingerprint string) {
	if d.Cache == nil {
		return
	}
	d.Cache.MarkUploaded(ctx, fingerprint)
}

func (d *Driver) cacheCheckEmbeddingExists(ctx context.Context, fingerprint, collection string) bool {
	if d.Cache == nil {
		return false
	}
	return d.Cache.CheckEmbeddingExists(ctx, fingerprint, collection)
}

func (d *Driver) cacheMarkEmbedded(ctx context.Context, fingerprint, collection string) {
	if d.Cache == nil {
		return
	}
	d.Cache.MarkEmbedded(ctx, fingerprint, collection)
}

func (d *Driver) fail(filename, hash string, stage journal.Stage, cause error) {
	if err := d.Journal.AddFailedEntry(filename, hash, stage, cause); err != nil {
		log.Error().Err(err).Str("filename", filename).Msg("failed to record failed journal entry")
	}
	log.Error().Err(cause).Str("filename", filename).Str("stage", string(stage)).Msg("document processing failed")
}
