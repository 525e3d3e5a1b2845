package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"vectoringest/internal/config"
	"vectoringest/internal/converter"
	"vectoringest/internal/embedder"
	"vectoringest/internal/hasher"
	"vectoringest/internal/journal"
	"vectoringest/internal/objectstore"
	"vectoringest/internal/vectorstore"
)

type fakeConverter struct {
	markdown string
	err      error
}

func (f fakeConverter) Convert(ctx context.Context, filename string, content []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.markdown != "" {
		return f.markdown, nil
	}
	return "# " + filename + "\n\nSome converted body text here.", nil
}

func (f fakeConverter) Health(ctx context.Context) bool { return true }

type fakeEmbedder struct {
	dims int
}

func (f fakeEmbedder) EmbedFilename(ctx context.Context, filename string) ([]float32, error) {
	return make([]float32, f.dims), nil
}

func (f fakeEmbedder) EmbedBatchWithDedup(ctx context.Context, filename, fingerprint string, chunks []string, collection string, force bool) (embedder.EmbedBatchWithDedupResult, error) {
	vecs := make([][]float32, len(chunks))
	for i := range vecs {
		vecs[i] = make([]float32, f.dims)
	}
	return embedder.EmbedBatchWithDedupResult{Vectors: vecs}, nil
}

type fakeCache struct {
	uploaded map[string]bool
	embedded map[string]bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{uploaded: map[string]bool{}, embedded: map[string]bool{}}
}

func (f *fakeCache) IsUploaded(ctx context.Context, fingerprint string) bool {
	return f.uploaded[fingerprint]
}

func (f *fakeCache) MarkUploaded(ctx context.Context, fingerprint string) {
	f.uploaded[fingerprint] = true
}

func (f *fakeCache) CheckEmbeddingExists(ctx context.Context, fingerprint, collection string) bool {
	return f.embedded[fingerprint+"|"+collection]
}

func (f *fakeCache) MarkEmbedded(ctx context.Context, fingerprint, collection string) {
	f.embedded[fingerprint+"|"+collection] = true
}

func newTestJournal(t *testing.T) *journal.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := journal.Open(config.JournalConfig{
		Dir:              dir,
		ConversionFile:   "conversion_log.json",
		MarkdownFile:     "markdown_upload_log.json",
		EmbeddingFile:    "embedding_log.json",
		VectorUploadFile: "vector_upload_log.json",
		SkippedFile:      "skipped_log.json",
		FailedFile:       "failed_log.json",
	})
	require.NoError(t, err)
	return s
}

func baseConfig() Config {
	return Config{
		SourcePrefix:       "source/",
		MarkdownPrefix:     "markdown/",
		FilenameCollection: "filenames",
		ContentCollection:  "contents",
		BatchSize:          100,
		Concurrency:        2,
		ChunkSizeTokens:    500,
	}
}

func TestRunHappyPathSingleFile(t *testing.T) {
	objects := objectstore.NewMemoryStore()
	_, err := objects.Put(context.Background(), "source/a/b/doc.pdf", strings.NewReader("document bytes"), objectstore.PutOptions{})
	require.NoError(t, err)

	vectors := vectorstore.NewMemoryStore()
	j := newTestJournal(t)

	d := New(objects, fakeConverter{}, fakeEmbedder{dims: 4}, vectors, j, nil, baseConfig())
	summary, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.TotalFiles)
	require.Equal(t, 1, summary.Done)
	require.Equal(t, 0, summary.Failed)

	_, err = objects.Head(context.Background(), "markdown/a/b/doc.md")
	require.NoError(t, err)

	require.Len(t, vectors.Points("filenames"), 1)
	require.NotEmpty(t, vectors.Points("contents"))
	require.Empty(t, j.FailedEntries())
}

func TestRunIdempotentOnSecondPass(t *testing.T) {
	objects := objectstore.NewMemoryStore()
	_, err := objects.Put(context.Background(), "source/doc.pdf", strings.NewReader("document bytes"), objectstore.PutOptions{})
	require.NoError(t, err)

	vectors := vectorstore.NewMemoryStore()
	j := newTestJournal(t)
	cfg := baseConfig()

	d := New(objects, fakeConverter{}, fakeEmbedder{dims: 4}, vectors, j, nil, cfg)
	_, err = d.Run(context.Background())
	require.NoError(t, err)

	d2 := New(objects, fakeConverter{}, fakeEmbedder{dims: 4}, vectors, j, nil, cfg)
	summary, err := d2.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Skipped)
	require.Equal(t, 0, summary.Done)
}

func TestRunConverterFailureRecordsFailedEntry(t *testing.T) {
	objects := objectstore.NewMemoryStore()
	_, err := objects.Put(context.Background(), "source/doc.pdf", strings.NewReader("document bytes"), objectstore.PutOptions{})
	require.NoError(t, err)

	vectors := vectorstore.NewMemoryStore()
	j := newTestJournal(t)

	d := New(objects, fakeConverter{err: converter.ErrUnavailable}, fakeEmbedder{dims: 4}, vectors, j, nil, baseConfig())
	summary, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Failed)

	entries := j.FailedEntries()
	require.Len(t, entries, 1)
	require.Equal(t, journal.StageConverter, entries[0].Stage)
}

func TestRunCaseInsensitiveExtensionFilter(t *testing.T) {
	objects := objectstore.NewMemoryStore()
	_, err := objects.Put(context.Background(), "source/x/NOTE.MD", strings.NewReader("notes"), objectstore.PutOptions{})
	require.NoError(t, err)

	vectors := vectorstore.NewMemoryStore()
	j := newTestJournal(t)
	cfg := baseConfig()
	cfg.SkipExtensions = []string{".md"}

	d := New(objects, fakeConverter{}, fakeEmbedder{dims: 4}, vectors, j, nil, cfg)
	summary, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, summary.TotalFiles)
}

func TestRetryFromMarkdownResumesFromChunking(t *testing.T) {
	objects := objectstore.NewMemoryStore()
	_, err := objects.Put(context.Background(), "markdown/doc.md", strings.NewReader("# doc\n\nSome recovered body text."), objectstore.PutOptions{})
	require.NoError(t, err)

	vectors := vectorstore.NewMemoryStore()
	j := newTestJournal(t)

	d := New(objects, fakeConverter{}, fakeEmbedder{dims: 4}, vectors, j, nil, baseConfig())
	outcome, err := d.RetryFromMarkdown(context.Background(), "markdown/doc.md", "doc.pdf")
	require.NoError(t, err)
	require.Equal(t, OutcomeDone, outcome)

	require.Len(t, vectors.Points("filenames"), 1)
	require.NotEmpty(t, vectors.Points("contents"))
}

func TestRetryFromSourceRecoversAfterConverterFix(t *testing.T) {
	objects := objectstore.NewMemoryStore()
	_, err := objects.Put(context.Background(), "source/doc.pdf", strings.NewReader("document bytes"), objectstore.PutOptions{})
	require.NoError(t, err)

	vectors := vectorstore.NewMemoryStore()
	j := newTestJournal(t)

	failing := New(objects, fakeConverter{err: converter.ErrUnavailable}, fakeEmbedder{dims: 4}, vectors, j, nil, baseConfig())
	summary, err := failing.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Failed)
	require.Len(t, j.FailedEntries(), 1)

	recovering := New(objects, fakeConverter{}, fakeEmbedder{dims: 4}, vectors, j, nil, baseConfig())
	outcome := recovering.RetryFromSource(context.Background(), "source/doc.pdf")
	require.Equal(t, OutcomeDone, outcome)

	require.NoError(t, j.RemoveFailedEntry("doc.pdf", journal.StageConverter))
	require.Empty(t, j.FailedEntries())
}

func TestRunSkipsViaFingerprintCacheAheadOfJournal(t *testing.T) {
	objects := objectstore.NewMemoryStore()
	_, err := objects.Put(context.Background(), "source/doc.pdf", strings.NewReader("document bytes"), objectstore.PutOptions{})
	require.NoError(t, err)

	vectors := vectorstore.NewMemoryStore()
	j := newTestJournal(t)
	fp := hasher.Fast([]byte("document bytes"))
	cache := newFakeCache()
	cache.uploaded[fp] = true

	d := New(objects, fakeConverter{}, fakeEmbedder{dims: 4}, vectors, j, nil, baseConfig())
	d.Cache = cache

	summary, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Skipped)
	require.Equal(t, 0, summary.Done)
	require.Empty(t, vectors.Points("filenames"))
}

func TestRunForceReprocessReembeds(t *testing.T) {
	objects := objectstore.NewMemoryStore()
	_, err := objects.Put(context.Background(), "source/doc.pdf", strings.NewReader("document bytes"), objectstore.PutOptions{})
	require.NoError(t, err)

	vectors := vectorstore.NewMemoryStore()
	j := newTestJournal(t)
	cfg := baseConfig()
	cfg.ForceReprocess = true

	d := New(objects, fakeConverter{}, fakeEmbedder{dims: 4}, vectors, j, nil, cfg)
	_, err = d.Run(context.Background())
	require.NoError(t, err)
	firstCount := len(vectors.Points("contents"))

	d2 := New(objects, fakeConverter{}, fakeEmbedder{dims: 4}, vectors, j, nil, cfg)
	summary, err := d2.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Done)
	require.Len(t, vectors.Points("contents"), firstCount)
}
