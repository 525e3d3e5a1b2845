package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"vectoringest/internal/config"
	"vectoringest/internal/journal"
)

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

type fakeVectorChecker struct {
	exists bool
	err    error
}

func (f fakeVectorChecker) ExistsByFingerprint(ctx context.Context, collection, fingerprint string) (bool, error) {
	return f.exists, f.err
}

func newEmbedServer(t *testing.T, dims int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := embedResponse{}
		for range req.Input {
			resp.Embeddings = append(resp.Embeddings, make([]float32, dims))
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestEmbedFilename(t *testing.T) {
	srv := newEmbedServer(t, 8)
	defer srv.Close()

	c := New(srv.URL, "filename-model", "content-model", newTestJournal(t), fakeVectorChecker{})
	vec, err := c.EmbedFilename(context.Background(), "doc.pdf")
	require.NoError(t, err)
	require.Len(t, vec, 8)
}

func TestEmbedBatchWithDedupHappyPath(t *testing.T) {
	srv := newEmbedServer(t, 4)
	defer srv.Close()

	c := New(srv.URL, "filename-model", "content-model", newTestJournal(t), fakeVectorChecker{})
	result, err := c.EmbedBatchWithDedup(context.Background(), "doc.pdf", "fp1", []string{"a", "b", "c"}, "content", false)
	require.NoError(t, err)
	require.False(t, result.Skipped)
	require.Len(t, result.Vectors, 3)
}

func TestEmbedBatchWithDedupSkipsWhenJournalHasEntry(t *testing.T) {
	srv := newEmbedServer(t, 4)
	defer srv.Close()

	j := newTestJournal(t)
	require.NoError(t, j.AddEmbeddingEntry("doc.pdf", "fp1", "content", "content-model", 3, 0))

	c := New(srv.URL, "filename-model", "content-model", j, fakeVectorChecker{})
	result, err := c.EmbedBatchWithDedup(context.Background(), "doc.pdf", "fp1", []string{"a", "b", "c"}, "content", false)
	require.NoError(t, err)
	require.True(t, result.Skipped)
}

func TestEmbedBatchWithDedupSkipsWhenVectorStoreHasEntry(t *testing.T) {
	srv := newEmbedServer(t, 4)
	defer srv.Close()

	c := New(srv.URL, "filename-model", "content-model", newTestJournal(t), fakeVectorChecker{exists: true})
	result, err := c.EmbedBatchWithDedup(context.Background(), "doc.pdf", "fp1", []string{"a"}, "content", false)
	require.NoError(t, err)
	require.True(t, result.Skipped)
}

func TestEmbedBatchWithDedupForceBypassesDedup(t *testing.T) {
	srv := newEmbedServer(t, 4)
	defer srv.Close()

	j := newTestJournal(t)
	require.NoError(t, j.AddEmbeddingEntry("doc.pdf", "fp1", "content", "content-model", 3, 0))

	c := New(srv.URL, "filename-model", "content-model", j, fakeVectorChecker{exists: true})
	result, err := c.EmbedBatchWithDedup(context.Background(), "doc.pdf", "fp1", []string{"a", "b"}, "content", true)
	require.NoError(t, err)
	require.False(t, result.Skipped)
	require.Len(t, result.Vectors, 2)
}
