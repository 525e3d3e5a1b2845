package journal

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vectoringest/internal/config"
)

func testConfig(dir string) config.JournalConfig {
	return config.JournalConfig{
		Dir:              dir,
		ConversionFile:   "conversion_log.json",
		MarkdownFile:     "markdown_upload_log.json",
		EmbeddingFile:    "embedding_log.json",
		VectorUploadFile: "vector_upload_log.json",
		SkippedFile:      "skipped_log.json",
		FailedFile:       "failed_log.json",
	}
}

func TestOpenEmptyDir(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(testConfig(dir))
	require.NoError(t, err)
	require.False(t, s.IsUploaded("abc123"))
	require.False(t, s.CheckEmbeddingExists("abc123", "content"))
}

func TestAddVectorUploadEntryUpdatesIndex(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(testConfig(dir))
	require.NoError(t, err)

	require.NoError(t, s.AddVectorUploadEntry("doc.pdf", "fp1", "content", []string{"id1", "id2"}, 100, time.Millisecond))
	require.True(t, s.IsUploaded("fp1"))
	require.False(t, s.IsUploaded("fp2"))
}

func TestAddEmbeddingEntryUpdatesIndex(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(testConfig(dir))
	require.NoError(t, err)

	require.NoError(t, s.AddEmbeddingEntry("doc.pdf", "fp1", "content", "model-a", 3, time.Second))
	require.True(t, s.CheckEmbeddingExists("fp1", "content"))
	require.False(t, s.CheckEmbeddingExists("fp1", "filename"))
}

func TestReopenReloadsIndices(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(testConfig(dir))
	require.NoError(t, err)
	require.NoError(t, s.AddVectorUploadEntry("doc.pdf", "fp1", "content", []string{"id1"}, 100, time.Millisecond))
	require.NoError(t, s.AddEmbeddingEntry("doc.pdf", "fp1", "content", "model-a", 1, time.Millisecond))

	s2, err := Open(testConfig(dir))
	require.NoError(t, err)
	require.True(t, s2.IsUploaded("fp1"))
	require.True(t, s2.CheckEmbeddingExists("fp1", "content"))
}

func TestAddFailedEntry(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(testConfig(dir))
	require.NoError(t, err)

	require.NoError(t, s.AddFailedEntry("doc.pdf", "fp1", StageConverter, errors.New("boom")))
	entries := s.FailedEntries()
	require.Len(t, entries, 1)
	require.Equal(t, StageConverter, entries[0].Stage)
	require.Equal(t, "boom", entries[0].Error)
}

func TestRemoveFailedEntry(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(testConfig(dir))
	require.NoError(t, err)

	require.NoError(t, s.AddFailedEntry("doc.pdf", "fp1", StageConverter, errors.New("boom")))
	require.NoError(t, s.AddFailedEntry("other.pdf", "fp2", StageEmbedder, errors.New("rejected")))
	require.Len(t, s.FailedEntries(), 2)

	require.NoError(t, s.RemoveFailedEntry("doc.pdf", StageConverter))
	entries := s.FailedEntries()
	require.Len(t, entries, 1)
	require.Equal(t, "other.pdf", entries[0].Filename)

	s2, err := Open(testConfig(dir))
	require.NoError(t, err)
	require.Len(t, s2.FailedEntries(), 1)
}

func TestConcurrentAppends(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(testConfig(dir))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = s.AddConversionEntry("doc.pdf", "hash")
		}(i)
	}
	wg.Wait()

	s2, err := Open(testConfig(dir))
	require.NoError(t, err)
	require.Len(t, s2.conversion.snapshot(), 50)
}

func TestSkippedEntry(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(testConfig(dir))
	require.NoError(t, err)

	require.NoError(t, s.AddSkippedEntry("doc.pdf", "fp1", SkipAlreadyEmbedded, FoundInLogFile, "content"))
	entries := s.skipped.snapshot()
	require.Len(t, entries, 1)
	require.Equal(t, SkipAlreadyEmbedded, entries[0].SkipReason)
	require.Equal(t, FoundInLogFile, entries[0].FoundIn)
}
