// Package journal implements the pipeline's six append-only, crash-safe
// progress logs and the in-memory membership indices built over them.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"vectoringest/internal/config"
)

const timeLayout = time.RFC3339

// ConversionEntry records a successful source-to-markdown conversion.
type ConversionEntry struct {
	Filename string `json:"filename"`
	Hash     string `json:"hash"`
	Datetime string `json:"datetime"`
}

// MarkdownUploadEntry records a successful markdown object upload.
type MarkdownUploadEntry struct {
	Filename string `json:"filename"`
	Hash     string `json:"hash"`
	Datetime string `json:"datetime"`
}

// EmbeddingEntry records a successful embedding call for one document
// against one collection.
type EmbeddingEntry struct {
	Filename       string  `json:"filename"`
	MD5Hash        string  `json:"md5_hash"`
	CollectionName string  `json:"collection_name"`
	ChunksCreated  int     `json:"chunks_created"`
	EmbeddingTime  float64 `json:"embedding_time"`
	ModelName      string  `json:"model_name"`
	Timestamp      string  `json:"timestamp"`
}

// VectorUploadEntry records a successful vector-store upsert.
type VectorUploadEntry struct {
	Filename           string   `json:"filename"`
	MD5Hash            string   `json:"md5_hash"`
	CollectionName     string   `json:"collection_name"`
	PointsUploaded     int      `json:"points_uploaded"`
	PointIDs           []string `json:"point_ids"`
	BatchSize          int      `json:"batch_size"`
	UploadTimeSeconds  float64  `json:"upload_time_seconds"`
	Timestamp          string   `json:"timestamp"`
}

// SkipReason enumerates why a document was skipped rather than processed.
type SkipReason string

const (
	SkipAlreadyEmbedded        SkipReason = "already_embedded"
	SkipAlreadyInVectorStore   SkipReason = "already_in_qdrant"
	SkipForceReprocessDisabled SkipReason = "force_reprocess_disabled"
)

// FoundIn enumerates where a skip decision was resolved from.
type FoundIn string

const (
	FoundInLogFile     FoundIn = "log_file"
	FoundInVectorStore FoundIn = "vector_store"
	FoundInBoth        FoundIn = "both"
)

// SkippedEntry records a document that was not (re)processed due to dedup.
type SkippedEntry struct {
	Filename       string     `json:"filename"`
	MD5Hash        string     `json:"md5_hash"`
	SkipReason     SkipReason `json:"skip_reason"`
	FoundIn        FoundIn    `json:"found_in"`
	CollectionName string     `json:"collection_name"`
	Timestamp      string     `json:"timestamp"`
}

// Stage enumerates the pipeline stage a failure occurred in.
type Stage string

const (
	StageConverter    Stage = "converter"
	StageObjectStore  Stage = "object_store"
	StageChunker      Stage = "chunker"
	StageEmbedder     Stage = "embedder"
	StageVectorStore  Stage = "vector_store"
	StagePipeline     Stage = "pipeline"
)

// FailedEntry records a terminal per-document failure.
type FailedEntry struct {
	Filename  string `json:"filename"`
	Hash      string `json:"hash"`
	Error     string `json:"error"`
	Stage     Stage  `json:"stage"`
	Timestamp string `json:"timestamp"`
}

// Now returns the current UTC time formatted per the journal contract.
// Exposed as a variable so tests can pin it.
var Now = func() time.Time { return time.Now().UTC() }

func timestamp() string {
	return Now().Format(timeLayout)
}

type embeddingKey struct {
	fingerprint string
	collection  string
}

// Store is the set of six journals plus their derived membership indices.
// It is safe for concurrent use from multiple workers.
type Store struct {
	conversion     *fileLog[ConversionEntry]
	markdownUpload *fileLog[MarkdownUploadEntry]
	embedding      *fileLog[EmbeddingEntry]
	vectorUpload   *fileLog[VectorUploadEntry]
	skipped        *fileLog[SkippedEntry]
	failed         *fileLog[FailedEntry]

	indexMu          sync.RWMutex
	uploadedSet      map[string]bool
	embeddingExists  map[embeddingKey]bool
}

// Open loads (or initializes) all six journal files under cfg.Dir.
func Open(cfg config.JournalConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create log dir: %w", err)
	}

	conv, err := newFileLog[ConversionEntry](filepath.Join(cfg.Dir, cfg.ConversionFile))
	if err != nil {
		return nil, err
	}
	md, err := newFileLog[MarkdownUploadEntry](filepath.Join(cfg.Dir, cfg.MarkdownFile))
	if err != nil {
		return nil, err
	}
	emb, err := newFileLog[EmbeddingEntry](filepath.Join(cfg.Dir, cfg.EmbeddingFile))
	if err != nil {
		return nil, err
	}
	vec, err := newFileLog[VectorUploadEntry](filepath.Join(cfg.Dir, cfg.VectorUploadFile))
	if err != nil {
		return nil, err
	}
	skip, err := newFileLog[SkippedEntry](filepath.Join(cfg.Dir, cfg.SkippedFile))
	if err != nil {
		return nil, err
	}
	fail, err := newFileLog[FailedEntry](filepath.Join(cfg.Dir, cfg.FailedFile))
	if err != nil {
		return nil, err
	}

	s := &Store{
		conversion:      conv,
		markdownUpload:  md,
		embedding:       emb,
		vectorUpload:    vec,
		skipped:         skip,
		failed:          fail,
		uploadedSet:     make(map[string]bool),
		embeddingExists: make(map[embeddingKey]bool),
	}

	for _, e := range vec.snapshot() {
		s.uploadedSet[e.MD5Hash] = true
	}
	for _, e := range emb.snapshot() {
		s.embeddingExists[embeddingKey{e.MD5Hash, e.CollectionName}] = true
	}

	return s, nil
}

// IsUploaded reports whether a vector-upload entry exists for fingerprint.
func (s *Store) IsUploaded(fingerprint string) bool {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	return s.uploadedSet[fingerprint]
}

// CheckEmbeddingExists reports whether an embedding entry exists for
// (fingerprint, collection).
func (s *Store) CheckEmbeddingExists(fingerprint, collection string) bool {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	return s.embeddingExists[embeddingKey{fingerprint, collection}]
}

// AddConversionEntry appends a conversion success entry.
func (s *Store) AddConversionEntry(filename, hash string) error {
	return s.conversion.append(ConversionEntry{Filename: filename, Hash: hash, Datetime: timestamp()})
}

// AddMarkdownUploadEntry appends a markdown-upload success entry.
func (s *Store) AddMarkdownUploadEntry(filename, hash string) error {
	return s.markdownUpload.append(MarkdownUploadEntry{Filename: filename, Hash: hash, Datetime: timestamp()})
}

// AddEmbeddingEntry appends an embedding success entry and updates the
// in-memory dedup index.
func (s *Store) AddEmbeddingEntry(filename, fingerprint, collection, model string, chunksCreated int, elapsed time.Duration) error {
	entry := EmbeddingEntry{
		Filename:       filename,
		MD5Hash:        fingerprint,
		CollectionName: collection,
		ChunksCreated:  chunksCreated,
		EmbeddingTime:  elapsed.Seconds(),
		ModelName:      model,
		Timestamp:      timestamp(),
	}
	if err := s.embedding.append(entry); err != nil {
		return err
	}
	s.indexMu.Lock()
	s.embeddingExists[embeddingKey{fingerprint, collection}] = true
	s.indexMu.Unlock()
	return nil
}

// AddVectorUploadEntry appends a vector-upload success entry and updates
// the in-memory dedup index.
func (s *Store) AddVectorUploadEntry(filename, fingerprint, collection string, pointIDs []string, batchSize int, elapsed time.Duration) error {
	entry := VectorUploadEntry{
		Filename:          filename,
		MD5Hash:           fingerprint,
		CollectionName:    collection,
		PointsUploaded:    len(pointIDs),
		PointIDs:          pointIDs,
		BatchSize:         batchSize,
		UploadTimeSeconds: elapsed.Seconds(),
		Timestamp:         timestamp(),
	}
	if err := s.vectorUpload.append(entry); err != nil {
		return err
	}
	s.indexMu.Lock()
	s.uploadedSet[fingerprint] = true
	s.indexMu.Unlock()
	return nil
}

// AddSkippedEntry appends a skipped entry.
func (s *Store) AddSkippedEntry(filename, fingerprint string, reason SkipReason, foundIn FoundIn, collection string) error {
	return s.skipped.append(SkippedEntry{
		Filename:       filename,
		MD5Hash:        fingerprint,
		SkipReason:     reason,
		FoundIn:        foundIn,
		CollectionName: collection,
		Timestamp:      timestamp(),
	})
}

// AddFailedEntry appends a failed entry.
func (s *Store) AddFailedEntry(filename, hash string, stage Stage, cause error) error {
	return s.failed.append(FailedEntry{
		Filename:  filename,
		Hash:      hash,
		Error:     cause.Error(),
		Stage:     stage,
		Timestamp: timestamp(),
	})
}

// FailedEntries returns a snapshot of the failed journal, for the retry driver.
func (s *Store) FailedEntries() []FailedEntry {
	return s.failed.snapshot()
}

// RemoveFailedEntry drops every failed entry matching (filename, stage)
// and atomically rewrites the journal. This is the one exception to the
// journals' append-only contract: the retry driver calls it after a
// previously-failed document reaches a terminal success state, so the
// failed log reflects only documents that still need attention.
func (s *Store) RemoveFailedEntry(filename string, stage Stage) error {
	return s.failed.removeMatching(func(e FailedEntry) bool {
		return e.Filename == filename && e.Stage == stage
	})
}

// fileLog is a generic, mutex-guarded, atomically-persisted JSON array log.
type fileLog[T any] struct {
	mu      sync.Mutex
	path    string
	entries []T
}

func newFileLog[T any](path string) (*fileLog[T], error) {
	l := &fileLog[T]{path: path}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("journal: read %s: %w", path, err)
	}
	if len(raw) == 0 {
		return l, nil
	}
	var entries []T
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("journal: parse %s: %w", path, err)
	}
	l.entries = entries
	return l, nil
}

func (l *fileLog[T]) snapshot() []T {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]T, len(l.entries))
	copy(out, l.entries)
	return out
}

// append adds entry to the in-memory list and atomically persists the
// full updated log: write to a sibling temp file, fsync, rename over the
// target. A crash before rename leaves the prior file untouched; a crash
// after memory-append but before a successful rename is recovered on the
// next Open because the temp file is never linked into place.
func (l *fileLog[T]) append(entry T) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	updated := append(l.entries, entry)

	data, err := json.MarshalIndent(updated, "", "  ")
	if err != nil {
		return fmt.Errorf("journal: marshal %s: %w", l.path, err)
	}

	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, ".journal-*.tmp")
	if err != nil {
		return fmt.Errorf("journal: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("journal: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("journal: fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("journal: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		return fmt.Errorf("journal: rename into place: %w", err)
	}

	l.entries = updated
	return nil
}

// removeMatching atomically rewrites the log with every entry for which
// match returns true removed. Same atomic-replace discipline as append.
func (l *fileLog[T]) removeMatching(match func(T) bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.entries[:0:0]
	for _, e := range l.entries {
		if !match(e) {
			kept = append(kept, e)
		}
	}

	data, err := json.MarshalIndent(kept, "", "  ")
	if err != nil {
		return fmt.Errorf("journal: marshal %s: %w", l.path, err)
	}

	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, ".journal-*.tmp")
	if err != nil {
		return fmt.Errorf("journal: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("journal: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("journal: fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("journal: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		return fmt.Errorf("journal: rename into place: %w", err)
	}

	l.entries = kept
	return nil
}
