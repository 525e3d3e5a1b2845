// Package embedder calls the remote embedding service for filename and
// content vectors, and implements the dedup-aware batch embedding
// contract the driver relies on.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"

	"vectoringest/internal/journal"
)

// Sentinel error kinds. Unavailable is retriable; Rejected is not.
var (
	ErrUnavailable = errors.New("embedder: service unavailable")
	ErrRejected    = errors.New("embedder: request rejected")
)

// VectorExistenceChecker is the narrow slice of VectorStoreClient the
// embedder needs for its dedup fallback check, kept local to avoid a
// package import cycle with internal/vectorstore.
type VectorExistenceChecker interface {
	ExistsByFingerprint(ctx context.Context, collection, fingerprint string) (bool, error)
}

// Client embeds filenames and content chunks against two configured
// models (filename, content) on the same HTTP-compatible endpoint.
type Client struct {
	baseURL       string
	filenameModel string
	contentModel  string
	httpClient    *http.Client
	journal       *journal.Store
	vectors       VectorExistenceChecker
	maxAttempts   uint
}

// New builds a Client. journalStore and vectors back the dedup checks
// EmbedBatchWithDedup performs before issuing a native batch call.
func New(baseURL, filenameModel, contentModel string, journalStore *journal.Store, vectors VectorExistenceChecker) *Client {
	return &Client{
		baseURL:       baseURL,
		filenameModel: filenameModel,
		contentModel:  contentModel,
		httpClient:    &http.Client{Timeout: 60 * time.Second},
		journal:       journalStore,
		vectors:       vectors,
		maxAttempts:   3,
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// embedBatch issues one native batch call to the configured model and
// returns one vector per input, in order.
func (c *Client) embedBatch(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no inputs", ErrRejected)
	}

	op := func() ([][]float32, error) {
		body, err := json.Marshal(embedRequest{Model: model, Input: inputs})
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embed", bytes.NewReader(body))
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
		}
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, backoff.Permanent(fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, string(raw)))
		}

		var er embedResponse
		if err := json.Unmarshal(raw, &er); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("%w: decode response: %v", ErrRejected, err))
		}
		if len(er.Embeddings) != len(inputs) {
			return nil, backoff.Permanent(fmt.Errorf("%w: got %d embeddings, want %d", ErrRejected, len(er.Embeddings), len(inputs)))
		}

		return er.Embeddings, nil
	}

	return backoff.Retry(ctx, op, backoff.WithMaxTries(c.maxAttempts), backoff.WithBackOff(backoff.NewExponentialBackOff()))
}

// EmbedFilename embeds a single filename string against the filename
// model, returning its vector.
func (c *Client) EmbedFilename(ctx context.Context, filename string) ([]float32, error) {
	vecs, err := c.embedBatch(ctx, c.filenameModel, []string{filename})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatchWithDedupResult is the outcome of EmbedBatchWithDedup: either
// Vectors is populated (one per chunk, in order) or Skipped is true.
type EmbedBatchWithDedupResult struct {
	Vectors []([]float32)
	Skipped bool
}

// EmbedBatchWithDedup resolves the dedup decision for (filename,
// fingerprint, collection) before issuing a native batch embed call
// against chunks. Unless force is set, it first consults the journal's
// O(1) index, then falls back to a vector-store existence scroll; either
// hit records a skipped journal entry and returns Skipped=true.
func (c *Client) EmbedBatchWithDedup(ctx context.Context, filename, fingerprint string, chunks []string, collection string, force bool) (EmbedBatchWithDedupResult, error) {
	if !force {
		if c.journal.CheckEmbeddingExists(fingerprint, collection) {
			if err := c.journal.AddSkippedEntry(filename, fingerprint, journal.SkipAlreadyEmbedded, journal.FoundInLogFile, collection); err != nil {
				return EmbedBatchWithDedupResult{}, err
			}
			return EmbedBatchWithDedupResult{Skipped: true}, nil
		}
		if c.vectors != nil {
			exists, err := c.vectors.ExistsByFingerprint(ctx, collection, fingerprint)
			if err != nil {
				log.Warn().Err(err).Str("collection", collection).Msg("vector store existence check failed; proceeding as not-found")
			} else if exists {
				if err := c.journal.AddSkippedEntry(filename, fingerprint, journal.SkipAlreadyInVectorStore, journal.FoundInVectorStore, collection); err != nil {
					return EmbedBatchWithDedupResult{}, err
				}
				return EmbedBatchWithDedupResult{Skipped: true}, nil
			}
		}
	}

	start := time.Now()
	vecs, err := c.embedBatch(ctx, c.contentModel, chunks)
	if err != nil {
		return EmbedBatchWithDedupResult{}, err
	}

	if err := c.journal.AddEmbeddingEntry(filename, fingerprint, collection, c.contentModel, len(chunks), time.Since(start)); err != nil {
		return EmbedBatchWithDedupResult{}, err
	}

	return EmbedBatchWithDedupResult{Vectors: vecs}, nil
}

// Health pings the embedding endpoint with a minimal request.
func (c *Client) Health(ctx context.Context) bool {
	_, err := c.embedBatch(ctx, c.filenameModel, []string{"ping"})
	return err == nil
}
