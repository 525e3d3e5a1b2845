// Package vectorstore upserts filename and content records into a
// vector database and resolves dedup-by-fingerprint existence checks.
package vectorstore

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrUpsertFailed is returned when any batch within an Upsert call fails;
// the whole call is considered failed.
var ErrUpsertFailed = errors.New("vectorstore: write error")

// Point is one vector plus its payload, addressed to a collection.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Client is the contract the pipeline driver depends on. Two distinct
// collections are addressed by name; their dimensionality and distance
// metric are fixed at creation time, outside this package's concern.
type Client interface {
	// Upsert splits points into batches of at most batchSize and waits
	// for durability before returning.
	Upsert(ctx context.Context, collection string, points []Point, batchSize int) error

	// ExistsByFingerprint scrolls collection with a filter on the nested
	// metadata.md5_hash field, limited to one match.
	ExistsByFingerprint(ctx context.Context, collection, fingerprint string) (bool, error)

	// Health reports whether the vector store is reachable.
	Health(ctx context.Context) bool
}

// FilenamePointID derives the deterministic point id for a FilenameRecord
// from the document's original filename.
func FilenamePointID(filename string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("filename:"+filename)).String()
}

// ContentPointID derives the deterministic point id for a ContentRecord
// from the document's filename and the chunk's sequence number.
func ContentPointID(filename string, sequence int) string {
	key := filename + "#" + itoa(sequence)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("content:"+key)).String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// FilenamePayload builds the fixed FilenameRecord payload shape.
func FilenamePayload(filename, fingerprint string) map[string]any {
	return map[string]any{
		"pagecontent": filename,
		"source":      filename,
		"metadata": map[string]any{
			"hash": fingerprint,
		},
	}
}

// ContentPayload builds the fixed ContentRecord payload shape. fingerprint
// is the source Document's fingerprint, not the chunk body's own digest.
// The md5_hash field name is kept for wire compatibility even though the
// value is the 64-bit fast fingerprint, not an MD5 digest.
func ContentPayload(body, filename, fingerprint, elementType string, sequence int) map[string]any {
	return map[string]any{
		"pagecontent": body,
		"metadata": map[string]any{
			"filename":     filename,
			"page_number":  sequence,
			"element_type": elementType,
			"md5_hash":     fingerprint,
		},
	}
}
