package vectorstore

import (
	"context"
	"sync"
)

// MemoryStore implements Client over in-memory maps, for tests that
// exercise the driver without a live Qdrant instance.
type MemoryStore struct {
	mu         sync.RWMutex
	collections map[string]map[string]Point
}

// NewMemoryStore creates an empty in-memory vector store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]Point)}
}

// Upsert stores each point under collection. batchSize is ignored: there
// is no batching or durability boundary to wait on in memory.
func (m *MemoryStore) Upsert(ctx context.Context, collection string, points []Point, batchSize int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.collections[collection]
	if !ok {
		bucket = make(map[string]Point)
		m.collections[collection] = bucket
	}
	for _, p := range points {
		bucket[p.ID] = p
	}
	return nil
}

// ExistsByFingerprint reports whether any point in collection carries a
// metadata.md5_hash payload field equal to fingerprint.
func (m *MemoryStore) ExistsByFingerprint(ctx context.Context, collection, fingerprint string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bucket, ok := m.collections[collection]
	if !ok {
		return false, nil
	}
	for _, p := range bucket {
		meta, ok := p.Payload["metadata"].(map[string]any)
		if !ok {
			continue
		}
		if meta["md5_hash"] == fingerprint {
			return true, nil
		}
	}
	return false, nil
}

// Health always reports true: there is no connection to probe.
func (m *MemoryStore) Health(ctx context.Context) bool { return true }

// Points returns a snapshot of every point stored in collection, for
// assertions in tests.
func (m *MemoryStore) Points(collection string) []Point {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bucket := m.collections[collection]
	out := make([]Point, 0, len(bucket))
	for _, p := range bucket {
		out = append(out, p)
	}
	return out
}
