package vectorstore

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"vectoringest/internal/config"
)

// Distance enumerates the supported collection distance metrics, used
// only by the optional bootstrap helper below; the pipeline itself never
// creates collections.
type Distance string

const (
	DistanceCosine    Distance = "cosine"
	DistanceEuclidean Distance = "euclid"
	DistanceDot       Distance = "dot"
	DistanceManhattan Distance = "manhattan"
)

// QdrantClient implements Client against a Qdrant instance over gRPC.
type QdrantClient struct {
	client *qdrant.Client
}

// NewQdrantClient dials Qdrant per cfg.
func NewQdrantClient(cfg config.QdrantConfig) (*QdrantClient, error) {
	port := cfg.Port
	if cfg.PreferGRPC && cfg.GRPCPort > 0 {
		port = cfg.GRPCPort
	}
	qc := &qdrant.Config{
		Host:   cfg.Host,
		Port:   port,
		UseTLS: cfg.UseHTTPS,
	}
	if cfg.APIKey != "" {
		qc.APIKey = cfg.APIKey
	}
	client, err := qdrant.NewClient(qc)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: create qdrant client: %w", err)
	}
	return &QdrantClient{client: client}, nil
}

// EnsureCollection creates collection if it does not already exist, with
// the given vector dimension and distance metric. This is the optional
// collection-manifest bootstrap path (§6 of the core contract); the
// steady-state driver never calls it.
func (q *QdrantClient) EnsureCollection(ctx context.Context, collection string, dimension int, distance Distance) error {
	exists, err := q.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("vectorstore: check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	if dimension <= 0 {
		return fmt.Errorf("vectorstore: dimension must be > 0")
	}

	var d qdrant.Distance
	switch distance {
	case DistanceEuclidean:
		d = qdrant.Distance_Euclid
	case DistanceDot:
		d = qdrant.Distance_Dot
	case DistanceManhattan:
		d = qdrant.Distance_Manhattan
	default:
		d = qdrant.Distance_Cosine
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: d,
		}),
	})
	if err != nil {
		return fmt.Errorf("vectorstore: create collection: %w", err)
	}
	return nil
}

// Upsert splits points into batches of at most batchSize and upserts
// each in turn, failing the whole call on the first batch error.
func (q *QdrantClient) Upsert(ctx context.Context, collection string, points []Point, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 100
	}
	for start := 0; start < len(points); start += batchSize {
		end := start + batchSize
		if end > len(points) {
			end = len(points)
		}
		if err := q.upsertBatch(ctx, collection, points[start:end]); err != nil {
			return fmt.Errorf("%w: %v", ErrUpsertFailed, err)
		}
	}
	return nil
}

func (q *QdrantClient) upsertBatch(ctx context.Context, collection string, batch []Point) error {
	qpoints := make([]*qdrant.PointStruct, 0, len(batch))
	for _, p := range batch {
		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)
		qpoints = append(qpoints, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.ID),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(p.Payload),
		})
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         qpoints,
		Wait:           boolPtr(true),
	})
	return err
}

// ExistsByFingerprint scrolls collection filtering on the nested
// metadata.md5_hash field, limited to a single match. A missing payload
// index still works; it is simply slower.
func (q *QdrantClient) ExistsByFingerprint(ctx context.Context, collection, fingerprint string) (bool, error) {
	limit := uint32(1)
	result, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("metadata.md5_hash", fingerprint),
			},
		},
		Limit:       &limit,
		WithPayload: qdrant.NewWithPayload(false),
		WithVectors: qdrant.NewWithVectors(false),
	})
	if err != nil {
		return false, fmt.Errorf("vectorstore: scroll: %w", err)
	}
	return len(result) > 0, nil
}

// Health checks that Qdrant is reachable by listing collections.
func (q *QdrantClient) Health(ctx context.Context) bool {
	_, err := q.client.ListCollections(ctx)
	return err == nil
}

// Close releases the underlying gRPC connection.
func (q *QdrantClient) Close() error {
	return q.client.Close()
}

func boolPtr(b bool) *bool { return &b }
