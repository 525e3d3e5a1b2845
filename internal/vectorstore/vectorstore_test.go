package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilenamePointIDDeterministic(t *testing.T) {
	a := FilenamePointID("doc.pdf")
	b := FilenamePointID("doc.pdf")
	require.Equal(t, a, b)
	require.NotEqual(t, a, FilenamePointID("other.pdf"))
}

func TestContentPointIDDeterministic(t *testing.T) {
	a := ContentPointID("doc.pdf", 1)
	b := ContentPointID("doc.pdf", 1)
	require.Equal(t, a, b)
	require.NotEqual(t, a, ContentPointID("doc.pdf", 2))
}

func TestFilenamePayloadShape(t *testing.T) {
	p := FilenamePayload("doc.pdf", "fp1")
	require.Equal(t, "doc.pdf", p["pagecontent"])
	require.Equal(t, "doc.pdf", p["source"])
	meta := p["metadata"].(map[string]any)
	require.Equal(t, "fp1", meta["hash"])
}

func TestContentPayloadShape(t *testing.T) {
	p := ContentPayload("body text", "doc.pdf", "fp1", "text", 3)
	require.Equal(t, "body text", p["pagecontent"])
	meta := p["metadata"].(map[string]any)
	require.Equal(t, "doc.pdf", meta["filename"])
	require.Equal(t, 3, meta["page_number"])
	require.Equal(t, "text", meta["element_type"])
	require.Equal(t, "fp1", meta["md5_hash"])
}

func TestMemoryStoreUpsertAndExists(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	points := []Point{
		{ID: ContentPointID("doc.pdf", 1), Vector: []float32{0.1, 0.2}, Payload: ContentPayload("a", "doc.pdf", "fp1", "text", 1)},
		{ID: ContentPointID("doc.pdf", 2), Vector: []float32{0.3, 0.4}, Payload: ContentPayload("b", "doc.pdf", "fp1", "text", 2)},
	}
	require.NoError(t, ms.Upsert(ctx, "content", points, 100))

	exists, err := ms.ExistsByFingerprint(ctx, "content", "fp1")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = ms.ExistsByFingerprint(ctx, "content", "fp-missing")
	require.NoError(t, err)
	require.False(t, exists)

	require.Len(t, ms.Points("content"), 2)
}

func TestMemoryStoreHealth(t *testing.T) {
	ms := NewMemoryStore()
	require.True(t, ms.Health(context.Background()))
}
