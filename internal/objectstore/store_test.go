package objectstore

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListAllKeysFiltersAndPaginates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	files := []string{
		"source/a.pdf",
		"source/b.PDF",
		"source/c.docx",
		"source/skip.png",
		"source/nested/d.pdf",
	}
	for _, f := range files {
		_, err := store.Put(ctx, f, bytes.NewReader([]byte("bytes")), PutOptions{})
		require.NoError(t, err)
	}

	keys, err := ListAllKeys(ctx, store, "source/", []string{".png"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"source/a.pdf", "source/b.PDF", "source/c.docx", "source/nested/d.pdf",
	}, keys)
}

func TestListAllKeysSkipsDirectoryMarkers(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Put(ctx, "source/dir/", bytes.NewReader(nil), PutOptions{})
	require.NoError(t, err)
	_, err = store.Put(ctx, "source/dir/file.pdf", bytes.NewReader([]byte("bytes")), PutOptions{})
	require.NoError(t, err)

	keys, err := ListAllKeys(ctx, store, "source/", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"source/dir/file.pdf"}, keys)
}
