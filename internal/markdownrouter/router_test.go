package markdownrouter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRouteBasic(t *testing.T) {
	got, err := Route("source/a/b/doc.pdf", "source/", "markdown/")
	require.NoError(t, err)
	require.Equal(t, "markdown/a/b/doc.md", got)
}

func TestRouteNoExtension(t *testing.T) {
	got, err := Route("source/README", "source/", "markdown/")
	require.NoError(t, err)
	require.Equal(t, "markdown/README.md", got)
}

func TestRoutePreservesCaseAndUnicode(t *testing.T) {
	got, err := Route("source/Dossiers/Résumé.DOCX", "source/", "markdown/")
	require.NoError(t, err)
	require.Equal(t, "markdown/Dossiers/Résumé.md", got)
}

func TestRouteMissingPrefix(t *testing.T) {
	_, err := Route("other/doc.pdf", "source/", "markdown/")
	require.Error(t, err)
}

func TestRouteRoundTrip(t *testing.T) {
	md, err := Route("source/a/doc.pdf", "source/", "markdown/")
	require.NoError(t, err)
	require.Equal(t, "markdown/a/doc.md", md)

	back, err := Route(md, "markdown/", "source/")
	require.NoError(t, err)
	require.Equal(t, "source/a/doc.md", back)
}
