package converter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalHTMLConverterHTML(t *testing.T) {
	c := LocalHTMLConverter{}
	md, err := c.Convert(context.Background(), "page.html", []byte("<h1>Hi</h1>"))
	require.NoError(t, err)
	require.Contains(t, md, "Hi")
}

func TestLocalHTMLConverterPassthrough(t *testing.T) {
	c := LocalHTMLConverter{}
	md, err := c.Convert(context.Background(), "notes.txt", []byte("plain text"))
	require.NoError(t, err)
	require.Equal(t, "plain text", md)
}

func TestLocalHTMLConverterRejectsUnknown(t *testing.T) {
	c := LocalHTMLConverter{}
	_, err := c.Convert(context.Background(), "doc.pdf", []byte("bytes"))
	require.ErrorIs(t, err, ErrRejected)
}

func TestLocalHTMLConverterHealth(t *testing.T) {
	c := LocalHTMLConverter{}
	require.True(t, c.Health(context.Background()))
}
