package converter

import (
	"context"
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// LocalHTMLConverter converts HTML and plain-text source bytes to
// Markdown entirely in-process, without calling out to a remote service.
// It is the fallback path for formats a remote converter would be
// overkill for, and for environments running without one configured.
type LocalHTMLConverter struct{}

// Convert renders HTML content as Markdown. Plain-text (.txt, .md)
// content is passed through unchanged. Any other extension is rejected:
// this converter does not handle binary document formats.
func (LocalHTMLConverter) Convert(ctx context.Context, filename string, content []byte) (string, error) {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".html"), strings.HasSuffix(lower, ".htm"):
		md, err := htmltomarkdown.ConvertString(string(content))
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrRejected, err)
		}
		return md, nil
	case strings.HasSuffix(lower, ".md"), strings.HasSuffix(lower, ".markdown"):
		return string(content), nil
	case strings.HasSuffix(lower, ".txt"):
		return string(content), nil
	default:
		return "", fmt.Errorf("%w: local converter does not support %q", ErrRejected, filename)
	}
}

// Health always reports true: there is no remote dependency to probe.
func (LocalHTMLConverter) Health(ctx context.Context) bool {
	return true
}
