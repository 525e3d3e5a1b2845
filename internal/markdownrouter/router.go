// Package markdownrouter rewrites a source object key into its markdown
// counterpart under a different prefix.
package markdownrouter

import (
	"fmt"
	"path"
	"strings"
)

// Route rewrites key, which must begin with sourcePrefix, into the
// corresponding key under markdownPrefix with a ".md" extension.
// Every intervening path segment, including case and unicode, is
// preserved verbatim.
func Route(key, sourcePrefix, markdownPrefix string) (string, error) {
	if !strings.HasPrefix(key, sourcePrefix) {
		return "", fmt.Errorf("markdownrouter: key %q does not have prefix %q", key, sourcePrefix)
	}

	rest := strings.TrimPrefix(key, sourcePrefix)
	rest = withMarkdownExtension(rest)
	return markdownPrefix + rest, nil
}

func withMarkdownExtension(rest string) string {
	dir, file := path.Split(rest)
	ext := path.Ext(file)
	if ext == "" {
		return dir + file + ".md"
	}
	base := strings.TrimSuffix(file, ext)
	return dir + base + ".md"
}
