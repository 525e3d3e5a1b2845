package converter

import "context"

// CompositeConverter routes a document to a local, in-process converter
// when the filename extension is one the local converter already
// handles, and to a remote converter otherwise. This avoids round-tripping
// small HTML/text/Markdown files through the remote conversion service
// when a local library already does the job.
type CompositeConverter struct {
	Local  Converter
	Remote Converter
}

// NewCompositeConverter builds a converter that prefers local for simple
// formats and falls back to remote for everything else.
func NewCompositeConverter(local, remote Converter) *CompositeConverter {
	return &CompositeConverter{Local: local, Remote: remote}
}

// Convert dispatches to the local converter first; if it rejects the
// input (unsupported extension), the remote converter handles it instead.
func (c *CompositeConverter) Convert(ctx context.Context, filename string, content []byte) (string, error) {
	md, err := c.Local.Convert(ctx, filename, content)
	if err == nil {
		return md, nil
	}
	return c.Remote.Convert(ctx, filename, content)
}

// Health reports the remote backend's reachability: the local converter
// has no external dependency to probe, and the remote backend is the one
// whose outage actually limits throughput.
func (c *CompositeConverter) Health(ctx context.Context) bool {
	return c.Remote.Health(ctx)
}
