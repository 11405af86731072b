package source

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// DefaultImageType is the extension used when none is requested or inferred.
const DefaultImageType = "png"

// Counter produces process-unique sequence numbers for downloaded image files.
// It is safe for concurrent use. The zero value starts at 1.
type Counter struct {
	n atomic.Int64
}

// DefaultCounter is shared by managers that are not given their own counter.
var DefaultCounter = &Counter{}

// Next returns the next sequence number.
func (c *Counter) Next() int64 {
	return c.n.Add(1)
}

// Reset restarts the sequence. Only meant for tests.
func (c *Counter) Reset() {
	c.n.Store(0)
}

// GenerateDownloadedImagePath returns a unique "<n>.<imageType>" file name.
// An empty imageType means DefaultImageType.
func (c *Counter) GenerateDownloadedImagePath(imageType string) string {
	imageType = strings.TrimPrefix(imageType, ".")
	if imageType == "" {
		imageType = DefaultImageType
	}
	return strconv.FormatInt(c.Next(), 10) + "." + imageType
}
