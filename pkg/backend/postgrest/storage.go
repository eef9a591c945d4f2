package postgrest

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/studypet-hub/studypet-hub/pkg/backend"
)

// ══════════════════════════════════════════════════════════════════════════════
// OBJECT STORAGE
// ══════════════════════════════════════════════════════════════════════════════

// PublicURL builds the CDN URL for a stored object. With a transform the
// image-render endpoint is used so resizing happens server-side. A non-zero
// version is appended as a query parameter to bust CDN caches when the
// underlying object changes.
func (c *Client) PublicURL(bucket, path string, transform *backend.ImageTransform, version int64) string {
	escaped := escapeObjectPath(bucket) + "/" + escapeObjectPath(path)
	params := url.Values{}

	var u string
	if transform != nil {
		u = c.config.BaseURL + "/storage/v1/render/image/public/" + escaped
		if transform.Width > 0 {
			params.Set("width", strconv.Itoa(transform.Width))
		}
		if transform.Height > 0 {
			params.Set("height", strconv.Itoa(transform.Height))
		}
		if transform.Quality > 0 {
			params.Set("quality", strconv.Itoa(transform.Quality))
		}
		if transform.Resize != "" {
			params.Set("resize", transform.Resize)
		}
	} else {
		u = c.config.BaseURL + "/storage/v1/object/public/" + escaped
	}

	if version > 0 {
		params.Set("v", strconv.FormatInt(version, 10))
	}
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// escapeObjectPath escapes each path segment while keeping the separators.
func escapeObjectPath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
