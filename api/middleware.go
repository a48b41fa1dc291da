package api

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// maxBodySize caps mutation payloads after decompression.
const maxBodySize = 64 << 10

// RequestBodyMiddleware decompresses gzip-encoded request bodies and caps the
// decoded size at limit bytes, so a small compressed payload cannot expand
// without bound. Invalid gzip payloads are rejected with a 400 response.
func RequestBodyMiddleware(limit int64) echo.MiddlewareFunc {
	if limit <= 0 {
		limit = maxBodySize
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}
			var body io.ReadCloser = req.Body
			if hasGzipEncoding(req.Header.Get(echo.HeaderContentEncoding)) {
				gr, err := gzip.NewReader(body)
				if err != nil {
					_ = body.Close()
					return echo.NewHTTPError(http.StatusBadRequest, "invalid gzip body")
				}
				body = &gzipReadCloser{Reader: gr, body: body}
				req.ContentLength = -1
				req.Header.Del(echo.HeaderContentEncoding)
				req.Header.Del(echo.HeaderContentLength)
			}
			req.Body = http.MaxBytesReader(c.Response(), body, limit)
			return next(c)
		}
	}
}

func hasGzipEncoding(header string) bool {
	for _, enc := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			return true
		}
	}
	return false
}

type gzipReadCloser struct {
	*gzip.Reader
	body io.Closer
}

func (g *gzipReadCloser) Close() error {
	err := g.Reader.Close()
	if cerr := g.body.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
