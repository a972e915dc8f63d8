package cartserver

import (
	"compress/gzip"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/c0deZ3R0/go-cart-sync/logging"
)

// errDecompressedTooLarge is returned once a gzip request body grows past
// the decompressed limit
var errDecompressedTooLarge = errors.New("decompressed data exceeds maximum size limit")

// maxDecompressedReader wraps an io.Reader to enforce decompressed size limits
type maxDecompressedReader struct {
	reader   io.Reader
	limit    int64
	consumed int64
}

func (r *maxDecompressedReader) Read(p []byte) (int, error) {
	if r.consumed >= r.limit {
		var probe [1]byte
		if n, _ := r.reader.Read(probe[:]); n > 0 {
			return 0, errDecompressedTooLarge
		}
		return 0, io.EOF
	}
	if remaining := r.limit - r.consumed; int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := r.reader.Read(p)
	r.consumed += int64(n)
	return n, err
}

type gzipBody struct {
	io.Reader
	gz   *gzip.Reader
	orig io.Closer
}

func (b gzipBody) Close() error {
	_ = b.gz.Close()
	return b.orig.Close()
}

// limitBody enforces request size limits, rejects non-JSON bodies and
// transparently decodes gzip request bodies.
func limitBody(maxRequestSize, maxDecompressedSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		r := c.Request
		if r.Body == nil || r.ContentLength == 0 {
			c.Next()
			return
		}

		contentType := r.Header.Get("Content-Type")
		if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
			abortWithError(c, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "unsupported media type: "+contentType)
			return
		}
		if r.ContentLength > maxRequestSize {
			abortWithError(c, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body too large")
			return
		}

		limited := http.MaxBytesReader(c.Writer, r.Body, maxRequestSize)

		switch encoding := strings.TrimSpace(strings.ToLower(r.Header.Get("Content-Encoding"))); encoding {
		case "":
			r.Body = limited
		case "gzip":
			gz, err := gzip.NewReader(limited)
			if err != nil {
				abortWithError(c, http.StatusBadRequest, "INVALID_GZIP", "invalid gzip data")
				return
			}
			r.Body = gzipBody{
				Reader: &maxDecompressedReader{reader: gz, limit: maxDecompressedSize},
				gz:     gz,
				orig:   limited,
			}
			r.Header.Del("Content-Encoding")
		default:
			abortWithError(c, http.StatusUnsupportedMediaType, "UNSUPPORTED_ENCODING", "unsupported content encoding: "+encoding)
			return
		}
		c.Next()
	}
}

// bodyErrorStatus maps a body read error to an HTTP status.
func bodyErrorStatus(err error) int {
	var maxBytesErr *http.MaxBytesError
	if errors.Is(err, errDecompressedTooLarge) || errors.As(err, &maxBytesErr) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// requestLogger assigns a request id and logs each request.
func requestLogger(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)
		ctx := logging.ContextWithRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		logger.WithContext(ctx).Debug("Request served",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)))
	}
}
