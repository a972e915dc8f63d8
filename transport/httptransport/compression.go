package httptransport

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// errResponseDecompressedTooLarge is returned when a response body grows
// past MaxDecompressedResponseSize once decompressed
var errResponseDecompressedTooLarge = errors.New("decompressed response exceeds maximum size limit")

// errResponseTooLarge is returned when a response body exceeds MaxResponseSize
var errResponseTooLarge = errors.New("response exceeds maximum size limit")

// maxDecompressedReader wraps an io.Reader to enforce a size limit
type maxDecompressedReader struct {
	reader   io.Reader
	limit    int64
	consumed int64
	tooLarge error
}

func (r *maxDecompressedReader) Read(p []byte) (int, error) {
	if r.consumed >= r.limit {
		// One byte past the limit tells a body of exactly limit bytes
		// from a longer one.
		var probe [1]byte
		if n, _ := r.reader.Read(probe[:]); n > 0 {
			return 0, r.tooLarge
		}
		return 0, io.EOF
	}

	maxRead := r.limit - r.consumed
	if int64(len(p)) > maxRead {
		p = p[:maxRead]
	}

	n, err := r.reader.Read(p)
	r.consumed += int64(n)
	return n, err
}

// createSafeResponseReader returns a reader over resp.Body that enforces
// the compressed and decompressed size limits of opts and undoes gzip
// when Go's transport did not. The cleanup function must be called once
// reading is done.
func createSafeResponseReader(resp *http.Response, opts *ClientOptions) (io.Reader, func(), error) {
	maxResponseSize := opts.MaxResponseSize
	if maxResponseSize == 0 {
		maxResponseSize = 10 * 1024 * 1024
	}
	maxDecompressedSize := opts.MaxDecompressedResponseSize
	if maxDecompressedSize == 0 {
		maxDecompressedSize = 20 * 1024 * 1024
	}

	if resp.ContentLength > maxResponseSize {
		return nil, func() {}, fmt.Errorf("%w: %d bytes (max %d)", errResponseTooLarge, resp.ContentLength, maxResponseSize)
	}

	limited := &maxDecompressedReader{reader: resp.Body, limit: maxResponseSize, tooLarge: errResponseTooLarge}

	encoding := strings.TrimSpace(strings.ToLower(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "", "identity":
		if maxDecompressedSize < maxResponseSize {
			limited.limit = maxDecompressedSize
			limited.tooLarge = errResponseDecompressedTooLarge
		}
		return limited, func() {}, nil
	case "gzip":
		gz, err := gzip.NewReader(limited)
		if err != nil {
			return nil, func() {}, fmt.Errorf("invalid gzip response: %w", err)
		}
		reader := &maxDecompressedReader{
			reader:   gz,
			limit:    maxDecompressedSize,
			tooLarge: errResponseDecompressedTooLarge,
		}
		return reader, func() { _ = gz.Close() }, nil
	default:
		return nil, func() {}, fmt.Errorf("unsupported content encoding: %s", encoding)
	}
}
