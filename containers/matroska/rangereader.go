package matroska

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
)

// minReadAheadBytes is the smallest cache-line size a cache miss ever
// requests, so a string of small, nearby reads doesn't round-trip once per
// read.
const minReadAheadBytes = 32 * 1024

// initialProbeBytes is the size of the first Range request issued against a
// new source, used both to confirm Range support and to prime the cache.
const initialProbeBytes = 256 * 1024

// HTTPDoer is the capability the range source needs from an HTTP client.
// http.DefaultClient satisfies it; callers may substitute their own for
// retries, auth, proxying, or tests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ErrRangeNotSupported is returned (wrapped with the offending URL) when a
// server does not honor HTTP Range requests and the caller has not opted
// into a full-download fallback.
var ErrRangeNotSupported = errors.New("server does not support HTTP Range requests")

// RangeSource is a seekable, byte-addressable view over a remote resource.
// Its only operation is a byte-range read; everything above it (EBML,
// segment, track, cue, and block parsing) is expressed purely in terms of
// ReadRange calls.
type RangeSource interface {
	ReadRange(ctx context.Context, offset, length int64) ([]byte, error)
	Size() int64
}

// Counters exposes the telemetry a RangeSource accumulates over its
// lifetime. Implementations update both fields atomically so they can be
// read safely while a worker pool is mid-fetch.
type Counters interface {
	BytesDownloaded() int64
	RequestCount() int64
}

type httpRangeSource struct {
	url     string
	doer    HTTPDoer
	headers map[string]string
	logger  Logger

	fileSize int64

	fullBuffer []byte // non-nil only when the full-download fallback was used

	mu          sync.Mutex
	cacheOffset int64
	cacheData   []byte

	bytesDownloaded atomic.Int64
	requestCount    atomic.Int64
}

// NewHTTPRangeSource probes url with a Range request for the first
// initialProbeBytes bytes. A 206 response confirms Range support and
// primes the cache at offset 0; a 200 response is only accepted when
// allowFullDownload is true, in which case the whole body becomes the
// backing buffer. Any other outcome is an error.
func NewHTTPRangeSource(ctx context.Context, url string, doer HTTPDoer, headers map[string]string, allowFullDownload bool, logger Logger) (*httpRangeSource, error) {
	if doer == nil {
		doer = http.DefaultClient
	}

	source := &httpRangeSource{url: url, doer: doer, headers: headers, logger: orNopLogger(logger)}

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if reqErr != nil {
		return nil, errors.Wrapf(reqErr, "failed to build probe request for %s", url)
	}

	source.applyHeaders(req)
	req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", initialProbeBytes-1))

	resp, doErr := doer.Do(req)
	if doErr != nil {
		return nil, errors.Wrapf(doErr, "failed to probe %s", url)
	}
	defer resp.Body.Close()

	source.requestCount.Add(1)

	switch resp.StatusCode {
	case http.StatusPartialContent:
		fileSize, sizeErr := parseContentRangeSize(resp.Header.Get("Content-Range"))
		if sizeErr != nil {
			return nil, errors.Wrapf(sizeErr, "failed to parse Content-Range from %s", url)
		}

		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, errors.Wrapf(readErr, "failed to read probe body from %s", url)
		}

		source.fileSize = fileSize
		source.bytesDownloaded.Add(int64(len(body)))
		source.cacheOffset = 0
		source.cacheData = body

		source.logger.Debug("range read confirmed", "url", url, "size", humanize.Bytes(uint64(fileSize)))

		return source, nil
	case http.StatusOK:
		if !allowFullDownload {
			return nil, errors.Wrapf(ErrRangeNotSupported, "url %s", url)
		}

		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, errors.Wrapf(readErr, "failed to read full body from %s", url)
		}

		source.fileSize = int64(len(body))
		source.fullBuffer = body
		source.bytesDownloaded.Add(int64(len(body)))

		source.logger.Info("range unsupported, downloaded full file", "url", url, "size", humanize.Bytes(uint64(len(body))))

		return source, nil
	default:
		return nil, errors.Newf("unexpected HTTP status %d probing %s", resp.StatusCode, url)
	}
}

func (s *httpRangeSource) applyHeaders(req *http.Request) {
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}
}

func (s *httpRangeSource) Size() int64 {
	return s.fileSize
}

func (s *httpRangeSource) BytesDownloaded() int64 {
	return s.bytesDownloaded.Load()
}

func (s *httpRangeSource) RequestCount() int64 {
	return s.requestCount.Load()
}

// ReadRange serves offset,length from the single-line read-ahead cache,
// refilling it on a miss. The cache line is guarded by a mutex, so
// concurrent calls are safe but run one at a time; the worker pool uses
// ReadRangeUncached so its batch reads can proceed in parallel.
func (s *httpRangeSource) ReadRange(ctx context.Context, offset, length int64) ([]byte, error) {
	if s.fullBuffer != nil {
		return sliceClamped(s.fullBuffer, offset, length), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.withinCacheLine(offset, length) {
		return sliceClamped(s.cacheData, offset-s.cacheOffset, length), nil
	}

	readAhead := length
	if readAhead < minReadAheadBytes {
		readAhead = minReadAheadBytes
	}

	end := offset + readAhead
	if s.fileSize > 0 && end > s.fileSize {
		end = s.fileSize
	}

	body, fetchErr := s.fetch(ctx, offset, end-offset)
	if fetchErr != nil {
		return nil, fetchErr
	}

	s.cacheOffset = offset
	s.cacheData = body

	return sliceClamped(body, 0, length), nil
}

// ReadRangeUncached issues a fresh HTTP range request without touching the
// cache line, used by the targeted-fetch worker pool so concurrent batches
// never race on shared cache state.
func (s *httpRangeSource) ReadRangeUncached(ctx context.Context, offset, length int64) ([]byte, error) {
	if s.fullBuffer != nil {
		return sliceClamped(s.fullBuffer, offset, length), nil
	}

	return s.fetch(ctx, offset, length)
}

func (s *httpRangeSource) withinCacheLine(offset, length int64) bool {
	return s.cacheData != nil && offset >= s.cacheOffset && offset+length <= s.cacheOffset+int64(len(s.cacheData))
}

func (s *httpRangeSource) fetch(ctx context.Context, offset, length int64) ([]byte, error) {
	end := offset + length - 1
	if s.fileSize > 0 && end >= s.fileSize {
		end = s.fileSize - 1
	}

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if reqErr != nil {
		return nil, errors.Wrapf(reqErr, "failed to build range request for %d-%d", offset, end)
	}

	s.applyHeaders(req)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, end))

	resp, doErr := s.doer.Do(req)
	if doErr != nil {
		return nil, errors.Wrapf(doErr, "transport error reading range %d-%d", offset, end)
	}
	defer resp.Body.Close()

	s.requestCount.Add(1)

	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("unexpected HTTP status %d reading range %d-%d", resp.StatusCode, offset, end)
	}

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, errors.Wrapf(readErr, "failed to read body for range %d-%d", offset, end)
	}

	s.bytesDownloaded.Add(int64(len(body)))

	return body, nil
}

func sliceClamped(buf []byte, offset, length int64) []byte {
	if offset < 0 {
		offset = 0
	}
	if offset >= int64(len(buf)) {
		return []byte{}
	}

	end := offset + length
	if end > int64(len(buf)) {
		end = int64(len(buf))
	}

	out := make([]byte, end-offset)
	copy(out, buf[offset:end])

	return out
}

func parseContentRangeSize(header string) (int64, error) {
	var start, end, size int64

	if _, scanErr := fmt.Sscanf(header, "bytes %d-%d/%d", &start, &end, &size); scanErr != nil {
		return 0, errors.Wrapf(scanErr, "malformed Content-Range %q", header)
	}

	return size, nil
}
