package matroska

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
)

// fakeDoer serves Range requests out of an in-memory file, mimicking a
// Range-capable static file server.
type fakeDoer struct {
	body            []byte
	supportsRange   bool
	requestsServed  int
	lastRangeHeader string
	lastHeaders     http.Header
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	f.requestsServed++
	f.lastRangeHeader = req.Header.Get("Range")
	f.lastHeaders = req.Header.Clone()

	if !f.supportsRange {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader(f.body)),
			Header:     http.Header{},
		}, nil
	}

	var start, end int
	if _, err := fmt.Sscanf(f.lastRangeHeader, "bytes=%d-%d", &start, &end); err != nil {
		return nil, fmt.Errorf("malformed Range header %q: %w", f.lastRangeHeader, err)
	}

	if end >= len(f.body) {
		end = len(f.body) - 1
	}

	header := http.Header{}
	header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(f.body)))

	return &http.Response{
		StatusCode: http.StatusPartialContent,
		Body:       io.NopCloser(bytes.NewReader(f.body[start : end+1])),
		Header:     header,
	}, nil
}

func TestNewHTTPRangeSourceConfirmsRangeSupport(t *testing.T) {
	body := bytes.Repeat([]byte("x"), 1024)
	doer := &fakeDoer{body: body, supportsRange: true}

	src, err := NewHTTPRangeSource(context.Background(), "http://example.test/file.mkv", doer, nil, false, nil)
	if err != nil {
		t.Fatalf("NewHTTPRangeSource: %v", err)
	}

	if src.Size() != int64(len(body)) {
		t.Errorf("Size = %d, want %d", src.Size(), len(body))
	}
}

func TestNewHTTPRangeSourceRejectsFullBodyWithoutOptIn(t *testing.T) {
	doer := &fakeDoer{body: []byte("hello"), supportsRange: false}

	_, err := NewHTTPRangeSource(context.Background(), "http://example.test/file.mkv", doer, nil, false, nil)
	if err == nil {
		t.Fatal("expected an error when Range is unsupported and full download is not allowed")
	}
}

func TestNewHTTPRangeSourceFullDownloadFallback(t *testing.T) {
	body := []byte("the entire file body")
	doer := &fakeDoer{body: body, supportsRange: false}

	src, err := NewHTTPRangeSource(context.Background(), "http://example.test/file.mkv", doer, nil, true, nil)
	if err != nil {
		t.Fatalf("NewHTTPRangeSource: %v", err)
	}

	if src.Size() != int64(len(body)) {
		t.Errorf("Size = %d, want %d", src.Size(), len(body))
	}
	if src.BytesDownloaded() != int64(len(body)) {
		t.Errorf("BytesDownloaded = %d, want %d", src.BytesDownloaded(), len(body))
	}

	got, readErr := src.ReadRange(context.Background(), 4, 6)
	if readErr != nil {
		t.Fatalf("ReadRange: %v", readErr)
	}
	if string(got) != "entire" {
		t.Errorf("ReadRange(4,6) = %q, want %q", got, "entire")
	}
}

func TestHTTPRangeSourceCacheHitAvoidsRequest(t *testing.T) {
	body := bytes.Repeat([]byte("abcdefgh"), 8192) // 64 KiB
	doer := &fakeDoer{body: body, supportsRange: true}

	src, err := NewHTTPRangeSource(context.Background(), "http://example.test/file.mkv", doer, nil, false, nil)
	if err != nil {
		t.Fatalf("NewHTTPRangeSource: %v", err)
	}

	requestsAfterInit := doer.requestsServed

	got, readErr := src.ReadRange(context.Background(), 10, 20)
	if readErr != nil {
		t.Fatalf("ReadRange: %v", readErr)
	}

	if doer.requestsServed != requestsAfterInit {
		t.Errorf("requestsServed = %d, want %d (expected a cache hit)", doer.requestsServed, requestsAfterInit)
	}

	if !bytes.Equal(got, body[10:30]) {
		t.Errorf("ReadRange(10,20) = %q, want %q", got, body[10:30])
	}
}

func TestHTTPRangeSourceCacheMissFillsReadAhead(t *testing.T) {
	body := bytes.Repeat([]byte("z"), 1024*1024) // 1 MiB, well past the probe window
	doer := &fakeDoer{body: body, supportsRange: true}

	src, err := NewHTTPRangeSource(context.Background(), "http://example.test/file.mkv", doer, nil, false, nil)
	if err != nil {
		t.Fatalf("NewHTTPRangeSource: %v", err)
	}

	offset := int64(900_000)
	got, readErr := src.ReadRange(context.Background(), offset, 10)
	if readErr != nil {
		t.Fatalf("ReadRange: %v", readErr)
	}

	if !bytes.Equal(got, body[offset:offset+10]) {
		t.Errorf("ReadRange(%d,10) = %q, want %q", offset, got, body[offset:offset+10])
	}

	// A 10-byte miss is widened to the 32 KiB read-ahead line.
	if want := "bytes=900000-932767"; doer.lastRangeHeader != want {
		t.Errorf("Range header = %q, want %q", doer.lastRangeHeader, want)
	}
}

func TestHTTPRangeSourceHeadersMerged(t *testing.T) {
	doer := &fakeDoer{body: []byte("hello world"), supportsRange: true}

	_, err := NewHTTPRangeSource(context.Background(), "http://example.test/file.mkv", doer, map[string]string{"Authorization": "Bearer token"}, false, nil)
	if err != nil {
		t.Fatalf("NewHTTPRangeSource: %v", err)
	}

	if got := doer.lastHeaders.Get("Authorization"); got != "Bearer token" {
		t.Errorf("Authorization header = %q, want %q", got, "Bearer token")
	}
	if got := doer.lastHeaders.Get("Range"); got == "" {
		t.Error("Range header missing after merging extra headers")
	}
}
