package matroska

import (
	"context"
	"io"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/ristryder/mkvsubtract/common"
)

// localFileRangeSource is a RangeSource over a local path, backed by
// common.FileStream's memory-mapped reader so reads are plain slice copies
// rather than syscalls. It is used by the test suite to drive the
// fetcher/assembler pipeline against a byte-identical fixture without a
// fake HTTP round-trip, and by the orchestrator's opt-in file:// scheme.
// Its read contract matches the HTTP source: a read is satisfied in full
// unless it runs past the end of the file, in which case the returned
// slice stops at the end of the file.
type localFileRangeSource struct {
	mu     sync.Mutex
	stream *common.FileStream
}

// NewLocalFileRangeSource memory-maps path read-only.
func NewLocalFileRangeSource(path string) (*localFileRangeSource, error) {
	stream, openErr := common.NewFileStream(path)
	if openErr != nil {
		return nil, errors.Wrapf(openErr, "failed to open file %s", path)
	}

	return &localFileRangeSource{stream: stream}, nil
}

func (s *localFileRangeSource) ReadRange(_ context.Context, offset, length int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seekErr := s.stream.Seek(offset, io.SeekStart); seekErr != nil {
		return nil, errors.Wrapf(seekErr, "failed to seek to offset %d", offset)
	}

	end := offset + length
	if size := s.stream.Size(); end > size {
		end = size
	}
	if end < offset {
		end = offset
	}

	buf := make([]byte, end-offset)

	read, readErr := io.ReadFull(s.stream, buf)
	if readErr != nil && readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
		return nil, errors.Wrapf(readErr, "failed to read range %d-%d", offset, end)
	}

	return buf[:read], nil
}

func (s *localFileRangeSource) Size() int64 {
	return s.stream.Size()
}

func (s *localFileRangeSource) BytesDownloaded() int64 {
	return s.stream.Size()
}

func (s *localFileRangeSource) RequestCount() int64 {
	return 0
}

func (s *localFileRangeSource) Close() error {
	return s.stream.Close()
}
