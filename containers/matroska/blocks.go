package matroska

import (
	"bytes"
	"compress/zlib"
	"io"

	"github.com/andybalholm/crlf"
	"github.com/cockroachdb/errors"
)

// SubtitleBlock is one decoded media block belonging to a subtitle track,
// with its timestamp already resolved to absolute milliseconds.
type SubtitleBlock struct {
	TrackNumber    uint64
	TimestampMs    int64
	DurationMs     *int64
	Payload        []byte
	BlockAdditions []byte
}

// ErrLacedSubtitleBlock is returned when a SimpleBlock or Block carries a
// lacing flag. Subtitle tracks do not use lacing in practice, and treating
// a laced block as one payload (the naive reading of the element) risks
// silently corrupting output, so this package rejects it instead.
var ErrLacedSubtitleBlock = errors.New("laced subtitle block is not supported")

// blockHeader is the {track, relative timestamp, flags} prefix shared by
// SimpleBlock and the inner Block of a BlockGroup.
type blockHeader struct {
	trackNumber    uint64
	trackWidth     int
	relativeTimeMs int16
	flags          byte
}

// parseBlockHeader reads the track-number VINT, the 16-bit signed relative
// timestamp, and the flags byte from the start of a block element's data.
func parseBlockHeader(data []byte) (blockHeader, error) {
	trackNumber, width, err := ReadDataSize(data, 0)
	if err != nil {
		return blockHeader{}, errors.Wrap(err, "failed to read block track number")
	}

	if len(data) < width+3 {
		return blockHeader{}, errors.New("block element too short for header")
	}

	relative := int16(data[width])<<8 | int16(data[width+1])
	flags := data[width+2]

	return blockHeader{
		trackNumber:    uint64(trackNumber),
		trackWidth:     width,
		relativeTimeMs: relative,
		flags:          flags,
	}, nil
}

// isLaced reports whether the flags byte's lacing bits (bits 1-2) are set.
func (b blockHeader) isLaced() bool {
	return b.flags&0x06 != 0
}

func (b blockHeader) payload(data []byte) []byte {
	return data[b.trackWidth+3:]
}

// DecodePayload applies per-track zlib decompression (when the track's
// ContentEncoding calls for it) and truncates at the first NUL byte per the
// EBML "terminating elements" convention, then normalizes line endings to
// "\n" the way the teacher's subtitle text extraction does.
func DecodePayload(raw []byte, track SubtitleTrackInfo) ([]byte, error) {
	data := raw

	if track.IsCompressed() {
		decompressed, err := zlibDecompress(raw)
		if err != nil {
			return nil, errors.Wrap(err, "failed to decompress subtitle payload")
		}

		data = decompressed
	}

	end := len(data)
	for i, b := range data {
		if b == 0 {
			end = i

			break
		}
	}

	normalized := make([]byte, end)
	nDst, _, _ := new(crlf.Normalize).Transform(normalized, data[:end], true)

	return normalized[:nDst], nil
}

func zlibDecompress(data []byte) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create zlib reader")
	}
	defer reader.Close()

	return io.ReadAll(reader)
}
