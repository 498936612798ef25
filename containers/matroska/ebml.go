package matroska

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
)

// ElementHeader is the parsed {id, size} framing of one EBML element,
// expressed in absolute file offsets. It never carries the element's data;
// callers fetch that separately once they know how many bytes they need.
type ElementHeader struct {
	ID           ElementID
	DataSize     int64 // UnknownDataSize when the element declares unknown size
	HeaderOffset int64
	DataOffset   int64
	UnknownSize  bool
}

// EndOffset returns the offset one past the element's data. It is only
// meaningful when UnknownSize is false.
func (h ElementHeader) EndOffset() int64 {
	return h.DataOffset + h.DataSize
}

// ParseElementHeader reads one element header from buf, where buf[0]
// corresponds to absolute file offset bufBase. localOffset is the offset
// into buf at which the header begins.
func ParseElementHeader(buf []byte, localOffset int, bufBase int64) (ElementHeader, error) {
	rawID, idWidth, idErr := ReadElementID(buf, localOffset)
	if idErr != nil {
		return ElementHeader{}, errors.Wrap(idErr, "failed to read element ID")
	}

	sizeOffset := localOffset + idWidth
	size, sizeWidth, sizeErr := ReadDataSize(buf, sizeOffset)
	if sizeErr != nil {
		return ElementHeader{}, errors.Wrap(sizeErr, "failed to read element data size")
	}

	dataOffset := bufBase + int64(sizeOffset+sizeWidth)

	return ElementHeader{
		ID:           ElementID(rawID),
		DataSize:     size,
		HeaderOffset: bufBase + int64(localOffset),
		DataOffset:   dataOffset,
		UnknownSize:  size == UnknownDataSize,
	}, nil
}

// ChildElements returns an iterator (usable with a range-over-func loop)
// over the headers of a parent element's direct children, where buf holds
// the parent's data starting at file offset bufBase. Iteration is finite
// and stops cleanly — without propagating an error — on the first
// malformed child or on an unknown-size child, per the EBML parser's
// "no heuristic repair" policy. Already-parsed children are always
// observed by the caller before iteration halts.
func ChildElements(buf []byte, bufBase int64, dataSize int64) func(func(ElementHeader) bool) {
	return func(yield func(ElementHeader) bool) {
		end := int64(len(buf))
		if dataSize >= 0 && dataSize < end {
			end = dataSize
		}

		offset := 0
		for int64(offset) < end {
			header, err := ParseElementHeader(buf, offset, bufBase)
			if err != nil {
				return
			}

			if header.UnknownSize {
				return
			}

			if !yield(header) {
				return
			}

			localEnd := header.DataOffset - bufBase + header.DataSize
			if localEnd <= int64(offset) {
				// Malformed or zero-size element at a position that would not
				// advance iteration; stop rather than loop forever.
				return
			}

			offset = int(localEnd)
		}
	}
}

// ReadUint decodes data as a big-endian unsigned integer of up to 8 bytes.
func ReadUint(data []byte) uint64 {
	var result uint64
	for _, b := range data {
		result = result<<8 | uint64(b)
	}

	return result
}

// ReadInt decodes data as a big-endian two's-complement signed integer of
// up to 8 bytes.
func ReadInt(data []byte) int64 {
	if len(data) == 0 {
		return 0
	}

	result := ReadUint(data)
	if data[0]&0x80 == 0 || len(data) >= 8 {
		return int64(result)
	}

	signExtend := ^uint64(0) << uint(len(data)*8)

	return int64(result | signExtend)
}

// ReadString decodes data as UTF-8 text, trimming trailing NUL bytes per
// the EBML "terminating elements" convention.
func ReadString(data []byte) string {
	end := len(data)
	for end > 0 && data[end-1] == 0 {
		end--
	}

	return string(data[:end])
}

// ReadFloat decodes data as a big-endian IEEE-754 float. Only 4- and
// 8-byte encodings are legal; any other length is an error.
func ReadFloat(data []byte) (float64, error) {
	switch len(data) {
	case 4:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(data))), nil
	case 8:
		return math.Float64frombits(binary.BigEndian.Uint64(data)), nil
	default:
		return 0, errors.Newf("invalid float element length %d", len(data))
	}
}
