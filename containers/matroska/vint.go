package matroska

import "github.com/cockroachdb/errors"

// UnknownDataSize is the sentinel value returned by ReadDataSize when every
// value bit of the VINT is set, which the EBML specification reserves to
// mean "size not known in advance" (legal only on Segment and Cluster).
const UnknownDataSize int64 = -1

// vintWidth returns the width in bytes (1..8) implied by the position of
// the highest set bit in the first byte of a VINT, or an error if the byte
// carries no marker bit at all.
func vintWidth(first byte) (int, error) {
	mask := byte(0x80)
	for width := 1; width <= 8; width++ {
		if first&mask == mask {
			return width, nil
		}
		mask >>= 1
	}

	return 0, errors.New("invalid VINT: leading byte has no marker bit")
}

// ReadElementID decodes the VINT at buf[offset:], preserving the marker bit,
// per the EBML rule that element IDs retain their length marker as part of
// the identifier's canonical value.
func ReadElementID(buf []byte, offset int) (id uint32, width int, err error) {
	if offset < 0 || offset >= len(buf) {
		return 0, 0, errors.New("vint read offset out of range")
	}

	width, err = vintWidth(buf[offset])
	if err != nil {
		return 0, 0, err
	}

	if offset+width > len(buf) {
		return 0, 0, errors.Newf("buffer too short for %d-byte element ID", width)
	}

	var result uint64
	for i := 0; i < width; i++ {
		result = result<<8 | uint64(buf[offset+i])
	}

	return uint32(result), width, nil
}

// ReadDataSize decodes the VINT at buf[offset:], masking out the marker bit.
// If every remaining value bit across all width bytes is set, it returns
// UnknownDataSize.
func ReadDataSize(buf []byte, offset int) (size int64, width int, err error) {
	if offset < 0 || offset >= len(buf) {
		return 0, 0, errors.New("vint read offset out of range")
	}

	width, err = vintWidth(buf[offset])
	if err != nil {
		return 0, 0, err
	}

	if offset+width > len(buf) {
		return 0, 0, errors.Newf("buffer too short for %d-byte data size", width)
	}

	lengthMask := byte(0x80) >> uint(width-1)

	result := uint64(buf[offset]) &^ uint64(lengthMask)
	allOnes := result == uint64(lengthMask-1)

	for i := 1; i < width; i++ {
		b := buf[offset+i]
		result = result<<8 | uint64(b)
		allOnes = allOnes && b == 0xFF
	}

	if allOnes {
		return UnknownDataSize, width, nil
	}

	return int64(result), width, nil
}

// EncodeDataSize writes V as a data-size VINT of exactly width bytes,
// setting the width marker bit and rejecting the all-ones value (reserved
// for unknown size) so ReadDataSize round-trips it. It
// exists for tests that exercise the codec's round-trip property; the
// production pipeline only ever decodes sizes, never encodes them.
func EncodeDataSize(value uint64, width int) ([]byte, error) {
	if width < 1 || width > 8 {
		return nil, errors.Newf("invalid VINT width %d", width)
	}

	maxValue := uint64(1)<<(uint(width)*7) - 2
	if value > maxValue {
		return nil, errors.Newf("value %d does not fit in a %d-byte data size VINT", value, width)
	}

	buf := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		buf[i] = byte(value)
		value >>= 8
	}

	buf[0] |= byte(0x80) >> uint(width-1)

	return buf, nil
}
