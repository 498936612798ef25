package matroska

import (
	"context"

	"github.com/cockroachdb/errors"
)

// defaultTimestampScale is the scale (nanoseconds per raw timestamp unit)
// assumed when Info carries no TimestampScale element: one millisecond.
const defaultTimestampScale = 1_000_000

// ErrMKVParse reports a structural violation severe enough that the
// extraction cannot proceed: a missing EBML header, a missing Segment, or
// missing Tracks. It is also returned when an element reached through the
// SeekHead or Cue index is not the expected element or declares an unknown
// size. A malformed child inside an element is handled by the EBML
// parser's "stop iteration, keep what was parsed" policy and does not
// produce this error.
var ErrMKVParse = errors.New("malformed Matroska structure")

// SeekEntry is one SeekHead → Seek child, giving the byte position (relative
// to the Segment's data start) of another Segment-level element.
type SeekEntry struct {
	ElementID ElementID
	Position  int64
}

// SegmentIndex is everything the orchestrator needs to locate Tracks,
// Attachments, Cues, and the first Cluster without a linear scan, plus the
// timestamp scale needed to convert raw block timestamps to milliseconds.
type SegmentIndex struct {
	DataOffset         int64
	DataSize           int64
	TimestampScale     int64
	Seeks              []SeekEntry
	FirstClusterOffset int64 // absolute file offset; -1 if not found during the scan
}

// Find returns the absolute file offset of the Segment-relative position
// recorded for id, if SeekHead carries one.
func (s *SegmentIndex) Find(id ElementID) (int64, bool) {
	for _, seek := range s.Seeks {
		if seek.ElementID == id {
			return s.DataOffset + seek.Position, true
		}
	}

	return 0, false
}

// ParseSegment reads the leading initialProbeBytes of src (already cached
// from source initialization), validates the EBML header and Segment
// framing, then scans Segment-level children up to (but not into) the
// first Cluster, collecting SeekHead entries and Info.
func ParseSegment(ctx context.Context, src RangeSource) (*SegmentIndex, error) {
	buf, readErr := src.ReadRange(ctx, 0, initialProbeBytes)
	if readErr != nil {
		return nil, errors.Wrap(readErr, "failed to read Matroska header")
	}

	headerElement, headerErr := ParseElementHeader(buf, 0, 0)
	if headerErr != nil || headerElement.ID != ElementEbml || headerElement.UnknownSize {
		return nil, errors.Wrap(ErrMKVParse, "missing EBML header")
	}

	segmentLocal := int(headerElement.EndOffset())
	if segmentLocal >= len(buf) {
		return nil, errors.Wrap(ErrMKVParse, "Segment header not within initial read")
	}

	segmentElement, segmentErr := ParseElementHeader(buf, segmentLocal, 0)
	if segmentErr != nil || segmentElement.ID != ElementSegment {
		return nil, errors.Wrap(ErrMKVParse, "missing Segment element")
	}

	dataSize := segmentElement.DataSize
	if segmentElement.UnknownSize {
		dataSize = src.Size() - segmentElement.DataOffset
	}

	index := &SegmentIndex{
		DataOffset:         segmentElement.DataOffset,
		DataSize:           dataSize,
		TimestampScale:     defaultTimestampScale,
		FirstClusterOffset: -1,
	}

	localDataOffset := int(segmentElement.DataOffset)
	if localDataOffset >= len(buf) {
		// Segment's own children weren't part of the initial read; nothing
		// more to scan without another fetch, which the caller can issue by
		// locating elements through SeekHead once parsed elsewhere.
		return index, nil
	}

	for header := range ChildElements(buf[localDataOffset:], segmentElement.DataOffset, dataSize) {
		switch header.ID {
		case ElementSeekHead:
			index.Seeks = append(index.Seeks, parseSeekHead(buf, header)...)
		case ElementInfo:
			index.TimestampScale = parseInfoTimestampScale(buf, header)
		case ElementTracks, ElementAttachments, ElementCues:
			// Recorded opportunistically even without a SeekHead entry: most
			// muxers place these before the first Cluster, so this scan (already
			// walking that range to find SeekHead/Info) doubles as the linear
			// fallback locator when SeekHead is missing or incomplete.
			index.Seeks = append(index.Seeks, SeekEntry{ElementID: header.ID, Position: header.HeaderOffset - segmentElement.DataOffset})
		case ElementCluster:
			index.FirstClusterOffset = header.HeaderOffset

			return index, nil
		}
	}

	return index, nil
}

func parseSeekHead(buf []byte, seekHead ElementHeader) []SeekEntry {
	localStart := int(seekHead.DataOffset)
	if localStart > len(buf) {
		return nil
	}

	var entries []SeekEntry

	for seek := range ChildElements(buf[localStart:], seekHead.DataOffset, seekHead.DataSize) {
		if seek.ID != ElementSeek {
			continue
		}

		var entry SeekEntry
		seekLocalStart := int(seek.DataOffset)

		for child := range ChildElements(buf[seekLocalStart:], seek.DataOffset, seek.DataSize) {
			data := childData(buf, child)

			switch child.ID {
			case ElementSeekID:
				entry.ElementID = ElementID(ReadUint(data))
			case ElementSeekPos:
				entry.Position = int64(ReadUint(data))
			}
		}

		entries = append(entries, entry)
	}

	return entries
}

func parseInfoTimestampScale(buf []byte, info ElementHeader) int64 {
	localStart := int(info.DataOffset)
	if localStart > len(buf) {
		return defaultTimestampScale
	}

	for child := range ChildElements(buf[localStart:], info.DataOffset, info.DataSize) {
		if child.ID == ElementTimecodeScale {
			return int64(ReadUint(childData(buf, child)))
		}
	}

	return defaultTimestampScale
}

// childData slices out a child element's data from buf, given that buf[0]
// corresponds to file offset 0 relative to the same base the element's
// offsets were computed against (true for every buffer this package reads
// a parent's children from in one shot).
func childData(buf []byte, h ElementHeader) []byte {
	start := h.DataOffset
	end := h.EndOffset()
	if start < 0 || end > int64(len(buf)) || start > end {
		return nil
	}

	return buf[start:end]
}
