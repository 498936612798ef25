package matroska

import (
	"context"

	"github.com/cockroachdb/errors"
)

// CueEntry is one CueTrackPositions record: a (time, track) pair with the
// cluster it falls in and, when the muxer wrote one, the block's exact
// byte offset within that cluster.
type CueEntry struct {
	Time            uint64 // raw timestamp units
	Track           uint64
	ClusterPosition int64  // relative to Segment data start
	RelativePos     *int64 // relative to the cluster's data start, when present
}

// ParseCues fetches the Cues element at offset and returns one CueEntry per
// CueTrackPositions child across every CuePoint, in file order.
func ParseCues(ctx context.Context, src RangeSource, offset int64) ([]CueEntry, error) {
	header, body, fetchErr := FetchElement(ctx, src, offset)
	if fetchErr != nil {
		return nil, errors.Wrap(fetchErr, "failed to fetch Cues element")
	}

	if header.ID != ElementCues {
		return nil, errors.Wrap(ErrMKVParse, "missing Cues element")
	}

	var entries []CueEntry

	for point := range ChildElements(body, header.DataOffset, header.DataSize) {
		if point.ID != ElementCuePoint {
			continue
		}

		entries = append(entries, parseCuePoint(body, header.DataOffset, point)...)
	}

	return entries, nil
}

func parseCuePoint(body []byte, bodyBase int64, point ElementHeader) []CueEntry {
	var cueTime uint64
	var entries []CueEntry

	for child := range ChildElements(body[point.DataOffset-bodyBase:], point.DataOffset, point.DataSize) {
		switch child.ID {
		case ElementCueTime:
			cueTime = ReadUint(sliceFrom(body, bodyBase, child))
		case ElementCueTrackPositions:
			entries = append(entries, parseCueTrackPositions(body, bodyBase, child))
		}
	}

	for i := range entries {
		entries[i].Time = cueTime
	}

	return entries
}

func parseCueTrackPositions(body []byte, bodyBase int64, positions ElementHeader) CueEntry {
	entry := CueEntry{}

	for child := range ChildElements(body[positions.DataOffset-bodyBase:], positions.DataOffset, positions.DataSize) {
		value := sliceFrom(body, bodyBase, child)

		switch child.ID {
		case ElementCueTrack:
			entry.Track = ReadUint(value)
		case ElementCueClusterPos:
			entry.ClusterPosition = int64(ReadUint(value))
		case ElementCueRelativePos:
			relativePos := int64(ReadUint(value))
			entry.RelativePos = &relativePos
		}
	}

	return entry
}
