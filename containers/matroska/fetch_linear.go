package matroska

import (
	"context"
	"math"

	"github.com/cockroachdb/errors"
)

// blockPeekBytes is how much of a SimpleBlock's data the linear scanner
// reads before deciding whether to fetch the whole element: enough for the
// widest (8-byte) track-number VINT, the only field read from the peek.
const blockPeekBytes = 8

// groupPeekBytes is how much of a BlockGroup's data the linear scanner
// reads looking for the inner Block's header and track number before
// committing to a full fetch.
const groupPeekBytes = 32

// ScanClustersLinear walks clusters from startOffset to segmentEnd,
// extracting every SimpleBlock/Block belonging to a subtitle track. It is
// the fallback path used when no wanted track has a Cue entry (including
// files with no Cue index). Clusters whose Cue entries lack relative
// positions are walked one at a time by scanCluster from FetchTargeted.
func ScanClustersLinear(ctx context.Context, src RangeSource, startOffset, segmentEnd int64, timestampScale int64, wantTrack func(uint64) bool) ([]SubtitleBlock, error) {
	var blocks []SubtitleBlock

	pos := startOffset

	for pos < segmentEnd {
		probe, probeErr := src.ReadRange(ctx, pos, 16)
		if probeErr != nil {
			return nil, errors.Wrap(probeErr, "failed to probe element while scanning clusters")
		}

		if len(probe) == 0 {
			break
		}

		header, headerErr := ParseElementHeader(probe, 0, pos)
		if headerErr != nil {
			break
		}

		if header.ID != ElementCluster {
			// A non-Cluster top-level element between clusters (Cues, Tags,
			// ...): skip it if its size is known, otherwise stop, matching
			// the EBML "no heuristic repair" policy.
			if header.UnknownSize {
				break
			}

			pos = header.EndOffset()

			continue
		}

		clusterBlocks, nextPos, scanErr := scanCluster(ctx, src, header, segmentEnd, timestampScale, wantTrack)
		if scanErr != nil {
			return nil, scanErr
		}

		blocks = append(blocks, clusterBlocks...)
		pos = nextPos
	}

	return blocks, nil
}

func scanCluster(ctx context.Context, src RangeSource, cluster ElementHeader, segmentEnd int64, timestampScale int64, wantTrack func(uint64) bool) ([]SubtitleBlock, int64, error) {
	var blocks []SubtitleBlock

	clusterTimestamp := int64(0)
	pos := cluster.DataOffset

	limit := segmentEnd
	if !cluster.UnknownSize {
		limit = cluster.EndOffset()
	}

	for pos < limit {
		probe, probeErr := src.ReadRange(ctx, pos, 16)
		if probeErr != nil {
			return blocks, pos, errors.Wrap(probeErr, "failed to probe cluster child")
		}

		if len(probe) == 0 {
			return blocks, pos, nil
		}

		child, childErr := ParseElementHeader(probe, 0, pos)
		if childErr != nil {
			return blocks, pos, nil
		}

		if cluster.UnknownSize && isSegmentTopLevelID(child.ID) {
			// Sentinel: an unknown-size Cluster ends the instant we see
			// another Segment-level element ID — it cannot legally be a
			// Cluster child.
			return blocks, pos, nil
		}

		if child.UnknownSize {
			return blocks, pos, nil
		}

		switch child.ID {
		case ElementTimecode:
			data, fetchErr := fetchRange(ctx, src, child.DataOffset, child.DataSize)
			if fetchErr != nil {
				return blocks, pos, fetchErr
			}

			clusterTimestamp = int64(ReadUint(data))
		case ElementSimpleBlock:
			block, blockErr := readSimpleBlock(ctx, src, child, clusterTimestamp, timestampScale, wantTrack)
			if blockErr != nil {
				return blocks, pos, blockErr
			}

			if block != nil {
				blocks = append(blocks, *block)
			}
		case ElementBlockGroup:
			block, blockErr := readBlockGroup(ctx, src, child, clusterTimestamp, timestampScale, wantTrack)
			if blockErr != nil {
				return blocks, pos, blockErr
			}

			if block != nil {
				blocks = append(blocks, *block)
			}
		}

		pos = child.EndOffset()
	}

	return blocks, pos, nil
}

func readSimpleBlock(ctx context.Context, src RangeSource, element ElementHeader, clusterTimestamp int64, timestampScale int64, wantTrack func(uint64) bool) (*SubtitleBlock, error) {
	peekLen := element.DataSize
	if peekLen > blockPeekBytes {
		peekLen = blockPeekBytes
	}

	peek, peekErr := src.ReadRange(ctx, element.DataOffset, peekLen)
	if peekErr != nil {
		return nil, errors.Wrap(peekErr, "failed to peek SimpleBlock")
	}

	trackNumber, _, trackErr := ReadDataSize(peek, 0)
	if trackErr != nil {
		return nil, errors.Wrap(trackErr, "failed to read SimpleBlock track number")
	}

	if !wantTrack(uint64(trackNumber)) {
		return nil, nil
	}

	data, fetchErr := fetchRange(ctx, src, element.DataOffset, element.DataSize)
	if fetchErr != nil {
		return nil, fetchErr
	}

	header, parseErr := parseBlockHeader(data)
	if parseErr != nil {
		return nil, errors.Wrap(parseErr, "failed to parse SimpleBlock header")
	}

	if header.isLaced() {
		return nil, errors.Wrap(ErrLacedSubtitleBlock, "SimpleBlock")
	}

	timestampMs := scaleTimestamp(clusterTimestamp+int64(header.relativeTimeMs), timestampScale)

	return &SubtitleBlock{
		TrackNumber: header.trackNumber,
		TimestampMs: timestampMs,
		Payload:     append([]byte(nil), header.payload(data)...),
	}, nil
}

func readBlockGroup(ctx context.Context, src RangeSource, group ElementHeader, clusterTimestamp int64, timestampScale int64, wantTrack func(uint64) bool) (*SubtitleBlock, error) {
	peekLen := group.DataSize
	if peekLen > groupPeekBytes {
		peekLen = groupPeekBytes
	}

	peek, peekErr := src.ReadRange(ctx, group.DataOffset, peekLen)
	if peekErr != nil {
		return nil, errors.Wrap(peekErr, "failed to peek BlockGroup")
	}

	if blockHead, ok := peekBlockGroupTrack(peek, group.DataOffset); ok && !wantTrack(blockHead) {
		return nil, nil
	}

	body, fetchErr := fetchRange(ctx, src, group.DataOffset, group.DataSize)
	if fetchErr != nil {
		return nil, fetchErr
	}

	var block *SubtitleBlock
	var durationMs *int64
	var additions []byte

	for child := range ChildElements(body, group.DataOffset, group.DataSize) {
		data := sliceFrom(body, group.DataOffset, child)

		switch child.ID {
		case ElementBlock:
			header, parseErr := parseBlockHeader(data)
			if parseErr != nil {
				return nil, errors.Wrap(parseErr, "failed to parse Block header")
			}

			if !wantTrack(header.trackNumber) {
				return nil, nil
			}

			if header.isLaced() {
				return nil, errors.Wrap(ErrLacedSubtitleBlock, "Block")
			}

			timestampMs := scaleTimestamp(clusterTimestamp+int64(header.relativeTimeMs), timestampScale)
			block = &SubtitleBlock{
				TrackNumber: header.trackNumber,
				TimestampMs: timestampMs,
				Payload:     append([]byte(nil), header.payload(data)...),
			}
		case ElementBlockDuration:
			d := scaleTimestamp(int64(ReadUint(data)), timestampScale)
			durationMs = &d
		case ElementBlockAdditions:
			additions = extractBlockAdditional(body, group.DataOffset, child)
		}
	}

	if block == nil {
		return nil, nil
	}

	block.DurationMs = durationMs
	block.BlockAdditions = additions

	return block, nil
}

func extractBlockAdditional(body []byte, bodyBase int64, additions ElementHeader) []byte {
	for more := range ChildElements(body[additions.DataOffset-bodyBase:], additions.DataOffset, additions.DataSize) {
		if more.ID != ElementBlockMore {
			continue
		}

		for child := range ChildElements(body[more.DataOffset-bodyBase:], more.DataOffset, more.DataSize) {
			if child.ID == ElementBlockAdditional {
				return append([]byte(nil), sliceFrom(body, bodyBase, child)...)
			}
		}
	}

	return nil
}

// peekBlockGroupTrack tries to read the inner Block's track number from a
// short peek of a BlockGroup's data, assuming Block is the first child (the
// common muxer layout). It reports ok=false when the peek doesn't cover
// enough to decide, in which case the caller must fetch the whole group.
func peekBlockGroupTrack(peek []byte, peekBase int64) (uint64, bool) {
	header, err := ParseElementHeader(peek, 0, peekBase)
	if err != nil || header.ID != ElementBlock {
		return 0, false
	}

	trackOffset := int(header.DataOffset - peekBase)
	if trackOffset >= len(peek) {
		return 0, false
	}

	trackNumber, _, trackErr := ReadDataSize(peek, trackOffset)
	if trackErr != nil {
		return 0, false
	}

	return uint64(trackNumber), true
}

func fetchRange(ctx context.Context, src RangeSource, offset, length int64) ([]byte, error) {
	data, err := src.ReadRange(ctx, offset, length)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read range %d-%d", offset, offset+length)
	}

	return data, nil
}

func scaleTimestamp(rawUnits int64, timestampScale int64) int64 {
	return int64(math.Round(float64(rawUnits) * float64(timestampScale) / 1_000_000.0))
}
