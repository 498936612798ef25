package matroska

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
)

// directTargetBatchMinBytes and directTargetBatchMaxBytes bound the
// adaptive gap threshold used to group direct-target reads into batches:
// gaps up to 32KiB are always merged into one read, and no gap wider than
// 2MiB is ever merged. Once the median gap itself reaches 2MiB the
// threshold is the fixed directTargetBatchWideGap instead.
const (
	directTargetBatchMinBytes = 32 * 1024
	directTargetBatchMaxBytes = 2 * 1024 * 1024
	directTargetBatchWideGap  = 128 * 1024
	targetTailPaddingBytes    = 4 * 1024
)

// uncachedRangeSource is implemented by sources whose ReadRange shares
// mutable cache state across calls, exposing a bypass safe to call
// concurrently from the worker pool.
type uncachedRangeSource interface {
	ReadRangeUncached(ctx context.Context, offset, length int64) ([]byte, error)
}

// directTarget is one Cue entry whose block's absolute file offset is
// already known, so it can be batched into a bulk read instead of walked
// to by a linear cluster scan.
type directTarget struct {
	filePosition int64
	cue          CueEntry
}

type targetBatch struct {
	targets []directTarget
}

// FetchTargeted extracts subtitle blocks using the Cue index rather than a
// full linear scan: Cue entries that carry a CueRelativePosition resolve
// directly to a file offset and are read in coalesced batches, while
// clusters where any entry is missing one fall back to a linear walk of
// that cluster only (scanCluster, via scanFallbackCluster). Blocks are returned sorted by timestamp regardless
// of which path produced them.
func FetchTargeted(ctx context.Context, src RangeSource, segment *SegmentIndex, cues []CueEntry, concurrency int, logger Logger) ([]SubtitleBlock, error) {
	logger = orNopLogger(logger)

	if len(cues) == 0 {
		return nil, nil
	}

	byCluster := make(map[int64][]CueEntry)
	for _, cue := range cues {
		byCluster[cue.ClusterPosition] = append(byCluster[cue.ClusterPosition], cue)
	}

	clusterHeaderWidth, probeErr := probeClusterHeaderWidth(ctx, src, segment, cues)
	if probeErr != nil {
		return nil, probeErr
	}

	var directTargets []directTarget
	var fallbackClusters []int64

	for clusterPos, entries := range byCluster {
		if clusterHasAllPositions(entries) {
			for _, entry := range entries {
				filePosition := segment.DataOffset + clusterPos + clusterHeaderWidth + *entry.RelativePos
				directTargets = append(directTargets, directTarget{filePosition: filePosition, cue: entry})
			}
		} else {
			fallbackClusters = append(fallbackClusters, clusterPos)
		}
	}

	sort.Slice(directTargets, func(i, j int) bool { return directTargets[i].filePosition < directTargets[j].filePosition })
	sort.Slice(fallbackClusters, func(i, j int) bool { return fallbackClusters[i] < fallbackClusters[j] })

	logger.Debug("targeted fetch plan", "directTargets", len(directTargets), "fallbackClusters", len(fallbackClusters))

	blocks, batchErr := fetchDirectTargets(ctx, src, segment.TimestampScale, directTargets, concurrency)
	if batchErr != nil {
		return nil, batchErr
	}

	segmentEnd := segment.DataOffset + segment.DataSize

	for _, clusterPos := range fallbackClusters {
		clusterBlocks, scanErr := scanFallbackCluster(ctx, src, segment, clusterPos, segmentEnd, byCluster[clusterPos])
		if scanErr != nil {
			return nil, scanErr
		}

		blocks = append(blocks, clusterBlocks...)
	}

	sort.Slice(blocks, func(i, j int) bool { return blocks[i].TimestampMs < blocks[j].TimestampMs })

	return blocks, nil
}

func clusterHasAllPositions(entries []CueEntry) bool {
	for _, entry := range entries {
		if entry.RelativePos == nil {
			return false
		}
	}

	return true
}

// probeClusterHeaderWidth fetches the Cluster element header at the
// earliest indexed cluster position and returns the width (ID plus size
// VINT) shared by every Cluster in the file, which every other direct
// target's absolute offset is computed from without probing again.
func probeClusterHeaderWidth(ctx context.Context, src RangeSource, segment *SegmentIndex, cues []CueEntry) (int64, error) {
	minClusterPos := cues[0].ClusterPosition
	for _, cue := range cues {
		if cue.ClusterPosition < minClusterPos {
			minClusterPos = cue.ClusterPosition
		}
	}

	abs := segment.DataOffset + minClusterPos

	probe, readErr := src.ReadRange(ctx, abs, 16)
	if readErr != nil {
		return 0, errors.Wrap(readErr, "failed to probe indexed cluster")
	}

	header, parseErr := ParseElementHeader(probe, 0, abs)
	if parseErr != nil {
		return 0, errors.Wrap(parseErr, "failed to parse indexed cluster header")
	}

	if header.ID != ElementCluster {
		return 0, errors.Wrap(ErrMKVParse, "Cue points at a non-Cluster element")
	}

	return header.DataOffset - header.HeaderOffset, nil
}

func fetchDirectTargets(ctx context.Context, src RangeSource, timestampScale int64, targets []directTarget, concurrency int) ([]SubtitleBlock, error) {
	if len(targets) == 0 {
		return nil, nil
	}

	batches := groupTargetsIntoBatches(targets)

	uncached, canBypassCache := src.(uncachedRangeSource)

	fetch := func(ctx context.Context, batch targetBatch) ([]SubtitleBlock, error) {
		return fetchBatch(ctx, src, timestampScale, batch, canBypassCache, uncached)
	}

	if concurrency <= 1 || len(batches) == 1 {
		var blocks []SubtitleBlock

		for _, batch := range batches {
			batchBlocks, err := fetch(ctx, batch)
			if err != nil {
				return nil, err
			}

			blocks = append(blocks, batchBlocks...)
		}

		return blocks, nil
	}

	results, err := runBatches(ctx, concurrency, batches, fetch)
	if err != nil {
		return nil, err
	}

	var blocks []SubtitleBlock
	for _, batchBlocks := range results {
		blocks = append(blocks, batchBlocks...)
	}

	return blocks, nil
}

// groupTargetsIntoBatches splits targets (already sorted by file position)
// into runs separated by a gap wider than an adaptive threshold derived
// from the median gap across the whole set: below a 2MiB median the
// threshold is twice the median, clamped to [32KiB, 2MiB]; at or above it
// the threshold drops to 128KiB, so widely spaced targets are merged only
// when two happen to sit close together.
func groupTargetsIntoBatches(targets []directTarget) []targetBatch {
	threshold := adaptiveBatchThreshold(targets)

	batches := []targetBatch{{targets: []directTarget{targets[0]}}}

	for i := 1; i < len(targets); i++ {
		gap := targets[i].filePosition - targets[i-1].filePosition

		if gap > threshold {
			batches = append(batches, targetBatch{})
		}

		last := &batches[len(batches)-1]
		last.targets = append(last.targets, targets[i])
	}

	return batches
}

func adaptiveBatchThreshold(targets []directTarget) int64 {
	if len(targets) < 2 {
		return directTargetBatchMinBytes
	}

	gaps := make([]int64, len(targets)-1)
	for i := 1; i < len(targets); i++ {
		gaps[i-1] = targets[i].filePosition - targets[i-1].filePosition
	}

	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })

	median := gaps[len(gaps)/2]
	if len(gaps)%2 == 0 {
		median = (gaps[len(gaps)/2-1] + gaps[len(gaps)/2]) / 2
	}

	if median >= directTargetBatchMaxBytes {
		return directTargetBatchWideGap
	}

	return clampInt64(2*median, directTargetBatchMinBytes, directTargetBatchMaxBytes)
}

func clampInt64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}

	return v
}

// fetchBatch reads one contiguous range covering every target in the batch
// plus a tail pad for the last element's header and data, then decodes each
// target from that single buffer. A target whose element overruns the
// batch buffer (the tail pad guessed too small) falls back to an individual
// range read sized exactly to that element.
func fetchBatch(ctx context.Context, src RangeSource, timestampScale int64, batch targetBatch, canBypassCache bool, uncached uncachedRangeSource) ([]SubtitleBlock, error) {
	first := batch.targets[0].filePosition
	last := batch.targets[len(batch.targets)-1].filePosition
	length := last - first + targetTailPaddingBytes

	var buf []byte
	var readErr error

	if canBypassCache {
		buf, readErr = uncached.ReadRangeUncached(ctx, first, length)
	} else {
		buf, readErr = src.ReadRange(ctx, first, length)
	}

	if readErr != nil {
		return nil, errors.Wrapf(readErr, "failed to read batch range %d-%d", first, first+length)
	}

	var blocks []SubtitleBlock

	for _, target := range batch.targets {
		block, decodeErr := decodeDirectTarget(ctx, src, buf, first, target, timestampScale)
		if decodeErr != nil {
			return nil, decodeErr
		}

		if block != nil {
			blocks = append(blocks, *block)
		}
	}

	return blocks, nil
}

func decodeDirectTarget(ctx context.Context, src RangeSource, buf []byte, bufBase int64, target directTarget, timestampScale int64) (*SubtitleBlock, error) {
	localOffset := int(target.filePosition - bufBase)
	if localOffset < 0 || localOffset >= len(buf) {
		return fetchIndividualTarget(ctx, src, target, timestampScale)
	}

	header, parseErr := ParseElementHeader(buf, localOffset, bufBase)
	if parseErr != nil {
		return nil, errors.Wrap(parseErr, "failed to parse targeted block header")
	}

	if header.UnknownSize {
		return nil, errors.Wrap(ErrMKVParse, "Cue points at an unknown-size element")
	}

	absoluteTimestampMs := scaleTimestamp(int64(target.cue.Time), timestampScale)

	end := int(header.EndOffset() - bufBase)
	if end <= len(buf) {
		data := buf[header.DataOffset-bufBase : end]

		return decodeBlockFromBuffer(header, data, absoluteTimestampMs, target.cue.Track, timestampScale)
	}

	data, fetchErr := fetchRange(ctx, src, header.DataOffset, header.DataSize)
	if fetchErr != nil {
		return nil, fetchErr
	}

	return decodeBlockFromBuffer(header, data, absoluteTimestampMs, target.cue.Track, timestampScale)
}

// fetchIndividualTarget handles the rare case where a target's file
// position itself isn't covered by its batch's buffer (only possible if
// the batching logic above changes); it re-probes the element from
// scratch with its own pair of range reads.
func fetchIndividualTarget(ctx context.Context, src RangeSource, target directTarget, timestampScale int64) (*SubtitleBlock, error) {
	header, body, fetchErr := FetchElement(ctx, src, target.filePosition)
	if fetchErr != nil {
		return nil, errors.Wrap(fetchErr, "failed to fetch targeted block individually")
	}

	absoluteTimestampMs := scaleTimestamp(int64(target.cue.Time), timestampScale)

	return decodeBlockFromBuffer(header, body, absoluteTimestampMs, target.cue.Track, timestampScale)
}

// decodeBlockFromBuffer decodes a SimpleBlock or BlockGroup whose data is
// already resident in data (data[0] corresponds to header.DataOffset),
// using timestampMs verbatim from the Cue entry rather than the block's own
// relative timestamp: the Cue's time is authoritative in targeted mode, and
// recomputing it from the cluster timestamp would require fetching the
// cluster itself, defeating the point of reading directly to the block.
func decodeBlockFromBuffer(header ElementHeader, data []byte, timestampMs int64, expectedTrack uint64, timestampScale int64) (*SubtitleBlock, error) {
	switch header.ID {
	case ElementSimpleBlock:
		blockHead, parseErr := parseBlockHeader(data)
		if parseErr != nil {
			return nil, errors.Wrap(parseErr, "failed to parse targeted SimpleBlock header")
		}

		if blockHead.trackNumber != expectedTrack {
			return nil, nil
		}

		if blockHead.isLaced() {
			return nil, errors.Wrap(ErrLacedSubtitleBlock, "SimpleBlock")
		}

		return &SubtitleBlock{
			TrackNumber: blockHead.trackNumber,
			TimestampMs: timestampMs,
			Payload:     append([]byte(nil), blockHead.payload(data)...),
		}, nil
	case ElementBlockGroup:
		return decodeBlockGroupFromBuffer(data, header.DataOffset, timestampMs, expectedTrack, timestampScale)
	default:
		return nil, errors.Newf("Cue points at unexpected element id %#x", uint32(header.ID))
	}
}

func decodeBlockGroupFromBuffer(body []byte, bodyBase int64, timestampMs int64, expectedTrack uint64, timestampScale int64) (*SubtitleBlock, error) {
	var block *SubtitleBlock
	var durationMs *int64
	var additions []byte

	for child := range ChildElements(body, bodyBase, int64(len(body))) {
		data := sliceFrom(body, bodyBase, child)

		switch child.ID {
		case ElementBlock:
			blockHead, parseErr := parseBlockHeader(data)
			if parseErr != nil {
				return nil, errors.Wrap(parseErr, "failed to parse targeted Block header")
			}

			if blockHead.trackNumber != expectedTrack {
				return nil, nil
			}

			if blockHead.isLaced() {
				return nil, errors.Wrap(ErrLacedSubtitleBlock, "Block")
			}

			block = &SubtitleBlock{
				TrackNumber: blockHead.trackNumber,
				TimestampMs: timestampMs,
				Payload:     append([]byte(nil), blockHead.payload(data)...),
			}
		case ElementBlockDuration:
			d := scaleTimestamp(int64(ReadUint(data)), timestampScale)
			durationMs = &d
		case ElementBlockAdditions:
			additions = extractBlockAdditional(body, bodyBase, child)
		}
	}

	if block == nil {
		return nil, nil
	}

	block.DurationMs = durationMs
	block.BlockAdditions = additions

	return block, nil
}

func scanFallbackCluster(ctx context.Context, src RangeSource, segment *SegmentIndex, clusterPos int64, segmentEnd int64, entries []CueEntry) ([]SubtitleBlock, error) {
	wantedTracks := make(map[uint64]bool, len(entries))
	for _, entry := range entries {
		wantedTracks[entry.Track] = true
	}

	clusterAbs := segment.DataOffset + clusterPos

	probe, readErr := src.ReadRange(ctx, clusterAbs, 16)
	if readErr != nil {
		return nil, errors.Wrap(readErr, "failed to probe fallback cluster")
	}

	header, parseErr := ParseElementHeader(probe, 0, clusterAbs)
	if parseErr != nil {
		return nil, errors.Wrap(parseErr, "failed to parse fallback cluster header")
	}

	if header.ID != ElementCluster {
		return nil, errors.Wrap(ErrMKVParse, "Cue points at a non-Cluster element")
	}

	blocks, _, scanErr := scanCluster(ctx, src, header, segmentEnd, segment.TimestampScale, func(track uint64) bool { return wantedTracks[track] })

	return blocks, scanErr
}
