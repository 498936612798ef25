// Package mkvsubtract extracts subtitle tracks and their embedded font
// attachments from a remote Matroska (MKV) file addressed by URL,
// downloading only the byte ranges required via HTTP Range requests.
package mkvsubtract

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/ristryder/mkvsubtract/containers/matroska"
	"github.com/ristryder/mkvsubtract/subtitles"
)

// Extract downloads only the byte ranges required to reconstruct every
// subtitle track (and, for ASS/SSA, the embedded fonts) from the MKV file
// at sourceURL. sourceURL may use the file:// scheme, read via an
// mmap-backed local source; any other scheme is fetched over HTTP(S) with
// Range requests.
func Extract(ctx context.Context, sourceURL string, opts Options) ([]TrackResult, error) {
	logger := effectiveLogger(opts)

	src, openErr := openRangeSource(ctx, sourceURL, opts, logger)
	if openErr != nil {
		return nil, openErr
	}

	if closer, ok := src.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	segment, segmentErr := matroska.ParseSegment(ctx, src)
	if segmentErr != nil {
		return nil, segmentErr
	}

	tracksOffset, hasTracks := segment.Find(matroska.ElementTracks)
	if !hasTracks {
		return nil, errors.Wrap(matroska.ErrMKVParse, "missing Tracks")
	}

	allTracks, tracksErr := matroska.ParseTracks(ctx, src, tracksOffset)
	if tracksErr != nil {
		return nil, tracksErr
	}

	tracks := filterTracksByLanguage(allTracks, opts.Languages)
	if len(tracks) == 0 {
		return []TrackResult{}, nil
	}

	wantedTrackNumbers := make(map[uint64]bool, len(tracks))
	trackByNumber := make(map[uint64]matroska.SubtitleTrackInfo, len(tracks))

	for _, track := range tracks {
		wantedTrackNumbers[track.TrackNumber] = true
		trackByNumber[track.TrackNumber] = track
	}

	fonts, fontsErr := fetchFonts(ctx, src, segment)
	if fontsErr != nil {
		return nil, fontsErr
	}

	blocks, fetchErr := fetchBlocks(ctx, src, segment, wantedTrackNumbers, opts, logger)
	if fetchErr != nil {
		return nil, fetchErr
	}

	return assembleResults(tracks, trackByNumber, blocks, fonts)
}

func openRangeSource(ctx context.Context, sourceURL string, opts Options, logger Logger) (matroska.RangeSource, error) {
	if path, isLocal := strings.CutPrefix(sourceURL, "file://"); isLocal {
		return matroska.NewLocalFileRangeSource(path)
	}

	return matroska.NewHTTPRangeSource(ctx, sourceURL, opts.HTTPDoer, opts.Headers, opts.AllowFullDownload, logger)
}

func effectiveLogger(opts Options) Logger {
	if !opts.Verbose {
		return nil
	}

	return opts.Logger
}

func filterTracksByLanguage(tracks []matroska.SubtitleTrackInfo, languages []string) []matroska.SubtitleTrackInfo {
	if len(languages) == 0 {
		return tracks
	}

	var filtered []matroska.SubtitleTrackInfo

	for _, track := range tracks {
		if matroska.LanguageMatches(track.Language, languages) {
			filtered = append(filtered, track)
		}
	}

	return filtered
}

func fetchFonts(ctx context.Context, src matroska.RangeSource, segment *matroska.SegmentIndex) ([]Font, error) {
	attachmentsOffset, hasAttachments := segment.Find(matroska.ElementAttachments)
	if !hasAttachments {
		return nil, nil
	}

	parsed, parseErr := matroska.ParseAttachments(ctx, src, attachmentsOffset)
	if parseErr != nil {
		return nil, parseErr
	}

	if len(parsed) == 0 {
		return nil, nil
	}

	fonts := make([]Font, len(parsed))
	for i, font := range parsed {
		fonts[i] = Font{Name: font.Name, Data: font.Data}
	}

	return fonts, nil
}

// fetchBlocks chooses between the targeted, Cue-driven fetcher and the
// linear cluster scan: targeted fetch runs whenever at least one surviving
// subtitle track has a Cue entry, and the linear scan runs only when none
// does (including files with no Cue index at all). In targeted mode a
// surviving track with no Cue entries of its own yields no blocks.
func fetchBlocks(ctx context.Context, src matroska.RangeSource, segment *matroska.SegmentIndex, wantedTrackNumbers map[uint64]bool, opts Options, logger Logger) ([]matroska.SubtitleBlock, error) {
	var filteredCues []matroska.CueEntry

	if cuesOffset, hasCues := segment.Find(matroska.ElementCues); hasCues {
		cues, cuesErr := matroska.ParseCues(ctx, src, cuesOffset)
		if cuesErr != nil {
			return nil, cuesErr
		}

		for _, cue := range cues {
			if wantedTrackNumbers[cue.Track] {
				filteredCues = append(filteredCues, cue)
			}
		}
	}

	if len(filteredCues) > 0 {
		concurrency := opts.Concurrency
		if concurrency < 1 {
			concurrency = 1
		}

		return matroska.FetchTargeted(ctx, src, segment, filteredCues, concurrency, logger)
	}

	startOffset := segment.FirstClusterOffset
	if startOffset < 0 {
		if offset, hasCluster := segment.Find(matroska.ElementCluster); hasCluster {
			startOffset = offset
		} else {
			startOffset = segment.DataOffset
		}
	}

	segmentEnd := segment.DataOffset + segment.DataSize
	wantTrack := func(track uint64) bool { return wantedTrackNumbers[track] }

	return matroska.ScanClustersLinear(ctx, src, startOffset, segmentEnd, segment.TimestampScale, wantTrack)
}

func assembleResults(tracks []matroska.SubtitleTrackInfo, trackByNumber map[uint64]matroska.SubtitleTrackInfo, blocks []matroska.SubtitleBlock, fonts []Font) ([]TrackResult, error) {
	blocksByTrack := make(map[uint64][]matroska.SubtitleBlock)

	for _, block := range blocks {
		track, known := trackByNumber[block.TrackNumber]
		if !known {
			continue
		}

		decoded, decodeErr := matroska.DecodePayload(block.Payload, track)
		if decodeErr != nil {
			return nil, decodeErr
		}

		block.Payload = decoded
		blocksByTrack[block.TrackNumber] = append(blocksByTrack[block.TrackNumber], block)
	}

	results := make([]TrackResult, 0, len(tracks))

	for _, track := range tracks {
		format := track.Format()
		trackBlocks := blocksByTrack[track.TrackNumber]

		var subtitle []byte
		var trackFonts []Font

		switch format {
		case "ass", "ssa":
			subtitle = subtitles.AssembleASS(track.CodecPrivate, trackBlocks)
			trackFonts = fonts
		case "vtt":
			subtitle = subtitles.AssembleVTT(track.CodecPrivate, trackBlocks)
		default:
			subtitle = subtitles.AssembleSRT(trackBlocks)
		}

		results = append(results, TrackResult{
			Format: format,
			Metadata: TrackMetadata{
				TrackNumber: track.TrackNumber,
				Language:    track.Language,
				TrackName:   track.Name,
			},
			Subtitle: subtitle,
			Fonts:    trackFonts,
		})
	}

	return results, nil
}
