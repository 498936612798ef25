package matroska

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/text/language"
)

// SubtitleTrackInfo is the immutable metadata extracted for one subtitle
// TrackEntry.
type SubtitleTrackInfo struct {
	TrackNumber     uint64
	CodecID         string
	CodecPrivate    []byte
	Language        string // empty when absent or "und"
	Name            string
	DefaultDuration uint64

	ContentEncodingType  int
	ContentEncodingScope uint
}

// Format derives the subtitle output format from CodecID. Any codec this
// package doesn't specifically recognize defaults to SRT assembly, per the
// wire-format contract.
func (t SubtitleTrackInfo) Format() string {
	switch t.CodecID {
	case "S_TEXT/ASS":
		return "ass"
	case "S_TEXT/SSA":
		return "ssa"
	case "S_TEXT/WEBVTT":
		return "vtt"
	default:
		return "srt"
	}
}

// IsCompressed reports whether block payloads for this track were encoded
// with zlib compression, per the track's ContentEncoding.
func (t SubtitleTrackInfo) IsCompressed() bool {
	const (
		contentEncodingTypeCompression = 0
		contentEncodingScopeTracks     = 1
	)

	return t.ContentEncodingType == contentEncodingTypeCompression && t.ContentEncodingScope&contentEncodingScopeTracks != 0
}

// FetchElement reads an element header at a known absolute offset, then
// fetches its full data if it wasn't already covered by the header read.
// It is the shared two-fetch pattern behind Tracks, Attachments, and Cues
// parsing: a small header probe locates the element's true data size, and
// only then is the (possibly large) body fetched in a single range read.
func FetchElement(ctx context.Context, src RangeSource, offset int64) (ElementHeader, []byte, error) {
	const headerProbeBytes = 16

	probe, probeErr := src.ReadRange(ctx, offset, headerProbeBytes)
	if probeErr != nil {
		return ElementHeader{}, nil, errors.Wrap(probeErr, "failed to probe element header")
	}

	header, headerErr := ParseElementHeader(probe, 0, offset)
	if headerErr != nil {
		return ElementHeader{}, nil, errors.Wrap(headerErr, "failed to parse element header")
	}

	if header.UnknownSize {
		return header, nil, errors.Wrap(ErrMKVParse, "unexpected unknown-size element")
	}

	headerWidth := header.DataOffset - header.HeaderOffset
	if int64(len(probe)) >= headerWidth+header.DataSize {
		return header, probe[headerWidth : headerWidth+header.DataSize], nil
	}

	body, bodyErr := src.ReadRange(ctx, header.DataOffset, header.DataSize)
	if bodyErr != nil {
		return ElementHeader{}, nil, errors.Wrap(bodyErr, "failed to fetch element body")
	}

	return header, body, nil
}

// ParseTracks fetches the Tracks element at offset and returns every
// subtitle TrackEntry it contains, in file order.
func ParseTracks(ctx context.Context, src RangeSource, offset int64) ([]SubtitleTrackInfo, error) {
	tracksHeader, body, fetchErr := FetchElement(ctx, src, offset)
	if fetchErr != nil {
		return nil, errors.Wrap(fetchErr, "failed to fetch Tracks element")
	}

	if tracksHeader.ID != ElementTracks {
		return nil, errors.Wrap(ErrMKVParse, "missing Tracks element")
	}

	var tracks []SubtitleTrackInfo

	for entry := range ChildElements(body, tracksHeader.DataOffset, tracksHeader.DataSize) {
		if entry.ID != ElementTrackEntry {
			continue
		}

		track, isSubtitle := parseTrackEntry(body, tracksHeader.DataOffset, entry)
		if isSubtitle {
			tracks = append(tracks, track)
		}
	}

	return tracks, nil
}

func parseTrackEntry(body []byte, bodyBase int64, entry ElementHeader) (SubtitleTrackInfo, bool) {
	track := SubtitleTrackInfo{}
	isSubtitle := false
	legacyLanguage := ""
	bcp47Language := ""

	for child := range ChildElements(body[entry.DataOffset-bodyBase:], entry.DataOffset, entry.DataSize) {
		data := sliceFrom(body, bodyBase, child)

		switch child.ID {
		case ElementTrackNumber:
			track.TrackNumber = ReadUint(data)
		case ElementTrackType:
			isSubtitle = ReadUint(data) == TrackTypeSubtitle
		case ElementCodecID:
			track.CodecID = ReadString(data)
		case ElementCodecPrivate:
			track.CodecPrivate = append([]byte(nil), data...)
		case ElementName:
			track.Name = ReadString(data)
		case ElementLanguage:
			legacyLanguage = ReadString(data)
		case ElementLanguageBCP47:
			bcp47Language = ReadString(data)
		case ElementDefaultDuration:
			track.DefaultDuration = ReadUint(data)
		case ElementContentEncodings:
			parseContentEncodings(body, bodyBase, child, &track)
		}
	}

	track.Language = resolveLanguage(bcp47Language, legacyLanguage)

	return track, isSubtitle
}

func parseContentEncodings(body []byte, bodyBase int64, encodings ElementHeader, track *SubtitleTrackInfo) {
	for encoding := range ChildElements(body[encodings.DataOffset-bodyBase:], encodings.DataOffset, encodings.DataSize) {
		if encoding.ID != ElementContentEncoding {
			continue
		}

		for child := range ChildElements(body[encoding.DataOffset-bodyBase:], encoding.DataOffset, encoding.DataSize) {
			data := sliceFrom(body, bodyBase, child)

			switch child.ID {
			case ElementContentEncodingType:
				track.ContentEncodingType = int(ReadUint(data))
			case ElementContentEncodingScope:
				track.ContentEncodingScope = uint(ReadUint(data))
			}
		}
	}
}

// resolveLanguage applies the precedence rule: BCP-47 wins over the legacy
// Language element when both are present, and "und" (the ISO 639-2
// "undetermined" code, also used as the default for BCP-47) normalizes to
// absent.
func resolveLanguage(bcp47, legacy string) string {
	chosen := legacy
	if bcp47 != "" {
		chosen = bcp47
	}

	if chosen == "" || chosen == "und" {
		return ""
	}

	return chosen
}

// LanguageMatches reports whether a track's language tag is in want,
// matching case-insensitively and, when both sides parse as valid BCP-47,
// by base language — so a legacy "eng" Language element matches a
// "languages" filter spelled "en" or "eng" either way.
func LanguageMatches(trackLanguage string, want []string) bool {
	if trackLanguage == "" {
		return false
	}

	trackTag, trackParseErr := language.Parse(trackLanguage)

	for _, w := range want {
		if strings.EqualFold(trackLanguage, w) {
			return true
		}

		if trackParseErr != nil {
			continue
		}

		wantTag, wantParseErr := language.Parse(w)
		if wantParseErr != nil {
			continue
		}

		trackBase, _ := trackTag.Base()
		wantBase, _ := wantTag.Base()
		if trackBase == wantBase {
			return true
		}
	}

	return false
}

// sliceFrom extracts a child element's data out of body, where body[0]
// corresponds to file offset bodyBase.
func sliceFrom(body []byte, bodyBase int64, h ElementHeader) []byte {
	start := h.DataOffset - bodyBase
	end := h.EndOffset() - bodyBase
	if start < 0 || end > int64(len(body)) || start > end {
		return nil
	}

	return body[start:end]
}
